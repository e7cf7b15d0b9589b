package arena

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/loot-arena/internal/agents"
	"github.com/talgya/loot-arena/internal/entropy"
)

func seatable(id agents.AgentID, owner string, hp, balance float64) *agents.Agent {
	return &agents.Agent{
		ID:      id,
		Name:    "Fighter",
		OwnerID: owner,
		Stats:   agents.Stats{Attack: 50, Defense: 30, CritChance: 10, HitChance: 80, Agility: 40},
		HP:      hp,
		MaxHP:   agents.DefaultMaxHP,
		Balance: balance,
		Status:  agents.StatusInArena,
	}
}

func TestSelectFighters_PlayersSeatedFirst(t *testing.T) {
	reg := agents.NewRegistry()
	// 3 player agents against a house crowd wide enough to fill every seat.
	for id := agents.AgentID(1); id <= 3; id++ {
		reg.Add(seatable(id, "alice", 100, 500))
	}
	for id := agents.AgentID(100); id < 130; id++ {
		reg.Add(seatable(id, "", 100, 500))
	}

	s := NewScheduler(reg, entropy.NewSource(7), DefaultSchedulerConfig())
	picked := s.selectFighters()

	require.Len(t, picked, s.cfg.MaxSeats)
	players := 0
	for _, id := range picked {
		if id <= 3 {
			players++
		}
	}
	assert.Equal(t, 3, players, "every in-arena player agent gets a seat")
}

func TestSelectFighters_SkipsIneligible(t *testing.T) {
	reg := agents.NewRegistry()
	idle := seatable(1, "alice", 100, 500)
	idle.Status = agents.StatusIdle
	reg.Add(idle)

	downed := seatable(2, "", 0, 500) // house agent with no hit points
	reg.Add(downed)

	reg.Add(seatable(3, "", 100, 500))
	reg.Add(seatable(4, "", 100, 500))

	s := NewScheduler(reg, entropy.NewSource(7), DefaultSchedulerConfig())
	picked := s.selectFighters()

	require.Len(t, picked, 2)
	assert.NotContains(t, picked, agents.AgentID(1))
	assert.NotContains(t, picked, agents.AgentID(2))
}

func TestSelectFighters_PlayerSeatsCapped(t *testing.T) {
	reg := agents.NewRegistry()
	for id := agents.AgentID(1); id <= 15; id++ {
		reg.Add(seatable(id, "alice", 100, 500))
	}

	s := NewScheduler(reg, entropy.NewSource(7), DefaultSchedulerConfig())
	picked := s.selectFighters()
	assert.Len(t, picked, s.cfg.MaxSeats)
}

func TestSettle_PodiumAndStatuses(t *testing.T) {
	reg := agents.NewRegistry()
	for id := agents.AgentID(1); id <= 5; id++ {
		reg.Add(seatable(id, "", 100, 500))
	}
	// Agents 4 and 5 go down during the fight.
	reg.Update(4, func(a *agents.Agent) { a.HP = 0; a.Status = agents.StatusFighting })
	reg.Update(5, func(a *agents.Agent) { a.HP = 0; a.Status = agents.StatusFighting })
	reg.Update(1, func(a *agents.Agent) { a.HP = 90 })
	reg.Update(2, func(a *agents.Agent) { a.HP = 40 })
	reg.Update(3, func(a *agents.Agent) { a.HP = 70 })

	s := NewScheduler(reg, entropy.NewSource(7), DefaultSchedulerConfig())
	s.seats = []agents.AgentID{1, 2, 3, 4, 5}
	s.settle()

	for id := agents.AgentID(1); id <= 3; id++ {
		a, ok := reg.Get(id)
		require.True(t, ok)
		assert.Equal(t, agents.StatusInArena, a.Status)
		assert.Equal(t, a.MaxHP, a.HP, "hit points restored after the round")
	}
	for id := agents.AgentID(4); id <= 5; id++ {
		a, ok := reg.Get(id)
		require.True(t, ok)
		assert.Equal(t, agents.StatusEliminated, a.Status)
		assert.Equal(t, a.MaxHP, a.HP)
	}

	top3 := s.State().Top3
	require.Len(t, top3, 3)
	assert.GreaterOrEqual(t, top3[0].Profit, top3[1].Profit)
	assert.GreaterOrEqual(t, top3[1].Profit, top3[2].Profit)
	for _, r := range top3 {
		assert.NotContains(t, []agents.AgentID{4, 5}, r.AgentID, "the fallen never place")
	}
}

func TestScheduler_StrictPhaseOrder(t *testing.T) {
	reg := agents.NewRegistry()
	for id := agents.AgentID(1); id <= 4; id++ {
		reg.Add(seatable(id, "", 100, 500))
	}

	// Every phase long enough that a 2ms poll cannot skip one.
	cfg := SchedulerConfig{
		MaxSeats:       4,
		WaitDuration:   60 * time.Millisecond,
		RevealDuration: 60 * time.Millisecond,
		LoadDuration:   60 * time.Millisecond,
		FightDuration:  time.Second,
		SettleHold:     60 * time.Millisecond,
		SelectBackoff:  60 * time.Millisecond,
	}
	s := NewScheduler(reg, entropy.NewSource(7), cfg)

	done := make(chan struct{})
	go func() {
		s.Run()
		close(done)
	}()

	// Sample phases over two full rounds and keep the distinct transitions.
	var observed []Phase
	deadline := time.Now().Add(15 * time.Second)
	for s.Round() < 2 && time.Now().Before(deadline) {
		p := s.Phase()
		if len(observed) == 0 || observed[len(observed)-1] != p {
			observed = append(observed, p)
		}
		time.Sleep(2 * time.Millisecond)
	}
	s.Stop()
	<-done

	require.GreaterOrEqual(t, len(observed), 6, "too few phase transitions observed: %v", observed)

	// The cycle is strict: each phase hands off only to its successor,
	// settlement wrapping back to waiting.
	next := map[Phase]Phase{
		PhaseWaiting:    PhaseSelecting,
		PhaseSelecting:  PhaseLoading,
		PhaseLoading:    PhaseFighting,
		PhaseFighting:   PhaseSettlement,
		PhaseSettlement: PhaseWaiting,
	}
	for i := 1; i < len(observed); i++ {
		assert.Equal(t, next[observed[i-1]], observed[i],
			"phase %s may only hand off to %s, saw %s",
			PhaseName(observed[i-1]), PhaseName(next[observed[i-1]]), PhaseName(observed[i]))
	}
}

func TestScheduler_RunAndStop(t *testing.T) {
	reg := agents.NewRegistry()
	for id := agents.AgentID(1); id <= 4; id++ {
		reg.Add(seatable(id, "", 100, 500))
	}

	cfg := SchedulerConfig{
		MaxSeats:       4,
		WaitDuration:   10 * time.Millisecond,
		RevealDuration: 10 * time.Millisecond,
		LoadDuration:   10 * time.Millisecond,
		FightDuration:  time.Second,
		SettleHold:     10 * time.Millisecond,
		SelectBackoff:  10 * time.Millisecond,
	}
	s := NewScheduler(reg, entropy.NewSource(7), cfg)

	done := make(chan struct{})
	go func() {
		s.Run()
		close(done)
	}()

	// One full cycle should finish well inside the allowance.
	deadline := time.Now().Add(10 * time.Second)
	for s.Round() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	require.GreaterOrEqual(t, s.Round(), uint64(1), "scheduler never completed a round")

	s.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop promptly")
	}
}
