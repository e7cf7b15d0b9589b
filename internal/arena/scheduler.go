// Package arena provides the visible round scheduler and the headless
// auto-battle simulator. Both operate on the shared agent registry and the
// same combat law.
package arena

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/talgya/loot-arena/internal/agents"
	"github.com/talgya/loot-arena/internal/entropy"
)

// Phase is one state of the round scheduler's repeating cycle.
// The cycle is strict: waiting → selecting → loading → fighting → settlement.
type Phase uint8

const (
	PhaseWaiting Phase = iota
	PhaseSelecting
	PhaseLoading
	PhaseFighting
	PhaseSettlement
)

// PhaseName returns the wire/display name for a phase.
func PhaseName(p Phase) string {
	switch p {
	case PhaseWaiting:
		return "waiting"
	case PhaseSelecting:
		return "selecting"
	case PhaseLoading:
		return "loading"
	case PhaseFighting:
		return "fighting"
	case PhaseSettlement:
		return "settlement"
	default:
		return "unknown"
	}
}

// SchedulerConfig holds the phase timings and seating limits.
type SchedulerConfig struct {
	MaxSeats       int           // Fighters per round
	WaitDuration   time.Duration // Idle pause between rounds
	RevealDuration time.Duration // Total seat-reveal window, split per fighter
	LoadDuration   time.Duration // Cosmetic loading window
	FightDuration  time.Duration // Visible fight window
	SettleHold     time.Duration // Result display hold
	SelectBackoff  time.Duration // Retry pause when fewer than 2 eligible
}

// DefaultSchedulerConfig returns the production phase timings.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		MaxSeats:       10,
		WaitDuration:   2 * time.Second,
		RevealDuration: 3 * time.Second,
		LoadDuration:   1 * time.Second,
		FightDuration:  10 * time.Second,
		SettleHold:     3 * time.Second,
		SelectBackoff:  3 * time.Second,
	}
}

// RoundResult is one podium entry from the most recent settlement.
type RoundResult struct {
	AgentID agents.AgentID `json:"agent_id"`
	Name    string         `json:"name"`
	Profit  float64        `json:"profit"`
}

// Snapshot is a read-only view of the arena for the UI layer.
type Snapshot struct {
	Phase     string         `json:"phase"`
	Round     uint64         `json:"round"`
	Countdown int            `json:"countdown"` // Loading % during loading, seconds left during fighting
	Seats     []agents.Agent `json:"seats"`
	Top3      []RoundResult  `json:"top3"`
}

// Scheduler drives the visible arena through its phase cycle. Combat during
// the fighting window is resolved externally (by the consuming layer through
// the core's step operation) against the seated participants.
type Scheduler struct {
	reg *agents.Registry
	rng *entropy.Source
	cfg SchedulerConfig

	running atomic.Bool

	mu        sync.Mutex
	phase     Phase
	round     uint64
	countdown int
	seats     []agents.AgentID
	top3      []RoundResult
}

// NewScheduler creates a round scheduler over the shared registry.
func NewScheduler(reg *agents.Registry, rng *entropy.Source, cfg SchedulerConfig) *Scheduler {
	return &Scheduler{reg: reg, rng: rng, cfg: cfg, phase: PhaseWaiting}
}

// Run executes the phase cycle until Stop is called. Blocks.
func (s *Scheduler) Run() {
	s.running.Store(true)
	slog.Info("round scheduler started")
	for s.running.Load() {
		s.runRound()
	}
	slog.Info("round scheduler stopped", "rounds", s.Round())
}

// Stop clears the liveness flag; the loop exits at its next suspend point.
func (s *Scheduler) Stop() {
	s.running.Store(false)
}

// Phase returns the current phase.
func (s *Scheduler) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Round returns the round counter.
func (s *Scheduler) Round() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.round
}

// Seated returns the IDs currently seated, in slot order.
func (s *Scheduler) Seated() []agents.AgentID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]agents.AgentID(nil), s.seats...)
}

// Fighting reports whether combat steps are currently accepted.
func (s *Scheduler) Fighting() bool {
	return s.Phase() == PhaseFighting
}

// State returns a copy of the visible arena state.
func (s *Scheduler) State() Snapshot {
	s.mu.Lock()
	phase := s.phase
	round := s.round
	countdown := s.countdown
	seats := append([]agents.AgentID(nil), s.seats...)
	top3 := append([]RoundResult(nil), s.top3...)
	s.mu.Unlock()

	snap := Snapshot{
		Phase:     PhaseName(phase),
		Round:     round,
		Countdown: countdown,
		Top3:      top3,
		Seats:     make([]agents.Agent, 0, len(seats)),
	}
	for _, id := range seats {
		if a, ok := s.reg.Get(id); ok {
			snap.Seats = append(snap.Seats, a)
		}
	}
	return snap
}

// runRound advances through one full phase cycle.
func (s *Scheduler) runRound() {
	// waiting: idle pause, nobody seated.
	s.setPhase(PhaseWaiting)
	s.clearSeats()
	if !s.sleep(s.cfg.WaitDuration) {
		return
	}

	// selecting: choose fighters, retrying indefinitely on an empty arena.
	s.setPhase(PhaseSelecting)
	var picked []agents.AgentID
	for s.running.Load() {
		picked = s.selectFighters()
		if len(picked) >= 2 {
			break
		}
		if !s.sleep(s.cfg.SelectBackoff) {
			return
		}
	}
	if !s.running.Load() {
		return
	}
	s.seatFighters(picked)

	// loading: cosmetic 0→100 progress in 10% steps.
	s.setPhase(PhaseLoading)
	step := s.cfg.LoadDuration / 10
	for pct := 10; pct <= 100; pct += 10 {
		if !s.sleep(step) {
			return
		}
		s.setCountdown(pct)
	}

	// fighting: fixed window, decremented once per second. Combat happens
	// through the external step operation against the seated agents.
	s.setPhase(PhaseFighting)
	secs := int(s.cfg.FightDuration / time.Second)
	for left := secs; left > 0; left-- {
		s.setCountdown(left)
		if !s.sleep(time.Second) {
			return
		}
	}
	s.setCountdown(0)

	// settlement: rank survivors, restore everyone, hold for display.
	s.setPhase(PhaseSettlement)
	s.settle()
	if !s.sleep(s.cfg.SettleHold) {
		return
	}

	s.mu.Lock()
	s.round++
	s.mu.Unlock()
}

// selectFighters picks up to MaxSeats fighters: the player's in-arena agents
// first, then house agents with positive hit points, both pools in randomized
// order, with a final shuffle of the combined list.
func (s *Scheduler) selectFighters() []agents.AgentID {
	players := s.reg.IDs(func(a *agents.Agent) bool {
		return a.PlayerOwned() && a.Status == agents.StatusInArena
	})
	house := s.reg.IDs(func(a *agents.Agent) bool {
		return !a.PlayerOwned() && a.Status == agents.StatusInArena && a.HP > 0
	})
	s.rng.Shuffle(len(players), func(i, j int) { players[i], players[j] = players[j], players[i] })
	s.rng.Shuffle(len(house), func(i, j int) { house[i], house[j] = house[j], house[i] })

	picked := players
	if len(picked) > s.cfg.MaxSeats {
		picked = picked[:s.cfg.MaxSeats]
	}
	for _, id := range house {
		if len(picked) >= s.cfg.MaxSeats {
			break
		}
		picked = append(picked, id)
	}
	s.rng.Shuffle(len(picked), func(i, j int) { picked[i], picked[j] = picked[j], picked[i] })
	return picked
}

// seatFighters reveals the fighters one slot at a time across the reveal
// window. Pure timing; no combat occurs here.
func (s *Scheduler) seatFighters(picked []agents.AgentID) {
	perSeat := s.cfg.RevealDuration / time.Duration(len(picked))
	for _, id := range picked {
		s.reg.Update(id, func(a *agents.Agent) {
			a.HP = a.MaxHP
			a.Status = agents.StatusFighting
		})
		s.mu.Lock()
		s.seats = append(s.seats, id)
		s.mu.Unlock()
		if !s.sleep(perSeat) {
			return
		}
	}
}

// settle computes the round podium from current hit points and returns every
// fighter to the arena. Hit points are restored regardless of outcome; real
// economic damage lives in balances, settled by the skirmish simulator.
func (s *Scheduler) settle() {
	seats := s.Seated()

	type outcome struct {
		id     agents.AgentID
		name   string
		profit float64
	}
	var survivors []outcome

	for _, id := range seats {
		a, ok := s.reg.Get(id)
		if !ok {
			continue
		}
		if a.HP > 0 {
			// Synthetic display profit: remaining-hp share plus jitter.
			profit := a.HP / a.MaxHP * 100 * (1 + s.rng.Float())
			survivors = append(survivors, outcome{id: id, name: a.Name, profit: profit})
		}
		survived := a.HP > 0
		s.reg.Update(id, func(a *agents.Agent) {
			a.HP = a.MaxHP
			if survived {
				a.Status = agents.StatusInArena
			} else {
				a.Status = agents.StatusEliminated
			}
		})
	}

	for i := 0; i < len(survivors)-1; i++ {
		for j := i + 1; j < len(survivors); j++ {
			if survivors[j].profit > survivors[i].profit {
				survivors[i], survivors[j] = survivors[j], survivors[i]
			}
		}
	}
	if len(survivors) > 3 {
		survivors = survivors[:3]
	}

	top3 := make([]RoundResult, 0, len(survivors))
	for _, o := range survivors {
		top3 = append(top3, RoundResult{AgentID: o.id, Name: o.name, Profit: o.profit})
	}

	s.mu.Lock()
	s.top3 = top3
	s.mu.Unlock()
}

func (s *Scheduler) setPhase(p Phase) {
	s.mu.Lock()
	s.phase = p
	s.countdown = 0
	s.mu.Unlock()
}

func (s *Scheduler) setCountdown(v int) {
	s.mu.Lock()
	s.countdown = v
	s.mu.Unlock()
}

func (s *Scheduler) clearSeats() {
	s.mu.Lock()
	s.seats = nil
	s.mu.Unlock()
}

// sleep pauses in short slices, checking the liveness flag so teardown never
// waits out a full phase. Returns false when stopped.
func (s *Scheduler) sleep(d time.Duration) bool {
	const slice = 50 * time.Millisecond
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if !s.running.Load() {
			return false
		}
		remaining := time.Until(deadline)
		if remaining > slice {
			remaining = slice
		}
		time.Sleep(remaining)
	}
	return s.running.Load()
}
