package tournament

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/loot-arena/internal/agents"
	"github.com/talgya/loot-arena/internal/entropy"
	"github.com/talgya/loot-arena/internal/market"
	"github.com/talgya/loot-arena/internal/wallet"
)

func newTestManager(t *testing.T) (*Manager, *agents.Registry, *wallet.Store, *market.Book) {
	t.Helper()
	reg := agents.NewRegistry()
	users := wallet.NewStore()
	book := market.NewBook(users)
	rng := entropy.NewSource(11)
	spawner := agents.NewSpawner(rng)
	spawner.SetNextID(10000) // Keep hand-placed test IDs clear of house fillers
	return NewManager(reg, users, book, spawner, rng), reg, users, book
}

func ownedAgent(id agents.AgentID, owner string, attack, defense float64) *agents.Agent {
	return &agents.Agent{
		ID:      id,
		Name:    "Challenger",
		OwnerID: owner,
		Stats:   agents.Stats{Attack: attack, Defense: defense, CritChance: 10, HitChance: 80, Agility: 40},
		HP:      agents.DefaultMaxHP,
		MaxHP:   agents.DefaultMaxHP,
		Balance: 100,
		Status:  agents.StatusIdle,
	}
}

func TestRegister_GuardOrder(t *testing.T) {
	m, reg, users, _ := newTestManager(t)
	tour := m.Create(TypeChallenge, "test cup")

	// Identity guards come before everything else.
	_, err := m.Register("alice", tour.ID, 1)
	assert.ErrorIs(t, err, wallet.ErrUnknownUser)

	users.Connect("alice")
	_, err = m.Register("alice", tour.ID, 1)
	assert.ErrorIs(t, err, ErrUnknownAgent)

	reg.Add(ownedAgent(1, "bob", 50, 30))
	_, err = m.Register("alice", tour.ID, 1)
	assert.ErrorIs(t, err, ErrNotAgentOwner)

	reg.Add(ownedAgent(2, "alice", 50, 30))
	reg.Update(2, func(a *agents.Agent) { a.Status = agents.StatusFighting })
	_, err = m.Register("alice", tour.ID, 2)
	assert.ErrorIs(t, err, ErrAgentSeated)
	reg.Update(2, func(a *agents.Agent) { a.Status = agents.StatusIdle })

	_, err = m.Register("alice", "no-such-tournament", 2)
	assert.ErrorIs(t, err, ErrUnknownTournament)

	entry, err := m.Register("alice", tour.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 50.0, entry.FeePaid)

	reg.Add(ownedAgent(3, "alice", 50, 30))
	_, err = m.Register("alice", tour.ID, 3)
	assert.ErrorIs(t, err, ErrDuplicateEntry)
}

func TestRegister_FeeFundsPrizePool(t *testing.T) {
	m, reg, users, _ := newTestManager(t)
	users.Connect("alice")
	reg.Add(ownedAgent(1, "alice", 50, 30))

	tour := m.Create(TypeChallenge, "")
	_, err := m.Register("alice", tour.ID, 1)
	require.NoError(t, err)

	u, _ := users.Get("alice")
	assert.Equal(t, wallet.StartingBalance-50.0, u.Balance)

	cur, ok := m.Get(tour.ID)
	require.True(t, ok)
	assert.Equal(t, 500.0+50.0, cur.PrizePool) // Seed plus the entry fee
	assert.Contains(t, cur.Participants, agents.AgentID(1))
}

func TestRegister_ConcurrentSingleEntry(t *testing.T) {
	m, reg, users, _ := newTestManager(t)
	users.Connect("alice")
	const attempts = 16
	for i := 0; i < attempts; i++ {
		reg.Add(ownedAgent(agents.AgentID(i+1), "alice", 50, 30))
	}
	tour := m.Create(TypeChallenge, "")

	// Racing registrations for one user must admit exactly one entry
	// and debit exactly one fee.
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(id agents.AgentID) {
			defer wg.Done()
			_, err := m.Register("alice", tour.ID, id)
			results <- err
		}(agents.AgentID(i + 1))
	}
	wg.Wait()
	close(results)

	var admitted, rejected int
	for err := range results {
		if err == nil {
			admitted++
		} else {
			require.ErrorIs(t, err, ErrDuplicateEntry)
			rejected++
		}
	}
	assert.Equal(t, 1, admitted)
	assert.Equal(t, attempts-1, rejected)

	u, _ := users.Get("alice")
	assert.Equal(t, wallet.StartingBalance-50.0, u.Balance)
	cur, ok := m.Get(tour.ID)
	require.True(t, ok)
	assert.Len(t, cur.Participants, 1)
}

func TestRegister_InsufficientFunds(t *testing.T) {
	m, reg, users, _ := newTestManager(t)
	users.Connect("poor")
	require.NoError(t, users.Debit("poor", wallet.StartingBalance-10))
	reg.Add(ownedAgent(1, "poor", 50, 30))

	tour := m.Create(TypeChallenge, "")
	_, err := m.Register("poor", tour.ID, 1)
	assert.ErrorIs(t, err, wallet.ErrInsufficientBalance)
	assert.Empty(t, m.Entries(tour.ID))
}

func TestEligibility_DailyNeedsChallengeTitle(t *testing.T) {
	m, reg, users, _ := newTestManager(t)
	users.Connect("alice")
	users.Credit("alice", 1000)
	reg.Add(ownedAgent(1, "alice", 50, 30))

	daily := m.Create(TypeDaily, "")
	_, err := m.Register("alice", daily.ID, 1)
	assert.ErrorIs(t, err, ErrNotEligible)

	// A stale challenge title does not qualify.
	m.titles[1] = []title{{Type: TypeChallenge, FinishedAt: time.Now().Add(-48 * time.Hour)}}
	_, err = m.Register("alice", daily.ID, 1)
	assert.ErrorIs(t, err, ErrNotEligible)

	m.titles[1] = append(m.titles[1], title{Type: TypeChallenge, FinishedAt: time.Now().Add(-time.Hour)})
	_, err = m.Register("alice", daily.ID, 1)
	assert.NoError(t, err)
}

func TestEligibility_WeeklyNeedsSundayDailyTitle(t *testing.T) {
	m, reg, users, _ := newTestManager(t)
	users.Connect("alice")
	users.Credit("alice", 2000)
	reg.Add(ownedAgent(1, "alice", 50, 30))

	weekly := m.Create(TypeWeekly, "")
	// A daily title from a weekday does not qualify.
	monday := time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)
	m.titles[1] = []title{{Type: TypeDaily, FinishedAt: monday}}
	_, err := m.Register("alice", weekly.ID, 1)
	assert.ErrorIs(t, err, ErrNotEligible)

	sunday := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	m.titles[1] = append(m.titles[1], title{Type: TypeDaily, FinishedAt: sunday})
	_, err = m.Register("alice", weekly.ID, 1)
	assert.NoError(t, err)
}

func TestStart_FillsBracketToCapacity(t *testing.T) {
	m, reg, users, _ := newTestManager(t)
	users.Connect("alice")
	reg.Add(ownedAgent(1, "alice", 50, 30))

	tour := m.Create(TypeChallenge, "")
	_, err := m.Register("alice", tour.ID, 1)
	require.NoError(t, err)
	require.NoError(t, m.Start(tour.ID))

	cur, _ := m.Get(tour.ID)
	assert.Equal(t, StatusOngoing, cur.Status)
	assert.Equal(t, RoundOf128, cur.Round)
	assert.Len(t, cur.Participants, MaxEntrants)
	// Opening round: cohorts of four, first two seats of each fight.
	assert.Len(t, cur.Matches, 32)

	// Starting twice is refused.
	assert.ErrorIs(t, m.Start(tour.ID), ErrRegistrationClosed)
}

func TestResolveRound_AdvancesBracket(t *testing.T) {
	m, _, _, _ := newTestManager(t)
	tour := m.Create(TypeChallenge, "")
	require.NoError(t, m.Start(tour.ID))

	require.NoError(t, m.ResolveRound(tour.ID))
	cur, _ := m.Get(tour.ID)
	assert.Equal(t, RoundOf32, cur.Round)
	assert.Len(t, cur.CurrentMatches(), 16)
	assert.Len(t, cur.Matches, 48)

	for _, mt := range cur.Matches {
		if mt.Round == RoundOf128 {
			assert.True(t, mt.Resolved())
			assert.NotNil(t, mt.ResolvedAt)
		}
	}
}

func TestResolveRound_FullRunCrownsChampion(t *testing.T) {
	m, reg, users, book := newTestManager(t)
	users.Connect("alice")
	reg.Add(ownedAgent(1, "alice", 80, 60)) // Strong, but the swing can still beat it

	tour := m.Create(TypeChallenge, "")
	_, err := m.Register("alice", tour.ID, 1)
	require.NoError(t, err)
	require.NoError(t, m.Start(tour.ID))

	for i := 0; i < 10 && !m.Finished(tour.ID); i++ {
		require.NoError(t, m.ResolveRound(tour.ID))
	}
	require.True(t, m.Finished(tour.ID), "bracket never completed")

	cur, _ := m.Get(tour.ID)
	assert.Equal(t, StatusFinished, cur.Status)
	assert.NotZero(t, cur.Champion)
	require.NotNil(t, cur.FinishedAt)

	// Champion takes half the pool and a rank-1 placement.
	champ, ok := reg.Get(cur.Champion)
	require.True(t, ok)
	require.NotEmpty(t, champ.Career.Placements)
	last := champ.Career.Placements[len(champ.Career.Placements)-1]
	assert.Equal(t, 1, last.Rank)
	assert.InDelta(t, cur.PrizePool*ChampionShare, last.Prize, 1e-9)

	// Two losing finalists split the third-place share.
	thirds := 0
	for _, a := range reg.List(nil) {
		for _, p := range a.Career.Placements {
			if p.TournamentID == tour.ID && p.Rank == 3 {
				thirds++
				assert.InDelta(t, cur.PrizePool*ThirdShare, p.Prize, 1e-9)
			}
		}
	}
	assert.Equal(t, 2, thirds)

	// Both prediction markets opened along the way and settled on the champion.
	var settled int
	for _, mk := range book.List() {
		if mk.TournamentID != tour.ID {
			continue
		}
		settled++
		assert.Equal(t, market.StatusSettled, mk.Status)
		assert.Equal(t, cur.Champion, mk.Winner)
	}
	assert.Equal(t, 2, settled)

	hist := m.History()
	require.Len(t, hist, 1)
	assert.Equal(t, cur.Champion, hist[0].Champion)
	assert.Equal(t, tour.ID, hist[0].TournamentID)
}

func TestAutoRegisterAll_PicksStrongestAgent(t *testing.T) {
	m, reg, users, _ := newTestManager(t)
	users.Connect("alice")
	require.NoError(t, users.SetAutoRegister("alice", true))
	users.Connect("bob") // Not opted in

	reg.Add(ownedAgent(1, "alice", 40, 20))
	reg.Add(ownedAgent(2, "alice", 80, 60))
	reg.Add(ownedAgent(3, "bob", 90, 70))

	tour := m.Create(TypeChallenge, "")
	entered := m.AutoRegisterAll(tour.ID)
	assert.Equal(t, 1, entered)

	entries := m.Entries(tour.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, "alice", entries[0].UserID)
	assert.Equal(t, agents.AgentID(2), entries[0].AgentID)
}

func TestHasOpenRegistration(t *testing.T) {
	m, _, _, _ := newTestManager(t)
	assert.False(t, m.HasOpenRegistration(TypeChallenge))

	tour := m.Create(TypeChallenge, "")
	assert.True(t, m.HasOpenRegistration(TypeChallenge))
	assert.False(t, m.HasOpenRegistration(TypeDaily))

	require.NoError(t, m.Start(tour.ID))
	assert.False(t, m.HasOpenRegistration(TypeChallenge))
}
