package tournament

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/loot-arena/internal/agents"
	"github.com/talgya/loot-arena/internal/entropy"
	"github.com/talgya/loot-arena/internal/market"
	"github.com/talgya/loot-arena/internal/wallet"
)

// Typed registration failures, reported to the caller as structured reasons.
var (
	ErrUnknownTournament  = errors.New("unknown tournament")
	ErrRegistrationClosed = errors.New("registration is closed")
	ErrTournamentFull     = errors.New("tournament is full")
	ErrDuplicateEntry     = errors.New("caller already has an entry")
	ErrUnknownAgent       = errors.New("unknown agent")
	ErrNotAgentOwner      = errors.New("agent belongs to another user")
	ErrAgentSeated        = errors.New("agent is seated in the arena")
	ErrNotEligible        = errors.New("agent is not eligible for this cadence")
)

// title records a championship for eligibility checks.
type title struct {
	Type       Type
	FinishedAt time.Time
}

// Payout split. The champion's half is fixed; the rest goes to the runner-up
// and the two losing finalists.
const (
	ChampionShare = 0.50
	RunnerUpShare = 0.30
	ThirdShare    = 0.10 // Each losing finalist
)

// Manager owns every tournament and drives brackets to completion.
type Manager struct {
	reg     *agents.Registry
	users   *wallet.Store
	book    *market.Book
	rng     *entropy.Source
	spawner *agents.Spawner

	mu          sync.Mutex
	tournaments map[string]*Tournament
	entries     map[string][]*Entry // Tournament ID → entries
	titles      map[agents.AgentID][]title
	history     []HistoryRecord

	// OnEvent receives notable tournament happenings. Optional.
	OnEvent func(category, message string)

	nowFn func() time.Time
}

// NewManager creates a tournament manager over the shared stores.
func NewManager(reg *agents.Registry, users *wallet.Store, book *market.Book, spawner *agents.Spawner, rng *entropy.Source) *Manager {
	return &Manager{
		reg:         reg,
		users:       users,
		book:        book,
		rng:         rng,
		spawner:     spawner,
		tournaments: make(map[string]*Tournament),
		entries:     make(map[string][]*Entry),
		titles:      make(map[agents.AgentID][]title),
		nowFn:       time.Now,
	}
}

// Create opens a tournament in registration with the cadence's settings.
func (m *Manager) Create(t Type, name string) Tournament {
	s := SettingsFor(t)
	now := m.nowFn()
	if name == "" {
		name = fmt.Sprintf("%s cup %s", t, now.Format("15:04:05"))
	}
	tour := &Tournament{
		ID:            uuid.NewString(),
		Name:          name,
		Type:          t,
		Status:        StatusRegistration,
		PrizePool:     s.SeedPrize,
		EntryFee:      s.EntryFee,
		Round:         RoundOf128,
		CreatedAt:     now,
		RegisterUntil: now.Add(s.RegistrationWindow),
	}

	m.mu.Lock()
	m.tournaments[tour.ID] = tour
	m.mu.Unlock()

	slog.Info("tournament created", "id", tour.ID, "type", t, "name", name, "fee", s.EntryFee)
	m.emit("tournament", fmt.Sprintf("%s opens for registration (fee %.0f)", name, s.EntryFee))
	return *tour
}

// Register enters the caller's agent. Every guard failure is a typed error;
// on success the fee is debited into the prize pool and an entry is created.
func (m *Manager) Register(userID, tournamentID string, agentID agents.AgentID) (Entry, error) {
	if _, err := m.users.RequireConnected(userID); err != nil {
		return Entry{}, err
	}

	agent, ok := m.reg.Get(agentID)
	if !ok {
		return Entry{}, ErrUnknownAgent
	}
	if agent.OwnerID != userID {
		return Entry{}, ErrNotAgentOwner
	}
	if agent.Status == agents.StatusFighting {
		return Entry{}, ErrAgentSeated
	}

	// Guards, debit and entry creation form one critical section so a
	// concurrent Register cannot slip past the duplicate or capacity
	// checks between the debit and the append.
	m.mu.Lock()
	defer m.mu.Unlock()
	tour, ok := m.tournaments[tournamentID]
	if !ok {
		return Entry{}, ErrUnknownTournament
	}
	if tour.Status != StatusRegistration && tour.Status != StatusUpcoming {
		return Entry{}, ErrRegistrationClosed
	}
	if len(tour.Participants) >= MaxEntrants {
		return Entry{}, ErrTournamentFull
	}
	for _, e := range m.entries[tournamentID] {
		if e.UserID == userID {
			return Entry{}, ErrDuplicateEntry
		}
	}
	if !m.eligibleLocked(agentID, tour.Type) {
		return Entry{}, ErrNotEligible
	}
	fee := tour.EntryFee

	if err := m.users.Debit(userID, fee); err != nil {
		return Entry{}, err
	}

	entry := &Entry{
		ID:           uuid.NewString(),
		TournamentID: tournamentID,
		UserID:       userID,
		AgentID:      agentID,
		FeePaid:      fee,
	}
	m.entries[tournamentID] = append(m.entries[tournamentID], entry)
	tour.Participants = append(tour.Participants, agentID)
	tour.PrizePool += fee
	return *entry, nil
}

// eligibleLocked applies the cadence's eligibility predicate.
// Caller holds m.mu.
func (m *Manager) eligibleLocked(agentID agents.AgentID, t Type) bool {
	switch t {
	case TypeDaily:
		// A challenge title within the last 24 hours.
		cutoff := m.nowFn().Add(-24 * time.Hour)
		for _, w := range m.titles[agentID] {
			if w.Type == TypeChallenge && w.FinishedAt.After(cutoff) {
				return true
			}
		}
		return false
	case TypeWeekly:
		// A daily title that ended on a Sunday.
		for _, w := range m.titles[agentID] {
			if w.Type == TypeDaily && w.FinishedAt.Weekday() == time.Sunday {
				return true
			}
		}
		return false
	default:
		return true
	}
}

// Start fills the bracket to capacity with house agents and builds the
// round-of-128 pairings.
func (m *Manager) Start(tournamentID string) error {
	m.mu.Lock()
	tour, ok := m.tournaments[tournamentID]
	if !ok {
		m.mu.Unlock()
		return ErrUnknownTournament
	}
	if tour.Status == StatusOngoing || tour.Status == StatusFinished {
		m.mu.Unlock()
		return ErrRegistrationClosed
	}
	taken := make(map[agents.AgentID]bool, len(tour.Participants))
	for _, id := range tour.Participants {
		taken[id] = true
	}
	need := MaxEntrants - len(tour.Participants)
	m.mu.Unlock()

	// Fill with house agents; generate extras when the roster runs short.
	fillers := m.reg.IDs(func(a *agents.Agent) bool {
		return !a.PlayerOwned() && !taken[a.ID] && a.Status != agents.StatusFighting
	})
	if len(fillers) > need {
		fillers = fillers[:need]
	}
	if short := need - len(fillers); short > 0 {
		for _, a := range m.spawner.GenerateHouse(short) {
			m.reg.Add(a)
			fillers = append(fillers, a.ID)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	tour.Participants = append(tour.Participants, fillers...)
	tour.Status = StatusOngoing
	tour.Round = RoundOf128
	tour.Matches = m.buildMatchesLocked(RoundOf128, tour.Participants)

	slog.Info("tournament started",
		"id", tour.ID,
		"type", tour.Type,
		"participants", len(tour.Participants),
		"matches", len(tour.Matches),
		"prize_pool", tour.PrizePool,
	)
	return nil
}

// buildMatchesLocked creates the pairings for a round. The opening round
// groups entrants into cohorts of four and pairs the first two seats of each
// cohort; later rounds pair the previous winners two at a time, in order.
// Caller holds m.mu.
func (m *Manager) buildMatchesLocked(round Round, entrants []agents.AgentID) []Match {
	var out []Match
	if round == RoundOf128 {
		for i := 0; i+1 < len(entrants); i += 4 {
			out = append(out, Match{ID: uuid.NewString(), Round: round, A: entrants[i], B: entrants[i+1]})
		}
		return out
	}
	for i := 0; i+1 < len(entrants); i += 2 {
		out = append(out, Match{ID: uuid.NewString(), Round: round, A: entrants[i], B: entrants[i+1]})
	}
	return out
}

// ResolveRound resolves every unresolved match of the current round, then
// advances the bracket. A round never advances with an undecided match.
func (m *Manager) ResolveRound(tournamentID string) error {
	m.mu.Lock()
	tour, ok := m.tournaments[tournamentID]
	if !ok {
		m.mu.Unlock()
		return ErrUnknownTournament
	}
	if tour.Status != StatusOngoing {
		m.mu.Unlock()
		return ErrRegistrationClosed
	}

	now := m.nowFn()
	complete := true
	for i := range tour.Matches {
		mt := &tour.Matches[i]
		if mt.Round != tour.Round {
			continue
		}
		if !mt.Resolved() {
			mt.Winner = m.fightLocked(mt.A, mt.B)
			t := now
			mt.ResolvedAt = &t
		}
		if !mt.Resolved() {
			complete = false
		}
	}
	m.mu.Unlock()

	if !complete {
		return nil
	}
	return m.advance(tournamentID)
}

// fightLocked resolves one match by relative power: attack + defense plus a
// random swing, higher side wins.
func (m *Manager) fightLocked(aID, bID agents.AgentID) agents.AgentID {
	a, okA := m.reg.Get(aID)
	b, okB := m.reg.Get(bID)
	if !okA {
		return bID
	}
	if !okB {
		return aID
	}
	powerA := a.Stats.Attack + a.Stats.Defense + m.rng.Uniform(0, 20)
	powerB := b.Stats.Attack + b.Stats.Defense + m.rng.Uniform(0, 20)
	if powerA >= powerB {
		return aID
	}
	return bID
}

// advance moves the bracket to the next round once the current round is fully
// decided, opening prediction markets at the round-of-8 and semifinal gates
// and finishing the tournament after the final.
func (m *Manager) advance(tournamentID string) error {
	m.mu.Lock()
	tour, ok := m.tournaments[tournamentID]
	if !ok {
		m.mu.Unlock()
		return ErrUnknownTournament
	}

	var winners []agents.AgentID
	for _, mt := range tour.Matches {
		if mt.Round == tour.Round && mt.Resolved() {
			winners = append(winners, mt.Winner)
		}
	}

	if tour.Round == RoundFinal {
		m.mu.Unlock()
		return m.finish(tournamentID, winners)
	}

	next := tour.Round + 1
	tour.Round = next
	tour.Matches = append(tour.Matches, m.buildMatchesLocked(next, winners)...)
	tourID := tour.ID
	tourType := tour.Type
	m.mu.Unlock()

	slog.Info("tournament advanced", "id", tourID, "round", RoundName(next), "qualified", len(winners))

	// Market side effects: semifinal-outcome book at the round of 8,
	// final-outcome book at the semifinal.
	deadline := m.nowFn().Add(SettingsFor(tourType).MarketWindow)
	switch next {
	case RoundOf8:
		m.book.Open(tourID, market.BetSemifinal, winners, deadline)
		m.emit("market", fmt.Sprintf("semifinal market open over %d qualifiers", len(winners)))
	case RoundSemifinal:
		m.book.Open(tourID, market.BetFinal, winners, deadline)
		m.emit("market", fmt.Sprintf("final market open over %d qualifiers", len(winners)))
	}
	return nil
}

// finish crowns the champion, pays the split, assigns entry ranks, settles
// markets, and appends the history record. With two final matches the two
// winners meet in one last power comparison for the title; the final's losers
// split the third-place share.
func (m *Manager) finish(tournamentID string, finalWinners []agents.AgentID) error {
	m.mu.Lock()
	tour, ok := m.tournaments[tournamentID]
	if !ok {
		m.mu.Unlock()
		return ErrUnknownTournament
	}

	var thirds []agents.AgentID
	for _, mt := range tour.Matches {
		if mt.Round == RoundFinal {
			loser := mt.A
			if mt.Winner == mt.A {
				loser = mt.B
			}
			thirds = append(thirds, loser)
		}
	}

	champion := finalWinners[0]
	var runnerUp agents.AgentID
	if len(finalWinners) > 1 {
		champion = m.fightLocked(finalWinners[0], finalWinners[1])
		runnerUp = finalWinners[0]
		if champion == finalWinners[0] {
			runnerUp = finalWinners[1]
		}
	}

	now := m.nowFn()
	tour.Status = StatusFinished
	tour.Champion = champion
	tour.FinishedAt = &now
	prizePool := tour.PrizePool
	tourType := tour.Type
	tourName := tour.Name

	m.titles[champion] = append(m.titles[champion], title{Type: tourType, FinishedAt: now})
	m.mu.Unlock()

	m.award(tournamentID, champion, 1, prizePool*ChampionShare, now)
	if runnerUp != 0 {
		m.award(tournamentID, runnerUp, 2, prizePool*RunnerUpShare, now)
	}
	for _, id := range thirds {
		m.award(tournamentID, id, 3, prizePool*ThirdShare, now)
	}

	// Both market types settle on the champion: it necessarily won its
	// semifinal and the final.
	paid := m.book.SettleFor(tournamentID, map[market.BetType]agents.AgentID{
		market.BetSemifinal: champion,
		market.BetFinal:     champion,
	})

	championName := ""
	if a, ok := m.reg.Get(champion); ok {
		championName = a.Name
	}

	m.mu.Lock()
	m.history = append(m.history, HistoryRecord{
		TournamentID: tournamentID,
		Name:         tourName,
		Type:         tourType,
		Champion:     champion,
		ChampionName: championName,
		Prize:        prizePool * ChampionShare,
		FinishedAt:   now,
	})
	m.mu.Unlock()

	slog.Info("tournament finished",
		"id", tournamentID,
		"champion", championName,
		"prize_pool", prizePool,
		"bets_paid", paid,
	)
	m.emit("tournament", fmt.Sprintf("%s wins %s (%.0f)", championName, tourName, prizePool*ChampionShare))
	return nil
}

// award credits a placement prize to the agent's balance and stamps the
// owning entry, when one exists.
func (m *Manager) award(tournamentID string, agentID agents.AgentID, rank int, prize float64, now time.Time) {
	m.reg.Update(agentID, func(a *agents.Agent) {
		a.Balance += prize
		a.Career.Placements = append(a.Career.Placements, agents.Placement{
			TournamentID: tournamentID,
			Rank:         rank,
			Prize:        prize,
			When:         now,
		})
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries[tournamentID] {
		if e.AgentID == agentID {
			e.Rank = rank
			e.Prize = prize
			break
		}
	}
}

// Finished reports whether the tournament has ended.
func (m *Manager) Finished(tournamentID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tournaments[tournamentID]
	return ok && t.Status == StatusFinished
}

// HasOpenRegistration reports whether any tournament of the cadence is
// accepting entries.
func (m *Manager) HasOpenRegistration(t Type) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tour := range m.tournaments {
		if tour.Type == t && (tour.Status == StatusRegistration || tour.Status == StatusUpcoming) {
			return true
		}
	}
	return false
}

// AutoRegisterAll enters the strongest eligible agent of every opted-in user.
// Individual failures are skipped, not surfaced.
func (m *Manager) AutoRegisterAll(tournamentID string) int {
	entered := 0
	for _, u := range m.users.List() {
		if !u.AutoRegister || !u.Connected {
			continue
		}
		owned := m.reg.List(func(a *agents.Agent) bool {
			return a.OwnerID == u.ID && a.Status != agents.StatusFighting && a.Status != agents.StatusEliminated
		})
		var best *agents.Agent
		for i := range owned {
			if best == nil || owned[i].Stats.Total() > best.Stats.Total() {
				best = &owned[i]
			}
		}
		if best == nil {
			continue
		}
		if _, err := m.Register(u.ID, tournamentID, best.ID); err == nil {
			entered++
		}
	}
	return entered
}

// Get returns a copy of the tournament.
func (m *Manager) Get(tournamentID string) (Tournament, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tournaments[tournamentID]
	if !ok {
		return Tournament{}, false
	}
	return cloneTournament(t), true
}

// List returns copies of all tournaments.
func (m *Manager) List() []Tournament {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Tournament, 0, len(m.tournaments))
	for _, t := range m.tournaments {
		out = append(out, cloneTournament(t))
	}
	return out
}

// Entries returns copies of a tournament's entries.
func (m *Manager) Entries(tournamentID string) []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, 0, len(m.entries[tournamentID]))
	for _, e := range m.entries[tournamentID] {
		out = append(out, *e)
	}
	return out
}

// EntriesFor returns copies of a user's entries across all tournaments.
func (m *Manager) EntriesFor(userID string) []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Entry
	for _, list := range m.entries {
		for _, e := range list {
			if e.UserID == userID {
				out = append(out, *e)
			}
		}
	}
	return out
}

// History returns the finished-tournament records, oldest first.
func (m *Manager) History() []HistoryRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]HistoryRecord(nil), m.history...)
}

func (m *Manager) emit(category, message string) {
	if m.OnEvent != nil {
		m.OnEvent(category, message)
	}
}

func cloneTournament(t *Tournament) Tournament {
	c := *t
	c.Participants = append([]agents.AgentID(nil), t.Participants...)
	c.Matches = append([]Match(nil), t.Matches...)
	return c
}
