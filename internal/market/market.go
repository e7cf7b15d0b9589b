// Package market implements pari-mutuel prediction markets over tournament
// outcomes: odds derive from the ratio of total pool to the amount backed on
// each candidate, minus a flat house take.
package market

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/loot-arena/internal/agents"
	"github.com/talgya/loot-arena/internal/wallet"
)

// BetType identifies which tournament outcome a market covers.
type BetType string

const (
	BetSemifinal BetType = "semifinal" // Who reaches the final from the round of 8
	BetFinal     BetType = "final"     // Who takes the championship
)

// Market lifecycle states.
type Status string

const (
	StatusOpen    Status = "open"
	StatusClosed  Status = "closed"
	StatusSettled Status = "settled"
)

// Bet statuses.
const (
	BetPending = "pending"
	BetWon     = "won"
	BetLost    = "lost"
)

// Market constants.
const (
	MinBet    = 10.0
	HouseTake = 0.05
)

// defaultOdds seeds candidates nobody has backed yet.
func defaultOdds(t BetType) float64 {
	if t == BetSemifinal {
		return 3.0
	}
	return 2.0
}

// Typed validation failures.
var (
	ErrUnknownMarket = errors.New("unknown market")
	ErrMarketClosed  = errors.New("market is not open")
	ErrPastDeadline  = errors.New("betting deadline has passed")
	ErrBelowMinimum  = errors.New("bet below minimum stake")
	ErrNotCandidate  = errors.New("agent is not a market candidate")
)

// Market is one open book over a tournament/bet-type pair.
type Market struct {
	ID           string                     `json:"id"`
	TournamentID string                     `json:"tournament_id"`
	Type         BetType                    `json:"type"`
	Status       Status                     `json:"status"`
	Deadline     time.Time                  `json:"deadline"`
	Pool         float64                    `json:"pool"`
	Candidates   []agents.AgentID           `json:"candidates"`
	Odds         map[agents.AgentID]float64 `json:"odds"`
	Winner       agents.AgentID             `json:"winner,omitempty"`

	backed map[agents.AgentID]float64
}

// Bet is one user position. Odds are locked at placement time; later bets
// move the market but never this bet's payout.
type Bet struct {
	ID         string         `json:"id"`
	MarketID   string         `json:"market_id"`
	UserID     string         `json:"user_id"`
	Agent      agents.AgentID `json:"agent"`
	Stake      float64        `json:"stake"`
	LockedOdds float64        `json:"locked_odds"`
	Status     string         `json:"status"`
	PlacedAt   time.Time      `json:"placed_at"`
	Payout     float64        `json:"payout,omitempty"`
}

// Book holds every market and bet, and moves money through the user store.
type Book struct {
	mu      sync.Mutex
	users   *wallet.Store
	markets map[string]*Market
	bets    map[string]*Bet

	nowFn func() time.Time
}

// NewBook creates an empty betting book.
func NewBook(users *wallet.Store) *Book {
	return &Book{
		users:   users,
		markets: make(map[string]*Market),
		bets:    make(map[string]*Bet),
		nowFn:   time.Now,
	}
}

// Open creates a market over the given candidates with an empty pool and
// default odds, accepting bets until the deadline.
func (b *Book) Open(tournamentID string, t BetType, candidates []agents.AgentID, deadline time.Time) Market {
	m := &Market{
		ID:           uuid.NewString(),
		TournamentID: tournamentID,
		Type:         t,
		Status:       StatusOpen,
		Deadline:     deadline,
		Candidates:   append([]agents.AgentID(nil), candidates...),
		Odds:         make(map[agents.AgentID]float64, len(candidates)),
		backed:       make(map[agents.AgentID]float64, len(candidates)),
	}
	for _, id := range candidates {
		m.Odds[id] = defaultOdds(t)
	}

	b.mu.Lock()
	b.markets[m.ID] = m
	b.mu.Unlock()
	return cloneMarket(m)
}

// PlaceBet debits the stake, locks the odds in effect at placement, and
// recomputes the market's odds pari-mutuel style.
func (b *Book) PlaceBet(userID, marketID string, agent agents.AgentID, stake float64) (Bet, error) {
	if _, err := b.users.RequireConnected(userID); err != nil {
		return Bet{}, err
	}
	if stake < MinBet {
		return Bet{}, ErrBelowMinimum
	}

	// Guards, debit and the pool update form one critical section so the
	// market cannot close or settle between the debit and the append.
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.markets[marketID]
	if !ok {
		return Bet{}, ErrUnknownMarket
	}
	if m.Status != StatusOpen {
		return Bet{}, ErrMarketClosed
	}
	now := b.nowFn()
	if now.After(m.Deadline) {
		return Bet{}, ErrPastDeadline
	}
	if _, isCandidate := m.Odds[agent]; !isCandidate {
		return Bet{}, ErrNotCandidate
	}
	locked := m.Odds[agent]

	if err := b.users.Debit(userID, stake); err != nil {
		return Bet{}, err
	}

	bet := &Bet{
		ID:         uuid.NewString(),
		MarketID:   marketID,
		UserID:     userID,
		Agent:      agent,
		Stake:      stake,
		LockedOdds: locked,
		Status:     BetPending,
		PlacedAt:   now,
	}
	b.bets[bet.ID] = bet
	m.Pool += stake
	m.backed[agent] += stake
	recomputeOdds(m)
	return *bet, nil
}

// recomputeOdds applies the pari-mutuel formula: backed candidates get
// (pool / backed) x (1 - take); unbacked candidates keep the type default.
func recomputeOdds(m *Market) {
	for _, id := range m.Candidates {
		backed := m.backed[id]
		if backed > 0 {
			m.Odds[id] = m.Pool / backed * (1 - HouseTake)
		} else {
			m.Odds[id] = defaultOdds(m.Type)
		}
	}
}

// Close stops accepting bets. Settlement follows once the outcome is known.
func (b *Book) Close(marketID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.markets[marketID]
	if !ok {
		return ErrUnknownMarket
	}
	if m.Status == StatusOpen {
		m.Status = StatusClosed
	}
	return nil
}

// Settle marks every bet won or lost against the declared winner and pays
// stake x locked odds to winners. Returns the total paid out.
func (b *Book) Settle(marketID string, winner agents.AgentID) (float64, error) {
	b.mu.Lock()
	m, ok := b.markets[marketID]
	if !ok {
		b.mu.Unlock()
		return 0, ErrUnknownMarket
	}
	m.Status = StatusSettled
	m.Winner = winner

	type payout struct {
		userID string
		amount float64
	}
	var payouts []payout
	for _, bet := range b.bets {
		if bet.MarketID != marketID || bet.Status != BetPending {
			continue
		}
		if bet.Agent == winner {
			bet.Status = BetWon
			bet.Payout = bet.Stake * bet.LockedOdds
			payouts = append(payouts, payout{bet.UserID, bet.Payout})
		} else {
			bet.Status = BetLost
		}
	}
	b.mu.Unlock()

	total := 0.0
	for _, p := range payouts {
		if err := b.users.Credit(p.userID, p.amount); err == nil {
			total += p.amount
		}
	}
	return total, nil
}

// SettleFor settles every open or closed market attached to a tournament.
func (b *Book) SettleFor(tournamentID string, winners map[BetType]agents.AgentID) float64 {
	b.mu.Lock()
	var ids []string
	types := make(map[string]BetType)
	for id, m := range b.markets {
		if m.TournamentID == tournamentID && m.Status != StatusSettled {
			ids = append(ids, id)
			types[id] = m.Type
		}
	}
	b.mu.Unlock()

	total := 0.0
	for _, id := range ids {
		winner, ok := winners[types[id]]
		if !ok {
			continue
		}
		paid, err := b.Settle(id, winner)
		if err == nil {
			total += paid
		}
	}
	return total
}

// Get returns a copy of the market.
func (b *Book) Get(marketID string) (Market, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.markets[marketID]
	if !ok {
		return Market{}, false
	}
	return cloneMarket(m), true
}

// List returns copies of all markets.
func (b *Book) List() []Market {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Market, 0, len(b.markets))
	for _, m := range b.markets {
		out = append(out, cloneMarket(m))
	}
	return out
}

// OpenMarkets returns copies of markets still accepting bets.
func (b *Book) OpenMarkets() []Market {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Market
	for _, m := range b.markets {
		if m.Status == StatusOpen {
			out = append(out, cloneMarket(m))
		}
	}
	return out
}

// BetsFor returns copies of the user's bets.
func (b *Book) BetsFor(userID string) []Bet {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Bet
	for _, bet := range b.bets {
		if bet.UserID == userID {
			out = append(out, *bet)
		}
	}
	return out
}

func cloneMarket(m *Market) Market {
	c := *m
	c.Candidates = append([]agents.AgentID(nil), m.Candidates...)
	c.Odds = make(map[agents.AgentID]float64, len(m.Odds))
	for k, v := range m.Odds {
		c.Odds[k] = v
	}
	c.backed = nil
	return c
}
