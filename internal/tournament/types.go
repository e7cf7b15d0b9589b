// Package tournament implements multi-round single-elimination tournaments:
// registration with per-cadence eligibility, bracket generation, round
// advancement, payout, and the self-scheduling challenge cadence.
package tournament

import (
	"time"

	"github.com/talgya/loot-arena/internal/agents"
)

// Type is the tournament cadence. Cadence affects eligibility only; every
// type shares one bracket algorithm.
type Type string

const (
	TypeChallenge Type = "challenge" // Frequent, open to everyone
	TypeDaily     Type = "daily"     // Requires a challenge title within 24h
	TypeWeekly    Type = "weekly"    // Requires a daily title won on a Sunday
)

// Status is the tournament lifecycle state.
type Status string

const (
	StatusUpcoming     Status = "upcoming"
	StatusRegistration Status = "registration"
	StatusOngoing      Status = "ongoing"
	StatusFinished     Status = "finished"
)

// Round is one elimination tier, in strict order.
type Round uint8

const (
	RoundOf128 Round = iota
	RoundOf32
	RoundOf8
	RoundSemifinal
	RoundFinal
)

// RoundName returns the display name for a round.
func RoundName(r Round) string {
	switch r {
	case RoundOf128:
		return "round-of-128"
	case RoundOf32:
		return "round-of-32"
	case RoundOf8:
		return "round-of-8"
	case RoundSemifinal:
		return "semifinal"
	case RoundFinal:
		return "final"
	default:
		return "unknown"
	}
}

// MaxEntrants is the bracket capacity; remaining seats are filled with house
// agents at start so every round is fully paired.
const MaxEntrants = 128

// Settings holds the per-cadence tuning. Mechanics are shared; only fees,
// seeds, and timings differ.
type Settings struct {
	EntryFee           float64
	SeedPrize          float64
	RegistrationWindow time.Duration
	RoundInterval      time.Duration
	MarketWindow       time.Duration // Betting deadline offset when a market opens
}

// SettingsFor returns the tuning for a cadence.
func SettingsFor(t Type) Settings {
	switch t {
	case TypeDaily:
		return Settings{
			EntryFee:           200,
			SeedPrize:          2500,
			RegistrationWindow: time.Hour,
			RoundInterval:      time.Minute,
			MarketWindow:       10 * time.Minute,
		}
	case TypeWeekly:
		return Settings{
			EntryFee:           1000,
			SeedPrize:          10000,
			RegistrationWindow: 6 * time.Hour,
			RoundInterval:      5 * time.Minute,
			MarketWindow:       30 * time.Minute,
		}
	default: // challenge
		return Settings{
			EntryFee:           50,
			SeedPrize:          500,
			RegistrationWindow: 30 * time.Second,
			RoundInterval:      15 * time.Second,
			MarketWindow:       30 * time.Second,
		}
	}
}

// Match pairs two agents within a round. A zero Winner means unresolved.
type Match struct {
	ID         string         `json:"id"`
	Round      Round          `json:"round"`
	A          agents.AgentID `json:"a"`
	B          agents.AgentID `json:"b"`
	Winner     agents.AgentID `json:"winner,omitempty"`
	ResolvedAt *time.Time     `json:"resolved_at,omitempty"`
}

// Resolved reports whether the match has a declared winner.
func (m Match) Resolved() bool {
	return m.Winner != 0
}

// Entry links a user's agent to a tournament. Rank and prize are assigned
// only at tournament end.
type Entry struct {
	ID           string         `json:"id"`
	TournamentID string         `json:"tournament_id"`
	UserID       string         `json:"user_id"`
	AgentID      agents.AgentID `json:"agent_id"`
	FeePaid      float64        `json:"fee_paid"`
	Rank         int            `json:"rank,omitempty"`
	Prize        float64        `json:"prize,omitempty"`
}

// Tournament is one bracket from registration through champion.
type Tournament struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Type          Type             `json:"type"`
	Status        Status           `json:"status"`
	PrizePool     float64          `json:"prize_pool"`
	EntryFee      float64          `json:"entry_fee"`
	Participants  []agents.AgentID `json:"participants"`
	Round         Round            `json:"round"`
	Matches       []Match          `json:"matches"`
	Champion      agents.AgentID   `json:"champion,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	RegisterUntil time.Time        `json:"register_until"`
	FinishedAt    *time.Time       `json:"finished_at,omitempty"`
}

// CurrentMatches returns the matches belonging to the current round.
func (t *Tournament) CurrentMatches() []Match {
	var out []Match
	for _, m := range t.Matches {
		if m.Round == t.Round {
			out = append(out, m)
		}
	}
	return out
}

// HistoryRecord summarizes a finished tournament.
type HistoryRecord struct {
	TournamentID string         `json:"tournament_id"`
	Name         string         `json:"name"`
	Type         Type           `json:"type"`
	Champion     agents.AgentID `json:"champion"`
	ChampionName string         `json:"champion_name"`
	Prize        float64        `json:"prize"`
	FinishedAt   time.Time      `json:"finished_at"`
}
