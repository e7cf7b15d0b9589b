// Package agents provides the agent data model, the shared registry, and the
// spawner that mints player agents and bulk-generates house fighters.
package agents

import (
	"time"
)

// AgentID is a unique identifier for an agent.
type AgentID uint64

// Status is an agent's lifecycle state in the arena economy.
type Status uint8

const (
	StatusIdle       Status = iota // Owned but benched
	StatusInArena                  // Eligible for seating and skirmishes
	StatusFighting                 // Currently seated in a visible round
	StatusEliminated               // Balance hit zero
)

// StatusName returns the wire/display name for a status.
func StatusName(s Status) string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusInArena:
		return "in_arena"
	case StatusFighting:
		return "fighting"
	case StatusEliminated:
		return "eliminated"
	default:
		return "unknown"
	}
}

// Rarity tiers derived from an agent's summed stat total at creation.
type Rarity uint8

const (
	RarityCommon Rarity = iota
	RarityUncommon
	RarityRare
	RarityEpic
	RarityLegendary
)

// RarityName returns the display name for a rarity tier.
func RarityName(r Rarity) string {
	switch r {
	case RarityCommon:
		return "common"
	case RarityUncommon:
		return "uncommon"
	case RarityRare:
		return "rare"
	case RarityEpic:
		return "epic"
	case RarityLegendary:
		return "legendary"
	default:
		return "unknown"
	}
}

// RarityFor maps a stat total to its rarity tier.
func RarityFor(total float64) Rarity {
	switch {
	case total < 200:
		return RarityCommon
	case total < 260:
		return RarityUncommon
	case total < 320:
		return RarityRare
	case total < 380:
		return RarityEpic
	default:
		return RarityLegendary
	}
}

// Stats is the fixed combat stat block generated once at creation.
type Stats struct {
	Attack     float64 `json:"attack"`
	Defense    float64 `json:"defense"`
	CritChance float64 `json:"crit_chance"`
	HitChance  float64 `json:"hit_chance"`
	Agility    float64 `json:"agility"`
}

// Total sums the stat block. Determines rarity and tournament seeding strength.
func (s Stats) Total() float64 {
	return s.Attack + s.Defense + s.CritChance + s.HitChance + s.Agility
}

// MaxHistory bounds an agent's recent battle record list.
const MaxHistory = 20

// BattleRecord is one entry in an agent's bounded recent-battle list.
type BattleRecord struct {
	Time     time.Time `json:"time"`
	Opponent string    `json:"opponent"`
	Won      bool      `json:"won"`
	Amount   float64   `json:"amount"` // Balance delta, signed
}

// Placement records a tournament finish.
type Placement struct {
	TournamentID string    `json:"tournament_id"`
	Rank         int       `json:"rank"`
	Prize        float64   `json:"prize"`
	When         time.Time `json:"when"`
}

// Career tracks an agent's cumulative statistics.
type Career struct {
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	Kills       int     `json:"kills"`
	Deaths      int     `json:"deaths"`
	Battles     int     `json:"battles"`
	WinRate     float64 `json:"win_rate"`
	TotalEarned float64 `json:"total_earned"`
	TotalLost   float64 `json:"total_lost"`
	DamageDealt float64 `json:"damage_dealt"`
	DamageTaken float64 `json:"damage_taken"`
	Streak      int     `json:"streak"` // Positive = win streak, negative = loss streak
	BestStreak  int     `json:"best_streak"`

	Placements []Placement `json:"placements,omitempty"`
}

// NetProfit is cumulative earnings minus cumulative losses.
func (c Career) NetProfit() float64 {
	return c.TotalEarned - c.TotalLost
}

// AvgDamageDealt is damage dealt per battle fought.
func (c Career) AvgDamageDealt() float64 {
	if c.Battles == 0 {
		return 0
	}
	return c.DamageDealt / float64(c.Battles)
}

// AvgDamageTaken is damage taken per battle fought.
func (c Career) AvgDamageTaken() float64 {
	if c.Battles == 0 {
		return 0
	}
	return c.DamageTaken / float64(c.Battles)
}

// Agent is the core combat/economic actor. Balance is the real resource:
// combat transfers it and elimination means it reached zero. Hit points are
// cosmetic per visible round.
type Agent struct {
	ID      AgentID `json:"id"`
	Name    string  `json:"name"`
	OwnerID string  `json:"owner_id,omitempty"` // Empty = house agent

	Stats  Stats   `json:"stats"`
	Rarity Rarity  `json:"rarity"`
	HP     float64 `json:"hp"`
	MaxHP  float64 `json:"max_hp"`

	Balance float64 `json:"balance"`
	Status  Status  `json:"status"`
	Career  Career  `json:"career"`

	History []BattleRecord `json:"history,omitempty"`

	// Incoming damage is halved until this instant.
	DefendingUntil time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"`
}

// PlayerOwned reports whether the agent belongs to a connected user.
func (a *Agent) PlayerOwned() bool {
	return a.OwnerID != ""
}

// Defending reports whether the agent is inside its defensive stance window.
func (a *Agent) Defending(now time.Time) bool {
	return now.Before(a.DefendingUntil)
}

// RecordBattle appends to the bounded history list, evicting the oldest entry.
func (a *Agent) RecordBattle(rec BattleRecord) {
	a.History = append(a.History, rec)
	if len(a.History) > MaxHistory {
		a.History = a.History[len(a.History)-MaxHistory:]
	}
}

// RecordWin updates cumulative counters for a won engagement.
func (a *Agent) RecordWin(looted float64) {
	a.Career.Wins++
	a.Career.Battles++
	a.Career.TotalEarned += looted
	if a.Career.Streak < 0 {
		a.Career.Streak = 0
	}
	a.Career.Streak++
	if a.Career.Streak > a.Career.BestStreak {
		a.Career.BestStreak = a.Career.Streak
	}
	a.refreshWinRate()
}

// RecordLoss updates cumulative counters for a lost engagement.
func (a *Agent) RecordLoss(lost float64) {
	a.Career.Losses++
	a.Career.Battles++
	a.Career.TotalLost += lost
	if a.Career.Streak > 0 {
		a.Career.Streak = 0
	}
	a.Career.Streak--
	a.refreshWinRate()
}

func (a *Agent) refreshWinRate() {
	decided := a.Career.Wins + a.Career.Losses
	if decided > 0 {
		a.Career.WinRate = float64(a.Career.Wins) / float64(decided)
	}
}

// Clone returns a deep copy safe to hand outside the registry lock.
func (a *Agent) Clone() Agent {
	c := *a
	if a.History != nil {
		c.History = append([]BattleRecord(nil), a.History...)
	}
	if a.Career.Placements != nil {
		c.Career.Placements = append([]Placement(nil), a.Career.Placements...)
	}
	return c
}
