// Package combat implements the loot-based combat law shared by the visible
// arena and the headless skirmish simulator. A resolution step moves balance
// from defender to attacker, never creating or destroying value.
package combat

import (
	"time"

	"github.com/talgya/loot-arena/internal/agents"
	"github.com/talgya/loot-arena/internal/entropy"
)

// Log entry kinds.
const (
	KindAttack   = "attack"
	KindKill     = "kill"
	KindDefend   = "defend"
	KindSkirmish = "skirmish" // Highlighted skirmish-winner entry
)

// LogEntry is one battle-log line emitted by a resolution step.
type LogEntry struct {
	Time      time.Time      `json:"time"`
	Kind      string         `json:"kind"`
	Attacker  agents.AgentID `json:"attacker,omitempty"`
	Defender  agents.AgentID `json:"defender,omitempty"`
	Message   string         `json:"message"`
	Damage    float64        `json:"damage,omitempty"`
	Looted    float64        `json:"looted,omitempty"`
	Highlight bool           `json:"highlight,omitempty"`
}

// Config holds the combat probabilities and multipliers.
type Config struct {
	DefendChance   float64       // Probability a would-be attacker raises guard instead
	DefendDuration time.Duration // How long the halved-damage stance lasts
	CritChance     float64       // Probability of a critical hit
	CritMultiplier float64       // Flat crit multiplier
	Multiplier     float64       // Overall damage scale
}

// ArenaConfig is the visible-round combat tuning.
func ArenaConfig() Config {
	return Config{
		DefendChance:   0.15,
		DefendDuration: 3 * time.Second,
		CritChance:     0.20,
		CritMultiplier: 1.5,
		Multiplier:     1.0,
	}
}

// SkirmishConfig is the headless auto-battle tuning. The larger multiplier
// makes background skirmishes settle real balances quickly while the visible
// arena stays readable at 1x.
func SkirmishConfig() Config {
	cfg := ArenaConfig()
	cfg.Multiplier = 3.0
	return cfg
}

// Resolver resolves combat steps against the shared registry.
type Resolver struct {
	reg *agents.Registry
	rng *entropy.Source
	cfg Config
}

// NewResolver creates a resolver with the given tuning.
func NewResolver(reg *agents.Registry, rng *entropy.Source, cfg Config) *Resolver {
	return &Resolver{reg: reg, rng: rng, cfg: cfg}
}

// Step resolves one combat exchange among the pooled agents: pick an attacker
// and a distinct defender at random from those with positive balance, then
// either raise the attacker's guard or land a hit and loot the damage. Returns
// false when fewer than two agents remain lootable.
func (r *Resolver) Step(pool []agents.AgentID, now time.Time) (LogEntry, bool) {
	live := r.lootable(pool)
	if len(live) < 2 {
		return LogEntry{}, false
	}

	ai := r.rng.Intn(len(live))
	di := r.rng.Intn(len(live) - 1)
	if di >= ai {
		di++
	}
	attackerID, defenderID := live[ai], live[di]

	if r.rng.Chance(r.cfg.DefendChance) {
		var name string
		r.reg.Update(attackerID, func(a *agents.Agent) {
			a.DefendingUntil = now.Add(r.cfg.DefendDuration)
			name = a.Name
		})
		return LogEntry{
			Time:     now,
			Kind:     KindDefend,
			Attacker: attackerID,
			Message:  name + " raises guard",
		}, true
	}

	entry := LogEntry{Time: now, Kind: KindAttack, Attacker: attackerID, Defender: defenderID}
	r.reg.UpdatePair(attackerID, defenderID, func(att, def *agents.Agent) {
		damage := att.Stats.Attack - def.Stats.Defense + r.rng.Uniform(0, 10)
		if r.rng.Chance(r.cfg.CritChance) {
			damage *= r.cfg.CritMultiplier
		}
		damage *= r.cfg.Multiplier
		if damage < 1 {
			damage = 1
		}
		if def.Defending(now) {
			damage /= 2
		}

		// Loot transfer: damage can never drive a balance negative.
		looted := damage
		if looted > def.Balance {
			looted = def.Balance
		}
		def.Balance -= looted
		att.Balance += looted

		// Track nominal damage; hp is the per-round cosmetic damage track.
		att.Career.DamageDealt += damage
		def.Career.DamageTaken += damage
		def.HP -= damage
		if def.HP < 0 {
			def.HP = 0
		}

		entry.Damage = damage
		entry.Looted = looted

		if def.Balance <= 0 {
			def.Balance = 0
			def.Status = agents.StatusEliminated
			att.Career.Kills++
			def.Career.Deaths++
			entry.Kind = KindKill
			entry.Message = att.Name + " eliminates " + def.Name
		} else {
			entry.Message = att.Name + " hits " + def.Name
		}
	})
	return entry, true
}

// lootable filters the pool down to agents that still hold balance.
func (r *Resolver) lootable(pool []agents.AgentID) []agents.AgentID {
	out := make([]agents.AgentID, 0, len(pool))
	for _, id := range pool {
		if a, ok := r.reg.Get(id); ok && a.Balance > 0 {
			out = append(out, id)
		}
	}
	return out
}
