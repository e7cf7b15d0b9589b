// Auto-battle simulator: background skirmishes that settle real balances
// whether or not the visible arena is open.
package arena

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/talgya/loot-arena/internal/agents"
	"github.com/talgya/loot-arena/internal/combat"
	"github.com/talgya/loot-arena/internal/entropy"
)

// Skirmish sizing.
const (
	SkirmishSample   = 10 // Agents drawn into one skirmish
	SkirmishMaxSteps = 20 // Resolution steps per skirmish
)

// DefaultSkirmishInterval is the production tick spacing between skirmishes.
const DefaultSkirmishInterval = 5 * time.Second

// AutoBattler periodically resolves multi-round skirmishes among idle
// in-arena agents using the skirmish combat tuning.
type AutoBattler struct {
	reg      *agents.Registry
	rng      *entropy.Source
	resolver *combat.Resolver

	// OnLog receives every battle-log entry the skirmish emits. Optional.
	OnLog func(combat.LogEntry)
}

// NewAutoBattler creates the background skirmish simulator.
func NewAutoBattler(reg *agents.Registry, rng *entropy.Source) *AutoBattler {
	return &AutoBattler{
		reg:      reg,
		rng:      rng,
		resolver: combat.NewResolver(reg, rng, combat.SkirmishConfig()),
	}
}

// Tick runs one skirmish: sample up to SkirmishSample in-arena agents, resolve
// up to SkirmishMaxSteps combat exchanges among them, then settle every
// sampled agent's counters, history, and status from its balance delta.
func (b *AutoBattler) Tick(now time.Time) {
	eligible := b.reg.IDs(func(a *agents.Agent) bool {
		return a.Status == agents.StatusInArena
	})
	if len(eligible) < 2 {
		return
	}

	b.rng.Shuffle(len(eligible), func(i, j int) { eligible[i], eligible[j] = eligible[j], eligible[i] })
	sample := eligible
	if len(sample) > SkirmishSample {
		sample = sample[:SkirmishSample]
	}

	before := make(map[agents.AgentID]float64, len(sample))
	for _, id := range sample {
		if a, ok := b.reg.Get(id); ok {
			before[id] = a.Balance
		}
	}

	for step := 0; step < SkirmishMaxSteps; step++ {
		entry, ok := b.resolver.Step(sample, now)
		if !ok {
			break // One agent left holding everything
		}
		b.emit(entry)
	}

	b.settle(sample, before, now)
}

// settle applies per-skirmish bookkeeping to every originally sampled agent
// and announces the richest survivor.
func (b *AutoBattler) settle(sample []agents.AgentID, before map[agents.AgentID]float64, now time.Time) {
	var richest agents.Agent
	for _, id := range sample {
		delta := 0.0
		b.reg.Update(id, func(a *agents.Agent) {
			delta = a.Balance - before[a.ID]
			if delta >= 0 {
				a.RecordWin(delta)
			} else {
				a.RecordLoss(-delta)
			}
			a.RecordBattle(agents.BattleRecord{
				Time:     now,
				Opponent: "skirmish",
				Won:      delta >= 0,
				Amount:   delta,
			})
			if a.Balance > 0 {
				a.Status = agents.StatusInArena
			} else {
				a.Status = agents.StatusEliminated
			}
		})
		if a, ok := b.reg.Get(id); ok && a.Balance > 0 && a.Balance > richest.Balance {
			richest = a
		}
	}

	if richest.ID != 0 {
		b.emit(combat.LogEntry{
			Time:      now,
			Kind:      combat.KindSkirmish,
			Attacker:  richest.ID,
			Message:   fmt.Sprintf("%s takes the skirmish with %.0f on hand", richest.Name, richest.Balance),
			Highlight: true,
		})
		slog.Debug("skirmish settled", "winner", richest.Name, "balance", richest.Balance, "fighters", len(sample))
	}
}

func (b *AutoBattler) emit(entry combat.LogEntry) {
	if b.OnLog != nil {
		b.OnLog(entry)
	}
}
