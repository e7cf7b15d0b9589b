package engine

import (
	"log/slog"

	"github.com/dustin/go-humanize"

	"github.com/talgya/loot-arena/internal/agents"
)

// report logs a periodic snapshot of the economy, then takes a save.
func (c *Core) report() {
	var alive, eliminated int
	var total, richest float64
	var richestName string
	for _, a := range c.Registry.List(nil) {
		total += a.Balance
		if a.Status == agents.StatusEliminated {
			eliminated++
			continue
		}
		alive++
		if a.Balance > richest {
			richest = a.Balance
			richestName = a.Name
		}
	}

	round := c.Scheduler.Round()
	slog.Info("arena report",
		"round", round,
		"rounds_since_last", round-c.rounds,
		"agents_alive", alive,
		"agents_eliminated", eliminated,
		"economy", humanize.CommafWithDigits(total, 0),
		"richest", richestName,
		"richest_balance", humanize.CommafWithDigits(richest, 0),
		"pool_staked", humanize.CommafWithDigits(c.Pool.State().TotalStaked, 0),
		"open_markets", len(c.Book.OpenMarkets()),
		"tournaments_run", len(c.Tournaments.History()),
	)
	c.rounds = round

	c.Save()
}
