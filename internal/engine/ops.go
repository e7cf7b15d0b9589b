package engine

import (
	"fmt"
	"log/slog"

	"github.com/talgya/loot-arena/internal/agents"
	"github.com/talgya/loot-arena/internal/market"
	"github.com/talgya/loot-arena/internal/pool"
	"github.com/talgya/loot-arena/internal/tournament"
	"github.com/talgya/loot-arena/internal/wallet"
)

// Passthrough operations. The core owns the journal, so money-moving calls
// route through here rather than hitting the components directly.

// RegisterTournament enters one of the caller's agents into a tournament.
func (c *Core) RegisterTournament(userID, tournamentID string, agentID agents.AgentID) (tournament.Entry, error) {
	entry, err := c.Tournaments.Register(userID, tournamentID, agentID)
	if err != nil {
		return tournament.Entry{}, err
	}
	c.journal(userID, "entry_fee", -entry.FeePaid, fmt.Sprintf("tournament:%s", tournamentID))
	return entry, nil
}

// StakePool locks funds in the liquidity pool.
func (c *Core) StakePool(userID string, amount float64) (pool.Stake, error) {
	if _, err := c.Users.RequireConnected(userID); err != nil {
		return pool.Stake{}, err
	}
	st, err := c.Pool.Stake(userID, amount)
	if err != nil {
		return pool.Stake{}, err
	}
	c.journal(userID, "stake", -amount, fmt.Sprintf("stake:%s", st.ID))
	return st, nil
}

// UnstakePool withdraws a stake, with the early-exit penalty when the lock
// has not elapsed.
func (c *Core) UnstakePool(userID, stakeID string) (float64, error) {
	returned, err := c.Pool.Unstake(userID, stakeID)
	if err != nil {
		return 0, err
	}
	c.journal(userID, "unstake", returned, fmt.Sprintf("stake:%s", stakeID))
	return returned, nil
}

// ClaimRewards pays out all accrued staking rewards.
func (c *Core) ClaimRewards(userID string) (float64, error) {
	claimed, err := c.Pool.Claim(userID)
	if err != nil {
		return 0, err
	}
	if claimed > 0 {
		c.journal(userID, "claim", claimed, "pool")
	}
	return claimed, nil
}

// PlaceBet backs a candidate in an open market at the current odds.
func (c *Core) PlaceBet(userID, marketID string, agentID agents.AgentID, stake float64) (market.Bet, error) {
	if _, err := c.Users.RequireConnected(userID); err != nil {
		return market.Bet{}, err
	}
	bet, err := c.Book.PlaceBet(userID, marketID, agentID, stake)
	if err != nil {
		return market.Bet{}, err
	}
	c.journal(userID, "bet", -stake, fmt.Sprintf("market:%s", marketID))
	return bet, nil
}

// SetAutoBet toggles automatic betting with a per-bet cap.
func (c *Core) SetAutoBet(userID string, enabled bool, maxStake float64) error {
	return c.Users.SetAutoBet(userID, enabled, maxStake)
}

// SetAutoRegister toggles automatic tournament entry.
func (c *Core) SetAutoRegister(userID string, enabled bool) error {
	return c.Users.SetAutoRegister(userID, enabled)
}

// runAutoBets places one bet per open market for every opted-in user who has
// not yet bet there, backing the strongest candidate by raw stats.
func (c *Core) runAutoBets() {
	open := c.Book.OpenMarkets()
	if len(open) == 0 {
		return
	}
	for _, u := range c.Users.List() {
		if !u.AutoBet || !u.Connected {
			continue
		}
		placed := make(map[string]bool)
		for _, b := range c.Book.BetsFor(u.ID) {
			placed[b.MarketID] = true
		}
		for _, mk := range open {
			if placed[mk.ID] {
				continue
			}
			pick, ok := c.strongestCandidate(mk.Candidates)
			if !ok {
				continue
			}
			stake := u.AutoBetMax
			if stake > u.Balance {
				stake = u.Balance
			}
			if stake < market.MinBet {
				continue
			}
			if _, err := c.PlaceBet(u.ID, mk.ID, pick, stake); err != nil {
				slog.Debug("auto-bet skipped", "user", u.ID, "market", mk.ID, "error", err)
				continue
			}
			u.Balance -= stake
			slog.Info("auto-bet placed", "user", u.ID, "market", mk.ID, "agent", pick, "stake", stake)
		}
	}
}

// strongestCandidate picks the candidate with the highest stat total.
func (c *Core) strongestCandidate(candidates []agents.AgentID) (agents.AgentID, bool) {
	var best agents.AgentID
	bestTotal := -1.0
	for _, id := range candidates {
		a, ok := c.Registry.Get(id)
		if !ok {
			continue
		}
		if t := a.Stats.Total(); t > bestTotal {
			bestTotal = t
			best = id
		}
	}
	return best, bestTotal >= 0
}

// ── Read accessors ───────────────────────────────────────────────────

// Agent returns one agent by ID.
func (c *Core) Agent(id agents.AgentID) (agents.Agent, bool) {
	return c.Registry.Get(id)
}

// Agents lists every agent, or only one owner's when ownerID is non-empty.
func (c *Core) Agents(ownerID string) []agents.Agent {
	if ownerID == "" {
		return c.Registry.List(nil)
	}
	return c.Registry.List(func(a *agents.Agent) bool { return a.OwnerID == ownerID })
}

// User returns one user's wallet view.
func (c *Core) User(id string) (wallet.User, bool) {
	return c.Users.Get(id)
}

// RecentEvents returns the newest n events from the feed.
func (c *Core) RecentEvents(n int) []Event {
	return c.Events.Recent(n)
}
