package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/loot-arena/internal/agents"
	"github.com/talgya/loot-arena/internal/arena"
	"github.com/talgya/loot-arena/internal/wallet"
)

// newTestCore builds a seeded, local-only core without starting its timers.
func newTestCore(t *testing.T) *Core {
	t.Helper()
	cfg := Config{
		Seed:             5,
		HouseAgents:      10,
		SkirmishInterval: time.Second,
		ReportInterval:   time.Minute,
		Arena:            arena.DefaultSchedulerConfig(),
	}
	return New(cfg, nil)
}

func TestNew_GeneratesHouseRoster(t *testing.T) {
	c := newTestCore(t)

	house := c.Registry.Count(func(a *agents.Agent) bool { return !a.PlayerOwned() })
	assert.Equal(t, 10, house)
	for _, a := range c.Registry.List(nil) {
		assert.Equal(t, agents.StatusInArena, a.Status)
		assert.Greater(t, a.Balance, 0.0)
	}
}

func TestMint_DebitsAndBenches(t *testing.T) {
	c := newTestCore(t)
	c.Connect("alice")

	a, err := c.Mint("alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", a.OwnerID)
	assert.Equal(t, agents.StatusIdle, a.Status)
	assert.Zero(t, a.Balance, "fresh agents arrive unfunded")

	u, _ := c.Users.Get("alice")
	assert.Equal(t, wallet.StartingBalance-float64(MintCost), u.Balance)

	// Disconnected identities cannot mint.
	c.Disconnect("alice")
	_, err = c.Mint("alice")
	assert.ErrorIs(t, err, wallet.ErrNotConnected)
}

func TestMint_InsufficientFunds(t *testing.T) {
	c := newTestCore(t)
	c.Connect("alice")
	require.NoError(t, c.Users.Debit("alice", wallet.StartingBalance-MintCost+50)) // Leaves 50

	before := c.Registry.Count(nil)
	_, err := c.Mint("alice")
	assert.ErrorIs(t, err, wallet.ErrInsufficientBalance)
	assert.Equal(t, before, c.Registry.Count(nil), "failed mint creates nothing")
}

func TestAllocateWithdraw_RoundTrip(t *testing.T) {
	c := newTestCore(t)
	c.Connect("alice")
	a, err := c.Mint("alice")
	require.NoError(t, err)

	require.NoError(t, c.Allocate("alice", a.ID, 200))
	u, _ := c.Users.Get("alice")
	assert.Equal(t, 700.0, u.Balance)
	cur, _ := c.Registry.Get(a.ID)
	assert.Equal(t, 200.0, cur.Balance)

	require.NoError(t, c.Withdraw("alice", a.ID, 150))
	u, _ = c.Users.Get("alice")
	assert.Equal(t, 850.0, u.Balance)
	cur, _ = c.Registry.Get(a.ID)
	assert.Equal(t, 50.0, cur.Balance)

	assert.ErrorIs(t, c.Withdraw("alice", a.ID, 100), ErrAgentFunds)
	assert.ErrorIs(t, c.Withdraw("alice", a.ID, 0), wallet.ErrInvalidAmount)
	assert.ErrorIs(t, c.Withdraw("alice", 9999, 10), ErrUnknownAgent)
}

func TestWithdraw_BlockedWhileSeated(t *testing.T) {
	c := newTestCore(t)
	c.Connect("alice")
	a, err := c.Mint("alice")
	require.NoError(t, err)
	require.NoError(t, c.Allocate("alice", a.ID, 300))

	c.Registry.Update(a.ID, func(x *agents.Agent) { x.Status = agents.StatusFighting })
	assert.ErrorIs(t, c.Withdraw("alice", a.ID, 100), ErrBadStatus)

	c.Registry.Update(a.ID, func(x *agents.Agent) { x.Status = agents.StatusIdle })
	assert.NoError(t, c.Withdraw("alice", a.ID, 100))
}

func TestWithdraw_OwnershipEnforced(t *testing.T) {
	c := newTestCore(t)
	c.Connect("alice")
	c.Connect("bob")
	a, err := c.Mint("alice")
	require.NoError(t, err)
	require.NoError(t, c.Allocate("alice", a.ID, 300))

	assert.ErrorIs(t, c.Withdraw("bob", a.ID, 100), ErrNotAgentOwner)
	assert.ErrorIs(t, c.Allocate("bob", a.ID, 100), ErrNotAgentOwner)
}

func TestJoinLeaveArena(t *testing.T) {
	c := newTestCore(t)
	c.Connect("alice")
	a, err := c.Mint("alice")
	require.NoError(t, err)

	// Unfunded agents stay out.
	assert.ErrorIs(t, c.JoinArena("alice", a.ID), ErrAgentBroke)

	require.NoError(t, c.Allocate("alice", a.ID, 200))
	require.NoError(t, c.JoinArena("alice", a.ID))
	cur, _ := c.Registry.Get(a.ID)
	assert.Equal(t, agents.StatusInArena, cur.Status)

	assert.ErrorIs(t, c.JoinArena("alice", a.ID), ErrBadStatus)

	require.NoError(t, c.LeaveArena("alice", a.ID))
	cur, _ = c.Registry.Get(a.ID)
	assert.Equal(t, agents.StatusIdle, cur.Status)

	assert.ErrorIs(t, c.LeaveArena("alice", a.ID), ErrBadStatus)

	// Eliminated agents rejoin once refunded.
	c.Registry.Update(a.ID, func(x *agents.Agent) { x.Status = agents.StatusEliminated })
	require.NoError(t, c.JoinArena("alice", a.ID))
}

func TestArenaStep_OutsideFightingWindow(t *testing.T) {
	c := newTestCore(t)
	_, err := c.ArenaStep()
	assert.ErrorIs(t, err, ErrNotFighting)
}
