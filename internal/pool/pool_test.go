package pool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/loot-arena/internal/wallet"
)

// testPool pins the pool clock to a mutable instant.
func testPool(t *testing.T, funds float64) (*Pool, *wallet.Store, *time.Time) {
	t.Helper()
	users := wallet.NewStore()
	users.Connect("alice")
	if funds > wallet.StartingBalance {
		require.NoError(t, users.Credit("alice", funds-wallet.StartingBalance))
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := New(users)
	p.nowFn = func() time.Time { return now }
	return p, users, &now
}

func TestStake_Validation(t *testing.T) {
	p, users, _ := testPool(t, 1000)

	_, err := p.Stake("ghost", 500)
	assert.ErrorIs(t, err, wallet.ErrUnknownUser)

	_, err = p.Stake("alice", MinStake-1)
	assert.ErrorIs(t, err, ErrBelowMinimum)

	_, err = p.Stake("alice", 5000)
	assert.ErrorIs(t, err, wallet.ErrInsufficientBalance)

	st, err := p.Stake("alice", 600)
	require.NoError(t, err)
	assert.Equal(t, 600.0, st.Amount)
	assert.Equal(t, st.CreatedAt.Add(LockDuration), st.UnlockAt)

	u, _ := users.Get("alice")
	assert.Equal(t, 400.0, u.Balance)
	assert.Equal(t, 600.0, p.State().TotalStaked)
}

func TestPending_AccruesOverTime(t *testing.T) {
	p, _, now := testPool(t, 1000)

	_, err := p.Stake("alice", 1000)
	require.NoError(t, err)
	assert.Zero(t, p.Pending("alice"))

	*now = now.Add(30 * 24 * time.Hour)

	rate := p.DynamicAPR() // 0.60 - 5e-5*1000 = 0.55
	want := 1000 * rate * (30 * 24 * time.Hour).Seconds() / secondsPerYear
	assert.InDelta(t, want, p.Pending("alice"), 1e-9)
}

func TestClaim_PaysAndResets(t *testing.T) {
	p, users, now := testPool(t, 1000)

	_, err := p.Stake("alice", 1000)
	require.NoError(t, err)
	*now = now.Add(10 * 24 * time.Hour)

	paid, err := p.Claim("alice")
	require.NoError(t, err)
	assert.Greater(t, paid, 0.0)

	u, _ := users.Get("alice")
	assert.InDelta(t, paid, u.Balance, 1e-9)

	// Claim the same instant again: nothing further accrued, and no error.
	paid, err = p.Claim("alice")
	require.NoError(t, err)
	assert.Zero(t, paid)
	assert.Zero(t, p.Pending("alice"))
}

func TestUnstake_EarlyExitPenalty(t *testing.T) {
	p, users, now := testPool(t, 1000)

	st, err := p.Stake("alice", 1000)
	require.NoError(t, err)
	*now = now.Add(24 * time.Hour) // Well inside the lock window

	rewards := p.Pending("alice")
	payout, err := p.Unstake("alice", st.ID)
	require.NoError(t, err)

	// Penalty hits the principal only; the day's rewards come back whole.
	assert.InDelta(t, 1000*(1-EarlyExitPenalty)+rewards, payout, 1e-9)

	u, _ := users.Get("alice")
	assert.InDelta(t, payout, u.Balance, 1e-9)
	assert.Zero(t, p.State().StakeCount)
}

func TestUnstake_AfterLockKeepsPrincipal(t *testing.T) {
	p, _, now := testPool(t, 1000)

	st, err := p.Stake("alice", 1000)
	require.NoError(t, err)
	*now = now.Add(LockDuration)

	rewards := p.Pending("alice")
	payout, err := p.Unstake("alice", st.ID)
	require.NoError(t, err)
	assert.InDelta(t, 1000+rewards, payout, 1e-9)
}

func TestUnstake_Guards(t *testing.T) {
	p, users, _ := testPool(t, 1000)
	users.Connect("bob")

	st, err := p.Stake("alice", 500)
	require.NoError(t, err)

	_, err = p.Unstake("alice", "no-such-stake")
	assert.ErrorIs(t, err, ErrUnknownStake)

	_, err = p.Unstake("bob", st.ID)
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestDynamicAPR_DecaysToFloor(t *testing.T) {
	p, _, _ := testPool(t, 20000)

	assert.Equal(t, BaseAPR, p.DynamicAPR())

	_, err := p.Stake("alice", 2000)
	require.NoError(t, err)
	assert.InDelta(t, BaseAPR-RateDecay*2000, p.DynamicAPR(), 1e-9) // 0.50

	// Enough volume to push the computed rate below the floor.
	_, err = p.Stake("alice", 13000)
	require.NoError(t, err)
	assert.Equal(t, MinAPR, p.DynamicAPR())
}

func TestUnstake_RestoresRate(t *testing.T) {
	p, _, _ := testPool(t, 20000)

	st, err := p.Stake("alice", 15000)
	require.NoError(t, err)
	assert.Equal(t, MinAPR, p.DynamicAPR())

	_, err = p.Unstake("alice", st.ID)
	require.NoError(t, err)
	assert.Equal(t, BaseAPR, p.DynamicAPR())
}
