// Package pool implements liquidity staking: locked deposits earning
// time-based rewards at a rate that decays as the pool grows.
package pool

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/loot-arena/internal/wallet"
)

// Staking constants.
const (
	MinStake         = 100.0
	LockDuration     = 7 * 24 * time.Hour
	EarlyExitPenalty = 0.20 // Applied to principal only, never to accrued rewards
	BaseAPR          = 0.60
	MinAPR           = 0.05
	RateDecay        = 5e-5 // APR lost per unit of total staked
)

var secondsPerYear = (365 * 24 * time.Hour).Seconds()

// Typed validation failures.
var (
	ErrBelowMinimum = errors.New("stake below minimum")
	ErrUnknownStake = errors.New("unknown stake")
	ErrNotOwner     = errors.New("stake belongs to another user")
)

// Stake is one locked deposit. Rewards accrue lazily from LastClaim, so
// claiming and unstaking always reflect exact elapsed time.
type Stake struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Amount    float64   `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
	UnlockAt  time.Time `json:"unlock_at"`
	LastClaim time.Time `json:"last_claim"`
}

// Snapshot is a read-only pool view for the UI layer.
type Snapshot struct {
	TotalStaked float64 `json:"total_staked"`
	APR         float64 `json:"apr"`
	StakeCount  int     `json:"stake_count"`
}

// Pool is the pool-wide stake ledger.
type Pool struct {
	mu     sync.Mutex
	users  *wallet.Store
	stakes map[string]*Stake
	total  float64
	rate   float64

	nowFn func() time.Time // Injectable clock for accrual tests
}

// New creates an empty pool drawing funds from the user store.
func New(users *wallet.Store) *Pool {
	return &Pool{
		users:  users,
		stakes: make(map[string]*Stake),
		rate:   BaseAPR,
		nowFn:  time.Now,
	}
}

// Stake locks amount from the caller's free balance for the fixed duration.
func (p *Pool) Stake(userID string, amount float64) (Stake, error) {
	if _, err := p.users.RequireConnected(userID); err != nil {
		return Stake{}, err
	}
	if amount < MinStake {
		return Stake{}, ErrBelowMinimum
	}
	if err := p.users.Debit(userID, amount); err != nil {
		return Stake{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.nowFn()
	st := &Stake{
		ID:        uuid.NewString(),
		OwnerID:   userID,
		Amount:    amount,
		CreatedAt: now,
		UnlockAt:  now.Add(LockDuration),
		LastClaim: now,
	}
	p.stakes[st.ID] = st
	p.total += amount
	p.refreshRate()
	return *st, nil
}

// Unstake returns principal plus accrued rewards to the caller's free balance
// and removes the stake. Exiting before the unlock time costs a fixed share of
// principal; early exit is a priced option, never a blocked operation.
func (p *Pool) Unstake(userID, stakeID string) (float64, error) {
	if _, err := p.users.RequireConnected(userID); err != nil {
		return 0, err
	}

	p.mu.Lock()
	st, ok := p.stakes[stakeID]
	if !ok {
		p.mu.Unlock()
		return 0, ErrUnknownStake
	}
	if st.OwnerID != userID {
		p.mu.Unlock()
		return 0, ErrNotOwner
	}

	now := p.nowFn()
	rewards := p.accrued(st, now)
	principal := st.Amount
	if now.Before(st.UnlockAt) {
		principal *= 1 - EarlyExitPenalty
	}

	delete(p.stakes, stakeID)
	p.total -= st.Amount
	p.refreshRate()
	p.mu.Unlock()

	payout := principal + rewards
	if err := p.users.Credit(userID, payout); err != nil {
		return 0, err
	}
	return payout, nil
}

// Claim pays out accrued rewards across all of the caller's stakes and resets
// their claim times. A zero total is a no-op, not an error.
func (p *Pool) Claim(userID string) (float64, error) {
	if _, err := p.users.RequireConnected(userID); err != nil {
		return 0, err
	}

	p.mu.Lock()
	now := p.nowFn()
	total := 0.0
	for _, st := range p.stakes {
		if st.OwnerID != userID {
			continue
		}
		total += p.accrued(st, now)
		st.LastClaim = now
	}
	p.mu.Unlock()

	if total <= 0 {
		return 0, nil
	}
	if err := p.users.Credit(userID, total); err != nil {
		return 0, err
	}
	return total, nil
}

// Pending returns the caller's unclaimed reward total without claiming it.
func (p *Pool) Pending(userID string) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.nowFn()
	total := 0.0
	for _, st := range p.stakes {
		if st.OwnerID == userID {
			total += p.accrued(st, now)
		}
	}
	return total
}

// Stakes returns copies of the caller's stakes.
func (p *Pool) Stakes(userID string) []Stake {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Stake
	for _, st := range p.stakes {
		if st.OwnerID == userID {
			out = append(out, *st)
		}
	}
	return out
}

// DynamicAPR returns the current pool-wide annual rate.
func (p *Pool) DynamicAPR() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rate
}

// State returns a read-only pool snapshot.
func (p *Pool) State() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Snapshot{TotalStaked: p.total, APR: p.rate, StakeCount: len(p.stakes)}
}

// accrued computes rewards since last claim at the current rate.
// Caller holds p.mu.
func (p *Pool) accrued(st *Stake, now time.Time) float64 {
	elapsed := now.Sub(st.LastClaim).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return st.Amount * p.rate * elapsed / secondsPerYear
}

// refreshRate recomputes the decaying rate from total staked.
// Caller holds p.mu.
func (p *Pool) refreshRate() {
	rate := BaseAPR - RateDecay*p.total
	if rate < MinAPR {
		rate = MinAPR
	}
	p.rate = rate
}
