// Package wallet tracks connected user identities and their free balances.
// Funds move between a user's free balance and their agents' locked balances
// through the core's allocate/withdraw operations.
package wallet

import (
	"errors"
	"sync"
	"time"
)

// Typed validation failures for the public boundary.
var (
	ErrUnknownUser         = errors.New("unknown user")
	ErrNotConnected        = errors.New("user is not connected")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("amount must be positive")
)

// StartingBalance is granted to a first-time identity on connect.
const StartingBalance = 1000

// User is a connected identity with a free (unallocated) balance.
type User struct {
	ID        string    `json:"id"`
	Balance   float64   `json:"balance"`
	Connected bool      `json:"connected"`
	CreatedAt time.Time `json:"created_at"`

	// Automation preferences.
	AutoBet      bool    `json:"auto_bet"`
	AutoBetMax   float64 `json:"auto_bet_max"`
	AutoRegister bool    `json:"auto_register"`
}

// Store holds all known users.
type Store struct {
	mu    sync.RWMutex
	users map[string]*User
}

// NewStore creates an empty user store.
func NewStore() *Store {
	return &Store{users: make(map[string]*User)}
}

// Connect marks the identity connected, creating it with the starting grant
// on first sight. Returns the resulting user.
func (s *Store) Connect(id string) User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		u = &User{ID: id, Balance: StartingBalance, CreatedAt: time.Now()}
		s.users[id] = u
	}
	u.Connected = true
	return *u
}

// Disconnect marks the identity disconnected. State is retained.
func (s *Store) Disconnect(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		u.Connected = false
	}
}

// Get returns a copy of the user.
func (s *Store) Get(id string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, false
	}
	return *u, true
}

// Restore inserts a persisted user without connecting it.
func (s *Store) Restore(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.Connected = false
	s.users[u.ID] = &u
}

// List returns copies of all users.
func (s *Store) List() []User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u)
	}
	return out
}

// Debit removes amount from the user's free balance.
func (s *Store) Debit(id string, amount float64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrUnknownUser
	}
	if u.Balance < amount {
		return ErrInsufficientBalance
	}
	u.Balance -= amount
	return nil
}

// Credit adds amount to the user's free balance.
func (s *Store) Credit(id string, amount float64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrUnknownUser
	}
	u.Balance += amount
	return nil
}

// RequireConnected returns the user only when currently connected.
func (s *Store) RequireConnected(id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, ErrUnknownUser
	}
	if !u.Connected {
		return User{}, ErrNotConnected
	}
	return *u, nil
}

// SetAutoBet configures automated betting for the user.
func (s *Store) SetAutoBet(id string, enabled bool, maxStake float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrUnknownUser
	}
	u.AutoBet = enabled
	u.AutoBetMax = maxStake
	return nil
}

// SetAutoRegister configures automated tournament registration for the user.
func (s *Store) SetAutoRegister(id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrUnknownUser
	}
	u.AutoRegister = enabled
	return nil
}
