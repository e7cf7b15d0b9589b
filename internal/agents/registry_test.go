package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(balances ...float64) *Registry {
	r := NewRegistry()
	for i, b := range balances {
		r.Add(&Agent{ID: AgentID(i + 1), Name: "a", Balance: b, Status: StatusInArena})
	}
	return r
}

func TestRegistry_GetReturnsCopy(t *testing.T) {
	r := newTestRegistry(100)
	a, ok := r.Get(1)
	require.True(t, ok)

	a.Balance = 999
	again, _ := r.Get(1)
	assert.Equal(t, 100.0, again.Balance)
}

func TestRegistry_UpdateMutatesInPlace(t *testing.T) {
	r := newTestRegistry(100)
	ok := r.Update(1, func(a *Agent) { a.Balance += 50 })
	require.True(t, ok)

	a, _ := r.Get(1)
	assert.Equal(t, 150.0, a.Balance)
}

func TestRegistry_UpdateUnknownID(t *testing.T) {
	r := newTestRegistry()
	assert.False(t, r.Update(99, func(a *Agent) {}))
}

func TestUpdatePair_TransfersAtomically(t *testing.T) {
	r := newTestRegistry(100, 40)
	ok := r.UpdatePair(1, 2, func(a, b *Agent) {
		b.Balance -= 40
		a.Balance += 40
	})
	require.True(t, ok)

	a, _ := r.Get(1)
	b, _ := r.Get(2)
	assert.Equal(t, 140.0, a.Balance)
	assert.Equal(t, 0.0, b.Balance)
}

func TestUpdatePair_RefusesSameAgent(t *testing.T) {
	r := newTestRegistry(100)
	assert.False(t, r.UpdatePair(1, 1, func(a, b *Agent) {}))
}

func TestList_FilterAndOrder(t *testing.T) {
	r := newTestRegistry(10, 0, 30)
	funded := r.List(func(a *Agent) bool { return a.Balance > 0 })
	require.Len(t, funded, 2)
	assert.Equal(t, AgentID(1), funded[0].ID)
	assert.Equal(t, AgentID(3), funded[1].ID)
}

func TestRemove_DropsFromListings(t *testing.T) {
	r := newTestRegistry(10, 20)
	r.Remove(1)
	assert.Equal(t, 1, r.Count(nil))
	ids := r.IDs(nil)
	assert.Equal(t, []AgentID{2}, ids)
}
