package agents

import (
	"sync"
)

// Registry is the shared collection of agent records. Every component reads
// and writes agents through it; mutation happens only inside Update/UpdatePair
// closures, so no caller can ever observe a half-updated agent.
type Registry struct {
	mu    sync.RWMutex
	byID  map[AgentID]*Agent
	order []AgentID // Insertion order, for stable listings
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[AgentID]*Agent)}
}

// Add inserts an agent. Existing IDs are replaced in place.
func (r *Registry) Add(a *Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[a.ID]; !ok {
		r.order = append(r.order, a.ID)
	}
	r.byID[a.ID] = a
}

// Get returns a copy of the agent, if present.
func (r *Registry) Get(id AgentID) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[id]
	if !ok {
		return Agent{}, false
	}
	return a.Clone(), true
}

// List returns copies of all agents matching the filter, in insertion order.
// A nil filter matches everything.
func (r *Registry) List(filter func(*Agent) bool) []Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Agent, 0, len(r.order))
	for _, id := range r.order {
		a := r.byID[id]
		if filter == nil || filter(a) {
			out = append(out, a.Clone())
		}
	}
	return out
}

// IDs returns the IDs of all agents matching the filter, in insertion order.
func (r *Registry) IDs(filter func(*Agent) bool) []AgentID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]AgentID, 0, len(r.order))
	for _, id := range r.order {
		if filter == nil || filter(r.byID[id]) {
			out = append(out, id)
		}
	}
	return out
}

// Count returns the number of agents matching the filter.
func (r *Registry) Count(filter func(*Agent) bool) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, a := range r.byID {
		if filter == nil || filter(a) {
			n++
		}
	}
	return n
}

// Update applies fn to the agent under the registry lock. Returns false if the
// agent does not exist. This is the single write path for one-agent mutations.
func (r *Registry) Update(id AgentID, fn func(*Agent)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return false
	}
	fn(a)
	return true
}

// UpdatePair applies fn to two distinct agents atomically. Combat resolution
// uses this so a loot transfer can never be observed half-applied.
func (r *Registry) UpdatePair(first, second AgentID, fn func(a, b *Agent)) bool {
	if first == second {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a, okA := r.byID[first]
	b, okB := r.byID[second]
	if !okA || !okB {
		return false
	}
	fn(a, b)
	return true
}

// Remove deletes an agent. Only ephemeral test/cleanup flows use this; the
// simulation never hard-deletes agents.
func (r *Registry) Remove(id AgentID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return
	}
	delete(r.byID, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}
