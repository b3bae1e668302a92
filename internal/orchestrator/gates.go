package orchestrator

import "sync"

// Gate names guarding the shared GPU and the per-batch exclusive work.
const (
	GateRequest  = "requestInProgress"
	GateAudit    = "auditInProgress"
	GateMatching = "matchingInProgress"
)

// Gates is the explicit synchronized state replacing ad hoc process-wide
// flags. It is owned by the orchestrator and handed to the loops that need
// to coordinate with it; all access goes through the mutex.
type Gates struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewGates creates an empty gate set.
func NewGates() *Gates {
	return &Gates{held: make(map[string]bool)}
}

// TryAcquire takes the named gate, returning false when another loop
// already holds it.
func (g *Gates) TryAcquire(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held[name] {
		return false
	}
	g.held[name] = true
	return true
}

// Release frees the named gate.
func (g *Gates) Release(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.held, name)
}

// Held reports whether the named gate is currently taken.
func (g *Gates) Held(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.held[name]
}
