package sources

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"health-geo/internal/logger"
	"health-geo/internal/models"
)

// Status is the last observed outcome of one adapter.
type Status struct {
	Name        string    `json:"name"`
	LastOutcome string    `json:"lastOutcome,omitempty"`
	LastRecords int       `json:"lastRecords"`
	LastRun     time.Time `json:"lastRun,omitempty"`
	Failures    int       `json:"consecutiveFailures"`
}

// Registry holds the configured adapters by name and tracks their last outcome. Adapters
// returned by Get and Chain report back to the registry on every Fetch.
type Registry struct {
	mu sync.RWMutex
	as map[string]Adapter
	st map[string]Status
}

func NewRegistry() *Registry {
	return &Registry{as: make(map[string]Adapter), st: make(map[string]Status)}
}

// Register adds or replaces an adapter under its Name.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.as[a.Name()] = &tracked{Adapter: a, reg: r}
	r.st[a.Name()] = Status{Name: a.Name()}
	logger.L().Info("adapter_registered", "name", a.Name())
}

func (r *Registry) Get(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.as[name]
	return a, ok
}

// Chain resolves names in order; an unknown name is an error so misconfigured chains fail at
// startup rather than at the first ingestion.
func (r *Registry) Chain(names ...string) ([]Adapter, error) {
	out := make([]Adapter, 0, len(names))
	for _, n := range names {
		a, ok := r.Get(n)
		if !ok {
			return nil, fmt.Errorf("unknown adapter %q", n)
		}
		out = append(out, a)
	}
	return out, nil
}

// Snapshot returns the status of every adapter sorted by name.
func (r *Registry) Snapshot() []Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Status, 0, len(r.st))
	for _, s := range r.st {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Registry) record(name string, out Outcome, n int, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.st[name]
	s.Name = name
	s.LastOutcome = out.String()
	s.LastRecords = n
	s.LastRun = at
	if out == Success {
		s.Failures = 0
	} else {
		s.Failures++
	}
	r.st[name] = s
}

type tracked struct {
	Adapter
	reg *Registry
}

func (t *tracked) Fetch(ctx context.Context, cat models.Category, q Query) (models.Batch, Outcome) {
	b, out := t.Adapter.Fetch(ctx, cat, q)
	t.reg.record(t.Name(), out, b.Len(), time.Now().UTC())
	return b, out
}
