// Package registry holds the gateway's provider adapters alongside their
// static configuration and dynamic health. It is the single source of
// truth the capability selector and dispatch loop read from.
package registry

import (
	"sync"
	"time"

	"github.com/aiprovidergw/gateway/internal/gwerrors"
	"github.com/aiprovidergw/gateway/internal/metrics"
	"github.com/aiprovidergw/gateway/internal/provider"
)

// healthEMAFactor is the exponential-moving-average smoothing factor the
// dispatch loop uses when folding a single request's outcome into a
// provider's running error_rate.
const healthEMAFactor = 0.1

// Config is a provider's static, author-time configuration: priority,
// capability set, a rate-limit hint the gateway surfaces but does not
// itself enforce, a per-request timeout, and an ordered fallback list.
type Config struct {
	ID                 provider.ID
	Priority           int
	Capabilities       map[provider.Capability]bool
	RateLimitPerMinute int
	Timeout            time.Duration
	Fallbacks          []provider.ID
}

// HasCapability reports whether this provider declares the given capability.
func (c Config) HasCapability(cap provider.Capability) bool {
	return c.Capabilities[cap]
}

// Health is a provider's dynamic, dispatch-loop-maintained state.
type Health struct {
	ID           provider.ID
	IsHealthy    bool
	LastCheck    time.Time
	ResponseTime time.Duration
	ErrorRate    float64
}

// Registry maps provider identity to adapter, static config, and dynamic
// health. All three maps are guarded by one RWMutex: many goroutines may
// read concurrently (the selector scores providers, the dispatch loop reads
// health and config), but registration and health updates take the
// exclusive write lock. The lock is never held across a suspending call —
// only across the map mutations themselves.
type Registry struct {
	mu       sync.RWMutex
	adapters map[provider.ID]provider.Provider
	configs  map[provider.ID]Config
	health   map[provider.ID]Health
}

func New() *Registry {
	return &Registry{
		adapters: make(map[provider.ID]provider.Provider),
		configs:  make(map[provider.ID]Config),
		health:   make(map[provider.ID]Health),
	}
}

// Register installs an adapter under its configured id, replacing any
// adapter already registered for that id, and initializes a fresh health
// row (is_healthy=true, zero latency, zero error rate) per §4.2.
func (r *Registry) Register(adapter provider.Provider, cfg Config) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := adapter.ID()
	cfg.ID = id
	r.adapters[id] = adapter
	r.configs[id] = cfg
	r.health[id] = Health{ID: id, IsHealthy: true}
}

// Get returns the adapter registered for id.
func (r *Registry) Get(id provider.ID) (provider.Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.adapters[id]
	return p, ok
}

// Config returns the static config registered for id.
func (r *Registry) Config(id provider.ID) (Config, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.configs[id]
	return c, ok
}

// Health returns a snapshot of the dynamic health row registered for id.
func (r *Registry) Health(id provider.ID) (Health, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.health[id]
	return h, ok
}

// Entry bundles an adapter with its config and health, for callers (the
// selector) that need to consider every registered provider at once.
type Entry struct {
	Adapter provider.Provider
	Config  Config
	Health  Health
}

// Snapshot returns one Entry per registered provider. It copies under the
// read lock so callers can iterate without holding it.
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]Entry, 0, len(r.adapters))
	for id, adapter := range r.adapters {
		entries = append(entries, Entry{
			Adapter: adapter,
			Config:  r.configs[id],
			Health:  r.health[id],
		})
	}
	return entries
}

// RecordSuccess folds a successful attempt into the provider's health row:
// is_healthy becomes true, last_check and response_time are updated, and
// error_rate moves toward 0 via the EMA.
func (r *Registry) RecordSuccess(id provider.ID, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h := r.health[id]
	h.ID = id
	h.IsHealthy = true
	h.LastCheck = time.Now()
	h.ResponseTime = elapsed
	h.ErrorRate = (1-healthEMAFactor)*h.ErrorRate + healthEMAFactor*0.0
	r.health[id] = h
	metrics.Observe(id, h.ResponseTime.Seconds(), h.ErrorRate, h.IsHealthy)
}

// RecordFailure folds a failed attempt into the provider's health row:
// is_healthy becomes false, last_check and response_time are updated, and
// error_rate moves toward 1 via the EMA.
func (r *Registry) RecordFailure(id provider.ID, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h := r.health[id]
	h.ID = id
	h.IsHealthy = false
	h.LastCheck = time.Now()
	h.ResponseTime = elapsed
	h.ErrorRate = (1-healthEMAFactor)*h.ErrorRate + healthEMAFactor*1.0
	r.health[id] = h
	metrics.Observe(id, h.ResponseTime.Seconds(), h.ErrorRate, h.IsHealthy)
}

// IDs returns every registered provider id, in no particular order.
func (r *Registry) IDs() []provider.ID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]provider.ID, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	return ids
}

// NewNotRegisteredError builds the error callers return when a provider id
// has no registered adapter.
func NewNotRegisteredError(id provider.ID) error {
	return gwerrors.New(gwerrors.InvalidModel, "no adapter registered for provider "+string(id))
}
