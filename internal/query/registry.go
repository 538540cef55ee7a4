package query

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// RegistryConfig wires the shared dependencies of every binding.
type RegistryConfig struct {
	Cache   *Cache
	Metrics *Metrics
	// IdleTTL evicts bindings of viewers that have not been seen for that
	// long. Zero keeps them until Forget.
	IdleTTL time.Duration
	Now     func() time.Time
}

// Registry keeps one binding per viewer for a report. Bindings share a
// singleflight group, so identical fetches from different viewers with the
// same credentials scope collapse into one backend call.
type Registry[T any] struct {
	report string
	fetch  Fetcher[T]
	cfg    RegistryConfig
	group  singleflight.Group

	mu      sync.Mutex
	entries map[string]*entry[T]
}

type entry[T any] struct {
	binding  *Binding[T]
	lastSeen time.Time
}

// NewRegistry constructs a registry for the named report.
func NewRegistry[T any](report string, fetch Fetcher[T], cfg RegistryConfig) *Registry[T] {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Registry[T]{
		report:  report,
		fetch:   fetch,
		cfg:     cfg,
		entries: make(map[string]*entry[T]),
	}
}

// Report returns the report name the registry serves.
func (r *Registry[T]) Report() string {
	return r.report
}

// For returns the binding of viewer, creating it on first use.
func (r *Registry[T]) For(viewer string) *Binding[T] {
	now := r.cfg.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictLocked(now)
	if e, ok := r.entries[viewer]; ok {
		e.lastSeen = now
		return e.binding
	}
	b := &Binding[T]{
		report:  r.report,
		fetch:   r.fetch,
		cache:   r.cfg.Cache,
		group:   &r.group,
		metrics: r.cfg.Metrics,
		now:     r.cfg.Now,
		state:   State[T]{Status: StatusIdle},
	}
	r.entries[viewer] = &entry[T]{binding: b, lastSeen: now}
	return b
}

// Forget drops the binding of viewer, typically on logout.
func (r *Registry[T]) Forget(viewer string) {
	r.mu.Lock()
	delete(r.entries, viewer)
	r.mu.Unlock()
}

// Len returns the number of live bindings.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry[T]) evictLocked(now time.Time) {
	if r.cfg.IdleTTL <= 0 {
		return
	}
	for viewer, e := range r.entries {
		if now.Sub(e.lastSeen) > r.cfg.IdleTTL {
			delete(r.entries, viewer)
		}
	}
}
