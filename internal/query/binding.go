// Package query binds report screens to backend fetches: one state machine
// per screen, deduplicated by parameter identity and shared across
// concurrent requests.
package query

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tilesmart/tiles-admin/internal/backend"
)

// NoticeSameParams is shown when a submission repeats the last parameters.
const NoticeSameParams = "same search parameters"

// ErrNothingToRetry is returned by Retry before any parameters were bound.
var ErrNothingToRetry = errors.New("query: nothing to retry")

// Status is the lifecycle state of a binding.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusError   Status = "error"
	StatusSuccess Status = "success"
)

// Fetcher loads a report payload from the backend.
type Fetcher[T any] func(ctx context.Context, creds backend.Credentials, p Params) (T, error)

// State is a snapshot of a binding.
type State[T any] struct {
	Status    Status
	Params    Params
	Data      T
	Err       error
	Notice    string
	FetchedAt time.Time
}

// Retryable reports whether the screen should offer a retry action.
func (s State[T]) Retryable() bool {
	return s.Status == StatusError
}

// Binding holds the query state of one screen.
type Binding[T any] struct {
	report  string
	fetch   Fetcher[T]
	cache   *Cache
	group   *singleflight.Group
	metrics *Metrics
	now     func() time.Time

	mu    sync.Mutex
	gen   uint64
	fresh bool // the in-flight fetch bypasses the cache
	state State[T]
}

// State returns the current snapshot.
func (b *Binding[T]) State() State[T] {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Bind makes p the active parameters. A fetch is issued only when p differs
// from the parameters already bound; a submitted p identical to the loaded
// one returns the current data with NoticeSameParams instead.
func (b *Binding[T]) Bind(ctx context.Context, creds backend.Credentials, p Params, submitted bool) State[T] {
	b.mu.Lock()
	current := b.state
	if current.Status != StatusIdle && current.Params == p {
		switch current.Status {
		case StatusSuccess:
			b.mu.Unlock()
			if submitted {
				current.Notice = NoticeSameParams
			}
			return current
		case StatusLoading:
			gen, fresh := b.gen, b.fresh
			b.mu.Unlock()
			return b.run(ctx, creds, p, gen, fresh)
		case StatusError:
			if !submitted {
				b.mu.Unlock()
				return current
			}
		}
	}
	b.gen++
	gen := b.gen
	b.fresh = false
	b.state = State[T]{Status: StatusLoading, Params: p}
	b.mu.Unlock()
	return b.run(ctx, creds, p, gen, false)
}

// Retry re-fetches the bound parameters, bypassing the result cache.
func (b *Binding[T]) Retry(ctx context.Context, creds backend.Credentials) (State[T], error) {
	b.mu.Lock()
	if b.state.Status == StatusIdle {
		b.mu.Unlock()
		return State[T]{}, ErrNothingToRetry
	}
	p := b.state.Params
	b.gen++
	gen := b.gen
	b.fresh = true
	b.state = State[T]{Status: StatusLoading, Params: p}
	b.mu.Unlock()
	return b.run(ctx, creds, p, gen, true), nil
}

type outcome[T any] struct {
	data T
	at   time.Time
}

func (b *Binding[T]) run(ctx context.Context, creds backend.Credentials, p Params, gen uint64, fresh bool) State[T] {
	key := b.report + "|" + creds.Scope() + "|" + p.Key()
	if fresh {
		key += "|fresh"
	}
	// The shared call must outlive the request that happened to start it.
	shared := context.WithoutCancel(ctx)
	ch := b.group.DoChan(key, func() (interface{}, error) {
		data, err := b.load(shared, creds, p, fresh)
		return outcome[T]{data: data, at: b.now()}, err
	})

	select {
	case <-ctx.Done():
		// The caller left; the shared fetch still lands in the state.
		go func() { b.apply(<-ch, p, gen) }()
		return b.State()
	case res := <-ch:
		return b.apply(res, p, gen)
	}
}

func (b *Binding[T]) apply(res singleflight.Result, p Params, gen uint64) State[T] {
	b.mu.Lock()
	defer b.mu.Unlock()
	if gen != b.gen {
		b.metrics.dropped(b.report)
		return b.state
	}
	if res.Err != nil {
		b.state = State[T]{Status: StatusError, Params: p, Err: res.Err}
		return b.state
	}
	out, _ := res.Val.(outcome[T])
	b.state = State[T]{Status: StatusSuccess, Params: p, Data: out.data, FetchedAt: out.at}
	return b.state
}

func (b *Binding[T]) load(ctx context.Context, creds backend.Credentials, p Params, fresh bool) (T, error) {
	var zero T
	key, err := b.cache.BuildKey(ctx, b.report, creds.Scope(), p.Key())
	if err != nil {
		key = ""
	}
	if key != "" {
		if fresh {
			_ = b.cache.Delete(ctx, key)
		} else {
			var cached T
			if ok, err := b.cache.Get(ctx, key, &cached); err == nil && ok {
				b.metrics.hit(b.report)
				return cached, nil
			}
		}
	}
	b.metrics.miss(b.report)

	start := time.Now()
	data, err := b.fetch(ctx, creds, p)
	b.metrics.observe(b.report, start, err)
	if err != nil {
		return zero, err
	}
	if key != "" {
		_ = b.cache.Set(ctx, key, data)
	}
	return data, nil
}
