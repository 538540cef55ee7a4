package query

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilesmart/tiles-admin/internal/backend"
)

type stockPayload struct {
	From  string `json:"from"`
	Count int    `json:"count"`
}

var operator = backend.Credentials{Token: "token", Subject: "7"}

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute)
}

func countingFetcher(calls *atomic.Int32) Fetcher[stockPayload] {
	return func(ctx context.Context, creds backend.Credentials, p Params) (stockPayload, error) {
		n := calls.Add(1)
		return stockPayload{From: p.FromDate, Count: int(n)}, nil
	}
}

func TestBindFetchesOnlyWhenParamsChange(t *testing.T) {
	var calls atomic.Int32
	reg := NewRegistry("stock", countingFetcher(&calls), RegistryConfig{})
	b := reg.For("viewer-1")
	assert.Equal(t, StatusIdle, b.State().Status)

	p := Params{FromDate: "2024-04-01"}
	st := b.Bind(context.Background(), operator, p, false)
	require.Equal(t, StatusSuccess, st.Status)
	assert.Equal(t, "2024-04-01", st.Data.From)
	assert.Empty(t, st.Notice)

	st = b.Bind(context.Background(), operator, p, false)
	assert.Equal(t, StatusSuccess, st.Status)
	assert.Empty(t, st.Notice)
	assert.EqualValues(t, 1, calls.Load())

	st = b.Bind(context.Background(), operator, Params{FromDate: "2024-04-02"}, true)
	assert.Equal(t, "2024-04-02", st.Data.From)
	assert.EqualValues(t, 2, calls.Load())
}

func TestBindSameParamsSubmittedReturnsNotice(t *testing.T) {
	var calls atomic.Int32
	reg := NewRegistry("stock", countingFetcher(&calls), RegistryConfig{})
	b := reg.For("viewer-1")
	p := Params{FromDate: "2024-04-01"}

	first := b.Bind(context.Background(), operator, p, true)
	require.Equal(t, StatusSuccess, first.Status)
	assert.Empty(t, first.Notice)

	again := b.Bind(context.Background(), operator, p, true)
	assert.Equal(t, StatusSuccess, again.Status)
	assert.Equal(t, NoticeSameParams, again.Notice)
	assert.Equal(t, first.Data, again.Data)
	assert.EqualValues(t, 1, calls.Load())
	assert.Empty(t, b.State().Notice)
}

func TestBindErrorThenRetry(t *testing.T) {
	var calls atomic.Int32
	failing := errors.New("backend down")
	fetch := func(ctx context.Context, creds backend.Credentials, p Params) (stockPayload, error) {
		if calls.Add(1) == 1 {
			return stockPayload{}, failing
		}
		return stockPayload{From: p.FromDate}, nil
	}
	reg := NewRegistry("stock", fetch, RegistryConfig{})
	b := reg.For("viewer-1")
	p := Params{FromDate: "2024-04-01"}

	st := b.Bind(context.Background(), operator, p, false)
	require.Equal(t, StatusError, st.Status)
	assert.ErrorIs(t, st.Err, failing)
	assert.True(t, st.Retryable())

	st = b.Bind(context.Background(), operator, p, false)
	assert.Equal(t, StatusError, st.Status)
	assert.EqualValues(t, 1, calls.Load())

	st, err := b.Retry(context.Background(), operator)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, st.Status)
	assert.Equal(t, "2024-04-01", st.Data.From)
	assert.False(t, st.Retryable())
	assert.EqualValues(t, 2, calls.Load())
}

func TestBindSubmittingAfterErrorRefetches(t *testing.T) {
	var calls atomic.Int32
	fetch := func(ctx context.Context, creds backend.Credentials, p Params) (stockPayload, error) {
		if calls.Add(1) == 1 {
			return stockPayload{}, errors.New("timeout")
		}
		return stockPayload{From: p.FromDate}, nil
	}
	b := NewRegistry("stock", fetch, RegistryConfig{}).For("viewer-1")
	p := Params{FromDate: "2024-04-01"}

	require.Equal(t, StatusError, b.Bind(context.Background(), operator, p, true).Status)
	st := b.Bind(context.Background(), operator, p, true)
	assert.Equal(t, StatusSuccess, st.Status)
	assert.Empty(t, st.Notice)
}

func TestRetryBeforeBindFails(t *testing.T) {
	var calls atomic.Int32
	b := NewRegistry("stock", countingFetcher(&calls), RegistryConfig{}).For("viewer-1")
	_, err := b.Retry(context.Background(), operator)
	assert.ErrorIs(t, err, ErrNothingToRetry)
	assert.Zero(t, calls.Load())
}

func TestBindDiscardsSupersededResult(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	fetch := func(ctx context.Context, creds backend.Credentials, p Params) (stockPayload, error) {
		if p.FromDate == "2024-01-01" {
			close(started)
			<-release
		}
		return stockPayload{From: p.FromDate}, nil
	}
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	require.NoError(t, err)
	b := NewRegistry("stock", fetch, RegistryConfig{Metrics: metrics}).For("viewer-1")

	var slow State[stockPayload]
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		slow = b.Bind(context.Background(), operator, Params{FromDate: "2024-01-01"}, true)
	}()
	<-started

	fast := b.Bind(context.Background(), operator, Params{FromDate: "2024-02-01"}, true)
	require.Equal(t, StatusSuccess, fast.Status)
	assert.Equal(t, "2024-02-01", fast.Data.From)

	close(release)
	wg.Wait()

	assert.Equal(t, "2024-02-01", slow.Data.From)
	assert.Equal(t, "2024-02-01", b.State().Data.From)
	assert.Equal(t, "2024-02-01", b.State().Params.FromDate)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.superseded.WithLabelValues("stock")))
}

func TestBindCollapsesConcurrentIdenticalFetches(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(ctx context.Context, creds backend.Credentials, p Params) (stockPayload, error) {
		calls.Add(1)
		<-release
		return stockPayload{From: p.FromDate}, nil
	}
	reg := NewRegistry("stock", fetch, RegistryConfig{Cache: newTestCache(t)})
	p := Params{FromDate: "2024-04-01"}

	var wg sync.WaitGroup
	results := make([]State[stockPayload], 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = reg.For("viewer-"+string(rune('a'+i))).Bind(context.Background(), operator, p, true)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
	for _, st := range results {
		assert.Equal(t, StatusSuccess, st.Status)
		assert.Equal(t, "2024-04-01", st.Data.From)
	}
}

func TestBindJoinsInFlightRetry(t *testing.T) {
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	fetch := func(ctx context.Context, creds backend.Credentials, p Params) (stockPayload, error) {
		n := calls.Add(1)
		if n == 2 {
			close(started)
			<-release
		}
		return stockPayload{From: p.FromDate, Count: int(n)}, nil
	}
	b := NewRegistry("stock", fetch, RegistryConfig{}).For("viewer-1")
	p := Params{FromDate: "2024-04-01"}
	require.Equal(t, StatusSuccess, b.Bind(context.Background(), operator, p, false).Status)

	retried := make(chan State[stockPayload])
	go func() {
		st, _ := b.Retry(context.Background(), operator)
		retried <- st
	}()
	<-started
	require.Equal(t, StatusLoading, b.State().Status)

	joined := make(chan State[stockPayload])
	go func() { joined <- b.Bind(context.Background(), operator, p, false) }()
	time.Sleep(50 * time.Millisecond)
	close(release)

	retry, bound := <-retried, <-joined
	assert.Equal(t, 2, retry.Data.Count)
	assert.Equal(t, 2, bound.Data.Count)
	assert.EqualValues(t, 2, calls.Load())
}

func TestBindSharedFetchSurvivesCancelledCaller(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	fetch := func(ctx context.Context, creds backend.Credentials, p Params) (stockPayload, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		if err := ctx.Err(); err != nil {
			return stockPayload{}, err
		}
		return stockPayload{From: p.FromDate}, nil
	}
	b := NewRegistry("stock", fetch, RegistryConfig{}).For("viewer-1")
	p := Params{FromDate: "2024-04-01"}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan State[stockPayload])
	go func() { done <- b.Bind(ctx, operator, p, true) }()
	<-started
	cancel()
	assert.Equal(t, StatusLoading, (<-done).Status)

	close(release)
	require.Eventually(t, func() bool {
		return b.State().Status == StatusSuccess
	}, time.Second, 10*time.Millisecond)

	st := b.Bind(context.Background(), operator, p, false)
	assert.Equal(t, "2024-04-01", st.Data.From)
	assert.EqualValues(t, 1, calls.Load())
}

func TestCacheSharesResultsAcrossViewers(t *testing.T) {
	var calls atomic.Int32
	cache := newTestCache(t)
	promReg := prometheus.NewRegistry()
	metrics, err := NewMetrics(promReg)
	require.NoError(t, err)
	reg := NewRegistry("stock", countingFetcher(&calls), RegistryConfig{Cache: cache, Metrics: metrics})
	p := Params{FromDate: "2024-04-01"}
	ctx := context.Background()

	first := reg.For("viewer-a").Bind(ctx, operator, p, true)
	second := reg.For("viewer-b").Bind(ctx, operator, p, true)
	assert.Equal(t, first.Data, second.Data)
	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.hits.WithLabelValues("stock")))

	other := backend.Credentials{Token: "token", Subject: "8"}
	reg.For("viewer-c").Bind(ctx, other, p, true)
	assert.EqualValues(t, 2, calls.Load())

	_, err = cache.Bump(ctx)
	require.NoError(t, err)
	reg.For("viewer-d").Bind(ctx, operator, p, true)
	assert.EqualValues(t, 3, calls.Load())
}

func TestRetryBypassesCache(t *testing.T) {
	var calls atomic.Int32
	reg := NewRegistry("stock", countingFetcher(&calls), RegistryConfig{Cache: newTestCache(t)})
	b := reg.For("viewer-a")
	p := Params{FromDate: "2024-04-01"}

	st := b.Bind(context.Background(), operator, p, true)
	assert.Equal(t, 1, st.Data.Count)
	st, err := b.Retry(context.Background(), operator)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Data.Count)

	st = reg.For("viewer-b").Bind(context.Background(), operator, p, true)
	assert.Equal(t, 2, st.Data.Count)
	assert.EqualValues(t, 2, calls.Load())
}

func TestRegistryForgetAndIdleEviction(t *testing.T) {
	var calls atomic.Int32
	now := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
	reg := NewRegistry("stock", countingFetcher(&calls), RegistryConfig{
		IdleTTL: time.Minute,
		Now:     func() time.Time { return now },
	})

	a := reg.For("a")
	assert.Same(t, a, reg.For("a"))
	reg.For("b")
	assert.Equal(t, 2, reg.Len())

	reg.Forget("a")
	assert.Equal(t, 1, reg.Len())
	assert.NotSame(t, a, reg.For("a"))

	now = now.Add(2 * time.Minute)
	reg.For("c")
	assert.Equal(t, 1, reg.Len())
	assert.Equal(t, "stock", reg.Report())
}
