// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Faro Contributors

package router_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faro-dev/faro/internal/catalog"
	"github.com/faro-dev/faro/internal/router"
	faroerr "github.com/faro-dev/faro/pkg/errors"
)

func newTestRouter(t *testing.T, cfg router.Config) *router.Router {
	t.Helper()
	tr := newTestTracker(t, 30*time.Second)
	return router.New(testCatalog(t), tr, cfg)
}

func request() router.Request {
	return router.Request{Capability: "fast-text", InputSize: 1000, OutputSize: 500}
}

func TestDispatchFirstCandidateSucceeds(t *testing.T) {
	rt := newTestRouter(t, router.Config{})

	var calls int32
	adapter := router.AdapterFunc(func(_ context.Context, c catalog.Candidate, _ router.Request) (any, error) {
		atomic.AddInt32(&calls, 1)
		return "response from " + c.Provider, nil
	})

	res, err := rt.Dispatch(context.Background(), adapter, request())
	require.NoError(t, err)

	assert.Equal(t, "openai", res.Candidate.Provider, "cheapest healthy candidate wins")
	assert.Equal(t, "response from openai", res.Payload)
	assert.Equal(t, int32(1), calls, "first success stops the fallback loop")
	assert.Equal(t, 1, res.Attempts)
	assert.InDelta(t, 2.0, res.EstimatedCost, 1e-9)
	assert.False(t, res.OverBudget)
	assert.NotEmpty(t, res.RequestID)

	snap := rt.HealthSnapshot()
	assert.Equal(t, uint64(1), snap["openai"].TotalRequests)
	assert.Zero(t, snap["anthropic"].TotalRequests)
}

func TestDispatchFallsBackToThirdCandidate(t *testing.T) {
	rt := newTestRouter(t, router.Config{})

	adapter := router.AdapterFunc(func(_ context.Context, c catalog.Candidate, _ router.Request) (any, error) {
		if c.Provider == "google" {
			return "ok", nil
		}
		return nil, errUpstream
	})

	res, err := rt.Dispatch(context.Background(), adapter, request())
	require.NoError(t, err)

	assert.Equal(t, "google", res.Candidate.Provider)
	assert.Equal(t, 3, res.Attempts)

	snap := rt.HealthSnapshot()
	assert.Equal(t, uint64(1), snap["openai"].ConsecutiveFailures)
	assert.Equal(t, uint64(1), snap["anthropic"].ConsecutiveFailures)
	assert.Zero(t, snap["google"].ConsecutiveFailures)
}

func TestDispatchAllCandidatesFail(t *testing.T) {
	rt := newTestRouter(t, router.Config{})

	adapter := router.AdapterFunc(func(_ context.Context, _ catalog.Candidate, _ router.Request) (any, error) {
		return nil, errUpstream
	})

	_, err := rt.Dispatch(context.Background(), adapter, request())
	require.Error(t, err)
	assert.True(t, faroerr.HasCode(err, faroerr.CodeRouterAllFailed))
	assert.ErrorIs(t, err, errUpstream)

	attempts := router.AttemptsOf(err)
	require.Len(t, attempts, 3, "trace covers every attempted candidate")
	assert.Equal(t, "openai", attempts[0].Candidate.Provider)
	assert.Equal(t, "anthropic", attempts[1].Candidate.Provider)
	assert.Equal(t, "google", attempts[2].Candidate.Provider)
}

func TestDispatchTraceCappedByMaxAttempts(t *testing.T) {
	tr := newTestTracker(t, 30*time.Second)
	rt := router.New(wideCatalog(t, 7), tr, router.Config{})

	adapter := router.AdapterFunc(func(_ context.Context, _ catalog.Candidate, _ router.Request) (any, error) {
		return nil, errUpstream
	})

	req := router.Request{Capability: "text", MaxAttempts: 2}
	_, err := rt.Dispatch(context.Background(), adapter, req)
	require.Error(t, err)
	assert.Len(t, router.AttemptsOf(err), 2)
}

func TestDispatchUnknownCapability(t *testing.T) {
	rt := newTestRouter(t, router.Config{})

	adapter := router.AdapterFunc(func(_ context.Context, _ catalog.Candidate, _ router.Request) (any, error) {
		t.Fatal("adapter must not be invoked")
		return nil, nil
	})

	_, err := rt.Dispatch(context.Background(), adapter, router.Request{Capability: "embeddings"})
	require.Error(t, err)
	assert.True(t, faroerr.HasCode(err, faroerr.CodeCatalogNoCandidates))
}

func TestDispatchValidatesInput(t *testing.T) {
	rt := newTestRouter(t, router.Config{})
	noop := router.AdapterFunc(func(_ context.Context, _ catalog.Candidate, _ router.Request) (any, error) {
		return nil, nil
	})

	_, err := rt.Dispatch(context.Background(), nil, request())
	assert.True(t, faroerr.HasCode(err, faroerr.CodeRouterRequestInvalid))

	_, err = rt.Dispatch(context.Background(), noop, router.Request{})
	assert.True(t, faroerr.HasCode(err, faroerr.CodeRouterRequestInvalid))
}

func TestDispatchOverBudgetDegradesToCheapest(t *testing.T) {
	rt := newTestRouter(t, router.Config{})

	adapter := router.AdapterFunc(func(_ context.Context, c catalog.Candidate, _ router.Request) (any, error) {
		return c.Provider, nil
	})

	req := request()
	req.BudgetUSD = 0.5 // cheapest estimate is 2.0
	res, err := rt.Dispatch(context.Background(), adapter, req)
	require.NoError(t, err)

	assert.Equal(t, "openai", res.Candidate.Provider)
	assert.True(t, res.OverBudget)
	assert.InDelta(t, 2.0, res.EstimatedCost, 1e-9)
}

func TestDispatchAppliesDefaultBudget(t *testing.T) {
	rt := newTestRouter(t, router.Config{DefaultBudgetUSD: 0.5})

	adapter := router.AdapterFunc(func(_ context.Context, c catalog.Candidate, _ router.Request) (any, error) {
		return c.Provider, nil
	})

	// The request carries no budget of its own, so the router's default
	// applies and forces the degraded-to-cheapest path.
	res, err := rt.Dispatch(context.Background(), adapter, request())
	require.NoError(t, err)

	assert.Equal(t, "openai", res.Candidate.Provider)
	assert.True(t, res.OverBudget)
}

func TestDispatchContextCancelled(t *testing.T) {
	rt := newTestRouter(t, router.Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	adapter := router.AdapterFunc(func(_ context.Context, _ catalog.Candidate, _ router.Request) (any, error) {
		t.Fatal("adapter must not be invoked after cancellation")
		return nil, nil
	})

	_, err := rt.Dispatch(ctx, adapter, request())
	require.Error(t, err)
	assert.True(t, faroerr.HasCode(err, faroerr.CodeRouterAllFailed))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDispatchRetriesCandidateBeforeFallback(t *testing.T) {
	rt := newTestRouter(t, router.Config{
		CandidateRetries: 2,
		Backoff:          router.NoBackoff,
	})

	var openaiCalls int32
	adapter := router.AdapterFunc(func(_ context.Context, c catalog.Candidate, _ router.Request) (any, error) {
		if c.Provider != "openai" {
			t.Fatalf("unexpected provider %s", c.Provider)
		}
		if atomic.AddInt32(&openaiCalls, 1) < 3 {
			return nil, errUpstream
		}
		return "ok", nil
	})

	res, err := rt.Dispatch(context.Background(), adapter, request())
	require.NoError(t, err)

	assert.Equal(t, int32(3), openaiCalls, "two retries then success on the same candidate")
	assert.Equal(t, "openai", res.Candidate.Provider)
	assert.Equal(t, 1, res.Attempts, "retries do not count as failed candidates")

	snap := rt.HealthSnapshot()
	assert.Zero(t, snap["openai"].TotalFailures, "only the candidate's final outcome is recorded")
	assert.Equal(t, uint64(1), snap["openai"].TotalRequests)
}

func TestExponentialBackoff(t *testing.T) {
	b := router.ExponentialBackoff(100*time.Millisecond, time.Second)

	assert.Equal(t, 100*time.Millisecond, b(1))
	assert.Equal(t, 200*time.Millisecond, b(2))
	assert.Equal(t, 400*time.Millisecond, b(3))
	assert.Equal(t, 800*time.Millisecond, b(4))
	assert.Equal(t, time.Second, b(5), "capped at max")
	assert.Equal(t, time.Second, b(40), "shift overflow still capped")
}

func TestAdapterRegistryRoutesByProvider(t *testing.T) {
	rt := newTestRouter(t, router.Config{})

	reg := router.NewAdapterRegistry()
	reg.Register("anthropic", router.AdapterFunc(func(_ context.Context, _ catalog.Candidate, _ router.Request) (any, error) {
		return "anthropic response", nil
	}))

	// openai has no adapter: the lookup failure feeds fallback like any
	// other candidate error.
	res, err := rt.Dispatch(context.Background(), reg, request())
	require.NoError(t, err)
	assert.Equal(t, "anthropic", res.Candidate.Provider)
	assert.Equal(t, 2, res.Attempts)

	snap := rt.HealthSnapshot()
	assert.Equal(t, uint64(1), snap["openai"].TotalFailures)
}

func TestAdapterRegistryGetUnregistered(t *testing.T) {
	reg := router.NewAdapterRegistry()
	_, err := reg.Get("openai")
	require.Error(t, err)
	assert.True(t, faroerr.HasCode(err, faroerr.CodeRouterAdapterNotRegistered))
}

func TestReportSuccessAndFailure(t *testing.T) {
	rt := newTestRouter(t, router.Config{})

	rt.ReportFailure("openai", errUpstream)
	rt.ReportFailure("openai", errUpstream)
	rt.ReportFailure("openai", errUpstream)
	assert.False(t, rt.HealthSnapshot()["openai"].Available)

	rt.ReportSuccess("openai", 80*time.Millisecond)
	snap := rt.HealthSnapshot()["openai"]
	assert.True(t, snap.Available)
	assert.Zero(t, snap.ConsecutiveFailures)
	assert.Equal(t, uint64(4), snap.TotalRequests)
}

func TestResetProvider(t *testing.T) {
	rt := newTestRouter(t, router.Config{})

	for i := 0; i < 3; i++ {
		rt.ReportFailure("openai", errUpstream)
	}
	require.False(t, rt.HealthSnapshot()["openai"].Available)

	rt.ResetProvider("openai")
	assert.True(t, rt.HealthSnapshot()["openai"].Available)
}

func TestRouterSeedsTrackerFromCatalog(t *testing.T) {
	rt := newTestRouter(t, router.Config{})

	snap := rt.HealthSnapshot()
	for _, p := range []string{"openai", "anthropic", "google", "stability"} {
		m, ok := snap[p]
		require.True(t, ok, "record exists before first selection: %s", p)
		assert.True(t, m.Available)
	}
}

// TestDispatchConcurrentNoLostUpdates runs many dispatches in parallel,
// half of them forced to fail on the cheapest candidate, and checks that
// every recorded attempt is reflected in the per-provider totals.
func TestDispatchConcurrentNoLostUpdates(t *testing.T) {
	rt := newTestRouter(t, router.Config{})

	var openaiCalls, anthropicCalls int64

	const dispatches = 100

	var wg sync.WaitGroup
	for i := 0; i < dispatches; i++ {
		failOpenAI := i%2 == 0
		wg.Add(1)
		go func() {
			defer wg.Done()

			adapter := router.AdapterFunc(func(_ context.Context, c catalog.Candidate, _ router.Request) (any, error) {
				switch c.Provider {
				case "openai":
					atomic.AddInt64(&openaiCalls, 1)
					if failOpenAI {
						return nil, errUpstream
					}
					return "ok", nil
				case "anthropic":
					atomic.AddInt64(&anthropicCalls, 1)
					return "ok", nil
				default:
					return "ok", nil
				}
			})

			_, err := rt.Dispatch(context.Background(), adapter, request())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	snap := rt.HealthSnapshot()
	assert.Equal(t, uint64(openaiCalls), snap["openai"].TotalRequests,
		"every openai attempt recorded exactly once")
	assert.Equal(t, uint64(anthropicCalls), snap["anthropic"].TotalRequests,
		"every anthropic attempt recorded exactly once")
	assert.Equal(t, uint64(dispatches), snap["openai"].TotalRequests+snap["anthropic"].TotalRequests-snap["openai"].TotalFailures,
		"every dispatch ended in exactly one success")
}
