// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Faro Contributors

// Package router selects among interchangeable generation providers under
// a cost budget, quarantines failing providers behind a per-provider
// circuit breaker, and drives fallback across candidates until one
// succeeds. It is a pure in-process routing layer: provider wire
// protocols live in caller-supplied adapters, and spend accounting is the
// caller's concern.
package router

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/faro-dev/faro/internal/catalog"
	"github.com/faro-dev/faro/internal/cost"
	faroerr "github.com/faro-dev/faro/pkg/errors"
	"github.com/faro-dev/faro/pkg/health"
)

// Request describes one capability request to route. BudgetUSD of zero
// means no budget constraint; MaxAttempts of zero means
// DefaultMaxAttempts.
type Request struct {
	Capability  string
	InputSize   int
	OutputSize  int
	BudgetUSD   float64
	MaxAttempts int

	// Payload is passed through to the adapter untouched.
	Payload any
}

// Result is the outcome of a successful dispatch.
type Result struct {
	RequestID     string
	Candidate     catalog.Candidate
	Payload       any
	Latency       time.Duration
	EstimatedCost float64
	OverBudget    bool
	Attempts      int
}

// Attempt records one failed candidate invocation within a dispatch.
type Attempt struct {
	Candidate catalog.Candidate
	Err       error
}

// Backoff returns how long to wait before retry number attempt (1-based)
// of the same candidate. Returning zero retries immediately.
type Backoff func(attempt int) time.Duration

// NoBackoff retries immediately.
func NoBackoff(int) time.Duration { return 0 }

// ExponentialBackoff doubles the base delay for each retry, capped at max.
func ExponentialBackoff(base, max time.Duration) Backoff {
	return func(attempt int) time.Duration {
		d := base << (attempt - 1)
		if d > max || d <= 0 {
			return max
		}
		return d
	}
}

// Config tunes a Router. The zero value means one invocation per
// candidate with no backoff.
type Config struct {
	// CandidateRetries is how many extra times one candidate is retried
	// before it is marked failed and fallback moves on. Zero means
	// fail-fast-and-fallback.
	CandidateRetries int
	// Backoff spaces out retries of the same candidate. Nil means
	// NoBackoff. Unused when CandidateRetries is zero.
	Backoff Backoff
	// DefaultBudgetUSD applies to requests that carry no budget of their
	// own. Zero means unconstrained.
	DefaultBudgetUSD float64
}

// Router is the dispatch entry point. Construct one at the composition
// root and share it across request handlers; all methods are safe for
// concurrent use.
type Router struct {
	selector      *Selector
	tracker       *Tracker
	retries       int
	backoff       Backoff
	defaultBudget float64
}

// New creates a Router over the catalog and tracker, seeding a healthy
// tracker record for every provider the catalog references.
func New(cat *catalog.Catalog, tracker *Tracker, cfg Config) *Router {
	tracker.Seed(cat.Providers())

	backoff := cfg.Backoff
	if backoff == nil {
		backoff = NoBackoff
	}
	retries := cfg.CandidateRetries
	if retries < 0 {
		retries = 0
	}
	return &Router{
		selector:      NewSelector(cat, tracker),
		tracker:       tracker,
		retries:       retries,
		backoff:       backoff,
		defaultBudget: cfg.DefaultBudgetUSD,
	}
}

// SelectCandidates returns the ordered attempt list for the request
// without dispatching. Read-only aside from the implicit health reads.
func (r *Router) SelectCandidates(req Request) ([]catalog.Candidate, error) {
	candidates, _, err := r.selector.Select(r.withDefaults(req), req.MaxAttempts)
	return candidates, err
}

// withDefaults applies the router-level default budget to requests that
// carry none of their own.
func (r *Router) withDefaults(req Request) Request {
	if req.BudgetUSD == 0 {
		req.BudgetUSD = r.defaultBudget
	}
	return req
}

// Dispatch tries the selected candidates in order through the adapter and
// returns the first success. Per-candidate failures are recorded against
// the provider's circuit breaker and swallowed; only the aggregate
// none-available or all-failed errors escape.
func (r *Router) Dispatch(ctx context.Context, adapter Adapter, req Request) (Result, error) {
	if adapter == nil {
		return Result{}, faroerr.New(faroerr.CodeRouterRequestInvalid, "adapter must not be nil")
	}
	if req.Capability == "" {
		return Result{}, faroerr.New(faroerr.CodeRouterRequestInvalid, "capability must not be empty")
	}

	req = r.withDefaults(req)
	candidates, overBudget, err := r.selector.Select(req, req.MaxAttempts)
	if err != nil {
		return Result{}, err
	}

	requestID := uuid.NewString()
	attempts := make([]Attempt, 0, len(candidates))

	for _, candidate := range candidates {
		if ctx.Err() != nil {
			return Result{}, r.allFailed(ctx.Err(), req, attempts)
		}

		payload, latency, err := r.invoke(ctx, adapter, candidate, req)
		if err == nil {
			r.tracker.RecordSuccess(candidate.Provider, latency)
			estimated := cost.Estimate(candidate, req.InputSize, req.OutputSize)
			slog.Debug("dispatch succeeded",
				"request_id", requestID,
				"capability", req.Capability,
				"provider", candidate.Provider,
				"model", candidate.Model,
				"latency_ms", latency.Milliseconds(),
				"estimated_cost_usd", estimated,
				"over_budget", overBudget)
			return Result{
				RequestID:     requestID,
				Candidate:     candidate,
				Payload:       payload,
				Latency:       latency,
				EstimatedCost: estimated,
				OverBudget:    overBudget,
				Attempts:      len(attempts) + 1,
			}, nil
		}

		r.tracker.RecordFailure(candidate.Provider, err)
		attempts = append(attempts, Attempt{Candidate: candidate, Err: err})
		slog.Warn("candidate failed, falling back",
			"request_id", requestID,
			"capability", req.Capability,
			"provider", candidate.Provider,
			"model", candidate.Model,
			"error", err)
	}

	slog.Error("all candidates failed",
		"request_id", requestID,
		"capability", req.Capability,
		"attempts", len(attempts))
	return Result{}, r.allFailed(nil, req, attempts)
}

// invoke runs one candidate, with bounded retry-and-backoff when the
// router is configured for it. The adapter call is the only suspension
// point; backoff sleeps honor context cancellation.
func (r *Router) invoke(ctx context.Context, adapter Adapter, candidate catalog.Candidate, req Request) (any, time.Duration, error) {
	var lastErr error
	for attempt := 0; attempt <= r.retries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, r.backoff(attempt)); err != nil {
				return nil, 0, lastErr
			}
		}

		start := time.Now()
		payload, err := adapter.Invoke(ctx, candidate, req)
		if err == nil {
			return payload, time.Since(start), nil
		}
		lastErr = err
	}
	return nil, 0, lastErr
}

func (r *Router) allFailed(cause error, req Request, attempts []Attempt) error {
	errs := make([]error, 0, len(attempts)+1)
	for _, a := range attempts {
		errs = append(errs, a.Err)
	}
	if cause != nil {
		errs = append(errs, cause)
	}

	return faroerr.Wrap(stderrors.Join(errs...), faroerr.CodeRouterAllFailed,
		"every candidate failed",
		faroerr.FieldCapability(req.Capability),
		faroerr.Field("attempts", attempts))
}

// AttemptsOf extracts the per-candidate failure trace from an all-failed
// error. Returns nil for any other error.
func AttemptsOf(err error) []Attempt {
	if !faroerr.HasCode(err, faroerr.CodeRouterAllFailed) {
		return nil
	}
	attempts, _ := faroerr.FieldsOf(err)["attempts"].([]Attempt)
	return attempts
}

// ReportSuccess records a successful provider call for callers running
// their own retry loop outside Dispatch.
func (r *Router) ReportSuccess(provider string, latency time.Duration) {
	r.tracker.RecordSuccess(provider, latency)
}

// ReportFailure records a failed provider call for callers running their
// own retry loop outside Dispatch.
func (r *Router) ReportFailure(provider string, err error) {
	r.tracker.RecordFailure(provider, err)
}

// ResetProvider closes one provider's circuit (operator action).
func (r *Router) ResetProvider(provider string) {
	r.tracker.Reset(provider)
}

// HealthSnapshot returns per-provider circuit-breaker state keyed by
// provider name.
func (r *Router) HealthSnapshot() map[string]health.Metrics {
	return r.tracker.Snapshot()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
