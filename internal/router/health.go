// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Faro Contributors

package router

import (
	"strings"
	"sync"
	"time"

	faroerr "github.com/faro-dev/faro/pkg/errors"
	"github.com/faro-dev/faro/pkg/health"
)

const (
	// DefaultCooldown is the duration after which an unhealthy provider
	// becomes eligible for one half-open attempt.
	DefaultCooldown = 300 * time.Second

	// DefaultFailureThreshold is the number of consecutive failures that
	// opens a provider's circuit.
	DefaultFailureThreshold = 3

	// latencyEMAWeight is the weight given to the newest sample when
	// updating a provider's average latency.
	latencyEMAWeight = 0.2
)

// providerRecord is the mutable circuit-breaker state for one provider.
// Each record carries its own lock so concurrent dispatches touching
// different providers never contend with each other.
type providerRecord struct {
	mu sync.Mutex

	healthy             bool
	consecutiveFailures uint64
	totalRequests       uint64
	totalFailures       uint64
	lastSuccess         time.Time
	lastFailure         time.Time
	avgLatencyMS        float64
}

// Tracker is the per-provider circuit breaker. Records are created lazily
// and healthy on first reference and live for the process lifetime; health
// is intentionally cold after a restart.
type Tracker struct {
	mu      sync.RWMutex
	records map[string]*providerRecord

	cooldown  time.Duration
	threshold uint64
	nowFunc   func() time.Time // for testing
}

// NewTracker creates a Tracker with the given cooldown and consecutive
// failure threshold. Returns an error if either is not positive.
func NewTracker(cooldown time.Duration, threshold uint64) (*Tracker, error) {
	if cooldown <= 0 {
		return nil, faroerr.Errorf(faroerr.CodeConfigValidateInvalidValue,
			"health tracker cooldown must be positive, got %s", cooldown)
	}
	if threshold == 0 {
		return nil, faroerr.Errorf(faroerr.CodeConfigValidateInvalidValue,
			"health tracker failure threshold must be positive, got 0")
	}
	return &Tracker{
		records:   make(map[string]*providerRecord),
		cooldown:  cooldown,
		threshold: threshold,
		nowFunc:   time.Now,
	}, nil
}

// SetNowFunc overrides the time source (for testing).
func (t *Tracker) SetNowFunc(fn func() time.Time) {
	t.mu.Lock()
	t.nowFunc = fn
	t.mu.Unlock()
}

func (t *Tracker) now() time.Time {
	t.mu.RLock()
	fn := t.nowFunc
	t.mu.RUnlock()
	return fn()
}

// Seed creates healthy records for the given providers so every provider
// referenced by the catalog has an entry before the first selection.
func (t *Tracker) Seed(providers []string) {
	for _, p := range providers {
		t.record(p)
	}
}

func (t *Tracker) record(provider string) *providerRecord {
	t.mu.RLock()
	rec, ok := t.records[provider]
	t.mu.RUnlock()
	if ok {
		return rec
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if rec, ok = t.records[provider]; ok {
		return rec
	}
	rec = &providerRecord{healthy: true}
	t.records[provider] = rec
	return rec
}

// IsHealthy reports whether the provider may be attempted: its circuit is
// closed, or it is open but the cooldown has elapsed since the last
// failure (half-open, one more attempt is allowed).
func (t *Tracker) IsHealthy(provider string) bool {
	rec := t.record(provider)
	now := t.now()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	return t.isHealthyLocked(rec, now)
}

// isHealthyLocked requires rec.mu to be held.
func (t *Tracker) isHealthyLocked(rec *providerRecord, now time.Time) bool {
	if rec.healthy {
		return true
	}
	return now.Sub(rec.lastFailure) >= t.cooldown
}

// RecordSuccess marks a successful call: the circuit closes, the
// consecutive failure count resets, and the latency average is updated via
// an exponential moving average.
func (t *Tracker) RecordSuccess(provider string, latency time.Duration) {
	rec := t.record(provider)
	now := t.now()

	rec.mu.Lock()
	defer rec.mu.Unlock()

	rec.consecutiveFailures = 0
	rec.healthy = true
	rec.totalRequests++
	rec.lastSuccess = now

	sample := float64(latency) / float64(time.Millisecond)
	if rec.avgLatencyMS == 0 {
		rec.avgLatencyMS = sample
	} else {
		rec.avgLatencyMS = latencyEMAWeight*sample + (1-latencyEMAWeight)*rec.avgLatencyMS
	}
}

// RecordFailure records a failed call. Reaching the consecutive failure
// threshold opens the circuit, unless the error reads as quota or billing
// exhaustion, which is treated as transient and never opens the circuit. A
// failure while half-open re-opens the circuit and restarts the cooldown.
func (t *Tracker) RecordFailure(provider string, err error) {
	rec := t.record(provider)
	now := t.now()

	rec.mu.Lock()
	defer rec.mu.Unlock()

	rec.consecutiveFailures++
	rec.totalFailures++
	rec.totalRequests++
	rec.lastFailure = now

	if rec.consecutiveFailures >= t.threshold && !IsQuotaExhausted(err) {
		rec.healthy = false
	}
}

// Reset closes one provider's circuit and clears its consecutive failure
// count. Cumulative totals are preserved.
func (t *Tracker) Reset(provider string) {
	rec := t.record(provider)

	rec.mu.Lock()
	rec.consecutiveFailures = 0
	rec.healthy = true
	rec.mu.Unlock()
}

// ResetAll closes every provider's circuit. The selector uses this as its
// last resort when every candidate is unhealthy, so a capability is never
// deadlocked with nothing to try.
func (t *Tracker) ResetAll() {
	t.mu.RLock()
	recs := make([]*providerRecord, 0, len(t.records))
	for _, rec := range t.records {
		recs = append(recs, rec)
	}
	t.mu.RUnlock()

	for _, rec := range recs {
		rec.mu.Lock()
		rec.consecutiveFailures = 0
		rec.healthy = true
		rec.mu.Unlock()
	}
}

// Snapshot returns a point-in-time health snapshot for every known
// provider, keyed by provider name.
func (t *Tracker) Snapshot() map[string]health.Metrics {
	t.mu.RLock()
	names := make([]string, 0, len(t.records))
	for name := range t.records {
		names = append(names, name)
	}
	t.mu.RUnlock()

	now := t.now()
	out := make(map[string]health.Metrics, len(names))
	for _, name := range names {
		rec := t.record(name)

		rec.mu.Lock()
		m := health.Metrics{
			Provider:            name,
			ConsecutiveFailures: rec.consecutiveFailures,
			TotalRequests:       rec.totalRequests,
			TotalFailures:       rec.totalFailures,
			AvgLatencyMS:        rec.avgLatencyMS,
			Available:           t.isHealthyLocked(rec, now),
		}
		if !rec.lastSuccess.IsZero() {
			ts := rec.lastSuccess
			m.LastSuccessAt = &ts
		}
		if !rec.lastFailure.IsZero() {
			ts := rec.lastFailure
			m.LastFailureAt = &ts
		}
		if !rec.healthy {
			until := rec.lastFailure.Add(t.cooldown)
			m.CooldownUntil = &until
		}
		rec.mu.Unlock()

		out[name] = m
	}
	return out
}

// quotaPatterns are substrings of provider error text treated as temporary
// credit exhaustion rather than a broken provider. Tripping the breaker for
// these would starve a provider that is merely out of prepaid credit.
var quotaPatterns = []string{"quota", "credit", "billing", "insufficient funds"}

// IsQuotaExhausted reports whether the error text matches a quota, credit,
// or billing exhaustion pattern.
func IsQuotaExhausted(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range quotaPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
