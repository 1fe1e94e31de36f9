// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Faro Contributors

package health

import "time"

// Metrics exposes the current circuit-breaker state of one provider for
// monitoring and operator visibility. All fields are point-in-time
// snapshots safe to serialize to JSON.
type Metrics struct {
	Provider            string     `json:"provider"`
	ConsecutiveFailures uint64     `json:"consecutive_failures"`
	TotalRequests       uint64     `json:"total_requests"`
	TotalFailures       uint64     `json:"total_failures"`
	AvgLatencyMS        float64    `json:"avg_latency_ms"`
	LastSuccessAt       *time.Time `json:"last_success_at,omitempty"`
	LastFailureAt       *time.Time `json:"last_failure_at,omitempty"`
	CooldownUntil       *time.Time `json:"cooldown_until,omitempty"`
	Available           bool       `json:"available"`
}
