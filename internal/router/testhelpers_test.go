// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Faro Contributors

package router_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/faro-dev/faro/internal/catalog"
)

// testCatalog builds a three-provider fast-text capability with distinct
// unit costs so cost ordering is openai < anthropic < google.
func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()

	cat, err := catalog.New(map[string][]catalog.Candidate{
		"fast-text": {
			{
				Provider: "openai", Model: "gpt-4.1-mini",
				Billing:       catalog.BillingTokens,
				CostPerUnitIn: 0.001, CostPerUnitOut: 0.002,
				PriorityWeight: 5,
			},
			{
				Provider: "anthropic", Model: "claude-haiku-4-5",
				Billing:       catalog.BillingTokens,
				CostPerUnitIn: 0.002, CostPerUnitOut: 0.004,
				PriorityWeight: 5,
			},
			{
				Provider: "google", Model: "gemini-2.5-flash",
				Billing:       catalog.BillingTokens,
				CostPerUnitIn: 0.003, CostPerUnitOut: 0.006,
				PriorityWeight: 5,
			},
		},
		"image-gen": {
			{
				Provider: "stability", Model: "sd3-large",
				Billing: catalog.BillingFlat, CostPerOperation: 0.065,
			},
		},
	})
	require.NoError(t, err)
	return cat
}

// wideCatalog builds one capability with n ascending-cost candidates on
// distinct providers, for truncation tests.
func wideCatalog(t *testing.T, n int) *catalog.Catalog {
	t.Helper()

	providers := []string{"p0", "p1", "p2", "p3", "p4", "p5", "p6", "p7"}
	require.LessOrEqual(t, n, len(providers))

	candidates := make([]catalog.Candidate, n)
	for i := 0; i < n; i++ {
		candidates[i] = catalog.Candidate{
			Provider: providers[i], Model: "m",
			Billing:       catalog.BillingTokens,
			CostPerUnitIn: float64(i+1) * 0.001, CostPerUnitOut: float64(i+1) * 0.001,
		}
	}

	cat, err := catalog.New(map[string][]catalog.Candidate{"text": candidates})
	require.NoError(t, err)
	return cat
}

// deadGate is a HealthGate that reports every provider unhealthy even
// after a reset, to exercise the selector's exhaustion path.
type deadGate struct{ resets int }

func (g *deadGate) IsHealthy(string) bool { return false }
func (g *deadGate) ResetAll()             { g.resets++ }
