// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Faro Contributors

package router

import (
	"strings"

	"github.com/faro-dev/faro/internal/catalog"
	"github.com/faro-dev/faro/internal/cost"
	faroerr "github.com/faro-dev/faro/pkg/errors"
)

// DefaultMaxAttempts caps how many candidates one dispatch will try.
const DefaultMaxAttempts = 5

// HealthGate is the slice of the circuit breaker the selector needs.
type HealthGate interface {
	IsHealthy(provider string) bool
	ResetAll()
}

// Selector produces the ordered attempt list for a request by combining
// the catalog's cost ordering with circuit-breaker state and the request
// budget.
type Selector struct {
	catalog *catalog.Catalog
	health  HealthGate
}

// NewSelector creates a Selector over the given catalog and health gate.
func NewSelector(cat *catalog.Catalog, gate HealthGate) *Selector {
	return &Selector{catalog: cat, health: gate}
}

// Select returns the candidates to attempt for the request, cheapest
// first, truncated to maxAttempts (DefaultMaxAttempts when zero).
// overBudget is true when no candidate fit the request budget and the
// single cheapest candidate was chosen anyway; budget overrun degrades,
// it never fails.
//
// When every candidate is unhealthy the tracker is reset once and the
// health filter retried; only if that still yields nothing does Select
// return a none-available error naming every candidate considered.
func (s *Selector) Select(req Request, maxAttempts int) (candidates []catalog.Candidate, overBudget bool, err error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	all, err := s.catalog.CandidatesFor(req.Capability)
	if err != nil {
		return nil, false, err
	}

	healthy := s.filterHealthy(all)
	if len(healthy) == 0 {
		// Last-resort anti-deadlock step: close every circuit and retry
		// the health filter once.
		s.health.ResetAll()
		healthy = s.filterHealthy(all)
	}
	if len(healthy) == 0 {
		return nil, false, faroerr.New(faroerr.CodeRouterNoneAvailable,
			"no healthy candidate for capability, considered ["+joinRefs(all)+"]",
			faroerr.FieldCapability(req.Capability),
			faroerr.Field("considered", refs(all)))
	}

	if req.BudgetUSD > 0 {
		affordable := make([]catalog.Candidate, 0, len(healthy))
		for _, c := range healthy {
			if cost.Estimate(c, req.InputSize, req.OutputSize) <= req.BudgetUSD {
				affordable = append(affordable, c)
			}
		}
		if len(affordable) == 0 {
			// Nothing fits the budget: degrade to the cheapest healthy
			// candidate rather than failing the request.
			healthy = healthy[:1]
			overBudget = true
		} else {
			healthy = affordable
		}
	}

	if len(healthy) > maxAttempts {
		healthy = healthy[:maxAttempts]
	}
	return healthy, overBudget, nil
}

func (s *Selector) filterHealthy(all []catalog.Candidate) []catalog.Candidate {
	healthy := make([]catalog.Candidate, 0, len(all))
	for _, c := range all {
		if s.health.IsHealthy(c.Provider) {
			healthy = append(healthy, c)
		}
	}
	return healthy
}

func refs(candidates []catalog.Candidate) []string {
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.Ref()
	}
	return out
}

func joinRefs(candidates []catalog.Candidate) string {
	return strings.Join(refs(candidates), ", ")
}
