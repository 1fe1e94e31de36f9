// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Faro Contributors

package catalog

import (
	"slices"
	"sort"

	faroerr "github.com/faro-dev/faro/pkg/errors"
)

// Billing selects how a candidate is priced.
type Billing string

const (
	// BillingTokens prices a call as in*rate_in + out*rate_out.
	BillingTokens Billing = "tokens"
	// BillingFlat prices a call at a fixed cost per operation
	// (image generation and similar).
	BillingFlat Billing = "flat"
)

// Candidate is a concrete (provider, model) pair able to satisfy a
// capability. Candidates are immutable after catalog construction.
type Candidate struct {
	Provider         string   `yaml:"provider" json:"provider"`
	Model            string   `yaml:"model" json:"model"`
	Billing          Billing  `yaml:"billing" json:"billing"`
	CostPerUnitIn    float64  `yaml:"cost_per_unit_in" json:"cost_per_unit_in"`
	CostPerUnitOut   float64  `yaml:"cost_per_unit_out" json:"cost_per_unit_out"`
	CostPerOperation float64  `yaml:"cost_per_operation" json:"cost_per_operation"`
	ContextLimit     int      `yaml:"context_limit" json:"context_limit"`
	Tags             []string `yaml:"tags" json:"tags,omitempty"`
	PriorityWeight   int      `yaml:"priority_weight" json:"priority_weight"`
}

// Ref returns the "provider/model" reference for the candidate.
func (c Candidate) Ref() string {
	return c.Provider + "/" + c.Model
}

// UnitCost is the sort key for cost ordering: the summed per-unit rates for
// token-billed candidates, the per-operation cost for flat-billed ones.
func (c Candidate) UnitCost() float64 {
	if c.Billing == BillingFlat {
		return c.CostPerOperation
	}
	return c.CostPerUnitIn + c.CostPerUnitOut
}

// HasTag reports whether the candidate carries the given capability tag.
func (c Candidate) HasTag(tag string) bool {
	return slices.Contains(c.Tags, tag)
}

func (c Candidate) validate() error {
	if c.Provider == "" || c.Model == "" {
		return faroerr.New(faroerr.CodeCatalogInvalidCandidate,
			"candidate must have provider and model",
			faroerr.FieldProvider(c.Provider), faroerr.FieldModel(c.Model))
	}
	switch c.Billing {
	case BillingTokens:
		if c.CostPerUnitIn < 0 || c.CostPerUnitOut < 0 {
			return faroerr.New(faroerr.CodeCatalogInvalidCandidate,
				"token-billed candidate must have non-negative unit costs",
				faroerr.FieldProvider(c.Provider), faroerr.FieldModel(c.Model))
		}
	case BillingFlat:
		if c.CostPerOperation < 0 {
			return faroerr.New(faroerr.CodeCatalogInvalidCandidate,
				"flat-billed candidate must have non-negative operation cost",
				faroerr.FieldProvider(c.Provider), faroerr.FieldModel(c.Model))
		}
	default:
		return faroerr.Errorf(faroerr.CodeCatalogInvalidCandidate,
			"candidate %s: billing must be one of [tokens, flat], got %q", c.Ref(), c.Billing)
	}
	if c.ContextLimit < 0 {
		return faroerr.Errorf(faroerr.CodeCatalogInvalidCandidate,
			"candidate %s: context_limit must be non-negative, got %d", c.Ref(), c.ContextLimit)
	}
	if c.PriorityWeight < 0 {
		return faroerr.Errorf(faroerr.CodeCatalogInvalidCandidate,
			"candidate %s: priority_weight must be non-negative, got %d", c.Ref(), c.PriorityWeight)
	}
	return nil
}

// Catalog owns the per-capability candidate sets. It is loaded once at
// startup and never mutated afterwards, so reads need no locking.
type Catalog struct {
	byCapability map[string][]Candidate
	providers    []string
}

// New builds a Catalog from per-capability candidate lists. Candidates for
// each capability are sorted ascending by unit cost, ties broken by
// descending priority weight. A (provider, model) pair may appear at most
// once per capability.
func New(capabilities map[string][]Candidate) (*Catalog, error) {
	byCap := make(map[string][]Candidate, len(capabilities))
	providerSet := make(map[string]struct{})

	for capability, candidates := range capabilities {
		if len(candidates) == 0 {
			return nil, faroerr.New(faroerr.CodeCatalogNoCandidates,
				"capability has no candidates",
				faroerr.FieldCapability(capability))
		}

		seen := make(map[string]struct{}, len(candidates))
		sorted := make([]Candidate, 0, len(candidates))
		for _, c := range candidates {
			if err := c.validate(); err != nil {
				return nil, faroerr.With(err, faroerr.FieldCapability(capability))
			}
			if _, dup := seen[c.Ref()]; dup {
				return nil, faroerr.New(faroerr.CodeCatalogDuplicateCandidate,
					"candidate registered twice for capability",
					faroerr.FieldCapability(capability),
					faroerr.FieldProvider(c.Provider),
					faroerr.FieldModel(c.Model))
			}
			seen[c.Ref()] = struct{}{}
			c.Tags = slices.Clone(c.Tags)
			sorted = append(sorted, c)
			providerSet[c.Provider] = struct{}{}
		}

		sort.SliceStable(sorted, func(i, j int) bool {
			if sorted[i].UnitCost() != sorted[j].UnitCost() {
				return sorted[i].UnitCost() < sorted[j].UnitCost()
			}
			return sorted[i].PriorityWeight > sorted[j].PriorityWeight
		})
		byCap[capability] = sorted
	}

	providers := make([]string, 0, len(providerSet))
	for p := range providerSet {
		providers = append(providers, p)
	}
	sort.Strings(providers)

	return &Catalog{byCapability: byCap, providers: providers}, nil
}

// CandidatesFor returns the cost-ordered candidates for a capability.
// The returned slice is a copy; callers may truncate or filter it freely.
func (c *Catalog) CandidatesFor(capability string) ([]Candidate, error) {
	candidates, ok := c.byCapability[capability]
	if !ok || len(candidates) == 0 {
		return nil, faroerr.New(faroerr.CodeCatalogNoCandidates,
			"no candidates configured for capability",
			faroerr.FieldCapability(capability))
	}
	return slices.Clone(candidates), nil
}

// Capabilities returns the configured capability names, sorted.
func (c *Catalog) Capabilities() []string {
	caps := make([]string, 0, len(c.byCapability))
	for name := range c.byCapability {
		caps = append(caps, name)
	}
	sort.Strings(caps)
	return caps
}

// Providers returns the distinct provider names referenced by any
// candidate, sorted. The health tracker seeds its records from this list.
func (c *Catalog) Providers() []string {
	return slices.Clone(c.providers)
}
