// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Faro Contributors

package server

import (
	"context"
	"log/slog"
	"net/http"
	"sort"

	"github.com/danielgtaylor/huma/v2"

	"github.com/faro-dev/faro/internal/catalog"
	"github.com/faro-dev/faro/internal/cost"
	"github.com/faro-dev/faro/internal/router"
	faroerr "github.com/faro-dev/faro/pkg/errors"
	"github.com/faro-dev/faro/pkg/health"
)

// RouterService is the slice of the router the HTTP surface needs.
// An interface so handlers can be tested against a stub.
type RouterService interface {
	SelectCandidates(req router.Request) ([]catalog.Candidate, error)
	HealthSnapshot() map[string]health.Metrics
	ResetProvider(provider string)
}

// CatalogService exposes read-only catalog lookups to handlers.
type CatalogService interface {
	Capabilities() []string
}

// Deps holds dependencies injected into route handlers.
type Deps struct {
	Router  RouterService
	Catalog CatalogService
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "provider-health",
		Method:      http.MethodGet,
		Path:        "/api/v1/providers/health",
		Summary:     "Per-provider circuit breaker state",
		Tags:        []string{"providers"},
	}, s.handleProviderHealth)

	huma.Register(s.api, huma.Operation{
		OperationID: "reset-provider",
		Method:      http.MethodPost,
		Path:        "/api/v1/providers/{name}/reset",
		Summary:     "Close a provider's circuit breaker",
		Tags:        []string{"providers"},
	}, s.handleResetProvider)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-capabilities",
		Method:      http.MethodGet,
		Path:        "/api/v1/capabilities",
		Summary:     "List configured capabilities",
		Tags:        []string{"capabilities"},
	}, s.handleListCapabilities)

	huma.Register(s.api, huma.Operation{
		OperationID: "preview-candidates",
		Method:      http.MethodGet,
		Path:        "/api/v1/capabilities/{capability}/candidates",
		Summary:     "Preview the ordered attempt list for a capability",
		Tags:        []string{"capabilities"},
	}, s.handlePreviewCandidates)
}

// --- Request/Response types for huma ---

type providerHealthOutput struct {
	Body struct {
		Providers []health.Metrics `json:"providers"`
	}
}

type resetProviderInput struct {
	Name string `path:"name"`
}
type resetProviderOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

type listCapabilitiesOutput struct {
	Body struct {
		Capabilities []string `json:"capabilities"`
	}
}

type previewCandidatesInput struct {
	Capability  string  `path:"capability"`
	BudgetUSD   float64 `query:"budget_usd" minimum:"0" doc:"Optional budget in USD, 0 = unconstrained"`
	InputSize   int     `query:"input_size" minimum:"0" doc:"Estimated input units"`
	OutputSize  int     `query:"output_size" minimum:"0" doc:"Estimated output units"`
	MaxAttempts int     `query:"max_attempts" minimum:"0" doc:"Attempt list cap, 0 = default"`
}

// candidatePreview is one row of a selection preview, a candidate plus its
// cost estimate for the previewed request size.
type candidatePreview struct {
	catalog.Candidate
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
}

type previewCandidatesOutput struct {
	Body struct {
		Capability string             `json:"capability"`
		Candidates []candidatePreview `json:"candidates"`
	}
}

// --- Handlers ---

func (s *Server) handleProviderHealth(_ context.Context, _ *struct{}) (*providerHealthOutput, error) {
	snapshot := s.deps.Router.HealthSnapshot()

	providers := make([]health.Metrics, 0, len(snapshot))
	for _, m := range snapshot {
		providers = append(providers, m)
	}
	sort.Slice(providers, func(i, j int) bool {
		return providers[i].Provider < providers[j].Provider
	})

	out := &providerHealthOutput{}
	out.Body.Providers = providers
	return out, nil
}

func (s *Server) handleResetProvider(_ context.Context, input *resetProviderInput) (*resetProviderOutput, error) {
	if !s.knownProvider(input.Name) {
		return nil, huma.Error404NotFound("provider not found: " + input.Name)
	}

	s.deps.Router.ResetProvider(input.Name)
	slog.Info("provider circuit reset by operator", "provider", input.Name)

	out := &resetProviderOutput{}
	out.Body.Status = "reset"
	return out, nil
}

func (s *Server) handleListCapabilities(_ context.Context, _ *struct{}) (*listCapabilitiesOutput, error) {
	out := &listCapabilitiesOutput{}
	out.Body.Capabilities = s.deps.Catalog.Capabilities()
	return out, nil
}

func (s *Server) handlePreviewCandidates(_ context.Context, input *previewCandidatesInput) (*previewCandidatesOutput, error) {
	candidates, err := s.deps.Router.SelectCandidates(router.Request{
		Capability:  input.Capability,
		InputSize:   input.InputSize,
		OutputSize:  input.OutputSize,
		BudgetUSD:   input.BudgetUSD,
		MaxAttempts: input.MaxAttempts,
	})
	if err != nil {
		return nil, huma.NewError(faroerr.HTTPStatus(err), err.Error())
	}

	previews := make([]candidatePreview, len(candidates))
	for i, c := range candidates {
		previews[i] = candidatePreview{
			Candidate:        c,
			EstimatedCostUSD: cost.Estimate(c, input.InputSize, input.OutputSize),
		}
	}

	out := &previewCandidatesOutput{}
	out.Body.Capability = input.Capability
	out.Body.Candidates = previews
	return out, nil
}

func (s *Server) knownProvider(name string) bool {
	_, ok := s.deps.Router.HealthSnapshot()[name]
	return ok
}
