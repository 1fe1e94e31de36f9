// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Faro Contributors

package main

import (
	"log/slog"

	"github.com/faro-dev/faro/internal/catalog"
	"github.com/faro-dev/faro/internal/config"
	"github.com/faro-dev/faro/internal/router"
	"github.com/faro-dev/faro/internal/server"
	faroerr "github.com/faro-dev/faro/pkg/errors"
)

// App holds all wired subsystems. There is no global router instance;
// everything is constructed here and injected downward.
type App struct {
	Catalog  *catalog.Catalog
	Router   *router.Router
	Adapters *router.AdapterRegistry
	Server   *server.Server
}

// WireApp creates all subsystems and wires them together.
func WireApp(cfg *config.Config) (*App, error) {
	// 1. Provider catalog — loaded once, immutable afterwards.
	cat, err := catalog.LoadFile(cfg.Catalog.Path)
	if err != nil {
		return nil, faroerr.Wrapf(err, faroerr.CodeCLISetupFailure, "loading catalog %s", cfg.Catalog.Path)
	}
	slog.Info("catalog loaded",
		"path", cfg.Catalog.Path,
		"capabilities", len(cat.Capabilities()),
		"providers", len(cat.Providers()))

	// 2. Circuit breaker tracker. Health is cold on restart.
	tracker, err := router.NewTracker(cfg.Routing.Cooldown, cfg.Routing.FailureThreshold)
	if err != nil {
		return nil, err
	}

	// 3. Router with injected backoff strategy.
	var backoff router.Backoff
	if cfg.Routing.CandidateRetries > 0 {
		backoff = router.ExponentialBackoff(cfg.Routing.BackoffBase, cfg.Routing.BackoffMax)
	}
	rt := router.New(cat, tracker, router.Config{
		CandidateRetries: cfg.Routing.CandidateRetries,
		Backoff:          backoff,
		DefaultBudgetUSD: cfg.Routing.DefaultBudgetUSD,
	})

	// 4. Adapter registry. Provider adapters are registered by the host
	// application embedding faro; the daemon starts with an empty registry.
	adapters := router.NewAdapterRegistry()

	// 5. HTTP observation surface.
	srv, err := server.New(server.Config{
		ListenAddr:  cfg.Server.Listen,
		CORSOrigins: cfg.Server.CORSOrigins,
	}, &server.Deps{
		Router:  rt,
		Catalog: cat,
	})
	if err != nil {
		return nil, faroerr.Wrapf(err, faroerr.CodeCLISetupFailure, "creating server")
	}

	return &App{
		Catalog:  cat,
		Router:   rt,
		Adapters: adapters,
		Server:   srv,
	}, nil
}
