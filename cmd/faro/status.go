// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Faro Contributors

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/faro-dev/faro/pkg/health"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show router and provider status",
		Long:  "Check the running daemon's health endpoint and display per-provider circuit breaker state.",
		RunE:  runStatus,
	}

	cmd.Flags().String("address", "127.0.0.1:18650", "daemon address to check")

	return cmd
}

func runStatus(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("address")
	out := cmd.OutOrStdout()

	dc := newDaemonClient(addr)

	var liveness struct {
		Status string `json:"status"`
	}
	if err := dc.getJSON("/health", &liveness); err != nil {
		if errors.Is(err, ErrDaemonNotRunning) {
			_, _ = fmt.Fprintf(out, "Faro at %s is not running (connection refused)\n", addr)
			return nil
		}
		_, _ = fmt.Fprintf(out, "Faro at %s: %s\n", addr, err)
		return nil
	}
	_, _ = fmt.Fprintf(out, "Faro at %s: %s\n", addr, liveness.Status)

	var providers struct {
		Providers []health.Metrics `json:"providers"`
	}
	if err := dc.getJSON("/api/v1/providers/health", &providers); err != nil {
		_, _ = fmt.Fprintf(out, "  providers: %s\n", err)
		return nil
	}

	for _, m := range providers.Providers {
		state := "available"
		if !m.Available {
			state = "cooling down"
		}
		_, _ = fmt.Fprintf(out, "  %-16s %s  requests=%d failures=%d avg_latency=%.1fms\n",
			m.Provider, state, m.TotalRequests, m.TotalFailures, m.AvgLatencyMS)
	}
	return nil
}
