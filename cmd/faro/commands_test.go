// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Faro Contributors

package main

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommand(t *testing.T) {
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"version"})

	err := root.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "faro")
	assert.Contains(t, buf.String(), "commit")
}

func TestRootHelpListsSubcommands(t *testing.T) {
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"--help"})

	err := root.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "start")
	assert.Contains(t, buf.String(), "status")
	assert.Contains(t, buf.String(), "version")
}

func TestStatusCommand_DaemonNotRunning(t *testing.T) {
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	// Port 1 is never listening.
	root.SetArgs([]string{"status", "--address", "127.0.0.1:1"})

	err := root.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "not running")
}

func TestStatusCommand_ShowsProviderState(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"status":"ok"}`)
	})
	mux.HandleFunc("/api/v1/providers/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"providers":[
			{"provider":"anthropic","available":true,"total_requests":12,"total_failures":0,"avg_latency_ms":230.5,"consecutive_failures":0},
			{"provider":"openai","available":false,"total_requests":9,"total_failures":4,"avg_latency_ms":512.0,"consecutive_failures":3}
		]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	addr := strings.TrimPrefix(srv.URL, "http://")

	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"status", "--address", addr})

	err := root.Execute()
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "ok")
	assert.Contains(t, out, "anthropic")
	assert.Contains(t, out, "available")
	assert.Contains(t, out, "cooling down")
}
