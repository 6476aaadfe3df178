// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/automata/cmd/automata/config"
	"github.com/AleutianAI/automata/pkg/grid"
	"github.com/AleutianAI/automata/pkg/gridstore/httpstore"
	"github.com/AleutianAI/automata/pkg/logging"
	"github.com/AleutianAI/automata/pkg/session"
	"github.com/AleutianAI/automata/services/devchain"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func startDevchain(t *testing.T, w, h int) string {
	t.Helper()
	svc, err := devchain.New(devchain.ServerConfig{GinMode: gin.TestMode, Chain: devchain.Config{Width: w, Height: h}}, nil)
	require.NoError(t, err)
	server := httptest.NewServer(svc.Router())
	t.Cleanup(server.Close)
	return server.URL
}

// execute runs the root command against a fresh HOME so no user config leaks
// in.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	configPath, backendFlag, logLevel = "", "", ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestParseCoords(t *testing.T) {
	coords, err := parseCoords([]string{"0,1", " 2, 3 "})
	require.NoError(t, err)
	assert.Equal(t, []grid.Coord{{X: 0, Y: 1}, {X: 2, Y: 3}}, coords)

	_, err = parseCoords([]string{"0,1", "2"})
	assert.Error(t, err)
	_, err = parseCoords([]string{"-1,0"})
	assert.Error(t, err)
}

func TestAuthorizer(t *testing.T) {
	auth, err := authorizer(config.AuthConfig{Mode: config.AuthAccount, Account: "alice"})
	require.NoError(t, err)
	assert.Equal(t, session.Account{Name: "alice"}, auth)

	auth, err = authorizer(config.AuthConfig{Mode: config.AuthEnv, KeyEnv: "MY_KEY"})
	require.NoError(t, err)
	assert.Equal(t, session.EnvKey{Var: "MY_KEY"}, auth)

	auth, err = authorizer(config.AuthConfig{Mode: config.AuthPrompt, Accessible: true})
	require.NoError(t, err)
	assert.Equal(t, session.PromptKey{Accessible: true}, auth)

	_, err = authorizer(config.AuthConfig{Mode: "oauth"})
	assert.Error(t, err)
}

func TestDialer_Devchain(t *testing.T) {
	url := startDevchain(t, 2, 3)
	dial := dialer(config.BackendConfig{Type: config.BackendDevchain, DevchainURL: url}, logging.Nop())

	contract, err := dial.Dial(context.Background(), &session.Credentials{Account: "alice"})
	require.NoError(t, err)
	defer contract.Close()

	_, ok := contract.(*httpstore.Store)
	assert.True(t, ok)
	w, err := contract.Width(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), w)
}

func TestDialer_FailureIsNilContract(t *testing.T) {
	dial := dialer(config.BackendConfig{Type: config.BackendDevchain, DevchainURL: "ftp://nowhere"}, logging.Nop())
	contract, err := dial.Dial(context.Background(), &session.Credentials{Account: "alice"})
	assert.Error(t, err)
	assert.Nil(t, contract)

	_, err = dialer(config.BackendConfig{Type: "postgres"}, logging.Nop()).Dial(context.Background(), nil)
	assert.Error(t, err)
}

func TestCommands_DevchainRoundTrip(t *testing.T) {
	url := startDevchain(t, 3, 3)
	t.Setenv("AUTOMATA_BACKEND_DEVCHAIN_URL", url)
	t.Setenv("AUTOMATA_LOG_LEVEL", "error")

	out, err := execute(t, "activate", "0,1", "1,1", "2,1")
	require.NoError(t, err)
	assert.Contains(t, out, "activated 3 cell(s)")

	out, err = execute(t, "grid")
	require.NoError(t, err)
	assert.Contains(t, out, "3x3, 3 alive")
	assert.Contains(t, out, ".#.\n.#.\n.#.")

	// A vertical blinker turns horizontal.
	out, err = execute(t, "step")
	require.NoError(t, err)
	assert.Contains(t, out, "advanced one generation")

	out, err = execute(t, "grid")
	require.NoError(t, err)
	assert.Contains(t, out, "...\n###\n...")
}

func TestCommands_RejectedActivation(t *testing.T) {
	url := startDevchain(t, 2, 2)
	t.Setenv("AUTOMATA_BACKEND_DEVCHAIN_URL", url)
	t.Setenv("AUTOMATA_LOG_LEVEL", "error")

	_, err := execute(t, "activate", "5,5")
	assert.Error(t, err)

	_, err = execute(t, "activate", "nope")
	assert.Error(t, err)
}

func TestCommands_UnreachableStore(t *testing.T) {
	t.Setenv("AUTOMATA_BACKEND_DEVCHAIN_URL", "http://127.0.0.1:1")
	t.Setenv("AUTOMATA_LOG_LEVEL", "error")

	_, err := execute(t, "grid")
	require.Error(t, err)
	assert.False(t, errors.Is(err, session.ErrAuthorizationDenied), "dialing is lazy; the failure is the pull")
}

func TestCommands_ConfigPrintsEffectiveValues(t *testing.T) {
	t.Setenv("AUTOMATA_POLL_INTERVAL", "3s")
	out, err := execute(t, "config", "--backend", "ethereum")
	require.NoError(t, err)
	assert.Contains(t, out, "type: ethereum")
	assert.Contains(t, out, "interval: 3s")
}
