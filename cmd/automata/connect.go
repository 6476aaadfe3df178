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
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/automata/cmd/automata/config"
	"github.com/AleutianAI/automata/pkg/gridstore"
	"github.com/AleutianAI/automata/pkg/gridstore/ethstore"
	"github.com/AleutianAI/automata/pkg/gridstore/httpstore"
	"github.com/AleutianAI/automata/pkg/logging"
	"github.com/AleutianAI/automata/pkg/observability"
	"github.com/AleutianAI/automata/pkg/session"
)

func stdinIsTerminal() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func stdoutIsTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// authorizer picks the credential source for the configured mode.
func authorizer(c config.AuthConfig) (session.Authorizer, error) {
	switch c.Mode {
	case config.AuthAccount:
		return session.Account{Name: c.Account}, nil
	case config.AuthEnv:
		return session.EnvKey{Var: c.KeyEnv}, nil
	case config.AuthPrompt:
		if !stdinIsTerminal() && !c.Accessible {
			return nil, errors.New("prompt authorization needs a terminal; set auth.mode to env or auth.accessible")
		}
		return session.PromptKey{Accessible: c.Accessible}, nil
	}
	return nil, fmt.Errorf("unknown auth mode %q", c.Mode)
}

// dialer connects to the configured backend.
func dialer(c config.BackendConfig, logger *logging.Logger) session.Dialer {
	return session.DialerFunc(func(ctx context.Context, creds *session.Credentials) (gridstore.Contract, error) {
		switch c.Type {
		case config.BackendDevchain:
			store, err := httpstore.New(httpstore.Config{BaseURL: c.DevchainURL, Timeout: c.RequestTimeout}, logger)
			if err != nil {
				return nil, err
			}
			return store, nil
		case config.BackendEthereum:
			store, err := ethstore.Dial(ctx, ethstore.Config{
				RPCURL:      c.RPCURL,
				Address:     c.ContractAddress,
				ChainID:     c.ChainID,
				MineTimeout: c.MineTimeout,
			}, creds, logger)
			if err != nil {
				return nil, err
			}
			return store, nil
		}
		return nil, fmt.Errorf("unknown backend %q", c.Type)
	})
}

// connection is an open session plus the instrumented client over it.
type connection struct {
	ready  *session.Ready
	client *gridstore.Client
}

func (c *connection) Close() error {
	return c.client.Close()
}

// connect authorizes, dials and wraps the store in a Client. metrics may be
// nil.
func connect(ctx context.Context, logger *logging.Logger, metrics *observability.ClientMetrics) (*connection, error) {
	auth, err := authorizer(cfg.Auth)
	if err != nil {
		return nil, err
	}
	ready, err := session.Open(ctx, auth, dialer(cfg.Backend, logger))
	if err != nil {
		return nil, err
	}
	logger.Info("session opened",
		"session_id", ready.ID().String(),
		"account", ready.Account(),
		"backend", cfg.Backend.Type,
	)
	client := gridstore.NewClient(ready.Contract(),
		gridstore.WithLogger(logger),
		gridstore.WithMetrics(metrics),
		gridstore.WithTracerProvider(otel.GetTracerProvider()),
	)
	return &connection{ready: ready, client: client}, nil
}
