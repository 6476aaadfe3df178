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
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/automata/pkg/eventlog"
	"github.com/AleutianAI/automata/pkg/gridstore"
	"github.com/AleutianAI/automata/pkg/observability"
	"github.com/AleutianAI/automata/pkg/overlay"
	"github.com/AleutianAI/automata/pkg/poller"
	"github.com/AleutianAI/automata/pkg/ux"
)

// runBoard wires the engine, poller, history and board together and runs
// them until the board quits or the process is interrupted.
func runBoard(cmd *cobra.Command, args []string) error {
	if !stdoutIsTerminal() {
		return errors.New("board needs a terminal; use the grid, activate and step commands instead")
	}

	// The board owns the terminal, so records go to the log directory only.
	logger := newLogger(true)
	defer logger.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewClientMetrics(reg)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	conn, err := connect(ctx, logger, metrics)
	if err != nil {
		return err
	}
	defer conn.Close()

	engine := overlay.New(conn.client, overlay.WithLogger(logger), overlay.WithMetrics(metrics))
	history := eventlog.New(logger, metrics)

	// The program is created after the poller, so the hook resolves it late.
	var program *tea.Program
	send := ux.SenderFunc(func(msg tea.Msg) {
		if program != nil {
			program.Send(msg)
		}
	})

	poll := poller.New(engine, poller.Config{
		Interval: cfg.Poll.Interval,
		OnCycle:  ux.CycleNotifier(send),
	}, logger, metrics)

	board := ux.NewBoard(ctx, engine, poll, history, ux.BoardConfig{
		Account: conn.ready.Account(),
	})
	program = ux.NewProgram(ctx, board, nil, nil)

	g, gctx := errgroup.WithContext(ctx)

	if err := poll.Start(gctx); err != nil {
		return err
	}
	defer poll.Stop()

	g.Go(func() error {
		notes, err := conn.client.Notifications(gctx)
		if errors.Is(err, gridstore.ErrNotificationsUnsupported) {
			logger.Warn("event history disabled", "error", err)
			return nil
		}
		if err != nil {
			// History is optional; the board still works from polling.
			logger.Error("event stream unavailable", "error", err)
			return nil
		}
		return history.Consume(gctx, notes)
	})

	changed, unsubscribe := history.Subscribe()
	defer unsubscribe()
	g.Go(func() error {
		return ux.ForwardEvents(gctx, send, changed)
	})

	if cfg.Metrics.Listen != "" {
		srv := metricsServer(cfg.Metrics.Listen, reg)
		g.Go(func() error {
			logger.Info("metrics endpoint listening", "addr", cfg.Metrics.Listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		defer cancel()
		_, err := program.Run()
		if errors.Is(err, tea.ErrProgramKilled) {
			return nil
		}
		return err
	})

	err = g.Wait()
	if board.Err() != nil {
		logger.Warn("board closed with error", "error", board.Err())
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func metricsServer(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
