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
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/automata/cmd/automata/config"
	"github.com/AleutianAI/automata/pkg/logging"
	"github.com/AleutianAI/automata/pkg/telemetry"
)

// --- Global Command Variables ---
var (
	configPath  string
	backendFlag string
	logLevel    string

	// cfg is the effective configuration, set by PersistentPreRunE.
	cfg config.AutomataConfig

	// telemetryShutdown flushes exporters installed by PersistentPreRunE.
	telemetryShutdown func(context.Context) error

	rootCmd = &cobra.Command{
		Use:   "automata",
		Short: "Paint and evolve a shared cellular-automaton grid",
		Long: `automata keeps a local view of a grid held by a remote store,
lets you paint cells optimistically, and commits them in one batch.`,
		SilenceUsage:       true,
		PersistentPreRunE:  loadConfig,
		PersistentPostRunE: flushTelemetry,
	}

	boardCmd = &cobra.Command{
		Use:   "board",
		Short: "Open the interactive board (mouse paints, a commits, n steps)",
		Args:  cobra.NoArgs,
		RunE:  runBoard, // Defined in cmd_board.go
	}

	gridCmd = &cobra.Command{
		Use:   "grid",
		Short: "Print the authoritative grid once",
		Args:  cobra.NoArgs,
		RunE:  runGrid, // Defined in cmd_store.go
	}

	activateCmd = &cobra.Command{
		Use:   "activate x,y [x,y...]",
		Short: "Activate one or more cells in a single transaction",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runActivate, // Defined in cmd_store.go
	}

	stepCmd = &cobra.Command{
		Use:   "step",
		Short: "Advance the automaton one generation",
		Args:  cobra.NoArgs,
		RunE:  runStep, // Defined in cmd_store.go
	}

	eventsCmd = &cobra.Command{
		Use:   "events",
		Short: "Stream store events until interrupted",
		Args:  cobra.NoArgs,
		RunE:  runEvents, // Defined in cmd_store.go
	}

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE:  runConfig, // Defined in cmd_config.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.automata/automata.yaml)")
	rootCmd.PersistentFlags().StringVar(&backendFlag, "backend", "", "store backend: devchain or ethereum")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(boardCmd, gridCmd, activateCmd, stepCmd, eventsCmd, configCmd)
}

// loadConfig layers flags over the file and environment.
func loadConfig(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(configPath, os.Stderr)
	if err != nil {
		return err
	}
	if backendFlag != "" {
		loaded.Backend.Type = backendFlag
	}
	if logLevel != "" {
		loaded.Logging.Level = logLevel
	}
	if err := config.Validate(loaded); err != nil {
		return err
	}
	cfg = loaded

	shutdown, err := telemetry.Init(cmd.Context(), cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	telemetryShutdown = shutdown
	return nil
}

func flushTelemetry(cmd *cobra.Command, args []string) error {
	if telemetryShutdown == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return telemetryShutdown(ctx)
}

// newLogger builds the command logger. quiet sends records only to the log
// directory, for commands that own the terminal.
func newLogger(quiet bool) *logging.Logger {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logging.LevelInfo
	}
	lc := logging.Config{
		Level:   level,
		Service: "automata",
		JSON:    cfg.Logging.JSON,
		Quiet:   quiet,
	}
	if quiet {
		lc.LogDir = cfg.Logging.Dir
	}
	return logging.New(lc)
}
