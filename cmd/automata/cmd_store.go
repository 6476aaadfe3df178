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
	"github.com/spf13/cobra"

	"github.com/AleutianAI/automata/pkg/eventlog"
	"github.com/AleutianAI/automata/pkg/grid"
	"github.com/AleutianAI/automata/pkg/gridstore"
	"github.com/AleutianAI/automata/pkg/logging"
	"github.com/AleutianAI/automata/pkg/ux"
)

// withClient runs fn against a freshly opened connection.
func withClient(cmd *cobra.Command, fn func(ctx context.Context, client *gridstore.Client, logger *logging.Logger) error) error {
	logger := newLogger(false)
	defer logger.Close()

	conn, err := connect(cmd.Context(), logger, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(cmd.Context(), conn.client, logger)
}

func runGrid(cmd *cobra.Command, args []string) error {
	return withClient(cmd, func(ctx context.Context, client *gridstore.Client, _ *logging.Logger) error {
		g, err := client.Pull(ctx)
		if err != nil {
			return err
		}
		printer(cmd).Grid(g)
		return nil
	})
}

// parseCoords parses "x,y" arguments, rejecting the whole list on the first
// bad entry.
func parseCoords(args []string) ([]grid.Coord, error) {
	coords := make([]grid.Coord, 0, len(args))
	for _, arg := range args {
		c, err := grid.ParseCoord(arg)
		if err != nil {
			return nil, err
		}
		coords = append(coords, c)
	}
	return coords, nil
}

func runActivate(cmd *cobra.Command, args []string) error {
	coords, err := parseCoords(args)
	if err != nil {
		return err
	}
	return withClient(cmd, func(ctx context.Context, client *gridstore.Client, _ *logging.Logger) error {
		var receipt gridstore.Receipt
		err := waiting(cmd, "waiting for the activation to finalize", func() error {
			var err error
			if len(coords) == 1 {
				receipt, err = client.ActivateCell(ctx, coords[0])
			} else {
				receipt, err = client.CommitBatch(ctx, coords)
			}
			return err
		})
		if err != nil {
			return err
		}
		printer(cmd).Receipt(fmt.Sprintf("activated %d cell(s)", len(coords)), receipt)
		return nil
	})
}

func runStep(cmd *cobra.Command, args []string) error {
	return withClient(cmd, func(ctx context.Context, client *gridstore.Client, _ *logging.Logger) error {
		var receipt gridstore.Receipt
		err := waiting(cmd, "waiting for the generation to finalize", func() error {
			var err error
			receipt, err = client.AdvanceGeneration(ctx)
			return err
		})
		if err != nil {
			return err
		}
		printer(cmd).Receipt("advanced one generation", receipt)
		return nil
	})
}

func runEvents(cmd *cobra.Command, args []string) error {
	return withClient(cmd, func(ctx context.Context, client *gridstore.Client, logger *logging.Logger) error {
		notes, err := client.Notifications(ctx)
		if err != nil {
			return err
		}
		history := eventlog.New(logger, nil)
		p := printer(cmd)
		for {
			select {
			case <-ctx.Done():
				if errors.Is(ctx.Err(), context.Canceled) {
					return nil
				}
				return ctx.Err()
			case n, ok := <-notes:
				if !ok {
					return nil
				}
				if history.Ingest(n) {
					records := history.Records()
					last := records[len(records)-1]
					p.Event(len(records), last.Block, last.String())
				}
			}
		}
	})
}

// printer styles output only when it goes to a terminal.
func printer(cmd *cobra.Command) *ux.Printer {
	return ux.NewPrinter(cmd.OutOrStdout(), cmd.OutOrStdout() == os.Stdout && stdoutIsTerminal())
}

// waiting shows a spinner on stderr while fn blocks on finalization.
func waiting(cmd *cobra.Command, message string, fn func() error) error {
	fd := os.Stderr.Fd()
	animate := cmd.ErrOrStderr() == os.Stderr && (isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd))
	return ux.WithSpinner(cmd.ErrOrStderr(), message, animate, fn)
}
