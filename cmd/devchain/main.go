// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command devchain runs the development grid store.
//
// It serves the six store functions plus an event stream over HTTP, pacing
// mutations into blocks so client reconciliation can be exercised locally
// without a blockchain node.
//
// # Environment Variables
//
//   - DEVCHAIN_ADDR: Listen address (default: :8545)
//   - DEVCHAIN_WIDTH, DEVCHAIN_HEIGHT: Grid dimensions (default: 20x20)
//   - DEVCHAIN_BLOCK_TIME: Minimum spacing between blocks (default: 1s)
//   - DEVCHAIN_LOG_LEVEL: debug, info, warn, error (default: info)
//   - DEVCHAIN_TRACE_EXPORTER: none, stdout, otlp (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP gRPC collector (default: localhost:4317)
//
// # Usage
//
//	go build -o devchain ./cmd/devchain
//	DEVCHAIN_BLOCK_TIME=200ms ./devchain
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/AleutianAI/automata/pkg/logging"
	"github.com/AleutianAI/automata/pkg/telemetry"
	"github.com/AleutianAI/automata/services/devchain"
)

type envConfig struct {
	Addr          string        `env:"DEVCHAIN_ADDR" envDefault:":8545"`
	Width         int           `env:"DEVCHAIN_WIDTH" envDefault:"20"`
	Height        int           `env:"DEVCHAIN_HEIGHT" envDefault:"20"`
	BlockTime     time.Duration `env:"DEVCHAIN_BLOCK_TIME" envDefault:"1s"`
	LogLevel      string        `env:"DEVCHAIN_LOG_LEVEL" envDefault:"info"`
	TraceExporter string        `env:"DEVCHAIN_TRACE_EXPORTER" envDefault:"none"`
	OTLPEndpoint  string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
}

func main() {
	cfg, err := env.ParseAs[envConfig]()
	if err != nil {
		log.Fatalf("Failed to read environment: %v", err)
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Invalid DEVCHAIN_LOG_LEVEL: %v", err)
	}
	logger := logging.New(logging.Config{Level: level, Service: "devchain", JSON: true})
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telCfg := telemetry.DefaultConfig("automata-devchain")
	telCfg.TraceExporter = cfg.TraceExporter
	telCfg.OTLPEndpoint = cfg.OTLPEndpoint
	shutdown, err := telemetry.Init(ctx, telCfg)
	if err != nil {
		logger.Error("telemetry init failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	logger.Info("Starting development store",
		"addr", cfg.Addr,
		"width", cfg.Width,
		"height", cfg.Height,
		"block_time", cfg.BlockTime,
	)

	svc, err := devchain.New(devchain.ServerConfig{
		Addr: cfg.Addr,
		Chain: devchain.Config{
			Width:     cfg.Width,
			Height:    cfg.Height,
			BlockTime: cfg.BlockTime,
		},
	}, logger)
	if err != nil {
		logger.Error("failed to create development store", "error", err)
		os.Exit(1)
	}

	if err := svc.Run(ctx); err != nil {
		logger.Error("development store stopped", "error", err)
		os.Exit(1)
	}
}
