// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package devchain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/automata/pkg/logging"
	"github.com/AleutianAI/automata/pkg/observability"
)

const serviceName = "automata-devchain"

// Service is the runnable development store.
type Service interface {
	// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
	//
	// # Outputs
	//
	//   - error: Non-nil if the listener fails or shutdown times out.
	Run(ctx context.Context) error

	// Router returns the configured Gin engine, for tests.
	Router() *gin.Engine

	// Chain returns the underlying store.
	Chain() *Chain
}

// ServerConfig configures the service.
//
// # Fields
//
//   - Addr: Listen address. Default: ":8545".
//   - GinMode: "debug", "release" or "test". Default: "release".
//   - ShutdownTimeout: Grace period for in-flight requests. Default: 5s.
//   - Chain: Store dimensions and pacing.
//   - Registry: Prometheus registry for store metrics. Default: a new
//     registry with Go and process collectors.
type ServerConfig struct {
	Addr            string
	GinMode         string
	ShutdownTimeout time.Duration
	Chain           Config
	Registry        *prometheus.Registry
}

type service struct {
	config ServerConfig
	logger *logging.Logger
	router *gin.Engine
	chain  *Chain
}

// New builds the store and its router.
//
// # Inputs
//
//   - cfg: Server configuration. Zero fields take defaults.
//   - logger: May be nil.
//
// # Outputs
//
//   - Service: Ready to Run.
//   - error: Invalid chain configuration.
func New(cfg ServerConfig, logger *logging.Logger) (Service, error) {
	cfg = applyServerDefaults(cfg)
	if logger == nil {
		logger = logging.Nop()
	}

	chain, err := NewChain(cfg.Chain, logger.With("component", "chain"), observability.NewChainMetrics(cfg.Registry))
	if err != nil {
		return nil, fmt.Errorf("create chain: %w", err)
	}

	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	SetupRoutes(router, chain, logger, cfg.Registry)

	return &service{config: cfg, logger: logger, router: router, chain: chain}, nil
}

func (s *service) Router() *gin.Engine { return s.router }

func (s *service) Chain() *Chain { return s.chain }

func (s *service) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("development store listening", "addr", s.config.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen on %s: %w", s.config.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("development store shutting down")
	// Close subscriber channels so event streams end before Shutdown waits.
	_ = s.chain.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func applyServerDefaults(cfg ServerConfig) ServerConfig {
	if cfg.Addr == "" {
		cfg.Addr = ":8545"
	}
	if cfg.GinMode == "" {
		cfg.GinMode = gin.ReleaseMode
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	if cfg.Chain.Width == 0 && cfg.Chain.Height == 0 {
		cfg.Chain = DefaultConfig()
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
		cfg.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return cfg
}
