// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package httpstore is a gridstore.Contract backed by the development store's
// HTTP and WebSocket API.
package httpstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AleutianAI/automata/pkg/grid"
	"github.com/AleutianAI/automata/pkg/gridstore"
	"github.com/AleutianAI/automata/pkg/logging"
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 4 << 10

// Config configures a Store.
//
// # Fields
//
//   - BaseURL: Store root, e.g. "http://localhost:8545". Required.
//   - Timeout: Per-request timeout for reads. Mutations wait for block
//     inclusion and are bounded only by ctx. Default: 10s.
//   - HTTPClient: Optional client override, for tests.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Store talks to a development store.
type Store struct {
	base    *url.URL
	client  *http.Client
	timeout time.Duration
	dialer  *websocket.Dialer
	logger  *logging.Logger
}

var (
	_ gridstore.Contract = (*Store)(nil)
	_ gridstore.Notifier = (*Store)(nil)
)

type gridResponse struct {
	Grid grid.Grid `json:"grid"`
}

type dimensionsResponse struct {
	Width  uint64 `json:"width"`
	Height uint64 `json:"height"`
}

type cellRequest struct {
	X uint64 `json:"x"`
	Y uint64 `json:"y"`
}

type batchRequest struct {
	Xs []uint64 `json:"xs"`
	Ys []uint64 `json:"ys"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// New validates cfg and returns a Store. No connection is made.
func New(cfg Config, logger *logging.Logger) (*Store, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("httpstore: base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("httpstore: parse base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("httpstore: unsupported scheme %q", base.Scheme)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Store{
		base:    base,
		client:  client,
		timeout: cfg.Timeout,
		dialer:  websocket.DefaultDialer,
		logger:  logger,
	}, nil
}

// =============================================================================
// Contract
// =============================================================================

func (s *Store) GetGrid(ctx context.Context) (grid.Grid, error) {
	var resp gridResponse
	if err := s.read(ctx, "/v1/grid", &resp); err != nil {
		return nil, err
	}
	return resp.Grid, nil
}

func (s *Store) Width(ctx context.Context) (uint64, error) {
	var resp dimensionsResponse
	if err := s.read(ctx, "/v1/dimensions", &resp); err != nil {
		return 0, err
	}
	return resp.Width, nil
}

func (s *Store) Height(ctx context.Context) (uint64, error) {
	var resp dimensionsResponse
	if err := s.read(ctx, "/v1/dimensions", &resp); err != nil {
		return 0, err
	}
	return resp.Height, nil
}

func (s *Store) ActivateCell(ctx context.Context, x, y uint64) (gridstore.Receipt, error) {
	var receipt gridstore.Receipt
	err := s.do(ctx, http.MethodPost, "/v1/cells", cellRequest{X: x, Y: y}, &receipt)
	return receipt, err
}

func (s *Store) ActivateCells(ctx context.Context, xs, ys []uint64) (gridstore.Receipt, error) {
	var receipt gridstore.Receipt
	err := s.do(ctx, http.MethodPost, "/v1/cells/batch", batchRequest{Xs: xs, Ys: ys}, &receipt)
	return receipt, err
}

func (s *Store) NextIteration(ctx context.Context) (gridstore.Receipt, error) {
	var receipt gridstore.Receipt
	err := s.do(ctx, http.MethodPost, "/v1/iterations", nil, &receipt)
	return receipt, err
}

// Notifications opens the WebSocket event stream. The channel closes when
// ctx ends or the connection drops.
func (s *Store) Notifications(ctx context.Context) (<-chan grid.Notification, error) {
	wsURL := *s.base
	if wsURL.Scheme == "https" {
		wsURL.Scheme = "wss"
	} else {
		wsURL.Scheme = "ws"
	}
	wsURL.Path += "/v1/events"

	conn, _, err := s.dialer.DialContext(ctx, wsURL.String(), nil)
	if err != nil {
		return nil, gridstore.Unavailable(fmt.Errorf("dial event stream: %w", err))
	}

	out := make(chan grid.Notification)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		case <-done:
		}
		_ = conn.Close()
	}()
	go func() {
		defer close(out)
		defer close(done)
		for {
			var n grid.Notification
			if err := conn.ReadJSON(&n); err != nil {
				if ctx.Err() == nil {
					s.logger.Warn("event stream ended", "error", err)
				}
				return
			}
			select {
			case out <- n:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close releases idle connections.
func (s *Store) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// =============================================================================
// Internal
// =============================================================================

func (s *Store) read(ctx context.Context, path string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.do(ctx, http.MethodGet, path, nil, out)
}

// do sends one request. Transport errors and 5xx are unavailable; 4xx are
// rejected.
func (s *Store) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.base.String()+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return gridstore.Unavailable(fmt.Errorf("%s %s: %w", method, path, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg := readError(resp.Body)
		statusErr := fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, msg)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return gridstore.Rejected(statusErr)
		}
		return gridstore.Unavailable(statusErr)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return gridstore.Unavailable(fmt.Errorf("%s %s: decode response: %w", method, path, err))
	}
	return nil
}

func readError(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var e errorResponse
	if json.Unmarshal(data, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(data))
}
