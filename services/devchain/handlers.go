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
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/automata/pkg/grid"
	"github.com/AleutianAI/automata/pkg/gridstore"
	"github.com/AleutianAI/automata/pkg/logging"
)

// =============================================================================
// Wire types
// =============================================================================

// GridResponse is the body of GET /v1/grid.
type GridResponse struct {
	Grid grid.Grid `json:"grid"`
}

// DimensionsResponse is the body of GET /v1/dimensions.
type DimensionsResponse struct {
	Width  uint64 `json:"width"`
	Height uint64 `json:"height"`
}

// CellRequest is the body of POST /v1/cells. Pointers let zero coordinates
// pass the required check.
type CellRequest struct {
	X *uint64 `json:"x" binding:"required"`
	Y *uint64 `json:"y" binding:"required"`
}

// BatchRequest is the body of POST /v1/cells/batch.
type BatchRequest struct {
	Xs []uint64 `json:"xs" binding:"required"`
	Ys []uint64 `json:"ys" binding:"required"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
}

const eventWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
}

// =============================================================================
// Handlers
// =============================================================================

// HealthCheck answers liveness probes.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleGetGrid returns the full grid.
func HandleGetGrid(chain *Chain) gin.HandlerFunc {
	return func(c *gin.Context) {
		g, err := chain.GetGrid(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, GridResponse{Grid: g})
	}
}

// HandleDimensions returns width and height.
func HandleDimensions(chain *Chain) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		w, err := chain.Width(ctx)
		if err != nil {
			writeError(c, err)
			return
		}
		h, err := chain.Height(ctx)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, DimensionsResponse{Width: w, Height: h})
	}
}

// HandleActivateCell activates one cell.
func HandleActivateCell(chain *Chain) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CellRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request: " + err.Error()})
			return
		}
		receipt, err := chain.ActivateCell(c.Request.Context(), *req.X, *req.Y)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, receipt)
	}
}

// HandleActivateCells activates a batch of cells in one block.
func HandleActivateCells(chain *Chain) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req BatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request: " + err.Error()})
			return
		}
		receipt, err := chain.ActivateCells(c.Request.Context(), req.Xs, req.Ys)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, receipt)
	}
}

// HandleNextIteration advances one generation.
func HandleNextIteration(chain *Chain) gin.HandlerFunc {
	return func(c *gin.Context) {
		receipt, err := chain.NextIteration(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, receipt)
	}
}

// HandleEvents streams notifications over a WebSocket, one JSON
// grid.Notification per message. The stream ends when the client
// disconnects.
func HandleEvents(chain *Chain, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Error("failed to upgrade the websocket", "error", err)
			return
		}
		defer ws.Close()

		id, events, cancel := chain.Subscribe()
		defer cancel()
		logger.Info("event subscriber connected", "subscriber", id)

		// Reads only detect the client going away.
		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := ws.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-gone:
				logger.Info("event subscriber disconnected", "subscriber", id)
				return
			case n, ok := <-events:
				if !ok {
					_ = ws.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseGoingAway, "store shutting down"))
					return
				}
				_ = ws.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
				if err := ws.WriteJSON(n); err != nil {
					logger.Warn("failed to write event", "subscriber", id, "error", err)
					return
				}
			}
		}
	}
}

// writeError maps store errors to HTTP statuses: rejections are 422,
// anything else 503.
func writeError(c *gin.Context, err error) {
	status := http.StatusServiceUnavailable
	if errors.Is(err, gridstore.ErrMutationRejected) {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, ErrorResponse{Error: err.Error()})
}
