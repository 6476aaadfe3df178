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
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/automata/pkg/logging"
)

// SetupRoutes registers the store API on router. gatherer may be nil to
// omit /metrics.
func SetupRoutes(router *gin.Engine, chain *Chain, logger *logging.Logger, gatherer prometheus.Gatherer) {
	router.GET("/health", HealthCheck)
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/v1")
	{
		v1.GET("/grid", HandleGetGrid(chain))
		v1.GET("/dimensions", HandleDimensions(chain))
		v1.GET("/events", HandleEvents(chain, logger))

		cells := v1.Group("/cells")
		{
			cells.POST("", HandleActivateCell(chain))
			cells.POST("/batch", HandleActivateCells(chain))
		}
		v1.POST("/iterations", HandleNextIteration(chain))
	}
}
