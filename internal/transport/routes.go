// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package transport

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// NewRouter builds the gin engine for the query engine: a health check, a
// Prometheus scrape endpoint, and the v1 query API, with otelgin installed
// so every request gets a span automatically.
func NewRouter(eng *Engine) *gin.Engine {
	router := gin.Default()
	router.Use(otelgin.Middleware("fusion-engine"))

	router.GET("/health", HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	{
		v1.POST("/query", HandleQuery(eng))
		v1.GET("/cache/stats", CacheStats(eng))
		v1.POST("/cache/invalidate", CacheInvalidate(eng))
	}

	return router
}
