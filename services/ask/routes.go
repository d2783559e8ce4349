// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ask

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RegisterRoutes registers the /v1/ask endpoints on rg.
//
// # Description
//
// rg is typically the /v1 group with middleware already applied.
//
// Endpoints:
//
//	POST   /v1/ask/query     - Answer a question
//	POST   /v1/ask/plan      - Plan a question without running it
//	GET    /v1/ask/tools     - List registered tools
//	DELETE /v1/ask/artifacts - Drop cached query artifacts (?query= for one)
//	GET    /v1/ask/health    - Liveness
//	GET    /v1/ask/ready     - Readiness
func RegisterRoutes(rg *gin.RouterGroup, h *Handlers) {
	ask := rg.Group("/ask")
	{
		ask.POST("/query", h.HandleQuery)
		ask.POST("/plan", h.HandlePlan)
		ask.GET("/tools", h.HandleTools)
		ask.DELETE("/artifacts", h.HandleResetArtifacts)

		ask.GET("/health", h.HandleHealth)
		ask.GET("/ready", h.HandleReady)
	}
}

// RouterConfig configures NewRouter.
type RouterConfig struct {
	// ServiceName names the server spans.
	ServiceName string

	// Debug enables gin debug mode and request logging.
	Debug bool
}

// NewRouter builds the gin engine: recovery, OpenTelemetry request spans,
// the /v1/ask routes and Prometheus metrics on /metrics.
func NewRouter(h *Handlers, cfg RouterConfig) *gin.Engine {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "aleutian-ask"
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	if cfg.Debug {
		router.Use(gin.Logger())
	}

	v1 := router.Group("/v1")
	RegisterRoutes(v1, h)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return router
}
