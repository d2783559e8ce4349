// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ask is the HTTP surface of the question answering service.
package ask

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianAsk/services/ask/catalog"
	"github.com/AleutianAI/AleutianAsk/services/ask/orchestrator"
	"github.com/AleutianAI/AleutianAsk/services/ask/tools"
)

// RequestIDHeader carries the caller's request id in and out.
const RequestIDHeader = "X-Request-ID"

// Error codes returned in ErrorResponse.Code.
const (
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeInvalidMode    = "INVALID_MODE"
	CodeTimeout        = "TIMEOUT"
	CodeCanceled       = "CANCELED"
	CodeInternal       = "INTERNAL_ERROR"
	CodeNotReady       = "NOT_READY"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	TraceID string `json:"trace_id,omitempty"`
}

// QueryRequest is the body of POST /v1/ask/query.
type QueryRequest struct {
	Query string   `json:"query" binding:"required"`
	Mode  string   `json:"mode" binding:"omitempty,oneof=direct planned"`
	Tools []string `json:"tools" binding:"omitempty,dive,required"`
}

// PlanRequest is the body of POST /v1/ask/plan.
type PlanRequest struct {
	Query string   `json:"query" binding:"required"`
	Tools []string `json:"tools" binding:"omitempty,dive,required"`
}

// ToolsResponse lists the registered tools.
type ToolsResponse struct {
	Tools   []catalog.Spec  `json:"tools"`
	Skipped []tools.Skipped `json:"skipped,omitempty"`
}

// Runner answers and plans questions.
type Runner interface {
	Run(ctx context.Context, req orchestrator.Request) (*orchestrator.Response, error)
	Plan(ctx context.Context, query string, tools []string) (*orchestrator.PlanResponse, error)
}

// ArtifactCache is the part of the artifact cache the API manages.
type ArtifactCache interface {
	Invalidate(query string) bool
	Reset()
	Len() int
}

// Handlers serves the /v1/ask endpoints.
//
// # Thread Safety
//
// Safe for concurrent use. All fields are read-only after construction.
type Handlers struct {
	runner  Runner
	catalog *catalog.Catalog
	cache   ArtifactCache
	skipped []tools.Skipped
	logger  *slog.Logger
}

// NewHandlers creates the handlers. skipped lists tools left out of the
// catalog and is reported by the tools endpoint.
func NewHandlers(runner Runner, cat *catalog.Catalog, cache ArtifactCache, skipped []tools.Skipped, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{runner: runner, catalog: cat, cache: cache, skipped: skipped, logger: logger}
}

// HandleQuery handles POST /v1/ask/query.
//
// # Description
//
// Runs the orchestrator and returns its Response. A synthesis failure still
// answers 200 with Response.error set, since the trace and evidence are
// useful on their own.
//
// # Responses
//
//	200 OK: orchestrator.Response
//	400 Bad Request: missing query, unknown mode or malformed body
//	499/504: the client went away or the request timed out
func (h *Handlers) HandleQuery(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With(slog.String("request_id", requestID), slog.String("handler", "HandleQuery"))

	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}

	resp, err := h.runner.Run(c.Request.Context(), orchestrator.Request{
		Query:     req.Query,
		Mode:      req.Mode,
		Tools:     req.Tools,
		RequestID: requestID,
	})
	if err != nil {
		logger.Warn("query failed", slog.String("error", err.Error()))
		writeRunError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandlePlan handles POST /v1/ask/plan. It plans without executing.
func (h *Handlers) HandlePlan(c *gin.Context) {
	getOrCreateRequestID(c)

	var req PlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}
	resp, err := h.runner.Plan(c.Request.Context(), req.Query, req.Tools)
	if err != nil {
		writeRunError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleTools handles GET /v1/ask/tools.
func (h *Handlers) HandleTools(c *gin.Context) {
	c.JSON(http.StatusOK, ToolsResponse{Tools: h.catalog.Specs(), Skipped: h.skipped})
}

// HandleResetArtifacts handles DELETE /v1/ask/artifacts. With ?query= it
// drops that query's entry, otherwise the whole cache.
func (h *Handlers) HandleResetArtifacts(c *gin.Context) {
	if q, ok := c.GetQuery("query"); ok {
		removed := h.cache.Invalidate(q)
		c.JSON(http.StatusOK, gin.H{"removed": removed, "entries": h.cache.Len()})
		return
	}
	h.cache.Reset()
	h.logger.Info("artifact cache reset")
	c.JSON(http.StatusOK, gin.H{"reset": true, "entries": h.cache.Len()})
}

// HandleHealth handles GET /v1/ask/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleReady handles GET /v1/ask/ready. The service is ready once at least
// one tool is registered.
func (h *Handlers) HandleReady(c *gin.Context) {
	n := len(h.catalog.IDs())
	if n == 0 {
		abortWithError(c, http.StatusServiceUnavailable, CodeNotReady, "no tools registered")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "tools": n})
}

func writeRunError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, orchestrator.ErrEmptyQuery):
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, err.Error())
	case errors.Is(err, orchestrator.ErrUnknownMode):
		abortWithError(c, http.StatusBadRequest, CodeInvalidMode, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		abortWithError(c, http.StatusGatewayTimeout, CodeTimeout, err.Error())
	case errors.Is(err, context.Canceled):
		abortWithError(c, 499, CodeCanceled, err.Error())
	default:
		abortWithError(c, http.StatusInternalServerError, CodeInternal, err.Error())
	}
}

func abortWithError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: msg, Code: code, TraceID: traceID(c)})
}

func traceID(c *gin.Context) string {
	sc := trace.SpanContextFromContext(c.Request.Context())
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// getOrCreateRequestID returns the caller's X-Request-ID or a new one, and
// echoes it on the response.
func getOrCreateRequestID(c *gin.Context) string {
	id := c.GetHeader(RequestIDHeader)
	if id == "" || len(id) > 128 {
		id = uuid.NewString()
	}
	c.Header(RequestIDHeader, id)
	return id
}
