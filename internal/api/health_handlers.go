// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

package api

import (
	"log/slog"
	"net/http"

	"github.com/nexioerp/nexio/internal/platform/postgres"
	"github.com/nexioerp/nexio/internal/platform/redis"
	"github.com/nexioerp/nexio/internal/platform/respond"
)

// handleHealth handles GET /health (liveness probe). It returns 200 as long
// as the process is able to serve requests.
func (s *Server) handleHealth(writer http.ResponseWriter, request *http.Request) {
	respond.OK(writer, map[string]string{"status": "ok"})
}

// handleReady handles GET /ready (readiness probe). It pings the backing
// stores and reports 503 when any of them is unreachable.
func (s *Server) handleReady(writer http.ResponseWriter, request *http.Request) {
	type checkResult struct {
		Name  string `json:"name"`
		IsOK  bool   `json:"ok"`
		Error string `json:"error,omitempty"`
	}

	results := make([]checkResult, 0, 2)
	isSystemReady := true

	if s.pool != nil {
		result := checkResult{Name: "postgres", IsOK: true}
		if err := postgres.Ping(request.Context(), s.pool); err != nil {
			result.IsOK = false
			result.Error = err.Error()
			isSystemReady = false
			s.log.Error("readiness_check_failed", slog.String("dependency", "postgres"), slog.Any("error", err))
		}
		results = append(results, result)
	}

	if s.redis != nil {
		result := checkResult{Name: "redis", IsOK: true}
		if err := redis.Ping(request.Context(), s.redis); err != nil {
			result.IsOK = false
			result.Error = err.Error()
			isSystemReady = false
			s.log.Error("readiness_check_failed", slog.String("dependency", "redis"), slog.Any("error", err))
		}
		results = append(results, result)
	}

	status := "ready"
	httpStatus := http.StatusOK
	if !isSystemReady {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	respond.JSON(writer, httpStatus, respond.SuccessEnvelope{
		Success: isSystemReady,
		Data:    map[string]any{"status": status, "checks": results},
	})
}
