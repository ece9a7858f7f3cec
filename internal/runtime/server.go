// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package runtime wires one agent's HTTP surface: /health,
// /.well-known/agent.json, /discover, /skills/{name} and /a2a (spec
// section 4.3), grounded on pkg/transport/http_metrics_middleware.go for
// the response-writer wrapping/span style and
// v2/auth/middleware.go for the security middleware ordering (audit log →
// input validation → rate limiter → security headers → auth).
package runtime

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/a2awatch/reddit-watch/internal/a2a"
	"github.com/a2awatch/reddit-watch/internal/auth"
	"github.com/a2awatch/reddit-watch/internal/ratelimit"
	"github.com/a2awatch/reddit-watch/internal/registry"
	"github.com/a2awatch/reddit-watch/internal/security"
)

var (
	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "a2awatch_http_request_duration_seconds",
		Help: "HTTP request latency by route and status.",
	}, []string{"route", "status"})
)

// Server is one agent's HTTP surface over its Dispatcher.
type Server struct {
	dispatcher *a2a.Dispatcher
	validator  auth.TokenValidator
	limiter    *ratelimit.Limiter
	reg        *registry.Registry
	agentID    string
	agentType  string
	router     chi.Router
}

func NewServer(dispatcher *a2a.Dispatcher, validator auth.TokenValidator, limiter *ratelimit.Limiter, reg *registry.Registry, agentID, agentType string) *Server {
	s := &Server{
		dispatcher: dispatcher,
		validator:  validator,
		limiter:    limiter,
		reg:        reg,
		agentID:    agentID,
		agentType:  agentType,
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(security.AuditLog)
	r.Use(security.InputValidation)
	r.Use(security.RateLimit(s.limiter))
	r.Use(security.SecurityHeaders)
	r.Use(metricsMiddleware)

	publicPaths := []string{"/health", "/.well-known/agent.json"}
	r.Use(auth.MiddlewareWithExclusions(s.validator, publicPaths))

	r.Get("/health", s.handleHealth)
	r.Get("/.well-known/agent.json", s.handleAgentCard)
	r.Get("/discover", s.handleDiscover)
	r.Post("/skills/{name}", s.handleSkill)
	r.Post("/a2a", s.handleRPC)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "agent_id": s.agentID})
}

func (s *Server) handleAgentCard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.dispatcher.Card())
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	agentType := r.URL.Query().Get("agent_type")
	if agentType == "" {
		agentType = s.agentType
	}
	agents, err := s.reg.Discover(r.Context(), agentType)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, agents)
}

func (s *Server) handleSkill(w http.ResponseWriter, r *http.Request) {
	skillName := chi.URLParam(r, "name")

	var body struct {
		Parameters map[string]any `json:"parameters"`
		Context    map[string]any `json:"context"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if body.Parameters == nil {
		body.Parameters = map[string]any{}
	}
	// Thread the correlation ID (the workflow ID, per the Coordinator's
	// invoker) into the parameter map so skills can tag records they
	// create with the workflow that requested them.
	if cid, ok := body.Context["correlation_id"]; ok {
		body.Parameters["correlation_id"] = cid
	}

	result, err := s.dispatcher.Invoke(r.Context(), skillName, body.Parameters)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "error", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "result": result})
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req a2a.RPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON-RPC envelope"})
		return
	}
	resp := s.dispatcher.HandleRPC(r.Context(), req)
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// responseWriter wraps http.ResponseWriter to capture status code, mirrors
// pkg/transport/http_metrics_middleware.go's wrapper.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

var tracer = otel.Tracer("a2awatch.http")

// metricsMiddleware records request latency to Prometheus and opens an
// OpenTelemetry span per request, following
// pkg/transport/http_metrics_middleware.go.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ctx, span := tracer.Start(r.Context(), "http.request", trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.path", r.URL.Path),
		))
		defer span.End()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r.WithContext(ctx))

		duration := time.Since(start)
		if wrapped.statusCode >= 500 {
			span.SetStatus(codes.Error, http.StatusText(wrapped.statusCode))
		}
		httpRequestDuration.WithLabelValues(r.URL.Path, http.StatusText(wrapped.statusCode)).Observe(duration.Seconds())
	})
}

// MetricsHandler exposes the Prometheus scrape endpoint, typically mounted
// on a separate internal port.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
