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

package security

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a2awatch/reddit-watch/internal/ratelimit"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestInputValidationRejectsOversizedContentLength(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/skills/foo", nil)
	req.ContentLength = MaxContentLength + 1
	rec := httptest.NewRecorder()

	InputValidation(okHandler()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestInputValidationRejectsDangerousHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Custom", "<script>alert(1)</script>")
	rec := httptest.NewRecorder()

	InputValidation(okHandler()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInputValidationRejectsDangerousURL(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/skills/foo?x=' or '1'='1", nil)
	rec := httptest.NewRecorder()

	InputValidation(okHandler()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInputValidationAllowsOrdinaryRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	InputValidation(okHandler()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSecurityHeadersSetAndStripServer(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	rec.Header().Set("Server", "nginx")

	SecurityHeaders(okHandler()).ServeHTTP(rec, req)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.True(t, strings.Contains(rec.Header().Get("Content-Security-Policy"), "default-src 'self'"))
	assert.Empty(t, rec.Header().Get("Server"))
}

func TestRateLimitMiddlewareBlocksOverLimit(t *testing.T) {
	limiter := ratelimit.New(ratelimit.Limits{BurstPerTenSeconds: 1, PerMinute: 100, PerHour: 1000}, nil)
	handler := RateLimit(limiter)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "203.0.113.9:5555"

	rec1 := httptest.NewRecorder()
	handler.ServeHTTP(rec1, req)
	require.Equal(t, http.StatusOK, rec1.Code)

	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req)
	assert.Equal(t, http.StatusTooManyRequests, rec2.Code)
	assert.NotEmpty(t, rec2.Header().Get("Retry-After"))
}

func TestAuditLogPassesThroughStatus(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	AuditLog(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)
}
