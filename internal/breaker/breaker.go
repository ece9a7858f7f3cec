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

// Package breaker gives every (agent, endpoint) pair its own
// Closed/Open/Half-Open circuit breaker (spec section 4.5), wrapping
// sony/gobreaker the way the pack's test suites construct it
// (test/integration/notification/suite_test.go's
// circuitbreaker.NewManager(gobreaker.Settings{...})).
package breaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/a2awatch/reddit-watch/internal/errs"
)

// Config controls trip/reset behavior for every breaker the Manager hands
// out (spec section 4.4: 5 consecutive failures trips Open, 60s cooldown
// before Half-Open).
type Config struct {
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
	HalfOpenMaxRequests uint32
}

func DefaultConfig() Config {
	return Config{ConsecutiveFailures: 5, OpenTimeout: 60 * time.Second, HalfOpenMaxRequests: 1}
}

// Manager lazily creates and caches one gobreaker.CircuitBreaker per
// (agentType, endpoint) key.
type Manager struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	cfg      Config
}

func NewManager(cfg Config) *Manager {
	return &Manager{breakers: make(map[string]*gobreaker.CircuitBreaker), cfg: cfg}
}

func (m *Manager) get(key string) *gobreaker.CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cb, ok := m.breakers[key]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        key,
		MaxRequests: m.cfg.HalfOpenMaxRequests,
		Timeout:     m.cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= m.cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state change", "key", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: isSuccessful,
	})
	m.breakers[key] = cb
	return cb
}

// isSuccessful decides whether an outcome counts against a breaker's
// failure tally (spec section 4.4: only network errors, timeouts and 5xx
// responses are "failed" — a non-retriable *errs.UpstreamError is a
// client-visible policy result, so it must not trip the breaker).
func isSuccessful(err error) bool {
	if err == nil {
		return true
	}
	var upstream *errs.UpstreamError
	if errors.As(err, &upstream) {
		return !upstream.BreakerFailure
	}
	return false
}

// Key builds the (agent, endpoint) breaker identity (spec section 4.5).
func Key(agentType, endpoint string) string {
	return fmt.Sprintf("%s:%s", agentType, endpoint)
}

// Execute runs fn through the named breaker, translating gobreaker's own
// open-circuit error into errs.ErrCircuitOpen so callers classify it via
// errs.Classify like any other task error.
func (m *Manager) Execute(ctx context.Context, agentType, endpoint string, fn func(context.Context) (any, error)) (any, error) {
	cb := m.get(Key(agentType, endpoint))
	result, err := cb.Execute(func() (any, error) {
		return fn(ctx)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return nil, errs.ErrCircuitOpen
	}
	return result, err
}

// State reports the current breaker state for an (agent, endpoint) pair,
// used by /health and the registry's agent-selection scoring.
func (m *Manager) State(agentType, endpoint string) gobreaker.State {
	return m.get(Key(agentType, endpoint)).State()
}
