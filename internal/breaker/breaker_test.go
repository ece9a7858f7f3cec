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

package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a2awatch/reddit-watch/internal/errs"
)

func TestManagerExecuteTripsAfterConsecutiveFailures(t *testing.T) {
	m := NewManager(Config{ConsecutiveFailures: 3, OpenTimeout: time.Minute, HalfOpenMaxRequests: 1})
	ctx := context.Background()
	failing := func(ctx context.Context) (any, error) { return nil, errors.New("boom") }

	for i := 0; i < 3; i++ {
		_, err := m.Execute(ctx, "retrieval", "/skills/fetch", failing)
		assert.Error(t, err)
	}

	_, err := m.Execute(ctx, "retrieval", "/skills/fetch", failing)
	assert.ErrorIs(t, err, errs.ErrCircuitOpen)
	assert.Equal(t, gobreaker.StateOpen, m.State("retrieval", "/skills/fetch"))
}

func TestManagerExecutePassesThroughResult(t *testing.T) {
	m := NewManager(DefaultConfig())
	ctx := context.Background()
	result, err := m.Execute(ctx, "filter", "/skills/batch", func(ctx context.Context) (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
}

func TestManagerDoesNotTripOnNonBreakerFailure(t *testing.T) {
	m := NewManager(Config{ConsecutiveFailures: 2, OpenTimeout: time.Minute, HalfOpenMaxRequests: 1})
	ctx := context.Background()
	policyErr := func(ctx context.Context) (any, error) {
		return nil, &errs.UpstreamError{Message: "bad request", Retriable: false, BreakerFailure: false}
	}

	for i := 0; i < 5; i++ {
		_, err := m.Execute(ctx, "summarise", "/skills/summarizeContent", policyErr)
		assert.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateClosed, m.State("summarise", "/skills/summarizeContent"))
}

func TestKeyFormat(t *testing.T) {
	assert.Equal(t, "retrieval:/skills/fetch_posts_by_topic", Key("retrieval", "/skills/fetch_posts_by_topic"))
}
