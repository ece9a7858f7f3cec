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

package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const publicIP = "203.0.113.5"

func TestLimiterAllowsUntilBurstExhausted(t *testing.T) {
	l := New(Limits{BurstPerTenSeconds: 2, PerMinute: 100, PerHour: 1000}, nil)
	now := time.Now()

	d1 := l.Allow(publicIP, now)
	require.True(t, d1.Allowed)
	d2 := l.Allow(publicIP, now)
	require.True(t, d2.Allowed)

	d3 := l.Allow(publicIP, now)
	assert.False(t, d3.Allowed)
	assert.Equal(t, "burst", d3.LimitType)
	assert.Equal(t, 10*time.Second, d3.RetryAfter)
}

func TestLimiterPerMinuteLimit(t *testing.T) {
	l := New(Limits{BurstPerTenSeconds: 100, PerMinute: 2, PerHour: 1000}, nil)
	now := time.Now()

	require.True(t, l.Allow(publicIP, now).Allowed)
	require.True(t, l.Allow(publicIP, now).Allowed)
	d := l.Allow(publicIP, now)
	assert.False(t, d.Allowed)
	assert.Equal(t, "per_minute", d.LimitType)
}

func TestLimiterWhitelistedIPAlwaysAllowed(t *testing.T) {
	l := New(Limits{BurstPerTenSeconds: 1, PerMinute: 1, PerHour: 1}, nil)
	now := time.Now()
	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow("127.0.0.1", now).Allowed)
	}
}

func TestLimiterExtraWhitelist(t *testing.T) {
	l := New(Limits{BurstPerTenSeconds: 1, PerMinute: 1, PerHour: 1}, []string{publicIP})
	now := time.Now()
	assert.True(t, l.Allow(publicIP, now).Allowed)
	assert.True(t, l.Allow(publicIP, now).Allowed)
}

func TestLimiterWindowSlidesOverTime(t *testing.T) {
	l := New(Limits{BurstPerTenSeconds: 1, PerMinute: 100, PerHour: 1000}, nil)
	now := time.Now()
	require.True(t, l.Allow(publicIP, now).Allowed)
	assert.False(t, l.Allow(publicIP, now).Allowed)

	later := now.Add(11 * time.Second)
	assert.True(t, l.Allow(publicIP, later).Allowed)
}

func TestClientIP(t *testing.T) {
	assert.Equal(t, "1.2.3.4", ClientIP("1.2.3.4, 5.6.7.8", "", "9.9.9.9:1234"))
	assert.Equal(t, "5.6.7.8", ClientIP("", "5.6.7.8", "9.9.9.9:1234"))
	assert.Equal(t, "9.9.9.9", ClientIP("", "", "9.9.9.9:1234"))
	assert.Equal(t, "unix-socket", ClientIP("", "", "unix-socket"))
}
