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

package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTaskStatusNonTerminalForDedup(t *testing.T) {
	assert.True(t, TaskPending.NonTerminalForDedup())
	assert.True(t, TaskRunning.NonTerminalForDedup())
	assert.True(t, TaskCompleted.NonTerminalForDedup())
	assert.False(t, TaskFailed.NonTerminalForDedup())
	assert.False(t, TaskCancelled.NonTerminalForDedup())
}

func TestTaskHasActiveLease(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Minute)
	past := now.Add(-time.Minute)

	noLease := &Task{}
	assert.False(t, noLease.HasActiveLease(now))

	expired := &Task{LockToken: "tok", LockExpiresAt: &past}
	assert.False(t, expired.HasActiveLease(now))

	active := &Task{LockToken: "tok", LockExpiresAt: &future}
	assert.True(t, active.HasActiveLease(now))
}

func TestAgentStateIsStale(t *testing.T) {
	now := time.Now()
	fresh := &AgentState{HeartbeatAt: now.Add(-time.Second)}
	assert.False(t, fresh.IsStale(now, time.Minute))

	stale := &AgentState{HeartbeatAt: now.Add(-2 * time.Minute)}
	assert.True(t, stale.IsStale(now, time.Minute))
}

func TestAgentStateErrorRate(t *testing.T) {
	empty := &AgentState{}
	assert.Equal(t, 0.0, empty.ErrorRate())

	a := &AgentState{TasksCompleted: 3, TasksFailed: 1, ErrorCount: 1}
	assert.InDelta(t, 0.25, a.ErrorRate(), 0.0001)
}

func TestRecoveryStatusTerminal(t *testing.T) {
	assert.True(t, RecoveryCompleted.Terminal())
	assert.True(t, RecoveryFailed.Terminal())
	assert.False(t, RecoveryPending.Terminal())
	assert.False(t, RecoveryRecovering.Terminal())
}

func TestNewIDIsUnique(t *testing.T) {
	a := NewID()
	b := NewID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
