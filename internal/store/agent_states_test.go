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

package store

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a2awatch/reddit-watch/internal/model"
)

func newMockAgentStateStore(t *testing.T) (*AgentStateStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewAgentStateStore(db), mock
}

func agentStateColumns() []string {
	return []string{
		"agent_id", "agent_type", "status", "state_data", "capabilities", "current_task_id",
		"heartbeat_at", "error_count", "last_error", "tasks_completed", "tasks_failed",
		"avg_execution_time_ms", "created_at", "last_updated",
	}
}

func agentStateRow(id string, status model.AgentStatus, heartbeat time.Time) []driver.Value {
	return []driver.Value{
		id, "retrieval", string(status), []byte(`{}`), "{fetch_posts_by_topic}", nil,
		heartbeat, 0, nil, 3, 0,
		nil, time.Now(), time.Now(),
	}
}

func TestAgentStateUpsertInsertsOrUpdates(t *testing.T) {
	s, mock := newMockAgentStateStore(t)
	mock.ExpectExec("INSERT INTO agent_states").WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.Upsert(context.Background(), &model.AgentState{
		AgentID: "agent-1", AgentType: "retrieval", Status: model.AgentIdle,
	}, time.Now())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAgentStateGetUnmarshalsCapabilities(t *testing.T) {
	s, mock := newMockAgentStateStore(t)
	rows := sqlmock.NewRows(agentStateColumns()).AddRow(agentStateRow("agent-1", model.AgentIdle, time.Now())...)
	mock.ExpectQuery("SELECT (.|\n)*FROM agent_states").WillReturnRows(rows)

	a, err := s.Get(context.Background(), "agent-1")
	require.NoError(t, err)
	assert.Equal(t, "agent-1", a.AgentID)
	assert.Equal(t, model.AgentIdle, a.Status)
}

func TestAgentStateListByType(t *testing.T) {
	s, mock := newMockAgentStateStore(t)
	rows := sqlmock.NewRows(agentStateColumns()).
		AddRow(agentStateRow("agent-1", model.AgentIdle, time.Now())...).
		AddRow(agentStateRow("agent-2", model.AgentBusy, time.Now())...)
	mock.ExpectQuery("SELECT (.|\n)*FROM agent_states WHERE agent_type").WillReturnRows(rows)

	out, err := s.ListByType(context.Background(), "retrieval")
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestAgentStateRecordTaskOutcomeSuccess(t *testing.T) {
	s, mock := newMockAgentStateStore(t)
	mock.ExpectExec("UPDATE agent_states SET tasks_completed").WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.RecordTaskOutcome(context.Background(), "agent-1", true, 120, time.Now())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAgentStateRecordTaskOutcomeFailureIncrementsErrorCount(t *testing.T) {
	s, mock := newMockAgentStateStore(t)
	mock.ExpectExec("UPDATE agent_states SET error_count = error_count \\+ 1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE agent_states SET tasks_completed").WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.RecordTaskOutcome(context.Background(), "agent-1", false, 500, time.Now())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAgentStateMarkStaleOfflineReturnsCount(t *testing.T) {
	s, mock := newMockAgentStateStore(t)
	mock.ExpectExec("UPDATE agent_states SET status = 'offline'").WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := s.MarkStaleOffline(context.Background(), 5*time.Minute, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
