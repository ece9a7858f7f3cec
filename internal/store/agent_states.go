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
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/a2awatch/reddit-watch/internal/model"
)

const createAgentStatesTableSQL = `
CREATE TABLE IF NOT EXISTS agent_states (
    agent_id VARCHAR(64) PRIMARY KEY,
    agent_type VARCHAR(64) NOT NULL,
    status VARCHAR(16) NOT NULL DEFAULT 'idle',
    state_data JSONB NOT NULL DEFAULT '{}',
    capabilities TEXT[] NOT NULL DEFAULT '{}',
    current_task_id VARCHAR(64),
    heartbeat_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    error_count INTEGER NOT NULL DEFAULT 0,
    last_error TEXT,
    tasks_completed INTEGER NOT NULL DEFAULT 0,
    tasks_failed INTEGER NOT NULL DEFAULT 0,
    avg_execution_time_ms DOUBLE PRECISION,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    last_updated TIMESTAMPTZ NOT NULL DEFAULT now()
);`

const createAgentStatesIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_agent_states_status_updated ON agent_states(status, last_updated);
CREATE INDEX IF NOT EXISTS idx_agent_states_type_status_heartbeat ON agent_states(agent_type, status, heartbeat_at);`

type AgentStateStore struct {
	db *sql.DB
}

func NewAgentStateStore(db *sql.DB) *AgentStateStore { return &AgentStateStore{db: db} }

// Upsert registers or refreshes an agent's heartbeat row (spec section 4.4
// registration/heartbeat), grounded on agent_coordination.py's
// AgentCoordinator.register_agent / update_state.
func (s *AgentStateStore) Upsert(ctx context.Context, a *model.AgentState, now time.Time) error {
	data, err := json.Marshal(a.StateData)
	if err != nil {
		return fmt.Errorf("marshal state_data: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO agent_states (agent_id, agent_type, status, state_data, capabilities,
                           current_task_id, heartbeat_at, created_at, last_updated)
VALUES ($1,$2,$3,$4,$5,$6,$7,$7,$7)
ON CONFLICT (agent_id) DO UPDATE SET
    status = EXCLUDED.status,
    state_data = EXCLUDED.state_data,
    capabilities = EXCLUDED.capabilities,
    current_task_id = EXCLUDED.current_task_id,
    heartbeat_at = EXCLUDED.heartbeat_at,
    last_updated = EXCLUDED.last_updated`,
		a.AgentID, a.AgentType, a.Status, data, pq.Array(a.Capabilities),
		nullableString(a.CurrentTaskID), now)
	return err
}

func (s *AgentStateStore) Get(ctx context.Context, agentID string) (*model.AgentState, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT agent_id, agent_type, status, state_data, capabilities, current_task_id,
       heartbeat_at, error_count, last_error, tasks_completed, tasks_failed,
       avg_execution_time_ms, created_at, last_updated
FROM agent_states WHERE agent_id = $1`, agentID)
	a, err := scanAgentState(row)
	if err != nil {
		return nil, noRowsToNotFound(err)
	}
	return a, nil
}

// ListByType returns every agent of a type, used for capability-filtered,
// performance-weighted selection (spec section 9 supplement).
func (s *AgentStateStore) ListByType(ctx context.Context, agentType string) ([]*model.AgentState, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT agent_id, agent_type, status, state_data, capabilities, current_task_id,
       heartbeat_at, error_count, last_error, tasks_completed, tasks_failed,
       avg_execution_time_ms, created_at, last_updated
FROM agent_states WHERE agent_type = $1`, agentType)
	if err != nil {
		return nil, fmt.Errorf("list agent states: %w", err)
	}
	defer rows.Close()
	var out []*model.AgentState
	for rows.Next() {
		a, err := scanAgentState(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// RecordTaskOutcome updates the running completion/failure counters and
// exponential moving average execution time used by ErrorRate (spec
// section 9 supplement).
func (s *AgentStateStore) RecordTaskOutcome(ctx context.Context, agentID string, success bool, execMs float64, now time.Time) error {
	var successCol, failCol string
	if success {
		successCol, failCol = "tasks_completed + 1", "tasks_failed"
	} else {
		successCol, failCol = "tasks_completed", "tasks_failed + 1"
		_, err := s.db.ExecContext(ctx, `UPDATE agent_states SET error_count = error_count + 1 WHERE agent_id = $1`, agentID)
		if err != nil {
			return err
		}
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
UPDATE agent_states SET tasks_completed = %s, tasks_failed = %s,
       avg_execution_time_ms = COALESCE(avg_execution_time_ms * 0.8 + $2 * 0.2, $2),
       last_updated = $3
WHERE agent_id = $1`, successCol, failCol), agentID, execMs, now)
	return err
}

// MarkStaleOffline flips any agent whose heartbeat is older than threshold
// to Offline (spec section 3 invariant enforced as a standalone sweep, spec
// section 9 supplement "standalone stale-agent sweep").
func (s *AgentStateStore) MarkStaleOffline(ctx context.Context, threshold time.Duration, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE agent_states SET status = 'offline', last_updated = $2
WHERE heartbeat_at < $1 AND status != 'offline'`, now.Add(-threshold), now)
	if err != nil {
		return 0, fmt.Errorf("mark stale agents offline: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func scanAgentState(row rowScanner) (*model.AgentState, error) {
	var a model.AgentState
	var data []byte
	var capabilities pq.StringArray
	var currentTaskID, lastError sql.NullString
	var avgExec sql.NullFloat64

	if err := row.Scan(
		&a.AgentID, &a.AgentType, &a.Status, &data, &capabilities, &currentTaskID,
		&a.HeartbeatAt, &a.ErrorCount, &lastError, &a.TasksCompleted, &a.TasksFailed,
		&avgExec, &a.CreatedAt, &a.LastUpdated,
	); err != nil {
		return nil, err
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &a.StateData); err != nil {
			return nil, fmt.Errorf("unmarshal state_data: %w", err)
		}
	}
	a.Capabilities = []string(capabilities)
	a.CurrentTaskID = currentTaskID.String
	a.LastError = lastError.String
	if avgExec.Valid {
		a.AvgExecutionTimeMs = &avgExec.Float64
	}
	return &a, nil
}
