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

	"github.com/a2awatch/reddit-watch/internal/errs"
	"github.com/a2awatch/reddit-watch/internal/model"
)

const createTasksTableSQL = `
CREATE TABLE IF NOT EXISTS tasks (
    task_id VARCHAR(64) PRIMARY KEY,
    agent_type VARCHAR(64) NOT NULL,
    skill_name VARCHAR(128) NOT NULL,
    parameters JSONB NOT NULL DEFAULT '{}',
    parameters_hash CHAR(64) NOT NULL,
    workflow_id VARCHAR(64),
    idempotency_key VARCHAR(255),
    correlation_id VARCHAR(255),
    priority INTEGER NOT NULL DEFAULT 5,
    status VARCHAR(16) NOT NULL DEFAULT 'pending',
    retry_count INTEGER NOT NULL DEFAULT 0,
    max_retries INTEGER NOT NULL DEFAULT 3,
    next_retry_at TIMESTAMPTZ,
    lock_token VARCHAR(64),
    lock_expires_at TIMESTAMPTZ,
    started_at TIMESTAMPTZ,
    completed_at TIMESTAMPTZ,
    error_message TEXT,
    result_data JSONB,
    result_hash CHAR(64),
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// createTasksIndexesSQL covers the hot-path indexes spec section 4.1
// enumerates, plus the idempotency unique constraint from section 3 —
// scoped to a coalesced workflow_id since Postgres treats NULL as distinct
// in a UNIQUE index and the dedup key must still apply for workflow-less
// tasks.
const createTasksIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_tasks_status_created ON tasks(status, created_at);
CREATE INDEX IF NOT EXISTS idx_tasks_workflow_status ON tasks(workflow_id, status);
CREATE INDEX IF NOT EXISTS idx_tasks_agent_status_priority ON tasks(agent_type, status, priority);
CREATE INDEX IF NOT EXISTS idx_tasks_next_retry ON tasks(next_retry_at);
CREATE INDEX IF NOT EXISTS idx_tasks_lock_expires ON tasks(lock_expires_at);
CREATE UNIQUE INDEX IF NOT EXISTS uq_tasks_idempotency ON tasks(
    agent_type, skill_name, parameters_hash, COALESCE(workflow_id, '')
) WHERE status IN ('pending', 'running', 'completed');`

// TaskStore is the repository for Task rows.
type TaskStore struct {
	db *sql.DB
}

func NewTaskStore(db *sql.DB) *TaskStore { return &TaskStore{db: db} }

// FindDuplicate looks up a non-terminal task with the same idempotency key
// (spec section 4.2 find_duplicate_task).
func (s *TaskStore) FindDuplicate(ctx context.Context, agentType, skill, paramsHash, workflowID string) (*model.Task, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT task_id, agent_type, skill_name, parameters, parameters_hash, workflow_id,
       idempotency_key, correlation_id, priority, status, retry_count, max_retries,
       next_retry_at, lock_token, lock_expires_at, started_at, completed_at,
       error_message, result_data, result_hash, created_at, updated_at
FROM tasks
WHERE agent_type = $1 AND skill_name = $2 AND parameters_hash = $3
  AND COALESCE(workflow_id, '') = COALESCE($4, '')
  AND status IN ('pending', 'running', 'completed')
ORDER BY created_at DESC
LIMIT 1`, agentType, skill, paramsHash, nullableString(workflowID))
	task, err := scanTask(row)
	if err != nil {
		return nil, noRowsToNotFound(err)
	}
	return task, nil
}

// Insert creates a new task row. Callers should have already checked
// FindDuplicate; Insert still relies on the unique index as the source of
// truth under concurrent writers and returns errs.ErrDuplicate on a race.
func (s *TaskStore) Insert(ctx context.Context, t *model.Task) error {
	params, err := json.Marshal(t.Parameters)
	if err != nil {
		return fmt.Errorf("marshal parameters: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO tasks (task_id, agent_type, skill_name, parameters, parameters_hash,
                    workflow_id, idempotency_key, correlation_id, priority, status,
                    retry_count, max_retries, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$13)`,
		t.TaskID, t.AgentType, t.SkillName, params, t.ParametersHash,
		nullableString(t.WorkflowID), nullableString(t.IdempotencyKey), nullableString(t.CorrelationID),
		t.Priority, t.Status, t.RetryCount, t.MaxRetries, t.CreatedAt)
	return asDuplicate("insert task", err)
}

// Get loads a task by ID.
func (s *TaskStore) Get(ctx context.Context, taskID string) (*model.Task, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT task_id, agent_type, skill_name, parameters, parameters_hash, workflow_id,
       idempotency_key, correlation_id, priority, status, retry_count, max_retries,
       next_retry_at, lock_token, lock_expires_at, started_at, completed_at,
       error_message, result_data, result_hash, created_at, updated_at
FROM tasks WHERE task_id = $1`, taskID)
	task, err := scanTask(row)
	if err != nil {
		return nil, noRowsToNotFound(err)
	}
	return task, nil
}

// MarkRunning transitions a task to Running and stamps started_at (spec
// section 4.5 step b). started_at is only ever set the first time a task
// enters Running (spec section 3 invariant).
func (s *TaskStore) MarkRunning(ctx context.Context, taskID string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE tasks SET status = 'running',
       started_at = COALESCE(started_at, $2),
       updated_at = $2
WHERE task_id = $1`, taskID, now)
	return err
}

// Complete stores the task result and marks it Completed (spec section 4.5
// step d).
func (s *TaskStore) Complete(ctx context.Context, taskID string, result model.Params, resultHash string, now time.Time) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
UPDATE tasks SET status = 'completed', result_data = $2, result_hash = $3,
       completed_at = $4, updated_at = $4
WHERE task_id = $1`, taskID, raw, resultHash, now)
	return err
}

// FailTerminal marks a task permanently Failed (no further retries).
func (s *TaskStore) FailTerminal(ctx context.Context, taskID, message string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE tasks SET status = 'failed', error_message = $2, completed_at = $3, updated_at = $3
WHERE task_id = $1`, taskID, message, now)
	return err
}

// FailWithRetry marks a task Failed but eligible for retry, setting
// next_retry_at via the exponential backoff formula (spec section 4.5).
func (s *TaskStore) FailWithRetry(ctx context.Context, taskID, message string, nextRetryAt, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE tasks SET status = 'failed', error_message = $2, next_retry_at = $3, updated_at = $4
WHERE task_id = $1`, taskID, message, nextRetryAt, now)
	return err
}

// Cancel marks a task Cancelled from any status (spec section 3).
func (s *TaskStore) Cancel(ctx context.Context, taskID, reason string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE tasks SET status = 'cancelled', error_message = $2, completed_at = $3, updated_at = $3
WHERE task_id = $1`, taskID, reason, now)
	return err
}

// AcquireLease atomically claims a task's lease if it is unheld or expired
// (spec section 4.2). Returns true iff this caller now holds the lease.
func (s *TaskStore) AcquireLease(ctx context.Context, taskID, token string, ttl time.Duration, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE tasks SET lock_token = $2, lock_expires_at = $3, updated_at = $4
WHERE task_id = $1 AND (lock_token IS NULL OR lock_expires_at <= $4)`,
		taskID, token, now.Add(ttl), now)
	if err != nil {
		return false, fmt.Errorf("acquire lease: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acquire lease rows affected: %w", err)
	}
	return n == 1, nil
}

// ReleaseLease clears a task's lease only if token matches the current
// holder (spec section 4.2).
func (s *TaskStore) ReleaseLease(ctx context.Context, taskID, token string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE tasks SET lock_token = NULL, lock_expires_at = NULL, updated_at = $3
WHERE task_id = $1 AND lock_token = $2`, taskID, token, now)
	if err != nil {
		return false, fmt.Errorf("release lease: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("release lease rows affected: %w", err)
	}
	return n == 1, nil
}

// SweepExpiredLeases clears every row whose lease has expired (spec section
// 4.2) and returns the count cleared.
func (s *TaskStore) SweepExpiredLeases(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE tasks SET lock_token = NULL, lock_expires_at = NULL, updated_at = $1
WHERE lock_expires_at IS NOT NULL AND lock_expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("sweep expired leases: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep rows affected: %w", err)
	}
	return int(n), nil
}

// ResetForRetry reverts a task to Pending, clearing lease and timestamps,
// incrementing retry_count, and optionally merging checkpoint data (spec
// section 4.6, recovery "retry"/"checkpoint" strategies).
func (s *TaskStore) ResetForRetry(ctx context.Context, taskID string, checkpoint model.Params, nextRetryAt, now time.Time) error {
	task, err := s.Get(ctx, taskID)
	if err != nil {
		return err
	}
	params := task.Parameters
	if checkpoint != nil {
		if params == nil {
			params = model.Params{}
		}
		for k, v := range checkpoint {
			params[k] = v
		}
		params["_checkpoint_recovery"] = true
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal parameters: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
UPDATE tasks SET status = 'pending', started_at = NULL, completed_at = NULL,
       error_message = NULL, lock_token = NULL, lock_expires_at = NULL,
       retry_count = retry_count + 1, next_retry_at = $2, parameters = $3, updated_at = $4
WHERE task_id = $1`, taskID, nextRetryAt, raw, now)
	return err
}

// AnnotateError updates error_message without touching status, used by the
// recovery daemon's "manual" strategy which must leave the task alone for a
// human to look at (spec section 4.6 step 4).
func (s *TaskStore) AnnotateError(ctx context.Context, taskID, message string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE tasks SET error_message = $2, updated_at = $3
WHERE task_id = $1`, taskID, message, now)
	return err
}

// ScanFailedOrStuck returns tasks eligible for recovery (spec section 4.6
// step 2): Failed, or Running past 1h, or Pending past 30m, within maxAge.
func (s *TaskStore) ScanFailedOrStuck(ctx context.Context, maxAge time.Duration, now time.Time) ([]*model.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT task_id, agent_type, skill_name, parameters, parameters_hash, workflow_id,
       idempotency_key, correlation_id, priority, status, retry_count, max_retries,
       next_retry_at, lock_token, lock_expires_at, started_at, completed_at,
       error_message, result_data, result_hash, created_at, updated_at
FROM tasks
WHERE created_at > $1 AND (
    status = 'failed'
    OR (status = 'running' AND started_at < $2)
    OR (status = 'pending' AND created_at < $3)
)`, now.Add(-maxAge), now.Add(-time.Hour), now.Add(-30*time.Minute))
	if err != nil {
		return nil, fmt.Errorf("scan failed/stuck tasks: %w", err)
	}
	defer rows.Close()

	var out []*model.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, task)
	}
	return out, rows.Err()
}

// CountByWorkflowStatus counts tasks of a workflow in a given status, used
// to verify the "completed stages == tasks completed" invariant (spec
// section 8 invariant 3).
func (s *TaskStore) CountByWorkflowStatus(ctx context.Context, workflowID string, status model.TaskStatus) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM tasks WHERE workflow_id = $1 AND status = $2`,
		workflowID, status).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*model.Task, error) {
	var t model.Task
	var params, result []byte
	var workflowID, idemKey, corrID, lockToken, errMsg, resultHash sql.NullString
	var nextRetryAt, lockExpiresAt, startedAt, completedAt sql.NullTime

	if err := row.Scan(
		&t.TaskID, &t.AgentType, &t.SkillName, &params, &t.ParametersHash, &workflowID,
		&idemKey, &corrID, &t.Priority, &t.Status, &t.RetryCount, &t.MaxRetries,
		&nextRetryAt, &lockToken, &lockExpiresAt, &startedAt, &completedAt,
		&errMsg, &result, &resultHash, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if len(params) > 0 {
		if err := json.Unmarshal(params, &t.Parameters); err != nil {
			return nil, fmt.Errorf("unmarshal parameters: %w", err)
		}
	}
	if len(result) > 0 {
		if err := json.Unmarshal(result, &t.ResultData); err != nil {
			return nil, fmt.Errorf("unmarshal result_data: %w", err)
		}
	}
	t.WorkflowID = workflowID.String
	t.IdempotencyKey = idemKey.String
	t.CorrelationID = corrID.String
	t.LockToken = lockToken.String
	t.ErrorMessage = errMsg.String
	t.ResultHash = resultHash.String
	if nextRetryAt.Valid {
		t.NextRetryAt = &nextRetryAt.Time
	}
	if lockExpiresAt.Valid {
		t.LockExpiresAt = &lockExpiresAt.Time
	}
	if startedAt.Valid {
		t.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}
	if t.Status == "" {
		return nil, errs.ErrNotFound
	}
	return &t, nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
