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
	"errors"
	"fmt"
	"time"

	"github.com/a2awatch/reddit-watch/internal/model"
)

// createTaskRecoveriesTableSQL has no uniqueness on original_task_id alone
// since a task may be recovered more than once over its lifetime; the "at
// most one active recovery" invariant (spec section 3) is enforced at the
// application layer via ActiveForTask.
const createTaskRecoveriesTableSQL = `
CREATE TABLE IF NOT EXISTS task_recoveries (
    task_id VARCHAR(64) PRIMARY KEY,
    original_task_id VARCHAR(64) NOT NULL,
    recovery_strategy VARCHAR(16) NOT NULL,
    recovery_status VARCHAR(16) NOT NULL DEFAULT 'pending',
    recovery_attempt INTEGER NOT NULL DEFAULT 1,
    max_recovery_attempts INTEGER NOT NULL DEFAULT 3,
    checkpoint_data JSONB,
    failure_reason TEXT,
    recovery_started_at TIMESTAMPTZ,
    recovery_completed_at TIMESTAMPTZ,
    recovery_error TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_task_recoveries_original ON task_recoveries(original_task_id);
CREATE INDEX IF NOT EXISTS idx_task_recoveries_status ON task_recoveries(recovery_status);`

type TaskRecoveryStore struct {
	db *sql.DB
}

func NewTaskRecoveryStore(db *sql.DB) *TaskRecoveryStore { return &TaskRecoveryStore{db: db} }

// ActiveForTask returns the in-flight (non-terminal) recovery for an
// original task, or nil with no error when there is none (spec section 3
// invariant).
func (s *TaskRecoveryStore) ActiveForTask(ctx context.Context, originalTaskID string) (*model.TaskRecovery, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT task_id, original_task_id, recovery_strategy, recovery_status, recovery_attempt,
       max_recovery_attempts, checkpoint_data, failure_reason, recovery_started_at,
       recovery_completed_at, recovery_error, created_at, updated_at
FROM task_recoveries
WHERE original_task_id = $1 AND recovery_status NOT IN ('completed', 'failed')
ORDER BY created_at DESC LIMIT 1`, originalTaskID)
	r, err := scanTaskRecovery(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *TaskRecoveryStore) Insert(ctx context.Context, r *model.TaskRecovery) error {
	checkpoint, err := json.Marshal(r.CheckpointData)
	if err != nil {
		return fmt.Errorf("marshal checkpoint_data: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO task_recoveries (task_id, original_task_id, recovery_strategy, recovery_status,
                              recovery_attempt, max_recovery_attempts, checkpoint_data, failure_reason)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		r.TaskID, r.OriginalTaskID, r.RecoveryStrategy, r.RecoveryStatus,
		r.RecoveryAttempt, r.MaxRecoveryAttempts, checkpoint, nullableString(r.FailureReason))
	return asDuplicate("insert task recovery", err)
}

func (s *TaskRecoveryStore) MarkRecovering(ctx context.Context, taskID string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE task_recoveries SET recovery_status = 'recovering', recovery_started_at = $2, updated_at = $2
WHERE task_id = $1`, taskID, now)
	return err
}

func (s *TaskRecoveryStore) MarkCompleted(ctx context.Context, taskID string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE task_recoveries SET recovery_status = 'completed', recovery_completed_at = $2, updated_at = $2
WHERE task_id = $1`, taskID, now)
	return err
}

func (s *TaskRecoveryStore) MarkFailed(ctx context.Context, taskID, recoveryErr string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE task_recoveries SET recovery_status = 'failed', recovery_error = $2,
       recovery_completed_at = $3, updated_at = $3
WHERE task_id = $1`, taskID, recoveryErr, now)
	return err
}

// ScanPending returns recoveries awaiting execution (spec section 4.6
// process_pending_recoveries).
func (s *TaskRecoveryStore) ScanPending(ctx context.Context) ([]*model.TaskRecovery, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT task_id, original_task_id, recovery_strategy, recovery_status, recovery_attempt,
       max_recovery_attempts, checkpoint_data, failure_reason, recovery_started_at,
       recovery_completed_at, recovery_error, created_at, updated_at
FROM task_recoveries WHERE recovery_status = 'pending'
ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("scan pending recoveries: %w", err)
	}
	defer rows.Close()
	var out []*model.TaskRecovery
	for rows.Next() {
		r, err := scanTaskRecovery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PurgeTerminal deletes completed/failed recovery rows older than maxAge
// (spec section 4.6 step 5, CleanupCompletedRecoveries) and returns the
// count removed.
func (s *TaskRecoveryStore) PurgeTerminal(ctx context.Context, maxAge time.Duration, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
DELETE FROM task_recoveries
WHERE recovery_status IN ('completed', 'failed') AND updated_at < $1`, now.Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("purge terminal recoveries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge rows affected: %w", err)
	}
	return int(n), nil
}

func scanTaskRecovery(row rowScanner) (*model.TaskRecovery, error) {
	var r model.TaskRecovery
	var checkpoint []byte
	var failureReason, recoveryError sql.NullString
	var startedAt, completedAt sql.NullTime

	if err := row.Scan(
		&r.TaskID, &r.OriginalTaskID, &r.RecoveryStrategy, &r.RecoveryStatus, &r.RecoveryAttempt,
		&r.MaxRecoveryAttempts, &checkpoint, &failureReason, &startedAt, &completedAt,
		&recoveryError, &r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(checkpoint) > 0 {
		if err := json.Unmarshal(checkpoint, &r.CheckpointData); err != nil {
			return nil, fmt.Errorf("unmarshal checkpoint_data: %w", err)
		}
	}
	r.FailureReason = failureReason.String
	r.RecoveryError = recoveryError.String
	if startedAt.Valid {
		r.RecoveryStartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		r.RecoveryCompletedAt = &completedAt.Time
	}
	return &r, nil
}
