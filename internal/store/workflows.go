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

	"github.com/a2awatch/reddit-watch/internal/model"
)

// createWorkflowsTableSQL intentionally has no foreign key from tasks to
// workflows: deleting a workflow must never cascade-delete its tasks (spec
// section 4.1 cascade policy), so the relationship is enforced only at the
// application layer.
const createWorkflowsTableSQL = `
CREATE TABLE IF NOT EXISTS workflows (
    workflow_id VARCHAR(64) PRIMARY KEY,
    workflow_type VARCHAR(64) NOT NULL,
    status VARCHAR(16) NOT NULL DEFAULT 'pending',
    config JSONB NOT NULL DEFAULT '{}',
    schedule VARCHAR(32),
    last_run TIMESTAMPTZ,
    next_run TIMESTAMPTZ,
    run_count INTEGER NOT NULL DEFAULT 0,
    error_count INTEGER NOT NULL DEFAULT 0,
    posts_processed INTEGER NOT NULL DEFAULT 0,
    comments_processed INTEGER NOT NULL DEFAULT 0,
    relevant_items INTEGER NOT NULL DEFAULT 0,
    summaries_created INTEGER NOT NULL DEFAULT 0,
    alerts_sent INTEGER NOT NULL DEFAULT 0,
    error_message TEXT,
    started_at TIMESTAMPTZ,
    completed_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_workflows_status_next_run ON workflows(status, next_run);`

type WorkflowStore struct {
	db *sql.DB
}

func NewWorkflowStore(db *sql.DB) *WorkflowStore { return &WorkflowStore{db: db} }

func (s *WorkflowStore) Insert(ctx context.Context, w *model.Workflow) error {
	cfg, err := json.Marshal(w.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO workflows (workflow_id, workflow_type, status, config, schedule, next_run)
VALUES ($1,$2,$3,$4,$5,$6)`,
		w.WorkflowID, w.WorkflowType, w.Status, cfg, nullableString(w.Schedule), w.NextRun)
	return asDuplicate("insert workflow", err)
}

func (s *WorkflowStore) Get(ctx context.Context, workflowID string) (*model.Workflow, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT workflow_id, workflow_type, status, config, schedule, last_run, next_run,
       run_count, error_count, posts_processed, comments_processed, relevant_items,
       summaries_created, alerts_sent, error_message, started_at, completed_at
FROM workflows WHERE workflow_id = $1`, workflowID)
	w, err := scanWorkflow(row)
	if err != nil {
		return nil, noRowsToNotFound(err)
	}
	return w, nil
}

// DueForRun returns workflows whose schedule has elapsed (spec section 4.3
// scheduler tick).
func (s *WorkflowStore) DueForRun(ctx context.Context, now time.Time) ([]*model.Workflow, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT workflow_id, workflow_type, status, config, schedule, last_run, next_run,
       run_count, error_count, posts_processed, comments_processed, relevant_items,
       summaries_created, alerts_sent, error_message, started_at, completed_at
FROM workflows
WHERE status != 'running' AND (next_run IS NULL OR next_run <= $1)`, now)
	if err != nil {
		return nil, fmt.Errorf("list due workflows: %w", err)
	}
	defer rows.Close()
	var out []*model.Workflow
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *WorkflowStore) MarkRunning(ctx context.Context, workflowID string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE workflows SET status = 'running', started_at = $2 WHERE workflow_id = $1`,
		workflowID, now)
	return err
}

// RecordCompletion stores final stage counters and schedules the next run
// (spec section 4.3 per-cycle bookkeeping).
func (s *WorkflowStore) RecordCompletion(ctx context.Context, workflowID string, status model.WorkflowStatus, counters WorkflowCounters, errMsg string, now time.Time, nextRun *time.Time) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE workflows SET status = $2, completed_at = $3, last_run = $3, next_run = $4,
       run_count = run_count + 1,
       error_count = error_count + $5,
       posts_processed = posts_processed + $6,
       comments_processed = comments_processed + $7,
       relevant_items = relevant_items + $8,
       summaries_created = summaries_created + $9,
       alerts_sent = alerts_sent + $10,
       error_message = $11
WHERE workflow_id = $1`,
		workflowID, status, now, nextRun,
		boolToInt(status == model.TaskFailed),
		counters.PostsProcessed, counters.CommentsProcessed, counters.RelevantItems,
		counters.SummariesCreated, counters.AlertsSent, nullableString(errMsg))
	return err
}

// WorkflowCounters accumulates per-cycle stage output (spec section 3
// Workflow fields).
type WorkflowCounters struct {
	PostsProcessed    int
	CommentsProcessed int
	RelevantItems     int
	SummariesCreated  int
	AlertsSent        int
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func scanWorkflow(row rowScanner) (*model.Workflow, error) {
	var w model.Workflow
	var cfg []byte
	var schedule, errMsg sql.NullString
	var lastRun, nextRun, startedAt, completedAt sql.NullTime

	if err := row.Scan(
		&w.WorkflowID, &w.WorkflowType, &w.Status, &cfg, &schedule, &lastRun, &nextRun,
		&w.RunCount, &w.ErrorCount, &w.PostsProcessed, &w.CommentsProcessed, &w.RelevantItems,
		&w.SummariesCreated, &w.AlertsSent, &errMsg, &startedAt, &completedAt,
	); err != nil {
		return nil, err
	}
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &w.Config); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}
	w.Schedule = schedule.String
	w.ErrorMessage = errMsg.String
	if lastRun.Valid {
		w.LastRun = &lastRun.Time
	}
	if nextRun.Valid {
		w.NextRun = &nextRun.Time
	}
	if startedAt.Valid {
		w.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		w.CompletedAt = &completedAt.Time
	}
	return &w, nil
}
