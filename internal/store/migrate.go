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
	"fmt"
)

// migration is one versioned, idempotent DDL step. Re-expressed from the
// original's Alembic versions (original_source/alembic/versions) as plain
// SQL, since this module has no ORM migration runner.
type migration struct {
	version int
	name    string
	sql     string
}

var migrations = []migration{
	{1, "create_schema_migrations", createSchemaMigrationsSQL},
	{2, "create_tasks", createTasksTableSQL + createTasksIndexesSQL},
	{3, "create_workflows", createWorkflowsTableSQL},
	{4, "create_agent_states", createAgentStatesTableSQL + createAgentStatesIndexesSQL},
	{5, "create_task_recoveries", createTaskRecoveriesTableSQL},
	{6, "create_content_dedup", createContentDedupTableSQL},
	{7, "create_alert_batches", createAlertBatchesTableSQL + createAlertBatchesIndexesSQL},
	{8, "create_alert_deliveries", createAlertDeliveriesTableSQL},
}

const createSchemaMigrationsSQL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// Migrate applies every migration not already recorded in
// schema_migrations, in version order. It is safe to call repeatedly (spec
// section 6 CLI surface: "migrate" is idempotent).
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, createSchemaMigrationsSQL); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied := map[int]bool{}
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("list applied migrations: %w", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return fmt.Errorf("scan applied migration: %w", err)
		}
		applied[v] = true
	}
	rows.Close()

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d (%s): %w", m.version, m.name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`,
			m.version, m.name); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}
	}
	return nil
}
