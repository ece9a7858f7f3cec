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

const createContentDedupTableSQL = `
CREATE TABLE IF NOT EXISTS content_dedup (
    content_hash CHAR(64) PRIMARY KEY,
    content_type VARCHAR(16) NOT NULL,
    external_id VARCHAR(255) NOT NULL,
    processing_status VARCHAR(16) NOT NULL DEFAULT 'new',
    first_seen_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    processed_at TIMESTAMPTZ,
    source_agent VARCHAR(64),
    workflow_id VARCHAR(64),
    extra_data JSONB,
    CONSTRAINT uq_content_dedup_type_external UNIQUE (content_type, external_id)
);`

type ContentDedupStore struct {
	db *sql.DB
}

func NewContentDedupStore(db *sql.DB) *ContentDedupStore { return &ContentDedupStore{db: db} }

// RegisterIfNew inserts a content-dedup row and reports whether it was new
// (spec section 4.2 check_content_duplication / register_content_processing:
// a single atomic statement rather than a check-then-insert race).
func (s *ContentDedupStore) RegisterIfNew(ctx context.Context, c *model.ContentDedup) (bool, error) {
	extra, err := json.Marshal(c.ExtraData)
	if err != nil {
		return false, fmt.Errorf("marshal extra_data: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO content_dedup (content_hash, content_type, external_id, processing_status,
                            source_agent, workflow_id, extra_data)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (content_hash) DO NOTHING`,
		c.ContentHash, c.ContentType, c.ExternalID, c.ProcessingStatus,
		nullableString(c.SourceAgent), nullableString(c.WorkflowID), extra)
	if err != nil {
		return false, asDuplicate("register content", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *ContentDedupStore) Get(ctx context.Context, contentHash string) (*model.ContentDedup, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT content_hash, content_type, external_id, processing_status, first_seen_at,
       processed_at, source_agent, workflow_id, extra_data
FROM content_dedup WHERE content_hash = $1`, contentHash)
	c, err := scanContentDedup(row)
	if err != nil {
		return nil, noRowsToNotFound(err)
	}
	return c, nil
}

// GetByExternalID looks up a content-dedup row by its natural key, used by
// downstream stages (filter, summarise) that only carry the external post
// ID forward, not the content hash (spec section 4.5 stages 2-3).
func (s *ContentDedupStore) GetByExternalID(ctx context.Context, contentType model.ContentType, externalID string) (*model.ContentDedup, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT content_hash, content_type, external_id, processing_status, first_seen_at,
       processed_at, source_agent, workflow_id, extra_data
FROM content_dedup WHERE content_type = $1 AND external_id = $2`, contentType, externalID)
	c, err := scanContentDedup(row)
	if err != nil {
		return nil, noRowsToNotFound(err)
	}
	return c, nil
}

func (s *ContentDedupStore) MarkProcessed(ctx context.Context, contentHash string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE content_dedup SET processing_status = 'processed', processed_at = $2
WHERE content_hash = $1`, contentHash, now)
	return err
}

func (s *ContentDedupStore) MarkFailed(ctx context.Context, contentHash string) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE content_dedup SET processing_status = 'failed' WHERE content_hash = $1`, contentHash)
	return err
}

func scanContentDedup(row rowScanner) (*model.ContentDedup, error) {
	var c model.ContentDedup
	var sourceAgent, workflowID sql.NullString
	var processedAt sql.NullTime
	var extra []byte

	if err := row.Scan(
		&c.ContentHash, &c.ContentType, &c.ExternalID, &c.ProcessingStatus, &c.FirstSeenAt,
		&processedAt, &sourceAgent, &workflowID, &extra,
	); err != nil {
		return nil, err
	}
	if len(extra) > 0 {
		if err := json.Unmarshal(extra, &c.ExtraData); err != nil {
			return nil, fmt.Errorf("unmarshal extra_data: %w", err)
		}
	}
	c.SourceAgent = sourceAgent.String
	c.WorkflowID = workflowID.String
	if processedAt.Valid {
		c.ProcessedAt = &processedAt.Time
	}
	return &c, nil
}
