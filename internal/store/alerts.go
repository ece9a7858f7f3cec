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

const createAlertBatchesTableSQL = `
CREATE TABLE IF NOT EXISTS alert_batches (
    batch_id VARCHAR(64) PRIMARY KEY,
    title VARCHAR(255) NOT NULL,
    summary TEXT,
    items JSONB NOT NULL DEFAULT '[]',
    total_items INTEGER NOT NULL DEFAULT 0,
    priority INTEGER NOT NULL DEFAULT 5,
    channels TEXT[] NOT NULL DEFAULT '{}',
    schedule_type VARCHAR(16) NOT NULL DEFAULT 'immediate',
    status VARCHAR(16) NOT NULL DEFAULT 'pending',
    sent_at TIMESTAMPTZ,
    delivery_attempts INTEGER NOT NULL DEFAULT 0,
    last_error TEXT,
    dedup_hash CHAR(64) NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    CONSTRAINT uq_alert_batches_dedup UNIQUE (dedup_hash)
);`

const createAlertBatchesIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_alert_batches_status_priority_created ON alert_batches(status, priority, created_at);`

// createAlertDeliveriesTableSQL cascades on alert_batches deletion: a batch
// and its per-channel delivery records are one unit, unlike workflows/tasks
// (spec section 4.1 cascade policy).
const createAlertDeliveriesTableSQL = `
CREATE TABLE IF NOT EXISTS alert_deliveries (
    delivery_id VARCHAR(64) PRIMARY KEY,
    alert_batch_id VARCHAR(64) NOT NULL REFERENCES alert_batches(batch_id) ON DELETE CASCADE,
    channel VARCHAR(16) NOT NULL,
    status VARCHAR(16) NOT NULL DEFAULT 'pending',
    recipient VARCHAR(255),
    webhook_url TEXT,
    message_id VARCHAR(255),
    sent_at TIMESTAMPTZ,
    delivery_time_ms BIGINT,
    error_message TEXT,
    retry_count INTEGER NOT NULL DEFAULT 0,
    dedup_hash CHAR(64) NOT NULL,
    CONSTRAINT uq_alert_deliveries_batch_channel_recipient UNIQUE (alert_batch_id, channel, recipient)
);`

type AlertBatchStore struct {
	db *sql.DB
}

func NewAlertBatchStore(db *sql.DB) *AlertBatchStore { return &AlertBatchStore{db: db} }

// InsertIfNew creates a batch unless one with the same dedup hash already
// exists (spec section 4.7 dedup), returning the existing batch when it
// does.
func (s *AlertBatchStore) InsertIfNew(ctx context.Context, b *model.AlertBatch) (*model.AlertBatch, bool, error) {
	items, err := json.Marshal(b.Items)
	if err != nil {
		return nil, false, fmt.Errorf("marshal items: %w", err)
	}
	channels := make([]string, len(b.Channels))
	for i, c := range b.Channels {
		channels[i] = string(c)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO alert_batches (batch_id, title, summary, items, total_items, priority,
                            channels, schedule_type, status, dedup_hash)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (dedup_hash) DO NOTHING`,
		b.BatchID, b.Title, b.Summary, items, b.TotalItems, b.Priority,
		pq.Array(channels), b.ScheduleType, b.Status, b.DedupHash)
	if err != nil {
		return nil, false, asDuplicate("insert alert batch", err)
	}
	existing, err := s.GetByDedupHash(ctx, b.DedupHash)
	if err != nil {
		return nil, false, err
	}
	return existing, existing.BatchID == b.BatchID, nil
}

func (s *AlertBatchStore) GetByDedupHash(ctx context.Context, dedupHash string) (*model.AlertBatch, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT batch_id, title, summary, items, total_items, priority, channels, schedule_type,
       status, sent_at, delivery_attempts, last_error, dedup_hash, created_at
FROM alert_batches WHERE dedup_hash = $1`, dedupHash)
	b, err := scanAlertBatch(row)
	if err != nil {
		return nil, noRowsToNotFound(err)
	}
	return b, nil
}

func (s *AlertBatchStore) Get(ctx context.Context, batchID string) (*model.AlertBatch, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT batch_id, title, summary, items, total_items, priority, channels, schedule_type,
       status, sent_at, delivery_attempts, last_error, dedup_hash, created_at
FROM alert_batches WHERE batch_id = $1`, batchID)
	b, err := scanAlertBatch(row)
	if err != nil {
		return nil, noRowsToNotFound(err)
	}
	return b, nil
}

// Pending returns batches awaiting delivery ordered by priority then age
// (spec section 4.7 delivery loop).
func (s *AlertBatchStore) Pending(ctx context.Context) ([]*model.AlertBatch, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT batch_id, title, summary, items, total_items, priority, channels, schedule_type,
       status, sent_at, delivery_attempts, last_error, dedup_hash, created_at
FROM alert_batches WHERE status = 'pending' ORDER BY priority DESC, created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list pending alert batches: %w", err)
	}
	defer rows.Close()
	var out []*model.AlertBatch
	for rows.Next() {
		b, err := scanAlertBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *AlertBatchStore) MarkSent(ctx context.Context, batchID string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE alert_batches SET status = 'sent', sent_at = $2, delivery_attempts = delivery_attempts + 1
WHERE batch_id = $1`, batchID, now)
	return err
}

func (s *AlertBatchStore) MarkFailed(ctx context.Context, batchID, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE alert_batches SET status = 'failed', last_error = $2, delivery_attempts = delivery_attempts + 1
WHERE batch_id = $1`, batchID, errMsg)
	return err
}

func scanAlertBatch(row rowScanner) (*model.AlertBatch, error) {
	var b model.AlertBatch
	var items []byte
	var channels pq.StringArray
	var summary, lastError sql.NullString
	var sentAt sql.NullTime

	if err := row.Scan(
		&b.BatchID, &b.Title, &summary, &items, &b.TotalItems, &b.Priority, &channels,
		&b.ScheduleType, &b.Status, &sentAt, &b.DeliveryAttempts, &lastError,
		&b.DedupHash, &b.CreatedAt,
	); err != nil {
		return nil, err
	}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &b.Items); err != nil {
			return nil, fmt.Errorf("unmarshal items: %w", err)
		}
	}
	b.Summary = summary.String
	b.LastError = lastError.String
	b.Channels = make([]model.Channel, len(channels))
	for i, c := range channels {
		b.Channels[i] = model.Channel(c)
	}
	if sentAt.Valid {
		b.SentAt = &sentAt.Time
	}
	return &b, nil
}

type AlertDeliveryStore struct {
	db *sql.DB
}

func NewAlertDeliveryStore(db *sql.DB) *AlertDeliveryStore { return &AlertDeliveryStore{db: db} }

func (s *AlertDeliveryStore) Insert(ctx context.Context, d *model.AlertDelivery) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO alert_deliveries (delivery_id, alert_batch_id, channel, status, recipient,
                               webhook_url, dedup_hash)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (alert_batch_id, channel, recipient) DO NOTHING`,
		d.DeliveryID, d.AlertBatchID, d.Channel, d.Status, nullableString(d.Recipient),
		nullableString(d.WebhookURL), d.DedupHash)
	return asDuplicate("insert alert delivery", err)
}

func (s *AlertDeliveryStore) MarkSent(ctx context.Context, deliveryID, messageID string, deliveryMs int64, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE alert_deliveries SET status = 'sent', message_id = $2, delivery_time_ms = $3, sent_at = $4
WHERE delivery_id = $1`, deliveryID, nullableString(messageID), deliveryMs, now)
	return err
}

func (s *AlertDeliveryStore) MarkFailed(ctx context.Context, deliveryID, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE alert_deliveries SET status = 'failed', error_message = $2, retry_count = retry_count + 1
WHERE delivery_id = $1`, deliveryID, errMsg)
	return err
}

// ByBatch returns every delivery recorded for a batch.
func (s *AlertDeliveryStore) ByBatch(ctx context.Context, batchID string) ([]*model.AlertDelivery, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT delivery_id, alert_batch_id, channel, status, recipient, webhook_url, message_id,
       sent_at, delivery_time_ms, error_message, retry_count, dedup_hash
FROM alert_deliveries WHERE alert_batch_id = $1`, batchID)
	if err != nil {
		return nil, fmt.Errorf("list deliveries by batch: %w", err)
	}
	defer rows.Close()
	var out []*model.AlertDelivery
	for rows.Next() {
		d, err := scanAlertDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanAlertDelivery(row rowScanner) (*model.AlertDelivery, error) {
	var d model.AlertDelivery
	var recipient, webhookURL, messageID, errMsg sql.NullString
	var sentAt sql.NullTime
	var deliveryMs sql.NullInt64

	if err := row.Scan(
		&d.DeliveryID, &d.AlertBatchID, &d.Channel, &d.Status, &recipient, &webhookURL,
		&messageID, &sentAt, &deliveryMs, &errMsg, &d.RetryCount, &d.DedupHash,
	); err != nil {
		return nil, err
	}
	d.Recipient = recipient.String
	d.WebhookURL = webhookURL.String
	d.MessageID = messageID.String
	d.ErrorMessage = errMsg.String
	if sentAt.Valid {
		d.SentAt = &sentAt.Time
	}
	if deliveryMs.Valid {
		d.DeliveryTimeMs = &deliveryMs.Int64
	}
	return &d, nil
}
