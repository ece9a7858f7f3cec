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

func newMockAlertBatchStore(t *testing.T) (*AlertBatchStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewAlertBatchStore(db), mock
}

func newMockAlertDeliveryStore(t *testing.T) (*AlertDeliveryStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewAlertDeliveryStore(db), mock
}

func alertBatchColumns() []string {
	return []string{
		"batch_id", "title", "summary", "items", "total_items", "priority", "channels",
		"schedule_type", "status", "sent_at", "delivery_attempts", "last_error",
		"dedup_hash", "created_at",
	}
}

func alertBatchRow(id, dedupHash string) []driver.Value {
	return []driver.Value{
		id, "Reddit Watch Alert", "2 relevant posts", []byte(`[]`), 2, 5, "{slack}",
		"immediate", "pending", nil, 0, nil,
		dedupHash, time.Now(),
	}
}

func TestAlertBatchInsertIfNewCreatesFreshBatch(t *testing.T) {
	s, mock := newMockAlertBatchStore(t)
	mock.ExpectExec("INSERT INTO alert_batches").WillReturnResult(sqlmock.NewResult(0, 1))
	rows := sqlmock.NewRows(alertBatchColumns()).AddRow(alertBatchRow("batch-1", "hash-1")...)
	mock.ExpectQuery("SELECT (.|\n)*FROM alert_batches WHERE dedup_hash").WillReturnRows(rows)

	b, isNew, err := s.InsertIfNew(context.Background(), &model.AlertBatch{
		BatchID: "batch-1", Title: "Reddit Watch Alert", DedupHash: "hash-1",
		Channels: []model.Channel{model.ChannelSlack}, Status: model.BatchPending,
	})
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, "batch-1", b.BatchID)
}

func TestAlertBatchInsertIfNewReturnsExistingOnDuplicateHash(t *testing.T) {
	s, mock := newMockAlertBatchStore(t)
	mock.ExpectExec("INSERT INTO alert_batches").WillReturnResult(sqlmock.NewResult(0, 0))
	rows := sqlmock.NewRows(alertBatchColumns()).AddRow(alertBatchRow("batch-existing", "hash-1")...)
	mock.ExpectQuery("SELECT (.|\n)*FROM alert_batches WHERE dedup_hash").WillReturnRows(rows)

	b, isNew, err := s.InsertIfNew(context.Background(), &model.AlertBatch{
		BatchID: "batch-2", Title: "Reddit Watch Alert", DedupHash: "hash-1",
		Channels: []model.Channel{model.ChannelSlack}, Status: model.BatchPending,
	})
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, "batch-existing", b.BatchID)
}

func TestAlertBatchPendingOrdersByPriority(t *testing.T) {
	s, mock := newMockAlertBatchStore(t)
	rows := sqlmock.NewRows(alertBatchColumns()).
		AddRow(alertBatchRow("batch-1", "hash-1")...).
		AddRow(alertBatchRow("batch-2", "hash-2")...)
	mock.ExpectQuery("SELECT (.|\n)*FROM alert_batches WHERE status = 'pending'").WillReturnRows(rows)

	out, err := s.Pending(context.Background())
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestAlertBatchMarkSentAndMarkFailed(t *testing.T) {
	s, mock := newMockAlertBatchStore(t)
	mock.ExpectExec("UPDATE alert_batches SET status = 'sent'").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.MarkSent(context.Background(), "batch-1", time.Now()))

	mock.ExpectExec("UPDATE alert_batches SET status = 'failed'").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.MarkFailed(context.Background(), "batch-1", "smtp timeout"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertDeliveryInsertIgnoresDuplicateRecipient(t *testing.T) {
	s, mock := newMockAlertDeliveryStore(t)
	mock.ExpectExec("INSERT INTO alert_deliveries").WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.Insert(context.Background(), &model.AlertDelivery{
		DeliveryID: "d-1", AlertBatchID: "batch-1", Channel: model.ChannelSlack,
		Status: model.DeliveryPending, DedupHash: "dh-1",
	})
	require.NoError(t, err)
}

func TestAlertDeliveryMarkSentAndFailed(t *testing.T) {
	s, mock := newMockAlertDeliveryStore(t)
	mock.ExpectExec("UPDATE alert_deliveries SET status = 'sent'").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.MarkSent(context.Background(), "d-1", "msg-1", 42, time.Now()))

	mock.ExpectExec("UPDATE alert_deliveries SET status = 'failed'").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.MarkFailed(context.Background(), "d-1", "webhook 500"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertDeliveryByBatch(t *testing.T) {
	s, mock := newMockAlertDeliveryStore(t)
	cols := []string{
		"delivery_id", "alert_batch_id", "channel", "status", "recipient", "webhook_url",
		"message_id", "sent_at", "delivery_time_ms", "error_message", "retry_count", "dedup_hash",
	}
	rows := sqlmock.NewRows(cols).AddRow(
		"d-1", "batch-1", "slack", "sent", nil, "https://hooks.example/x",
		"msg-1", time.Now(), int64(120), nil, 0, "dh-1",
	)
	mock.ExpectQuery("SELECT (.|\n)*FROM alert_deliveries WHERE alert_batch_id").WillReturnRows(rows)

	out, err := s.ByBatch(context.Background(), "batch-1")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "d-1", out[0].DeliveryID)
}
