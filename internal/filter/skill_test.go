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

package filter

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a2awatch/reddit-watch/internal/model"
	"github.com/a2awatch/reddit-watch/internal/store"
)

func contentColumns() []string {
	return []string{
		"content_hash", "content_type", "external_id", "processing_status", "first_seen_at",
		"processed_at", "source_agent", "workflow_id", "extra_data",
	}
}

func contentRow(hash, externalID, title, body, topic string) []driver.Value {
	extra := []byte(`{"title":"` + title + `","body":"` + body + `","topic":"` + topic + `"}`)
	return []driver.Value{
		hash, string(model.ContentPost), externalID, string(model.ContentNew), time.Now(),
		nil, "retrieval", "wf-1", extra,
	}
}

func TestBatchFilterPostsMarksRelevantAboveThreshold(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	content := store.NewContentDedupStore(db)
	skill := New(KeywordClassifier{}, content, 0.5, 0.7, 0.3)

	mock.ExpectQuery("SELECT (.|\n)*FROM content_dedup WHERE content_type").
		WillReturnRows(sqlmock.NewRows(contentColumns()).AddRow(contentRow("h1", "p1", "golang release", "body", "golang")...))
	mock.ExpectExec("UPDATE content_dedup SET processing_status = 'processed'").WillReturnResult(sqlmock.NewResult(0, 1))

	result, err := skill.BatchFilterPosts(context.Background(), map[string]any{
		"post_ids": []any{"p1"},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, result["processed"])
	assert.EqualValues(t, 1, result["relevant"])
	assert.Equal(t, []string{"p1"}, result["relevant_ids"])
}

func TestBatchFilterPostsExcludesBelowThreshold(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	content := store.NewContentDedupStore(db)
	skill := New(KeywordClassifier{}, content, 0.9, 0.7, 0.3)

	mock.ExpectQuery("SELECT (.|\n)*FROM content_dedup WHERE content_type").
		WillReturnRows(sqlmock.NewRows(contentColumns()).AddRow(contentRow("h1", "p1", "unrelated post", "body", "golang")...))
	mock.ExpectExec("UPDATE content_dedup SET processing_status = 'processed'").WillReturnResult(sqlmock.NewResult(0, 1))

	result, err := skill.BatchFilterPosts(context.Background(), map[string]any{
		"post_ids": []any{"p1"},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, result["processed"])
	assert.EqualValues(t, 0, result["relevant"])
}

func TestBatchFilterPostsEmptyIDsShortCircuits(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	skill := New(KeywordClassifier{}, store.NewContentDedupStore(db), 0.5, 0.7, 0.3)
	result, err := skill.BatchFilterPosts(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.EqualValues(t, 0, result["processed"])
}
