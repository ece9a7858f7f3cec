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

package summarise

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

func contentRow(hash, externalID, title, body string) []driver.Value {
	extra := []byte(`{"title":"` + title + `","body":"` + body + `"}`)
	return []driver.Value{
		hash, string(model.ContentPost), externalID, string(model.ContentProcessed), time.Now(),
		nil, "filter", "wf-1", extra,
	}
}

func TestSummarizeContentConcatenatesAndTruncates(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	content := store.NewContentDedupStore(db)
	skill := New(TruncatingSummariser{}, content)

	mock.ExpectQuery("SELECT (.|\n)*FROM content_dedup WHERE content_type").
		WillReturnRows(sqlmock.NewRows(contentColumns()).AddRow(contentRow("h1", "p1", "Title One", "Body one.")...))

	result, err := skill.SummarizeContent(context.Background(), map[string]any{
		"content_ids": []any{"p1"},
		"max_length":  float64(5),
	})
	require.NoError(t, err)
	assert.Equal(t, "Title", result["summary_text"])
	stats := result["stats"].(map[string]any)
	assert.Equal(t, 1, stats["items_summarised"])
}

func TestSummarizeContentRequiresContentIDs(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	skill := New(TruncatingSummariser{}, store.NewContentDedupStore(db))
	_, err = skill.SummarizeContent(context.Background(), map[string]any{})
	assert.Error(t, err)
}
