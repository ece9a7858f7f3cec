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

package retrieval

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a2awatch/reddit-watch/internal/idempotency"
	"github.com/a2awatch/reddit-watch/internal/store"
)

func newTestSkill(t *testing.T, posts []Post) (*Skill, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	content := store.NewContentDedupStore(db)
	svc := idempotency.NewService(store.NewTaskStore(db), content)
	return New(&FixtureFetcher{Posts: posts}, svc), mock
}

func TestFetchPostsByTopicRegistersEachPost(t *testing.T) {
	skill, mock := newTestSkill(t, []Post{
		{ID: "p1", Title: "golang 1.24 released", Subreddit: "golang"},
		{ID: "p2", Title: "another golang post", Subreddit: "golang"},
		{ID: "p3", Title: "unrelated", Subreddit: "rust"},
	})
	mock.ExpectExec("INSERT INTO content_dedup").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO content_dedup").WillReturnResult(sqlmock.NewResult(0, 1))

	result, err := skill.FetchPostsByTopic(context.Background(), map[string]any{
		"topic": "golang", "subreddit": "golang", "correlation_id": "wf-1",
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, result["total_posts"])
	assert.ElementsMatch(t, []string{"p1", "p2"}, result["post_ids"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchPostsByTopicRequiresTopicAndSubreddit(t *testing.T) {
	skill, _ := newTestSkill(t, nil)
	_, err := skill.FetchPostsByTopic(context.Background(), map[string]any{"topic": "golang"})
	assert.Error(t, err)
}

func TestFetchPostsByTopicRespectsLimit(t *testing.T) {
	skill, mock := newTestSkill(t, []Post{
		{ID: "p1", Subreddit: "golang"},
		{ID: "p2", Subreddit: "golang"},
		{ID: "p3", Subreddit: "golang"},
	})
	mock.ExpectExec("INSERT INTO content_dedup").WillReturnResult(sqlmock.NewResult(0, 1))

	result, err := skill.FetchPostsByTopic(context.Background(), map[string]any{
		"topic": "golang", "subreddit": "golang", "limit": float64(1),
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, result["total_posts"])
}
