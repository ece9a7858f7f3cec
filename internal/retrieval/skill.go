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

// Package retrieval implements the fetch_posts_by_topic skill (spec
// section 4.5 stage 1), wrapping the out-of-scope Reddit client interface
// spec section 1 specifies (`FetchPosts(topic, subreddit, limit) → []Post`)
// and registering each fetched post in the content-dedup table so later
// stages can address it by ID (spec section 3 ContentDedup, section 4.2
// register_content_processing).
package retrieval

import (
	"context"
	"fmt"

	"github.com/a2awatch/reddit-watch/internal/idempotency"
	"github.com/a2awatch/reddit-watch/internal/model"
)

// DefaultLimit is the per-(topic,subreddit) fetch size when a caller omits
// "limit" (spec section 4.5 stage 1 leaves the page size to the
// implementer).
const DefaultLimit = 25

// Post is the external content-source shape spec section 1 calls out of
// scope; this module only consumes it.
type Post struct {
	ID         string
	Title      string
	Body       string
	URL        string
	Permalink  string
	Author     string
	Subreddit  string
	CreatedUTC int64
}

// Fetcher is the Reddit client interface spec section 1 specifies.
type Fetcher interface {
	FetchPosts(ctx context.Context, topic, subreddit string, limit int) ([]Post, error)
}

// Skill adapts a Fetcher to the retrieval agent's fetch_posts_by_topic
// skill.
type Skill struct {
	fetcher      Fetcher
	idempotent   *idempotency.Service
	defaultLimit int
}

func New(fetcher Fetcher, idempotent *idempotency.Service) *Skill {
	return &Skill{fetcher: fetcher, idempotent: idempotent, defaultLimit: DefaultLimit}
}

// FetchPostsByTopic implements fetch_posts_by_topic: fetch one
// (topic, subreddit) page, register every post as content-dedup so filter
// and summarise can look it up by ID, and report the aggregate the
// Coordinator's stageRetrieve expects (spec section 4.5 stage 1:
// `{total_posts, post_ids}`).
func (s *Skill) FetchPostsByTopic(ctx context.Context, params map[string]any) (map[string]any, error) {
	topic, _ := params["topic"].(string)
	subreddit, _ := params["subreddit"].(string)
	if topic == "" || subreddit == "" {
		return nil, fmt.Errorf("fetch_posts_by_topic: topic and subreddit are required")
	}
	workflowID, _ := params["correlation_id"].(string)
	limit := s.defaultLimit
	if n, ok := params["limit"].(float64); ok && n > 0 {
		limit = int(n)
	}

	posts, err := s.fetcher.FetchPosts(ctx, topic, subreddit, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch posts for %s/%s: %w", topic, subreddit, err)
	}

	ids := make([]string, 0, len(posts))
	for _, p := range posts {
		payload := model.Params{
			"title":       p.Title,
			"body":        p.Body,
			"url":         p.URL,
			"permalink":   p.Permalink,
			"author":      p.Author,
			"subreddit":   p.Subreddit,
			"created_utc": p.CreatedUTC,
			"topic":       topic,
		}
		if _, _, err := s.idempotent.RegisterContent(ctx, model.ContentPost, p.ID, payload, "retrieval", workflowID); err != nil {
			return nil, fmt.Errorf("register post %s: %w", p.ID, err)
		}
		ids = append(ids, p.ID)
	}

	return map[string]any{
		"total_posts": len(posts),
		"post_ids":    ids,
	}, nil
}
