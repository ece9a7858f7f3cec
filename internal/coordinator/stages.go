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

package coordinator

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/a2awatch/reddit-watch/internal/model"
)

// stageRetrieve fans out one fetch_posts_by_topic task per (topic,
// subreddit) pair, bounded by fanoutWorkers, and aggregates the post IDs
// (spec section 4.5 stage 1).
func (c *Coordinator) stageRetrieve(ctx context.Context, workflowID string, topics, subreddits []string) ([]string, int, error) {
	type pair struct{ topic, subreddit string }
	var pairs []pair
	for _, t := range topics {
		for _, s := range subreddits {
			pairs = append(pairs, pair{t, s})
		}
	}

	var mu sync.Mutex
	var allIDs []string
	total := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.fanoutWorkers)

	for _, p := range pairs {
		p := p
		g.Go(func() error {
			result, err := c.runStage(gctx, "retrieval", "fetch_posts_by_topic", workflowID, model.Params{
				"topic":     p.topic,
				"subreddit": p.subreddit,
			})
			if err != nil {
				return fmt.Errorf("retrieve %s/%s: %w", p.topic, p.subreddit, err)
			}
			ids := toStringSlice(result["post_ids"])
			count, _ := result["total_posts"].(float64)

			mu.Lock()
			allIDs = append(allIDs, ids...)
			total += int(count)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return allIDs, total, nil
}

// stageFilter runs a single batch_filter_posts task over every retrieved
// post ID (spec section 4.5 stage 2).
func (c *Coordinator) stageFilter(ctx context.Context, workflowID string, postIDs []string) ([]string, int, int, error) {
	result, err := c.runStage(ctx, "filter", "batch_filter_posts", workflowID, model.Params{
		"post_ids": postIDs,
	})
	if err != nil {
		return nil, 0, 0, err
	}
	processed, _ := result["processed"].(float64)
	relevant, _ := result["relevant"].(float64)
	relevantIDs := toStringSlice(result["relevant_ids"])
	return relevantIDs, int(processed), int(relevant), nil
}

// stageSummarise runs summarizeContent over the relevant content IDs
// (spec section 4.5 stage 3).
func (c *Coordinator) stageSummarise(ctx context.Context, workflowID string, relevantIDs []string) (model.Params, error) {
	result, err := c.runStage(ctx, "summarise", "summarizeContent", workflowID, model.Params{
		"content_ids": relevantIDs,
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// stageAlert runs sendBatch with the assembled summary (spec section 4.5
// stage 4, section 4.7 sendBatch parameters).
func (c *Coordinator) stageAlert(ctx context.Context, workflowID string, summary model.Params) (int, error) {
	result, err := c.runStage(ctx, "alert", "sendBatch", workflowID, model.Params{
		"title":         "Reddit Watch Alert",
		"summary":       summary["summary_text"],
		"stats":         summary["stats"],
		"schedule_type": "immediate",
		"channels":      []string{"slack"},
	})
	if err != nil {
		return 0, err
	}
	sent, _ := result["successful_deliveries"].(float64)
	return int(sent), nil
}

func toStringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, e := range raw {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
