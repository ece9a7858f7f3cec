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

package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/a2awatch/reddit-watch/internal/config"
	"github.com/a2awatch/reddit-watch/internal/coordinator"
	"github.com/a2awatch/reddit-watch/internal/model"
	"github.com/a2awatch/reddit-watch/internal/store"
)

// RunCycleCmd runs one monitoring cycle synchronously and exits (spec
// section 6 "run-cycle"), for cron-driven invocation rather than the
// always-on ticker `serve coordinator` runs.
type RunCycleCmd struct{}

func (c *RunCycleCmd) Run(cli *CLI) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return badConfig(err)
	}
	if len(cfg.RedditTopics) == 0 || len(cfg.RedditSubreddits) == 0 {
		return badConfig(fmt.Errorf("reddit_topics and reddit_subreddits must both be non-empty"))
	}

	d, err := newDeps(cfg)
	if err != nil {
		return fmt.Errorf("wire dependencies: %w", err)
	}
	defer d.Close()

	coord := coordinator.New(d.tasks, d.workflows, d.idempotent, d.reg, coordinatorInvoker(d))
	return runOneCycle(context.Background(), d.workflows, coord, cfg.RedditTopics, cfg.RedditSubreddits)
}

// coordinatorInvoker builds the breaker-guarded HTTP invoker the
// Coordinator uses for remote skill calls (spec section 4.5 remote
// invocation, section 4.4 circuit breaker).
func coordinatorInvoker(d *deps) coordinator.Invoker {
	client := &http.Client{Timeout: 30 * time.Second}
	return coordinator.NewHTTPInvoker(client, d.breakers, d.cfg.A2AAPIKey)
}

// runOneCycle creates a fresh Workflow record and drives it through the
// Coordinator (spec section 4.5 entry point).
func runOneCycle(ctx context.Context, workflows *store.WorkflowStore, coord *coordinator.Coordinator, topics, subreddits []string) error {
	now := time.Now()
	workflow := &model.Workflow{
		WorkflowID:   model.NewID(),
		WorkflowType: "monitoring",
		Status:       model.TaskPending,
		Config: model.Params{
			"topics":     topics,
			"subreddits": subreddits,
		},
		StartedAt: now,
	}
	if err := workflows.Insert(ctx, workflow); err != nil {
		return fmt.Errorf("insert workflow: %w", err)
	}
	return coord.RunMonitoringCycle(ctx, workflow.WorkflowID, topics, subreddits)
}

// runCycleSkill adapts runOneCycle to a2a.SkillFunc so the coordinator
// agent can also trigger a cycle on demand over its own A2A surface.
func runCycleSkill(d *deps, coord *coordinator.Coordinator) func(ctx context.Context, params map[string]any) (map[string]any, error) {
	return func(ctx context.Context, params map[string]any) (map[string]any, error) {
		topics := d.cfg.RedditTopics
		subreddits := d.cfg.RedditSubreddits
		if err := runOneCycle(ctx, d.workflows, coord, topics, subreddits); err != nil {
			return nil, err
		}
		return map[string]any{"status": "completed"}, nil
	}
}
