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
	"log/slog"
	"net/http"
	"time"

	"github.com/a2awatch/reddit-watch/internal/a2a"
	"github.com/a2awatch/reddit-watch/internal/alert"
	"github.com/a2awatch/reddit-watch/internal/config"
	"github.com/a2awatch/reddit-watch/internal/coordinator"
	"github.com/a2awatch/reddit-watch/internal/filter"
	"github.com/a2awatch/reddit-watch/internal/model"
	"github.com/a2awatch/reddit-watch/internal/recovery"
	"github.com/a2awatch/reddit-watch/internal/retrieval"
	"github.com/a2awatch/reddit-watch/internal/runtime"
	"github.com/a2awatch/reddit-watch/internal/summarise"
)

// ServeCmd runs one agent type's HTTP server (spec section 6 "serve
// {agent_type}"): one of coordinator, retrieval, filter, summarise, alert.
type ServeCmd struct {
	AgentType string `arg:"" help:"Agent type: coordinator, retrieval, filter, summarise, alert."`
	Port      int    `help:"Override the listen port (default: 8000-8004 by agent type)."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return badConfig(err)
	}
	if !validAgentType(c.AgentType) {
		return badConfig(fmt.Errorf("unknown agent type %q", c.AgentType))
	}

	d, err := newDeps(cfg)
	if err != nil {
		return fmt.Errorf("wire dependencies: %w", err)
	}
	defer d.Close()

	port := c.Port
	if port == 0 {
		port = cfg.A2APort
	}
	if port == 0 {
		port = config.DefaultPort(c.AgentType)
	}
	selfURL := fmt.Sprintf("http://%s:%d", hostOrDefault(cfg.A2AHost), port)

	dispatcher, err := buildDispatcher(d, c.AgentType, selfURL)
	if err != nil {
		return fmt.Errorf("build %s dispatcher: %w", c.AgentType, err)
	}

	agentID := model.NewID()
	server := runtime.NewServer(dispatcher, d.validator, d.limiter, d.reg, agentID, c.AgentType)

	ctx, cancel := signalContext()
	defer cancel()

	if err := d.reg.Register(ctx, agentID, c.AgentType, dispatcher.Card()); err != nil {
		return fmt.Errorf("register agent: %w", err)
	}
	defer d.reg.Deregister(context.Background(), agentID, c.AgentType)

	go heartbeatLoop(ctx, d, agentID, c.AgentType)

	var daemon *recovery.Daemon
	if c.AgentType == "coordinator" {
		daemon = recovery.New(d.tasks, d.recoveries, d.idempotent)
		go daemon.Run(ctx)
		go monitoringLoop(ctx, cfg, d)
	}

	httpSrv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: server.Handler()}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("agent server listening", "agent_type", c.AgentType, "addr", httpSrv.Addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if daemon != nil {
			daemon.Stop()
		}
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("agent server: %w", err)
		}
		return nil
	}
}

func validAgentType(t string) bool {
	switch t {
	case "coordinator", "retrieval", "filter", "summarise", "alert":
		return true
	default:
		return false
	}
}

func hostOrDefault(host string) string {
	if host == "" || host == "0.0.0.0" {
		return "localhost"
	}
	return host
}

// buildDispatcher wires the skill table for one agent type (spec section
// 4.4 skill-table dispatch; section 4.5 per-stage skill names).
func buildDispatcher(d *deps, agentType, selfURL string) (*a2a.Dispatcher, error) {
	switch agentType {
	case "coordinator":
		disp := a2a.NewDispatcher(baseCard(agentType, selfURL, "Drives the four-stage monitoring pipeline."))
		invoker := coordinatorInvoker(d)
		coord := coordinator.New(d.tasks, d.workflows, d.idempotent, d.reg, invoker)
		disp.RegisterSkill(a2a.AgentSkill{
			Name:        "run_cycle",
			Description: "Run one monitoring cycle for the configured topics and subreddits.",
			Tags:        []string{"workflow"},
		}, runCycleSkill(d, coord))
		return disp, nil

	case "retrieval":
		disp := a2a.NewDispatcher(baseCard(agentType, selfURL, "Fetches Reddit posts for a topic/subreddit pair."))
		skill := retrieval.New(&retrieval.FixtureFetcher{}, d.idempotent)
		disp.RegisterSkill(a2a.AgentSkill{
			Name:        "fetch_posts_by_topic",
			Description: "Fetch posts for one (topic, subreddit) pair and register them for downstream filtering.",
			Tags:        []string{"retrieval"},
		}, skill.FetchPostsByTopic)
		return disp, nil

	case "filter":
		disp := a2a.NewDispatcher(baseCard(agentType, selfURL, "Scores retrieved posts for topical relevance."))
		skill := filter.New(filter.KeywordClassifier{}, d.content,
			d.cfg.RelevanceThreshold, d.cfg.RelevanceKeywordWeight, d.cfg.RelevanceSemanticWeight)
		disp.RegisterSkill(a2a.AgentSkill{
			Name:        "batch_filter_posts",
			Description: "Score a batch of retrieved posts and report which are relevant.",
			Tags:        []string{"filter"},
		}, skill.BatchFilterPosts)
		return disp, nil

	case "summarise":
		disp := a2a.NewDispatcher(baseCard(agentType, selfURL, "Summarises the relevant posts from one cycle."))
		skill := summarise.New(summarise.TruncatingSummariser{}, d.content)
		disp.RegisterSkill(a2a.AgentSkill{
			Name:        "summarizeContent",
			Description: "Summarise a batch of relevant content items into one digest.",
			Tags:        []string{"summarise"},
		}, skill.SummarizeContent)
		return disp, nil

	case "alert":
		disp := a2a.NewDispatcher(baseCard(agentType, selfURL, "Batches and delivers alerts over Slack and email."))
		batcher := alert.New(d.batches, d.deliveries)
		disp.RegisterSkill(a2a.AgentSkill{
			Name:        "sendBatch",
			Description: "Assemble and deliver one alert batch across the configured channels.",
			Tags:        []string{"alert"},
		}, batcher.SendBatchSkill)
		return disp, nil

	default:
		return nil, fmt.Errorf("unknown agent type %q", agentType)
	}
}

func heartbeatLoop(ctx context.Context, d *deps, agentID, agentType string) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	beat := func() {
		state := &model.AgentState{
			AgentID:     agentID,
			AgentType:   agentType,
			Status:      model.AgentIdle,
			HeartbeatAt: time.Now(),
			CreatedAt:   time.Now(),
		}
		if err := d.reg.Heartbeat(ctx, state, time.Now()); err != nil {
			slog.Warn("heartbeat failed", "agent_type", agentType, "error", err)
		}
	}
	beat()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			beat()
		}
	}
}

// monitoringLoop drives RunMonitoringCycle every monitoring_interval_hours
// (spec section 4.5), run only by the coordinator process.
func monitoringLoop(ctx context.Context, cfg *config.Config, d *deps) {
	interval := time.Duration(cfg.MonitoringIntervalHours) * time.Hour
	if interval <= 0 {
		interval = time.Hour
	}
	invoker := coordinatorInvoker(d)
	coord := coordinator.New(d.tasks, d.workflows, d.idempotent, d.reg, invoker)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := runOneCycle(ctx, d.workflows, coord, cfg.RedditTopics, cfg.RedditSubreddits); err != nil {
				slog.Error("monitoring cycle failed", "error", err)
			}
		}
	}
}
