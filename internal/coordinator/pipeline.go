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

// Package coordinator drives the fixed four-stage monitoring pipeline —
// Retrieve, Filter, Summarise, Alert — strictly sequential, with bounded
// concurrent fan-out inside the Retrieve stage (spec section 4.5). It has
// no direct teacher analogue (hector's workflow/ package orchestrates LLM
// reasoning steps, not peer-agent skill calls), so stage execution is
// built fresh, using the same errgroup-bounded fan-out style hector uses
// elsewhere and the context/error-classification conventions from
// internal/errs.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/a2awatch/reddit-watch/internal/errs"
	"github.com/a2awatch/reddit-watch/internal/idempotency"
	"github.com/a2awatch/reddit-watch/internal/model"
	"github.com/a2awatch/reddit-watch/internal/obslog"
	"github.com/a2awatch/reddit-watch/internal/registry"
	"github.com/a2awatch/reddit-watch/internal/store"
)

// DefaultFanoutWorkers bounds Retrieve-stage concurrency (spec section 4.5
// "bounded by a configurable worker pool, default 4").
const DefaultFanoutWorkers = 4

// DefaultStageTimeout bounds a single stage invocation.
const DefaultStageTimeout = 2 * time.Minute

// Coordinator executes monitoring cycles (spec section 4.5).
type Coordinator struct {
	tasks      *store.TaskStore
	workflows  *store.WorkflowStore
	idempotent *idempotency.Service
	reg        *registry.Registry
	invoker    Invoker

	fanoutWorkers int
	stageTimeout  time.Duration
}

func New(tasks *store.TaskStore, workflows *store.WorkflowStore, idempotent *idempotency.Service, reg *registry.Registry, invoker Invoker) *Coordinator {
	return &Coordinator{
		tasks:         tasks,
		workflows:     workflows,
		idempotent:    idempotent,
		reg:           reg,
		invoker:       invoker,
		fanoutWorkers: DefaultFanoutWorkers,
		stageTimeout:  DefaultStageTimeout,
	}
}

// backoff implements spec section 4.5: min(2^n, 60) minutes.
func backoff(retryCount int) time.Duration {
	minutes := math.Min(math.Pow(2, float64(retryCount)), 60)
	return time.Duration(minutes) * time.Minute
}

// RunMonitoringCycle executes the four stages for one workflow run (spec
// section 4.5 entry point).
func (c *Coordinator) RunMonitoringCycle(ctx context.Context, workflowID string, topics, subreddits []string) error {
	now := time.Now()
	if err := c.workflows.MarkRunning(ctx, workflowID, now); err != nil {
		return fmt.Errorf("mark workflow running: %w", err)
	}

	counters := store.WorkflowCounters{}

	postIDs, totalPosts, err := c.stageRetrieve(ctx, workflowID, topics, subreddits)
	if err != nil {
		return c.failWorkflow(ctx, workflowID, counters, err)
	}
	counters.PostsProcessed = totalPosts
	if totalPosts == 0 {
		return c.completeWorkflow(ctx, workflowID, counters)
	}

	relevantIDs, processed, relevant, err := c.stageFilter(ctx, workflowID, postIDs)
	if err != nil {
		return c.failWorkflow(ctx, workflowID, counters, err)
	}
	counters.CommentsProcessed = processed
	counters.RelevantItems = relevant
	if relevant == 0 {
		return c.completeWorkflow(ctx, workflowID, counters)
	}

	summary, err := c.stageSummarise(ctx, workflowID, relevantIDs)
	if err != nil {
		return c.failWorkflow(ctx, workflowID, counters, err)
	}
	counters.SummariesCreated = 1

	sent, err := c.stageAlert(ctx, workflowID, summary)
	if err != nil {
		return c.failWorkflow(ctx, workflowID, counters, err)
	}
	counters.AlertsSent = sent

	return c.completeWorkflow(ctx, workflowID, counters)
}

func (c *Coordinator) completeWorkflow(ctx context.Context, workflowID string, counters store.WorkflowCounters) error {
	return c.workflows.RecordCompletion(ctx, workflowID, model.TaskCompleted, counters, "", time.Now(), nil)
}

func (c *Coordinator) failWorkflow(ctx context.Context, workflowID string, counters store.WorkflowCounters, cause error) error {
	obslog.Audit(ctx, "workflow_failed", "workflow_id", workflowID, "error", cause.Error())
	if err := c.workflows.RecordCompletion(ctx, workflowID, model.TaskFailed, counters, cause.Error(), time.Now(), nil); err != nil {
		slog.Error("failed to record workflow failure", "workflow_id", workflowID, "error", err)
	}
	return cause
}

// runStage implements the per-stage execution contract (spec section 4.5
// steps a-e): idempotent creation, lease-backed running state, remote
// invocation, and classified failure handling.
func (c *Coordinator) runStage(ctx context.Context, agentType, skillName, workflowID string, params model.Params) (model.Params, error) {
	task, isNew, err := c.idempotent.CreateIdempotentTask(ctx, agentType, skillName, params, workflowID, "", workflowID, model.DefaultPriority, time.Now())
	if err != nil {
		return nil, fmt.Errorf("create idempotent task: %w", err)
	}
	if !isNew && task.Status == model.TaskCompleted {
		return task.ResultData, nil
	}

	now := time.Now()
	token, ok, err := c.idempotent.AcquireLease(ctx, task.TaskID, now)
	if err != nil {
		return nil, fmt.Errorf("acquire task lease: %w", err)
	}
	if !ok {
		// Lost the race to another writer holding this task's lease; spec
		// section 4.5/9 resolves contention by the winning writer, and this
		// attempt is handled silently rather than as a task failure.
		return nil, fmt.Errorf("stage %s/%s: %w", agentType, skillName, errs.ErrLeaseHeld)
	}
	defer func() {
		if relErr := c.idempotent.ReleaseLease(ctx, task.TaskID, token, time.Now()); relErr != nil {
			slog.Error("failed to release task lease", "task_id", task.TaskID, "error", relErr)
		}
	}()

	if err := c.tasks.MarkRunning(ctx, task.TaskID, now); err != nil {
		return nil, fmt.Errorf("mark task running: %w", err)
	}

	agentState, err := c.reg.SelectAgent(ctx, agentType, "", now)
	if err != nil {
		return nil, c.recordStageFailure(ctx, task, fmt.Errorf("select agent: %w", err))
	}
	card, err := c.reg.GetCard(ctx, agentState.AgentID)
	if err != nil {
		return nil, c.recordStageFailure(ctx, task, fmt.Errorf("get agent card: %w", err))
	}

	stageCtx, cancel := context.WithTimeout(ctx, c.stageTimeout)
	defer cancel()

	result, err := c.invoker.Invoke(stageCtx, agentType, card.URL, skillName, params, workflowID)
	if err != nil {
		return nil, c.recordStageFailure(ctx, task, err)
	}

	resultHash := idempotency.CanonicalHash(result)
	if err := c.tasks.Complete(ctx, task.TaskID, result, resultHash, time.Now()); err != nil {
		return nil, fmt.Errorf("complete task: %w", err)
	}
	return result, nil
}

// recordStageFailure classifies err (spec section 7) and marks the task
// terminally Failed or Failed-with-retry, then returns err unchanged so
// the pipeline can stop.
func (c *Coordinator) recordStageFailure(ctx context.Context, task *model.Task, cause error) error {
	kind := errs.Classify(cause)
	now := time.Now()
	if kind.Retriable() && task.RetryCount < task.MaxRetries {
		next := now.Add(backoff(task.RetryCount))
		if err := c.tasks.FailWithRetry(ctx, task.TaskID, cause.Error(), next, now); err != nil {
			slog.Error("failed to record retriable task failure", "task_id", task.TaskID, "error", err)
		}
	} else {
		if err := c.tasks.FailTerminal(ctx, task.TaskID, cause.Error(), now); err != nil {
			slog.Error("failed to record terminal task failure", "task_id", task.TaskID, "error", err)
		}
	}
	return cause
}
