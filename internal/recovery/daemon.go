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

// Package recovery runs the background daemon that sweeps expired leases,
// finds failed or stuck tasks, and drives them through a recovery strategy
// (spec section 4.6). It is grounded on original_source/reddit_watcher's
// TaskRecoveryManager for the strategy rules and on
// pkg/context/progress_tracker.go's stop/done-channel loop shape for
// cancellation.
package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/a2awatch/reddit-watch/internal/idempotency"
	"github.com/a2awatch/reddit-watch/internal/model"
	"github.com/a2awatch/reddit-watch/internal/store"
)

// DefaultCheckInterval is the daemon tick period (spec section 4.6).
const DefaultCheckInterval = 5 * time.Minute

// MaxTaskAge bounds how far back store.TaskStore.ScanFailedOrStuck looks.
const MaxTaskAge = 24 * time.Hour

// MaxRecoveryAge bounds how long a terminal TaskRecovery is retained.
const MaxRecoveryAge = 7 * 24 * time.Hour

// runningStuckThreshold and pendingStuckThreshold name the stuck-task
// cutoffs (spec section 4.6 step 2). They are not passed anywhere:
// store.TaskStore.ScanFailedOrStuck hard-codes the same 1h and 30m values
// in its query.
const (
	runningStuckThreshold = time.Hour
	pendingStuckThreshold = 30 * time.Minute
)

// crashedRunningThreshold distinguishes a presumed-crashed Running task
// from one that might still legitimately be in flight (spec section 4.6
// step 3).
const crashedRunningThreshold = 2 * time.Hour

// Daemon periodically reconciles failed and stuck tasks.
type Daemon struct {
	tasks      *store.TaskStore
	recoveries *store.TaskRecoveryStore
	idempotent *idempotency.Service

	checkInterval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

func New(tasks *store.TaskStore, recoveries *store.TaskRecoveryStore, idempotent *idempotency.Service) *Daemon {
	return &Daemon{
		tasks:         tasks,
		recoveries:    recoveries,
		idempotent:    idempotent,
		checkInterval: DefaultCheckInterval,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// Run blocks, ticking every checkInterval until Stop is called or ctx is
// cancelled. In-flight ticks are allowed to finish (spec section 4.6
// cancellation contract).
func (d *Daemon) Run(ctx context.Context) {
	defer close(d.doneCh)

	ticker := time.NewTicker(d.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopCh:
			return
		case <-ticker.C:
			if err := d.Tick(ctx, time.Now()); err != nil {
				slog.Error("recovery tick failed", "error", err)
			}
		}
	}
}

// Stop signals Run to exit after its current tick and blocks until it has.
func (d *Daemon) Stop() {
	close(d.stopCh)
	<-d.doneCh
}

// Tick runs one full pass: sweep leases, scan for candidates, plan
// recoveries, execute pending ones, and purge old terminal records (spec
// section 4.6 steps 1-5).
func (d *Daemon) Tick(ctx context.Context, now time.Time) error {
	swept, err := d.idempotent.SweepExpiredLeases(ctx, now)
	if err != nil {
		return fmt.Errorf("sweep expired leases: %w", err)
	}
	if swept > 0 {
		slog.Info("swept expired task leases", "count", swept)
	}

	candidates, err := d.tasks.ScanFailedOrStuck(ctx, MaxTaskAge, now)
	if err != nil {
		return fmt.Errorf("scan failed or stuck tasks: %w", err)
	}
	for _, task := range candidates {
		if err := d.planRecovery(ctx, task, now); err != nil {
			slog.Error("plan recovery failed", "task_id", task.TaskID, "error", err)
		}
	}

	pending, err := d.recoveries.ScanPending(ctx)
	if err != nil {
		return fmt.Errorf("scan pending recoveries: %w", err)
	}
	for _, r := range pending {
		if r.RecoveryAttempt >= r.MaxRecoveryAttempts {
			continue
		}
		if err := d.executeRecovery(ctx, r, now); err != nil {
			slog.Error("execute recovery failed", "task_id", r.OriginalTaskID, "error", err)
		}
	}

	purged, err := d.CleanupCompletedRecoveries(ctx, now)
	if err != nil {
		return fmt.Errorf("purge terminal recoveries: %w", err)
	}
	if purged > 0 {
		slog.Info("purged terminal task recoveries", "count", purged)
	}

	return nil
}

// planRecovery creates a TaskRecovery for task if one isn't already active
// (spec section 4.6 step 3).
func (d *Daemon) planRecovery(ctx context.Context, task *model.Task, now time.Time) error {
	active, err := d.recoveries.ActiveForTask(ctx, task.TaskID)
	if err != nil {
		return fmt.Errorf("check active recovery: %w", err)
	}
	if active != nil {
		return nil
	}

	strategy := determineStrategy(task, now)
	r := &model.TaskRecovery{
		TaskID:              model.NewID(),
		OriginalTaskID:      task.TaskID,
		RecoveryStrategy:    strategy,
		RecoveryStatus:      model.RecoveryPending,
		RecoveryAttempt:     0,
		MaxRecoveryAttempts: model.DefaultMaxRecoveryAttempts,
		FailureReason:       task.ErrorMessage,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := d.recoveries.Insert(ctx, r); err != nil {
		return fmt.Errorf("insert recovery plan: %w", err)
	}
	slog.Info("planned task recovery", "task_id", task.TaskID, "strategy", strategy)
	return nil
}

// determineStrategy implements spec section 4.6 step 3's rules.
func determineStrategy(task *model.Task, now time.Time) model.RecoveryStrategy {
	if task.RetryCount >= task.MaxRetries && task.Status == model.TaskFailed {
		return model.StrategyRollback
	}
	if task.Status == model.TaskRunning {
		if task.StartedAt != nil && now.Sub(*task.StartedAt) > crashedRunningThreshold {
			return model.StrategyRetry
		}
		return model.StrategyManual
	}
	if task.Status == model.TaskPending {
		return model.StrategyRetry
	}
	return model.StrategyRetry
}

// executeRecovery runs one attempt of r's strategy against its original
// task (spec section 4.6 step 4). The original task's lease guards every
// mutating strategy (spec section 4.2/9): when two daemons race to recover
// the same task, the loser backs off silently and leaves the recovery
// pending for the next tick rather than treating the contention as a
// failure.
func (d *Daemon) executeRecovery(ctx context.Context, r *model.TaskRecovery, now time.Time) error {
	token, ok, err := d.idempotent.AcquireLease(ctx, r.OriginalTaskID, now)
	if err != nil {
		return fmt.Errorf("acquire task lease: %w", err)
	}
	if !ok {
		return nil
	}
	defer func() {
		if relErr := d.idempotent.ReleaseLease(ctx, r.OriginalTaskID, token, time.Now()); relErr != nil {
			slog.Error("failed to release task lease", "task_id", r.OriginalTaskID, "error", relErr)
		}
	}()

	if err := d.recoveries.MarkRecovering(ctx, r.TaskID, now); err != nil {
		return fmt.Errorf("mark recovering: %w", err)
	}

	task, err := d.tasks.Get(ctx, r.OriginalTaskID)
	if err != nil {
		_ = d.recoveries.MarkFailed(ctx, r.TaskID, err.Error(), time.Now())
		return fmt.Errorf("load original task: %w", err)
	}

	var execErr error
	switch r.RecoveryStrategy {
	case model.StrategyRetry:
		execErr = d.retry(ctx, task, now)
	case model.StrategyCheckpoint:
		execErr = d.checkpoint(ctx, task, r.CheckpointData, now)
	case model.StrategyRollback:
		execErr = d.rollback(ctx, task, now)
	case model.StrategySkip:
		execErr = d.skip(ctx, task, now)
	case model.StrategyManual:
		execErr = d.manual(ctx, task, now)
	default:
		execErr = fmt.Errorf("unknown recovery strategy %q", r.RecoveryStrategy)
	}

	if execErr != nil {
		return d.recoveries.MarkFailed(ctx, r.TaskID, execErr.Error(), time.Now())
	}
	return d.recoveries.MarkCompleted(ctx, r.TaskID, time.Now())
}

// retry resets the task to Pending with exponential backoff (spec section
// 4.6 step 4 "retry"; same min(2^n,60)-minute formula used by the
// coordinator).
func (d *Daemon) retry(ctx context.Context, task *model.Task, now time.Time) error {
	next := now.Add(retryBackoff(task.RetryCount + 1))
	return d.tasks.ResetForRetry(ctx, task.TaskID, nil, next, now)
}

// checkpoint is retry plus merging checkpoint data into the task's
// parameters with the `_checkpoint_recovery` marker (spec section 4.6 step
// 4 "checkpoint").
func (d *Daemon) checkpoint(ctx context.Context, task *model.Task, checkpointData model.Params, now time.Time) error {
	next := now.Add(retryBackoff(task.RetryCount + 1))
	return d.tasks.ResetForRetry(ctx, task.TaskID, checkpointData, next, now)
}

// rollback marks the task permanently Failed (spec section 4.6 step 4
// "rollback").
func (d *Daemon) rollback(ctx context.Context, task *model.Task, now time.Time) error {
	return d.tasks.FailTerminal(ctx, task.TaskID, "rolled back after exhausting retries", now)
}

// skip cancels the task outright (spec section 4.6 step 4 "skip").
func (d *Daemon) skip(ctx context.Context, task *model.Task, now time.Time) error {
	return d.tasks.Cancel(ctx, task.TaskID, "skipped by recovery daemon", now)
}

// manual only annotates the task; its status is left untouched pending a
// human decision (spec section 4.6 step 4 "manual").
func (d *Daemon) manual(ctx context.Context, task *model.Task, now time.Time) error {
	return d.tasks.AnnotateError(ctx, task.TaskID, task.ErrorMessage+" (awaiting manual recovery)", now)
}

// retryBackoff mirrors coordinator's backoff formula: min(2^n, 60) minutes.
func retryBackoff(retryCount int) time.Duration {
	minutes := math.Min(math.Pow(2, float64(retryCount)), 60)
	return time.Duration(minutes) * time.Minute
}

// CleanupCompletedRecoveries purges terminal recovery rows older than
// MaxRecoveryAge (spec section 4.6 step 5). It is exposed separately from
// Tick so operators can run it out of band (e.g. from a cron job) as well.
func (d *Daemon) CleanupCompletedRecoveries(ctx context.Context, now time.Time) (int, error) {
	return d.recoveries.PurgeTerminal(ctx, MaxRecoveryAge, now)
}
