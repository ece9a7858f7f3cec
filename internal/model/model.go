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

// Package model defines the persisted record types shared by every
// component: Task, Workflow, AgentState, TaskRecovery, ContentDedup,
// AlertBatch and AlertDelivery (spec section 3).
package model

import (
	"time"

	"github.com/google/uuid"
)

// NewID returns a fresh UUID string, the opaque ID format used throughout
// this system.
func NewID() string {
	return uuid.NewString()
}

// TaskStatus is the lifecycle state of a Task (spec section 3).
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// NonTerminalForDedup reports whether a task in this status should still be
// considered for idempotent-task lookup (spec section 4.2: Failed and
// Cancelled tasks are ignored, a new attempt is allowed).
func (s TaskStatus) NonTerminalForDedup() bool {
	switch s {
	case TaskPending, TaskRunning, TaskCompleted:
		return true
	default:
		return false
	}
}

// Params is the opaque parameter/result map carried by tasks (spec section
// 9: "Dynamic parameters / opaque maps").
type Params map[string]any

// Task represents one skill invocation on one agent (spec section 3).
type Task struct {
	TaskID         string     `json:"task_id"`
	AgentType      string     `json:"agent_type"`
	SkillName      string     `json:"skill_name"`
	Parameters     Params     `json:"parameters"`
	ParametersHash string     `json:"parameters_hash"`
	WorkflowID     string     `json:"workflow_id,omitempty"`
	IdempotencyKey string     `json:"idempotency_key,omitempty"`
	CorrelationID  string     `json:"correlation_id,omitempty"`
	Priority       int        `json:"priority"`
	Status         TaskStatus `json:"status"`
	RetryCount     int        `json:"retry_count"`
	MaxRetries     int        `json:"max_retries"`
	NextRetryAt    *time.Time `json:"next_retry_at,omitempty"`
	LockToken      string     `json:"lock_token,omitempty"`
	LockExpiresAt  *time.Time `json:"lock_expires_at,omitempty"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	ResultData     Params     `json:"result_data,omitempty"`
	ResultHash     string     `json:"result_hash,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// HasActiveLease reports whether the task's lease is currently held (spec
// section 3 invariant: lock_token set iff lock_expires_at is set and in the
// future).
func (t *Task) HasActiveLease(now time.Time) bool {
	return t.LockToken != "" && t.LockExpiresAt != nil && t.LockExpiresAt.After(now)
}

// DefaultPriority and DefaultMaxRetries are the spec-mandated defaults
// (spec section 3).
const (
	DefaultPriority   = 5
	DefaultMaxRetries = 3
)

// WorkflowStatus mirrors TaskStatus's enum (spec section 3).
type WorkflowStatus = TaskStatus

// Workflow represents one pipeline execution (spec section 3).
type Workflow struct {
	WorkflowID        string         `json:"workflow_id"`
	WorkflowType      string         `json:"workflow_type"`
	Status            WorkflowStatus `json:"status"`
	Config            Params         `json:"config"`
	Schedule          string         `json:"schedule,omitempty"`
	LastRun           *time.Time     `json:"last_run,omitempty"`
	NextRun           *time.Time     `json:"next_run,omitempty"`
	RunCount          int            `json:"run_count"`
	ErrorCount        int            `json:"error_count"`
	PostsProcessed    int            `json:"posts_processed"`
	CommentsProcessed int            `json:"comments_processed"`
	RelevantItems     int            `json:"relevant_items"`
	SummariesCreated  int            `json:"summaries_created"`
	AlertsSent        int            `json:"alerts_sent"`
	ErrorMessage      string         `json:"error_message,omitempty"`
	StartedAt         time.Time      `json:"started_at"`
	CompletedAt       *time.Time     `json:"completed_at,omitempty"`
}

// AgentStatus is the liveness state of an AgentState record (spec section 3).
type AgentStatus string

const (
	AgentIdle    AgentStatus = "idle"
	AgentBusy    AgentStatus = "busy"
	AgentError   AgentStatus = "error"
	AgentOffline AgentStatus = "offline"
)

// AgentState is a heartbeat-driven liveness record (spec section 3).
type AgentState struct {
	AgentID            string      `json:"agent_id"`
	AgentType          string      `json:"agent_type"`
	Status             AgentStatus `json:"status"`
	StateData          Params      `json:"state_data"`
	Capabilities       []string    `json:"capabilities"`
	CurrentTaskID      string      `json:"current_task_id,omitempty"`
	HeartbeatAt        time.Time   `json:"heartbeat_at"`
	ErrorCount         int         `json:"error_count"`
	LastError          string      `json:"last_error,omitempty"`
	TasksCompleted     int         `json:"tasks_completed"`
	TasksFailed        int         `json:"tasks_failed"`
	AvgExecutionTimeMs *float64    `json:"avg_execution_time_ms,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
	LastUpdated        time.Time   `json:"last_updated"`
}

// IsStale reports whether the agent's heartbeat has aged past threshold and
// must be considered offline regardless of its stored status (spec section
// 3 invariant).
func (a *AgentState) IsStale(now time.Time, threshold time.Duration) bool {
	return now.Sub(a.HeartbeatAt) > threshold
}

// ErrorRate returns the agent's observed failure rate, used by
// performance-weighted agent selection (spec section 9 supplement).
func (a *AgentState) ErrorRate() float64 {
	total := a.TasksCompleted + a.TasksFailed
	if total == 0 {
		return 0
	}
	return float64(a.ErrorCount) / float64(total)
}

// RecoveryStrategy names a planned reaction to a failed/stuck task (spec
// section 3).
type RecoveryStrategy string

const (
	StrategyRetry      RecoveryStrategy = "retry"
	StrategyRollback   RecoveryStrategy = "rollback"
	StrategySkip       RecoveryStrategy = "skip"
	StrategyCheckpoint RecoveryStrategy = "checkpoint"
	StrategyManual     RecoveryStrategy = "manual"
)

// RecoveryStatus is the lifecycle of a TaskRecovery record (spec section 3).
type RecoveryStatus string

const (
	RecoveryPending    RecoveryStatus = "pending"
	RecoveryRecovering RecoveryStatus = "recovering"
	RecoveryCompleted  RecoveryStatus = "completed"
	RecoveryFailed     RecoveryStatus = "failed"
)

// Terminal reports whether the recovery has finished (spec section 3:
// "at most one active (non-terminal) recovery per original_task_id").
func (s RecoveryStatus) Terminal() bool {
	return s == RecoveryCompleted || s == RecoveryFailed
}

// TaskRecovery is a planned reaction to a failed or stuck task (spec
// section 3).
type TaskRecovery struct {
	TaskID               string           `json:"task_id"`
	OriginalTaskID       string           `json:"original_task_id"`
	RecoveryStrategy     RecoveryStrategy `json:"recovery_strategy"`
	RecoveryStatus       RecoveryStatus   `json:"recovery_status"`
	RecoveryAttempt      int              `json:"recovery_attempt"`
	MaxRecoveryAttempts  int              `json:"max_recovery_attempts"`
	CheckpointData       Params           `json:"checkpoint_data,omitempty"`
	FailureReason        string           `json:"failure_reason,omitempty"`
	RecoveryStartedAt    *time.Time       `json:"recovery_started_at,omitempty"`
	RecoveryCompletedAt  *time.Time       `json:"recovery_completed_at,omitempty"`
	RecoveryError        string           `json:"recovery_error,omitempty"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
}

// DefaultMaxRecoveryAttempts is the spec default (spec section 3).
const DefaultMaxRecoveryAttempts = 3

// ContentType enumerates the kinds of Reddit content deduplicated (spec
// section 3).
type ContentType string

const (
	ContentPost       ContentType = "post"
	ContentComment    ContentType = "comment"
	ContentSubreddit  ContentType = "subreddit"
)

// ProcessingStatus is the lifecycle of a ContentDedup record (spec section 3).
type ProcessingStatus string

const (
	ContentNew        ProcessingStatus = "new"
	ContentProcessing ProcessingStatus = "processing"
	ContentProcessed  ProcessingStatus = "processed"
	ContentFailed     ProcessingStatus = "failed"
)

// ContentDedup tracks first-seen/processing state of one external content
// item (spec section 3).
type ContentDedup struct {
	ContentHash      string           `json:"content_hash"`
	ContentType      ContentType      `json:"content_type"`
	ExternalID       string           `json:"external_id"`
	ProcessingStatus ProcessingStatus `json:"processing_status"`
	FirstSeenAt      time.Time        `json:"first_seen_at"`
	ProcessedAt      *time.Time       `json:"processed_at,omitempty"`
	SourceAgent      string           `json:"source_agent,omitempty"`
	WorkflowID       string           `json:"workflow_id,omitempty"`
	ExtraData        Params           `json:"extra_data,omitempty"`
}

// BatchStatus is the lifecycle of an AlertBatch (spec section 3).
type BatchStatus string

const (
	BatchPending BatchStatus = "pending"
	BatchSent    BatchStatus = "sent"
	BatchFailed  BatchStatus = "failed"
)

// ScheduleType controls when a batch is meant to go out (spec section 3).
type ScheduleType string

const (
	ScheduleImmediate ScheduleType = "immediate"
	ScheduleHourly    ScheduleType = "hourly"
	ScheduleDaily     ScheduleType = "daily"
)

// AlertItem is one item folded into a batch (spec section 4.7).
type AlertItem struct {
	Title    string `json:"title"`
	Message  string `json:"message"`
	Priority int    `json:"priority"`
	Source   string `json:"source,omitempty"`
	URL      string `json:"url,omitempty"`
}

// Channel identifies a delivery transport (spec section 4.7).
type Channel string

const (
	ChannelSlack Channel = "slack"
	ChannelEmail Channel = "email"
)

// AlertBatch is an aggregation of alert items dispatched together (spec
// section 3).
type AlertBatch struct {
	BatchID           string       `json:"batch_id"`
	Title             string       `json:"title"`
	Summary           string       `json:"summary"`
	Items             []AlertItem  `json:"items"`
	TotalItems        int          `json:"total_items"`
	Priority          int          `json:"priority"`
	Channels          []Channel    `json:"channels"`
	ScheduleType      ScheduleType `json:"schedule_type"`
	Status            BatchStatus  `json:"status"`
	SentAt            *time.Time   `json:"sent_at,omitempty"`
	DeliveryAttempts  int          `json:"delivery_attempts"`
	LastError         string       `json:"last_error,omitempty"`
	DedupHash         string       `json:"dedup_hash"`
	CreatedAt         time.Time    `json:"created_at"`
}

// DeliveryStatus is the outcome of one channel delivery (spec section 3).
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
)

// AlertDelivery tracks one channel's delivery of an AlertBatch (spec
// section 3).
type AlertDelivery struct {
	DeliveryID     string         `json:"delivery_id"`
	AlertBatchID   string         `json:"alert_batch_id"`
	Channel        Channel        `json:"channel"`
	Status         DeliveryStatus `json:"status"`
	Recipient      string         `json:"recipient,omitempty"`
	WebhookURL     string         `json:"webhook_url,omitempty"`
	MessageID      string         `json:"message_id,omitempty"`
	SentAt         *time.Time     `json:"sent_at,omitempty"`
	DeliveryTimeMs *int64         `json:"delivery_time_ms,omitempty"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	RetryCount     int            `json:"retry_count"`
	DedupHash      string         `json:"dedup_hash"`
}
