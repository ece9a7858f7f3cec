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

package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/a2awatch/reddit-watch/internal/errs"
	"github.com/a2awatch/reddit-watch/internal/model"
	"github.com/a2awatch/reddit-watch/internal/store"
)

// DefaultLeaseTTL is how long a task lease is held before it is considered
// abandoned and eligible for sweeping (spec section 4.2).
const DefaultLeaseTTL = 5 * time.Minute

// Service wraps the task and content-dedup repositories with the
// idempotent-creation and lease semantics of
// original_source/reddit_watcher/idempotency.py.
type Service struct {
	tasks   *store.TaskStore
	content *store.ContentDedupStore
}

func NewService(tasks *store.TaskStore, content *store.ContentDedupStore) *Service {
	return &Service{tasks: tasks, content: content}
}

// CreateIdempotentTask returns the existing non-terminal task matching
// (agent_type, skill_name, parameters_hash, workflow_id) if one exists,
// otherwise inserts a new task and returns it (spec section 4.2
// create_idempotent_task / find_duplicate_task). The returned bool reports
// whether a new task was created.
func (s *Service) CreateIdempotentTask(ctx context.Context, agentType, skillName string, params model.Params, workflowID, idempotencyKey, correlationID string, priority int, now time.Time) (*model.Task, bool, error) {
	hash := CanonicalHash(map[string]any(params))

	existing, err := s.tasks.FindDuplicate(ctx, agentType, skillName, hash, workflowID)
	switch {
	case err == nil:
		return existing, false, nil
	case errors.Is(err, errs.ErrNotFound):
		// fall through to insert
	default:
		return nil, false, fmt.Errorf("find duplicate task: %w", err)
	}

	task := &model.Task{
		TaskID:         model.NewID(),
		AgentType:      agentType,
		SkillName:      skillName,
		Parameters:     params,
		ParametersHash: hash,
		WorkflowID:     workflowID,
		IdempotencyKey: idempotencyKey,
		CorrelationID:  correlationID,
		Priority:       priority,
		Status:         model.TaskPending,
		MaxRetries:     model.DefaultMaxRetries,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if priority == 0 {
		task.Priority = model.DefaultPriority
	}

	if err := s.tasks.Insert(ctx, task); err != nil {
		if errors.Is(err, errs.ErrDuplicate) {
			// lost the race to a concurrent writer; return the winner.
			winner, findErr := s.tasks.FindDuplicate(ctx, agentType, skillName, hash, workflowID)
			if findErr != nil {
				return nil, false, fmt.Errorf("find duplicate task after race: %w", findErr)
			}
			return winner, false, nil
		}
		return nil, false, fmt.Errorf("insert idempotent task: %w", err)
	}
	return task, true, nil
}

// RegisterContent records a content item's first sighting, returning false
// when it has already been seen (spec section 4.2
// check_content_duplication / register_content_processing).
func (s *Service) RegisterContent(ctx context.Context, contentType model.ContentType, externalID string, payload model.Params, sourceAgent, workflowID string) (isNew bool, contentHash string, err error) {
	contentHash = CanonicalHash(map[string]any{
		"content_type": string(contentType),
		"external_id":  externalID,
		"payload":      map[string]any(payload),
	})
	dedup := &model.ContentDedup{
		ContentHash:      contentHash,
		ContentType:       contentType,
		ExternalID:       externalID,
		ProcessingStatus: model.ContentNew,
		SourceAgent:      sourceAgent,
		WorkflowID:       workflowID,
		ExtraData:        payload,
	}
	isNew, err = s.content.RegisterIfNew(ctx, dedup)
	if err != nil {
		return false, "", fmt.Errorf("register content: %w", err)
	}
	return isNew, contentHash, nil
}

// AcquireLease claims a task's lease for a worker, using a fresh UUID as the
// lock token (spec section 4.2 atomic lease acquisition).
func (s *Service) AcquireLease(ctx context.Context, taskID string, now time.Time) (token string, ok bool, err error) {
	token = model.NewID()
	ok, err = s.tasks.AcquireLease(ctx, taskID, token, DefaultLeaseTTL, now)
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// ReleaseLease releases a lease this caller holds. It is not an error to
// release a lease that has already expired and been swept.
func (s *Service) ReleaseLease(ctx context.Context, taskID, token string, now time.Time) error {
	_, err := s.tasks.ReleaseLease(ctx, taskID, token, now)
	return err
}

// SweepExpiredLeases clears every lease past its TTL, called periodically
// by the recovery daemon (spec section 4.6).
func (s *Service) SweepExpiredLeases(ctx context.Context, now time.Time) (int, error) {
	return s.tasks.SweepExpiredLeases(ctx, now)
}
