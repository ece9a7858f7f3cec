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

// Package registry is the Redis-backed service directory every agent
// publishes its card to and every coordinator reads from to pick a
// target (spec section 4.4, section 6 redis_url). The teacher's own
// pkg/registry.Registry[T] is purely in-memory and single-process, so it
// cannot serve this role (see DESIGN.md); this package instead follows
// the distributed-registration-plus-heartbeat shape of
// original_source/reddit_watcher/agent_coordination.py's AgentCoordinator
// and WorkflowCoordinator, re-expressed over redis/go-redis/v9.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/a2awatch/reddit-watch/internal/a2a"
	"github.com/a2awatch/reddit-watch/internal/model"
)

const (
	cardKeyPrefix  = "a2awatch:agent:card:"
	stateKeyPrefix = "a2awatch:agent:state:"
	typeIndexPrefix = "a2awatch:agent:type:"

	// HeartbeatInterval matches agent_coordination.py's 30s heartbeat loop.
	HeartbeatInterval = 30 * time.Second
	// StaleThreshold matches WorkflowCoordinator.get_available_agents's
	// 2-minute heartbeat cutoff.
	StaleThreshold = 2 * time.Minute
)

// Registry publishes and discovers agent cards and liveness state over
// Redis.
type Registry struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Registry {
	return &Registry{rdb: rdb}
}

// Register publishes an agent's card and adds it to its type's index (spec
// section 4.4 registration, grounded on register_agent).
func (r *Registry) Register(ctx context.Context, agentID, agentType string, card a2a.AgentCard) error {
	raw, err := json.Marshal(card)
	if err != nil {
		return fmt.Errorf("marshal agent card: %w", err)
	}
	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, cardKeyPrefix+agentID, raw, 0)
	pipe.SAdd(ctx, typeIndexPrefix+agentType, agentID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("register agent: %w", err)
	}
	return nil
}

// Deregister removes an agent's card and index membership.
func (r *Registry) Deregister(ctx context.Context, agentID, agentType string) error {
	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, cardKeyPrefix+agentID)
	pipe.Del(ctx, stateKeyPrefix+agentID)
	pipe.SRem(ctx, typeIndexPrefix+agentType, agentID)
	_, err := pipe.Exec(ctx)
	return err
}

// Heartbeat refreshes an agent's liveness record (spec section 4.4,
// grounded on AgentCoordinator._heartbeat_loop).
func (r *Registry) Heartbeat(ctx context.Context, state *model.AgentState, now time.Time) error {
	state.HeartbeatAt = now
	state.LastUpdated = now
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal agent state: %w", err)
	}
	return r.rdb.Set(ctx, stateKeyPrefix+state.AgentID, raw, 0).Err()
}

// GetCard returns a single agent's published card.
func (r *Registry) GetCard(ctx context.Context, agentID string) (*a2a.AgentCard, error) {
	raw, err := r.rdb.Get(ctx, cardKeyPrefix+agentID).Bytes()
	if err != nil {
		return nil, fmt.Errorf("get agent card: %w", err)
	}
	var card a2a.AgentCard
	if err := json.Unmarshal(raw, &card); err != nil {
		return nil, fmt.Errorf("unmarshal agent card: %w", err)
	}
	return &card, nil
}

// Discover lists every agent registered under a type, each paired with its
// most recent liveness state (spec section 4.4 /discover).
func (r *Registry) Discover(ctx context.Context, agentType string) ([]*model.AgentState, error) {
	ids, err := r.rdb.SMembers(ctx, typeIndexPrefix+agentType).Result()
	if err != nil {
		return nil, fmt.Errorf("list agent type index: %w", err)
	}
	out := make([]*model.AgentState, 0, len(ids))
	for _, id := range ids {
		raw, err := r.rdb.Get(ctx, stateKeyPrefix+id).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get agent state %s: %w", id, err)
		}
		var state model.AgentState
		if err := json.Unmarshal(raw, &state); err != nil {
			return nil, fmt.Errorf("unmarshal agent state %s: %w", id, err)
		}
		out = append(out, &state)
	}
	return out, nil
}

// SelectAgent picks the best available agent of a type for dispatch: it
// prefers preferredAgentID when live, otherwise the agent with the lowest
// error rate among those heartbeating within StaleThreshold (spec section
// 9 supplement "performance-weighted agent assignment", grounded on
// WorkflowCoordinator.assign_task_to_agent).
func (r *Registry) SelectAgent(ctx context.Context, agentType, preferredAgentID string, now time.Time) (*model.AgentState, error) {
	agents, err := r.Discover(ctx, agentType)
	if err != nil {
		return nil, err
	}

	var available []*model.AgentState
	for _, a := range agents {
		if a.IsStale(now, StaleThreshold) || a.Status == model.AgentOffline {
			continue
		}
		if preferredAgentID != "" && a.AgentID == preferredAgentID {
			return a, nil
		}
		available = append(available, a)
	}
	if len(available) == 0 {
		return nil, fmt.Errorf("no available agents of type %q", agentType)
	}

	best := available[0]
	for _, a := range available[1:] {
		if a.ErrorRate() < best.ErrorRate() {
			best = a
		}
	}
	return best, nil
}

// CleanupStaleAgents flips every agent whose heartbeat has aged past
// StaleThreshold to Offline in its stored state (spec section 9 supplement
// "standalone stale-agent sweep", independent of the recovery daemon).
func (r *Registry) CleanupStaleAgents(ctx context.Context, agentType string, now time.Time) (int, error) {
	agents, err := r.Discover(ctx, agentType)
	if err != nil {
		return 0, err
	}
	cleaned := 0
	for _, a := range agents {
		if a.IsStale(now, StaleThreshold) && a.Status != model.AgentOffline {
			a.Status = model.AgentOffline
			if err := r.Heartbeat(ctx, a, a.HeartbeatAt); err != nil {
				return cleaned, err
			}
			cleaned++
		}
	}
	return cleaned, nil
}
