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
	"database/sql"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/a2awatch/reddit-watch/internal/a2a"
	"github.com/a2awatch/reddit-watch/internal/auth"
	"github.com/a2awatch/reddit-watch/internal/breaker"
	"github.com/a2awatch/reddit-watch/internal/config"
	"github.com/a2awatch/reddit-watch/internal/idempotency"
	"github.com/a2awatch/reddit-watch/internal/ratelimit"
	"github.com/a2awatch/reddit-watch/internal/registry"
	"github.com/a2awatch/reddit-watch/internal/store"
)

// deps bundles the process-wide collaborators every `serve`/`run-cycle`
// subcommand wires from config (spec section 6's enumerated keys).
type deps struct {
	cfg *config.Config
	db  *sql.DB
	rdb *redis.Client

	tasks      *store.TaskStore
	workflows  *store.WorkflowStore
	agentState *store.AgentStateStore
	recoveries *store.TaskRecoveryStore
	content    *store.ContentDedupStore
	batches    *store.AlertBatchStore
	deliveries *store.AlertDeliveryStore

	idempotent *idempotency.Service
	reg        *registry.Registry
	breakers   *breaker.Manager
	validator  auth.TokenValidator
	limiter    *ratelimit.Limiter
}

func newDeps(cfg *config.Config) (*deps, error) {
	db, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("parse redis_url: %w", err)
	}
	rdb := redis.NewClient(opts)

	tasks := store.NewTaskStore(db)
	content := store.NewContentDedupStore(db)

	d := &deps{
		cfg:        cfg,
		db:         db,
		rdb:        rdb,
		tasks:      tasks,
		workflows:  store.NewWorkflowStore(db),
		agentState: store.NewAgentStateStore(db),
		recoveries: store.NewTaskRecoveryStore(db),
		content:    content,
		batches:    store.NewAlertBatchStore(db),
		deliveries: store.NewAlertDeliveryStore(db),
		idempotent: idempotency.NewService(tasks, content),
		reg:        registry.New(rdb),
		breakers: breaker.NewManager(breaker.Config{
			ConsecutiveFailures: cfg.FailureThreshold,
			OpenTimeout:         time.Duration(cfg.RecoveryTimeoutS) * time.Second,
			HalfOpenMaxRequests: 1,
		}),
		validator: auth.NewSharedKeyOrJWTValidator(cfg.A2AAPIKey, cfg.JWTSecret, ""),
		limiter:   ratelimit.New(ratelimit.Limits{BurstPerTenSeconds: cfg.RateLimitBurstLimit, PerMinute: cfg.RateLimitRequestsPerMinute, PerHour: cfg.RateLimitRequestsPerHour}, cfg.RateLimitWhitelistCIDRs),
	}
	return d, nil
}

func (d *deps) Close() {
	d.rdb.Close()
	d.db.Close()
}

// baseCard builds the self-description every agent type publishes, varying
// only name/description/skills (spec section 4.3 agent card schema).
func baseCard(agentType, url, description string) a2a.AgentCard {
	return a2a.AgentCard{
		Name:        "reddit-watch-" + agentType,
		URL:         url,
		Version:     a2a.ProtocolVersion,
		Description: description,
		Provider:    &a2a.AgentProvider{Name: "reddit-watch"},
		Capabilities: a2a.AgentCapabilities{
			Streaming:         false,
			PushNotifications: false,
		},
		SecuritySchemes: []a2a.SecurityScheme{{Type: "http", Scheme: "bearer"}},
	}
}
