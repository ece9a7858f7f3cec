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

// Package config loads and validates process configuration (spec section
// 6's enumerated keys), grounded on pkg/config/koanf_loader.go. The
// teacher's Consul/etcd/Zookeeper backends are dropped (see DESIGN.md):
// this system only ever loads from a YAML file with environment overrides.
package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds every key spec section 6 enumerates.
type Config struct {
	DatabaseURL string `koanf:"database_url"`
	RedisURL    string `koanf:"redis_url"`

	A2AHost string `koanf:"a2a_host"`
	A2APort int    `koanf:"a2a_port"`

	// CoordinatorAgentURL plus the four stage agents give five peer types
	// (spec section 6 "{agent_type}_agent_url for the five peer types"),
	// one per `serve {agent_type}` process, ports 8000-8004 by convention.
	CoordinatorAgentURL string `koanf:"coordinator_agent_url"`
	RetrievalAgentURL   string `koanf:"retrieval_agent_url"`
	FilterAgentURL      string `koanf:"filter_agent_url"`
	SummariseAgentURL   string `koanf:"summarise_agent_url"`
	AlertAgentURL       string `koanf:"alert_agent_url"`

	A2AAPIKey string `koanf:"a2a_api_key"`
	JWTSecret string `koanf:"jwt_secret"`

	RateLimitBurstLimit          int      `koanf:"rate_limit_burst_limit"`
	RateLimitRequestsPerMinute   int      `koanf:"rate_limit_requests_per_minute"`
	RateLimitRequestsPerHour     int      `koanf:"rate_limit_requests_per_hour"`
	RateLimitWhitelistCIDRs      []string `koanf:"rate_limit_whitelist"`

	FailureThreshold uint32 `koanf:"failure_threshold"`
	RecoveryTimeoutS int    `koanf:"recovery_timeout_seconds"`

	MonitoringIntervalHours int      `koanf:"monitoring_interval_hours"`
	RedditTopics            []string `koanf:"reddit_topics"`
	// RedditSubreddits is the companion list to RedditTopics: the
	// Coordinator fans out one retrieval task per (topic, subreddit) pair
	// (spec section 4.5 stage 1). Not itself one of section 6's enumerated
	// keys, but required to drive RunMonitoringCycle's second parameter.
	RedditSubreddits        []string `koanf:"reddit_subreddits"`
	RelevanceThreshold      float64  `koanf:"relevance_threshold"`
	RelevanceKeywordWeight  float64  `koanf:"relevance_keyword_weight"`
	RelevanceSemanticWeight float64  `koanf:"relevance_semantic_weight"`

	SlackWebhookURL string   `koanf:"slack_webhook_url"`
	SMTPHost        string   `koanf:"smtp_host"`
	SMTPPort        int      `koanf:"smtp_port"`
	SMTPUsername    string   `koanf:"smtp_username"`
	SMTPPassword    string   `koanf:"smtp_password"`
	EmailRecipients []string `koanf:"email_recipients"`
}

// defaults mirrors the zero-config values the original system shipped with.
func defaults() map[string]any {
	return map[string]any{
		"a2a_host":                       "0.0.0.0",
		"rate_limit_burst_limit":         10,
		"rate_limit_requests_per_minute": 60,
		"rate_limit_requests_per_hour":   1000,
		"failure_threshold":              5,
		"recovery_timeout_seconds":       60,
		"monitoring_interval_hours":      1,
		"relevance_threshold":            0.5,
		"relevance_keyword_weight":       0.7,
		"relevance_semantic_weight":      0.3,
		"smtp_port":                      587,
	}
}

// Load reads configuration from a YAML file, overridden by A2AWATCH_*
// environment variables (spec section 6), grounded on
// pkg/config/koanf_loader.go's file provider + env expansion, trimmed to
// the single backend this system needs.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider("A2AWATCH_", ".", envKeyTransform), nil); err != nil {
		return nil, fmt.Errorf("load config env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// AgentURL returns the configured peer URL for one of the five agent types
// (spec section 6), or "" if agentType is not recognized.
func (c *Config) AgentURL(agentType string) string {
	switch agentType {
	case "coordinator":
		return c.CoordinatorAgentURL
	case "retrieval":
		return c.RetrievalAgentURL
	case "filter":
		return c.FilterAgentURL
	case "summarise":
		return c.SummariseAgentURL
	case "alert":
		return c.AlertAgentURL
	default:
		return ""
	}
}

// DefaultPort returns the conventional port for an agent type (8000-8004)
// when a2a_port is not explicitly set, per spec section 6.
func DefaultPort(agentType string) int {
	switch agentType {
	case "coordinator":
		return 8000
	case "retrieval":
		return 8001
	case "filter":
		return 8002
	case "summarise":
		return 8003
	case "alert":
		return 8004
	default:
		return 8000
	}
}

func envKeyTransform(s string) string {
	return strings.ToLower(strings.TrimPrefix(s, "A2AWATCH_"))
}

// Validate enforces spec section 6's required keys and the relevance
// weighting invariant from DESIGN.md's resolved open question. A non-nil
// error maps to CLI exit code 2 (bad config).
func (c *Config) Validate() error {
	required := map[string]string{
		"database_url": c.DatabaseURL,
		"redis_url":    c.RedisURL,
		"a2a_api_key":  c.A2AAPIKey,
		"jwt_secret":   c.JWTSecret,
	}
	for name, v := range required {
		if v == "" {
			return fmt.Errorf("missing required config key %q", name)
		}
	}
	if c.A2APort < 0 {
		return fmt.Errorf("a2a_port must not be negative, got %d", c.A2APort)
	}
	sum := c.RelevanceKeywordWeight + c.RelevanceSemanticWeight
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("relevance_keyword_weight + relevance_semantic_weight must sum to 1.0, got %f", sum)
	}
	return nil
}
