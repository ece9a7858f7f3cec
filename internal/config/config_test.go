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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, yaml string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	return path
}

const validYAML = `
database_url: "postgres://localhost/reddit_watch"
redis_url: "redis://localhost:6379"
a2a_api_key: "shared-key"
jwt_secret: "jwt-secret"
reddit_topics: ["golang"]
reddit_subreddits: ["golang"]
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, validYAML))
	require.NoError(t, err)
	assert.Equal(t, 0.7, cfg.RelevanceKeywordWeight)
	assert.Equal(t, 0.3, cfg.RelevanceSemanticWeight)
	assert.Equal(t, 5, int(cfg.FailureThreshold))
	assert.Equal(t, "0.0.0.0", cfg.A2AHost)
}

func TestLoadMissingRequiredKeyFails(t *testing.T) {
	_, err := Load(writeTempConfig(t, `database_url: "postgres://localhost/x"`))
	assert.Error(t, err)
}

func TestLoadRejectsUnbalancedRelevanceWeights(t *testing.T) {
	_, err := Load(writeTempConfig(t, validYAML+"\nrelevance_keyword_weight: 0.9\nrelevance_semantic_weight: 0.9\n"))
	assert.Error(t, err)
}

func TestLoadAllowsZeroA2APort(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, validYAML))
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.A2APort)
}

func TestLoadRejectsNegativeA2APort(t *testing.T) {
	_, err := Load(writeTempConfig(t, validYAML+"\na2a_port: -1\n"))
	assert.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeTempConfig(t, validYAML)
	t.Setenv("A2AWATCH_JWT_SECRET", "from-env")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.JWTSecret)
}

func TestAgentURL(t *testing.T) {
	cfg := &Config{
		CoordinatorAgentURL: "http://coord:8000",
		RetrievalAgentURL:   "http://retrieval:8001",
	}
	assert.Equal(t, "http://coord:8000", cfg.AgentURL("coordinator"))
	assert.Equal(t, "http://retrieval:8001", cfg.AgentURL("retrieval"))
	assert.Equal(t, "", cfg.AgentURL("unknown"))
}

func TestDefaultPort(t *testing.T) {
	assert.Equal(t, 8000, DefaultPort("coordinator"))
	assert.Equal(t, 8001, DefaultPort("retrieval"))
	assert.Equal(t, 8002, DefaultPort("filter"))
	assert.Equal(t, 8003, DefaultPort("summarise"))
	assert.Equal(t, 8004, DefaultPort("alert"))
	assert.Equal(t, 8000, DefaultPort("unknown"))
}
