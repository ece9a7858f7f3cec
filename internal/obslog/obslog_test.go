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

package obslog

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for input, want := range cases {
		assert.Equal(t, want, ParseLevel(input), "input %q", input)
	}
}

func TestToAttrs(t *testing.T) {
	attrs := toAttrs([]any{"task_id", "t-1", "priority", 5})
	require.Len(t, attrs, 2)
	assert.Equal(t, "task_id", attrs[0].Key)
	assert.Equal(t, "t-1", attrs[0].Value.String())
	assert.Equal(t, "priority", attrs[1].Key)
}

func TestToAttrsDropsTrailingKeyWithoutValue(t *testing.T) {
	attrs := toAttrs([]any{"only_key"})
	assert.Empty(t, attrs)
}

func TestAuditEmitsEventField(t *testing.T) {
	var buf bytes.Buffer
	base := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	defaultLogger = slog.New(&filteringHandler{handler: base, minLevel: slog.LevelDebug})

	Audit(context.Background(), "task_created", "task_id", "t-1")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "audit", record["msg"])
	assert.Equal(t, "task_created", record["event"])
	assert.Equal(t, "t-1", record["task_id"])
}

func TestGetInitializesDefaultWhenUnset(t *testing.T) {
	defaultLogger = nil
	logger := Get()
	assert.NotNil(t, logger)
	assert.Same(t, logger, Get())
}
