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

// Package summarise implements the summarizeContent skill (spec section
// 4.5 stage 3), wrapping the out-of-scope LLM summariser interface spec
// section 1 specifies (`Summarise(text, maxLen) → string`), grounded on
// original_source/tests/mocks/gemini_api_mock.py's generate_summary shape.
package summarise

import (
	"context"
	"fmt"
	"strings"

	"github.com/a2awatch/reddit-watch/internal/model"
	"github.com/a2awatch/reddit-watch/internal/store"
)

// DefaultMaxLen bounds the summary length when a caller omits
// "max_length".
const DefaultMaxLen = 2000

// Summariser is the LLM client interface spec section 1 specifies.
type Summariser interface {
	Summarise(ctx context.Context, text string, maxLen int) (string, error)
}

// Skill adapts a Summariser to the summarise agent's summarizeContent
// skill.
type Skill struct {
	summariser Summariser
	content    *store.ContentDedupStore
	defaultLen int
}

func New(summariser Summariser, content *store.ContentDedupStore) *Skill {
	return &Skill{summariser: summariser, content: content, defaultLen: DefaultMaxLen}
}

// SummarizeContent implements summarizeContent: concatenate the relevant
// content items and summarise them in one pass, reporting the shape the
// Coordinator's stageSummarise expects (spec section 4.5 stage 3:
// `{summary_text, stats}`).
func (s *Skill) SummarizeContent(ctx context.Context, params map[string]any) (map[string]any, error) {
	ids := toStringSlice(params["content_ids"])
	if len(ids) == 0 {
		return nil, fmt.Errorf("summarizeContent: content_ids is required")
	}
	maxLen := s.defaultLen
	if n, ok := params["max_length"].(float64); ok && n > 0 {
		maxLen = int(n)
	}

	var combined strings.Builder
	for _, id := range ids {
		content, err := s.content.GetByExternalID(ctx, model.ContentPost, id)
		if err != nil {
			return nil, fmt.Errorf("load content %s: %w", id, err)
		}
		title, _ := content.ExtraData["title"].(string)
		body, _ := content.ExtraData["body"].(string)
		combined.WriteString(title)
		combined.WriteString("\n")
		combined.WriteString(body)
		combined.WriteString("\n\n")
	}

	summaryText, err := s.summariser.Summarise(ctx, combined.String(), maxLen)
	if err != nil {
		return nil, fmt.Errorf("summarise %d items: %w", len(ids), err)
	}

	return map[string]any{
		"summary_text": summaryText,
		"stats": map[string]any{
			"items_summarised": len(ids),
		},
	}, nil
}

func toStringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, e := range raw {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
