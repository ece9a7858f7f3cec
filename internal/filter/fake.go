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

package filter

import (
	"context"
	"strings"
)

// KeywordClassifier is a dependency-free Classifier computing only the
// keyword half of the blend (match fraction of topic terms found,
// case-insensitive substring match) and reporting zero semantic
// similarity, grounded on
// original_source/tests/test_filter_agent.py's keyword-matching tests.
// It exists so the filter agent runs without a real embedding model; a
// production deployment wires a real semantic Classifier instead.
type KeywordClassifier struct{}

func (KeywordClassifier) Score(_ context.Context, text string, topics []string, keywordWeight, semanticWeight float64) (float64, []string, error) {
	lower := strings.ToLower(text)
	var matches []string
	hits := 0
	for _, topic := range topics {
		if topic == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(topic)) {
			hits++
			matches = append(matches, topic)
		}
	}
	keywordScore := 0.0
	if len(topics) > 0 {
		keywordScore = float64(hits) / float64(len(topics))
	}
	return keywordScore*keywordWeight + 0*semanticWeight, matches, nil
}
