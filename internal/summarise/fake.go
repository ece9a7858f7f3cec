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

package summarise

import "context"

// TruncatingSummariser is a dependency-free Summariser that returns the
// leading maxLen runes of the input, grounded on
// original_source/tests/mocks/gemini_api_mock.py's "lite" model behavior
// (truncate to the first paragraph). It exists so the summarise agent
// runs without a real LLM credential; a production deployment wires a
// real Summariser instead.
type TruncatingSummariser struct{}

func (TruncatingSummariser) Summarise(_ context.Context, text string, maxLen int) (string, error) {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text, nil
	}
	return string(runes[:maxLen]), nil
}
