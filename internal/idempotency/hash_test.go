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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalHashKeyOrderIndependent(t *testing.T) {
	a := map[string]any{"a": 1, "b": 2}
	b := map[string]any{"b": 2, "a": 1}
	assert.Equal(t, CanonicalHash(a), CanonicalHash(b))
}

func TestCanonicalHashNestedAndSlices(t *testing.T) {
	a := map[string]any{
		"topic":   "golang",
		"filters": []any{"news", "release"},
		"nested":  map[string]any{"z": 1, "a": 2},
	}
	b := map[string]any{
		"nested":  map[string]any{"a": 2, "z": 1},
		"filters": []any{"news", "release"},
		"topic":   "golang",
	}
	assert.Equal(t, CanonicalHash(a), CanonicalHash(b))
}

func TestCanonicalHashDistinguishesDifferentValues(t *testing.T) {
	a := map[string]any{"topic": "golang"}
	b := map[string]any{"topic": "rust"}
	assert.NotEqual(t, CanonicalHash(a), CanonicalHash(b))
}

func TestCanonicalHashIsStableHexSHA256Length(t *testing.T) {
	h := CanonicalHash(map[string]any{"x": 1})
	assert.Len(t, h, 64)
}

func TestCanonicalHashOrderSensitiveWithinSlice(t *testing.T) {
	a := map[string]any{"list": []any{"a", "b"}}
	b := map[string]any{"list": []any{"b", "a"}}
	assert.NotEqual(t, CanonicalHash(a), CanonicalHash(b))
}
