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

// Package idempotency implements parameter hashing, idempotent task
// creation, content dedup registration, and distributed leases (spec
// section 4.2), grounded on original_source/reddit_watcher/idempotency.py.
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// CanonicalHash recursively sorts map keys and serializes v in a stable
// form before hashing, so CanonicalHash({a:1,b:2}) == CanonicalHash({b:2,a:1})
// (spec section 4.2, section 8 "Canonical-hash stability" law). The result
// is a 64-char hex SHA-256 digest.
func CanonicalHash(v any) string {
	normalized := canonicalize(v)
	raw, _ := json.Marshal(normalized)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// canonicalize walks v, converting any map into a sortedMap whose
// MarshalJSON emits keys in sorted order, so json.Marshal produces a
// deterministic byte sequence regardless of Go map iteration order.
func canonicalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(sortedMap, 0, len(val))
		for _, k := range keys {
			out = append(out, kv{k, canonicalize(val[k])})
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = canonicalize(e)
		}
		return out
	default:
		return val
	}
}

type kv struct {
	Key   string
	Value any
}

// sortedMap marshals as a JSON object with keys emitted in the order they
// were appended (already sorted by canonicalize).
type sortedMap []kv

func (m sortedMap) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, pair := range m {
		if i > 0 {
			buf = append(buf, ',')
		}
		keyJSON, _ := json.Marshal(pair.Key)
		buf = append(buf, keyJSON...)
		buf = append(buf, ':')
		valJSON, err := json.Marshal(pair.Value)
		if err != nil {
			return nil, err
		}
		buf = append(buf, valJSON...)
	}
	buf = append(buf, '}')
	return buf, nil
}
