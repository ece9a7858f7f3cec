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

package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDoublesUntilCap(t *testing.T) {
	assert.Equal(t, 1*time.Minute, backoff(0))
	assert.Equal(t, 2*time.Minute, backoff(1))
	assert.Equal(t, 4*time.Minute, backoff(2))
	assert.Equal(t, 60*time.Minute, backoff(10))
}

func TestToStringSlice(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, toStringSlice([]any{"a", "b"}))
	assert.Nil(t, toStringSlice("not-a-slice"))
	assert.Nil(t, toStringSlice(nil))
	assert.Equal(t, []string{"a"}, toStringSlice([]any{"a", 5, true}))
}

func TestStageRetrieveNoPairsReturnsEmpty(t *testing.T) {
	c := &Coordinator{fanoutWorkers: DefaultFanoutWorkers, stageTimeout: DefaultStageTimeout}
	ids, total, err := c.stageRetrieve(context.Background(), "wf-1", nil, []string{"golang"})
	assert := assert.New(t)
	assert.NoError(err)
	assert.Empty(ids)
	assert.Equal(0, total)
}
