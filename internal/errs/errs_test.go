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

package errs

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifySentinels(t *testing.T) {
	assert.Equal(t, KindCircuitOpen, Classify(ErrCircuitOpen))
	assert.Equal(t, KindDuplicate, Classify(ErrDuplicate))
	assert.Equal(t, KindLeaseContention, Classify(ErrLeaseHeld))
	assert.Equal(t, KindAuth, Classify(ErrUnauthorized))
	assert.Equal(t, KindAuth, Classify(ErrForbidden))
	assert.Equal(t, KindValidation, Classify(ErrValidation))
	assert.Equal(t, KindUnknown, Classify(nil))
}

func TestClassifyWrappedSentinel(t *testing.T) {
	wrapped := fmt.Errorf("context: %w", ErrDuplicate)
	assert.Equal(t, KindDuplicate, Classify(wrapped))
}

func TestClassifyUnknownDefaultsToTransport(t *testing.T) {
	assert.Equal(t, KindTransport, Classify(fmt.Errorf("connection reset")))
}

func TestClassifyUpstreamError(t *testing.T) {
	retriable := &UpstreamError{Message: "rate limited", Retriable: true}
	assert.Equal(t, KindUpstreamRetriable, Classify(retriable))

	permanent := &UpstreamError{Message: "bad request", Retriable: false}
	assert.Equal(t, KindUpstreamPermanent, Classify(permanent))
}

func TestClassifyWrappedUpstreamError(t *testing.T) {
	wrapped := fmt.Errorf("invoke skill: %w", &UpstreamError{Message: "boom", Retriable: true})
	assert.Equal(t, KindUpstreamRetriable, Classify(wrapped))
}

func TestKindRetriable(t *testing.T) {
	assert.True(t, KindTransport.Retriable())
	assert.True(t, KindUpstreamRetriable.Retriable())
	assert.True(t, KindCircuitOpen.Retriable())
	assert.False(t, KindUpstreamPermanent.Retriable())
	assert.False(t, KindValidation.Retriable())
	assert.False(t, KindAuth.Retriable())
	assert.False(t, KindDuplicate.Retriable())
}

func TestUpstreamErrorImplementsError(t *testing.T) {
	var err error = &UpstreamError{Message: "failed"}
	assert.EqualError(t, err, "failed")
}
