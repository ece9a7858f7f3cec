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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/a2awatch/reddit-watch/internal/breaker"
	"github.com/a2awatch/reddit-watch/internal/errs"
)

// Invoker calls a named skill on a peer agent (spec section 4.5 "Remote
// invocation").
type Invoker interface {
	Invoke(ctx context.Context, agentType, agentURL, skill string, params map[string]any, correlationID string) (map[string]any, error)
}

// HTTPInvoker is the production Invoker: POST {agent_url}/skills/{skill}
// through the per-(agent,endpoint) circuit breaker, grounded on spec
// section 4.5's remote-invocation contract.
type HTTPInvoker struct {
	client    *http.Client
	breakers  *breaker.Manager
	sharedKey string
}

func NewHTTPInvoker(client *http.Client, breakers *breaker.Manager, sharedKey string) *HTTPInvoker {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPInvoker{client: client, breakers: breakers, sharedKey: sharedKey}
}

type skillRequestBody struct {
	Parameters map[string]any    `json:"parameters"`
	Context    skillRequestCtx   `json:"context"`
}

type skillRequestCtx struct {
	CorrelationID string `json:"correlation_id"`
	Timestamp     string `json:"timestamp"`
}

type skillResponseBody struct {
	Status string         `json:"status"`
	Result map[string]any `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}

func (h *HTTPInvoker) Invoke(ctx context.Context, agentType, agentURL, skill string, params map[string]any, correlationID string) (map[string]any, error) {
	result, err := h.breakers.Execute(ctx, agentType, skill, func(ctx context.Context) (any, error) {
		return h.doInvoke(ctx, agentURL, skill, params, correlationID)
	})
	if err != nil {
		return nil, err
	}
	return result.(map[string]any), nil
}

func (h *HTTPInvoker) doInvoke(ctx context.Context, agentURL, skill string, params map[string]any, correlationID string) (map[string]any, error) {
	body := skillRequestBody{
		Parameters: params,
		Context: skillRequestCtx{
			CorrelationID: correlationID,
			Timestamp:     time.Now().UTC().Format(time.RFC3339),
		},
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal skill request: %w", err)
	}

	url := fmt.Sprintf("%s/skills/%s", agentURL, skill)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("build skill request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+h.sharedKey)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, &errs.UpstreamError{Message: err.Error(), Retriable: true, BreakerFailure: true}
	}
	defer resp.Body.Close()

	var parsed skillResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		retriable := resp.StatusCode >= 500
		return nil, &errs.UpstreamError{Message: "malformed skill response: " + err.Error(), Retriable: retriable, BreakerFailure: retriable}
	}
	if resp.StatusCode >= 500 {
		return nil, &errs.UpstreamError{Message: parsed.Error, Retriable: true, BreakerFailure: true}
	}
	if resp.StatusCode >= 400 {
		// Spec section 4.4: 4xx responses except 408/425/429 are
		// client-visible policy results, not transport faults, and must
		// not trip the breaker.
		breakerFailure := isTransportLikeStatus(resp.StatusCode)
		return nil, &errs.UpstreamError{Message: parsed.Error, Retriable: breakerFailure, BreakerFailure: breakerFailure}
	}
	if parsed.Status == "error" {
		retriable := isRetriableMessage(parsed.Error)
		return nil, &errs.UpstreamError{Message: parsed.Error, Retriable: retriable, BreakerFailure: retriable}
	}
	return parsed.Result, nil
}

// isTransportLikeStatus reports whether a 4xx status should be treated like
// a transport failure for circuit-breaker purposes (spec section 4.4:
// 408 Request Timeout, 425 Too Early, 429 Too Many Requests).
func isTransportLikeStatus(status int) bool {
	switch status {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}

// isRetriableMessage is a conservative classifier for embedded skill
// errors (spec section 7): bad parameters and config problems are
// permanent, anything else is assumed transient.
func isRetriableMessage(msg string) bool {
	lower := strings.ToLower(msg)
	for _, permanent := range []string{"invalid parameter", "missing config", "bad request", "unauthorized"} {
		if strings.Contains(lower, permanent) {
			return false
		}
	}
	return true
}
