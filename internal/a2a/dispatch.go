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

package a2a

import (
	"context"
	"encoding/json"
	"fmt"
)

// SkillFunc executes one named skill against a parameter map and returns a
// result map (spec section 4.4 skill-table dispatch).
type SkillFunc func(ctx context.Context, params map[string]any) (map[string]any, error)

// Dispatcher holds an agent's card and its skill table, and knows how to
// answer both direct /skills/{name} calls and JSON-RPC message/send calls
// over /a2a.
type Dispatcher struct {
	card   AgentCard
	skills map[string]SkillFunc
}

func NewDispatcher(card AgentCard) *Dispatcher {
	return &Dispatcher{card: card, skills: make(map[string]SkillFunc)}
}

// RegisterSkill wires a skill implementation and ensures it appears on the
// agent card (spec section 4.4: the card must list every dispatchable
// skill).
func (d *Dispatcher) RegisterSkill(skill AgentSkill, fn SkillFunc) {
	d.skills[skill.Name] = fn
	for i, existing := range d.card.Skills {
		if existing.Name == skill.Name {
			d.card.Skills[i] = skill
			return
		}
	}
	d.card.Skills = append(d.card.Skills, skill)
}

func (d *Dispatcher) Card() AgentCard { return d.card }

// Invoke runs a registered skill by name (spec section 4.4).
func (d *Dispatcher) Invoke(ctx context.Context, skillName string, params map[string]any) (map[string]any, error) {
	fn, ok := d.skills[skillName]
	if !ok {
		return nil, fmt.Errorf("unknown skill %q", skillName)
	}
	return fn(ctx, params)
}

// RPCRequest is a JSON-RPC 2.0 envelope (spec section 4.4 /a2a transport).
type RPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      json.RawMessage `json:"id"`
}

// RPCResponse is a JSON-RPC 2.0 response envelope.
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// MessageSendParams is the payload of the only RPC method this system
// implements, "message/send" (spec section 4.4, trimmed from
// pkg/a2a/protocol.go's MessageSendParams: no streaming configuration,
// since agents here run one skill to completion per call).
type MessageSendParams struct {
	SkillName  string         `json:"skillName"`
	Parameters map[string]any `json:"parameters"`
}

// HandleRPC executes a JSON-RPC request against the dispatcher's skill
// table and returns the response envelope, never an error — protocol
// failures are encoded as RPCError per JSON-RPC 2.0.
func (d *Dispatcher) HandleRPC(ctx context.Context, req RPCRequest) RPCResponse {
	resp := RPCResponse{JSONRPC: "2.0", ID: req.ID}

	if req.Method != "message/send" {
		resp.Error = &RPCError{Code: -32601, Message: "method not found: " + req.Method}
		return resp
	}

	var params MessageSendParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		resp.Error = &RPCError{Code: -32602, Message: "invalid params: " + err.Error()}
		return resp
	}

	result, err := d.Invoke(ctx, params.SkillName, params.Parameters)
	if err != nil {
		resp.Error = &RPCError{Code: -32000, Message: err.Error()}
		return resp
	}

	raw, err := json.Marshal(result)
	if err != nil {
		resp.Error = &RPCError{Code: -32603, Message: "internal error: " + err.Error()}
		return resp
	}
	resp.Result = raw
	return resp
}
