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

// Package a2a implements the Agent-to-Agent transport every agent exposes
// (spec section 4.4): a self-describing agent card at
// /.well-known/agent.json, a /discover directory, per-skill POST handlers,
// and a JSON-RPC /a2a entry point. Grounded on
// pkg/a2a/protocol.go, trimmed to the card/skill/task shape a plain
// skill-table dispatcher needs — this system has no LLM agent runner, so
// the teacher's streaming/session/artifact machinery is dropped (see
// DESIGN.md).
package a2a

import "time"

const ProtocolVersion = "1.0"

// AgentCard is the self-description served at /.well-known/agent.json and
// published to the registry (spec section 4.4, section 6 agent card
// schema).
type AgentCard struct {
	Name            string            `json:"name"`
	URL             string            `json:"url"`
	Version         string            `json:"version"`
	Description     string            `json:"description"`
	Provider        *AgentProvider    `json:"provider,omitempty"`
	Capabilities    AgentCapabilities `json:"capabilities"`
	Skills          []AgentSkill      `json:"skills"`
	SecuritySchemes []SecurityScheme  `json:"securitySchemes,omitempty"`
}

type AgentProvider struct {
	Name         string `json:"name"`
	Organization string `json:"organization,omitempty"`
	URL          string `json:"url,omitempty"`
}

type AgentCapabilities struct {
	Streaming         bool `json:"streaming"`
	PushNotifications bool `json:"pushNotifications"`
}

// AgentSkill describes one dispatchable capability (spec section 4.4
// skill-table dispatch, section 6 agent card schema inputModes/
// outputModes/examples/tags).
type AgentSkill struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
	InputModes  []string `json:"inputModes,omitempty"`
	OutputModes []string `json:"outputModes,omitempty"`
	Examples    []string `json:"examples,omitempty"`
}

// SecurityScheme documents how the agent expects to be authenticated
// (spec section 4.4; this system always uses a single bearer scheme).
type SecurityScheme struct {
	Type   string `json:"type"`
	Scheme string `json:"scheme"`
}

// Task mirrors the wire shape of model.Task for cross-agent dispatch (spec
// section 4.4); it is not the persisted record. HandleRPC does not use it:
// a message/send call carries MessageSendParams and returns the skill's
// result map.
type Task struct {
	ID         string         `json:"id"`
	SkillName  string         `json:"skillName"`
	Parameters map[string]any `json:"parameters"`
	Status     TaskStatus     `json:"status"`
	Result     map[string]any `json:"result,omitempty"`
	Error      *TaskError     `json:"error,omitempty"`
}

type TaskStatus struct {
	State     TaskState `json:"state"`
	UpdatedAt time.Time `json:"updatedAt"`
	Reason    string    `json:"reason,omitempty"`
}

type TaskState string

const (
	TaskStateSubmitted TaskState = "submitted"
	TaskStateWorking   TaskState = "working"
	TaskStateCompleted TaskState = "completed"
	TaskStateFailed    TaskState = "failed"
)

type TaskError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
