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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDispatcher() *Dispatcher {
	d := NewDispatcher(AgentCard{Name: "reddit-watch-filter"})
	d.RegisterSkill(AgentSkill{Name: "batch_filter_posts", Description: "score posts"}, func(ctx context.Context, params map[string]any) (map[string]any, error) {
		if params["fail"] == true {
			return nil, errors.New("boom")
		}
		return map[string]any{"processed": 1}, nil
	})
	return d
}

func TestRegisterSkillAppearsOnCard(t *testing.T) {
	d := testDispatcher()
	require.Len(t, d.Card().Skills, 1)
	assert.Equal(t, "batch_filter_posts", d.Card().Skills[0].Name)
}

func TestRegisterSkillReplacesExistingCardEntry(t *testing.T) {
	d := testDispatcher()
	d.RegisterSkill(AgentSkill{Name: "batch_filter_posts", Description: "updated"}, func(ctx context.Context, params map[string]any) (map[string]any, error) {
		return nil, nil
	})
	require.Len(t, d.Card().Skills, 1)
	assert.Equal(t, "updated", d.Card().Skills[0].Description)
}

func TestInvokeUnknownSkill(t *testing.T) {
	d := testDispatcher()
	_, err := d.Invoke(context.Background(), "does_not_exist", nil)
	assert.Error(t, err)
}

func TestHandleRPCSuccess(t *testing.T) {
	d := testDispatcher()
	params, _ := json.Marshal(MessageSendParams{SkillName: "batch_filter_posts", Parameters: map[string]any{"post_ids": []any{"1"}}})
	resp := d.HandleRPC(context.Background(), RPCRequest{JSONRPC: "2.0", Method: "message/send", Params: params, ID: json.RawMessage(`1`)})

	require.Nil(t, resp.Error)
	var result map[string]any
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.EqualValues(t, 1, result["processed"])
}

func TestHandleRPCUnknownMethod(t *testing.T) {
	d := testDispatcher()
	resp := d.HandleRPC(context.Background(), RPCRequest{JSONRPC: "2.0", Method: "message/other", ID: json.RawMessage(`1`)})
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32601, resp.Error.Code)
}

func TestHandleRPCInvalidParams(t *testing.T) {
	d := testDispatcher()
	resp := d.HandleRPC(context.Background(), RPCRequest{JSONRPC: "2.0", Method: "message/send", Params: json.RawMessage(`not-json`), ID: json.RawMessage(`1`)})
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32602, resp.Error.Code)
}

func TestHandleRPCSkillError(t *testing.T) {
	d := testDispatcher()
	params, _ := json.Marshal(MessageSendParams{SkillName: "batch_filter_posts", Parameters: map[string]any{"fail": true}})
	resp := d.HandleRPC(context.Background(), RPCRequest{JSONRPC: "2.0", Method: "message/send", Params: params, ID: json.RawMessage(`2`)})
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32000, resp.Error.Code)
}
