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

package alert

import (
	"context"

	"github.com/a2awatch/reddit-watch/internal/model"
)

// SendBatchSkill adapts Batcher.SendBatch to the a2a.SkillFunc shape so the
// alert agent process can register it on its Dispatcher (spec section 4.7
// sendBatch parameters).
func (b *Batcher) SendBatchSkill(ctx context.Context, params map[string]any) (map[string]any, error) {
	p, err := parseSendBatchParams(params)
	if err != nil {
		return nil, err
	}
	batch, sent, failed, err := b.SendBatch(ctx, p)
	if err != nil && batch == nil {
		return nil, err
	}
	return map[string]any{
		"batch_id":              batch.BatchID,
		"status":                OverallStatus(sent, failed),
		"successful_deliveries": sent,
		"failed_deliveries":     failed,
		"total_items":           batch.TotalItems,
	}, nil
}

func parseSendBatchParams(params map[string]any) (SendBatchParams, error) {
	var p SendBatchParams
	p.Title, _ = params["title"].(string)
	p.Summary, _ = params["summary"].(string)
	p.Priority = intParam(params["priority"], model.DefaultPriority)

	if st, ok := params["schedule_type"].(string); ok && st != "" {
		p.ScheduleType = model.ScheduleType(st)
	} else {
		p.ScheduleType = model.ScheduleImmediate
	}

	rawItems, _ := params["items"].([]any)
	for _, raw := range rawItems {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		item := model.AlertItem{
			Title:    stringParam(m["title"]),
			Message:  stringParam(m["message"]),
			Priority: intParam(m["priority"], model.DefaultPriority),
			Source:   stringParam(m["source"]),
			URL:      stringParam(m["url"]),
		}
		p.Items = append(p.Items, item)
	}
	if len(p.Items) == 0 {
		// A bare summary/stats payload (the coordinator's stageAlert call)
		// still needs at least one item to render; fold it into one.
		if p.Summary != "" {
			p.Items = append(p.Items, model.AlertItem{Title: p.Title, Message: p.Summary, Priority: p.Priority})
		}
	}

	rawChannels, _ := params["channels"].([]any)
	for _, c := range rawChannels {
		if s, ok := c.(string); ok {
			p.Channels = append(p.Channels, model.Channel(s))
		}
	}
	if len(p.Channels) == 0 {
		p.Channels = []model.Channel{model.ChannelSlack}
	}

	rawRecipients, _ := params["recipients"].([]any)
	for _, r := range rawRecipients {
		if s, ok := r.(string); ok {
			p.Recipients = append(p.Recipients, s)
		}
	}
	return p, nil
}

func stringParam(v any) string {
	s, _ := v.(string)
	return s
}

func intParam(v any, fallback int) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return fallback
	}
}
