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
	"fmt"
	"strings"
	"time"

	"github.com/a2awatch/reddit-watch/internal/errs"
	"github.com/a2awatch/reddit-watch/internal/idempotency"
	"github.com/a2awatch/reddit-watch/internal/model"
	"github.com/a2awatch/reddit-watch/internal/store"
)

// Batcher assembles AlertBatch records from alert items, dedupes them, and
// drives per-channel delivery (spec section 4.7 sendBatch).
type Batcher struct {
	batches    *store.AlertBatchStore
	deliveries *store.AlertDeliveryStore

	slack SlackSender
	email EmailSender

	retryDelays []time.Duration
}

func New(batches *store.AlertBatchStore, deliveries *store.AlertDeliveryStore) *Batcher {
	return &Batcher{
		batches:     batches,
		deliveries:  deliveries,
		slack:       NoopSlackSender{},
		email:       NoopEmailSender{},
		retryDelays: DefaultRetryDelays,
	}
}

// WithRetryDelays overrides the per-delivery retry backoff schedule (spec
// section 4.7 default: 2/4/8 seconds). Tests shrink this to keep the retry
// path fast.
func (b *Batcher) WithRetryDelays(delays ...time.Duration) *Batcher {
	b.retryDelays = delays
	return b
}

// WithSlackSender overrides the SlackSender, e.g. to wire a real webhook
// client at process start.
func (b *Batcher) WithSlackSender(sender SlackSender) *Batcher {
	b.slack = sender
	return b
}

// WithEmailSender overrides the EmailSender, e.g. to wire a real SMTP
// client at process start.
func (b *Batcher) WithEmailSender(sender EmailSender) *Batcher {
	b.email = sender
	return b
}

// SendBatchParams mirrors the sendBatch skill's parameter shape (spec
// section 4.7).
type SendBatchParams struct {
	Title        string
	Summary      string
	Items        []model.AlertItem
	Channels     []model.Channel
	ScheduleType model.ScheduleType
	Priority     int
	Recipients   []string
}

// SendBatch assembles, dedups, persists, and dispatches one alert batch
// (spec section 4.7). Returns the batch plus the successful and failed
// delivery counts across every requested channel.
func (b *Batcher) SendBatch(ctx context.Context, p SendBatchParams) (*model.AlertBatch, int, int, error) {
	if len(p.Items) == 0 {
		return nil, 0, 0, errs.ErrEmptyBatch
	}

	now := time.Now()
	dedupHash := idempotency.CanonicalHash(map[string]any{
		"title":    p.Title,
		"summary":  p.Summary,
		"items":    p.Items,
		"channels": p.Channels,
	})

	batch := &model.AlertBatch{
		BatchID:      model.NewID(),
		Title:        p.Title,
		Summary:      p.Summary,
		Items:        p.Items,
		TotalItems:   len(p.Items),
		Priority:     p.Priority,
		Channels:     p.Channels,
		ScheduleType: p.ScheduleType,
		Status:       model.BatchPending,
		DedupHash:    dedupHash,
		CreatedAt:    now,
	}

	existing, isNew, err := b.batches.InsertIfNew(ctx, batch)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("insert alert batch: %w", err)
	}
	if !isNew {
		if existing.Status == model.BatchSent {
			return existing, existing.DeliveryAttempts, 0, nil
		}
		batch = existing
	}

	sent, failed := 0, 0
	var lastErr error
	for _, channel := range batch.Channels {
		n, f, err := b.deliverChannel(ctx, batch, channel, p.Recipients, now)
		sent += n
		failed += f
		if err != nil {
			lastErr = err
		}
	}

	if failed == 0 && lastErr == nil {
		if err := b.batches.MarkSent(ctx, batch.BatchID, time.Now()); err != nil {
			return batch, sent, failed, fmt.Errorf("mark batch sent: %w", err)
		}
		return batch, sent, failed, nil
	}

	reportErr := lastErr
	if reportErr == nil {
		reportErr = fmt.Errorf("%d of %d deliveries failed", failed, sent+failed)
	}
	_ = b.batches.MarkFailed(ctx, batch.BatchID, reportErr.Error())
	return batch, sent, failed, reportErr
}

// OverallStatus reports spec section 4.7's result classification: success
// if every delivery succeeded, partial_success if some but not all did,
// failed if none did.
func OverallStatus(sent, failed int) string {
	switch {
	case failed == 0:
		return "success"
	case sent == 0:
		return "failed"
	default:
		return "partial_success"
	}
}

// deliverChannel renders the channel-specific payload once, then sends to
// every recipient (email fans out per address, Slack has exactly one
// implicit "recipient": the configured webhook), recording one
// AlertDelivery row per recipient and retrying each delivery per spec
// section 4.7's transport-error backoff policy (retries reuse that row).
func (b *Batcher) deliverChannel(ctx context.Context, batch *model.AlertBatch, channel model.Channel, recipients []string, now time.Time) (sent, failed int, err error) {
	targets := recipients
	if channel != model.ChannelEmail || len(targets) == 0 {
		targets = []string{""}
	}

	var lastErr error
	for _, recipient := range targets {
		delivery := &model.AlertDelivery{
			DeliveryID:   model.NewID(),
			AlertBatchID: batch.BatchID,
			Channel:      channel,
			Status:       model.DeliveryPending,
			Recipient:    recipient,
			DedupHash:    batch.DedupHash,
		}
		if err := b.deliveries.Insert(ctx, delivery); err != nil && err != errs.ErrDuplicate {
			lastErr = fmt.Errorf("insert delivery: %w", err)
			failed++
			continue
		}

		start := time.Now()
		messageID, sendErr := b.send(ctx, channel, batch, recipient)
		elapsed := time.Since(start)
		if sendErr != nil {
			lastErr = sendErr
			failed++
			_ = b.deliveries.MarkFailed(ctx, delivery.DeliveryID, sendErr.Error())
			continue
		}
		if err := b.deliveries.MarkSent(ctx, delivery.DeliveryID, messageID, elapsed.Milliseconds(), now); err != nil {
			lastErr = fmt.Errorf("mark delivery sent: %w", err)
			failed++
			continue
		}
		sent++
	}
	return sent, failed, lastErr
}

// send dispatches to the channel-appropriate Sender, retrying transport
// failures per spec section 4.7.
func (b *Batcher) send(ctx context.Context, channel model.Channel, batch *model.AlertBatch, recipient string) (string, error) {
	switch channel {
	case model.ChannelSlack:
		payload := renderSlack(batch)
		return withRetry(ctx, b.retryDelays, func() (string, error) {
			return b.slack.SendSlack(ctx, payload)
		})
	case model.ChannelEmail:
		subject, html, text := renderEmail(batch)
		to := []string{recipient}
		return withRetry(ctx, b.retryDelays, func() (string, error) {
			return b.email.SendEmail(ctx, to, subject, html, text)
		})
	default:
		return "", fmt.Errorf("no sender configured for channel %q", channel)
	}
}

// slackColorForPriority keys the attachment colour on priority, matching
// original_source/reddit_watcher/agents/alert_agent.py's
// _format_slack_message colour table.
func slackColorForPriority(p int) string {
	switch priorityLabel(p) {
	case "critical":
		return "#8b0000"
	case "high":
		return "#ff0000"
	case "medium":
		return "#ff9500"
	default:
		return "#36a64f"
	}
}

// renderSlack builds the rich-attachment webhook payload (spec section 4.7
// "Slack: rich-attachment JSON with colour keyed on priority").
func renderSlack(batch *model.AlertBatch) SlackPayload {
	attachments := make([]SlackAttachment, 0, len(batch.Items))
	for _, item := range batch.Items {
		fields := []SlackAttachmentField{
			{Title: "Priority", Value: priorityLabel(item.Priority), Short: true},
		}
		if item.Source != "" {
			fields = append(fields, SlackAttachmentField{Title: "Source", Value: item.Source, Short: true})
		}
		if item.URL != "" {
			fields = append(fields, SlackAttachmentField{Title: "Link", Value: item.URL})
		}
		attachments = append(attachments, SlackAttachment{
			Color:  slackColorForPriority(item.Priority),
			Title:  item.Title,
			Text:   item.Message,
			Fields: fields,
		})
	}
	return SlackPayload{Text: batch.Title + ": " + batch.Summary, Attachments: attachments}
}

// renderEmail builds an HTML/plain-text alternative pair (spec section 4.7
// "Email: HTML + plain-text alternatives").
func renderEmail(batch *model.AlertBatch) (subject, html, text string) {
	var textBody strings.Builder
	var htmlBody strings.Builder

	if batch.Summary != "" {
		textBody.WriteString(batch.Summary)
		textBody.WriteString("\n\n")
	}
	fmt.Fprintf(&htmlBody, "<html><body><h2>%s</h2>", batch.Title)
	if batch.Summary != "" {
		fmt.Fprintf(&htmlBody, "<p>%s</p>", batch.Summary)
	}
	htmlBody.WriteString("<ul>")
	for _, item := range batch.Items {
		label := priorityLabel(item.Priority)
		fmt.Fprintf(&textBody, "- [%s] %s: %s\n", label, item.Title, item.Message)
		if item.URL != "" {
			fmt.Fprintf(&textBody, "  %s\n", item.URL)
		}
		fmt.Fprintf(&htmlBody, "<li><strong>[%s] %s</strong>: %s", label, item.Title, item.Message)
		if item.URL != "" {
			fmt.Fprintf(&htmlBody, ` (<a href="%s">link</a>)`, item.URL)
		}
		htmlBody.WriteString("</li>")
	}
	htmlBody.WriteString("</ul></body></html>")

	return batch.Title, htmlBody.String(), textBody.String()
}

func priorityLabel(p int) string {
	switch {
	case p >= 9:
		return "critical"
	case p >= 7:
		return "high"
	case p >= 4:
		return "medium"
	default:
		return "low"
	}
}
