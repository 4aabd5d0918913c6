package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pricewatch/price-monitor/pkg/model"
)

// Webhook posts an alert digest to an HTTP endpoint. The payload format is
// Slack-compatible by default; "discord" and a generic "json" format are
// also supported so teams can point this at whatever they already run.
type Webhook struct {
	logger *zap.Logger
	url    string
	format string
	http   *http.Client
}

func NewWebhook(logger *zap.Logger, url, format string) *Webhook {
	return &Webhook{
		logger: logger,
		url:    url,
		format: strings.ToLower(format),
		http:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (w *Webhook) Name() string { return "webhook" }

func (w *Webhook) Notify(ctx context.Context, alerts []model.Alert) error {
	var payload any
	switch w.format {
	case "discord":
		payload = discordPayload(alerts)
	case "json":
		payload = map[string]any{"alerts": alerts}
	default:
		payload = slackPayload(alerts)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.http.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}

	w.logger.Info("notify.webhook_sent",
		zap.String("format", w.format),
		zap.Int("alerts", len(alerts)))
	return nil
}

// slackPayload formats alerts for a Slack incoming webhook. Slack caps the
// number of blocks per message, so long digests are truncated with a count.
func slackPayload(alerts []model.Alert) map[string]any {
	blocks := []map[string]any{
		{
			"type": "header",
			"text": map[string]any{
				"type": "plain_text",
				"text": fmt.Sprintf("%d Price Change Alert(s) Detected", len(alerts)),
			},
		},
		{"type": "divider"},
	}

	const maxBlocks = 10
	for i, a := range alerts {
		if i == maxBlocks {
			break
		}
		blocks = append(blocks, map[string]any{
			"type": "section",
			"text": map[string]any{
				"type": "mrkdwn",
				"text": a.Message,
			},
		})
	}

	if len(alerts) > maxBlocks {
		blocks = append(blocks, map[string]any{
			"type": "section",
			"text": map[string]any{
				"type": "mrkdwn",
				"text": fmt.Sprintf("_...and %d more alerts_", len(alerts)-maxBlocks),
			},
		})
	}

	return map[string]any{"blocks": blocks}
}

// discordPayload formats alerts for a Discord webhook embed.
func discordPayload(alerts []model.Alert) map[string]any {
	const maxLines = 15
	lines := make([]string, 0, maxLines)
	for i, a := range alerts {
		if i == maxLines {
			break
		}
		lines = append(lines, a.Message)
	}

	return map[string]any{
		"embeds": []map[string]any{
			{
				"title":       fmt.Sprintf("%d Price Change Alert(s)", len(alerts)),
				"description": strings.Join(lines, "\n"),
				"color":       15158332,
			},
		},
	}
}
