package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Slack sends notifications via Slack incoming webhook.
type Slack struct {
	client     *http.Client
	webhookURL string
}

// NewSlack creates a new Slack notifier.
func NewSlack(webhookURL string) *Slack {
	return &Slack{client: newClient(), webhookURL: webhookURL}
}

func (s *Slack) Name() string { return "slack" }

// Send posts a Block Kit message: header, body, then the highlights.
func (s *Slack) Send(ctx context.Context, n *Notification) error {
	blocks := []map[string]any{
		{
			"type": "header",
			"text": map[string]any{"type": "plain_text", "text": icon(n.Kind) + " " + n.Title},
		},
		{
			"type": "section",
			"text": map[string]any{"type": "mrkdwn", "text": n.Body},
		},
	}

	if len(n.Highlights) > 0 {
		lines := make([]string, 0, maxLines)
		for _, h := range n.Highlights[:min(maxLines, len(n.Highlights))] {
			lines = append(lines, "• "+slackMarkdown(h))
		}
		blocks = append(blocks, map[string]any{
			"type": "section",
			"text": map[string]any{"type": "mrkdwn", "text": strings.Join(lines, "\n")},
		})
	}
	if n.URL != "" {
		blocks = append(blocks, map[string]any{
			"type": "context",
			"elements": []map[string]any{
				{"type": "mrkdwn", "text": fmt.Sprintf("<%s|Read the full digest>", n.URL)},
			},
		})
	}

	body, err := json.Marshal(map[string]any{"text": n.Title, "blocks": blocks})
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}
	if err := post(ctx, s.client, s.webhookURL, body, nil); err != nil {
		return fmt.Errorf("slack webhook: %w", err)
	}
	return nil
}

// slackMarkdown converts the **bold** used in digests to Slack's *bold*.
func slackMarkdown(s string) string {
	return strings.ReplaceAll(s, "**", "*")
}

func icon(k Kind) string {
	if k == KindMigrationFailure {
		return "🚨"
	}
	return "📰"
}
