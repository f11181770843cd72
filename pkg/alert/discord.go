package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Discord sends notifications via Discord webhook.
type Discord struct {
	client     *http.Client
	webhookURL string
}

// NewDiscord creates a new Discord notifier.
func NewDiscord(webhookURL string) *Discord {
	return &Discord{client: newClient(), webhookURL: webhookURL}
}

func (d *Discord) Name() string { return "discord" }

// Send posts a single embed. Discord renders **bold** natively.
func (d *Discord) Send(ctx context.Context, n *Notification) error {
	desc := n.Body
	if len(n.Highlights) > 0 {
		lines := make([]string, 0, maxLines)
		for _, h := range n.Highlights[:min(maxLines, len(n.Highlights))] {
			lines = append(lines, "• "+h)
		}
		desc += "\n\n" + strings.Join(lines, "\n")
	}

	color := 0x00C853
	if n.Kind == KindMigrationFailure {
		color = 0xD50000
	}
	embed := map[string]any{
		"title":       icon(n.Kind) + " " + n.Title,
		"description": truncate(desc, 4000),
		"color":       color,
		"timestamp":   n.SentAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	if n.URL != "" {
		embed["url"] = n.URL
	}

	body, err := json.Marshal(map[string]any{"embeds": []map[string]any{embed}})
	if err != nil {
		return fmt.Errorf("marshal discord payload: %w", err)
	}
	if err := post(ctx, d.client, d.webhookURL, body, nil); err != nil {
		return fmt.Errorf("discord webhook: %w", err)
	}
	return nil
}
