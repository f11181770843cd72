// Package alert delivers digest and migration notifications to chat and
// webhook destinations.
package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/elonfeng/degendigest/internal/config"
	"github.com/elonfeng/degendigest/internal/pipeline"
	"github.com/elonfeng/degendigest/pkg/digest"
	"go.uber.org/zap"
)

// Kind tells receivers what happened.
type Kind string

const (
	KindDigest           Kind = "digest_published"
	KindMigrationFailure Kind = "migration_failed"
)

// maxLines caps the highlight lines rendered by chat notifiers.
const maxLines = 5

// Notification is the data sent to alert destinations.
type Notification struct {
	Kind       Kind      `json:"kind"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	URL        string    `json:"url,omitempty"`
	Date       string    `json:"date,omitempty"`
	Highlights []string  `json:"highlights"`
	SentAt     time.Time `json:"sent_at"`
}

// DigestPublished builds the notification for a freshly written digest. The
// highlights are the executive summary bullets with their markdown kept.
func DigestPublished(d *digest.Digest, baseURL string) *Notification {
	sum := digest.Summarize(d.Content)
	n := &Notification{
		Kind:       KindDigest,
		Title:      sum.Title,
		Body:       fmt.Sprintf("The digest for %s is out.", d.Date),
		Date:       d.Date,
		Highlights: []string{},
		SentAt:     time.Now().UTC(),
	}
	if n.Title == "" {
		n.Title = "Degen Digest - " + d.Date
	}
	if s := sum.Section(digest.HeadingSummary); s != nil {
		n.Highlights = s.Markdown
	}
	if baseURL != "" {
		n.URL = baseURL + "/api/digests/" + d.Date + "?format=html"
	}
	return n
}

// MigrationFailed builds the notification for a run that had file-level or
// source-level failures. It returns nil when nothing failed.
func MigrationFailed(r pipeline.Report, runErr error) *Notification {
	if runErr == nil {
		return nil
	}
	t := r.Totals()
	n := &Notification{
		Kind:  KindMigrationFailure,
		Title: "Migration failed",
		Body: fmt.Sprintf("%d of %d files failed; %d records written, %d failed.",
			t.FilesFailed, t.Files, t.Written, t.Failed),
		Highlights: []string{},
		SentAt:     time.Now().UTC(),
	}
	for _, sr := range r.Sources {
		if sr.Error != "" {
			n.Highlights = append(n.Highlights, fmt.Sprintf("%s: %s", sr.Source, truncate(sr.Error, 300)))
		}
	}
	if len(n.Highlights) == 0 {
		n.Highlights = append(n.Highlights, truncate(runErr.Error(), 300))
	}
	return n
}

// Notifier delivers alerts to a specific destination.
type Notifier interface {
	Name() string
	Send(ctx context.Context, n *Notification) error
}

// Manager broadcasts notifications to all registered notifiers.
type Manager struct {
	notifiers []Notifier
	log       *zap.Logger
}

// NewManager creates a new alert manager.
func NewManager(log *zap.Logger, notifiers ...Notifier) *Manager {
	return &Manager{notifiers: notifiers, log: log.Named("alert")}
}

// FromConfig builds a Manager with every enabled destination.
func FromConfig(cfg config.AlertsConfig, log *zap.Logger) *Manager {
	var ns []Notifier
	if cfg.Slack.Enabled && cfg.Slack.WebhookURL != "" {
		ns = append(ns, NewSlack(cfg.Slack.WebhookURL))
	}
	if cfg.Discord.Enabled && cfg.Discord.WebhookURL != "" {
		ns = append(ns, NewDiscord(cfg.Discord.WebhookURL))
	}
	if cfg.Webhook.Enabled && cfg.Webhook.URL != "" {
		ns = append(ns, NewWebhook(cfg.Webhook.URL, cfg.Webhook.Secret))
	}
	return NewManager(log, ns...)
}

// HasNotifiers returns true if at least one notifier is configured.
func (m *Manager) HasNotifiers() bool {
	return len(m.notifiers) > 0
}

// Broadcast sends n to every notifier. A nil notification is a no-op. One
// destination failing does not stop the others.
func (m *Manager) Broadcast(ctx context.Context, n *Notification) error {
	if n == nil {
		return nil
	}
	var errs []error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(ctx, n); err != nil {
			m.log.Warn("notification failed", zap.String("notifier", notifier.Name()), zap.String("kind", string(n.Kind)), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", notifier.Name(), err))
			continue
		}
		m.log.Info("notification sent", zap.String("notifier", notifier.Name()), zap.String("kind", string(n.Kind)))
	}
	return errors.Join(errs...)
}

func truncate(s string, n int) string {
	if r := []rune(s); len(r) > n {
		return string(r[:n]) + "..."
	}
	return s
}
