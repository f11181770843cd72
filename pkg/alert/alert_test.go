package alert

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/elonfeng/degendigest/internal/config"
	"github.com/elonfeng/degendigest/internal/pipeline"
	"github.com/elonfeng/degendigest/pkg/digest"
	"github.com/elonfeng/degendigest/pkg/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const digestMD = `# Degen Digest - 2025-06-02

## Executive Summary

- **Hot tickers:** $SOL (4 mentions on news, reddit, twitter)
- **Top gainer:** PEPE +45.0%

## Twitter

- @bob: moon
`

type recorder struct {
	status int
	calls  atomic.Int32

	mu     sync.Mutex
	body   []byte
	header http.Header
}

func (r *recorder) last() ([]byte, http.Header) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.body, r.header
}

func (r *recorder) server(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.calls.Add(1)
		body, _ := io.ReadAll(req.Body)
		r.mu.Lock()
		r.body, r.header = body, req.Header.Clone()
		r.mu.Unlock()
		w.WriteHeader(r.status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDigestPublished(t *testing.T) {
	n := DigestPublished(&digest.Digest{Date: "2025-06-02", Content: digestMD}, "https://digest.example")
	assert.Equal(t, KindDigest, n.Kind)
	assert.Equal(t, "Degen Digest - 2025-06-02", n.Title)
	assert.Equal(t, "https://digest.example/api/digests/2025-06-02?format=html", n.URL)
	assert.Equal(t, []string{
		"**Hot tickers:** $SOL (4 mentions on news, reddit, twitter)",
		"**Top gainer:** PEPE +45.0%",
	}, n.Highlights)

	n = DigestPublished(&digest.Digest{Date: "2025-06-03", Content: "no headings"}, "")
	assert.Equal(t, "Degen Digest - 2025-06-03", n.Title)
	assert.Empty(t, n.URL)
	assert.Empty(t, n.Highlights)
}

func TestMigrationFailed(t *testing.T) {
	assert.Nil(t, MigrationFailed(pipeline.Report{}, nil))

	r := pipeline.Report{Sources: []pipeline.SourceReport{
		{Source: source.SourceTwitter, Files: 3, FilesFailed: 1, Written: 20, Error: "extract twitter_data/bad.json: undecodable"},
		{Source: source.SourceReddit, Files: 2, Written: 5},
	}}
	n := MigrationFailed(r, errors.New("boom"))
	require.NotNil(t, n)
	assert.Equal(t, KindMigrationFailure, n.Kind)
	assert.Equal(t, "1 of 5 files failed; 25 records written, 0 failed.", n.Body)
	assert.Equal(t, []string{"twitter: extract twitter_data/bad.json: undecodable"}, n.Highlights)

	n = MigrationFailed(pipeline.Report{}, errors.New("connect: refused"))
	assert.Equal(t, []string{"connect: refused"}, n.Highlights)
}

func TestWebhookSigned(t *testing.T) {
	rec := &recorder{status: http.StatusNoContent}
	srv := rec.server(t)

	n := DigestPublished(&digest.Digest{Date: "2025-06-02", Content: digestMD}, "")
	require.NoError(t, NewWebhook(srv.URL, "s3cret").Send(context.Background(), n))

	body, header := rec.last()
	assert.Equal(t, Sign("s3cret", body), header.Get(SignatureHeader))
	assert.Equal(t, "application/json", header.Get("Content-Type"))

	var got Notification
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, n.Title, got.Title)
	assert.Equal(t, n.Highlights, got.Highlights)
}

func TestWebhookUnsigned(t *testing.T) {
	rec := &recorder{status: http.StatusOK}
	srv := rec.server(t)

	require.NoError(t, NewWebhook(srv.URL, "").Send(context.Background(), &Notification{Title: "x"}))
	_, header := rec.last()
	assert.Empty(t, header.Get(SignatureHeader))
}

func TestSlackPayload(t *testing.T) {
	rec := &recorder{status: http.StatusOK}
	srv := rec.server(t)

	n := DigestPublished(&digest.Digest{Date: "2025-06-02", Content: digestMD}, "https://d.example")
	require.NoError(t, NewSlack(srv.URL).Send(context.Background(), n))

	body, _ := rec.last()
	var payload struct {
		Text   string           `json:"text"`
		Blocks []map[string]any `json:"blocks"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, n.Title, payload.Text)
	require.Len(t, payload.Blocks, 4)
	assert.Contains(t, string(body), "*Top gainer:* PEPE")
	assert.NotContains(t, string(body), "**Top gainer:**")
	assert.Contains(t, string(body), "Read the full digest")
}

func TestDiscordPayload(t *testing.T) {
	rec := &recorder{status: http.StatusNoContent}
	srv := rec.server(t)

	n := MigrationFailed(pipeline.Report{Sources: []pipeline.SourceReport{
		{Source: source.SourceNews, Files: 1, FilesFailed: 1, Error: "download: gone"},
	}}, errors.New("x"))
	require.NoError(t, NewDiscord(srv.URL).Send(context.Background(), n))

	body, _ := rec.last()
	var payload struct {
		Embeds []struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			Color       int    `json:"color"`
		} `json:"embeds"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	require.Len(t, payload.Embeds, 1)
	assert.Contains(t, payload.Embeds[0].Title, "Migration failed")
	assert.Contains(t, payload.Embeds[0].Description, "news: download: gone")
	assert.Equal(t, 0xD50000, payload.Embeds[0].Color)

	n = DigestPublished(&digest.Digest{Date: "2025-06-02", Content: digestMD}, "")
	require.NoError(t, NewDiscord(srv.URL).Send(context.Background(), n))
	body, _ = rec.last()
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Contains(t, payload.Embeds[0].Description, "**Top gainer:** PEPE")
}

func TestPostRetriesServerErrors(t *testing.T) {
	rec := &recorder{status: http.StatusBadGateway}
	srv := rec.server(t)

	err := NewSlack(srv.URL).Send(context.Background(), &Notification{Title: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
	assert.Equal(t, int32(retries+1), rec.calls.Load())
}

func TestPostDoesNotRetryClientErrors(t *testing.T) {
	rec := &recorder{status: http.StatusNotFound}
	srv := rec.server(t)

	err := NewDiscord(srv.URL).Send(context.Background(), &Notification{Title: "x"})
	require.Error(t, err)
	assert.Equal(t, int32(1), rec.calls.Load())
}

type fakeNotifier struct {
	name string
	err  error
	got  []*Notification
}

func (f *fakeNotifier) Name() string { return f.name }

func (f *fakeNotifier) Send(_ context.Context, n *Notification) error {
	f.got = append(f.got, n)
	return f.err
}

func TestManagerBroadcast(t *testing.T) {
	ok := &fakeNotifier{name: "ok"}
	bad := &fakeNotifier{name: "bad", err: errors.New("nope")}
	m := NewManager(zap.NewNop(), bad, ok)
	require.True(t, m.HasNotifiers())

	n := &Notification{Title: "hi"}
	err := m.Broadcast(context.Background(), n)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: nope")
	assert.Len(t, ok.got, 1, "one failure does not stop the rest")

	require.NoError(t, m.Broadcast(context.Background(), nil))
	assert.Len(t, ok.got, 1)
}

func TestFromConfig(t *testing.T) {
	m := FromConfig(config.AlertsConfig{
		Slack:   config.SlackConfig{Enabled: true, WebhookURL: "https://hooks.slack.test"},
		Discord: config.DiscordConfig{Enabled: true},
		Webhook: config.WebhookConfig{Enabled: false, URL: "https://x.test"},
	}, zap.NewNop())
	require.Len(t, m.notifiers, 1)
	assert.Equal(t, "slack", m.notifiers[0].Name())

	assert.False(t, FromConfig(config.AlertsConfig{}, zap.NewNop()).HasNotifiers())
}
