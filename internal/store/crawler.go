package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// CrawlerState is the operator-visible health of a crawler.
type CrawlerState string

const (
	StateOnline  CrawlerState = "online"
	StateStale   CrawlerState = "stale"
	StateOffline CrawlerState = "offline"
)

// ParseCrawlerState validates a status string.
func ParseCrawlerState(s string) (CrawlerState, error) {
	switch st := CrawlerState(strings.ToLower(strings.TrimSpace(s))); st {
	case StateOnline, StateStale, StateOffline:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// Elapsed-time thresholds for the derived display status.
const (
	StaleAfter   = 2 * time.Hour
	OfflineAfter = 24 * time.Hour
)

// CrawlerStatus is one heartbeat row.
type CrawlerStatus struct {
	Name           string       `db:"name" json:"name"`
	Status         CrawlerState `db:"status" json:"status"`
	LastRunAt      *time.Time   `db:"last_run_at" json:"last_run_at"`
	ItemsCollected int64        `db:"items_collected" json:"items_collected"`
	ItemsLast24h   int64        `db:"items_last_24h" json:"items_last_24h"`
	ItemsLast1h    int64        `db:"items_last_1h" json:"items_last_1h"`
	ErrorMessage   string       `db:"error_message" json:"error_message"`
	UpdatedAt      time.Time    `db:"updated_at" json:"updated_at"`
}

// EffectiveStatus derives a display status from elapsed time since the last
// run. The stored status is never changed by it.
func (c CrawlerStatus) EffectiveStatus(now time.Time) CrawlerState {
	if c.Status == StateOffline || c.LastRunAt == nil {
		return StateOffline
	}
	age := now.Sub(*c.LastRunAt)
	switch {
	case age >= OfflineAfter:
		return StateOffline
	case age >= StaleAfter:
		return StateStale
	}
	return c.Status
}

// UpdateCrawlerStatus records a crawl attempt for name. items is added to
// items_collected only when the status is online.
func (s *SQLStore) UpdateCrawlerStatus(ctx context.Context, name string, status CrawlerState, items int64, errMsg string) error {
	if name == "" {
		return fmt.Errorf("update crawler status: empty name")
	}
	if _, err := ParseCrawlerState(string(status)); err != nil {
		return fmt.Errorf("update crawler status %s: %w", name, err)
	}
	if status != StateOnline || items < 0 {
		items = 0
	}

	now := s.now()
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO crawler_status (name, status, last_run_at, items_collected, error_message, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			status = excluded.status,
			last_run_at = excluded.last_run_at,
			items_collected = crawler_status.items_collected + excluded.items_collected,
			error_message = excluded.error_message,
			updated_at = excluded.updated_at
	`), name, string(status), now, items, errMsg, now)
	if err != nil {
		return fmt.Errorf("update crawler status %s: %w", name, err)
	}
	return nil
}

// RefreshCrawlerCounts recomputes the rolling 24h and 1h item counts of every
// crawler from data_collections. A crawler named after a source, or
// "migrate:<source>", counts that source's records.
func (s *SQLStore) RefreshCrawlerCounts(ctx context.Context) error {
	now := s.now()
	window := `COALESCE((
		SELECT SUM(dc.record_count)
		FROM data_collections dc
		JOIN data_sources ds ON ds.id = dc.source_id
		WHERE (ds.name = crawler_status.name OR 'migrate:' || ds.name = crawler_status.name)
		  AND dc.collection_timestamp >= ?
	), 0)`
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE crawler_status SET
			items_last_24h = `+window+`,
			items_last_1h = `+window+`,
			updated_at = ?
	`), now.Add(-24*time.Hour), now.Add(-time.Hour), now)
	if err != nil {
		return fmt.Errorf("refresh crawler counts: %w", err)
	}
	return nil
}

// ListCrawlerStatus returns every crawler row ordered by name.
func (s *SQLStore) ListCrawlerStatus(ctx context.Context) ([]CrawlerStatus, error) {
	var rows []CrawlerStatus
	if err := s.db.SelectContext(ctx, &rows, "SELECT * FROM crawler_status ORDER BY name"); err != nil {
		return nil, fmt.Errorf("list crawler status: %w", err)
	}
	return rows, nil
}

// GetCrawlerStatus returns one crawler row or ErrNotFound.
func (s *SQLStore) GetCrawlerStatus(ctx context.Context, name string) (*CrawlerStatus, error) {
	var rows []CrawlerStatus
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind("SELECT * FROM crawler_status WHERE name = ?"), name)
	if err != nil {
		return nil, fmt.Errorf("get crawler status %s: %w", name, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("crawler %s: %w", name, ErrNotFound)
	}
	return &rows[0], nil
}
