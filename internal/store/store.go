// Package store persists normalized collector output in Postgres or SQLite.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/elonfeng/degendigest/internal/config"
	"github.com/elonfeng/degendigest/pkg/mapping"
	"github.com/elonfeng/degendigest/pkg/source"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const (
	driverPostgres = "postgres"
	driverSQLite   = "sqlite"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidStatus is returned for crawler statuses outside online|stale|offline.
	ErrInvalidStatus = errors.New("invalid crawler status")
	// ErrUnknownSource is returned when a source has no data_sources row or table.
	ErrUnknownSource = errors.New("unknown source")
)

// Store is the persistence interface used by the pipeline, API and digest
// generator.
type Store interface {
	Begin(ctx context.Context) (*Tx, error)

	UpdateCrawlerStatus(ctx context.Context, name string, status CrawlerState, items int64, errMsg string) error
	RefreshCrawlerCounts(ctx context.Context) error
	ListCrawlerStatus(ctx context.Context) ([]CrawlerStatus, error)

	Stats(ctx context.Context) (*Stats, error)
	ListTweets(ctx context.Context, sort string, limit int) ([]TweetRow, error)
	ListRedditPosts(ctx context.Context, sort string, limit int) ([]RedditPostRow, error)
	ListArticles(ctx context.Context, limit int) ([]ArticleRow, error)
	ListCryptoTokens(ctx context.Context, limit int) ([]CryptoTokenRow, error)
	ListDexPairs(ctx context.Context, src source.SourceType, limit int) ([]DexPairRow, error)

	Close() error
}

// SQLStore implements Store on top of sqlx.
type SQLStore struct {
	db      *sqlx.DB
	driver  string
	log     *zap.Logger
	now     func() time.Time
	sources map[source.SourceType]int64
}

// Option configures an SQLStore.
type Option func(*SQLStore)

// WithClock sets the clock used for first_seen_at, last_updated_at and
// crawler timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *SQLStore) { s.now = now }
}

// Open connects to the configured database, retrying the initial ping with
// exponential backoff until cfg.ConnectTimeout, then creates the schema and
// seeds data_sources.
func Open(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger, opts ...Option) (*SQLStore, error) {
	if cfg.Driver != driverPostgres && cfg.Driver != driverSQLite {
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := sqlx.Open(cfg.Driver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	if cfg.Driver == driverSQLite {
		// One writer; transactions hold the only connection.
		db.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	s := &SQLStore{
		db:     db,
		driver: cfg.Driver,
		log:    log.Named("store"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.ping(ctx, cfg.ConnectTimeout); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) ping(ctx context.Context, timeout time.Duration) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	if timeout > 0 {
		b.MaxElapsedTime = timeout
	}

	attempts := 0
	notify := func(err error, next time.Duration) {
		attempts++
		s.log.Warn("database not reachable, retrying",
			zap.String("driver", s.driver),
			zap.Int("attempt", attempts),
			zap.Duration("next_retry_in", next),
			zap.Error(err))
	}
	op := func() error { return s.db.PingContext(ctx) }
	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
		return fmt.Errorf("connect %s after %d attempts: %w", s.driver, attempts+1, err)
	}
	return nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaFor(s.driver)); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	now := s.now()
	for _, src := range source.AllSourceTypes() {
		_, err := s.db.ExecContext(ctx, s.db.Rebind(
			`INSERT INTO data_sources (name, created_at) VALUES (?, ?) ON CONFLICT (name) DO NOTHING`),
			string(src), now)
		if err != nil {
			return fmt.Errorf("seed data source %s: %w", src, err)
		}
	}

	rows, err := s.db.QueryxContext(ctx, "SELECT id, name FROM data_sources")
	if err != nil {
		return fmt.Errorf("load data sources: %w", err)
	}
	defer rows.Close()

	s.sources = make(map[source.SourceType]int64)
	for rows.Next() {
		var (
			id   int64
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return fmt.Errorf("scan data source: %w", err)
		}
		s.sources[source.SourceType(name)] = id
	}
	return rows.Err()
}

// SourceID returns the data_sources id for src.
func (s *SQLStore) SourceID(src source.SourceType) (int64, error) {
	id, ok := s.sources[src]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownSource, src)
	}
	return id, nil
}

// Driver reports the SQL dialect in use.
func (s *SQLStore) Driver() string { return s.driver }

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Begin starts a transaction for one file's worth of writes.
func (s *SQLStore) Begin(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &Tx{tx: tx, store: s}, nil
}

// Timestamps are the bookkeeping columns of every normalized table.
type Timestamps struct {
	FirstSeenAt   time.Time `db:"first_seen_at" json:"first_seen_at"`
	LastUpdatedAt time.Time `db:"last_updated_at" json:"last_updated_at"`
}

// TweetRow is a stored tweet.
type TweetRow struct {
	mapping.Tweet
	Timestamps
}

// RedditPostRow is a stored reddit post.
type RedditPostRow struct {
	mapping.RedditPost
	Timestamps
}

// ArticleRow is a stored news article.
type ArticleRow struct {
	mapping.Article
	Timestamps
}

// CryptoTokenRow is a stored crypto token.
type CryptoTokenRow struct {
	mapping.CryptoToken
	Timestamps
}

// DexPairRow is a stored DexScreener or DexPaprika pair.
type DexPairRow struct {
	mapping.DexPair
	Timestamps
}
