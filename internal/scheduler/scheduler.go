// Package scheduler runs migrations and digest generation on intervals and
// on demand.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/elonfeng/degendigest/internal/pipeline"
	"github.com/elonfeng/degendigest/pkg/alert"
	"github.com/elonfeng/degendigest/pkg/digest"
	"github.com/elonfeng/degendigest/pkg/source"
	"go.uber.org/zap"
)

// Migrator runs the migration pipeline.
type Migrator interface {
	Run(ctx context.Context, opts pipeline.Options) (pipeline.Report, error)
}

// CountRefresher recomputes rolling crawler item counts.
type CountRefresher interface {
	RefreshCrawlerCounts(ctx context.Context) error
}

// DigestGenerator writes the digest for a date.
type DigestGenerator interface {
	Generate(ctx context.Context, date time.Time) (*digest.Digest, error)
}

// RefreshOptions is an on-demand refresh request.
type RefreshOptions struct {
	// GenerateDigest also writes today's digest after migrating.
	GenerateDigest bool `json:"generate_digest"`
	// ForceRefresh rescans every blob instead of only the latest pointers.
	ForceRefresh bool `json:"force_refresh"`
}

// RefreshResult is what one refresh did.
type RefreshResult struct {
	Report pipeline.Report
	Digest *digest.Digest
}

// Scheduler runs periodic migration and digest generation.
type Scheduler struct {
	migrator   Migrator
	counts     CountRefresher
	generator  DigestGenerator
	alerts     *alert.Manager
	sources    []source.SourceType
	migrateInt time.Duration
	digestInt  time.Duration
	baseURL    string
	now        func() time.Time
	log        *zap.Logger

	// mu serializes runs so a manual refresh never overlaps a tick.
	mu sync.Mutex
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithIntervals sets the migrate and digest intervals. Zero keeps the default.
func WithIntervals(migrate, digest time.Duration) Option {
	return func(s *Scheduler) {
		if migrate > 0 {
			s.migrateInt = migrate
		}
		if digest > 0 {
			s.digestInt = digest
		}
	}
}

// WithSources limits migrations to the given sources.
func WithSources(srcs []source.SourceType) Option {
	return func(s *Scheduler) { s.sources = srcs }
}

// WithBaseURL sets the public URL used for links in notifications.
func WithBaseURL(u string) Option {
	return func(s *Scheduler) { s.baseURL = u }
}

// WithClock overrides the clock that picks the digest date.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New creates a new scheduler.
func New(m Migrator, counts CountRefresher, gen DigestGenerator, alerts *alert.Manager, log *zap.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		migrator:   m,
		counts:     counts,
		generator:  gen,
		alerts:     alerts,
		migrateInt: 30 * time.Minute,
		digestInt:  6 * time.Hour,
		now:        func() time.Time { return time.Now().UTC() },
		log:        log.Named("scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run migrates and publishes once, then on every tick. Blocks until ctx is
// cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	migrateTicker := time.NewTicker(s.migrateInt)
	digestTicker := time.NewTicker(s.digestInt)
	defer migrateTicker.Stop()
	defer digestTicker.Stop()

	s.log.Info("initial migration")
	_, _ = s.Migrate(ctx, pipeline.ModeLatest)
	s.log.Info("initial digest")
	_, _ = s.Publish(ctx)

	s.log.Info("running",
		zap.Duration("migrate_interval", s.migrateInt),
		zap.Duration("digest_interval", s.digestInt))

	for {
		select {
		case <-ctx.Done():
			s.log.Info("stopped")
			return ctx.Err()
		case <-migrateTicker.C:
			_, _ = s.Migrate(ctx, pipeline.ModeLatest)
		case <-digestTicker.C:
			_, _ = s.Publish(ctx)
		}
	}
}

// Migrate runs the pipeline in mode, refreshes crawler counts and alerts on
// file-level failures.
func (s *Scheduler) Migrate(ctx context.Context, mode pipeline.Mode) (pipeline.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.migrate(ctx, mode)
}

// Publish generates today's digest and broadcasts it.
func (s *Scheduler) Publish(ctx context.Context) (*digest.Digest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.publish(ctx)
}

// Refresh is the on-demand trigger: migrate the latest pointers (or every
// blob when forced) and optionally publish a digest.
func (s *Scheduler) Refresh(ctx context.Context, opts RefreshOptions) (*RefreshResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mode := pipeline.ModeLatest
	if opts.ForceRefresh {
		mode = pipeline.ModeFiles
	}
	res := &RefreshResult{}
	var err error
	if res.Report, err = s.migrate(ctx, mode); err != nil {
		return res, err
	}
	if opts.GenerateDigest {
		if res.Digest, err = s.publish(ctx); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (s *Scheduler) migrate(ctx context.Context, mode pipeline.Mode) (pipeline.Report, error) {
	report, runErr := s.migrator.Run(ctx, pipeline.Options{Sources: s.sources, Mode: mode})
	if runErr != nil {
		s.log.Error("migration failed", zap.String("mode", string(mode)), zap.Error(runErr))
	}

	if err := s.counts.RefreshCrawlerCounts(ctx); err != nil {
		s.log.Warn("refresh crawler counts", zap.Error(err))
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) && s.alerts.HasNotifiers() {
		if err := s.alerts.Broadcast(context.WithoutCancel(ctx), alert.MigrationFailed(report, runErr)); err != nil {
			s.log.Warn("alert migration failure", zap.Error(err))
		}
	}
	return report, runErr
}

func (s *Scheduler) publish(ctx context.Context) (*digest.Digest, error) {
	d, err := s.generator.Generate(ctx, s.now())
	if err != nil {
		s.log.Error("digest generation failed", zap.Error(err))
		return nil, err
	}
	if s.alerts.HasNotifiers() {
		if err := s.alerts.Broadcast(ctx, alert.DigestPublished(d, s.baseURL)); err != nil {
			s.log.Warn("alert digest published", zap.Error(err))
		}
	}
	return d, nil
}
