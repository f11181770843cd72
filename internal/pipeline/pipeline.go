// Package pipeline migrates collector output from object storage into the
// relational store.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/elonfeng/degendigest/internal/objstore"
	"github.com/elonfeng/degendigest/internal/store"
	"github.com/elonfeng/degendigest/pkg/mapping"
	"github.com/elonfeng/degendigest/pkg/source"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

var (
	// ErrUnknownSource is returned for sources without a rule.
	ErrUnknownSource = errors.New("unknown source")
	// ErrUnrecognizedShape marks a document whose records could not be located.
	ErrUnrecognizedShape = errors.New("unrecognized document shape")
)

// Writer is the store surface the pipeline needs.
type Writer interface {
	Begin(ctx context.Context) (*store.Tx, error)
	UpdateCrawlerStatus(ctx context.Context, name string, status store.CrawlerState, items int64, errMsg string) error
}

// Options selects what one Run migrates.
type Options struct {
	Sources []source.SourceType
	Mode    Mode
}

// Pipeline runs extract, map and write for each configured source.
type Pipeline struct {
	bucket    objstore.Bucket
	store     Writer
	mapper    *mapping.Mapper
	rules     map[source.SourceType]Rule
	workers   int
	batchSize int
	metrics   *Metrics
	log       *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithWorkers bounds concurrent blob downloads.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithBatchSize sets how many blobs are downloaded ahead of processing.
func WithBatchSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithMetrics sets the prometheus instruments.
func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithMapper replaces the field mapper.
func WithMapper(m *mapping.Mapper) Option {
	return func(p *Pipeline) { p.mapper = m }
}

// New creates a Pipeline reading from bucket and writing to st.
func New(bucket objstore.Bucket, st Writer, log *zap.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		bucket:    bucket,
		store:     st,
		rules:     DefaultRules(),
		workers:   4,
		batchSize: 16,
		log:       log.Named("pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.mapper == nil {
		p.mapper = mapping.New(log)
	}
	if p.metrics == nil {
		p.metrics = NewMetrics(prometheus.NewRegistry())
	}
	return p
}

// StatusName is the crawler_status row a source's migrations report to.
func StatusName(src source.SourceType) string {
	return "migrate:" + string(src)
}

// Run migrates every requested source (all sources when none are given).
// Record-level problems are counted, never returned. The error joins every
// file-level and source-level failure; committed files stay committed.
func (p *Pipeline) Run(ctx context.Context, opts Options) (Report, error) {
	mode := opts.Mode
	if mode == "" {
		mode = ModeFiles
	}
	sources := opts.Sources
	if len(sources) == 0 {
		sources = source.AllSourceTypes()
	}

	pool := pond.NewResultPool[[]byte](p.workers, pond.WithContext(ctx))
	defer pool.StopAndWait()

	report := Report{Started: time.Now().UTC()}
	var errs []error
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		rule, ok := p.rules[src]
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %s", ErrUnknownSource, src))
			continue
		}
		if mode == ModeConsolidated {
			rule = contentRule(src)
		}

		sr, err := p.runSource(ctx, pool, rule, mode)
		if err != nil {
			sr.Error = err.Error()
			errs = append(errs, fmt.Errorf("migrate %s: %w", src, err))
		}
		report.Sources = append(report.Sources, sr)
		p.reportStatus(ctx, sr, err)
	}
	report.Finished = time.Now().UTC()

	t := report.Totals()
	p.log.Info("migration finished",
		zap.String("mode", string(mode)),
		zap.Int("sources", len(report.Sources)),
		zap.Int("files", t.Files),
		zap.Int("files_failed", t.FilesFailed),
		zap.Int("records", t.Records),
		zap.Int("written", t.Written),
		zap.Int("skipped", t.Skipped),
		zap.Int("failed", t.Failed),
		zap.Int("duplicates", t.Duplicates),
		zap.Duration("elapsed", report.Finished.Sub(report.Started)))

	return report, errors.Join(errs...)
}

func (p *Pipeline) runSource(ctx context.Context, pool pond.ResultPool[[]byte], rule Rule, mode Mode) (sr SourceReport, err error) {
	src := rule.Source
	start := time.Now()
	sr = SourceReport{Source: src, Mode: mode}
	log := p.log.With(zap.String("source", string(src)), zap.String("mode", string(mode)))
	defer func() {
		sr.Duration = time.Since(start)
		p.metrics.duration.WithLabelValues(string(src)).Observe(sr.Duration.Seconds())
	}()

	objs, err := p.objects(ctx, src, mode)
	if err != nil {
		return sr, err
	}
	if len(objs) == 0 {
		log.Info("nothing to migrate")
		return sr, nil
	}

	var errs []error
	for lo := 0; lo < len(objs); lo += p.batchSize {
		batch := objs[lo:min(lo+p.batchSize, len(objs))]

		downloads := make([]pond.Result[[]byte], len(batch))
		for i, obj := range batch {
			name := obj.Name
			downloads[i] = pool.SubmitErr(func() ([]byte, error) {
				return p.bucket.Read(ctx, name)
			})
		}

		for i, obj := range batch {
			if err := ctx.Err(); err != nil {
				return sr, errors.Join(append(errs, err)...)
			}
			data, err := downloads[i].Wait()
			if errors.Is(err, objstore.ErrNotExist) && mode != ModeFiles {
				log.Info("pointer file not present", zap.String("path", obj.Name))
				continue
			}

			sr.Files++
			var fr fileReport
			if err == nil {
				fr, err = p.processFile(ctx, rule, obj, data)
			} else {
				err = fmt.Errorf("download %s: %w", obj.Name, err)
			}
			p.metrics.observeFile(string(src), fr, err != nil)
			if err != nil {
				sr.FilesFailed++
				errs = append(errs, err)
				log.Error("file failed, rolled back", zap.String("path", obj.Name), zap.Error(err))
				continue
			}
			sr.add(fr)
			log.Debug("file migrated",
				zap.String("path", obj.Name),
				zap.Int("records", fr.records),
				zap.Int("written", fr.written),
				zap.Int("skipped", fr.skipped),
				zap.Int("failed", fr.failed))
		}
	}

	log.Info("source migrated",
		zap.Int("files", sr.Files),
		zap.Int("files_failed", sr.FilesFailed),
		zap.Int("records", sr.Records),
		zap.Int("written", sr.Written),
		zap.Int("skipped", sr.Skipped),
		zap.Int("failed", sr.Failed),
		zap.Int("duplicates", sr.Duplicates))
	return sr, errors.Join(errs...)
}

// objects resolves the blobs to read for src in mode, in name order.
func (p *Pipeline) objects(ctx context.Context, src source.SourceType, mode Mode) ([]objstore.Object, error) {
	switch mode {
	case ModeConsolidated:
		return []objstore.Object{{Name: src.ConsolidatedPath()}}, nil
	case ModeLatest:
		return []objstore.Object{{Name: src.LatestPath()}}, nil
	}
	listed, err := p.bucket.List(ctx, src.DataPrefix())
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", src.DataPrefix(), err)
	}
	objs := listed[:0]
	for _, o := range listed {
		if strings.HasSuffix(o.Name, ".json") {
			objs = append(objs, o)
		}
	}
	return objs, nil
}

// processFile writes one blob in its own transaction. Records without a
// natural key are skipped; a record whose write fails is rolled back to its
// savepoint and counted. Any other error rolls back the whole file.
func (p *Pipeline) processFile(ctx context.Context, rule Rule, obj objstore.Object, data []byte) (fileReport, error) {
	var fr fileReport

	ex, err := source.Extract(rule.Source, data)
	if err != nil {
		return fr, fmt.Errorf("extract %s: %w", obj.Name, err)
	}
	if ex.Shape == source.ShapeUnrecognized {
		return fr, fmt.Errorf("extract %s: %w (expected one of %v)", obj.Name, ErrUnrecognizedShape, source.ListKeys(rule.Source))
	}
	fr.records = len(ex.Items)

	tx, err := p.store.Begin(ctx)
	if err != nil {
		return fileReport{}, err
	}
	defer tx.Rollback()

	size := obj.Size
	if size == 0 {
		size = int64(len(data))
	}
	collID, err := tx.CreateCollection(ctx, rule.Source, store.Collection{
		CollectedAt:   obj.Updated,
		FilePath:      obj.Name,
		RecordCount:   int64(len(ex.Items)),
		FileSizeBytes: size,
	})
	if err != nil {
		return fileReport{}, err
	}

	for _, item := range ex.Items {
		key, write, ok := rule.Map(p.mapper, item)
		if !ok {
			fr.skipped++
			p.log.Debug("record has no natural key, skipped",
				zap.String("source", string(rule.Source)),
				zap.String("natural_key", rule.NaturalKey),
				zap.String("path", obj.Name))
			continue
		}

		var written bool
		err := tx.WithSavepoint(ctx, func() error {
			var err error
			written, err = write(ctx, tx, collID)
			return err
		})
		switch {
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fileReport{}, ctxErr
			}
			fr.failed++
			p.log.Warn("record failed, rolled back",
				zap.String("source", string(rule.Source)),
				zap.String("table", rule.Table),
				zap.String(rule.NaturalKey, key),
				zap.Error(err))
		case written:
			fr.written++
		default:
			fr.duplicates++
		}
	}

	if err := tx.Commit(); err != nil {
		return fileReport{}, err
	}
	return fr, nil
}

// reportStatus records the outcome on the source's migrate:<src> crawler
// row. Failing to write the status is logged, not returned.
func (p *Pipeline) reportStatus(ctx context.Context, sr SourceReport, runErr error) {
	status := store.StateOnline
	msg := ""
	switch {
	case runErr != nil && sr.Files > 0 && sr.FilesFailed < sr.Files:
		status, msg = store.StateStale, runErr.Error()
	case runErr != nil:
		status, msg = store.StateOffline, runErr.Error()
	}
	if len(msg) > 1000 {
		msg = msg[:1000]
	}
	if err := p.store.UpdateCrawlerStatus(context.WithoutCancel(ctx), StatusName(sr.Source), status, int64(sr.Written), msg); err != nil {
		p.log.Warn("update crawler status", zap.String("source", string(sr.Source)), zap.Error(err))
	}
}
