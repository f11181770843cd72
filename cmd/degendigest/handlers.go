package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/elonfeng/degendigest/internal/config"
	"github.com/elonfeng/degendigest/internal/logger"
	"github.com/elonfeng/degendigest/internal/objstore"
	"github.com/elonfeng/degendigest/internal/pipeline"
	"github.com/elonfeng/degendigest/internal/scheduler"
	"github.com/elonfeng/degendigest/internal/store"
	"github.com/elonfeng/degendigest/pkg/alert"
	"github.com/elonfeng/degendigest/pkg/digest"
	"github.com/elonfeng/degendigest/pkg/server"
	"github.com/elonfeng/degendigest/pkg/source"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

// env is what every command needs: config, logger and, once opened, the
// store and the bucket. close releases both.
type env struct {
	cfg    *config.Config
	log    *zap.Logger
	db     *store.SQLStore
	bucket objstore.Bucket
}

func setup(ctx context.Context, withStore bool) (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.Log.Environment, cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg, log: log}
	if withStore {
		e.db, err = store.Open(ctx, cfg.Database, log)
		if err != nil {
			log.Sync()
			return nil, fmt.Errorf("open store: %w", err)
		}
	}
	return e, nil
}

func (e *env) close() {
	if e.bucket != nil {
		if err := e.bucket.Close(); err != nil {
			e.log.Warn("close bucket", zap.Error(err))
		}
	}
	if e.db != nil {
		e.db.Close()
	}
	e.log.Sync()
}

func (e *env) pipeline(ctx context.Context, reg prometheus.Registerer) (*pipeline.Pipeline, error) {
	bucket, err := objstore.Open(ctx, e.cfg.Storage, e.log)
	if err != nil {
		return nil, fmt.Errorf("open bucket: %w", err)
	}
	e.bucket = bucket
	return pipeline.New(bucket, e.db, e.log,
		pipeline.WithWorkers(e.cfg.Pipeline.DownloadWorkers),
		pipeline.WithBatchSize(e.cfg.Pipeline.BatchSize),
		pipeline.WithMetrics(pipeline.NewMetrics(reg)),
	), nil
}

func (e *env) generator() *digest.Generator {
	return digest.NewGenerator(e.db, digest.NewStore(e.cfg.Digest.OutputDir), e.log,
		digest.WithItemsPerSection(e.cfg.Digest.ItemsPerPart),
		digest.WithWindow(e.cfg.Digest.Window))
}

func (e *env) server(reg *prometheus.Registry, port int, opts ...server.Option) *server.Server {
	if port == 0 {
		port = e.cfg.Server.Port
	}
	opts = append([]server.Option{
		server.WithPort(port),
		server.WithRegistry(reg),
		server.WithStaticDir(e.cfg.Server.StaticDir),
		server.WithRateLimit(e.cfg.Server.RPSLimit, e.cfg.Server.RPSBurst),
	}, opts...)
	return server.New(e.db, digest.NewStore(e.cfg.Digest.OutputDir), e.log, opts...)
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

func parseSources(names []string) ([]source.SourceType, error) {
	var out []source.SourceType
	for _, n := range names {
		for _, part := range strings.Split(n, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			st, err := source.ParseSourceType(part)
			if err != nil {
				return nil, err
			}
			out = append(out, st)
		}
	}
	return out, nil
}

func runMigrate(ctx context.Context, names []string, modeFlag string, jsonOutput bool) error {
	e, err := setup(ctx, true)
	if err != nil {
		return err
	}
	defer e.close()

	if len(names) == 0 {
		names = e.cfg.Pipeline.Sources
	}
	sources, err := parseSources(names)
	if err != nil {
		return err
	}
	if modeFlag == "" {
		modeFlag = e.cfg.Pipeline.Mode
	}
	mode, err := pipeline.ParseMode(modeFlag)
	if err != nil {
		return err
	}

	p, err := e.pipeline(ctx, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	report, runErr := p.Run(ctx, pipeline.Options{Sources: sources, Mode: mode})
	if err := e.db.RefreshCrawlerCounts(ctx); err != nil {
		e.log.Warn("refresh crawler counts", zap.Error(err))
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else if err := printReport(report); err != nil {
		return err
	}

	if runErr != nil {
		return fmt.Errorf("migration finished with failures: %w", runErr)
	}
	return nil
}

func printReport(r pipeline.Report) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SOURCE\tMODE\tFILES\tFAILED FILES\tRECORDS\tWRITTEN\tSKIPPED\tFAILED\tDUPLICATES\tTIME")
	row := func(name string, s pipeline.SourceReport) {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%s\n",
			name, s.Mode, s.Files, s.FilesFailed, s.Records, s.Written, s.Skipped, s.Failed, s.Duplicates,
			s.Duration.Round(time.Millisecond))
	}
	for _, s := range r.Sources {
		row(string(s.Source), s)
	}
	if len(r.Sources) > 1 {
		row("total", r.Totals())
	}
	return w.Flush()
}

func runServe(ctx context.Context, port int) error {
	e, err := setup(ctx, true)
	if err != nil {
		return err
	}
	defer e.close()

	return e.server(newRegistry(), port).ListenAndServe(ctx)
}

func runDaemon(ctx context.Context, port int) error {
	e, err := setup(ctx, true)
	if err != nil {
		return err
	}
	defer e.close()

	sources, err := parseSources(e.cfg.Pipeline.Sources)
	if err != nil {
		return err
	}
	reg := newRegistry()
	p, err := e.pipeline(ctx, reg)
	if err != nil {
		return err
	}

	sched := scheduler.New(p, e.db, e.generator(), alert.FromConfig(e.cfg.Alerts, e.log), e.log,
		scheduler.WithIntervals(e.cfg.Schedule.ParseMigrateInterval(), e.cfg.Schedule.ParseDigestInterval()),
		scheduler.WithSources(sources),
		scheduler.WithBaseURL(e.cfg.Server.BaseURL),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Start scheduler in background.
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
			e.log.Error("scheduler stopped", zap.Error(err))
		}
	}()

	err = e.server(reg, port, server.WithRefresher(sched)).ListenAndServe(ctx)
	cancel()
	<-done
	return err
}

func runStatusSet(ctx context.Context, name, status string, items int64, errMsg string) error {
	st, err := store.ParseCrawlerState(status)
	if err != nil {
		return err
	}
	e, err := setup(ctx, true)
	if err != nil {
		return err
	}
	defer e.close()

	if err := e.db.UpdateCrawlerStatus(ctx, name, st, items, errMsg); err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", name, st)
	return nil
}

func runStatusList(ctx context.Context, jsonOutput bool) error {
	e, err := setup(ctx, true)
	if err != nil {
		return err
	}
	defer e.close()

	rows, err := e.db.ListCrawlerStatus(ctx)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	if len(rows) == 0 {
		fmt.Println("no crawler status recorded (try: degendigest migrate)")
		return nil
	}

	now := time.Now().UTC()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTATUS\tEFFECTIVE\tLAST RUN\tTOTAL\t24H\t1H\tERROR")
	for _, cs := range rows {
		last := "never"
		if cs.LastRunAt != nil {
			last = cs.LastRunAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			cs.Name, cs.Status, cs.EffectiveStatus(now), last,
			cs.ItemsCollected, cs.ItemsLast24h, cs.ItemsLast1h, cs.ErrorMessage)
	}
	return w.Flush()
}

func runStatusRefresh(ctx context.Context) error {
	e, err := setup(ctx, true)
	if err != nil {
		return err
	}
	defer e.close()

	return e.db.RefreshCrawlerCounts(ctx)
}

func runDigestGenerate(ctx context.Context, date string, notify bool) error {
	day := time.Now().UTC()
	if date != "" {
		var err error
		if day, err = digest.ParseDate(date); err != nil {
			return err
		}
	}

	e, err := setup(ctx, true)
	if err != nil {
		return err
	}
	defer e.close()

	d, err := e.generator().Generate(ctx, day)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "wrote digest for %s to %s\n", d.Date, e.cfg.Digest.OutputDir)

	if notify {
		mgr := alert.FromConfig(e.cfg.Alerts, e.log)
		if !mgr.HasNotifiers() {
			return errors.New("no alert destinations configured")
		}
		return mgr.Broadcast(ctx, alert.DigestPublished(d, e.cfg.Server.BaseURL))
	}
	return nil
}

func runDigestList() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	entries, err := digest.NewStore(cfg.Digest.OutputDir).List()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("no digests found (try: degendigest digest generate)")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tSIZE\tUPDATED")
	for _, en := range entries {
		fmt.Fprintf(w, "%s\t%d\t%s\n", en.Date, en.Size, en.UpdatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func runDigestShow(date string, summaryOnly bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	files := digest.NewStore(cfg.Digest.OutputDir)

	var d *digest.Digest
	if date == "" {
		d, err = files.Latest()
	} else {
		d, err = files.Get(date)
	}
	if err != nil {
		return err
	}

	if !summaryOnly {
		fmt.Print(d.Content)
		return nil
	}
	sum := digest.Summarize(d.Content)
	fmt.Println(sum.Title)
	for _, s := range sum.Sections {
		fmt.Printf("\n%s\n", s.Heading)
		for _, b := range s.Bullets {
			fmt.Printf("  - %s\n", b)
		}
	}
	return nil
}
