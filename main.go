package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hta-import/config"
	"hta-import/hta"
	"hta-import/importer"
	"hta-import/logger"
	"hta-import/source"
)

// formatStartupConfig creates a formatted multi-line run summary
func formatStartupConfig(cfg *config.Config, jobs []importer.Job, opts importer.RunnerOptions) string {
	return fmt.Sprintf(`
┌─────────────────────────────────────────────────────────────
│ HTA IMPORT (dataheap MySQL → HTA)
├─────────────────────────────────────────────────────────────
│ Source
│   MySQL:            %s:%d/%s
├─────────────────────────────────────────────────────────────
│ Destination
│   Backend:          %s
│   Path:             %s
├─────────────────────────────────────────────────────────────
│ Import
│   Metrics:          %d
│   Row Cap:          %d
│   Workers:          %d
└─────────────────────────────────────────────────────────────`,
		cfg.Import.Host,
		cfg.Import.Port,
		cfg.Import.Database,
		cfg.HTA.Backend,
		cfg.HTA.Path,
		len(jobs),
		opts.RowCap,
		opts.Workers,
	)
}

func main() {
	var (
		configPath    = flag.String("config", "config.json", "path to config file")
		metricName    = flag.String("metric", "", "import a single metric by its output name")
		importMetric  = flag.String("import-metric", "", "source table for -metric (default: metric name with dots replaced)")
		chunkSize     = flag.Uint64("chunk-size", 0, "per-chunk row cap override")
		minTimestamp  = flag.Uint64("min-timestamp", 0, "minimal timestamp for the import, in unix ms")
		maxTimestamp  = flag.Uint64("max-timestamp", 0, "maximal timestamp for the import, in unix ms")
		workers       = flag.Int("workers", 0, "concurrent metric imports override")
		pinUpperBound = flag.Bool("pin-upper-bound", true, "pin an unset max-timestamp to the run start time")
		dryRun        = flag.Bool("dry-run", false, "probe and sanity-check the metrics without importing")
		checkValues   = flag.Bool("check-values", false, "dry-run: also check value ranges")
		checkMaxAge   = flag.Duration("check-max-age", 8*time.Hour, "dry-run: flag series with no recent rows (0 disables)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.Log)

	// Build the job list: one named metric, or everything in the config.
	var jobs []importer.Job
	if *metricName != "" {
		mc := cfg.Metric(*metricName)
		if *importMetric != "" {
			mc.ImportName = *importMetric
		}
		jobs = append(jobs, importer.Job{Metric: mc.Name, Table: mc.Table(), SamplingRate: mc.SamplingRate})
	} else {
		for _, mc := range cfg.Metrics {
			jobs = append(jobs, importer.Job{Metric: mc.Name, Table: mc.Table(), SamplingRate: mc.SamplingRate})
		}
	}
	if len(jobs) == 0 {
		slog.Error("no metrics to import: pass -metric or list metrics in the config file")
		os.Exit(1)
	}

	opts := importer.RunnerOptions{
		Workers:             cfg.Importer.Workers,
		RowCap:              cfg.Importer.RowCap,
		MinTimestamp:        *minTimestamp,
		MaxTimestamp:        *maxTimestamp,
		MaxConsecutiveDrops: cfg.Importer.MaxConsecutiveDrops,
		PinUpperBound:       *pinUpperBound,
	}
	if *chunkSize > 0 {
		opts.RowCap = *chunkSize
	}
	if *workers > 0 {
		opts.Workers = *workers
	}

	// Print startup configuration (directly to stdout for formatting)
	fmt.Println(formatStartupConfig(cfg, jobs, opts))

	// Stop after the in-flight chunk on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("connecting to import database",
		slog.String("host", cfg.Import.Host),
		slog.String("database", cfg.Import.Database))
	src, err := source.Open(ctx, cfg.Import)
	if err != nil {
		slog.Error("failed to connect to import database", slog.Any("error", err))
		os.Exit(1)
	}
	defer src.Close()

	if *dryRun {
		_, err := importer.DryRun(ctx, src, jobs, importer.CheckOptions{
			MaxAge:      *checkMaxAge,
			CheckValues: *checkValues,
		})
		if err != nil {
			slog.Error("dry-run failed", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	dir, err := hta.OpenDirectory(cfg.HTA)
	if err != nil {
		slog.Error("failed to open destination store", slog.Any("error", err))
		os.Exit(1)
	}

	runner := importer.NewRunner(src, dir, opts)
	summary, err := runner.Run(ctx, jobs)
	if err != nil {
		dir.Close()
		slog.Error("import run failed", slog.Any("error", err))
		os.Exit(1)
	}

	if err := dir.Close(); err != nil {
		slog.Error("failed to close destination store", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("run complete",
		slog.Int("completed", summary.Completed),
		slog.Int("failed", len(summary.Failed)),
		slog.Uint64("rows", summary.Rows),
		slog.Uint64("dropped", summary.Dropped),
		slog.Bool("cancelled", summary.Cancelled))

	if len(summary.Failed) > 0 {
		os.Exit(1)
	}
}
