package importer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"hta-import/hta"
	"hta-import/source"
)

// Job names one metric to import: the output metric and its source table.
type Job struct {
	Metric string
	Table  string
	// SamplingRate in Hz, used only by dry-run interval checks.
	SamplingRate float64
}

// MetricOpener hands out destination writers by output metric name.
// *hta.Directory implements it.
type MetricOpener interface {
	Metric(name string) (hta.Metric, error)
}

// RunnerOptions holds the shared settings for a batch of imports.
type RunnerOptions struct {
	// Workers is the number of imports running concurrently. Each import
	// runs in its own goroutine with its own destination writer; source
	// connections come from the shared pool.
	Workers int
	// RowCap, MinTimestamp, MaxTimestamp and MaxConsecutiveDrops apply
	// to every job; see Options.
	RowCap              uint64
	MinTimestamp        uint64
	MaxTimestamp        uint64
	MaxConsecutiveDrops uint64
	// PinUpperBound pins an unset MaxTimestamp to the run start time, so
	// every metric of a live-written source imports up to one consistent
	// cutoff.
	PinUpperBound bool
}

// Summary aggregates the outcome of a batch run.
type Summary struct {
	Completed int
	Rows      uint64
	Dropped   uint64
	// Failed lists the metrics whose import did not complete.
	Failed    []string
	Cancelled bool
}

// Runner imports a set of metrics with a bounded worker pool.
type Runner struct {
	src  source.Source
	dest MetricOpener
	opts RunnerOptions
}

// NewRunner creates a runner over a shared source and destination directory.
func NewRunner(src source.Source, dest MetricOpener, opts RunnerOptions) *Runner {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Runner{src: src, dest: dest, opts: opts}
}

// Run imports all jobs and reports per-metric failures instead of stopping
// the batch on the first one. Cancellation stops each worker at its next
// chunk boundary; jobs not yet started are skipped and reported as failed.
func (r *Runner) Run(ctx context.Context, jobs []Job) (Summary, error) {
	if len(jobs) == 0 {
		return Summary{}, fmt.Errorf("%w: no metrics to import", ErrInvalidConfig)
	}

	maxTimestamp := r.opts.MaxTimestamp
	if maxTimestamp == 0 && r.opts.PinUpperBound {
		maxTimestamp = uint64(time.Now().UnixMilli())
		slog.Info("pinning import upper bound to run start",
			slog.Uint64("max_timestamp_ms", maxTimestamp))
	}

	jobCh := make(chan Job)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		summary Summary
	)

	workers := r.opts.Workers
	if workers > len(jobs) {
		workers = len(jobs)
	}

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobCh {
				res, err := r.runJob(ctx, job, maxTimestamp)

				mu.Lock()
				summary.Rows += res.Rows
				summary.Dropped += res.Dropped
				if res.Cancelled {
					summary.Cancelled = true
				}
				if err != nil {
					summary.Failed = append(summary.Failed, job.Metric)
				} else {
					summary.Completed++
				}
				mu.Unlock()
			}
		}()
	}

	for _, job := range jobs {
		jobCh <- job
	}
	close(jobCh)
	wg.Wait()

	if len(summary.Failed) > 0 {
		slog.Error("some metrics failed to import",
			slog.Int("failed", len(summary.Failed)),
			slog.Any("metrics", summary.Failed))
	}
	return summary, nil
}

func (r *Runner) runJob(ctx context.Context, job Job, maxTimestamp uint64) (Result, error) {
	if ctx.Err() != nil {
		return Result{Cancelled: true}, fmt.Errorf("import of %s skipped: %w", job.Metric, ctx.Err())
	}

	dest, err := r.dest.Metric(job.Metric)
	if err != nil {
		slog.Error("failed to open destination metric",
			slog.String("metric", job.Metric),
			slog.Any("error", err))
		return Result{}, err
	}

	imp := New(r.src, dest, Options{
		Metric:              job.Metric,
		Table:               job.Table,
		MinTimestamp:        r.opts.MinTimestamp,
		MaxTimestamp:        maxTimestamp,
		RowCap:              r.opts.RowCap,
		MaxConsecutiveDrops: r.opts.MaxConsecutiveDrops,
	})

	res, err := imp.Run(ctx)
	if err != nil {
		dest.Close()
		slog.Error("import failed",
			slog.String("metric", job.Metric),
			slog.Uint64("resume_from_ms", res.LastCursor),
			slog.Any("error", err))
		return res, err
	}

	if cerr := dest.Close(); cerr != nil {
		slog.Error("failed to close destination metric",
			slog.String("metric", job.Metric),
			slog.Any("error", cerr))
		return res, cerr
	}
	return res, nil
}
