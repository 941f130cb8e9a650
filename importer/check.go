package importer

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"hta-import/source"
)

// Value magnitudes beyond this are almost certainly sensor garbage.
const plausibleValueBound = 1e9

// CheckOptions controls dry-run sanity checking.
type CheckOptions struct {
	// MaxAge flags series whose newest row is older than this (or lies in
	// the future). Zero disables the check.
	MaxAge time.Duration
	// CheckValues additionally probes the value range of each series.
	CheckValues bool
	// IntervalTolerance is the allowed factor between expected and
	// observed sampling interval. Defaults to 1.5.
	IntervalTolerance float64
}

// CheckReport describes one probed series.
type CheckReport struct {
	Metric      string
	Table       string
	Count       uint64
	First       time.Time
	Last        time.Time
	AvgInterval time.Duration
	// Suspicious lists human-readable findings; empty means the series
	// looks ready to import.
	Suspicious []string
}

// DryRun probes every job without writing anything and reports counts, time
// ranges, and suspicious conditions. A probe failure fails the whole
// dry-run: if stats cannot be read now, the real import would fail too.
func DryRun(ctx context.Context, src source.Source, jobs []Job, opts CheckOptions) ([]CheckReport, error) {
	if opts.IntervalTolerance <= 1 {
		opts.IntervalTolerance = 1.5
	}

	reports := make([]CheckReport, 0, len(jobs))
	var totalRows, minRows, maxRows uint64

	for _, job := range jobs {
		stats, err := src.Stats(ctx, job.Table)
		if err != nil {
			return reports, fmt.Errorf("stats probe for %s: %w", job.Table, err)
		}

		rep := CheckReport{
			Metric: job.Metric,
			Table:  job.Table,
			Count:  stats.Count,
		}

		if stats.Count == 0 {
			rep.Suspicious = append(rep.Suspicious, "series is empty")
			reports = append(reports, rep)
			logReport(rep)
			continue
		}

		rep.First = time.UnixMilli(int64(stats.MinTimestamp)).UTC()
		rep.Last = time.UnixMilli(int64(stats.MaxTimestamp)).UTC()
		avgMs := float64(stats.MaxTimestamp-stats.MinTimestamp) / float64(stats.Count)
		rep.AvgInterval = time.Duration(avgMs * float64(time.Millisecond))

		if opts.MaxAge > 0 {
			age := time.Since(rep.Last)
			if age < 0 || age > opts.MaxAge {
				rep.Suspicious = append(rep.Suspicious,
					fmt.Sprintf("newest row is %s old, expected under %s", age.Round(time.Second), opts.MaxAge))
			}
		}

		if job.SamplingRate > 0 {
			expected := time.Duration(float64(time.Second) / job.SamplingRate)
			lo := time.Duration(float64(expected) / opts.IntervalTolerance)
			hi := time.Duration(float64(expected) * opts.IntervalTolerance)
			if rep.AvgInterval < lo || rep.AvgInterval > hi {
				rep.Suspicious = append(rep.Suspicious,
					fmt.Sprintf("average interval %s, expected about %s", rep.AvgInterval, expected))
			}
		}

		if opts.CheckValues {
			if prober, ok := src.(source.ValueProber); ok {
				minV, maxV, err := prober.ValueRange(ctx, job.Table)
				if err != nil {
					return reports, fmt.Errorf("value range for %s: %w", job.Table, err)
				}
				if math.Abs(minV) > plausibleValueBound || math.Abs(maxV) > plausibleValueBound {
					rep.Suspicious = append(rep.Suspicious,
						fmt.Sprintf("suspicious value range %g to %g", minV, maxV))
				}
			}
		}

		totalRows += stats.Count
		if minRows == 0 || stats.Count < minRows {
			minRows = stats.Count
		}
		if stats.Count > maxRows {
			maxRows = stats.Count
		}

		reports = append(reports, rep)
		logReport(rep)
	}

	if len(reports) > 0 {
		slog.Info("dry-run summary",
			slog.Int("metrics", len(reports)),
			slog.Uint64("total_rows", totalRows),
			slog.Uint64("mean_rows", totalRows/uint64(len(reports))),
			slog.Uint64("min_rows", minRows),
			slog.Uint64("max_rows", maxRows))
	}
	return reports, nil
}

func logReport(rep CheckReport) {
	attrs := []any{
		slog.String("metric", rep.Metric),
		slog.String("table", rep.Table),
		slog.Uint64("rows", rep.Count),
	}
	if rep.Count > 0 {
		attrs = append(attrs,
			slog.Time("first", rep.First),
			slog.Time("last", rep.Last),
			slog.Duration("avg_interval", rep.AvgInterval))
	}
	if len(rep.Suspicious) > 0 {
		attrs = append(attrs, slog.Any("suspicious", rep.Suspicious))
		slog.Warn("dry-run check", attrs...)
		return
	}
	slog.Info("dry-run check", attrs...)
}
