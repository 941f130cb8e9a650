// Package importer implements the chunked streaming import engine. It
// drives bounded, ordered range queries against the source, enforces
// strictly increasing timestamps on the output stream, and advances a range
// cursor so that a chunk truncated by the row cap never loses data.
package importer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"hta-import/hta"
	"hta-import/source"
)

// DefaultProgressInterval is how often the progress reporter logs an
// aggregate line while an import runs.
const DefaultProgressInterval = 10 * time.Second

// Options holds the resolved per-import values consumed by the loop.
type Options struct {
	// Metric is the output metric name, used for the destination and logs.
	Metric string
	// Table is the source table to read.
	Table string
	// MinTimestamp and MaxTimestamp bound the requested range in unix ms.
	// A zero MaxTimestamp means unbounded.
	MinTimestamp uint64
	MaxTimestamp uint64
	// RowCap is the per-chunk row limit. Must be greater than zero.
	RowCap uint64
	// MaxConsecutiveDrops aborts the import after this many non-monotonic
	// rows in a row. Zero disables the threshold.
	MaxConsecutiveDrops uint64
	// ProgressInterval overrides the aggregate progress logging cadence.
	ProgressInterval time.Duration
}

// Result summarizes one finished or aborted import.
type Result struct {
	// Rows is the number of points accepted and written.
	Rows uint64
	// Dropped is the number of non-monotonic rows skipped.
	Dropped uint64
	// LastCursor is the cursor after the last completed chunk, in unix ms.
	// On failure it is the position to resume from manually.
	LastCursor uint64
	// Cancelled is set when the run stopped at a chunk boundary due to
	// cancellation rather than reaching the end of the range.
	Cancelled bool
	// Empty is set when the source series had no rows at all.
	Empty bool
	// Elapsed is the wall time of the run.
	Elapsed time.Duration
}

// Importer imports one series. It owns all mutable run state and must not
// be shared between goroutines; concurrent imports use one Importer each.
type Importer struct {
	src  source.Source
	dest hta.Metric
	opts Options
}

// New creates an importer for one metric.
func New(src source.Source, dest hta.Metric, opts Options) *Importer {
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = DefaultProgressInterval
	}
	return &Importer{src: src, dest: dest, opts: opts}
}

// Run executes the import until the range is exhausted, the context is
// cancelled, or a fatal error occurs.
//
// Cancellation is observed only between chunks: the current chunk is always
// fetched, written, and flushed completely, so the destination never holds a
// partially flushed chunk. Queries therefore run under a context detached
// from the caller's cancellation.
func (imp *Importer) Run(ctx context.Context) (Result, error) {
	started := time.Now()
	res := Result{}

	// Fetches and writes must not be pre-empted mid-chunk.
	qctx := context.WithoutCancel(ctx)

	stats, err := imp.src.Stats(qctx, imp.opts.Table)
	if err != nil {
		return res, fmt.Errorf("stats probe for %s: %w", imp.opts.Table, err)
	}

	if stats.Count == 0 {
		slog.Warn("empty series, nothing to import",
			slog.String("metric", imp.opts.Metric),
			slog.String("table", imp.opts.Table))
		res.Empty = true
		res.Elapsed = time.Since(started)
		return res, nil
	}

	rng, plan, err := PlanImport(imp.opts.MinTimestamp, imp.opts.MaxTimestamp, stats, imp.opts.RowCap)
	if err != nil {
		return res, err
	}

	slog.Info("starting import",
		slog.String("metric", imp.opts.Metric),
		slog.String("table", imp.opts.Table),
		slog.Uint64("source_rows", stats.Count),
		slog.Uint64("range_start_ms", rng.EffectiveMin),
		slog.Uint64("range_end_ms", rng.EffectiveMax),
		slog.Uint64("chunk_width_ms", plan.ChunkWidth),
	)

	progress := newProgressReporter(imp.opts.Metric, imp.opts.ProgressInterval)
	progress.Start()
	defer progress.Stop()

	var (
		cursor           = rng.EffectiveMin
		lastAccepted     time.Time
		hasAccepted      bool
		consecutiveDrops uint64
	)
	res.LastCursor = cursor

	for {
		if ctx.Err() != nil {
			slog.Info("stop requested, halting after completed chunk",
				slog.String("metric", imp.opts.Metric),
				slog.Uint64("cursor_ms", cursor))
			res.Cancelled = true
			break
		}
		if cursor >= rng.EffectiveMax {
			break
		}

		chunkEnd := cursor + plan.ChunkWidth
		if chunkEnd > rng.EffectiveMax || chunkEnd < cursor {
			chunkEnd = rng.EffectiveMax
		}

		chunkStarted := time.Now()
		var (
			chunkRows    uint64
			chunkDropped uint64
			lastSeen     uint64
		)

		for row, err := range imp.src.FetchChunk(qctx, imp.opts.Table, cursor, chunkEnd, plan.RowCap) {
			if err != nil {
				res.Elapsed = time.Since(started)
				return res, fmt.Errorf("chunk [%d,%d) of %s: %w", cursor, chunkEnd, imp.opts.Table, err)
			}

			chunkRows++
			lastSeen = row.Timestamp

			t := time.UnixMilli(int64(row.Timestamp)).UTC()
			if hasAccepted && !t.After(lastAccepted) {
				chunkDropped++
				consecutiveDrops++
				slog.Debug("skipping non-monotonic timestamp",
					slog.String("metric", imp.opts.Metric),
					slog.Uint64("timestamp_ms", row.Timestamp))
				if imp.opts.MaxConsecutiveDrops > 0 && consecutiveDrops > imp.opts.MaxConsecutiveDrops {
					res.Dropped += chunkDropped
					res.Elapsed = time.Since(started)
					return res, fmt.Errorf("%w: %d in table %s", ErrTooManyDrops, consecutiveDrops, imp.opts.Table)
				}
				continue
			}
			consecutiveDrops = 0
			lastAccepted = t
			hasAccepted = true

			if err := imp.dest.Insert(hta.Point{Time: t, Value: row.Value}); err != nil {
				res.Elapsed = time.Since(started)
				return res, fmt.Errorf("insert into %s: %w", imp.opts.Metric, err)
			}
			res.Rows++
		}
		res.Dropped += chunkDropped

		if chunkRows == 0 {
			// Sparse region: advance past the empty span instead of
			// re-querying it forever.
			cursor = chunkEnd
			res.LastCursor = cursor
			continue
		}

		// Durability boundary: the chunk is complete only once flushed.
		if err := imp.dest.Flush(); err != nil {
			res.Elapsed = time.Since(started)
			return res, fmt.Errorf("flush %s: %w", imp.opts.Metric, err)
		}

		// A chunk that hit the row cap may have rows left in the interval;
		// resume just past the last row actually seen. A complete chunk
		// covered everything up to its end.
		if chunkRows >= plan.RowCap {
			cursor = lastSeen + 1
		} else {
			cursor = chunkEnd
		}
		res.LastCursor = cursor

		progress.ChunkCompleted(chunkRows-chunkDropped, chunkDropped, cursor)
		slog.Debug("chunk completed",
			slog.String("metric", imp.opts.Metric),
			slog.Uint64("rows", chunkRows),
			slog.Uint64("dropped", chunkDropped),
			slog.Uint64("cursor_ms", cursor),
			slog.Duration("elapsed", time.Since(chunkStarted).Round(time.Millisecond)))
	}

	res.Elapsed = time.Since(started)
	slog.Info("import finished",
		slog.String("metric", imp.opts.Metric),
		slog.Uint64("rows", res.Rows),
		slog.Uint64("dropped", res.Dropped),
		slog.Uint64("cursor_ms", res.LastCursor),
		slog.Bool("cancelled", res.Cancelled),
		slog.Duration("elapsed", res.Elapsed.Round(time.Millisecond)))
	return res, nil
}
