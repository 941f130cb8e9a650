// Package source provides read access to the row-oriented import database.
//
// A Source supports exactly two operations: an aggregate statistics probe
// over a whole series, and a bounded, ordered range query over a half-open
// timestamp interval. Both are read-only. Timestamps are unix milliseconds,
// matching the dataheap schema.
package source

import (
	"context"
	"errors"
	"iter"
)

// ErrUnavailable indicates the import database cannot be reached at all
// (connection or authentication failure). Not retryable by callers here.
var ErrUnavailable = errors.New("import database unavailable")

// ErrQuery indicates a query failed to execute. A chunk query failure is
// fatal to the import; rows flushed before the failure remain valid.
var ErrQuery = errors.New("import query failed")

// ErrInvalidTable indicates a table name that cannot be safely quoted into
// a query. Raised before any query is issued.
var ErrInvalidTable = errors.New("invalid table name")

// Row is one raw sample as stored in the source.
type Row struct {
	Timestamp uint64 // unix milliseconds
	Value     float64
}

// Stats describes a whole series in the source.
type Stats struct {
	Count        uint64
	MinTimestamp uint64 // unix milliseconds
	MaxTimestamp uint64 // unix milliseconds
}

// Source is the import-database handle consumed by the ingestion loop.
type Source interface {
	// Stats runs one aggregate query over the entire table and returns
	// row count and min/max timestamp. A count of zero means an empty
	// series; MinTimestamp and MaxTimestamp are zero in that case.
	Stats(ctx context.Context, table string) (Stats, error)

	// FetchChunk returns a lazy, one-shot sequence of rows in the
	// half-open interval [start, end), ascending by timestamp, at most
	// limit rows. If the sequence yields exactly limit rows the caller
	// must assume the chunk was truncated and more rows may remain in
	// the interval. Any execution failure is yielded as a non-nil error
	// wrapping ErrQuery, after which the sequence ends.
	FetchChunk(ctx context.Context, table string, start, end, limit uint64) iter.Seq2[Row, error]
}

// ValueProber is implemented by sources that can report the value range of
// a series. Used only by dry-run sanity checks.
type ValueProber interface {
	ValueRange(ctx context.Context, table string) (min, max float64, err error)
}
