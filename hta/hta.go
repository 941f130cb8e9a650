// Package hta implements the destination store: an append-optimized,
// time-indexed directory of metrics. Two backends exist, one writing into a
// single SQLite database and one writing Parquet part files per metric.
//
// A Metric buffers inserted points in memory until Flush, which is the
// durability boundary: points flushed once remain valid regardless of what
// happens to the import afterwards. Neither backend reads back what it
// wrote; query APIs belong to the consuming system, not to the importer.
package hta

import (
	"fmt"
	"time"

	"hta-import/config"
)

// Point is one sample at the destination's native resolution.
type Point struct {
	Time  time.Time
	Value float64
}

// Metric is an append-only writer for one output metric.
//
// Insert buffers; Flush makes everything inserted so far durable. Close
// releases the writer; points inserted but not yet flushed are discarded,
// so an aborted chunk never becomes partially durable. A Metric is not
// safe for concurrent use; concurrent imports use one Metric each.
type Metric interface {
	Insert(p Point) error
	Flush() error
	Close() error
}

// Directory opens per-metric writers against one configured backend.
type Directory struct {
	cfg config.StoreConfig

	sqlite *sqliteStore // nil unless backend is sqlite
}

// OpenDirectory opens (creating if necessary) the destination store.
func OpenDirectory(cfg config.StoreConfig) (*Directory, error) {
	d := &Directory{cfg: cfg}
	switch cfg.Backend {
	case config.BackendSQLite:
		store, err := openSQLiteStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		d.sqlite = store
	case config.BackendParquet:
		// Part files are created lazily per metric.
	default:
		return nil, fmt.Errorf("unknown hta backend %q", cfg.Backend)
	}
	return d, nil
}

// Metric returns a writer for the named output metric.
func (d *Directory) Metric(name string) (Metric, error) {
	if name == "" {
		return nil, fmt.Errorf("empty metric name")
	}
	switch d.cfg.Backend {
	case config.BackendSQLite:
		return d.sqlite.metric(name), nil
	default:
		return newParquetMetric(d.cfg.Path, name)
	}
}

// Close closes the underlying store. Metrics obtained from the directory
// must be closed first.
func (d *Directory) Close() error {
	if d.sqlite != nil {
		return d.sqlite.close()
	}
	return nil
}
