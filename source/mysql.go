package source

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/maypok86/otter/v2"

	"hta-import/config"
)

// statsCacheTTL bounds how stale a cached probe may be. A dry-run followed
// by a real run within this window issues the aggregate query once.
const statsCacheTTL = 5 * time.Minute

// MySQL reads dataheap series from a MySQL database. Each metric is one
// table with `timestamp` (unix ms) and `value` (double) columns.
//
// The underlying database/sql pool hands out independent connections, so a
// single MySQL handle is safe to share between concurrent metric imports.
type MySQL struct {
	db    *sql.DB
	stats *otter.Cache[string, Stats]
}

var _ Source = (*MySQL)(nil)
var _ ValueProber = (*MySQL)(nil)

// Open connects to the import database and verifies the connection.
func Open(ctx context.Context, cfg config.SourceConfig) (*MySQL, error) {
	mcfg := mysql.NewConfig()
	mcfg.User = cfg.User
	mcfg.Passwd = cfg.Password
	mcfg.Net = "tcp"
	mcfg.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	mcfg.DBName = cfg.Database

	db, err := sql.Open("mysql", mcfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	cache := otter.Must(&otter.Options[string, Stats]{
		MaximumSize:      1024,
		ExpiryCalculator: otter.ExpiryWriting[string, Stats](statsCacheTTL),
	})

	return &MySQL{db: db, stats: cache}, nil
}

// Close closes the connection pool.
func (m *MySQL) Close() error {
	return m.db.Close()
}

// Stats returns count and min/max timestamp for a table, cached per table.
func (m *MySQL) Stats(ctx context.Context, table string) (Stats, error) {
	if cached, ok := m.stats.GetIfPresent(table); ok {
		return cached, nil
	}

	ident, err := quoteIdent(table)
	if err != nil {
		return Stats{}, err
	}

	query := "SELECT COUNT(`timestamp`), MIN(`timestamp`), MAX(`timestamp`) FROM " + ident
	var count uint64
	var minTS, maxTS sql.NullInt64
	if err := m.db.QueryRowContext(ctx, query).Scan(&count, &minTS, &maxTS); err != nil {
		return Stats{}, fmt.Errorf("%w: stats for %s: %v", ErrQuery, table, err)
	}

	s := Stats{Count: count}
	if minTS.Valid {
		s.MinTimestamp = uint64(minTS.Int64)
	}
	if maxTS.Valid {
		s.MaxTimestamp = uint64(maxTS.Int64)
	}

	m.stats.Set(table, s)
	return s, nil
}

// FetchChunk runs one ordered range query over [start, end) with the given
// row limit and yields the rows lazily.
func (m *MySQL) FetchChunk(ctx context.Context, table string, start, end, limit uint64) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		ident, err := quoteIdent(table)
		if err != nil {
			yield(Row{}, err)
			return
		}

		query := "SELECT `timestamp`, `value` FROM " + ident +
			" WHERE `timestamp` >= ? AND `timestamp` < ? ORDER BY `timestamp` ASC LIMIT ?"
		rows, err := m.db.QueryContext(ctx, query, start, end, limit)
		if err != nil {
			yield(Row{}, fmt.Errorf("%w: chunk [%d,%d) of %s: %v", ErrQuery, start, end, table, err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var r Row
			if err := rows.Scan(&r.Timestamp, &r.Value); err != nil {
				yield(Row{}, fmt.Errorf("%w: scan row of %s: %v", ErrQuery, table, err))
				return
			}
			if !yield(r, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(Row{}, fmt.Errorf("%w: chunk [%d,%d) of %s: %v", ErrQuery, start, end, table, err))
		}
	}
}

// ValueRange returns the min and max value of a table. Dry-run only.
func (m *MySQL) ValueRange(ctx context.Context, table string) (float64, float64, error) {
	ident, err := quoteIdent(table)
	if err != nil {
		return 0, 0, err
	}

	query := "SELECT MIN(`value`), MAX(`value`) FROM " + ident
	var minV, maxV sql.NullFloat64
	if err := m.db.QueryRowContext(ctx, query).Scan(&minV, &maxV); err != nil {
		return 0, 0, fmt.Errorf("%w: value range for %s: %v", ErrQuery, table, err)
	}
	return minV.Float64, maxV.Float64, nil
}

// quoteIdent backtick-quotes a table name. MySQL cannot bind identifiers as
// parameters, so the name is restricted to a safe character set instead.
func quoteIdent(table string) (string, error) {
	if table == "" {
		return "", fmt.Errorf("%w: empty name", ErrInvalidTable)
	}
	for _, c := range table {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '$':
		default:
			return "", fmt.Errorf("%w: character %q in %q", ErrInvalidTable, c, table)
		}
	}
	return "`" + table + "`", nil
}
