package hta

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"crawshaw.io/sqlite/sqlitex"
)

// sqliteStore holds the shared connection pool for the SQLite backend. All
// metrics of one directory append into a single points table.
type sqliteStore struct {
	pool *sqlitex.Pool
}

// openSQLiteStore opens the database file at path, creating the schema if
// it does not exist yet.
func openSQLiteStore(path string) (*sqliteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	// URI format enables WAL mode and other pragmas
	uri := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	pool, err := sqlitex.Open(uri, 0, 10)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite pool: %w", err)
	}

	slog.Info("sqlite store opened", slog.String("path", path))

	s := &sqliteStore{pool: pool}
	if err := s.initSchema(); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// initSchema creates the points table if it doesn't exist.
func (s *sqliteStore) initSchema() error {
	conn := s.pool.Get(nil)
	if conn == nil {
		return fmt.Errorf("failed to get connection from pool")
	}
	defer s.pool.Put(conn)

	err := sqlitex.ExecScript(conn, `
		CREATE TABLE IF NOT EXISTS points (
			metric TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			value REAL NOT NULL,
			PRIMARY KEY (metric, timestamp)
		) WITHOUT ROWID;
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *sqliteStore) close() error {
	slog.Info("closing sqlite store")
	return s.pool.Close()
}

func (s *sqliteStore) metric(name string) *sqliteMetric {
	return &sqliteMetric{store: s, name: name}
}

// sqliteMetric buffers points for one metric and writes each buffer in a
// single transaction on Flush.
type sqliteMetric struct {
	store *sqliteStore
	name  string
	buf   []Point
}

var _ Metric = (*sqliteMetric)(nil)

func (m *sqliteMetric) Insert(p Point) error {
	m.buf = append(m.buf, p)
	return nil
}

func (m *sqliteMetric) Flush() (err error) {
	if len(m.buf) == 0 {
		return nil
	}

	conn := m.store.pool.Get(nil)
	if conn == nil {
		return fmt.Errorf("failed to get connection from pool")
	}
	defer m.store.pool.Put(conn)

	// One transaction per flushed chunk
	defer sqlitex.Save(conn)(&err)

	stmt := conn.Prep(`INSERT INTO points (metric, timestamp, value) VALUES (?, ?, ?)`)
	for _, p := range m.buf {
		stmt.BindText(1, m.name)
		stmt.BindInt64(2, p.Time.UnixNano())
		stmt.BindFloat(3, p.Value)

		if _, err = stmt.Step(); err != nil {
			stmt.Reset()
			return fmt.Errorf("failed to insert point for %s: %w", m.name, err)
		}
		if err = stmt.Reset(); err != nil {
			return fmt.Errorf("failed to reset insert statement: %w", err)
		}
	}

	m.buf = m.buf[:0]
	return nil
}

// Close drops any unflushed buffer. The importer flushes at every chunk
// boundary, so a non-empty buffer here means the chunk was aborted.
func (m *sqliteMetric) Close() error {
	m.buf = nil
	return nil
}
