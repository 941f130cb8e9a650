package hta

import (
	"path/filepath"
	"testing"
	"time"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"

	"hta-import/config"
)

func openTestDirectory(t *testing.T) (*Directory, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hta", "points.db")
	dir, err := OpenDirectory(config.StoreConfig{Backend: config.BackendSQLite, Path: path})
	if err != nil {
		t.Fatalf("OpenDirectory failed: %v", err)
	}
	return dir, path
}

func countPoints(t *testing.T, path, metric string) int64 {
	t.Helper()
	conn, err := sqlite.OpenConn(path, 0)
	if err != nil {
		t.Fatalf("Failed to open database for verification: %v", err)
	}
	defer conn.Close()

	var count int64
	err = sqlitex.Exec(conn, "SELECT COUNT(*) FROM points WHERE metric = ?", func(stmt *sqlite.Stmt) error {
		count = stmt.ColumnInt64(0)
		return nil
	}, metric)
	if err != nil {
		t.Fatalf("Count query failed: %v", err)
	}
	return count
}

func TestSQLiteMetricFlushWritesPoints(t *testing.T) {
	dir, path := openTestDirectory(t)

	m, err := dir.Metric("elab.ariel.power")
	if err != nil {
		t.Fatalf("Metric failed: %v", err)
	}

	base := time.Date(2015, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		if err := m.Insert(Point{Time: base.Add(time.Duration(i) * time.Second), Value: float64(i)}); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}
	if err := m.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := dir.Close(); err != nil {
		t.Fatalf("Directory close failed: %v", err)
	}

	if got := countPoints(t, path, "elab.ariel.power"); got != 3 {
		t.Errorf("Expected 3 points, got %d", got)
	}

	// Timestamps are stored at nanosecond resolution.
	conn, err := sqlite.OpenConn(path, 0)
	if err != nil {
		t.Fatalf("Failed to open database for verification: %v", err)
	}
	defer conn.Close()
	var first int64
	err = sqlitex.Exec(conn, "SELECT MIN(timestamp) FROM points WHERE metric = ?", func(stmt *sqlite.Stmt) error {
		first = stmt.ColumnInt64(0)
		return nil
	}, "elab.ariel.power")
	if err != nil {
		t.Fatalf("Min query failed: %v", err)
	}
	if first != base.UnixNano() {
		t.Errorf("Expected first timestamp %d, got %d", base.UnixNano(), first)
	}
}

func TestSQLiteMetricCloseDiscardsUnflushed(t *testing.T) {
	dir, path := openTestDirectory(t)

	m, err := dir.Metric("elab.ariel.power")
	if err != nil {
		t.Fatalf("Metric failed: %v", err)
	}
	if err := m.Insert(Point{Time: time.Now(), Value: 1}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	// No Flush before Close: the point must not appear.
	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := dir.Close(); err != nil {
		t.Fatalf("Directory close failed: %v", err)
	}

	if got := countPoints(t, path, "elab.ariel.power"); got != 0 {
		t.Errorf("Expected 0 points after discarding buffer, got %d", got)
	}
}

func TestSQLiteMetricDuplicateTimestampRollsBack(t *testing.T) {
	dir, path := openTestDirectory(t)

	m, err := dir.Metric("elab.ariel.power")
	if err != nil {
		t.Fatalf("Metric failed: %v", err)
	}

	ts := time.Date(2015, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := m.Insert(Point{Time: ts, Value: 1}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := m.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	// A buffer whose second point violates the primary key must roll back
	// as a whole; the earlier flush stays intact.
	if err := m.Insert(Point{Time: ts.Add(time.Second), Value: 2}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := m.Insert(Point{Time: ts, Value: 3}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := m.Flush(); err == nil {
		t.Fatal("Expected duplicate timestamp to fail the flush")
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := dir.Close(); err != nil {
		t.Fatalf("Directory close failed: %v", err)
	}

	if got := countPoints(t, path, "elab.ariel.power"); got != 1 {
		t.Errorf("Expected only the first flush to persist, got %d points", got)
	}
}

func TestOpenDirectoryUnknownBackend(t *testing.T) {
	_, err := OpenDirectory(config.StoreConfig{Backend: "csv", Path: t.TempDir()})
	if err == nil {
		t.Fatal("Expected error for unknown backend")
	}
}
