package hta

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/memory"
	"github.com/apache/arrow/go/v18/parquet"
	"github.com/apache/arrow/go/v18/parquet/compress"
	"github.com/apache/arrow/go/v18/parquet/pqarrow"
	"github.com/oklog/ulid/v2"
)

// TimestampNsUTC is a nanosecond timestamp with UTC timezone.
var TimestampNsUTC = &arrow.TimestampType{Unit: arrow.Nanosecond, TimeZone: "UTC"}

// PointSchema defines the Arrow schema for metric points in Parquet files.
var PointSchema = arrow.NewSchema(
	[]arrow.Field{
		{Name: "time", Type: TimestampNsUTC, Nullable: false},
		{Name: "value", Type: arrow.PrimitiveTypes.Float64, Nullable: false},
	},
	nil,
)

// ParquetWriterConfig holds configuration for Parquet file writing.
type ParquetWriterConfig struct {
	CompressionCodec compress.Compression
	CompressionLevel int
}

// DefaultParquetWriterConfig returns the default configuration.
func DefaultParquetWriterConfig() ParquetWriterConfig {
	return ParquetWriterConfig{
		CompressionCodec: compress.Codecs.Lz4Raw,
		CompressionLevel: 0, // LZ4 ignores the level
	}
}

// --- Monotonic ULID Generator ---

var (
	ulidGenerator = struct {
		sync.Mutex
		*ulid.MonotonicEntropy
	}{
		MonotonicEntropy: ulid.Monotonic(rand.Reader, 0),
	}
)

func newULID() (ulid.ULID, error) {
	ulidGenerator.Lock()
	defer ulidGenerator.Unlock()
	return ulid.New(ulid.Timestamp(time.Now()), &ulidGenerator)
}

// parquetMetric writes one part file per import run for one metric. Each
// Flush appends the buffered points as one row group; Close finalizes the
// file with an atomic rename. If nothing was ever flushed, no file appears.
type parquetMetric struct {
	name   string
	path   string
	config ParquetWriterConfig

	buf    []Point
	writer *streamingPointWriter // nil until first non-empty flush
}

var _ Metric = (*parquetMetric)(nil)

// newParquetMetric prepares a part-file writer under
// {dir}/{metric}/{ULID}.parquet. The file itself is created lazily.
func newParquetMetric(dir, name string) (*parquetMetric, error) {
	id, err := newULID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate part file id: %w", err)
	}

	// Metric names may contain path separators (e.g. "foo/bar_baz")
	safe := strings.ReplaceAll(name, string(os.PathSeparator), "_")
	path := filepath.Join(dir, safe, id.String()+".parquet")

	return &parquetMetric{
		name:   name,
		path:   path,
		config: DefaultParquetWriterConfig(),
	}, nil
}

func (m *parquetMetric) Insert(p Point) error {
	m.buf = append(m.buf, p)
	return nil
}

func (m *parquetMetric) Flush() error {
	if len(m.buf) == 0 {
		return nil
	}

	if m.writer == nil {
		w, err := newStreamingPointWriter(m.path, m.config)
		if err != nil {
			return err
		}
		m.writer = w
	}

	if err := m.writer.WriteChunk(m.buf); err != nil {
		m.writer.Abort()
		m.writer = nil
		return err
	}

	m.buf = m.buf[:0]
	return nil
}

// Close finalizes the part file from the row groups flushed so far. Any
// unflushed buffer belongs to an aborted chunk and is dropped.
func (m *parquetMetric) Close() error {
	m.buf = nil
	if m.writer == nil {
		return nil
	}
	_, err := m.writer.Close()
	m.writer = nil
	return err
}

// streamingPointWriter writes points to a Parquet file in chunks.
// Creates a new row group for each chunk to bound memory usage.
type streamingPointWriter struct {
	outputPath   string
	tmpPath      string
	writer       *pqarrow.FileWriter
	totalRecords int
	rowGroups    int
}

// newStreamingPointWriter creates a new streaming writer.
// Writes to a temp file first, then renames on Close for atomicity.
func newStreamingPointWriter(outputPath string, config ParquetWriterConfig) (*streamingPointWriter, error) {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	// Create temp file in same directory (for atomic rename)
	tmpPath := outputPath + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file %s: %w", tmpPath, err)
	}

	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(config.CompressionCodec),
		parquet.WithCompressionLevel(config.CompressionLevel),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(
		pqarrow.WithStoreSchema(),
	)

	writer, err := pqarrow.NewFileWriter(PointSchema, file, writerProps, arrowProps)
	if err != nil {
		file.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}

	return &streamingPointWriter{
		outputPath: outputPath,
		tmpPath:    tmpPath,
		writer:     writer,
	}, nil
}

// WriteChunk writes a chunk of points as a new row group.
func (sw *streamingPointWriter) WriteChunk(points []Point) error {
	if len(points) == 0 {
		return nil
	}

	// Fresh allocator per chunk - released after batch.Release()
	alloc := memory.NewGoAllocator()
	batch := buildPointBatch(alloc, points)
	defer batch.Release()

	// WriteBuffered creates a row group
	if err := sw.writer.WriteBuffered(batch); err != nil {
		return fmt.Errorf("failed to write chunk: %w", err)
	}

	sw.totalRecords += len(points)
	sw.rowGroups++
	return nil
}

// Close finalizes the Parquet file and renames to final path.
// Returns the final path on success.
func (sw *streamingPointWriter) Close() (string, error) {
	// Note: pqarrow.FileWriter.Close() closes the underlying file
	if err := sw.writer.Close(); err != nil {
		os.Remove(sw.tmpPath)
		return "", fmt.Errorf("failed to close parquet writer: %w", err)
	}

	if err := os.Rename(sw.tmpPath, sw.outputPath); err != nil {
		os.Remove(sw.tmpPath)
		return "", fmt.Errorf("failed to rename temp file: %w", err)
	}

	return sw.outputPath, nil
}

// Abort cleans up the temp file without finalizing.
func (sw *streamingPointWriter) Abort() {
	sw.writer.Close()
	os.Remove(sw.tmpPath)
}

// Stats returns the number of points written and row groups created.
func (sw *streamingPointWriter) Stats() (totalRecords int, rowGroups int) {
	return sw.totalRecords, sw.rowGroups
}

// buildPointBatch creates an Arrow record batch from points.
func buildPointBatch(alloc memory.Allocator, points []Point) arrow.Record {
	timeBuilder := array.NewTimestampBuilder(alloc, TimestampNsUTC)
	defer timeBuilder.Release()

	valueBuilder := array.NewFloat64Builder(alloc)
	defer valueBuilder.Release()

	for _, p := range points {
		timeBuilder.Append(arrow.Timestamp(p.Time.UnixNano()))
		valueBuilder.Append(p.Value)
	}

	cols := []arrow.Array{
		timeBuilder.NewArray(),
		valueBuilder.NewArray(),
	}

	return array.NewRecord(PointSchema, cols, int64(len(points)))
}
