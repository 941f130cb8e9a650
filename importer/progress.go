package importer

import (
	"log/slog"
	"sync"
	"time"
)

// progressReporter accumulates chunk completions and logs an aggregate line
// periodically, so a dense import does not emit one log line per chunk.
// Advisory only; it never affects the loop.
type progressReporter struct {
	mu      sync.Mutex
	metric  string
	rows    uint64
	dropped uint64
	chunks  uint64
	cursor  uint64

	started  time.Time
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// newProgressReporter creates a reporter that flushes an aggregate log line
// every interval while the import runs.
func newProgressReporter(metric string, interval time.Duration) *progressReporter {
	return &progressReporter{
		metric:   metric,
		started:  time.Now(),
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background goroutine that flushes logs periodically.
func (p *progressReporter) Start() {
	go p.run()
}

// Stop signals the reporter to stop and waits for it to finish.
func (p *progressReporter) Stop() {
	close(p.stopCh)
	<-p.doneCh
}

// ChunkCompleted records one flushed chunk.
func (p *progressReporter) ChunkCompleted(rows, dropped, cursor uint64) {
	p.mu.Lock()
	p.rows += rows
	p.dropped += dropped
	p.chunks++
	p.cursor = cursor
	p.mu.Unlock()
}

func (p *progressReporter) run() {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.flush()
		case <-p.stopCh:
			p.flush() // Final flush before stopping
			return
		}
	}
}

func (p *progressReporter) flush() {
	p.mu.Lock()
	rows, dropped, chunks, cursor := p.rows, p.dropped, p.chunks, p.cursor
	p.mu.Unlock()

	if chunks == 0 {
		return
	}

	elapsed := time.Since(p.started)
	rate := float64(rows) / elapsed.Seconds()

	slog.Info("import progress",
		slog.String("metric", p.metric),
		slog.Uint64("rows", rows),
		slog.Uint64("dropped", dropped),
		slog.Uint64("chunks", chunks),
		slog.Uint64("cursor_ms", cursor),
		slog.Duration("elapsed", elapsed.Round(time.Millisecond)),
		slog.Float64("rows_per_sec", rate),
	)
}
