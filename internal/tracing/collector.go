// Package tracing records the spans of analysis runs: one per run, one per
// model round-trip and one per capability dispatch.
package tracing

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/vidcoach/internal/store"
)

const (
	defaultFlushInterval = 5 * time.Second
	defaultBufferSize    = 1000
	flushTimeout         = 10 * time.Second
)

// SpanExporter receives every flushed batch in addition to the run archive.
// otelexport.Exporter implements it; it is only linked with -tags otel.
type SpanExporter interface {
	ExportSpans(ctx context.Context, spans []store.SpanData)
	Shutdown(ctx context.Context) error
}

// Stats counts what a collector did with the spans it was given.
type Stats struct {
	Emitted     int64 `json:"emitted"`
	Flushed     int64 `json:"flushed"`
	Dropped     int64 `json:"dropped"`
	StoreErrors int64 `json:"store_errors"`
}

// Collector buffers spans and writes them in batches to the archive and the
// exporter. Either sink may be nil.
type Collector struct {
	store    store.TracingStore
	exporter SpanExporter

	spans    chan store.SpanData
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	interval time.Duration
	verbose  bool // keep previews untruncated

	emitted, flushed, dropped, storeErrors atomic.Int64
}

// NewCollector creates a collector writing to ts. VIDCOACH_TRACE_VERBOSE
// keeps span previews untruncated.
func NewCollector(ts store.TracingStore) *Collector {
	return &Collector{
		store:    ts,
		spans:    make(chan store.SpanData, defaultBufferSize),
		stop:     make(chan struct{}),
		interval: defaultFlushInterval,
		verbose:  os.Getenv("VIDCOACH_TRACE_VERBOSE") != "",
	}
}

// SetExporter attaches an external exporter. Call before Start.
func (c *Collector) SetExporter(exp SpanExporter) { c.exporter = exp }

// SetFlushInterval changes the periodic flush interval. Call before Start.
func (c *Collector) SetFlushInterval(d time.Duration) {
	if d > 0 {
		c.interval = d
	}
}

// Start begins the periodic flush.
func (c *Collector) Start() {
	c.wg.Add(1)
	go c.loop()
	slog.Debug("tracing collector started", "interval", c.interval, "verbose", c.verbose)
}

// Stop flushes what is buffered and shuts the exporter down. It is safe to
// call more than once.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() {
		close(c.stop)
		c.wg.Wait()
		c.flush()

		if c.exporter != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := c.exporter.Shutdown(ctx); err != nil {
				slog.Warn("tracing: exporter shutdown failed", "error", err)
			}
		}

		st := c.Stats()
		if st.Dropped > 0 {
			slog.Warn("tracing: spans dropped", "dropped", st.Dropped, "emitted", st.Emitted)
		}
		slog.Debug("tracing collector stopped", "emitted", st.Emitted, "flushed", st.Flushed,
			"store_errors", st.StoreErrors)
	})
}

// EmitSpan queues span without blocking. The span is dropped when the
// buffer is full.
func (c *Collector) EmitSpan(span store.SpanData) {
	if span.ID == uuid.Nil {
		span.ID = store.GenNewID()
	}
	if span.CreatedAt.IsZero() {
		span.CreatedAt = time.Now().UTC()
	}
	if !c.verbose {
		span.InputPreview = store.TruncatePreview(span.InputPreview)
		span.OutputPreview = store.TruncatePreview(span.OutputPreview)
	}

	c.emitted.Add(1)
	select {
	case c.spans <- span:
	default:
		c.dropped.Add(1)
		slog.Warn("tracing: span buffer full", "span_type", span.SpanType, "name", span.Name)
	}
}

// Stats returns a snapshot of the collector counters.
func (c *Collector) Stats() Stats {
	return Stats{
		Emitted:     c.emitted.Load(),
		Flushed:     c.flushed.Load(),
		Dropped:     c.dropped.Load(),
		StoreErrors: c.storeErrors.Load(),
	}
}

func (c *Collector) loop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.flush()
		case <-c.stop:
			return
		}
	}
}

// drain takes every span currently buffered.
func (c *Collector) drain() []store.SpanData {
	n := len(c.spans)
	if n == 0 {
		return nil
	}
	batch := make([]store.SpanData, 0, n)
	for range n {
		batch = append(batch, <-c.spans)
	}
	return batch
}

func (c *Collector) flush() {
	batch := c.drain()
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	if c.store != nil {
		if err := c.store.BatchCreateSpans(ctx, batch); err != nil {
			c.storeErrors.Add(1)
			slog.Warn("tracing: span insert failed", "count", len(batch), "error", err)
		}
	}
	// The exporter logs its own failures.
	if c.exporter != nil {
		c.exporter.ExportSpans(ctx, batch)
	}
	c.flushed.Add(int64(len(batch)))
}
