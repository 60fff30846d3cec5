package tracing

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/vidcoach/internal/store"
)

type memTracingStore struct {
	mu    sync.Mutex
	spans []store.SpanData
	err   error
}

func (m *memTracingStore) BatchCreateSpans(_ context.Context, spans []store.SpanData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.spans = append(m.spans, spans...)
	return nil
}

func (m *memTracingStore) ListSpans(_ context.Context, traceID uuid.UUID) ([]store.SpanData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.SpanData
	for _, s := range m.spans {
		if s.TraceID == traceID {
			out = append(out, s)
		}
	}
	return out, nil
}

type recordingExporter struct {
	exported int
	shutdown bool
}

func (e *recordingExporter) ExportSpans(_ context.Context, spans []store.SpanData) {
	e.exported += len(spans)
}

func (e *recordingExporter) Shutdown(context.Context) error {
	e.shutdown = true
	return nil
}

func TestCollector_FlushOnStop(t *testing.T) {
	ms := &memTracingStore{}
	exp := &recordingExporter{}
	c := NewCollector(ms)
	c.SetExporter(exp)
	c.Start()

	trace := store.GenNewID()
	c.EmitSpan(store.SpanData{TraceID: trace, SpanType: store.SpanTypeLLMCall, Name: "round-trip 1"})
	c.EmitSpan(store.SpanData{TraceID: trace, SpanType: store.SpanTypeToolCall, Name: "download_youtube_video"})
	c.Stop()

	spans, _ := ms.ListSpans(context.Background(), trace)
	if len(spans) != 2 {
		t.Fatalf("expected 2 flushed spans, got %d", len(spans))
	}
	for _, s := range spans {
		if s.ID == uuid.Nil || s.CreatedAt.IsZero() {
			t.Errorf("span defaults not filled: %+v", s)
		}
	}
	if exp.exported != 2 || !exp.shutdown {
		t.Errorf("exporter: exported=%d shutdown=%v", exp.exported, exp.shutdown)
	}
}

func TestCollector_ExporterOnly(t *testing.T) {
	exp := &recordingExporter{}
	c := NewCollector(nil)
	c.SetExporter(exp)
	c.EmitSpan(store.SpanData{SpanType: store.SpanTypeRun})
	c.flush()
	if exp.exported != 1 {
		t.Errorf("expected 1 exported span, got %d", exp.exported)
	}
}

func TestCollector_StoreErrorStillExports(t *testing.T) {
	ms := &memTracingStore{err: errors.New("disk full")}
	exp := &recordingExporter{}
	c := NewCollector(ms)
	c.SetExporter(exp)
	c.EmitSpan(store.SpanData{SpanType: store.SpanTypeRun})
	c.flush()
	if exp.exported != 1 {
		t.Errorf("expected export despite store failure, got %d", exp.exported)
	}
}

func TestCollector_DropsWhenFull(t *testing.T) {
	c := NewCollector(&memTracingStore{})
	for range defaultBufferSize + 3 {
		c.EmitSpan(store.SpanData{SpanType: store.SpanTypeToolCall})
	}
	st := c.Stats()
	if st.Dropped != 3 || st.Emitted != defaultBufferSize+3 {
		t.Errorf("stats = %+v", st)
	}
}

func TestCollector_TruncatesPreviews(t *testing.T) {
	ms := &memTracingStore{}
	c := NewCollector(ms)
	c.verbose = false
	c.EmitSpan(store.SpanData{SpanType: store.SpanTypeToolCall, OutputPreview: strings.Repeat("é", 2000)})
	c.flush()
	got := []rune(ms.spans[0].OutputPreview)
	if len(got) != store.MaxPreviewLength+3 {
		t.Errorf("expected truncated preview, got %d runes", len(got))
	}
}

func TestCollector_Stats(t *testing.T) {
	ms := &memTracingStore{err: errors.New("locked")}
	c := NewCollector(ms)
	c.SetFlushInterval(time.Hour)
	c.Start()
	c.EmitSpan(store.SpanData{SpanType: store.SpanTypeRun})
	c.EmitSpan(store.SpanData{SpanType: store.SpanTypeLLMCall})
	c.Stop()
	c.Stop()

	want := Stats{Emitted: 2, Flushed: 2, StoreErrors: 1}
	if got := c.Stats(); got != want {
		t.Errorf("Stats = %+v, want %+v", got, want)
	}
}
