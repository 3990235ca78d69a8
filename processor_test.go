package tracekit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// recordExporter captures exported batches for assertions.
type recordExporter struct {
	batchCh   chan []Span
	exportErr error
	batches   [][]Span
	shutdowns int
	block     atomic.Bool // When set, Export blocks until its ctx is canceled.
	mu        sync.Mutex
}

func newRecordExporter() *recordExporter {
	return &recordExporter{batchCh: make(chan []Span, 64)}
}

func (r *recordExporter) Export(ctx context.Context, spans []Span) error {
	if r.block.Load() {
		<-ctx.Done()
		return ctx.Err()
	}

	batch := make([]Span, len(spans))
	copy(batch, spans)

	r.mu.Lock()
	r.batches = append(r.batches, batch)
	err := r.exportErr
	r.mu.Unlock()

	select {
	case r.batchCh <- batch:
	default:
	}
	return err
}

func (r *recordExporter) Shutdown(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shutdowns++
	return nil
}

func (r *recordExporter) batchCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func (r *recordExporter) shutdownCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.shutdowns
}

// waitBatch blocks until the exporter receives a batch or the test times out.
func (r *recordExporter) waitBatch(t *testing.T) []Span {
	t.Helper()
	select {
	case batch := <-r.batchCh:
		return batch
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for an exported batch")
		return nil
	}
}

func makeSpan(name string) Span {
	return Span{
		TraceID:   "trace-" + name,
		SpanID:    "span-" + name,
		Name:      name,
		StartTime: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2024, 3, 1, 12, 0, 1, 0, time.UTC),
		Duration:  time.Second,
		Sampled:   true,
		Status:    StatusUnset,
		Kind:      KindInternal,
	}
}

func TestSimpleProcessorExportsSynchronously(t *testing.T) {
	exporter := newRecordExporter()
	proc := NewSimpleProcessor(exporter)

	proc.OnEnd(makeSpan("one"))

	// Synchronous: the batch must already be there, no waiting.
	if exporter.batchCount() != 1 {
		t.Fatalf("Expected 1 batch immediately, got %d", exporter.batchCount())
	}
	exporter.mu.Lock()
	batch := exporter.batches[0]
	exporter.mu.Unlock()
	if len(batch) != 1 || batch[0].Name != "one" {
		t.Errorf("Expected single-span batch 'one', got %v", batch)
	}
}

func TestSimpleProcessorSwallowsExportFailure(t *testing.T) {
	exporter := newRecordExporter()
	exporter.exportErr = errors.New("collector unreachable")
	proc := NewSimpleProcessor(exporter)

	// Must not panic or propagate anything.
	proc.OnEnd(makeSpan("doomed"))

	if proc.DroppedSpans() != 1 {
		t.Errorf("Expected 1 dropped span, got %d", proc.DroppedSpans())
	}
}

func TestSimpleProcessorShutdown(t *testing.T) {
	exporter := newRecordExporter()
	proc := NewSimpleProcessor(exporter)

	if err := proc.Shutdown(context.Background()); err != nil {
		t.Errorf("Expected clean shutdown, got %v", err)
	}
	if exporter.shutdownCount() != 1 {
		t.Errorf("Expected exporter shut down once, got %d", exporter.shutdownCount())
	}

	// Spans after shutdown are dropped, not exported.
	proc.OnEnd(makeSpan("late"))
	if exporter.batchCount() != 0 {
		t.Error("Expected no export after shutdown")
	}
	if proc.DroppedSpans() != 1 {
		t.Errorf("Expected late span counted as dropped, got %d", proc.DroppedSpans())
	}

	// Second shutdown is a no-op.
	if err := proc.Shutdown(context.Background()); err != nil {
		t.Errorf("Expected second shutdown to be a no-op, got %v", err)
	}
	if exporter.shutdownCount() != 1 {
		t.Errorf("Expected exporter shut down exactly once, got %d", exporter.shutdownCount())
	}
}

func TestSimpleProcessorForceFlush(t *testing.T) {
	proc := NewSimpleProcessor(newRecordExporter())
	if err := proc.ForceFlush(context.Background()); err != nil {
		t.Errorf("Expected no-op force flush, got %v", err)
	}
}
