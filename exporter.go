package tracekit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Exporter is the sink at the end of the pipeline. Implementations receive
// batches of ended spans in completion order.
//
// Export is a single attempt: processors never retry a failed batch. An
// implementation that wants durable delivery must buffer or retry
// internally, bounded by the ctx it is given.
type Exporter interface {
	// Export ships one batch. It must honor ctx cancellation; processors
	// cancel it when the flush deadline expires.
	Export(ctx context.Context, spans []Span) error

	// Shutdown releases resources. It returns only after the exporter's own
	// internal buffering is flushed or abandoned.
	Shutdown(ctx context.Context) error
}

// WriterExporter writes spans as JSON lines to an io.Writer, one span per
// line. Useful for local inspection and tests.
type WriterExporter struct {
	w       io.Writer
	mu      sync.Mutex
	stopped bool
}

// NewWriterExporter creates an exporter that encodes spans to w.
func NewWriterExporter(w io.Writer) *WriterExporter {
	return &WriterExporter{w: w}
}

// Export encodes each span in the batch as one JSON line.
func (e *WriterExporter) Export(ctx context.Context, spans []Span) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return fmt.Errorf("writer exporter is shut down")
	}

	enc := json.NewEncoder(e.w)
	for i := range spans {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("export canceled: %w", err)
		}
		if err := enc.Encode(&spans[i]); err != nil {
			return fmt.Errorf("encode span %q: %w", spans[i].Name, err)
		}
	}
	return nil
}

// Shutdown marks the exporter stopped. Later Export calls fail.
func (e *WriterExporter) Shutdown(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped = true
	return nil
}
