package tracekit

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
)

// SpanProcessor reacts to span lifecycle events and drives export.
// Processors are registered on a Tracer and called in registration order.
type SpanProcessor interface {
	// OnStart is called when a span is started. It is called synchronously
	// on the starting goroutine and must not block.
	OnStart(ctx context.Context, span *ActiveSpan)

	// OnEnd is called with the immutable record of an ended span. It is
	// called synchronously on the ending goroutine and must not block.
	OnEnd(span Span)

	// ForceFlush exports any buffered spans that have not yet reached the
	// exporter. Bounded by ctx.
	ForceFlush(ctx context.Context) error

	// Shutdown drains what it can within ctx, shuts down the exporter, and
	// releases resources. OnStart and OnEnd calls after Shutdown are
	// ignored (and counted as dropped where the processor keeps counters).
	Shutdown(ctx context.Context) error
}

// SimpleProcessor exports each span synchronously as it ends. Export
// failures are logged and swallowed; they never reach the span's owner.
//
// Appropriate for low-volume or test use. The ending goroutine waits for
// the exporter, so high-throughput paths should use BatchProcessor.
type SimpleProcessor struct {
	exporter Exporter
	logger   *zap.Logger
	dropped  atomic.Uint64
	stopped  atomic.Bool
}

// SimpleOption configures a SimpleProcessor.
type SimpleOption func(*SimpleProcessor)

// WithSimpleLogger sets the logger for export failure diagnostics.
func WithSimpleLogger(logger *zap.Logger) SimpleOption {
	return func(p *SimpleProcessor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewSimpleProcessor creates a processor that exports spans one at a time.
func NewSimpleProcessor(exporter Exporter, opts ...SimpleOption) *SimpleProcessor {
	p := &SimpleProcessor{
		exporter: exporter,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// OnStart is a no-op.
func (p *SimpleProcessor) OnStart(context.Context, *ActiveSpan) {}

// OnEnd exports the span immediately and waits for the result. Failures are
// logged, never raised.
func (p *SimpleProcessor) OnEnd(span Span) {
	if p.stopped.Load() {
		p.dropped.Add(1)
		return
	}
	if err := p.exporter.Export(context.Background(), []Span{span}); err != nil {
		p.dropped.Add(1)
		p.logger.Warn("span export failed",
			zap.String("span", span.Name),
			zap.Error(err))
	}
}

// ForceFlush is a no-op; nothing is buffered.
func (p *SimpleProcessor) ForceFlush(context.Context) error {
	return nil
}

// Shutdown stops accepting spans and shuts down the exporter.
func (p *SimpleProcessor) Shutdown(ctx context.Context) error {
	if !p.stopped.CompareAndSwap(false, true) {
		return nil
	}
	return p.exporter.Shutdown(ctx)
}

// DroppedSpans returns the number of spans lost to export failures or
// post-shutdown delivery.
func (p *SimpleProcessor) DroppedSpans() uint64 {
	return p.dropped.Load()
}
