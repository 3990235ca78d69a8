package tracekit

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
)

// Tracer creates spans, stamps them with the process resource, and notifies
// its processors of span lifecycle. Safe for concurrent use by multiple
// goroutines.
//
//nolint:govet // Field order optimized for functionality over memory
type Tracer struct {
	processors    []SpanProcessor
	resourceAttrs map[string]string
	traceIDs      *idSource
	spanIDs       *idSource
	clock         clockz.Clock
	logger        *zap.Logger
	idOnce        sync.Once
	closed        atomic.Bool
}

// Option configures a Tracer.
type Option func(*Tracer)

// WithResource attaches process identity attributes to every span the
// tracer creates.
func WithResource(r Resource) Option {
	return func(t *Tracer) {
		t.resourceAttrs = r.Attributes()
	}
}

// WithProcessor registers a SpanProcessor. May be given multiple times;
// processors are notified in registration order.
func WithProcessor(p SpanProcessor) Option {
	return func(t *Tracer) {
		if p != nil {
			t.processors = append(t.processors, p)
		}
	}
}

// WithClock sets the clock used for span timestamps.
// Enables clock injection for deterministic testing.
func WithClock(clock clockz.Clock) Option {
	return func(t *Tracer) {
		if clock != nil {
			t.clock = clock
		}
	}
}

// WithLogger sets the logger for tracer diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Tracer) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// New creates a tracer. Without options it uses the real clock, no resource,
// no processors, and a no-op logger.
func New(opts ...Option) *Tracer {
	t := &Tracer{
		clock:  clockz.RealClock,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ensureIDs lazily starts the trace and span ID sources.
func (t *Tracer) ensureIDs() {
	t.idOnce.Do(func() {
		// Buffer scales with CPUs so bursts of StartSpan stay off
		// crypto/rand.
		buffer := runtime.NumCPU() * 100
		t.traceIDs = newIDSource(traceIDBytes, buffer, t.clock)
		t.spanIDs = newIDSource(spanIDBytes, buffer, t.clock)
	})
}

// SpanOption configures a span at creation.
type SpanOption func(*Span)

// WithKind sets the span kind. Default is KindInternal.
func WithKind(kind Kind) SpanOption {
	return func(s *Span) {
		s.Kind = kind
	}
}

// WithAttributes seeds the span with initial attributes.
func WithAttributes(attrs map[string]string) SpanOption {
	return func(s *Span) {
		if len(attrs) == 0 {
			return
		}
		if s.Attributes == nil {
			s.Attributes = make(map[string]string, len(attrs))
		}
		for k, v := range attrs {
			s.Attributes[k] = v
		}
	}
}

// WithLinks associates the span with other span contexts.
func WithLinks(links ...SpanContext) SpanOption {
	return func(s *Span) {
		s.Links = append(s.Links, links...)
	}
}

// WithStartTime overrides the span's start timestamp.
func WithStartTime(ts time.Time) SpanOption {
	return func(s *Span) {
		s.StartTime = ts
	}
}

// StartSpan creates a new span and returns it wrapped in an ActiveSpan,
// along with a context in which it is the active span.
//
// If ctx carries an active span, the new span joins its trace: same trace
// ID, parent ID set to the active span's ID. Otherwise a fresh trace ID is
// minted and the span has no parent.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, *ActiveSpan) {
	// Handle nil context by creating a new one.
	if ctx == nil {
		ctx = context.Background()
	}

	span := &Span{
		Name:     name,
		Kind:     KindInternal,
		Status:   StatusUnset,
		Sampled:  true,
		Resource: t.resourceAttrs,
	}

	t.ensureIDs()
	span.SpanID = t.spanIDs.Get()

	// Link to parent span if present.
	if parent := SpanFromContext(ctx); parent != nil {
		pc := parent.SpanContext()
		span.TraceID = pc.TraceID
		span.ParentID = pc.SpanID
		span.Sampled = pc.Sampled
	} else {
		span.TraceID = t.traceIDs.Get()
	}

	for _, opt := range opts {
		opt(span)
	}
	if span.StartTime.IsZero() {
		span.StartTime = t.clock.Now()
	}

	active := &ActiveSpan{span: span, tracer: t}

	// Fire-and-forget start notifications; processors must not block here.
	for _, p := range t.processors {
		p.OnStart(ctx, active)
	}

	return ContextWithSpan(ctx, active), active
}

// endSpan delivers an ended span record to every processor in order.
func (t *Tracer) endSpan(record Span) {
	for _, p := range t.processors {
		p.OnEnd(record)
	}
}

// ForceFlush asks every processor to flush pending spans to its exporter.
func (t *Tracer) ForceFlush(ctx context.Context) error {
	var errs []error
	for _, p := range t.processors {
		if err := p.ForceFlush(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close shuts down the tracer: every processor is shut down (draining what
// it can within ctx), and the ID sources stop. Spans ended after Close are
// dropped by the processors. Safe to call multiple times.
func (t *Tracer) Close(ctx context.Context) error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}

	var errs []error
	for _, p := range t.processors {
		if err := p.Shutdown(ctx); err != nil {
			t.logger.Warn("span processor shutdown failed", zap.Error(err))
			errs = append(errs, err)
		}
	}

	if t.traceIDs != nil {
		t.traceIDs.Close()
	}
	if t.spanIDs != nil {
		t.spanIDs.Close()
	}

	return errors.Join(errs...)
}
