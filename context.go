package tracekit

import "context"

// SpanContext is the immutable identity of a span within a trace.
type SpanContext struct {
	TraceID  string `json:"trace_id"`
	SpanID   string `json:"span_id"`
	ParentID string `json:"parent_id,omitempty"`
	Sampled  bool   `json:"sampled"`
}

// IsValid reports whether the context carries both IDs.
func (sc SpanContext) IsValid() bool {
	return sc.TraceID != "" && sc.SpanID != ""
}

// bundleKeyType is a private type for context keys to avoid collisions.
type bundleKeyType struct{}

var bundleKey bundleKeyType

// contextBundle holds both tracer and span to reduce context allocations.
type contextBundle struct {
	tracer *Tracer
	span   *ActiveSpan
}

// ContextWithSpan returns a new context in which span is the active span.
// The parent context is not modified; deriving never mutates.
func ContextWithSpan(parent context.Context, span *ActiveSpan) context.Context {
	if parent == nil {
		parent = context.Background()
	}
	if span == nil {
		return parent
	}
	bundle := &contextBundle{tracer: span.tracer, span: span}
	return context.WithValue(parent, bundleKey, bundle)
}

// SpanFromContext extracts the active span from a context.
// Returns nil if no span is present.
func SpanFromContext(ctx context.Context) *ActiveSpan {
	if ctx == nil {
		return nil
	}
	if bundle, ok := ctx.Value(bundleKey).(*contextBundle); ok {
		return bundle.span
	}
	return nil
}
