package tracekit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Kind categorizes the role a span plays in a trace. It is metadata only and
// never alters behavior.
type Kind string

const (
	KindInternal Kind = "internal"
	KindServer   Kind = "server"
	KindClient   Kind = "client"
	KindProducer Kind = "producer"
	KindConsumer Kind = "consumer"
)

// StatusCode is the outcome recorded on a span.
type StatusCode string

const (
	StatusUnset StatusCode = "unset"
	StatusOK    StatusCode = "ok"
	StatusError StatusCode = "error"
)

// Attribute keys used by RecordError.
const (
	attrExceptionType    = "exception.type"
	attrExceptionMessage = "exception.message"
)

// Event is a timestamped annotation on a span. Events are append-only; their
// order is insertion order.
type Event struct {
	Attributes map[string]string `json:"attributes,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
	Name       string            `json:"name"`
}

// Span is the immutable record of a span. Records reach SpanProcessors and
// Exporters as deep copies; holding or modifying one never affects the
// originating ActiveSpan.
//
//nolint:govet // Field alignment optimized for JSON serialization order
type Span struct {
	Attributes    map[string]string `json:"attributes,omitempty"`
	Resource      map[string]string `json:"resource,omitempty"`
	Events        []Event           `json:"events,omitempty"`
	Links         []SpanContext     `json:"links,omitempty"`
	StartTime     time.Time         `json:"start_time"`
	EndTime       time.Time         `json:"end_time,omitempty"`
	Duration      time.Duration     `json:"duration"`
	TraceID       string            `json:"trace_id"`
	SpanID        string            `json:"span_id"`
	ParentID      string            `json:"parent_id,omitempty"`
	Name          string            `json:"name"`
	Kind          Kind              `json:"kind"`
	Status        StatusCode        `json:"status"`
	StatusMessage string            `json:"status_message,omitempty"`
	Sampled       bool              `json:"sampled"`
}

// Context returns the span's identity as a SpanContext value.
func (s Span) Context() SpanContext {
	return SpanContext{
		TraceID:  s.TraceID,
		SpanID:   s.SpanID,
		ParentID: s.ParentID,
		Sampled:  s.Sampled,
	}
}

// ActiveSpan is a thread-safe handle for an in-flight span. It is safe for
// concurrent use, including from fanned-out child operations that share the
// handle: attribute writes resolve last-write-wins under the handle's lock,
// and events append in lock acquisition order.
type ActiveSpan struct {
	span   *Span
	tracer *Tracer
	mu     sync.Mutex
}

// ended reports whether the span has finished. Callers must hold a.mu.
func (a *ActiveSpan) ended() bool {
	return !a.span.EndTime.IsZero()
}

// SetAttribute records a key-value pair on the span. A later write to the
// same key overwrites the earlier one. No-op once the span has ended.
func (a *ActiveSpan) SetAttribute(key, value string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ended() {
		return
	}
	if a.span.Attributes == nil {
		a.span.Attributes = make(map[string]string)
	}
	a.span.Attributes[key] = value
}

// GetAttribute retrieves an attribute value by key.
func (a *ActiveSpan) GetAttribute(key string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.span.Attributes == nil {
		return "", false
	}
	value, ok := a.span.Attributes[key]
	return value, ok
}

// AddEvent appends a named event stamped with the current time.
// No-op once the span has ended.
func (a *ActiveSpan) AddEvent(name string, attrs map[string]string) {
	a.AddEventAt(name, attrs, a.tracer.clock.Now())
}

// AddEventAt appends a named event with an explicit timestamp.
// No-op once the span has ended.
func (a *ActiveSpan) AddEventAt(name string, attrs map[string]string, ts time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ended() {
		return
	}
	event := Event{Name: name, Timestamp: ts}
	if len(attrs) > 0 {
		event.Attributes = make(map[string]string, len(attrs))
		for k, v := range attrs {
			event.Attributes[k] = v
		}
	}
	a.span.Events = append(a.span.Events, event)
}

// RecordError appends exactly one exception event carrying the error's type
// and message, and sets the span status to StatusError with that message.
// Callers that want the event without the status can follow with an explicit
// SetStatus. No-op for nil errors or ended spans.
func (a *ActiveSpan) RecordError(err error) {
	if err == nil {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ended() {
		return
	}
	a.span.Events = append(a.span.Events, Event{
		Name:      "exception",
		Timestamp: a.tracer.clock.Now(),
		Attributes: map[string]string{
			attrExceptionType:    fmt.Sprintf("%T", err),
			attrExceptionMessage: err.Error(),
		},
	})
	a.span.Status = StatusError
	a.span.StatusMessage = err.Error()
}

// SetStatus sets the span's outcome. Repeated calls are allowed; the last
// call before End wins. No-op once the span has ended.
func (a *ActiveSpan) SetStatus(code StatusCode, message string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ended() {
		return
	}
	a.span.Status = code
	a.span.StatusMessage = message
}

// End completes the span at the current time and hands it to the tracer's
// processors. Safe to call multiple times - subsequent calls are no-ops.
func (a *ActiveSpan) End() {
	a.EndAt(a.tracer.clock.Now())
}

// EndAt completes the span with an explicit end timestamp.
// Safe to call multiple times - subsequent calls are no-ops.
func (a *ActiveSpan) EndAt(ts time.Time) {
	a.mu.Lock()

	// Prevent double-ending.
	if a.ended() {
		a.mu.Unlock()
		return
	}

	a.span.EndTime = ts
	a.span.Duration = a.span.EndTime.Sub(a.span.StartTime)
	record := a.snapshotLocked()
	a.mu.Unlock()

	// Notify outside the lock so a slow processor never stalls other
	// goroutines touching this handle.
	a.tracer.endSpan(record)
}

// Snapshot returns a deep copy of the span's current state.
func (a *ActiveSpan) Snapshot() Span {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

// snapshotLocked deep-copies the record. Callers must hold a.mu.
func (a *ActiveSpan) snapshotLocked() Span {
	record := *a.span
	if a.span.Attributes != nil {
		record.Attributes = make(map[string]string, len(a.span.Attributes))
		for k, v := range a.span.Attributes {
			record.Attributes[k] = v
		}
	}
	if a.span.Events != nil {
		record.Events = make([]Event, len(a.span.Events))
		copy(record.Events, a.span.Events)
	}
	if a.span.Links != nil {
		record.Links = make([]SpanContext, len(a.span.Links))
		copy(record.Links, a.span.Links)
	}
	// Resource is immutable after tracer construction; sharing is safe.
	return record
}

// SpanContext returns the span's identity.
func (a *ActiveSpan) SpanContext() SpanContext {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.span.Context()
}

// TraceID returns the trace ID of this span.
func (a *ActiveSpan) TraceID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.span.TraceID
}

// SpanID returns the span ID of this span.
func (a *ActiveSpan) SpanID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.span.SpanID
}

// Name returns the span's operation name.
func (a *ActiveSpan) Name() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.span.Name
}

// Context creates a new context with this span marked active.
// The returned context can be used to start child spans.
func (a *ActiveSpan) Context(parent context.Context) context.Context {
	return ContextWithSpan(parent, a)
}
