package tracekit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestSetAttribute(t *testing.T) {
	tracer := New()
	_, span := tracer.StartSpan(context.Background(), "test")

	span.SetAttribute("key1", "value1")
	span.SetAttribute("key2", "value2")

	if v, _ := span.GetAttribute("key1"); v != "value1" {
		t.Errorf("Expected key1=value1, got %s", v)
	}
	if v, _ := span.GetAttribute("key2"); v != "value2" {
		t.Errorf("Expected key2=value2, got %s", v)
	}
}

func TestSetAttributeLastWriteWins(t *testing.T) {
	tracer := New()
	_, span := tracer.StartSpan(context.Background(), "test")

	span.SetAttribute("key", "first")
	span.SetAttribute("key", "second")

	record := span.Snapshot()
	if len(record.Attributes) != 1 {
		t.Errorf("Expected 1 attribute, got %d", len(record.Attributes))
	}
	if record.Attributes["key"] != "second" {
		t.Errorf("Expected later write to win, got %s", record.Attributes["key"])
	}
}

func TestGetAttributeMissing(t *testing.T) {
	tracer := New()
	_, span := tracer.StartSpan(context.Background(), "test")

	// No attributes yet - map is nil.
	if _, ok := span.GetAttribute("any"); ok {
		t.Error("Expected not to find attribute on fresh span")
	}

	span.SetAttribute("present", "yes")
	if _, ok := span.GetAttribute("missing"); ok {
		t.Error("Expected not to find missing attribute")
	}
}

func TestConcurrentAttributeWrites(t *testing.T) {
	tracer := New()
	_, span := tracer.StartSpan(context.Background(), "test")

	var wg sync.WaitGroup
	numGoroutines := 10
	writesPerGoroutine := 50

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < writesPerGoroutine; j++ {
				span.SetAttribute(fmt.Sprintf("g%d.w%d", n, j), "v")
				span.SetAttribute("shared", fmt.Sprintf("%d", n))
			}
		}(i)
	}
	wg.Wait()

	record := span.Snapshot()
	want := numGoroutines*writesPerGoroutine + 1
	if len(record.Attributes) != want {
		t.Errorf("Expected %d attributes, got %d", want, len(record.Attributes))
	}
}

func TestEventInsertionOrder(t *testing.T) {
	tracer := New()
	_, span := tracer.StartSpan(context.Background(), "test")

	for i := 0; i < 5; i++ {
		span.AddEvent(fmt.Sprintf("event-%d", i), nil)
	}

	record := span.Snapshot()
	if len(record.Events) != 5 {
		t.Fatalf("Expected 5 events, got %d", len(record.Events))
	}
	for i, e := range record.Events {
		if e.Name != fmt.Sprintf("event-%d", i) {
			t.Errorf("Event %d out of order: got %s", i, e.Name)
		}
	}
}

func TestConcurrentEventAppends(t *testing.T) {
	tracer := New()
	_, span := tracer.StartSpan(context.Background(), "test")

	var wg sync.WaitGroup
	numGoroutines := 10
	eventsPerGoroutine := 20

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < eventsPerGoroutine; j++ {
				span.AddEvent("tick", map[string]string{"n": "1"})
			}
		}()
	}
	wg.Wait()

	record := span.Snapshot()
	if len(record.Events) != numGoroutines*eventsPerGoroutine {
		t.Errorf("Expected %d events, got %d", numGoroutines*eventsPerGoroutine, len(record.Events))
	}
}

func TestAddEventAtExplicitTimestamp(t *testing.T) {
	tracer := New()
	_, span := tracer.StartSpan(context.Background(), "test")

	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	span.AddEventAt("checkpoint", map[string]string{"stage": "2"}, ts)

	record := span.Snapshot()
	if len(record.Events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(record.Events))
	}
	if !record.Events[0].Timestamp.Equal(ts) {
		t.Errorf("Expected timestamp %v, got %v", ts, record.Events[0].Timestamp)
	}
	if record.Events[0].Attributes["stage"] != "2" {
		t.Errorf("Expected event attribute stage=2, got %s", record.Events[0].Attributes["stage"])
	}
}

func TestMutationAfterEndIgnored(t *testing.T) {
	tracer := New()
	_, span := tracer.StartSpan(context.Background(), "test")

	span.SetAttribute("before", "yes")
	span.End()

	span.SetAttribute("after", "no")
	span.AddEvent("late", nil)
	span.SetStatus(StatusOK, "late")
	span.RecordError(errors.New("late"))

	record := span.Snapshot()
	if _, ok := record.Attributes["after"]; ok {
		t.Error("Expected SetAttribute after End to be ignored")
	}
	if len(record.Events) != 0 {
		t.Errorf("Expected no events after End, got %d", len(record.Events))
	}
	if record.Status != StatusUnset {
		t.Errorf("Expected status to stay unset, got %s", record.Status)
	}
}

func TestRecordError(t *testing.T) {
	tracer := New()
	_, span := tracer.StartSpan(context.Background(), "test")

	span.RecordError(errors.New("connection refused"))

	record := span.Snapshot()
	if len(record.Events) != 1 {
		t.Fatalf("Expected exactly 1 event, got %d", len(record.Events))
	}

	event := record.Events[0]
	if event.Name != "exception" {
		t.Errorf("Expected event name 'exception', got %s", event.Name)
	}
	if event.Attributes[attrExceptionType] != "*errors.errorString" {
		t.Errorf("Expected error type attribute, got %s", event.Attributes[attrExceptionType])
	}
	if event.Attributes[attrExceptionMessage] != "connection refused" {
		t.Errorf("Expected error message attribute, got %s", event.Attributes[attrExceptionMessage])
	}

	if record.Status != StatusError {
		t.Errorf("Expected status error, got %s", record.Status)
	}
	if record.StatusMessage != "connection refused" {
		t.Errorf("Expected status message from error, got %s", record.StatusMessage)
	}
}

func TestRecordErrorNil(t *testing.T) {
	tracer := New()
	_, span := tracer.StartSpan(context.Background(), "test")

	span.RecordError(nil)

	record := span.Snapshot()
	if len(record.Events) != 0 {
		t.Errorf("Expected no events for nil error, got %d", len(record.Events))
	}
	if record.Status != StatusUnset {
		t.Errorf("Expected status unset for nil error, got %s", record.Status)
	}
}

func TestSetStatusLastWins(t *testing.T) {
	tracer := New()
	_, span := tracer.StartSpan(context.Background(), "test")

	span.SetStatus(StatusError, "first failure")
	span.SetStatus(StatusOK, "")
	span.End()

	record := span.Snapshot()
	if record.Status != StatusOK {
		t.Errorf("Expected last status to win, got %s", record.Status)
	}
	if record.StatusMessage != "" {
		t.Errorf("Expected empty status message, got %s", record.StatusMessage)
	}
}

func TestEndAtExplicitTimestamp(t *testing.T) {
	tracer := New()
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(250 * time.Millisecond)

	_, span := tracer.StartSpan(context.Background(), "test", WithStartTime(start))
	span.EndAt(end)

	record := span.Snapshot()
	if !record.EndTime.Equal(end) {
		t.Errorf("Expected end time %v, got %v", end, record.EndTime)
	}
	if record.Duration != 250*time.Millisecond {
		t.Errorf("Expected 250ms duration, got %v", record.Duration)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	tracer := New()
	_, span := tracer.StartSpan(context.Background(), "test")

	span.SetAttribute("key", "before")
	span.AddEvent("first", nil)
	record := span.Snapshot()

	span.SetAttribute("key", "after")
	span.AddEvent("second", nil)

	if record.Attributes["key"] != "before" {
		t.Errorf("Snapshot mutated by later write: got %s", record.Attributes["key"])
	}
	if len(record.Events) != 1 {
		t.Errorf("Snapshot event log mutated: got %d events", len(record.Events))
	}
}

func TestSpanRecordContext(t *testing.T) {
	record := Span{
		TraceID:  "trace-1",
		SpanID:   "span-1",
		ParentID: "parent-1",
		Sampled:  true,
	}

	sc := record.Context()
	if sc.TraceID != "trace-1" || sc.SpanID != "span-1" || sc.ParentID != "parent-1" {
		t.Errorf("Unexpected span context: %+v", sc)
	}
	if !sc.Sampled {
		t.Error("Expected sampled flag to carry over")
	}
	if !sc.IsValid() {
		t.Error("Expected context with both IDs to be valid")
	}
}
