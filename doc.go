// Package tracekit provides a small, self-contained tracing and metrics
// library with a batching export pipeline.
//
// tracekit focuses on span collection and export without the weight of a
// full telemetry SDK. It is built for services that need basic distributed
// tracing with predictable performance: bounded memory, non-blocking span
// completion, and deterministic shutdown draining.
//
// Core Components:
//   - Tracer: creates spans and notifies processors of their lifecycle.
//   - ActiveSpan: thread-safe handle for an in-flight span.
//   - Span: immutable record of a completed (or snapshotted) span.
//   - SpanProcessor: reacts to span start/end; Simple or Batch.
//   - Exporter: sink that receives batches of ended spans.
//   - Meter: Counter, UpDownCounter, and Histogram instruments.
//
// Basic Usage:
//
//	exporter := tracekit.NewWriterExporter(os.Stdout)
//	tracer := tracekit.New(
//		tracekit.WithResource(tracekit.NewResource("checkout", "1.4.0", "prod")),
//		tracekit.WithProcessor(tracekit.NewBatchProcessor(exporter)),
//	)
//	defer tracer.Close(context.Background())
//
//	ctx, span := tracer.StartSpan(context.Background(), "charge-card", tracekit.WithKind(tracekit.KindClient))
//	defer span.End()
//
//	span.SetAttribute("customer.id", "123")
//
//	// Pass ctx down; children inherit the trace and parent IDs.
//	_, child := tracer.StartSpan(ctx, "reserve-stock")
//	defer child.End()
//
// Thread Safety:
//
// Tracer is safe for concurrent use by multiple goroutines. ActiveSpan
// mutators (SetAttribute, AddEvent, RecordError, SetStatus, End) are safe
// for concurrent use, including from fanned-out child operations holding
// the same handle. Span records handed to exporters are immutable copies.
//
// Failure Policy:
//
// Telemetry never fails the host application. Mutating an ended span is a
// silent no-op. A full batch queue drops the newest span and counts it.
// Export failures are logged and the batch discarded. Shutdown drains what
// it can within its deadline and drops the rest.
package tracekit
