package tracekit

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
)

// Batch pipeline defaults.
const (
	DefaultMaxQueueSize       = 2048
	DefaultMaxExportBatchSize = 512
	DefaultScheduledDelay     = 5 * time.Second
	DefaultExportTimeout      = 30 * time.Second
)

// BatchProcessor buffers ended spans in a bounded queue and ships them to
// the exporter in batches. Safe for concurrent use by multiple goroutines.
//
// OnEnd is O(1) and never blocks: when the queue is full the incoming span
// is dropped (drop-newest) and counted. A single background goroutine owns
// all dequeues; it flushes when the queue reaches the batch size or when the
// scheduled delay elapses since the last flush, whichever comes first. Each
// flush is one export attempt bounded by the export timeout; on timeout the
// attempt is abandoned and the batch counted as dropped, favoring bounded
// latency over delivery.
//
//nolint:govet // Field order optimized for functionality over memory
type BatchProcessor struct {
	exporter Exporter
	queue    chan Span
	trigger  chan struct{}
	flushReq chan chan error
	stopCh   chan struct{}
	done     chan struct{}
	clock    clockz.Clock
	logger   *zap.Logger

	maxExportBatchSize int
	scheduledDelay     time.Duration
	exportTimeout      time.Duration

	dropped atomic.Uint64
	stopped atomic.Bool
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithMaxQueueSize bounds the number of ended spans awaiting export.
// Spans arriving at a full queue are dropped. Default 2048.
func WithMaxQueueSize(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.queue = make(chan Span, n)
		}
	}
}

// WithMaxExportBatchSize caps the spans per export call and sets the
// queue-length flush trigger. Default 512.
func WithMaxExportBatchSize(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.maxExportBatchSize = n
		}
	}
}

// WithScheduledDelay sets the timer interval between flushes. The timer
// re-arms after every flush, so it measures time since the last flush.
// Default 5s.
func WithScheduledDelay(d time.Duration) BatchOption {
	return func(b *BatchProcessor) {
		if d > 0 {
			b.scheduledDelay = d
		}
	}
}

// WithExportTimeout bounds each export attempt. Default 30s.
func WithExportTimeout(d time.Duration) BatchOption {
	return func(b *BatchProcessor) {
		if d > 0 {
			b.exportTimeout = d
		}
	}
}

// WithBatchClock sets the clock driving the flush timer and export
// watchdog. Enables clock injection for deterministic testing.
func WithBatchClock(clock clockz.Clock) BatchOption {
	return func(b *BatchProcessor) {
		if clock != nil {
			b.clock = clock
		}
	}
}

// WithBatchLogger sets the logger for drop and export-failure diagnostics.
func WithBatchLogger(logger *zap.Logger) BatchOption {
	return func(b *BatchProcessor) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBatchProcessor creates a batching processor and starts its background
// flush goroutine.
func NewBatchProcessor(exporter Exporter, opts ...BatchOption) *BatchProcessor {
	b := &BatchProcessor{
		exporter:           exporter,
		trigger:            make(chan struct{}, 1),
		flushReq:           make(chan chan error),
		stopCh:             make(chan struct{}),
		done:               make(chan struct{}),
		clock:              clockz.RealClock,
		logger:             zap.NewNop(),
		maxExportBatchSize: DefaultMaxExportBatchSize,
		scheduledDelay:     DefaultScheduledDelay,
		exportTimeout:      DefaultExportTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.queue == nil {
		b.queue = make(chan Span, DefaultMaxQueueSize)
	}
	// A batch can never exceed what the queue can hold.
	if b.maxExportBatchSize > cap(b.queue) {
		b.maxExportBatchSize = cap(b.queue)
	}
	go b.run()
	return b
}

// OnStart is a no-op.
func (b *BatchProcessor) OnStart(context.Context, *ActiveSpan) {}

// OnEnd enqueues the span without blocking. If the queue is full the span
// is dropped and counted. After shutdown every span is dropped and counted.
func (b *BatchProcessor) OnEnd(span Span) {
	if b.stopped.Load() {
		b.dropped.Add(1)
		return
	}

	select {
	case b.queue <- span:
	default:
		// Queue full - drop newest to keep memory bounded.
		b.dropped.Add(1)
		return
	}

	if b.stopped.Load() {
		// Lost the race with Shutdown: its final drain may already have
		// seen an empty queue. Reclaim one span so nothing sits in the
		// queue unaccounted; if the drain got there first, the span was
		// exported and the reclaim finds nothing.
		select {
		case <-b.queue:
			b.dropped.Add(1)
		default:
		}
		return
	}

	if len(b.queue) >= b.maxExportBatchSize {
		// Coalescing signal: if a trigger is already pending the new one
		// is a no-op and the next flush picks up the queued spans.
		select {
		case b.trigger <- struct{}{}:
		default:
		}
	}
}

// run is the sole consumer of the queue. At most one flush is ever in
// flight because flushes only happen here.
func (b *BatchProcessor) run() {
	defer close(b.done)

	for {
		select {
		case <-b.stopCh:
			return
		case <-b.trigger:
			// One coalesced trigger can stand in for many size conditions
			// raised while a flush was in flight, so keep flushing until
			// the backlog falls below the batch size. The remainder waits
			// for the timer.
			for len(b.queue) >= b.maxExportBatchSize {
				b.flushOnce(b.stopCh) //nolint:errcheck // Logged inside; triggers never report.
			}
		case req := <-b.flushReq:
			req <- b.drain()
		case <-b.clock.After(b.scheduledDelay):
			b.flushOnce(b.stopCh) //nolint:errcheck // Logged inside; triggers never report.
			for len(b.queue) >= b.maxExportBatchSize {
				b.flushOnce(b.stopCh) //nolint:errcheck // Logged inside; triggers never report.
			}
		}
	}
}

// flushOnce dequeues up to one batch and exports it. Empty queue is a no-op.
// A receive on interrupt abandons the attempt; loop flushes pass stopCh so
// shutdown never waits out a hung exporter, drain flushes pass nil.
func (b *BatchProcessor) flushOnce(interrupt <-chan struct{}) error {
	batch := make([]Span, 0, b.maxExportBatchSize)
fill:
	for len(batch) < b.maxExportBatchSize {
		select {
		case span := <-b.queue:
			batch = append(batch, span)
		default:
			break fill
		}
	}
	if len(batch) == 0 {
		return nil
	}
	return b.export(batch, interrupt)
}

// drain flushes until the queue is empty. A failed batch is discarded and
// draining continues with the next one.
func (b *BatchProcessor) drain() error {
	var errs []error
	for len(b.queue) > 0 {
		if err := b.flushOnce(nil); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// export performs the single attempt for one batch, bounded by the export
// timeout. The exporter call runs in its own goroutine with a cancellable
// context; when the watchdog fires (or interrupt is ready) the context is
// canceled, the batch is counted as dropped, and the attempt is abandoned
// without re-enqueueing.
func (b *BatchProcessor) export(batch []Span, interrupt <-chan struct{}) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	result := make(chan error, 1)
	go func() {
		result <- b.exporter.Export(ctx, batch)
	}()

	select {
	case err := <-result:
		if err != nil {
			b.dropped.Add(uint64(len(batch)))
			b.logger.Warn("batch export failed",
				zap.Int("spans", len(batch)),
				zap.Error(err))
			return fmt.Errorf("export batch of %d: %w", len(batch), err)
		}
		return nil
	case <-b.clock.After(b.exportTimeout):
		cancel()
		b.dropped.Add(uint64(len(batch)))
		b.logger.Warn("batch export abandoned",
			zap.Int("spans", len(batch)),
			zap.Duration("timeout", b.exportTimeout))
		return fmt.Errorf("export batch of %d: abandoned after %s", len(batch), b.exportTimeout)
	case <-interrupt:
		cancel()
		b.dropped.Add(uint64(len(batch)))
		b.logger.Warn("batch export canceled by shutdown",
			zap.Int("spans", len(batch)))
		return fmt.Errorf("export batch of %d: canceled by shutdown", len(batch))
	}
}

// ForceFlush drains the queue to the exporter from the background
// goroutine, bounded by ctx. Returns nil if the processor is shut down.
func (b *BatchProcessor) ForceFlush(ctx context.Context) error {
	req := make(chan error, 1)
	select {
	case b.flushReq <- req:
	case <-b.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("force flush: %w", ctx.Err())
	}

	select {
	case err := <-req:
		return err
	case <-ctx.Done():
		return fmt.Errorf("force flush: %w", ctx.Err())
	}
}

// Shutdown stops the timer, performs a final forced drain of whatever
// remains, and shuts down the exporter. Spans still queued when ctx expires
// are dropped and counted; spans ended after Shutdown are dropped and
// counted. Safe to call multiple times.
func (b *BatchProcessor) Shutdown(ctx context.Context) error {
	if !b.stopped.CompareAndSwap(false, true) {
		return nil
	}

	close(b.stopCh)
	<-b.done // Background loop exited; this goroutine is now the sole consumer.

	var errs []error
	for len(b.queue) > 0 {
		if err := ctx.Err(); err != nil {
			// Drain deadline hit: discard and count the remainder.
			remaining := len(b.queue)
			for i := 0; i < remaining; i++ {
				<-b.queue
			}
			b.dropped.Add(uint64(remaining))
			b.logger.Warn("shutdown drain aborted",
				zap.Int("spans_dropped", remaining),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("shutdown drain: %w", err))
			break
		}
		if err := b.flushOnce(nil); err != nil {
			errs = append(errs, err)
		}
	}

	if err := b.exporter.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("exporter shutdown: %w", err))
	}
	return errors.Join(errs...)
}

// DroppedSpans returns the total number of spans dropped: queue overflow,
// export failure or timeout, post-shutdown delivery, and aborted drains.
func (b *BatchProcessor) DroppedSpans() uint64 {
	return b.dropped.Load()
}

// QueueLen returns the number of spans currently awaiting export.
func (b *BatchProcessor) QueueLen() int {
	return len(b.queue)
}
