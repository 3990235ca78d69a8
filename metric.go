package tracekit

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// defaultBuckets are the histogram bucket upper bounds used when none are
// given: latency-shaped, in seconds.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// LabelSet is a canonicalized set of key-value labels. Two sets built from
// the same pairs in any order are identical and aggregate into the same
// bucket.
type LabelSet struct {
	key    string
	labels map[string]string
}

// Labels builds a LabelSet from alternating key, value strings. A trailing
// key without a value is ignored.
func Labels(kv ...string) LabelSet {
	n := len(kv) / 2
	if n == 0 {
		return LabelSet{}
	}
	labels := make(map[string]string, n)
	for i := 0; i+1 < len(kv); i += 2 {
		labels[kv[i]] = kv[i+1]
	}
	return LabelSet{key: canonicalKey(labels), labels: labels}
}

// LabelsFromMap builds a LabelSet from a map.
func LabelsFromMap(m map[string]string) LabelSet {
	if len(m) == 0 {
		return LabelSet{}
	}
	labels := make(map[string]string, len(m))
	for k, v := range m {
		labels[k] = v
	}
	return LabelSet{key: canonicalKey(labels), labels: labels}
}

// canonicalKey renders labels in sorted key order so insertion order never
// matters.
func canonicalKey(labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(0x1e)
		}
		sb.WriteString(k)
		sb.WriteByte(0x1f)
		sb.WriteString(labels[k])
	}
	return sb.String()
}

// Meter issues instruments and tracks measurement diagnostics. Instruments
// are identified by name within their kind; asking twice for the same name
// returns the same instrument. Safe for concurrent use.
type Meter struct {
	counters map[string]*Counter
	updowns  map[string]*UpDownCounter
	histos   map[string]*Histogram
	logger   *zap.Logger
	mu       sync.Mutex
	rejected atomic.Uint64
}

// MeterOption configures a Meter.
type MeterOption func(*Meter)

// WithMeterLogger sets the logger for rejected-measurement diagnostics.
func WithMeterLogger(logger *zap.Logger) MeterOption {
	return func(m *Meter) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewMeter creates a meter.
func NewMeter(opts ...MeterOption) *Meter {
	m := &Meter{
		counters: make(map[string]*Counter),
		updowns:  make(map[string]*UpDownCounter),
		histos:   make(map[string]*Histogram),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RejectedMeasurements returns how many measurements were refused for usage
// errors (negative counter deltas).
func (m *Meter) RejectedMeasurements() uint64 {
	return m.rejected.Load()
}

func (m *Meter) reject(instrument string, value float64) {
	m.rejected.Add(1)
	m.logger.Warn("measurement rejected",
		zap.String("instrument", instrument),
		zap.Float64("value", value))
}

// Counter returns the monotonic counter with the given name, creating it on
// first use.
func (m *Meter) Counter(name string) *Counter {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.counters[name]; ok {
		return c
	}
	c := &Counter{name: name, meter: m, sums: make(map[string]float64)}
	m.counters[name] = c
	return c
}

// UpDownCounter returns the bidirectional counter with the given name,
// creating it on first use.
func (m *Meter) UpDownCounter(name string) *UpDownCounter {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.updowns[name]; ok {
		return c
	}
	c := &UpDownCounter{name: name, sums: make(map[string]float64)}
	m.updowns[name] = c
	return c
}

// Histogram returns the histogram with the given name, creating it on first
// use. Bucket upper bounds apply only at creation; without any, a default
// latency-shaped set is used.
func (m *Meter) Histogram(name string, buckets ...float64) *Histogram {
	m.mu.Lock()
	defer m.mu.Unlock()

	if h, ok := m.histos[name]; ok {
		return h
	}
	bounds := defaultBuckets
	if len(buckets) > 0 {
		bounds = make([]float64, len(buckets))
		copy(bounds, buckets)
		sort.Float64s(bounds)
	}
	h := &Histogram{name: name, bounds: bounds, dists: make(map[string]*distribution)}
	m.histos[name] = h
	return h
}

// Counter accumulates non-negative deltas into per-label-set sums.
type Counter struct {
	sums  map[string]float64
	meter *Meter
	name  string
	mu    sync.Mutex
}

// Add accumulates delta for the label set. Negative deltas are a usage
// error: the measurement is ignored and a diagnostic recorded.
func (c *Counter) Add(delta float64, labels LabelSet) {
	if delta < 0 {
		c.meter.reject(c.name, delta)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sums[labels.key] += delta
}

// Value returns the accumulated sum for the label set.
func (c *Counter) Value(labels LabelSet) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sums[labels.key]
}

// UpDownCounter accumulates deltas of either sign into per-label-set sums.
type UpDownCounter struct {
	sums map[string]float64
	name string
	mu   sync.Mutex
}

// Add accumulates delta for the label set. Negative deltas are valid.
func (c *UpDownCounter) Add(delta float64, labels LabelSet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sums[labels.key] += delta
}

// Value returns the accumulated sum for the label set.
func (c *UpDownCounter) Value(labels LabelSet) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sums[labels.key]
}

// distribution is one label set's bucketed view of recorded values.
type distribution struct {
	counts []uint64 // One per bound plus the overflow bucket.
	sum    float64
	count  uint64
}

// Histogram folds recorded values into per-label-set bucketed
// distributions.
type Histogram struct {
	dists  map[string]*distribution
	bounds []float64
	name   string
	mu     sync.Mutex
}

// Record folds value into the label set's distribution.
func (h *Histogram) Record(value float64, labels LabelSet) {
	h.mu.Lock()
	defer h.mu.Unlock()

	d, ok := h.dists[labels.key]
	if !ok {
		d = &distribution{counts: make([]uint64, len(h.bounds)+1)}
		h.dists[labels.key] = d
	}

	// Upper bounds are inclusive; index len(bounds) is the overflow bucket.
	idx := sort.SearchFloat64s(h.bounds, value)
	d.counts[idx]++
	d.sum += value
	d.count++
}

// HistogramSnapshot is a point-in-time copy of one label set's
// distribution. Counts has one entry per bound plus a final overflow entry.
type HistogramSnapshot struct {
	Bounds []float64
	Counts []uint64
	Sum    float64
	Count  uint64
}

// Snapshot returns a copy of the label set's distribution. A label set that
// was never recorded yields a zero snapshot with the histogram's bounds.
func (h *Histogram) Snapshot(labels LabelSet) HistogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	snap := HistogramSnapshot{
		Bounds: append([]float64(nil), h.bounds...),
		Counts: make([]uint64, len(h.bounds)+1),
	}
	if d, ok := h.dists[labels.key]; ok {
		copy(snap.Counts, d.counts)
		snap.Sum = d.sum
		snap.Count = d.count
	}
	return snap
}
