package tracekit

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"sync"

	"github.com/zoobzio/clockz"
)

// ID widths in random bytes. Trace IDs are 128-bit and span IDs 64-bit,
// both rendered as lowercase hex.
const (
	traceIDBytes = 16
	spanIDBytes  = 8
)

// idSource hands out fixed-width hex identifiers. A background goroutine
// keeps a buffered channel of ready IDs so the hot path stays off
// crypto/rand; a drained buffer falls back to inline generation.
type idSource struct {
	width  int
	ready  chan string
	stopCh chan struct{}
	clock  clockz.Clock
	mu     sync.Mutex
	closed bool
}

// newIDSource starts a source producing width-byte identifiers, keeping up
// to buffer of them ready.
func newIDSource(width, buffer int, clock clockz.Clock) *idSource {
	s := &idSource{
		width:  width,
		ready:  make(chan string, buffer),
		stopCh: make(chan struct{}),
		clock:  clock,
	}
	go s.fill()
	return s
}

// Get returns the next identifier. Never blocks, even after Close.
func (s *idSource) Get() string {
	select {
	case id := <-s.ready:
		return id
	default:
		return s.generate()
	}
}

// fill keeps the ready buffer topped up until the source is closed.
func (s *idSource) fill() {
	for {
		select {
		case <-s.stopCh:
			return
		case s.ready <- s.generate():
		}
	}
}

// generate produces one identifier of the configured width. If crypto/rand
// fails, the clock's nanosecond reading seeds the low bytes instead so the
// result keeps its width and stays usable for correlation.
func (s *idSource) generate() string {
	buf := make([]byte, s.width)
	if _, err := rand.Read(buf); err != nil {
		binary.BigEndian.PutUint64(buf[s.width-8:], uint64(s.clock.Now().UnixNano()))
	}
	return hex.EncodeToString(buf)
}

// Close stops the fill goroutine. Safe to call multiple times; Get keeps
// working through the inline path.
func (s *idSource) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		close(s.stopCh)
		s.closed = true
	}
}
