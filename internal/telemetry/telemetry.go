// Package telemetry carries pose samples and sensor faults out of the control core to
// whatever is watching: logs, recorders, or the live terminal view.
package telemetry

import (
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultPublishInterval is the pose publication period for display and debug consumers.
const DefaultPublishInterval = 75 * time.Millisecond

// Sample is a pose snapshot in field coordinates. Heading is in degrees.
type Sample struct {
	Time       time.Time `json:"time"`
	X          float64   `json:"x"`
	Y          float64   `json:"y"`
	HeadingDeg float64   `json:"heading_deg"`
}

func (s Sample) String() string {
	return fmt.Sprintf("x=%.3f y=%.3f h=%.2f°", s.X, s.Y, s.HeadingDeg)
}

// Fault is a non-fatal sensor problem. Count is the number of faults of this source
// seen so far, Consecutive the length of the current streak.
type Fault struct {
	Time        time.Time
	Source      string
	Err         error
	Count       int64
	Consecutive int64
}

// Sink receives telemetry. Implementations must not block the caller for long: the
// estimator publishes from its periodic loop.
type Sink interface {
	PublishPose(Sample)
	Warn(Fault)
}

type nopSink struct{}

func (nopSink) PublishPose(Sample) {}
func (nopSink) Warn(Fault)         {}

// Nop discards everything.
var Nop Sink = nopSink{}

// Throttle forwards at most one pose per interval. Faults always pass through.
type Throttle struct {
	next     Sink
	clk      clock.Clock
	interval time.Duration

	mu   sync.Mutex
	last time.Time
	sent bool
}

func NewThrottle(next Sink, clk clock.Clock, interval time.Duration) *Throttle {
	if interval <= 0 {
		interval = DefaultPublishInterval
	}
	return &Throttle{next: next, clk: clk, interval: interval}
}

func (t *Throttle) PublishPose(s Sample) {
	now := t.clk.Now()

	t.mu.Lock()
	if t.sent && now.Sub(t.last) < t.interval {
		t.mu.Unlock()
		return
	}
	t.sent = true
	t.last = now
	t.mu.Unlock()

	t.next.PublishPose(s)
}

func (t *Throttle) Warn(f Fault) { t.next.Warn(f) }

// Multi fans every call out to each sink in order.
type Multi []Sink

func (m Multi) PublishPose(s Sample) {
	for _, sink := range m {
		sink.PublishPose(s)
	}
}

func (m Multi) Warn(f Fault) {
	for _, sink := range m {
		sink.Warn(f)
	}
}
