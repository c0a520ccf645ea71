// Package progress reports long-running sync and clean operations through
// a docker/go-events sink, the same library the registry's own
// notifications system uses to fan events out to interested listeners.
package progress

import (
	"sync"
	"time"

	"github.com/docker/go-events"
)

// Event describes a point-in-time measurement of a long-running
// operation's progress. It satisfies events.Event (an empty interface).
type Event struct {
	// Phase names the operation being reported, e.g. "sync-layer" or
	// "clean-untagged".
	Phase string
	// Ref identifies the specific object the phase is working on (a
	// digest or tag spec), when applicable.
	Ref string
	// Current and Total count whatever unit the phase is measured in
	// (blobs transferred, objects swept, ...). Total is 0 when unknown.
	Current, Total int64
}

// Reporter throttles Event delivery to a sink so that a tight per-item loop
// doesn't flood it: at most one event per interval, always including the
// final (Current == Total) one.
type Reporter struct {
	sink     events.Sink
	interval time.Duration

	mu   sync.Mutex
	last time.Time
}

// NewReporter returns a Reporter writing to sink no more often than
// interval. A nil sink makes every Report call a no-op, so callers can
// always construct a Reporter even when nobody is listening.
func NewReporter(sink events.Sink, interval time.Duration) *Reporter {
	return &Reporter{sink: sink, interval: interval}
}

// Report emits event if the interval has elapsed since the last emission,
// or unconditionally when event.Current has reached event.Total.
func (r *Reporter) Report(event Event) {
	if r == nil || r.sink == nil {
		return
	}
	final := event.Total > 0 && event.Current >= event.Total

	r.mu.Lock()
	due := final || time.Since(r.last) >= r.interval
	if due {
		r.last = time.Now()
	}
	r.mu.Unlock()

	if !due {
		return
	}
	_ = r.sink.Write(event)
}

// Close releases the underlying sink, if any.
func (r *Reporter) Close() error {
	if r == nil || r.sink == nil {
		return nil
	}
	return r.sink.Close()
}
