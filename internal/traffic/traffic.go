// Package traffic keeps sliding windows of fetch-cycle outcomes and rate-limit
// denials. Health reporting reads overload and error rate from here.
package traffic

import (
	"sync"
	"time"
)

// retention bounds how long outcomes are kept regardless of the queried window.
const retention = 5 * time.Minute

// Outcome is the result of one fetch cycle or rate-limited request.
type Outcome int

const (
	Rendered Outcome = iota
	Errored
	Denied
)

var defaultTracker = NewTracker(nil)

// Record records an outcome on the process-wide tracker.
func Record(o Outcome) {
	defaultTracker.Record(o)
}

// RecordN records n identical outcomes on the process-wide tracker.
func RecordN(o Outcome, n int) {
	defaultTracker.RecordN(o, n)
}

// RequestCount returns all outcomes (rendered + errored + denied) within the window.
func RequestCount(window time.Duration) int {
	return defaultTracker.RequestCount(window)
}

// DenialCount returns the number of denials within the window.
func DenialCount(window time.Duration) int {
	return defaultTracker.Count(Denied, window)
}

// ErrorRate returns (errored, rendered+errored) within the window.
func ErrorRate(window time.Duration) (errors, total int) {
	return defaultTracker.ErrorRate(window)
}

// Reset clears the process-wide tracker. For tests only.
func Reset() {
	defaultTracker.Reset()
}

// Tracker maintains per-outcome timestamp windows.
type Tracker struct {
	mu    sync.Mutex
	now   func() time.Time
	times [3][]time.Time
}

// NewTracker returns a tracker reading time from now, or time.Now when nil.
func NewTracker(now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{now: now}
}

// Record appends one outcome at the current time.
func (t *Tracker) Record(o Outcome) {
	t.RecordN(o, 1)
}

// RecordN appends n outcomes at the current time.
func (t *Tracker) RecordN(o Outcome, n int) {
	if o < Rendered || o > Denied || n <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	for i := 0; i < n; i++ {
		t.times[o] = append(t.times[o], now)
	}
	t.pruneLocked(now)
}

// Count returns the number of o outcomes within the window.
func (t *Tracker) Count(o Outcome, window time.Duration) int {
	if o < Rendered || o > Denied {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return countSince(t.times[o], t.now().Add(-window))
}

// RequestCount returns the number of outcomes of any kind within the window.
func (t *Tracker) RequestCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	n := 0
	for _, ts := range t.times {
		n += countSince(ts, cutoff)
	}
	return n
}

// ErrorRate returns (errored, rendered+errored) within the window. Denials are excluded.
func (t *Tracker) ErrorRate(window time.Duration) (errors, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	errors = countSince(t.times[Errored], cutoff)
	return errors, errors + countSince(t.times[Rendered], cutoff)
}

// Reset clears all recorded outcomes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.times = [3][]time.Time{}
}

func countSince(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// pruneLocked drops timestamps older than retention. Must be called with mu held.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-retention)
	for k := range t.times {
		times := t.times[k]
		i := 0
		for ; i < len(times) && times[i].Before(cutoff); i++ {
		}
		if i > 0 {
			t.times[k] = append(times[:0], times[i:]...)
		}
	}
}
