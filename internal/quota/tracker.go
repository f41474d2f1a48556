// Package quota admits or denies requests per category using sliding
// windows over trailing time spans.
package quota

import (
	"sync"
	"time"
)

// Window is one (limit, span) pair. A category may carry several, e.g. a
// per-minute and a per-hour ceiling; all must hold for admission.
type Window struct {
	Limit int
	Span  time.Duration
}

// Tracker counts admitted requests per category. All checks are
// read-check-increment under one lock so two concurrent requests cannot
// both slip past the same limit.
type Tracker struct {
	mu       sync.Mutex
	windows  map[string][]Window
	admitted map[string][]time.Time
	failOpen bool
}

// NewTracker builds a tracker. failOpen controls the policy for categories
// with no configured windows: true admits them unlimited, false denies them.
// Fail-open is the default so an operation accidentally missing from
// configuration does not become unusable.
func NewTracker(windows map[string][]Window, failOpen bool) *Tracker {
	cfg := make(map[string][]Window, len(windows))
	for category, list := range windows {
		kept := make([]Window, 0, len(list))
		for _, w := range list {
			if w.Limit > 0 && w.Span > 0 {
				kept = append(kept, w)
			}
		}
		if len(kept) > 0 {
			cfg[category] = kept
		}
	}
	return &Tracker{
		windows:  cfg,
		admitted: make(map[string][]time.Time),
		failOpen: failOpen,
	}
}

// Admit decides whether a request in category may proceed at now. On
// admission the request is recorded against future checks; a denial records
// nothing. The returned retry hint is zero on admission.
func (t *Tracker) Admit(category string, now time.Time) (bool, time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	windows, configured := t.windows[category]
	if !configured {
		if t.failOpen {
			return true, 0
		}
		return false, 0
	}

	times := t.purgeLocked(category, now)

	var retry time.Duration
	for _, w := range windows {
		cutoff := now.Add(-w.Span)
		count := 0
		var oldest time.Time
		for _, ts := range times {
			if ts.After(cutoff) {
				if count == 0 {
					oldest = ts
				}
				count++
			}
		}
		// Exactly at the limit is a denial: the limit is an inclusive
		// ceiling on the count, exclusive on the boundary request.
		if count >= w.Limit {
			if wait := oldest.Add(w.Span).Sub(now); retry == 0 || wait < retry {
				retry = wait
			}
		}
	}
	if retry > 0 {
		return false, retry
	}

	t.admitted[category] = append(times, now)
	return true, 0
}

// purgeLocked lazily drops entries older than the category's longest window.
func (t *Tracker) purgeLocked(category string, now time.Time) []time.Time {
	var longest time.Duration
	for _, w := range t.windows[category] {
		if w.Span > longest {
			longest = w.Span
		}
	}
	cutoff := now.Add(-longest)
	times := t.admitted[category]
	idx := 0
	for idx < len(times) && !times[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		times = append([]time.Time(nil), times[idx:]...)
		t.admitted[category] = times
	}
	return times
}
