// Package window tracks which contiguous slice of a timeline is materialized
// for rendering.
package window

import "github.com/tOgg1/roomview/internal/models"

// DefaultMaxEvents is the soft cap on materialized events.
const DefaultMaxEvents = 50

// EventWindow is the index range [from, from+length) over an ordered
// timeline. Every mutation takes the current timeline length and clamps, so
// after any call 0 <= From(), End() <= timelineLength and Len() <= MaxEvents().
type EventWindow struct {
	from      int
	length    int
	maxEvents int
}

// New creates an empty window capped at maxEvents materialized events.
func New(maxEvents int) *EventWindow {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}
	return &EventWindow{maxEvents: maxEvents}
}

// From returns the first materialized index.
func (w *EventWindow) From() int { return w.from }

// Len returns the number of materialized indices.
func (w *EventWindow) Len() int { return w.length }

// End returns one past the last materialized index.
func (w *EventWindow) End() int { return w.from + w.length }

// MaxEvents returns the current cap.
func (w *EventWindow) MaxEvents() int { return w.maxEvents }

// SetMaxEvents changes the cap. The current range is left alone; the next
// mutation clamps to the new cap.
func (w *EventWindow) SetMaxEvents(n int) {
	if n <= 0 {
		n = DefaultMaxEvents
	}
	w.maxEvents = n
}

// Contains reports whether index is materialized.
func (w *EventWindow) Contains(index int) bool {
	return index >= w.from && index < w.End()
}

// ReachesEnd reports whether the window covers the newest event.
func (w *EventWindow) ReachesEnd(timelineLength int) bool {
	return w.End() >= timelineLength
}

// SetFrom moves the window start to index, clamped to
// [0, max(0, timelineLength-maxEvents)], and materializes as many events as
// the cap allows from there.
func (w *EventWindow) SetFrom(index, timelineLength int) {
	if timelineLength < 0 {
		timelineLength = 0
	}
	upper := timelineLength - w.maxEvents
	if upper < 0 {
		upper = 0
	}
	w.from = clampInt(index, 0, upper)
	w.length = minInt(w.maxEvents, timelineLength-w.from)
	w.clamp(timelineLength)
}

// Paginate slides the window by pageSize in direction. Growing backward lets
// the forward edge recede once the cap is reached and vice versa. Calls at a
// timeline boundary are no-ops. A step is at most maxEvents long, so the new
// window always touches the old one.
func (w *EventWindow) Paginate(direction models.Direction, pageSize, timelineLength int) {
	pageSize = clampInt(pageSize, 0, w.maxEvents)
	if timelineLength < 0 {
		timelineLength = 0
	}
	w.clamp(timelineLength)

	switch direction {
	case models.Backward:
		end := w.End()
		start := w.from - pageSize
		if start < 0 {
			start = 0
		}
		w.from = start
		w.length = minInt(end-start, w.maxEvents)
	default:
		end := w.End() + pageSize
		if end > timelineLength {
			end = timelineLength
		}
		w.length = minInt(end-w.from, w.maxEvents)
		w.from = end - w.length
	}
	w.clamp(timelineLength)
}

// Shift moves the window by n positions after n events were inserted before
// it, so it keeps covering the same logical events. Negative n handles
// removals before the window.
func (w *EventWindow) Shift(n, timelineLength int) {
	w.from += n
	w.clamp(timelineLength)
}

// Clamp re-establishes the invariants after the timeline shrank or the cap
// changed.
func (w *EventWindow) Clamp(timelineLength int) {
	w.clamp(timelineLength)
}

// Reset empties the window.
func (w *EventWindow) Reset() {
	w.from = 0
	w.length = 0
}

func (w *EventWindow) clamp(timelineLength int) {
	if timelineLength < 0 {
		timelineLength = 0
	}
	if w.from > timelineLength {
		w.from = timelineLength
	}
	if w.from < 0 {
		w.from = 0
	}
	if w.length > w.maxEvents {
		w.length = w.maxEvents
	}
	if w.from+w.length > timelineLength {
		w.length = timelineLength - w.from
	}
	if w.length < 0 {
		w.length = 0
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
