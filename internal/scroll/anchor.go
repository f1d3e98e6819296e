// Package scroll keeps the perceived scroll position stable while the
// rendered timeline window changes size.
package scroll

import "sync"

// Metrics are the scroll container measurements of one frame, in pixels (or
// terminal rows; the unit only has to be consistent).
type Metrics struct {
	ScrollTop    float64
	ScrollHeight float64
	ClientHeight float64
}

// Top is the distance from the viewport top to the content top.
func (m Metrics) Top() float64 { return m.ScrollTop }

// Bottom is the distance from the viewport bottom to the content bottom.
func (m Metrics) Bottom() float64 {
	b := m.ScrollHeight - m.ScrollTop - m.ClientHeight
	if b < 0 {
		return 0
	}
	return b
}

// Host is the rendering surface. It is implemented by the view adapter; the
// anchor never touches a surface any other way. A false ok result means the
// surface is gone.
type Host interface {
	Metrics() (Metrics, bool)
	ScrollBy(delta float64)
	ScrollToBottom()
	// ElementOffset returns the offset of the rendered element for ref from
	// the top of the content.
	ElementOffset(ref string) (float64, bool)
}

// DefaultPinnedThreshold is the bottom distance under which the viewport is
// considered pinned to the live tail.
const DefaultPinnedThreshold = 16

// Anchor captures an element position before a window mutation and restores
// it afterwards. All methods are no-ops once the host is detached or gone.
type Anchor struct {
	mu sync.Mutex

	host            Host
	pinnedThreshold float64

	top       float64
	bottom    float64
	scrollTop float64
	measured  bool

	ref      string
	refPos   float64
	captured bool
}

// NewAnchor creates an anchor over host.
func NewAnchor(host Host, pinnedThreshold float64) *Anchor {
	if pinnedThreshold <= 0 {
		pinnedThreshold = DefaultPinnedThreshold
	}
	return &Anchor{host: host, pinnedThreshold: pinnedThreshold}
}

// Top returns the last measured distance to the content top.
func (a *Anchor) Top() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.top
}

// Bottom returns the last measured distance to the content bottom.
func (a *Anchor) Bottom() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bottom
}

// Pinned reports whether the last measurement was at the live tail.
func (a *Anchor) Pinned() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.measured && a.bottom < a.pinnedThreshold
}

// Snapshot returns the last measured metrics as top/bottom distances.
func (a *Anchor) Snapshot() (top, bottom float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.top, a.bottom
}

// CalcScroll re-measures the host. backward reports whether the user moved
// towards older content since the previous measurement.
func (a *Anchor) CalcScroll() (backward bool, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	m, ok := a.metricsLocked()
	if !ok {
		return false, false
	}
	backward = a.measured && m.ScrollTop < a.scrollTop
	a.storeLocked(m)
	return backward, true
}

// CaptureBeforeMutation records where the element for ref currently sits.
func (a *Anchor) CaptureBeforeMutation(ref string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.captured = false
	if a.host == nil || ref == "" {
		return
	}
	if m, ok := a.host.Metrics(); ok {
		a.storeLocked(m)
	}
	pos, ok := a.host.ElementOffset(ref)
	if !ok {
		return
	}
	a.ref = ref
	a.refPos = pos
	a.captured = true
}

// TryRestoringScroll scrolls by however far the captured element moved, so
// content inserted above it does not move it on screen.
func (a *Anchor) TryRestoringScroll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.captured || a.host == nil {
		return
	}
	a.captured = false
	pos, ok := a.host.ElementOffset(a.ref)
	if !ok {
		return
	}
	if delta := pos - a.refPos; delta != 0 {
		a.host.ScrollBy(delta)
	}
	if m, ok := a.host.Metrics(); ok {
		a.storeLocked(m)
	}
}

// ScrollToBottom pins the viewport to the newest rendered content.
func (a *Anchor) ScrollToBottom() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.host == nil {
		return
	}
	a.captured = false
	a.host.ScrollToBottom()
	if m, ok := a.host.Metrics(); ok {
		a.storeLocked(m)
	}
}

// ScrollToIndex scrolls so the rendered row at index is at the top, assuming
// rows are roughly approxItemHeight tall.
func (a *Anchor) ScrollToIndex(index int, approxItemHeight float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	m, ok := a.metricsLocked()
	if !ok || index < 0 {
		return
	}
	a.captured = false
	target := float64(index) * approxItemHeight
	if maxTop := m.ScrollHeight - m.ClientHeight; target > maxTop {
		target = maxTop
	}
	if target < 0 {
		target = 0
	}
	if delta := target - m.ScrollTop; delta != 0 {
		a.host.ScrollBy(delta)
	}
	if m, ok := a.host.Metrics(); ok {
		a.storeLocked(m)
	}
}

// Detach drops the host; every later call is a no-op.
func (a *Anchor) Detach() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.host = nil
	a.captured = false
}

func (a *Anchor) metricsLocked() (Metrics, bool) {
	if a.host == nil {
		return Metrics{}, false
	}
	return a.host.Metrics()
}

func (a *Anchor) storeLocked(m Metrics) {
	a.top = m.Top()
	a.bottom = m.Bottom()
	a.scrollTop = m.ScrollTop
	a.measured = true
}
