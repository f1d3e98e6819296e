package tui

import (
	"math"
	"sync"

	"github.com/tOgg1/roomview/internal/config"
	"github.com/tOgg1/roomview/internal/scroll"
)

// Viewport is the scroll container of the terminal view, one frame row per
// line. Controllers call it from their own goroutines, so it carries its own
// lock.
type Viewport struct {
	mu     sync.Mutex
	keys   []string
	index  map[string]int
	top    int
	height int
}

var _ scroll.Host = (*Viewport)(nil)

// SetRows replaces the rendered row keys, keeping the scroll offset.
func (v *Viewport) SetRows(keys []string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.keys = append(v.keys[:0], keys...)
	v.index = make(map[string]int, len(keys))
	for i, k := range keys {
		v.index[k] = i
	}
	v.clampLocked()
}

// SetHeight sets the number of visible lines.
func (v *Viewport) SetHeight(h int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if h < 0 {
		h = 0
	}
	v.height = h
	v.clampLocked()
}

// Range returns the visible line range [start, end).
func (v *Viewport) Range() (start, end int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	end = v.top + v.height
	if end > len(v.keys) {
		end = len(v.keys)
	}
	return v.top, end
}

func (v *Viewport) Metrics() (scroll.Metrics, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.height == 0 {
		return scroll.Metrics{}, false
	}
	return scroll.Metrics{
		ScrollTop:    float64(v.top),
		ScrollHeight: float64(len(v.keys)),
		ClientHeight: float64(v.height),
	}, true
}

func (v *Viewport) ScrollBy(delta float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.top += int(delta)
	v.clampLocked()
}

func (v *Viewport) ScrollToBottom() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.top = len(v.keys) - v.height
	v.clampLocked()
}

func (v *Viewport) ElementOffset(ref string) (float64, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	i, ok := v.index[ref]
	return float64(i), ok
}

func (v *Viewport) clampLocked() {
	if maxTop := len(v.keys) - v.height; v.top > maxTop {
		v.top = maxTop
	}
	if v.top < 0 {
		v.top = 0
	}
}

// LineThresholds converts pixel tuned thresholds to terminal lines, where
// every row is one line tall.
func LineThresholds(cfg config.TimelineConfig) config.TimelineConfig {
	px := cfg.ApproxItemHeight
	if px <= 0 {
		px = 1
	}
	cfg.ScrollTriggerPos = math.Max(1, math.Ceil(cfg.ScrollTriggerPos/px))
	cfg.PinnedThreshold = math.Max(1, math.Ceil(cfg.PinnedThreshold/px))
	cfg.ApproxItemHeight = 1
	return cfg
}
