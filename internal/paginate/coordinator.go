// Package paginate decides, per scroll or arrival tick, whether a timeline
// window grows from events already in memory or needs a server fetch.
package paginate

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/tOgg1/roomview/internal/logging"
	"github.com/tOgg1/roomview/internal/models"
	"github.com/tOgg1/roomview/internal/window"
)

const (
	// DefaultPlaceholderCount is the number of loading rows shown at a
	// paginatable edge.
	DefaultPlaceholderCount = 2
	// DefaultPlaceholderHeight is the rendered height of one loading row.
	DefaultPlaceholderHeight = 96
	// DefaultTriggerPos is how close to an edge the viewport must be for a
	// tick to paginate: half the placeholder block.
	DefaultTriggerPos = DefaultPlaceholderHeight * DefaultPlaceholderCount / 2
	// DefaultPageLimit is the number of events requested or revealed per step.
	DefaultPageLimit = 30
)

// Pager is the part of a timeline source the coordinator needs.
type Pager interface {
	Len() int
	CanPaginate(direction models.Direction) bool
	// Paginate fetches up to limit more events in direction and returns how
	// many were added to the timeline.
	Paginate(ctx context.Context, direction models.Direction, limit int) (int, error)
}

// Config contains the coordinator thresholds.
type Config struct {
	// TriggerPos is the edge distance under which a tick paginates.
	TriggerPos float64

	// PageLimit is the page size for memory and server pagination.
	PageLimit int
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		TriggerPos: DefaultTriggerPos,
		PageLimit:  DefaultPageLimit,
	}
}

// Result is the outcome of one server pagination request.
type Result struct {
	Direction  models.Direction
	Count      int
	Err        error
	Generation uint64
}

// OK reports whether the request succeeded.
func (r Result) OK() bool { return r.Err == nil }

// TickInput is the state one tick decides on.
type TickInput struct {
	Window     *window.EventWindow
	Top        float64
	Bottom     float64
	Pager      Pager
	Generation uint64
}

// Outcome reports what a tick did.
type Outcome struct {
	// Grew lists directions the window grew in from memory.
	Grew []models.Direction
	// Requested lists directions a server request was issued for.
	Requested []models.Direction
}

// Changed reports whether the window was mutated.
func (o Outcome) Changed() bool { return len(o.Grew) > 0 }

// Coordinator serializes server pagination to at most one in-flight request
// per direction. A trigger while a request is pending is dropped, not queued.
type Coordinator struct {
	mu  sync.Mutex
	cfg Config

	guards   [2]*semaphore.Weighted
	inflight [2]atomic.Bool
	wg       sync.WaitGroup

	onResult  func(Result)
	onSettled func(Result)

	logger zerolog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the coordinator logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithSettled registers a hook run after a request's guard is released.
func WithSettled(fn func(Result)) Option {
	return func(c *Coordinator) {
		c.onSettled = fn
	}
}

// New creates a coordinator. onResult runs on the request goroutine while the
// direction's guard is still held.
func New(cfg Config, onResult func(Result), opts ...Option) *Coordinator {
	if cfg.TriggerPos <= 0 {
		cfg.TriggerPos = DefaultTriggerPos
	}
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = DefaultPageLimit
	}
	c := &Coordinator{
		cfg:      cfg,
		guards:   [2]*semaphore.Weighted{semaphore.NewWeighted(1), semaphore.NewWeighted(1)},
		onResult: onResult,
		logger:   logging.Component("paginate"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PageLimit returns the current page size.
func (c *Coordinator) PageLimit() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.PageLimit
}

// SetPageLimit changes the page size used by later ticks.
func (c *Coordinator) SetPageLimit(n int) {
	if n <= 0 {
		return
	}
	c.mu.Lock()
	c.cfg.PageLimit = n
	c.mu.Unlock()
}

// TriggerPos returns the edge distance threshold.
func (c *Coordinator) TriggerPos() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.TriggerPos
}

// InFlight reports whether a server request is pending for direction.
func (c *Coordinator) InFlight(direction models.Direction) bool {
	return c.inflight[direction].Load()
}

// Tick grows the window from memory near an edge, or requests more events
// from the server when memory is exhausted. The caller must own in.Window for
// the duration of the call.
func (c *Coordinator) Tick(ctx context.Context, in TickInput) Outcome {
	var out Outcome
	if in.Window == nil || in.Pager == nil {
		return out
	}
	c.mu.Lock()
	cfg := c.cfg
	c.mu.Unlock()

	tl := in.Pager.Len()

	if in.Bottom < cfg.TriggerPos {
		if in.Window.End() < tl {
			in.Window.Paginate(models.Forward, cfg.PageLimit, tl)
			out.Grew = append(out.Grew, models.Forward)
		} else if in.Pager.CanPaginate(models.Forward) && c.request(ctx, models.Forward, cfg.PageLimit, in) {
			out.Requested = append(out.Requested, models.Forward)
		}
	}

	if in.Top < cfg.TriggerPos || tl < 1 {
		if in.Window.From() > 0 {
			in.Window.Paginate(models.Backward, cfg.PageLimit, tl)
			out.Grew = append(out.Grew, models.Backward)
		} else if in.Pager.CanPaginate(models.Backward) && c.request(ctx, models.Backward, cfg.PageLimit, in) {
			out.Requested = append(out.Requested, models.Backward)
		}
	}

	return out
}

// Wait blocks until every issued request has settled.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func (c *Coordinator) request(ctx context.Context, direction models.Direction, limit int, in TickInput) bool {
	guard := c.guards[direction]
	if !guard.TryAcquire(1) {
		c.logger.Debug().Stringer("direction", direction).Msg("pagination already in flight")
		return false
	}
	c.inflight[direction].Store(true)

	c.logger.Debug().
		Stringer("direction", direction).
		Int("limit", limit).
		Int("timeline_length", in.Pager.Len()).
		Msg("requesting server pagination")

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		n, err := in.Pager.Paginate(ctx, direction, limit)
		res := Result{Direction: direction, Count: n, Err: err, Generation: in.Generation}
		if err != nil {
			res.Count = 0
			c.logger.Warn().Err(err).Stringer("direction", direction).Msg("server pagination failed")
		}
		if c.onResult != nil {
			c.onResult(res)
		}
		c.inflight[direction].Store(false)
		guard.Release(1)
		if c.onSettled != nil {
			c.onSettled(res)
		}
	}()
	return true
}
