// Package timeline decides which slice of a room or thread timeline a view
// renders, and keeps that slice scroll-anchored while it pages through
// history and follows live arrivals.
package timeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/id"

	"github.com/tOgg1/roomview/internal/config"
	"github.com/tOgg1/roomview/internal/events"
	"github.com/tOgg1/roomview/internal/logging"
	"github.com/tOgg1/roomview/internal/models"
	"github.com/tOgg1/roomview/internal/paginate"
	"github.com/tOgg1/roomview/internal/scroll"
	"github.com/tOgg1/roomview/internal/window"
)

// State is the controller lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
	StateTornDown
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateTornDown:
		return "torn_down"
	default:
		return "unknown"
	}
}

// Options configures a Controller.
type Options struct {
	RoomID   id.RoomID
	ThreadID id.EventID
	// UserID is the viewing user; their own messages are marked read on
	// arrival and are the candidates for edit-last-message.
	UserID id.UserID

	Timeline config.TimelineConfig

	// Guest hides loading placeholders.
	Guest bool

	// Bus receives view notifications. Optional.
	Bus events.Publisher

	// Hidden starts the controller as not visible.
	Hidden bool
}

// Controller owns the window and scroll anchor of one open room or thread
// view. All methods are safe for concurrent use; source callbacks and
// pagination results may arrive on any goroutine.
type Controller struct {
	mu sync.Mutex

	roomID   id.RoomID
	threadID id.EventID
	userID   id.UserID
	guest    bool
	cfg      config.TimelineConfig

	source   Source
	receipts Receipts
	bus      events.Publisher

	window *window.EventWindow
	anchor *scroll.Anchor
	coord  *paginate.Coordinator

	ctx    context.Context
	cancel context.CancelFunc

	state       State
	generation  uint64
	unsubscribe func()

	target     id.EventID
	focusID    id.EventID
	readMarker *models.TimelineEvent
	divider    int
	editing    id.EventID
	lastMarked id.EventID
	visible    bool
	// base is the first windowed event when the lock was last released.
	// The source may prepend or remove events without holding mu, so the
	// window is re-anchored on it whenever the lock is taken.
	base id.EventID

	pendingJump    bool
	pendingArrival bool
	pendingTick    bool
	scrollTimer    *time.Timer

	effects []func()
	logger  zerolog.Logger
}

// New creates a controller for one view. host is the rendering surface
// adapter; receipts may be nil for read-only views.
func New(source Source, host scroll.Host, receipts Receipts, opts Options) (*Controller, error) {
	if source == nil {
		return nil, ErrNoSource
	}
	cfg := opts.Timeline
	if err := cfg.Validate(); err != nil {
		cfg = config.DefaultTimelineConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		roomID:   opts.RoomID,
		threadID: opts.ThreadID,
		userID:   opts.UserID,
		guest:    opts.Guest,
		cfg:      cfg,
		source:   source,
		receipts: receipts,
		bus:      opts.Bus,
		window:   window.New(cfg.MaxEvents),
		anchor:   scroll.NewAnchor(host, cfg.PinnedThreshold),
		ctx:      ctx,
		cancel:   cancel,
		divider:  -1,
		visible:  !opts.Hidden,
		logger:   logging.WithRoom("timeline", opts.RoomID, opts.ThreadID),
	}
	c.coord = paginate.New(
		paginate.Config{TriggerPos: cfg.ScrollTriggerPos, PageLimit: cfg.PageLimit},
		c.handlePaginated,
		paginate.WithLogger(c.logger),
		paginate.WithSettled(c.handleSettled),
	)
	return c, nil
}

// State returns the lifecycle state.
func (c *Controller) State() State {
	c.lock()
	defer c.mu.Unlock()
	return c.state
}

// Window returns the current [from, end) range.
func (c *Controller) Window() (from, end int) {
	c.lock()
	defer c.mu.Unlock()
	return c.window.From(), c.window.End()
}

// Events returns the materialized events.
func (c *Controller) Events() []*models.TimelineEvent {
	c.lock()
	defer c.mu.Unlock()
	out := make([]*models.TimelineEvent, 0, c.window.Len())
	for i := c.window.From(); i < c.window.End(); i++ {
		if ev := c.source.EventAt(i); ev != nil {
			out = append(out, ev)
		}
	}
	return out
}

// InFlight reports whether a server pagination is pending in direction.
func (c *Controller) InFlight(direction models.Direction) bool {
	return c.coord.InFlight(direction)
}

// Wait blocks until all issued server paginations have settled.
func (c *Controller) Wait() {
	c.coord.Wait()
}

// Open loads the timeline around target, or the live timeline when target
// is empty or cannot be loaded, and focuses the window once it is ready.
func (c *Controller) Open(ctx context.Context, target id.EventID) error {
	c.lock()
	if c.state == StateTornDown {
		c.unlock()
		return ErrClosed
	}
	c.state = StateLoading
	c.generation++
	gen := c.generation
	c.target = target
	if c.unsubscribe == nil {
		c.unsubscribe = c.source.Subscribe(Listener{
			OnReady:    c.handleReady,
			OnEvent:    c.handleEvent,
			OnRedacted: c.handleRedacted,
		})
	}
	c.unlock()

	c.logger.Debug().Str("target", target.String()).Msg("opening timeline")

	loaded := false
	if target != "" {
		ok, err := c.source.LoadEventTimeline(ctx, target)
		loaded = ok && err == nil
		if !loaded {
			loadErr := &LoadError{EventID: target, Err: err}
			c.logger.Warn().Err(loadErr).Msg("falling back to live timeline")
			c.lock()
			c.publishLocked(models.ViewEvent{Type: models.ViewEventTimelineFailed, EventID: target, Err: loadErr})
			c.unlock()
		}
	}
	if !loaded {
		if err := c.source.LoadLiveTimeline(ctx); err != nil {
			return fmt.Errorf("load live timeline: %w", err)
		}
	}

	c.lock()
	defer c.unlock()
	switch {
	case c.state == StateTornDown:
		return ErrClosed
	case c.generation != gen:
		return ErrSuperseded
	case c.state == StateLoading:
		// the source did not signal readiness itself
		c.initLocked()
	}
	return nil
}

// Close tears the view down. Responses arriving afterwards are dropped.
func (c *Controller) Close() {
	c.lock()
	if c.state == StateTornDown {
		c.unlock()
		return
	}
	c.state = StateTornDown
	c.generation++
	c.cancel()
	if c.scrollTimer != nil {
		c.scrollTimer.Stop()
		c.scrollTimer = nil
	}
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.anchor.Detach()
	c.window.Reset()
	c.readMarker = nil
	c.unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	c.logger.Debug().Msg("timeline closed")
}

// ApplyConfig applies new thresholds to the open view.
func (c *Controller) ApplyConfig(cfg config.TimelineConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.lock()
	defer c.unlock()
	c.cfg.MaxEvents = cfg.MaxEvents
	c.cfg.PageLimit = cfg.PageLimit
	c.cfg.PinnedThreshold = cfg.PinnedThreshold
	c.cfg.ScrollThrottle = cfg.ScrollThrottle
	c.cfg.ApproxItemHeight = cfg.ApproxItemHeight
	c.cfg.PlaceholderCount = cfg.PlaceholderCount
	c.cfg.GroupWindow = cfg.GroupWindow
	c.window.SetMaxEvents(cfg.MaxEvents)
	c.coord.SetPageLimit(cfg.PageLimit)
	c.logger.Debug().Int("max_events", cfg.MaxEvents).Int("page_limit", cfg.PageLimit).Msg("timeline config applied")
	return nil
}

func (c *Controller) handleReady() {
	c.lock()
	defer c.unlock()
	if c.state != StateLoading && c.state != StateReady {
		return
	}
	c.initLocked()
}

// initLocked places the window: centered on a requested event, else on the
// first unread event, else at the live tail.
func (c *Controller) initLocked() {
	tl := c.source.Len()
	readUpTo := c.source.ReadUpToEventID()
	specific := c.target != "" && c.target != readUpTo

	focus := -1
	if specific {
		focus = c.source.IndexOf(c.target)
	}
	if c.readMarker == nil && readUpTo != "" {
		if idx := c.source.IndexOf(readUpTo); idx >= 0 {
			c.readMarker = c.source.EventAt(idx)
		}
	}
	if c.readMarker != nil && !specific {
		focus = c.unreadIndexLocked()
	}

	if focus > -1 {
		c.window.SetFrom(focus-(c.window.MaxEvents()+1)/2, tl)
	} else {
		c.window.SetFrom(tl-c.window.MaxEvents(), tl)
	}
	c.focusID = ""
	if specific && focus > -1 {
		c.focusID = c.target
	}

	c.state = StateReady
	c.pendingJump = true
	c.recomputeLocked()

	c.logger.Debug().
		Int("timeline_length", tl).
		Int("from", c.window.From()).
		Int("length", c.window.Len()).
		Msg("timeline ready")
	c.publishLocked(models.ViewEvent{Type: models.ViewEventTimelineReady, EventID: c.focusID})
	c.publishLocked(models.ViewEvent{Type: models.ViewEventWindowChanged})
}

// unreadIndexLocked returns the index of the first event after the read
// marker, or -1 when everything is read or the marker is not loaded.
func (c *Controller) unreadIndexLocked() int {
	idx := c.source.IndexOf(c.readMarker.ID)
	if idx < 0 || idx+1 >= c.source.Len() {
		return -1
	}
	return idx + 1
}

func (c *Controller) handleEvent(ev *models.TimelineEvent) {
	if ev == nil {
		return
	}
	c.lock()
	defer c.unlock()
	if c.state != StateReady {
		return
	}

	tl := c.source.Len()
	viewingLive := c.source.IsServingLiveTimeline() && c.window.End() >= tl-1
	attached := c.anchor.Bottom() < c.coord.TriggerPos()

	if viewingLive && attached && c.visible {
		c.window.SetFrom(tl-c.window.MaxEvents(), tl)
		c.trySendReadReceiptLocked(ev)
		c.pendingArrival = true
		c.recomputeLocked()
		c.publishLocked(models.ViewEvent{Type: models.ViewEventWindowChanged})
		return
	}

	if ev.IsRelation() || viewingLive {
		// relations change existing rows; live arrivals move the bottom placeholders
		c.pendingArrival = true
		c.recomputeLocked()
		c.publishLocked(models.ViewEvent{Type: models.ViewEventWindowChanged})
	}
}

func (c *Controller) trySendReadReceiptLocked(ev *models.TimelineEvent) {
	if ev.Sender == c.userID {
		c.markAsReadLocked()
		return
	}

	readUpTo := c.source.ReadUpToEventID()
	if c.readMarker != nil && c.readMarker.ID != readUpTo {
		// read elsewhere since the view opened
		if c.visible && c.pinnedLocked() {
			c.markAsReadLocked()
		} else if idx := c.source.IndexOf(readUpTo); idx >= 0 {
			c.readMarker = c.source.EventAt(idx)
		}
		return
	}

	tl := c.source.Len()
	if readUpTo == "" || (tl >= 2 && c.source.EventAt(tl-2).ID == readUpTo) {
		c.markAsReadLocked()
	}
}

func (c *Controller) handleRedacted(ev *models.TimelineEvent, index int) {
	c.lock()
	defer c.unlock()
	if c.state != StateReady {
		return
	}

	// removals before the window were absorbed by lock; a removed first
	// row leaves from on its successor
	c.window.Clamp(c.source.Len())
	c.logger.Debug().Int("index", index).Int("from", c.window.From()).Msg("event redacted")
	if ev != nil && ev.ID == c.focusID {
		c.focusID = ""
	}
	if ev != nil && ev.ID == c.editing {
		c.editing = ""
	}
	c.captureLocked(c.window.From())
	c.recomputeLocked()
	c.publishLocked(models.ViewEvent{Type: models.ViewEventWindowChanged})
}

// handlePaginated applies a server page while the direction guard is held.
func (c *Controller) handlePaginated(res paginate.Result) {
	c.lock()
	defer c.unlock()
	if c.state != StateReady || res.Generation != c.generation {
		c.logger.Debug().Stringer("direction", res.Direction).Msg("dropping stale pagination result")
		return
	}
	if !res.OK() || res.Count == 0 {
		return
	}

	if c.readMarker == nil {
		if readUpTo := c.source.ReadUpToEventID(); readUpTo != "" {
			if idx := c.source.IndexOf(readUpTo); idx >= 0 {
				c.readMarker = c.source.EventAt(idx)
			}
		}
	}

	tl := c.source.Len()
	pageLimit := c.coord.PageLimit()
	if res.Direction == models.Backward {
		if c.window.Len() == 0 {
			// nothing to re-anchor on; the page landed in front of from
			c.window.Shift(res.Count, tl)
		}
		c.captureLocked(c.window.From())
		c.window.Paginate(models.Backward, pageLimit, tl)
	} else {
		c.captureLocked(c.window.End() - 1)
		c.window.Paginate(models.Forward, pageLimit, tl)
	}
	c.pendingTick = true
	c.recomputeLocked()

	c.logger.Debug().
		Stringer("direction", res.Direction).
		Int("loaded", res.Count).
		Int("from", c.window.From()).
		Int("length", c.window.Len()).
		Msg("server page applied")
	c.publishLocked(models.ViewEvent{Type: models.ViewEventWindowChanged, Direction: res.Direction})
}

// handleSettled reports failures once the guard is free, so a retry from
// the notification handler can issue a new request.
func (c *Controller) handleSettled(res paginate.Result) {
	if res.OK() {
		return
	}
	c.lock()
	defer c.unlock()
	if c.state != StateReady || res.Generation != c.generation {
		return
	}
	c.publishLocked(models.ViewEvent{Type: models.ViewEventPaginationFailed, Direction: res.Direction, Err: res.Err})
}

// Rendered must be called by the view after it drew a frame reflecting the
// latest window. It restores or moves the scroll position and re-checks
// pagination.
func (c *Controller) Rendered() {
	c.lock()
	defer c.unlock()
	if c.state != StateReady {
		return
	}

	switch {
	case c.pendingJump:
		c.pendingJump = false
		c.pendingArrival = false
		if jump := c.frameLocked().JumpToIndex; jump < 0 {
			c.anchor.ScrollToBottom()
		} else {
			c.anchor.ScrollToIndex(jump, c.cfg.ApproxItemHeight)
		}
		if c.visible && c.atBottomLocked() {
			readUpTo := c.source.ReadUpToEventID()
			if readUpTo == "" || (c.readMarker != nil && c.readMarker.ID == readUpTo) {
				c.markAsReadLocked()
			}
		}
		c.pendingTick = true
	case c.pendingArrival:
		c.pendingArrival = false
		if c.pinnedLocked() && !c.source.CanPaginate(models.Forward) && c.visible {
			c.anchor.ScrollToBottom()
		} else {
			c.anchor.TryRestoringScroll()
		}
	default:
		c.anchor.TryRestoringScroll()
	}

	if c.pendingTick {
		c.pendingTick = false
		c.tickLocked()
	}
}

func (c *Controller) pinnedLocked() bool {
	return c.anchor.Bottom() < c.cfg.PinnedThreshold
}

// tickLocked runs one pagination decision with the last measured metrics.
func (c *Controller) tickLocked() {
	oldFrom, oldEnd := c.window.From(), c.window.End()
	top, bottom := c.anchor.Snapshot()

	out := c.coord.Tick(c.ctx, paginate.TickInput{
		Window:     c.window,
		Top:        top,
		Bottom:     bottom,
		Pager:      c.source,
		Generation: c.generation,
	})
	if !out.Changed() {
		return
	}

	ref := oldEnd - 1
	for _, d := range out.Grew {
		if d == models.Backward {
			ref = oldFrom
		}
	}
	c.captureLocked(ref)
	c.recomputeLocked()
	c.publishLocked(models.ViewEvent{Type: models.ViewEventWindowChanged})
}

// captureLocked records the on-screen position of the event at index
// before the view re-renders.
func (c *Controller) captureLocked(index int) {
	ev := c.source.EventAt(index)
	if ev == nil {
		return
	}
	c.anchor.CaptureBeforeMutation(ev.ID.String())
}

// recomputeLocked refreshes derived view state after a window change.
func (c *Controller) recomputeLocked() {
	c.divider = c.dividerIndexLocked()
}

// dividerIndexLocked finds the first windowed event newer than the read
// marker whose predecessor is not newer. -1 when there is none.
func (c *Controller) dividerIndexLocked() int {
	if c.readMarker == nil {
		return -1
	}
	marker := c.readMarker.Timestamp
	for i := c.window.From(); i < c.window.End(); i++ {
		if i == 0 {
			continue
		}
		ev, prev := c.source.EventAt(i), c.source.EventAt(i-1)
		if ev == nil || prev == nil || ev.IsRelation() {
			continue
		}
		if !prev.Timestamp.After(marker) && marker.Before(ev.Timestamp) {
			return i
		}
	}
	return -1
}

func (c *Controller) markAsReadLocked() {
	if c.receipts == nil {
		return
	}
	tl := c.source.Len()
	if tl == 0 {
		return
	}
	newest := c.source.EventAt(tl - 1)
	if newest == nil || newest.ID == c.lastMarked {
		return
	}
	c.lastMarked = newest.ID

	ctx, roomID, threadID := c.ctx, c.roomID, c.threadID
	c.effects = append(c.effects, func() {
		if err := c.receipts.MarkAsRead(ctx, roomID, threadID); err != nil {
			if !errors.Is(err, context.Canceled) {
				c.logger.Warn().Err(err).Msg("failed to mark as read")
			}
			c.lock()
			if c.lastMarked == newest.ID {
				// let the next trigger send it again
				c.lastMarked = ""
			}
			c.unlock()
			return
		}
		c.publish(models.ViewEvent{Type: models.ViewEventReadMarked, EventID: newest.ID})
	})
}

func (c *Controller) publishLocked(ev models.ViewEvent) {
	if c.bus == nil {
		return
	}
	c.effects = append(c.effects, func() { c.publish(ev) })
}

func (c *Controller) publish(ev models.ViewEvent) {
	if c.bus == nil {
		return
	}
	ev.RoomID = c.roomID
	ev.ThreadID = c.threadID
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	c.bus.Publish(ev)
}

// lock takes mu and moves the window back onto the events it covered when
// the lock was last released.
func (c *Controller) lock() {
	c.mu.Lock()
	c.syncLocked()
}

func (c *Controller) syncLocked() {
	if c.state != StateReady || c.base == "" {
		return
	}
	from := c.window.From()
	if ev := c.source.EventAt(from); ev != nil && ev.ID == c.base {
		return
	}
	idx := c.source.IndexOf(c.base)
	if idx < 0 {
		return
	}
	c.window.Shift(idx-from, c.source.Len())
}

func (c *Controller) recordLocked() {
	c.base = ""
	if c.state != StateReady || c.window.Len() == 0 {
		return
	}
	if ev := c.source.EventAt(c.window.From()); ev != nil {
		c.base = ev.ID
	}
}

// unlock releases the lock, then runs the side effects queued while it was
// held so subscribers may call back into the controller.
func (c *Controller) unlock() {
	c.recordLocked()
	effects := c.effects
	c.effects = nil
	c.mu.Unlock()
	for _, fn := range effects {
		fn()
	}
}
