package timeline

import (
	"context"
	"fmt"
	"time"

	"maunium.net/go/mautrix/id"

	"github.com/tOgg1/roomview/internal/models"
)

// OnScroll reports that the view scrolled. Calls within the throttle
// interval collapse into one tick that reads the metrics current when it
// fires.
func (c *Controller) OnScroll() {
	c.lock()
	defer c.unlock()
	if c.state != StateReady {
		return
	}
	if c.cfg.ScrollThrottle <= 0 {
		c.handleScrollLocked()
		return
	}
	if c.scrollTimer != nil {
		return
	}
	gen := c.generation
	c.scrollTimer = time.AfterFunc(c.cfg.ScrollThrottle, func() {
		c.lock()
		defer c.unlock()
		c.scrollTimer = nil
		if c.state != StateReady || c.generation != gen {
			return
		}
		c.handleScrollLocked()
	})
}

func (c *Controller) handleScrollLocked() {
	if _, ok := c.anchor.CalcScroll(); !ok {
		return
	}

	atBottom := c.atBottomLocked()
	c.publishLocked(models.ViewEvent{Type: models.ViewEventAtBottom, AtBottom: atBottom})
	if atBottom && c.visible && c.hasUnreadLocked() {
		c.markAsReadLocked()
	}
	c.tickLocked()
}

// atBottomLocked reports whether the newest event is rendered and in view.
func (c *Controller) atBottomLocked() bool {
	return c.pinnedLocked() &&
		!c.source.CanPaginate(models.Forward) &&
		c.window.ReachesEnd(c.source.Len())
}

func (c *Controller) hasUnreadLocked() bool {
	tl := c.source.Len()
	if tl == 0 {
		return false
	}
	newest := c.source.EventAt(tl - 1)
	return newest != nil && newest.ID != c.source.ReadUpToEventID()
}

// AtBottom reports whether the view shows the live tail.
func (c *Controller) AtBottom() bool {
	c.lock()
	defer c.mu.Unlock()
	return c.state == StateReady && c.atBottomLocked()
}

// ScrollToLive jumps to the live tail, reloading the live timeline when an
// event timeline is being served.
func (c *Controller) ScrollToLive(ctx context.Context) error {
	c.lock()
	if c.state != StateReady {
		c.unlock()
		return nil
	}
	if c.hasUnreadLocked() {
		c.markAsReadLocked()
	}
	c.target = ""
	c.focusID = ""

	if c.source.IsServingLiveTimeline() {
		tl := c.source.Len()
		c.window.SetFrom(tl-c.window.MaxEvents(), tl)
		c.anchor.ScrollToBottom()
		c.recomputeLocked()
		c.publishLocked(models.ViewEvent{Type: models.ViewEventWindowChanged})
		c.unlock()
		return nil
	}

	// pages of the old segment must not land in the live one
	c.generation++
	gen := c.generation
	c.state = StateLoading
	c.unlock()

	err := c.source.LoadLiveTimeline(ctx)

	c.lock()
	defer c.unlock()
	if c.state != StateLoading || c.generation != gen {
		return err
	}
	if err != nil {
		// keep showing the old segment
		c.state = StateReady
		return fmt.Errorf("load live timeline: %w", err)
	}
	c.initLocked()
	return nil
}

// KeyArrowUp requests editing the user's last text message. It only acts
// when the composer is empty and the whole live timeline is in view, and
// returns the event to edit.
func (c *Controller) KeyArrowUp(composerEmpty bool) (id.EventID, bool) {
	if !composerEmpty {
		return "", false
	}
	c.lock()
	defer c.unlock()
	if c.state != StateReady || !c.source.IsServingLiveTimeline() {
		return "", false
	}
	tl := c.source.Len()
	if c.window.End() < tl {
		return "", false
	}
	for i := tl - 1; i >= 0; i-- {
		ev := c.source.EventAt(i)
		if ev.IsEditableBy(c.userID) {
			c.editing = ev.ID
			c.publishLocked(models.ViewEvent{Type: models.ViewEventEditRequested, EventID: ev.ID})
			return ev.ID, true
		}
	}
	return "", false
}

// Editing returns the event being edited, if any.
func (c *Controller) Editing() id.EventID {
	c.lock()
	defer c.mu.Unlock()
	return c.editing
}

// CancelEdit ends an edit started with KeyArrowUp.
func (c *Controller) CancelEdit() {
	c.lock()
	defer c.mu.Unlock()
	c.editing = ""
}

// KeyEscape scrolls to the live tail unless an edit is open, in which case
// the key belongs to the editor. It reports whether it acted.
func (c *Controller) KeyEscape(ctx context.Context) (bool, error) {
	c.lock()
	if c.state != StateReady || c.editing != "" {
		c.mu.Unlock()
		return false, nil
	}
	c.mu.Unlock()

	if err := c.ScrollToLive(ctx); err != nil {
		return true, err
	}
	c.lock()
	c.publishLocked(models.ViewEvent{Type: models.ViewEventAtBottom, AtBottom: true})
	c.unlock()
	return true, nil
}

// SetVisible records whether the view can be seen by the user. Regaining
// visibility marks the room read when the live tail is in view and re-checks
// pagination when newer events are pending.
func (c *Controller) SetVisible(visible bool) {
	c.lock()
	defer c.unlock()
	was := c.visible
	c.visible = visible
	if !visible || was || c.state != StateReady {
		return
	}
	if c.atBottomLocked() && c.hasUnreadLocked() {
		c.markAsReadLocked()
	}
	if c.source.CanPaginate(models.Forward) {
		c.recomputeLocked()
		c.publishLocked(models.ViewEvent{Type: models.ViewEventWindowChanged})
		c.tickLocked()
	}
}
