package models

import (
	"time"

	"maunium.net/go/mautrix/id"
)

// ViewEventType categorizes notifications sent to the view layer.
type ViewEventType string

const (
	ViewEventTimelineReady    ViewEventType = "timeline.ready"
	ViewEventTimelineFailed   ViewEventType = "timeline.load_failed"
	ViewEventWindowChanged    ViewEventType = "window.changed"
	ViewEventAtBottom         ViewEventType = "timeline.at_bottom"
	ViewEventPaginationFailed ViewEventType = "pagination.failed"
	ViewEventEditRequested    ViewEventType = "edit.requested"
	ViewEventReadMarked       ViewEventType = "read.marked"
	ViewEventJumpToIndex      ViewEventType = "jump.index"
)

// ViewEvent is a notification from a timeline controller to its view.
type ViewEvent struct {
	Type      ViewEventType `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
	RoomID    id.RoomID     `json:"room_id"`
	ThreadID  id.EventID    `json:"thread_id,omitempty"`

	// EventID is set for edit.requested and read.marked.
	EventID id.EventID `json:"event_id,omitempty"`

	// AtBottom is set for timeline.at_bottom.
	AtBottom bool `json:"at_bottom,omitempty"`

	// Direction is set for pagination.failed.
	Direction Direction `json:"direction,omitempty"`

	// Index is set for jump.index.
	Index int `json:"index,omitempty"`

	// Err carries the failure for pagination.failed and timeline.load_failed.
	Err error `json:"-"`
}
