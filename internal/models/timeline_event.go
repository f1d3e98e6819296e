package models

import (
	"time"

	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// Relation points a timeline event at the event it annotates, edits or redacts.
type Relation struct {
	Type    event.RelationType `json:"rel_type"`
	EventID id.EventID         `json:"event_id"`
}

// TimelineEvent is a read-only view of one event in a room or thread timeline.
// The windowing core never interprets Body.
type TimelineEvent struct {
	ID        id.EventID        `json:"event_id"`
	RoomID    id.RoomID         `json:"room_id"`
	Sender    id.UserID         `json:"sender"`
	Timestamp time.Time         `json:"origin_server_ts"`
	Type      event.Type        `json:"type"`
	MsgType   event.MessageType `json:"msgtype,omitempty"`
	Relation  *Relation         `json:"relates_to,omitempty"`
	ThreadID  id.EventID        `json:"thread_id,omitempty"`
	Body      string            `json:"body,omitempty"`
}

// IsRelation reports whether the event only modifies another event
// (reaction or edit) instead of adding a row of its own.
func (e *TimelineEvent) IsRelation() bool {
	if e == nil {
		return false
	}
	if e.Type == event.EventReaction {
		return true
	}
	return e.Relation != nil && e.Relation.Type == event.RelReplace
}

// IsMembershipLike reports whether the event renders as a timeline change
// line rather than a message.
func (e *TimelineEvent) IsMembershipLike() bool {
	if e == nil {
		return false
	}
	return e.Type == event.StateMember || e.Type == event.StatePinnedEvents
}

// IsCreate reports whether the event is the room creation event.
func (e *TimelineEvent) IsCreate() bool {
	return e != nil && e.Type == event.StateCreate
}

// IsEditableBy reports whether sender may edit this event with the
// edit-last-message shortcut.
func (e *TimelineEvent) IsEditableBy(sender id.UserID) bool {
	if e == nil || e.Sender != sender {
		return false
	}
	return e.Type == event.EventMessage && e.MsgType == event.MsgText
}

// Direction is the pagination direction relative to the timeline.
type Direction int

const (
	// Backward pages towards older events.
	Backward Direction = iota
	// Forward pages towards newer events.
	Forward
)

func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}

// Backwards reports whether d is Backward.
func (d Direction) Backwards() bool { return d == Backward }
