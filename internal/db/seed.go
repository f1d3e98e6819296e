package db

import (
	"fmt"
	"time"

	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/tOgg1/roomview/internal/models"
)

// SeedOptions describes a synthetic room history.
type SeedOptions struct {
	RoomID  id.RoomID
	Senders []id.UserID
	Count   int
	Start   time.Time
	Step    time.Duration
	// WithCreate starts the history with a room creation event.
	WithCreate bool
}

// GenerateTimeline builds opts.Count message events, senders taking turns.
func GenerateTimeline(opts SeedOptions) []*models.TimelineEvent {
	if len(opts.Senders) == 0 {
		opts.Senders = []id.UserID{"@alice:localhost", "@bob:localhost"}
	}
	if opts.Step <= 0 {
		opts.Step = time.Minute
	}
	if opts.Start.IsZero() {
		opts.Start = time.Now().UTC().Add(-time.Duration(opts.Count) * opts.Step)
	}

	out := make([]*models.TimelineEvent, 0, opts.Count+1)
	ts := opts.Start
	if opts.WithCreate {
		out = append(out, &models.TimelineEvent{
			ID:        NewEventID(),
			RoomID:    opts.RoomID,
			Sender:    opts.Senders[0],
			Timestamp: ts,
			Type:      event.StateCreate,
		})
		ts = ts.Add(opts.Step)
	}
	for i := 0; i < opts.Count; i++ {
		out = append(out, &models.TimelineEvent{
			ID:        NewEventID(),
			RoomID:    opts.RoomID,
			Sender:    opts.Senders[i%len(opts.Senders)],
			Timestamp: ts,
			Type:      event.EventMessage,
			MsgType:   event.MsgText,
			Body:      fmt.Sprintf("message %d", i+1),
		})
		ts = ts.Add(opts.Step)
	}
	return out
}
