package timeline

import (
	"context"

	"maunium.net/go/mautrix/id"

	"github.com/tOgg1/roomview/internal/models"
	"github.com/tOgg1/roomview/internal/paginate"
)

// Source is an ordered, indexable room or thread timeline owned by the
// client session. The controller only reads from it.
type Source interface {
	paginate.Pager

	EventAt(index int) *models.TimelineEvent
	// IndexOf returns the position of eventID, or -1.
	IndexOf(eventID id.EventID) int

	LoadLiveTimeline(ctx context.Context) error
	// LoadEventTimeline loads the segment around eventID. false means the
	// event could not be found.
	LoadEventTimeline(ctx context.Context, eventID id.EventID) (bool, error)
	IsServingLiveTimeline() bool

	// ReadUpToEventID returns the user's read marker, or "".
	ReadUpToEventID() id.EventID

	// Subscribe registers l and returns the matching unsubscribe. Callbacks
	// must not be invoked while the source holds its own locks.
	Subscribe(l Listener) (unsubscribe func())
}

// Listener receives timeline signals. Nil fields are skipped.
type Listener struct {
	// OnReady fires once a load finished and the timeline can be read.
	OnReady func()
	// OnEvent fires after ev was appended to the live timeline.
	OnEvent func(ev *models.TimelineEvent)
	// OnRedacted fires after ev was removed from position index.
	OnRedacted func(ev *models.TimelineEvent, index int)
}

// Receipts updates the user's read receipt.
type Receipts interface {
	MarkAsRead(ctx context.Context, roomID id.RoomID, threadID id.EventID) error
}
