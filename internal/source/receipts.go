package source

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/id"

	"github.com/tOgg1/roomview/internal/logging"
	"github.com/tOgg1/roomview/internal/state"
	"github.com/tOgg1/roomview/internal/timeline"
)

// Receipts moves read markers to the newest stored event of a timeline.
type Receipts struct {
	repo    Repository
	markers *state.Manager
	logger  zerolog.Logger
}

var _ timeline.Receipts = (*Receipts)(nil)

func NewReceipts(repo Repository, markers *state.Manager) *Receipts {
	return &Receipts{
		repo:    repo,
		markers: markers,
		logger:  logging.Component("receipts"),
	}
}

// MarkAsRead sets the read marker of the room or thread to its newest event.
func (r *Receipts) MarkAsRead(ctx context.Context, roomID id.RoomID, threadID id.EventID) error {
	if r.markers == nil {
		return nil
	}
	latest, err := r.repo.Latest(ctx, roomID, threadID, 1)
	if err != nil {
		return fmt.Errorf("mark as read: %w", err)
	}
	if len(latest) == 0 {
		return nil
	}
	newest := latest[0]
	moved := r.markers.SetReadMarker(state.Key(roomID, threadID), state.ReadMarker{
		EventID:   newest.ID,
		Timestamp: newest.Timestamp,
	})
	r.logger.Debug().
		Str("room_id", roomID.String()).
		Str("event_id", newest.ID.String()).
		Bool("moved", moved).
		Msg("read marker updated")
	return nil
}
