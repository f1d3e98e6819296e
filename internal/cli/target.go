package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"maunium.net/go/mautrix/id"

	"github.com/tOgg1/roomview/internal/db"
)

// targetFlags select the timeline a command works on.
type targetFlags struct {
	room   string
	thread string
	event  string
}

func (f *targetFlags) register(cmd *cobra.Command, withEvent bool) {
	cmd.Flags().StringVar(&f.room, "room", "", "room ID (default: the saved context, then the most recent room)")
	cmd.Flags().StringVar(&f.thread, "thread", "", "thread root event ID")
	if withEvent {
		cmd.Flags().StringVar(&f.event, "event", "", "open the timeline around this event")
	}
}

// target is a resolved timeline selection.
type target struct {
	RoomID   id.RoomID
	ThreadID id.EventID
	EventID  id.EventID
}

// resolveTarget picks the room from flags, then the saved context, then
// last (a read marker key), then the most recently active stored room.
// A saved event only applies when the saved room is used.
func (a *app) resolveTarget(ctx context.Context, repo *db.TimelineRepository, f targetFlags, last string) (target, error) {
	t := target{
		RoomID:   id.RoomID(strings.TrimSpace(f.room)),
		ThreadID: id.EventID(strings.TrimSpace(f.thread)),
		EventID:  id.EventID(strings.TrimSpace(f.event)),
	}
	if t.RoomID != "" {
		return t, nil
	}

	saved, err := a.contextStore().Load()
	if err != nil {
		return t, err
	}
	if !saved.IsEmpty() {
		t.RoomID = id.RoomID(saved.RoomID)
		if t.ThreadID == "" {
			t.ThreadID = id.EventID(saved.ThreadID)
		}
		if t.EventID == "" {
			t.EventID = id.EventID(saved.EventID)
		}
		return t, nil
	}

	if last != "" {
		room, thread, _ := strings.Cut(last, "/")
		t.RoomID = id.RoomID(room)
		if t.ThreadID == "" {
			t.ThreadID = id.EventID(thread)
		}
		return t, nil
	}

	rooms, err := repo.Rooms(ctx)
	if err != nil {
		return t, err
	}
	if len(rooms) == 0 {
		return t, &PreflightError{
			Message:  errNoRooms.Error(),
			Hint:     "seed a synthetic room first",
			NextStep: "roomview seed --room '!demo:localhost'",
		}
	}
	t.RoomID = rooms[0].RoomID
	return t, nil
}

func (t target) String() string {
	out := string(t.RoomID)
	if t.ThreadID != "" {
		out += " thread " + string(t.ThreadID)
	}
	if t.EventID != "" {
		out += fmt.Sprintf(" at %s", t.EventID)
	}
	return out
}
