package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/tOgg1/roomview/internal/models"
)

const testRoom = id.RoomID("!room:localhost")

func seedRoom(t *testing.T, repo *TimelineRepository, n int) []*models.TimelineEvent {
	t.Helper()
	events := GenerateTimeline(SeedOptions{
		RoomID: testRoom,
		Count:  n,
		Start:  time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, repo.AppendBatch(context.Background(), events))
	return events
}

func ids(events []*models.TimelineEvent) []id.EventID {
	out := make([]id.EventID, len(events))
	for i, ev := range events {
		out[i] = ev.ID
	}
	return out
}

func TestTimelineRepositoryAppendAndGet(t *testing.T) {
	database := setupTestDB(t)
	defer database.Close()
	repo := NewTimelineRepository(database)
	ctx := context.Background()

	ev := &models.TimelineEvent{
		RoomID:    testRoom,
		Sender:    "@alice:localhost",
		Type:      event.EventReaction,
		Relation:  &models.Relation{Type: event.RelAnnotation, EventID: "$target"},
		Timestamp: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.Append(ctx, ev))
	require.NotEmpty(t, ev.ID)

	got, err := repo.Get(ctx, ev.ID)
	require.NoError(t, err)
	require.Equal(t, event.EventReaction, got.Type)
	require.True(t, got.IsRelation())
	require.Equal(t, id.EventID("$target"), got.Relation.EventID)
	require.True(t, got.Timestamp.Equal(ev.Timestamp))

	err = repo.Append(ctx, ev)
	require.ErrorIs(t, err, ErrDuplicateEvent)

	require.ErrorIs(t, repo.Append(ctx, &models.TimelineEvent{RoomID: testRoom}), ErrInvalidEvent)

	_, err = repo.Get(ctx, "$missing")
	require.ErrorIs(t, err, ErrEventNotFound)
}

func TestTimelineRepositoryStateEventsKeepClass(t *testing.T) {
	database := setupTestDB(t)
	defer database.Close()
	repo := NewTimelineRepository(database)
	ctx := context.Background()

	events := GenerateTimeline(SeedOptions{RoomID: testRoom, Count: 1, WithCreate: true})
	require.NoError(t, repo.AppendBatch(ctx, events))

	got, err := repo.Get(ctx, events[0].ID)
	require.NoError(t, err)
	require.True(t, got.IsCreate())
}

func TestTimelineRepositoryPaging(t *testing.T) {
	database := setupTestDB(t)
	defer database.Close()
	repo := NewTimelineRepository(database)
	ctx := context.Background()

	events := seedRoom(t, repo, 10)

	latest, err := repo.Latest(ctx, testRoom, "", 3)
	require.NoError(t, err)
	require.Equal(t, ids(events[7:]), ids(latest))

	before, err := repo.Before(ctx, testRoom, "", events[7].ID, 4)
	require.NoError(t, err)
	require.Equal(t, ids(events[3:7]), ids(before))

	after, err := repo.After(ctx, testRoom, "", events[2].ID, 2)
	require.NoError(t, err)
	require.Equal(t, ids(events[3:5]), ids(after))

	around, err := repo.Around(ctx, testRoom, "", events[5].ID, 5)
	require.NoError(t, err)
	require.Equal(t, ids(events[3:8]), ids(around))

	_, err = repo.Before(ctx, testRoom, "", "$missing", 4)
	require.ErrorIs(t, err, ErrEventNotFound)

	count, err := repo.Count(ctx, testRoom, "")
	require.NoError(t, err)
	require.Equal(t, 10, count)
}

func TestTimelineRepositoryThreadScope(t *testing.T) {
	database := setupTestDB(t)
	defer database.Close()
	repo := NewTimelineRepository(database)
	ctx := context.Background()

	events := seedRoom(t, repo, 3)
	root := events[1].ID
	reply := &models.TimelineEvent{
		RoomID:   testRoom,
		ThreadID: root,
		Sender:   "@bob:localhost",
		Type:     event.EventMessage,
		MsgType:  event.MsgText,
		Body:     "in thread",
	}
	require.NoError(t, repo.Append(ctx, reply))

	main, err := repo.Latest(ctx, testRoom, "", 10)
	require.NoError(t, err)
	require.Equal(t, ids(events), ids(main))

	thread, err := repo.Latest(ctx, testRoom, root, 10)
	require.NoError(t, err)
	require.Equal(t, []id.EventID{root, reply.ID}, ids(thread))

	_, err = repo.Around(ctx, testRoom, "", reply.ID, 4)
	require.True(t, errors.Is(err, ErrEventNotFound))
}

func TestTimelineRepositoryRedactAndRooms(t *testing.T) {
	database := setupTestDB(t)
	defer database.Close()
	repo := NewTimelineRepository(database)
	ctx := context.Background()

	events := seedRoom(t, repo, 2)

	redacted, err := repo.Redact(ctx, events[0].ID)
	require.NoError(t, err)
	require.Equal(t, events[0].ID, redacted.ID)

	_, err = repo.Redact(ctx, events[0].ID)
	require.ErrorIs(t, err, ErrEventNotFound)

	rooms, err := repo.Rooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	require.Equal(t, testRoom, rooms[0].RoomID)
	require.Equal(t, 1, rooms[0].Events)
}
