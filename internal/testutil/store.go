// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"maunium.net/go/mautrix/id"

	"github.com/tOgg1/roomview/internal/db"
	"github.com/tOgg1/roomview/internal/models"
)

// SeedStart is the timestamp of the first seeded message. Seeded histories
// stay within one UTC day so day dividers are predictable.
var SeedStart = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// NewStore opens a migrated in-memory timeline store, closed at test end.
func NewStore(t *testing.T) *db.TimelineRepository {
	t.Helper()
	database, err := db.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	_, err = database.MigrateUp(context.Background())
	require.NoError(t, err)
	return db.NewTimelineRepository(database)
}

// SeedRoom stores count synthetic messages in roomID, one minute apart from
// SeedStart, and returns them in order.
func SeedRoom(t *testing.T, repo *db.TimelineRepository, roomID id.RoomID, count int) []*models.TimelineEvent {
	t.Helper()
	events := db.GenerateTimeline(db.SeedOptions{RoomID: roomID, Count: count, Start: SeedStart})
	require.NoError(t, repo.AppendBatch(context.Background(), events))
	return events
}
