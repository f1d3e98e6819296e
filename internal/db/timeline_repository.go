package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/tOgg1/roomview/internal/models"
)

// Timeline repository errors.
var (
	ErrEventNotFound  = errors.New("event not found")
	ErrInvalidEvent   = errors.New("invalid event")
	ErrDuplicateEvent = errors.New("event already stored")
)

const defaultPageLimit = 50

// TimelineRepository stores room and thread timelines in arrival order.
type TimelineRepository struct {
	db *DB
}

type timelineExecer interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}

// NewTimelineRepository creates a new TimelineRepository.
func NewTimelineRepository(db *DB) *TimelineRepository {
	return &TimelineRepository{db: db}
}

// RoomSummary describes one stored room.
type RoomSummary struct {
	RoomID id.RoomID
	Events int
	Latest time.Time
}

// NewEventID returns a fresh synthetic event ID.
func NewEventID() id.EventID {
	return id.EventID("$" + uuid.New().String())
}

// Append stores ev at the end of its timeline. A missing ID or timestamp is
// filled in.
func (r *TimelineRepository) Append(ctx context.Context, ev *models.TimelineEvent) error {
	return r.appendWithExecutor(ctx, r.db, ev)
}

// AppendBatch stores events atomically, in order.
func (r *TimelineRepository) AppendBatch(ctx context.Context, events []*models.TimelineEvent) error {
	if len(events) == 0 {
		return nil
	}
	return r.db.TransactionWithRetry(ctx, 0, 0, func(tx *sql.Tx) error {
		for _, ev := range events {
			if err := r.appendWithExecutor(ctx, tx, ev); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *TimelineRepository) appendWithExecutor(ctx context.Context, execer timelineExecer, ev *models.TimelineEvent) error {
	if ev == nil {
		return ErrInvalidEvent
	}
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if ev.ID == "" {
		ev.ID = NewEventID()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	var relType, relEventID string
	if ev.Relation != nil {
		relType = string(ev.Relation.Type)
		relEventID = string(ev.Relation.EventID)
	}

	_, err := execer.ExecContext(ctx, `
		INSERT INTO timeline_events (
			event_id, room_id, thread_id, sender, ts, type, msgtype, rel_type, rel_event_id, body
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		string(ev.ID),
		string(ev.RoomID),
		string(ev.ThreadID),
		string(ev.Sender),
		ev.Timestamp.UnixMilli(),
		ev.Type.Type,
		string(ev.MsgType),
		relType,
		relEventID,
		ev.Body,
	)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique") {
			return fmt.Errorf("%w: %s", ErrDuplicateEvent, ev.ID)
		}
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// Get retrieves an event by ID.
func (r *TimelineRepository) Get(ctx context.Context, eventID id.EventID) (*models.TimelineEvent, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM timeline_events WHERE event_id = ?`, string(eventID))
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	return ev, err
}

// Redact removes an event from its timeline.
func (r *TimelineRepository) Redact(ctx context.Context, eventID id.EventID) (*models.TimelineEvent, error) {
	ev, err := r.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM timeline_events WHERE event_id = ?`, string(eventID)); err != nil {
		return nil, fmt.Errorf("failed to redact event: %w", err)
	}
	return ev, nil
}

// Latest returns the newest limit events of a timeline, oldest first.
func (r *TimelineRepository) Latest(ctx context.Context, roomID id.RoomID, threadID id.EventID, limit int) ([]*models.TimelineEvent, error) {
	where, args := scope(roomID, threadID)
	return r.page(ctx, where, args, true, limit)
}

// Before returns up to limit events older than cursor, oldest first.
func (r *TimelineRepository) Before(ctx context.Context, roomID id.RoomID, threadID id.EventID, cursor id.EventID, limit int) ([]*models.TimelineEvent, error) {
	seq, err := r.seqOf(ctx, cursor)
	if err != nil {
		return nil, err
	}
	where, args := scope(roomID, threadID)
	return r.page(ctx, where+` AND seq < ?`, append(args, seq), true, limit)
}

// After returns up to limit events newer than cursor, oldest first.
func (r *TimelineRepository) After(ctx context.Context, roomID id.RoomID, threadID id.EventID, cursor id.EventID, limit int) ([]*models.TimelineEvent, error) {
	seq, err := r.seqOf(ctx, cursor)
	if err != nil {
		return nil, err
	}
	where, args := scope(roomID, threadID)
	return r.page(ctx, where+` AND seq > ?`, append(args, seq), false, limit)
}

// Around returns a page of about limit events centered on eventID.
func (r *TimelineRepository) Around(ctx context.Context, roomID id.RoomID, threadID id.EventID, eventID id.EventID, limit int) ([]*models.TimelineEvent, error) {
	if limit <= 0 {
		limit = defaultPageLimit
	}
	target, err := r.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !inScope(target, roomID, threadID) {
		return nil, fmt.Errorf("%w: %s not in %s", ErrEventNotFound, eventID, roomID)
	}

	half := limit / 2
	before, err := r.Before(ctx, roomID, threadID, eventID, half)
	if err != nil {
		return nil, err
	}
	after, err := r.After(ctx, roomID, threadID, eventID, limit-half-1)
	if err != nil {
		return nil, err
	}

	out := make([]*models.TimelineEvent, 0, len(before)+1+len(after))
	out = append(out, before...)
	out = append(out, target)
	return append(out, after...), nil
}

// Count returns the number of events in a timeline.
func (r *TimelineRepository) Count(ctx context.Context, roomID id.RoomID, threadID id.EventID) (int, error) {
	where, args := scope(roomID, threadID)
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM timeline_events WHERE `+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

// Rooms lists stored rooms, most recently active first.
func (r *TimelineRepository) Rooms(ctx context.Context) ([]RoomSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT room_id, COUNT(*), MAX(ts) FROM timeline_events
		GROUP BY room_id ORDER BY MAX(ts) DESC, room_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	defer rows.Close()

	var out []RoomSummary
	for rows.Next() {
		var room string
		var summary RoomSummary
		var latest int64
		if err := rows.Scan(&room, &summary.Events, &latest); err != nil {
			return nil, fmt.Errorf("failed to scan room: %w", err)
		}
		summary.RoomID = id.RoomID(room)
		summary.Latest = time.UnixMilli(latest).UTC()
		out = append(out, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rooms: %w", err)
	}
	return out, nil
}

func (r *TimelineRepository) seqOf(ctx context.Context, eventID id.EventID) (int64, error) {
	var seq int64
	err := r.db.QueryRowContext(ctx, `SELECT seq FROM timeline_events WHERE event_id = ?`, string(eventID)).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrEventNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up event: %w", err)
	}
	return seq, nil
}

// page runs a scoped query. newestFirst pages towards older events; the
// result is always returned oldest first.
func (r *TimelineRepository) page(ctx context.Context, where string, args []any, newestFirst bool, limit int) ([]*models.TimelineEvent, error) {
	if limit <= 0 {
		limit = defaultPageLimit
	}
	order := "ASC"
	if newestFirst {
		order = "DESC"
	}
	query := `SELECT ` + eventColumns + ` FROM timeline_events WHERE ` + where + ` ORDER BY seq ` + order + ` LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, append(args, limit)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []*models.TimelineEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	if newestFirst {
		for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
			events[i], events[j] = events[j], events[i]
		}
	}
	return events, nil
}

// scope selects the main timeline of a room, or one thread (root included).
func scope(roomID id.RoomID, threadID id.EventID) (string, []any) {
	if threadID == "" {
		return `room_id = ? AND thread_id = ''`, []any{string(roomID)}
	}
	return `room_id = ? AND (thread_id = ? OR event_id = ?)`, []any{string(roomID), string(threadID), string(threadID)}
}

func inScope(ev *models.TimelineEvent, roomID id.RoomID, threadID id.EventID) bool {
	if ev.RoomID != roomID {
		return false
	}
	if threadID == "" {
		return ev.ThreadID == ""
	}
	return ev.ThreadID == threadID || ev.ID == threadID
}

const eventColumns = `event_id, room_id, thread_id, sender, ts, type, msgtype, rel_type, rel_event_id, body`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*models.TimelineEvent, error) {
	var (
		ev                                        models.TimelineEvent
		eventID, roomID, threadID, sender, evType string
		msgType, relType, relEventID              string
		ts                                        int64
	)
	if err := row.Scan(&eventID, &roomID, &threadID, &sender, &ts, &evType, &msgType, &relType, &relEventID, &ev.Body); err != nil {
		return nil, err
	}

	ev.ID = id.EventID(eventID)
	ev.RoomID = id.RoomID(roomID)
	ev.ThreadID = id.EventID(threadID)
	ev.Sender = id.UserID(sender)
	ev.Timestamp = time.UnixMilli(ts).UTC()
	ev.Type = eventType(evType)
	ev.MsgType = event.MessageType(msgType)
	if relType != "" {
		ev.Relation = &models.Relation{Type: event.RelationType(relType), EventID: id.EventID(relEventID)}
	}
	return &ev, nil
}

// eventType restores the state/message class mautrix uses to compare types.
func eventType(name string) event.Type {
	switch name {
	case event.StateMember.Type, event.StatePinnedEvents.Type, event.StateCreate.Type, event.StateTopic.Type, event.StateRoomName.Type:
		return event.Type{Type: name, Class: event.StateEventType}
	}
	return event.Type{Type: name, Class: event.MessageEventType}
}
