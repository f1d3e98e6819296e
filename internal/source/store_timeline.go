// Package source serves room and thread timelines from the local event store
// to timeline controllers.
package source

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/id"

	"github.com/tOgg1/roomview/internal/db"
	"github.com/tOgg1/roomview/internal/logging"
	"github.com/tOgg1/roomview/internal/models"
	"github.com/tOgg1/roomview/internal/state"
	"github.com/tOgg1/roomview/internal/timeline"
)

// DefaultPageSize is the number of events loaded when a timeline opens.
const DefaultPageSize = 50

// Repository is the part of the event store a timeline is served from.
type Repository interface {
	Latest(ctx context.Context, roomID id.RoomID, threadID id.EventID, limit int) ([]*models.TimelineEvent, error)
	Before(ctx context.Context, roomID id.RoomID, threadID id.EventID, cursor id.EventID, limit int) ([]*models.TimelineEvent, error)
	After(ctx context.Context, roomID id.RoomID, threadID id.EventID, cursor id.EventID, limit int) ([]*models.TimelineEvent, error)
	Around(ctx context.Context, roomID id.RoomID, threadID id.EventID, eventID id.EventID, limit int) ([]*models.TimelineEvent, error)
	Append(ctx context.Context, ev *models.TimelineEvent) error
	Redact(ctx context.Context, eventID id.EventID) (*models.TimelineEvent, error)
}

// Options configures a StoreTimeline.
type Options struct {
	RoomID   id.RoomID
	ThreadID id.EventID

	// PageSize is the number of events loaded by LoadLiveTimeline and
	// LoadEventTimeline.
	PageSize int

	// Latency delays every Paginate call, standing in for a homeserver
	// round trip.
	Latency time.Duration

	// Markers holds read markers. Optional.
	Markers *state.Manager
}

// StoreTimeline is a timeline.Source holding one contiguous segment of a
// stored timeline in memory. The segment is either the live tail or a window
// around an event that can be extended in both directions.
type StoreTimeline struct {
	repo     Repository
	markers  *state.Manager
	roomID   id.RoomID
	threadID id.EventID
	pageSize int
	latency  time.Duration

	mu        sync.Mutex
	events    []*models.TimelineEvent
	live      bool
	canBack   bool
	canFwd    bool
	listeners map[int]timeline.Listener
	nextKey   int

	logger zerolog.Logger
}

var _ timeline.Source = (*StoreTimeline)(nil)

// NewStoreTimeline creates a source over repo. Nothing is loaded until
// LoadLiveTimeline or LoadEventTimeline is called.
func NewStoreTimeline(repo Repository, opts Options) *StoreTimeline {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	return &StoreTimeline{
		repo:      repo,
		markers:   opts.Markers,
		roomID:    opts.RoomID,
		threadID:  opts.ThreadID,
		pageSize:  opts.PageSize,
		latency:   opts.Latency,
		listeners: make(map[int]timeline.Listener),
		logger:    logging.WithRoom("source", opts.RoomID, opts.ThreadID),
	}
}

// Len returns the number of loaded events.
func (s *StoreTimeline) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// EventAt returns the loaded event at index, or nil.
func (s *StoreTimeline) EventAt(index int) *models.TimelineEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.events) {
		return nil
	}
	return s.events[index]
}

func (s *StoreTimeline) IndexOf(eventID id.EventID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexLocked(eventID)
}

func (s *StoreTimeline) indexLocked(eventID id.EventID) int {
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].ID == eventID {
			return i
		}
	}
	return -1
}

// CanPaginate reports whether the store may hold events beyond the loaded
// segment in direction.
func (s *StoreTimeline) CanPaginate(direction models.Direction) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if direction == models.Backward {
		return s.canBack
	}
	return s.canFwd
}

// Paginate loads up to limit events past the segment edge in direction.
func (s *StoreTimeline) Paginate(ctx context.Context, direction models.Direction, limit int) (int, error) {
	if limit <= 0 {
		return 0, nil
	}
	if s.latency > 0 {
		timer := time.NewTimer(s.latency)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return 0, ctx.Err()
		}
	}

	s.mu.Lock()
	var cursor id.EventID
	if len(s.events) > 0 {
		if direction == models.Backward {
			cursor = s.events[0].ID
		} else {
			cursor = s.events[len(s.events)-1].ID
		}
	}
	s.mu.Unlock()

	var (
		page []*models.TimelineEvent
		err  error
	)
	switch {
	case cursor == "":
		page, err = s.repo.Latest(ctx, s.roomID, s.threadID, limit)
	case direction == models.Backward:
		page, err = s.repo.Before(ctx, s.roomID, s.threadID, cursor, limit)
	default:
		page, err = s.repo.After(ctx, s.roomID, s.threadID, cursor, limit)
	}
	if err != nil {
		return 0, fmt.Errorf("paginate %s: %w", direction, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) > 0 && !s.edgeIsLocked(direction, cursor) {
		// the segment was replaced while the page loaded
		return 0, nil
	}
	full := len(page) >= limit
	if direction == models.Backward || cursor == "" {
		s.events = append(append(make([]*models.TimelineEvent, 0, len(page)+len(s.events)), page...), s.events...)
		s.canBack = full
	} else {
		s.events = append(s.events, page...)
		s.canFwd = full
		if !full {
			// caught up with the newest stored event
			s.live = true
		}
	}

	s.logger.Debug().
		Stringer("direction", direction).
		Int("loaded", len(page)).
		Int("timeline_length", len(s.events)).
		Msg("paginated")
	return len(page), nil
}

func (s *StoreTimeline) edgeIsLocked(direction models.Direction, cursor id.EventID) bool {
	if direction == models.Backward {
		return s.events[0].ID == cursor
	}
	return s.events[len(s.events)-1].ID == cursor
}

// LoadLiveTimeline replaces the segment with the newest page.
func (s *StoreTimeline) LoadLiveTimeline(ctx context.Context) error {
	page, err := s.repo.Latest(ctx, s.roomID, s.threadID, s.pageSize)
	if err != nil {
		return fmt.Errorf("load latest events: %w", err)
	}

	s.mu.Lock()
	s.events = page
	s.live = true
	s.canBack = len(page) >= s.pageSize
	s.canFwd = false
	s.mu.Unlock()

	s.logger.Debug().Int("loaded", len(page)).Msg("live timeline loaded")
	s.fire(func(l timeline.Listener) {
		if l.OnReady != nil {
			l.OnReady()
		}
	})
	return nil
}

// LoadEventTimeline replaces the segment with a page centered on eventID.
// It reports false when the event is not stored in this timeline.
func (s *StoreTimeline) LoadEventTimeline(ctx context.Context, eventID id.EventID) (bool, error) {
	page, err := s.repo.Around(ctx, s.roomID, s.threadID, eventID, s.pageSize)
	if errors.Is(err, db.ErrEventNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load events around %s: %w", eventID, err)
	}

	target := -1
	for i, ev := range page {
		if ev.ID == eventID {
			target = i
			break
		}
	}
	if target < 0 {
		return false, nil
	}
	half := s.pageSize / 2
	after := len(page) - target - 1

	s.mu.Lock()
	s.events = page
	s.canBack = target >= half
	s.canFwd = after >= s.pageSize-half-1
	s.live = !s.canFwd
	s.mu.Unlock()

	s.logger.Debug().Str("event_id", eventID.String()).Int("loaded", len(page)).Msg("event timeline loaded")
	s.fire(func(l timeline.Listener) {
		if l.OnReady != nil {
			l.OnReady()
		}
	})
	return true, nil
}

func (s *StoreTimeline) IsServingLiveTimeline() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

// ReadUpToEventID returns the stored read marker of this timeline.
func (s *StoreTimeline) ReadUpToEventID() id.EventID {
	if s.markers == nil {
		return ""
	}
	marker, ok := s.markers.ReadMarker(state.Key(s.roomID, s.threadID))
	if !ok {
		return ""
	}
	return marker.EventID
}

func (s *StoreTimeline) Subscribe(l timeline.Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := s.nextKey
	s.nextKey++
	s.listeners[key] = l
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, key)
	}
}

// Append stores a new event. When the live tail is loaded the event joins
// the segment and listeners are told; otherwise the segment can now be
// paginated forward. Events of other timelines are only stored.
func (s *StoreTimeline) Append(ctx context.Context, ev *models.TimelineEvent) error {
	if ev == nil {
		return db.ErrInvalidEvent
	}
	if ev.RoomID == "" {
		ev.RoomID = s.roomID
	}
	if ev.ThreadID == "" && s.threadID != "" && ev.ID != s.threadID {
		ev.ThreadID = s.threadID
	}
	if err := s.repo.Append(ctx, ev); err != nil {
		return err
	}
	if !s.inScope(ev) {
		return nil
	}

	s.mu.Lock()
	if !s.live {
		s.canFwd = true
		s.mu.Unlock()
		return nil
	}
	s.events = append(s.events, ev)
	s.mu.Unlock()

	s.fire(func(l timeline.Listener) {
		if l.OnEvent != nil {
			l.OnEvent(ev)
		}
	})
	return nil
}

// Redact removes an event from the store and, when loaded, from the segment.
func (s *StoreTimeline) Redact(ctx context.Context, eventID id.EventID) error {
	ev, err := s.repo.Redact(ctx, eventID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	index := s.indexLocked(eventID)
	if index < 0 {
		s.mu.Unlock()
		return nil
	}
	s.events = append(s.events[:index:index], s.events[index+1:]...)
	s.mu.Unlock()

	s.fire(func(l timeline.Listener) {
		if l.OnRedacted != nil {
			l.OnRedacted(ev, index)
		}
	})
	return nil
}

func (s *StoreTimeline) inScope(ev *models.TimelineEvent) bool {
	if ev.RoomID != s.roomID {
		return false
	}
	if s.threadID == "" {
		return ev.ThreadID == ""
	}
	return ev.ThreadID == s.threadID || ev.ID == s.threadID
}

// fire calls fn for every listener outside the lock.
func (s *StoreTimeline) fire(fn func(timeline.Listener)) {
	s.mu.Lock()
	listeners := make([]timeline.Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()
	for _, l := range listeners {
		fn(l)
	}
}
