package timeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/tOgg1/roomview/internal/config"
	"github.com/tOgg1/roomview/internal/events"
	"github.com/tOgg1/roomview/internal/models"
	"github.com/tOgg1/roomview/internal/scroll"
)

const (
	testRoom = id.RoomID("!room:localhost")
	me       = id.UserID("@me:localhost")
	other    = id.UserID("@other:localhost")
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func makeEvents(prefix string, n int, start time.Time) []*models.TimelineEvent {
	out := make([]*models.TimelineEvent, n)
	for i := range out {
		out[i] = &models.TimelineEvent{
			ID:        id.EventID(fmt.Sprintf("$%s%d", prefix, i)),
			RoomID:    testRoom,
			Sender:    other,
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Type:      event.EventMessage,
			MsgType:   event.MsgText,
		}
	}
	return out
}

// stubSource is an in-memory Source. Listeners fire outside its lock.
type stubSource struct {
	mu        sync.Mutex
	events    []*models.TimelineEvent
	older     []*models.TimelineEvent
	live      bool
	canFwd    bool
	readUpTo  id.EventID
	listeners map[int]Listener
	nextID    int

	eventLoadOK  bool
	eventLoadErr error
	paginateErr  error
	release      chan struct{}
	// serverPage overrides the requested limit when positive.
	serverPage int

	backwardCalls atomic.Int32
	forwardCalls  atomic.Int32
	liveLoads     atomic.Int32
	eventLoads    atomic.Int32
}

func newStubSource(events []*models.TimelineEvent) *stubSource {
	return &stubSource{events: events, listeners: make(map[int]Listener)}
}

func (s *stubSource) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *stubSource) CanPaginate(direction models.Direction) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if direction == models.Backward {
		return len(s.older) > 0
	}
	return s.canFwd
}

func (s *stubSource) Paginate(ctx context.Context, direction models.Direction, limit int) (int, error) {
	if direction == models.Backward {
		s.backwardCalls.Add(1)
	} else {
		s.forwardCalls.Add(1)
	}
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paginateErr != nil {
		return 0, s.paginateErr
	}
	if direction == models.Forward {
		return 0, nil
	}
	n := limit
	if s.serverPage > 0 {
		n = s.serverPage
	}
	if n > len(s.older) {
		n = len(s.older)
	}
	page := s.older[len(s.older)-n:]
	s.older = s.older[:len(s.older)-n]
	s.events = append(append([]*models.TimelineEvent{}, page...), s.events...)
	return n, nil
}

// prepend inserts events at the front without telling anyone, like a page
// that landed before its result was delivered.
func (s *stubSource) prepend(page []*models.TimelineEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(append([]*models.TimelineEvent{}, page...), s.events...)
}

func (s *stubSource) EventAt(index int) *models.TimelineEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.events) {
		return nil
	}
	return s.events[index]
}

func (s *stubSource) IndexOf(eventID id.EventID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, ev := range s.events {
		if ev.ID == eventID {
			return i
		}
	}
	return -1
}

func (s *stubSource) LoadLiveTimeline(context.Context) error {
	s.liveLoads.Add(1)
	s.mu.Lock()
	s.live = true
	s.mu.Unlock()
	s.fire(func(l Listener) {
		if l.OnReady != nil {
			l.OnReady()
		}
	})
	return nil
}

func (s *stubSource) LoadEventTimeline(_ context.Context, eventID id.EventID) (bool, error) {
	s.eventLoads.Add(1)
	if !s.eventLoadOK || s.eventLoadErr != nil {
		return false, s.eventLoadErr
	}
	s.mu.Lock()
	s.live = false
	s.mu.Unlock()
	s.fire(func(l Listener) {
		if l.OnReady != nil {
			l.OnReady()
		}
	})
	return true, nil
}

func (s *stubSource) IsServingLiveTimeline() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

func (s *stubSource) ReadUpToEventID() id.EventID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readUpTo
}

func (s *stubSource) setReadUpTo(eventID id.EventID) {
	s.mu.Lock()
	s.readUpTo = eventID
	s.mu.Unlock()
}

func (s *stubSource) Subscribe(l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := s.nextID
	s.nextID++
	s.listeners[key] = l
	return func() {
		s.mu.Lock()
		delete(s.listeners, key)
		s.mu.Unlock()
	}
}

func (s *stubSource) listenerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

func (s *stubSource) appendEvent(ev *models.TimelineEvent) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
	s.fire(func(l Listener) {
		if l.OnEvent != nil {
			l.OnEvent(ev)
		}
	})
}

func (s *stubSource) redact(index int) {
	s.mu.Lock()
	ev := s.events[index]
	s.events = append(s.events[:index:index], s.events[index+1:]...)
	s.mu.Unlock()
	s.fire(func(l Listener) {
		if l.OnRedacted != nil {
			l.OnRedacted(ev, index)
		}
	})
}

func (s *stubSource) fire(fn func(Listener)) {
	s.mu.Lock()
	ls := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		ls = append(ls, l)
	}
	s.mu.Unlock()
	for _, l := range ls {
		fn(l)
	}
}

// stubReceipts moves the source's read marker to its newest event, like a
// homeserver acknowledging the receipt.
type stubReceipts struct {
	source *stubSource
	calls  atomic.Int32

	mu  sync.Mutex
	err error
}

func (r *stubReceipts) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *stubReceipts) MarkAsRead(context.Context, id.RoomID, id.EventID) error {
	r.calls.Add(1)
	r.mu.Lock()
	err := r.err
	r.mu.Unlock()
	if err != nil {
		return err
	}
	if n := r.source.Len(); n > 0 {
		r.source.setReadUpTo(r.source.EventAt(n - 1).ID)
	}
	return nil
}

const (
	rowHeight    = 24.0
	clientHeight = 240.0
)

// fakeHost lays frame rows out at a fixed height and keeps its scrollTop
// across re-renders like a browser scroll container.
type fakeHost struct {
	mu        sync.Mutex
	keys      []string
	scrollTop float64
	gone      bool
}

func (h *fakeHost) setFrame(f Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.keys = h.keys[:0]
	for _, row := range f.Rows {
		h.keys = append(h.keys, row.Key)
	}
	h.clampLocked()
}

func (h *fakeHost) Metrics() (scroll.Metrics, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.gone {
		return scroll.Metrics{}, false
	}
	return scroll.Metrics{ScrollTop: h.scrollTop, ScrollHeight: h.heightLocked(), ClientHeight: clientHeight}, true
}

func (h *fakeHost) ScrollBy(delta float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.scrollTop += delta
	h.clampLocked()
}

func (h *fakeHost) ScrollToBottom() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.scrollTop = h.heightLocked() - clientHeight
	h.clampLocked()
}

func (h *fakeHost) ElementOffset(ref string) (float64, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, key := range h.keys {
		if key == ref {
			return float64(i) * rowHeight, true
		}
	}
	return 0, false
}

func (h *fakeHost) scrollTo(top float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.scrollTop = top
	h.clampLocked()
}

// screenPos is where the row for ref sits relative to the viewport top.
func (h *fakeHost) screenPos(ref string) float64 {
	off, _ := h.ElementOffset(ref)
	h.mu.Lock()
	defer h.mu.Unlock()
	return off - h.scrollTop
}

func (h *fakeHost) heightLocked() float64 {
	return float64(len(h.keys)) * rowHeight
}

func (h *fakeHost) clampLocked() {
	if maxTop := h.heightLocked() - clientHeight; h.scrollTop > maxTop {
		h.scrollTop = maxTop
	}
	if h.scrollTop < 0 {
		h.scrollTop = 0
	}
}

// recorder collects view notifications.
type recorder struct {
	mu     sync.Mutex
	events []models.ViewEvent
}

func (r *recorder) handle(ev models.ViewEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) count(t models.ViewEventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func (r *recorder) last(t models.ViewEventType) (models.ViewEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type == t {
			return r.events[i], true
		}
	}
	return models.ViewEvent{}, false
}

type harness struct {
	c        *Controller
	source   *stubSource
	host     *fakeHost
	receipts *stubReceipts
	notes    *recorder
}

func testTimelineConfig() config.TimelineConfig {
	cfg := config.DefaultTimelineConfig()
	cfg.MaxEvents = 20
	cfg.PageLimit = 10
	cfg.ScrollThrottle = 0
	return cfg
}

func newHarness(t *testing.T, source *stubSource, cfg config.TimelineConfig, opts ...func(*Options)) *harness {
	t.Helper()
	bus := events.NewBus()
	notes := &recorder{}
	_, err := bus.Subscribe("test", events.Filter{}, notes.handle)
	require.NoError(t, err)

	h := &harness{source: source, host: &fakeHost{}, receipts: &stubReceipts{source: source}, notes: notes}
	o := Options{
		RoomID:   testRoom,
		UserID:   me,
		Timeline: cfg,
		Bus:      bus,
	}
	for _, opt := range opts {
		opt(&o)
	}
	c, err := New(source, h.host, h.receipts, o)
	require.NoError(t, err)
	h.c = c
	t.Cleanup(c.Close)
	return h
}

// render draws the current frame and reports it back like a view would.
func (h *harness) render() Frame {
	f := h.c.Frame()
	h.host.setFrame(f)
	h.c.Rendered()
	return f
}

func (h *harness) window() (int, int) {
	return h.c.Window()
}
