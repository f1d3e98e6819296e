package timeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/tOgg1/roomview/internal/models"
)

func openLive(t *testing.T, h *harness) {
	t.Helper()
	require.NoError(t, h.c.Open(context.Background(), ""))
	require.Equal(t, StateReady, h.c.State())
}

func TestNewRequiresSource(t *testing.T) {
	_, err := New(nil, &fakeHost{}, nil, Options{})
	require.ErrorIs(t, err, ErrNoSource)
}

func TestOpenLiveAnchorsAtTail(t *testing.T) {
	h := newHarness(t, newStubSource(makeEvents("e", 100, baseTime)), testTimelineConfig())
	openLive(t, h)

	from, end := h.window()
	assert.Equal(t, 80, from)
	assert.Equal(t, 100, end)
	assert.Equal(t, 1, h.notes.count(models.ViewEventTimelineReady))

	f := h.render()
	assert.Equal(t, -1, f.JumpToIndex)
	assert.True(t, h.c.AtBottom())

	// nothing was read yet, so reaching the tail marks it
	assert.Equal(t, int32(1), h.receipts.calls.Load())
	marked, ok := h.notes.last(models.ViewEventReadMarked)
	require.True(t, ok)
	assert.Equal(t, id.EventID("$e99"), marked.EventID)
	assert.Equal(t, testRoom, marked.RoomID)
}

func TestOpenCentersOnTarget(t *testing.T) {
	source := newStubSource(makeEvents("e", 100, baseTime))
	source.eventLoadOK = true
	h := newHarness(t, source, testTimelineConfig())

	require.NoError(t, h.c.Open(context.Background(), "$e50"))
	from, end := h.window()
	assert.Equal(t, 40, from)
	assert.Equal(t, 60, end)
	assert.Equal(t, int32(0), source.liveLoads.Load())

	ready, ok := h.notes.last(models.ViewEventTimelineReady)
	require.True(t, ok)
	assert.Equal(t, id.EventID("$e50"), ready.EventID)

	f := h.c.Frame()
	require.Equal(t, 12, f.JumpToIndex)
	row := f.Rows[f.JumpToIndex]
	assert.Equal(t, RowEvent, row.Kind)
	assert.True(t, row.Focus)
	assert.Equal(t, 50, row.Index)
}

func TestOpenFallsBackToLiveWhenTargetMissing(t *testing.T) {
	source := newStubSource(makeEvents("e", 100, baseTime))
	h := newHarness(t, source, testTimelineConfig())

	require.NoError(t, h.c.Open(context.Background(), "$missing"))
	assert.Equal(t, int32(1), source.eventLoads.Load())
	assert.Equal(t, int32(1), source.liveLoads.Load())

	from, end := h.window()
	assert.Equal(t, 80, from)
	assert.Equal(t, 100, end)

	failed, ok := h.notes.last(models.ViewEventTimelineFailed)
	require.True(t, ok)
	assert.ErrorIs(t, failed.Err, ErrNotLoaded)
	var loadErr *LoadError
	require.ErrorAs(t, failed.Err, &loadErr)
	assert.Equal(t, id.EventID("$missing"), loadErr.EventID)
	assert.Equal(t, -1, h.c.Frame().JumpToIndex)
}

func TestOpenFallbackKeepsLoadCause(t *testing.T) {
	source := newStubSource(makeEvents("e", 10, baseTime))
	source.eventLoadErr = errors.New("network down")
	h := newHarness(t, source, testTimelineConfig())

	require.NoError(t, h.c.Open(context.Background(), "$e3"))
	failed, ok := h.notes.last(models.ViewEventTimelineFailed)
	require.True(t, ok)
	assert.ErrorIs(t, failed.Err, source.eventLoadErr)
	assert.True(t, source.IsServingLiveTimeline())
}

func TestOpenAfterCloseFails(t *testing.T) {
	h := newHarness(t, newStubSource(makeEvents("e", 5, baseTime)), testTimelineConfig())
	h.c.Close()
	require.ErrorIs(t, h.c.Open(context.Background(), ""), ErrClosed)
	assert.Equal(t, StateTornDown, h.c.State())
}

func TestOpenCentersOnFirstUnread(t *testing.T) {
	source := newStubSource(makeEvents("e", 100, baseTime))
	source.readUpTo = "$e29"
	h := newHarness(t, source, testTimelineConfig())
	openLive(t, h)

	from, end := h.window()
	assert.Equal(t, 20, from)
	assert.Equal(t, 40, end)

	f := h.c.Frame()
	require.Equal(t, 13, f.JumpToIndex)
	assert.Equal(t, RowUnreadDivider, f.Rows[12].Kind)
	assert.Equal(t, id.EventID("$e30"), f.Rows[13].Event.ID)
	assert.False(t, f.Rows[13].BodyOnly)

	// the window does not reach the tail, so nothing is marked
	h.render()
	assert.Equal(t, int32(0), h.receipts.calls.Load())
}

func TestSingleBackwardRequestKeepsAnchor(t *testing.T) {
	source := newStubSource(makeEvents("e", 100, baseTime))
	source.older = makeEvents("o", 20, baseTime.Add(-20*time.Minute))
	source.serverPage = 20
	source.release = make(chan struct{})
	h := newHarness(t, source, testTimelineConfig())
	openLive(t, h)
	h.render()

	h.host.scrollTo(0)
	for i := 0; i < 20; i++ {
		if from, _ := h.window(); from == 0 {
			break
		}
		h.c.OnScroll()
	}
	from, end := h.window()
	require.Equal(t, 0, from)
	require.Equal(t, 20, end)
	require.Equal(t, int32(0), source.backwardCalls.Load())

	h.c.OnScroll()
	require.Eventually(t, func() bool { return source.backwardCalls.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.True(t, h.c.InFlight(models.Backward))

	// further ticks at the top while the request is pending are no-ops
	h.c.OnScroll()
	h.c.OnScroll()

	h.render()
	before := h.host.screenPos("$e0")

	close(source.release)
	h.c.Wait()

	assert.Equal(t, int32(1), source.backwardCalls.Load())
	assert.False(t, h.c.InFlight(models.Backward))
	assert.Equal(t, 120, source.Len())
	from, end = h.window()
	assert.Equal(t, 10, from)
	assert.Equal(t, 30, end)

	h.render()
	assert.InDelta(t, before, h.host.screenPos("$e0"), 0.5)
	assert.Equal(t, 0, h.notes.count(models.ViewEventPaginationFailed))
}

func TestLiveArrivalFollowsTail(t *testing.T) {
	source := newStubSource(makeEvents("e", 100, baseTime))
	h := newHarness(t, source, testTimelineConfig())
	openLive(t, h)
	h.render()
	require.Equal(t, int32(1), h.receipts.calls.Load())

	arrival := makeEvents("new", 1, baseTime.Add(100*time.Minute))[0]
	source.appendEvent(arrival)

	from, end := h.window()
	assert.Equal(t, 81, from)
	assert.Equal(t, 101, end)
	assert.Equal(t, int32(2), h.receipts.calls.Load())

	h.render()
	h.c.OnScroll()
	assert.True(t, h.c.AtBottom())
	atBottom, ok := h.notes.last(models.ViewEventAtBottom)
	require.True(t, ok)
	assert.True(t, atBottom.AtBottom)
	assert.Equal(t, int32(2), h.receipts.calls.Load())
}

func TestOwnArrivalMarksRead(t *testing.T) {
	source := newStubSource(makeEvents("e", 10, baseTime))
	h := newHarness(t, source, testTimelineConfig())
	openLive(t, h)
	h.render()
	require.Equal(t, int32(1), h.receipts.calls.Load())

	mine := makeEvents("mine", 1, baseTime.Add(time.Hour))[0]
	mine.Sender = me
	source.appendEvent(mine)
	assert.Equal(t, int32(2), h.receipts.calls.Load())
}

func TestHiddenViewMarksReadOnceVisible(t *testing.T) {
	source := newStubSource(makeEvents("e", 30, baseTime))
	h := newHarness(t, source, testTimelineConfig(), func(o *Options) { o.Hidden = true })
	openLive(t, h)
	h.render()
	require.True(t, h.c.AtBottom())
	assert.Equal(t, int32(0), h.receipts.calls.Load())

	h.c.OnScroll()
	assert.Equal(t, int32(0), h.receipts.calls.Load())

	h.c.SetVisible(true)
	assert.Equal(t, int32(1), h.receipts.calls.Load())
	assert.Equal(t, id.EventID("$e29"), source.ReadUpToEventID())

	h.c.SetVisible(false)
	h.c.SetVisible(true)
	assert.Equal(t, int32(1), h.receipts.calls.Load())
}

func TestFailedReceiptIsSentAgain(t *testing.T) {
	source := newStubSource(makeEvents("e", 10, baseTime))
	h := newHarness(t, source, testTimelineConfig())
	h.receipts.fail(errors.New("503 service unavailable"))
	openLive(t, h)
	h.render()
	require.Equal(t, int32(1), h.receipts.calls.Load())
	require.Empty(t, source.ReadUpToEventID())

	h.receipts.fail(nil)
	h.c.OnScroll()
	assert.Equal(t, int32(2), h.receipts.calls.Load())
	assert.Equal(t, id.EventID("$e9"), source.ReadUpToEventID())
}

func TestWindowFollowsEventsPrependedBeforeResult(t *testing.T) {
	source := newStubSource(makeEvents("e", 100, baseTime))
	h := newHarness(t, source, testTimelineConfig())
	openLive(t, h)
	h.render()
	from, end := h.window()
	require.Equal(t, 80, from)
	require.Equal(t, 100, end)

	source.prepend(makeEvents("o", 20, baseTime.Add(-time.Hour)))
	from, end = h.window()
	assert.Equal(t, 100, from)
	assert.Equal(t, 120, end)
	assert.Equal(t, id.EventID("$e80"), h.c.Events()[0].ID)
	assert.Equal(t, 100, h.c.Frame().From)

	// indices reported after the prepend are in the new coordinates
	source.redact(0)
	from, end = h.window()
	assert.Equal(t, 99, from)
	assert.Equal(t, 119, end)
	assert.Equal(t, id.EventID("$e80"), h.c.Events()[0].ID)
}

func TestArrivalWhileScrolledUpKeepsWindow(t *testing.T) {
	source := newStubSource(makeEvents("e", 20, baseTime))
	h := newHarness(t, source, testTimelineConfig())
	openLive(t, h)
	h.render()
	require.Equal(t, int32(1), h.receipts.calls.Load())

	h.host.scrollTo(0)
	h.c.OnScroll()
	changed := h.notes.count(models.ViewEventWindowChanged)

	source.appendEvent(makeEvents("new", 1, baseTime.Add(time.Hour))[0])
	from, end := h.window()
	assert.Equal(t, 0, from)
	assert.Equal(t, 20, end)
	assert.Equal(t, changed+1, h.notes.count(models.ViewEventWindowChanged))
	assert.Equal(t, int32(1), h.receipts.calls.Load())
	assert.False(t, h.c.AtBottom())
}

func TestRedactions(t *testing.T) {
	t.Run("only event", func(t *testing.T) {
		source := newStubSource(makeEvents("e", 1, baseTime))
		h := newHarness(t, source, testTimelineConfig())
		openLive(t, h)
		h.render()

		source.redact(0)
		from, end := h.window()
		assert.Equal(t, 0, from)
		assert.Equal(t, 0, end)
		assert.Empty(t, h.c.Frame().Rows)
		assert.Empty(t, h.c.Events())
	})

	t.Run("before window", func(t *testing.T) {
		source := newStubSource(makeEvents("e", 30, baseTime))
		h := newHarness(t, source, testTimelineConfig())
		openLive(t, h)
		h.render()

		source.redact(5)
		from, end := h.window()
		assert.Equal(t, 9, from)
		assert.Equal(t, 29, end)
		assert.Equal(t, id.EventID("$e10"), h.c.Events()[0].ID)
	})

	t.Run("inside window", func(t *testing.T) {
		source := newStubSource(makeEvents("e", 30, baseTime))
		h := newHarness(t, source, testTimelineConfig())
		openLive(t, h)
		h.render()

		source.redact(20)
		from, end := h.window()
		assert.Equal(t, 10, from)
		assert.Equal(t, 29, end)
		assert.Len(t, h.c.Events(), 19)
	})
}

func TestResultAfterCloseIsDropped(t *testing.T) {
	source := newStubSource(makeEvents("e", 5, baseTime))
	source.older = makeEvents("o", 5, baseTime.Add(-time.Hour))
	source.release = make(chan struct{})
	h := newHarness(t, source, testTimelineConfig())
	openLive(t, h)
	h.render()
	require.Eventually(t, func() bool { return source.backwardCalls.Load() == 1 }, time.Second, 5*time.Millisecond)

	h.c.Close()
	changed := h.notes.count(models.ViewEventWindowChanged)
	close(source.release)
	h.c.Wait()

	assert.Equal(t, 10, source.Len())
	from, end := h.window()
	assert.Equal(t, 0, from)
	assert.Equal(t, 0, end)
	assert.Equal(t, changed, h.notes.count(models.ViewEventWindowChanged))
	assert.Equal(t, 0, h.notes.count(models.ViewEventPaginationFailed))
	assert.Equal(t, 0, source.listenerCount())
}

func TestPaginationFailureIsReportedAndRetried(t *testing.T) {
	source := newStubSource(makeEvents("e", 5, baseTime))
	source.older = makeEvents("o", 5, baseTime.Add(-time.Hour))
	source.paginateErr = errors.New("boom")
	h := newHarness(t, source, testTimelineConfig())
	openLive(t, h)
	h.render()
	h.c.Wait()

	failed, ok := h.notes.last(models.ViewEventPaginationFailed)
	require.True(t, ok)
	assert.Equal(t, models.Backward, failed.Direction)
	assert.ErrorIs(t, failed.Err, source.paginateErr)
	assert.False(t, h.c.InFlight(models.Backward))
	from, end := h.window()
	assert.Equal(t, 0, from)
	assert.Equal(t, 5, end)

	h.c.OnScroll()
	h.c.Wait()
	assert.Equal(t, int32(2), source.backwardCalls.Load())
	assert.Equal(t, 2, h.notes.count(models.ViewEventPaginationFailed))
}

func TestKeyboard(t *testing.T) {
	events := makeEvents("e", 10, baseTime)
	events[3].Sender = me
	events[7].Sender = me
	events[7].MsgType = event.MsgNotice
	source := newStubSource(events)
	h := newHarness(t, source, testTimelineConfig())
	openLive(t, h)
	h.render()

	_, ok := h.c.KeyArrowUp(false)
	assert.False(t, ok)

	eventID, ok := h.c.KeyArrowUp(true)
	require.True(t, ok)
	assert.Equal(t, id.EventID("$e3"), eventID)
	assert.Equal(t, eventID, h.c.Editing())
	edit, ok := h.notes.last(models.ViewEventEditRequested)
	require.True(t, ok)
	assert.Equal(t, eventID, edit.EventID)
	assert.True(t, h.c.Frame().Rows[4].Editing)

	acted, err := h.c.KeyEscape(context.Background())
	require.NoError(t, err)
	assert.False(t, acted)

	h.c.CancelEdit()
	acted, err = h.c.KeyEscape(context.Background())
	require.NoError(t, err)
	assert.True(t, acted)
	atBottom, ok := h.notes.last(models.ViewEventAtBottom)
	require.True(t, ok)
	assert.True(t, atBottom.AtBottom)
}

func TestKeyArrowUpNeedsLiveTail(t *testing.T) {
	events := makeEvents("e", 100, baseTime)
	events[50].Sender = me
	source := newStubSource(events)
	source.eventLoadOK = true
	h := newHarness(t, source, testTimelineConfig())
	require.NoError(t, h.c.Open(context.Background(), "$e50"))

	_, ok := h.c.KeyArrowUp(true)
	assert.False(t, ok)
}

func TestScrollToLiveReloadsFromEventTimeline(t *testing.T) {
	source := newStubSource(makeEvents("e", 100, baseTime))
	source.eventLoadOK = true
	h := newHarness(t, source, testTimelineConfig())
	require.NoError(t, h.c.Open(context.Background(), "$e10"))
	from, _ := h.window()
	require.Equal(t, 0, from)

	require.NoError(t, h.c.ScrollToLive(context.Background()))
	assert.Equal(t, int32(1), source.liveLoads.Load())
	assert.Equal(t, int32(1), h.receipts.calls.Load())
	assert.Equal(t, StateReady, h.c.State())

	from, end := h.window()
	assert.Equal(t, 80, from)
	assert.Equal(t, 100, end)
	assert.Equal(t, -1, h.c.Frame().JumpToIndex)
}

func TestScrollThrottleCoalesces(t *testing.T) {
	cfg := testTimelineConfig()
	cfg.ScrollThrottle = 30 * time.Millisecond
	h := newHarness(t, newStubSource(makeEvents("e", 10, baseTime)), cfg)
	openLive(t, h)
	h.render()

	for i := 0; i < 5; i++ {
		h.c.OnScroll()
	}
	require.Eventually(t, func() bool {
		return h.notes.count(models.ViewEventAtBottom) == 1
	}, time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, h.notes.count(models.ViewEventAtBottom))
}

func TestSetVisibleRechecksForwardPagination(t *testing.T) {
	source := newStubSource(makeEvents("e", 10, baseTime))
	source.canFwd = true
	h := newHarness(t, source, testTimelineConfig())
	openLive(t, h)
	h.render()
	h.c.Wait()
	require.Equal(t, int32(1), source.forwardCalls.Load())
	assert.Equal(t, int32(0), h.receipts.calls.Load())

	h.c.SetVisible(false)
	changed := h.notes.count(models.ViewEventWindowChanged)
	h.c.SetVisible(true)
	h.c.Wait()

	assert.Equal(t, changed+1, h.notes.count(models.ViewEventWindowChanged))
	assert.Equal(t, int32(2), source.forwardCalls.Load())
}

func TestApplyConfig(t *testing.T) {
	h := newHarness(t, newStubSource(makeEvents("e", 100, baseTime)), testTimelineConfig())
	openLive(t, h)
	h.render()

	bad := testTimelineConfig()
	bad.PageLimit = 0
	require.Error(t, h.c.ApplyConfig(bad))

	cfg := testTimelineConfig()
	cfg.MaxEvents = 10
	cfg.PageLimit = 5
	require.NoError(t, h.c.ApplyConfig(cfg))

	h.host.scrollTo(0)
	h.c.OnScroll()
	from, end := h.window()
	assert.Equal(t, 75, from)
	assert.Equal(t, 85, end)
}
