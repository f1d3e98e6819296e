package tui

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/tOgg1/roomview/internal/config"
	"github.com/tOgg1/roomview/internal/events"
	"github.com/tOgg1/roomview/internal/models"
	"github.com/tOgg1/roomview/internal/source"
	"github.com/tOgg1/roomview/internal/testutil"
	"github.com/tOgg1/roomview/internal/timeline"
)

const testRoom = id.RoomID("!room:localhost")

type testView struct {
	m    *Model
	ctrl *timeline.Controller
	vp   *Viewport
	src  *source.StoreTimeline
}

func newTestView(t *testing.T, count int) *testView {
	t.Helper()
	repo := testutil.NewStore(t)
	testutil.SeedRoom(t, repo, testRoom, count)

	src := source.NewStoreTimeline(repo, source.Options{RoomID: testRoom, PageSize: 40})
	bus := events.NewBus()
	vp := &Viewport{}

	cfg := config.DefaultTimelineConfig()
	cfg.MaxEvents = 20
	cfg.PageLimit = 10
	cfg.ScrollTriggerPos = 3
	cfg.PinnedThreshold = 1
	cfg.ScrollThrottle = 0
	ctrl, err := timeline.New(src, vp, nil, timeline.Options{
		RoomID:   testRoom,
		UserID:   "@alice:localhost",
		Timeline: cfg,
		Bus:      bus,
	})
	require.NoError(t, err)
	t.Cleanup(ctrl.Close)

	m, err := NewModel(context.Background(), ctrl, vp, bus, Options{RoomID: testRoom, UserID: "@alice:localhost"})
	require.NoError(t, err)
	t.Cleanup(m.Close)

	require.NoError(t, ctrl.Open(context.Background(), ""))
	m.Update(tea.WindowSizeMsg{Width: 80, Height: 12})
	v := &testView{m: m, ctrl: ctrl, vp: vp, src: src}
	v.pump()
	return v
}

// pump delivers queued notifications like the program loop would.
func (v *testView) pump() {
	for {
		select {
		case ev := <-v.m.notes:
			v.m.Update(noteMsg{ev: ev})
		default:
			return
		}
	}
}

func (v *testView) press(key string) tea.Cmd {
	var msg tea.KeyMsg
	switch key {
	case "up":
		msg = tea.KeyMsg{Type: tea.KeyUp}
	case "end":
		msg = tea.KeyMsg{Type: tea.KeyEnd}
	case "esc":
		msg = tea.KeyMsg{Type: tea.KeyEsc}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
	}
	_, cmd := v.m.Update(msg)
	v.pump()
	return cmd
}

func TestViewOpensAtLiveTail(t *testing.T) {
	v := newTestView(t, 60)

	from, end := v.ctrl.Window()
	assert.Equal(t, 20, from)
	assert.Equal(t, 40, end)

	start, stop := v.vp.Range()
	assert.Equal(t, 12, start)
	assert.Equal(t, 22, stop)

	out := v.m.View()
	assert.Contains(t, out, "message 60")
	assert.Contains(t, out, "events 20-40 of 40")
	assert.NotContains(t, out, "message 41")
}

func TestScrollingUpKeepsAnchoredRow(t *testing.T) {
	v := newTestView(t, 60)

	for i := 0; i < 10; i++ {
		v.press("up")
	}
	from, end := v.ctrl.Window()
	assert.Equal(t, 10, from)
	assert.Equal(t, 30, end)

	// the row that was at the top stays at the top
	start, _ := v.vp.Range()
	assert.Equal(t, 12, start)
	assert.Equal(t, v.src.EventAt(20).ID.String(), v.m.rows[start].Key)

	v.press("end")
	from, end = v.ctrl.Window()
	assert.Equal(t, 20, from)
	assert.Equal(t, 40, end)
}

func TestEditLastMessage(t *testing.T) {
	v := newTestView(t, 60)

	v.press("e")
	require.NotEmpty(t, v.ctrl.Editing())
	assert.Contains(t, v.m.View(), "[editing]")
	assert.True(t, strings.HasPrefix(v.m.status, "editing "))

	v.press("esc")
	assert.Empty(t, v.ctrl.Editing())
	assert.Equal(t, "edit cancelled", v.m.status)
	assert.NotContains(t, v.m.View(), "[editing]")
}

func TestArrivalKeyAppends(t *testing.T) {
	v := newTestView(t, 10)
	v.m.opts.Arrive = func(ctx context.Context) error {
		return v.src.Append(ctx, &models.TimelineEvent{
			Sender:  "@bob:localhost",
			Type:    event.EventMessage,
			MsgType: event.MsgText,
			Body:    "fresh arrival",
		})
	}

	cmd := v.press("a")
	require.NotNil(t, cmd)
	msg := cmd()
	v.m.Update(msg)
	v.pump()

	assert.Equal(t, 11, v.src.Len())
	assert.Contains(t, v.m.View(), "fresh arrival")
}

func TestQuitClosesSubscription(t *testing.T) {
	v := newTestView(t, 5)
	cmd := v.press("q")
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	v.m.Close()
}

func TestViewBeforeSizeIsEmpty(t *testing.T) {
	m := &Model{}
	assert.Empty(t, m.View())
}
