// Package tui renders a timeline controller in the terminal with bubbletea.
package tui

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/id"

	"github.com/tOgg1/roomview/internal/events"
	"github.com/tOgg1/roomview/internal/logging"
	"github.com/tOgg1/roomview/internal/models"
	"github.com/tOgg1/roomview/internal/timeline"
)

const (
	spinInterval = 120 * time.Millisecond
	noteBuffer   = 256
	chromeLines  = 2
)

// Options configures the terminal view.
type Options struct {
	RoomID         id.RoomID
	ThreadID       id.EventID
	UserID         id.UserID
	Theme          string
	ShowTimestamps bool

	// Arrive appends one synthetic live message. Optional.
	Arrive func(ctx context.Context) error
	// LiveInterval calls Arrive periodically when positive.
	LiveInterval time.Duration
}

type noteMsg struct {
	ev models.ViewEvent
}

type spinMsg struct{}

type liveTickMsg struct{}

type arrivedMsg struct {
	err error
}

// Model is the bubbletea model of one open timeline.
type Model struct {
	ctx  context.Context
	ctrl *timeline.Controller
	vp   *Viewport
	opts Options
	st   styles

	notes       chan models.ViewEvent
	missed      atomic.Bool
	done        chan struct{}
	unsubscribe func()

	width    int
	height   int
	frame    timeline.Frame
	rows     []timeline.Row
	lines    []string
	spin     int
	atBottom bool
	status   string
	err      error

	logger zerolog.Logger
}

var _ tea.Model = (*Model)(nil)

// NewModel wires a view to ctrl. vp must be the host ctrl was created with
// and bus the publisher it reports to.
func NewModel(ctx context.Context, ctrl *timeline.Controller, vp *Viewport, bus events.Publisher, opts Options) (*Model, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	m := &Model{
		ctx:    ctx,
		ctrl:   ctrl,
		vp:     vp,
		opts:   opts,
		st:     newStyles(ThemeByName(opts.Theme)),
		notes:  make(chan models.ViewEvent, noteBuffer),
		done:   make(chan struct{}),
		logger: logging.WithRoom("tui", opts.RoomID, opts.ThreadID),
	}
	if bus != nil {
		unsubscribe, err := bus.Subscribe("tui", events.Filter{RoomID: opts.RoomID, ThreadID: opts.ThreadID}, m.enqueue)
		if err != nil {
			return nil, fmt.Errorf("subscribe to timeline notifications: %w", err)
		}
		m.unsubscribe = unsubscribe
	}
	return m, nil
}

// enqueue runs on controller goroutines and must never block.
func (m *Model) enqueue(ev models.ViewEvent) {
	select {
	case m.notes <- ev:
	default:
		m.missed.Store(true)
	}
}

// Close detaches the view from the notification bus.
func (m *Model) Close() {
	select {
	case <-m.done:
		return
	default:
	}
	close(m.done)
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.waitForNote(), spinCmd()}
	if m.opts.Arrive != nil && m.opts.LiveInterval > 0 {
		cmds = append(cmds, m.liveTickCmd())
	}
	return tea.Batch(cmds...)
}

func (m *Model) waitForNote() tea.Cmd {
	notes, done := m.notes, m.done
	return func() tea.Msg {
		select {
		case ev := <-notes:
			return noteMsg{ev: ev}
		case <-done:
			return nil
		}
	}
}

func spinCmd() tea.Cmd {
	return tea.Tick(spinInterval, func(time.Time) tea.Msg { return spinMsg{} })
}

func (m *Model) liveTickCmd() tea.Cmd {
	return tea.Tick(m.opts.LiveInterval, func(time.Time) tea.Msg { return liveTickMsg{} })
}

func (m *Model) arriveCmd() tea.Cmd {
	arrive, ctx := m.opts.Arrive, m.ctx
	return func() tea.Msg {
		return arrivedMsg{err: arrive(ctx)}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = typed.Width, typed.Height
		m.vp.SetHeight(m.bodyHeight())
		m.refresh()
		m.ctrl.OnScroll()
		return m, nil
	case noteMsg:
		m.applyNote(typed.ev)
		return m, m.waitForNote()
	case spinMsg:
		m.spin++
		m.renderLines()
		return m, spinCmd()
	case liveTickMsg:
		return m, m.arriveCmd()
	case arrivedMsg:
		if typed.err != nil {
			m.err = typed.err
			m.logger.Warn().Err(typed.err).Msg("live arrival failed")
		}
		if m.opts.LiveInterval > 0 {
			return m, m.liveTickCmd()
		}
		return m, nil
	case tea.FocusMsg:
		m.ctrl.SetVisible(true)
		return m, nil
	case tea.BlurMsg:
		m.ctrl.SetVisible(false)
		return m, nil
	case tea.KeyMsg:
		return m, m.handleKey(typed)
	}
	return m, nil
}

func (m *Model) applyNote(ev models.ViewEvent) {
	if m.missed.Swap(false) {
		m.refresh()
	}
	switch ev.Type {
	case models.ViewEventTimelineReady, models.ViewEventWindowChanged:
		m.refresh()
	case models.ViewEventAtBottom:
		m.atBottom = ev.AtBottom
	case models.ViewEventPaginationFailed:
		m.err = ev.Err
		m.status = fmt.Sprintf("loading %s history failed, scroll to retry", ev.Direction)
	case models.ViewEventTimelineFailed:
		m.err = ev.Err
		m.status = "event not found, showing the live timeline"
	case models.ViewEventEditRequested:
		m.status = "editing " + ev.EventID.String()
		m.refresh()
	case models.ViewEventReadMarked:
		m.status = "read up to " + ev.EventID.String()
	}
}

// refresh draws the controller's current frame and reports it rendered.
func (m *Model) refresh() {
	m.frame = m.ctrl.Frame()
	m.rows = m.frame.Rows
	keys := make([]string, len(m.rows))
	for i, row := range m.rows {
		keys[i] = row.Key
	}
	m.renderLines()
	m.vp.SetRows(keys)
	if m.bodyHeight() == 0 {
		// not laid out yet; a pending jump waits for the first sized frame
		return
	}
	m.ctrl.Rendered()
}

func (m *Model) renderLines() {
	r := rowRenderer{
		st:         m.st,
		self:       m.opts.UserID,
		roomID:     m.opts.RoomID,
		timestamps: m.opts.ShowTimestamps,
		width:      m.width,
		spin:       m.spin,
	}
	lines := make([]string, len(m.rows))
	for i, row := range m.rows {
		lines[i] = r.render(row)
	}
	m.lines = lines
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "ctrl+c", "q":
		m.Close()
		return tea.Quit
	case "up", "k":
		m.scroll(-1)
	case "down", "j":
		m.scroll(1)
	case "pgup", "ctrl+u":
		m.scroll(-maxInt(1, m.bodyHeight()-1))
	case "pgdown", "ctrl+d":
		m.scroll(maxInt(1, m.bodyHeight()-1))
	case "home", "g":
		m.scroll(-len(m.lines))
	case "end", "G":
		if err := m.ctrl.ScrollToLive(m.ctx); err != nil {
			m.err = err
		}
	case "esc":
		acted, err := m.ctrl.KeyEscape(m.ctx)
		if err != nil {
			m.err = err
		}
		if !acted && m.ctrl.Editing() != "" {
			m.ctrl.CancelEdit()
			m.status = "edit cancelled"
			m.refresh()
		}
	case "e":
		if _, ok := m.ctrl.KeyArrowUp(true); !ok {
			m.status = "nothing to edit"
		}
	case "r":
		m.err = nil
		m.ctrl.OnScroll()
	case "a":
		if m.opts.Arrive != nil {
			return m.arriveCmd()
		}
	}
	return nil
}

func (m *Model) scroll(lines int) {
	m.vp.ScrollBy(float64(lines))
	m.ctrl.OnScroll()
}

func (m *Model) bodyHeight() int {
	return maxInt(0, m.height-chromeLines)
}

func (m *Model) View() string {
	if m.width <= 0 || m.height <= 0 {
		return ""
	}

	head := fmt.Sprintf("%s  events %d-%d of %d  %s",
		m.opts.RoomID, m.frame.From, m.frame.End, m.frame.TimelineLength, m.ctrl.State())
	if m.opts.ThreadID != "" {
		head = "thread " + m.opts.ThreadID.String() + "  " + head
	}
	if m.atBottom {
		head += "  live"
	}

	start, end := m.vp.Range()
	body := make([]string, 0, m.bodyHeight())
	for i := start; i < end && i < len(m.lines); i++ {
		body = append(body, m.lines[i])
	}
	for len(body) < m.bodyHeight() {
		body = append(body, "")
	}

	foot := m.st.footer.Render("↑/↓ scroll  end live  e edit last  esc back  q quit")
	switch {
	case m.err != nil:
		foot = m.st.err.Render("error: " + m.err.Error())
	case m.status != "":
		foot = m.st.footer.Render(m.status)
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		m.st.header.Render(truncate(head, m.width)),
		strings.Join(body, "\n"),
		lipgloss.NewStyle().MaxWidth(m.width).Render(foot),
	)
	return m.st.base.Render(content)
}

func truncate(s string, width int) string {
	if width <= 0 || lipgloss.Width(s) <= width {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && lipgloss.Width(string(runes)) > width-1 {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "…"
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
