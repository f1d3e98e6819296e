package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"maunium.net/go/mautrix/id"

	"github.com/tOgg1/roomview/internal/db"
	"github.com/tOgg1/roomview/internal/logging"
	"github.com/tOgg1/roomview/internal/source"
	"github.com/tOgg1/roomview/internal/timeline"
	"github.com/tOgg1/roomview/internal/tui"
)

// settleRounds bounds the layout passes after one input.
const settleRounds = 32

type rowView struct {
	Kind     string     `json:"kind"`
	Key      string     `json:"key"`
	EventID  id.EventID `json:"event_id,omitempty"`
	Sender   id.UserID  `json:"sender,omitempty"`
	Body     string     `json:"body,omitempty"`
	BodyOnly bool       `json:"body_only,omitempty"`
	Focus    bool       `json:"focus,omitempty"`
	Visible  bool       `json:"visible"`
}

type windowView struct {
	RoomID         id.RoomID  `json:"room_id"`
	ThreadID       id.EventID `json:"thread_id,omitempty"`
	State          string     `json:"state"`
	From           int        `json:"from"`
	End            int        `json:"end"`
	TimelineLength int        `json:"timeline_length"`
	JumpToIndex    int        `json:"jump_to_index"`
	AtBottom       bool       `json:"at_bottom"`
	Rows           []rowView  `json:"rows"`
}

// headless drives a controller against an off-screen viewport, laying the
// frame out after every input the way a renderer would.
type headless struct {
	ctrl *timeline.Controller
	vp   *tui.Viewport
}

func (h *headless) layout() {
	frame := h.ctrl.Frame()
	keys := make([]string, len(frame.Rows))
	for i, row := range frame.Rows {
		keys[i] = row.Key
	}
	h.vp.SetRows(keys)
	h.ctrl.Rendered()
}

// settle lays out until pagination stops moving the window.
func (h *headless) settle() {
	for i := 0; i < settleRounds; i++ {
		before := h.shape()
		h.layout()
		h.ctrl.Wait()
		if h.shape() == before {
			return
		}
	}
}

func (h *headless) shape() [3]int {
	from, end := h.ctrl.Window()
	return [3]int{from, end, len(h.ctrl.Frame().Rows)}
}

func (h *headless) scroll(lines int) {
	step := -1
	if lines > 0 {
		step = 1
	}
	for n := lines; n != 0; n -= step {
		h.vp.ScrollBy(float64(step))
		h.ctrl.OnScroll()
		h.settle()
	}
}

func (h *headless) snapshot(t target) windowView {
	frame := h.ctrl.Frame()
	start, end := h.vp.Range()
	view := windowView{
		RoomID:         t.RoomID,
		ThreadID:       t.ThreadID,
		State:          h.ctrl.State().String(),
		From:           frame.From,
		End:            frame.End,
		TimelineLength: frame.TimelineLength,
		JumpToIndex:    frame.JumpToIndex,
		AtBottom:       h.ctrl.AtBottom(),
		Rows:           make([]rowView, 0, len(frame.Rows)),
	}
	for i, row := range frame.Rows {
		rv := rowView{
			Kind:     row.Kind.String(),
			Key:      row.Key,
			BodyOnly: row.BodyOnly,
			Focus:    row.Focus,
			Visible:  i >= start && i < end,
		}
		if row.Event != nil {
			rv.EventID = row.Event.ID
			rv.Sender = row.Event.Sender
			rv.Body = logging.Preview(row.Event.Body)
		}
		if row.Kind == timeline.RowDayDivider {
			rv.Body = row.Day.Format(time.DateOnly)
		}
		view.Rows = append(view.Rows, rv)
	}
	return view
}

type windowOptions struct {
	height   int
	scrollUp int
	guest    bool
}

// openWindow opens t headlessly and applies the scroll requested by opts.
func (a *app) openWindow(ctx context.Context, repo *db.TimelineRepository, t target, opts windowOptions) (windowView, error) {
	src := source.NewStoreTimeline(repo, source.Options{
		RoomID:   t.RoomID,
		ThreadID: t.ThreadID,
		Latency:  a.cfg.Store.PaginationDelay,
	})
	vp := &tui.Viewport{}
	vp.SetHeight(opts.height)

	cfg := tui.LineThresholds(a.cfg.Timeline)
	cfg.ScrollThrottle = 0
	ctrl, err := timeline.New(src, vp, nil, timeline.Options{
		RoomID:   t.RoomID,
		ThreadID: t.ThreadID,
		UserID:   id.UserID(a.cfg.Session.UserID),
		Timeline: cfg,
		Guest:    opts.guest || a.cfg.Session.Guest,
	})
	if err != nil {
		return windowView{}, err
	}
	defer ctrl.Close()

	if err := ctrl.Open(ctx, t.EventID); err != nil {
		return windowView{}, err
	}
	h := &headless{ctrl: ctrl, vp: vp}
	h.settle()
	if opts.scrollUp != 0 {
		h.scroll(-opts.scrollUp)
	}
	return h.snapshot(t), nil
}

func newWindowCmd(a *app) *cobra.Command {
	var (
		flags targetFlags
		opts  windowOptions
	)
	cmd := &cobra.Command{
		Use:   "window",
		Short: "Print the materialized window of a room",
		Long: `Open a room the way the viewer does, without a terminal, and print the
rows of the resulting window. --scroll-up scrolls one line at a time so
history is paged in exactly as it would be interactively.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.height < 1 {
				return fmt.Errorf("--height must be at least 1")
			}
			if opts.scrollUp < 0 {
				return fmt.Errorf("--scroll-up must not be negative")
			}
			database, err := a.openDatabase(cmd.Context())
			if err != nil {
				return err
			}
			defer database.Close()
			repo := db.NewTimelineRepository(database)

			t, err := a.resolveTarget(cmd.Context(), repo, flags, "")
			if err != nil {
				return err
			}
			view, err := a.openWindow(cmd.Context(), repo, t, opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if a.machineOutput() {
				return a.write(out, view)
			}
			return printWindow(out, view)
		},
	}
	flags.register(cmd, true)
	cmd.Flags().IntVar(&opts.height, "height", 20, "viewport height in lines")
	cmd.Flags().IntVar(&opts.scrollUp, "scroll-up", 0, "lines to scroll up after opening")
	cmd.Flags().BoolVar(&opts.guest, "guest", false, "render as a guest (no placeholders)")
	return cmd
}

func printWindow(out io.Writer, view windowView) error {
	head := fmt.Sprintf("%s  events %d-%d of %d  %s", view.RoomID, view.From, view.End, view.TimelineLength, view.State)
	if view.AtBottom {
		head += "  live"
	}
	if _, err := fmt.Fprintln(out, head); err != nil {
		return err
	}

	tbl := newTable("", "ROW", "KIND", "EVENT", "SENDER", "BODY")
	for i, row := range view.Rows {
		mark := ""
		switch {
		case row.Focus:
			mark = "*"
		case row.Visible:
			mark = ">"
		}
		sender := string(row.Sender)
		if row.BodyOnly {
			sender = ""
		}
		tbl.add(mark, fmt.Sprint(i), row.Kind, string(row.EventID), sender, row.Body)
	}
	return tbl.render(out)
}
