package cli

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/tOgg1/roomview/internal/config"
	"github.com/tOgg1/roomview/internal/db"
	"github.com/tOgg1/roomview/internal/events"
	"github.com/tOgg1/roomview/internal/logging"
	"github.com/tOgg1/roomview/internal/models"
	"github.com/tOgg1/roomview/internal/source"
	"github.com/tOgg1/roomview/internal/state"
	"github.com/tOgg1/roomview/internal/timeline"
	"github.com/tOgg1/roomview/internal/tui"
)

type viewOptions struct {
	theme        string
	liveInterval time.Duration
	liveSenders  []string
}

func newViewCmd(a *app) *cobra.Command {
	var (
		flags targetFlags
		opts  viewOptions
	)
	cmd := &cobra.Command{
		Use:     "view",
		Aliases: []string{"ui"},
		Short:   "Browse a room in the terminal",
		Long: `Open a room timeline in the terminal. Scrolling near either edge pages
history in and out while the row under the cursor stays put.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.nonInteractive || !hasTTY() {
				return &PreflightError{
					Message:  "the viewer requires an interactive terminal",
					Hint:     "run without --non-interactive and with a TTY, or print the window instead",
					NextStep: "roomview window",
				}
			}
			return a.runView(cmd.Context(), flags, opts)
		},
	}
	flags.register(cmd, true)
	cmd.Flags().StringVar(&opts.theme, "theme", "", "theme: default|high-contrast (default: tui.theme)")
	cmd.Flags().DurationVar(&opts.liveInterval, "live-interval", 0, "append a synthetic message this often (0 = only on 'a')")
	cmd.Flags().StringSliceVar(&opts.liveSenders, "live-senders", []string{"@alice:localhost", "@bob:localhost"}, "senders of synthetic messages")
	return cmd
}

func hasTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

func (a *app) runView(ctx context.Context, flags targetFlags, opts viewOptions) error {
	if a.cfg.Logging.File == "" {
		// log lines would tear the alternate screen
		logging.Init(logging.Config{Level: "disabled"})
	}

	database, err := a.openDatabase(ctx)
	if err != nil {
		return err
	}
	defer database.Close()
	repo := db.NewTimelineRepository(database)

	markers := state.New(a.cfg.StatePath())
	if err := markers.Load(); err != nil {
		logger := logging.Component("cli")
		logger.Warn().Err(err).Msg("starting without saved read markers")
	}
	defer markers.Close()

	t, err := a.resolveTarget(ctx, repo, flags, markers.LastRoom())
	if err != nil {
		return err
	}
	markers.SetLastRoom(state.Key(t.RoomID, t.ThreadID))

	src := source.NewStoreTimeline(repo, source.Options{
		RoomID:   t.RoomID,
		ThreadID: t.ThreadID,
		Latency:  a.cfg.Store.PaginationDelay,
		Markers:  markers,
	})
	bus := events.NewBus()
	defer bus.Close()
	vp := &tui.Viewport{}

	ctrl, err := timeline.New(src, vp, source.NewReceipts(repo, markers), timeline.Options{
		RoomID:   t.RoomID,
		ThreadID: t.ThreadID,
		UserID:   id.UserID(a.cfg.Session.UserID),
		Timeline: tui.LineThresholds(a.cfg.Timeline),
		Guest:    a.cfg.Session.Guest,
		Bus:      bus,
	})
	if err != nil {
		return err
	}
	defer ctrl.Close()

	a.loader.Watch(func(cfg *config.Config) {
		if err := ctrl.ApplyConfig(tui.LineThresholds(cfg.Timeline)); err != nil {
			logger := logging.Component("cli")
			logger.Warn().Err(err).Msg("config change not applied")
		}
	})

	theme := opts.theme
	if theme == "" {
		theme = a.cfg.TUI.Theme
	}
	model, err := tui.NewModel(ctx, ctrl, vp, bus, tui.Options{
		RoomID:         t.RoomID,
		ThreadID:       t.ThreadID,
		UserID:         id.UserID(a.cfg.Session.UserID),
		Theme:          theme,
		ShowTimestamps: a.cfg.TUI.ShowTimestamps,
		Arrive:         syntheticArrivals(src, t, opts.liveSenders),
		LiveInterval:   opts.liveInterval,
	})
	if err != nil {
		return err
	}
	defer model.Close()

	if err := ctrl.Open(ctx, t.EventID); err != nil {
		return fmt.Errorf("open %s: %w", t, err)
	}

	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithReportFocus(), tea.WithContext(ctx))
	_, err = program.Run()
	return err
}

// syntheticArrivals returns an arrival func appending numbered messages from
// senders in turn.
func syntheticArrivals(src *source.StoreTimeline, t target, senders []string) func(context.Context) error {
	if len(senders) == 0 {
		senders = []string{"@alice:localhost"}
	}
	var n atomic.Int64
	return func(ctx context.Context) error {
		i := n.Add(1)
		return src.Append(ctx, &models.TimelineEvent{
			ID:        db.NewEventID(),
			RoomID:    t.RoomID,
			ThreadID:  t.ThreadID,
			Sender:    id.UserID(senders[int(i-1)%len(senders)]),
			Timestamp: time.Now().UTC(),
			Type:      event.EventMessage,
			MsgType:   event.MsgText,
			Body:      fmt.Sprintf("live message %d", i),
		})
	}
}
