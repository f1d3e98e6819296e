package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"maunium.net/go/mautrix/id"

	"github.com/tOgg1/roomview/internal/db"
	"github.com/tOgg1/roomview/internal/logging"
	"github.com/tOgg1/roomview/internal/models"
)

// StreamConfig configures event streaming behavior.
type StreamConfig struct {
	RoomID   id.RoomID
	ThreadID id.EventID

	// PollInterval is how often to check for new events.
	PollInterval time.Duration

	// Backlog is how many existing events to print before following.
	Backlog int

	// BatchSize is the max events per poll.
	BatchSize int

	// JSON writes one JSON object per event instead of text lines.
	JSON bool
}

// DefaultStreamConfig returns sensible defaults for streaming.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		PollInterval: 500 * time.Millisecond,
		Backlog:      20,
		BatchSize:    100,
	}
}

type streamRepository interface {
	Latest(ctx context.Context, roomID id.RoomID, threadID id.EventID, limit int) ([]*models.TimelineEvent, error)
	After(ctx context.Context, roomID id.RoomID, threadID id.EventID, cursor id.EventID, limit int) ([]*models.TimelineEvent, error)
}

// EventStreamer prints a timeline's newest events and then follows it.
type EventStreamer struct {
	repo   streamRepository
	out    io.Writer
	config StreamConfig
	cursor id.EventID
	logger zerolog.Logger
}

// NewEventStreamer creates a new event streamer.
func NewEventStreamer(repo streamRepository, out io.Writer, config StreamConfig) *EventStreamer {
	if config.PollInterval <= 0 {
		config.PollInterval = 500 * time.Millisecond
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	return &EventStreamer{
		repo:   repo,
		out:    out,
		config: config,
		logger: logging.WithRoom("tail", config.RoomID, config.ThreadID),
	}
}

// Backlog writes the newest existing events and positions the cursor after
// them.
func (s *EventStreamer) Backlog(ctx context.Context) error {
	limit := s.config.Backlog
	if limit <= 0 {
		// only the cursor is needed
		limit = 1
	}
	events, err := s.repo.Latest(ctx, s.config.RoomID, s.config.ThreadID, limit)
	if err != nil {
		return fmt.Errorf("failed to load backlog: %w", err)
	}
	if len(events) == 0 {
		return nil
	}
	s.cursor = events[len(events)-1].ID
	if s.config.Backlog <= 0 {
		return nil
	}
	for _, ev := range events {
		if err := s.writeEvent(ev); err != nil {
			return err
		}
	}
	return nil
}

// Stream polls for new events until the context is cancelled or the process
// is interrupted. Returns nil on graceful shutdown.
func (s *EventStreamer) Stream(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			s.logger.Debug().Msg("received interrupt, shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	s.logger.Debug().Dur("poll_interval", s.config.PollInterval).Msg("following timeline")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.Poll(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}

// Poll writes every event stored after the cursor.
func (s *EventStreamer) Poll(ctx context.Context) error {
	for {
		var (
			events []*models.TimelineEvent
			err    error
		)
		if s.cursor == "" {
			events, err = s.repo.Latest(ctx, s.config.RoomID, s.config.ThreadID, s.config.BatchSize)
		} else {
			events, err = s.repo.After(ctx, s.config.RoomID, s.config.ThreadID, s.cursor, s.config.BatchSize)
		}
		if err != nil {
			return fmt.Errorf("failed to poll events: %w", err)
		}
		for _, ev := range events {
			if err := s.writeEvent(ev); err != nil {
				return fmt.Errorf("failed to write event: %w", err)
			}
			s.cursor = ev.ID
		}
		if len(events) < s.config.BatchSize {
			return nil
		}
	}
}

func (s *EventStreamer) writeEvent(ev *models.TimelineEvent) error {
	if s.config.JSON {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(s.out, string(data))
		return err
	}
	_, err := fmt.Fprintf(s.out, "%s  %s  %s  %s\n",
		ev.Timestamp.Local().Format(time.TimeOnly), ev.ID, ev.Sender, logging.Preview(ev.Body))
	return err
}

func newTailCmd(a *app) *cobra.Command {
	var (
		flags  targetFlags
		follow bool
		config = DefaultStreamConfig()
	)
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print the newest events of a room",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
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
			config.RoomID, config.ThreadID = t.RoomID, t.ThreadID
			config.JSON = a.machineOutput()

			streamer := NewEventStreamer(repo, cmd.OutOrStdout(), config)
			if err := streamer.Backlog(cmd.Context()); err != nil {
				return err
			}
			if !follow {
				return nil
			}
			return streamer.Stream(cmd.Context())
		},
	}
	flags.register(cmd, false)
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep printing new events")
	cmd.Flags().IntVarP(&config.Backlog, "lines", "n", config.Backlog, "existing events to print first")
	cmd.Flags().DurationVar(&config.PollInterval, "interval", config.PollInterval, "poll interval when following")
	return cmd
}
