package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/tOgg1/roomview/internal/db"
	"github.com/tOgg1/roomview/internal/logging"
	"github.com/tOgg1/roomview/internal/models"
)

func newSeedCmd(a *app) *cobra.Command {
	var (
		room       string
		thread     string
		count      int
		senders    []string
		step       time.Duration
		withCreate bool
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Fill a room with synthetic history",
		Long:  "Append a run of synthetic messages to a room (or thread) in the local store.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 {
				return fmt.Errorf("--count must be at least 1")
			}
			roomID := id.RoomID(strings.TrimSpace(room))
			if roomID == "" {
				return fmt.Errorf("--room is required")
			}

			database, err := a.openDatabase(cmd.Context())
			if err != nil {
				return err
			}
			defer database.Close()
			repo := db.NewTimelineRepository(database)

			opts := db.SeedOptions{RoomID: roomID, Count: count, Step: step, WithCreate: withCreate}
			for _, s := range senders {
				opts.Senders = append(opts.Senders, id.UserID(strings.TrimSpace(s)))
			}
			batch := db.GenerateTimeline(opts)
			threadID := id.EventID(strings.TrimSpace(thread))
			for _, ev := range batch {
				ev.ThreadID = threadID
			}
			if err := repo.AppendBatch(cmd.Context(), batch); err != nil {
				return err
			}
			logger := logging.Component("cli")
			logger.Info().
				Stringer("room_id", roomID).
				Int("events", len(batch)).
				Msg("room seeded")

			out := cmd.OutOrStdout()
			if a.machineOutput() {
				return a.write(out, map[string]any{
					"room_id":   roomID,
					"thread_id": threadID,
					"events":    len(batch),
					"first":     batch[0].ID,
					"last":      batch[len(batch)-1].ID,
					"database":  a.cfg.DatabasePath(),
				})
			}
			fmt.Fprintf(out, "Seeded %d events into %s (%s)\n", len(batch), roomID, a.cfg.DatabasePath())
			a.printNextSteps(out, HintContext{Action: "seed", RoomID: roomID, ThreadID: threadID})
			return nil
		},
	}
	cmd.Flags().StringVar(&room, "room", "!demo:localhost", "room ID")
	cmd.Flags().StringVar(&thread, "thread", "", "thread root event ID")
	cmd.Flags().IntVarP(&count, "count", "n", 200, "number of messages")
	cmd.Flags().StringSliceVar(&senders, "senders", nil, "sender user IDs taking turns (default @alice and @bob)")
	cmd.Flags().DurationVar(&step, "step", time.Minute, "time between messages")
	cmd.Flags().BoolVar(&withCreate, "with-create", false, "start with a room creation event")
	return cmd
}

func newSendCmd(a *app) *cobra.Command {
	var (
		flags  targetFlags
		sender string
		emote  bool
	)
	cmd := &cobra.Command{
		Use:   "send <body>",
		Short: "Append one message to a room",
		Args:  cobra.ExactArgs(1),
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
			if sender == "" {
				sender = a.cfg.Session.UserID
			}
			ev := &models.TimelineEvent{
				ID:        db.NewEventID(),
				RoomID:    t.RoomID,
				ThreadID:  t.ThreadID,
				Sender:    id.UserID(sender),
				Timestamp: time.Now().UTC(),
				Type:      event.EventMessage,
				MsgType:   event.MsgText,
				Body:      args[0],
			}
			if emote {
				ev.MsgType = event.MsgEmote
			}
			if err := repo.Append(cmd.Context(), ev); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if a.machineOutput() {
				return a.write(out, ev)
			}
			fmt.Fprintf(out, "Sent %s to %s\n", ev.ID, t.RoomID)
			a.printNextSteps(out, HintContext{Action: "send", RoomID: t.RoomID, ThreadID: t.ThreadID, EventID: ev.ID})
			return nil
		},
	}
	flags.register(cmd, false)
	cmd.Flags().StringVar(&sender, "sender", "", "sender user ID (default: session.user_id)")
	cmd.Flags().BoolVar(&emote, "emote", false, "send as an emote")
	return cmd
}

func newRedactCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "redact <event-id>",
		Short: "Remove an event from its timeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := a.openDatabase(cmd.Context())
			if err != nil {
				return err
			}
			defer database.Close()

			ev, err := db.NewTimelineRepository(database).Redact(cmd.Context(), id.EventID(args[0]))
			if errors.Is(err, db.ErrEventNotFound) {
				return fmt.Errorf("event %s not found", args[0])
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if a.machineOutput() {
				return a.write(out, ev)
			}
			fmt.Fprintf(out, "Redacted %s from %s\n", ev.ID, ev.RoomID)
			return nil
		},
	}
}

type roomRow struct {
	RoomID id.RoomID `json:"room_id"`
	Events int       `json:"events"`
	Latest time.Time `json:"latest"`
}

func newRoomsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "rooms",
		Aliases: []string{"ls"},
		Short:   "List stored rooms",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := a.openDatabase(cmd.Context())
			if err != nil {
				return err
			}
			defer database.Close()

			rooms, err := db.NewTimelineRepository(database).Rooms(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if a.machineOutput() {
				rows := make([]roomRow, 0, len(rooms))
				for _, r := range rooms {
					rows = append(rows, roomRow{RoomID: r.RoomID, Events: r.Events, Latest: r.Latest})
				}
				return a.write(out, rows)
			}
			if len(rooms) == 0 {
				fmt.Fprintln(out, "No rooms found.")
				return nil
			}
			tbl := newTable("ROOM", "EVENTS", "LATEST")
			for _, r := range rooms {
				tbl.add(string(r.RoomID), fmt.Sprint(r.Events), r.Latest.Local().Format(time.DateTime))
			}
			return tbl.render(out)
		},
	}
}
