package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"maunium.net/go/mautrix/id"
)

func newUseCmd(a *app) *cobra.Command {
	var (
		thread string
		event  string
		reset  bool
	)
	cmd := &cobra.Command{
		Use:   "use [room-id]",
		Short: "Set or show the default room",
		Long: `Remember a room (and optionally a thread and an event to open at) for
commands run without --room. Without arguments the saved context is shown.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := a.contextStore()
			out := cmd.OutOrStdout()

			if reset {
				if err := store.Clear(); err != nil {
					return err
				}
				fmt.Fprintln(out, "Context cleared.")
				return nil
			}

			saved, err := store.Load()
			if err != nil {
				return err
			}
			if len(args) == 0 {
				if a.machineOutput() {
					return a.write(out, saved)
				}
				fmt.Fprintln(out, saved.String())
				return nil
			}

			room := strings.TrimSpace(args[0])
			if !strings.HasPrefix(room, "!") {
				return fmt.Errorf("invalid room ID %q: must start with '!'", room)
			}
			saved.SetRoom(room, strings.TrimSpace(thread))
			if event != "" {
				saved.SetFocus(strings.TrimSpace(event))
			}
			if err := store.Save(saved); err != nil {
				return err
			}

			if a.machineOutput() {
				return a.write(out, saved)
			}
			fmt.Fprintf(out, "Using %s\n", saved.String())
			a.printNextSteps(out, HintContext{
				Action:   "use",
				RoomID:   id.RoomID(saved.RoomID),
				ThreadID: id.EventID(saved.ThreadID),
				EventID:  id.EventID(saved.EventID),
			})
			return nil
		},
	}
	cmd.Flags().StringVar(&thread, "thread", "", "thread root event ID")
	cmd.Flags().StringVar(&event, "event", "", "event to open at")
	cmd.Flags().BoolVar(&reset, "clear", false, "forget the saved context")
	return cmd
}
