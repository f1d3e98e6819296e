package cli

import (
	"fmt"
	"io"

	"maunium.net/go/mautrix/id"
)

// HintContext provides context for generating relevant next steps.
type HintContext struct {
	// Action is the command that was executed (e.g. "seed", "send", "use").
	Action string

	RoomID   id.RoomID
	ThreadID id.EventID
	EventID  id.EventID
}

// printNextSteps prints follow-up commands after a successful command.
// Machine output gets none.
func (a *app) printNextSteps(out io.Writer, ctx HintContext) {
	if a.machineOutput() {
		return
	}
	hints := generateHints(ctx)
	if len(hints) == 0 {
		return
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Next steps:")
	for _, hint := range hints {
		fmt.Fprintf(out, "  %s\n", hint)
	}
}

func generateHints(ctx HintContext) []string {
	room := roomArgs(ctx.RoomID, ctx.ThreadID)
	switch ctx.Action {
	case "seed":
		return []string{
			fmt.Sprintf("roomview view%s              # Browse the room", room),
			fmt.Sprintf("roomview window%s --scroll-up 40   # Page history headlessly", room),
			fmt.Sprintf("roomview use %s              # Make it the default room", ctx.RoomID),
		}
	case "send":
		return []string{
			fmt.Sprintf("roomview tail%s              # Show the newest events", room),
			fmt.Sprintf("roomview redact %s   # Take it back", ctx.EventID),
		}
	case "use":
		hints := []string{"roomview view                  # Open the default room"}
		if ctx.EventID != "" {
			hints = append(hints, "roomview window                # Show the window around the saved event")
		}
		return hints
	default:
		return nil
	}
}

func roomArgs(roomID id.RoomID, threadID id.EventID) string {
	if roomID == "" {
		return ""
	}
	out := " --room " + string(roomID)
	if threadID != "" {
		out += " --thread " + string(threadID)
	}
	return out
}
