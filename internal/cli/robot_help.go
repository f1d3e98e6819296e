package cli

import (
	"fmt"
	"io"
)

func hasRobotHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--" {
			return false
		}
		if arg == "--robot-help" || arg == "--robot-help=true" {
			return true
		}
	}
	return false
}

func printRobotHelp(w io.Writer) {
	if w == nil {
		return
	}

	// keep: concise; copy-pasteable commands; stable section names
	fmt.Fprint(w, `roomview Robot Help

Purpose
- bounded window over a Matrix room timeline, paged around the scroll position
- local SQLite store stands in for the homeserver

Quick Start
1) roomview seed --room '!demo:localhost' --count 500
2) roomview window --room '!demo:localhost' --json
3) roomview window --room '!demo:localhost' --scroll-up 60
4) roomview view --room '!demo:localhost'

Store
- roomview seed ...        : synthetic history (--thread, --with-create, --senders)
- roomview send "text"     : append one message
- roomview redact <event>  : remove an event
- roomview rooms           : list rooms
- roomview tail -f         : follow new events

Context
- roomview use '!demo:localhost' --event '$id'
- roomview use --clear

Viewer keys
- up/down k/j, pgup/pgdown, home, end (live), e (edit last), esc, a (synthetic arrival), q

Automation / scripting
- add --json / --jsonl for machine output
- roomview surface : command tree as JSON
- config: ~/.config/roomview/config.yaml, ROOMVIEW_* env overrides
`)
}
