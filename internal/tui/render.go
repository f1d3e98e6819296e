package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/tOgg1/roomview/internal/models"
	"github.com/tOgg1/roomview/internal/timeline"
)

const gutter = "      "

type rowRenderer struct {
	st         styles
	self       id.UserID
	roomID     id.RoomID
	timestamps bool
	width      int
	spin       int
}

func (r rowRenderer) render(row timeline.Row) string {
	var line string
	switch row.Kind {
	case timeline.RowPlaceholder:
		line = r.st.muted.Render(gutter + spinnerFrame(r.spin) + " loading")
	case timeline.RowIntro:
		line = r.intro(row)
	case timeline.RowUnreadDivider:
		line = r.rule("new messages", r.st.divider)
	case timeline.RowDayDivider:
		line = r.rule(row.Day.Format("Mon, 02 Jan 2006"), r.st.muted)
	case timeline.RowEmpty:
		line = r.st.muted.Render("No messages yet.")
	default:
		line = r.event(row)
	}
	if r.width > 0 {
		line = lipgloss.NewStyle().MaxWidth(r.width).Render(line)
	}
	return line
}

func (r rowRenderer) intro(row timeline.Row) string {
	text := "Beginning of " + string(r.roomID)
	if row.Event != nil {
		text += " (created by " + string(row.Event.Sender) + ")"
	}
	return r.st.header.Render(text)
}

func (r rowRenderer) rule(label string, style lipgloss.Style) string {
	width := r.width
	if width <= 0 {
		width = 40
	}
	label = " " + label + " "
	side := (width - lipgloss.Width(label)) / 2
	if side < 2 {
		side = 2
	}
	return style.Render(strings.Repeat("─", side) + label + strings.Repeat("─", side))
}

func (r rowRenderer) event(row timeline.Row) string {
	ev := row.Event
	if ev == nil {
		return ""
	}
	stamp := gutter
	if r.timestamps {
		stamp = ev.Timestamp.Local().Format("15:04") + " "
	}

	var b strings.Builder
	switch {
	case ev.IsMembershipLike():
		b.WriteString(r.st.muted.Render(stamp))
		b.WriteString(r.st.system.Render("* " + string(ev.Sender) + " " + describeState(ev)))
	case row.BodyOnly:
		b.WriteString(gutter)
		b.WriteString(body(ev))
	default:
		sender := r.st.other
		if ev.Sender == r.self {
			sender = r.st.own
		}
		b.WriteString(r.st.muted.Render(stamp))
		b.WriteString(sender.Render(string(ev.Sender)))
		b.WriteString(" ")
		b.WriteString(body(ev))
	}
	if row.Editing {
		b.WriteString(r.st.divider.Render("  [editing]"))
	}

	line := b.String()
	if row.Focus {
		line = r.st.focus.Render(line)
	}
	return line
}

func describeState(ev *models.TimelineEvent) string {
	switch ev.Type {
	case event.StateMember:
		return "changed their membership"
	case event.StatePinnedEvents:
		return "changed the pinned messages"
	default:
		return "sent " + ev.Type.Type
	}
}

func body(ev *models.TimelineEvent) string {
	text := strings.TrimSpace(strings.ReplaceAll(ev.Body, "\n", " "))
	if text == "" {
		return fmt.Sprintf("<%s>", ev.Type.Type)
	}
	if ev.MsgType == event.MsgEmote {
		return "* " + text
	}
	return text
}

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

func spinnerFrame(i int) string {
	if i < 0 {
		i = -i
	}
	return spinnerFrames[i%len(spinnerFrames)]
}
