package timeline

import (
	"fmt"
	"time"

	"github.com/tOgg1/roomview/internal/models"
)

// RowKind identifies what a frame row renders.
type RowKind int

const (
	RowEvent RowKind = iota
	RowPlaceholder
	RowIntro
	RowUnreadDivider
	RowDayDivider
	RowEmpty
)

func (k RowKind) String() string {
	switch k {
	case RowEvent:
		return "event"
	case RowPlaceholder:
		return "placeholder"
	case RowIntro:
		return "intro"
	case RowUnreadDivider:
		return "unread"
	case RowDayDivider:
		return "day"
	case RowEmpty:
		return "empty"
	default:
		return "unknown"
	}
}

// Row is one rendered line item of a frame.
type Row struct {
	Kind RowKind
	// Key is stable across frames for the same logical row.
	Key string
	// Event is set for event rows, and for the intro when it replaces the
	// room creation event.
	Event *models.TimelineEvent
	// Index is the timeline position of Event, -1 for synthetic rows.
	Index int
	// BodyOnly continues the previous row's sender block.
	BodyOnly bool
	Focus    bool
	Editing  bool
	// Day is the calendar day a day divider introduces.
	Day time.Time
}

// Frame is what the view renders for the current window.
type Frame struct {
	Rows []Row
	// JumpToIndex is the row to scroll to (focused event or first unread),
	// -1 to stay at the bottom.
	JumpToIndex int

	From           int
	End            int
	TimelineLength int
}

// Frame builds the rows for the current window.
func (c *Controller) Frame() Frame {
	c.lock()
	defer c.mu.Unlock()
	return c.frameLocked()
}

func (c *Controller) frameLocked() Frame {
	tl := c.source.Len()
	from, end := c.window.From(), c.window.End()
	if end > tl {
		end = tl
	}
	f := Frame{JumpToIndex: -1, From: from, End: end, TimelineLength: tl}
	if c.state != StateReady {
		return f
	}

	canBackward := c.source.CanPaginate(models.Backward)
	if (canBackward || from > 0) && !c.guest {
		f.Rows = append(f.Rows, c.placeholders("top")...)
	}

	var prev *models.TimelineEvent
	if from > 0 {
		prev = c.source.EventAt(from - 1)
	}
	for i := from; i < end; i++ {
		ev := c.source.EventAt(i)
		if ev == nil || (ev.IsRelation() && i > 0) {
			// reactions and edits decorate the rows they point at
			continue
		}

		if i == 0 && !canBackward {
			intro := Row{Kind: RowIntro, Key: "intro", Index: -1}
			if ev.IsCreate() {
				intro.Event = ev
				intro.Index = i
				f.Rows = append(f.Rows, intro)
				prev = ev
				continue
			}
			f.Rows = append(f.Rows, intro)
		}

		newBlock := false
		if i == c.divider {
			newBlock = true
			f.Rows = append(f.Rows, Row{Kind: RowUnreadDivider, Key: "unread-" + ev.ID.String(), Index: -1})
			if f.JumpToIndex == -1 {
				f.JumpToIndex = len(f.Rows)
			}
		}

		dayChanged := prev != nil && !sameDay(prev.Timestamp, ev.Timestamp)
		if dayChanged {
			f.Rows = append(f.Rows, Row{Kind: RowDayDivider, Key: "day-" + ev.ID.String(), Index: -1, Day: startOfDay(ev.Timestamp)})
		}

		focus := c.focusID != "" && ev.ID == c.focusID
		if focus {
			f.JumpToIndex = len(f.Rows)
		}
		f.Rows = append(f.Rows, Row{
			Kind:     RowEvent,
			Key:      ev.ID.String(),
			Event:    ev,
			Index:    i,
			BodyOnly: !newBlock && !dayChanged && c.continuesBlock(prev, ev),
			Focus:    focus,
			Editing:  c.editing != "" && ev.ID == c.editing,
		})
		prev = ev
	}

	if (c.source.CanPaginate(models.Forward) || end < tl) && !c.guest {
		f.Rows = append(f.Rows, c.placeholders("bottom")...)
	}
	if len(f.Rows) == 0 && c.guest {
		f.Rows = append(f.Rows, Row{Kind: RowEmpty, Key: "empty", Index: -1})
	}
	return f
}

// continuesBlock reports whether ev renders body-only under prev.
func (c *Controller) continuesBlock(prev, ev *models.TimelineEvent) bool {
	if prev == nil || prev.Sender != ev.Sender {
		return false
	}
	if prev.IsMembershipLike() || prev.IsCreate() || ev.IsMembershipLike() {
		return false
	}
	gap := ev.Timestamp.Sub(prev.Timestamp)
	return gap >= 0 && gap <= c.cfg.GroupWindow
}

func (c *Controller) placeholders(edge string) []Row {
	rows := make([]Row, 0, c.cfg.PlaceholderCount)
	for i := 0; i < c.cfg.PlaceholderCount; i++ {
		rows = append(rows, Row{Kind: RowPlaceholder, Key: fmt.Sprintf("placeholder-%s-%d", edge, i), Index: -1})
	}
	return rows
}

func sameDay(a, b time.Time) bool {
	a, b = a.Local(), b.Local()
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

func startOfDay(t time.Time) time.Time {
	t = t.Local()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
