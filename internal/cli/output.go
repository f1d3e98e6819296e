package cli

import (
	"bufio"
	"encoding/json"
	"io"
	"reflect"
	"strings"

	"github.com/mattn/go-runewidth"
)

const columnGap = 2

// table renders aligned columns for human output. Cells may carry ANSI
// styling; widths are measured on the visible text.
type table struct {
	headers []string
	rows    [][]string
}

func newTable(headers ...string) *table {
	return &table{headers: headers}
}

func (t *table) add(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *table) render(out io.Writer) error {
	cols := len(t.headers)
	for _, row := range t.rows {
		cols = max(cols, len(row))
	}
	if cols == 0 {
		return nil
	}

	widths := make([]int, cols)
	measure := func(row []string) {
		for i, cell := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(stripANSI(cell)))
		}
	}
	measure(t.headers)
	for _, row := range t.rows {
		measure(row)
	}

	w := bufio.NewWriter(out)
	line := func(row []string) {
		for i := 0; i < cols; i++ {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			w.WriteString(cell)
			if i < cols-1 {
				pad := widths[i] - runewidth.StringWidth(stripANSI(cell))
				w.WriteString(strings.Repeat(" ", max(pad, 0)+columnGap))
			}
		}
		w.WriteString("\n")
	}
	if len(t.headers) > 0 {
		line(t.headers)
	}
	for _, row := range t.rows {
		line(row)
	}
	return w.Flush()
}

// stripANSI drops CSI escape sequences.
func stripANSI(value string) string {
	if !strings.Contains(value, "\x1b[") {
		return value
	}
	var b strings.Builder
	b.Grow(len(value))
	for i := 0; i < len(value); i++ {
		if value[i] != 0x1b || i+1 >= len(value) || value[i+1] != '[' {
			b.WriteByte(value[i])
			continue
		}
		i += 2
		for i < len(value) && (value[i] < 0x40 || value[i] > 0x7e) {
			i++
		}
	}
	return b.String()
}

// writeOutput encodes v as indented JSON, or as one line per element when
// jsonl is set and v is a slice.
func writeOutput(out io.Writer, v any, jsonl bool) error {
	enc := json.NewEncoder(out)
	if !jsonl {
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return enc.Encode(v)
	}
	for i := 0; i < rv.Len(); i++ {
		if err := enc.Encode(rv.Index(i).Interface()); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) write(out io.Writer, v any) error {
	return writeOutput(out, v, a.jsonlOutput)
}
