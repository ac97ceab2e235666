package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
)

// DefaultMaxColumnWidth caps how wide a table column may grow.
const DefaultMaxColumnWidth = 40

// TableWriter renders rows as an aligned plain-text table. Widths are
// measured in terminal columns, so CJK text lines up. Rows are buffered
// and the table is printed on Close.
type TableWriter struct {
	out      io.Writer
	maxWidth int
	header   []string
	rows     [][]string
}

// NewTableWriter creates a TableWriter. maxWidth <= 0 means
// DefaultMaxColumnWidth.
func NewTableWriter(out io.Writer, maxWidth int) *TableWriter {
	if maxWidth <= 0 {
		maxWidth = DefaultMaxColumnWidth
	}
	return &TableWriter{out: out, maxWidth: maxWidth}
}

func (t *TableWriter) WriteHeader() error {
	t.header = Columns
	return nil
}

func (t *TableWriter) WriteRow(r Row) error {
	t.rows = append(t.rows, r.Cells())
	return nil
}

func (t *TableWriter) Close() error {
	widths := make([]int, len(Columns))
	measure := func(cells []string) {
		for i, cell := range cells {
			widths[i] = max(widths[i], min(runewidth.StringWidth(cell), t.maxWidth))
		}
	}
	measure(t.header)
	for _, row := range t.rows {
		measure(row)
	}

	var b strings.Builder
	writeLine := func(cells []string) {
		for i, cell := range cells {
			if i > 0 {
				b.WriteString("  ")
			}
			if i == len(cells)-1 {
				b.WriteString(strings.TrimRight(padToWidth(cell, widths[i]), " "))
				continue
			}
			b.WriteString(padToWidth(cell, widths[i]))
		}
		b.WriteByte('\n')
	}

	if t.header != nil {
		writeLine(t.header)
		rule := make([]string, len(widths))
		for i, w := range widths {
			rule[i] = strings.Repeat("-", w)
		}
		writeLine(rule)
	}
	for _, row := range t.rows {
		writeLine(row)
	}

	if _, err := io.WriteString(t.out, b.String()); err != nil {
		return fmt.Errorf("failed to write table: %w", err)
	}
	return nil
}

// padToWidth pads or truncates text to a fixed display width.
// Text wider than width is cut and ends in "...".
func padToWidth(text string, width int) string {
	if width <= 0 {
		return text
	}

	currentWidth := runewidth.StringWidth(text)

	if currentWidth > width {
		ellipsis := "..."
		ellipsisWidth := runewidth.StringWidth(ellipsis)

		if width <= ellipsisWidth {
			return runewidth.Truncate(ellipsis, width, "")
		}

		truncated := runewidth.Truncate(text, width-ellipsisWidth, "") + ellipsis

		// A wide rune may not fit exactly at the cut.
		if w := runewidth.StringWidth(truncated); w < width {
			truncated += strings.Repeat(" ", width-w)
		}
		return truncated
	}

	return text + strings.Repeat(" ", width-currentWidth)
}
