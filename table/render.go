package table

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/ftahirops/nbstat/resource"
	"github.com/ftahirops/nbstat/view"
)

// EmptyPlaceholder is printed under the header of a table with no rows.
const EmptyPlaceholder = "---no entries to display---"

// DefaultSeparator fills index separator lines.
const DefaultSeparator = "—"

// RenderOptions control the grid layout.
type RenderOptions struct {
	Cell           CellOptions
	Header         bool
	SeparateHeader bool
	SeparateIndex  bool
	HideSimilar    bool
	// Totals appends a row with the sum of every summable column.
	Totals    bool
	Separator string
}

var (
	headerStyle      = lipgloss.NewStyle().Underline(true)
	headerSepStyle   = lipgloss.NewStyle().Bold(true)
	placeholderStyle = lipgloss.NewStyle().Bold(true)
)

type renderedColumn struct {
	col    view.Column
	header Cell
	body   []Cell
	total  Cell
	width  int
}

// Render lays the table out as text lines: every column is right-justified
// to its widest cell (or its minimum width), groups of the index may be
// divided by separator lines, and hidable columns are blanked where a row
// repeats the previous row of its group.
func (t Table) Render(columns []view.Column, opts RenderOptions) []string {
	if opts.Separator == "" {
		opts.Separator = DefaultSeparator
	}
	groups := t.Groups()
	totals := opts.Totals && t.Len() > 0

	cols := make([]renderedColumn, len(columns))
	labelled := false
	for j, c := range columns {
		rc := renderedColumn{col: c}
		cellOpts := opts.Cell
		cellOpts.Bar = c.Bar

		bold := false
		for _, g := range groups {
			prev := ""
			for i, row := range g.Rows.rows {
				cell := row.Render(c.Resource, cellOpts)
				text := cell.Text
				if opts.HideSimilar && c.Hidable && i > 0 && text == prev {
					cell = Cell{}
				}
				prev = text
				bold = bold || cell.Bold()
				rc.body = append(rc.body, cell)
			}
		}

		hs := headerStyle
		if c.Resource.IsDelimiter() {
			hs = lipgloss.NewStyle()
		} else if bold {
			hs = hs.Bold(true)
		}
		rc.header = Cell{Text: c.Resource.Header(), Style: hs.Inherit(c.Resource.Style())}

		if totals {
			switch {
			case c.Resource.IsDelimiter():
				rc.total = Row{}.Render(c.Resource, cellOpts)
			case c.Resource.Summable() && t.HasColumn(c.Resource):
				sum := NewRow(map[resource.Resource]Value{c.Resource: t.Aggregate(c.Resource, Sum)})
				rc.total = sum.Render(c.Resource, cellOpts)
			case !labelled:
				rc.total = Cell{Text: "TOTAL", Style: headerSepStyle}
				labelled = true
			}
		}

		rc.width = c.MinWidth
		if opts.Header {
			rc.width = max(rc.width, rc.header.Width())
		}
		for _, cell := range rc.body {
			rc.width = max(rc.width, cell.Width())
		}
		if totals {
			rc.width = max(rc.width, rc.total.Width())
		}
		cols[j] = rc
	}

	line := func(pick func(rc renderedColumn) Cell) string {
		parts := make([]string, len(cols))
		for j, rc := range cols {
			parts[j] = rjust(pick(rc), rc.width)
		}
		return strings.Join(parts, " ")
	}

	var lines []string
	if opts.Header {
		lines = append(lines, line(func(rc renderedColumn) Cell { return rc.header }))
		if opts.SeparateHeader {
			lines = append(lines, separatorLine(cols, "-", headerSepStyle))
		}
	}

	if t.Len() == 0 {
		width := 0
		for _, rc := range cols {
			width += rc.width + 1
		}
		text := center(EmptyPlaceholder, width-1)
		return append(lines, placeholderStyle.Render(text))
	}

	indexSep := separatorLine(cols, opts.Separator, lipgloss.NewStyle())
	k := 0
	for gi, g := range groups {
		if gi > 0 && opts.SeparateIndex {
			lines = append(lines, indexSep)
		}
		for range g.Rows.rows {
			row := k
			lines = append(lines, line(func(rc renderedColumn) Cell { return rc.body[row] }))
			k++
		}
	}

	if totals {
		lines = append(lines, indexSep)
		lines = append(lines, line(func(rc renderedColumn) Cell { return rc.total }))
	}
	return lines
}

func rjust(c Cell, width int) string {
	s := c.Render()
	if pad := width - ansi.StringWidth(s); pad > 0 {
		return strings.Repeat(" ", pad) + s
	}
	return s
}

// separatorLine fills every column with symbol, keeping vertical delimiters
// in place so separators line up with them.
func separatorLine(cols []renderedColumn, symbol string, style lipgloss.Style) string {
	var b strings.Builder
	for j, rc := range cols {
		if j > 0 {
			b.WriteString(style.Render(symbol))
		}
		if rc.col.Resource.IsDelimiter() {
			d := rc.col.Resource.Header()
			n := rc.width - ansi.StringWidth(d)
			if n > 0 {
				b.WriteString(style.Render(strings.Repeat(symbol, n)))
			}
			b.WriteString(d)
			continue
		}
		if rc.width > 0 {
			b.WriteString(style.Render(strings.Repeat(symbol, rc.width)))
		}
	}
	return b.String()
}
