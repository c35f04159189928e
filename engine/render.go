package engine

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/dustin/go-humanize"

	"github.com/ftahirops/nbstat/model"
	"github.com/ftahirops/nbstat/resource"
	"github.com/ftahirops/nbstat/table"
	"github.com/ftahirops/nbstat/view"
)

// RenderOptions describe one rendering of a snapshot.
type RenderOptions struct {
	view.State
	Cell           table.CellOptions
	IndexCondition *regexp.Regexp
	Totals         bool
	Summary        bool
	Separator      string
	// Keys, when set, is used for the help lines.
	Keys *view.KeyMap
}

// Screen is a rendered view split into the fixed top, the scrollable
// body and the fixed bottom.
type Screen struct {
	Header []string
	Body   []string
	Footer []string
}

// Lines joins the three parts.
func (s Screen) Lines() []string {
	out := make([]string, 0, len(s.Header)+len(s.Body)+len(s.Footer))
	out = append(out, s.Header...)
	out = append(out, s.Body...)
	return append(out, s.Footer...)
}

func (s Screen) String() string { return strings.Join(s.Lines(), "\n") }

const partGap = "    "

var (
	summaryStyle  = lipgloss.NewStyle().Bold(true)
	kernelsStyle  = lipgloss.NewStyle().Bold(true).Foreground(resource.ColorMagenta)
	devicesStyle  = lipgloss.NewStyle().Bold(true).Foreground(resource.ColorGreen)
	systemStyle   = lipgloss.NewStyle().Bold(true).Foreground(resource.ColorCyan)
	warningStyle  = lipgloss.NewStyle().Foreground(resource.ColorYellow)
	tableSepStyle = lipgloss.NewStyle().Bold(true)
)

// Render reconciles snap and lays it out with the optional summary header,
// footnote and help lines.
func (in *Inspector) Render(snap *model.Snapshot, opts RenderOptions) Screen {
	t := in.Table(snap, opts.Kind, Query{Verbosity: opts.Verbosity, IndexCondition: opts.IndexCondition})
	spec := opts.Spec
	if spec == nil {
		spec = opts.Kind.Preset()
	}
	lines := t.Render(spec.Included(), table.RenderOptions{
		Cell:           opts.Cell,
		Header:         opts.Header,
		SeparateHeader: opts.SeparateHeader,
		SeparateIndex:  opts.SeparateIndex,
		HideSimilar:    opts.HideSimilar,
		Totals:         opts.Totals,
		Separator:      opts.Separator,
	})

	head := 0
	if opts.Header {
		head = 1
		if opts.SeparateHeader {
			head = 2
		}
	}
	head = min(head, len(lines))

	var extra []string
	if opts.SeparateTable && len(lines) > 0 {
		extra = append(extra, tableSepStyle.Render(strings.Repeat("-", ansi.StringWidth(lines[0]))))
	}
	var summary string
	if opts.Summary && snap != nil {
		summary = summaryLine(snap)
	}
	if opts.Footnote && snap != nil {
		extra = append(extra, footnote(snap, opts.Cell)...)
	}
	if opts.Help {
		keys := opts.Keys
		if keys == nil {
			km := view.DefaultKeyMap()
			keys = &km
		}
		extra = append(extra, helpLines(*keys)...)
	}

	all := lines
	if summary != "" {
		all = append([]string{summary}, all...)
		head++
	}
	all = align(append(all, extra...))
	footer := all[len(all)-len(extra):]
	if opts.Footnote && snap != nil {
		// warnings are left out of the alignment, they can be long
		footer = append(footer, warningLines(snap)...)
	}
	return Screen{
		Header: all[:head],
		Body:   all[head : len(all)-len(extra)],
		Footer: footer,
	}
}

func summaryLine(snap *model.Snapshot) string {
	var parts []string
	if v := snap.Devices.DriverVersion; v != "" {
		parts = append(parts, "DRIVER: "+v)
	}
	if v := snap.Devices.CUDAVersion; v != "" {
		parts = append(parts, "CUDA: "+v)
	}
	if snap.System.MemoryTotal > 0 {
		parts = append(parts, "HOST RAM: "+humanize.IBytes(snap.System.MemoryTotal))
	}
	parts = append(parts, snap.Timestamp.Format("2006-01-02 15:04:05"))
	return summaryStyle.Render(strings.Join(parts, partGap))
}

func footnote(snap *model.Snapshot, cell table.CellOptions) []string {
	used, total := snap.Devices.DeviceCount()
	lines := []string{
		kernelsStyle.Render(fmt.Sprintf("# KERNELS: %3d", len(snap.Kernels))) + partGap +
			devicesStyle.Render(fmt.Sprintf("DEVICES USED: %d / %d", used, total)),
	}

	unit := cell.ProcessMemoryUnit
	if unit == 0 {
		unit = table.UnitGB
	}
	cpu := "   N/A"
	if p := snap.System.CPUPercent; p != nil {
		cpu = fmt.Sprintf("%6.1f", *p)
	}
	memTotal := unit.Format(float64(snap.System.MemoryTotal))
	memUsed := unit.Format(float64(snap.System.MemoryUsed))
	if n := len(memTotal) - len(memUsed); n > 0 {
		memUsed = strings.Repeat(" ", n) + memUsed
	}
	lines = append(lines, strings.Join([]string{
		systemStyle.Render(snap.Timestamp.Format("2006-01-02 15:04:05")),
		systemStyle.Render("CPU: " + cpu + "%"),
		systemStyle.Render(fmt.Sprintf("RSS: %s / %s %s", memUsed, memTotal, unit)),
	}, partGap))

	return lines
}

func warningLines(snap *model.Snapshot) []string {
	out := make([]string, 0, len(snap.Warnings))
	for _, w := range snap.Warnings {
		out = append(out, warningStyle.Render(fmt.Sprintf("%s: %s", w.Source, w.Err)))
	}
	return out
}

func helpLines(keys view.KeyMap) []string {
	h := help.New()
	h.ShortSeparator = partGap
	general := h.ShortHelpView([]key.Binding{
		keys.SwitchView, keys.Verbosity, keys.Separators, keys.Bars, keys.Averages, keys.Reset, keys.Quit,
	})
	cols := make([]key.Binding, 0, len(keys.Columns))
	for _, c := range keys.Columns {
		cols = append(cols, c.Binding)
	}
	h.ShortSeparator = "  "
	return []string{general, h.ShortHelpView(cols)}
}

// align right-justifies every line to the widest one.
func align(lines []string) []string {
	width := 0
	for _, l := range lines {
		width = max(width, ansi.StringWidth(l))
	}
	out := make([]string, len(lines))
	for i, l := range lines {
		if pad := width - ansi.StringWidth(l); pad > 0 {
			l = strings.Repeat(" ", pad) + l
		}
		out[i] = l
	}
	return out
}
