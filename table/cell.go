package table

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/ftahirops/nbstat/resource"
)

// Placeholder is shown for Missing values.
const Placeholder = "-"

// TypeDeviceZombie marks a device process with no live host process.
const TypeDeviceZombie = "device_zombie"

// Unit is a memory display unit.
type Unit int

const (
	UnitKB Unit = 1
	UnitMB Unit = 2
	UnitGB Unit = 3
)

// ParseUnit accepts KB, MB or GB in any case.
func ParseUnit(s string) (Unit, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "KB":
		return UnitKB, nil
	case "MB":
		return UnitMB, nil
	case "GB":
		return UnitGB, nil
	}
	return 0, fmt.Errorf("unknown memory unit %q: want KB, MB or GB", s)
}

func (u Unit) String() string {
	switch u {
	case UnitKB:
		return "KB"
	case UnitMB:
		return "MB"
	case UnitGB:
		return "GB"
	}
	return "B"
}

// Scale converts bytes into u, rounded to one decimal for GB and to an
// integer otherwise.
func (u Unit) Scale(bytes float64) float64 {
	v := bytes / math.Pow(1024, float64(u))
	if u >= UnitGB {
		return math.Round(v*10) / 10
	}
	return math.Round(v)
}

// Format renders bytes in u without the unit suffix.
func (u Unit) Format(bytes float64) string {
	v := u.Scale(bytes)
	if u >= UnitGB {
		return strconv.FormatFloat(v, 'f', 1, 64)
	}
	return strconv.FormatInt(int64(v), 10)
}

// CellOptions control how a single value is turned into text.
type CellOptions struct {
	ProcessMemoryUnit Unit
	DeviceMemoryUnit  Unit
	Bar               bool
}

func (o CellOptions) withDefaults() CellOptions {
	if o.ProcessMemoryUnit == 0 {
		o.ProcessMemoryUnit = UnitGB
	}
	if o.DeviceMemoryUnit == 0 {
		o.DeviceMemoryUnit = UnitMB
	}
	return o
}

// Cell is the textual form of one value.
type Cell struct {
	Text   string
	Style  lipgloss.Style
	styled string
}

// Render applies the style. Cells assembled from differently styled parts
// are returned as built.
func (c Cell) Render() string {
	if c.styled != "" {
		return c.styled
	}
	if c.Text == "" {
		return ""
	}
	return c.Style.Render(c.Text)
}

// Width is the visible width of the rendered cell.
func (c Cell) Width() int { return ansi.StringWidth(c.Render()) }

// Bold reports whether the cell asked for emphasis.
func (c Cell) Bold() bool { return c.Style.GetBold() }

var (
	emphasis   = lipgloss.NewStyle().Bold(true)
	alertStyle = lipgloss.NewStyle().Bold(true).Foreground(resource.ColorWhite).Background(resource.ColorRed)
	redStyle   = lipgloss.NewStyle().Foreground(resource.ColorRed)
	greenStyle = lipgloss.NewStyle().Foreground(resource.ColorGreen)
	idStyle    = lipgloss.NewStyle().Foreground(resource.ColorCyan)

	barRed    = lipgloss.NewStyle().Background(resource.ColorRed)
	barYellow = lipgloss.NewStyle().Background(resource.ColorYellow)
	barGreen  = lipgloss.NewStyle().Background(resource.ColorGreen)
)

// Render turns the value of res into a Cell. Some resources read several
// values of the row, for example device memory shows used and total.
func (r Row) Render(res resource.Resource, opts CellOptions) Cell {
	opts = opts.withDefaults()
	base := res.Style()
	cell := func(text string, extra lipgloss.Style) Cell {
		return Cell{Text: text, Style: extra.Inherit(base)}
	}
	plain := func(text string) Cell { return Cell{Text: text, Style: base} }

	if res.IsDelimiter() {
		return plain(res.Header())
	}

	v := r.Get(res)
	zombie := r.Get(resource.Type).Str() == TypeDeviceZombie
	const ellipsis = "[...]"

	switch res {
	case resource.Name:
		if v.IsMissing() {
			break
		}
		name := v.String()
		if i := strings.LastIndex(name, "/"); i >= 0 {
			name = "~" + name[i+1:]
		}
		if ansi.StringWidth(name) >= 60 {
			name = strings.NewReplacer(".ipynb", "", ".py", "").Replace(name)
			name = ansi.Truncate(name, 30+len(ellipsis), ellipsis)
		}
		if zombie {
			return cell(name, alertStyle)
		}
		return plain(name)

	case resource.Type:
		if v.IsMissing() {
			break
		}
		t := v.String()
		switch {
		case zombie:
			return cell(t, alertStyle)
		case strings.Contains(t, "zombie") || strings.Contains(t, "containerd"):
			return cell(t, redStyle)
		case t == "exec_notebook":
			return cell(t, greenStyle)
		}
		return plain(t)

	case resource.Path, resource.DeviceProcessPID:
		if zombie && !v.IsMissing() {
			return cell(v.String(), alertStyle)
		}

	case resource.CreateTime:
		if v.Kind() == KindTime {
			return plain(v.TimeValue().Local().Format(time.DateTime))
		}

	case resource.Kernel:
		if v.IsMissing() {
			return plain("N/A")
		}
		return plain(strings.SplitN(v.String(), "-", 2)[0])

	case resource.CPU, resource.CPUAvg:
		f, ok := v.Float64()
		if !ok {
			break
		}
		pct := int64(math.Round(f))
		if pct > 30 {
			return cell(fmt.Sprintf("%d%%", pct), emphasis)
		}
		return plain(fmt.Sprintf("%d%%", pct))

	case resource.RSS:
		f, ok := v.Float64()
		if !ok {
			break
		}
		u := opts.ProcessMemoryUnit
		return plain(u.Format(f) + " " + u.String())

	case resource.DeviceID:
		if v.IsMissing() {
			break
		}
		name := shortDeviceName(r.Get(resource.DeviceName).String(), "NVIDIA", "RTX")
		text := fmt.Sprintf("[%s]", v)
		if name != "" {
			return composite(name+" "+text, base.Render(name+" ")+idStyle.Render(text))
		}
		return cell(text, idStyle)

	case resource.DeviceShortID:
		id := v
		if id.IsMissing() {
			id = r.Get(resource.DeviceID)
		}
		if id.IsMissing() {
			break
		}
		return plain(fmt.Sprintf("[%s]", id))

	case resource.DeviceMemoryUsed:
		if v.IsMissing() {
			break
		}
		return memoryCell(base, opts.DeviceMemoryUnit, v, Missing, r.Get(resource.DeviceMemoryTotal))

	case resource.DeviceProcessMemoryUsed:
		device := r.Get(resource.DeviceMemoryUsed)
		total := r.Get(resource.DeviceMemoryTotal)
		if v.IsMissing() {
			if device.IsMissing() {
				break
			}
			return memoryCell(base, opts.DeviceMemoryUnit, device, Missing, total)
		}
		return memoryCell(base, opts.DeviceMemoryUnit, v, device, total)

	case resource.DevicePowerUsed:
		used, ok := v.Float64()
		if !ok {
			break
		}
		if limit, ok := r.Get(resource.DevicePowerLimit).Float64(); ok {
			return plain(fmt.Sprintf("%3d/%3d W", int64(used), int64(limit)))
		}
		return plain(fmt.Sprintf("%3d W", int64(used)))

	case resource.DeviceFan, resource.DeviceUtil, resource.DeviceUtilAvg:
		f, ok := v.Float64()
		if !ok {
			break
		}
		return percentCell(base, int64(math.Round(f)), opts.Bar)

	case resource.DeviceTemp:
		f, ok := v.Float64()
		if !ok {
			break
		}
		deg := int64(math.Round(f))
		if deg >= 40 {
			return cell(fmt.Sprintf("%d°C", deg), emphasis)
		}
		return plain(fmt.Sprintf("%d°C", deg))
	}

	if v.IsMissing() {
		return plain(Placeholder)
	}
	return plain(v.String())
}

func composite(text, styled string) Cell {
	return Cell{Text: text, styled: styled}
}

func shortDeviceName(name string, drop ...string) string {
	for _, d := range drop {
		name = strings.ReplaceAll(name, d, "")
	}
	return strings.Join(strings.Fields(name), " ")
}

// memoryCell renders "used / total unit", or "used / device / total unit"
// when a device-wide figure accompanies a per-process one.
func memoryCell(base lipgloss.Style, unit Unit, used, device, total Value) Cell {
	u, _ := used.Float64()
	t, hasTotal := total.Float64()
	usedText := unit.Format(u)

	if !hasTotal {
		text := usedText + " " + unit.String()
		return composite(text, base.Render(usedText)+" "+emphasis.Render(unit.String()))
	}

	numStyle := base
	if unit.Scale(u) > unit.Scale(t)*0.02 {
		numStyle = emphasis.Inherit(base)
	}
	totalText := unit.Format(t)
	pad := func(s string) string {
		if n := len(totalText) - len(s); n > 0 {
			return strings.Repeat(" ", n) + s
		}
		return s
	}

	parts := []string{pad(usedText)}
	if d, ok := device.Float64(); ok {
		parts = append(parts, pad(unit.Format(math.Max(d, u))))
	}
	parts = append(parts, totalText)

	var text, styled strings.Builder
	sep := " / "
	for i, p := range parts {
		if i > 0 {
			text.WriteString(sep)
			styled.WriteString(emphasis.Render(sep))
		}
		text.WriteString(p)
		styled.WriteString(numStyle.Render(p))
	}
	text.WriteString(" " + unit.String())
	styled.WriteString(" " + emphasis.Render(unit.String()))
	return composite(text.String(), styled.String())
}

// percentCell renders "N%", optionally as a bar: the value is centered in
// nine characters and the first N/10 of them get a colored background.
func percentCell(base lipgloss.Style, pct int64, bar bool) Cell {
	text := fmt.Sprintf("%d%%", pct)
	style := base
	if pct >= 30 {
		style = emphasis.Inherit(base)
	}
	if !bar {
		return Cell{Text: text, Style: style}
	}

	padded := center(center(text, 4), 9)
	split := int(min(max(pct/10, 0), int64(len(padded))))
	var bg lipgloss.Style
	switch {
	case pct < 30:
		bg = barRed
	case pct < 70:
		bg = barYellow
	default:
		bg = barGreen
	}
	styled := bg.Inherit(style).Render(padded[:split]) + style.Render(padded[split:])
	return composite(padded, styled)
}

func center(s string, width int) string {
	n := width - len(s)
	if n <= 0 {
		return s
	}
	left := n/2 + (n & width & 1)
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", n-left)
}
