package table

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftahirops/nbstat/resource"
	"github.com/ftahirops/nbstat/view"
)

const mb = 1 << 20

func TestRenderCell(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 30, 5, 0, time.Local)
	cases := []struct {
		name string
		row  Row
		res  resource.Resource
		opts CellOptions
		want string
	}{
		{"missing", NewRow(nil), resource.PID, CellOptions{}, "-"},
		{"name_path", proc(1, "", resource.Name, String("/home/u/train.ipynb")), resource.Name, CellOptions{}, "~train.ipynb"},
		{"name_long", proc(1, "", resource.Name, String(strings.Repeat("x", 70)+".py")), resource.Name, CellOptions{}, strings.Repeat("x", 30) + "[...]"},
		{"name_long_cyrillic", proc(1, "", resource.Name, String(strings.Repeat("эксперимент_", 6)+".ipynb")), resource.Name, CellOptions{}, "эксперимент_эксперимент_экспер[...]"},
		{"name_long_wide", proc(1, "", resource.Name, String(strings.Repeat("実験", 16)+".ipynb")), resource.Name, CellOptions{}, strings.Repeat("実験", 7) + "実[...]"},
		{"kernel_short", proc(1, "", resource.Kernel, String("0f1e2d3c-aaaa-bbbb")), resource.Kernel, CellOptions{}, "0f1e2d3c"},
		{"kernel_missing", NewRow(nil), resource.Kernel, CellOptions{}, "N/A"},
		{"create_time", proc(1, "", resource.CreateTime, Time(created)), resource.CreateTime, CellOptions{}, "2024-03-01 12:30:05"},
		{"cpu", proc(1, "", resource.CPU, Float(42.6)), resource.CPU, CellOptions{}, "43%"},
		{"rss_gb", proc(1, "", resource.RSS, Int(3*1<<30+1<<29)), resource.RSS, CellOptions{}, "3.5 GB"},
		{"rss_mb", proc(1, "", resource.RSS, Int(300*mb)), resource.RSS, CellOptions{ProcessMemoryUnit: UnitMB}, "300 MB"},
		{"device_id", NewRow(map[resource.Resource]Value{
			resource.DeviceID: Int(0), resource.DeviceName: String("NVIDIA GeForce RTX 3090"),
		}), resource.DeviceID, CellOptions{}, "GeForce 3090 [0]"},
		{"short_id_joined", NewRow(map[resource.Resource]Value{resource.DeviceShortID: String("0, 1")}), resource.DeviceShortID, CellOptions{}, "[0, 1]"},
		{"device_memory", NewRow(map[resource.Resource]Value{
			resource.DeviceMemoryUsed: Int(512 * mb), resource.DeviceMemoryTotal: Int(16384 * mb),
		}), resource.DeviceMemoryUsed, CellOptions{}, "  512 / 16384 MB"},
		{"process_memory", NewRow(map[resource.Resource]Value{
			resource.DeviceProcessMemoryUsed: Int(512 * mb),
			resource.DeviceMemoryUsed:        Int(2048 * mb),
			resource.DeviceMemoryTotal:       Int(16384 * mb),
		}), resource.DeviceProcessMemoryUsed, CellOptions{}, "  512 /  2048 / 16384 MB"},
		{"process_memory_alone", NewRow(map[resource.Resource]Value{
			resource.DeviceProcessMemoryUsed: Int(512 * mb),
		}), resource.DeviceProcessMemoryUsed, CellOptions{}, "512 MB"},
		{"process_memory_fallback", NewRow(map[resource.Resource]Value{
			resource.DeviceMemoryUsed: Int(100 * mb), resource.DeviceMemoryTotal: Int(1000 * mb),
		}), resource.DeviceProcessMemoryUsed, CellOptions{}, " 100 / 1000 MB"},
		{"process_memory_none", NewRow(nil), resource.DeviceProcessMemoryUsed, CellOptions{}, "-"},
		{"power", NewRow(map[resource.Resource]Value{
			resource.DevicePowerUsed: Float(71.4), resource.DevicePowerLimit: Float(350),
		}), resource.DevicePowerUsed, CellOptions{}, " 71/350 W"},
		{"util", NewRow(map[resource.Resource]Value{resource.DeviceUtil: Int(87)}), resource.DeviceUtil, CellOptions{}, "87%"},
		{"util_bar", NewRow(map[resource.Resource]Value{resource.DeviceUtil: Int(87)}), resource.DeviceUtil, CellOptions{Bar: true}, "   87%   "},
		{"temp", NewRow(map[resource.Resource]Value{resource.DeviceTemp: Int(64)}), resource.DeviceTemp, CellOptions{}, "64°C"},
		{"delimiter", NewRow(nil), resource.TableDelimiter2, CellOptions{}, "┃┃"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cell := c.row.Render(c.res, c.opts)
			assert.Equal(t, c.want, cell.Text)
			assert.Equal(t, c.want, cell.Render())
			assert.True(t, utf8.ValidString(cell.Text))
		})
	}
}

func TestRenderCellEmphasis(t *testing.T) {
	hot := NewRow(map[resource.Resource]Value{resource.CPU: Float(31), resource.DeviceTemp: Int(40)})
	cold := NewRow(map[resource.Resource]Value{resource.CPU: Float(30), resource.DeviceTemp: Int(39)})
	assert.True(t, hot.Render(resource.CPU, CellOptions{}).Bold())
	assert.True(t, hot.Render(resource.DeviceTemp, CellOptions{}).Bold())
	assert.False(t, cold.Render(resource.DeviceTemp, CellOptions{}).Bold())
	// CPU and RSS columns are bold by default.
	assert.True(t, cold.Render(resource.CPU, CellOptions{}).Bold())
}

func TestRenderZombieAlert(t *testing.T) {
	z := NewRow(map[resource.Resource]Value{
		resource.Type: String(TypeDeviceZombie),
		resource.Name: String("pid 777"),
	})
	cell := z.Render(resource.Type, CellOptions{})
	assert.Equal(t, alertStyle.GetBackground(), cell.Style.GetBackground())
	assert.Equal(t, alertStyle.GetBackground(), z.Render(resource.Name, CellOptions{}).Style.GetBackground())
}

func sampleTable() Table {
	return New(
		proc(100, "a.ipynb", resource.Name, String("a.ipynb"), resource.CPU, Float(5)),
		proc(101, "a.ipynb", resource.Name, String("a.ipynb"), resource.CPU, Float(120)),
		proc(20, "longer_name.py", resource.Name, String("longer_name.py"), resource.CPU, Float(0)),
	).SetIndex(resource.Path)
}

func sampleColumns() []view.Column {
	return []view.Column{
		{Resource: resource.Name, Include: true, Hidable: true},
		{Resource: resource.TableDelimiter1, Include: true},
		{Resource: resource.PID, Include: true},
		{Resource: resource.CPU, Include: true, MinWidth: 6},
	}
}

// TestRenderRightJustified re-parses the rendered grid and checks that every
// cell sits flush right in a column as wide as its widest cell.
func TestRenderRightJustified(t *testing.T) {
	tbl := sampleTable()
	cols := sampleColumns()
	lines := tbl.Render(cols, RenderOptions{Header: true})
	require.Len(t, lines, 1+tbl.Len())

	texts := make([][]string, len(cols))
	widths := make([]int, len(cols))
	for j, c := range cols {
		texts[j] = append(texts[j], c.Resource.Header())
		for _, r := range tbl.Rows() {
			texts[j] = append(texts[j], r.Render(c.Resource, CellOptions{}).Text)
		}
		widths[j] = c.MinWidth
		for _, s := range texts[j] {
			widths[j] = max(widths[j], utf8.RuneCountInString(s))
		}
	}

	total := len(cols) - 1
	for _, w := range widths {
		total += w
	}
	for i, line := range lines {
		runes := []rune(line)
		require.Len(t, runes, total, "line %d: %q", i, line)
		pos := 0
		for j, w := range widths {
			segment := string(runes[pos : pos+w])
			text := texts[j][i]
			assert.Equal(t, strings.Repeat(" ", w-utf8.RuneCountInString(text))+text, segment, "line %d column %d", i, j)
			pos += w + 1
		}
	}
}

func TestRenderHideSimilar(t *testing.T) {
	lines := sampleTable().Render(sampleColumns(), RenderOptions{HideSimilar: true})
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "a.ipynb")
	assert.NotContains(t, lines[1], "a.ipynb")
	assert.Contains(t, lines[2], "longer_name.py")

	shown := sampleTable().Render(sampleColumns(), RenderOptions{})
	assert.Contains(t, shown[1], "a.ipynb")
}

func TestRenderSeparators(t *testing.T) {
	lines := sampleTable().Render(sampleColumns(), RenderOptions{
		Header: true, SeparateHeader: true, SeparateIndex: true,
	})
	// header, header separator, 2 rows, index separator, 1 row
	require.Len(t, lines, 6)
	assert.True(t, strings.HasPrefix(lines[1], "---"))
	assert.True(t, strings.HasPrefix(lines[4], DefaultSeparator))

	width := utf8.RuneCountInString(lines[0])
	delim := strings.IndexRune(lines[0], '┃')
	for _, i := range []int{1, 4} {
		assert.Equal(t, width, utf8.RuneCountInString(lines[i]))
		assert.Equal(t, utf8.RuneCountInString(lines[0][:delim]), utf8.RuneCountInString(lines[i][:strings.IndexRune(lines[i], '┃')]))
	}
}

func TestRenderTotals(t *testing.T) {
	lines := sampleTable().Render(sampleColumns(), RenderOptions{Totals: true})
	require.Len(t, lines, 5)
	last := lines[len(lines)-1]
	assert.Contains(t, last, "TOTAL")
	assert.True(t, strings.HasSuffix(last, "125%"), last)

	// a summable column the table never filled gets no total
	cols := append(sampleColumns(), view.Column{Resource: resource.RSS, Include: true})
	lines = sampleTable().Render(cols, RenderOptions{Totals: true})
	last = lines[len(lines)-1]
	assert.True(t, strings.HasSuffix(strings.TrimRight(last, " "), "125%"), last)
}

func TestRenderEmpty(t *testing.T) {
	lines := New().Render(sampleColumns(), RenderOptions{Header: true})
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "PROCESS NAME")
	assert.Contains(t, lines[1], EmptyPlaceholder)
}
