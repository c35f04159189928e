package view

import (
	"github.com/charmbracelet/bubbles/key"

	"github.com/ftahirops/nbstat/resource"
)

// ColumnToggle binds a key to the columns it switches.
type ColumnToggle struct {
	Binding   key.Binding
	Resources []resource.Resource
}

// KeyMap defines the watch-mode key bindings.
type KeyMap struct {
	SwitchView key.Binding
	Verbosity  key.Binding
	CycleLevel key.Binding // step through 0, 1, 2

	Footnote   key.Binding
	Help       key.Binding
	Separators key.Binding
	HeaderSeps key.Binding
	Bars       key.Binding
	Averages   key.Binding
	Reset      key.Binding

	Up       key.Binding
	Down     key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Home     key.Binding
	End      key.Binding

	Quit key.Binding

	Columns []ColumnToggle
}

func toggle(k, help string, res ...resource.Resource) ColumnToggle {
	return ColumnToggle{
		Binding:   key.NewBinding(key.WithKeys(k), key.WithHelp(k, help)),
		Resources: res,
	}
}

// DefaultKeyMap is the built-in key binding set.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		SwitchView: key.NewBinding(key.WithKeys("tab", "shift+tab"), key.WithHelp("tab", "switch view")),
		Verbosity:  key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "verbose")),
		CycleLevel: key.NewBinding(key.WithKeys("V"), key.WithHelp("V", "verbose level")),
		Footnote:   key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "footnote")),
		Help:       key.NewBinding(key.WithKeys("h"), key.WithHelp("h", "help")),
		Separators: key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "separators")),
		HeaderSeps: key.NewBinding(key.WithKeys("S"), key.WithHelp("S", "header separators")),
		Bars:       key.NewBinding(key.WithKeys("b"), key.WithHelp("b", "bars")),
		Averages:   key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "moving avg")),
		Reset:      key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reset")),

		Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑", "up")),
		Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓", "down")),
		PageUp:   key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup", "page up")),
		PageDown: key.NewBinding(key.WithKeys("pgdown"), key.WithHelp("pgdn", "page down")),
		Home:     key.NewBinding(key.WithKeys("home"), key.WithHelp("home", "top")),
		End:      key.NewBinding(key.WithKeys("end"), key.WithHelp("end", "bottom")),

		Quit: key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),

		Columns: []ColumnToggle{
			toggle("f1", "pid", resource.PID),
			toggle("f2", "ppid", resource.PPID),
			toggle("f3", "cpu", resource.CPU),
			toggle("f4", "rss", resource.RSS),
			toggle("f5", "device id", resource.DeviceShortID, resource.DeviceID),
			toggle("f6", "device memory", resource.DeviceProcessMemoryUsed),
			toggle("f7", "util", resource.DeviceUtil),
			toggle("f8", "temp", resource.DeviceTemp),
			toggle("f13", "type", resource.Type),
			toggle("f14", "status", resource.Status),
			toggle("f15", "create time", resource.CreateTime),
			toggle("f16", "path", resource.Path),
		},
	}
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.SwitchView, k.Verbosity, k.Footnote, k.Help, k.Reset, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	cols := make([]key.Binding, 0, len(k.Columns))
	for _, c := range k.Columns {
		cols = append(cols, c.Binding)
	}
	return [][]key.Binding{
		{k.SwitchView, k.Verbosity, k.CycleLevel, k.Reset, k.Quit},
		{k.Footnote, k.Help, k.Separators, k.HeaderSeps, k.Bars, k.Averages},
		{k.Up, k.Down, k.PageUp, k.PageDown, k.Home, k.End},
		cols[:len(cols)/2],
		cols[len(cols)/2:],
	}
}
