package view

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"

	"github.com/ftahirops/nbstat/resource"
)

// Options are the display toggles of one view.
type Options struct {
	Verbosity      int
	Header         bool
	HideSimilar    bool
	SeparateHeader bool
	SeparateIndex  bool
	SeparateTable  bool
	Footnote       bool
	Help           bool
}

// State is everything the renderer needs besides the collected snapshot.
type State struct {
	Kind Kind
	Spec *Spec
	Options
}

func (s State) Clone() State {
	out := s
	if s.Spec != nil {
		out.Spec = s.Spec.Clone()
	}
	return out
}

// Effect tells the host what a key press requires.
type Effect int

const (
	EffectNone Effect = iota
	EffectRedraw
	// EffectRefresh asks for a collection that bypasses cached data.
	EffectRefresh
	EffectQuit
)

func (e Effect) String() string {
	switch e {
	case EffectRedraw:
		return "redraw"
	case EffectRefresh:
		return "refresh"
	case EffectQuit:
		return "quit"
	}
	return "none"
}

// Controller holds the state of a watch session: the active view, the view
// Tab swaps to, their startup copies for reset, and the scroll offset.
type Controller struct {
	Keys KeyMap

	current, other               State
	initialCurrent, initialOther State
	scroll                       int
}

// NewController starts on current; Tab swaps with other.
func NewController(current, other State) *Controller {
	return &Controller{
		Keys:           DefaultKeyMap(),
		current:        current.Clone(),
		other:          other.Clone(),
		initialCurrent: current.Clone(),
		initialOther:   other.Clone(),
	}
}

// State returns a copy of the active view state.
func (c *Controller) State() State { return c.current.Clone() }

// Scroll is the number of body lines skipped from the top.
func (c *Controller) Scroll() int { return c.scroll }

// ClampScroll bounds the scroll offset to [0, limit].
func (c *Controller) ClampScroll(limit int) {
	c.scroll = max(0, min(c.scroll, limit))
}

// HandleKey applies one key press. page is the number of visible body lines,
// used for page scrolling. Unbound keys return EffectNone.
func (c *Controller) HandleKey(k fmt.Stringer, page int) Effect {
	km := c.Keys
	st := &c.current
	switch {
	case key.Matches(k, km.Quit):
		return EffectQuit

	case key.Matches(k, km.SwitchView):
		c.current, c.other = c.other, c.current
		c.initialCurrent, c.initialOther = c.initialOther, c.initialCurrent
		c.scroll = 0

	case key.Matches(k, km.Reset):
		c.current = c.initialCurrent.Clone()
		c.scroll = 0
		return EffectRefresh

	case key.Matches(k, km.Verbosity):
		st.Verbosity = 2 - min(st.Verbosity, 2)
	case key.Matches(k, km.CycleLevel):
		st.Verbosity = (st.Verbosity + 1) % 3

	case key.Matches(k, km.Footnote):
		st.Footnote = !st.Footnote
	case key.Matches(k, km.Help):
		st.Help = !st.Help
	case key.Matches(k, km.Separators):
		st.SeparateIndex = !st.SeparateIndex
	case key.Matches(k, km.HeaderSeps):
		st.SeparateHeader = !st.SeparateHeader
		st.SeparateTable = !st.SeparateTable
	case key.Matches(k, km.Bars):
		st.Spec.ToggleBars()
	case key.Matches(k, km.Averages):
		if st.Spec.Includes(resource.DeviceUtil) {
			st.Spec.ToggleResource(resource.DeviceUtilAvg)
		}
		if st.Spec.Includes(resource.CPU) {
			st.Spec.ToggleResource(resource.CPUAvg)
		}

	case key.Matches(k, km.Up):
		c.scroll = max(0, c.scroll-1)
	case key.Matches(k, km.Down):
		c.scroll++
	case key.Matches(k, km.PageUp):
		c.scroll = max(0, c.scroll-max(page/2, 1))
	case key.Matches(k, km.PageDown):
		c.scroll += max(page/2, 1)
	case key.Matches(k, km.Home):
		c.scroll = 0
	case key.Matches(k, km.End):
		c.scroll = 1 << 30

	default:
		for _, t := range km.Columns {
			if key.Matches(k, t.Binding) {
				for _, res := range t.Resources {
					st.Spec.ToggleResource(res)
				}
				return EffectRedraw
			}
		}
		return EffectNone
	}
	return EffectRedraw
}
