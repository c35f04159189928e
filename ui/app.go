package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"

	"github.com/ftahirops/nbstat/engine"
	"github.com/ftahirops/nbstat/model"
	"github.com/ftahirops/nbstat/view"
)

// Inspector is what the watch screen needs from the engine.
type Inspector interface {
	Collect(ctx context.Context, force bool) *model.Snapshot
	Render(snap *model.Snapshot, opts engine.RenderOptions) engine.Screen
}

var _ Inspector = (*engine.Inspector)(nil)

type tickMsg time.Time

type collectMsg struct {
	snap *model.Snapshot
}

// Model is the bubbletea model of the watch commands.
type Model struct {
	ctx       context.Context
	inspector Inspector
	ctrl      *view.Controller
	// display settings the controller does not own: units, index filter,
	// summary header
	render   engine.RenderOptions
	interval time.Duration

	width  int
	height int

	snap       *model.Snapshot
	collecting bool
}

// NewModel creates the watch model. The first collection starts in Init.
func NewModel(ctx context.Context, inspector Inspector, ctrl *view.Controller, render engine.RenderOptions, interval time.Duration) Model {
	return Model{
		ctx:        ctx,
		inspector:  inspector,
		ctrl:       ctrl,
		render:     render,
		interval:   interval,
		collecting: true,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(tick(m.interval), collect(m.ctx, m.inspector, true))
}

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// collect runs a collection off the update loop so keys stay responsive
// while sources are queried. force skips cached source data.
func collect(ctx context.Context, inspector Inspector, force bool) tea.Cmd {
	return func() tea.Msg {
		return collectMsg{snap: inspector.Collect(ctx, force)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.clampScroll()

	case tickMsg:
		cmds := []tea.Cmd{tick(m.interval)}
		if !m.collecting {
			m.collecting = true
			cmds = append(cmds, collect(m.ctx, m.inspector, false))
		}
		return m, tea.Batch(cmds...)

	case collectMsg:
		m.snap = msg.snap
		m.collecting = false
		m.clampScroll()

	case tea.KeyMsg:
		_, page := m.layout()
		switch m.ctrl.HandleKey(msg, page) {
		case view.EffectQuit:
			return m, tea.Quit
		case view.EffectRefresh:
			m.clampScroll()
			if m.collecting {
				return m, nil
			}
			m.collecting = true
			return m, collect(m.ctx, m.inspector, true)
		}
		m.clampScroll()
	}
	return m, nil
}

func (m Model) options() engine.RenderOptions {
	opts := m.render
	opts.State = m.ctrl.State()
	opts.Keys = &m.ctrl.Keys
	return opts
}

// layout renders the last snapshot and returns it with the number of body
// lines that fit between the fixed header and footer.
func (m Model) layout() (engine.Screen, int) {
	if m.snap == nil {
		return engine.Screen{}, max(m.height, 1)
	}
	screen := m.inspector.Render(m.snap, m.options())
	page := m.height - len(screen.Header) - len(screen.Footer)
	if len(screen.Body) > page {
		page-- // scroll indicator
	}
	return screen, max(page, 1)
}

func (m Model) clampScroll() {
	if m.height == 0 || m.snap == nil {
		return
	}
	screen, page := m.layout()
	m.ctrl.ClampScroll(max(len(screen.Body)-page, 0))
}

func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}
	if m.snap == nil {
		return statusStyle.Render("Collecting first sample...")
	}

	screen, page := m.layout()
	vp := viewport.New(m.width, page)
	vp.SetContent(strings.Join(m.fit(screen.Body), "\n"))
	vp.SetYOffset(m.ctrl.Scroll())

	lines := make([]string, 0, m.height)
	lines = append(lines, m.fit(screen.Header)...)
	lines = append(lines, vp.View())
	if len(screen.Body) > page {
		first := vp.YOffset + 1
		last := min(vp.YOffset+page, len(screen.Body))
		lines = append(lines, scrollStyle.Render(fmt.Sprintf("rows %d-%d of %d", first, last, len(screen.Body))))
	}
	lines = append(lines, m.fit(screen.Footer)...)
	return strings.Join(lines, "\n")
}

// fit cuts lines to the terminal width; the viewport would wrap them.
func (m Model) fit(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = ansi.Truncate(l, m.width, "")
	}
	return out
}
