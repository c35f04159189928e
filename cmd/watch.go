package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/ftahirops/nbstat/ui"
	"github.com/ftahirops/nbstat/view"
)

// runBatch collects once and prints one rendering.
func runBatch(ctx context.Context, in ui.Inspector, opts Options, w io.Writer) error {
	snap := in.Collect(ctx, true)
	_, err := fmt.Fprintln(w, in.Render(snap, opts.RenderOptions()).String())
	return err
}

// runWatch starts the full-screen interface, or a plain printing loop when
// out is not a terminal.
func runWatch(ctx context.Context, in ui.Inspector, opts Options, out *os.File) error {
	if !term.IsTerminal(int(out.Fd())) {
		return runPlain(ctx, in, opts, out)
	}

	ctrl := view.NewController(opts.State, opts.Other)
	m := ui.NewModel(ctx, in, ctrl, opts.RenderOptions(), opts.Interval)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx), tea.WithOutput(out))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// runPlain prints a rendering every interval until ctx ends or opts.Count
// renderings were printed.
func runPlain(ctx context.Context, in ui.Inspector, opts Options, w io.Writer) error {
	render := opts.RenderOptions()
	render.Help = false

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	for iteration := 1; ; iteration++ {
		snap := in.Collect(ctx, iteration == 1)
		if _, err := fmt.Fprintf(w, "%s\n\n", in.Render(snap, render)); err != nil {
			return err
		}
		if opts.Count > 0 && iteration >= opts.Count {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
