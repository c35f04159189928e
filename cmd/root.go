package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/pflag"

	"github.com/ftahirops/nbstat/collector"
	"github.com/ftahirops/nbstat/config"
	"github.com/ftahirops/nbstat/engine"
	"github.com/ftahirops/nbstat/table"
	"github.com/ftahirops/nbstat/view"
)

// Version is set at build time via ldflags.
var Version = "0.1.0"

// minInterval bounds the refresh period of the watch commands.
const minInterval = 100 * time.Millisecond

// Options is the resolved command line.
type Options struct {
	Command        string
	Kind           view.Kind
	Watch          bool
	Interval       time.Duration
	TTL            time.Duration
	Count          int
	Window         int
	IndexCondition *regexp.Regexp

	// State is the startup view; Other is the view Tab switches to.
	State view.State
	Other view.State
	Cell  table.CellOptions

	// Totals appends a row of column sums.
	Totals bool

	SuppressColor bool
	MetricsAddr   string
	LogLevel      slog.Level
	LogFile       string

	Collector collector.Options
}

// CacheTTL is how long collected data is reused between redraws.
func (o Options) CacheTTL() time.Duration {
	if !o.Watch {
		return 0
	}
	if o.TTL > 0 {
		return o.TTL
	}
	return o.Interval * 8 / 10
}

func (o Options) RenderOptions() engine.RenderOptions {
	return engine.RenderOptions{
		State:          o.State,
		Cell:           o.Cell,
		IndexCondition: o.IndexCondition,
		Totals:         o.Totals,
		Summary:        o.Watch && o.State.Header,
	}
}

// columnHelp lists the aliases of kind's default columns and of the ones
// --show can add.
func columnHelp(kind view.Kind) string {
	spec := kind.Preset()
	return fmt.Sprintf("Columns shown: %s\nColumns available to --show: %s\n",
		strings.Join(spec.IncludedNames(), ", "), strings.Join(spec.ExcludedNames(), ", "))
}

func usage(fs *pflag.FlagSet, name string, kind view.Kind) func() {
	return func() {
		fmt.Fprintf(os.Stderr, `%s v%s: resource usage of notebook kernels and the devices they hold

Usage:
  %s [COMMAND] [OPTIONS] [INDEX_CONDITION]

Commands (also selected by the executable name):
  nbstat, nbwatch           processes grouped by notebook or script
  devicestat, devicewatch   device processes grouped by device
  gpustat, gpuwatch         devices only
The *watch commands refresh every interval; giving -i to a *stat command does the same.

INDEX_CONDITION is a regular expression on the group label, e.g. '\.ipynb$'.

%s
Options:
%s`, name, Version, name, columnHelp(kind), fs.FlagUsages())
	}
}

// parseArgs resolves the command, the flags and the config file into
// Options. argv0 selects the command unless the first positional argument
// names one.
func parseArgs(argv0 string, args []string, cfg config.Config) (Options, error) {
	var opts Options

	opts.Command = "nbstat"
	if kind, watch, err := view.ParseCommand(argv0); err == nil {
		opts.Kind, opts.Watch = kind, watch
		opts.Command = strings.TrimSuffix(filepath.Base(argv0), ".exe")
	}

	fs := pflag.NewFlagSet(opts.Command, pflag.ContinueOnError)
	fs.SortFlags = false
	var (
		verbose1, verbose2         bool
		interval                   float64
		window                     int
		show, hide                 []string
		showAll, showSimilar       bool
		hideHeader                 bool
		showFootnote, hideFootnote bool
		showHelp, hideHelp         bool
		showSeps, hideSeps         bool
		procFormat, devFormat      string
		version                    bool
		logLevel                   string
	)
	fs.BoolVarP(&verbose1, "verbose", "v", false, "show every process of the entries that use a device")
	fs.BoolVarP(&verbose2, "very-verbose", "V", false, "show every process of every entry")
	fs.Float64VarP(&interval, "interval", "i", 0, "seconds between updates; turns on the watch mode")
	fs.IntVar(&opts.Count, "count", 0, "stop after this many updates when not on a terminal (0 = no limit)")
	fs.IntVarP(&window, "window", "w", cfg.Window, "number of updates the moving averages cover")
	fs.StringSliceVar(&show, "show", nil, "columns to add, by alias")
	fs.StringSliceVar(&hide, "hide", nil, "columns to remove, by alias")
	fs.BoolVar(&showAll, "show-all", false, "show every column of the view")
	fs.BoolVar(&showSimilar, "show-similar", false, "do not blank values repeated from the previous row")
	fs.BoolVar(&hideHeader, "hide-header", false, "omit the column names")
	fs.BoolVar(&showFootnote, "show-footnote", false, "show host CPU and memory usage")
	fs.BoolVar(&hideFootnote, "hide-footnote", false, "hide host CPU and memory usage")
	fs.BoolVar(&showHelp, "show-help", false, "show the key bindings")
	fs.BoolVar(&hideHelp, "hide-help", false, "hide the key bindings")
	fs.BoolVar(&showSeps, "show-separators", false, "turn on every table separator")
	fs.BoolVar(&hideSeps, "hide-separators", false, "turn off every table separator")
	fs.BoolVar(&opts.Totals, "totals", false, "append a row of column sums")
	fs.StringVar(&procFormat, "process-memory-format", cfg.ProcessMemoryFormat, "unit of host memory: KB, MB or GB")
	fs.StringVar(&devFormat, "device-memory-format", cfg.DeviceMemoryFormat, "unit of device memory: KB, MB or GB")
	fs.BoolVar(&opts.SuppressColor, "suppress-color", false, "disable colors")
	fs.StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	fs.StringVar(&logLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	fs.StringVar(&opts.LogFile, "log-file", cfg.LogFile, "write logs to this file")
	fs.StringVar(&opts.Collector.NvidiaSMI, "nvidia-smi", cfg.NvidiaSMI, "path of the device telemetry tool")
	fs.StringSliceVar(&opts.Collector.RuntimeDirs, "runtime-dir", cfg.RuntimeDirs, "notebook server runtime directories")
	fs.BoolVar(&version, "version", false, "print the version and exit")
	fs.Usage = usage(fs, opts.Command, opts.Kind)

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if version {
		fmt.Printf("%s v%s\n", opts.Command, Version)
		return opts, pflag.ErrHelp
	}
	if verbose1 && verbose2 {
		return opts, errors.New("-v and -V are mutually exclusive")
	}
	if showSeps && hideSeps {
		return opts, errors.New("--show-separators and --hide-separators are mutually exclusive")
	}

	positional := fs.Args()
	if len(positional) > 0 {
		if kind, watch, err := view.ParseCommand(positional[0]); err == nil {
			opts.Kind, opts.Watch, opts.Command = kind, watch, positional[0]
			positional = positional[1:]
		}
	}
	switch len(positional) {
	case 0:
	case 1:
		re, err := regexp.Compile(positional[0])
		if err != nil {
			return opts, fmt.Errorf("index condition: %w", err)
		}
		opts.IndexCondition = re
	default:
		return opts, fmt.Errorf("unexpected arguments: %s", strings.Join(positional[1:], " "))
	}

	opts.Interval = time.Duration(cfg.IntervalSec * float64(time.Second))
	if fs.Changed("interval") {
		opts.Interval = time.Duration(interval * float64(time.Second))
		opts.Watch = true
	}
	opts.Interval = max(opts.Interval, minInterval)
	opts.TTL = time.Duration(cfg.CacheTTLSec * float64(time.Second))
	opts.Window = max(window, 1)

	var err error
	if opts.Cell.ProcessMemoryUnit, err = table.ParseUnit(procFormat); err != nil {
		return opts, fmt.Errorf("--process-memory-format: %w", err)
	}
	if opts.Cell.DeviceMemoryUnit, err = table.ParseUnit(devFormat); err != nil {
		return opts, fmt.Errorf("--device-memory-format: %w", err)
	}
	if opts.LogLevel, err = parseLevel(logLevel); err != nil {
		return opts, err
	}
	opts.Collector.ProcRoot = cfg.ProcRoot
	if opts.MetricsAddr == "" && cfg.Prometheus.Enabled {
		opts.MetricsAddr = cfg.Prometheus.Addr
	}

	verbosity := cfg.Verbose
	switch {
	case verbose1:
		verbosity = 1
	case verbose2:
		verbosity = 2
	}

	separators := cfg.Separators
	switch {
	case showSeps:
		separators = ptr(true)
	case hideSeps:
		separators = ptr(false)
	}

	build := func(kind view.Kind) (view.State, error) {
		st := view.State{Kind: kind, Spec: kind.Preset(), Options: view.Options{
			Verbosity:      verbosity,
			Header:         !hideHeader,
			HideSimilar:    !showSimilar,
			SeparateHeader: true,
			SeparateIndex:  kind == view.KindNBStat,
			SeparateTable:  true,
			Footnote:       (opts.Watch || showFootnote) && !hideFootnote,
			Help:           (opts.Watch || showHelp) && !hideHelp,
		}}
		if separators != nil {
			st.SeparateHeader, st.SeparateIndex, st.SeparateTable = *separators, *separators, *separators
		}
		// the file's lists first so the flags can undo them
		if err := st.Spec.ApplyFlags(cfg.Show, cfg.Hide, false); err != nil {
			return st, fmt.Errorf("config: %w", err)
		}
		if err := st.Spec.ApplyFlags(show, hide, showAll); err != nil {
			return st, err
		}
		return st, nil
	}
	if opts.State, err = build(opts.Kind); err != nil {
		return opts, err
	}
	if opts.Other, err = build(opts.Kind.Other()); err != nil {
		return opts, err
	}
	return opts, nil
}

func ptr[T any](v T) *T { return &v }

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return l, fmt.Errorf("--log-level: %w", err)
	}
	return l, nil
}

// newLogger writes text logs to the log file, to stderr in batch mode, and
// nowhere otherwise: the watch screen owns the terminal.
func newLogger(opts Options) (*slog.Logger, func(), error) {
	var (
		w       io.Writer = io.Discard
		closeFn           = func() {}
	)
	switch {
	case opts.LogFile != "":
		f, err := os.OpenFile(opts.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, closeFn, fmt.Errorf("open log file: %w", err)
		}
		w, closeFn = f, func() { f.Close() }
	case !opts.Watch:
		w = os.Stderr
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: opts.LogLevel})), closeFn, nil
}

// Run parses flags and starts the application.
func Run() error {
	cfg, cfgErr := config.Load()
	opts, err := parseArgs(os.Args[0], os.Args[1:], cfg)
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	logger, closeLog, err := newLogger(opts)
	if err != nil {
		return err
	}
	defer closeLog()
	if cfgErr != nil {
		logger.Warn("config file ignored", "path", config.Path(), "err", cfgErr)
	}
	if opts.SuppressColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var metrics *engine.Metrics
	if opts.MetricsAddr != "" {
		metrics = engine.NewMetrics()
		srv, err := startMetrics(opts.MetricsAddr, metrics, logger)
		if err != nil {
			return err
		}
		defer srv.Stop()
	}

	inspector := engine.NewInspector(collector.NewSources(opts.Collector), engine.Options{
		Window:   opts.Window,
		CacheTTL: opts.CacheTTL(),
		Logger:   logger,
		Metrics:  metrics,
	})

	if !opts.Watch {
		return runBatch(ctx, inspector, opts, os.Stdout)
	}
	return runWatch(ctx, inspector, opts, os.Stdout)
}
