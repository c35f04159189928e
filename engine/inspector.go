package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ftahirops/nbstat/collector"
	"github.com/ftahirops/nbstat/model"
	"github.com/ftahirops/nbstat/resource"
	"github.com/ftahirops/nbstat/table"
	"github.com/ftahirops/nbstat/view"
)

// DefaultWindow is the number of samples a moving average covers.
const DefaultWindow = 20

// Options configures an Inspector.
type Options struct {
	Window   int
	CacheTTL time.Duration
	Now      func() time.Time
	Logger   *slog.Logger
	Metrics  *Metrics
}

// Inspector runs collection and reconciliation for every tick. Cached
// source data serves redraws that come before the TTL ends.
type Inspector struct {
	sources collector.Sources
	cache   *Cache
	history *History
	log     *slog.Logger
	metrics *Metrics
	now     func() time.Time

	noDevices sync.Once
}

func NewInspector(sources collector.Sources, opts Options) *Inspector {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Inspector{
		sources: sources,
		cache:   NewCache(opts.CacheTTL, opts.Now),
		history: NewHistory(opts.Window),
		log:     opts.Logger,
		metrics: opts.Metrics,
		now:     opts.Now,
	}
}

// Collect queries every source concurrently. force drops cached results
// first. A failing source leaves its part of the snapshot empty and adds a
// warning; Collect itself never fails.
func (in *Inspector) Collect(ctx context.Context, force bool) *model.Snapshot {
	if force {
		in.cache.Invalidate()
	}
	start := in.now()
	snap := &model.Snapshot{Timestamp: start}

	var (
		mu       sync.Mutex
		freshCPU bool
		freshGPU bool
	)
	warn := func(source string, err error) {
		mu.Lock()
		snap.Warnings = append(snap.Warnings, model.SourceWarning{Source: source, Err: err.Error()})
		mu.Unlock()
		in.log.Warn("collector failed", "source", source, "err", err)
		in.metrics.collectorError(source)
	}

	g, gctx := errgroup.WithContext(ctx)
	if src := in.sources.Processes; src != nil {
		g.Go(func() error {
			procs, hit, err := fetch(in.cache, collector.SourceProcesses, func() ([]model.Process, error) {
				return src.Processes(gctx)
			})
			if err != nil {
				warn(collector.SourceProcesses, err)
			}
			snap.Processes, freshCPU = procs, !hit
			return nil
		})
		snap.Alive = func(pid int32) bool { return src.Alive(ctx, pid) }
	}
	if src := in.sources.Devices; src != nil {
		g.Go(func() error {
			report, hit, err := fetch(in.cache, collector.SourceDevices, func() (model.DeviceReport, error) {
				return src.Devices(gctx)
			})
			switch {
			case errors.Is(err, collector.ErrNoDevices):
				in.noDevices.Do(func() { in.log.Info("no accelerator telemetry, device columns stay empty", "err", err) })
			case err != nil:
				warn(collector.SourceDevices, err)
			}
			snap.Devices, freshGPU = report, !hit
			return nil
		})
	}
	if src := in.sources.Kernels; src != nil {
		g.Go(func() error {
			kernels, _, err := fetch(in.cache, collector.SourceKernels, func() ([]model.Kernel, error) {
				return src.Kernels(gctx)
			})
			if err != nil && !errors.Is(err, collector.ErrNoServers) {
				warn(collector.SourceKernels, err)
			}
			snap.Kernels = kernels
			return nil
		})
	}
	if src := in.sources.System; src != nil {
		g.Go(func() error {
			info, _, err := fetch(in.cache, collector.SourceSystem, func() (model.SystemInfo, error) {
				return src.System(gctx)
			})
			if err != nil {
				warn(collector.SourceSystem, err)
			}
			snap.System = info
			return nil
		})
	}
	_ = g.Wait()

	snap.Processes = in.averageProcesses(snap.Processes, freshCPU)
	snap.Devices.Devices = in.averageDevices(snap.Devices.Devices, freshGPU)
	if freshCPU || freshGPU {
		in.history.Advance()
	}

	in.metrics.observe(snap, in.now().Sub(start))
	return snap
}

// averageProcesses fills CPUAverage. Samples are only recorded for data
// that did not come from the cache.
func (in *Inspector) averageProcesses(procs []model.Process, fresh bool) []model.Process {
	out := make([]model.Process, len(procs))
	for i, p := range procs {
		out[i] = p
		if p.CPUPercent == nil || !fresh {
			continue
		}
		if avg, ok := in.history.Observe(p.Identity(), resource.CPU, *p.CPUPercent); ok {
			out[i].CPUAverage = model.Float(avg)
		}
	}
	return out
}

func (in *Inspector) averageDevices(devices []model.Device, fresh bool) []model.Device {
	out := make([]model.Device, len(devices))
	for i, d := range devices {
		out[i] = d
		if d.Util == nil || !fresh {
			continue
		}
		if avg, ok := in.history.Observe(d.Identity(), resource.DeviceUtil, *d.Util); ok {
			out[i].UtilAverage = model.Float(avg)
		}
	}
	return out
}

// Table reconciles snap into the table of kind. Ambiguous merges are logged.
func (in *Inspector) Table(snap *model.Snapshot, kind view.Kind, q Query) table.Table {
	t, report := Build(snap, kind, q)
	for _, a := range report.Ambiguities {
		in.log.Debug("ambiguous match",
			"view", kind.String(),
			"row", a.Row,
			"key", fmt.Sprintf("%s=%s", a.Key.Left.Alias(), a.Key.Right.Alias()),
			"candidates", a.Candidates)
	}
	if report.ByFallback > 0 {
		in.log.Debug("matched by namespace fallback", "view", kind.String(), "rows", report.ByFallback)
	}
	return t
}
