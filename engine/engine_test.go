package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftahirops/nbstat/collector"
	"github.com/ftahirops/nbstat/model"
	"github.com/ftahirops/nbstat/resource"
	"github.com/ftahirops/nbstat/table"
	"github.com/ftahirops/nbstat/view"
)

func TestMain(m *testing.M) {
	lipgloss.SetColorProfile(termenv.Ascii)
	os.Exit(m.Run())
}

const (
	mb       = 1 << 20
	kernelID = "5d3b1f8e-2c4a-4e6b-9f10-1a2b3c4d5e6f"
)

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

type fakeProcesses struct {
	mu    sync.Mutex
	procs []model.Process
	alive map[int32]bool
	err   error
	calls int
}

func (f *fakeProcesses) Processes(context.Context) ([]model.Process, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.procs, f.err
}

func (f *fakeProcesses) Alive(_ context.Context, pid int32) bool { return f.alive[pid] }

type fakeDevices struct {
	report model.DeviceReport
	err    error
	calls  int
}

func (f *fakeDevices) Devices(context.Context) (model.DeviceReport, error) {
	f.calls++
	return f.report, f.err
}

type fakeKernels struct{ kernels []model.Kernel }

func (f *fakeKernels) Kernels(context.Context) ([]model.Kernel, error) { return f.kernels, nil }

type fakeSystem struct{}

func (fakeSystem) System(context.Context) (model.SystemInfo, error) {
	return model.SystemInfo{CPUPercent: model.Float(12.5), MemoryUsed: 8 << 30, MemoryTotal: 64 << 30}, nil
}

func kernelProc(pid int32, start time.Time) model.Process {
	return model.Process{
		PID: pid, PPID: 1, Name: "python3",
		Cmdline:    "/usr/bin/python3 -m ipykernel_launcher -f /run/user/1000/jupyter/kernel-" + kernelID + ".json",
		Cwd:        "/work",
		CreateTime: start,
		CPUPercent: model.Float(1),
		RSS:        model.Uint(300 * mb),
	}
}

func child(pid, ppid int32, start time.Time) model.Process {
	return model.Process{
		PID: pid, PPID: ppid, Name: "python3",
		Cmdline:    "/usr/bin/python3 -c from multiprocessing.spawn import spawn_main",
		Cwd:        "/work",
		CreateTime: start,
		CPUPercent: model.Float(90),
		RSS:        model.Uint(2048 * mb),
	}
}

func device(index int, procs ...model.DeviceProcess) model.Device {
	return model.Device{
		Index: index, UUID: "GPU-" + string(rune('a'+index)), Name: "NVIDIA A100",
		Util: model.Float(50), Temperature: model.Float(45),
		Processes: procs,
	}
}

func usage(pid int32, mem uint64) model.DeviceProcess {
	return model.DeviceProcess{PID: pid, MemoryUsed: model.Uint(mem)}
}

// scenarioA is one notebook with a child using device 0.
func scenarioA() *model.Snapshot {
	return &model.Snapshot{
		Timestamp: t0,
		Processes: []model.Process{kernelProc(100, t0), child(101, 100, t0.Add(time.Minute))},
		Kernels:   []model.Kernel{{ID: kernelID, Name: "a.ipynb", Path: "a.ipynb"}},
		Devices: model.DeviceReport{
			DriverVersion: "535.104.05",
			Devices:       []model.Device{device(0, usage(101, 512*mb))},
		},
		Alive: func(int32) bool { return false },
	}
}

func rowPIDs(t table.Table) []int64 {
	var out []int64
	for _, r := range t.Rows() {
		n, _ := r.Get(resource.PID).Int64()
		out = append(out, n)
	}
	return out
}

func groupKeys(t table.Table) []string {
	var out []string
	for _, g := range t.Groups() {
		out = append(out, g.Key.String())
	}
	return out
}

func TestScenarioA(t *testing.T) {
	tbl, report := Build(scenarioA(), view.KindNBStat, Query{Verbosity: 0})
	assert.Empty(t, report.Unmatched())
	assert.Equal(t, []string{"a.ipynb"}, groupKeys(tbl))
	require.Equal(t, []int64{100, 101}, rowPIDs(tbl))

	assert.Equal(t, "512 MB", tbl.Row(1).Render(resource.DeviceProcessMemoryUsed, table.CellOptions{}).Text)
	assert.Equal(t, table.Placeholder, tbl.Row(0).Render(resource.DeviceProcessMemoryUsed, table.CellOptions{}).Text)
	assert.Equal(t, TypeNotebook, tbl.Row(0).Get(resource.Type).Str())
	assert.Equal(t, TypeSubprocess, tbl.Row(1).Get(resource.Type).Str())
	assert.Equal(t, "a.ipynb", tbl.Row(1).Get(resource.Name).Str(), "child carries its notebook name")
	assert.Equal(t, kernelID, tbl.Row(1).Get(resource.Kernel).Str())
}

func TestScenarioB(t *testing.T) {
	snap := scenarioA()
	snap.Processes[1].NGID = 999
	snap.Devices.Devices = []model.Device{device(0, usage(999, 512*mb))}

	tbl, report := Build(snap, view.KindNBStat, Query{Verbosity: 0})
	require.Equal(t, []int64{100, 101}, rowPIDs(tbl))
	assert.Equal(t, 1, report.ByFallback)
	assert.Equal(t, "512 MB", tbl.Row(1).Render(resource.DeviceProcessMemoryUsed, table.CellOptions{}).Text)
	hostPID, _ := tbl.Row(1).Get(resource.HostPID).Int64()
	assert.Equal(t, int64(999), hostPID)
}

func TestScenarioC(t *testing.T) {
	for _, alive := range []bool{false, true} {
		snap := scenarioA()
		snap.Devices.Devices[0].Processes = append(snap.Devices.Devices[0].Processes, usage(777, 64*mb))
		snap.Alive = func(pid int32) bool { return alive && pid == 777 }
		want := table.TypeDeviceZombie
		if alive {
			want = TypeNonPython
		}

		for tier := 0; tier < 3; tier++ {
			tbl, _ := Build(snap, view.KindNBStat, Query{Verbosity: tier})
			i := slices.Index(rowPIDs(tbl), 777)
			require.GreaterOrEqual(t, i, 0, "tier %d alive=%v", tier, alive)
			row := tbl.Row(i)
			assert.Equal(t, want, row.Get(resource.Type).Str())
			assert.Equal(t, "64 MB", row.Render(resource.DeviceProcessMemoryUsed, table.CellOptions{}).Text)
		}
	}
}

// richSnapshot has two notebooks, a script, an orphan and a zombie.
func richSnapshot() *model.Snapshot {
	snap := scenarioA()
	other := kernelProc(200, t0.Add(-time.Hour))
	other.Cmdline = strings.Replace(other.Cmdline, kernelID, "0b8d5a2e-1111-4222-8333-944455556666", 1)
	script := model.Process{PID: 300, PPID: 1, Name: "python", Cmdline: "python train.py --lr 0.1", Cwd: "/work/exp", CreateTime: t0.Add(2 * time.Hour)}
	orphan := model.Process{PID: 400, PPID: 1, Name: "python", Cmdline: "python", Cwd: "/tmp", CreateTime: t0}
	lsp := model.Process{PID: 500, PPID: 1, Name: "python", Cmdline: "python /opt/lsp_server/run.py", CreateTime: t0}
	snap.Processes = append(snap.Processes,
		child(102, 100, t0.Add(2*time.Minute)),
		other, script, child(301, 300, t0.Add(3*time.Hour)), orphan, lsp,
	)
	snap.Devices.Devices = []model.Device{
		device(0, usage(101, 512*mb), usage(777, 64*mb)),
		device(1, usage(301, 128*mb), usage(101, 256*mb)),
	}
	return snap
}

func TestVerbosityMonotonic(t *testing.T) {
	snap := richSnapshot()
	var prev []int64
	for tier := 0; tier < 3; tier++ {
		tbl, _ := Build(snap, view.KindNBStat, Query{Verbosity: tier})
		got := rowPIDs(tbl)
		for _, pid := range prev {
			assert.Contains(t, got, pid, "tier %d dropped pid %d", tier, pid)
		}
		prev = got
	}

	tier0, _ := Build(snap, view.KindNBStat, Query{Verbosity: 0})
	assert.Equal(t, []int64{100, 101, 300, 301, 777}, rowPIDs(tier0))
	assert.Equal(t, []string{"a.ipynb", "/work/exp/train.py", table.TypeDeviceZombie}, groupKeys(tier0))

	tier1, _ := Build(snap, view.KindNBStat, Query{Verbosity: 1})
	assert.Equal(t, []int64{100, 101, 102, 300, 301, 777}, rowPIDs(tier1))

	tier2, _ := Build(snap, view.KindNBStat, Query{Verbosity: 2})
	keys := groupKeys(tier2)
	assert.Contains(t, keys, NoNotebook)
	assert.NotContains(t, rowPIDs(tier2), int64(500), "language server dropped")
	assert.Equal(t, "/work/0b8d5a2e.ipynb", keys[3], "non-device groups follow, by start time")
}

func TestMultiDeviceProcess(t *testing.T) {
	tbl, _ := Build(richSnapshot(), view.KindNBStat, Query{Verbosity: 0})
	row := tbl.Row(1)
	assert.Equal(t, "0, 1", row.Get(resource.DeviceShortID).Str())
	assert.Equal(t, "768 MB", row.Render(resource.DeviceProcessMemoryUsed, table.CellOptions{}).Text)
}

func TestIndexCondition(t *testing.T) {
	tbl, _ := Build(richSnapshot(), view.KindNBStat, Query{Verbosity: 2, IndexCondition: regexp.MustCompile(`\.py$`)})
	assert.Equal(t, []string{"/work/exp/train.py"}, groupKeys(tbl))
}

func TestBuildDeviceStat(t *testing.T) {
	snap := richSnapshot()
	snap.Devices.Devices = append(snap.Devices.Devices, device(2))
	tbl, _ := Build(snap, view.KindDeviceStat, Query{})
	assert.Equal(t, []string{"0", "1", "2"}, groupKeys(tbl))

	groups := tbl.Groups()
	require.Equal(t, 2, groups[0].Rows.Len())
	assert.Equal(t, "a.ipynb", groups[0].Rows.Row(0).Get(resource.Name).Str())
	assert.Equal(t, table.TypeDeviceZombie, groups[0].Rows.Row(1).Get(resource.Type).Str())
	assert.Equal(t, 1, groups[2].Rows.Len(), "idle device keeps one row")
	assert.False(t, groups[2].Rows.Row(0).Has(resource.DeviceProcessPID))
}

func TestBuildGPUStat(t *testing.T) {
	tbl, _ := Build(richSnapshot(), view.KindGPUStat, Query{})
	require.Equal(t, 2, tbl.Len())
	n, _ := tbl.Row(1).Get(resource.DeviceProcessCount).Int64()
	assert.Equal(t, int64(2), n)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name    string
		cmdline string
		kind    string
		path    string
		kernel  string
	}{
		{"kernel", "python -m ipykernel_launcher -f /r/kernel-" + kernelID + ".json", TypeNotebook, "/w/5d3b1f8e.ipynb", kernelID},
		{"kernel_file_without_id", "python -m ipykernel_launcher -f /r/kernel-scratch.json", TypeNotebook, "/w/scratch.ipynb", ""},
		{"vscode", `python -m ipykernel_launcher --key=b"abc-def" --shell=9000`, TypeVSCode, "abc-def", "abc-def"},
		{"script", "python3 train.py --epochs 3", TypeScript, "/w/train.py", ""},
		{"script_abs", "python3 /opt/job/run.py", TypeScript, "/opt/job/run.py", ""},
		{"unknown", "python3", TypeUnknown, "/w", ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := classify(c.cmdline, "/w")
			assert.Equal(t, c.kind, got.kind)
			assert.Equal(t, c.path, got.path)
			assert.Equal(t, c.kernel, got.kernel)
		})
	}
}

func TestCacheTTL(t *testing.T) {
	now := t0
	c := NewCache(800*time.Millisecond, func() time.Time { return now })
	c.Put("k", 1)

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	now = now.Add(799 * time.Millisecond)
	_, ok = c.Get("k")
	assert.True(t, ok)

	now = now.Add(time.Millisecond)
	_, ok = c.Get("k")
	assert.False(t, ok, "expired at the ttl")

	c.Put("k", 2)
	c.Invalidate()
	_, ok = c.Get("k")
	assert.False(t, ok)

	off := NewCache(0, nil)
	off.Put("k", 1)
	_, ok = off.Get("k")
	assert.False(t, ok)
}

func TestCollectUsesCache(t *testing.T) {
	now := t0
	procs := &fakeProcesses{procs: scenarioA().Processes}
	devs := &fakeDevices{err: errors.New("nvidia-smi: driver mismatch")}
	in := NewInspector(collector.Sources{Processes: procs, Devices: devs}, Options{
		CacheTTL: 800 * time.Millisecond,
		Now:      func() time.Time { return now },
	})
	ctx := context.Background()

	snap := in.Collect(ctx, false)
	require.Len(t, snap.Warnings, 1)
	assert.Equal(t, collector.SourceDevices, snap.Warnings[0].Source)
	assert.Len(t, snap.Processes, 2)

	in.Collect(ctx, false)
	assert.Equal(t, 1, procs.calls, "second call within ttl is cached")
	assert.Equal(t, 2, devs.calls, "failures are not cached")

	now = now.Add(time.Second)
	in.Collect(ctx, false)
	assert.Equal(t, 2, procs.calls)

	in.Collect(ctx, true)
	assert.Equal(t, 3, procs.calls, "forced tick invalidates")
}

func TestHistoryAverages(t *testing.T) {
	h := NewHistory(3)
	_, ok := h.Observe("p", resource.CPU, 10)
	assert.False(t, ok, "one sample has no average")
	h.Advance()

	avg, ok := h.Observe("p", resource.CPU, 20)
	require.True(t, ok)
	assert.Equal(t, 15.0, avg)
	h.Advance()
	h.Observe("p", resource.CPU, 30)
	h.Advance()
	avg, _ = h.Observe("p", resource.CPU, 40)
	assert.Equal(t, 30.0, avg, "window keeps the last three")
	h.Advance()

	h.Observe("q", resource.CPU, 1)
	h.Advance()
	assert.Equal(t, 2, h.Len(), "p is still within its grace ticks")
	h.Observe("q", resource.CPU, 1)
	h.Advance()
	assert.Equal(t, 1, h.Len(), "p aged out")
}

func TestCollectMovingAverage(t *testing.T) {
	procs := &fakeProcesses{procs: scenarioA().Processes}
	devs := &fakeDevices{report: scenarioA().Devices}
	in := NewInspector(collector.Sources{Processes: procs, Devices: devs}, Options{Window: 5})

	first := in.Collect(context.Background(), true)
	assert.Nil(t, first.Processes[0].CPUAverage)
	assert.Nil(t, first.Devices.Devices[0].UtilAverage)

	procs.procs[1].CPUPercent = model.Float(50)
	second := in.Collect(context.Background(), true)
	require.NotNil(t, second.Processes[1].CPUAverage)
	assert.Equal(t, 70.0, *second.Processes[1].CPUAverage)
	require.NotNil(t, second.Devices.Devices[0].UtilAverage)
	assert.Equal(t, 50.0, *second.Devices.Devices[0].UtilAverage)

	// a new process under a reused pid starts a fresh window
	procs.procs[1].CreateTime = procs.procs[1].CreateTime.Add(time.Hour)
	third := in.Collect(context.Background(), true)
	assert.Nil(t, third.Processes[1].CPUAverage)
}

func TestRender(t *testing.T) {
	in := NewInspector(collector.Sources{}, Options{})
	snap := scenarioA()
	snap.System = model.SystemInfo{CPUPercent: model.Float(12.5), MemoryUsed: 8 << 30, MemoryTotal: 64 << 30}
	snap.Warnings = []model.SourceWarning{{Source: "kernels", Err: "server down"}}

	st := view.State{Kind: view.KindNBStat, Spec: view.NBStat(), Options: view.Options{
		Header: true, SeparateHeader: true, Footnote: true, Help: true, HideSimilar: true,
	}}
	screen := in.Render(snap, RenderOptions{State: st, Summary: true})

	require.Len(t, screen.Header, 3)
	assert.Contains(t, screen.Header[0], "DRIVER: 535.104.05")
	assert.Contains(t, screen.Header[0], "HOST RAM: 64 GiB")
	assert.Contains(t, screen.Header[1], "PROCESS NAME")
	require.Len(t, screen.Body, 2)
	assert.Contains(t, screen.Body[0], "a.ipynb")
	assert.NotContains(t, screen.Body[1], "a.ipynb", "similar names are hidden")

	footer := strings.Join(screen.Footer, "\n")
	assert.Contains(t, footer, "# KERNELS:   1")
	assert.Contains(t, footer, "DEVICES USED: 1 / 1")
	assert.Contains(t, footer, "CPU:   12.5%")
	assert.Contains(t, footer, "RSS:  8.0 / 64.0 GB")
	assert.Contains(t, footer, "kernels: server down")
	assert.Contains(t, footer, "tab")

	empty := in.Render(&model.Snapshot{Timestamp: t0}, RenderOptions{State: st})
	assert.Contains(t, strings.Join(empty.Body, "\n"), table.EmptyPlaceholder)
}

func TestCollectWithoutDevices(t *testing.T) {
	m := NewMetrics()
	procs := &fakeProcesses{procs: scenarioA().Processes}
	devs := &fakeDevices{err: fmt.Errorf("%w: nvidia-smi not found", collector.ErrNoDevices)}
	in := NewInspector(collector.Sources{Processes: procs, Devices: devs}, Options{Metrics: m})

	for n := 0; n < 3; n++ {
		snap := in.Collect(context.Background(), true)
		assert.Empty(t, snap.Warnings, "a host without accelerators is not an error")
		assert.Empty(t, snap.Devices.Devices)
		assert.Len(t, snap.Processes, 2)
	}
	assert.Equal(t, 3, devs.calls)
	assert.Zero(t, testutil.ToFloat64(m.CollectorErrors.WithLabelValues(collector.SourceDevices)))
}

func TestMetrics(t *testing.T) {
	m := NewMetrics()
	procs := &fakeProcesses{procs: scenarioA().Processes}
	devs := &fakeDevices{report: scenarioA().Devices}
	failing := &fakeDevices{err: errors.New("boom")}

	kernels := &fakeKernels{kernels: scenarioA().Kernels}
	in := NewInspector(collector.Sources{Processes: procs, Devices: devs, Kernels: kernels, System: fakeSystem{}}, Options{Metrics: m})
	in.Collect(context.Background(), true)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Processes))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Kernels))
	assert.Equal(t, 50.0, testutil.ToFloat64(m.DeviceUtil.WithLabelValues("0", "GPU-a")))
	assert.Equal(t, float64(512*mb), testutil.ToFloat64(m.ProcessDeviceMem.WithLabelValues("0", "101")))
	assert.Equal(t, 12.5, testutil.ToFloat64(m.HostCPU))

	bad := NewInspector(collector.Sources{Devices: failing}, Options{Metrics: m})
	bad.Collect(context.Background(), true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CollectorErrors.WithLabelValues(collector.SourceDevices)))
}
