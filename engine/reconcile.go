package engine

import (
	"cmp"
	"maps"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/ftahirops/nbstat/collector"
	"github.com/ftahirops/nbstat/model"
	"github.com/ftahirops/nbstat/resource"
	"github.com/ftahirops/nbstat/table"
	"github.com/ftahirops/nbstat/view"
)

// Process types shown in the TYPE column.
const (
	TypeNotebook   = "notebook"
	TypeVSCode     = "vscode"
	TypeScript     = "script"
	TypeSubprocess = "subprocess"
	TypeUnknown    = "unknown"
	TypeNonPython  = "non-python"
)

// NoNotebook labels the group of processes without an owning notebook or
// script.
const NoNotebook = "<no notebook>"

var (
	kernelIDPattern  = regexp.MustCompile(`kernel-(.*)\.json`)
	vscodeKeyPattern = regexp.MustCompile(`key=b"(.*)"`)
	scriptPattern    = regexp.MustCompile(`python.* (.*)\.py`)

	ignoredGroups = []string{"lsp_server"}
)

// Query selects the rows of a view.
type Query struct {
	Verbosity      int
	IndexCondition *regexp.Regexp
}

// Build reconciles a snapshot into the table of the given view.
func Build(snap *model.Snapshot, kind view.Kind, q Query) (table.Table, table.MergeReport) {
	if snap == nil {
		return table.New(), table.MergeReport{}
	}
	var (
		t      table.Table
		report table.MergeReport
	)
	switch kind {
	case view.KindDeviceStat:
		t, report = buildDeviceStat(snap)
	case view.KindGPUStat:
		t = buildGPUStat(snap)
	default:
		t, report = buildNBStat(snap, q.Verbosity)
	}
	if q.IndexCondition != nil {
		t = t.FilterGroups(func(g table.Group) bool { return q.IndexCondition.MatchString(g.Key.String()) })
	}
	return t, report
}

type classified struct {
	kind, name, path, kernel string
}

// classify infers what started a process from its command line.
func classify(cmdline, cwd string) classified {
	join := func(name string) string {
		if filepath.IsAbs(name) || cwd == "" {
			return name
		}
		return filepath.Join(cwd, name)
	}
	if m := kernelIDPattern.FindStringSubmatch(cmdline); m != nil {
		name := strings.SplitN(m[1], "-", 2)[0] + ".ipynb"
		c := classified{kind: TypeNotebook, name: name, path: join(name)}
		if collector.ValidKernelID(m[1]) {
			c.kernel = m[1]
		}
		return c
	}
	if m := vscodeKeyPattern.FindStringSubmatch(cmdline); m != nil {
		name := strings.SplitN(m[1], "-", 2)[0] + ".ipynb"
		return classified{kind: TypeVSCode, name: name, path: m[1], kernel: m[1]}
	}
	if m := scriptPattern.FindStringSubmatch(cmdline); m != nil {
		name := m[1] + ".py"
		return classified{kind: TypeScript, name: name, path: join(name)}
	}
	return classified{kind: TypeUnknown, name: TypeUnknown, path: cwd}
}

func ownsGroup(kind string) bool {
	return kind == TypeNotebook || kind == TypeVSCode || kind == TypeScript
}

type procInfo struct {
	proc       model.Process
	class      classified
	pythonPPID int32 // -1 for processes not spawned by another tracked one
	owner      *procInfo
}

// processRows classifies processes, names kernels from the registry and
// assigns every process to its owning notebook or script.
func processRows(snap *model.Snapshot) []table.Row {
	byPID := make(map[int32]*procInfo, len(snap.Processes))
	infos := make([]*procInfo, 0, len(snap.Processes))
	for _, p := range snap.Processes {
		info := &procInfo{proc: p, class: classify(p.Cmdline, p.Cwd), pythonPPID: -1}
		byPID[p.PID] = info
		infos = append(infos, info)
	}

	kernelsByPID := make(map[int32]model.Kernel)
	kernelsByID := make(map[string]model.Kernel)
	for _, k := range snap.Kernels {
		if k.PID != 0 {
			kernelsByPID[k.PID] = k
		}
		if k.ID != "" {
			kernelsByID[k.ID] = k
		}
	}

	for _, info := range infos {
		k, ok := kernelsByPID[info.proc.PID]
		if !ok && info.class.kernel != "" {
			k, ok = kernelsByID[info.class.kernel]
		}
		if ok {
			info.class.kernel = k.ID
			info.class.name = k.Name
			info.class.path = k.Path
			if info.class.kind == TypeUnknown {
				info.class.kind = TypeNotebook
			}
		}
		// kernels own their tree even when launched by a tracked process
		if ownsGroup(info.class.kind) && info.class.kind != TypeScript {
			continue
		}
		if _, tracked := byPID[info.proc.PPID]; tracked && info.proc.PPID != info.proc.PID {
			info.pythonPPID = info.proc.PPID
			info.class.kind = TypeSubprocess
		}
	}

	for _, info := range infos {
		cur := info
		for n := len(infos) + 1; n > 0; n-- {
			if cur.pythonPPID == -1 {
				if ownsGroup(cur.class.kind) {
					info.owner = cur
				}
				break
			}
			cur = byPID[cur.pythonPPID]
		}
	}

	rows := make([]table.Row, 0, len(infos))
	for _, info := range infos {
		rows = append(rows, info.row())
	}
	return rows
}

func (info *procInfo) row() table.Row {
	p := info.proc
	v := map[resource.Resource]table.Value{
		resource.Type:       table.String(info.class.kind),
		resource.Cmdline:    table.String(p.Cmdline),
		resource.PID:        table.Int(int64(p.PID)),
		resource.PPID:       table.Int(int64(p.PPID)),
		resource.PythonPPID: table.Int(int64(info.pythonPPID)),
		resource.IsParent:   table.Bool(info.pythonPPID == -1),
		resource.RSS:        table.OptionalUint(p.RSS),
		resource.CPU:        table.OptionalFloat(p.CPUPercent),
		resource.CPUAvg:     table.OptionalFloat(p.CPUAverage),
	}
	if p.NGID != 0 {
		v[resource.NGID] = table.Int(int64(p.NGID))
	}
	if !p.CreateTime.IsZero() {
		v[resource.CreateTime] = table.Time(p.CreateTime)
	}
	if p.Status != "" {
		v[resource.Status] = table.String(p.Status)
	}

	if owner := info.owner; owner != nil {
		v[resource.Name] = table.String(owner.class.name)
		v[resource.Path] = table.String(owner.class.path)
		if owner.class.kernel != "" {
			v[resource.Kernel] = table.String(owner.class.kernel)
		}
	} else {
		v[resource.Name] = table.String(info.class.name)
		v[resource.Path] = table.String(NoNotebook)
	}
	return table.NewRow(v)
}

// deviceValues are the device-wide columns shared by every row of a device.
func deviceValues(d model.Device) map[resource.Resource]table.Value {
	return map[resource.Resource]table.Value{
		resource.DeviceID:           table.Int(int64(d.Index)),
		resource.DeviceName:         table.String(d.Name),
		resource.DeviceUUID:         table.String(d.UUID),
		resource.DeviceMemoryUtil:   table.OptionalFloat(d.MemoryUtil),
		resource.DeviceMemoryUsed:   table.OptionalUint(d.MemoryUsed),
		resource.DeviceMemoryTotal:  table.OptionalUint(d.MemoryTotal),
		resource.DeviceTemp:         table.OptionalFloat(d.Temperature),
		resource.DevicePowerUsed:    table.OptionalFloat(d.PowerDraw),
		resource.DevicePowerLimit:   table.OptionalFloat(d.PowerLimit),
		resource.DeviceFan:          table.OptionalFloat(d.FanSpeed),
		resource.DeviceUtil:         table.OptionalFloat(d.Util),
		resource.DeviceUtilAvg:      table.OptionalFloat(d.UtilAverage),
		resource.DeviceProcessCount: table.Int(int64(len(d.Processes))),
	}
}

func sortedDevices(report model.DeviceReport) []model.Device {
	devices := slices.Clone(report.Devices)
	slices.SortStableFunc(devices, func(a, b model.Device) int { return cmp.Compare(a.Index, b.Index) })
	return devices
}

// deviceUsage aggregates device processes per host pid. A process on
// several devices gets one row listing every device id, summed memory and
// the device-wide values of its lowest device.
func deviceUsage(report model.DeviceReport) table.Table {
	type usage struct {
		first  model.Device
		ids    []string
		memory *uint64
	}
	var order []int32
	byPID := make(map[int32]*usage)
	for _, d := range sortedDevices(report) {
		for _, dp := range d.Processes {
			u, ok := byPID[dp.PID]
			if !ok {
				u = &usage{first: d}
				byPID[dp.PID] = u
				order = append(order, dp.PID)
			}
			id := strconv.Itoa(d.Index)
			if !slices.Contains(u.ids, id) {
				u.ids = append(u.ids, id)
			}
			if dp.MemoryUsed != nil {
				sum := *dp.MemoryUsed
				if u.memory != nil {
					sum += *u.memory
				}
				u.memory = &sum
			}
		}
	}

	rows := make([]table.Row, 0, len(order))
	for _, pid := range order {
		u := byPID[pid]
		v := deviceValues(u.first)
		v[resource.HostPID] = table.Int(int64(pid))
		v[resource.DeviceProcessPID] = table.Int(int64(pid))
		v[resource.DeviceShortID] = table.String(strings.Join(u.ids, ", "))
		v[resource.DeviceProcessMemoryUsed] = table.OptionalUint(u.memory)
		rows = append(rows, table.NewRow(v))
	}
	return table.New(rows...)
}

// untracked builds the row for device usage no listed process accounts for.
func untracked(usage table.Row, pid int64, alive func(int32) bool) table.Row {
	kind := table.TypeDeviceZombie
	if alive != nil && alive(int32(pid)) {
		kind = TypeNonPython
	}
	return usage.Union(table.NewRow(map[resource.Resource]table.Value{
		resource.PID:        table.Int(pid),
		resource.Type:       table.String(kind),
		resource.Name:       table.String(kind),
		resource.Path:       table.String(kind),
		resource.PythonPPID: table.Int(-1),
		resource.IsParent:   table.Bool(true),
	}))
}

func usesDevice(r table.Row) table.Value { return table.Bool(r.Has(resource.DeviceID)) }

// buildNBStat groups processes by owning notebook.
func buildNBStat(snap *model.Snapshot, verbosity int) (table.Table, table.MergeReport) {
	procs := table.New(processRows(snap)...)
	usage := deviceUsage(snap.Devices)

	merged, report := procs.Merge(usage,
		table.JoinKey{Left: resource.PID, Right: resource.HostPID},
		table.JoinKey{Left: resource.NGID, Right: resource.HostPID},
	)
	for _, i := range report.Unmatched() {
		row := usage.Row(i)
		pid, _ := row.Get(resource.HostPID).Int64()
		merged = merged.Append(untracked(row, pid, snap.Alive))
	}
	merged = merged.Apply(resource.UsesDevice, usesDevice)

	t := merged.SetIndex(resource.Path).
		FilterGroups(func(g table.Group) bool {
			label := g.Key.String()
			for _, bad := range ignoredGroups {
				if strings.Contains(label, bad) {
					return false
				}
			}
			return true
		}).
		SortWithinGroups(compareInGroup)

	t = filterVerbosity(t, verbosity)
	return t.SortGroups(compareGroups), report
}

// filterVerbosity keeps, at tier 0, the device-using groups with their main
// and device-using rows; at tier 1 the same groups in full; at tier 2
// everything.
func filterVerbosity(t table.Table, verbosity int) table.Table {
	if verbosity >= 2 {
		return t
	}
	t = t.FilterGroups(func(g table.Group) bool {
		return g.Key.String() != NoNotebook && g.Rows.Any(func(r table.Row) bool { return r.Get(resource.UsesDevice).Truthy() })
	})
	if verbosity == 1 {
		return t
	}
	return t.Filter(func(r table.Row) bool {
		return r.Get(resource.UsesDevice).Truthy() || r.Get(resource.IsParent).Truthy()
	})
}

// compareInGroup puts the main process first, then device users, then the
// rest, each by start time.
func compareInGroup(a, b table.Row) int {
	if c := -cmp.Compare(boolRank(a, resource.IsParent), boolRank(b, resource.IsParent)); c != 0 {
		return c
	}
	if c := -cmp.Compare(boolRank(a, resource.UsesDevice), boolRank(b, resource.UsesDevice)); c != 0 {
		return c
	}
	if c := table.Compare(a.Get(resource.CreateTime), b.Get(resource.CreateTime)); c != 0 {
		return c
	}
	return table.Compare(a.Get(resource.PID), b.Get(resource.PID))
}

// compareGroups puts device-using groups first, then orders by the start
// time of the main process.
func compareGroups(a, b table.Group) int {
	ua := a.Rows.Any(func(r table.Row) bool { return r.Get(resource.UsesDevice).Truthy() })
	ub := b.Rows.Any(func(r table.Row) bool { return r.Get(resource.UsesDevice).Truthy() })
	if ua != ub {
		if ua {
			return -1
		}
		return 1
	}
	if c := table.Compare(groupStart(a), groupStart(b)); c != 0 {
		return c
	}
	return table.Compare(a.Key, b.Key)
}

func groupStart(g table.Group) table.Value {
	mains := g.Rows.Filter(func(r table.Row) bool { return r.Get(resource.IsParent).Truthy() })
	if mains.Len() == 0 {
		mains = g.Rows
	}
	return mains.Aggregate(resource.CreateTime, table.Min)
}

func boolRank(r table.Row, res resource.Resource) int {
	if r.Get(res).Truthy() {
		return 1
	}
	return 0
}

// deviceRows lists one row per process of each device, or one row for an
// idle device.
func deviceRows(report model.DeviceReport) table.Table {
	var rows []table.Row
	for _, d := range sortedDevices(report) {
		base := deviceValues(d)
		base[resource.DeviceShortID] = table.String(strconv.Itoa(d.Index))
		if len(d.Processes) == 0 {
			rows = append(rows, table.NewRow(base))
			continue
		}
		for _, dp := range d.Processes {
			v := maps.Clone(base)
			v[resource.DeviceProcessPID] = table.Int(int64(dp.PID))
			v[resource.DeviceProcessMemoryUsed] = table.OptionalUint(dp.MemoryUsed)
			rows = append(rows, table.NewRow(v))
		}
	}
	return table.New(rows...)
}

// buildDeviceStat is the transposed view: device processes grouped by
// device, annotated with the process that holds them.
func buildDeviceStat(snap *model.Snapshot) (table.Table, table.MergeReport) {
	devices := deviceRows(snap.Devices)
	procs := table.New(processRows(snap)...)
	merged, report := devices.Merge(procs,
		table.JoinKey{Left: resource.DeviceProcessPID, Right: resource.PID},
		table.JoinKey{Left: resource.DeviceProcessPID, Right: resource.NGID},
	)

	rows := merged.Rows()
	for i, r := range rows {
		pid, ok := r.Get(resource.DeviceProcessPID).Int64()
		if !ok || r.Has(resource.PID) {
			continue
		}
		rows[i] = untracked(r, pid, snap.Alive)
	}
	t := table.New(rows...).
		Apply(resource.UsesDevice, usesDevice).
		SortBy(resource.CreateTime, false).
		SetIndex(resource.DeviceID).
		SortGroups(func(a, b table.Group) int { return table.Compare(a.Key, b.Key) })
	return t, report
}

// buildGPUStat lists devices only.
func buildGPUStat(snap *model.Snapshot) table.Table {
	var rows []table.Row
	for _, d := range sortedDevices(snap.Devices) {
		v := deviceValues(d)
		v[resource.DeviceShortID] = table.String(strconv.Itoa(d.Index))
		rows = append(rows, table.NewRow(v))
	}
	return table.New(rows...).SetIndex(resource.DeviceID)
}
