package collector

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/ftahirops/nbstat/model"
	"github.com/ftahirops/nbstat/util"
)

// ProcessCollector lists interpreter processes and their descendants.
// Handles are kept between calls so CPU percent is measured over the
// interval since the previous call.
type ProcessCollector struct {
	ProcRoot string // "/proc" when empty

	mu      sync.Mutex
	handles map[int32]handle
}

type handle struct {
	proc    *process.Process
	created int64
}

func NewProcessCollector(procRoot string) *ProcessCollector {
	return &ProcessCollector{ProcRoot: procRoot, handles: make(map[int32]handle)}
}

func (c *ProcessCollector) Processes(ctx context.Context) ([]model.Process, error) {
	pids, err := process.PidsWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pids: %w", err)
	}

	names := make(map[int32]string, len(pids))
	parents := make(map[int32]int32, len(pids))
	for _, pid := range pids {
		p := &process.Process{Pid: pid}
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue // exited
		}
		names[pid] = name
		if ppid, err := p.PpidWithContext(ctx); err == nil {
			parents[pid] = ppid
		}
	}

	tracked := Tracked(names, parents)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handles == nil {
		c.handles = make(map[int32]handle)
	}
	seen := make(map[int32]bool, len(tracked))
	out := make([]model.Process, 0, len(tracked))
	for _, pid := range tracked {
		proc, ok := c.read(ctx, pid, names[pid], parents[pid])
		if !ok {
			continue
		}
		seen[pid] = true
		out = append(out, proc)
	}
	for pid := range c.handles {
		if !seen[pid] {
			delete(c.handles, pid)
		}
	}
	return out, nil
}

// read fills one process. Fields that cannot be read are left empty; only a
// vanished process is dropped.
func (c *ProcessCollector) read(ctx context.Context, pid int32, name string, ppid int32) (model.Process, bool) {
	fresh := &process.Process{Pid: pid}
	created, err := fresh.CreateTimeWithContext(ctx)
	if err != nil {
		return model.Process{}, false
	}

	h, ok := c.handles[pid]
	if !ok || h.created != created {
		h = handle{proc: fresh, created: created}
		c.handles[pid] = h
	}
	p := h.proc

	out := model.Process{
		PID:        pid,
		PPID:       ppid,
		Name:       name,
		CreateTime: time.UnixMilli(created),
		NGID:       c.ngid(pid),
	}
	if cmd, err := p.CmdlineWithContext(ctx); err == nil {
		out.Cmdline = cmd
	}
	if exe, err := p.ExeWithContext(ctx); err == nil {
		out.Exe = exe
	}
	if cwd, err := p.CwdWithContext(ctx); err == nil {
		out.Cwd = cwd
	}
	if st, err := p.StatusWithContext(ctx); err == nil {
		out.Status = strings.Join(st, ",")
	}
	if pct, err := p.PercentWithContext(ctx, 0); err == nil {
		out.CPUPercent = model.Float(pct)
	}
	if mem, err := p.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		out.RSS = model.Uint(mem.RSS)
	}
	return out, true
}

// ngid reads the NUMA group id line of /proc/<pid>/status. Inside a
// container it carries the host pid on some kernels.
func (c *ProcessCollector) ngid(pid int32) int32 {
	root := c.ProcRoot
	if root == "" {
		root = "/proc"
	}
	return ReadNgid(filepath.Join(root, strconv.Itoa(int(pid)), "status"))
}

// ReadNgid returns the Ngid field of a status file, or 0.
func ReadNgid(path string) int32 {
	kv, err := util.ParseKeyValueFile(path)
	if err != nil {
		return 0
	}
	return int32(util.ParseInt(kv["Ngid"]))
}

func (c *ProcessCollector) Alive(ctx context.Context, pid int32) bool {
	ok, err := process.PidExistsWithContext(ctx, pid)
	return err == nil && ok
}

// Tracked selects pids whose name mentions python together with all their
// descendants, in ascending pid order.
func Tracked(names map[int32]string, parents map[int32]int32) []int32 {
	children := make(map[int32][]int32)
	for pid, ppid := range parents {
		children[ppid] = append(children[ppid], pid)
	}

	keep := make(map[int32]bool)
	var queue []int32
	for pid, name := range names {
		if strings.Contains(strings.ToLower(name), "python") {
			keep[pid] = true
			queue = append(queue, pid)
		}
	}
	for len(queue) > 0 {
		pid := queue[0]
		queue = queue[1:]
		for _, child := range children[pid] {
			if _, exists := names[child]; exists && !keep[child] {
				keep[child] = true
				queue = append(queue, child)
			}
		}
	}

	out := make([]int32, 0, len(keep))
	for pid := range keep {
		out = append(out, pid)
	}
	slices.Sort(out)
	return out
}
