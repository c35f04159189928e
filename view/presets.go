package view

import (
	"fmt"
	"path/filepath"
	"strings"

	r "github.com/ftahirops/nbstat/resource"
)

// Kind names a table layout.
type Kind int

const (
	KindNBStat Kind = iota
	KindDeviceStat
	KindGPUStat
)

func (k Kind) String() string {
	switch k {
	case KindNBStat:
		return "nbstat"
	case KindDeviceStat:
		return "devicestat"
	case KindGPUStat:
		return "gpustat"
	}
	return "unknown"
}

// Other is the view Tab switches to.
func (k Kind) Other() Kind {
	if k == KindNBStat {
		return KindDeviceStat
	}
	return KindNBStat
}

// Preset returns a fresh spec for k.
func (k Kind) Preset() *Spec {
	switch k {
	case KindDeviceStat:
		return DeviceStat()
	case KindGPUStat:
		return GPUStat()
	}
	return NBStat()
}

var commands = map[string]struct {
	kind  Kind
	watch bool
}{
	"nbstat":      {KindNBStat, false},
	"nbwatch":     {KindNBStat, true},
	"devicestat":  {KindDeviceStat, false},
	"devicewatch": {KindDeviceStat, true},
	"gpustat":     {KindGPUStat, false},
	"gpuwatch":    {KindGPUStat, true},
}

// ParseCommand maps a command name such as "nbwatch" or
// "/usr/local/bin/devicestat" to its view and whether it loops.
func ParseCommand(name string) (kind Kind, watch bool, err error) {
	c, ok := commands[strings.TrimSuffix(filepath.Base(name), ".exe")]
	if !ok {
		return 0, false, fmt.Errorf("unknown command %q", name)
	}
	return c.kind, c.watch, nil
}

func col(res r.Resource, include bool) Column { return Column{Resource: res, Include: include} }

func delim() Column { return col(r.TableDelimiter1, true) }

func (c Column) width(w int) Column { c.MinWidth = w; return c }
func (c Column) hidable() Column { c.Hidable = true; return c }
func (c Column) bar() Column { c.HasBar = true; return c }

// NBStat lays out one row per process, grouped by notebook.
func NBStat() *Spec {
	return NewSpec(
		col(r.Name, true).hidable(),

		delim(),
		col(r.Type, true),
		col(r.PID, true),
		col(r.PPID, false),
		col(r.NGID, false),
		col(r.PythonPPID, false),
		col(r.HostPID, false),
		col(r.Kernel, false),
		col(r.Status, false).width(10),

		delim(),
		col(r.CreateTime, false),

		delim(),
		col(r.CPU, true).width(5),
		col(r.CPUAvg, false).width(5),
		col(r.RSS, true).width(8),

		delim(),
		col(r.DeviceShortID, true),
		col(r.DeviceProcessPID, false),
		delim(),
		col(r.DeviceProcessMemoryUsed, true),
		delim(),
		col(r.DeviceUtil, true).width(5).bar(),
		col(r.DeviceUtilAvg, false).width(5).bar(),
		col(r.DeviceTemp, true).width(5),
		delim(),
		col(r.DevicePowerUsed, false),
		col(r.DeviceFan, false).width(4),
		delim(),

		col(r.Path, false).hidable(),
		col(r.Cmdline, false).hidable(),
	)
}

// DeviceStat lays out one row per device process, grouped by device.
func DeviceStat() *Spec {
	return NewSpec(
		col(r.DeviceID, true).hidable(),
		delim(),
		col(r.DeviceUtil, true).hidable().width(5).bar(),
		col(r.DeviceUtilAvg, false).width(5).bar(),
		col(r.DeviceTemp, true).hidable().width(5),
		col(r.DevicePowerUsed, false).hidable(),
		col(r.DeviceFan, false).hidable().width(4),
		delim(),

		col(r.DeviceProcessMemoryUsed, true),
		delim(),

		col(r.Name, true),
		delim(),

		col(r.Type, false),
		col(r.PID, false),
		col(r.PPID, false),
		col(r.NGID, false),
		col(r.PythonPPID, false),
		col(r.DeviceProcessPID, true),
		col(r.HostPID, false),
		col(r.Kernel, false),
		col(r.Status, false),
		col(r.CreateTime, false),

		delim(),
		col(r.CPU, false).width(5),
		col(r.RSS, false).width(10),

		col(r.Path, false).hidable(),
		col(r.Cmdline, false).hidable(),
	)
}

// GPUStat lays out one row per device.
func GPUStat() *Spec {
	return NewSpec(
		col(r.DeviceID, true),
		delim(),
		col(r.DeviceUtil, true).width(5).bar(),
		col(r.DeviceUtilAvg, false).width(5).bar(),
		col(r.DeviceTemp, true).width(5),
		col(r.DevicePowerUsed, false),
		col(r.DeviceFan, false).width(4),
		delim(),
		col(r.DeviceMemoryUsed, true),
	)
}
