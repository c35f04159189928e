package model

import (
	"strconv"
	"time"
)

// Process is one OS process as listed by the host. Pointer fields are nil
// when the attribute could not be read.
type Process struct {
	PID        int32
	PPID       int32
	NGID       int32 // namespace group id, 0 when unknown
	Name       string
	Exe        string
	Cmdline    string
	Cwd        string
	Status     string
	CreateTime time.Time

	CPUPercent *float64
	RSS        *uint64

	// CPUAverage is the moving average of CPUPercent, filled by the engine.
	CPUAverage *float64
}

// Identity distinguishes a process from a later one reusing its pid.
func (p Process) Identity() string {
	return ProcessIdentity(p.PID, p.CreateTime)
}

func ProcessIdentity(pid int32, created time.Time) string {
	return strconv.Itoa(int(pid)) + "@" + strconv.FormatInt(created.UnixMilli(), 10)
}

// Device is one accelerator.
type Device struct {
	Index       int
	UUID        string
	Name        string
	Util        *float64 // percent
	MemoryUtil  *float64 // percent
	MemoryUsed  *uint64  // bytes
	MemoryTotal *uint64  // bytes
	Temperature *float64 // °C
	PowerDraw   *float64 // W
	PowerLimit  *float64 // W
	FanSpeed    *float64 // percent

	Processes []DeviceProcess

	// UtilAverage is the moving average of Util, filled by the engine.
	UtilAverage *float64
}

// Identity keys the moving averages of a device.
func (d Device) Identity() string { return "device" + strconv.Itoa(d.Index) }

// DeviceProcess is a process the driver reports on a device. PID is in the
// host's pid namespace.
type DeviceProcess struct {
	PID        int32
	MemoryUsed *uint64
}

// Float and Uint return pointers for optional fields.
func Float(v float64) *float64 { return &v }
func Uint(v uint64) *uint64 { return &v }
