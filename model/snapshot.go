package model

import "time"

// Snapshot holds everything one collection tick gathered. Sources that
// failed leave their part empty and add a SourceWarning.
type Snapshot struct {
	Timestamp time.Time
	Processes []Process
	Devices   DeviceReport
	Kernels   []Kernel
	System    SystemInfo
	Warnings  []SourceWarning

	// Alive reports whether a pid exists on the host. It is set by the
	// collector so reconciliation can tell gone processes from unlisted ones.
	Alive func(pid int32) bool `json:"-"`
}

// SourceWarning records a collector that failed during a tick.
type SourceWarning struct {
	Source string
	Err    string
}

// SystemInfo is host-wide usage shown in the footnote.
type SystemInfo struct {
	CPUPercent  *float64
	MemoryUsed  uint64
	MemoryTotal uint64
}

// Kernel is one entry of the notebook kernel registry.
type Kernel struct {
	ID        string
	Name      string // notebook file name
	Path      string // notebook path relative to the server root
	PID       int32  // 0 when the server does not report it
	ServerURL string
}

// DeviceReport is the accelerator telemetry of one tick.
type DeviceReport struct {
	DriverVersion string
	CUDAVersion   string
	Devices       []Device
}

// DeviceCount returns the number of devices and how many have processes.
func (r DeviceReport) DeviceCount() (used, total int) {
	for _, d := range r.Devices {
		if len(d.Processes) > 0 {
			used++
		}
	}
	return used, len(r.Devices)
}
