package collector

import (
	"context"
	"errors"

	"github.com/ftahirops/nbstat/model"
)

// Source names used in warnings, cache keys and metrics labels.
const (
	SourceProcesses = "processes"
	SourceDevices   = "devices"
	SourceKernels   = "kernels"
	SourceSystem    = "system"
)

var (
	// ErrNoDevices means no accelerator telemetry tool is installed or it
	// reported no devices.
	ErrNoDevices = errors.New("no accelerator telemetry available")
	// ErrNoServers means no notebook server runtime files were found.
	ErrNoServers = errors.New("no running notebook servers")
)

// ProcessSource lists host processes worth monitoring.
type ProcessSource interface {
	Processes(ctx context.Context) ([]model.Process, error)
	// Alive reports whether pid exists on the host, tracked or not.
	Alive(ctx context.Context, pid int32) bool
}

// DeviceSource reports accelerator telemetry.
type DeviceSource interface {
	Devices(ctx context.Context) (model.DeviceReport, error)
}

// KernelSource reports the notebook kernel registry.
type KernelSource interface {
	Kernels(ctx context.Context) ([]model.Kernel, error)
}

// SystemSource reports host-wide CPU and memory usage.
type SystemSource interface {
	System(ctx context.Context) (model.SystemInfo, error)
}

// Sources groups the collectors the inspector queries every tick. A nil
// source is skipped.
type Sources struct {
	Processes ProcessSource
	Devices   DeviceSource
	Kernels   KernelSource
	System    SystemSource
}

// Options configures the production sources.
type Options struct {
	ProcRoot    string
	NvidiaSMI   string
	RuntimeDirs []string
}

// NewSources returns the default production sources.
func NewSources(opts Options) Sources {
	return Sources{
		Processes: NewProcessCollector(opts.ProcRoot),
		Devices:   &DeviceCollector{Binary: opts.NvidiaSMI},
		Kernels:   &KernelCollector{RuntimeDirs: opts.RuntimeDirs},
		System:    &SystemCollector{},
	}
}
