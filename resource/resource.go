// Package resource defines the closed set of properties nbstat can collect
// and display: process attributes, host usage, accelerator usage and table
// structural elements. Every Resource owns one or more aliases used for CLI
// lookup and column naming.
package resource

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ErrUnknownAlias is returned when an alias does not name any Resource.
var ErrUnknownAlias = errors.New("unrecognized column")

// Resource identifies one displayable property.
type Resource int

const (
	None Resource = iota

	// Process description.
	Type
	Name
	Path
	Cmdline
	PID
	PPID
	NGID
	HostPID
	PythonPPID
	CreateTime
	Kernel
	Status

	// Host usage of a process.
	RSS
	CPU
	CPUAvg

	// Accelerator description and usage.
	DeviceID
	DeviceName
	DeviceUUID
	DeviceMemoryUtil
	DeviceMemoryUsed
	DeviceMemoryTotal
	DeviceTemp
	DevicePowerUsed
	DevicePowerLimit
	DeviceFan
	DeviceUtil
	DeviceUtilAvg
	DeviceProcessCount
	DeviceProcessPID
	DeviceProcessMemoryUsed
	DeviceShortID

	// Structural elements.
	TableDelimiter1
	TableDelimiter2
	UsesDevice
	IsParent

	count
)

// Category groups resources by what they describe.
type Category int

const (
	CategoryProcess Category = iota
	CategorySystem
	CategoryDevice
	CategoryStructural
)

func (c Category) String() string {
	switch c {
	case CategoryProcess:
		return "process"
	case CategorySystem:
		return "system"
	case CategoryDevice:
		return "device"
	case CategoryStructural:
		return "structural"
	}
	return "unknown"
}

type definition struct {
	aliases  []string // first is canonical, last is preferred for display
	header   string
	style    lipgloss.Style
	category Category
	summable bool
}

var catalog = [count]definition{
	Type:       {aliases: []string{"type"}, header: "TYPE", style: plainStyle, category: CategoryProcess},
	Name:       {aliases: []string{"name", "process_name"}, header: "PROCESS NAME", style: boldStyle, category: CategoryProcess},
	Path:       {aliases: []string{"path"}, header: "PATH", style: plainStyle, category: CategoryProcess},
	Cmdline:    {aliases: []string{"cmdline"}, header: "CMDLINE", style: plainStyle, category: CategoryProcess},
	PID:        {aliases: []string{"pid"}, header: "PID", style: plainStyle, category: CategoryProcess},
	PPID:       {aliases: []string{"ppid"}, header: "PPID", style: plainStyle, category: CategoryProcess},
	NGID:       {aliases: []string{"ngid"}, header: "NGID", style: plainStyle, category: CategoryProcess},
	HostPID:    {aliases: []string{"host_pid"}, header: "HOST PID", style: plainStyle, category: CategoryProcess},
	PythonPPID: {aliases: []string{"python_ppid"}, header: "PYTHON PPID", style: plainStyle, category: CategoryProcess},
	CreateTime: {aliases: []string{"create_time"}, header: "CREATE TIME", style: plainStyle, category: CategoryProcess},
	Kernel:     {aliases: []string{"kernel", "kernel_id"}, header: "KERNEL", style: plainStyle, category: CategoryProcess},
	Status:     {aliases: []string{"status"}, header: "STATUS", style: plainStyle, category: CategoryProcess},

	RSS:    {aliases: []string{"rss"}, header: "RSS", style: hostStyle, category: CategorySystem, summable: true},
	CPU:    {aliases: []string{"cpu"}, header: "CPU", style: hostStyle, category: CategorySystem, summable: true},
	CPUAvg: {aliases: []string{"cpu_avg", "cpu_ma"}, header: "AVG CPU", style: hostStyle, category: CategorySystem, summable: true},

	DeviceID:                {aliases: []string{"device_id"}, header: "DEVICE NAME [ID]", style: deviceIDStyle, category: CategoryDevice},
	DeviceName:              {aliases: []string{"device_name"}, header: "DEVICE NAME", style: deviceIDStyle, category: CategoryDevice},
	DeviceUUID:              {aliases: []string{"device_uuid"}, header: "UUID", style: plainStyle, category: CategoryDevice},
	DeviceMemoryUtil:        {aliases: []string{"device_memory_util"}, header: "MEMORY UTIL", style: memoryStyle, category: CategoryDevice},
	DeviceMemoryUsed:        {aliases: []string{"device_memory_used", "memory"}, header: "MEMORY", style: memoryStyle, category: CategoryDevice},
	DeviceMemoryTotal:       {aliases: []string{"device_memory_total"}, header: "MEMORY TOTAL", style: memoryStyle, category: CategoryDevice},
	DeviceTemp:              {aliases: []string{"device_temp", "temperature", "temp"}, header: "TEMP", style: tempStyle, category: CategoryDevice},
	DevicePowerUsed:         {aliases: []string{"device_power_used", "power"}, header: "POWER", style: powerStyle, category: CategoryDevice},
	DevicePowerLimit:        {aliases: []string{"device_power_limit"}, header: "POWER LIMIT", style: powerStyle, category: CategoryDevice},
	DeviceFan:               {aliases: []string{"device_fan", "fan"}, header: "FAN", style: plainStyle, category: CategoryDevice},
	DeviceUtil:              {aliases: []string{"device_util", "util"}, header: "UTIL", style: utilStyle, category: CategoryDevice},
	DeviceUtilAvg:           {aliases: []string{"device_util_avg", "util_ma"}, header: "AVG UTIL", style: utilStyle, category: CategoryDevice},
	DeviceProcessCount:      {aliases: []string{"device_process_n"}, header: "PROCESS N", style: plainStyle, category: CategoryDevice},
	DeviceProcessPID:        {aliases: []string{"device_process_pid", "device_pid"}, header: "DEVICE PID", style: plainStyle, category: CategoryDevice},
	DeviceProcessMemoryUsed: {aliases: []string{"device_process_memory_used", "process_memory"}, header: "PROCESS MEMORY", style: memoryStyle, category: CategoryDevice, summable: true},
	DeviceShortID:           {aliases: []string{"device_short_id", "short_id"}, header: "DEVICE ID", style: deviceIDStyle, category: CategoryDevice},

	TableDelimiter1: {aliases: []string{"table_delimiter1"}, header: "┃", style: plainStyle, category: CategoryStructural},
	TableDelimiter2: {aliases: []string{"table_delimiter2"}, header: "┃┃", style: plainStyle, category: CategoryStructural},
	UsesDevice:      {aliases: []string{"uses_device"}, header: "USES DEVICE", style: plainStyle, category: CategoryStructural},
	IsParent:        {aliases: []string{"is_parent"}, header: "IS PARENT", style: plainStyle, category: CategoryStructural},
}

var byAlias = buildAliasIndex()

func buildAliasIndex() map[string]Resource {
	index := make(map[string]Resource, int(count)*2)
	for r := Type; r < count; r++ {
		def := catalog[r]
		if len(def.aliases) == 0 {
			panic(fmt.Sprintf("resource %d has no aliases", r))
		}
		for _, alias := range def.aliases {
			if prev, dup := index[alias]; dup {
				panic(fmt.Sprintf("alias %q shared by %s and %s", alias, prev, r))
			}
			index[alias] = r
		}
	}
	return index
}

// Parse resolves an alias (case-insensitive) to its Resource.
func Parse(alias string) (Resource, error) {
	if r, ok := byAlias[strings.ToLower(strings.TrimSpace(alias))]; ok {
		return r, nil
	}
	return None, fmt.Errorf("%w %q", ErrUnknownAlias, alias)
}

// All returns every Resource in declaration order.
func All() []Resource {
	out := make([]Resource, 0, int(count)-1)
	for r := Type; r < count; r++ {
		out = append(out, r)
	}
	return out
}

// Valid reports whether r is a member of the catalog.
func (r Resource) Valid() bool { return r > None && r < count }

// Aliases returns every alias of r; the first one is canonical.
func (r Resource) Aliases() []string {
	if !r.Valid() {
		return nil
	}
	return append([]string(nil), catalog[r].aliases...)
}

// Alias is the preferred short name shown in help texts.
func (r Resource) Alias() string {
	if !r.Valid() {
		return ""
	}
	a := catalog[r].aliases
	return a[len(a)-1]
}

func (r Resource) String() string {
	if !r.Valid() {
		return "NONE"
	}
	return strings.ToUpper(catalog[r].aliases[0])
}

// Header is the column title.
func (r Resource) Header() string {
	if !r.Valid() {
		return ""
	}
	return catalog[r].header
}

// Style is the base style applied to every cell of the column.
func (r Resource) Style() lipgloss.Style {
	if !r.Valid() {
		return plainStyle
	}
	return catalog[r].style
}

func (r Resource) Category() Category {
	if !r.Valid() {
		return CategoryStructural
	}
	return catalog[r].category
}

// Summable reports whether a column total is meaningful.
func (r Resource) Summable() bool { return r.Valid() && catalog[r].summable }

// IsDelimiter reports whether r is a vertical table delimiter.
func (r Resource) IsDelimiter() bool { return r == TableDelimiter1 || r == TableDelimiter2 }
