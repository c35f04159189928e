package collector

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strings"

	"github.com/ftahirops/nbstat/model"
	"github.com/ftahirops/nbstat/util"
)

const (
	gpuQuery  = "index,uuid,name,utilization.gpu,utilization.memory,memory.used,memory.total,temperature.gpu,power.draw,power.limit,fan.speed,driver_version"
	appsQuery = "gpu_uuid,pid,used_memory"
	mib       = 1 << 20
)

var cudaVersion = regexp.MustCompile(`CUDA Version\s*:?\s*([0-9.]+)`)

// Runner executes a command and returns its standard output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// DeviceCollector queries nvidia-smi in CSV mode.
type DeviceCollector struct {
	Binary string // "nvidia-smi" when empty
	Run    Runner // exec when nil
}

func (c *DeviceCollector) binary() string {
	if c.Binary == "" {
		return "nvidia-smi"
	}
	return c.Binary
}

func (c *DeviceCollector) Devices(ctx context.Context) (model.DeviceReport, error) {
	run := c.Run
	if run == nil {
		if _, err := exec.LookPath(c.binary()); err != nil {
			return model.DeviceReport{}, fmt.Errorf("%w: %s not found", ErrNoDevices, c.binary())
		}
		run = execRunner
	}

	out, err := run(ctx, c.binary(), "--query-gpu="+gpuQuery, "--format=csv,noheader,nounits")
	if err != nil {
		return model.DeviceReport{}, fmt.Errorf("query devices: %w", err)
	}
	report, err := ParseDevices(out)
	if err != nil {
		return model.DeviceReport{}, err
	}
	if len(report.Devices) == 0 {
		return report, ErrNoDevices
	}

	apps, err := run(ctx, c.binary(), "--query-compute-apps="+appsQuery, "--format=csv,noheader,nounits")
	if err != nil {
		return report, fmt.Errorf("query compute apps: %w", err)
	}
	if err := AttachProcesses(&report, apps); err != nil {
		return report, err
	}

	if ver, err := run(ctx, c.binary(), "--version"); err == nil {
		if m := cudaVersion.FindSubmatch(ver); m != nil {
			report.CUDAVersion = string(m[1])
		}
	}
	return report, nil
}

// ParseDevices parses the --query-gpu CSV output.
func ParseDevices(data []byte) (model.DeviceReport, error) {
	var report model.DeviceReport
	records, err := readCSV(data)
	if err != nil {
		return report, fmt.Errorf("parse device csv: %w", err)
	}
	for _, rec := range records {
		if len(rec) < 12 {
			return report, fmt.Errorf("parse device csv: %d fields, want 12", len(rec))
		}
		idx, err := util.ParseOptionalInt(rec[0])
		if err != nil {
			return report, fmt.Errorf("parse device index %q: %w", rec[0], err)
		}
		d := model.Device{
			Index:       idx,
			UUID:        rec[1],
			Name:        rec[2],
			Util:        optionalFloat(rec[3]),
			MemoryUtil:  optionalFloat(rec[4]),
			MemoryUsed:  optionalMiB(rec[5]),
			MemoryTotal: optionalMiB(rec[6]),
			Temperature: optionalFloat(rec[7]),
			PowerDraw:   optionalFloat(rec[8]),
			PowerLimit:  optionalFloat(rec[9]),
			FanSpeed:    optionalFloat(rec[10]),
		}
		if report.DriverVersion == "" {
			report.DriverVersion = rec[11]
		}
		report.Devices = append(report.Devices, d)
	}
	return report, nil
}

// AttachProcesses parses the --query-compute-apps CSV output and attaches
// each process to the device with the matching uuid.
func AttachProcesses(report *model.DeviceReport, data []byte) error {
	records, err := readCSV(data)
	if err != nil {
		return fmt.Errorf("parse compute apps csv: %w", err)
	}
	byUUID := make(map[string]int, len(report.Devices))
	for i, d := range report.Devices {
		byUUID[d.UUID] = i
	}
	for _, rec := range records {
		if len(rec) < 3 {
			continue
		}
		i, ok := byUUID[rec[0]]
		if !ok {
			continue
		}
		pid, err := util.ParseOptionalInt(rec[1])
		if err != nil {
			continue
		}
		report.Devices[i].Processes = append(report.Devices[i].Processes, model.DeviceProcess{
			PID:        int32(pid),
			MemoryUsed: optionalMiB(rec[2]),
		})
	}
	return nil
}

func readCSV(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1
	var out [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		for i := range rec {
			rec[i] = strings.TrimSpace(rec[i])
		}
		out = append(out, rec)
	}
}

func optionalFloat(s string) *float64 {
	v, err := util.ParseOptionalFloat(s)
	if err != nil {
		return nil
	}
	return model.Float(v)
}

func optionalMiB(s string) *uint64 {
	v, err := util.ParseOptionalFloat(s)
	if err != nil || v < 0 {
		return nil
	}
	return model.Uint(uint64(v * mib))
}
