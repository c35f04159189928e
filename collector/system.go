package collector

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/ftahirops/nbstat/model"
)

// SystemCollector reports host CPU and memory. CPU percent is measured
// since the previous call.
type SystemCollector struct{}

func (c *SystemCollector) System(ctx context.Context) (model.SystemInfo, error) {
	var info model.SystemInfo
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return info, fmt.Errorf("virtual memory: %w", err)
	}
	info.MemoryUsed = vm.Used
	info.MemoryTotal = vm.Total

	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		info.CPUPercent = model.Float(pct[0])
	}
	return info, nil
}
