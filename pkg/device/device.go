// Package device reports the compute device a run trains on, plus the
// host facts logged alongside it.
package device

import (
	"context"
	"log/slog"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// CPU is the only device the built-in trainers run on.
const CPU = "cpu"

// Info describes the compute device and the host it lives on.
type Info struct {
	Name            string // recorded on the run, e.g. "cpu"
	Model           string // CPU model name when known
	LogicalCores    int
	MemoryTotal     uint64
	MemoryAvailable uint64
}

// Detect inspects the host. Host facts are best effort: a failed lookup
// leaves its fields zero and never fails detection.
func Detect(ctx context.Context, logger *slog.Logger) Info {
	if logger == nil {
		logger = slog.Default()
	}
	info := Info{Name: CPU, LogicalCores: runtime.NumCPU()}

	if n, err := cpu.CountsWithContext(ctx, true); err == nil && n > 0 {
		info.LogicalCores = n
	} else if err != nil {
		logger.Debug("cpu count lookup failed", "error", err)
	}
	if stats, err := cpu.InfoWithContext(ctx); err == nil && len(stats) > 0 {
		info.Model = stats[0].ModelName
	} else if err != nil {
		logger.Debug("cpu info lookup failed", "error", err)
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.MemoryTotal = vm.Total
		info.MemoryAvailable = vm.Available
	} else {
		logger.Debug("memory lookup failed", "error", err)
	}
	return info
}

// LogAttrs returns the facts as slog attributes.
func (i Info) LogAttrs() []any {
	return []any{
		"device", i.Name,
		"cpu_model", i.Model,
		"cores", i.LogicalCores,
		"mem_total_mb", i.MemoryTotal >> 20,
		"mem_available_mb", i.MemoryAvailable >> 20,
	}
}
