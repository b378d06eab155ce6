// Package monitor reads system load so the pipeline can hold off new
// encodes while the machine is busy.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Stats is a point-in-time load reading.
type Stats struct {
	CPUPercent float64
	MemPercent float64
	Busy       bool
}

// SystemMonitor samples CPU and memory via gopsutil.
type SystemMonitor struct {
	maxCPUPercent float64
	maxMemPercent float64

	// stats is injectable for tests.
	stats func(ctx context.Context) (float64, float64, error)
}

// New creates a monitor with busy thresholds. Zero thresholds disable the
// corresponding check.
func New(maxCPUPercent, maxMemPercent float64) *SystemMonitor {
	return &SystemMonitor{
		maxCPUPercent: maxCPUPercent,
		maxMemPercent: maxMemPercent,
	}
}

// WithStatsFunc sets a custom stats source (for testing).
func (m *SystemMonitor) WithStatsFunc(fn func(ctx context.Context) (float64, float64, error)) {
	m.stats = fn
}

// Snapshot gathers current CPU and memory usage and applies the busy
// thresholds.
func (m *SystemMonitor) Snapshot(ctx context.Context) (Stats, error) {
	cpuPct, memPct, err := m.read(ctx)
	if err != nil {
		return Stats{}, err
	}

	busy := (m.maxCPUPercent > 0 && cpuPct > m.maxCPUPercent) ||
		(m.maxMemPercent > 0 && memPct > m.maxMemPercent)
	return Stats{CPUPercent: cpuPct, MemPercent: memPct, Busy: busy}, nil
}

func (m *SystemMonitor) read(ctx context.Context) (float64, float64, error) {
	if m.stats != nil {
		return m.stats(ctx)
	}

	v, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("memory stats: %w", err)
	}

	// A short interval gives a usable gauge; zero would return the value
	// since boot.
	cpuPct, err := cpu.PercentWithContext(ctx, 500*time.Millisecond, false)
	if err != nil {
		return 0, 0, fmt.Errorf("cpu stats: %w", err)
	}

	usage := 0.0
	if len(cpuPct) > 0 {
		usage = cpuPct[0]
	}
	return usage, v.UsedPercent, nil
}
