package ui

import (
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// ResourceStats is a snapshot of host load, shown under the server table.
type ResourceStats struct {
	CPUPercent  float64
	MemoryUsed  uint64
	MemoryTotal uint64
	MemPercent  float64
	CPUTemp     float64 // -1 when no sensor is readable
}

// GetResourceStats fetches current system resource statistics
func GetResourceStats() ResourceStats {
	stats := ResourceStats{CPUTemp: -1}

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		stats.CPUPercent = pct[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		stats.MemoryUsed = vm.Used
		stats.MemoryTotal = vm.Total
		stats.MemPercent = vm.UsedPercent
	}
	stats.CPUTemp = cpuTemperature()
	return stats
}

// cpuTemperature prefers a CPU package sensor and falls back to any plausible reading.
func cpuTemperature() float64 {
	temps, err := host.SensorsTemperatures()
	if err != nil && len(temps) == 0 {
		return -1
	}
	for _, t := range temps {
		key := strings.ToLower(t.SensorKey)
		if (strings.Contains(key, "cpu") || strings.Contains(key, "coretemp") || strings.Contains(key, "k10temp")) && t.Temperature > 0 {
			return t.Temperature
		}
	}
	for _, t := range temps {
		if t.Temperature > 0 && t.Temperature < 120 {
			return t.Temperature
		}
	}
	return -1
}

// String renders the stats as a single footer line.
func (r ResourceStats) String() string {
	line := fmt.Sprintf("CPU %.1f%%  MEM %s / %s (%.1f%%)",
		r.CPUPercent, FormatBytes(r.MemoryUsed), FormatBytes(r.MemoryTotal), r.MemPercent)
	if r.CPUTemp > 0 {
		line += fmt.Sprintf("  TEMP %.0f°C", r.CPUTemp)
	}
	return line
}

// FormatBytes formats bytes into a human-readable string
func FormatBytes(bytes uint64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
