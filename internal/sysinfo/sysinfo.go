package sysinfo

import (
	"os"

	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
)

// MemoryStats reports current virtual memory figures in gigabytes.
type MemoryStats struct {
	TotalGB     float64 `json:"total_gb"`
	AvailableGB float64 `json:"available_gb"`
	UsedGB      float64 `json:"used_gb"`
	UsedPercent float64 `json:"used_percent"`
}

func MemoryUsage() (MemoryStats, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return MemoryStats{}, err
	}
	return MemoryStats{
		TotalGB:     float64(vm.Total) / (1 << 30),
		AvailableGB: float64(vm.Available) / (1 << 30),
		UsedGB:      float64(vm.Used) / (1 << 30),
		UsedPercent: vm.UsedPercent,
	}, nil
}

// HasMemoryForFile reports whether available memory covers multiplier times
// the file's size. Decoding plus inference typically needs 2-4x the input
// size resident. When the file or memory figures cannot be read the check
// passes; a wrong "no" would block jobs that might well succeed.
func HasMemoryForFile(path string, multiplier float64) bool {
	info, err := os.Stat(path)
	if err != nil {
		return true
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		return true
	}

	required := float64(info.Size()) * multiplier
	return float64(vm.Available) >= required
}

// HasDiskSpace reports whether dir's filesystem has at least requiredMB free.
// Unknown is treated as enough.
func HasDiskSpace(dir string, requiredMB float64) bool {
	usage, err := disk.Usage(dir)
	if err != nil {
		return true
	}
	return float64(usage.Free)/(1<<20) >= requiredMB
}
