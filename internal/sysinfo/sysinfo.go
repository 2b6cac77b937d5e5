// Package sysinfo reports resources of the host running pginsights.
package sysinfo

import (
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v4/mem"
)

// Host summarizes the local machine.
type Host struct {
	TotalMemoryMB int64 `json:"total_memory_mb"`
	CPUs          int   `json:"cpus"`
}

// virtualMemory is replaced in tests.
var virtualMemory = mem.VirtualMemory

// TotalMemoryMB returns the physical memory of the host in megabytes.
func TotalMemoryMB() (int64, error) {
	vm, err := virtualMemory()
	if err != nil {
		return 0, fmt.Errorf("reading virtual memory: %w", err)
	}
	if vm.Total == 0 {
		return 0, fmt.Errorf("reading virtual memory: total is zero")
	}
	return int64(vm.Total / (1024 * 1024)), nil
}

func Detect() (Host, error) {
	total, err := TotalMemoryMB()
	if err != nil {
		return Host{}, err
	}
	return Host{TotalMemoryMB: total, CPUs: runtime.NumCPU()}, nil
}
