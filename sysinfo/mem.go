package sysinfo

import "github.com/shirou/gopsutil/v4/mem"

// memoryInfo reports used percentage and used GiB, counting
// MemTotal - MemAvailable as used.
func memoryInfo() (percent, usedGB float64, err error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, err
	}
	if vm.Total == 0 || vm.Available > vm.Total {
		return 0, 0, nil
	}
	used := float64(vm.Total - vm.Available)
	percent = used / float64(vm.Total) * 100.0
	usedGB = used / (1024.0 * 1024.0 * 1024.0)
	return percent, usedGB, nil
}
