package sysinfo

import (
	"strings"

	"github.com/shirou/gopsutil/v4/disk"
)

// Virtual and temporary filesystems that would double-count or skew
// the totals.
var excludedFsTypes = map[string]bool{
	"tmpfs":    true,
	"devtmpfs": true,
	"proc":     true,
	"sysfs":    true,
	"cgroup":   true,
	"overlay":  true,
	"squashfs": true,
	"ramfs":    true,
}

func excludePartition(device, mountpoint, fstype string) bool {
	if fstype == "" || excludedFsTypes[fstype] {
		return true
	}
	if strings.HasPrefix(device, "/dev/loop") || strings.HasPrefix(device, "/dev/sr") {
		return true
	}
	if strings.Contains(mountpoint, "/run") {
		return true
	}
	return false
}

// diskInfo sums usage over all real mounted filesystems and reports
// used percentage plus free space in units of 1e9 bytes.
func diskInfo() (percent, freeGB float64, err error) {
	parts, err := disk.Partitions(true)
	if err != nil {
		return 0, 0, err
	}

	var total, free, used uint64
	for _, part := range parts {
		if excludePartition(part.Device, part.Mountpoint, part.Fstype) {
			continue
		}
		u, err := disk.Usage(part.Mountpoint)
		if err != nil {
			continue
		}
		total += u.Total
		free += u.Free
		used += u.Total - u.Free
	}

	if total == 0 {
		return 0, 0, nil
	}
	return float64(used) / float64(total) * 100.0, float64(free) / 1e9, nil
}
