package sysinfo

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

const hwmonRoot = "/sys/class/hwmon"

func (p *Poller) readTrimmed(path string) (string, bool) {
	b, err := afero.ReadFile(p.fs, path)
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(b)), true
}

func (p *Poller) readFloat(path string) (float64, bool) {
	s, ok := p.readTrimmed(path)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (p *Poller) hwmonAvailable() bool {
	ok, err := afero.DirExists(p.fs, hwmonRoot)
	return err == nil && ok
}

// cpuTemperature scans hwmon0..hwmon9 for a CPU sensor (AMD k10temp
// or Intel coretemp) and returns the hottest of its temp1..temp5
// inputs in degrees Celsius, or 0 when none is found.
func (p *Poller) cpuTemperature() float64 {
	maxTemp := 0.0
	for i := 0; i < 10; i++ {
		base := fmt.Sprintf("%s/hwmon%d", hwmonRoot, i)
		name, ok := p.readTrimmed(base + "/name")
		if !ok {
			continue
		}
		if name != "k10temp" && name != "coretemp" {
			continue
		}
		for idx := 1; idx <= 5; idx++ {
			if v, ok := p.readFloat(fmt.Sprintf("%s/temp%d_input", base, idx)); ok {
				if c := v / 1000.0; c > maxTemp {
					maxTemp = c
				}
			}
		}
	}
	return maxTemp
}

// amdGPUPath returns the hwmon directory of the amdgpu sensor, or ""
// when there is none.
func (p *Poller) amdGPUPath() string {
	for i := 0; i < 10; i++ {
		base := fmt.Sprintf("%s/hwmon%d", hwmonRoot, i)
		if name, ok := p.readTrimmed(base + "/name"); ok && name == "amdgpu" {
			return base
		}
	}
	return ""
}

func (p *Poller) intelGPUAvailable() bool {
	ok, err := afero.DirExists(p.fs, "/sys/class/drm/card0/gt/gt0")
	return err == nil && ok
}

func (p *Poller) nvidiaGPUAvailable() bool {
	ok, err := afero.Exists(p.fs, "/proc/driver/nvidia/version")
	return err == nil && ok
}
