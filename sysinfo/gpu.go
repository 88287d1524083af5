package sysinfo

import "math"

type gpuVendor int

const (
	gpuNone gpuVendor = iota
	gpuAMD
	gpuIntel
	gpuNvidia
)

// gpuSample is one reading of the GPU counters. The AMD reader marks a
// counter it could not read with -1; the Intel and NVIDIA readers leave
// such counters at 0.
type gpuSample struct {
	temp  float64
	usage float64
	clock float64
	fan   float64
}

const amdBusyPath = "/sys/class/drm/card1/device/gpu_busy_percent"

func (p *Poller) gpuStats() gpuSample {
	switch p.gpu {
	case gpuAMD:
		return p.amdGPUStats()
	case gpuIntel:
		return p.intelGPUStats()
	case gpuNvidia:
		if p.nvml != nil {
			return p.nvml.sample()
		}
	}
	return gpuSample{}
}

func (p *Poller) amdGPUStats() gpuSample {
	s := gpuSample{temp: -1, usage: -1, clock: -1, fan: -1}

	if v, ok := p.readFloat(p.amdPath + "/temp1_input"); ok {
		s.temp = math.Round(v / 1000.0)
	}
	if v, ok := p.readFloat(amdBusyPath); ok {
		s.usage = v
	}
	if v, ok := p.readFloat(p.amdPath + "/freq1_input"); ok {
		s.clock = math.Round(v / 1e6)
	}
	// Reported as read from fan1_input; the unit depends on the
	// firmware (RPM vs PWM).
	if v, ok := p.readFloat(p.amdPath + "/fan1_input"); ok {
		s.fan = v
	}

	return s
}

// intelGPUStats only reads the current frequency; there is no
// confirmed sysfs path for temperature or busy percentage on the gt
// interface.
func (p *Poller) intelGPUStats() gpuSample {
	s := gpuSample{}
	if v, ok := p.readFloat("/sys/class/drm/card0/gt/gt0/freq0_cur_freq"); ok {
		s.clock = v / 1e6
	}
	return s
}
