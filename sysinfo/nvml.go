package sysinfo

import (
	"github.com/ebitengine/purego"

	"github.com/the-black-eagle/Thermalright-usblcd/log"
)

const (
	nvmlSuccess        = 0
	nvmlTemperatureGPU = 0
	nvmlClockGraphics  = 0
)

type nvmlUtilization struct {
	gpu    uint32
	memory uint32
}

// nvmlLib is the NVIDIA management library resolved at runtime, so
// the binary carries no build-time dependency on the driver. Every
// symbol must resolve and nvmlInit must succeed or the library is
// treated as unavailable.
type nvmlLib struct {
	handle uintptr

	init                      func() uint32
	shutdown                  func() uint32
	deviceGetCount            func(*uint32) uint32
	deviceGetHandleByIndex    func(uint32, *uintptr) uint32
	deviceGetTemperature      func(uintptr, uint32, *uint32) uint32
	deviceGetUtilizationRates func(uintptr, *nvmlUtilization) uint32
	deviceGetClockInfo        func(uintptr, uint32, *uint32) uint32
	deviceGetFanSpeed         func(uintptr, *uint32) uint32
}

var nvmlPaths = []string{
	"libnvidia-ml.so.1",
	"libnvidia-ml.so",
	"/usr/lib/x86_64-linux-gnu/libnvidia-ml.so.1",
	"/usr/lib64/libnvidia-ml.so.1",
	"/usr/local/cuda/lib64/libnvidia-ml.so.1",
}

func loadNVML(lg *log.ChildLogger) *nvmlLib {
	var handle uintptr
	for _, path := range nvmlPaths {
		h, err := purego.Dlopen(path, purego.RTLD_LAZY|purego.RTLD_GLOBAL)
		if err == nil && h != 0 {
			handle = h
			break
		}
	}
	if handle == 0 {
		lg.Debug("NVML library not found")
		return nil
	}

	lib := &nvmlLib{handle: handle}
	if !lib.bind() {
		lg.Debug("NVML symbols missing")
		purego.Dlclose(handle)
		return nil
	}
	if lib.init() != nvmlSuccess {
		lg.Debug("nvmlInit failed")
		purego.Dlclose(handle)
		return nil
	}
	return lib
}

// bindSym resolves the first available of names into fptr.
func bindSym(handle uintptr, fptr any, names ...string) bool {
	for _, name := range names {
		if addr, err := purego.Dlsym(handle, name); err == nil && addr != 0 {
			purego.RegisterFunc(fptr, addr)
			return true
		}
	}
	return false
}

func (l *nvmlLib) bind() bool {
	h := l.handle
	return bindSym(h, &l.init, "nvmlInit_v2", "nvmlInit") &&
		bindSym(h, &l.shutdown, "nvmlShutdown") &&
		bindSym(h, &l.deviceGetCount, "nvmlDeviceGetCount_v2", "nvmlDeviceGetCount") &&
		bindSym(h, &l.deviceGetHandleByIndex, "nvmlDeviceGetHandleByIndex_v2", "nvmlDeviceGetHandleByIndex") &&
		bindSym(h, &l.deviceGetTemperature, "nvmlDeviceGetTemperature") &&
		bindSym(h, &l.deviceGetUtilizationRates, "nvmlDeviceGetUtilizationRates") &&
		bindSym(h, &l.deviceGetClockInfo, "nvmlDeviceGetClockInfo") &&
		bindSym(h, &l.deviceGetFanSpeed, "nvmlDeviceGetFanSpeed")
}

// sample reads the first GPU. Counters that fail stay at zero.
func (l *nvmlLib) sample() gpuSample {
	var s gpuSample

	var count uint32
	if l.deviceGetCount(&count) != nvmlSuccess || count == 0 {
		return s
	}
	var dev uintptr
	if l.deviceGetHandleByIndex(0, &dev) != nvmlSuccess {
		return s
	}

	var temp uint32
	if l.deviceGetTemperature(dev, nvmlTemperatureGPU, &temp) == nvmlSuccess {
		s.temp = float64(temp)
	}
	var util nvmlUtilization
	if l.deviceGetUtilizationRates(dev, &util) == nvmlSuccess {
		s.usage = float64(util.gpu)
	}
	var clock uint32
	if l.deviceGetClockInfo(dev, nvmlClockGraphics, &clock) == nvmlSuccess {
		s.clock = float64(clock)
	}
	var fan uint32
	if l.deviceGetFanSpeed(dev, &fan) == nvmlSuccess {
		s.fan = float64(fan)
	}
	return s
}
