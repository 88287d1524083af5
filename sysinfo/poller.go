package sysinfo

import (
	"runtime"
	"sync"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/atomic"

	"github.com/the-black-eagle/Thermalright-usblcd/log"
)

// Poller samples system metrics on two cadences: a fast one for the
// values that move (CPU load, temperatures, GPU counters) and a slow
// one for the ones that barely do (core count, disk, memory).
//
// Which metrics exist is decided once at construction; the snapshot
// never gains or loses keys afterwards. A key's value may be 0.0
// until its first successful sample.
type Poller struct {
	fastInterval time.Duration
	slowInterval time.Duration

	fs afero.Fs
	lg *log.ChildLogger

	mu   sync.Mutex
	info map[string]float64

	running *atomic.Bool
	wg      sync.WaitGroup

	lastTimes cpuTimes
	lastAt    time.Time

	gpu     gpuVendor
	amdPath string
	nvml    *nvmlLib
}

// NewPoller probes the machine and prepares a poller with the given
// fast/slow sampling intervals.
func NewPoller(fast, slow time.Duration, lg *log.ChildLogger) *Poller {
	return newPoller(fast, slow, afero.NewOsFs(), lg)
}

func newPoller(fast, slow time.Duration, fs afero.Fs, lg *log.ChildLogger) *Poller {
	p := &Poller{
		fastInterval: fast,
		slowInterval: slow,
		fs:           fs,
		lg:           lg,
		info:         make(map[string]float64),
		running:      atomic.NewBool(false),
	}

	if p.nvidiaGPUAvailable() {
		p.nvml = loadNVML(lg)
	}

	p.detect()

	// Prime CPU utilisation tracking so the first poll has a delta to
	// work from.
	if t, err := readCPUTimes(); err == nil {
		p.lastTimes = t
		p.lastAt = time.Now()
	}

	return p
}

func (p *Poller) register(name string) {
	p.info[name] = 0.0
}

// detect probes every potential metric once and registers the ones
// that return a plausible value.
func (p *Poller) detect() {
	if cur, err := readCPUTimes(); err == nil {
		// Utilisation since boot stands in for a real delta here.
		if v := percentBetween(cpuTimes{}, cur); v > 0 {
			p.register("cpu_percent")
		}
	}
	if runtime.NumCPU() > 0 {
		p.register("cpu_count")
	}
	if f, err := cpuFrequency(); err == nil && f > 0 {
		p.register("cpu_freq")
	}
	if p.hwmonAvailable() {
		if t := p.cpuTemperature(); t > 0 && t < 101 {
			p.register("cpu_temp")
		}
	}

	if pct, used, err := memoryInfo(); err == nil {
		if pct > 0 {
			p.register("mem_percent")
		}
		if used > 0 {
			p.register("mem_used_gb")
		}
	}

	if pct, free, err := diskInfo(); err == nil {
		if pct > 0 {
			p.register("disk_percent")
		}
		if free > 0 {
			p.register("disk_free_gb")
		}
	}

	p.detectGPU()

	p.lg.Debugf("detected metrics: %v", p.GetAvailableMetrics())
}

// detectGPU picks the first available vendor: AMD, then Intel, then
// NVIDIA.
func (p *Poller) detectGPU() {
	if path := p.amdGPUPath(); path != "" {
		p.gpu = gpuAMD
		p.amdPath = path
		s := p.amdGPUStats()
		if s.temp > 0 && s.temp < 101 {
			p.register("gpu_temp")
		}
		if s.usage > -1 {
			p.register("gpu_usage")
		}
		if s.clock > -1 {
			p.register("gpu_clock")
		}
		if s.fan > -1 {
			p.register("gpu_fan")
		}
		return
	}

	if p.intelGPUAvailable() {
		p.gpu = gpuIntel
		p.register("gpu_temp")
		p.register("gpu_usage")
		p.register("gpu_clock")
		return
	}

	if p.nvml != nil {
		p.gpu = gpuNvidia
		p.register("gpu_temp")
		p.register("gpu_usage")
		p.register("gpu_clock")
		p.register("gpu_fan")
	}
}

// Start launches the poll worker. Idempotent.
func (p *Poller) Start() {
	if p.running.Swap(true) {
		return
	}
	p.wg.Add(1)
	go p.loop()
}

// Stop asks the worker to exit and joins it. Idempotent.
func (p *Poller) Stop() {
	p.running.Store(false)
	p.wg.Wait()
}

// GetInfo returns a copy of the current snapshot.
func (p *Poller) GetInfo() map[string]float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string]float64, len(p.info))
	for k, v := range p.info {
		out[k] = v
	}
	return out
}

// GetAvailableMetrics lists the metric names detected at startup, in
// no particular order.
func (p *Poller) GetAvailableMetrics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	keys := make([]string, 0, len(p.info))
	for k := range p.info {
		keys = append(keys, k)
	}
	return keys
}

func (p *Poller) loop() {
	defer p.wg.Done()

	var nextFast, nextSlow time.Time
	for p.running.Load() {
		now := time.Now()
		if !now.Before(nextFast) {
			p.merge(p.pollFast())
			nextFast = now.Add(p.fastInterval)
		}
		if !now.Before(nextSlow) {
			p.merge(p.pollSlow())
			nextSlow = now.Add(p.slowInterval)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// merge folds a sample batch into the snapshot. Keys that were not
// registered at detection time are dropped so the published metric
// set stays fixed.
func (p *Poller) merge(updated map[string]float64) {
	if len(updated) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, v := range updated {
		if _, ok := p.info[k]; ok {
			p.info[k] = v
		}
	}
}

func plausibleCPUTemp(v float64) bool {
	return v > 15 && v < 100
}

func (p *Poller) pollFast() map[string]float64 {
	out := make(map[string]float64)

	if v := p.cpuPercent(); v > 0 && v < 101 {
		out["cpu_percent"] = v
	}
	if v := p.cpuTemperature(); plausibleCPUTemp(v) {
		out["cpu_temp"] = v
	}
	if v, err := cpuFrequency(); err == nil && v > 0 {
		out["cpu_freq"] = v
	}

	s := p.gpuStats()
	if s.temp > 0 && s.temp < 101 {
		out["gpu_temp"] = s.temp
	}
	if s.usage > -1 {
		out["gpu_usage"] = s.usage
	}
	if s.clock > 0 {
		out["gpu_clock"] = s.clock
	}
	if s.fan > -1 {
		out["gpu_fan"] = s.fan
	}

	return out
}

func (p *Poller) pollSlow() map[string]float64 {
	out := make(map[string]float64)

	out["cpu_count"] = float64(runtime.NumCPU())

	if pct, free, err := diskInfo(); err == nil {
		if pct > 0 {
			out["disk_percent"] = pct
		}
		if free > 0 {
			out["disk_free_gb"] = free
		}
	}

	if pct, used, err := memoryInfo(); err == nil {
		if pct > 0 {
			out["mem_percent"] = pct
		}
		if used > 0 {
			out["mem_used_gb"] = used
		}
	}

	return out
}

// cpuPercent computes utilisation since the previous sample. Calls
// closer together than 100ms return 0 rather than a noisy delta.
func (p *Poller) cpuPercent() float64 {
	now := time.Now()
	cur, err := readCPUTimes()
	if err != nil {
		return 0
	}
	if now.Sub(p.lastAt) < 100*time.Millisecond {
		return 0
	}

	v := percentBetween(p.lastTimes, cur)
	p.lastTimes = cur
	p.lastAt = now
	return v
}
