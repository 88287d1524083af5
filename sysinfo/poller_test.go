package sysinfo

import (
	"io"
	"sort"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/the-black-eagle/Thermalright-usblcd/log"
)

func testLogger() *log.ChildLogger {
	parent := &logrus.Logger{
		Out:       io.Discard,
		Level:     logrus.PanicLevel,
		Formatter: &logrus.TextFormatter{},
	}
	return log.NewChildLogger(parent, "sys", false)
}

func writeFile(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
}

// bareProbe builds a poller with a fake sysfs tree without running the
// full constructor probing.
func bareProbe(fs afero.Fs) *Poller {
	return &Poller{
		fs:      fs,
		lg:      testLogger(),
		info:    make(map[string]float64),
		running: atomic.NewBool(false),
	}
}

func TestCPUTemperatureMaxOverInputs(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/sys/class/hwmon/hwmon0/name", "nvme\n")
	writeFile(t, fs, "/sys/class/hwmon/hwmon0/temp1_input", "90000\n")
	writeFile(t, fs, "/sys/class/hwmon/hwmon2/name", "k10temp\n")
	writeFile(t, fs, "/sys/class/hwmon/hwmon2/temp1_input", "45500\n")
	writeFile(t, fs, "/sys/class/hwmon/hwmon2/temp3_input", "61250\n")

	p := bareProbe(fs)
	assert.InDelta(t, 61.25, p.cpuTemperature(), 1e-9)
}

func TestCPUTemperatureNoSensor(t *testing.T) {
	t.Parallel()

	p := bareProbe(afero.NewMemMapFs())
	assert.Zero(t, p.cpuTemperature())
	assert.False(t, p.hwmonAvailable())
}

func TestPlausibleCPUTemp(t *testing.T) {
	t.Parallel()

	assert.False(t, plausibleCPUTemp(14.9))
	assert.True(t, plausibleCPUTemp(15.1))
	assert.True(t, plausibleCPUTemp(99.9))
	assert.False(t, plausibleCPUTemp(100.0))
}

func TestAMDGPUDetection(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/sys/class/hwmon/hwmon1/name", "amdgpu\n")
	writeFile(t, fs, "/sys/class/hwmon/hwmon1/temp1_input", "54000\n")
	writeFile(t, fs, "/sys/class/hwmon/hwmon1/freq1_input", "1850000000\n")
	writeFile(t, fs, "/sys/class/hwmon/hwmon1/fan1_input", "1234\n")
	writeFile(t, fs, amdBusyPath, "42\n")

	p := bareProbe(fs)
	path := p.amdGPUPath()
	require.Equal(t, "/sys/class/hwmon/hwmon1", path)
	p.amdPath = path
	p.gpu = gpuAMD

	s := p.amdGPUStats()
	assert.Equal(t, 54.0, s.temp)
	assert.Equal(t, 42.0, s.usage)
	assert.Equal(t, 1850.0, s.clock)
	// Fan is reported raw, whatever unit the firmware uses.
	assert.Equal(t, 1234.0, s.fan)
}

func TestAMDGPUStatsMissingFiles(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/sys/class/hwmon/hwmon0/name", "amdgpu\n")

	p := bareProbe(fs)
	p.amdPath = "/sys/class/hwmon/hwmon0"

	s := p.amdGPUStats()
	assert.Equal(t, -1.0, s.temp)
	assert.Equal(t, -1.0, s.usage)
	assert.Equal(t, -1.0, s.clock)
	assert.Equal(t, -1.0, s.fan)
}

func TestIntelGPUDetection(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/sys/class/drm/card0/gt/gt0/freq0_cur_freq", "1100000000\n")

	p := bareProbe(fs)
	assert.True(t, p.intelGPUAvailable())

	s := p.intelGPUStats()
	assert.Equal(t, 1100.0, s.clock)
	assert.Zero(t, s.temp)
}

func TestNvidiaPresenceProbe(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	p := bareProbe(fs)
	assert.False(t, p.nvidiaGPUAvailable())

	writeFile(t, fs, "/proc/driver/nvidia/version", "NVRM version: 550.54\n")
	assert.True(t, p.nvidiaGPUAvailable())
}

func TestPercentBetween(t *testing.T) {
	t.Parallel()

	prev := cpuTimes{user: 100, system: 50, idle: 800, iowait: 50}
	cur := cpuTimes{user: 160, system: 70, idle: 810, iowait: 60}
	// total diff 100, active diff 80.
	assert.InDelta(t, 80.0, percentBetween(prev, cur), 1e-9)

	assert.Zero(t, percentBetween(cur, cur))
	assert.Zero(t, percentBetween(cur, prev), "negative interval yields zero")
}

func TestExcludePartition(t *testing.T) {
	t.Parallel()

	cases := []struct {
		device, mount, fstype string
		excluded              bool
	}{
		{"/dev/nvme0n1p2", "/", "ext4", false},
		{"/dev/sda1", "/home", "xfs", false},
		{"tmpfs", "/tmp", "tmpfs", true},
		{"/dev/loop3", "/snap/core", "squashfs", true},
		{"/dev/loop9", "/mnt/x", "ext4", true},
		{"/dev/sr0", "/media/cdrom", "iso9660", true},
		{"/dev/sda1", "/run/media/usb", "vfat", true},
		{"proc", "/proc", "proc", true},
		{"overlay", "/var/lib/docker/overlay2/x", "overlay", true},
		{"/dev/sdb1", "/data", "", true},
	}
	for _, c := range cases {
		assert.Equal(t, c.excluded, excludePartition(c.device, c.mount, c.fstype),
			"%s %s %s", c.device, c.mount, c.fstype)
	}
}

func TestMergeIgnoresUnregisteredKeys(t *testing.T) {
	t.Parallel()

	p := bareProbe(afero.NewMemMapFs())
	p.info["cpu_temp"] = 0

	p.merge(map[string]float64{"cpu_temp": 55.5, "gpu_temp": 60})

	assert.Equal(t, 55.5, p.info["cpu_temp"])
	_, ok := p.info["gpu_temp"]
	assert.False(t, ok, "keys absent at detection must not appear")
}

func TestMergeKeepsPreviousValueOnMissingSample(t *testing.T) {
	t.Parallel()

	p := bareProbe(afero.NewMemMapFs())
	p.info["cpu_percent"] = 33.0

	p.merge(map[string]float64{})
	assert.Equal(t, 33.0, p.info["cpu_percent"])
}

func TestCPUPercentMinimumSpacing(t *testing.T) {
	t.Parallel()

	p := bareProbe(afero.NewMemMapFs())
	p.lastAt = time.Now()
	assert.Zero(t, p.cpuPercent())
}

func TestGetInfoReturnsCopy(t *testing.T) {
	t.Parallel()

	p := bareProbe(afero.NewMemMapFs())
	p.info["cpu_count"] = 8

	snap := p.GetInfo()
	snap["cpu_count"] = 99

	assert.Equal(t, 8.0, p.info["cpu_count"])
}

func TestPollerLifecycle(t *testing.T) {
	p := newPoller(200*time.Millisecond, 2500*time.Millisecond, afero.NewMemMapFs(), testLogger())

	before := p.GetAvailableMetrics()
	sort.Strings(before)

	p.Start()
	p.Start() // idempotent
	time.Sleep(150 * time.Millisecond)
	p.Stop()
	p.Stop() // idempotent

	after := p.GetAvailableMetrics()
	sort.Strings(after)
	assert.Equal(t, before, after, "metric set must not change while running")

	for _, k := range after {
		_, ok := p.GetInfo()[k]
		assert.True(t, ok, "snapshot missing %s", k)
	}
}
