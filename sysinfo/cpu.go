package sysinfo

import (
	"errors"

	"github.com/shirou/gopsutil/v4/cpu"
)

// cpuTimes is the aggregate "cpu" line of /proc/stat, in clock-tick
// seconds.
type cpuTimes struct {
	user, nice, system, idle float64
	iowait, irq, softirq     float64
	steal                    float64
}

func readCPUTimes() (cpuTimes, error) {
	ts, err := cpu.Times(false)
	if err != nil {
		return cpuTimes{}, err
	}
	if len(ts) == 0 {
		return cpuTimes{}, errors.New("no aggregate cpu times")
	}
	t := ts[0]
	return cpuTimes{
		user:    t.User,
		nice:    t.Nice,
		system:  t.System,
		idle:    t.Idle,
		iowait:  t.Iowait,
		irq:     t.Irq,
		softirq: t.Softirq,
		steal:   t.Steal,
	}, nil
}

func (t cpuTimes) total() float64 {
	return t.user + t.nice + t.system + t.idle + t.iowait + t.irq + t.softirq + t.steal
}

func (t cpuTimes) active() float64 {
	return t.total() - t.idle - t.iowait
}

// percentBetween computes CPU utilisation over the interval between
// two samples.
func percentBetween(prev, cur cpuTimes) float64 {
	totalDiff := cur.total() - prev.total()
	if totalDiff <= 0 {
		return 0
	}
	activeDiff := cur.active() - prev.active()
	return activeDiff / totalDiff * 100.0
}

// cpuFrequency reports the current frequency of the first core in MHz.
func cpuFrequency() (float64, error) {
	infos, err := cpu.Info()
	if err != nil {
		return 0, err
	}
	if len(infos) == 0 {
		return 0, errors.New("no cpu info")
	}
	return infos[0].Mhz, nil
}
