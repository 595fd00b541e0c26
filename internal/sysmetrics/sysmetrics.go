// Package sysmetrics tracks process and host metrics for the system info
// endpoint: CPU, memory, data-disk usage and the SoC temperature when the
// host exposes one.
package sysmetrics

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"
)

var (
	mu        sync.Mutex
	startWall time.Time
	lastWall  time.Time
	lastUser  time.Duration
	lastSys   time.Duration
	lastCPU   float64
)

func init() {
	now := time.Now()
	utime, stime := getrusageTimes()
	mu.Lock()
	startWall = now
	lastWall = now
	lastUser = utime
	lastSys = stime
	mu.Unlock()
}

// CPUPercent returns the process CPU usage as a percentage (0–100+)
// since the last call. Multi-core processes can exceed 100%.
func CPUPercent() float64 {
	now := time.Now()
	utime, stime := getrusageTimes()

	mu.Lock()
	defer mu.Unlock()

	wall := now.Sub(lastWall)
	if wall <= 0 {
		return lastCPU
	}

	cpuDelta := (utime - lastUser) + (stime - lastSys)
	pct := float64(cpuDelta) / float64(wall) * 100.0

	lastWall = now
	lastUser = utime
	lastSys = stime
	lastCPU = pct

	return pct
}

// MemoryInuse returns the memory actively in use by the Go runtime, in
// bytes. This is HeapInuse (live heap spans) plus StackInuse (goroutine
// stacks), excluding virtual address space reserved but not committed.
func MemoryInuse() int64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return int64(m.HeapInuse + m.StackInuse)
}

func getrusageTimes() (user, sys time.Duration) {
	var rusage syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &rusage); err != nil {
		return 0, 0
	}
	user = time.Duration(rusage.Utime.Nano())
	sys = time.Duration(rusage.Stime.Nano())
	return user, sys
}

// Uptime returns how long the process has been running.
func Uptime() time.Duration {
	mu.Lock()
	defer mu.Unlock()
	return time.Since(startWall)
}

// DiskUsage reports total and free bytes on the filesystem holding path.
// A failed statfs reports zeros.
func DiskUsage(path string) (total, free int64) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return 0, 0
	}
	bsize := int64(st.Bsize)
	return int64(st.Blocks) * bsize, int64(st.Bavail) * bsize
}

// thermalZone is the conventional Linux sysfs temperature source. On a
// Raspberry Pi zone 0 is the SoC.
const thermalZone = "/sys/class/thermal/thermal_zone0/temp"

// TemperatureC returns the SoC temperature in degrees Celsius. The second
// return is false on hosts without a thermal zone.
func TemperatureC() (float64, bool) {
	raw, err := os.ReadFile(thermalZone)
	if err != nil {
		return 0, false
	}
	milli, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0, false
	}
	return float64(milli) / 1000.0, true
}
