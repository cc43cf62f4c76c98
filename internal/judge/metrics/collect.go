package metrics

import (
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// StartCollection starts the background system metric collectors. They run
// for the life of the process.
func StartCollection() {
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()

		for range ticker.C {
			UptimeSeconds.Set(time.Since(startTime).Seconds())
		}
	}()

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()

		for range ticker.C {
			if vmStat, err := mem.VirtualMemory(); err == nil {
				MemoryUsageBytes.Set(float64(vmStat.Used))
			}

			if cpuPercent, err := cpu.Percent(time.Second, false); err == nil && len(cpuPercent) > 0 {
				CPUUsagePercent.Set(cpuPercent[0])
			}

			GoroutinesActive.Set(float64(runtime.NumGoroutine()))
		}
	}()
}
