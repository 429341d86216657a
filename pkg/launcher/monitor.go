package launcher

import (
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// monitor samples the child's resource usage while it runs and warns when
// memory crosses the soft limit. Best effort only; sampling errors mean the
// process is gone and the monitor simply stops.
func (l *Launcher) monitor(pid int, stop <-chan struct{}) {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return
	}

	ticker := time.NewTicker(l.monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			mem, err := proc.MemoryInfo()
			if err != nil {
				return
			}
			rssMB := mem.RSS / 1024 / 1024
			if l.softMemLimitMB > 0 && rssMB > l.softMemLimitMB {
				l.log.Warn("process memory above soft limit", map[string]interface{}{
					"pid":      pid,
					"rss_mb":   rssMB,
					"limit_mb": l.softMemLimitMB,
				})
				continue
			}
			if cpu, err := proc.CPUPercent(); err == nil {
				l.log.Debug("process resource usage", map[string]interface{}{
					"pid":         pid,
					"rss_mb":      rssMB,
					"cpu_percent": cpu,
				})
			}
		}
	}
}
