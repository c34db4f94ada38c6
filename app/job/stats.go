package job

import (
	"fmt"

	"github.com/shirou/gopsutil/v4/process"
)

// Stats is a resource usage snapshot of a worker process
type Stats struct {
	CPUPercent float64 `json:"cpu_percent"`
	RSS        uint64  `json:"rss"`
	Threads    int32   `json:"threads"`
}

// ProcessStats collects cpu, memory and thread count for pid
func ProcessStats(pid int) (Stats, error) {
	proc, err := process.NewProcess(int32(pid)) //nolint:gosec // pid fits int32 on supported platforms
	if err != nil {
		return Stats{}, fmt.Errorf("can't find process %d: %w", pid, err)
	}

	res := Stats{}
	if res.CPUPercent, err = proc.CPUPercent(); err != nil {
		return Stats{}, fmt.Errorf("can't get cpu usage of %d: %w", pid, err)
	}
	mem, err := proc.MemoryInfo()
	if err != nil {
		return Stats{}, fmt.Errorf("can't get memory usage of %d: %w", pid, err)
	}
	res.RSS = mem.RSS
	if res.Threads, err = proc.NumThreads(); err != nil {
		return Stats{}, fmt.Errorf("can't get threads of %d: %w", pid, err)
	}
	return res, nil
}
