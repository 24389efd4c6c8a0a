// Package stats reports relay process health for the /api/stats
// endpoint.
package stats

import (
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// Snapshot is one point-in-time stats reading.
type Snapshot struct {
	ActiveSessions int     `json:"activeSessions"`
	UptimeSeconds  float64 `json:"uptimeSeconds"`
	CPUPercent     float64 `json:"cpuPercent"`
	RSSBytes       uint64  `json:"rssBytes"`
	Goroutines     int     `json:"goroutines"`
}

// Collector samples process-level stats. sessions reports the current
// number of connected sessions.
type Collector struct {
	proc     *process.Process
	start    time.Time
	sessions func() int
}

func NewCollector(sessions func() int) (*Collector, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	return &Collector{
		proc:     proc,
		start:    time.Now(),
		sessions: sessions,
	}, nil
}

// Snapshot samples the current process state. Sampling failures leave
// the affected fields zero rather than failing the whole reading.
func (c *Collector) Snapshot() Snapshot {
	snap := Snapshot{
		UptimeSeconds: time.Since(c.start).Seconds(),
		Goroutines:    runtime.NumGoroutine(),
	}
	if c.sessions != nil {
		snap.ActiveSessions = c.sessions()
	}
	if cpu, err := c.proc.CPUPercent(); err == nil {
		snap.CPUPercent = cpu
	}
	if mem, err := c.proc.MemoryInfo(); err == nil && mem != nil {
		snap.RSSBytes = mem.RSS
	}
	return snap
}
