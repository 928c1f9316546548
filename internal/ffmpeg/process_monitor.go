package ffmpeg

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcessStats is a point-in-time resource sample of the encoder process.
type ProcessStats struct {
	PID            int       `json:"pid"`
	CPUPercent     float64   `json:"cpu_percent"`
	MemoryRSSBytes uint64    `json:"memory_rss_bytes"`
	MemoryPercent  float32   `json:"memory_percent"`
	NumThreads     int32     `json:"num_threads"`
	SampledAt      time.Time `json:"sampled_at"`
}

// ProcessMonitor samples an FFmpeg process's resource usage at a fixed
// interval and logs each sample at debug level. It exists for operators
// chasing runaway encodes, not for control flow.
type ProcessMonitor struct {
	pid      int
	interval time.Duration
	log      *slog.Logger

	mu    sync.RWMutex
	stats ProcessStats

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewProcessMonitor creates a monitor for the given PID.
func NewProcessMonitor(pid int, interval time.Duration, log *slog.Logger) *ProcessMonitor {
	ctx, cancel := context.WithCancel(context.Background())
	return &ProcessMonitor{
		pid:      pid,
		interval: interval,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins periodic sampling in the background.
func (m *ProcessMonitor) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.ctx.Done():
				return
			case <-ticker.C:
				m.sample()
			}
		}
	}()
}

// Stop ends sampling and waits for the background goroutine.
func (m *ProcessMonitor) Stop() {
	m.cancel()
	m.wg.Wait()
}

// Stats returns the most recent sample.
func (m *ProcessMonitor) Stats() ProcessStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

func (m *ProcessMonitor) sample() {
	p, err := process.NewProcessWithContext(m.ctx, int32(m.pid))
	if err != nil {
		return
	}

	stats := ProcessStats{PID: m.pid, SampledAt: time.Now()}
	if cpu, err := p.CPUPercentWithContext(m.ctx); err == nil {
		stats.CPUPercent = cpu
	}
	if mem, err := p.MemoryInfoWithContext(m.ctx); err == nil && mem != nil {
		stats.MemoryRSSBytes = mem.RSS
	}
	if pct, err := p.MemoryPercentWithContext(m.ctx); err == nil {
		stats.MemoryPercent = pct
	}
	if threads, err := p.NumThreadsWithContext(m.ctx); err == nil {
		stats.NumThreads = threads
	}

	m.mu.Lock()
	m.stats = stats
	m.mu.Unlock()

	m.log.Debug("encoder resource usage",
		"pid", stats.PID,
		"cpu_percent", stats.CPUPercent,
		"rss_mb", float64(stats.MemoryRSSBytes)/(1024*1024),
		"threads", stats.NumThreads,
	)
}
