package observability

import (
	"log/slog"
	"runtime"
	"sync"
	"time"
)

// HealthStats is the process snapshot served on /health.
type HealthStats struct {
	Status      string    `json:"status"`
	PID         int32     `json:"pid"`
	RSSMb       uint64    `json:"rss_mb"`
	CPUPercent  float64   `json:"cpu_percent"`
	AllocMemMb  uint64    `json:"alloc_mem_mb"`
	NumGC       uint32    `json:"num_gc"`
	Goroutines  int       `json:"goroutines"`
	Connections int       `json:"connections"`
	Rooms       int       `json:"rooms"`
	Uptime      string    `json:"uptime"`
	CheckedAt   time.Time `json:"checked_at"`
}

// MonitoringManager keeps the latest health snapshot.
type MonitoringManager struct {
	log         *slog.Logger
	startedAt   time.Time
	mu          sync.RWMutex
	latestStats HealthStats
}

func NewMonitoringManager(log *slog.Logger) *MonitoringManager {
	now := time.Now()
	return &MonitoringManager{
		log:         log,
		startedAt:   now,
		latestStats: HealthStats{Status: "starting", CheckedAt: now},
	}
}

// Update stores a new snapshot, completing it with the Go runtime figures.
func (mm *MonitoringManager) Update(stats HealthStats) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	stats.AllocMemMb = m.Alloc / 1024 / 1024
	stats.NumGC = m.NumGC
	stats.Goroutines = runtime.NumGoroutine()
	stats.Uptime = time.Since(mm.startedAt).Truncate(time.Second).String()
	if stats.Status == "" {
		stats.Status = "ok"
	}

	mm.mu.Lock()
	mm.latestStats = stats
	mm.mu.Unlock()

	mm.log.Debug("Health stats updated",
		"rss_mb", stats.RSSMb,
		"cpu", stats.CPUPercent,
		"connections", stats.Connections,
		"rooms", stats.Rooms,
	)
}

func (mm *MonitoringManager) GetLatest() HealthStats {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return mm.latestStats
}
