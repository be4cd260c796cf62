package workers

import (
	"chat-live/contract"
	"chat-live/observability"
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

// HealthMonitoringWorker samples the server process and the runtime sizes at a fixed interval.
type HealthMonitoringWorker struct {
	log            *slog.Logger
	registry       contract.IRegistry
	membership     contract.IMembership
	monitoring     *observability.MonitoringManager
	metrics        *observability.Metrics
	metricInterval time.Duration
}

func NewHealthMonitoringWorker(
	log *slog.Logger,
	registry contract.IRegistry,
	membership contract.IMembership,
	monitoring *observability.MonitoringManager,
	metrics *observability.Metrics,
	metricInterval time.Duration,
) *HealthMonitoringWorker {
	return &HealthMonitoringWorker{
		log:            log,
		registry:       registry,
		membership:     membership,
		monitoring:     monitoring,
		metrics:        metrics,
		metricInterval: metricInterval,
	}
}

func (w *HealthMonitoringWorker) Run(ctx context.Context) error {
	pid := int32(os.Getpid())
	p, err := process.NewProcess(pid)
	if err != nil {
		return err
	}
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	w.sample(p)
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping health monitoring")
			return nil
		case <-ticker.C:
			w.sample(p)
		}
	}
}

func (w *HealthMonitoringWorker) sample(p *process.Process) {
	stats := observability.HealthStats{
		PID:         p.Pid,
		Connections: w.registry.Count(),
		Rooms:       w.membership.RoomCount(),
		CheckedAt:   time.Now().UTC(),
	}
	mem, err := p.MemoryInfo()
	if err != nil {
		w.log.Error("Error while finding process ram usage", "err", err)
		stats.Status = "degraded"
	} else {
		stats.RSSMb = mem.RSS / 1024 / 1024
	}
	cpu, err := p.CPUPercent()
	if err != nil {
		w.log.Error("Error while finding process cpu usage", "err", err)
		stats.Status = "degraded"
	}
	stats.CPUPercent = cpu
	if mem != nil {
		w.metrics.ObserveProcess(mem.RSS, cpu)
	}
	w.monitoring.Update(stats)
}
