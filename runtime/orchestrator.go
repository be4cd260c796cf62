// Package runtime tracks live connections and room membership and routes events between them.
// It holds no business rules: persistence happens over REST, the event layer only relays.
package runtime

import (
	"chat-live/observability"
	"chat-live/runtime/workers"
	"context"
	"log/slog"
	"time"
)

type Config struct {
	BufferSize      int
	DispatchTimeout time.Duration
	SelfEcho        SelfEcho
	RestartInterval time.Duration
	MetricInterval  time.Duration
}

// Orchestrator builds the event layer and runs its workers under one supervisor.
type Orchestrator struct {
	log        *slog.Logger
	membership *Membership
	registry   *Registry
	fanout     *workers.EventFanout
	router     *Router
	supervisor *workers.Supervisor
	health     *workers.HealthMonitoringWorker
	monitoring *observability.MonitoringManager
}

const defaultMetricInterval = 5 * time.Second

func NewOrchestrator(log *slog.Logger, cfg Config, metrics *observability.Metrics) *Orchestrator {
	if cfg.MetricInterval <= 0 {
		cfg.MetricInterval = defaultMetricInterval
	}
	membership := NewMembership()
	registry := NewRegistry(log, membership)
	fanout := workers.NewEventFanout(log, registry, metrics, cfg.BufferSize)
	router := NewRouter(log, RouterConfig{
		SelfEcho:        cfg.SelfEcho,
		DispatchTimeout: cfg.DispatchTimeout,
	}, registry, membership, fanout, metrics)
	monitoring := observability.NewMonitoringManager(log)
	metrics.WatchRuntime(registry.Count, membership.RoomCount)

	return &Orchestrator{
		log:        log,
		membership: membership,
		registry:   registry,
		fanout:     fanout,
		router:     router,
		supervisor: workers.NewSupervisor(log, cfg.RestartInterval),
		health:     workers.NewHealthMonitoringWorker(log, registry, membership, monitoring, metrics, cfg.MetricInterval),
		monitoring: monitoring,
	}
}

func (o *Orchestrator) Router() *Router {
	return o.router
}

func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

func (o *Orchestrator) Membership() *Membership {
	return o.membership
}

func (o *Orchestrator) Monitoring() *observability.MonitoringManager {
	return o.monitoring
}

// Start runs the fan-out and health workers until ctx is done or Stop is called.
// It blocks.
func (o *Orchestrator) Start(ctx context.Context) {
	o.supervisor.Add(o.fanout, o.health)
	o.log.Info("Starting orchestrator and all supervised workers")
	o.supervisor.Run(ctx)
}

// Stop cancels the supervised workers. Events still queued in the fan-out are dropped.
func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown")
	o.supervisor.Stop()
}
