package workers

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Pinger is anything whose availability can be probed.
type Pinger interface {
	Ping() error
}

// HealthWorker keeps the gRPC health status in line with the store.
type HealthWorker struct {
	log      *slog.Logger
	store    Pinger
	health   *health.Server
	interval time.Duration
}

func NewHealthWorker(log *slog.Logger, store Pinger, health *health.Server, interval time.Duration) *HealthWorker {
	return &HealthWorker{log: log, store: store, health: health, interval: interval}
}

func (w *HealthWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	w.Check()
	for {
		select {
		case <-ctx.Done():
			w.health.Shutdown()
			return nil
		case <-ticker.C:
			w.Check()
		}
	}
}

// Check probes the store once and returns the status it set.
func (w *HealthWorker) Check() healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if err := w.store.Ping(); err != nil {
		w.log.Warn("Store unavailable", "error", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	w.health.SetServingStatus("", status)
	return status
}
