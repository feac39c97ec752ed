package main

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// serviceName is the gRPC health service reported alongside the overall
// ("") status.
const serviceName = "glucoguard.RiskService"

// watchHealth mirrors store health into the gRPC health server until ctx
// is done, then marks every service NOT_SERVING.
func watchHealth(ctx context.Context, srv *health.Server, ping func(context.Context) error, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := grpc_health_v1.HealthCheckResponse_UNKNOWN
	for {
		status := checkOnce(ctx, ping, interval)
		if status != last {
			logger.Info("health status changed", "status", status.String())
			last = status
		}
		srv.SetServingStatus("", status)
		srv.SetServingStatus(serviceName, status)

		select {
		case <-ctx.Done():
			srv.Shutdown()
			return
		case <-ticker.C:
		}
	}
}

func checkOnce(ctx context.Context, ping func(context.Context) error, timeout time.Duration) grpc_health_v1.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := ping(ctx); err != nil {
		return grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	return grpc_health_v1.HealthCheckResponse_SERVING
}
