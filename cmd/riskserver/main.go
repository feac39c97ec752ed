// Command riskserver serves diabetes-risk predictions over HTTP.
//
// At startup it loads the frozen model artifact bundle, checks that every
// artifact agrees on feature count and order, and opens the prediction
// store. It refuses to start on an artifact mismatch.
//
// The HTTP API (port 8080, configurable) provides:
//   - POST /predict - Classify one patient record and store the result
//   - POST /predictions - Store a prediction computed elsewhere
//   - GET /predictions/recent?limit=N - Newest stored predictions
//   - GET /dashboard - Aggregate statistics over the stored history
//   - GET /healthz - Store health check
//   - GET /metrics - Prometheus metrics endpoint
//
// When -grpc-listen is set, a grpc.health.v1 server reports SERVING while
// the store answers pings.
//
// Usage:
//
//	riskserver \
//	  -artifacts=examples/artifacts/diabetes_v1.json \
//	  -storage=sqlite -sqlite-path=/var/lib/glucoguard/predictions.db \
//	  -grpc-listen=:9090
//
// Environment variables:
//
//	LISTEN          - HTTP listen address (default: :8080)
//	GRPC_LISTEN     - gRPC health listen address (default: disabled)
//	ARTIFACTS       - Model artifact bundle path
//	CLASSIFIER      - artifact or byom (default: artifact)
//	BYOM_URL        - Remote classifier URL (required when CLASSIFIER=byom)
//	BYOM_TIMEOUT    - Remote classifier request timeout (default: 10s)
//	THRESHOLD       - Decision threshold override
//	STORAGE         - memory, sqlite, postgres or redis (default: memory)
//	SQLITE_PATH     - SQLite database file
//	POSTGRES_DSN    - PostgreSQL connection string
//	REDIS_ADDR      - Redis server address
//	REDIS_PREFIX    - Redis key prefix (default: glucoguard)
//	REQUEST_TIMEOUT - Per-request timeout (default: 5s)
//	LOG_LEVEL       - Logging level: debug, info, warn, error (default: info)
//	LOG_FORMAT      - Logging format: text, json (default: text)
//	TLS_ENABLED     - Serve HTTPS with TLS_CERT_FILE and TLS_KEY_FILE
package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/HatiCode/glucoguard/cmd/riskserver/config"
	"github.com/HatiCode/glucoguard/cmd/riskserver/logger"
	"github.com/HatiCode/glucoguard/cmd/riskserver/metrics"
	"github.com/HatiCode/glucoguard/cmd/riskserver/models"
	"github.com/HatiCode/glucoguard/cmd/riskserver/router"
	"github.com/HatiCode/glucoguard/cmd/riskserver/store"
	"github.com/HatiCode/glucoguard/pkg/httpx"
	"github.com/HatiCode/glucoguard/pkg/inference"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	os.Exit(run(config.ParseFlags()))
}

func run(cfg *config.Config) int {
	log := logger.New(cfg)
	slog.SetDefault(log)

	log.Info("starting glucoguard risk server",
		"version", version,
		"listen", cfg.Listen,
		"grpc_listen", cfg.GRPCListen,
		"storage", cfg.Storage,
		"classifier", cfg.Classifier,
		"tls_enabled", cfg.TLS.Enabled,
	)

	set, err := models.New(cfg, log)
	if err != nil {
		log.Error("failed to load model artifacts", "path", cfg.Artifacts, "error", err)
		return 1
	}
	predictor, err := inference.NewPredictor(set)
	if err != nil {
		log.Error("model artifacts are inconsistent", "error", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	predictionStore, aggregator, err := store.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open prediction store", "error", err)
		return 1
	}
	defer func() {
		if err := predictionStore.Close(); err != nil {
			log.Error("failed to close store", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)
	m.SetModelInfo(predictor.Version(), predictor.Classifier())

	svc := inference.NewService(predictor, predictionStore, aggregator, log, m)

	mux := router.SetupRoutes(svc, reg, cfg.RequestTimeout, log)
	handler := httpx.Chain(mux, httpx.RecoveryMiddleware(log), httpx.LoggingMiddleware(log))
	httpServer := httpx.NewServer(cfg.Listen, handler, log).WithTLS(cfg.TLS)

	serverErr := make(chan error, 2)
	go func() {
		serverErr <- httpServer.Serve()
	}()

	var grpcServer *grpc.Server
	if cfg.GRPCListen != "" {
		lis, err := net.Listen("tcp", cfg.GRPCListen)
		if err != nil {
			log.Error("failed to listen", "address", cfg.GRPCListen, "error", err)
			return 1
		}

		grpcServer = grpc.NewServer()
		healthServer := health.NewServer()
		grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
		reflection.Register(grpcServer)

		go watchHealth(ctx, healthServer, svc.Ping, 10*time.Second, log)

		go func() {
			log.Info("grpc health server listening", "address", cfg.GRPCListen)
			if err := grpcServer.Serve(lis); err != nil {
				m.RecordError("grpc", "serve")
				serverErr <- err
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	exitCode := 0
	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig)
	case err := <-serverErr:
		if err != nil {
			log.Error("server failed", "error", err)
			exitCode = 1
		}
	}

	log.Info("shutting down")
	cancel()

	if grpcServer != nil {
		log.Info("shutting down grpc server")
		grpcServer.GracefulStop()
	}

	if err := httpServer.Shutdown(10 * time.Second); err != nil {
		log.Error("server shutdown failed", "error", err)
		exitCode = 1
	}

	log.Info("shutdown complete")
	return exitCode
}
