package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/paycrypt-tech/webhook-dispatch/internal/config"
	"github.com/paycrypt-tech/webhook-dispatch/internal/logging"
	"github.com/paycrypt-tech/webhook-dispatch/internal/repository"
	"github.com/paycrypt-tech/webhook-dispatch/internal/service"
)

// Dispatches pending webhook events. The default mode runs a single cycle and
// exits, which is how a cron-style scheduler should invoke it; -loop keeps it
// running on the configured interval.
func main() {
	var (
		limit   = flag.Int("limit", 0, "maximum events per cycle (overrides BATCH_LIMIT)")
		timeout = flag.Int("timeout", 0, "HTTP timeout in seconds (overrides HTTP_TIMEOUT_S)")
		loop    = flag.Bool("loop", false, "run continuously instead of a single cycle")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *limit > 0 {
		cfg.BatchLimit = *limit
	}
	if *timeout > 0 {
		cfg.HTTPTimeoutS = *timeout
	}

	logging.Init("webhook-dispatcher", cfg.LogLevel, cfg.AppEnv)

	ctx := context.Background()
	db, err := repository.NewPostgresDB(ctx, cfg.DatabaseURL, repository.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.DBConnMaxLifetimeS) * time.Second,
		ConnMaxIdleTime: time.Duration(cfg.DBConnMaxIdleTimeS) * time.Second,
	})
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	events := repository.NewWebhookEventRepository(db)
	clients := repository.NewClientRepository(db)
	sender := service.NewWebhookClient(time.Duration(cfg.HTTPTimeoutS) * time.Second)
	dispatcher := service.NewDispatcher(events, clients, sender)
	runner := service.NewBatchRunner(events, dispatcher, cfg.BatchLimit,
		time.Duration(cfg.DispatchIntervalS)*time.Second)

	if !*loop {
		runOnce(ctx, runner)
		return
	}

	go serveMetrics(cfg.MetricsAddr)

	runCtx, cancel := context.WithCancel(ctx)
	go runner.Start(runCtx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down dispatcher")
	cancel()
}

func runOnce(ctx context.Context, runner *service.BatchRunner) {
	ctx = logging.WithLogger(ctx, slog.With("run_id", uuid.NewString()))
	summary, err := runner.RunOnce(ctx)
	if err != nil {
		slog.Error("dispatch run failed", "error", err)
		os.Exit(1)
	}

	slog.Info("webhook dispatch complete",
		"processed", summary.Processed,
		"delivered", summary.Delivered,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
	)

	if summary.Failed > 0 {
		os.Exit(1)
	}
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())

	slog.Info("metrics endpoint started", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("metrics server error", "error", err)
	}
}
