// Command aegis runs the policy gateway: it loads POLICY_DIR, watches it for
// changes, and serves the dispatch/approval/admin HTTP surface.
//
// Grounded on the teacher's cmd/uag/main.go: infra setup, core assembly,
// then an HTTP server run under signal-driven graceful shutdown. The
// teacher's Redis-backed kill-switch/quarantine/sandbox managers and its
// gRPC server have no home in this spec and are dropped (DESIGN.md).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aegis-gateway/aegis/internal/aegisconfig"
	"github.com/aegis-gateway/aegis/internal/approval"
	"github.com/aegis-gateway/aegis/internal/decisionring"
	"github.com/aegis-gateway/aegis/internal/gateway"
	"github.com/aegis-gateway/aegis/internal/httpapi"
	"github.com/aegis-gateway/aegis/internal/policyindex"
	"github.com/aegis-gateway/aegis/internal/policywatch"
	"github.com/aegis-gateway/aegis/internal/telemetry"
	"github.com/aegis-gateway/aegis/internal/toolapi"
)

func main() {
	cfg, err := aegisconfig.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if _, err := os.Stat(cfg.PolicyDir); err != nil {
		logger.Error("policy directory unavailable at startup", zap.String("dir", cfg.PolicyDir), zap.Error(err))
		os.Exit(1)
	}

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tracerProvider, err := telemetry.SetupTracing(appCtx, cfg.OTelEndpoint)
	if err != nil {
		logger.Error("failed to set up tracing", zap.Error(err))
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = tracerProvider.Shutdown(shutdownCtx)
	}()

	index := policyindex.New()
	watcher := policywatch.New(cfg.PolicyDir, index, logger)
	watcher.Reload() // initial synchronous load before serving traffic
	go func() {
		if err := watcher.Run(appCtx); err != nil {
			logger.Error("policy watcher stopped", zap.Error(err))
		}
	}()

	approvalStore := approval.New(cfg.ApprovalTTL, logger)
	go approvalStore.RunSweeper(30 * time.Second)
	defer approvalStore.Stop()

	ring := decisionring.New(cfg.DecisionRingSize)

	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)

	var sink telemetry.Sink
	if cfg.OTelEndpoint != "" {
		sink = telemetry.NewOTelSink(logger, metrics)
	} else {
		sink = telemetry.NewNoopSink(logger)
	}

	adapters := map[string]toolapi.Adapter{
		"payments": toolapi.NewReliable("payments", toolapi.NewPaymentsAdapter(), logger, metrics),
		"files":    toolapi.NewReliable("files", toolapi.NewFilesAdapter(), logger, metrics),
	}

	orch := gateway.New(index, approvalStore, ring, adapters, sink, logger)
	server := httpapi.New(orch, logger, watcher.LastWarnings)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: server,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("aegis gateway starting", zap.Int("port", cfg.Port), zap.String("policy_dir", cfg.PolicyDir))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("aegis gateway stopping")
	case err := <-serveErr:
		logger.Error("failed to bind HTTP port", zap.Error(err))
		os.Exit(2)
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}

	logger.Info("aegis gateway exited cleanly")
}

func buildLogger(cfg *aegisconfig.Config) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.LogFormat == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level := zapcore.InfoLevel
	_ = level.UnmarshalText([]byte(cfg.LogLevel))
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
