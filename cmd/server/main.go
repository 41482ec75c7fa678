// Package main provides the entry point for the barforge research-engine
// API server: study submission, progress streaming, and artifact export
// over HTTP and WebSocket, backed by the SQLite study store.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ashgrove-quant/barforge/internal/api"
	"github.com/ashgrove-quant/barforge/internal/config"
	"github.com/ashgrove-quant/barforge/internal/observability"
	"github.com/ashgrove-quant/barforge/internal/ohlcv"
	"github.com/ashgrove-quant/barforge/internal/store"
	"github.com/ashgrove-quant/barforge/internal/strategy"
)

func main() {
	configPath := flag.String("config", "", "Path to a barforge.yaml config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	logger.Info("starting barforge server",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("storageDir", cfg.Storage.Dir),
	)

	manager, err := store.NewManager(cfg.Storage.Dir)
	if err != nil {
		logger.Fatal("failed to open storage", zap.Error(err))
	}
	defer manager.Close()

	registry := strategy.NewRegistry(logger)
	logger.Info("registered strategies", zap.Strings("strategies", registry.List()))

	loader := ohlcv.NewLoader(cfg.Storage.AllowedCSVRoots)

	var metrics *observability.Metrics
	if cfg.Server.EnableMetrics {
		metrics = observability.New()
	}

	server := api.NewServer(logger, cfg, manager, registry, loader, metrics)

	if cfg.Server.EnableMetrics {
		go serveMetrics(logger, metrics)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", zap.Error(err))
		}
	}()

	logger.Info("server started",
		zap.String("http", fmt.Sprintf("http://%s:%d/api/v1", cfg.Server.Host, cfg.Server.Port)),
		zap.String("ws", fmt.Sprintf("ws://%s:%d/ws", cfg.Server.Host, cfg.Server.Port)),
	)

	<-sigChan
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("error during server shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

// serveMetrics runs the Prometheus /metrics endpoint on its own listener
// so scraping it never contends with the study API's request handling.
func serveMetrics(logger *zap.Logger, metrics *observability.Metrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	addr := "0.0.0.0:9091"
	logger.Info("starting metrics endpoint", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server error", zap.Error(err))
	}
}
