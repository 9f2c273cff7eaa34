// Command engine runs the signal-to-fill governance pipeline: it wires
// config, the sqlite store, router, governor, filter chain, order
// manager, the paper exchange adapter, the execution loop, the alert
// manager, the dashboard, and the metrics server, then blocks until an
// interrupt signal triggers a graceful shutdown — grounded on the
// teacher's cmd/live_server/main.go wiring-and-signal-handling shape.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"tradeguard/internal/alert"
	"tradeguard/internal/config"
	"tradeguard/internal/dashboard"
	"tradeguard/internal/exchange/paper"
	"tradeguard/internal/execloop"
	"tradeguard/internal/filters"
	"tradeguard/internal/governor"
	"tradeguard/internal/logging"
	"tradeguard/internal/metrics"
	"tradeguard/internal/ordermgr"
	"tradeguard/internal/router"
	"tradeguard/internal/store"
	"tradeguard/pkg/cli"
	"tradeguard/pkg/liveserver"
)

// hubBroadcaster adapts pkg/liveserver.Hub's Broadcast(Message) to
// dashboard.Broadcaster's Broadcast(type, data) so the dashboard package
// never imports liveserver directly.
type hubBroadcaster struct{ hub *liveserver.Hub }

func (b hubBroadcaster) Broadcast(msgType string, data interface{}) {
	b.hub.Broadcast(liveserver.NewMessage(msgType, data))
}

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "configs/engine.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("engine version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	if err := cli.ValidateInput(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "rejected -config value: %v\n", err)
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.System.LogLevel)
	logger.Info("starting engine", "version", version, "config", *configPath)

	if err := os.MkdirAll(filepath.Dir(cfg.System.StorePath), 0o755); err != nil {
		logger.Fatal("failed to create store directory", "error", err)
	}
	st, err := store.Open(cfg.System.StorePath)
	if err != nil {
		logger.Fatal("failed to open store", "error", err)
	}

	exch, err := paper.New(paper.DefaultConfig(), logger)
	if err != nil {
		logger.Fatal("failed to start paper exchange adapter", "error", err)
	}
	defer exch.Close()

	ctx, cancel := context.WithCancel(context.Background())

	rt := router.New(logger)
	if err := rt.Rehydrate(ctx, st); err != nil {
		logger.Fatal("failed to rehydrate router from store", "error", err)
	}

	gv := governor.New(governor.Config{
		MaxLossCooldown:         cfg.Governor.MaxLossCooldown,
		CooldownDuration:        time.Duration(cfg.Governor.CooldownDurationSeconds) * time.Second,
		MaxOpenPositionsPerVA:   cfg.Governor.MaxOpenPositionsPerVA,
		KillSwitchEnabled:       cfg.Governor.KillSwitchEnabled,
		PanicCloseIncidentLimit: cfg.Governor.PanicCloseIncidentLimit,
	}, st, logger)
	if err := gv.Rehydrate(ctx); err != nil {
		logger.Fatal("failed to rehydrate governor from store", "error", err)
	}

	loc, err := tzLocation(cfg.Filters.TradingWindowTZ)
	if err != nil {
		logger.Warn("failed to load trading window timezone, defaulting to UTC", "tz", cfg.Filters.TradingWindowTZ, "error", err)
	}
	chain := filters.NewChain(filters.Config{
		MaxSpreadBPS:   cfg.Filters.MaxSpreadBPS,
		MaxSlippageBPS: cfg.Filters.MaxSlippageBPS,
		MaxLatencyMS:   cfg.Filters.MaxLatencyMS,
		WindowStart:    cfg.Filters.TradingWindowStart,
		WindowEnd:      cfg.Filters.TradingWindowEnd,
		Location:       loc,
	}, logger)

	alerter := alert.New(alert.Config{
		PoolSize:     cfg.Concurrency.AlertPoolSize,
		PoolCapacity: cfg.Concurrency.AlertPoolCapacity,
		LogCapacity:  256,
	}, logger)
	defer alerter.Close()

	orders := ordermgr.New(ordermgr.Config{
		StopLossPercentage:  cfg.OrderMgr.StopLossPercentage,
		StaleOrderThreshold: time.Duration(cfg.OrderMgr.StaleOrderThresholdSeconds) * time.Second,
		ExchangeCallTimeout: time.Duration(cfg.OrderMgr.ExchangeCallTimeoutSeconds) * time.Second,
	}, exch, st, rt, gv, alerter, logger)

	loop := execloop.New(execloop.Config{
		SignalQueueCapacity:  cfg.System.SignalQueueCapacity,
		ReconcileInterval:    time.Duration(cfg.OrderMgr.ReconcileIntervalSeconds) * time.Second,
		SnapshotPollFallback: 5 * time.Second,
	}, exch, st, rt, gv, chain, orders, logger)

	board := dashboard.New(st, alerter, loop, time.Duration(cfg.System.DashboardRefreshSeconds)*time.Second, logger)

	hub := liveserver.NewHub(logger)
	liveSrv := liveserver.NewServer(hub, logger, []string{"*"})
	board.SetBroadcaster(hubBroadcaster{hub: hub})

	reg := metrics.New()
	metricsServer := metrics.NewServer(cfg.System.MetricsAddr, reg, logger)
	metricsServer.Start()

	go hub.Run(ctx)
	go func() {
		if err := liveSrv.Start(ctx, ":8081"); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("live dashboard websocket server failed", "error", err)
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/dashboard", board.Handler())
	httpServer := &http.Server{Addr: ":8080", Handler: mux}
	go func() {
		logger.Info("starting dashboard http server", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("dashboard http server failed", "error", err)
		}
	}()

	go func() {
		if err := board.Run(ctx); err != nil {
			logger.Error("dashboard refresh loop exited", "error", err)
		}
	}()

	loopErr := make(chan error, 1)
	go func() { loopErr <- loop.Run(ctx) }()

	logger.Info("engine is running", "dashboard_addr", httpServer.Addr, "metrics_addr", cfg.System.MetricsAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	select {
	case <-sigCh:
		logger.Info("received shutdown signal, stopping gracefully")
	case err := <-loopErr:
		if err != nil {
			logger.Error("execution loop exited unexpectedly", "error", err)
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("dashboard http server shutdown error", "error", err)
	}
	if err := metricsServer.Stop(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown error", "error", err)
	}

	select {
	case <-loopErr:
	case <-time.After(10 * time.Second):
		logger.Error("execution loop did not stop in time")
	}

	logger.Info("engine stopped")
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	return nil, err
}

func tzLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}
