package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nmchain/config"
	"nmchain/core/events"
	nmstate "nmchain/core/state"
	"nmchain/native/market"
	"nmchain/observability/logging"
	"nmchain/rpc"
	"nmchain/storage"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// staticPauses reflects the pause switches read from the config file.
type staticPauses struct {
	market bool
}

func (p staticPauses) IsPaused(module string) bool {
	return module == "market" && p.market
}

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger := logging.Setup("nmd", cfg.Environment)

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	manager := nmstate.NewManager(db)
	buffer := events.NewBuffer(cfg.EventBuffer)

	engine := market.NewEngine()
	engine.SetState(manager)
	engine.SetEmitter(buffer)
	engine.SetPauses(staticPauses{market: cfg.MarketPaused})

	server := rpc.NewServer(engine, manager, buffer)
	go func() {
		logger.Info("Starting JSON-RPC server", slog.String("address", cfg.RPCAddress))
		if err := server.Start(cfg.RPCAddress); err != nil {
			logger.Error("RPC server terminated", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddress,
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("Starting metrics server", slog.String("address", cfg.MetricsAddress))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server terminated", slog.Any("error", err))
		}
	}()

	logger.Info("Node started",
		slog.String("network", cfg.NetworkName),
		slog.Bool("marketPaused", cfg.MarketPaused),
	)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		logger.Error("RPC shutdown failed", slog.Any("error", err))
	}
	if err := metricsServer.Shutdown(ctx); err != nil {
		logger.Error("Metrics shutdown failed", slog.Any("error", err))
	}
}
