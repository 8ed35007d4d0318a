// Command ingestd runs the ingest side of the pipeline: it boots a bus
// client, ensures the print/quote streams exist, starts the configured
// adapter, and drives C2's throttle/validate/store/publish pipeline.
// Lifecycle pattern adapted from the teacher's cmd/main.go
// initialize/start/waitForShutdown/shutdown sequence.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/equitystream/equitystream/internal/bus"
	"github.com/equitystream/equitystream/internal/config"
	"github.com/equitystream/equitystream/internal/ingest"
	"github.com/equitystream/equitystream/internal/ingest/syntheticadapter"
	"github.com/equitystream/equitystream/internal/logging"
	"github.com/equitystream/equitystream/internal/metrics"
	"github.com/equitystream/equitystream/internal/store"
	"github.com/equitystream/equitystream/internal/supervisor"
)

const shutdownDeadline = 10 * time.Second

type app struct {
	cfg         *config.Config
	logger      *zap.Logger
	metrics     *metrics.Metrics
	busClient   *bus.Client
	storeClient *store.Client
	publisher   *ingest.Publisher
	adapter     ingest.Adapter
	supervisor  *supervisor.Supervisor
}

func main() {
	configPath := flag.String("config", "", "path to config YAML")
	flag.Parse()

	cfg, err := config.Load(config.ResolvePath(*configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	a := &app{cfg: cfg, logger: logger}
	if err := a.initialize(); err != nil {
		logger.Fatal("initialize failed", zap.Error(err))
	}
	if err := a.start(); err != nil {
		logger.Fatal("start failed", zap.Error(err))
	}

	a.waitForShutdown()
	a.shutdown()
}

func (a *app) initialize() error {
	ctx := context.Background()

	a.metrics = metrics.New(a.logger)

	a.storeClient = store.New(a.cfg.Store.URL, a.cfg.Store.Database)
	if err := a.storeClient.EnsurePrintsTable(ctx); err != nil {
		return fmt.Errorf("ensure prints table: %w", err)
	}
	if err := a.storeClient.EnsureQuotesTable(ctx); err != nil {
		return fmt.Errorf("ensure quotes table: %w", err)
	}

	busClient, err := bus.Connect(ctx, a.cfg.Bus.ServersURL, "ingestd", a.cfg.Bus.ConnectTimeoutMs, a.logger)
	if err != nil {
		return fmt.Errorf("connect bus: %w", err)
	}
	a.busClient = busClient

	if err := a.busClient.EnsureStream(ctx, bus.StreamConfig{Name: "EQUITY_PRINTS", Subjects: []string{"equity.prints"}}); err != nil {
		return fmt.Errorf("ensure prints stream: %w", err)
	}
	if err := a.busClient.EnsureStream(ctx, bus.StreamConfig{Name: "EQUITY_QUOTES", Subjects: []string{"equity.quotes"}}); err != nil {
		return fmt.Errorf("ensure quotes stream: %w", err)
	}

	a.publisher = ingest.NewPublisher(a.storeClient, a.busClient, a.cfg.Testing.Enabled, a.cfg.Testing.ThrottleMs, a.logger, a.metrics)

	switch a.cfg.Ingest.AdapterName {
	case "synthetic", "":
		a.adapter = syntheticadapter.New(a.cfg.Ingest.Symbols, a.cfg.Ingest.EmitIntervalMs)
	default:
		return fmt.Errorf("unknown adapter %q", a.cfg.Ingest.AdapterName)
	}

	a.supervisor = supervisor.New(a.logger)
	return a.supervisor.AddWorker(supervisor.WorkerConfig{
		Name:           "adapter",
		Label:          a.adapter.Name(),
		MaxRetries:     10,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2.0,
	}, func(ctx context.Context) error {
		if err := a.adapter.Start(ctx, a.publisher.Handlers()); err != nil {
			return err
		}
		<-ctx.Done()
		return a.adapter.Stop()
	})
}

func (a *app) start() error {
	a.metrics.Start(a.cfg.Metrics.Port)
	return a.supervisor.Start()
}

func (a *app) waitForShutdown() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	a.logger.Info("shutdown signal received")
}

func (a *app) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownDeadline)
	defer cancel()

	a.publisher.Shutdown()
	_ = a.adapter.Stop()
	_ = a.supervisor.Stop()

	if a.busClient != nil {
		if err := a.busClient.Drain(); err != nil {
			a.logger.Warn("bus drain failed", zap.Error(err))
		}
	}
	if err := a.metrics.Stop(ctx); err != nil {
		a.logger.Warn("metrics shutdown failed", zap.Error(err))
	}
	a.logger.Info("ingestd stopped")
}
