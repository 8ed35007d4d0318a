// Command aggregatord runs the aggregation side of the pipeline: it boots
// a bus client, runs the durable consumer bootstrap protocol against the
// print stream, folds delivered prints into the C3 kernel, and fans
// emitted candles out through C4. Lifecycle pattern adapted from the
// teacher's cmd/main.go initialize/start/waitForShutdown/shutdown
// sequence.
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

	"github.com/equitystream/equitystream/internal/aggregator"
	"github.com/equitystream/equitystream/internal/bus"
	"github.com/equitystream/equitystream/internal/cache"
	"github.com/equitystream/equitystream/internal/config"
	"github.com/equitystream/equitystream/internal/emitter"
	"github.com/equitystream/equitystream/internal/logging"
	"github.com/equitystream/equitystream/internal/metrics"
	"github.com/equitystream/equitystream/internal/model"
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
	cacheClient *cache.Client
	kernel      *aggregator.Kernel
	emitter     *emitter.Emitter
	supervisor  *supervisor.Supervisor
	unsubscribe func() error
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
	a.kernel = aggregator.New(a.cfg.Candle.IntervalsMs, a.cfg.Candle.MaxLateMs)

	a.storeClient = store.New(a.cfg.Store.URL, a.cfg.Store.Database)
	if err := a.storeClient.EnsureCandlesTable(ctx); err != nil {
		return fmt.Errorf("ensure candles table: %w", err)
	}

	if a.cfg.Candle.CacheLimit > 0 {
		cacheClient, err := cache.New(ctx, a.cfg.Cache.URL, a.cfg.Candle.CacheLimit)
		if err != nil {
			a.logger.Warn("hot cache unavailable at startup, continuing without it", zap.Error(err))
		} else {
			a.cacheClient = cacheClient
		}
	}

	busClient, err := bus.Connect(ctx, a.cfg.Bus.ServersURL, "aggregatord", a.cfg.Bus.ConnectTimeoutMs, a.logger)
	if err != nil {
		return fmt.Errorf("connect bus: %w", err)
	}
	a.busClient = busClient

	if err := a.busClient.EnsureStream(ctx, bus.StreamConfig{Name: "EQUITY_PRINTS", Subjects: []string{"equity.prints"}}); err != nil {
		return fmt.Errorf("ensure prints stream: %w", err)
	}
	if err := a.busClient.EnsureStream(ctx, bus.StreamConfig{Name: "EQUITY_CANDLES", Subjects: []string{"equity.candles"}}); err != nil {
		return fmt.Errorf("ensure candles stream: %w", err)
	}

	var cacheSink emitter.Cache
	if a.cacheClient != nil {
		cacheSink = a.cacheClient
	}
	a.emitter = emitter.New(a.storeClient, a.busClient, cacheSink, a.logger, a.metrics)

	a.supervisor = supervisor.New(a.logger)
	return a.supervisor.AddWorker(supervisor.WorkerConfig{
		Name:           "consumer",
		Label:          "equity.prints",
		MaxRetries:     0,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2.0,
	}, a.runConsumer)
}

func (a *app) runConsumer(ctx context.Context) error {
	unsubscribe, err := a.busClient.Subscribe(ctx, bus.ConsumerConfig{
		Stream:        "EQUITY_PRINTS",
		Durable:       "aggregatord-prints",
		FilterSubject: "equity.prints",
		DeliverPolicy: bus.DeliverPolicy(a.cfg.Candle.DeliverPolicy),
		Reset:         a.cfg.Candle.ConsumerReset,
	}, a.handlePrint)
	if err != nil {
		return fmt.Errorf("subscribe to prints: %w", err)
	}
	a.unsubscribe = unsubscribe

	<-ctx.Done()
	return unsubscribe()
}

func (a *app) handlePrint(ctx context.Context, msg *bus.Message) error {
	var print model.Print
	if err := msg.Decode(&print); err != nil {
		a.logger.Warn("malformed print message, terminating", zap.Error(err))
		return msg.Term()
	}
	if err := print.Validate(); err != nil {
		a.logger.Warn("print failed validation, terminating", zap.Error(err))
		return msg.Term()
	}

	result := a.kernel.Ingest(print)
	if result.DroppedLate > 0 {
		a.metrics.LatePrintDropped.Add(float64(result.DroppedLate))
	}
	for _, candle := range result.Emitted {
		a.emitter.Emit(ctx, candle)
	}
	a.metrics.OpenWindows.Set(float64(a.kernel.OpenWindowCount()))

	return msg.Ack()
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

	_ = a.supervisor.Stop()

	for _, candle := range a.kernel.Drain() {
		a.emitter.Emit(ctx, candle)
	}

	if a.cacheClient != nil {
		if err := a.cacheClient.Close(); err != nil {
			a.logger.Warn("cache close failed", zap.Error(err))
		}
	}
	if a.busClient != nil {
		if err := a.busClient.Drain(); err != nil {
			a.logger.Warn("bus drain failed", zap.Error(err))
		}
	}
	if err := a.metrics.Stop(ctx); err != nil {
		a.logger.Warn("metrics shutdown failed", zap.Error(err))
	}
	a.logger.Info("aggregatord stopped")
}
