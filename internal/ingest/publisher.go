package ingest

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/equitystream/equitystream/internal/metrics"
	"github.com/equitystream/equitystream/internal/model"
)

// Store is the subset of the columnar store client C2 writes through to.
type Store interface {
	InsertPrint(ctx context.Context, p model.Print) error
	InsertQuote(ctx context.Context, q model.Quote) error
}

// Bus is the subset of the bus client C2 publishes onto.
type Bus interface {
	PublishJSON(ctx context.Context, subject string, payload any) error
}

const (
	subjectPrints = "equity.prints"
	subjectQuotes = "equity.quotes"

	kindTrade = "trade"
	kindQuote = "quote"
)

// Publisher implements C2's contract: throttle, validate, write-through to
// the store, then publish to the bus, in that order (§4.2).
type Publisher struct {
	store Store
	bus   Bus

	throttle *ThrottleGate
	dropLog  *dropLogger

	logger *zap.Logger
	m      *metrics.Metrics

	shuttingDown chan struct{}
}

// NewPublisher wires a Publisher to its store and bus sinks.
func NewPublisher(store Store, bus Bus, throttleEnabled bool, throttleMs int64, logger *zap.Logger, m *metrics.Metrics) *Publisher {
	return &Publisher{
		store:        store,
		bus:          bus,
		throttle:     NewThrottleGate(throttleEnabled, throttleMs),
		dropLog:      newDropLogger(logger, m, "combined"),
		logger:       logger,
		m:            m,
		shuttingDown: make(chan struct{}),
	}
}

// Handlers returns the adapter-facing callback set that routes into the
// publish pipeline.
func (p *Publisher) Handlers() Handlers {
	return Handlers{
		OnTrade: func(ctx context.Context, print model.Print) { p.handleTrade(ctx, print) },
		OnQuote: func(ctx context.Context, quote model.Quote) { p.handleQuote(ctx, quote) },
	}
}

// Shutdown marks the publisher as draining; further events are dropped
// at step (1) of §4.2's per-event algorithm.
func (p *Publisher) Shutdown() {
	select {
	case <-p.shuttingDown:
	default:
		close(p.shuttingDown)
	}
	p.dropLog.Close()
}

func (p *Publisher) isShuttingDown() bool {
	select {
	case <-p.shuttingDown:
		return true
	default:
		return false
	}
}

func (p *Publisher) handleTrade(ctx context.Context, print model.Print) {
	if p.isShuttingDown() {
		return
	}
	if !p.throttle.Admit(kindTrade, time.Now()) {
		p.dropLog.Record()
		return
	}
	if err := print.Validate(); err != nil {
		p.m.PrintsRejected.WithLabelValues(kindTrade).Inc()
		p.logger.Warn("print failed validation", zap.Error(err))
		return
	}
	p.m.PrintsValidated.WithLabelValues(kindTrade).Inc()

	if err := p.store.InsertPrint(ctx, print); err != nil {
		p.m.PersistFailed.WithLabelValues("equity_prints").Inc()
		p.logger.Error("store insert failed, skipping publish", zap.String("underlying_id", print.UnderlyingID), zap.Error(err))
		return
	}

	start := time.Now()
	if err := p.bus.PublishJSON(ctx, subjectPrints, print); err != nil {
		p.m.PublishFailed.WithLabelValues(subjectPrints).Inc()
		p.logger.Error("bus publish failed after durable store write", zap.Error(err))
		return
	}
	p.m.PublishLatency.WithLabelValues(subjectPrints).Observe(time.Since(start).Seconds())
}

func (p *Publisher) handleQuote(ctx context.Context, quote model.Quote) {
	if p.isShuttingDown() {
		return
	}
	if !p.throttle.Admit(kindQuote, time.Now()) {
		p.dropLog.Record()
		return
	}
	if err := quote.Validate(); err != nil {
		p.m.QuotesRejected.WithLabelValues(kindQuote).Inc()
		p.logger.Warn("quote failed validation", zap.Error(err))
		return
	}
	p.m.QuotesValidated.WithLabelValues(kindQuote).Inc()

	if err := p.store.InsertQuote(ctx, quote); err != nil {
		p.m.PersistFailed.WithLabelValues("equity_quotes").Inc()
		p.logger.Error("store insert failed, skipping publish", zap.String("underlying_id", quote.UnderlyingID), zap.Error(err))
		return
	}

	start := time.Now()
	if err := p.bus.PublishJSON(ctx, subjectQuotes, quote); err != nil {
		p.m.PublishFailed.WithLabelValues(subjectQuotes).Inc()
		p.logger.Error("bus publish failed after durable store write", zap.Error(err))
		return
	}
	p.m.PublishLatency.WithLabelValues(subjectQuotes).Observe(time.Since(start).Seconds())
}
