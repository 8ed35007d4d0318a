// Package emitter implements C4, the candle emitter: for each emitted
// Candle, persist to the columnar store, publish to the bus, and update
// the hot cache, with the heterogeneous per-sink failure policy of §4.4.
// Each sink call is wrapped in its own circuit breaker, grounded on the
// sawpanic-cryptorun pack example's CircuitBreakerManager, so a wedged
// sink fails fast instead of adding latency to every candle on the
// aggregator's hot path.
package emitter

import (
	"context"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/equitystream/equitystream/internal/metrics"
	"github.com/equitystream/equitystream/internal/model"
)

const subjectCandles = "equity.candles"

// Store is the subset of the store client candles persist through.
type Store interface {
	InsertCandle(ctx context.Context, c model.Candle) error
}

// Bus is the subset of the bus client candles are republished onto.
type Bus interface {
	PublishJSON(ctx context.Context, subject string, payload any) error
}

// Cache is the subset of the hot cache client candles are pushed into.
// May be nil when the cache is disabled (cacheLimit = 0).
type Cache interface {
	UpdateCandle(ctx context.Context, c model.Candle) error
}

// Emitter fans an emitted candle out to its three sinks.
type Emitter struct {
	store Store
	bus   Bus
	cache Cache

	storeBreaker *gobreaker.CircuitBreaker
	busBreaker   *gobreaker.CircuitBreaker
	cacheBreaker *gobreaker.CircuitBreaker

	logger *zap.Logger
	m      *metrics.Metrics
}

// New wires an Emitter. cache may be nil if the hot cache is disabled.
func New(store Store, bus Bus, cache Cache, logger *zap.Logger, m *metrics.Metrics) *Emitter {
	settings := func(name string) gobreaker.Settings {
		return gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Interval:    0,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}
	}

	return &Emitter{
		store:        store,
		bus:          bus,
		cache:        cache,
		storeBreaker: gobreaker.NewCircuitBreaker(settings("store")),
		busBreaker:   gobreaker.NewCircuitBreaker(settings("bus")),
		cacheBreaker: gobreaker.NewCircuitBreaker(settings("cache")),
		logger:       logger,
		m:            m,
	}
}

// Emit pushes candle through store, bus, and cache per §4.4's ordering
// and per-sink failure policy. Validation failure aborts before any sink
// is touched (§7's outbound ValidationError path).
func (e *Emitter) Emit(ctx context.Context, candle model.Candle) {
	if err := candle.Validate(); err != nil {
		e.logger.Error("emitted candle failed validation, aborting", zap.Error(err))
		return
	}

	if _, err := e.storeBreaker.Execute(func() (any, error) {
		return nil, e.store.InsertCandle(ctx, candle)
	}); err != nil {
		e.m.PersistFailed.WithLabelValues("equity_candles").Inc()
		e.logger.Error("candle store insert failed, skipping bus and cache", zap.String("underlying_id", candle.UnderlyingID), zap.Int64("ts", candle.Ts), zap.Error(err))
		return
	}
	e.m.CandlesEmitted.WithLabelValues(strconv.FormatInt(candle.IntervalMs, 10)).Inc()

	start := time.Now()
	if _, err := e.busBreaker.Execute(func() (any, error) {
		return nil, e.bus.PublishJSON(ctx, subjectCandles, candle)
	}); err != nil {
		e.m.PublishFailed.WithLabelValues(subjectCandles).Inc()
		e.logger.Error("candle bus publish failed, store already durable", zap.Error(err))
	} else {
		e.m.PublishLatency.WithLabelValues(subjectCandles).Observe(time.Since(start).Seconds())
	}

	if e.cache == nil {
		return
	}
	if _, err := e.cacheBreaker.Execute(func() (any, error) {
		return nil, e.cache.UpdateCandle(ctx, candle)
	}); err != nil {
		e.m.CacheFailed.WithLabelValues(candle.UnderlyingID).Inc()
		e.logger.Warn("candle cache update failed", zap.Error(err))
	}
}
