// Package syntheticadapter implements the reference ingest.Adapter used
// when no real venue feed is configured: a bounded in-process random-walk
// trade generator, exercising the pipeline end-to-end without a venue
// WebSocket connection (explicitly out of scope per the specification).
package syntheticadapter

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/equitystream/equitystream/internal/ingest"
	"github.com/equitystream/equitystream/internal/model"
)

// Adapter synthesizes Print events for a fixed set of symbols on a
// configurable period.
type Adapter struct {
	symbols      []string
	emitInterval time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	lastPrice map[string]decimal.Decimal
	seq       map[string]int64
	rng       *rand.Rand
}

// New builds a synthetic adapter seeded with a starting price of 100 for
// every symbol.
func New(symbols []string, emitIntervalMs int64) *Adapter {
	lastPrice := make(map[string]decimal.Decimal, len(symbols))
	seq := make(map[string]int64, len(symbols))
	for _, s := range symbols {
		lastPrice[s] = decimal.NewFromInt(100)
		seq[s] = 0
	}
	return &Adapter{
		symbols:      symbols,
		emitInterval: time.Duration(emitIntervalMs) * time.Millisecond,
		lastPrice:    lastPrice,
		seq:          seq,
		rng:          rand.New(rand.NewSource(1)),
	}
}

// Name returns the adapter's configuration identifier.
func (a *Adapter) Name() string { return "synthetic" }

// Start begins emitting trades on a ticker until Stop is called or ctx is
// cancelled.
func (a *Adapter) Start(ctx context.Context, handlers ingest.Handlers) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.running = true
	a.done = make(chan struct{})
	a.mu.Unlock()

	go a.run(runCtx, handlers)
	return nil
}

func (a *Adapter) run(ctx context.Context, handlers ingest.Handlers) {
	defer close(a.done)

	ticker := time.NewTicker(a.emitInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, symbol := range a.symbols {
				handlers.OnTrade(ctx, a.nextPrint(symbol, now))
			}
		}
	}
}

func (a *Adapter) nextPrint(symbol string, now time.Time) model.Print {
	a.mu.Lock()
	defer a.mu.Unlock()

	driftBps := decimal.NewFromFloat((a.rng.Float64() - 0.5) * 0.002)
	price := a.lastPrice[symbol].Add(a.lastPrice[symbol].Mul(driftBps))
	if price.Sign() <= 0 {
		price = decimal.NewFromInt(1)
	}
	a.lastPrice[symbol] = price
	a.seq[symbol]++

	ts := now.UnixMilli()
	return model.Print{
		UnderlyingID: symbol,
		Ts:           ts,
		Seq:          a.seq[symbol],
		SourceTs:     ts,
		IngestTs:     ts,
		TraceID:      uuid.NewString(),
		Price:        price,
		Size:         int64(1 + a.rng.Intn(500)),
		Exchange:     "Q",
		OffExchangeFlag: false,
	}
}

// Stop cancels the generator goroutine and blocks until it has exited,
// satisfying the adapter contract's "cease invoking handlers before
// returning" requirement. Idempotent.
func (a *Adapter) Stop() error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	cancel := a.cancel
	done := a.done
	a.mu.Unlock()

	cancel()
	<-done
	return nil
}
