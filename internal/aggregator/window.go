package aggregator

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/equitystream/equitystream/internal/model"
)

// windowBuilder is the accumulator for one open window (§3's
// WindowBuilder). It is internal to the kernel and never exposed outside
// this package.
type windowBuilder struct {
	underlyingID string
	intervalMs   int64
	windowStart  int64

	open  decimal.Decimal
	high  decimal.Decimal
	low   decimal.Decimal
	close decimal.Decimal

	volume     int64
	tradeCount int64

	openTs, openSeq   int64
	closeTs, closeSeq int64

	openSourceTs int64
	closeIngestTs int64
}

// newWindowBuilder seeds a builder from the first print admitted into its
// window.
func newWindowBuilder(p model.Print, windowStart, intervalMs int64) *windowBuilder {
	return &windowBuilder{
		underlyingID:  p.UnderlyingID,
		intervalMs:    intervalMs,
		windowStart:   windowStart,
		open:          p.Price,
		high:          p.Price,
		low:           p.Price,
		close:         p.Price,
		volume:        p.Size,
		tradeCount:    1,
		openTs:        p.Ts,
		openSeq:       p.Seq,
		closeTs:       p.Ts,
		closeSeq:      p.Seq,
		openSourceTs:  p.SourceTs,
		closeIngestTs: p.IngestTs,
	}
}

// fold applies the fold rule of §4.3 step 5 to an already-admitted print.
func (w *windowBuilder) fold(p model.Print) {
	w.volume += p.Size
	w.tradeCount++

	if p.Price.GreaterThan(w.high) {
		w.high = p.Price
	}
	if p.Price.LessThan(w.low) {
		w.low = p.Price
	}

	if lessTsSeq(p.Ts, p.Seq, w.openTs, w.openSeq) {
		w.open = p.Price
		w.openTs = p.Ts
		w.openSeq = p.Seq
		w.openSourceTs = p.SourceTs
	}
	if lessTsSeq(w.closeTs, w.closeSeq, p.Ts, p.Seq) {
		w.close = p.Price
		w.closeTs = p.Ts
		w.closeSeq = p.Seq
		w.closeIngestTs = p.IngestTs
	}
}

// lessTsSeq orders by ts then seq, the tiebreak rule used throughout §3/§4.3.
func lessTsSeq(ts1, seq1, ts2, seq2 int64) bool {
	if ts1 != ts2 {
		return ts1 < ts2
	}
	return seq1 < seq2
}

// toCandle materialises the builder as an immutable Candle per §3.
func (w *windowBuilder) toCandle() model.Candle {
	return model.Candle{
		UnderlyingID: w.underlyingID,
		IntervalMs:   w.intervalMs,
		Ts:           w.windowStart,
		Open:         w.open,
		High:         w.high,
		Low:          w.low,
		Close:        w.close,
		Volume:       w.volume,
		TradeCount:   w.tradeCount,
		SourceTs:     w.openSourceTs,
		IngestTs:     w.closeIngestTs,
		Seq:          w.closeSeq,
		TraceID:      fmt.Sprintf("candle:%s:%d:%d", w.underlyingID, w.intervalMs, w.windowStart),
	}
}
