// Package model defines the entity schemas shared across the ingest and
// aggregation stages, and the decoders/encoders that sit at every I/O
// boundary (§9: dynamic schema validation at I/O boundaries, done here as
// static validation on typed records instead).
package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Print is an executed equity trade event.
type Print struct {
	UnderlyingID     string          `json:"underlying_id"`
	Ts               int64           `json:"ts"`
	Seq              int64           `json:"seq"`
	SourceTs         int64           `json:"source_ts"`
	IngestTs         int64           `json:"ingest_ts"`
	TraceID          string          `json:"trace_id"`
	Price            decimal.Decimal `json:"price"`
	Size             int64           `json:"size"`
	Exchange         string          `json:"exchange"`
	OffExchangeFlag  bool            `json:"off_exchange_flag"`
}

// Validate enforces the Print schema. Called at every inbound/outbound
// boundary; never re-checked once inside the aggregator kernel.
func (p *Print) Validate() error {
	if p.UnderlyingID == "" || !isUpperASCII(p.UnderlyingID) {
		return &ValidationError{Entity: "Print", Field: "underlying_id", Reason: "must be non-empty uppercase ASCII"}
	}
	if p.Price.Sign() <= 0 {
		return &ValidationError{Entity: "Print", Field: "price", Reason: "must be positive"}
	}
	if p.Size <= 0 {
		return &ValidationError{Entity: "Print", Field: "size", Reason: "must be a positive share count"}
	}
	return nil
}

// Quote is an NBBO-style top-of-book snapshot.
type Quote struct {
	UnderlyingID string          `json:"underlying_id"`
	Ts           int64           `json:"ts"`
	Seq          int64           `json:"seq"`
	SourceTs     int64           `json:"source_ts"`
	IngestTs     int64           `json:"ingest_ts"`
	TraceID      string          `json:"trace_id"`
	Bid          decimal.Decimal `json:"bid"`
	Ask          decimal.Decimal `json:"ask"`
	Exchange     string          `json:"exchange"`
}

// MinTick is the minimum allowed (ask - bid) spread used by Quote.Validate.
const MinTick = "0.0001"

// Validate enforces the Quote schema, including ask >= bid + min_tick.
func (q *Quote) Validate() error {
	if q.UnderlyingID == "" || !isUpperASCII(q.UnderlyingID) {
		return &ValidationError{Entity: "Quote", Field: "underlying_id", Reason: "must be non-empty uppercase ASCII"}
	}
	if q.Bid.Sign() <= 0 || q.Ask.Sign() <= 0 {
		return &ValidationError{Entity: "Quote", Field: "bid/ask", Reason: "must be positive"}
	}
	minTick, _ := decimal.NewFromString(MinTick)
	if q.Ask.LessThan(q.Bid.Add(minTick)) {
		return &ValidationError{Entity: "Quote", Field: "ask", Reason: "must be >= bid + min_tick"}
	}
	return nil
}

// Candle is a fixed-interval OHLCV bar, materialised by C3 on window close
// or drain and handed to C4 for fan-out.
type Candle struct {
	UnderlyingID string          `json:"underlying_id"`
	IntervalMs   int64           `json:"interval_ms"`
	Ts           int64           `json:"ts"`
	Open         decimal.Decimal `json:"open"`
	High         decimal.Decimal `json:"high"`
	Low          decimal.Decimal `json:"low"`
	Close        decimal.Decimal `json:"close"`
	Volume       int64           `json:"volume"`
	TradeCount   int64           `json:"trade_count"`
	SourceTs     int64           `json:"source_ts"`
	IngestTs     int64           `json:"ingest_ts"`
	Seq          int64           `json:"seq"`
	TraceID      string          `json:"trace_id"`
}

// Validate enforces Candle invariants 2 and 6 of the spec's data model.
func (c *Candle) Validate() error {
	if c.Volume <= 0 {
		return &ValidationError{Entity: "Candle", Field: "volume", Reason: "must be positive"}
	}
	if c.TradeCount < 1 {
		return &ValidationError{Entity: "Candle", Field: "trade_count", Reason: "must be >= 1"}
	}
	maxOC := decimal.Max(c.Open, c.Close)
	minOC := decimal.Min(c.Open, c.Close)
	if c.High.LessThan(maxOC) {
		return &ValidationError{Entity: "Candle", Field: "high", Reason: "must be >= max(open, close)"}
	}
	if c.Low.GreaterThan(minOC) {
		return &ValidationError{Entity: "Candle", Field: "low", Reason: "must be <= min(open, close)"}
	}
	return nil
}

func isUpperASCII(s string) bool {
	for _, r := range s {
		if r > 127 {
			return false
		}
	}
	return s == strings.ToUpper(s)
}
