package aggregator

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/equitystream/equitystream/internal/model"
)

func mkPrint(ts int64, price float64, size, seq int64) model.Print {
	return model.Print{
		UnderlyingID: "AAPL",
		Ts:           ts,
		Seq:          seq,
		SourceTs:     ts,
		IngestTs:     ts,
		Price:        decimal.NewFromFloat(price),
		Size:         size,
		Exchange:     "Q",
	}
}

func dec(t *testing.T, v string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(v)
	if err != nil {
		t.Fatalf("parse decimal %q: %v", v, err)
	}
	return d
}

// Scenario 1: basic OHLC.
func TestKernel_BasicOHLC(t *testing.T) {
	k := New([]int64{1000}, 0)

	k.Ingest(mkPrint(1000, 10, 100, 1))
	k.Ingest(mkPrint(1500, 12, 50, 2))
	res := k.Ingest(mkPrint(2500, 11, 10, 3))

	if len(res.Emitted) != 1 {
		t.Fatalf("expected 1 emitted candle, got %d", len(res.Emitted))
	}
	c := res.Emitted[0]
	if c.Ts != 1000 {
		t.Errorf("ts = %d, want 1000", c.Ts)
	}
	if !c.Open.Equal(dec(t, "10")) || !c.High.Equal(dec(t, "12")) || !c.Low.Equal(dec(t, "10")) || !c.Close.Equal(dec(t, "12")) {
		t.Errorf("ohlc = %s/%s/%s/%s, want 10/12/10/12", c.Open, c.High, c.Low, c.Close)
	}
	if c.Volume != 150 || c.TradeCount != 2 {
		t.Errorf("volume/tradeCount = %d/%d, want 150/2", c.Volume, c.TradeCount)
	}
	if c.Seq != 2 || c.SourceTs != 1000 || c.IngestTs != 1500 {
		t.Errorf("seq/source_ts/ingest_ts = %d/%d/%d, want 2/1000/1500", c.Seq, c.SourceTs, c.IngestTs)
	}
}

// Scenario 2: out-of-order within admitted window, maxLateMs 2000.
func TestKernel_OutOfOrderAdmission(t *testing.T) {
	k := New([]int64{1000}, 2000)

	k.Ingest(mkPrint(1500, 15, 10, 2))
	k.Ingest(mkPrint(1200, 11, 20, 1))
	emitted := k.Drain()

	if len(emitted) != 1 {
		t.Fatalf("expected 1 drained candle, got %d", len(emitted))
	}
	c := emitted[0]
	if !c.Open.Equal(dec(t, "11")) || !c.Close.Equal(dec(t, "15")) {
		t.Errorf("open/close = %s/%s, want 11/15", c.Open, c.Close)
	}
	if c.TradeCount != 2 || c.Seq != 2 || c.SourceTs != 1200 || c.IngestTs != 1500 {
		t.Errorf("tradeCount/seq/source_ts/ingest_ts = %d/%d/%d/%d, want 2/2/1200/1500", c.TradeCount, c.Seq, c.SourceTs, c.IngestTs)
	}
}

// Scenario 3: late drop after close.
func TestKernel_LateDropAfterClose(t *testing.T) {
	k := New([]int64{1000}, 0)

	k.Ingest(mkPrint(1000, 10, 100, 1))
	res2 := k.Ingest(mkPrint(3000, 14, 50, 2))
	if len(res2.Emitted) != 1 || res2.Emitted[0].Ts != 1000 {
		t.Fatalf("expected one candle ts=1000 after second ingest, got %+v", res2.Emitted)
	}

	res3 := k.Ingest(mkPrint(1500, 9, 25, 3))
	if res3.DroppedLate != 1 {
		t.Errorf("droppedLate = %d, want 1", res3.DroppedLate)
	}
	if len(res3.Emitted) != 0 {
		t.Errorf("expected no emitted candles on third ingest, got %+v", res3.Emitted)
	}
}

// Scenario 4: multi-interval fan-out.
func TestKernel_MultiIntervalFanOut(t *testing.T) {
	k := New([]int64{1000, 5000}, 0)

	k.Ingest(mkPrint(1000, 10, 1, 1))
	res2 := k.Ingest(mkPrint(4500, 12, 1, 2))
	res3 := k.Ingest(mkPrint(6000, 8, 1, 3))

	thousandMs := func(res Result) []int64 {
		var out []int64
		for _, c := range res.Emitted {
			if c.IntervalMs == 1000 {
				out = append(out, c.Ts)
			}
		}
		return out
	}
	// The watermark reaches 4500 on the second ingest, closing [1000,2000).
	if got := thousandMs(res2); len(got) != 1 || got[0] != 1000 {
		t.Errorf("1000ms emissions after second ingest = %v, want [1000]", got)
	}
	if got := thousandMs(res3); len(got) != 1 || got[0] != 4000 {
		t.Errorf("1000ms emissions after third ingest = %v, want [4000]", got)
	}

	// The watermark reaches 6000 on the third ingest, closing [0,5000).
	var fiveThousand *model.Candle
	for i := range res3.Emitted {
		if res3.Emitted[i].IntervalMs == 5000 {
			fiveThousand = &res3.Emitted[i]
		}
	}
	if fiveThousand == nil {
		t.Fatal("expected a 5000ms candle after third ingest")
	}
	if fiveThousand.Ts != 0 || !fiveThousand.Open.Equal(dec(t, "10")) || !fiveThousand.High.Equal(dec(t, "12")) ||
		!fiveThousand.Low.Equal(dec(t, "10")) || !fiveThousand.Close.Equal(dec(t, "12")) ||
		fiveThousand.Volume != 2 || fiveThousand.TradeCount != 2 {
		t.Errorf("5000ms candle = %+v, want ts=0 open=10 high=12 low=10 close=12 volume=2 tradeCount=2", fiveThousand)
	}
}

// Scenario 5: tie-break by seq, independent of ingestion order.
func TestKernel_TieBreakBySeq(t *testing.T) {
	for _, order := range [][2]int64{{1, 2}, {2, 1}} {
		k := New([]int64{1000}, 0)
		prints := map[int64]model.Print{
			1: mkPrint(2000, 10, 1, 1),
			2: mkPrint(2000, 20, 1, 2),
		}
		k.Ingest(prints[order[0]])
		k.Ingest(prints[order[1]])
		emitted := k.Drain()
		if len(emitted) != 1 {
			t.Fatalf("expected 1 candle, got %d", len(emitted))
		}
		c := emitted[0]
		if !c.Open.Equal(dec(t, "10")) || !c.Close.Equal(dec(t, "20")) {
			t.Errorf("order %v: open/close = %s/%s, want 10/20", order, c.Open, c.Close)
		}
	}
}

// Idempotence of drain.
func TestKernel_DrainIdempotent(t *testing.T) {
	k := New([]int64{1000}, 0)
	k.Ingest(mkPrint(1000, 10, 1, 1))
	first := k.Drain()
	if len(first) != 1 {
		t.Fatalf("expected 1 candle on first drain, got %d", len(first))
	}
	second := k.Drain()
	if len(second) != 0 {
		t.Errorf("expected empty second drain, got %d", len(second))
	}
}

// Monotonicity of emitted ts per (symbol, interval).
func TestKernel_Monotonicity(t *testing.T) {
	k := New([]int64{1000}, 0)
	var allTs []int64

	seq := int64(1)
	for ts := int64(0); ts < 10000; ts += 700 {
		res := k.Ingest(mkPrint(ts, 10, 1, seq))
		seq++
		for _, c := range res.Emitted {
			allTs = append(allTs, c.Ts)
		}
	}
	for _, c := range k.Drain() {
		allTs = append(allTs, c.Ts)
	}

	for i := 1; i < len(allTs); i++ {
		if allTs[i] <= allTs[i-1] {
			t.Fatalf("ts not strictly increasing at index %d: %v", i, allTs)
		}
	}
}
