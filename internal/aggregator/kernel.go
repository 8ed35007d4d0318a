// Package aggregator implements C3, the candle aggregator kernel: a
// single-threaded, I/O-free, watermark-driven windowed reducer. Grounded
// structurally on the teacher's OHLCVCandleGenerator (map-of-builders,
// fold, finalize) from internal/analytics/ohlcv_candle_generator.go, with
// the teacher's wall-clock expiry replaced by the specification's
// watermark/max-lateness admission rule — the teacher never implements
// out-of-order admission, so that part is original composition grounded
// only in the specification's own algorithm description.
package aggregator

import (
	"sort"
	"sync"

	"github.com/equitystream/equitystream/internal/model"
)

// Result is the outcome of one ingest call: the candles emitted by this
// call (if any) and the number of prints dropped as late in this call.
type Result struct {
	Emitted     []model.Candle
	DroppedLate int
}

// Kernel is C3: single-threaded by contract (ingest and drain run under
// mutual exclusion), intervals fixed at construction, and performs no I/O.
type Kernel struct {
	mu         sync.Mutex
	intervalsMs []int64
	maxLateMs  int64

	// state[underlyingID][intervalMs] -> *intervalState
	state map[string]map[int64]*intervalState
}

// New builds a Kernel for the given intervals (non-positive values
// dropped, deduplicated, sorted ascending per §4.3) and maxLateMs (floored
// to non-negative).
func New(intervalsMs []int64, maxLateMs int64) *Kernel {
	if maxLateMs < 0 {
		maxLateMs = 0
	}
	return &Kernel{
		intervalsMs: normalizeIntervals(intervalsMs),
		maxLateMs:   maxLateMs,
		state:       make(map[string]map[int64]*intervalState),
	}
}

func normalizeIntervals(in []int64) []int64 {
	seen := make(map[int64]bool)
	var out []int64
	for _, v := range in {
		if v <= 0 {
			continue
		}
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (k *Kernel) stateFor(underlyingID string, intervalMs int64) *intervalState {
	byInterval, ok := k.state[underlyingID]
	if !ok {
		byInterval = make(map[int64]*intervalState)
		k.state[underlyingID] = byInterval
	}
	s, ok := byInterval[intervalMs]
	if !ok {
		s = newIntervalState(intervalMs)
		byInterval[intervalMs] = s
	}
	return s
}

// Ingest folds print into every configured interval per §4.3 and returns
// the candles emitted as a result (windows whose watermark has closed)
// plus the number of intervals for which this print was dropped as late.
//
// The admission rule is intentionally order-dependent: once a builder
// exists for a window it keeps admitting late prints, but an equally late
// print cannot open a new builder. This is preserved as specified (§9
// open question) and is not "fixed" here.
func (k *Kernel) Ingest(print model.Print) Result {
	k.mu.Lock()
	defer k.mu.Unlock()

	var result Result

	for _, intervalMs := range k.intervalsMs {
		s := k.stateFor(print.UnderlyingID, intervalMs)

		if print.Ts > s.lastTsSeen {
			s.lastTsSeen = print.Ts
		}
		w := s.watermark(k.maxLateMs)

		windowStart := floorDiv(print.Ts, intervalMs) * intervalMs
		windowEnd := windowStart + intervalMs

		builder, exists := s.builders[windowStart]
		if !exists {
			if windowEnd <= w {
				result.DroppedLate++
			} else {
				s.builders[windowStart] = newWindowBuilder(print, windowStart, intervalMs)
			}
		} else {
			builder.fold(print)
		}

		for _, closedStart := range s.closedWindowStarts(w) {
			closed := s.builders[closedStart]
			delete(s.builders, closedStart)
			result.Emitted = append(result.Emitted, closed.toCandle())
		}
	}

	return result
}

// floorDiv computes floor(a / b) for positive b, matching the window_start
// formula of §3/§4.3 (a is always a non-negative event timestamp in this
// system).
func floorDiv(a, b int64) int64 {
	if a >= 0 {
		return a / b
	}
	q := a / b
	if a%b != 0 {
		q--
	}
	return q
}

// Drain emits every remaining builder across all IntervalStates,
// per-state sorted by window_start ascending, and clears all state. No
// watermark check. A subsequent Drain call returns an empty result
// (idempotence).
func (k *Kernel) Drain() []model.Candle {
	k.mu.Lock()
	defer k.mu.Unlock()

	var emitted []model.Candle
	for _, byInterval := range k.state {
		for _, s := range byInterval {
			for _, start := range s.allWindowStarts() {
				emitted = append(emitted, s.builders[start].toCandle())
			}
			s.builders = make(map[int64]*windowBuilder)
		}
	}
	return emitted
}

// OpenWindowCount reports the number of currently open builders across
// every (symbol, interval) pair, used to feed the open_windows gauge.
func (k *Kernel) OpenWindowCount() int {
	k.mu.Lock()
	defer k.mu.Unlock()

	count := 0
	for _, byInterval := range k.state {
		for _, s := range byInterval {
			count += len(s.builders)
		}
	}
	return count
}
