package aggregator

import "sort"

// intervalState is the per (symbol, interval_ms) record of §3: the last
// observed ts (for the watermark) and a map from window_start to
// windowBuilder.
type intervalState struct {
	intervalMs int64
	lastTsSeen int64
	builders   map[int64]*windowBuilder
}

func newIntervalState(intervalMs int64) *intervalState {
	return &intervalState{
		intervalMs: intervalMs,
		builders:   make(map[int64]*windowBuilder),
	}
}

// watermark returns W = max(0, lastTsSeen - maxLateMs).
func (s *intervalState) watermark(maxLateMs int64) int64 {
	w := s.lastTsSeen - maxLateMs
	if w < 0 {
		return 0
	}
	return w
}

// closedWindowStarts returns, in ascending order, the window_start values
// of every builder whose window has closed under watermark w.
func (s *intervalState) closedWindowStarts(w int64) []int64 {
	var starts []int64
	for start := range s.builders {
		if start+s.intervalMs <= w {
			starts = append(starts, start)
		}
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })
	return starts
}

// allWindowStarts returns every builder's window_start in ascending
// order, used by drain which bypasses the watermark entirely.
func (s *intervalState) allWindowStarts() []int64 {
	starts := make([]int64, 0, len(s.builders))
	for start := range s.builders {
		starts = append(starts, start)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })
	return starts
}
