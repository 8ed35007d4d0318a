package ingest

import (
	"sync"
	"time"
)

// ThrottleGate admits an event only if at least throttleMs has elapsed
// since the last admission for its kind. Grounded on the teacher's
// OHLCVCandleGenerator.publishThrottle map (publishThrottle map[string]
// time.Time, throttleMutex sync.Mutex), generalised from a single
// per-candle-key gate to one gate per event kind as §4.2 requires
// ("separate gates per event kind").
type ThrottleGate struct {
	enabled    bool
	throttleMs int64

	mu        sync.Mutex
	lastAdmit map[string]time.Time
}

// NewThrottleGate builds a gate. When enabled is false every event is
// admitted regardless of throttleMs.
func NewThrottleGate(enabled bool, throttleMs int64) *ThrottleGate {
	return &ThrottleGate{
		enabled:    enabled,
		throttleMs: throttleMs,
		lastAdmit:  make(map[string]time.Time),
	}
}

// Admit reports whether an event of the given kind may proceed now.
func (g *ThrottleGate) Admit(kind string, now time.Time) bool {
	if !g.enabled {
		return true
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	last, ok := g.lastAdmit[kind]
	if ok && now.Sub(last) < time.Duration(g.throttleMs)*time.Millisecond {
		return false
	}
	g.lastAdmit[kind] = now
	return true
}
