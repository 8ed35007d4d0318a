package ingest

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/equitystream/equitystream/internal/metrics"
)

// dropLogger batches throttle-gate drop counts into one summary log line
// per five-second window, adapted from the teacher's
// pkg/batcher.MessageBatcher timer/flush shape with the multi-consumer
// queueing and gzip compression stripped out: there is exactly one
// producer (the throttle gate) and the payload is a count, not a message
// batch.
type dropLogger struct {
	logger *zap.Logger
	m      *metrics.Metrics
	kind   string

	mu      sync.Mutex
	count   int
	timer   *time.Timer
	window  time.Duration
	onFlush func(count int)
}

func newDropLogger(logger *zap.Logger, m *metrics.Metrics, kind string) *dropLogger {
	return &dropLogger{
		logger: logger,
		m:      m,
		kind:   kind,
		window: 5 * time.Second,
	}
}

// Record increments the drop count and schedules a flush if one isn't
// already pending.
func (d *dropLogger) Record() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.count++
	d.m.ThrottleDropped.WithLabelValues(d.kind).Inc()

	if d.timer == nil {
		d.timer = time.AfterFunc(d.window, d.flush)
	}
}

func (d *dropLogger) flush() {
	d.mu.Lock()
	count := d.count
	d.count = 0
	d.timer = nil
	d.mu.Unlock()

	if count == 0 {
		return
	}
	d.logger.Info("throttle dropped events", zap.String("kind", d.kind), zap.Int("count", count))
}

// Close flushes any pending count immediately.
func (d *dropLogger) Close() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()
	d.flush()
}
