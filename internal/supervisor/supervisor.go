// Package supervisor runs long-lived worker goroutines with retry,
// exponential backoff, and panic recovery, adapted from the teacher's
// internal/supervisor.Supervisor. The teacher's WorkerConfig was keyed by
// Exchange/Symbol for per-venue-connector workers; this pipeline instead
// supervises a small number of named pipeline stages (the ingest
// adapter, the bus consume loop), so those two fields collapse into one
// generic Label used only for logging.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// WorkerFunc is a supervised long-running task. It should block until
// ctx is cancelled or a fatal error occurs.
type WorkerFunc func(ctx context.Context) error

// WorkerConfig configures one supervised worker's identity and retry
// policy.
type WorkerConfig struct {
	Name           string
	Label          string
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
}

// WorkerStatus is the current lifecycle state of a supervised worker.
type WorkerStatus string

const (
	StatusStopped  WorkerStatus = "stopped"
	StatusStarting WorkerStatus = "starting"
	StatusRunning  WorkerStatus = "running"
	StatusRetrying WorkerStatus = "retrying"
	StatusFailed   WorkerStatus = "failed"
)

type worker struct {
	config    WorkerConfig
	fn        WorkerFunc
	cancel    context.CancelFunc
	retries   int
	lastError error
	status    WorkerStatus
	startTime time.Time
	mu        sync.RWMutex
}

func (w *worker) setStatus(s WorkerStatus) {
	w.mu.Lock()
	w.status = s
	w.mu.Unlock()
}

// Supervisor runs and restarts a fixed set of workers added before Start.
type Supervisor struct {
	workers map[string]*worker
	logger  *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	started bool
}

// New builds a Supervisor bound to logger.
func New(logger *zap.Logger) *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		workers: make(map[string]*worker),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// AddWorker registers a worker. Must be called before Start.
func (s *Supervisor) AddWorker(cfg WorkerConfig, fn WorkerFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("cannot add worker while supervisor is running")
	}
	if _, exists := s.workers[cfg.Name]; exists {
		return fmt.Errorf("worker %s already exists", cfg.Name)
	}

	s.workers[cfg.Name] = &worker{config: cfg, fn: fn, status: StatusStopped}
	s.logger.Info("worker added", zap.String("name", cfg.Name), zap.String("label", cfg.Label))
	return nil
}

// Start launches every registered worker in its own goroutine.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("supervisor already started")
	}
	s.started = true

	s.logger.Info("starting supervisor", zap.Int("workers", len(s.workers)))
	for name, w := range s.workers {
		s.wg.Add(1)
		go s.run(name, w)
	}
	return nil
}

// Stop cancels all workers and waits up to 30s for them to exit.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return fmt.Errorf("supervisor not started")
	}
	s.mu.Unlock()

	s.logger.Info("stopping supervisor")
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("all workers stopped")
	case <-time.After(30 * time.Second):
		s.logger.Warn("timeout waiting for workers to stop")
	}

	s.mu.Lock()
	s.started = false
	s.mu.Unlock()
	return nil
}

func (s *Supervisor) run(name string, w *worker) {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(s.ctx)
	w.cancel = cancel
	defer cancel()

	logger := s.logger.With(zap.String("worker", name), zap.String("label", w.config.Label))

	for {
		select {
		case <-s.ctx.Done():
			w.setStatus(StatusStopped)
			return
		default:
		}

		if w.config.MaxRetries > 0 && w.retries >= w.config.MaxRetries {
			w.setStatus(StatusFailed)
			logger.Error("worker failed after max retries", zap.Int("retries", w.retries), zap.Error(w.lastError))
			return
		}

		w.setStatus(StatusStarting)
		w.startTime = time.Now()

		err := s.execute(ctx, w, logger)

		if err == nil {
			w.setStatus(StatusStopped)
			logger.Info("worker exited cleanly")
			return
		}
		if err == context.Canceled {
			w.setStatus(StatusStopped)
			return
		}

		w.lastError = err
		w.retries++
		w.setStatus(StatusRetrying)
		logger.Error("worker failed", zap.Error(err), zap.Int("retries", w.retries))

		backoff := calculateBackoff(w.retries, w.config)
		select {
		case <-time.After(backoff):
		case <-s.ctx.Done():
			w.setStatus(StatusStopped)
			return
		}
	}
}

func (s *Supervisor) execute(ctx context.Context, w *worker, logger *zap.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("worker panicked", zap.Any("panic", r))
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	w.setStatus(StatusRunning)
	return w.fn(ctx)
}

func calculateBackoff(retries int, cfg WorkerConfig) time.Duration {
	backoff := cfg.InitialBackoff
	for i := 0; i < retries-1; i++ {
		backoff = time.Duration(float64(backoff) * cfg.BackoffFactor)
		if backoff > cfg.MaxBackoff {
			return cfg.MaxBackoff
		}
	}
	return backoff
}
