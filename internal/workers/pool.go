// Package workers provides the bounded goroutine pool that dispatches
// optimization trials and walk-forward window sub-runs in parallel.
package workers

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	minWorkers = 1
	maxWorkers = 32
)

// Task is a unit of work submitted to a Pool.
type Task interface {
	Execute() error
}

// TaskFunc adapts a plain function into a Task.
type TaskFunc func() error

func (f TaskFunc) Execute() error { return f() }

// Pool manages a fixed-size set of worker goroutines draining a task queue.
type Pool struct {
	logger *zap.Logger
	config *PoolConfig

	taskQueue chan Task
	wg        sync.WaitGroup

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc

	metrics *PoolMetrics
}

// PoolConfig configures a Pool.
type PoolConfig struct {
	Name            string
	NumWorkers      int
	QueueSize       int
	TaskTimeout     time.Duration
	ShutdownTimeout time.Duration
	PanicRecovery   bool
}

// ClampWorkers bounds a requested worker count to the supported [1,32]
// range (spec §5 resource model).
func ClampWorkers(n int) int {
	if n < minWorkers {
		return minWorkers
	}
	if n > maxWorkers {
		return maxWorkers
	}
	return n
}

// DefaultPoolConfig returns sensible defaults for dispatching optimization
// trials: 64 queue slots per worker of headroom, generous task
// timeout since a single backtest over a large dataset can take seconds.
func DefaultPoolConfig(name string, numWorkers int) *PoolConfig {
	n := ClampWorkers(numWorkers)
	return &PoolConfig{
		Name:            name,
		NumWorkers:      n,
		QueueSize:       n * 64,
		TaskTimeout:     5 * time.Minute,
		ShutdownTimeout: 10 * time.Second,
		PanicRecovery:   true,
	}
}

// PoolMetrics tracks pool throughput and failure counts.
type PoolMetrics struct {
	TasksSubmitted int64
	TasksCompleted int64
	TasksFailed    int64
	TasksTimeout   int64
	PanicRecovered int64
}

// Snapshot returns a consistent read of the counters.
func (m *PoolMetrics) Snapshot() PoolStats {
	return PoolStats{
		TasksSubmitted: atomic.LoadInt64(&m.TasksSubmitted),
		TasksCompleted: atomic.LoadInt64(&m.TasksCompleted),
		TasksFailed:    atomic.LoadInt64(&m.TasksFailed),
		TasksTimeout:   atomic.LoadInt64(&m.TasksTimeout),
		PanicRecovered: atomic.LoadInt64(&m.PanicRecovered),
	}
}

// PoolStats is a point-in-time read of PoolMetrics.
type PoolStats struct {
	TasksSubmitted int64
	TasksCompleted int64
	TasksFailed    int64
	TasksTimeout   int64
	PanicRecovered int64
}

type worker struct {
	id     int
	pool   *Pool
	logger *zap.Logger
}

// NewPool creates a Pool; config.NumWorkers is clamped to [1,32].
func NewPool(logger *zap.Logger, config *PoolConfig) *Pool {
	if config == nil {
		config = DefaultPoolConfig("default", 4)
	}
	config.NumWorkers = ClampWorkers(config.NumWorkers)

	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		logger:    logger,
		config:    config,
		taskQueue: make(chan Task, config.QueueSize),
		ctx:       ctx,
		cancel:    cancel,
		metrics:   &PoolMetrics{},
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start() {
	if p.running.Swap(true) {
		return
	}
	if p.logger != nil {
		p.logger.Info("starting worker pool",
			zap.String("name", p.config.Name),
			zap.Int("workers", p.config.NumWorkers),
		)
	}
	for i := 0; i < p.config.NumWorkers; i++ {
		w := &worker{id: i, pool: p}
		if p.logger != nil {
			w.logger = p.logger.With(zap.Int("worker_id", i))
		}
		p.wg.Add(1)
		go w.run()
	}
}

func (w *worker) run() {
	defer w.pool.wg.Done()
	for {
		select {
		case <-w.pool.ctx.Done():
			return
		case task, ok := <-w.pool.taskQueue:
			if !ok {
				return
			}
			w.executeTask(task)
		}
	}
}

func (w *worker) executeTask(task Task) {
	ctx, cancel := context.WithTimeout(w.pool.ctx, w.pool.config.TaskTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		var err error
		if w.pool.config.PanicRecovery {
			defer func() {
				if r := recover(); r != nil {
					atomic.AddInt64(&w.pool.metrics.PanicRecovered, 1)
					if w.logger != nil {
						w.logger.Error("worker recovered from panic", zap.Any("panic", r))
					}
					err = &PanicError{Recovered: r}
				}
				done <- err
			}()
		}
		err = task.Execute()
		if !w.pool.config.PanicRecovery {
			done <- err
		}
	}()

	select {
	case err := <-done:
		if err != nil {
			atomic.AddInt64(&w.pool.metrics.TasksFailed, 1)
		} else {
			atomic.AddInt64(&w.pool.metrics.TasksCompleted, 1)
		}
	case <-ctx.Done():
		atomic.AddInt64(&w.pool.metrics.TasksTimeout, 1)
		if w.logger != nil {
			w.logger.Warn("task timed out", zap.Duration("timeout", w.pool.config.TaskTimeout))
		}
	}
}

// Submit enqueues a task without blocking the caller for its result.
func (p *Pool) Submit(task Task) error {
	if !p.running.Load() {
		return ErrPoolStopped
	}
	select {
	case p.taskQueue <- task:
		atomic.AddInt64(&p.metrics.TasksSubmitted, 1)
		return nil
	default:
		return ErrQueueFull
	}
}

// SubmitWait submits a task and blocks until it has run.
func (p *Pool) SubmitWait(task Task) error {
	if !p.running.Load() {
		return ErrPoolStopped
	}
	done := make(chan error, 1)
	wrapper := TaskFunc(func() error {
		err := task.Execute()
		done <- err
		return err
	})
	if err := p.Submit(wrapper); err != nil {
		return err
	}
	return <-done
}

// SubmitFunc submits a plain function as a Task.
func (p *Pool) SubmitFunc(fn func() error) error {
	return p.Submit(TaskFunc(fn))
}

// Stop signals all workers to exit and waits up to ShutdownTimeout.
func (p *Pool) Stop() error {
	if !p.running.Swap(false) {
		return nil
	}
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(p.config.ShutdownTimeout):
		return ErrShutdownTimeout
	}
}

// QueueLength reports the number of tasks currently queued.
func (p *Pool) QueueLength() int { return len(p.taskQueue) }

// IsRunning reports whether the pool has been started and not yet stopped.
func (p *Pool) IsRunning() bool { return p.running.Load() }

// Stats returns the pool's current counters.
func (p *Pool) Stats() PoolStats { return p.metrics.Snapshot() }

var (
	ErrPoolStopped     = &PoolError{Message: "pool is stopped"}
	ErrQueueFull       = &PoolError{Message: "task queue is full"}
	ErrShutdownTimeout = &PoolError{Message: "shutdown timed out"}
)

// PoolError is a sentinel pool-lifecycle error.
type PoolError struct{ Message string }

func (e *PoolError) Error() string { return e.Message }

// PanicError wraps a value recovered from a panicking task.
type PanicError struct{ Recovered interface{} }

func (e *PanicError) Error() string { return "panic recovered" }
