package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/haasonsaas/llama-agent/internal/observability"
)

// Config bounds the queue's capacity and timeouts.
type Config struct {
	MaxQueueSize   int           `yaml:"max_queue_size"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// WorkerThreads exists for future extension; the core semantics
	// assume a single mutator of the model handle and this MUST be <= 1.
	WorkerThreads int `yaml:"worker_threads"`
}

// DefaultConfig returns the queue's default tuning.
func DefaultConfig() Config {
	return Config{MaxQueueSize: 100, RequestTimeout: 30 * time.Second, WorkerThreads: 1}
}

func (c Config) normalized() (Config, error) {
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = 100
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.WorkerThreads == 0 {
		c.WorkerThreads = 1
	}
	if c.WorkerThreads > 1 {
		return c, fmt.Errorf("queue: worker_threads must be <= 1, got %d", c.WorkerThreads)
	}
	return c, nil
}

// Queue is the bounded single-worker request scheduler in front of one
// Engine.
type Queue struct {
	cfg     Config
	engine  Engine
	logger  *slog.Logger
	metrics *observability.Metrics

	ch chan queuedRequest

	depth     atomic.Int64
	peakDepth atomic.Int64
	busy      atomic.Bool

	shuttingDown atomic.Bool
	stopped      chan struct{}
	wg           sync.WaitGroup

	ewmaMu  sync.Mutex
	ewmaTPS float64
}

// New constructs a Queue bound to engine. Start must be called before
// Submit.
func New(cfg Config, engine Engine, metrics *observability.Metrics, logger *slog.Logger) (*Queue, error) {
	normalized, err := cfg.normalized()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NewMetrics()
	}
	return &Queue{
		cfg:     normalized,
		engine:  engine,
		logger:  logger.With("component", "queue"),
		metrics: metrics,
		ch:      make(chan queuedRequest, normalized.MaxQueueSize),
		stopped: make(chan struct{}),
	}, nil
}

// Start launches the single worker goroutine.
func (q *Queue) Start() {
	q.wg.Add(1)
	go q.run()
}

// Stop flips the shutdown flag, stops accepting submissions, and waits
// up to drainTimeout for the worker to finish draining before
// returning. Requests still queued when drainTimeout elapses are left
// for the worker to fail with ErrShuttingDown as it reaches them.
func (q *Queue) Stop(drainTimeout time.Duration) {
	if !q.shuttingDown.CompareAndSwap(false, true) {
		return
	}
	close(q.ch)

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(drainTimeout):
		q.logger.Warn("shutdown drain timeout elapsed, worker still running")
	}
	close(q.stopped)
}

// Submit enqueues a BatchRequest, failing immediately with QueueFull if
// the channel is at capacity or ShuttingDown if Stop has been called.
func (q *Queue) Submit(req *BatchRequest) error {
	if q.shuttingDown.Load() {
		return errShuttingDown()
	}
	select {
	case q.ch <- queuedRequest{batch: req}:
		q.onEnqueue()
		return nil
	default:
		q.metrics.QueueRejected.Inc()
		return errQueueFull(q.cfg.MaxQueueSize)
	}
}

// SubmitStreaming enqueues a StreamingRequest.
func (q *Queue) SubmitStreaming(req *StreamingRequest) error {
	if q.shuttingDown.Load() {
		return errShuttingDown()
	}
	select {
	case q.ch <- queuedRequest{streaming: req}:
		q.onEnqueue()
		return nil
	default:
		q.metrics.QueueRejected.Inc()
		return errQueueFull(q.cfg.MaxQueueSize)
	}
}

func (q *Queue) onEnqueue() {
	q.metrics.QueueSubmitted.Inc()
	depth := q.depth.Add(1)
	q.metrics.QueueDepth.Set(float64(depth))
	for {
		peak := q.peakDepth.Load()
		if depth <= peak || q.peakDepth.CompareAndSwap(peak, depth) {
			break
		}
	}
	q.metrics.QueuePeakDepth.Set(float64(q.peakDepth.Load()))
}

func (q *Queue) run() {
	defer q.wg.Done()
	for qr := range q.ch {
		q.depth.Add(-1)
		q.metrics.QueueDepth.Set(float64(q.depth.Load()))
		select {
		case <-q.stopped:
			// The drain timeout has elapsed: fail what is still queued.
			if qr.batch != nil {
				qr.batch.reply <- batchResult{err: errShuttingDown()}
			} else {
				qr.streaming.setErr(errShuttingDown())
				close(qr.streaming.Chunks)
			}
			continue
		default:
		}
		q.process(qr)
	}
}

func (q *Queue) process(qr queuedRequest) {
	q.busy.Store(true)
	defer q.busy.Store(false)

	ctx, cancel := context.WithTimeout(qr.ctx(), q.cfg.RequestTimeout)
	defer cancel()

	w := &worker{engine: q.engine, logger: q.logger, metrics: q.metrics, recordTPS: q.recordTPS}

	if qr.batch != nil {
		resp, err := w.runBatch(ctx, qr.params())
		q.recordOutcome(err)
		qr.batch.reply <- batchResult{resp: resp, err: err}
		return
	}

	err := w.runStreaming(ctx, qr.params(), qr.streaming)
	q.recordOutcome(err)
	qr.streaming.setErr(err)
	close(qr.streaming.Chunks)
}

func (q *Queue) recordOutcome(err error) {
	switch e := err.(type) {
	case nil:
		q.metrics.QueueCompleted.Inc()
	case *Error:
		switch e.Kind {
		case ErrTimeout:
			q.metrics.QueueTimedOut.Inc()
		case ErrCancelled:
			q.metrics.QueueCancelled.Inc()
		default:
			q.metrics.QueueFailed.Inc()
		}
	default:
		q.metrics.QueueFailed.Inc()
	}
}

// recordTPS folds one request's throughput sample into an exponential
// moving average (alpha=0.3).
func (q *Queue) recordTPS(tokens uint32, elapsed time.Duration) {
	if elapsed <= 0 || tokens == 0 {
		return
	}
	sample := float64(tokens) / elapsed.Seconds()
	const alpha = 0.3
	q.ewmaMu.Lock()
	if q.ewmaTPS == 0 {
		q.ewmaTPS = sample
	} else {
		q.ewmaTPS = alpha*sample + (1-alpha)*q.ewmaTPS
	}
	q.metrics.TokensPerSecond.Set(q.ewmaTPS)
	q.ewmaMu.Unlock()
}

// Depth returns the current number of requests waiting (not counting
// the one being processed).
func (q *Queue) Depth() int { return int(q.depth.Load()) }

// Busy reports whether the worker is currently decoding a request.
func (q *Queue) Busy() bool { return q.busy.Load() }
