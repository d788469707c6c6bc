package assistant

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/megasecretaria/megasecretaria/internal/logging"
)

const (
	// DefaultMaxConcurrency bounds how many senders are processed at once.
	DefaultMaxConcurrency = 4

	// DefaultWorkerBuffer is the per-sender backlog before Enqueue rejects.
	DefaultWorkerBuffer = 16

	// DefaultIdleTimeout is how long a sender's worker waits for more
	// messages before exiting.
	DefaultIdleTimeout = 5 * time.Minute

	// DefaultTaskTimeout bounds the processing of one message.
	DefaultTaskTimeout = 2 * time.Minute
)

var (
	// ErrQueueClosed is returned by Enqueue after Close.
	ErrQueueClosed = errors.New("queue is closed")

	// ErrQueueFull is returned when a sender's backlog is full.
	ErrQueueFull = errors.New("sender queue is full")
)

// Handler processes one message.
type Handler interface {
	Handle(ctx context.Context, msg Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg Message) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, msg Message) error { return f(ctx, msg) }

// QueueConfig holds the worker pool settings. Zero values select the defaults.
type QueueConfig struct {
	MaxConcurrency int
	WorkerBuffer   int
	IdleTimeout    time.Duration
	TaskTimeout    time.Duration
	Logger         *slog.Logger
}

// Queue serializes messages per sender and runs senders in parallel.
type Queue struct {
	handler Handler
	cfg     QueueConfig
	logger  *slog.Logger

	sem chan struct{}

	mu      sync.Mutex
	workers map[string]*worker
	closed  bool
	wg      sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

type worker struct {
	jobs chan Message
}

// NewQueue creates a Queue that feeds handler.
func NewQueue(handler Handler, cfg QueueConfig) *Queue {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultMaxConcurrency
	}
	if cfg.WorkerBuffer <= 0 {
		cfg.WorkerBuffer = DefaultWorkerBuffer
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = DefaultTaskTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		handler: handler,
		cfg:     cfg,
		logger:  logging.WithService(cfg.Logger, "queue"),
		sem:     make(chan struct{}, cfg.MaxConcurrency),
		workers: make(map[string]*worker),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Enqueue schedules msg on its sender's worker, starting one if needed.
// An empty ID is replaced with a new UUID, which is returned.
func (q *Queue) Enqueue(msg Message) (string, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now()
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return "", ErrQueueClosed
	}

	w, ok := q.workers[msg.Sender]
	if !ok {
		w = &worker{jobs: make(chan Message, q.cfg.WorkerBuffer)}
		q.workers[msg.Sender] = w
		q.wg.Add(1)
		go q.run(msg.Sender, w)
	}

	select {
	case w.jobs <- msg:
		return msg.ID, nil
	default:
		return "", ErrQueueFull
	}
}

// Active returns the number of running sender workers.
func (q *Queue) Active() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.workers)
}

func (q *Queue) run(sender string, w *worker) {
	defer q.wg.Done()

	idle := time.NewTimer(q.cfg.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case msg := <-w.jobs:
			q.process(msg)
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(q.cfg.IdleTimeout)

		case <-idle.C:
			q.mu.Lock()
			// A message may have arrived between the timer firing and the lock.
			if len(w.jobs) > 0 {
				q.mu.Unlock()
				idle.Reset(q.cfg.IdleTimeout)
				continue
			}
			delete(q.workers, sender)
			q.mu.Unlock()
			return

		case <-q.ctx.Done():
			q.drain(w)
			return
		}
	}
}

// drain processes messages still buffered when the queue closes.
func (q *Queue) drain(w *worker) {
	for {
		select {
		case msg := <-w.jobs:
			q.process(msg)
		default:
			return
		}
	}
}

func (q *Queue) process(msg Message) {
	q.sem <- struct{}{}
	defer func() { <-q.sem }()

	ctx, cancel := context.WithTimeout(context.Background(), q.cfg.TaskTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("message handler panicked",
				logging.SenderHash(msg.Sender),
				logging.RequestID(msg.ID),
				slog.Any("panic", r))
		}
	}()

	if err := q.handler.Handle(ctx, msg); err != nil {
		q.logger.Warn("message handling failed",
			logging.SenderHash(msg.Sender),
			logging.RequestID(msg.ID),
			logging.Err(err))
	}
}

// Close stops accepting messages, lets workers finish their backlog and
// waits for them until ctx is done.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	q.cancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
