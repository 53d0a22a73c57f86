package notify

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// QueueConfig configures a Queue.
type QueueConfig struct {
	// Size is the number of events buffered before new ones are dropped. Default: 256.
	Size int
	// DrainTimeout bounds how long Close waits for buffered events. Default: 5s.
	DrainTimeout time.Duration
	Logger       *slog.Logger
}

func (c *QueueConfig) defaults() {
	if c.Size <= 0 {
		c.Size = 256
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Queue delivers events to a sink from its own goroutine. Send never
// waits on the sink: when the buffer is full the event is dropped and
// counted, the way Hub treats a slow subscriber.
type Queue struct {
	sink   Sink
	cfg    QueueConfig
	ch     chan Event
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

// NewQueue starts delivering to s.
func NewQueue(s Sink, cfg QueueConfig) *Queue {
	cfg.defaults()
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		sink:   s,
		cfg:    cfg,
		ch:     make(chan Event, cfg.Size),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
	go q.run()
	return q
}

func (q *Queue) run() {
	defer close(q.done)
	for ev := range q.ch {
		if err := q.sink.Send(q.ctx, ev); err != nil {
			q.cfg.Logger.Warn("notify: send failed", "type", ev.Type, "error", err)
		}
	}
}

// Dropped returns how many events were lost to a full buffer.
func (q *Queue) Dropped() int64 { return q.dropped.Load() }

func (q *Queue) Send(_ context.Context, ev Event) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return nil
	}
	select {
	case q.ch <- ev:
	default:
		if q.dropped.Add(1) == 1 {
			q.cfg.Logger.Warn("notify: queue full, dropping events", "type", ev.Type)
		}
	}
	return nil
}

// Close delivers what is buffered, cancelling in-flight sends after
// DrainTimeout, then closes the sink.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	select {
	case <-q.done:
	case <-time.After(q.cfg.DrainTimeout):
		q.cancel()
		<-q.done
	}
	q.cancel()
	return q.sink.Close()
}
