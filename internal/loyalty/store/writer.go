package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/loyalty/pkg/slogx"
)

type writeOp struct {
	key     string
	value   []byte
	remove  bool
	barrier chan struct{}
}

// Writer applies durable writes in the background, in the order they were
// queued. Callers never block on storage I/O; failures are logged.
type Writer struct {
	KV      KV
	Logger  *slog.Logger
	Timeout time.Duration

	mu      sync.Mutex
	queue   []writeOp
	started bool
	closed  bool

	// Internal channels for lifecycle management
	wake   chan struct{}
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewWriter creates a writer over kv. If timeout is 0 or negative, each write
// gets 5 seconds.
func NewWriter(kv KV, logger *slog.Logger, timeout time.Duration) *Writer {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &Writer{
		KV:      kv,
		Logger:  slogx.OrDiscard(logger),
		Timeout: timeout,
		wake:    make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start begins the background worker. Call Stop to drain and shut down.
func (w *Writer) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started || w.closed {
		return
	}
	w.started = true

	go w.run()
	w.Logger.Debug("durable writer started")
}

// Stop refuses new work, applies everything already queued and waits for the
// worker to exit. Safe to call more than once.
func (w *Writer) Stop() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	started := w.started
	w.mu.Unlock()

	close(w.stopCh)
	if started {
		<-w.doneCh
	}
	w.Logger.Debug("durable writer stopped")
}

// Put queues key=value.
func (w *Writer) Put(key string, value []byte) {
	w.enqueue(writeOp{key: key, value: value})
}

// Remove queues deletion of key.
func (w *Writer) Remove(key string) {
	w.enqueue(writeOp{key: key, remove: true})
}

// Flush waits until everything queued before the call has been applied.
func (w *Writer) Flush(ctx context.Context) error {
	done := make(chan struct{})
	if !w.enqueue(writeOp{barrier: done}) {
		// Stop already drained the queue.
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Writer) enqueue(op writeOp) bool {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		if op.barrier == nil {
			w.Logger.Warn("durable write dropped after shutdown", "key", op.key, "remove", op.remove)
		}
		return false
	}
	w.queue = append(w.queue, op)
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
	return true
}

// run is the main background worker loop.
func (w *Writer) run() {
	defer close(w.doneCh)

	for {
		select {
		case <-w.wake:
			w.drain()
		case <-w.stopCh:
			w.drain()
			return
		}
	}
}

func (w *Writer) drain() {
	for {
		w.mu.Lock()
		if len(w.queue) == 0 {
			w.mu.Unlock()
			return
		}
		op := w.queue[0]
		w.queue[0] = writeOp{}
		w.queue = w.queue[1:]
		w.mu.Unlock()

		w.apply(op)
	}
}

func (w *Writer) apply(op writeOp) {
	if op.barrier != nil {
		close(op.barrier)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.Timeout)
	defer cancel()

	var err error
	if op.remove {
		err = w.KV.Delete(ctx, op.key)
	} else {
		err = w.KV.Set(ctx, op.key, op.value)
	}

	if err != nil {
		w.Logger.Error("durable write failed", "key", op.key, "remove", op.remove, "error", err)
		return
	}
	w.Logger.Debug("durable write applied", "key", op.key, "remove", op.remove)
}
