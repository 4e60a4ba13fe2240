package peerstore

import (
	"context"
	"errors"
	"sync"
	"time"

	retry "github.com/avast/retry-go/v4"
	"go.uber.org/zap"
)

var ErrWriterClosed = errors.New("peerstore: writer closed")

// AsyncWriter saves snapshots on a background goroutine. Only the latest
// pending snapshot is kept: a newer Write replaces one not yet saved.
type AsyncWriter struct {
	store    Store
	log      *zap.Logger
	attempts uint
	delay    time.Duration
	timeout  time.Duration

	mu     sync.Mutex
	closed bool
	queue  chan []byte
	done   chan struct{}
}

type WriterOption func(*AsyncWriter)

// WithRetry sets how often a failed save is attempted and the base delay
// between attempts.
func WithRetry(attempts uint, delay time.Duration) WriterOption {
	return func(w *AsyncWriter) {
		w.attempts = attempts
		w.delay = delay
	}
}

// WithSaveTimeout bounds each save attempt.
func WithSaveTimeout(d time.Duration) WriterOption {
	return func(w *AsyncWriter) { w.timeout = d }
}

func NewAsyncWriter(store Store, log *zap.Logger, opts ...WriterOption) *AsyncWriter {
	if log == nil {
		log = zap.NewNop()
	}
	w := &AsyncWriter{
		store:    store,
		log:      log,
		attempts: 3,
		delay:    100 * time.Millisecond,
		timeout:  5 * time.Second,
		queue:    make(chan []byte, 1),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	go w.run()
	return w
}

// Write queues data and returns immediately.
func (w *AsyncWriter) Write(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWriterClosed
	}
	select {
	case w.queue <- data:
		return nil
	default:
	}
	select {
	case <-w.queue:
	default:
	}
	w.queue <- data
	return nil
}

func (w *AsyncWriter) run() {
	defer close(w.done)
	for data := range w.queue {
		err := retry.Do(
			func() error {
				ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
				defer cancel()
				return w.store.Save(ctx, data)
			},
			retry.Attempts(w.attempts),
			retry.Delay(w.delay),
			retry.LastErrorOnly(true),
		)
		if err != nil {
			w.log.Warn("peer snapshot not saved", zap.Int("bytes", len(data)), zap.Error(err))
			continue
		}
		w.log.Debug("peer snapshot saved", zap.Int("bytes", len(data)))
	}
}

// Close stops accepting writes and waits for the pending one to be saved.
func (w *AsyncWriter) Close() error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()
	<-w.done
	return nil
}
