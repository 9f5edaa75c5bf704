// Package publisher provides the general-purpose audit emitter. By default
// it writes synchronously; WithAsyncBuffer moves persistence onto a worker.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	audit "screener/pkg/platform/audit"
	"screener/pkg/platform/audit/worker"
)

var (
	ErrBufferFull = errors.New("audit buffer full")
	ErrClosed     = errors.New("audit publisher closed")
)

type Publisher struct {
	store  audit.Store
	logger *slog.Logger
	now    func() time.Time

	bufferSize int
	inbox      chan audit.Event
	done       chan struct{}

	mu     sync.RWMutex
	closed bool
}

type Option func(*Publisher)

// WithAsyncBuffer enables asynchronous persistence with a buffer of n events.
func WithAsyncBuffer(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.bufferSize = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = l
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		if now != nil {
			p.now = now
		}
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	if p.bufferSize > 0 {
		p.inbox = make(chan audit.Event, p.bufferSize)
		p.done = make(chan struct{})
		w := worker.NewWorker(store, p.inbox, p.logger)
		go func() {
			defer close(p.done)
			w.Run(context.Background())
		}()
	}
	return p
}

// Emit records event. In async mode it returns ErrBufferFull instead of
// blocking when the buffer is saturated.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	event.Normalize(p.now)

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	if p.inbox == nil {
		if err := p.store.Append(ctx, event); err != nil {
			return fmt.Errorf("append audit event: %w", err)
		}
		return nil
	}

	select {
	case p.inbox <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrBufferFull
	}
}

// List returns the events recorded for a request when the store can read.
func (p *Publisher) List(ctx context.Context, requestID string) ([]audit.Event, error) {
	r, ok := p.store.(audit.Reader)
	if !ok {
		return nil, fmt.Errorf("audit store %T does not support listing", p.store)
	}
	return r.ListByRequest(ctx, requestID)
}

// Close stops accepting events and, in async mode, waits for the buffer to
// drain.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	if p.inbox != nil {
		close(p.inbox)
		<-p.done
	}
	return nil
}
