package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"cityrater/pkg/requestcontext"
)

const defaultBufferSize = 1024

// Sink delivers one event somewhere durable or observable.
type Sink interface {
	Write(ctx context.Context, e Event) error
}

// Publisher buffers events in a bounded channel and hands them to a sink
// from a single worker goroutine. Emit never blocks; a full buffer drops
// the event.
type Publisher struct {
	sink       Sink
	inbox      chan Event
	logger     *slog.Logger
	metrics    *Metrics
	bufferSize int
	done       chan struct{}
	closeOnce  sync.Once
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

func WithBufferSize(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.bufferSize = n
		}
	}
}

func NewPublisher(sink Sink, opts ...Option) *Publisher {
	p := &Publisher{
		sink:       sink,
		logger:     slog.Default(),
		bufferSize: defaultBufferSize,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.inbox = make(chan Event, p.bufferSize)
	return p
}

// Emit stamps and enqueues e. It reports whether the event was accepted.
func (p *Publisher) Emit(ctx context.Context, e Event) bool {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = requestcontext.Now(ctx)
	}
	if e.RequestID == "" {
		e.RequestID = requestcontext.RequestID(ctx)
	}
	select {
	case p.inbox <- e:
		return true
	default:
		if p.metrics != nil {
			p.metrics.Dropped.WithLabelValues(string(e.Type)).Inc()
		}
		p.logger.WarnContext(ctx, "event buffer full, dropping event",
			"event_type", e.Type,
			"request_id", e.RequestID,
		)
		return false
	}
}

// Run delivers events until ctx is cancelled, then drains what is already
// buffered using a short grace period.
func (p *Publisher) Run(ctx context.Context) {
	defer close(p.done)
	for {
		select {
		case <-ctx.Done():
			p.drain()
			return
		case e := <-p.inbox:
			p.deliver(ctx, e)
		}
	}
}

// Wait blocks until Run has returned.
func (p *Publisher) Wait() {
	<-p.done
}

func (p *Publisher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case e := <-p.inbox:
			p.deliver(ctx, e)
		default:
			return
		}
	}
}

func (p *Publisher) deliver(ctx context.Context, e Event) {
	if err := p.sink.Write(ctx, e); err != nil {
		if p.metrics != nil {
			p.metrics.Failed.WithLabelValues(string(e.Type)).Inc()
		}
		p.logger.ErrorContext(ctx, "failed to publish event",
			"event_id", e.ID,
			"event_type", e.Type,
			"request_id", e.RequestID,
			"error", err,
		)
		return
	}
	if p.metrics != nil {
		p.metrics.Published.WithLabelValues(string(e.Type)).Inc()
	}
}
