// Package events fans auth events out to the configured audit sinks off the request path.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"marketplace-auth/internal/config"
	"marketplace-auth/internal/metrics"
	"marketplace-auth/internal/models"
)

type Sink interface {
	Name() string
	Write(ctx context.Context, event models.AuthEvent) error
}

// Emitter is what services depend on.
type Emitter interface {
	Emit(event models.AuthEvent)
}

// Publisher queues events and writes each one to every sink concurrently.
type Publisher struct {
	sinks   []Sink
	queue   chan models.AuthEvent
	timeout time.Duration
	now     func() time.Time
	logger  *zap.Logger

	mu      sync.RWMutex
	closed  bool
	started bool
	done    chan struct{}
}

func NewPublisher(cfg config.EventsConfig, logger *zap.Logger, sinks ...Sink) *Publisher {
	size := cfg.QueueSize
	if size <= 0 {
		size = 1024
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Publisher{
		sinks:   sinks,
		queue:   make(chan models.AuthEvent, size),
		timeout: timeout,
		now:     time.Now,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

func (p *Publisher) Sinks() []string {
	names := make([]string, len(p.sinks))
	for i, s := range p.sinks {
		names[i] = s.Name()
	}
	return names
}

// Start launches the single drain worker. It is a no-op after the first call.
func (p *Publisher) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true
	go p.run()
}

// Emit never blocks. A full queue drops the event.
func (p *Publisher) Emit(event models.AuthEvent) {
	if len(p.sinks) == 0 {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = p.now().UTC()
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- event:
	default:
		metrics.EventsDropped.Inc()
		p.logger.Warn("Auth event queue full, dropping event",
			zap.String("event_id", event.ID),
			zap.String("type", string(event.Type)))
	}
}

// Close stops intake and waits for queued events to drain, or for ctx to end.
func (p *Publisher) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	started := p.started
	close(p.queue)
	p.mu.Unlock()

	if !started {
		return nil
	}
	select {
	case <-p.done:
		p.logger.Info("Auth event publisher drained")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Publisher) run() {
	defer close(p.done)
	for event := range p.queue {
		p.deliver(event)
	}
}

func (p *Publisher) deliver(event models.AuthEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for _, sink := range p.sinks {
		g.Go(func() error {
			if err := sink.Write(gctx, event); err != nil {
				metrics.EventSinkErrors.WithLabelValues(sink.Name()).Inc()
				p.logger.Warn("Auth event sink write failed",
					zap.String("sink", sink.Name()),
					zap.String("event_id", event.ID),
					zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Discard is an Emitter that drops everything.
type Discard struct{}

func (Discard) Emit(models.AuthEvent) {}
