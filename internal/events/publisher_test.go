package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"marketplace-auth/internal/config"
	"marketplace-auth/internal/models"
)

type recordingSink struct {
	name  string
	err   error
	block chan struct{}

	mu     sync.Mutex
	events []models.AuthEvent
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Write(ctx context.Context, event models.AuthEvent) error {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return s.err
}

func (s *recordingSink) received() []models.AuthEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.AuthEvent(nil), s.events...)
}

func TestPublisherFansOutToEverySink(t *testing.T) {
	a := &recordingSink{name: "a"}
	b := &recordingSink{name: "b", err: errors.New("down")}
	p := NewPublisher(config.EventsConfig{QueueSize: 8, Timeout: time.Second}, zap.NewNop(), a, b)
	p.Start()

	p.Emit(models.AuthEvent{Type: models.EventOTPIssued, Identifier: "a***@x.com"})
	p.Emit(models.AuthEvent{Type: models.EventUserLogin})
	require.NoError(t, p.Close(context.Background()))

	for _, sink := range []*recordingSink{a, b} {
		got := sink.received()
		require.Len(t, got, 2, sink.name)
		assert.Equal(t, models.EventOTPIssued, got[0].Type)
		assert.NotEmpty(t, got[0].ID)
		assert.False(t, got[0].OccurredAt.IsZero())
	}
	assert.Equal(t, []string{"a", "b"}, p.Sinks())
}

func TestPublisherDropsWhenFull(t *testing.T) {
	sink := &recordingSink{name: "slow", block: make(chan struct{})}
	p := NewPublisher(config.EventsConfig{QueueSize: 1, Timeout: time.Second}, zap.NewNop(), sink)

	// Not started, so nothing drains the queue.
	p.Emit(models.AuthEvent{ID: "1", Type: models.EventOTPIssued})
	p.Emit(models.AuthEvent{ID: "2", Type: models.EventOTPIssued})
	assert.Len(t, p.queue, 1)

	close(sink.block)
	p.Start()
	require.NoError(t, p.Close(context.Background()))
	got := sink.received()
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].ID)
}

func TestPublisherEmitAfterClose(t *testing.T) {
	sink := &recordingSink{name: "a"}
	p := NewPublisher(config.EventsConfig{}, zap.NewNop(), sink)
	p.Start()
	require.NoError(t, p.Close(context.Background()))
	require.NoError(t, p.Close(context.Background()))

	assert.NotPanics(t, func() { p.Emit(models.AuthEvent{Type: models.EventUserLogin}) })
	assert.Empty(t, sink.received())
}

func TestPublisherWithoutSinks(t *testing.T) {
	p := NewPublisher(config.EventsConfig{}, zap.NewNop())
	p.Start()
	p.Emit(models.AuthEvent{Type: models.EventUserLogin})
	assert.Empty(t, p.Sinks())
	assert.NoError(t, p.Close(context.Background()))
}
