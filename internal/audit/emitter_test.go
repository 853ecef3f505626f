package audit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civitas/internal/platform/metrics"
)

var testMetrics = metrics.New()

type fakeSink struct {
	mu        sync.Mutex
	fail      bool
	calls     int
	delivered []Event
}

func (s *fakeSink) Name() string { return "fake" }

func (s *fakeSink) Deliver(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.fail {
		return errors.New("sink down")
	}
	s.delivered = append(s.delivered, e)
	return nil
}

func (s *fakeSink) setFail(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fail
}

func (s *fakeSink) deliveredCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.delivered)
}

func (s *fakeSink) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newTestEmitter(sink Sink) (*Emitter, *time.Time) {
	e := NewEmitter(sink, slog.New(slog.NewTextHandler(io.Discard, nil)), testMetrics)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := &now
	e.now = func() time.Time { return *clock }
	return e, clock
}

func TestEmitter_DeliversAndDedupes(t *testing.T) {
	sink := &fakeSink{}
	emitter, clock := newTestEmitter(sink)
	ctx := context.Background()

	event := Event{Source: "heartbeat", Message: "store degraded", Stack: "line1\nline2"}

	emitter.Emit(ctx, event)
	emitter.Emit(ctx, event)
	emitter.Emit(ctx, event)
	assert.Equal(t, 1, sink.deliveredCount(), "duplicates within cooldown collapse")

	// Past the cooldown the same signature delivers again.
	*clock = clock.Add(6 * time.Second)
	emitter.Emit(ctx, event)
	assert.Equal(t, 2, sink.deliveredCount())

	// A different first stack line is a different signature.
	other := event
	other.Stack = "other\nline2"
	emitter.Emit(ctx, other)
	assert.Equal(t, 3, sink.deliveredCount())
}

func TestEmitter_QueuesOnFailureAndFlushesOnRecovery(t *testing.T) {
	sink := &fakeSink{fail: true}
	emitter, clock := newTestEmitter(sink)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		emitter.Emit(ctx, Event{Source: "grant", Message: fmt.Sprintf("event-%d", i)})
	}
	assert.Equal(t, 3, emitter.QueueDepth())
	assert.Zero(t, sink.deliveredCount())

	sink.setFail(false)
	*clock = clock.Add(10 * time.Second)
	emitter.Flush(ctx)

	assert.Zero(t, emitter.QueueDepth())
	require.Equal(t, 3, sink.deliveredCount())
	// Front-to-back: insertion order preserved.
	assert.Equal(t, "event-0", sink.delivered[0].Message)
	assert.Equal(t, "event-2", sink.delivered[2].Message)
}

func TestEmitter_CircuitOpensAfterConsecutiveFailures(t *testing.T) {
	sink := &fakeSink{fail: true}
	emitter, clock := newTestEmitter(sink)
	ctx := context.Background()

	for i := 0; i < breakerThreshold; i++ {
		emitter.Emit(ctx, Event{Source: "test", Message: fmt.Sprintf("fail-%d", i)})
	}
	require.Equal(t, breakerThreshold, sink.callCount())
	assert.True(t, emitter.breaker.open())

	// Open circuit: events queue without touching the sink.
	emitter.Emit(ctx, Event{Source: "test", Message: "while-open"})
	assert.Equal(t, breakerThreshold, sink.callCount())
	assert.Equal(t, breakerThreshold+1, emitter.QueueDepth())

	// After the cooldown the breaker half-opens and a probe goes through.
	sink.setFail(false)
	*clock = clock.Add(breakerCooldown + time.Second)
	emitter.Emit(ctx, Event{Source: "test", Message: "probe"})
	assert.Greater(t, sink.callCount(), breakerThreshold)
	assert.False(t, emitter.breaker.open())
	// Successful probe flushed the backlog too.
	assert.Zero(t, emitter.QueueDepth())
}

func TestQueue_CapDropsOldest(t *testing.T) {
	q := newQueue(3)

	for i := 0; i < 5; i++ {
		q.push(Event{Message: fmt.Sprintf("event-%d", i)})
	}

	assert.Equal(t, 3, q.len())
	assert.Equal(t, int64(2), q.droppedCount())

	first, ok := q.popFront()
	require.True(t, ok)
	assert.Equal(t, "event-2", first.Message, "oldest surviving event comes out first")
}

func TestQueue_PushFrontPreservesOrder(t *testing.T) {
	q := newQueue(3)
	q.push(Event{Message: "a"})
	q.push(Event{Message: "b"})

	front, ok := q.popFront()
	require.True(t, ok)
	q.pushFront(front)

	again, ok := q.popFront()
	require.True(t, ok)
	assert.Equal(t, "a", again.Message)
}

func TestEmitter_NilSinkDropsSilently(t *testing.T) {
	emitter, _ := newTestEmitter(nil)
	emitter.Emit(context.Background(), Event{Source: "test", Message: "no sink"})
	assert.Zero(t, emitter.QueueDepth())
}
