package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"civitas/internal/platform/metrics"
)

const (
	// dedupeCooldown collapses identical event signatures emitted in quick
	// succession into a single delivery.
	dedupeCooldown = 5 * time.Second

	// queueCapacity bounds the offline queue.
	queueCapacity = 50

	// breakerThreshold / breakerCooldown tune the delivery circuit.
	breakerThreshold = 5
	breakerCooldown  = 30 * time.Second

	// deliveryTimeout bounds one sink call. Audit is fire-and-forget; a
	// slow sink must not hold request handlers hostage.
	deliveryTimeout = time.Second
)

// Sink delivers one event to an external system.
type Sink interface {
	Deliver(ctx context.Context, e Event) error
	Name() string
}

// Emitter is the audit entry point. Emit never returns an error: delivery
// failures are queued, deduplicated storms are dropped, and the caller's
// request proceeds regardless.
type Emitter struct {
	sink    Sink
	logger  *slog.Logger
	metrics *metrics.Metrics

	breaker *circuitBreaker
	queue   *queue

	mu       sync.Mutex
	lastSeen map[string]time.Time

	now func() time.Time
}

// NewEmitter creates an Emitter over the given sink. A nil sink is valid:
// events are logged and dropped (no sink configured).
func NewEmitter(sink Sink, logger *slog.Logger, met *metrics.Metrics) *Emitter {
	return &Emitter{
		sink:     sink,
		logger:   logger,
		metrics:  met,
		breaker:  newCircuitBreaker(breakerThreshold, breakerCooldown),
		queue:    newQueue(queueCapacity),
		lastSeen: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Emit records an audit event. Best effort: a duplicate within the cooldown
// is dropped, an open circuit queues immediately, a delivery failure queues
// and trips the breaker. The call is bounded by the delivery timeout.
func (e *Emitter) Emit(ctx context.Context, event Event) {
	now := e.now()
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}

	if e.isDuplicate(event, now) {
		return
	}

	e.logger.InfoContext(ctx, "audit event",
		"source", event.Source,
		"message", event.Message,
		"event_id", event.EventID,
		"request_id", event.RequestID,
		"log_type", "audit",
	)

	if e.sink == nil {
		return
	}

	if !e.breaker.allow(now) {
		e.enqueue(event)
		return
	}

	if err := e.deliver(ctx, event); err != nil {
		e.breaker.recordFailure(e.now())
		e.enqueue(event)
		e.logger.WarnContext(ctx, "audit delivery failed",
			"sink", e.sink.Name(),
			"error", err,
			"circuit_open", e.breaker.open(),
		)
		e.metrics.AuditCircuitOpen.Set(boolGauge(e.breaker.open()))
		return
	}

	e.breaker.recordSuccess()
	e.metrics.AuditCircuitOpen.Set(0)
	e.Flush(ctx)
}

// Flush re-attempts queued events front-to-back under the breaker
// discipline. It stops at the first failure or when the circuit opens.
// Called after a successful delivery and periodically by the worker.
func (e *Emitter) Flush(ctx context.Context) {
	for e.breaker.allow(e.now()) {
		event, ok := e.queue.popFront()
		if !ok {
			break
		}
		if err := e.deliver(ctx, event); err != nil {
			e.breaker.recordFailure(e.now())
			e.queue.pushFront(event)
			e.metrics.AuditCircuitOpen.Set(boolGauge(e.breaker.open()))
			break
		}
		e.breaker.recordSuccess()
	}
	e.metrics.AuditQueueDepth.Set(float64(e.queue.len()))
}

// QueueDepth reports the number of events awaiting delivery.
func (e *Emitter) QueueDepth() int {
	return e.queue.len()
}

func (e *Emitter) deliver(ctx context.Context, event Event) error {
	// Detach from the request's cancellation: the response does not wait
	// for the audit write, only the timeout bounds it.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliveryTimeout)
	defer cancel()
	return e.sink.Deliver(ctx, event)
}

func (e *Emitter) isDuplicate(event Event, now time.Time) bool {
	sig := event.signature()

	e.mu.Lock()
	defer e.mu.Unlock()

	if seen, ok := e.lastSeen[sig]; ok && now.Sub(seen) < dedupeCooldown {
		return true
	}
	e.lastSeen[sig] = now

	// Opportunistic pruning keeps the signature map from growing without
	// bound under varied traffic.
	if len(e.lastSeen) > 1024 {
		for k, v := range e.lastSeen {
			if now.Sub(v) >= dedupeCooldown {
				delete(e.lastSeen, k)
			}
		}
	}
	return false
}

func (e *Emitter) enqueue(event Event) {
	if dropped := e.queue.push(event); dropped > 0 {
		e.metrics.AuditEventsDropped.Inc()
	}
	e.metrics.AuditQueueDepth.Set(float64(e.queue.len()))
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
