package audit

import "sync"

// queue is the bounded FIFO holding events that could not be delivered.
// When full, the oldest event is dropped: recent events are worth more than
// old ones during a prolonged outage.
type queue struct {
	mu       sync.Mutex
	events   []Event
	capacity int
	dropped  int64
}

func newQueue(capacity int) *queue {
	if capacity <= 0 {
		capacity = 50
	}
	return &queue{capacity: capacity}
}

// push appends an event, dropping the oldest if at capacity. Returns the
// number of events dropped by this push (0 or 1).
func (q *queue) push(e Event) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	dropped := 0
	if len(q.events) >= q.capacity {
		q.events = q.events[1:]
		q.dropped++
		dropped = 1
	}
	q.events = append(q.events, e)
	return dropped
}

// popFront removes and returns the oldest event.
func (q *queue) popFront() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}
	e := q.events[0]
	q.events = q.events[1:]
	return e, true
}

// pushFront reinserts an event at the head after a failed flush attempt so
// front-to-back order is preserved. If the queue filled up in the meantime
// the newest event makes room.
func (q *queue) pushFront(e Event) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) >= q.capacity {
		q.events = q.events[:len(q.events)-1]
		q.dropped++
	}
	q.events = append([]Event{e}, q.events...)
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

func (q *queue) droppedCount() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
