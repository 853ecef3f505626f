// Package audit delivers security and reliability events to an external
// sink without ever failing the caller. Delivery is wrapped in a circuit
// breaker; undeliverable events wait in a small bounded queue and are
// flushed when connectivity returns.
package audit

import (
	"strings"
	"time"
)

// Event is one audit record. Source and Message identify what happened;
// Stack carries diagnostic context for error-class events.
type Event struct {
	EventID      string    `json:"event_id"`
	Source       string    `json:"source"`
	Message      string    `json:"message"`
	Stack        string    `json:"stack,omitempty"`
	CitizenID    string    `json:"citizen_id,omitempty"`
	RequestID    string    `json:"request_id,omitempty"`
	DeviceFamily string    `json:"device_family,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// signature identifies an event for dedupe purposes: source, message and
// the first stack line. Repeated renders or retry loops produce the same
// signature and collapse into one delivery per cooldown window.
func (e Event) signature() string {
	firstLine := e.Stack
	if i := strings.IndexByte(firstLine, '\n'); i >= 0 {
		firstLine = firstLine[:i]
	}
	return e.Source + "|" + e.Message + "|" + firstLine
}
