// Package messages defines backend messages and the sink they are published to.
package messages

import "sync"

// Severity levels reported by the backend.
const (
	SeveritySuccess     = "success"
	SeverityInformation = "info"
	SeverityWarning     = "warning"
	SeverityError       = "error"
)

// Message is one backend message attached to an operation response.
type Message struct {
	ID       string `json:"id"`
	Code     string `json:"code,omitempty"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
	Target   string `json:"target,omitempty"`
	// Transition marks a persistent message, i.e. one bound to the state change.
	Transition bool `json:"transition,omitempty"`
}

// IsSuccess reports whether the message carries success severity.
func (m Message) IsSuccess() bool {
	return m.Severity == SeveritySuccess
}

// Sink receives the messages that become visible to the user.
type Sink interface {
	AddMessages(msgs []Message)
	AllMessages() []Message
}

// MemorySink is a goroutine-safe in-memory Sink.
type MemorySink struct {
	mu   sync.Mutex
	msgs []Message
}

// NewMemorySink creates an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// AddMessages appends msgs in order.
func (s *MemorySink) AddMessages(msgs []Message) {
	if len(msgs) == 0 {
		return
	}
	s.mu.Lock()
	s.msgs = append(s.msgs, msgs...)
	s.mu.Unlock()
}

// AllMessages returns a copy of every message added so far.
func (s *MemorySink) AllMessages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

// Split partitions msgs into success and non-success messages, preserving order.
func Split(msgs []Message) (success, other []Message) {
	for _, m := range msgs {
		if m.IsSuccess() {
			success = append(success, m)
		} else {
			other = append(other, m)
		}
	}
	return success, other
}

// HasPersistentFailure reports whether msgs contain a transition message that is not a success.
func HasPersistentFailure(msgs []Message) bool {
	for _, m := range msgs {
		if m.Transition && !m.IsSuccess() {
			return true
		}
	}
	return false
}
