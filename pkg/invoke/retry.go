package invoke

import (
	"sync"

	"github.com/morezero/action-invoker/pkg/entity"
	"github.com/morezero/action-invoker/pkg/messages"
)

// Phase is the strict-handling state of one top-level invocation.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseFirstPass
	PhaseRetryPass
)

func (p Phase) String() string {
	switch p {
	case PhaseFirstPass:
		return "FirstPass"
	case PhaseRetryPass:
		return "RetryPass"
	default:
		return "Idle"
	}
}

// retryEntry is one context whose first-pass call failed a precondition.
type retryEntry struct {
	index   int
	context *entity.Context
	groupID string
	// warnings are the non-success messages to be acknowledged.
	warnings []messages.Message
}

// RetryState tracks precondition failures across one invocation so that at
// most one retry pass is run. It must not be shared by concurrent
// invocations. The zero value is ready to use.
type RetryState struct {
	mu      sync.Mutex
	phase   Phase
	pending []retryEntry
	seen    map[string]struct{}
	carried []messages.Message
}

// NewRetryState creates an idle RetryState.
func NewRetryState() *RetryState {
	return &RetryState{}
}

// Phase returns the current phase.
func (s *RetryState) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Pending returns the number of registered retries.
func (s *RetryState) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// begin enters FirstPass.
func (s *RetryState) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseIdle {
		return ErrRetryStateInUse
	}
	s.phase = PhaseFirstPass
	s.seen = make(map[string]struct{})
	return nil
}

// register records a first-pass precondition failure. Success messages of
// the same response are carried over to the retry pass, deduplicated by id.
// Warnings are not marked seen, so a recurring failure still publishes them.
// It refuses outside FirstPass, which makes a second failure final.
func (s *RetryState) register(entry retryEntry, msgs []messages.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseFirstPass {
		return false
	}
	success, other := messages.Split(msgs)
	for _, m := range success {
		if s.markLocked(m) {
			s.carried = append(s.carried, m)
		}
	}
	entry.warnings = other
	s.pending = append(s.pending, entry)
	return true
}

// takeRetries moves FirstPass to RetryPass and hands out the worklist and
// the carried messages. It returns nothing when no retry was registered.
func (s *RetryState) takeRetries() ([]retryEntry, []messages.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseFirstPass || len(s.pending) == 0 {
		return nil, nil
	}
	s.phase = PhaseRetryPass
	entries, carried := s.pending, s.carried
	s.pending, s.carried = nil, nil
	return entries, carried
}

// unseen filters out messages whose ids were already seen in this
// invocation and marks the rest. Messages without an id always pass.
func (s *RetryState) unseen(msgs []messages.Message) []messages.Message {
	if len(msgs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]messages.Message, 0, len(msgs))
	for _, m := range msgs {
		if s.markLocked(m) {
			out = append(out, m)
		}
	}
	return out
}

// markLocked records m as seen and reports whether it was new.
func (s *RetryState) markLocked(m messages.Message) bool {
	if m.ID == "" {
		return true
	}
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	if _, ok := s.seen[m.ID]; ok {
		return false
	}
	s.seen[m.ID] = struct{}{}
	return true
}

// Reset returns the state to Idle and drops everything recorded.
func (s *RetryState) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = PhaseIdle
	s.pending = nil
	s.seen = nil
	s.carried = nil
}
