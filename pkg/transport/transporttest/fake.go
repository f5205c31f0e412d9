// Package transporttest provides an in-memory transport for tests.
package transporttest

import (
	"context"
	"fmt"
	"sync"

	"github.com/morezero/action-invoker/pkg/entity"
	"github.com/morezero/action-invoker/pkg/transport"
)

// Recorded is one executed call as seen by the fake.
type Recorded struct {
	Path    string
	Target  *entity.Context
	Options transport.BindOptions
	GroupID string
	Strict  bool
	Call    *transport.Call
}

// Responder decides the outcome of a recorded call.
type Responder func(r Recorded) (*transport.Result, error)

// Fake is a goroutine-safe transport.Transport. Calls in auto groups settle
// as soon as they are executed, others when their group is submitted.
// In Manual mode nothing settles until Flush.
type Fake struct {
	Responder Responder
	Manual    bool
	// SubmitErr, when set, is returned by SubmitGroup.
	SubmitErr error

	mu        sync.Mutex
	calls     []Recorded
	submitted []string
	events    []string
	pending   map[string][]Recorded
	order     []string
}

// New creates a Fake answering with responder; nil resolves every call empty.
func New(responder Responder) *Fake {
	return &Fake{Responder: responder}
}

// Bind implements transport.Transport.
func (f *Fake) Bind(path string, target *entity.Context, opts transport.BindOptions) transport.OperationHandle {
	return &handle{f: f, path: path, target: target, opts: opts}
}

type handle struct {
	f      *Fake
	path   string
	target *entity.Context
	opts   transport.BindOptions
}

func (h *handle) Execute(_ context.Context, groupID string, strict bool) *transport.Call {
	f := h.f
	f.mu.Lock()
	rec := Recorded{
		Path:    h.path,
		Target:  h.target,
		Options: h.opts,
		GroupID: groupID,
		Strict:  strict,
		Call:    transport.NewPendingCall(fmt.Sprintf("call-%d", len(f.calls)+1)),
	}
	f.calls = append(f.calls, rec)
	f.events = append(f.events, "execute "+label(rec))
	settleNow := !f.Manual && transport.IsAutoGroup(groupID)
	if !settleNow {
		if f.pending == nil {
			f.pending = map[string][]Recorded{}
		}
		if _, ok := f.pending[groupID]; !ok {
			f.order = append(f.order, groupID)
		}
		f.pending[groupID] = append(f.pending[groupID], rec)
	}
	f.mu.Unlock()

	if settleNow {
		f.settle(rec)
	}
	return rec.Call
}

// SubmitGroup implements transport.Transport.
func (f *Fake) SubmitGroup(_ context.Context, groupID string) error {
	f.mu.Lock()
	f.submitted = append(f.submitted, groupID)
	if f.SubmitErr != nil {
		err := f.SubmitErr
		f.mu.Unlock()
		return err
	}
	var ready []Recorded
	if !f.Manual {
		ready = f.takeLocked(groupID)
	}
	f.mu.Unlock()

	for _, rec := range ready {
		f.settle(rec)
	}
	return nil
}

// Flush settles every pending call, group by group in first-use order.
func (f *Fake) Flush() {
	f.mu.Lock()
	var ready []Recorded
	for _, g := range append([]string(nil), f.order...) {
		ready = append(ready, f.takeLocked(g)...)
	}
	f.mu.Unlock()
	for _, rec := range ready {
		f.settle(rec)
	}
}

func (f *Fake) takeLocked(groupID string) []Recorded {
	ready := f.pending[groupID]
	delete(f.pending, groupID)
	for i, g := range f.order {
		if g == groupID {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	return ready
}

func (f *Fake) settle(rec Recorded) {
	var (
		res *transport.Result
		err error
	)
	if f.Responder != nil {
		res, err = f.Responder(rec)
	}

	f.mu.Lock()
	f.events = append(f.events, "settle "+label(rec))
	f.mu.Unlock()

	if err != nil {
		rec.Call.Reject(err)
		return
	}
	rec.Call.Resolve(res)
}

// Calls returns every executed call in order.
func (f *Fake) Calls() []Recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Recorded(nil), f.calls...)
}

// CallsTo returns the executed calls whose path is path.
func (f *Fake) CallsTo(path string) []Recorded {
	var out []Recorded
	for _, c := range f.Calls() {
		if c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

// Submitted returns the group ids passed to SubmitGroup in order.
func (f *Fake) Submitted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.submitted...)
}

// Events returns the "execute <path>@<target>" and "settle ..." log in order.
func (f *Fake) Events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func label(r Recorded) string {
	if r.Target == nil {
		return r.Path
	}
	return r.Path + "@" + r.Target.Path
}
