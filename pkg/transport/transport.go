// Package transport defines the batched operation transport the invoker
// submits calls through, and a NATS implementation of it.
package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/morezero/action-invoker/pkg/entity"
	"github.com/morezero/action-invoker/pkg/messages"
)

// AutoGroupPrefix marks groups the transport submits on its own.
const AutoGroupPrefix = "$auto"

// CodePreconditionFailed is the backend result code for a failed precondition.
const CodePreconditionFailed = "PRECONDITION_FAILED"

// ErrClosed is returned for calls still queued when the transport closes.
var ErrClosed = errors.New("transport closed")

// IsAutoGroup reports whether groupID is submitted without an explicit SubmitGroup.
func IsAutoGroup(groupID string) bool {
	return groupID == AutoGroupPrefix || strings.HasPrefix(groupID, AutoGroupPrefix+".")
}

// BindOptions carries the per-call payload of a bound operation.
type BindOptions struct {
	SelectExpand string
	Parameters   map[string]interface{}
}

// Transport binds operations and submits the groups they are queued in.
type Transport interface {
	Bind(path string, target *entity.Context, opts BindOptions) OperationHandle
	SubmitGroup(ctx context.Context, groupID string) error
}

// OperationHandle is one bound operation ready to be executed.
type OperationHandle interface {
	// Execute queues the call in groupID. It never blocks on the network.
	// With strict set, the backend reports warnings as a precondition failure.
	Execute(ctx context.Context, groupID string, strict bool) *Call
}

// Result is a successful operation response.
type Result struct {
	Value    interface{}
	Messages []messages.Message
}

// Call is the pending outcome of one executed operation.
type Call struct {
	ID string

	once   sync.Once
	done   chan struct{}
	result *Result
	err    error
}

// NewPendingCall creates an unsettled call.
func NewPendingCall(id string) *Call {
	return &Call{ID: id, done: make(chan struct{})}
}

// Resolve settles the call successfully. Later settlements are ignored.
func (c *Call) Resolve(r *Result) {
	c.once.Do(func() {
		if r == nil {
			r = &Result{}
		}
		c.result = r
		close(c.done)
	})
}

// Reject settles the call with err. Later settlements are ignored.
func (c *Call) Reject(err error) {
	c.once.Do(func() {
		c.err = err
		close(c.done)
	})
}

// Done is closed once the call settles.
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the call settles or ctx is done.
func (c *Call) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-c.done:
		return c.result, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// PreconditionFailedError is a strict-mode rejection carrying the persistent
// warnings the caller may acknowledge.
type PreconditionFailedError struct {
	Messages []messages.Message
}

func (e *PreconditionFailedError) Error() string {
	if len(e.Messages) == 0 {
		return "precondition failed"
	}
	return fmt.Sprintf("precondition failed: %s", e.Messages[0].Message)
}

// BackendError is any other failed operation response.
type BackendError struct {
	Code     string
	Message  string
	Messages []messages.Message
}

func (e *BackendError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// MessagesOf returns the backend messages attached to err, if any.
func MessagesOf(err error) []messages.Message {
	var pf *PreconditionFailedError
	if errors.As(err, &pf) {
		return pf.Messages
	}
	var be *BackendError
	if errors.As(err, &be) {
		return be.Messages
	}
	return nil
}
