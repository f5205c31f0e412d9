package invoke

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/morezero/action-invoker/pkg/entity"
	"github.com/morezero/action-invoker/pkg/messages"
	"github.com/morezero/action-invoker/pkg/metadata"
	"github.com/morezero/action-invoker/pkg/sideeffects"
	"github.com/morezero/action-invoker/pkg/transport"
)

const executorLogPrefix = "invoke:executor"

// Execution is one in-flight operation against one context, side effects included.
type Execution struct {
	Context *entity.Context
	GroupID string
	Index   int

	call  *transport.Call
	done  chan struct{}
	value interface{}
	err   error
}

// Done is closed once the call and its side effects have settled.
func (e *Execution) Done() <-chan struct{} {
	return e.done
}

// Wait blocks until the execution settles or ctx is done.
func (e *Execution) Wait(ctx context.Context) (interface{}, error) {
	select {
	case <-e.done:
		return e.value, e.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *Execution) retryPending() bool {
	return errors.Is(e.err, ErrRetryPending)
}

// execRequest is everything one executor run needs.
type execRequest struct {
	desc         *metadata.Descriptor
	context      *entity.Context
	index        int
	groupID      string
	values       Values
	selectExpand string
	sideEffects  *sideeffects.Spec
	strict       bool
	retry        *RetryState
	invocationID string
}

// executor runs one operation against one context.
type executor struct {
	transport   transport.Transport
	sink        messages.Sink
	sideEffects *sideeffects.Requestor
}

// start binds and dispatches the call, then settles it in the background.
// It does not submit deferred groups; the scheduler does.
func (x *executor) start(ctx context.Context, req execRequest) *Execution {
	handle := x.transport.Bind(req.desc.Name, req.context, transport.BindOptions{
		SelectExpand: req.selectExpand,
		Parameters:   req.values.Map(),
	})
	call := handle.Execute(ctx, req.groupID, req.strict)
	exec := &Execution{Context: req.context, GroupID: req.groupID, Index: req.index, call: call, done: make(chan struct{})}

	// Side effects wait on the call themselves, so they are requested right away.
	sideDone := make(chan struct{})
	go func() {
		defer close(sideDone)
		if req.desc.Shape.IsAction() {
			x.sideEffects.Request(ctx, req.context, req.sideEffects, req.groupID, call)
		}
	}()

	go func() {
		defer close(exec.done)
		exec.value, exec.err = x.settle(ctx, req, call)
		if exec.err == nil {
			<-sideDone
		}
	}()
	return exec
}

// settle waits for the call and classifies its outcome.
func (x *executor) settle(ctx context.Context, req execRequest, call *transport.Call) (interface{}, error) {
	res, err := call.Wait(ctx)
	if err == nil {
		x.publish(req, res.Messages)
		slog.Debug(fmt.Sprintf("%s - [%s] %s on %s succeeded in %s", executorLogPrefix, req.invocationID, req.desc.Name, pathOf(req.context), req.groupID))
		return res.Value, nil
	}

	var pf *transport.PreconditionFailedError
	if errors.As(err, &pf) {
		if req.strict && req.retry.register(retryEntry{index: req.index, context: req.context, groupID: req.groupID}, pf.Messages) {
			slog.Info(fmt.Sprintf("%s - [%s] %s on %s failed a precondition, retry registered", executorLogPrefix, req.invocationID, req.desc.Name, pathOf(req.context)))
			return nil, ErrRetryPending
		}
		x.publish(req, pf.Messages)
		slog.Warn(fmt.Sprintf("%s - [%s] %s on %s failed a precondition again", executorLogPrefix, req.invocationID, req.desc.Name, pathOf(req.context)))
		return nil, newError(CodePreconditionFailed, fmt.Sprintf("%s on %s", req.desc.Name, pathOf(req.context)), err)
	}

	x.publish(req, transport.MessagesOf(err))
	slog.Warn(fmt.Sprintf("%s - [%s] %s on %s failed: %v", executorLogPrefix, req.invocationID, req.desc.Name, pathOf(req.context), err))
	return nil, newError(CodeOperationFailed, fmt.Sprintf("%s on %s", req.desc.Name, pathOf(req.context)), err)
}

func (x *executor) publish(req execRequest, msgs []messages.Message) {
	if fresh := req.retry.unseen(msgs); len(fresh) > 0 {
		x.sink.AddMessages(fresh)
	}
}

func pathOf(c *entity.Context) string {
	if c == nil {
		return "<unbound>"
	}
	return c.Path
}
