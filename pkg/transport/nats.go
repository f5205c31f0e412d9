package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/action-invoker/pkg/commsutil"
	"github.com/morezero/action-invoker/pkg/entity"
)

const logPrefix = "transport:nats"

// NATSTransportOpts configures NATSTransport. Zero values use defaults.
type NATSTransportOpts struct {
	// Subject is the backend batch subject.
	Subject string
	// RequestTimeout bounds one batch request.
	RequestTimeout time.Duration
	// AutoSubmitDelay is how long an auto group collects calls before it is sent.
	AutoSubmitDelay time.Duration
}

// NATSTransport queues calls per group and sends each submitted group as one
// request/reply round trip to the backend subject.
type NATSTransport struct {
	nc      *comms.Conn
	subject string
	timeout time.Duration
	delay   time.Duration

	mu     sync.Mutex
	groups map[string]*pendingGroup
	closed bool
}

type pendingGroup struct {
	calls []queuedCall
	timer *time.Timer
}

type queuedCall struct {
	req  CallRequest
	call *Call
}

// NewNATSTransport creates a transport over nc.
func NewNATSTransport(nc *comms.Conn, opts NATSTransportOpts) *NATSTransport {
	t := &NATSTransport{
		nc:      nc,
		subject: opts.Subject,
		timeout: opts.RequestTimeout,
		delay:   opts.AutoSubmitDelay,
		groups:  make(map[string]*pendingGroup),
	}
	if t.subject == "" {
		t.subject = commsutil.SubjectBackend
	}
	if t.timeout <= 0 {
		t.timeout = 30 * time.Second
	}
	if t.delay <= 0 {
		t.delay = 5 * time.Millisecond
	}
	return t
}

// Bind implements Transport.
func (t *NATSTransport) Bind(path string, target *entity.Context, opts BindOptions) OperationHandle {
	return &natsHandle{t: t, path: path, target: target, opts: opts}
}

type natsHandle struct {
	t      *NATSTransport
	path   string
	target *entity.Context
	opts   BindOptions
}

// Execute implements OperationHandle.
func (h *natsHandle) Execute(_ context.Context, groupID string, strict bool) *Call {
	call := NewPendingCall(uuid.NewString())
	h.t.enqueue(groupID, queuedCall{
		req: CallRequest{
			ID:           call.ID,
			Path:         h.path,
			Target:       h.target,
			Params:       h.opts.Parameters,
			SelectExpand: h.opts.SelectExpand,
			Strict:       strict,
		},
		call: call,
	})
	return call
}

func (t *NATSTransport) enqueue(groupID string, qc queuedCall) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		qc.call.Reject(ErrClosed)
		return
	}
	g, ok := t.groups[groupID]
	if !ok {
		g = &pendingGroup{}
		t.groups[groupID] = g
	}
	g.calls = append(g.calls, qc)

	if IsAutoGroup(groupID) && g.timer == nil {
		g.timer = time.AfterFunc(t.delay, func() {
			if err := t.SubmitGroup(context.Background(), groupID); err != nil {
				slog.Warn(fmt.Sprintf("%s - auto submit of %s failed: %v", logPrefix, groupID, err))
			}
		})
	}
}

// take removes and returns the queued calls of groupID.
func (t *NATSTransport) take(groupID string) []queuedCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	g, ok := t.groups[groupID]
	if !ok {
		return nil
	}
	delete(t.groups, groupID)
	if g.timer != nil {
		g.timer.Stop()
	}
	return g.calls
}

// SubmitGroup sends every call queued in groupID as one batch and settles
// them from the response. Submitting an empty group is a no-op.
func (t *NATSTransport) SubmitGroup(ctx context.Context, groupID string) error {
	queued := t.take(groupID)
	if len(queued) == 0 {
		return nil
	}

	req := BatchRequest{ID: uuid.NewString(), GroupID: groupID, Calls: make([]CallRequest, len(queued))}
	for i, qc := range queued {
		req.Calls[i] = qc.req
	}
	slog.Debug(fmt.Sprintf("%s - Submitting batch %s group=%s calls=%d", logPrefix, req.ID, groupID, len(queued)))

	reqCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	var resp BatchResponse
	if err := commsutil.RequestJSON(reqCtx, t.nc, t.subject, req, &resp); err != nil {
		err = fmt.Errorf("%s - batch %s (group %s): %w", logPrefix, req.ID, groupID, err)
		for _, qc := range queued {
			qc.call.Reject(err)
		}
		return err
	}
	if resp.Error != nil {
		err := &BackendError{Code: resp.Error.Code, Message: resp.Error.Message}
		for _, qc := range queued {
			qc.call.Reject(err)
		}
		return fmt.Errorf("%s - batch %s refused: %w", logPrefix, req.ID, err)
	}

	byID := make(map[string]*CallResult, len(resp.Results))
	for i := range resp.Results {
		byID[resp.Results[i].ID] = &resp.Results[i]
	}
	for _, qc := range queued {
		r, ok := byID[qc.req.ID]
		if !ok {
			qc.call.Reject(&BackendError{Code: "MISSING_RESULT", Message: fmt.Sprintf("no result for call %s", qc.req.ID)})
			continue
		}
		r.settle(qc.call)
	}
	return nil
}

// Close rejects every queued call with ErrClosed. Later calls are rejected immediately.
func (t *NATSTransport) Close() {
	t.mu.Lock()
	groups := t.groups
	t.groups = make(map[string]*pendingGroup)
	t.closed = true
	t.mu.Unlock()

	for id, g := range groups {
		if g.timer != nil {
			g.timer.Stop()
		}
		for _, qc := range g.calls {
			qc.call.Reject(ErrClosed)
		}
		slog.Info(fmt.Sprintf("%s - Dropped %d queued calls of group %s on close", logPrefix, len(g.calls), id))
	}
}
