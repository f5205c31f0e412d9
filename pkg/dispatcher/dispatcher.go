package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/morezero/action-invoker/pkg/invoke"
	"github.com/morezero/action-invoker/pkg/messages"
	"github.com/morezero/action-invoker/pkg/transport"
)

const logPrefix = "dispatcher:dispatch"

// HealthOutput is the result of the health method.
type HealthOutput struct {
	Status    string          `json:"status"`
	Checks    map[string]bool `json:"checks"`
	Timestamp string          `json:"timestamp"`
}

// HealthCheck reports a named dependency's status.
type HealthCheck func(ctx context.Context) error

// Dispatcher routes COMMS requests to invoker methods. Every request gets
// its own Invoker and message sink so messages never leak between callers.
type Dispatcher struct {
	cfg    invoke.Config
	checks map[string]HealthCheck
}

// NewDispatcher creates a new Dispatcher. cfg.Sink is ignored.
func NewDispatcher(cfg invoke.Config, checks map[string]HealthCheck) *Dispatcher {
	return &Dispatcher{cfg: cfg, checks: checks}
}

// Dispatch routes a request to the appropriate invoker method and returns a response.
func (d *Dispatcher) Dispatch(ctx context.Context, req *InvokerRequest) *InvokerResponse {
	slog.Debug(fmt.Sprintf("%s - method=%s id=%s", logPrefix, req.Method, req.ID))

	switch req.Method {
	case "invokeBoundAction":
		return d.handleBoundAction(ctx, req)
	case "invokeActionImport":
		return d.handleActionImport(ctx, req)
	case "invokeBoundFunction":
		return d.handleBoundFunction(ctx, req)
	case "invokeFunctionImport":
		return d.handleFunctionImport(ctx, req)
	case "health":
		return &InvokerResponse{ID: req.ID, Ok: true, Result: d.Health(ctx)}
	default:
		return &InvokerResponse{
			ID: req.ID,
			Ok: false,
			Error: &ErrorDetail{
				Code:      "METHOD_NOT_FOUND",
				Message:   fmt.Sprintf("Unknown method: %s", req.Method),
				Retryable: false,
			},
		}
	}
}

// Health runs every registered check.
func (d *Dispatcher) Health(ctx context.Context) *HealthOutput {
	out := &HealthOutput{
		Status:    "healthy",
		Checks:    make(map[string]bool, len(d.checks)),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	for name, check := range d.checks {
		err := check(ctx)
		out.Checks[name] = err == nil
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - health check %s failed: %v", logPrefix, name, err))
			out.Status = "unhealthy"
		}
	}
	return out
}

func (d *Dispatcher) newInvoker() (*invoke.Invoker, *messages.MemorySink) {
	sink := messages.NewMemorySink()
	cfg := d.cfg
	cfg.Sink = sink
	return invoke.New(cfg), sink
}

func (d *Dispatcher) handleBoundAction(ctx context.Context, req *InvokerRequest) *InvokerResponse {
	var params BoundActionParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, "INVALID_ARGUMENT", "Failed to parse invokeBoundAction params", false)
	}
	grouping, err := parseGrouping(params.Grouping)
	if err != nil {
		return errorResponse(req.ID, "INVALID_ARGUMENT", err.Error(), false)
	}

	inv, sink := d.newInvoker()
	records, err := inv.InvokeBoundAction(ctx, params.Action, params.Contexts, invoke.Options{
		Parameters:           params.Parameters,
		SelectExpand:         params.SelectExpand,
		Grouping:             grouping,
		SideEffects:          params.SideEffects,
		SkipDialogIfComplete: params.SkipDialogIfComplete,
		Label:                params.Label,
	})
	result := &BoundActionResult{Records: toRecords(records), Messages: sink.AllMessages()}

	var partial *invoke.PartialFailureError
	if errors.As(err, &partial) {
		detail := toErrorDetail(partial.First)
		detail.Message = partial.Error()
		detail.Details = result
		return &InvokerResponse{ID: req.ID, Ok: false, Error: detail}
	}
	if err != nil {
		return invokeErrorToResponse(req.ID, err)
	}
	return &InvokerResponse{ID: req.ID, Ok: true, Result: result}
}

func (d *Dispatcher) handleActionImport(ctx context.Context, req *InvokerRequest) *InvokerResponse {
	var params ActionImportParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, "INVALID_ARGUMENT", "Failed to parse invokeActionImport params", false)
	}

	inv, sink := d.newInvoker()
	value, err := inv.InvokeActionImport(ctx, params.Action, invoke.Options{
		Parameters:           params.Parameters,
		SkipDialogIfComplete: params.SkipDialogIfComplete,
		Label:                params.Label,
	})
	return valueResponse(req.ID, value, sink, err)
}

func (d *Dispatcher) handleBoundFunction(ctx context.Context, req *InvokerRequest) *InvokerResponse {
	var params BoundFunctionParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, "INVALID_ARGUMENT", "Failed to parse invokeBoundFunction params", false)
	}

	inv, sink := d.newInvoker()
	value, err := inv.InvokeBoundFunction(ctx, params.Function, params.Target)
	return valueResponse(req.ID, value, sink, err)
}

func (d *Dispatcher) handleFunctionImport(ctx context.Context, req *InvokerRequest) *InvokerResponse {
	var params FunctionImportParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, "INVALID_ARGUMENT", "Failed to parse invokeFunctionImport params", false)
	}

	inv, sink := d.newInvoker()
	value, err := inv.InvokeFunctionImport(ctx, params.Function)
	return valueResponse(req.ID, value, sink, err)
}

func parseGrouping(s string) (invoke.Grouping, error) {
	switch invoke.Grouping(s) {
	case "":
		return invoke.Isolated, nil
	case invoke.Isolated, invoke.ChangeSet:
		return invoke.Grouping(s), nil
	default:
		return "", fmt.Errorf("unknown grouping %q", s)
	}
}

func valueResponse(id string, value interface{}, sink messages.Sink, err error) *InvokerResponse {
	if err != nil {
		return invokeErrorToResponse(id, err)
	}
	return &InvokerResponse{ID: id, Ok: true, Result: &ValueResult{Value: value, Messages: sink.AllMessages()}}
}

func toRecords(records []invoke.SettlementRecord) []Record {
	out := make([]Record, len(records))
	for i, r := range records {
		rec := Record{Status: r.Status, Value: r.Value}
		if r.Context != nil {
			rec.Path = r.Context.Path
		}
		if r.Reason != nil {
			rec.Error = toErrorDetail(r.Reason)
		}
		out[i] = rec
	}
	return out
}

func errorResponse(id, code, message string, retryable bool) *InvokerResponse {
	return &InvokerResponse{
		ID: id,
		Ok: false,
		Error: &ErrorDetail{
			Code:      code,
			Message:   message,
			Retryable: retryable,
		},
	}
}

func invokeErrorToResponse(id string, err error) *InvokerResponse {
	return &InvokerResponse{ID: id, Ok: false, Error: toErrorDetail(err)}
}

// toErrorDetail maps an invocation error to its wire form. Only failures
// that never reached a backend verdict are retryable.
func toErrorDetail(err error) *ErrorDetail {
	var ie *invoke.Error
	if !errors.As(err, &ie) {
		return &ErrorDetail{Code: "INTERNAL_ERROR", Message: err.Error(), Retryable: true}
	}
	detail := &ErrorDetail{Code: ie.Code, Message: ie.Message}
	if ie.Cause != nil {
		detail.Message = fmt.Sprintf("%s: %v", ie.Message, ie.Cause)
	}
	if msgs := transport.MessagesOf(err); len(msgs) > 0 {
		detail.Details = map[string]interface{}{"messages": msgs}
	}
	if ie.Code == invoke.CodeOperationFailed {
		var backendErr *transport.BackendError
		var preErr *transport.PreconditionFailedError
		detail.Retryable = !errors.As(err, &backendErr) && !errors.As(err, &preErr)
	}
	return detail
}
