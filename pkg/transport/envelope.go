package transport

import (
	"encoding/json"

	"github.com/morezero/action-invoker/pkg/entity"
	"github.com/morezero/action-invoker/pkg/messages"
)

// BatchRequest is one submitted group, sent to the backend in a single request.
type BatchRequest struct {
	ID      string        `json:"id"`
	GroupID string        `json:"groupId"`
	Calls   []CallRequest `json:"calls"`
}

// CallRequest is one operation inside a batch.
type CallRequest struct {
	ID           string                 `json:"id"`
	Path         string                 `json:"path"`
	Target       *entity.Context        `json:"target,omitempty"`
	Params       map[string]interface{} `json:"params,omitempty"`
	SelectExpand string                 `json:"selectExpand,omitempty"`
	Strict       bool                   `json:"strict,omitempty"`
}

// BatchResponse carries one result per call of a BatchRequest.
type BatchResponse struct {
	ID      string       `json:"id"`
	Results []CallResult `json:"results"`
	// Error is set when the whole batch was refused.
	Error *ErrorDetail `json:"error,omitempty"`
}

// CallResult is the backend's answer to one CallRequest.
type CallResult struct {
	ID       string             `json:"id"`
	Ok       bool               `json:"ok"`
	Value    json.RawMessage    `json:"value,omitempty"`
	Error    *ErrorDetail       `json:"error,omitempty"`
	Messages []messages.Message `json:"messages,omitempty"`
}

// ErrorDetail describes a failed call or batch.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// settle applies r to call.
func (r *CallResult) settle(call *Call) {
	if r.Ok {
		var value interface{}
		if len(r.Value) > 0 {
			if err := json.Unmarshal(r.Value, &value); err != nil {
				call.Reject(&BackendError{Code: "INVALID_RESPONSE", Message: err.Error(), Messages: r.Messages})
				return
			}
		}
		call.Resolve(&Result{Value: value, Messages: r.Messages})
		return
	}

	detail := r.Error
	if detail == nil {
		detail = &ErrorDetail{Code: "UNKNOWN", Message: "operation failed"}
	}
	if detail.Code == CodePreconditionFailed && messages.HasPersistentFailure(r.Messages) {
		call.Reject(&PreconditionFailedError{Messages: r.Messages})
		return
	}
	call.Reject(&BackendError{Code: detail.Code, Message: detail.Message, Messages: r.Messages})
}
