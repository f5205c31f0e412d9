// Package dispatcher routes incoming COMMS messages to invoker methods.
package dispatcher

import (
	"encoding/json"

	"github.com/morezero/action-invoker/pkg/entity"
	"github.com/morezero/action-invoker/pkg/messages"
	"github.com/morezero/action-invoker/pkg/sideeffects"
)

// InvokerRequest is the JSON envelope for incoming COMMS invoker requests.
type InvokerRequest struct {
	ID     string             `json:"id"`
	Type   string             `json:"type"`
	Method string             `json:"method"`
	Params json.RawMessage    `json:"params"`
	Ctx    *InvocationContext `json:"ctx,omitempty"`
}

// InvokerResponse is the JSON envelope for COMMS invoker responses.
type InvokerResponse struct {
	ID     string       `json:"id"`
	Ok     bool         `json:"ok"`
	Result interface{}  `json:"result,omitempty"`
	Error  *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail holds structured error information.
type ErrorDetail struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
	Retryable bool        `json:"retryable"`
}

// InvocationContext holds context from the caller.
type InvocationContext struct {
	UserID        string `json:"userId,omitempty"`
	RequestID     string `json:"requestId,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
	DeadlineMs    int    `json:"deadlineMs,omitempty"`
	TimeoutMs     int    `json:"timeoutMs,omitempty"`
}

// BoundActionParams are the params of invokeBoundAction.
type BoundActionParams struct {
	Action               string                 `json:"action"`
	Contexts             []*entity.Context      `json:"contexts"`
	Parameters           map[string]interface{} `json:"parameters,omitempty"`
	SelectExpand         string                 `json:"selectExpand,omitempty"`
	Grouping             string                 `json:"grouping,omitempty"`
	SideEffects          *sideeffects.Spec      `json:"sideEffects,omitempty"`
	SkipDialogIfComplete bool                   `json:"skipDialogIfComplete,omitempty"`
	Label                string                 `json:"label,omitempty"`
}

// ActionImportParams are the params of invokeActionImport.
type ActionImportParams struct {
	Action               string                 `json:"action"`
	Parameters           map[string]interface{} `json:"parameters,omitempty"`
	SkipDialogIfComplete bool                   `json:"skipDialogIfComplete,omitempty"`
	Label                string                 `json:"label,omitempty"`
}

// BoundFunctionParams are the params of invokeBoundFunction.
type BoundFunctionParams struct {
	Function string          `json:"function"`
	Target   *entity.Context `json:"target"`
}

// FunctionImportParams are the params of invokeFunctionImport.
type FunctionImportParams struct {
	Function string `json:"function"`
}

// Record is the wire form of one settlement record.
type Record struct {
	Path   string       `json:"path,omitempty"`
	Status string       `json:"status"`
	Value  interface{}  `json:"value,omitempty"`
	Error  *ErrorDetail `json:"error,omitempty"`
}

// BoundActionResult is the result of invokeBoundAction. On a partial
// failure it travels in ErrorDetail.Details instead.
type BoundActionResult struct {
	Records  []Record           `json:"records"`
	Messages []messages.Message `json:"messages,omitempty"`
}

// ValueResult is the result of the single-value methods.
type ValueResult struct {
	Value    interface{}        `json:"value,omitempty"`
	Messages []messages.Message `json:"messages,omitempty"`
}
