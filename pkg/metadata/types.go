// Package metadata resolves operation metadata into invocation descriptors.
package metadata

import (
	"context"
	"errors"
)

// Operation kinds.
const (
	KindAction   = "action"
	KindFunction = "function"
)

// ErrNotFound is returned when an operation is absent from metadata.
var ErrNotFound = errors.New("operation not found in metadata")

// ParameterMetadata describes one declared parameter, binding parameter included.
type ParameterMetadata struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	IsCollection bool   `json:"isCollection,omitempty"`
}

// OperationMetadata is what a Provider knows about an action or function.
type OperationMetadata struct {
	Name string `json:"name"`
	// Kind is KindAction or KindFunction.
	Kind    string `json:"kind"`
	IsBound bool   `json:"isBound"`
	// Parameters lists every declared parameter; for bound operations the
	// first entry is the binding parameter.
	Parameters         []ParameterMetadata `json:"parameters"`
	IsCollectionReturn bool                `json:"isCollectionReturn,omitempty"`
	// Critical is the literal criticality flag.
	Critical bool `json:"critical,omitempty"`
	// CriticalityPath, when set, overrides Critical. It is relative to the
	// binding parameter, e.g. "_it/IsCritical".
	CriticalityPath string `json:"criticalityPath,omitempty"`
}

// Provider looks up operation metadata by reference.
type Provider interface {
	GetOperationMetadata(ctx context.Context, name string) (*OperationMetadata, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, name string) (*OperationMetadata, error)

// GetOperationMetadata calls f.
func (f ProviderFunc) GetOperationMetadata(ctx context.Context, name string) (*OperationMetadata, error) {
	return f(ctx, name)
}
