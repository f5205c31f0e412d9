package metadata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/morezero/action-invoker/pkg/entity"
)

const resolverLogPrefix = "metadata:resolver"

// ResolveInput holds parameters for Resolve.
type ResolveInput struct {
	Name string
	// Expect is the shape the caller invokes; a mismatch is reported as ErrNotFound.
	Expect Shape
	// Target is the first binding context, if any. Path-based criticality
	// is evaluated against it only.
	Target *entity.Context
}

// Resolve builds a fresh Descriptor for one invocation.
func Resolve(ctx context.Context, p Provider, input ResolveInput) (*Descriptor, error) {
	slog.Debug(fmt.Sprintf("%s - name=%s expect=%s", resolverLogPrefix, input.Name, input.Expect))

	md, err := p.GetOperationMetadata(ctx, input.Name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%s - metadata lookup for %s failed: %w", resolverLogPrefix, input.Name, err)
	}
	if md == nil {
		return nil, fmt.Errorf("%s - %s: %w", resolverLogPrefix, input.Name, ErrNotFound)
	}

	shape := shapeOf(md)
	if input.Expect != 0 && shape != input.Expect {
		return nil, fmt.Errorf("%s - %s is a %s, not a %s: %w", resolverLogPrefix, input.Name, shape, input.Expect, ErrNotFound)
	}

	params := md.Parameters
	var binding *ParameterMetadata
	if md.IsBound && len(params) > 0 {
		binding = &params[0]
		params = params[1:]
	}

	desc := &Descriptor{
		Name:              input.Name,
		Shape:             shape,
		Parameters:        make([]ParameterDefinition, len(params)),
		IsStatic:          binding != nil && binding.IsCollection,
		ReturnsCollection: md.IsCollectionReturn,
	}
	for i, pm := range params {
		desc.Parameters[i] = ParameterDefinition{Name: pm.Name, Type: pm.Type, IsCollection: pm.IsCollection}
	}
	desc.IsCritical = evaluateCriticality(md, binding, input.Target)
	return desc, nil
}

func shapeOf(md *OperationMetadata) Shape {
	isFunction := md.Kind == KindFunction
	switch {
	case md.IsBound && isFunction:
		return BoundFunction
	case md.IsBound:
		return BoundAction
	case isFunction:
		return UnboundFunction
	default:
		return UnboundAction
	}
}

func evaluateCriticality(md *OperationMetadata, binding *ParameterMetadata, target *entity.Context) bool {
	if md.CriticalityPath == "" {
		return md.Critical
	}
	if target == nil {
		return false
	}
	path := md.CriticalityPath
	if binding != nil {
		path = strings.TrimPrefix(path, binding.Name+"/")
	}
	return target.BoolProperty(path)
}
