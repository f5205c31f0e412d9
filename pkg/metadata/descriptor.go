package metadata

// Shape is the closed set of operation forms the engine dispatches on.
type Shape int

const (
	BoundAction Shape = iota + 1
	UnboundAction
	BoundFunction
	UnboundFunction
)

// String returns the shape name.
func (s Shape) String() string {
	switch s {
	case BoundAction:
		return "BoundAction"
	case UnboundAction:
		return "UnboundAction"
	case BoundFunction:
		return "BoundFunction"
	case UnboundFunction:
		return "UnboundFunction"
	default:
		return "Unknown"
	}
}

// IsBound reports whether the shape takes a binding context.
func (s Shape) IsBound() bool { return s == BoundAction || s == BoundFunction }

// IsAction reports whether the shape is a write operation.
func (s Shape) IsAction() bool { return s == BoundAction || s == UnboundAction }

// ActiveEntityParameter is the synthetic draft flag some actions declare.
// It is never collected from the user.
const ActiveEntityParameter = "ResultIsActiveEntity"

// ParameterDefinition is an exposed (non-binding) parameter.
type ParameterDefinition struct {
	Name         string
	Type         string
	IsCollection bool
}

// Descriptor is the per-invocation view of one operation.
type Descriptor struct {
	// Name is the reference the caller used.
	Name  string
	Shape Shape
	// Parameters excludes the binding parameter.
	Parameters        []ParameterDefinition
	IsCritical        bool
	IsStatic          bool
	ReturnsCollection bool
}

// OnlyActiveEntityFlag reports whether the sole parameter is the synthetic draft flag.
func (d *Descriptor) OnlyActiveEntityFlag() bool {
	return len(d.Parameters) == 1 && d.Parameters[0].Name == ActiveEntityParameter
}

// Parameter returns the definition named name.
func (d *Descriptor) Parameter(name string) (ParameterDefinition, bool) {
	for _, p := range d.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return ParameterDefinition{}, false
}
