package invoke

import "github.com/morezero/action-invoker/pkg/metadata"

// Decision is the outcome of the parameter readiness check.
type Decision struct {
	// Parameters is true when a parameter dialog must be shown.
	Parameters bool
	// Confirmation is true when no dialog is needed but the operation is
	// critical. It is never set together with Parameters.
	Confirmation bool
}

// NeedsDialog decides whether parameters must be collected before executing
// desc. A parameter counts as supplied when provided or startupDefaults
// holds a value for it.
func NeedsDialog(desc *metadata.Descriptor, provided, startupDefaults map[string]interface{}, skipIfComplete bool) Decision {
	needed := len(desc.Parameters) > 0 &&
		!desc.OnlyActiveEntityFlag() &&
		!(skipIfComplete && allSupplied(desc.Parameters, provided, startupDefaults))
	if needed {
		return Decision{Parameters: true}
	}
	return Decision{Confirmation: desc.IsCritical}
}

func allSupplied(params []metadata.ParameterDefinition, provided, startupDefaults map[string]interface{}) bool {
	for _, p := range params {
		if p.Name == metadata.ActiveEntityParameter {
			continue
		}
		if _, ok := provided[p.Name]; ok {
			continue
		}
		if _, ok := startupDefaults[p.Name]; ok {
			continue
		}
		return false
	}
	return true
}
