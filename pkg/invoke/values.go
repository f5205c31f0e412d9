package invoke

import "github.com/morezero/action-invoker/pkg/metadata"

var numericTypes = map[string]bool{
	"Edm.Byte":    true,
	"Edm.SByte":   true,
	"Edm.Int16":   true,
	"Edm.Int32":   true,
	"Edm.Int64":   true,
	"Edm.Decimal": true,
	"Edm.Double":  true,
	"Edm.Single":  true,
}

// Values is an immutable snapshot of the parameter values one invocation binds.
type Values struct {
	m map[string]interface{}
}

// BuildValues resolves every declared parameter once: the provided value,
// else the default, else a type-appropriate empty value.
func BuildValues(params []metadata.ParameterDefinition, provided, defaults map[string]interface{}) Values {
	m := make(map[string]interface{}, len(params))
	for _, p := range params {
		if v, ok := provided[p.Name]; ok {
			m[p.Name] = v
		} else if v, ok := defaults[p.Name]; ok {
			m[p.Name] = v
		} else {
			m[p.Name] = emptyValue(p)
		}
	}
	return Values{m: m}
}

// Get returns the value bound for name.
func (v Values) Get(name string) (interface{}, bool) {
	val, ok := v.m[name]
	return val, ok
}

// Len returns the number of bound parameters.
func (v Values) Len() int {
	return len(v.m)
}

// Map returns a copy of the snapshot.
func (v Values) Map() map[string]interface{} {
	out := make(map[string]interface{}, len(v.m))
	for k, val := range v.m {
		out[k] = val
	}
	return out
}

func emptyValue(p metadata.ParameterDefinition) interface{} {
	switch {
	case p.IsCollection:
		return []interface{}{}
	case p.Type == "Edm.Boolean":
		return false
	case numericTypes[p.Type]:
		return 0
	default:
		return ""
	}
}
