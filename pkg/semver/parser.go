// Package semver parses operation references and resolves versioned services.
package semver

import (
	"fmt"
	"regexp"
	"strings"
)

const logPrefix = "semver:parser"

// OperationRef holds the parsed components of an operation reference.
//
//	sales.orders@^2/ApproveOrder
//	└─app─┘└svc┘ └rng┘ └operation┘
type OperationRef struct {
	// Service is "<app>.<name>", e.g. "sales.orders".
	Service string
	App     string
	Name    string
	// Range is the version constraint; empty means latest active version.
	Range string
	// Operation is the action or function name inside the service.
	Operation string
	Raw       string
}

var (
	operationNameRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)
	majorOnlyRegex     = regexp.MustCompile(`^\d+$`)
)

// ParseOperationRef parses "<app>.<service>[@<range>]/<Operation>".
//
// Supported ranges: none, major only ("2"), exact ("2.1.0"), caret, tilde and
// comparison ranges understood by Masterminds/semver.
func ParseOperationRef(input string) (*OperationRef, error) {
	raw := strings.TrimSpace(input)

	slash := strings.LastIndex(raw, "/")
	if slash <= 0 || slash == len(raw)-1 {
		return nil, fmt.Errorf("%s - invalid operation reference, expected <service>/<operation>: %q", logPrefix, raw)
	}
	svcPart, op := raw[:slash], raw[slash+1:]
	if !operationNameRegex.MatchString(op) {
		return nil, fmt.Errorf("%s - invalid operation name %q", logPrefix, op)
	}

	rangeStr := ""
	if at := strings.Index(svcPart, "@"); at >= 0 {
		rangeStr = svcPart[at+1:]
		svcPart = svcPart[:at]
		if rangeStr == "" {
			return nil, fmt.Errorf("%s - empty version range in %q", logPrefix, raw)
		}
	}

	dot := strings.Index(svcPart, ".")
	if dot <= 0 || dot == len(svcPart)-1 {
		return nil, fmt.Errorf("%s - invalid service, missing app: %q", logPrefix, raw)
	}

	return &OperationRef{
		Service:   svcPart,
		App:       svcPart[:dot],
		Name:      svcPart[dot+1:],
		Range:     rangeStr,
		Operation: op,
		Raw:       raw,
	}, nil
}

// Path returns the reference with the given resolved version pinned.
func (r *OperationRef) Path(version string) string {
	if version == "" {
		return r.Service + "/" + r.Operation
	}
	return r.Service + "@" + version + "/" + r.Operation
}

// IsMajorOnly checks if a range is a major-only specifier (e.g., "3").
func IsMajorOnly(rangeStr string) bool {
	return majorOnlyRegex.MatchString(rangeStr)
}
