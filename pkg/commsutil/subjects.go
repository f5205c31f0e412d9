package commsutil

import (
	"fmt"
	"strings"
)

// Default COMMS subjects.
const (
	SubjectInvoker      = "svc.invoker.v1"
	SubjectBackend      = "svc.backend.batch.v1"
	SubjectRefreshEvent = "sideeffects.refresh"
)

// BuildRefreshSubject builds the refresh event subject for one entity set.
func BuildRefreshSubject(base, entitySet string) string {
	if base == "" {
		base = SubjectRefreshEvent
	}
	if entitySet == "" {
		return base
	}
	return fmt.Sprintf("%s.%s", base, sanitizeToken(entitySet))
}

// sanitizeToken makes s usable as a single subject token.
func sanitizeToken(s string) string {
	return strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_").Replace(s)
}
