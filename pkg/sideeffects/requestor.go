// Package sideeffects requests dependent-data refresh after a successful action.
package sideeffects

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/morezero/action-invoker/pkg/entity"
	"github.com/morezero/action-invoker/pkg/events"
	"github.com/morezero/action-invoker/pkg/transport"
)

const logPrefix = "sideeffects:requestor"

// Spec declares what must be refreshed once an action succeeds.
type Spec struct {
	// TriggerActions are operation names executed in the same group as the action.
	TriggerActions []string `json:"triggerActions,omitempty"`
	// TargetPaths are property or navigation paths to reload on the target.
	TargetPaths []string `json:"targetPaths,omitempty"`
	// Enablement maps control ids to enablement expressions; it is handed to
	// the EnablementFunc as is.
	Enablement map[string]string `json:"enablement,omitempty"`
}

// IsEmpty reports whether the spec requests nothing.
func (s *Spec) IsEmpty() bool {
	return s == nil || (len(s.TriggerActions) == 0 && len(s.TargetPaths) == 0 && len(s.Enablement) == 0)
}

// EnablementFunc is notified after side effects with the affected contexts.
type EnablementFunc func(affected []*entity.Context, enablement map[string]string)

// Requestor issues side effects through a transport and an event publisher.
type Requestor struct {
	transport    transport.Transport
	publisher    events.EventPublisher
	onEnablement EnablementFunc
}

// NewRequestor creates a Requestor. publisher and onEnablement may be nil.
func NewRequestor(tr transport.Transport, publisher events.EventPublisher, onEnablement EnablementFunc) *Requestor {
	if publisher == nil {
		publisher = &events.NoOpPublisher{}
	}
	return &Requestor{transport: tr, publisher: publisher, onEnablement: onEnablement}
}

// Request waits for primary and, if it succeeded, runs the side effects of
// spec against target in groupID. It blocks until they have settled.
// Failures are logged and never returned.
func (r *Requestor) Request(ctx context.Context, target *entity.Context, spec *Spec, groupID string, primary *transport.Call) {
	if r == nil || spec.IsEmpty() {
		return
	}
	if primary != nil {
		if _, err := primary.Wait(ctx); err != nil {
			slog.Debug(fmt.Sprintf("%s - primary call failed, skipping side effects for %s: %v", logPrefix, pathOf(target), err))
			return
		}
	}

	r.runTriggers(ctx, target, spec.TriggerActions, groupID)

	if len(spec.TargetPaths) > 0 {
		event := &events.RefreshRequestedEvent{
			Target:    pathOf(target),
			EntitySet: target.EntitySet(),
			Paths:     append([]string(nil), spec.TargetPaths...),
			GroupID:   groupID,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		if err := r.publisher.PublishRefresh(ctx, event); err != nil {
			slog.Warn(fmt.Sprintf("%s - refresh request for %s failed: %v", logPrefix, event.Target, err))
		}
	}

	if len(spec.Enablement) > 0 && r.onEnablement != nil {
		var affected []*entity.Context
		if target != nil {
			affected = []*entity.Context{target}
		}
		r.onEnablement(affected, spec.Enablement)
	}
}

func (r *Requestor) runTriggers(ctx context.Context, target *entity.Context, actions []string, groupID string) {
	if len(actions) == 0 || r.transport == nil {
		return
	}
	calls := make([]*transport.Call, 0, len(actions))
	for _, action := range actions {
		calls = append(calls, r.transport.Bind(action, target, transport.BindOptions{}).Execute(ctx, groupID, false))
	}
	if !transport.IsAutoGroup(groupID) {
		if err := r.transport.SubmitGroup(ctx, groupID); err != nil {
			slog.Warn(fmt.Sprintf("%s - submitting trigger actions in %s failed: %v", logPrefix, groupID, err))
		}
	}
	for i, call := range calls {
		if _, err := call.Wait(ctx); err != nil {
			slog.Warn(fmt.Sprintf("%s - trigger action %s on %s failed: %v", logPrefix, actions[i], pathOf(target), err))
		}
	}
}

func pathOf(c *entity.Context) string {
	if c == nil {
		return ""
	}
	return c.Path
}
