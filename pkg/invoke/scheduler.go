package invoke

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/morezero/action-invoker/pkg/entity"
	"github.com/morezero/action-invoker/pkg/messages"
	"github.com/morezero/action-invoker/pkg/metadata"
	"github.com/morezero/action-invoker/pkg/sideeffects"
	"github.com/morezero/action-invoker/pkg/transport"
)

const schedulerLogPrefix = "invoke:scheduler"

// Group id prefixes of unbound invocations. The invocation id is appended
// so concurrent invocations never share a batch.
const (
	GroupActionImport   = "actionImport"
	GroupFunctionImport = "functionImport"
	GroupIsolated       = "isolated"
)

// Settlement statuses.
const (
	StatusFulfilled = "fulfilled"
	StatusRejected  = "rejected"
)

// SettlementRecord is the final outcome for one context.
type SettlementRecord struct {
	Context *entity.Context
	Status  string
	Value   interface{}
	Reason  error
}

// Fulfilled reports whether the record succeeded.
func (r SettlementRecord) Fulfilled() bool {
	return r.Status == StatusFulfilled
}

// plan is one scheduled invocation.
type plan struct {
	invocationID string
	desc         *metadata.Descriptor
	// contexts holds a single nil entry for unbound operations.
	contexts     []*entity.Context
	values       Values
	selectExpand string
	sideEffects  *sideeffects.Spec
	strict       bool
	retry        *RetryState
	// parallel dispatches every context before waiting on any (ChangeSet).
	parallel    bool
	groupFor    func(i int) string
	onSubmitted func([]*Execution)
	// confirm acknowledges precondition warnings before the retry pass; nil accepts.
	confirm func(ctx context.Context, warnings []messages.Message) (bool, error)
	sink    messages.Sink
}

type scheduler struct {
	transport transport.Transport
	exec      *executor
}

// run executes p and returns one record per context. It never fails as a
// whole because one context failed.
func (s *scheduler) run(ctx context.Context, p *plan) []SettlementRecord {
	records := make([]SettlementRecord, len(p.contexts))

	reqs := make([]execRequest, len(p.contexts))
	for i, c := range p.contexts {
		reqs[i] = p.request(i, c, p.groupFor(i), p.strict)
	}
	s.pass(ctx, p, reqs, records, p.onSubmitted)

	entries, carried := p.retry.takeRetries()
	if len(entries) == 0 {
		return records
	}
	slog.Info(fmt.Sprintf("%s - [%s] retrying %d contexts after precondition failures", schedulerLogPrefix, p.invocationID, len(entries)))

	if p.confirm != nil {
		var warnings []messages.Message
		for _, e := range entries {
			warnings = append(warnings, e.warnings...)
		}
		ok, err := p.confirm(ctx, warnings)
		if err != nil || !ok {
			reason := newError(CodePreconditionFailed, "warnings were not confirmed", err)
			for _, e := range entries {
				records[e.index] = SettlementRecord{Context: e.context, Status: StatusRejected, Reason: reason}
			}
			p.sink.AddMessages(append(carried, warnings...))
			return records
		}
	}
	p.sink.AddMessages(carried)

	retries := make([]execRequest, len(entries))
	for i, e := range entries {
		retries[i] = p.request(e.index, e.context, e.groupID, false)
	}
	// OnSubmitted reports the first dispatch only.
	s.pass(ctx, p, retries, records, nil)
	return records
}

func (p *plan) request(index int, c *entity.Context, groupID string, strict bool) execRequest {
	return execRequest{
		desc:         p.desc,
		context:      c,
		index:        index,
		groupID:      groupID,
		values:       p.values,
		selectExpand: p.selectExpand,
		sideEffects:  p.sideEffects,
		strict:       strict,
		retry:        p.retry,
		invocationID: p.invocationID,
	}
}

// pass runs reqs once, in parallel or sequentially, and writes their records.
func (s *scheduler) pass(ctx context.Context, p *plan, reqs []execRequest, records []SettlementRecord, onSubmitted func([]*Execution)) {
	if p.parallel {
		s.parallel(ctx, reqs, records, onSubmitted)
		return
	}
	for _, req := range reqs {
		exec := s.exec.start(ctx, req)
		s.submit(ctx, req.groupID, exec)
		if onSubmitted != nil {
			onSubmitted([]*Execution{exec})
		}
		records[req.index] = settlement(ctx, exec)
	}
}

func (s *scheduler) parallel(ctx context.Context, reqs []execRequest, records []SettlementRecord, onSubmitted func([]*Execution)) {
	execs := make([]*Execution, len(reqs))
	for i, req := range reqs {
		execs[i] = s.exec.start(ctx, req)
	}

	byGroup := make(map[string][]*Execution)
	var order []string
	for _, e := range execs {
		if _, ok := byGroup[e.GroupID]; !ok {
			order = append(order, e.GroupID)
		}
		byGroup[e.GroupID] = append(byGroup[e.GroupID], e)
	}
	for _, g := range order {
		s.submit(ctx, g, byGroup[g]...)
	}

	if onSubmitted != nil {
		onSubmitted(execs)
	}

	var g errgroup.Group
	for _, e := range execs {
		e := e
		g.Go(func() error {
			records[e.Index] = settlement(ctx, e)
			return nil
		})
	}
	_ = g.Wait()
}

// submit sends a deferred group. On failure the group's calls are rejected
// so their executions settle.
func (s *scheduler) submit(ctx context.Context, groupID string, execs ...*Execution) {
	if transport.IsAutoGroup(groupID) {
		return
	}
	if err := s.transport.SubmitGroup(ctx, groupID); err != nil {
		slog.Error(fmt.Sprintf("%s - submitting group %s failed: %v", schedulerLogPrefix, groupID, err))
		for _, e := range execs {
			e.call.Reject(err)
		}
	}
}

func settlement(ctx context.Context, e *Execution) SettlementRecord {
	value, err := e.Wait(ctx)
	if err != nil {
		return SettlementRecord{Context: e.Context, Status: StatusRejected, Reason: err}
	}
	return SettlementRecord{Context: e.Context, Status: StatusFulfilled, Value: value}
}

// invocationGroup returns the group id prefix.<invocationID>.
func invocationGroup(prefix, invocationID string) string {
	return prefix + "." + invocationID
}

func isolatedGroups(invocationID string) func(int) string {
	return func(i int) string {
		return fmt.Sprintf("%s.%d", invocationGroup(GroupIsolated, invocationID), i)
	}
}

func fixedGroup(id string) func(int) string {
	return func(int) string { return id }
}

func warningText(label string, warnings []messages.Message) string {
	texts := make([]string, 0, len(warnings))
	for _, w := range warnings {
		texts = append(texts, w.Message)
	}
	return fmt.Sprintf("%s reported: %s. Continue?", label, strings.Join(texts, "; "))
}
