// Package invoke orchestrates bound and unbound operation invocations:
// parameter readiness, batching per grouping mode, the strict-handling
// retry pass, side effects and settlement aggregation.
package invoke

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/morezero/action-invoker/pkg/dialog"
	"github.com/morezero/action-invoker/pkg/entity"
	"github.com/morezero/action-invoker/pkg/events"
	"github.com/morezero/action-invoker/pkg/messages"
	"github.com/morezero/action-invoker/pkg/metadata"
	"github.com/morezero/action-invoker/pkg/sideeffects"
	"github.com/morezero/action-invoker/pkg/transport"
)

const logPrefix = "invoke:invoker"

// Grouping selects how a multi-context invocation is batched.
type Grouping string

const (
	// Isolated runs each context in its own group, one after another.
	Isolated Grouping = "Isolated"
	// ChangeSet runs every context in one shared group, in parallel.
	ChangeSet Grouping = "ChangeSet"
)

// Options holds per-invocation settings of a bound action or action import.
type Options struct {
	Parameters   map[string]interface{}
	SelectExpand string
	// Grouping defaults to Isolated.
	Grouping             Grouping
	SideEffects          *sideeffects.Spec
	SkipDialogIfComplete bool
	// Label names the operation in confirmation texts and logs.
	Label string
	// OnSubmitted receives the in-flight executions once they are dispatched.
	OnSubmitted func([]*Execution)
	// OnResponse receives the records before the aggregate policy is applied.
	OnResponse func([]SettlementRecord)
	// RetryState is created per call when nil.
	RetryState *RetryState
}

// Config wires an Invoker to its collaborators.
type Config struct {
	Provider  metadata.Provider
	Transport transport.Transport
	// Sink defaults to a MemorySink.
	Sink messages.Sink
	// Presenter defaults to a Headless presenter that declines confirmations.
	// Precondition warnings are only confirmed when a presenter is set.
	Presenter       dialog.Presenter
	Publisher       events.EventPublisher
	OnEnablement    sideeffects.EnablementFunc
	StartupDefaults map[string]interface{}
}

// Invoker is the entry point for all four operation shapes.
type Invoker struct {
	provider  metadata.Provider
	sink      messages.Sink
	presenter dialog.Presenter
	// confirmWarnings is set when the caller supplied a presenter.
	confirmWarnings bool
	defaults        map[string]interface{}
	sched           *scheduler
}

// New creates an Invoker.
func New(cfg Config) *Invoker {
	sink := cfg.Sink
	if sink == nil {
		sink = messages.NewMemorySink()
	}
	presenter := cfg.Presenter
	if presenter == nil {
		presenter = &dialog.Headless{}
	}
	exec := &executor{
		transport:   cfg.Transport,
		sink:        sink,
		sideEffects: sideeffects.NewRequestor(cfg.Transport, cfg.Publisher, cfg.OnEnablement),
	}
	return &Invoker{
		provider:        cfg.Provider,
		sink:            sink,
		presenter:       presenter,
		confirmWarnings: cfg.Presenter != nil,
		defaults:        cfg.StartupDefaults,
		sched:           &scheduler{transport: cfg.Transport, exec: exec},
	}
}

// Sink returns the message sink the invoker publishes to.
func (i *Invoker) Sink() messages.Sink {
	return i.sink
}

// InvokeBoundAction runs the bound action name against every context and
// returns one record per context. If any context was rejected, the records
// are returned together with a *PartialFailureError.
func (i *Invoker) InvokeBoundAction(ctx context.Context, name string, contexts []*entity.Context, opts Options) ([]SettlementRecord, error) {
	id := uuid.NewString()
	slog.Info(fmt.Sprintf("%s - [%s] invokeBoundAction %s on %d contexts grouping=%s", logPrefix, id, name, len(contexts), groupingOf(opts)))

	if len(contexts) == 0 {
		return nil, newError(CodeInvalidArgument, name+" needs at least one context", nil)
	}
	desc, err := i.resolve(ctx, name, metadata.BoundAction, contexts[0])
	if err != nil {
		return nil, err
	}
	if desc.IsStatic {
		contexts = contexts[:1]
	}

	values, err := i.prepare(ctx, desc, opts)
	if err != nil {
		return nil, err
	}

	retry, err := begin(opts.RetryState)
	if err != nil {
		return nil, err
	}
	defer retry.Reset()

	p := i.newPlan(id, desc, values, opts, retry)
	p.contexts = contexts
	if groupingOf(opts) == ChangeSet {
		p.parallel = true
		p.groupFor = fixedGroup(contexts[0].UpdateGroup())
	} else {
		p.groupFor = isolatedGroups(id)
	}

	records := i.sched.run(ctx, p)
	if opts.OnResponse != nil {
		opts.OnResponse(records)
	}
	return records, aggregate(records)
}

// InvokeActionImport runs the unbound action name and returns its value.
func (i *Invoker) InvokeActionImport(ctx context.Context, name string, opts Options) (interface{}, error) {
	id := uuid.NewString()
	slog.Info(fmt.Sprintf("%s - [%s] invokeActionImport %s", logPrefix, id, name))

	desc, err := i.resolve(ctx, name, metadata.UnboundAction, nil)
	if err != nil {
		return nil, err
	}
	values, err := i.prepare(ctx, desc, opts)
	if err != nil {
		return nil, err
	}
	retry, err := begin(opts.RetryState)
	if err != nil {
		return nil, err
	}
	defer retry.Reset()

	p := i.newPlan(id, desc, values, opts, retry)
	p.contexts = []*entity.Context{nil}
	p.groupFor = fixedGroup(invocationGroup(GroupActionImport, id))

	records := i.sched.run(ctx, p)
	if opts.OnResponse != nil {
		opts.OnResponse(records)
	}
	return records[0].Value, records[0].Reason
}

// InvokeBoundFunction runs the bound function name against target.
func (i *Invoker) InvokeBoundFunction(ctx context.Context, name string, target *entity.Context) (interface{}, error) {
	id := uuid.NewString()
	slog.Info(fmt.Sprintf("%s - [%s] invokeBoundFunction %s on %s", logPrefix, id, name, pathOf(target)))

	if target == nil {
		return nil, newError(CodeInvalidArgument, name+" needs a context", nil)
	}
	desc, err := i.resolve(ctx, name, metadata.BoundFunction, target)
	if err != nil {
		return nil, err
	}
	p := i.newPlan(id, desc, BuildValues(desc.Parameters, nil, i.defaults), Options{}, NewRetryState())
	p.contexts = []*entity.Context{target}
	p.parallel = true
	p.groupFor = fixedGroup(target.UpdateGroup())
	return i.runFunction(ctx, p)
}

// InvokeFunctionImport runs the unbound function name.
func (i *Invoker) InvokeFunctionImport(ctx context.Context, name string) (interface{}, error) {
	id := uuid.NewString()
	slog.Info(fmt.Sprintf("%s - [%s] invokeFunctionImport %s", logPrefix, id, name))

	desc, err := i.resolve(ctx, name, metadata.UnboundFunction, nil)
	if err != nil {
		return nil, err
	}
	p := i.newPlan(id, desc, BuildValues(desc.Parameters, nil, i.defaults), Options{}, NewRetryState())
	p.contexts = []*entity.Context{nil}
	p.groupFor = fixedGroup(invocationGroup(GroupFunctionImport, id))
	return i.runFunction(ctx, p)
}

// runFunction executes p without strict handling.
func (i *Invoker) runFunction(ctx context.Context, p *plan) (interface{}, error) {
	if err := p.retry.begin(); err != nil {
		return nil, err
	}
	defer p.retry.Reset()
	records := i.sched.run(ctx, p)
	return records[0].Value, records[0].Reason
}

func (i *Invoker) resolve(ctx context.Context, name string, shape metadata.Shape, target *entity.Context) (*metadata.Descriptor, error) {
	desc, err := metadata.Resolve(ctx, i.provider, metadata.ResolveInput{Name: name, Expect: shape, Target: target})
	if err != nil {
		if errors.Is(err, metadata.ErrNotFound) {
			return nil, newError(CodeNotFound, name, err)
		}
		return nil, newError(CodeOperationFailed, "metadata lookup for "+name, err)
	}
	return desc, nil
}

// prepare validates the provided parameters, runs the optional dialog or
// confirmation and builds the value snapshot.
func (i *Invoker) prepare(ctx context.Context, desc *metadata.Descriptor, opts Options) (Values, error) {
	var unknown []string
	for name := range opts.Parameters {
		if _, ok := desc.Parameter(name); !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return Values{}, newError(CodeInvalidArgument, fmt.Sprintf("%s has no parameter %v", desc.Name, unknown), nil)
	}

	provided := opts.Parameters
	decision := NeedsDialog(desc, provided, i.defaults, opts.SkipDialogIfComplete)
	switch {
	case decision.Parameters:
		res, err := i.presenter.PresentParameterDialog(ctx, desc, mergeValues(i.defaults, provided))
		if err != nil {
			return Values{}, newError(CodeDialogCancelled, "parameter dialog failed", err)
		}
		if res.Cancelled {
			return Values{}, ErrDialogCancelled
		}
		provided = mergeValues(provided, res.Values)
	case decision.Confirmation:
		ok, err := i.presenter.PresentConfirmation(ctx, fmt.Sprintf("Do you want to execute %s?", labelOf(opts, desc)))
		if err != nil {
			return Values{}, newError(CodeDialogCancelled, "confirmation failed", err)
		}
		if !ok {
			return Values{}, ErrDialogCancelled
		}
	}
	return BuildValues(desc.Parameters, provided, i.defaults), nil
}

func (i *Invoker) newPlan(id string, desc *metadata.Descriptor, values Values, opts Options, retry *RetryState) *plan {
	label := labelOf(opts, desc)
	p := &plan{
		invocationID: id,
		desc:         desc,
		values:       values,
		selectExpand: opts.SelectExpand,
		sideEffects:  opts.SideEffects,
		strict:       desc.Shape.IsAction(),
		retry:        retry,
		onSubmitted:  opts.OnSubmitted,
		sink:         i.sink,
	}
	if i.confirmWarnings {
		p.confirm = func(ctx context.Context, warnings []messages.Message) (bool, error) {
			return i.presenter.PresentConfirmation(ctx, warningText(label, warnings))
		}
	}
	return p
}

func begin(s *RetryState) (*RetryState, error) {
	if s == nil {
		s = NewRetryState()
	}
	if err := s.begin(); err != nil {
		return nil, err
	}
	return s, nil
}

// aggregate applies the reject-if-any policy kept for single-context callers.
func aggregate(records []SettlementRecord) error {
	var first error
	rejected := 0
	for _, r := range records {
		if !r.Fulfilled() {
			if first == nil {
				first = r.Reason
			}
			rejected++
		}
	}
	if rejected == 0 {
		return nil
	}
	return &PartialFailureError{Records: records, Rejected: rejected, First: first}
}

func groupingOf(opts Options) Grouping {
	if opts.Grouping == ChangeSet {
		return ChangeSet
	}
	return Isolated
}

func labelOf(opts Options, desc *metadata.Descriptor) string {
	if opts.Label != "" {
		return opts.Label
	}
	return desc.Name
}

func mergeValues(base, overlay map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}
