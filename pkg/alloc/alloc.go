// Package alloc assigns board resources to component instances.
//
// Allocation is greedy and order-sensitive: instances are placed one at a
// time around the claims of the instances already accepted, and each slot
// takes the first candidate unit that is free and keeps the project free of
// blocking rule violations. An instance that cannot be placed is rejected on
// its own; earlier instances are never moved.
package alloc

import (
	"time"

	"github.com/pinwise/pinwise-go/pkg/board"
	"github.com/pinwise/pinwise-go/pkg/catalog"
	"github.com/pinwise/pinwise-go/pkg/compat"
	"github.com/pinwise/pinwise-go/pkg/log"
	"github.com/pinwise/pinwise-go/pkg/project"
)

// Allocator places instances onto a board.
// An Allocator holds no project state and is safe for concurrent use as
// long as callers do not share a Project between goroutines.
type Allocator struct {
	resolver  *compat.Resolver
	board     *board.Board
	catalog   *catalog.Catalog
	strict    bool
	events    log.Logger
	sessionID string
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithStrict makes warning-severity violations block placement.
func WithStrict(strict bool) Option {
	return func(a *Allocator) { a.strict = strict }
}

// WithEventLogger sets the engine event logger.
func WithEventLogger(l log.Logger) Option {
	return func(a *Allocator) { a.events = l }
}

// WithSessionID tags emitted events with a composer session id.
func WithSessionID(id string) Option {
	return func(a *Allocator) { a.sessionID = id }
}

// New creates an Allocator for the resolver's board.
func New(resolver *compat.Resolver, c *catalog.Catalog, opts ...Option) *Allocator {
	a := &Allocator{
		resolver: resolver,
		board:    resolver.Board(),
		catalog:  c,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.events = log.OrNoop(a.events)
	return a
}

// Strict reports whether warnings block placement.
func (a *Allocator) Strict() bool { return a.strict }

// Board returns the board resources are taken from.
func (a *Allocator) Board() *board.Board { return a.board }

// Allocate places inst into p. On success the instance is accepted, holds
// its claims and is appended to p (unless already present). On failure it
// is rejected with diagnostics, holds nothing, and p is left unchanged.
func (a *Allocator) Allocate(p *project.Project, inst *project.Instance) Result {
	return a.allocate(p, inst, false)
}

// AllocateAll places instances in order. Each instance sees the claims of
// the ones accepted before it.
func (a *Allocator) AllocateAll(p *project.Project, instances []*project.Instance) []Result {
	results := make([]Result, len(instances))
	for i, inst := range instances {
		results[i] = a.Allocate(p, inst)
	}
	return results
}

func (a *Allocator) allocate(p *project.Project, inst *project.Instance, dryRun bool) Result {
	start := time.Now()
	old := inst.State

	inst.State = project.StateProposed
	inst.Claims = nil
	inst.Diagnostics = nil

	if inst.Spec == nil {
		spec, err := a.catalog.Lookup(inst.SpecID)
		if err != nil {
			return a.reject(p, inst, old, &InfeasibleError{
				InstanceID: inst.ID,
				SpecID:     inst.SpecID,
				Failures:   []SlotFailure{{Reason: NoFreeUnit, Detail: err.Error()}},
			}, 0, start, dryRun)
		}
		inst.Spec = spec
	}

	pl := newPlacement(a, p, inst)
	if f, ok := pl.precheck(); !ok {
		return a.reject(p, inst, old, pl.infeasible(f), pl.tried, start, dryRun)
	}
	for i := range inst.Spec.Slots {
		slot := &inst.Spec.Slots[i]
		var f *SlotFailure
		if slot.Kind == catalog.SlotBus {
			f = pl.placeBus(slot)
		} else {
			for n := 0; n < slot.Count && f == nil; n++ {
				f = pl.placePin(slot)
			}
		}
		if f != nil {
			return a.reject(p, inst, old, pl.infeasible(*f), pl.tried, start, dryRun)
		}
	}

	inst.State = project.StateAccepted
	if _, ok := p.Find(inst.ID); !ok {
		p.Append(inst)
	}
	vs := a.resolver.Check(p.Instances)
	p.Valid = len(compat.Blocking(vs, a.strict)) == 0
	warnings := withoutErrors(compat.Involving(vs, inst.ID))

	a.emitAllocation(p, inst, &log.AllocationEvent{
		Outcome:    log.OutcomeAccepted,
		Units:      unitIDs(inst.Claims),
		Violations: ruleIDs(warnings),
		Candidates: pl.tried,
		Elapsed:    time.Since(start),
		DryRun:     dryRun,
	})
	if !dryRun {
		a.emitState(p, inst, old, "")
	}
	return Result{Instance: inst, Warnings: warnings}
}

func (a *Allocator) reject(p *project.Project, inst *project.Instance, old project.LifecycleState,
	err *InfeasibleError, tried int, start time.Time, dryRun bool) Result {
	inst.State = project.StateRejected
	inst.Claims = nil
	inst.Diagnostics = make([]string, len(err.Failures))
	for i, f := range err.Failures {
		inst.Diagnostics[i] = f.String()
	}

	a.emitAllocation(p, inst, &log.AllocationEvent{
		Outcome:    log.OutcomeRejected,
		Failures:   inst.Diagnostics,
		Violations: ruleIDs(err.Violations()),
		Candidates: tried,
		Elapsed:    time.Since(start),
		DryRun:     dryRun,
	})
	if !dryRun {
		a.emitState(p, inst, old, err.Error())
	}
	return Result{Instance: inst, Err: err}
}

// Remove detaches an instance from p and frees exactly its claims. The
// returned instance is back in the proposed state and may be placed again.
func (a *Allocator) Remove(p *project.Project, id string) (*project.Instance, error) {
	inst, err := p.Remove(id)
	if err != nil {
		return nil, err
	}
	freed := unitIDs(inst.Claims)
	old := inst.State
	inst.State = project.StateProposed
	inst.Claims = nil
	inst.Diagnostics = nil
	a.Validate(p)

	a.emitAllocation(p, inst, &log.AllocationEvent{Outcome: log.OutcomeReleased, Units: freed})
	a.emitState(p, inst, old, "removed")
	return inst, nil
}

// WhatIf reports whether inst could be placed if the instance removeID were
// removed first. An empty removeID simulates placement in p as it stands.
// Neither p nor inst is modified; the result carries a copy of inst.
func (a *Allocator) WhatIf(p *project.Project, inst *project.Instance, removeID string) (Result, error) {
	clone := p.Clone()
	if removeID != "" {
		if _, err := clone.Remove(removeID); err != nil {
			return Result{}, err
		}
	}
	return a.allocate(clone, inst.Clone(), true), nil
}

// SuggestUnplug returns the accepted instances of p whose removal alone
// would let inst be placed, in project order.
func (a *Allocator) SuggestUnplug(p *project.Project, inst *project.Instance) []*project.Instance {
	var out []*project.Instance
	for _, other := range p.Accepted() {
		if other.ID == inst.ID {
			continue
		}
		res, err := a.WhatIf(p, inst, other.ID)
		if err == nil && res.Accepted() {
			out = append(out, other)
		}
	}
	return out
}

// Validate checks every instance of p against the rules, updates p.Valid
// and returns all violations.
func (a *Allocator) Validate(p *project.Project) []compat.Violation {
	vs := a.resolver.Check(p.Instances)
	p.Valid = len(compat.Blocking(vs, a.strict)) == 0
	return vs
}

func (a *Allocator) emitAllocation(p *project.Project, inst *project.Instance, ev *log.AllocationEvent) {
	a.events.Log(log.Event{
		SessionID:  a.sessionID,
		ProjectID:  p.ID,
		Stage:      log.StageAllocator,
		Category:   log.CategoryDecision,
		InstanceID: inst.ID,
		SpecID:     inst.SpecID,
		Allocation: ev,
	})
}

func (a *Allocator) emitState(p *project.Project, inst *project.Instance, old project.LifecycleState, reason string) {
	if old == inst.State {
		return
	}
	a.events.Log(log.Event{
		SessionID:  a.sessionID,
		ProjectID:  p.ID,
		Stage:      log.StageAllocator,
		Category:   log.CategoryState,
		InstanceID: inst.ID,
		SpecID:     inst.SpecID,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityInstance,
			OldState: string(old),
			NewState: string(inst.State),
			Reason:   reason,
		},
	})
}

func unitIDs(claims []project.Claim) []string {
	out := make([]string, len(claims))
	for i, c := range claims {
		out[i] = c.Unit.ID
	}
	return out
}

func ruleIDs(vs []compat.Violation) []string {
	var out []string
	seen := make(map[string]bool)
	for _, v := range vs {
		if !seen[v.RuleID] {
			seen[v.RuleID] = true
			out = append(out, v.RuleID)
		}
	}
	return out
}

func withoutErrors(vs []compat.Violation) []compat.Violation {
	var out []compat.Violation
	for _, v := range vs {
		if v.Severity != compat.SeverityError {
			out = append(out, v)
		}
	}
	return out
}
