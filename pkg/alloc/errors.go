package alloc

import (
	"errors"
	"strings"

	"github.com/pinwise/pinwise-go/pkg/compat"
	"github.com/pinwise/pinwise-go/pkg/project"
)

// ErrAllocationInfeasible is the sentinel behind every rejected placement.
var ErrAllocationInfeasible = errors.New("allocation infeasible")

// FailureReason says why a slot could not be placed.
type FailureReason uint8

const (
	// NoFreeUnit means every candidate unit was already held or none existed.
	NoFreeUnit FailureReason = iota
	// RuleViolated means free candidates existed but each broke a rule.
	RuleViolated
)

// String returns the reason name.
func (r FailureReason) String() string {
	switch r {
	case NoFreeUnit:
		return "no free unit"
	case RuleViolated:
		return "rule violated"
	default:
		return "unknown"
	}
}

// SlotFailure explains why one slot of an instance could not be placed.
// Slot is empty when the instance was refused before any slot was tried.
type SlotFailure struct {
	Slot       string
	Reason     FailureReason
	Detail     string
	Violations []compat.Violation
}

// String returns the diagnostic line for the failure.
func (f SlotFailure) String() string {
	if f.Slot == "" {
		return f.Detail
	}
	return "slot " + f.Slot + ": " + f.Detail
}

// InfeasibleError is returned in a Result when an instance cannot be placed.
type InfeasibleError struct {
	InstanceID string
	SpecID     string
	Failures   []SlotFailure
}

func (e *InfeasibleError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = f.String()
	}
	return "cannot place " + e.SpecID + ": " + strings.Join(parts, "; ")
}

func (e *InfeasibleError) Unwrap() error {
	return ErrAllocationInfeasible
}

// Violations returns every rule violation behind the failure.
func (e *InfeasibleError) Violations() []compat.Violation {
	var out []compat.Violation
	for _, f := range e.Failures {
		out = append(out, f.Violations...)
	}
	return out
}

// Result is the outcome of placing one instance. A rejection is data: Err
// holds an *InfeasibleError and the instance is marked rejected.
type Result struct {
	Instance *project.Instance
	Err      error
	// Warnings are non-blocking violations involving the instance.
	Warnings []compat.Violation
}

// Accepted reports whether the instance was placed.
func (r Result) Accepted() bool {
	return r.Err == nil && r.Instance != nil && r.Instance.Accepted()
}
