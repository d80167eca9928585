package compat

import (
	"fmt"
	"strings"

	"github.com/pinwise/pinwise-go/pkg/board"
	"github.com/pinwise/pinwise-go/pkg/catalog"
	"github.com/pinwise/pinwise-go/pkg/project"
)

// Severity represents the severity level of a violation.
type Severity int

const (
	// SeverityError blocks allocation.
	SeverityError Severity = iota
	// SeverityWarning is reported but only blocks allocation in strict mode.
	SeverityWarning
	// SeverityInfo is an informational note.
	SeverityInfo
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// ParseSeverity parses "error", "warning" or "info".
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(s) {
	case "error":
		return SeverityError, nil
	case "warning":
		return SeverityWarning, nil
	case "info":
		return SeverityInfo, nil
	}
	return 0, fmt.Errorf("unknown severity %q", s)
}

// Category groups rules. Categories run in the fixed order of Categories,
// cheapest first.
type Category string

const (
	CategoryVoltage   Category = "voltage"
	CategoryAddress   Category = "address"
	CategoryExclusive Category = "exclusive"
	CategoryProtocol  Category = "protocol"
)

// Categories lists the rule categories in evaluation order.
var Categories = []Category{CategoryVoltage, CategoryAddress, CategoryExclusive, CategoryProtocol}

// ParseCategory parses a category name such as "address".
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if strings.EqualFold(string(c), s) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown rule category %q", s)
}

func categoryRank(c Category) int {
	for i, have := range Categories {
		if have == c {
			return i
		}
	}
	return len(Categories)
}

// Scope is the input of a rule: the live instances plus the board and
// catalog they were resolved against.
type Scope struct {
	Board     *board.Board
	Catalog   *catalog.Catalog
	Instances []*project.Instance
}

// Pairs calls fn for every unordered pair of instances, in insertion order.
func (s *Scope) Pairs(fn func(a, b *project.Instance)) {
	for i := 0; i < len(s.Instances); i++ {
		for j := i + 1; j < len(s.Instances); j++ {
			fn(s.Instances[i], s.Instances[j])
		}
	}
}

// Rule is a symmetric compatibility constraint.
type Rule interface {
	// ID returns the unique identifier for this rule (e.g., "ADDR-001").
	ID() string
	// Name returns a human-readable name for the rule.
	Name() string
	// Category returns the rule category.
	Category() Category
	// DefaultSeverity returns the default severity level.
	DefaultSeverity() Severity
	// Check applies the rule and returns any violations.
	Check(s *Scope) []Violation
}

// Violation is a single broken rule.
type Violation struct {
	RuleID   string
	Severity Severity
	// Instances lists the ids of the offending instances.
	Instances []string
	// Units lists the ids of the resource units involved, if any.
	Units      []string
	Reason     string
	Suggestion string
}

// String returns a formatted string representation of the violation.
func (v Violation) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s: %s", v.RuleID, v.Severity, v.Reason)
	if len(v.Units) > 0 {
		fmt.Fprintf(&sb, " (units: %s)", strings.Join(v.Units, ", "))
	}
	if v.Suggestion != "" {
		fmt.Fprintf(&sb, " -> %s", v.Suggestion)
	}
	return sb.String()
}

// Involves reports whether the violation names instance id.
func (v Violation) Involves(id string) bool {
	for _, have := range v.Instances {
		if have == id {
			return true
		}
	}
	return false
}

// FilterBySeverity returns violations at or above the given severity level.
func FilterBySeverity(violations []Violation, minSeverity Severity) []Violation {
	var filtered []Violation
	for _, v := range violations {
		if v.Severity <= minSeverity {
			filtered = append(filtered, v)
		}
	}
	return filtered
}

// Involving returns the violations naming instance id.
func Involving(violations []Violation, id string) []Violation {
	var out []Violation
	for _, v := range violations {
		if v.Involves(id) {
			out = append(out, v)
		}
	}
	return out
}

// BaseRule provides a default implementation of common Rule methods.
type BaseRule struct {
	id              string
	name            string
	category        Category
	defaultSeverity Severity
}

// ID returns the rule ID.
func (r *BaseRule) ID() string { return r.id }

// Name returns the rule name.
func (r *BaseRule) Name() string { return r.name }

// Category returns the rule category.
func (r *BaseRule) Category() Category { return r.category }

// DefaultSeverity returns the default severity.
func (r *BaseRule) DefaultSeverity() Severity { return r.defaultSeverity }

// Violation builds a violation of this rule at its default severity.
func (r *BaseRule) Violation(reason string, instances ...*project.Instance) Violation {
	v := Violation{RuleID: r.id, Severity: r.defaultSeverity, Reason: reason}
	for _, inst := range instances {
		v.Instances = append(v.Instances, inst.ID)
	}
	return v
}

// NewBaseRule creates a new BaseRule with the given properties.
func NewBaseRule(id, name string, category Category, severity Severity) *BaseRule {
	return &BaseRule{
		id:              id,
		name:            name,
		category:        category,
		defaultSeverity: severity,
	}
}
