package compat

import (
	"sort"
	"sync"
)

// Registry manages compatibility rules.
type Registry struct {
	mu        sync.RWMutex
	rules     map[string]Rule
	enabled   map[string]bool
	severity  map[string]Severity
	ruleOrder []string // registration order, for deterministic iteration
}

// NewRegistry creates an empty rule registry.
func NewRegistry() *Registry {
	return &Registry{
		rules:    make(map[string]Rule),
		enabled:  make(map[string]bool),
		severity: make(map[string]Severity),
	}
}

// Register adds a rule to the registry.
// The rule is enabled by default with its default severity.
func (r *Registry) Register(rule Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := rule.ID()
	if _, exists := r.rules[id]; !exists {
		r.ruleOrder = append(r.ruleOrder, id)
	}
	r.rules[id] = rule
	r.enabled[id] = true
	r.severity[id] = rule.DefaultSeverity()
}

// Enable enables a rule by ID.
func (r *Registry) Enable(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled[id] = true
}

// Disable disables a rule by ID.
func (r *Registry) Disable(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled[id] = false
}

// SetSeverity overrides the severity for a rule.
func (r *Registry) SetSeverity(id string, severity Severity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.severity[id] = severity
}

// IsEnabled returns true if the rule is enabled.
func (r *Registry) IsEnabled(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled[id]
}

// Severity returns the effective severity for a rule.
func (r *Registry) Severity(id string) Severity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.severityLocked(id)
}

func (r *Registry) severityLocked(id string) Severity {
	if sev, ok := r.severity[id]; ok {
		return sev
	}
	if rule, ok := r.rules[id]; ok {
		return rule.DefaultSeverity()
	}
	return SeverityError
}

// Rule returns a rule by ID, or nil if not found.
func (r *Registry) Rule(id string) Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rules[id]
}

// Has reports whether a rule with the given ID is registered.
func (r *Registry) Has(id string) bool {
	return r.Rule(id) != nil
}

// EnabledRules returns the enabled rules ordered by category, then by
// registration order within a category.
func (r *Registry) EnabledRules() []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var rules []Rule
	for _, id := range r.ruleOrder {
		if r.enabled[id] {
			rules = append(rules, r.rules[id])
		}
	}
	sort.SliceStable(rules, func(i, j int) bool {
		return categoryRank(rules[i].Category()) < categoryRank(rules[j].Category())
	})
	return rules
}

// AllRules returns all registered rules in registration order.
func (r *Registry) AllRules() []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rules := make([]Rule, len(r.ruleOrder))
	for i, id := range r.ruleOrder {
		rules[i] = r.rules[id]
	}
	return rules
}

// RulesByCategory returns all rules in a category.
func (r *Registry) RulesByCategory(category Category) []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var rules []Rule
	for _, id := range r.ruleOrder {
		if r.rules[id].Category() == category {
			rules = append(rules, r.rules[id])
		}
	}
	return rules
}

// Run executes all enabled rules against a scope. Violations carry the
// registry's effective severity.
func (r *Registry) Run(s *Scope) []Violation {
	var violations []Violation
	for _, rule := range r.EnabledRules() {
		for _, v := range rule.Check(s) {
			v.Severity = r.Severity(v.RuleID)
			violations = append(violations, v)
		}
	}
	return violations
}

// Count returns the number of registered rules.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rules)
}

// EnabledCount returns the number of enabled rules.
func (r *Registry) EnabledCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, enabled := range r.enabled {
		if enabled {
			count++
		}
	}
	return count
}

// DisableCategory disables all rules in a category.
func (r *Registry) DisableCategory(category Category) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, rule := range r.rules {
		if rule.Category() == category {
			r.enabled[id] = false
		}
	}
}
