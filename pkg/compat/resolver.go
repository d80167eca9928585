package compat

import (
	"github.com/pinwise/pinwise-go/pkg/board"
	"github.com/pinwise/pinwise-go/pkg/catalog"
	"github.com/pinwise/pinwise-go/pkg/project"
)

// Resolver checks sets of component instances against the registered rules.
// It never mutates the instances it is given.
type Resolver struct {
	registry *Registry
	board    *board.Board
	catalog  *catalog.Catalog
}

// NewResolver creates a resolver over a rule registry.
func NewResolver(registry *Registry, b *board.Board, c *catalog.Catalog) *Resolver {
	return &Resolver{registry: registry, board: b, catalog: c}
}

// Registry returns the rule registry backing the resolver.
func (r *Resolver) Registry() *Registry { return r.registry }

// Board returns the board the resolver checks claims against.
func (r *Resolver) Board() *board.Board { return r.board }

// Check returns every violated rule for the given instances. Rejected
// instances hold no resources and are ignored. An empty result means the
// set is fully compatible.
func (r *Resolver) Check(instances []*project.Instance) []Violation {
	s := &Scope{Board: r.board, Catalog: r.catalog}
	for _, inst := range instances {
		if inst.State != project.StateRejected && inst.Spec != nil {
			s.Instances = append(s.Instances, inst)
		}
	}
	return r.registry.Run(s)
}

// Blocking returns the violations that block allocation: errors, plus
// warnings when strict is set.
func Blocking(violations []Violation, strict bool) []Violation {
	if strict {
		return FilterBySeverity(violations, SeverityWarning)
	}
	return FilterBySeverity(violations, SeverityError)
}
