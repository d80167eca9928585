package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNotFound is returned by Lookup and Resolve for unknown component ids.
var ErrNotFound = errors.New("component not found")

// Catalog is a read-only set of component specifications.
type Catalog struct {
	specs        map[string]*ComponentSpec
	order        []string // sorted ids
	byFold       map[string]string
	byFamilyByte map[uint8]string
	capabilities map[Capability]bool
	affinity     map[string][]int
	rules        []PairRule
}

// Lookup returns the spec with the given id.
func (c *Catalog) Lookup(id string) (*ComponentSpec, error) {
	if s, ok := c.specs[id]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
}

// Resolve looks a component up by id, then case-insensitively by id, name
// and alias.
func (c *Catalog) Resolve(name string) (*ComponentSpec, error) {
	if s, ok := c.specs[name]; ok {
		return s, nil
	}
	if id, ok := c.byFold[fold(name)]; ok {
		return c.specs[id], nil
	}
	return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
}

// All returns every spec in lexical id order.
func (c *Catalog) All() []*ComponentSpec {
	out := make([]*ComponentSpec, len(c.order))
	for i, id := range c.order {
		out[i] = c.specs[id]
	}
	return out
}

// Len returns the number of specs.
func (c *Catalog) Len() int { return len(c.specs) }

// Names returns every id, name and alias known to the catalog, sorted.
// Used for "did you mean" matching.
func (c *Catalog) Names() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, id := range c.order {
		s := c.specs[id]
		add(s.ID)
		add(s.Name)
		for _, a := range s.Aliases {
			add(a)
		}
	}
	sort.Strings(out)
	return out
}

// ByOneWireFamily returns the spec registered for a 1-Wire family byte.
func (c *Catalog) ByOneWireFamily(family uint8) (*ComponentSpec, bool) {
	id, ok := c.byFamilyByte[family]
	if !ok {
		return nil, false
	}
	return c.specs[id], true
}

// HasCapability reports whether tag was declared by the catalog.
func (c *Catalog) HasCapability(tag Capability) bool {
	return c.capabilities[tag]
}

// Affinity returns the commonly used pins for a component family, most
// preferred first.
func (c *Catalog) Affinity(family string) []int {
	return c.affinity[family]
}

// Rules returns the catalog-declared pair rules.
func (c *Catalog) Rules() []PairRule {
	return c.rules
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
