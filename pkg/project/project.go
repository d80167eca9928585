// Package project defines the resourced project model: component instances,
// the resource claims they hold and the ordered project that owns them.
//
// A Project is a plain value. It has no locking of its own; the compose
// package serializes writers and hands readers deep copies from Snapshot.
package project

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pinwise/pinwise-go/pkg/board"
	"github.com/pinwise/pinwise-go/pkg/catalog"
)

// ErrUnknownInstance is returned when an instance id is not in the project.
var ErrUnknownInstance = errors.New("unknown instance")

// LifecycleState is the state of a component instance.
type LifecycleState string

const (
	StateProposed LifecycleState = "proposed"
	StateAccepted LifecycleState = "accepted"
	StateRejected LifecycleState = "rejected"
)

// ClaimMode tags a claim as exclusive or shared.
type ClaimMode string

const (
	// Exclusive claims allow no other claim on the same unit.
	Exclusive ClaimMode = "exclusive"
	// Shared claims are only legal on lines of shared buses.
	Shared ClaimMode = "shared"
)

// Claim binds one resource unit to an instance.
type Claim struct {
	Unit board.Unit `json:"unit"`
	Mode ClaimMode  `json:"mode"`
	Slot string     `json:"slot"`
}

// Instance is a component spec placed into a project.
type Instance struct {
	ID          string                 `json:"id"`
	SpecID      string                 `json:"spec"`
	Spec        *catalog.ComponentSpec `json:"-"`
	State       LifecycleState         `json:"state"`
	Claims      []Claim                `json:"claims,omitempty"`
	Diagnostics []string               `json:"diagnostics,omitempty"`
}

// NewInstance creates a proposed instance of spec with a fresh id.
func NewInstance(spec *catalog.ComponentSpec) *Instance {
	return &Instance{
		ID:     uuid.NewString(),
		SpecID: spec.ID,
		Spec:   spec,
		State:  StateProposed,
	}
}

// Clone returns a deep copy. The spec pointer is shared; specs are immutable.
func (i *Instance) Clone() *Instance {
	c := *i
	c.Claims = append([]Claim(nil), i.Claims...)
	c.Diagnostics = append([]string(nil), i.Diagnostics...)
	return &c
}

// Accepted reports whether the instance holds its claims.
func (i *Instance) Accepted() bool { return i.State == StateAccepted }

// SlotClaims returns the claims bound to a slot, in claim order.
func (i *Instance) SlotClaims(slot string) []Claim {
	var out []Claim
	for _, c := range i.Claims {
		if c.Slot == slot {
			out = append(out, c)
		}
	}
	return out
}

// Pins returns the pin numbers exclusively claimed for a slot.
func (i *Instance) Pins(slot string) []int {
	var out []int
	for _, c := range i.SlotClaims(slot) {
		if c.Unit.Kind == board.UnitPin && c.Mode == Exclusive {
			out = append(out, c.Unit.Pin)
		}
	}
	return out
}

// Address returns the bus address claimed for a slot.
func (i *Instance) Address(slot string) (board.Unit, bool) {
	for _, c := range i.SlotClaims(slot) {
		if c.Unit.Kind == board.UnitAddress {
			return c.Unit, true
		}
	}
	return board.Unit{}, false
}

// Tier returns the complexity tier of the instance's spec.
func (i *Instance) Tier() int {
	if i.Spec == nil {
		return 0
	}
	return i.Spec.Tier
}

// Project is an ordered sequence of component instances. Order matters:
// later instances were allocated around the claims of earlier ones.
type Project struct {
	ID        string      `json:"id"`
	Name      string      `json:"name,omitempty"`
	Instances []*Instance `json:"instances"`
	Valid     bool        `json:"valid"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// New returns an empty, valid project.
func New(name string) *Project {
	return &Project{ID: uuid.NewString(), Name: name, Valid: true}
}

// Clone returns a deep copy of the project.
func (p *Project) Clone() *Project {
	c := *p
	c.Instances = make([]*Instance, len(p.Instances))
	for i, inst := range p.Instances {
		c.Instances[i] = inst.Clone()
	}
	return &c
}

// Find returns the instance with the given id.
func (p *Project) Find(id string) (*Instance, bool) {
	for _, inst := range p.Instances {
		if inst.ID == id {
			return inst, true
		}
	}
	return nil, false
}

// Append adds an instance at the end of the project.
func (p *Project) Append(inst *Instance) {
	p.Instances = append(p.Instances, inst)
	p.UpdatedAt = time.Now()
}

// Remove detaches an instance and returns it. Claims of other instances are
// untouched.
func (p *Project) Remove(id string) (*Instance, error) {
	for i, inst := range p.Instances {
		if inst.ID == id {
			p.Instances = append(p.Instances[:i:i], p.Instances[i+1:]...)
			p.UpdatedAt = time.Now()
			return inst, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownInstance, id)
}

// Accepted returns the accepted instances in insertion order.
func (p *Project) Accepted() []*Instance {
	var out []*Instance
	for _, inst := range p.Instances {
		if inst.Accepted() {
			out = append(out, inst)
		}
	}
	return out
}

// CountAccepted returns how many accepted instances of specID the project holds.
func (p *Project) CountAccepted(specID string) int {
	n := 0
	for _, inst := range p.Instances {
		if inst.Accepted() && inst.SpecID == specID {
			n++
		}
	}
	return n
}

// TotalComplexity sums the tiers of the accepted instances.
func (p *Project) TotalComplexity() int {
	total := 0
	for _, inst := range p.Accepted() {
		total += inst.Tier()
	}
	return total
}

// Tier maps the total complexity onto the 1-8 project scale.
func (p *Project) Tier() int {
	return ComplexityTier(p.TotalComplexity())
}

// ComplexityTier maps a total complexity onto the 1-8 project scale.
func ComplexityTier(total int) int {
	bounds := []int{3, 6, 10, 15, 20, 25, 30}
	for i, b := range bounds {
		if total <= b {
			return i + 1
		}
	}
	return 8
}

// Holder is an instance holding a claim on a unit.
type Holder struct {
	Instance *Instance
	Claim    Claim
}

// ClaimIndex maps unit ids to the accepted instances holding them.
func (p *Project) ClaimIndex() map[string][]Holder {
	idx := make(map[string][]Holder)
	for _, inst := range p.Accepted() {
		for _, c := range inst.Claims {
			idx[c.Unit.ID] = append(idx[c.Unit.ID], Holder{Instance: inst, Claim: c})
		}
	}
	return idx
}

// Rebind resolves every instance's spec against a catalog, typically after
// the project was decoded from a snapshot.
func (p *Project) Rebind(c *catalog.Catalog) error {
	for _, inst := range p.Instances {
		spec, err := c.Lookup(inst.SpecID)
		if err != nil {
			return fmt.Errorf("instance %s: %w", inst.ID, err)
		}
		inst.Spec = spec
	}
	return nil
}
