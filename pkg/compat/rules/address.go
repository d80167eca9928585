package rules

import (
	"fmt"

	"github.com/pinwise/pinwise-go/pkg/board"
	"github.com/pinwise/pinwise-go/pkg/catalog"
	"github.com/pinwise/pinwise-go/pkg/compat"
	"github.com/pinwise/pinwise-go/pkg/project"
)

// RegisterAddressRules registers the bus-address rules with the given registry.
func RegisterAddressRules(registry *compat.Registry) {
	registry.Register(NewADDR001())
	registry.Register(NewADDR002())
}

// ADDR001 checks that components sharing a bus hold distinct addresses.
type ADDR001 struct {
	*compat.BaseRule
}

func NewADDR001() *ADDR001 {
	return &ADDR001{
		BaseRule: compat.NewBaseRule("ADDR-001", "Bus addresses distinct", compat.CategoryAddress, compat.SeverityError),
	}
}

func (r *ADDR001) Check(s *compat.Scope) []compat.Violation {
	keys, idx := holders(s, func(c project.Claim) bool { return c.Unit.Kind == board.UnitAddress })

	var out []compat.Violation
	for _, id := range keys {
		hs := idx[id]
		for i := 0; i < len(hs); i++ {
			for j := i + 1; j < len(hs); j++ {
				a, b := hs[i].Instance, hs[j].Instance
				if a == b {
					continue
				}
				v := r.Violation(fmt.Sprintf("%s claimed by both %s and %s", hs[i].Claim.Unit, label(a), label(b)), a, b)
				v.Units = []string{id}
				v.Suggestion = fmt.Sprintf("move %s to a different address or bus", label(b))
				out = append(out, v)
			}
		}
	}
	return out
}

// ADDR002 warns when two components are hard-wired to the same address on
// the same bus kind, before either has been placed.
type ADDR002 struct {
	*compat.BaseRule
}

func NewADDR002() *ADDR002 {
	return &ADDR002{
		BaseRule: compat.NewBaseRule("ADDR-002", "Fixed addresses collide", compat.CategoryAddress, compat.SeverityWarning),
	}
}

func (r *ADDR002) Check(s *compat.Scope) []compat.Violation {
	var out []compat.Violation
	s.Pairs(func(a, b *project.Instance) {
		for _, sa := range a.Spec.BusSlots() {
			for _, sb := range b.Spec.BusSlots() {
				if sa.Bus != sb.Bus || sa.Address.Fixed == nil || sb.Address.Fixed == nil {
					continue
				}
				if *sa.Address.Fixed != *sb.Address.Fixed {
					continue
				}
				// Once both are placed ADDR-001 has the final word.
				_, placedA := a.Address(sa.Name)
				_, placedB := b.Address(sb.Name)
				if placedA && placedB {
					continue
				}
				out = append(out, r.collision(a, b, sa.Bus, *sa.Address.Fixed))
			}
		}
	})
	return out
}

func (r *ADDR002) collision(a, b *project.Instance, kind catalog.BusKind, addr catalog.Address) compat.Violation {
	v := r.Violation(fmt.Sprintf("%s and %s both require fixed %s address %s",
		label(a), label(b), kind, addr), a, b)
	v.Suggestion = "use a second bus or a part with a configurable address"
	return v
}
