package rules

import (
	"fmt"

	"github.com/pinwise/pinwise-go/pkg/compat"
	"github.com/pinwise/pinwise-go/pkg/project"
)

// RegisterVoltageRules registers the voltage rules with the given registry.
func RegisterVoltageRules(registry *compat.Registry) {
	registry.Register(NewVOLT001())
}

// VOLT001 checks that every pair of components shares a compatible voltage
// reference. All pairs are checked, whether or not they share a bus.
type VOLT001 struct {
	*compat.BaseRule
}

func NewVOLT001() *VOLT001 {
	return &VOLT001{
		BaseRule: compat.NewBaseRule("VOLT-001", "Voltage classes compatible", compat.CategoryVoltage, compat.SeverityError),
	}
}

func (r *VOLT001) Check(s *compat.Scope) []compat.Violation {
	var out []compat.Violation
	s.Pairs(func(a, b *project.Instance) {
		va, vb := a.Spec.Voltage, b.Spec.Voltage
		if va.CompatibleWith(vb) {
			return
		}
		v := r.Violation(fmt.Sprintf("%s (%s) and %s (%s) need incompatible voltage references",
			label(a), va, label(b), vb), a, b)
		v.Suggestion = "add a level shifter or choose a part rated for either voltage"
		out = append(out, v)
	})
	return out
}
