package rules

import (
	"fmt"
	"strings"

	"github.com/pinwise/pinwise-go/pkg/board"
	"github.com/pinwise/pinwise-go/pkg/catalog"
	"github.com/pinwise/pinwise-go/pkg/compat"
	"github.com/pinwise/pinwise-go/pkg/project"
)

// RegisterProtocolRules registers the protocol rules with the given registry.
func RegisterProtocolRules(registry *compat.Registry) {
	registry.Register(NewPROTO001())
	registry.Register(NewPROTO002())
	registry.Register(NewDECL001())
}

// PROTO001 checks that every claimed pin carries the capabilities its slot
// requires, e.g. hardware PWM for a servo.
type PROTO001 struct {
	*compat.BaseRule
}

func NewPROTO001() *PROTO001 {
	return &PROTO001{
		BaseRule: compat.NewBaseRule("PROTO-001", "Pin capabilities satisfied", compat.CategoryProtocol, compat.SeverityError),
	}
}

func (r *PROTO001) Check(s *compat.Scope) []compat.Violation {
	if s.Board == nil {
		return nil
	}
	var out []compat.Violation
	for _, inst := range s.Instances {
		for _, c := range inst.Claims {
			if c.Unit.Kind != board.UnitPin || c.Mode != project.Exclusive {
				continue
			}
			slot, ok := inst.Spec.Slot(c.Slot)
			if !ok || slot.Kind != catalog.SlotPins {
				continue
			}
			pin, ok := s.Board.Pin(c.Unit.Pin)
			if !ok {
				v := r.Violation(fmt.Sprintf("%s claims pin %d which does not exist on %s",
					label(inst), c.Unit.Pin, s.Board.Name), inst)
				v.Units = []string{c.Unit.ID}
				out = append(out, v)
				continue
			}
			var missing []string
			for _, want := range slot.Capabilities {
				if !pin.Has(want) {
					missing = append(missing, string(want))
				}
			}
			if len(missing) == 0 {
				continue
			}
			v := r.Violation(capabilityReason(inst, slot, pin, missing), inst)
			v.Units = []string{c.Unit.ID}
			if slot.Requires(catalog.CapHWPWM) {
				v.Suggestion = fmt.Sprintf("use one of the hardware PWM pins %v", s.Board.PinsWith(catalog.CapHWPWM))
			}
			out = append(out, v)
		}
	}
	return out
}

func capabilityReason(inst *project.Instance, slot *catalog.Slot, pin board.Pin, missing []string) string {
	if len(missing) == 1 && missing[0] == string(catalog.CapHWPWM) {
		return fmt.Sprintf("%s needs hardware PWM on %s but pin %d has none", label(inst), slot.Name, pin.Number)
	}
	return fmt.Sprintf("%s slot %s needs [%s] but pin %d lacks it",
		label(inst), slot.Name, strings.Join(missing, ", "), pin.Number)
}

// PROTO002 checks that bus claims land on a bus of the declared kind, at an
// address the slot accepts, and that shared claims only touch lines of a
// shared bus.
type PROTO002 struct {
	*compat.BaseRule
}

func NewPROTO002() *PROTO002 {
	return &PROTO002{
		BaseRule: compat.NewBaseRule("PROTO-002", "Bus requirements satisfied", compat.CategoryProtocol, compat.SeverityError),
	}
}

func (r *PROTO002) Check(s *compat.Scope) []compat.Violation {
	if s.Board == nil {
		return nil
	}
	var out []compat.Violation
	for _, inst := range s.Instances {
		for _, c := range inst.Claims {
			if reason := r.checkClaim(s.Board, inst, c); reason != "" {
				v := r.Violation(reason, inst)
				v.Units = []string{c.Unit.ID}
				out = append(out, v)
			}
		}
	}
	return out
}

func (r *PROTO002) checkClaim(b *board.Board, inst *project.Instance, c project.Claim) string {
	switch {
	case c.Unit.Kind == board.UnitAddress:
		slot, ok := inst.Spec.Slot(c.Slot)
		if !ok || slot.Kind != catalog.SlotBus {
			return fmt.Sprintf("%s holds %s for unknown bus slot %q", label(inst), c.Unit, c.Slot)
		}
		bus, ok := b.Bus(c.Unit.Bus)
		if !ok {
			return fmt.Sprintf("%s claims %s but the board has no such bus", label(inst), c.Unit)
		}
		if bus.Kind != slot.Bus {
			return fmt.Sprintf("%s needs a %s bus but %s is %s", label(inst), slot.Bus, bus.ID, bus.Kind)
		}
		if !slot.Address.Accepts(c.Unit.Address) {
			return fmt.Sprintf("%s requires %s, not %s", label(inst), slot.Address, c.Unit.Address)
		}
	case c.Mode == project.Shared:
		id, ok := b.BusOfPin(c.Unit.Pin)
		if !ok {
			return fmt.Sprintf("%s shares %s which is not a bus line", label(inst), c.Unit)
		}
		if bus, _ := b.Bus(id); !bus.Shared {
			return fmt.Sprintf("%s shares %s but %s cannot be shared", label(inst), c.Unit, id)
		}
	}
	return ""
}

// DECL001 applies the pair rules declared in the catalog.
type DECL001 struct {
	*compat.BaseRule
}

func NewDECL001() *DECL001 {
	return &DECL001{
		BaseRule: compat.NewBaseRule("DECL-001", "Catalog pair rules", compat.CategoryProtocol, compat.SeverityError),
	}
}

func (r *DECL001) Check(s *compat.Scope) []compat.Violation {
	if s.Catalog == nil || len(s.Catalog.Rules()) == 0 {
		return nil
	}
	var out []compat.Violation
	s.Pairs(func(a, b *project.Instance) {
		for _, rule := range s.Catalog.Rules() {
			if !rule.Involves(a.SpecID, b.SpecID) {
				continue
			}
			v := r.Violation(fmt.Sprintf("%s and %s are incompatible (%s): %s",
				label(a), label(b), rule.ID, rule.Reason), a, b)
			out = append(out, v)
		}
	})
	return out
}
