package rules

import (
	"fmt"

	"github.com/pinwise/pinwise-go/pkg/board"
	"github.com/pinwise/pinwise-go/pkg/compat"
	"github.com/pinwise/pinwise-go/pkg/project"
)

// RegisterExclusiveRules registers the exclusive-resource rules with the given registry.
func RegisterExclusiveRules(registry *compat.Registry) {
	registry.Register(NewEXCL001())
	registry.Register(NewEXCL002())
}

// EXCL001 detects pins with more than one exclusive claim, or with an
// exclusive claim next to shared ones. Address slots are left to ADDR-001.
type EXCL001 struct {
	*compat.BaseRule
}

func NewEXCL001() *EXCL001 {
	return &EXCL001{
		BaseRule: compat.NewBaseRule("EXCL-001", "No double claims", compat.CategoryExclusive, compat.SeverityError),
	}
}

func (r *EXCL001) Check(s *compat.Scope) []compat.Violation {
	keys, idx := holders(s, func(c project.Claim) bool { return c.Unit.Kind == board.UnitPin })

	var out []compat.Violation
	for _, id := range keys {
		hs := idx[id]
		for i := 0; i < len(hs); i++ {
			for j := i + 1; j < len(hs); j++ {
				ha, hb := hs[i], hs[j]
				if ha.Claim.Mode == project.Shared && hb.Claim.Mode == project.Shared {
					continue
				}
				var reason string
				switch {
				case ha.Claim.Mode == project.Exclusive && hb.Claim.Mode == project.Exclusive:
					reason = fmt.Sprintf("%s claimed exclusively by both %s and %s",
						ha.Claim.Unit, label(ha.Instance), label(hb.Instance))
				case ha.Claim.Mode == project.Shared:
					reason = fmt.Sprintf("%s is a shared bus line for %s but claimed exclusively by %s",
						ha.Claim.Unit, label(ha.Instance), label(hb.Instance))
				default:
					reason = fmt.Sprintf("%s is held exclusively by %s but %s needs it as a shared bus line",
						ha.Claim.Unit, label(ha.Instance), label(hb.Instance))
				}
				v := r.Violation(reason, ha.Instance, hb.Instance)
				v.Units = []string{id}
				out = append(out, v)
			}
		}
	}
	return out
}

// EXCL002 checks that no two components declare the same conflict tag.
type EXCL002 struct {
	*compat.BaseRule
}

func NewEXCL002() *EXCL002 {
	return &EXCL002{
		BaseRule: compat.NewBaseRule("EXCL-002", "Conflict tags exclusive", compat.CategoryExclusive, compat.SeverityError),
	}
}

func (r *EXCL002) Check(s *compat.Scope) []compat.Violation {
	var out []compat.Violation
	s.Pairs(func(a, b *project.Instance) {
		for _, tag := range a.Spec.ConflictTags {
			if !b.Spec.HasConflictTag(tag) {
				continue
			}
			v := r.Violation(fmt.Sprintf("%s and %s both require %s", label(a), label(b), tag), a, b)
			v.Suggestion = fmt.Sprintf("keep only one %s component", tag)
			out = append(out, v)
		}
	})
	return out
}
