// Package rules contains the built-in compatibility rules.
package rules

import (
	"sort"

	"github.com/pinwise/pinwise-go/pkg/compat"
	"github.com/pinwise/pinwise-go/pkg/project"
)

// RegisterAllRules registers all built-in rules with the given registry.
func RegisterAllRules(registry *compat.Registry) {
	RegisterVoltageRules(registry)
	RegisterAddressRules(registry)
	RegisterExclusiveRules(registry)
	RegisterProtocolRules(registry)
}

// NewDefaultRegistry creates a new registry with all rules registered.
func NewDefaultRegistry() *compat.Registry {
	registry := compat.NewRegistry()
	RegisterAllRules(registry)
	return registry
}

func label(inst *project.Instance) string {
	return inst.SpecID
}

// holders groups the claims of the scope by unit id. Keys come back sorted.
func holders(s *compat.Scope, keep func(project.Claim) bool) ([]string, map[string][]project.Holder) {
	idx := make(map[string][]project.Holder)
	var keys []string
	for _, inst := range s.Instances {
		for _, c := range inst.Claims {
			if !keep(c) {
				continue
			}
			if _, ok := idx[c.Unit.ID]; !ok {
				keys = append(keys, c.Unit.ID)
			}
			idx[c.Unit.ID] = append(idx[c.Unit.ID], project.Holder{Instance: inst, Claim: c})
		}
	}
	sort.Strings(keys)
	return keys, idx
}
