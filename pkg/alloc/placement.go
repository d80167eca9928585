package alloc

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pinwise/pinwise-go/pkg/board"
	"github.com/pinwise/pinwise-go/pkg/catalog"
	"github.com/pinwise/pinwise-go/pkg/compat"
	"github.com/pinwise/pinwise-go/pkg/project"
)

// maxBusyDetail bounds how many held units a NoFreeUnit diagnostic names.
const maxBusyDetail = 3

// placement is the working state for one Allocate call.
type placement struct {
	a      *Allocator
	inst   *project.Instance
	others []*project.Instance
	held   map[string][]project.Holder
	tried  int
}

func newPlacement(a *Allocator, p *project.Project, inst *project.Instance) *placement {
	pl := &placement{a: a, inst: inst, held: make(map[string][]project.Holder)}
	for _, other := range p.Accepted() {
		if other.ID == inst.ID {
			continue
		}
		pl.others = append(pl.others, other)
		for _, c := range other.Claims {
			pl.held[c.Unit.ID] = append(pl.held[c.Unit.ID], project.Holder{Instance: other, Claim: c})
		}
	}
	return pl
}

func (pl *placement) infeasible(f SlotFailure) *InfeasibleError {
	return &InfeasibleError{InstanceID: pl.inst.ID, SpecID: pl.inst.SpecID, Failures: []SlotFailure{f}}
}

// blocking runs the resolver over the accepted instances plus the one being
// placed and keeps the blocking violations that name it.
func (pl *placement) blocking() []compat.Violation {
	set := make([]*project.Instance, 0, len(pl.others)+1)
	set = append(set, pl.others...)
	set = append(set, pl.inst)
	vs := pl.a.resolver.Check(set)
	return compat.Involving(compat.Blocking(vs, pl.a.strict), pl.inst.ID)
}

// precheck refuses instances that conflict before any unit is claimed, e.g.
// on voltage or a declared pair rule. No candidate could fix those.
func (pl *placement) precheck() (SlotFailure, bool) {
	vs := pl.blocking()
	if len(vs) == 0 {
		return SlotFailure{}, true
	}
	return SlotFailure{Reason: RuleViolated, Detail: reasons(vs), Violations: vs}, false
}

// try tentatively adds claims and keeps them if no blocking violation
// involving the instance appears.
func (pl *placement) try(claims ...project.Claim) []compat.Violation {
	pl.tried++
	n := len(pl.inst.Claims)
	pl.inst.Claims = append(pl.inst.Claims, claims...)
	if vs := pl.blocking(); len(vs) > 0 {
		pl.inst.Claims = pl.inst.Claims[:n]
		return vs
	}
	return nil
}

func (pl *placement) owns(u board.Unit) bool {
	for _, c := range pl.inst.Claims {
		if c.Unit.ID == u.ID {
			return true
		}
	}
	return false
}

// free reports whether the unit can take a claim in the given mode. Shared
// claims coexist with other shared claims only.
func (pl *placement) free(u board.Unit, mode project.ClaimMode) bool {
	hs := pl.held[u.ID]
	if len(hs) == 0 {
		return true
	}
	if mode == project.Exclusive {
		return false
	}
	for _, h := range hs {
		if h.Claim.Mode == project.Exclusive {
			return false
		}
	}
	return true
}

// failures collects what went wrong while walking the candidates of a slot.
type failures struct {
	busy     []string
	violated []compat.Violation
}

func (f *failures) held(u board.Unit, hs []project.Holder) {
	f.busy = append(f.busy, fmt.Sprintf("%s already claimed by %s", u, holderNames(hs)))
}

func (f *failures) slotFailure(slot *catalog.Slot, none string) *SlotFailure {
	switch {
	case len(f.violated) > 0:
		return &SlotFailure{Slot: slot.Name, Reason: RuleViolated, Detail: reasons(f.violated), Violations: f.violated}
	case len(f.busy) > 0:
		detail := strings.Join(f.busy[:min(len(f.busy), maxBusyDetail)], "; ")
		if extra := len(f.busy) - maxBusyDetail; extra > 0 {
			detail += fmt.Sprintf(" (and %d more)", extra)
		}
		return &SlotFailure{Slot: slot.Name, Reason: NoFreeUnit, Detail: detail}
	default:
		return &SlotFailure{Slot: slot.Name, Reason: NoFreeUnit, Detail: none}
	}
}

// placePin claims one pin for a pin slot.
func (pl *placement) placePin(slot *catalog.Slot) *SlotFailure {
	var f failures
	for _, n := range pl.pinCandidates(slot) {
		u := board.PinUnit(n)
		if pl.owns(u) {
			continue
		}
		if !pl.free(u, project.Exclusive) {
			f.held(u, pl.held[u.ID])
			continue
		}
		vs := pl.try(project.Claim{Unit: u, Mode: project.Exclusive, Slot: slot.Name})
		if len(vs) == 0 {
			return nil
		}
		f.violated = append(f.violated, vs...)
	}
	return f.slotFailure(slot, fmt.Sprintf("no pin on %s offers [%s]", pl.a.board.Name, capList(slot.Capabilities)))
}

// pinCandidates orders the board pins able to serve slot: preferred pins,
// then the family's common pins, then plain pins ascending and bus line
// pins last so buses stay usable.
func (pl *placement) pinCandidates(slot *catalog.Slot) []int {
	b := pl.a.board
	seen := make(map[int]bool)
	var out []int
	add := func(n int) {
		if !seen[n] && b.PinHas(n, slot.Capabilities...) {
			seen[n] = true
			out = append(out, n)
		}
	}
	for _, n := range slot.Preferred {
		add(n)
	}
	for _, n := range pl.a.catalog.Affinity(pl.inst.Spec.Family) {
		add(n)
	}
	var lines []int
	for _, n := range b.PinsWith(slot.Capabilities...) {
		if _, ok := b.BusOfPin(n); ok {
			lines = append(lines, n)
			continue
		}
		add(n)
	}
	for _, n := range lines {
		add(n)
	}
	return out
}

// placeBus claims a bus slot: the bus lines (shared on shareable buses), an
// address slot on addressed buses and, for SPI, the matching select pin.
func (pl *placement) placeBus(slot *catalog.Slot) *SlotFailure {
	b := pl.a.board
	var f failures
	found := false
	for _, bus := range b.Buses(slot.Bus) {
		if !bus.Addressed && !slot.Address.IsAny() {
			continue
		}
		found = true

		mode := project.Exclusive
		if bus.Shared {
			mode = project.Shared
		}
		var lines []project.Claim
		blocked := false
		for _, pin := range bus.LinePins() {
			u := board.PinUnit(pin)
			if !pl.free(u, mode) {
				f.held(u, pl.held[u.ID])
				blocked = true
				break
			}
			lines = append(lines, project.Claim{Unit: u, Mode: mode, Slot: slot.Name})
		}
		if blocked {
			continue
		}

		if !bus.Addressed {
			vs := pl.try(lines...)
			if len(vs) == 0 {
				return nil
			}
			f.violated = append(f.violated, vs...)
			continue
		}

		for _, addr := range bus.Candidates(slot.Address) {
			u := board.AddressUnit(bus.ID, addr)
			if !pl.free(u, project.Exclusive) {
				f.held(u, pl.held[u.ID])
				continue
			}
			claims := append(append([]project.Claim(nil), lines...),
				project.Claim{Unit: u, Mode: project.Exclusive, Slot: slot.Name})
			if sel, ok := bus.SelectPin(addr); ok {
				su := board.PinUnit(sel)
				if !pl.free(su, project.Exclusive) {
					f.held(su, pl.held[su.ID])
					continue
				}
				claims = append(claims, project.Claim{Unit: su, Mode: project.Exclusive, Slot: slot.Name})
			}
			vs := pl.try(claims...)
			if len(vs) == 0 {
				return nil
			}
			f.violated = append(f.violated, vs...)
		}
	}
	if !found {
		return &SlotFailure{Slot: slot.Name, Reason: NoFreeUnit,
			Detail: fmt.Sprintf("%s has no %s bus offering %s", b.Name, slot.Bus, slot.Address)}
	}
	return f.slotFailure(slot, fmt.Sprintf("no %s on any %s bus of %s", slot.Address, slot.Bus, b.Name))
}

func holderNames(hs []project.Holder) string {
	names := make([]string, 0, len(hs))
	for _, h := range hs {
		names = append(names, h.Instance.SpecID)
	}
	return strings.Join(names, " and ")
}

func capList(caps []catalog.Capability) string {
	s := make([]string, len(caps))
	for i, c := range caps {
		s[i] = string(c)
	}
	return strings.Join(s, ", ")
}

// reasons joins the distinct violation reasons in a stable order.
func reasons(vs []compat.Violation) string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range vs {
		if !seen[v.Reason] {
			seen[v.Reason] = true
			out = append(out, v.Reason)
		}
	}
	sort.Strings(out)
	return strings.Join(out, "; ")
}
