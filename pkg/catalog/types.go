package catalog

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Protocol is the signalling protocol a component speaks.
type Protocol string

const (
	ProtocolDigital Protocol = "digital"
	ProtocolPWM     Protocol = "pwm"
	ProtocolI2C     Protocol = "i2c"
	ProtocolSPI     Protocol = "spi"
	ProtocolOneWire Protocol = "one-wire"
	ProtocolUART    Protocol = "uart"
)

var validProtocols = map[Protocol]bool{
	ProtocolDigital: true,
	ProtocolPWM:     true,
	ProtocolI2C:     true,
	ProtocolSPI:     true,
	ProtocolOneWire: true,
	ProtocolUART:    true,
}

// Voltage is the supply/logic voltage class of a component.
type Voltage string

const (
	Voltage3V3    Voltage = "3v3"
	Voltage5V     Voltage = "5v"
	VoltageEither Voltage = "either"
)

// CompatibleWith reports whether two voltage classes may share a ground plane.
// "either" is compatible with everything; otherwise the classes must match.
func (v Voltage) CompatibleWith(other Voltage) bool {
	if v == VoltageEither || other == VoltageEither {
		return true
	}
	return v == other
}

// Capability is a pin capability tag, e.g. "digital", "pull" or "hw-pwm".
type Capability string

// Well-known capability tags used by the default board and catalog.
const (
	CapDigital Capability = "digital"
	CapPull    Capability = "pull"
	CapPWM     Capability = "pwm"
	CapHWPWM   Capability = "hw-pwm"
	CapSPICE   Capability = "spi-ce"
)

// BusKind identifies a shared bus type.
type BusKind string

const (
	BusI2C     BusKind = "i2c"
	BusSPI     BusKind = "spi"
	BusOneWire BusKind = "one-wire"
	BusUART    BusKind = "uart"
)

var validBusKinds = map[BusKind]bool{
	BusI2C:     true,
	BusSPI:     true,
	BusOneWire: true,
	BusUART:    true,
}

// ValidBusKind reports whether k is a known bus kind.
func ValidBusKind(k BusKind) bool { return validBusKinds[k] }

// Address is a bus address. In YAML it may be written as an integer
// (0x48, 72) or as a string ("0x48").
type Address uint16

// String returns the address in 0x-prefixed hex.
func (a Address) String() string {
	return fmt.Sprintf("0x%02x", uint16(a))
}

// UnmarshalYAML accepts integers and numeric strings in any base.
func (a *Address) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: address must be a scalar", node.Line)
	}
	v, err := strconv.ParseUint(strings.TrimSpace(node.Value), 0, 16)
	if err != nil {
		return fmt.Errorf("line %d: malformed address %q", node.Line, node.Value)
	}
	*a = Address(v)
	return nil
}

// ParseAddress parses "0x48", "72" or "0o110" into an Address.
func ParseAddress(s string) (Address, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 16)
	if err != nil {
		return 0, fmt.Errorf("malformed address %q", s)
	}
	return Address(v), nil
}

// AddressRange is an inclusive range of bus addresses.
type AddressRange struct {
	Lo Address
	Hi Address
}

// Contains reports whether a lies within the range.
func (r AddressRange) Contains(a Address) bool {
	return a >= r.Lo && a <= r.Hi
}

// AddressMatch describes how well an address satisfies a requirement.
type AddressMatch uint8

const (
	// MatchNone means the address does not satisfy the requirement.
	MatchNone AddressMatch = iota
	// MatchRange means the address lies in a declared range.
	MatchRange
	// MatchExact means the address equals a fixed or listed address.
	MatchExact
)

// AddressRequirement is the address part of a bus slot. At most one of
// Fixed, Set and Range is populated; none means any free address.
type AddressRequirement struct {
	Fixed *Address
	Set   []Address
	Range *AddressRange
}

// IsAny reports whether the requirement accepts any address.
func (r AddressRequirement) IsAny() bool {
	return r.Fixed == nil && len(r.Set) == 0 && r.Range == nil
}

// Match classifies an address against the requirement. A requirement that
// accepts any address never produces an exact match.
func (r AddressRequirement) Match(a Address) AddressMatch {
	switch {
	case r.Fixed != nil:
		if *r.Fixed == a {
			return MatchExact
		}
	case len(r.Set) > 0:
		for _, s := range r.Set {
			if s == a {
				return MatchExact
			}
		}
	case r.Range != nil:
		if r.Range.Contains(a) {
			return MatchRange
		}
	}
	return MatchNone
}

// Accepts reports whether a may be claimed for this requirement.
func (r AddressRequirement) Accepts(a Address) bool {
	if r.IsAny() {
		return true
	}
	return r.Match(a) != MatchNone
}

// Candidates lists the addresses acceptable for the requirement, limited to
// the bus window [lo, hi], in preference order.
func (r AddressRequirement) Candidates(lo, hi Address) []Address {
	var out []Address
	inWindow := func(a Address) bool { return a >= lo && a <= hi }
	switch {
	case r.Fixed != nil:
		if inWindow(*r.Fixed) {
			out = append(out, *r.Fixed)
		}
	case len(r.Set) > 0:
		for _, a := range r.Set {
			if inWindow(a) {
				out = append(out, a)
			}
		}
	default:
		from, to := lo, hi
		if r.Range != nil {
			from, to = max(lo, r.Range.Lo), min(hi, r.Range.Hi)
		}
		for a := int(from); a <= int(to); a++ {
			out = append(out, Address(a))
		}
	}
	return out
}

// String describes the requirement for diagnostics.
func (r AddressRequirement) String() string {
	switch {
	case r.Fixed != nil:
		return "address " + r.Fixed.String()
	case len(r.Set) > 0:
		parts := make([]string, len(r.Set))
		for i, a := range r.Set {
			parts[i] = a.String()
		}
		return "one of addresses " + strings.Join(parts, ", ")
	case r.Range != nil:
		return fmt.Sprintf("an address in %s..%s", r.Range.Lo, r.Range.Hi)
	default:
		return "any free address"
	}
}

// SlotKind distinguishes pin slots from bus slots.
type SlotKind uint8

const (
	SlotPins SlotKind = iota
	SlotBus
)

// Slot is one resource requirement of a component.
type Slot struct {
	// Name is the role of the slot ("signal", "trigger", "bus").
	Name string
	Kind SlotKind

	// Pin slots.
	Count        int
	Capabilities []Capability
	Preferred    []int

	// Bus slots.
	Bus     BusKind
	Address AddressRequirement
}

// Requires reports whether the slot requires capability c.
func (s *Slot) Requires(c Capability) bool {
	for _, have := range s.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// Describe returns a short human-readable description of the slot.
func (s *Slot) Describe() string {
	if s.Kind == SlotBus {
		return fmt.Sprintf("%s bus (%s)", s.Bus, s.Address)
	}
	caps := make([]string, len(s.Capabilities))
	for i, c := range s.Capabilities {
		caps[i] = string(c)
	}
	noun := "pin"
	if s.Count > 1 {
		noun = "pins"
	}
	if len(caps) == 0 {
		return fmt.Sprintf("%d %s", s.Count, noun)
	}
	return fmt.Sprintf("%d %s with [%s]", s.Count, noun, strings.Join(caps, ", "))
}

// TraceShape is the digital waveform class a component produces.
type TraceShape string

const (
	TracePulledHigh TraceShape = "pulled-high"
	TracePeriodic   TraceShape = "periodic"
	TraceLevel      TraceShape = "level"
)

// Probe is a register/value pair used to tell apart devices sharing an address.
type Probe struct {
	Register uint8
	Value    uint8
}

// Signature tells the classifier how to recognize a component.
type Signature struct {
	Trace         TraceShape
	OneWireFamily *uint8
	Probe         *Probe
}

// Pairing is a "frequently paired with" relation.
type Pairing struct {
	ID     string
	Weight float64
}

// CodeSnippets are text/template fragments used by the code generator.
type CodeSnippets struct {
	Imports []string
	Init    string
	Loop    string
	Cleanup string
}

// ComponentSpec is an immutable component definition.
type ComponentSpec struct {
	ID           string
	Name         string
	Aliases      []string
	Family       string
	Tier         int
	Protocol     Protocol
	Voltage      Voltage
	Slots        []Slot
	ConflictTags []string
	Signature    Signature
	PairsWith    []Pairing
	Code         CodeSnippets
}

// Slot returns the slot with the given name.
func (s *ComponentSpec) Slot(name string) (*Slot, bool) {
	for i := range s.Slots {
		if s.Slots[i].Name == name {
			return &s.Slots[i], true
		}
	}
	return nil, false
}

// BusSlots returns the bus slots of the spec.
func (s *ComponentSpec) BusSlots() []*Slot {
	var out []*Slot
	for i := range s.Slots {
		if s.Slots[i].Kind == SlotBus {
			out = append(out, &s.Slots[i])
		}
	}
	return out
}

// HasConflictTag reports whether the spec declares tag.
func (s *ComponentSpec) HasConflictTag(tag string) bool {
	for _, t := range s.ConflictTags {
		if t == tag {
			return true
		}
	}
	return false
}

// PairRule is a catalog-declared incompatibility between two specs.
type PairRule struct {
	ID     string
	A, B   string
	Reason string
}

// Involves reports whether the rule applies to the unordered pair (a, b).
func (r PairRule) Involves(a, b string) bool {
	return (r.A == a && r.B == b) || (r.A == b && r.B == a)
}
