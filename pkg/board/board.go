// Package board describes the resource inventory of a target single-board
// computer: its GPIO pins with capability tags and its buses with their lines
// and address windows.
//
// A Board never changes after load. Ownership of its units is tracked by the
// project package; the board only answers identity and capability questions.
package board

import (
	"fmt"
	"sort"

	"github.com/pinwise/pinwise-go/pkg/catalog"
)

// UnitKind distinguishes pin units from bus address units.
type UnitKind uint8

const (
	UnitPin UnitKind = iota
	UnitAddress
)

// String returns the kind name.
func (k UnitKind) String() string {
	switch k {
	case UnitPin:
		return "pin"
	case UnitAddress:
		return "address"
	default:
		return fmt.Sprintf("UnitKind(%d)", k)
	}
}

// Unit is a single addressable resource: a GPIO pin or an address slot on a
// bus. Its ID is stable across projects and sessions.
type Unit struct {
	ID      string          `json:"id"`
	Kind    UnitKind        `json:"kind"`
	Pin     int             `json:"pin,omitempty"`
	Bus     string          `json:"bus,omitempty"`
	Address catalog.Address `json:"address,omitempty"`
}

// PinUnit returns the unit for a GPIO pin.
func PinUnit(n int) Unit {
	return Unit{ID: fmt.Sprintf("gpio%d", n), Kind: UnitPin, Pin: n}
}

// AddressUnit returns the unit for an address slot on a bus.
func AddressUnit(bus string, addr catalog.Address) Unit {
	return Unit{ID: bus + "/" + addr.String(), Kind: UnitAddress, Bus: bus, Address: addr}
}

// String returns a description suitable for diagnostics ("pin 17",
// "address 0x48 on i2c1").
func (u Unit) String() string {
	if u.Kind == UnitAddress {
		return fmt.Sprintf("address %s on %s", u.Address, u.Bus)
	}
	return fmt.Sprintf("pin %d", u.Pin)
}

// Pin is a GPIO pin and its capability tags.
type Pin struct {
	Number int
	Name   string
	Caps   []catalog.Capability
}

// Has reports whether the pin carries capability c.
func (p Pin) Has(c catalog.Capability) bool {
	for _, have := range p.Caps {
		if have == c {
			return true
		}
	}
	return false
}

// Line is a named pin role on a bus ("sda", "mosi", "data").
type Line struct {
	Role string
	Pin  int
}

// Bus is a physical bus on the board.
type Bus struct {
	ID   string
	Kind catalog.BusKind

	// Shared buses allow several components to reference their lines at
	// once, told apart by address. Lines of a non-shared bus are claimed
	// exclusively by one component.
	Shared bool
	Lines  []Line

	// Selects are per-device select pins (SPI chip enables). Address n on
	// the bus maps to Selects[n].
	Selects []int

	// Addressed buses hand out one address slot per device from the
	// window [AddrMin, AddrMax], minus Reserved.
	Addressed bool
	AddrMin   catalog.Address
	AddrMax   catalog.Address
	Reserved  []catalog.Address
}

// Addresses returns the assignable addresses of the bus in ascending order.
func (b *Bus) Addresses() []catalog.Address {
	if !b.Addressed {
		return nil
	}
	reserved := make(map[catalog.Address]bool, len(b.Reserved))
	for _, a := range b.Reserved {
		reserved[a] = true
	}
	var out []catalog.Address
	for a := int(b.AddrMin); a <= int(b.AddrMax); a++ {
		if !reserved[catalog.Address(a)] {
			out = append(out, catalog.Address(a))
		}
	}
	return out
}

// Candidates filters the bus addresses through an address requirement.
func (b *Bus) Candidates(req catalog.AddressRequirement) []catalog.Address {
	if !b.Addressed {
		return nil
	}
	reserved := make(map[catalog.Address]bool, len(b.Reserved))
	for _, a := range b.Reserved {
		reserved[a] = true
	}
	var out []catalog.Address
	for _, a := range req.Candidates(b.AddrMin, b.AddrMax) {
		if !reserved[a] {
			out = append(out, a)
		}
	}
	return out
}

// SelectPin returns the select pin tied to addr, if the bus has one.
func (b *Bus) SelectPin(addr catalog.Address) (int, bool) {
	if int(addr) < len(b.Selects) {
		return b.Selects[addr], true
	}
	return 0, false
}

// LinePins returns the pin numbers of the bus lines.
func (b *Bus) LinePins() []int {
	out := make([]int, len(b.Lines))
	for i, l := range b.Lines {
		out[i] = l.Pin
	}
	return out
}

// Board is an immutable pin and bus inventory.
type Board struct {
	Name        string
	Description string

	pins     []Pin
	byNumber map[int]int
	buses    []*Bus
	byBus    map[string]*Bus
	busLines map[int]string // pin -> bus id, for lines and selects
}

// Pins returns every pin in ascending number order.
func (b *Board) Pins() []Pin {
	return b.pins
}

// Pin returns the pin with the given number.
func (b *Board) Pin(n int) (Pin, bool) {
	i, ok := b.byNumber[n]
	if !ok {
		return Pin{}, false
	}
	return b.pins[i], true
}

// PinHas reports whether pin n exists and carries every capability in caps.
func (b *Board) PinHas(n int, caps ...catalog.Capability) bool {
	p, ok := b.Pin(n)
	if !ok {
		return false
	}
	for _, c := range caps {
		if !p.Has(c) {
			return false
		}
	}
	return true
}

// PinsWith lists the pins carrying every capability in caps.
func (b *Board) PinsWith(caps ...catalog.Capability) []int {
	var out []int
	for _, p := range b.pins {
		if b.PinHas(p.Number, caps...) {
			out = append(out, p.Number)
		}
	}
	return out
}

// Buses returns the buses of the given kind in declaration order. An empty
// kind returns every bus.
func (b *Board) Buses(kind catalog.BusKind) []*Bus {
	if kind == "" {
		return b.buses
	}
	var out []*Bus
	for _, bus := range b.buses {
		if bus.Kind == kind {
			out = append(out, bus)
		}
	}
	return out
}

// Bus returns the bus with the given id.
func (b *Board) Bus(id string) (*Bus, bool) {
	bus, ok := b.byBus[id]
	return bus, ok
}

// BusOfPin returns the id of the bus that uses pin n as a line or select
// pin.
func (b *Board) BusOfPin(n int) (string, bool) {
	id, ok := b.busLines[n]
	return id, ok
}

// Units enumerates every resource unit of the board: pins first, then the
// address slots of each addressed bus.
func (b *Board) Units() []Unit {
	out := make([]Unit, 0, len(b.pins))
	for _, p := range b.pins {
		out = append(out, PinUnit(p.Number))
	}
	for _, bus := range b.buses {
		for _, a := range bus.Addresses() {
			out = append(out, AddressUnit(bus.ID, a))
		}
	}
	return out
}

func (b *Board) index() {
	sort.Slice(b.pins, func(i, j int) bool { return b.pins[i].Number < b.pins[j].Number })
	b.byNumber = make(map[int]int, len(b.pins))
	for i, p := range b.pins {
		b.byNumber[p.Number] = i
	}
	b.byBus = make(map[string]*Bus, len(b.buses))
	b.busLines = make(map[int]string)
	for _, bus := range b.buses {
		b.byBus[bus.ID] = bus
		for _, l := range bus.Lines {
			b.busLines[l.Pin] = bus.ID
		}
		for _, s := range bus.Selects {
			b.busLines[s] = bus.ID
		}
	}
}
