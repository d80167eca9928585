package classify

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/pinwise/pinwise-go/pkg/catalog"
)

// ErrInvalidObservation is returned when an observation cannot be decoded.
var ErrInvalidObservation = errors.New("invalid observation")

// Kind identifies the type of an observation.
type Kind uint8

const (
	KindDigitalTrace Kind = iota
	KindBusScan
	KindOneWire
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindDigitalTrace:
		return "trace"
	case KindBusScan:
		return "scan"
	case KindOneWire:
		return "onewire"
	default:
		return "unknown"
	}
}

// Observation is a raw electrical observation made by a scanning collaborator.
type Observation interface {
	Kind() Kind
	String() string
}

// Pull is the bias applied to a pin while sampling it.
type Pull string

const (
	PullNone Pull = ""
	PullUp   Pull = "up"
	PullDown Pull = "down"
)

// DigitalTrace is a window of level samples taken from one pin.
type DigitalTrace struct {
	Pin     int
	Samples []bool
	// Pull is the internal bias active while Samples were taken.
	Pull Pull
	// PullDownSamples, if present, were taken after switching the bias to
	// pull-down. A floating input follows the bias; a driven one does not.
	PullDownSamples []bool
}

func (DigitalTrace) Kind() Kind { return KindDigitalTrace }

func (t DigitalTrace) String() string {
	return fmt.Sprintf("trace on pin %d (%d samples)", t.Pin, len(t.Samples))
}

// ProbeResponse is the value read back from a device register.
type ProbeResponse struct {
	Register uint8
	Value    uint8
}

// BusScanResult is a device found answering on a bus.
type BusScanResult struct {
	Bus     catalog.BusKind
	Address catalog.Address
	Probe   *ProbeResponse
}

func (BusScanResult) Kind() Kind { return KindBusScan }

func (s BusScanResult) String() string {
	if s.Probe != nil {
		return fmt.Sprintf("%s scan %s (reg 0x%02x = 0x%02x)", s.Bus, s.Address, s.Probe.Register, s.Probe.Value)
	}
	return fmt.Sprintf("%s scan %s", s.Bus, s.Address)
}

// OneWireID is a 64-bit 1-Wire ROM code read from a bus. The most
// significant byte is the family code, followed by a 48-bit serial number
// and the CRC byte.
type OneWireID struct {
	Bus string
	ROM uint64
}

func (OneWireID) Kind() Kind { return KindOneWire }

// Family returns the family code of the ROM.
func (o OneWireID) Family() uint8 {
	return uint8(o.ROM >> 56)
}

// Serial returns the 48-bit serial number.
func (o OneWireID) Serial() uint64 {
	return (o.ROM >> 8) & 0xffffffffffff
}

// String formats the id the way the Linux w1 subsystem names devices.
func (o OneWireID) String() string {
	return fmt.Sprintf("%02x-%012x", o.Family(), o.Serial())
}

// ParseOneWireID parses "28-00000a1b2c3d" (family-serial) or a 16 digit
// hex ROM code.
func ParseOneWireID(bus, s string) (OneWireID, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	s = strings.TrimPrefix(s, "0x")
	fam, serial, ok := strings.Cut(s, "-")
	if !ok {
		if len(s) != 16 {
			return OneWireID{}, fmt.Errorf("%w: 1-wire id %q: want 16 hex digits", ErrInvalidObservation, s)
		}
		rom, err := strconv.ParseUint(s, 16, 64)
		if err != nil {
			return OneWireID{}, fmt.Errorf("%w: 1-wire id %q", ErrInvalidObservation, s)
		}
		return OneWireID{Bus: bus, ROM: rom}, nil
	}
	f, err := strconv.ParseUint(fam, 16, 8)
	if err != nil || len(fam) != 2 {
		return OneWireID{}, fmt.Errorf("%w: 1-wire family %q", ErrInvalidObservation, fam)
	}
	n, err := strconv.ParseUint(serial, 16, 48)
	if err != nil || len(serial) == 0 || len(serial) > 12 {
		return OneWireID{}, fmt.Errorf("%w: 1-wire serial %q", ErrInvalidObservation, serial)
	}
	return OneWireID{Bus: bus, ROM: f<<56 | n<<8}, nil
}
