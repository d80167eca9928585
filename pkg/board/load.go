package board

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/pinwise/pinwise-go/pkg/catalog"
)

//go:embed boards/*.yaml
var boardFS embed.FS

// DefaultName is the embedded board used when none is configured.
const DefaultName = "raspberry-pi"

// ErrInvalidBoard is returned for malformed board definitions.
var ErrInvalidBoard = errors.New("invalid board")

type rawBoard struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Pins        []rawPin `yaml:"pins"`
	Buses       []rawBus `yaml:"buses"`
}

type rawPin struct {
	Number int      `yaml:"number"`
	Name   string   `yaml:"name"`
	Caps   []string `yaml:"caps"`
}

type rawBus struct {
	ID        string            `yaml:"id"`
	Kind      string            `yaml:"kind"`
	Shared    bool              `yaml:"shared"`
	Lines     map[string]int    `yaml:"lines"`
	Selects   []int             `yaml:"selects"`
	Addresses []catalog.Address `yaml:"addresses"`
	Reserved  []catalog.Address `yaml:"reserved"`
}

// Default returns the embedded Raspberry Pi board.
func Default() (*Board, error) {
	return LoadEmbedded(DefaultName)
}

// LoadEmbedded loads an embedded board definition by name.
func LoadEmbedded(name string) (*Board, error) {
	data, err := boardFS.ReadFile("boards/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("board %q not found: %w", name, err)
	}
	return Load(data)
}

// LoadFile reads a board definition from disk.
func LoadFile(path string) (*Board, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading board: %w", err)
	}
	return Load(data)
}

// Load parses and validates a YAML board definition.
func Load(data []byte) (*Board, error) {
	var raw rawBoard
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: parsing YAML: %v", ErrInvalidBoard, err)
	}
	if raw.Name == "" {
		return nil, fmt.Errorf("%w: missing name", ErrInvalidBoard)
	}

	b := &Board{Name: raw.Name, Description: raw.Description}
	seen := make(map[int]bool)
	for _, rp := range raw.Pins {
		if rp.Number < 0 {
			return nil, fmt.Errorf("%w: negative pin number %d", ErrInvalidBoard, rp.Number)
		}
		if seen[rp.Number] {
			return nil, fmt.Errorf("%w: duplicate pin %d", ErrInvalidBoard, rp.Number)
		}
		seen[rp.Number] = true
		p := Pin{Number: rp.Number, Name: rp.Name}
		for _, c := range rp.Caps {
			p.Caps = append(p.Caps, catalog.Capability(c))
		}
		b.pins = append(b.pins, p)
	}

	owner := make(map[int]string)
	ids := make(map[string]bool)
	for _, rb := range raw.Buses {
		bus, err := resolveBus(rb, seen)
		if err != nil {
			return nil, err
		}
		if ids[bus.ID] {
			return nil, fmt.Errorf("%w: duplicate bus %q", ErrInvalidBoard, bus.ID)
		}
		ids[bus.ID] = true
		for _, p := range append(bus.LinePins(), bus.Selects...) {
			if other, ok := owner[p]; ok {
				return nil, fmt.Errorf("%w: pin %d used by both %q and %q", ErrInvalidBoard, p, other, bus.ID)
			}
			owner[p] = bus.ID
		}
		b.buses = append(b.buses, bus)
	}

	b.index()
	return b, nil
}

func resolveBus(rb rawBus, pins map[int]bool) (*Bus, error) {
	if rb.ID == "" {
		return nil, fmt.Errorf("%w: bus without id", ErrInvalidBoard)
	}
	kind := catalog.BusKind(rb.Kind)
	if !catalog.ValidBusKind(kind) {
		return nil, fmt.Errorf("%w: bus %q: unknown kind %q", ErrInvalidBoard, rb.ID, rb.Kind)
	}
	if len(rb.Lines) == 0 {
		return nil, fmt.Errorf("%w: bus %q has no lines", ErrInvalidBoard, rb.ID)
	}

	bus := &Bus{ID: rb.ID, Kind: kind, Shared: rb.Shared, Selects: rb.Selects, Reserved: rb.Reserved}
	for role, p := range rb.Lines {
		if !pins[p] {
			return nil, fmt.Errorf("%w: bus %q line %s references unknown pin %d", ErrInvalidBoard, rb.ID, role, p)
		}
		bus.Lines = append(bus.Lines, Line{Role: role, Pin: p})
	}
	sort.Slice(bus.Lines, func(i, j int) bool { return bus.Lines[i].Pin < bus.Lines[j].Pin })

	for _, s := range rb.Selects {
		if !pins[s] {
			return nil, fmt.Errorf("%w: bus %q select references unknown pin %d", ErrInvalidBoard, rb.ID, s)
		}
	}

	switch {
	case len(rb.Addresses) > 0 && len(rb.Selects) > 0:
		return nil, fmt.Errorf("%w: bus %q declares both addresses and selects", ErrInvalidBoard, rb.ID)
	case len(rb.Addresses) > 0:
		if len(rb.Addresses) != 2 || rb.Addresses[0] > rb.Addresses[1] {
			return nil, fmt.Errorf("%w: bus %q addresses must be [lo, hi]", ErrInvalidBoard, rb.ID)
		}
		bus.Addressed = true
		bus.AddrMin, bus.AddrMax = rb.Addresses[0], rb.Addresses[1]
	case len(rb.Selects) > 0:
		bus.Addressed = true
		bus.AddrMin, bus.AddrMax = 0, catalog.Address(len(rb.Selects)-1)
	}

	if bus.Addressed && !bus.Shared {
		return nil, fmt.Errorf("%w: addressed bus %q must be shared", ErrInvalidBoard, rb.ID)
	}
	return bus, nil
}
