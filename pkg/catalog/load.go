package catalog

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed catalogs/*.yaml
var catalogFS embed.FS

// DefaultName is the name of the embedded starter-kit catalog.
const DefaultName = "starter-kit"

// ErrInvalidCatalog is the sentinel wrapped by every CatalogError.
var ErrInvalidCatalog = errors.New("invalid catalog")

// CatalogError reports a malformed catalog record. It is fatal at load.
type CatalogError struct {
	Component string
	Field     string
	Reason    string
}

func (e *CatalogError) Error() string {
	switch {
	case e.Component != "" && e.Field != "":
		return fmt.Sprintf("catalog: component %q: %s: %s", e.Component, e.Field, e.Reason)
	case e.Component != "":
		return fmt.Sprintf("catalog: component %q: %s", e.Component, e.Reason)
	case e.Field != "":
		return fmt.Sprintf("catalog: %s: %s", e.Field, e.Reason)
	default:
		return "catalog: " + e.Reason
	}
}

func (e *CatalogError) Unwrap() error { return ErrInvalidCatalog }

// LoadOption configures Load.
type LoadOption func(*loadOptions)

type loadOptions struct {
	logger *slog.Logger
}

// WithLogger sets the logger used to report load progress.
func WithLogger(l *slog.Logger) LoadOption {
	return func(o *loadOptions) { o.logger = l }
}

// rawCatalog is the YAML-level representation before validation.
type rawCatalog struct {
	Version      int              `yaml:"version"`
	Capabilities []string         `yaml:"capabilities"`
	Affinity     map[string][]int `yaml:"affinity"`
	Components   []rawComponent   `yaml:"components"`
	Rules        []rawRule        `yaml:"rules"`
}

type rawComponent struct {
	ID        string       `yaml:"id"`
	Name      string       `yaml:"name"`
	Aliases   []string     `yaml:"aliases"`
	Family    string       `yaml:"family"`
	Tier      any          `yaml:"tier"`
	Protocol  string       `yaml:"protocol"`
	Voltage   string       `yaml:"voltage"`
	Slots     []rawSlot    `yaml:"slots"`
	Conflicts []string     `yaml:"conflicts"`
	Signature rawSignature `yaml:"signature"`
	PairsWith []rawPairing `yaml:"pairsWith"`
	Code      rawCode      `yaml:"code"`
}

type rawSlot struct {
	Name         string    `yaml:"name"`
	Pins         int       `yaml:"pins"`
	Capabilities []string  `yaml:"capabilities"`
	Preferred    []int     `yaml:"preferred"`
	Bus          string    `yaml:"bus"`
	Address      *Address  `yaml:"address"`
	Addresses    []Address `yaml:"addresses"`
	AddressRange []Address `yaml:"addressRange"`
}

type rawSignature struct {
	Trace         string    `yaml:"trace"`
	OneWireFamily *Address  `yaml:"oneWireFamily"`
	Probe         *rawProbe `yaml:"probe"`
}

type rawProbe struct {
	Register Address `yaml:"register"`
	Value    Address `yaml:"value"`
}

type rawPairing struct {
	ID     string  `yaml:"id"`
	Weight float64 `yaml:"weight"`
}

type rawCode struct {
	Imports []string `yaml:"imports"`
	Init    string   `yaml:"init"`
	Loop    string   `yaml:"loop"`
	Cleanup string   `yaml:"cleanup"`
}

type rawRule struct {
	ID      string   `yaml:"id"`
	Between []string `yaml:"between"`
	Reason  string   `yaml:"reason"`
}

// Default loads the embedded starter-kit catalog.
func Default(opts ...LoadOption) (*Catalog, error) {
	return LoadEmbedded(DefaultName, opts...)
}

// LoadEmbedded loads an embedded catalog by name.
func LoadEmbedded(name string, opts ...LoadOption) (*Catalog, error) {
	data, err := catalogFS.ReadFile("catalogs/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("catalog %q not found: %w", name, err)
	}
	return Load(data, opts...)
}

// LoadFile reads and loads a catalog file.
func LoadFile(path string, opts ...LoadOption) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	return Load(data, opts...)
}

// Load parses and validates a YAML catalog. The first problem found is
// returned as a *CatalogError.
func Load(data []byte, opts ...LoadOption) (*Catalog, error) {
	o := loadOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	var raw rawCatalog
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &CatalogError{Reason: fmt.Sprintf("parsing YAML: %v", err)}
	}

	c := &Catalog{
		specs:        make(map[string]*ComponentSpec),
		byFold:       make(map[string]string),
		byFamilyByte: make(map[uint8]string),
		capabilities: make(map[Capability]bool),
		affinity:     make(map[string][]int),
	}

	for _, tag := range raw.Capabilities {
		if tag == "" {
			return nil, &CatalogError{Field: "capabilities", Reason: "empty capability tag"}
		}
		c.capabilities[Capability(tag)] = true
	}

	for family, pins := range raw.Affinity {
		for _, p := range pins {
			if p < 0 {
				return nil, &CatalogError{Field: "affinity." + family, Reason: fmt.Sprintf("negative pin %d", p)}
			}
		}
		c.affinity[family] = pins
	}

	for _, rc := range raw.Components {
		spec, err := c.resolveComponent(rc)
		if err != nil {
			return nil, err
		}
		if _, dup := c.specs[spec.ID]; dup {
			return nil, &CatalogError{Component: spec.ID, Reason: "duplicate component id"}
		}
		if err := c.index(spec); err != nil {
			return nil, err
		}
		c.specs[spec.ID] = spec
		c.order = append(c.order, spec.ID)
	}
	sort.Strings(c.order)

	if err := c.checkReferences(raw.Rules); err != nil {
		return nil, err
	}

	o.logger.Debug("catalog loaded",
		slog.Int("components", len(c.specs)),
		slog.Int("capabilities", len(c.capabilities)),
		slog.Int("rules", len(c.rules)))

	return c, nil
}

func (c *Catalog) resolveComponent(rc rawComponent) (*ComponentSpec, error) {
	if rc.ID == "" {
		return nil, &CatalogError{Field: "id", Reason: "component without id"}
	}
	fail := func(field, format string, args ...any) error {
		return &CatalogError{Component: rc.ID, Field: field, Reason: fmt.Sprintf(format, args...)}
	}

	tier, ok := rc.Tier.(int)
	if !ok {
		return nil, fail("tier", "malformed complexity tier %v (want integer 1-8)", rc.Tier)
	}
	if tier < 1 || tier > 8 {
		return nil, fail("tier", "complexity tier %d out of range 1-8", tier)
	}

	proto := Protocol(rc.Protocol)
	if !validProtocols[proto] {
		return nil, fail("protocol", "unknown protocol %q", rc.Protocol)
	}

	volt := Voltage(rc.Voltage)
	switch volt {
	case Voltage3V3, Voltage5V, VoltageEither:
	default:
		return nil, fail("voltage", "unknown voltage class %q", rc.Voltage)
	}

	spec := &ComponentSpec{
		ID:           rc.ID,
		Name:         rc.Name,
		Aliases:      rc.Aliases,
		Family:       rc.Family,
		Tier:         tier,
		Protocol:     proto,
		Voltage:      volt,
		ConflictTags: rc.Conflicts,
		Code: CodeSnippets{
			Imports: rc.Code.Imports,
			Init:    rc.Code.Init,
			Loop:    rc.Code.Loop,
			Cleanup: rc.Code.Cleanup,
		},
	}
	if spec.Name == "" {
		spec.Name = spec.ID
	}

	if len(rc.Slots) == 0 {
		return nil, fail("slots", "component declares no resource slots")
	}
	names := make(map[string]bool)
	for i, rs := range rc.Slots {
		slot, err := c.resolveSlot(rs)
		if err != nil {
			return nil, fail(fmt.Sprintf("slots[%d]", i), "%v", err)
		}
		if names[slot.Name] {
			return nil, fail(fmt.Sprintf("slots[%d]", i), "duplicate slot name %q", slot.Name)
		}
		names[slot.Name] = true
		spec.Slots = append(spec.Slots, slot)
	}

	switch TraceShape(rc.Signature.Trace) {
	case "", TracePulledHigh, TracePeriodic, TraceLevel:
		spec.Signature.Trace = TraceShape(rc.Signature.Trace)
	default:
		return nil, fail("signature.trace", "unknown trace shape %q", rc.Signature.Trace)
	}
	if f := rc.Signature.OneWireFamily; f != nil {
		if *f > 0xff {
			return nil, fail("signature.oneWireFamily", "family byte %s exceeds 0xff", f)
		}
		b := uint8(*f)
		spec.Signature.OneWireFamily = &b
	}
	if p := rc.Signature.Probe; p != nil {
		if p.Register > 0xff || p.Value > 0xff {
			return nil, fail("signature.probe", "register and value must fit in a byte")
		}
		spec.Signature.Probe = &Probe{Register: uint8(p.Register), Value: uint8(p.Value)}
	}

	for _, rp := range rc.PairsWith {
		if rp.Weight <= 0 || rp.Weight > 1 {
			return nil, fail("pairsWith", "weight %.2f for %q outside (0,1]", rp.Weight, rp.ID)
		}
		spec.PairsWith = append(spec.PairsWith, Pairing{ID: rp.ID, Weight: rp.Weight})
	}

	snippets := []struct{ field, src string }{
		{"code.init", rc.Code.Init},
		{"code.loop", rc.Code.Loop},
		{"code.cleanup", rc.Code.Cleanup},
	}
	for _, s := range snippets {
		if _, err := template.New(s.field).Parse(s.src); err != nil {
			return nil, fail(s.field, "invalid template: %v", err)
		}
	}

	return spec, nil
}

func (c *Catalog) resolveSlot(rs rawSlot) (Slot, error) {
	if rs.Name == "" {
		return Slot{}, errors.New("slot without name")
	}
	hasPins, hasBus := rs.Pins != 0, rs.Bus != ""
	switch {
	case hasPins && hasBus:
		return Slot{}, fmt.Errorf("slot %q declares both pins and bus", rs.Name)
	case !hasPins && !hasBus:
		return Slot{}, fmt.Errorf("slot %q declares neither pins nor bus", rs.Name)
	}

	if hasPins {
		if rs.Pins < 0 {
			return Slot{}, fmt.Errorf("slot %q: negative pin count", rs.Name)
		}
		if rs.Address != nil || len(rs.Addresses) > 0 || len(rs.AddressRange) > 0 {
			return Slot{}, fmt.Errorf("slot %q: addresses are only valid on bus slots", rs.Name)
		}
		slot := Slot{Name: rs.Name, Kind: SlotPins, Count: rs.Pins, Preferred: rs.Preferred}
		for _, tag := range rs.Capabilities {
			if !c.capabilities[Capability(tag)] {
				return Slot{}, fmt.Errorf("slot %q references undefined capability %q", rs.Name, tag)
			}
			slot.Capabilities = append(slot.Capabilities, Capability(tag))
		}
		return slot, nil
	}

	kind := BusKind(rs.Bus)
	if !validBusKinds[kind] {
		return Slot{}, fmt.Errorf("slot %q: unknown bus kind %q", rs.Name, rs.Bus)
	}
	if len(rs.Capabilities) > 0 || len(rs.Preferred) > 0 {
		return Slot{}, fmt.Errorf("slot %q: capabilities and preferred pins are only valid on pin slots", rs.Name)
	}
	slot := Slot{Name: rs.Name, Kind: SlotBus, Bus: kind}

	declared := 0
	if rs.Address != nil {
		declared++
		a := *rs.Address
		slot.Address.Fixed = &a
	}
	if len(rs.Addresses) > 0 {
		declared++
		slot.Address.Set = rs.Addresses
	}
	if len(rs.AddressRange) > 0 {
		declared++
		if len(rs.AddressRange) != 2 || rs.AddressRange[0] > rs.AddressRange[1] {
			return Slot{}, fmt.Errorf("slot %q: addressRange must be [lo, hi] with lo <= hi", rs.Name)
		}
		slot.Address.Range = &AddressRange{Lo: rs.AddressRange[0], Hi: rs.AddressRange[1]}
	}
	if declared > 1 {
		return Slot{}, fmt.Errorf("slot %q: address, addresses and addressRange are mutually exclusive", rs.Name)
	}
	return slot, nil
}

// index registers the spec's lookup keys, rejecting ambiguous names.
func (c *Catalog) index(spec *ComponentSpec) error {
	keys := append([]string{spec.ID, spec.Name}, spec.Aliases...)
	for _, k := range keys {
		f := fold(k)
		if f == "" {
			continue
		}
		if owner, ok := c.byFold[f]; ok && owner != spec.ID {
			return &CatalogError{Component: spec.ID, Reason: fmt.Sprintf("name %q already used by %q", k, owner)}
		}
		c.byFold[f] = spec.ID
	}
	if fam := spec.Signature.OneWireFamily; fam != nil {
		if owner, ok := c.byFamilyByte[*fam]; ok {
			return &CatalogError{
				Component: spec.ID,
				Field:     "signature.oneWireFamily",
				Reason:    fmt.Sprintf("family byte 0x%02x already used by %q", *fam, owner),
			}
		}
		c.byFamilyByte[*fam] = spec.ID
	}
	return nil
}

// checkReferences validates cross-component references once every spec is known.
func (c *Catalog) checkReferences(rawRules []rawRule) error {
	for _, id := range c.order {
		for _, p := range c.specs[id].PairsWith {
			if _, ok := c.specs[p.ID]; !ok {
				return &CatalogError{Component: id, Field: "pairsWith", Reason: fmt.Sprintf("unknown component %q", p.ID)}
			}
			if p.ID == id {
				return &CatalogError{Component: id, Field: "pairsWith", Reason: "component pairs with itself"}
			}
		}
	}

	seen := make(map[string]bool)
	for i, rr := range rawRules {
		field := fmt.Sprintf("rules[%d]", i)
		if rr.ID == "" {
			return &CatalogError{Field: field, Reason: "rule without id"}
		}
		if seen[rr.ID] {
			return &CatalogError{Field: field, Reason: fmt.Sprintf("duplicate rule id %q", rr.ID)}
		}
		seen[rr.ID] = true
		if len(rr.Between) != 2 {
			return &CatalogError{Field: field, Reason: "between must name exactly two components"}
		}
		for _, id := range rr.Between {
			if _, ok := c.specs[id]; !ok {
				return &CatalogError{Field: field, Reason: fmt.Sprintf("unknown component %q", id)}
			}
		}
		c.rules = append(c.rules, PairRule{ID: rr.ID, A: rr.Between[0], B: rr.Between[1], Reason: rr.Reason})
	}
	return nil
}
