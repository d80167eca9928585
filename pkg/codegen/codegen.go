// Package codegen renders a runnable Python skeleton for the accepted
// instances of a project.
//
// Each component spec carries text/template snippets (imports, init, loop,
// cleanup). The snippets are rendered with the instance's variable name and
// the pins and addresses it actually claimed, then stitched into one script.
package codegen

import (
	"errors"
	"fmt"
	"strings"
	"text/template"
	"unicode"

	"github.com/pinwise/pinwise-go/pkg/board"
	"github.com/pinwise/pinwise-go/pkg/project"
)

// ErrMissingClaim is returned when a snippet references a slot the instance
// holds no matching claim for.
var ErrMissingClaim = errors.New("missing claim")

// Generator renders code skeletons. The zero value is ready to use.
type Generator struct{}

// New returns a Generator.
func New() *Generator { return &Generator{} }

// Generate renders the skeleton for the accepted instances of p, in project
// order. Instances without code snippets still get a variable and a wiring
// comment.
func (g *Generator) Generate(p *project.Project) (string, error) {
	data := skeletonData{Project: p.Name}
	seenImport := make(map[string]bool)
	names := newNamer()

	for _, inst := range p.Accepted() {
		sd := snippetData{Var: names.next(inst.SpecID), inst: inst}
		r := renderedInstance{Var: sd.Var, SpecID: inst.SpecID, Wiring: wiring(inst)}
		if inst.Spec != nil {
			code := inst.Spec.Code
			for _, imp := range code.Imports {
				if !seenImport[imp] {
					seenImport[imp] = true
					data.Imports = append(data.Imports, imp)
				}
			}
			var err error
			if r.Init, err = render(inst, "init", code.Init, sd); err != nil {
				return "", err
			}
			if r.Loop, err = render(inst, "loop", code.Loop, sd); err != nil {
				return "", err
			}
			if r.Cleanup, err = render(inst, "cleanup", code.Cleanup, sd); err != nil {
				return "", err
			}
		}
		data.Instances = append(data.Instances, r)
	}

	var b strings.Builder
	if err := skeleton.Execute(&b, data); err != nil {
		return "", fmt.Errorf("rendering skeleton: %w", err)
	}
	return b.String(), nil
}

func render(inst *project.Instance, part, src string, data snippetData) (string, error) {
	if strings.TrimSpace(src) == "" {
		return "", nil
	}
	t, err := template.New(inst.SpecID + "." + part).Option("missingkey=error").Parse(src)
	if err != nil {
		return "", fmt.Errorf("%s %s snippet: %w", inst.SpecID, part, err)
	}
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", fmt.Errorf("%s %s snippet: %w", inst.SpecID, part, err)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// snippetData is the dot of a component snippet.
type snippetData struct {
	Var  string
	inst *project.Instance
}

// Pin returns the first pin exclusively claimed for slot.
func (d snippetData) Pin(slot string) (int, error) {
	pins := d.inst.Pins(slot)
	if len(pins) == 0 {
		return 0, fmt.Errorf("%w: %s has no pin on slot %q", ErrMissingClaim, d.inst.SpecID, slot)
	}
	return pins[0], nil
}

// Pins returns every pin exclusively claimed for slot.
func (d snippetData) Pins(slot string) []int {
	return d.inst.Pins(slot)
}

// Address returns the bus address claimed for slot, formatted as a hex
// literal.
func (d snippetData) Address(slot string) (string, error) {
	u, ok := d.inst.Address(slot)
	if !ok {
		return "", fmt.Errorf("%w: %s has no address on slot %q", ErrMissingClaim, d.inst.SpecID, slot)
	}
	return u.Address.String(), nil
}

// Bus returns the id of the bus claimed for slot.
func (d snippetData) Bus(slot string) (string, error) {
	u, ok := d.inst.Address(slot)
	if !ok {
		return "", fmt.Errorf("%w: %s has no bus on slot %q", ErrMissingClaim, d.inst.SpecID, slot)
	}
	return u.Bus, nil
}

// wiring summarizes the exclusive claims of inst for the comment above its
// init code ("gpio5", "i2c1/0x48").
func wiring(inst *project.Instance) string {
	var parts []string
	for _, c := range inst.Claims {
		if c.Mode == project.Exclusive || c.Unit.Kind == board.UnitAddress {
			parts = append(parts, c.Unit.ID)
		}
	}
	return strings.Join(parts, ", ")
}

// namer hands out unique Python variable names: led, led_2, led_3.
type namer struct {
	used map[string]int
}

func newNamer() *namer { return &namer{used: make(map[string]int)} }

func (n *namer) next(specID string) string {
	base := snakeCase(specID)
	n.used[base]++
	if k := n.used[base]; k > 1 {
		return fmt.Sprintf("%s_%d", base, k)
	}
	return base
}

// snakeCase converts a spec id such as "TemperatureSensor_I2C" or "RGBLED"
// into a Python identifier ("temperature_sensor_i2c", "pir_sensor").
func snakeCase(s string) string {
	var b strings.Builder
	rs := []rune(s)
	for i, r := range rs {
		switch {
		case unicode.IsUpper(r):
			if i > 0 && (unicode.IsLower(rs[i-1]) ||
				unicode.IsUpper(rs[i-1]) && i+1 < len(rs) && unicode.IsLower(rs[i+1])) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsLower(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			if b.Len() > 0 && !strings.HasSuffix(b.String(), "_") {
				b.WriteByte('_')
			}
		}
	}
	out := strings.Trim(b.String(), "_")
	if out == "" {
		return "part"
	}
	if unicode.IsDigit(rune(out[0])) {
		out = "part_" + out
	}
	return out
}
