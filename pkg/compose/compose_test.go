package compose

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pinwise/pinwise-go/pkg/alloc"
	"github.com/pinwise/pinwise-go/pkg/board"
	"github.com/pinwise/pinwise-go/pkg/catalog"
	"github.com/pinwise/pinwise-go/pkg/compat"
	"github.com/pinwise/pinwise-go/pkg/compat/rules"
	"github.com/pinwise/pinwise-go/pkg/log"
	"github.com/pinwise/pinwise-go/pkg/log/mocks"
	"github.com/pinwise/pinwise-go/pkg/project"
)

const testCatalog = `
capabilities: [digital, pull, pwm, hw-pwm]
components:
  - id: LED
    aliases: [light]
    tier: 1
    protocol: digital
    voltage: either
    slots: [{name: signal, pins: 1, capabilities: [digital]}]
    pairsWith: [{id: Button, weight: 0.9}, {id: PIRSensor, weight: 0.5}]
  - id: Button
    tier: 1
    protocol: digital
    voltage: either
    slots: [{name: signal, pins: 1, capabilities: [digital, pull]}]
    pairsWith: [{id: Buzzer, weight: 0.7}, {id: LED, weight: 0.9}]
  - {id: Buzzer, tier: 2, protocol: pwm, voltage: either, slots: [{name: signal, pins: 1, capabilities: [pwm]}]}
  - {id: PIRSensor, tier: 2, protocol: digital, voltage: either, slots: [{name: signal, pins: 1, capabilities: [digital]}]}
  - {id: Relay, tier: 2, protocol: digital, voltage: 5v, slots: [{name: signal, pins: 1, capabilities: [digital]}]}
  - id: TemperatureSensor_I2C
    tier: 3
    protocol: i2c
    voltage: 3v3
    slots: [{name: bus, bus: i2c, address: 0x48}]
    pairsWith: [{id: Buzzer, weight: 0.7}]
  - {id: PressureSensor_I2C, tier: 5, protocol: i2c, voltage: 3v3, slots: [{name: bus, bus: i2c, address: 0x48}]}
  - {id: RFID, tier: 6, protocol: spi, voltage: 3v3, slots: [{name: bus, bus: spi}, {name: reset, pins: 1, capabilities: [digital]}]}
`

type fixture struct {
	cat      *catalog.Catalog
	board    *board.Board
	registry *compat.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c, err := catalog.Load([]byte(testCatalog))
	require.NoError(t, err)
	b, err := board.Default()
	require.NoError(t, err)
	return &fixture{cat: c, board: b, registry: rules.NewDefaultRegistry()}
}

func (f *fixture) composer(opts ...Option) *Composer {
	r := compat.NewResolver(f.registry, f.board, f.cat)
	return New(f.cat, alloc.New(r, f.cat), opts...)
}

func kinds(ss []Suggestion) []SuggestionKind {
	out := make([]SuggestionKind, len(ss))
	for i, s := range ss {
		out[i] = s.Kind
	}
	return out
}

func specIDs(insts []*project.Instance) []string {
	out := make([]string, len(insts))
	for i, inst := range insts {
		out[i] = inst.SpecID
	}
	return out
}

func TestComposeScenario(t *testing.T) {
	f := newFixture(t)
	c := f.composer()

	p, ss := c.Compose([]Candidate{
		{Type: "PressureSensor_I2C", Confidence: 0.6},
		{Type: "LED", Confidence: 0.9},
		{Type: "TemperatureSensor_I2C", Confidence: 0.7},
		{Type: "Button", Confidence: 0.8},
	}, nil)

	assert.Equal(t, []string{"LED", "Button", "TemperatureSensor_I2C"}, specIDs(p.Instances),
		"placed in confidence order")
	assert.True(t, p.Valid)
	assert.Equal(t, 5, p.TotalComplexity())

	require.NotEmpty(t, ss)
	rejected := ss[0]
	assert.Equal(t, KindRejected, rejected.Kind)
	assert.Equal(t, "PressureSensor_I2C", rejected.SpecID)
	assert.Equal(t,
		"cannot place PressureSensor_I2C: slot bus: address 0x48 on i2c1 already claimed by TemperatureSensor_I2C"+
			" (removing TemperatureSensor_I2C would make room)",
		rejected.Message)

	temp, ok := findSpec(p, "TemperatureSensor_I2C")
	require.True(t, ok)
	assert.Equal(t, []string{temp.ID}, rejected.Unplug)
	require.NotNil(t, rejected.Instance)
	assert.Equal(t, project.StateRejected, rejected.Instance.State)
}

func findSpec(p *project.Project, specID string) (*project.Instance, bool) {
	for _, inst := range p.Instances {
		if inst.SpecID == specID {
			return inst, true
		}
	}
	return nil, false
}

func TestComposeDoesNotMutateExisting(t *testing.T) {
	f := newFixture(t)
	c := f.composer()

	base, _ := c.Compose([]Candidate{{Type: "LED", Confidence: 1}}, nil)
	before := base.Clone()

	_, _ = c.Compose([]Candidate{{Type: "Button", Confidence: 1}}, base)
	assert.Empty(t, cmp.Diff(before, base))
}

func TestComposeIdempotent(t *testing.T) {
	f := newFixture(t)
	c := f.composer()
	cands := []Candidate{{Type: "LED", Confidence: 0.9}, {Type: "TemperatureSensor_I2C", Confidence: 0.5}}

	first, _ := c.Compose(cands, nil)
	second, ss := c.Compose(cands, first)

	assert.Empty(t, cmp.Diff(first.Instances, second.Instances))

	var dups []string
	for _, s := range ss {
		if s.Kind == KindDuplicate {
			dups = append(dups, s.SpecID)
		}
	}
	assert.Equal(t, []string{"LED", "TemperatureSensor_I2C"}, dups)
}

func TestComposeCount(t *testing.T) {
	f := newFixture(t)
	c := f.composer()

	p, _ := c.Compose([]Candidate{{Type: "LED", Confidence: 1, Count: 3}}, nil)
	assert.Equal(t, 3, p.CountAccepted("LED"))

	p, ss := c.Compose([]Candidate{{Type: "LED", Confidence: 1, Count: 4}}, p)
	assert.Equal(t, 4, p.CountAccepted("LED"), "only the missing instance is added")
	assert.NotContains(t, kinds(ss), KindDuplicate)

	_, ss = c.Compose([]Candidate{{Type: "LED", Confidence: 1, Count: 2}}, p)
	require.NotEmpty(t, ss)
	assert.Equal(t, KindDuplicate, ss[0].Kind)
	assert.Equal(t, "LED already in the project (4 of 2), nothing to do", ss[0].Message)
}

func TestComposeUnknown(t *testing.T) {
	f := newFixture(t)
	c := f.composer()

	tests := []struct {
		name    string
		typ     string
		want    []string
		message string
	}{
		{"typo", "LDE", []string{"LED"}, `unknown component "LDE", did you mean LED?`},
		{"case", "buton", []string{"Button"}, `unknown component "buton", did you mean Button?`},
		{"far away", "Oscilloscope", nil, `unknown component "Oscilloscope"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ss := c.Compose([]Candidate{{Type: tt.typ, Confidence: 1}}, nil)
			assert.Empty(t, p.Instances)
			require.Len(t, ss, 1)
			assert.Equal(t, KindUnknown, ss[0].Kind)
			assert.Equal(t, tt.want, ss[0].DidYouMean)
			assert.Equal(t, tt.message, ss[0].Message)
		})
	}
}

func TestComposeResolvesAliases(t *testing.T) {
	f := newFixture(t)
	c := f.composer()

	p, _ := c.Compose([]Candidate{{Type: "light", Confidence: 1}}, nil)
	assert.Equal(t, []string{"LED"}, specIDs(p.Instances))
}

func TestComplementarySuggestions(t *testing.T) {
	f := newFixture(t)

	p, ss := f.composer().Compose([]Candidate{
		{Type: "LED", Confidence: 1},
		{Type: "TemperatureSensor_I2C", Confidence: 1},
	}, nil)
	require.Len(t, p.Instances, 2)

	var comp []Suggestion
	for _, s := range ss {
		if s.Kind == KindComplementary {
			comp = append(comp, s)
		}
	}
	require.Len(t, comp, 3)
	assert.Equal(t, "Button", comp[0].SpecID)
	assert.Equal(t, "Buzzer", comp[1].SpecID)
	assert.Equal(t, "PIRSensor", comp[2].SpecID)
	assert.Equal(t, "Button is often used with LED", comp[0].Message)
	assert.InDelta(t, 0.9, comp[0].Weight, 1e-9)

	_, ss = f.composer(WithMaxSuggestions(1)).Compose([]Candidate{{Type: "LED", Confidence: 1}}, nil)
	var n int
	for _, s := range ss {
		if s.Kind == KindComplementary {
			n++
		}
	}
	assert.Equal(t, 1, n)
}

func TestAdvisories(t *testing.T) {
	t.Run("tier jump", func(t *testing.T) {
		f := newFixture(t)
		_, ss := f.composer().Compose([]Candidate{
			{Type: "LED", Confidence: 1},
			{Type: "RFID", Confidence: 1},
		}, nil)

		var adv []Suggestion
		for _, s := range ss {
			if s.Kind == KindAdvisory {
				adv = append(adv, s)
			}
		}
		require.Len(t, adv, 1)
		assert.Equal(t, "RFID", adv[0].SpecID)
		assert.Contains(t, adv[0].Message, "complexity jumps from tier 1 (LED) to tier 6 (RFID)")
	})

	t.Run("mixed voltage", func(t *testing.T) {
		f := newFixture(t)
		f.registry.SetSeverity("VOLT-001", compat.SeverityWarning)

		p, ss := f.composer().Compose([]Candidate{
			{Type: "TemperatureSensor_I2C", Confidence: 1},
			{Type: "Relay", Confidence: 1},
		}, nil)
		require.Equal(t, 2, len(p.Accepted()))

		last := ss[len(ss)-1]
		assert.Equal(t, KindAdvisory, last.Kind)
		assert.Equal(t,
			"project mixes 3v3 parts (TemperatureSensor_I2C) with 5v parts (Relay); use a level shifter",
			last.Message)
	})

	t.Run("empty project", func(t *testing.T) {
		f := newFixture(t)
		_, ss := f.composer().Compose(nil, nil)
		assert.Empty(t, ss)
	})
}

func TestComposeEmitsSuggestionEvents(t *testing.T) {
	f := newFixture(t)
	events := mocks.NewMockLogger(t)
	c := f.composer(WithEventLogger(events), WithSessionID("s1"))

	events.EXPECT().Log(mock.MatchedBy(func(e log.Event) bool {
		return e.Category == log.CategorySuggestion &&
			e.Stage == log.StageComposer &&
			e.SessionID == "s1" &&
			e.Suggestion.Kind == string(KindUnknown)
	})).Return().Times(1)

	_, ss := c.Compose([]Candidate{{Type: "Flux Capacitor", Confidence: 1}}, nil)
	assert.Len(t, ss, 1)
}

type fakeGenerator struct {
	err  error
	seen *project.Project
}

func (g *fakeGenerator) Generate(p *project.Project) (string, error) {
	g.seen = p
	if g.err != nil {
		return "", g.err
	}
	return "# code", nil
}

func TestPlan(t *testing.T) {
	f := newFixture(t)
	c := f.composer()
	cands := []Candidate{{Type: "LED", Confidence: 1}}

	gen := &fakeGenerator{}
	plan, err := c.Plan(cands, nil, gen)
	require.NoError(t, err)
	assert.Equal(t, "# code", plan.Code)
	assert.Same(t, plan.Project, gen.seen)
	assert.Len(t, plan.Project.Instances, 1)

	plan, err = c.Plan(cands, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, plan.Code)

	boom := errors.New("boom")
	plan, err = c.Plan(cands, nil, &fakeGenerator{err: boom})
	require.ErrorIs(t, err, boom)
	assert.EqualError(t, err, "generating code: boom")
	require.NotNil(t, plan)
	assert.Len(t, plan.Project.Instances, 1)
}

func TestJoinOr(t *testing.T) {
	assert.Equal(t, "", joinOr(nil))
	assert.Equal(t, "a", joinOr([]string{"a"}))
	assert.Equal(t, "a or b", joinOr([]string{"a", "b"}))
	assert.Equal(t, "a, b or c", joinOr([]string{"a", "b", "c"}))
}
