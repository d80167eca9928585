package alloc

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

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
affinity:
  actuator: [18, 19]
components:
  - {id: LED, tier: 1, protocol: digital, voltage: either, slots: [{name: signal, pins: 1, capabilities: [digital]}]}
  - {id: Button, tier: 1, protocol: digital, voltage: either, slots: [{name: signal, pins: 1, capabilities: [digital, pull]}]}
  - {id: Servo, family: actuator, tier: 3, protocol: pwm, voltage: either, slots: [{name: signal, pins: 1, capabilities: [hw-pwm]}]}
  - {id: PIRSensor, tier: 2, protocol: digital, voltage: either, slots: [{name: signal, pins: 1, capabilities: [digital]}]}
  - {id: Relay, tier: 2, protocol: digital, voltage: 5v, slots: [{name: signal, pins: 1, capabilities: [digital]}]}
  - {id: TemperatureSensor_I2C, tier: 3, protocol: i2c, voltage: 3v3, slots: [{name: bus, bus: i2c, address: 0x48}]}
  - {id: PressureSensor_I2C, tier: 5, protocol: i2c, voltage: 3v3, slots: [{name: bus, bus: i2c, address: 0x48}]}
  - {id: ADC, tier: 3, protocol: i2c, voltage: either, slots: [{name: bus, bus: i2c, addressRange: [0x48, 0x4f]}]}
  - {id: DS18B20, tier: 3, protocol: one-wire, voltage: either, slots: [{name: data, bus: one-wire}]}
  - {id: RFID, tier: 6, protocol: spi, voltage: 3v3, slots: [{name: bus, bus: spi}, {name: reset, pins: 1, capabilities: [digital]}]}
  - {id: GPS, tier: 7, protocol: uart, voltage: either, conflicts: [serial-console], slots: [{name: serial, bus: uart}]}
  - {id: Bluetooth, tier: 7, protocol: uart, voltage: either, conflicts: [serial-console], slots: [{name: serial, bus: uart}]}
rules:
  - {id: PIR-SERVO, between: [PIRSensor, Servo], reason: servo noise triggers the sensor}
`

type fixture struct {
	cat   *catalog.Catalog
	board *board.Board
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c, err := catalog.Load([]byte(testCatalog))
	require.NoError(t, err)
	b, err := board.Default()
	require.NoError(t, err)
	return &fixture{cat: c, board: b}
}

func (f *fixture) allocator(opts ...Option) *Allocator {
	r := compat.NewResolver(rules.NewDefaultRegistry(), f.board, f.cat)
	return New(r, f.cat, opts...)
}

func (f *fixture) inst(t *testing.T, id string) *project.Instance {
	t.Helper()
	spec, err := f.cat.Lookup(id)
	require.NoError(t, err)
	return project.NewInstance(spec)
}

func unitsOf(inst *project.Instance) []string {
	return unitIDs(inst.Claims)
}

func TestAllocateScenario(t *testing.T) {
	f := newFixture(t)
	a := f.allocator()
	p := project.New("scenario")

	led := a.Allocate(p, f.inst(t, "LED"))
	button := a.Allocate(p, f.inst(t, "Button"))
	temp := a.Allocate(p, f.inst(t, "TemperatureSensor_I2C"))
	require.True(t, led.Accepted())
	require.True(t, button.Accepted())
	require.True(t, temp.Accepted())

	assert.Equal(t, []string{"gpio5"}, unitsOf(led.Instance))
	assert.Equal(t, []string{"gpio6"}, unitsOf(button.Instance))
	assert.Equal(t, []string{"gpio2", "gpio3", "i2c1/0x48"}, unitsOf(temp.Instance))
	assert.Equal(t, project.Shared, temp.Instance.Claims[0].Mode)
	assert.Equal(t, project.Exclusive, temp.Instance.Claims[2].Mode)

	press := a.Allocate(p, f.inst(t, "PressureSensor_I2C"))
	assert.False(t, press.Accepted())
	require.ErrorIs(t, press.Err, ErrAllocationInfeasible)

	var infeasible *InfeasibleError
	require.True(t, errors.As(press.Err, &infeasible))
	require.Len(t, infeasible.Failures, 1)
	assert.Equal(t, "bus", infeasible.Failures[0].Slot)
	assert.Equal(t, NoFreeUnit, infeasible.Failures[0].Reason)
	assert.Equal(t,
		"cannot place PressureSensor_I2C: slot bus: address 0x48 on i2c1 already claimed by TemperatureSensor_I2C",
		press.Err.Error())

	assert.Equal(t, project.StateRejected, press.Instance.State)
	assert.Empty(t, press.Instance.Claims)
	assert.Equal(t, []string{"slot bus: address 0x48 on i2c1 already claimed by TemperatureSensor_I2C"},
		press.Instance.Diagnostics)

	assert.Len(t, p.Instances, 3, "rejected instances are not added")
	assert.True(t, p.Valid)
	assert.Equal(t, 5, p.TotalComplexity())
}

func TestAllocateOrderSensitive(t *testing.T) {
	f := newFixture(t)
	a := f.allocator()

	place := func(order ...string) []Result {
		p := project.New("")
		var out []Result
		for _, id := range order {
			out = append(out, a.Allocate(p, f.inst(t, id)))
		}
		return out
	}

	// The ADC takes the first free address of its range, so it fits after
	// the fixed-address sensor but blocks it when placed first.
	tempFirst := place("TemperatureSensor_I2C", "ADC")
	require.True(t, tempFirst[0].Accepted())
	require.True(t, tempFirst[1].Accepted())
	assert.Equal(t, []string{"gpio2", "gpio3", "i2c1/0x48"}, unitsOf(tempFirst[0].Instance))
	assert.Equal(t, []string{"gpio2", "gpio3", "i2c1/0x49"}, unitsOf(tempFirst[1].Instance))

	adcFirst := place("ADC", "TemperatureSensor_I2C")
	require.True(t, adcFirst[0].Accepted())
	assert.Equal(t, []string{"gpio2", "gpio3", "i2c1/0x48"}, unitsOf(adcFirst[0].Instance))
	require.False(t, adcFirst[1].Accepted())
	assert.Contains(t, adcFirst[1].Err.Error(), "address 0x48 on i2c1 already claimed by ADC")

	// Same order on a fresh project gives the same claims.
	again := place("TemperatureSensor_I2C", "ADC")
	for i := range again {
		require.True(t, again[i].Accepted())
		if diff := cmp.Diff(tempFirst[i].Instance.Claims, again[i].Instance.Claims); diff != "" {
			t.Errorf("claims of %s differ between runs (-first +again):\n%s", again[i].Instance.SpecID, diff)
		}
	}
}

func TestRemoveAndRetry(t *testing.T) {
	f := newFixture(t)
	a := f.allocator()
	p := project.New("")

	led := a.Allocate(p, f.inst(t, "LED")).Instance
	temp := a.Allocate(p, f.inst(t, "TemperatureSensor_I2C")).Instance
	press := a.Allocate(p, f.inst(t, "PressureSensor_I2C")).Instance
	require.Equal(t, project.StateRejected, press.State)

	removed, err := a.Remove(p, temp.ID)
	require.NoError(t, err)
	assert.Same(t, temp, removed)
	assert.Equal(t, project.StateProposed, removed.State)
	assert.Empty(t, removed.Claims)

	assert.Equal(t, []string{"gpio5"}, unitsOf(led), "other claims untouched")

	res := a.Allocate(p, press)
	require.True(t, res.Accepted())
	assert.Equal(t, []string{"gpio2", "gpio3", "i2c1/0x48"}, unitsOf(press))
	assert.Empty(t, press.Diagnostics)

	_, err = a.Remove(p, "missing")
	assert.ErrorIs(t, err, project.ErrUnknownInstance)
}

func TestNoDoubleExclusiveClaims(t *testing.T) {
	f := newFixture(t)
	a := f.allocator()
	p := project.New("")

	pins := len(f.board.Pins())
	var last Result
	for i := 0; i <= pins; i++ {
		last = a.Allocate(p, f.inst(t, "LED"))
	}
	assert.Len(t, p.Accepted(), pins)
	require.False(t, last.Accepted())

	var infeasible *InfeasibleError
	require.ErrorAs(t, last.Err, &infeasible)
	assert.Equal(t, NoFreeUnit, infeasible.Failures[0].Reason)
	assert.Contains(t, last.Err.Error(), fmt.Sprintf("(and %d more)", pins-maxBusyDetail))

	for unit, hs := range p.ClaimIndex() {
		assert.Len(t, hs, 1, "unit %s claimed more than once", unit)
	}
}

func TestPinPreferenceOrder(t *testing.T) {
	f := newFixture(t)
	a := f.allocator()
	p := project.New("")

	var got []string
	for i := 0; i < 4; i++ {
		res := a.Allocate(p, f.inst(t, "Servo"))
		require.True(t, res.Accepted())
		got = append(got, unitsOf(res.Instance)...)
	}
	assert.Equal(t, []string{"gpio18", "gpio19", "gpio12", "gpio13"}, got, "affinity first, then ascending")

	res := a.Allocate(p, f.inst(t, "Servo"))
	require.False(t, res.Accepted())
	assert.Contains(t, res.Err.Error(), "pin 18 already claimed by Servo")
}

func TestBusLinesLast(t *testing.T) {
	f := newFixture(t)
	a := f.allocator()
	p := project.New("")

	temp := a.Allocate(p, f.inst(t, "TemperatureSensor_I2C"))
	require.True(t, temp.Accepted())

	// Every plain pin taken: LEDs fall back to bus lines not in use.
	var last Result
	for last = a.Allocate(p, f.inst(t, "LED")); last.Accepted(); last = a.Allocate(p, f.inst(t, "LED")) {
		for _, u := range unitsOf(last.Instance) {
			assert.NotEqual(t, "gpio2", u)
			assert.NotEqual(t, "gpio3", u)
		}
	}
	assert.ErrorIs(t, last.Err, ErrAllocationInfeasible)
	assert.Len(t, p.Accepted(), len(f.board.Pins())-1, "all pins but the two shared lines, plus the sensor")
}

func TestSharedBusAddresses(t *testing.T) {
	f := newFixture(t)
	a := f.allocator()
	p := project.New("")

	require.True(t, a.Allocate(p, f.inst(t, "TemperatureSensor_I2C")).Accepted())
	adc := a.Allocate(p, f.inst(t, "ADC"))
	require.True(t, adc.Accepted())
	addr, ok := adc.Instance.Address("bus")
	require.True(t, ok)
	assert.Equal(t, "i2c1/0x49", addr.ID)

	adc2 := a.Allocate(p, f.inst(t, "ADC"))
	require.True(t, adc2.Accepted())
	addr, _ = adc2.Instance.Address("bus")
	assert.Equal(t, "i2c1/0x4a", addr.ID)

	seen := map[string]string{}
	for _, inst := range p.Accepted() {
		u, _ := inst.Address("bus")
		prev, dup := seen[u.ID]
		assert.False(t, dup, "%s claimed by %s and %s", u.ID, prev, inst.SpecID)
		seen[u.ID] = inst.SpecID
	}
}

func TestOneWireAndSPI(t *testing.T) {
	f := newFixture(t)
	a := f.allocator()
	p := project.New("")

	ds := a.Allocate(p, f.inst(t, "DS18B20"))
	require.True(t, ds.Accepted())
	assert.Equal(t, []string{"gpio4", "w1/0x00"}, unitsOf(ds.Instance))

	rfid := a.Allocate(p, f.inst(t, "RFID"))
	require.True(t, rfid.Accepted())
	assert.Equal(t, []string{"gpio9", "gpio10", "gpio11", "spi0/0x00", "gpio8", "gpio5"}, unitsOf(rfid.Instance))

	rfid2 := a.Allocate(p, f.inst(t, "RFID"))
	require.True(t, rfid2.Accepted())
	assert.Equal(t, []int{7}, rfid2.Instance.Pins("bus"))
	assert.Equal(t, []int{6}, rfid2.Instance.Pins("reset"))

	rfid3 := a.Allocate(p, f.inst(t, "RFID"))
	require.False(t, rfid3.Accepted())
	assert.Contains(t, rfid3.Err.Error(), "address 0x00 on spi0 already claimed by RFID")
}

func TestPrecheckRules(t *testing.T) {
	tests := []struct {
		name   string
		first  string
		second string
		rule   string
		reason string
	}{
		{"voltage", "TemperatureSensor_I2C", "Relay", "VOLT-001", "TemperatureSensor_I2C (3v3) and Relay (5v)"},
		{"conflict tag", "GPS", "Bluetooth", "EXCL-002", "GPS and Bluetooth both require serial-console"},
		{"declared pair", "Servo", "PIRSensor", "DECL-001", "Servo and PIRSensor are incompatible (PIR-SERVO)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			a := f.allocator()
			p := project.New("")

			require.True(t, a.Allocate(p, f.inst(t, tt.first)).Accepted())
			res := a.Allocate(p, f.inst(t, tt.second))
			require.False(t, res.Accepted())

			var infeasible *InfeasibleError
			require.ErrorAs(t, res.Err, &infeasible)
			fail := infeasible.Failures[0]
			assert.Equal(t, RuleViolated, fail.Reason)
			assert.Empty(t, fail.Slot)
			require.NotEmpty(t, fail.Violations)
			assert.Equal(t, tt.rule, fail.Violations[0].RuleID)
			assert.Contains(t, res.Err.Error(), tt.reason)
		})
	}
}

func TestStrictModeBlocksWarnings(t *testing.T) {
	f := newFixture(t)
	p := project.New("")

	a := f.allocator(WithStrict(true))
	require.True(t, a.Strict())
	require.True(t, a.Allocate(p, f.inst(t, "TemperatureSensor_I2C")).Accepted())

	res := a.Allocate(p, f.inst(t, "PressureSensor_I2C"))
	var infeasible *InfeasibleError
	require.ErrorAs(t, res.Err, &infeasible)
	assert.Equal(t, RuleViolated, infeasible.Failures[0].Reason)
	assert.Equal(t, "ADDR-002", infeasible.Failures[0].Violations[0].RuleID)
}

func TestWhatIf(t *testing.T) {
	f := newFixture(t)
	a := f.allocator()
	p := project.New("")

	require.True(t, a.Allocate(p, f.inst(t, "LED")).Accepted())
	temp := a.Allocate(p, f.inst(t, "TemperatureSensor_I2C")).Instance
	press := f.inst(t, "PressureSensor_I2C")

	before := p.Clone()
	res, err := a.WhatIf(p, press, "")
	require.NoError(t, err)
	assert.False(t, res.Accepted())

	res, err = a.WhatIf(p, press, temp.ID)
	require.NoError(t, err)
	assert.True(t, res.Accepted())
	assert.NotSame(t, press, res.Instance)

	if diff := cmp.Diff(before, p); diff != "" {
		t.Errorf("WhatIf mutated the project (-before +after):\n%s", diff)
	}
	assert.Equal(t, project.StateProposed, press.State)
	assert.Empty(t, press.Claims)

	_, err = a.WhatIf(p, press, "missing")
	assert.ErrorIs(t, err, project.ErrUnknownInstance)
}

func TestSuggestUnplug(t *testing.T) {
	f := newFixture(t)
	a := f.allocator()
	p := project.New("")

	require.True(t, a.Allocate(p, f.inst(t, "LED")).Accepted())
	temp := a.Allocate(p, f.inst(t, "TemperatureSensor_I2C")).Instance

	got := a.SuggestUnplug(p, f.inst(t, "PressureSensor_I2C"))
	require.Len(t, got, 1)
	assert.Equal(t, temp.ID, got[0].ID)
}

func TestValidate(t *testing.T) {
	f := newFixture(t)
	a := f.allocator()
	p := project.New("")

	led := a.Allocate(p, f.inst(t, "LED")).Instance
	second := a.Allocate(p, f.inst(t, "LED")).Instance
	assert.Empty(t, a.Validate(p))
	assert.True(t, p.Valid)

	// A hand-edited snapshot with a double claim.
	second.Claims = append([]project.Claim(nil), led.Claims...)
	vs := a.Validate(p)
	require.Len(t, vs, 1)
	assert.Equal(t, "EXCL-001", vs[0].RuleID)
	assert.False(t, p.Valid)
}

func TestAllocateAll(t *testing.T) {
	f := newFixture(t)
	a := f.allocator()
	p := project.New("")

	results := a.AllocateAll(p, []*project.Instance{
		f.inst(t, "LED"),
		f.inst(t, "TemperatureSensor_I2C"),
		f.inst(t, "PressureSensor_I2C"),
	})
	require.Len(t, results, 3)
	assert.True(t, results[0].Accepted())
	assert.True(t, results[1].Accepted())
	assert.False(t, results[2].Accepted())
}

func TestAllocateEmitsEvents(t *testing.T) {
	f := newFixture(t)
	events := mocks.NewMockLogger(t)
	a := f.allocator(WithEventLogger(events), WithSessionID("sess-1"))
	p := project.New("")

	events.EXPECT().Log(mock.MatchedBy(func(e log.Event) bool {
		return e.Allocation != nil && e.Allocation.Outcome == log.OutcomeAccepted &&
			e.SessionID == "sess-1" && e.ProjectID == p.ID && e.SpecID == "LED"
	})).Return().Times(1)
	events.EXPECT().Log(mock.MatchedBy(func(e log.Event) bool {
		return e.StateChange != nil && e.StateChange.NewState == string(project.StateAccepted)
	})).Return().Times(1)

	require.True(t, a.Allocate(p, f.inst(t, "LED")).Accepted())
}

func TestWhatIfEmitsDryRunOnly(t *testing.T) {
	f := newFixture(t)
	events := mocks.NewMockLogger(t)
	a := f.allocator(WithEventLogger(events))
	p := project.New("")

	events.EXPECT().Log(mock.MatchedBy(func(e log.Event) bool {
		return e.Allocation != nil && e.Allocation.DryRun
	})).Return().Times(1)

	_, err := a.WhatIf(p, f.inst(t, "LED"), "")
	require.NoError(t, err)
}

func TestUnknownSpec(t *testing.T) {
	f := newFixture(t)
	a := f.allocator()
	p := project.New("")

	inst := &project.Instance{ID: "x", SpecID: "FluxCapacitor"}
	res := a.Allocate(p, inst)
	require.ErrorIs(t, res.Err, ErrAllocationInfeasible)
	require.ErrorContains(t, res.Err, "component not found")
	assert.Empty(t, p.Instances)
}
