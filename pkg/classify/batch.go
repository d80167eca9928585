package classify

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pinwise/pinwise-go/pkg/catalog"
)

// Observation files look like:
//
//	observations:
//	  - trace: {pin: 17, pull: up, samples: "1111 1111"}
//	  - scan: {bus: i2c, address: 0x48, probe: {register: 0xd0, value: 0x58}}
//	  - onewire: {bus: w1, id: 28-00000a1b2c3d}
type rawBatch struct {
	Observations []rawObservation `yaml:"observations"`
}

type rawObservation struct {
	Trace   *rawTrace   `yaml:"trace"`
	Scan    *rawScan    `yaml:"scan"`
	OneWire *rawOneWire `yaml:"onewire"`
}

type rawTrace struct {
	Pin      int    `yaml:"pin"`
	Pull     string `yaml:"pull"`
	Samples  string `yaml:"samples"`
	PullDown string `yaml:"pullDownSamples"`
}

type rawScan struct {
	Bus     string          `yaml:"bus"`
	Address catalog.Address `yaml:"address"`
	Probe   *rawProbe       `yaml:"probe"`
}

type rawProbe struct {
	Register catalog.Address `yaml:"register"`
	Value    catalog.Address `yaml:"value"`
}

type rawOneWire struct {
	Bus string `yaml:"bus"`
	ID  string `yaml:"id"`
}

// DecodeBatch decodes a YAML observation batch.
func DecodeBatch(data []byte) ([]Observation, error) {
	var raw rawBatch
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidObservation, err)
	}
	out := make([]Observation, 0, len(raw.Observations))
	for i, ro := range raw.Observations {
		obs, err := ro.resolve()
		if err != nil {
			return nil, fmt.Errorf("observation %d: %w", i, err)
		}
		out = append(out, obs)
	}
	return out, nil
}

// DecodeBatchFile reads and decodes an observation batch file.
func DecodeBatchFile(path string) ([]Observation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeBatch(data)
}

func (ro rawObservation) resolve() (Observation, error) {
	set := 0
	for _, present := range []bool{ro.Trace != nil, ro.Scan != nil, ro.OneWire != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return nil, fmt.Errorf("%w: exactly one of trace, scan or onewire is required", ErrInvalidObservation)
	}

	switch {
	case ro.Trace != nil:
		return ro.Trace.resolve()
	case ro.Scan != nil:
		kind := catalog.BusKind(ro.Scan.Bus)
		if !catalog.ValidBusKind(kind) {
			return nil, fmt.Errorf("%w: unknown bus kind %q", ErrInvalidObservation, ro.Scan.Bus)
		}
		s := BusScanResult{Bus: kind, Address: ro.Scan.Address}
		if p := ro.Scan.Probe; p != nil {
			if p.Register > 0xff || p.Value > 0xff {
				return nil, fmt.Errorf("%w: probe register and value must fit a byte", ErrInvalidObservation)
			}
			s.Probe = &ProbeResponse{Register: uint8(p.Register), Value: uint8(p.Value)}
		}
		return s, nil
	default:
		return ParseOneWireID(ro.OneWire.Bus, ro.OneWire.ID)
	}
}

func (rt *rawTrace) resolve() (Observation, error) {
	pull := Pull(rt.Pull)
	switch pull {
	case PullNone, PullUp, PullDown:
	default:
		return nil, fmt.Errorf("%w: unknown pull %q", ErrInvalidObservation, rt.Pull)
	}
	samples, err := parseSamples(rt.Samples)
	if err != nil {
		return nil, err
	}
	pd, err := parseSamples(rt.PullDown)
	if err != nil {
		return nil, err
	}
	return DigitalTrace{Pin: rt.Pin, Pull: pull, Samples: samples, PullDownSamples: pd}, nil
}

// parseSamples reads a string of 0/1 levels. Spaces and underscores may be
// used for grouping.
func parseSamples(s string) ([]bool, error) {
	var out []bool
	for _, r := range s {
		switch r {
		case '0':
			out = append(out, false)
		case '1':
			out = append(out, true)
		case ' ', '_':
		default:
			return nil, fmt.Errorf("%w: sample %q is not 0 or 1", ErrInvalidObservation, strings.TrimSpace(string(r)))
		}
	}
	return out, nil
}
