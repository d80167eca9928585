package classify

import (
	"gonum.org/v1/gonum/stat"

	"github.com/pinwise/pinwise-go/pkg/catalog"
)

// Confidences assigned to trace shapes.
const (
	confPulledHigh          = 0.8
	confPulledHighConfirmed = 0.85
	confPeriodic            = 0.7
	confLevel               = 0.3
)

// minRegularity is the lowest period regularity still treated as periodic.
const minRegularity = 0.5

// traceShape derives the signal shape of a trace and the confidence of that
// reading. ok is false for an empty trace.
func traceShape(t DigitalTrace) (shape catalog.TraceShape, conf float64, ok bool) {
	if len(t.Samples) == 0 {
		return "", 0, false
	}
	x := levels(t.Samples)
	duty := stat.Mean(x, nil)

	if duty == 1 && t.Pull == PullUp {
		switch {
		case len(t.PullDownSamples) == 0:
			return catalog.TracePulledHigh, confPulledHigh, true
		case stat.Mean(levels(t.PullDownSamples), nil) == 0:
			// Followed the bias: an open contact with nothing driving it.
			return catalog.TracePulledHigh, confPulledHighConfirmed, true
		default:
			// Something drives the line high.
			return catalog.TraceLevel, confLevel, true
		}
	}

	if duty > 0 && duty < 1 {
		if r, periodic := regularity(t.Samples); periodic {
			return catalog.TracePeriodic, confPeriodic * r, true
		}
	}
	return catalog.TraceLevel, confLevel, true
}

// regularity measures how evenly spaced the rising edges of a trace are:
// 1 for a perfectly periodic signal, lower as the periods vary. At least
// two full periods are required.
func regularity(samples []bool) (float64, bool) {
	var rises []int
	for i := 1; i < len(samples); i++ {
		if samples[i] && !samples[i-1] {
			rises = append(rises, i)
		}
	}
	if len(rises) < 3 {
		return 0, false
	}
	periods := make([]float64, len(rises)-1)
	for i := range periods {
		periods[i] = float64(rises[i+1] - rises[i])
	}
	mean, std := stat.MeanStdDev(periods, nil)
	if mean == 0 {
		return 0, false
	}
	r := 1 - std/mean
	if r < minRegularity {
		return 0, false
	}
	return min(r, 1), true
}

func levels(samples []bool) []float64 {
	x := make([]float64, len(samples))
	for i, s := range samples {
		if s {
			x[i] = 1
		}
	}
	return x
}
