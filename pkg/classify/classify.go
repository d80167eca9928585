// Package classify turns raw electrical observations into ranked component
// hypotheses.
//
// The result of Classify depends only on the observation and the catalog.
// Its one side effect is a classification event sent to the logger set with
// WithEventLogger; without that option the event goes to a no-op logger and
// Classify is a pure function. An empty result is a valid answer and means
// the observation was not recognized.
package classify

import (
	"sort"

	"github.com/pinwise/pinwise-go/pkg/catalog"
	"github.com/pinwise/pinwise-go/pkg/log"
)

// Confidences assigned to bus and 1-Wire matches.
const (
	confExactAddress = 0.9
	confRangeAddress = 0.6
	confProbeMatch   = 0.98
	confOneWire      = 0.95
)

// Hypothesis is a candidate component type for an observation.
type Hypothesis struct {
	SpecID     string  `json:"spec" yaml:"spec"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
}

// Classification pairs an observation with its ranked hypotheses.
type Classification struct {
	Observation Observation
	Hypotheses  []Hypothesis
}

// Top returns the best hypothesis, if any.
func (c Classification) Top() (Hypothesis, bool) {
	if len(c.Hypotheses) == 0 {
		return Hypothesis{}, false
	}
	return c.Hypotheses[0], true
}

// Classifier matches observations against catalog signatures.
type Classifier struct {
	catalog       *catalog.Catalog
	minConfidence float64
	events        log.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithMinConfidence drops hypotheses below c.
func WithMinConfidence(c float64) Option {
	return func(cl *Classifier) { cl.minConfidence = c }
}

// WithEventLogger sets the engine event logger. One event is emitted per
// classified observation.
func WithEventLogger(l log.Logger) Option {
	return func(cl *Classifier) { cl.events = l }
}

// New creates a Classifier over a catalog.
func New(c *catalog.Catalog, opts ...Option) *Classifier {
	cl := &Classifier{catalog: c}
	for _, opt := range opts {
		opt(cl)
	}
	cl.events = log.OrNoop(cl.events)
	return cl
}

// Classify returns the hypotheses for one observation, highest confidence
// first. Equal confidences rank the lower complexity tier first, then the
// lexically smaller id. The ranking is also reported to the event logger,
// if one was configured.
func (c *Classifier) Classify(obs Observation) []Hypothesis {
	var scored map[string]float64
	switch o := obs.(type) {
	case DigitalTrace:
		scored = c.trace(o)
	case *DigitalTrace:
		scored = c.trace(*o)
	case BusScanResult:
		scored = c.busScan(o)
	case *BusScanResult:
		scored = c.busScan(*o)
	case OneWireID:
		scored = c.oneWire(o)
	case *OneWireID:
		scored = c.oneWire(*o)
	default:
		return nil
	}
	hs := c.rank(scored)
	c.emit(obs, hs)
	return hs
}

func (c *Classifier) emit(obs Observation, hs []Hypothesis) {
	ev := &log.ClassificationEvent{Observation: obs.String()}
	for _, h := range hs {
		ev.Hypotheses = append(ev.Hypotheses, log.Hypothesis{SpecID: h.SpecID, Confidence: h.Confidence})
	}
	e := log.Event{Stage: log.StageClassifier, Category: log.CategoryDecision, Classification: ev}
	if len(hs) > 0 {
		e.SpecID = hs[0].SpecID
	}
	c.events.Log(e)
}

// ClassifyBatch classifies every observation of a batch, in input order.
func (c *Classifier) ClassifyBatch(batch []Observation) []Classification {
	out := make([]Classification, len(batch))
	for i, obs := range batch {
		out[i] = Classification{Observation: obs, Hypotheses: c.Classify(obs)}
	}
	return out
}

func (c *Classifier) trace(t DigitalTrace) map[string]float64 {
	shape, conf, ok := traceShape(t)
	if !ok {
		return nil
	}
	scored := make(map[string]float64)
	for _, spec := range c.catalog.All() {
		if spec.Signature.Trace == shape {
			scored[spec.ID] = conf
		}
	}
	return scored
}

func (c *Classifier) busScan(s BusScanResult) map[string]float64 {
	scored := make(map[string]float64)
	for _, spec := range c.catalog.All() {
		best := 0.0
		for _, slot := range spec.BusSlots() {
			if slot.Bus != s.Bus {
				continue
			}
			switch slot.Address.Match(s.Address) {
			case catalog.MatchExact:
				best = max(best, confExactAddress)
			case catalog.MatchRange:
				best = max(best, confRangeAddress)
			}
		}
		if best == 0 {
			continue
		}
		if p, want := s.Probe, spec.Signature.Probe; p != nil && want != nil && p.Register == want.Register {
			if p.Value != want.Value {
				continue
			}
			best = confProbeMatch
		}
		scored[spec.ID] = best
	}
	return scored
}

func (c *Classifier) oneWire(o OneWireID) map[string]float64 {
	spec, ok := c.catalog.ByOneWireFamily(o.Family())
	if !ok {
		return nil
	}
	return map[string]float64{spec.ID: confOneWire}
}

func (c *Classifier) rank(scored map[string]float64) []Hypothesis {
	type ranked struct {
		Hypothesis
		tier int
	}
	var rs []ranked
	for id, conf := range scored {
		if conf < c.minConfidence {
			continue
		}
		spec, err := c.catalog.Lookup(id)
		if err != nil {
			continue
		}
		rs = append(rs, ranked{Hypothesis{SpecID: id, Confidence: conf}, spec.Tier})
	}
	sort.Slice(rs, func(i, j int) bool {
		a, b := rs[i], rs[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.tier != b.tier {
			return a.tier < b.tier
		}
		return a.SpecID < b.SpecID
	})
	out := make([]Hypothesis, len(rs))
	for i, r := range rs {
		out[i] = r.Hypothesis
	}
	return out
}
