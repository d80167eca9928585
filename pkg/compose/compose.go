// Package compose turns ranked lists of desired component types into a
// resourced project.
//
// Compose never mutates the project it is given: it works on a copy and
// returns the updated project together with suggestions explaining what
// could not be placed and what else would fit. Session wraps a Composer
// with a single-writer guard for callers that share one project.
package compose

import (
	"fmt"
	"sort"

	"github.com/pinwise/pinwise-go/pkg/alloc"
	"github.com/pinwise/pinwise-go/pkg/catalog"
	"github.com/pinwise/pinwise-go/pkg/log"
	"github.com/pinwise/pinwise-go/pkg/project"
)

// DefaultMaxSuggestions bounds complementary suggestions.
const DefaultMaxSuggestions = 3

// Candidate is a desired component type with the confidence of an intent
// recognizer. Count is the number of instances of that type the project
// should hold; zero means one.
type Candidate struct {
	Type       string  `json:"type" yaml:"type"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
	Count      int     `json:"count,omitempty" yaml:"count,omitempty"`
}

// Composer orchestrates catalog lookups and allocation.
type Composer struct {
	catalog        *catalog.Catalog
	alloc          *alloc.Allocator
	maxSuggestions int
	events         log.Logger
	sessionID      string
}

// Option configures a Composer.
type Option func(*Composer)

// WithMaxSuggestions bounds complementary suggestions.
func WithMaxSuggestions(n int) Option {
	return func(c *Composer) { c.maxSuggestions = n }
}

// WithEventLogger sets the engine event logger.
func WithEventLogger(l log.Logger) Option {
	return func(c *Composer) { c.events = l }
}

// WithSessionID tags emitted events with a session id. A Session created
// from the Composer adopts the same id.
func WithSessionID(id string) Option {
	return func(c *Composer) { c.sessionID = id }
}

// New creates a Composer.
func New(c *catalog.Catalog, a *alloc.Allocator, opts ...Option) *Composer {
	comp := &Composer{
		catalog:        c,
		alloc:          a,
		maxSuggestions: DefaultMaxSuggestions,
	}
	for _, opt := range opts {
		opt(comp)
	}
	comp.events = log.OrNoop(comp.events)
	return comp
}

// Allocator returns the allocator used for placement.
func (c *Composer) Allocator() *alloc.Allocator { return c.alloc }

// Catalog returns the component catalog.
func (c *Composer) Catalog() *catalog.Catalog { return c.catalog }

// Compose places candidates into a copy of existing (nil means an empty
// project), highest confidence first. The returned suggestions list, in
// order: per-candidate diagnostics, complementary parts, advisories.
func (c *Composer) Compose(candidates []Candidate, existing *project.Project) (*project.Project, []Suggestion) {
	var p *project.Project
	if existing == nil {
		p = project.New("")
	} else {
		p = existing.Clone()
	}

	ordered := append([]Candidate(nil), candidates...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Confidence > ordered[j].Confidence })

	var suggestions []Suggestion
	for _, cand := range ordered {
		suggestions = append(suggestions, c.place(p, cand)...)
	}
	suggestions = append(suggestions, complementary(c.catalog, p, c.maxSuggestions)...)
	suggestions = append(suggestions, advisories(p)...)

	for _, s := range suggestions {
		c.emit(p, s)
	}
	return p, suggestions
}

func (c *Composer) place(p *project.Project, cand Candidate) []Suggestion {
	spec, err := c.catalog.Resolve(cand.Type)
	if err != nil {
		return []Suggestion{unknownSuggestion(c.catalog, cand.Type)}
	}

	want := max(cand.Count, 1)
	have := p.CountAccepted(spec.ID)
	if have >= want {
		return []Suggestion{{
			Kind:      KindDuplicate,
			Candidate: cand.Type,
			SpecID:    spec.ID,
			Message:   fmt.Sprintf("%s already in the project (%d of %d), nothing to do", spec.ID, have, want),
		}}
	}

	for ; have < want; have++ {
		inst := project.NewInstance(spec)
		res := c.alloc.Allocate(p, inst)
		if res.Accepted() {
			continue
		}
		s := Suggestion{
			Kind:      KindRejected,
			Candidate: cand.Type,
			SpecID:    spec.ID,
			Message:   res.Err.Error(),
			Instance:  inst,
		}
		var names []string
		for _, other := range c.alloc.SuggestUnplug(p, inst) {
			s.Unplug = append(s.Unplug, other.ID)
			names = append(names, other.SpecID)
		}
		if len(names) > 0 {
			s.Message += fmt.Sprintf(" (removing %s would make room)", joinOr(names))
		}
		// Further instances of the same type would fail the same way.
		return []Suggestion{s}
	}
	return nil
}

func (c *Composer) emit(p *project.Project, s Suggestion) {
	ev := log.Event{
		SessionID: c.sessionID,
		ProjectID: p.ID,
		Stage:     log.StageComposer,
		Category:  log.CategorySuggestion,
		SpecID:    s.SpecID,
		Suggestion: &log.SuggestionEvent{
			Kind:    string(s.Kind),
			Message: s.Message,
		},
	}
	if s.Instance != nil {
		ev.InstanceID = s.Instance.ID
	}
	c.events.Log(ev)
}

func joinOr(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	}
	out := names[0]
	for _, n := range names[1 : len(names)-1] {
		out += ", " + n
	}
	return out + " or " + names[len(names)-1]
}
