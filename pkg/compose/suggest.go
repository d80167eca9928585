package compose

import (
	"fmt"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/pinwise/pinwise-go/pkg/catalog"
	"github.com/pinwise/pinwise-go/pkg/project"
)

// SuggestionKind classifies a suggestion.
type SuggestionKind string

const (
	// KindUnknown: the candidate type is not in the catalog.
	KindUnknown SuggestionKind = "unknown"
	// KindRejected: the candidate could not be placed.
	KindRejected SuggestionKind = "rejected"
	// KindDuplicate: the project already holds the requested instances.
	KindDuplicate SuggestionKind = "duplicate"
	// KindComplementary: a part frequently paired with the project's parts.
	KindComplementary SuggestionKind = "complementary"
	// KindAdvisory: a note about the project as a whole.
	KindAdvisory SuggestionKind = "advisory"
)

// Suggestion is a diagnostic or recommendation produced by Compose.
type Suggestion struct {
	Kind SuggestionKind `json:"kind"`
	// Candidate is the requested type name, as given.
	Candidate string `json:"candidate,omitempty"`
	// SpecID is the spec the suggestion is about.
	SpecID  string `json:"spec,omitempty"`
	Message string `json:"message"`

	DidYouMean []string `json:"didYouMean,omitempty"`
	// Unplug lists instance ids whose removal alone would let a rejected
	// candidate be placed.
	Unplug []string `json:"unplug,omitempty"`
	Weight float64  `json:"weight,omitempty"`

	// Instance is the rejected instance, kept for a later retry.
	Instance *project.Instance `json:"instance,omitempty"`
}

func (s Suggestion) String() string {
	return fmt.Sprintf("%s: %s", s.Kind, s.Message)
}

// maxDidYouMean bounds the "did you mean" list.
const maxDidYouMean = 3

// didYouMean ranks catalog names by edit distance to name. Names further
// away than half the query length (at least two edits) are not offered.
func didYouMean(c *catalog.Catalog, name string) []string {
	type scored struct {
		name string
		dist int
	}
	key := strings.ToLower(name)
	var ss []scored
	seen := make(map[string]bool)
	for _, n := range c.Names() {
		spec, err := c.Resolve(n)
		if err != nil {
			continue
		}
		d := levenshtein.ComputeDistance(key, strings.ToLower(n))
		if d > max(len(key)/2, 2) {
			continue
		}
		ss = append(ss, scored{name: spec.ID, dist: d})
	}
	sort.SliceStable(ss, func(i, j int) bool {
		if ss[i].dist != ss[j].dist {
			return ss[i].dist < ss[j].dist
		}
		return ss[i].name < ss[j].name
	})
	var out []string
	for _, s := range ss {
		if seen[s.name] {
			continue
		}
		seen[s.name] = true
		out = append(out, s.name)
		if len(out) == maxDidYouMean {
			break
		}
	}
	return out
}

func unknownSuggestion(c *catalog.Catalog, name string) Suggestion {
	s := Suggestion{Kind: KindUnknown, Candidate: name, DidYouMean: didYouMean(c, name)}
	if len(s.DidYouMean) > 0 {
		s.Message = fmt.Sprintf("unknown component %q, did you mean %s?", name, strings.Join(s.DidYouMean, ", "))
	} else {
		s.Message = fmt.Sprintf("unknown component %q", name)
	}
	return s
}

// complementary surfaces specs paired with accepted instances that the
// project does not hold yet: weight desc, then tier asc, then id.
func complementary(c *catalog.Catalog, p *project.Project, limit int) []Suggestion {
	type pick struct {
		spec   *catalog.ComponentSpec
		from   string
		weight float64
	}
	present := make(map[string]bool)
	for _, inst := range p.Accepted() {
		present[inst.SpecID] = true
	}
	picks := make(map[string]*pick)
	for _, inst := range p.Accepted() {
		if inst.Spec == nil {
			continue
		}
		for _, pair := range inst.Spec.PairsWith {
			if present[pair.ID] {
				continue
			}
			spec, err := c.Lookup(pair.ID)
			if err != nil {
				continue
			}
			if cur, ok := picks[pair.ID]; !ok || pair.Weight > cur.weight {
				picks[pair.ID] = &pick{spec: spec, from: inst.SpecID, weight: pair.Weight}
			}
		}
	}

	ranked := make([]*pick, 0, len(picks))
	for _, pk := range picks {
		ranked = append(ranked, pk)
	}
	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.weight != b.weight {
			return a.weight > b.weight
		}
		if a.spec.Tier != b.spec.Tier {
			return a.spec.Tier < b.spec.Tier
		}
		return a.spec.ID < b.spec.ID
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	out := make([]Suggestion, len(ranked))
	for i, pk := range ranked {
		out[i] = Suggestion{
			Kind:    KindComplementary,
			SpecID:  pk.spec.ID,
			Weight:  pk.weight,
			Message: fmt.Sprintf("%s is often used with %s", pk.spec.ID, pk.from),
		}
	}
	return out
}

// maxTierJump is the largest tier step between consecutive parts that does
// not trigger an advisory.
const maxTierJump = 2

func advisories(p *project.Project) []Suggestion {
	accepted := p.Accepted()
	if len(accepted) == 0 {
		return nil
	}
	var out []Suggestion

	byTier := append([]*project.Instance(nil), accepted...)
	sort.SliceStable(byTier, func(i, j int) bool { return byTier[i].Tier() < byTier[j].Tier() })
	for i := 1; i < len(byTier); i++ {
		lo, hi := byTier[i-1], byTier[i]
		if hi.Tier()-lo.Tier() > maxTierJump {
			out = append(out, Suggestion{
				Kind:   KindAdvisory,
				SpecID: hi.SpecID,
				Message: fmt.Sprintf("complexity jumps from tier %d (%s) to tier %d (%s); consider building up with an intermediate part",
					lo.Tier(), lo.SpecID, hi.Tier(), hi.SpecID),
			})
			break
		}
	}

	var has3v3, has5v []string
	for _, inst := range accepted {
		if inst.Spec == nil {
			continue
		}
		switch inst.Spec.Voltage {
		case catalog.Voltage3V3:
			has3v3 = append(has3v3, inst.SpecID)
		case catalog.Voltage5V:
			has5v = append(has5v, inst.SpecID)
		}
	}
	if len(has3v3) > 0 && len(has5v) > 0 {
		out = append(out, Suggestion{
			Kind: KindAdvisory,
			Message: fmt.Sprintf("project mixes 3v3 parts (%s) with 5v parts (%s); use a level shifter",
				strings.Join(has3v3, ", "), strings.Join(has5v, ", ")),
		})
	}
	return out
}
