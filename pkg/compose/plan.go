package compose

import (
	"fmt"

	"github.com/pinwise/pinwise-go/pkg/project"
)

// CodeGenerator renders a code skeleton for the accepted instances of a
// project.
type CodeGenerator interface {
	Generate(p *project.Project) (string, error)
}

// Plan is a composed project plus its code skeleton.
type Plan struct {
	Project     *project.Project `json:"project"`
	Suggestions []Suggestion     `json:"suggestions,omitempty"`
	Code        string           `json:"code,omitempty"`
}

// Plan composes candidates into existing and, when gen is non-nil, renders
// the code skeleton of the result. Only code generation can fail.
func (c *Composer) Plan(candidates []Candidate, existing *project.Project, gen CodeGenerator) (*Plan, error) {
	p, suggestions := c.Compose(candidates, existing)
	plan := &Plan{Project: p, Suggestions: suggestions}
	if gen == nil {
		return plan, nil
	}
	code, err := gen.Generate(p)
	if err != nil {
		return plan, fmt.Errorf("generating code: %w", err)
	}
	plan.Code = code
	return plan, nil
}
