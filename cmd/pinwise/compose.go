package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pinwise/pinwise-go/pkg/catalog"
	"github.com/pinwise/pinwise-go/pkg/compose"
	"github.com/pinwise/pinwise-go/pkg/persistence"
	"github.com/pinwise/pinwise-go/pkg/project"
)

type composeOptions struct {
	projectPath string
	name        string
	dbPath      string
	codePath    string
	dryRun      bool
}

func newComposeCmd(opts *globalOptions) *cobra.Command {
	co := &composeOptions{}
	cmd := &cobra.Command{
		Use:   "compose <type[:count][@confidence]>...",
		Short: "Place components into a project",
		Long: `Places component instances onto the board, highest confidence first.

Each argument names a component type by id, name or alias, optionally
followed by the desired instance count and a confidence:

  LED           one LED, confidence 1
  LED:3         three LEDs in total
  Servo@0.6     one servo, placed after higher-confidence candidates

With --project the project is loaded from (and saved back to) a JSON
snapshot, so repeated runs extend the same project.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cands, err := parseCandidates(args)
			if err != nil {
				return err
			}
			return runCompose(cmd, opts, co, cands)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&co.projectPath, "project", "p", "", "Project snapshot file to extend and save")
	f.StringVar(&co.name, "name", "", "Name of a new project")
	f.StringVar(&co.dbPath, "db", "", "Also save the project to this SQLite database")
	f.StringVar(&co.codePath, "code", "", `Write the code skeleton to this file ("-" for stdout)`)
	f.BoolVar(&co.dryRun, "dry-run", false, "Do not save the project")
	return cmd
}

// parseCandidates parses "type[:count][@confidence]" arguments.
func parseCandidates(args []string) ([]compose.Candidate, error) {
	out := make([]compose.Candidate, 0, len(args))
	for _, arg := range args {
		c := compose.Candidate{Confidence: 1}
		rest := arg
		if i := strings.LastIndex(rest, "@"); i >= 0 {
			conf, err := strconv.ParseFloat(rest[i+1:], 64)
			if err != nil || conf < 0 || conf > 1 {
				return nil, fmt.Errorf("candidate %q: confidence must be a number in [0, 1]", arg)
			}
			c.Confidence = conf
			rest = rest[:i]
		}
		if i := strings.LastIndex(rest, ":"); i >= 0 {
			n, err := strconv.Atoi(rest[i+1:])
			if err != nil || n < 1 {
				return nil, fmt.Errorf("candidate %q: count must be a positive integer", arg)
			}
			c.Count = n
			rest = rest[:i]
		}
		c.Type = strings.TrimSpace(rest)
		if c.Type == "" {
			return nil, fmt.Errorf("candidate %q: missing component type", arg)
		}
		out = append(out, c)
	}
	return out, nil
}

func runCompose(cmd *cobra.Command, opts *globalOptions, co *composeOptions, cands []compose.Candidate) error {
	e, err := opts.engine(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	existing, err := loadProject(co.projectPath, e.Catalog())
	if err != nil {
		return err
	}
	if existing == nil {
		existing = project.New(co.name)
	}

	plan, err := e.Plan(cands, existing)
	if err != nil {
		return err
	}
	p := plan.Project

	if !co.dryRun {
		if err := saveProject(co, p); err != nil {
			return err
		}
	}
	if co.codePath != "" && co.codePath != "-" {
		if err := os.WriteFile(co.codePath, []byte(plan.Code), 0644); err != nil {
			return fmt.Errorf("writing code: %w", err)
		}
	}

	w := cmd.OutOrStdout()
	if opts.jsonOut {
		return writeJSON(w, plan)
	}
	writeProject(w, p)
	writeSuggestions(w, plan.Suggestions)
	if co.codePath == "-" {
		fmt.Fprintln(w)
		fmt.Fprint(w, plan.Code)
	}
	return nil
}

func loadProject(path string, c *catalog.Catalog) (*project.Project, error) {
	if path == "" {
		return nil, nil
	}
	p, err := persistence.NewFileStore(path).Load(c)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return p, nil
}

func saveProject(co *composeOptions, p *project.Project) error {
	if co.projectPath != "" {
		if err := persistence.NewFileStore(co.projectPath).Save(p); err != nil {
			return fmt.Errorf("saving %s: %w", co.projectPath, err)
		}
	}
	if co.dbPath != "" {
		db, err := persistence.NewSQLStore(co.dbPath)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Save(p); err != nil {
			return fmt.Errorf("saving to %s: %w", co.dbPath, err)
		}
	}
	return nil
}

func writeProject(w io.Writer, p *project.Project) {
	title := p.Name
	if title == "" {
		title = p.ID
	}
	state := "valid"
	if !p.Valid {
		state = "INVALID"
	}
	fmt.Fprintf(w, "Project %s (%s, complexity %d, tier %d)\n", title, state, p.TotalComplexity(), p.Tier())
	for _, inst := range p.Instances {
		units := make([]string, 0, len(inst.Claims))
		for _, c := range inst.Claims {
			u := c.Unit.ID
			if c.Mode == project.Shared {
				u += "(shared)"
			}
			units = append(units, u)
		}
		fmt.Fprintf(w, "  %s  %-24s %s\n", shortID(inst.ID), inst.SpecID, strings.Join(units, " "))
	}
}

func writeSuggestions(w io.Writer, ss []compose.Suggestion) {
	if len(ss) == 0 {
		return
	}
	fmt.Fprintln(w, "Suggestions:")
	for _, s := range ss {
		fmt.Fprintf(w, "  %-13s %s\n", s.Kind, s.Message)
	}
}

// shortID returns the first 8 characters of an instance id.
func shortID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

// errAmbiguousID is returned when an id prefix matches several instances.
var errAmbiguousID = errors.New("ambiguous instance id")

// resolveInstanceID expands a unique id prefix to a full instance id.
func resolveInstanceID(p *project.Project, prefix string) (string, error) {
	var match string
	for _, inst := range p.Instances {
		if inst.ID == prefix {
			return inst.ID, nil
		}
		if strings.HasPrefix(inst.ID, prefix) {
			if match != "" {
				return "", fmt.Errorf("%w: %s", errAmbiguousID, prefix)
			}
			match = inst.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("%w: %s", project.ErrUnknownInstance, prefix)
	}
	return match, nil
}
