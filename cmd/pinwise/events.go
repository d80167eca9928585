package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pinwise/pinwise-go/pkg/log"
)

type eventsOptions struct {
	stage    string
	category string
	session  string
	spec     string
	instance string
}

func newEventsCmd(opts *globalOptions) *cobra.Command {
	eo := &eventsOptions{}
	cmd := &cobra.Command{
		Use:   "events <file>",
		Short: "View an engine event log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := eo.filter()
			if err != nil {
				return err
			}
			r, err := log.NewFilteredReader(args[0], filter)
			if err != nil {
				return err
			}
			defer r.Close()
			events, err := r.All()
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if opts.jsonOut {
				return writeJSON(w, events)
			}
			for _, ev := range events {
				formatEvent(w, ev)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&eo.stage, "stage", "", "Only events of this stage (classifier, resolver, allocator, composer)")
	f.StringVar(&eo.category, "category", "", "Only events of this category (decision, state, suggestion, error)")
	f.StringVar(&eo.session, "session", "", "Only events of this session id")
	f.StringVar(&eo.spec, "spec", "", "Only events about this component type")
	f.StringVar(&eo.instance, "instance", "", "Only events about this instance id")
	return cmd
}

func (o *eventsOptions) filter() (log.Filter, error) {
	f := log.Filter{SessionID: o.session, SpecID: o.spec, InstanceID: o.instance}
	if o.stage != "" {
		s, err := parseStage(o.stage)
		if err != nil {
			return f, err
		}
		f.Stage = &s
	}
	if o.category != "" {
		c, err := parseCategory(o.category)
		if err != nil {
			return f, err
		}
		f.Category = &c
	}
	return f, nil
}

func parseStage(s string) (log.Stage, error) {
	for _, st := range []log.Stage{log.StageClassifier, log.StageResolver, log.StageAllocator, log.StageComposer} {
		if strings.EqualFold(st.String(), s) {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown stage %q", s)
}

func parseCategory(s string) (log.Category, error) {
	for _, c := range []log.Category{log.CategoryDecision, log.CategoryState, log.CategorySuggestion, log.CategoryError} {
		if strings.EqualFold(c.String(), s) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown category %q", s)
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, ev log.Event) {
	// Header line: timestamp [session] STAGE Type spec
	ts := ev.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")

	var typeLabel string
	switch {
	case ev.Classification != nil:
		typeLabel = "Classification"
	case ev.Allocation != nil:
		typeLabel = "Allocation"
	case ev.StateChange != nil:
		typeLabel = "State"
	case ev.Suggestion != nil:
		typeLabel = "Suggestion"
	case ev.Error != nil:
		typeLabel = "Error"
	default:
		typeLabel = "Unknown"
	}

	fmt.Fprintf(w, "%s [%s] %s %s", ts, shortID(ev.SessionID), ev.Stage, typeLabel)
	if ev.SpecID != "" {
		fmt.Fprintf(w, " %s", ev.SpecID)
	}
	if ev.InstanceID != "" {
		fmt.Fprintf(w, " (%s)", shortID(ev.InstanceID))
	}
	fmt.Fprintln(w)

	switch {
	case ev.Classification != nil:
		fmt.Fprintf(w, "  Observation: %s\n", ev.Classification.Observation)
		for _, h := range ev.Classification.Hypotheses {
			fmt.Fprintf(w, "  %-24s %.2f\n", h.SpecID, h.Confidence)
		}
	case ev.Allocation != nil:
		a := ev.Allocation
		fmt.Fprintf(w, "  Outcome: %s", a.Outcome)
		if a.DryRun {
			fmt.Fprint(w, " (dry run)")
		}
		fmt.Fprintf(w, "  Candidates: %d  Elapsed: %s\n", a.Candidates, a.Elapsed)
		if len(a.Units) > 0 {
			fmt.Fprintf(w, "  Units: %s\n", strings.Join(a.Units, " "))
		}
		for _, f := range a.Failures {
			fmt.Fprintf(w, "  Failure: %s\n", f)
		}
		if len(a.Violations) > 0 {
			fmt.Fprintf(w, "  Rules: %s\n", strings.Join(a.Violations, ", "))
		}
	case ev.StateChange != nil:
		sc := ev.StateChange
		fmt.Fprintf(w, "  %s: %s -> %s\n", sc.Entity, sc.OldState, sc.NewState)
		if sc.Reason != "" {
			fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
		}
	case ev.Suggestion != nil:
		fmt.Fprintf(w, "  %s: %s\n", ev.Suggestion.Kind, ev.Suggestion.Message)
	case ev.Error != nil:
		fmt.Fprintf(w, "  %s: %s\n", ev.Error.Stage, ev.Error.Message)
		if ev.Error.Context != "" {
			fmt.Fprintf(w, "  Context: %s\n", ev.Error.Context)
		}
	}

	fmt.Fprintln(w) // Blank line between events
}
