package log

import (
	"context"
	"log/slog"
	"strings"
)

// SlogAdapter writes engine events to an slog.Logger at Debug level.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("stage", event.Stage.String()),
		slog.String("category", event.Category.String()),
	}
	if event.SessionID != "" {
		attrs = append(attrs, slog.String("session_id", event.SessionID))
	}
	if event.ProjectID != "" {
		attrs = append(attrs, slog.String("project_id", event.ProjectID))
	}
	if event.InstanceID != "" {
		attrs = append(attrs, slog.String("instance_id", event.InstanceID))
	}
	if event.SpecID != "" {
		attrs = append(attrs, slog.String("spec", event.SpecID))
	}

	switch {
	case event.Classification != nil:
		attrs = append(attrs,
			slog.String("observation", event.Classification.Observation),
			slog.Int("hypotheses", len(event.Classification.Hypotheses)),
		)
		if len(event.Classification.Hypotheses) > 0 {
			top := event.Classification.Hypotheses[0]
			attrs = append(attrs, slog.String("top", top.SpecID), slog.Float64("confidence", top.Confidence))
		}
	case event.Allocation != nil:
		attrs = append(attrs,
			slog.String("outcome", event.Allocation.Outcome.String()),
			slog.Int("candidates", event.Allocation.Candidates),
			slog.Duration("elapsed", event.Allocation.Elapsed),
		)
		if len(event.Allocation.Units) > 0 {
			attrs = append(attrs, slog.String("units", strings.Join(event.Allocation.Units, ",")))
		}
		if len(event.Allocation.Failures) > 0 {
			attrs = append(attrs, slog.String("failures", strings.Join(event.Allocation.Failures, "; ")))
		}
		if len(event.Allocation.Violations) > 0 {
			attrs = append(attrs, slog.String("violations", strings.Join(event.Allocation.Violations, ",")))
		}
		if event.Allocation.DryRun {
			attrs = append(attrs, slog.Bool("dry_run", true))
		}
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("entity", event.StateChange.Entity.String()),
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Suggestion != nil:
		attrs = append(attrs,
			slog.String("kind", event.Suggestion.Kind),
			slog.String("message", event.Suggestion.Message),
		)
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_stage", event.Error.Stage.String()),
			slog.String("error_msg", event.Error.Message),
			slog.String("error_context", event.Error.Context),
		)
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "engine", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
