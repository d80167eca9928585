// Package engine wires the catalog, board, resolver, allocator, classifier
// and composer into one configured unit.
package engine

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/pinwise/pinwise-go/pkg/alloc"
	"github.com/pinwise/pinwise-go/pkg/board"
	"github.com/pinwise/pinwise-go/pkg/catalog"
	"github.com/pinwise/pinwise-go/pkg/classify"
	"github.com/pinwise/pinwise-go/pkg/codegen"
	"github.com/pinwise/pinwise-go/pkg/compat"
	"github.com/pinwise/pinwise-go/pkg/compat/rules"
	"github.com/pinwise/pinwise-go/pkg/compose"
	"github.com/pinwise/pinwise-go/pkg/log"
	"github.com/pinwise/pinwise-go/pkg/project"
)

// Engine is a configured set of engine components. It holds no project
// state; projects are passed explicitly or owned by a compose.Session.
type Engine struct {
	cfg       Config
	sessionID string
	logger    *slog.Logger

	catalog    *catalog.Catalog
	board      *board.Board
	registry   *compat.Registry
	resolver   *compat.Resolver
	allocator  *alloc.Allocator
	classifier *classify.Classifier
	composer   *compose.Composer
	codegen    *codegen.Generator

	events  log.Logger
	fileLog *log.FileLogger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the operational logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithEventLogger adds an event sink next to the configured event log.
func WithEventLogger(l log.Logger) Option {
	return func(e *Engine) { e.events = l }
}

// WithSessionID fixes the session id events are tagged with. Defaults to
// a random UUID.
func WithSessionID(id string) Option {
	return func(e *Engine) { e.sessionID = id }
}

// New validates cfg and builds an Engine. A catalog or board that fails
// validation is fatal.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{cfg: cfg}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.sessionID == "" {
		e.sessionID = uuid.NewString()
	}

	var err error
	if e.catalog, err = loadCatalog(cfg.CatalogPath, e.logger); err != nil {
		return nil, err
	}
	if e.board, err = loadBoard(cfg.BoardPath); err != nil {
		return nil, err
	}
	if e.registry, err = buildRegistry(cfg); err != nil {
		return nil, err
	}

	sinks := []log.Logger{log.NewSlogAdapter(e.logger)}
	if e.events != nil {
		sinks = append(sinks, e.events)
	}
	if cfg.EventLog != "" {
		if e.fileLog, err = log.NewFileLogger(cfg.EventLog); err != nil {
			return nil, fmt.Errorf("opening event log: %w", err)
		}
		sinks = append(sinks, e.fileLog)
	}
	e.events = log.NewMultiLogger(sinks...)

	e.resolver = compat.NewResolver(e.registry, e.board, e.catalog)
	e.allocator = alloc.New(e.resolver, e.catalog,
		alloc.WithStrict(cfg.Strict),
		alloc.WithEventLogger(e.events),
		alloc.WithSessionID(e.sessionID))
	e.classifier = classify.New(e.catalog,
		classify.WithMinConfidence(cfg.MinConfidence),
		classify.WithEventLogger(e.events))
	e.composer = compose.New(e.catalog, e.allocator,
		compose.WithMaxSuggestions(cfg.MaxSuggestions),
		compose.WithEventLogger(e.events),
		compose.WithSessionID(e.sessionID))
	e.codegen = codegen.New()

	e.logger.Info("engine ready",
		"session_id", e.sessionID,
		"components", e.catalog.Len(),
		"board", e.board.Name,
		"rules", e.registry.EnabledCount(),
		"strict", cfg.Strict)
	return e, nil
}

func loadCatalog(path string, logger *slog.Logger) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default(catalog.WithLogger(logger))
	}
	return catalog.LoadFile(path, catalog.WithLogger(logger))
}

func loadBoard(path string) (*board.Board, error) {
	if path == "" {
		return board.Default()
	}
	return board.LoadFile(path)
}

// buildRegistry applies category switches first, then single-rule
// switches, then severity overrides.
func buildRegistry(cfg Config) (*compat.Registry, error) {
	r := rules.NewDefaultRegistry()
	for _, name := range cfg.DisabledCategories {
		c, err := compat.ParseCategory(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		r.DisableCategory(c)
	}
	for _, id := range cfg.EnabledRules {
		if !r.Has(id) {
			return nil, fmt.Errorf("%w: unknown rule %q", ErrInvalidConfig, id)
		}
		r.Enable(id)
	}
	for _, id := range cfg.DisabledRules {
		if !r.Has(id) {
			return nil, fmt.Errorf("%w: unknown rule %q", ErrInvalidConfig, id)
		}
		r.Disable(id)
	}
	for id, s := range cfg.Severities {
		if !r.Has(id) {
			return nil, fmt.Errorf("%w: unknown rule %q", ErrInvalidConfig, id)
		}
		sev, _ := compat.ParseSeverity(s)
		r.SetSeverity(id, sev)
	}
	return r, nil
}

// Close flushes and closes the event log.
func (e *Engine) Close() error {
	if e.fileLog == nil {
		return nil
	}
	return e.fileLog.Close()
}

// Accessors for the wired components.

func (e *Engine) Config() Config { return e.cfg }
func (e *Engine) SessionID() string { return e.sessionID }
func (e *Engine) Catalog() *catalog.Catalog { return e.catalog }
func (e *Engine) Board() *board.Board { return e.board }
func (e *Engine) Registry() *compat.Registry { return e.registry }
func (e *Engine) Allocator() *alloc.Allocator { return e.allocator }
func (e *Engine) Classifier() *classify.Classifier { return e.classifier }
func (e *Engine) Composer() *compose.Composer { return e.composer }
func (e *Engine) Generator() *codegen.Generator { return e.codegen }

// Classify classifies a batch of observations.
func (e *Engine) Classify(batch []classify.Observation) []classify.Classification {
	return e.classifier.ClassifyBatch(batch)
}

// Compose places candidates into a copy of existing.
func (e *Engine) Compose(candidates []compose.Candidate, existing *project.Project) (*project.Project, []compose.Suggestion) {
	return e.composer.Compose(candidates, existing)
}

// Plan composes candidates and renders the code skeleton of the result.
func (e *Engine) Plan(candidates []compose.Candidate, existing *project.Project) (*compose.Plan, error) {
	return e.composer.Plan(candidates, existing, e.codegen)
}

// NewSession starts a single-writer session over p (nil for a new project).
func (e *Engine) NewSession(p *project.Project) *compose.Session {
	return compose.NewSession(e.composer, p)
}

// Remove detaches an instance from p and frees its claims.
func (e *Engine) Remove(p *project.Project, instanceID string) (*project.Instance, error) {
	return e.allocator.Remove(p, instanceID)
}

// Validate re-checks every instance of p and updates p.Valid.
func (e *Engine) Validate(p *project.Project) []compat.Violation {
	return e.allocator.Validate(p)
}
