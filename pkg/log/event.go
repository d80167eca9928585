package log

import (
	"time"
)

// Event is a single engine decision or state change.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID identifies the composer session (UUID), if any.
	SessionID string `cbor:"2,keyasint,omitempty"`

	// ProjectID identifies the project being changed, if any.
	ProjectID string `cbor:"3,keyasint,omitempty"`

	// Stage of the engine that produced the event.
	Stage Stage `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// InstanceID is the component instance concerned, if any.
	InstanceID string `cbor:"6,keyasint,omitempty"`

	// SpecID is the component type concerned, if any.
	SpecID string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Classification *ClassificationEvent `cbor:"10,keyasint,omitempty"`
	Allocation     *AllocationEvent     `cbor:"11,keyasint,omitempty"`
	StateChange    *StateChangeEvent    `cbor:"12,keyasint,omitempty"`
	Suggestion     *SuggestionEvent     `cbor:"13,keyasint,omitempty"`
	Error          *ErrorEventData      `cbor:"14,keyasint,omitempty"`
}

// Stage indicates which engine component emitted the event.
type Stage uint8

const (
	StageClassifier Stage = 0
	StageResolver   Stage = 1
	StageAllocator  Stage = 2
	StageComposer   Stage = 3
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageClassifier:
		return "CLASSIFIER"
	case StageResolver:
		return "RESOLVER"
	case StageAllocator:
		return "ALLOCATOR"
	case StageComposer:
		return "COMPOSER"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryDecision is a classification or allocation outcome.
	CategoryDecision Category = 0
	// CategoryState is a lifecycle change of an instance, project or session.
	CategoryState Category = 1
	// CategorySuggestion is a composer suggestion.
	CategorySuggestion Category = 2
	// CategoryError is an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryDecision:
		return "DECISION"
	case CategoryState:
		return "STATE"
	case CategorySuggestion:
		return "SUGGESTION"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ClassificationEvent records the hypotheses produced for one observation.
type ClassificationEvent struct {
	// Observation describes the input ("trace gpio17", "i2c 0x48").
	Observation string `cbor:"1,keyasint"`

	// Hypotheses in rank order.
	Hypotheses []Hypothesis `cbor:"2,keyasint,omitempty"`
}

// Hypothesis is a ranked classification candidate.
type Hypothesis struct {
	SpecID     string  `cbor:"1,keyasint"`
	Confidence float64 `cbor:"2,keyasint"`
}

// AllocationEvent records the outcome of placing one instance.
type AllocationEvent struct {
	Outcome Outcome `cbor:"1,keyasint"`

	// Units lists the claimed unit ids on success.
	Units []string `cbor:"2,keyasint,omitempty"`

	// Failures lists per-slot reasons on rejection.
	Failures []string `cbor:"3,keyasint,omitempty"`

	// Violations lists the rule ids that blocked or warned.
	Violations []string `cbor:"4,keyasint,omitempty"`

	// Candidates is the number of candidate units tried.
	Candidates int `cbor:"5,keyasint,omitempty"`

	// Elapsed is the allocation time in nanoseconds.
	Elapsed time.Duration `cbor:"6,keyasint,omitempty"`

	// DryRun marks what-if allocations that were not committed.
	DryRun bool `cbor:"7,keyasint,omitempty"`
}

// Outcome is the result of an allocation.
type Outcome uint8

const (
	OutcomeAccepted Outcome = 0
	OutcomeRejected Outcome = 1
	OutcomeReleased Outcome = 2
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "ACCEPTED"
	case OutcomeRejected:
		return "REJECTED"
	case OutcomeReleased:
		return "RELEASED"
	default:
		return "UNKNOWN"
	}
}

// StateChangeEvent captures lifecycle transitions.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	StateEntityInstance StateEntity = 0
	StateEntityProject  StateEntity = 1
	StateEntitySession  StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityInstance:
		return "INSTANCE"
	case StateEntityProject:
		return "PROJECT"
	case StateEntitySession:
		return "SESSION"
	default:
		return "UNKNOWN"
	}
}

// SuggestionEvent captures a composer suggestion.
type SuggestionEvent struct {
	Kind    string `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`
}

// ErrorEventData captures errors at any stage.
type ErrorEventData struct {
	// Stage where the error occurred.
	Stage Stage `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"3,keyasint,omitempty"`
}
