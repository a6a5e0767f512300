package events

import (
	"context"
	"time"
)

// EventType represents the type of event that occurred during a run.
type EventType string

const (
	// Run-level events
	// EventTypeRunStarted indicates the engine started on a working page
	EventTypeRunStarted EventType = "run_started"
	// EventTypeRunCompleted indicates every approved instruction was executed
	EventTypeRunCompleted EventType = "run_completed"
	// EventTypeRunAborted indicates the kill switch stopped the run
	EventTypeRunAborted EventType = "run_aborted"
	// EventTypeRunFailed indicates the run stopped on an unexpected error
	EventTypeRunFailed EventType = "run_failed"

	// Planning events
	// EventTypeInstructionParsed indicates an instruction was built from a working page line
	EventTypeInstructionParsed EventType = "instruction_parsed"
	// EventTypeInstructionRejected indicates an instruction failed validation
	EventTypeInstructionRejected EventType = "instruction_rejected"

	// Member page events
	// EventTypePageRecategorized indicates a member page was saved with new categories
	EventTypePageRecategorized EventType = "page_recategorized"
	// EventTypePageFailed indicates a member page edit failed and was skipped
	EventTypePageFailed EventType = "page_failed"

	// Category lifecycle events
	// EventTypeCategoryDeleted indicates a category (and its cascade) was deleted
	EventTypeCategoryDeleted EventType = "category_deleted"
	// EventTypeCategoryRedirected indicates an emptied category became a category redirect
	EventTypeCategoryRedirected EventType = "category_redirected"
	// EventTypeCategoryRenamed indicates a category was moved to its new title
	EventTypeCategoryRenamed EventType = "category_renamed"
	// EventTypeCategoryRetained indicates the CfD template was removed and an Old CfD note added
	EventTypeCategoryRetained EventType = "category_retained"
	// EventTypeCategoryPending indicates a category still had members after the settle wait
	EventTypeCategoryPending EventType = "category_pending"

	// EventTypeRedirectFixed indicates a double category redirect was retargeted
	EventTypeRedirectFixed EventType = "redirect_fixed"
)

// EventSeverity represents the severity level of an event.
type EventSeverity string

const (
	// SeverityInfo indicates informational events
	SeverityInfo EventSeverity = "info"
	// SeverityWarning indicates potentially problematic events
	SeverityWarning EventSeverity = "warning"
	// SeverityError indicates error events
	SeverityError EventSeverity = "error"
	// SeverityCritical indicates events that stopped a run
	SeverityCritical EventSeverity = "critical"
)

// RunEvent is something that happened while the engine worked through a
// working page. Events are stored with the run for later review.
type RunEvent struct {
	// ID is the unique identifier for this event
	ID string `json:"id"`
	// Type is the type of event
	Type EventType `json:"type"`
	// Timestamp is when the event occurred
	Timestamp time.Time `json:"timestamp"`
	// RunID is the run this event belongs to
	RunID string `json:"run_id"`
	// Category is the full title of the category the event concerns, if any
	Category string `json:"category"`
	// Severity is the severity level of this event
	Severity EventSeverity `json:"severity"`
	// Message is a human-readable description of the event
	Message string `json:"message"`
	// Data contains structured, type-specific data (must be JSON-serializable)
	Data map[string]interface{} `json:"data"`
}

// InstructionData describes an instruction read from the working page.
type InstructionData struct {
	Mode          string   `json:"mode"`
	OldCategory   string   `json:"old_category"`
	NewCategories []string `json:"new_categories,omitempty"`
	Discussion    string   `json:"discussion"`
	Line          string   `json:"line,omitempty"`
}

// RejectionData describes why an instruction was dropped.
type RejectionData struct {
	InstructionData
	// Code is the validation error code, e.g. CONFLICT or TARGET_MISSING
	Code string `json:"code"`
}

// PageData describes one member page edit.
type PageData struct {
	Page  string `json:"page"`
	Error string `json:"error,omitempty"`
}

// LifecycleData describes the terminal action taken on a category.
type LifecycleData struct {
	Mode    string `json:"mode"`
	Outcome string `json:"outcome"`
	Target  string `json:"target,omitempty"`
	// Cascade lists redirects and talk pages deleted along with the category
	Cascade []string `json:"cascade,omitempty"`
	Changed int      `json:"changed"`
	Failed  int      `json:"failed"`
}

// RunSummaryData is attached to the final event of a run.
type RunSummaryData struct {
	Approved   int            `json:"approved"`
	Rejected   int            `json:"rejected"`
	Outcomes   map[string]int `json:"outcomes,omitempty"`
	DurationMs int64          `json:"duration_ms"`
	Error      string         `json:"error,omitempty"`
}

// RedirectFixedData describes a double redirect repair.
type RedirectFixedData struct {
	Page      string `json:"page"`
	OldTarget string `json:"old_target"`
	NewTarget string `json:"new_target"`
}

// EventStore defines the interface for storing and retrieving run events.
type EventStore interface {
	// StoreEvent stores a new event in the event store
	StoreEvent(ctx context.Context, event *RunEvent) error

	// GetEvents retrieves events matching the given filter
	GetEvents(ctx context.Context, filter EventFilter) ([]*RunEvent, error)
}

// EventFilter defines criteria for filtering events.
type EventFilter struct {
	// RunID filters events by run
	RunID string
	// Category filters events by category title
	Category string
	// Type filters events by event type
	Type EventType
	// Severity filters events by severity level
	Severity EventSeverity
	// AfterTime filters events that occurred after this time
	AfterTime time.Time
	// BeforeTime filters events that occurred before this time
	BeforeTime time.Time
	// Limit limits the number of events returned
	Limit int
}
