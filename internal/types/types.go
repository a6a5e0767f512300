package types

import (
	"fmt"
	"strings"
	"time"
)

// Mode is the kind of action a working page section asks for
type Mode string

const (
	ModeMove   Mode = "move"
	ModeMerge  Mode = "merge"
	ModeEmpty  Mode = "empty"
	ModeRetain Mode = "retain"
)

// Modes lists every mode in the order section headings are matched.
var Modes = []Mode{ModeMove, ModeMerge, ModeEmpty, ModeRetain}

// IsValid checks if the mode value is valid
func (m Mode) IsValid() bool {
	switch m {
	case ModeMove, ModeMerge, ModeEmpty, ModeRetain:
		return true
	}
	return false
}

func (m Mode) String() string {
	return string(m)
}

// ParseMode parses a mode name, ignoring case and surrounding space
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if !m.IsValid() {
		return "", fmt.Errorf("invalid mode: %q", s)
	}
	return m, nil
}

// Outcome is the terminal state of one instruction in a run
type Outcome string

const (
	OutcomeDeleted    Outcome = "deleted"
	OutcomeRedirected Outcome = "redirected"
	OutcomeRenamed    Outcome = "renamed"
	OutcomeRetained   Outcome = "retained"
	OutcomePending    Outcome = "pending"  // category not empty after settle; a later run retries
	OutcomeRejected   Outcome = "rejected" // dropped by validation
	OutcomeAborted    Outcome = "aborted"  // kill switch tripped
)

// IsValid checks if the outcome value is valid
func (o Outcome) IsValid() bool {
	switch o {
	case OutcomeDeleted, OutcomeRedirected, OutcomeRenamed, OutcomeRetained,
		OutcomePending, OutcomeRejected, OutcomeAborted:
		return true
	}
	return false
}

// RunStatus represents the state of a stored run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusAborted   RunStatus = "aborted"
)

// IsValid checks if the run status value is valid
func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusRunning, RunStatusCompleted, RunStatusFailed, RunStatusAborted:
		return true
	}
	return false
}

// Run records one execution of the engine against a working page
type Run struct {
	ID          string     `json:"id"`
	WorkingPage string     `json:"working_page"`
	DryRun      bool       `json:"dry_run"`
	Status      RunStatus  `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Approved    int        `json:"approved"`
	Rejected    int        `json:"rejected"`
	Error       string     `json:"error,omitempty"`
}

// Validate checks if the run has valid field values
func (r *Run) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("id is required")
	}
	if r.WorkingPage == "" {
		return fmt.Errorf("working_page is required")
	}
	if !r.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", r.Status)
	}
	if r.Approved < 0 || r.Rejected < 0 {
		return fmt.Errorf("instruction counts cannot be negative")
	}
	return nil
}

// Duration returns how long the run took, or zero while it is running
func (r *Run) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}
