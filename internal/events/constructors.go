package events

import (
	"time"

	"github.com/google/uuid"
)

// NewRunEvent creates a new RunEvent with untyped data.
func NewRunEvent(eventType EventType, runID, category string, severity EventSeverity, message string, data map[string]interface{}) *RunEvent {
	if data == nil {
		data = make(map[string]interface{})
	}
	return &RunEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
		RunID:     runID,
		Category:  category,
		Severity:  severity,
		Message:   message,
		Data:      data,
	}
}

// NewInstructionEvent creates an instruction_parsed event with type-safe data.
func NewInstructionEvent(runID string, message string, data InstructionData) (*RunEvent, error) {
	event := NewRunEvent(EventTypeInstructionParsed, runID, data.OldCategory, SeverityInfo, message, nil)
	if err := event.SetInstructionData(data); err != nil {
		return nil, err
	}
	return event, nil
}

// NewRejectionEvent creates an instruction_rejected event with type-safe data.
func NewRejectionEvent(runID string, message string, data RejectionData) (*RunEvent, error) {
	event := NewRunEvent(EventTypeInstructionRejected, runID, data.OldCategory, SeverityWarning, message, nil)
	if err := event.SetRejectionData(data); err != nil {
		return nil, err
	}
	return event, nil
}

// NewLifecycleEvent creates a category lifecycle event with type-safe data.
func NewLifecycleEvent(eventType EventType, runID, category string, severity EventSeverity, message string, data LifecycleData) (*RunEvent, error) {
	event := NewRunEvent(eventType, runID, category, severity, message, nil)
	if err := event.SetLifecycleData(data); err != nil {
		return nil, err
	}
	return event, nil
}

// NewRunSummaryEvent creates the closing event of a run.
func NewRunSummaryEvent(eventType EventType, runID string, severity EventSeverity, message string, data RunSummaryData) (*RunEvent, error) {
	event := NewRunEvent(eventType, runID, "", severity, message, nil)
	if err := event.SetRunSummaryData(data); err != nil {
		return nil, err
	}
	return event, nil
}

// NewRedirectFixedEvent creates a redirect_fixed event.
func NewRedirectFixedEvent(runID string, message string, data RedirectFixedData) (*RunEvent, error) {
	event := NewRunEvent(EventTypeRedirectFixed, runID, data.Page, SeverityInfo, message, nil)
	if err := event.SetRedirectFixedData(data); err != nil {
		return nil, err
	}
	return event, nil
}
