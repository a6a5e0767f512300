package events

import (
	"context"
	"log/slog"
	"sync"
)

// Recorder stamps events with a run id and stores them. Storage failures
// are logged, never returned: losing history must not stop a run.
type Recorder struct {
	store  EventStore
	runID  string
	logger *slog.Logger

	mu     sync.Mutex
	counts map[EventType]int
}

// NewRecorder creates a recorder for one run. store may be nil, in which
// case events are only counted.
func NewRecorder(store EventStore, runID string, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, runID: runID, logger: logger, counts: make(map[EventType]int)}
}

// RunID returns the run the recorder belongs to.
func (r *Recorder) RunID() string {
	if r == nil {
		return ""
	}
	return r.runID
}

// Record stores event. A nil Recorder discards it.
func (r *Recorder) Record(ctx context.Context, event *RunEvent) {
	if r == nil || event == nil {
		return
	}
	event.RunID = r.runID
	r.mu.Lock()
	r.counts[event.Type]++
	r.mu.Unlock()
	if r.store == nil {
		return
	}
	if err := r.store.StoreEvent(ctx, event); err != nil {
		r.logger.Warn("failed to store event", "type", string(event.Type), "error", err)
	}
}

// Emit builds and records an event with untyped data.
func (r *Recorder) Emit(ctx context.Context, eventType EventType, category string, severity EventSeverity, message string, data map[string]interface{}) {
	if r == nil {
		return
	}
	r.Record(ctx, NewRunEvent(eventType, r.runID, category, severity, message, data))
}

// Count returns how many events of a type were recorded.
func (r *Recorder) Count(eventType EventType) int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[eventType]
}
