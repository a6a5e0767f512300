package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRunEvent(t *testing.T) {
	event := NewRunEvent(EventTypeRunStarted, "run-1", "", SeverityInfo, "started", nil)
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, EventTypeRunStarted, event.Type)
	assert.Equal(t, "run-1", event.RunID)
	assert.NotNil(t, event.Data)
	assert.False(t, event.Timestamp.IsZero())

	other := NewRunEvent(EventTypeRunStarted, "run-1", "", SeverityInfo, "started", nil)
	assert.NotEqual(t, event.ID, other.ID)
}

func TestTypedData(t *testing.T) {
	tests := []struct {
		name  string
		build func() (*RunEvent, error)
		check func(t *testing.T, e *RunEvent)
	}{
		{
			name: "instruction",
			build: func() (*RunEvent, error) {
				return NewInstructionEvent("r", "parsed", InstructionData{
					Mode:          "merge",
					OldCategory:   "Category:Old",
					NewCategories: []string{"Category:A", "Category:B"},
					Discussion:    "Wikipedia:Categories for discussion/Log/2024 January 1#Category:Old",
				})
			},
			check: func(t *testing.T, e *RunEvent) {
				data, err := e.GetInstructionData()
				require.NoError(t, err)
				assert.Equal(t, []string{"Category:A", "Category:B"}, data.NewCategories)
				assert.Equal(t, "Category:Old", e.Category)
			},
		},
		{
			name: "rejection",
			build: func() (*RunEvent, error) {
				return NewRejectionEvent("r", "conflict", RejectionData{
					InstructionData: InstructionData{Mode: "move", OldCategory: "Category:Shared"},
					Code:            "CONFLICT",
				})
			},
			check: func(t *testing.T, e *RunEvent) {
				data, err := e.GetRejectionData()
				require.NoError(t, err)
				assert.Equal(t, "CONFLICT", data.Code)
				assert.Equal(t, "Category:Shared", data.OldCategory)
				assert.Equal(t, SeverityWarning, e.Severity)
			},
		},
		{
			name: "lifecycle",
			build: func() (*RunEvent, error) {
				return NewLifecycleEvent(EventTypeCategoryDeleted, "r", "Category:Old", SeverityInfo, "deleted", LifecycleData{
					Mode: "empty", Outcome: "deleted", Cascade: []string{"Category:Alias"}, Changed: 3,
				})
			},
			check: func(t *testing.T, e *RunEvent) {
				data, err := e.GetLifecycleData()
				require.NoError(t, err)
				assert.Equal(t, []string{"Category:Alias"}, data.Cascade)
				assert.Equal(t, 3, data.Changed)
			},
		},
		{
			name: "summary",
			build: func() (*RunEvent, error) {
				return NewRunSummaryEvent(EventTypeRunCompleted, "r", SeverityInfo, "done", RunSummaryData{
					Approved: 2, Rejected: 1, Outcomes: map[string]int{"deleted": 2},
				})
			},
			check: func(t *testing.T, e *RunEvent) {
				data, err := e.GetRunSummaryData()
				require.NoError(t, err)
				assert.Equal(t, 2, data.Outcomes["deleted"])
				assert.Equal(t, 1, data.Rejected)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := tt.build()
			require.NoError(t, err)
			tt.check(t, event)
		})
	}
}

type memStore struct {
	mu     sync.Mutex
	events []*RunEvent
	err    error
}

func (m *memStore) StoreEvent(ctx context.Context, event *RunEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, event)
	return nil
}

func (m *memStore) GetEvents(ctx context.Context, filter EventFilter) ([]*RunEvent, error) {
	return m.events, nil
}

func TestRecorder(t *testing.T) {
	store := &memStore{}
	rec := NewRecorder(store, "run-9", slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	rec.Emit(ctx, EventTypePageFailed, "Category:Old", SeverityWarning, "edit conflict", map[string]interface{}{"page": "A"})
	event, err := NewInstructionEvent("", "parsed", InstructionData{Mode: "empty", OldCategory: "Category:Old"})
	require.NoError(t, err)
	rec.Record(ctx, event)

	require.Len(t, store.events, 2)
	assert.Equal(t, "run-9", store.events[1].RunID)
	assert.Equal(t, 1, rec.Count(EventTypePageFailed))
	assert.Equal(t, "run-9", rec.RunID())

	store.err = errors.New("disk full")
	rec.Emit(ctx, EventTypeRunCompleted, "", SeverityInfo, "done", nil)
	assert.Equal(t, 1, rec.Count(EventTypeRunCompleted))
	assert.Len(t, store.events, 2)
}

func TestRecorder_Nil(t *testing.T) {
	var rec *Recorder
	rec.Emit(context.Background(), EventTypeRunStarted, "", SeverityInfo, "x", nil)
	assert.Zero(t, rec.Count(EventTypeRunStarted))
	assert.Empty(t, rec.RunID())

	counting := NewRecorder(nil, "r", nil)
	counting.Emit(context.Background(), EventTypeRunStarted, "", SeverityInfo, "x", nil)
	assert.Equal(t, 1, counting.Count(EventTypeRunStarted))
}
