package main

import (
	"testing"
	"time"

	"github.com/cfdbot/cfdw/internal/events"
)

func TestExtractEventMetadata(t *testing.T) {
	tests := []struct {
		name     string
		event    events.RunEvent
		expected string
	}{
		{
			name: "rejected instruction",
			event: events.RunEvent{
				Type: events.EventTypeInstructionRejected,
				Data: map[string]interface{}{
					"code":           "CONFLICT",
					"mode":           "merge",
					"old_category":   "Category:A",
					"new_categories": []interface{}{"Category:B", "Category:C"},
				},
			},
			expected: "CONFLICT | merge | Category:A | → Category:B, Category:C",
		},
		{
			name: "failed page",
			event: events.RunEvent{
				Type:     events.EventTypePageFailed,
				Category: "Category:A",
				Data:     map[string]interface{}{"page": "Apple", "error": "protectedpage"},
			},
			expected: "Category:A | Apple | error: protectedpage",
		},
		{
			name: "deleted with cascade",
			event: events.RunEvent{
				Type:     events.EventTypeCategoryDeleted,
				Category: "Category:A",
				Data: map[string]interface{}{
					"mode":    "empty",
					"cascade": []interface{}{"Category talk:A"},
					"changed": float64(3),
				},
			},
			expected: "Category:A | empty | 3 changed, 0 failed | cascade: 1",
		},
		{
			name: "renamed",
			event: events.RunEvent{
				Type:     events.EventTypeCategoryRenamed,
				Category: "Category:A",
				Data:     map[string]interface{}{"mode": "move", "target": "Category:B", "changed": 2},
			},
			expected: "Category:A | move | → Category:B | 2 changed, 0 failed",
		},
		{
			name: "run summary with missing fields",
			event: events.RunEvent{
				Type: events.EventTypeRunCompleted,
				Data: map[string]interface{}{},
			},
			expected: "approved: 0 | rejected: 0",
		},
		{
			name: "aborted run",
			event: events.RunEvent{
				Type: events.EventTypeRunAborted,
				Data: map[string]interface{}{
					"approved":    float64(4),
					"duration_ms": float64(2500),
					"error":       "kill switch engaged",
				},
			},
			expected: "approved: 4 | rejected: 0 | 2.5s | error: kill switch engaged",
		},
		{
			name: "fixed redirect",
			event: events.RunEvent{
				Type: events.EventTypeRedirectFixed,
				Data: map[string]interface{}{
					"page":       "Category:A",
					"old_target": "Category:B",
					"new_target": "Category:D",
				},
			},
			expected: "Category:A | Category:B → Category:D",
		},
		{
			name:     "unknown type",
			event:    events.RunEvent{Type: "something_else"},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.event.Timestamp = time.Now()
			result := extractEventMetadata(&tt.event)
			if result != tt.expected {
				t.Errorf("extractEventMetadata() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestFormatDurationMs(t *testing.T) {
	tests := []struct {
		ms       int
		expected string
	}{
		{0, "0ms"},
		{999, "999ms"},
		{1500, "1.5s"},
		{90000, "1.5m"},
	}
	for _, tt := range tests {
		if got := formatDurationMs(tt.ms); got != tt.expected {
			t.Errorf("formatDurationMs(%d) = %q, want %q", tt.ms, got, tt.expected)
		}
	}
}

func TestTruncateString(t *testing.T) {
	tests := []struct {
		s        string
		maxLen   int
		expected string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"a longer message", 10, "a longe..."},
		{"abc", 2, "..."},
	}
	for _, tt := range tests {
		if got := truncateString(tt.s, tt.maxLen); got != tt.expected {
			t.Errorf("truncateString(%q, %d) = %q, want %q", tt.s, tt.maxLen, got, tt.expected)
		}
	}
}
