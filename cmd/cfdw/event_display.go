package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/cfdbot/cfdw/internal/events"
)

// displayRunEvent prints a single event in the two-line history format
func displayRunEvent(event *events.RunEvent) {
	glyph := getEventGlyph(event)
	severityColor := getSeverityColor(event.Severity)
	timestamp := event.Timestamp.Format("2006-01-02 15:04:05")
	eventType := color.New(color.FgMagenta).Sprint(event.Type)

	// Line 1: glyph + [timestamp] + event_type: message
	message := truncateString(event.Message, 90-len(string(event.Type)))
	fmt.Printf("%s [%s] %s: %s\n", glyph, timestamp, eventType, severityColor.Sprint(message))

	// Line 2: metadata fields, pipe-separated
	metadata := extractEventMetadata(event)
	if metadata != "" {
		fmt.Printf("  %s\n", color.New(color.FgHiBlack).Sprint(metadata))
	} else {
		fmt.Println()
	}
}

// getEventGlyph returns the marker for an event; type beats severity
func getEventGlyph(event *events.RunEvent) string {
	switch event.Type {
	case events.EventTypeRunStarted:
		return color.CyanString("▶")
	case events.EventTypeRunCompleted, events.EventTypeCategoryDeleted,
		events.EventTypeCategoryRedirected, events.EventTypeCategoryRenamed,
		events.EventTypeCategoryRetained, events.EventTypeRedirectFixed:
		return color.GreenString("✓")
	case events.EventTypeInstructionParsed, events.EventTypePageRecategorized:
		return color.CyanString("→")
	case events.EventTypeCategoryPending:
		return color.YellowString("⚠")
	}

	switch event.Severity {
	case events.SeverityWarning:
		return color.YellowString("⚠")
	case events.SeverityError, events.SeverityCritical:
		return color.RedString("✗")
	default:
		return color.CyanString("•")
	}
}

// getSeverityColor returns the appropriate color for a severity level
func getSeverityColor(severity events.EventSeverity) *color.Color {
	switch severity {
	case events.SeverityInfo:
		return color.New(color.FgCyan)
	case events.SeverityWarning:
		return color.New(color.FgYellow)
	case events.SeverityError:
		return color.New(color.FgRed)
	case events.SeverityCritical:
		return color.New(color.FgRed, color.Bold)
	default:
		return color.New(color.FgWhite)
	}
}

// extractEventMetadata picks the few fields worth showing for each event
// type and joins them with " | ".
func extractEventMetadata(event *events.RunEvent) string {
	var fields []string
	data := event.Data

	switch event.Type {
	case events.EventTypeInstructionParsed:
		fields = append(fields,
			getStringField(data, "mode", ""),
			getStringField(data, "old_category", ""),
			joinTargets(data),
		)

	case events.EventTypeInstructionRejected:
		fields = append(fields,
			getStringField(data, "code", ""),
			getStringField(data, "mode", ""),
			getStringField(data, "old_category", ""),
			joinTargets(data),
		)

	case events.EventTypePageRecategorized, events.EventTypePageFailed:
		fields = append(fields, getStringField(data, "page", ""))
		if msg := getStringField(data, "error", ""); msg != "" {
			fields = append(fields, "error: "+truncateString(msg, 40))
		}

	case events.EventTypeCategoryDeleted, events.EventTypeCategoryRedirected,
		events.EventTypeCategoryRenamed, events.EventTypeCategoryRetained,
		events.EventTypeCategoryPending:
		fields = append(fields, getStringField(data, "mode", ""))
		if target := getStringField(data, "target", ""); target != "" {
			fields = append(fields, "→ "+target)
		}
		fields = append(fields, fmt.Sprintf("%d changed, %d failed",
			getIntField(data, "changed", 0), getIntField(data, "failed", 0)))
		if cascade, ok := data["cascade"].([]interface{}); ok && len(cascade) > 0 {
			fields = append(fields, fmt.Sprintf("cascade: %d", len(cascade)))
		}

	case events.EventTypeRunCompleted, events.EventTypeRunAborted, events.EventTypeRunFailed:
		fields = append(fields,
			fmt.Sprintf("approved: %d", getIntField(data, "approved", 0)),
			fmt.Sprintf("rejected: %d", getIntField(data, "rejected", 0)),
		)
		if ms := getIntField(data, "duration_ms", 0); ms > 0 {
			fields = append(fields, formatDurationMs(ms))
		}
		if msg := getStringField(data, "error", ""); msg != "" {
			fields = append(fields, "error: "+truncateString(msg, 40))
		}

	case events.EventTypeRedirectFixed:
		fields = append(fields,
			getStringField(data, "page", ""),
			getStringField(data, "old_target", "")+" → "+getStringField(data, "new_target", ""),
		)
	}

	if event.Category != "" && event.Type != events.EventTypeInstructionParsed && event.Type != events.EventTypeInstructionRejected {
		fields = append([]string{event.Category}, fields...)
	}
	return truncateString(joinFields(fields), 100)
}

// joinTargets renders the new_categories list of instruction events.
func joinTargets(data map[string]interface{}) string {
	raw, ok := data["new_categories"].([]interface{})
	if !ok || len(raw) == 0 {
		return ""
	}
	names := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			names = append(names, s)
		}
	}
	return "→ " + strings.Join(names, ", ")
}

// Helper functions to safely extract typed fields from event data
func getStringField(data map[string]interface{}, key, defaultValue string) string {
	if val, ok := data[key].(string); ok {
		return val
	}
	return defaultValue
}

func getIntField(data map[string]interface{}, key string, defaultValue int) int {
	if val, ok := data[key].(int); ok {
		return val
	}
	if val, ok := data[key].(float64); ok {
		return int(val)
	}
	return defaultValue
}

// formatDurationMs formats milliseconds into a human-readable duration
func formatDurationMs(ms int) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	if ms < 60000 {
		return fmt.Sprintf("%.1fs", float64(ms)/1000)
	}
	return fmt.Sprintf("%.1fm", float64(ms)/60000)
}

// joinFields joins non-empty metadata fields with " | "
func joinFields(fields []string) string {
	nonEmpty := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" {
			nonEmpty = append(nonEmpty, f)
		}
	}
	return strings.Join(nonEmpty, " | ")
}

// truncateString truncates a string to maxLen, adding "..." if needed
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return s[:maxLen-3] + "..."
}
