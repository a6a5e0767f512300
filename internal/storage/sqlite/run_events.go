package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/cfdbot/cfdw/internal/events"
)

// StoreEvent stores a new run event in the database
func (s *SQLiteStorage) StoreEvent(ctx context.Context, event *events.RunEvent) error {
	// Marshal the Data field to JSON
	dataJSON, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	query := `
		INSERT INTO run_events (
			id, run_id, type, timestamp, category, severity, message, data
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		event.ID,
		event.RunID,
		event.Type,
		toMillis(event.Timestamp),
		event.Category,
		event.Severity,
		event.Message,
		string(dataJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to store run event (type=%s, run=%s): %w", event.Type, event.RunID, err)
	}

	return nil
}

// GetEvents retrieves events matching the given filter
func (s *SQLiteStorage) GetEvents(ctx context.Context, filter events.EventFilter) ([]*events.RunEvent, error) {
	query := `
		SELECT id, run_id, type, timestamp, category, severity, message, data
		FROM run_events
		WHERE 1=1
	`
	args := []interface{}{}

	// Apply filters
	if filter.RunID != "" {
		query += " AND run_id = ?"
		args = append(args, filter.RunID)
	}
	if filter.Category != "" {
		query += " AND category = ?"
		args = append(args, filter.Category)
	}
	if filter.Type != "" {
		query += " AND type = ?"
		args = append(args, filter.Type)
	}
	if filter.Severity != "" {
		query += " AND severity = ?"
		args = append(args, filter.Severity)
	}
	if !filter.AfterTime.IsZero() {
		query += " AND timestamp > ?"
		args = append(args, toMillis(filter.AfterTime))
	}
	if !filter.BeforeTime.IsZero() {
		query += " AND timestamp < ?"
		args = append(args, toMillis(filter.BeforeTime))
	}

	// Oldest first reads like a log; rowid breaks ties within a millisecond
	query += " ORDER BY timestamp ASC, rowid ASC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query run events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// scanEvents is a helper function to scan rows into RunEvent structs
func scanEvents(rows *sql.Rows) ([]*events.RunEvent, error) {
	var result []*events.RunEvent

	for rows.Next() {
		var event events.RunEvent
		var dataJSON string
		var timestamp int64

		err := rows.Scan(
			&event.ID,
			&event.RunID,
			&event.Type,
			&timestamp,
			&event.Category,
			&event.Severity,
			&event.Message,
			&dataJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run event: %w", err)
		}

		event.Timestamp = fromMillis(timestamp)

		event.Data = make(map[string]interface{})
		if dataJSON != "" && dataJSON != "{}" && dataJSON != "null" {
			if err := json.Unmarshal([]byte(dataJSON), &event.Data); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event data: %w", err)
			}
		}

		result = append(result, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run event rows: %w", err)
	}

	return result, nil
}
