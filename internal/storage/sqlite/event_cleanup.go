package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// EventCounts holds event count statistics for monitoring
type EventCounts struct {
	TotalRuns        int
	TotalEvents      int
	EventsByRun      map[string]int
	EventsBySeverity map[string]int
	EventsByType     map[string]int
}

// CleanupEventsByAge deletes events older than the retention period
// Regular events are deleted after retentionDays, critical events after criticalRetentionDays
// Deletions are batched (batchSize events per statement)
func (s *SQLiteStorage) CleanupEventsByAge(ctx context.Context, retentionDays, criticalRetentionDays, batchSize int) (int, error) {
	if retentionDays < 0 || criticalRetentionDays < 0 {
		return 0, fmt.Errorf("retention days cannot be negative")
	}
	if batchSize < 1 {
		return 0, fmt.Errorf("batch size must be at least 1")
	}

	totalDeleted := 0

	// Step 1: Delete old regular events (severity = info or warning)
	regularCutoff := time.Now().AddDate(0, 0, -retentionDays)
	deleted, err := s.deleteOldEventsBatch(ctx, regularCutoff, []string{"info", "warning"}, batchSize)
	if err != nil {
		return totalDeleted, fmt.Errorf("failed to delete old regular events: %w", err)
	}
	totalDeleted += deleted

	// Step 2: Delete old critical events (severity = error or critical)
	criticalCutoff := time.Now().AddDate(0, 0, -criticalRetentionDays)
	deleted, err = s.deleteOldEventsBatch(ctx, criticalCutoff, []string{"error", "critical"}, batchSize)
	if err != nil {
		return totalDeleted, fmt.Errorf("failed to delete old critical events: %w", err)
	}
	totalDeleted += deleted

	return totalDeleted, nil
}

// deleteOldEventsBatch deletes events older than cutoff with specified severities in batches
func (s *SQLiteStorage) deleteOldEventsBatch(ctx context.Context, cutoff time.Time, severities []string, batchSize int) (int, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(severities)), ", ")
	query := fmt.Sprintf(`
		DELETE FROM run_events
		WHERE id IN (
			SELECT id FROM run_events
			WHERE timestamp < ?
			AND severity IN (%s)
			ORDER BY timestamp ASC
			LIMIT ?
		)
	`, placeholders)

	args := []interface{}{toMillis(cutoff)}
	for _, sev := range severities {
		args = append(args, sev)
	}
	args = append(args, batchSize)

	return s.deleteInBatches(ctx, query, args, batchSize)
}

// CleanupRunsByAge deletes finished runs started before the retention
// period. Their remaining events go with them.
func (s *SQLiteStorage) CleanupRunsByAge(ctx context.Context, retentionDays, batchSize int) (int, error) {
	if retentionDays < 0 {
		return 0, fmt.Errorf("retention days cannot be negative")
	}
	if batchSize < 1 {
		return 0, fmt.Errorf("batch size must be at least 1")
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	query := `
		DELETE FROM runs
		WHERE id IN (
			SELECT id FROM runs
			WHERE started_at < ?
			AND status != 'running'
			ORDER BY started_at ASC
			LIMIT ?
		)
	`
	deleted, err := s.deleteInBatches(ctx, query, []interface{}{toMillis(cutoff), batchSize}, batchSize)
	if err != nil {
		return deleted, fmt.Errorf("failed to delete old runs: %w", err)
	}
	return deleted, nil
}

// deleteInBatches repeats a LIMIT-ed delete until a batch comes back short.
func (s *SQLiteStorage) deleteInBatches(ctx context.Context, query string, args []interface{}, batchSize int) (int, error) {
	totalDeleted := 0
	for {
		select {
		case <-ctx.Done():
			return totalDeleted, ctx.Err()
		default:
		}

		result, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return totalDeleted, fmt.Errorf("failed to execute delete: %w", err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return totalDeleted, fmt.Errorf("failed to get rows affected: %w", err)
		}
		totalDeleted += int(rowsAffected)

		// If we deleted fewer than batchSize, we're done
		if rowsAffected < int64(batchSize) {
			return totalDeleted, nil
		}
	}
}

// GetEventCounts returns detailed event count statistics for monitoring
func (s *SQLiteStorage) GetEventCounts(ctx context.Context) (*EventCounts, error) {
	counts := &EventCounts{
		EventsByRun:      make(map[string]int),
		EventsBySeverity: make(map[string]int),
		EventsByType:     make(map[string]int),
	}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&counts.TotalRuns); err != nil {
		return nil, fmt.Errorf("failed to get run count: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM run_events").Scan(&counts.TotalEvents); err != nil {
		return nil, fmt.Errorf("failed to get total event count: %w", err)
	}

	groups := []struct {
		column string
		into   map[string]int
	}{
		{"run_id", counts.EventsByRun},
		{"severity", counts.EventsBySeverity},
		{"type", counts.EventsByType},
	}
	for _, g := range groups {
		if err := s.countBy(ctx, g.column, g.into); err != nil {
			return nil, err
		}
	}
	return counts, nil
}

// countBy fills into with event counts grouped by column. column is one
// of a fixed set of names, never user input.
func (s *SQLiteStorage) countBy(ctx context.Context, column string, into map[string]int) error {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT %s, COUNT(*) FROM run_events GROUP BY %s", column, column))
	if err != nil {
		return fmt.Errorf("failed to get events by %s: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return fmt.Errorf("failed to scan %s count: %w", column, err)
		}
		into[key] = count
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating %s counts: %w", column, err)
	}
	return nil
}
