package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cfdbot/cfdw/internal/types"
)

// ErrRunNotFound is returned when no run has the requested id
var ErrRunNotFound = errors.New("run not found")

// CreateRun stores a new run
func (s *SQLiteStorage) CreateRun(ctx context.Context, run *types.Run) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO runs (
			id, working_page, dry_run, status, started_at, completed_at,
			approved, rejected, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.WorkingPage,
		run.DryRun,
		run.Status,
		toMillis(run.StartedAt),
		nullMillis(run),
		run.Approved,
		run.Rejected,
		run.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to create run %s: %w", run.ID, err)
	}
	return nil
}

// UpdateRun stores the status, counts and completion time of a run
func (s *SQLiteStorage) UpdateRun(ctx context.Context, run *types.Run) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, completed_at = ?, approved = ?, rejected = ?, error = ?
		WHERE id = ?
	`, run.Status, nullMillis(run), run.Approved, run.Rejected, run.Error, run.ID)
	if err != nil {
		return fmt.Errorf("failed to update run %s: %w", run.ID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, run.ID)
	}
	return nil
}

// GetRun retrieves a run by id
func (s *SQLiteStorage) GetRun(ctx context.Context, id string) (*types.Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, working_page, dry_run, status, started_at, completed_at,
		       approved, rejected, error
		FROM runs
		WHERE id = ?
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	defer rows.Close()

	runs, err := scanRuns(rows)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return runs[0], nil
}

// GetRecentRuns retrieves the most recently started runs
func (s *SQLiteStorage) GetRecentRuns(ctx context.Context, limit int) ([]*types.Run, error) {
	if limit < 1 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, working_page, dry_run, status, started_at, completed_at,
		       approved, rejected, error
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent runs: %w", err)
	}
	defer rows.Close()

	return scanRuns(rows)
}

func scanRuns(rows *sql.Rows) ([]*types.Run, error) {
	var result []*types.Run
	for rows.Next() {
		var run types.Run
		var startedAt int64
		var completedAt sql.NullInt64
		err := rows.Scan(
			&run.ID,
			&run.WorkingPage,
			&run.DryRun,
			&run.Status,
			&startedAt,
			&completedAt,
			&run.Approved,
			&run.Rejected,
			&run.Error,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.StartedAt = fromMillis(startedAt)
		if completedAt.Valid {
			t := fromMillis(completedAt.Int64)
			run.CompletedAt = &t
		}
		result = append(result, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run rows: %w", err)
	}
	return result, nil
}

func nullMillis(run *types.Run) sql.NullInt64 {
	if run.CompletedAt == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*run.CompletedAt), Valid: true}
}
