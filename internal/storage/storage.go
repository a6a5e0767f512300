package storage

import (
	"context"

	"github.com/cfdbot/cfdw/internal/events"
	"github.com/cfdbot/cfdw/internal/storage/sqlite"
	"github.com/cfdbot/cfdw/internal/types"
)

// Storage defines the interface for run history backends
type Storage interface {
	// Runs
	CreateRun(ctx context.Context, run *types.Run) error
	UpdateRun(ctx context.Context, run *types.Run) error
	GetRun(ctx context.Context, id string) (*types.Run, error)
	GetRecentRuns(ctx context.Context, limit int) ([]*types.Run, error)

	// Run events
	StoreEvent(ctx context.Context, event *events.RunEvent) error
	GetEvents(ctx context.Context, filter events.EventFilter) ([]*events.RunEvent, error)

	// History cleanup - retention policy enforcement
	CleanupEventsByAge(ctx context.Context, retentionDays, criticalRetentionDays, batchSize int) (int, error)
	CleanupRunsByAge(ctx context.Context, retentionDays, batchSize int) (int, error)
	GetEventCounts(ctx context.Context) (*sqlite.EventCounts, error)
	VacuumDatabase(ctx context.Context) error

	// Lifecycle
	Close() error
}

var _ events.EventStore = Storage(nil)

// Config holds database configuration
type Config struct {
	// Path is the SQLite database file path
	// Default: ".cfdw/history.db"
	Path string
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Path: ".cfdw/history.db",
	}
}

// NewStorage creates a new SQLite storage backend
func NewStorage(ctx context.Context, cfg *Config) (Storage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Path == "" {
		cfg.Path = DefaultConfig().Path
	}
	return sqlite.New(ctx, cfg.Path)
}
