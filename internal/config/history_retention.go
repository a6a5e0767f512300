package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// HistoryRetentionConfig holds configuration for run history retention and cleanup
type HistoryRetentionConfig struct {
	// RetentionDays is the retention period for info and warning events (in days)
	// Default: 30, Range: 1-365
	RetentionDays int `yaml:"retention_days"`

	// RetentionCriticalDays is the retention period for error and critical events (in days)
	// Must be >= RetentionDays
	// Default: 90, Range: 1-730
	RetentionCriticalDays int `yaml:"retention_critical_days"`

	// RunRetentionDays is how long finished runs are kept (in days)
	// Deleting a run deletes its remaining events
	// Must be >= RetentionCriticalDays
	// Default: 180, Range: 1-3650
	RunRetentionDays int `yaml:"run_retention_days"`

	// CleanupBatchSize is the number of rows to delete per statement
	// Default: 1000, Range: 100-10000
	CleanupBatchSize int `yaml:"cleanup_batch_size"`

	// CleanupVacuum controls whether to run VACUUM after cleanup
	// Default: false
	CleanupVacuum bool `yaml:"cleanup_vacuum"`
}

// DefaultHistoryRetentionConfig returns the default history retention configuration
func DefaultHistoryRetentionConfig() HistoryRetentionConfig {
	return HistoryRetentionConfig{
		RetentionDays:         30,
		RetentionCriticalDays: 90,
		RunRetentionDays:      180,
		CleanupBatchSize:      1000,
		CleanupVacuum:         false,
	}
}

// Validate checks if the configuration has valid values
func (c HistoryRetentionConfig) Validate() error {
	if c.RetentionDays < 1 || c.RetentionDays > 365 {
		return fmt.Errorf("retention_days must be between 1 and 365 (got %d)", c.RetentionDays)
	}

	if c.RetentionCriticalDays < 1 || c.RetentionCriticalDays > 730 {
		return fmt.Errorf("retention_critical_days must be between 1 and 730 (got %d)",
			c.RetentionCriticalDays)
	}
	if c.RetentionCriticalDays < c.RetentionDays {
		return fmt.Errorf("retention_critical_days (%d) must be >= retention_days (%d)",
			c.RetentionCriticalDays, c.RetentionDays)
	}

	if c.RunRetentionDays < 1 || c.RunRetentionDays > 3650 {
		return fmt.Errorf("run_retention_days must be between 1 and 3650 (got %d)", c.RunRetentionDays)
	}
	if c.RunRetentionDays < c.RetentionCriticalDays {
		return fmt.Errorf("run_retention_days (%d) must be >= retention_critical_days (%d)",
			c.RunRetentionDays, c.RetentionCriticalDays)
	}

	if c.CleanupBatchSize < 100 {
		return fmt.Errorf("cleanup_batch_size must be at least 100 (got %d)",
			c.CleanupBatchSize)
	}
	if c.CleanupBatchSize > 10000 {
		return fmt.Errorf("cleanup_batch_size too large (got %d, max 10000)",
			c.CleanupBatchSize)
	}

	return nil
}

// String returns a human-readable representation of the config
func (c HistoryRetentionConfig) String() string {
	return fmt.Sprintf(
		"HistoryRetentionConfig{RetentionDays: %d, RetentionCriticalDays: %d, "+
			"RunRetentionDays: %d, BatchSize: %d, Vacuum: %t}",
		c.RetentionDays, c.RetentionCriticalDays, c.RunRetentionDays,
		c.CleanupBatchSize, c.CleanupVacuum,
	)
}

// applyHistoryEnv overrides retention settings from environment variables
//
// Environment variables:
//   - CFDW_HISTORY_RETENTION_DAYS: Retention period for regular events in days
//   - CFDW_HISTORY_RETENTION_CRITICAL_DAYS: Retention period for critical events in days
//   - CFDW_HISTORY_RUN_RETENTION_DAYS: Retention period for finished runs in days
//   - CFDW_HISTORY_CLEANUP_BATCH_SIZE: Rows to delete per statement
//   - CFDW_HISTORY_CLEANUP_VACUUM: Run VACUUM after cleanup
func applyHistoryEnv(cfg *HistoryRetentionConfig) error {
	if err := parseEnvInt("CFDW_HISTORY_RETENTION_DAYS", &cfg.RetentionDays); err != nil {
		return err
	}
	if err := parseEnvInt("CFDW_HISTORY_RETENTION_CRITICAL_DAYS", &cfg.RetentionCriticalDays); err != nil {
		return err
	}
	if err := parseEnvInt("CFDW_HISTORY_RUN_RETENTION_DAYS", &cfg.RunRetentionDays); err != nil {
		return err
	}
	if err := parseEnvInt("CFDW_HISTORY_CLEANUP_BATCH_SIZE", &cfg.CleanupBatchSize); err != nil {
		return err
	}
	return parseEnvBool("CFDW_HISTORY_CLEANUP_VACUUM", &cfg.CleanupVacuum)
}

// parseEnvInt parses an int from an environment variable
func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvBool parses a bool from an environment variable
func parseEnvBool(key string, dest *bool) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvString parses a string from an environment variable
func parseEnvString(key string, dest *string) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	*dest = value
	return nil
}

// parseEnvDuration parses a duration such as "10s" from an environment variable
func parseEnvDuration(key string, dest *time.Duration) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}
