package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "NO BOT", cfg.Engine.DisableMarker)
	assert.Equal(t, 10*time.Second, cfg.Engine.SettleDelay)
	assert.Equal(t, []int{118}, cfg.Engine.TextlinkNamespaces)
	assert.Equal(t, "Old CfD", cfg.Templates.OldCfD)
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bot.yaml")
	content := `
wiki:
  api_url: https://test.wikipedia.org/w/api.php
  username: Example@cfdw
  password: secret
  edit_rate: 0.5
engine:
  settle_delay: 30s
  concurrency: 2
history:
  retention_days: 10
  retention_critical_days: 20
  run_retention_days: 40
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://test.wikipedia.org/w/api.php", cfg.Wiki.APIURL)
	assert.Equal(t, 0.5, cfg.Wiki.EditRate)
	assert.Equal(t, 30*time.Second, cfg.Engine.SettleDelay)
	assert.Equal(t, 2, cfg.Engine.Concurrency)
	assert.Equal(t, 10, cfg.History.RetentionDays)
	// Unset keys keep their defaults
	assert.Equal(t, "NO BOT", cfg.Engine.DisableMarker)
	assert.Equal(t, 1000, cfg.History.CleanupBatchSize)
	assert.Equal(t, "User:Example/shutoff/CfdBot.json", cfg.ShutoffPage())
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err, "an explicit path must exist")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("engine: [unclosed"), 0o600))
	_, err = Load(bad)
	assert.ErrorContains(t, err, "failed to parse config")

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("engine:\n  concurrency: 0\n"), 0o600))
	_, err = Load(invalid)
	assert.ErrorContains(t, err, "engine.concurrency")
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Engine.WorkingPage, cfg.Engine.WorkingPage)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CFDW_API_URL", "https://env.example.org/w/api.php")
	t.Setenv("CFDW_USERNAME", "EnvBot@main")
	t.Setenv("CFDW_PASSWORD", "pw")
	t.Setenv("CFDW_DB", "/tmp/env.db")
	t.Setenv("CFDW_SETTLE_DELAY", "1m")
	t.Setenv("CFDW_CONCURRENCY", "8")
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.org/w/api.php", cfg.Wiki.APIURL)
	assert.Equal(t, "/tmp/env.db", cfg.Database)
	assert.Equal(t, time.Minute, cfg.Engine.SettleDelay)
	assert.Equal(t, 8, cfg.Engine.Concurrency)
	assert.Equal(t, "User:EnvBot/shutoff/CfdBot.json", cfg.ShutoffPage())
}

func TestEnvOverridesInvalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"bad duration", "CFDW_SETTLE_DELAY", "soon"},
		{"bad int", "CFDW_CONCURRENCY", "many"},
		{"bad bool", "CFDW_HISTORY_CLEANUP_VACUUM", "maybe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			t.Chdir(t.TempDir())
			_, err := Load("")
			assert.ErrorContains(t, err, tt.key)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"relative api url", func(c *Config) { c.Wiki.APIURL = "/w/api.php" }, "wiki.api_url"},
		{"negative maxlag", func(c *Config) { c.Wiki.MaxLag = -1 }, "wiki.max_lag"},
		{"negative edit rate", func(c *Config) { c.Wiki.EditRate = -2 }, "wiki.edit_rate"},
		{"username without password", func(c *Config) { c.Wiki.Username = "A@b" }, "set together"},
		{"no discussion prefix", func(c *Config) { c.Engine.DiscussionPrefix = "" }, "discussion_prefix"},
		{"blank marker", func(c *Config) { c.Engine.DisableMarker = "  " }, "disable_marker"},
		{"huge settle delay", func(c *Config) { c.Engine.SettleDelay = 2 * time.Hour }, "settle_delay"},
		{"no reference templates", func(c *Config) { c.Templates.CategoryReference = nil }, "category_reference"},
		{"no cfd templates", func(c *Config) { c.Templates.CfD = nil }, "templates.cfd"},
		{"no old cfd", func(c *Config) { c.Templates.OldCfD = "" }, "old_cfd"},
		{"bad retention", func(c *Config) { c.History.RetentionDays = 0 }, "retention_days"},
		{"no database", func(c *Config) { c.Database = "" }, "database"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.wantErr)
		})
	}
}

func TestShutoffPage(t *testing.T) {
	cfg := Default()
	assert.Empty(t, cfg.ShutoffPage(), "anonymous runs have no kill switch")

	cfg.Wiki.Username = "Bot"
	assert.Equal(t, "User:Bot/shutoff/CfdBot.json", cfg.ShutoffPage())

	cfg.Engine.Shutoff = "User:Ops/stop"
	assert.Equal(t, "User:Ops/stop", cfg.ShutoffPage())
	assert.Equal(t, "User:Bot/shutoff/CategoryDoubleRedirectFixer.json", cfg.TaskShutoffPage("CategoryDoubleRedirectFixer"))
}
