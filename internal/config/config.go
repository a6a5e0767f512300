package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFiles are tried in order when no --config path is given.
var DefaultConfigFiles = []string{"cfdw.yaml", "cfdw.yml"}

// Config is the complete bot configuration
type Config struct {
	Wiki      WikiConfig             `yaml:"wiki"`
	Engine    EngineConfig           `yaml:"engine"`
	Templates TemplateConfig         `yaml:"templates"`
	History   HistoryRetentionConfig `yaml:"history"`

	// Database is the run history SQLite file
	// Default: ".cfdw/history.db"
	Database string `yaml:"database"`
}

// WikiConfig holds the connection to the wiki
type WikiConfig struct {
	// APIURL is the Action API endpoint
	APIURL    string `yaml:"api_url"`
	UserAgent string `yaml:"user_agent"`
	// Username is a bot password login name ("Account@BotName")
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// MaxLag is the maxlag parameter in seconds (0 disables it)
	MaxLag int `yaml:"max_lag"`
	// EditRate is the write rate limit in edits per second (0 means unlimited)
	EditRate float64 `yaml:"edit_rate"`
}

// EngineConfig tunes how working pages are read and executed
type EngineConfig struct {
	// WorkingPage is the page `cfdw run` processes when none is given
	WorkingPage string `yaml:"working_page"`
	// WorkingPagePrefix is the title prefix every working page must carry
	WorkingPagePrefix string `yaml:"working_page_prefix"`
	// DiscussionPrefix is the canonical prefix of discussion log pages
	DiscussionPrefix string `yaml:"discussion_prefix"`
	// DiscussionShortcuts are link prefixes expanded to DiscussionPrefix
	DiscussionShortcuts []string `yaml:"discussion_shortcuts"`
	// DisableMarker in a line's prefix opts the line out
	DisableMarker string `yaml:"disable_marker"`
	// RequiredProtection is the edit protection the working page must have ("" disables the check)
	RequiredProtection string `yaml:"required_protection"`
	// SettleDelay is the wait before re-checking category emptiness
	SettleDelay time.Duration `yaml:"settle_delay"`
	// Concurrency bounds parallel member page edits
	Concurrency int `yaml:"concurrency"`
	// TextlinkNamespaces are namespaces whose pages link categories instead of joining them
	TextlinkNamespaces []int `yaml:"textlink_namespaces"`
	// DocSubpage is the documentation subpage suffix
	DocSubpage string `yaml:"doc_subpage"`
	// Shutoff is the kill switch page; empty means "User:<account>/shutoff/CfdBot.json"
	Shutoff string `yaml:"shutoff"`
}

// TemplateConfig names the templates the bot reads and writes
type TemplateConfig struct {
	CategoryReference []string `yaml:"category_reference"`
	CfD               []string `yaml:"cfd"`
	OldCfD            string   `yaml:"old_cfd"`
	CategoryRedirect  string   `yaml:"category_redirect"`
}

// Default returns the default configuration for the English Wikipedia
func Default() *Config {
	return &Config{
		Wiki: WikiConfig{
			APIURL:    "https://en.wikipedia.org/w/api.php",
			UserAgent: "cfdw/1.0 (Categories for discussion working page bot)",
			MaxLag:    5,
			EditRate:  1,
		},
		Engine: EngineConfig{
			WorkingPage:         "Wikipedia:Categories for discussion/Working",
			WorkingPagePrefix:   "Wikipedia:Categories for discussion/Working",
			DiscussionPrefix:    "Wikipedia:Categories for discussion/",
			DiscussionShortcuts: []string{"WP:CFD/", "WD:CFD/", "Wikipedia:CFD/", "Project:CFD/"},
			DisableMarker:       "NO BOT",
			RequiredProtection:  "sysop",
			SettleDelay:         10 * time.Second,
			Concurrency:         4,
			TextlinkNamespaces:  []int{118},
			DocSubpage:          "/doc",
		},
		Templates: TemplateConfig{
			CategoryReference: []string{"C", "Cl", "Lc"},
			CfD:               []string{"Cfd full", "Cfm full", "Cfm-speedy full", "Cfr full", "Cfr-speedy full"},
			OldCfD:            "Old CfD",
			CategoryRedirect:  "Category redirect",
		},
		History:  DefaultHistoryRetentionConfig(),
		Database: ".cfdw/history.db",
	}
}

// Load reads the configuration file at path, or the first of
// DefaultConfigFiles that exists when path is empty. A missing default
// file yields the defaults. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := Default()

	file := path
	if file == "" {
		for _, candidate := range DefaultConfigFiles {
			if _, err := os.Stat(candidate); err == nil {
				file = candidate
				break
			}
		}
	}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", file, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", file, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnv overrides settings from environment variables
//
// Environment variables:
//   - CFDW_API_URL, CFDW_USERNAME, CFDW_PASSWORD: wiki connection
//   - CFDW_DB: run history database path
//   - CFDW_SETTLE_DELAY: settle wait, e.g. "30s"
//   - CFDW_CONCURRENCY: parallel member page edits
//   - CFDW_HISTORY_*: see applyHistoryEnv
func (c *Config) applyEnv() error {
	if err := parseEnvString("CFDW_API_URL", &c.Wiki.APIURL); err != nil {
		return err
	}
	if err := parseEnvString("CFDW_USERNAME", &c.Wiki.Username); err != nil {
		return err
	}
	if err := parseEnvString("CFDW_PASSWORD", &c.Wiki.Password); err != nil {
		return err
	}
	if err := parseEnvString("CFDW_DB", &c.Database); err != nil {
		return err
	}
	if err := parseEnvDuration("CFDW_SETTLE_DELAY", &c.Engine.SettleDelay); err != nil {
		return err
	}
	if err := parseEnvInt("CFDW_CONCURRENCY", &c.Engine.Concurrency); err != nil {
		return err
	}
	return applyHistoryEnv(&c.History)
}

// Validate checks if the configuration has valid values
func (c *Config) Validate() error {
	if err := c.Wiki.Validate(); err != nil {
		return err
	}
	if err := c.Engine.Validate(); err != nil {
		return err
	}
	if err := c.Templates.Validate(); err != nil {
		return err
	}
	if err := c.History.Validate(); err != nil {
		return err
	}
	if c.Database == "" {
		return errors.New("database path is required")
	}
	return nil
}

// Validate checks if the wiki configuration has valid values
func (c WikiConfig) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("wiki.api_url must be an absolute URL (got %q)", c.APIURL)
	}
	if c.MaxLag < 0 {
		return fmt.Errorf("wiki.max_lag cannot be negative (got %d)", c.MaxLag)
	}
	if c.EditRate < 0 {
		return fmt.Errorf("wiki.edit_rate cannot be negative (got %g)", c.EditRate)
	}
	if (c.Username == "") != (c.Password == "") {
		return errors.New("wiki.username and wiki.password must be set together")
	}
	return nil
}

// Validate checks if the engine configuration has valid values
func (c EngineConfig) Validate() error {
	if c.WorkingPagePrefix == "" {
		return errors.New("engine.working_page_prefix is required")
	}
	if c.DiscussionPrefix == "" {
		return errors.New("engine.discussion_prefix is required")
	}
	if strings.TrimSpace(c.DisableMarker) == "" {
		return errors.New("engine.disable_marker is required")
	}
	if c.SettleDelay < 0 || c.SettleDelay > time.Hour {
		return fmt.Errorf("engine.settle_delay must be between 0 and 1h (got %s)", c.SettleDelay)
	}
	if c.Concurrency < 1 || c.Concurrency > 64 {
		return fmt.Errorf("engine.concurrency must be between 1 and 64 (got %d)", c.Concurrency)
	}
	return nil
}

// Validate checks if the template configuration has valid values
func (c TemplateConfig) Validate() error {
	if len(c.CategoryReference) == 0 {
		return errors.New("templates.category_reference needs at least one template")
	}
	if len(c.CfD) == 0 {
		return errors.New("templates.cfd needs at least one template")
	}
	if c.OldCfD == "" || c.CategoryRedirect == "" {
		return errors.New("templates.old_cfd and templates.category_redirect are required")
	}
	return nil
}

// ShutoffPage returns the kill switch page of the working page engine,
// or "" when there is neither an explicit page nor a username.
func (c *Config) ShutoffPage() string {
	if c.Engine.Shutoff != "" {
		return c.Engine.Shutoff
	}
	return c.TaskShutoffPage("CfdBot")
}

// TaskShutoffPage returns "User:<account>/shutoff/<task>.json" for the
// logged-in account, or "" for anonymous use.
func (c *Config) TaskShutoffPage(task string) string {
	if c.Wiki.Username == "" {
		return ""
	}
	account, _, _ := strings.Cut(c.Wiki.Username, "@")
	return "User:" + account + "/shutoff/" + task + ".json"
}
