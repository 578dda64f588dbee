// CLAUDE:SUMMARY formfill YAML configuration: log, store, browser, fill timings, text snapshot, oracle, remote answer store, server; env expansion and defaults.
// Package config loads the formfill configuration from a YAML file.
// ${VAR} references are expanded from the environment before parsing, so
// secrets stay out of the file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level formfill configuration.
type Config struct {
	Log        LogConfig     `yaml:"log"`
	Store      StoreConfig   `yaml:"store"`
	Browser    BrowserConfig `yaml:"browser"`
	Fill       FillConfig    `yaml:"fill"`
	Text       TextConfig    `yaml:"text"`
	Oracle     OracleConfig  `yaml:"oracle"`
	Remote     RemoteConfig  `yaml:"remote"`
	Server     ServerConfig  `yaml:"server"`
	Dictionary string        `yaml:"dictionary"` // abbreviation dictionary override
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // json | console
}

// StoreConfig locates the SQLite database holding the key-value store,
// the run history and the served remote answers.
type StoreConfig struct {
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"` // run history, 0 keeps everything
}

// BrowserConfig controls Chrome.
type BrowserConfig struct {
	Remote            string        `yaml:"remote"` // DevTools URL of a running Chrome
	Bin               string        `yaml:"bin"`
	Display           string        `yaml:"display"` // headless | headful
	Stealth           bool          `yaml:"stealth"`
	ResourceBlocking  []string      `yaml:"resource_blocking"` // image | font | media | stylesheet
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
	AllowPrivate      bool          `yaml:"allow_private"` // navigate to loopback/private hosts
}

// FillConfig bounds the waits of a fill run.
type FillConfig struct {
	FieldTimeout   time.Duration `yaml:"field_timeout"`
	ComboboxSettle time.Duration `yaml:"combobox_settle"`
	ResumeSettle   time.Duration `yaml:"resume_settle"`
	SectionWait    time.Duration `yaml:"section_wait"`
	PausePoll      time.Duration `yaml:"pause_poll"`
}

// TextConfig shapes the visible text snapshot.
type TextConfig struct {
	MaxChars  int    `yaml:"max_chars"`
	MinRegion int    `yaml:"min_region"`
	Format    string `yaml:"format"` // text | markdown
}

// OracleConfig selects the answer Oracle.
type OracleConfig struct {
	Backend          string        `yaml:"backend"` // none | http | gemini
	URL              string        `yaml:"url"`
	Mode             string        `yaml:"mode"` // rest | action
	Token            string        `yaml:"token"`
	Retries          int           `yaml:"retries"`
	AllowPrivate     bool          `yaml:"allow_private"`
	Gemini           GeminiConfig  `yaml:"gemini"`
	DropdownTimeout  time.Duration `yaml:"dropdown_timeout"`
	AnswerTimeout    time.Duration `yaml:"answer_timeout"`
	BreakerThreshold int           `yaml:"breaker_threshold"`
	BreakerReset     time.Duration `yaml:"breaker_reset"`
}

// GeminiConfig configures the Gemini backend. Without an API key the
// Vertex AI project and location are used.
type GeminiConfig struct {
	APIKey   string `yaml:"api_key"`
	Project  string `yaml:"project"`
	Location string `yaml:"location"`
	Model    string `yaml:"model"`
}

// RemoteConfig selects the remote answer store.
type RemoteConfig struct {
	Backend    string `yaml:"backend"` // none | http | firestore
	URL        string `yaml:"url"`
	Token      string `yaml:"token"`
	Project    string `yaml:"project"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`

	AllowPrivate bool `yaml:"allow_private"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Listen      string `yaml:"listen"`
	ServeRemote bool   `yaml:"serve_remote"` // expose /remote backed by the local store
	ServeOracle bool   `yaml:"serve_oracle"` // expose the configured oracle under /oracle
}

// Default returns the configuration used without a file.
func Default() *Config {
	var c Config
	c.applyDefaults()
	return &c
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	return Parse(data)
}

// Parse expands environment references in data and decodes it.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Store.Path == "" {
		c.Store.Path = "formfill.db"
	}
	if c.Browser.Display == "" {
		c.Browser.Display = "headless"
	}
	if c.Browser.NavigationTimeout <= 0 {
		c.Browser.NavigationTimeout = 30 * time.Second
	}
	if c.Fill.FieldTimeout <= 0 {
		c.Fill.FieldTimeout = 3 * time.Second
	}
	if c.Fill.ComboboxSettle <= 0 {
		c.Fill.ComboboxSettle = 800 * time.Millisecond
	}
	if c.Fill.ResumeSettle <= 0 {
		c.Fill.ResumeSettle = 2 * time.Second
	}
	if c.Fill.SectionWait <= 0 {
		c.Fill.SectionWait = 8 * time.Second
	}
	if c.Fill.PausePoll <= 0 {
		c.Fill.PausePoll = 200 * time.Millisecond
	}
	if c.Text.MaxChars <= 0 {
		c.Text.MaxChars = 15000
	}
	if c.Text.MinRegion <= 0 {
		c.Text.MinRegion = 200
	}
	if c.Text.Format == "" {
		c.Text.Format = "text"
	}
	if c.Oracle.Backend == "" {
		c.Oracle.Backend = "none"
	}
	if c.Oracle.Mode == "" {
		c.Oracle.Mode = "rest"
	}
	if c.Oracle.DropdownTimeout <= 0 {
		c.Oracle.DropdownTimeout = 8 * time.Second
	}
	if c.Oracle.AnswerTimeout <= 0 {
		c.Oracle.AnswerTimeout = 15 * time.Second
	}
	if c.Oracle.BreakerThreshold <= 0 {
		c.Oracle.BreakerThreshold = 3
	}
	if c.Oracle.BreakerReset <= 0 {
		c.Oracle.BreakerReset = time.Minute
	}
	if c.Remote.Backend == "" {
		c.Remote.Backend = "none"
	}
	if c.Server.Listen == "" {
		c.Server.Listen = "127.0.0.1:8790"
	}
}

// Validate rejects unknown enum values and backends missing their
// endpoint.
func (c *Config) Validate() error {
	checks := []struct {
		field, value string
		allowed      []string
	}{
		{"log.format", c.Log.Format, []string{"json", "console"}},
		{"browser.display", c.Browser.Display, []string{"headless", "headful"}},
		{"text.format", c.Text.Format, []string{"text", "markdown"}},
		{"oracle.backend", c.Oracle.Backend, []string{"none", "http", "gemini"}},
		{"oracle.mode", c.Oracle.Mode, []string{"rest", "action"}},
		{"remote.backend", c.Remote.Backend, []string{"none", "http", "firestore"}},
	}
	for _, ch := range checks {
		if !contains(ch.allowed, ch.value) {
			return fmt.Errorf("config: %s: %q is not one of %v", ch.field, ch.value, ch.allowed)
		}
	}
	if c.Oracle.Backend == "http" && c.Oracle.URL == "" {
		return fmt.Errorf("config: oracle.url is required for the http backend")
	}
	if c.Oracle.Backend == "gemini" && c.Oracle.Gemini.APIKey == "" && c.Oracle.Gemini.Project == "" {
		return fmt.Errorf("config: oracle.gemini needs api_key or project")
	}
	if c.Remote.Backend == "http" && c.Remote.URL == "" {
		return fmt.Errorf("config: remote.url is required for the http backend")
	}
	if c.Remote.Backend == "firestore" && c.Remote.Project == "" {
		return fmt.Errorf("config: remote.project is required for the firestore backend")
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
