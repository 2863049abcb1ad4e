// Package config handles configuration loading and validation for wasend.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultMessageTemplate renders the sender name in bold above the message.
const DefaultMessageTemplate = "*{{ .Name }}*\n\n{{ trim .Message }}"

// Config holds the application configuration.
type Config struct {
	Listen                  string        `yaml:"listen"`
	AllowedOrigins          []string      `yaml:"allowed_origins"`
	Browser                 BrowserConfig `yaml:"browser"`
	InitTimeout             time.Duration `yaml:"init_timeout"`
	SendTimeout             time.Duration `yaml:"send_timeout"`
	SecretKey               string        `yaml:"secret_key"`
	MessageTemplate         string        `yaml:"message_template"`
	MinAddressDigits        int           `yaml:"min_address_digits"`
	Debug                   bool          `yaml:"debug"`
	ResetStoreOnAuthFailure bool          `yaml:"reset_store_on_auth_failure"`
	Journal                 JournalConfig `yaml:"journal"`
	Hooks                   []Hook        `yaml:"hooks"`
	DataDir                 string        `yaml:"-"` // set by caller, not from config file
}

// BrowserConfig controls how the browser runtime is found and launched.
type BrowserConfig struct {
	// Executable overrides runtime discovery when set.
	Executable string `yaml:"executable"`
	// ExtraFlags are appended to the built-in container flags.
	ExtraFlags   []string      `yaml:"extra_flags"`
	WebURL       string        `yaml:"web_url"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// JournalConfig bounds the lifecycle journal.
type JournalConfig struct {
	MaxEntries int `yaml:"max_entries"`
}

// Hook runs commands when a lifecycle event matches.
type Hook struct {
	// Event is a glob matched against the event name (e.g. "disconnected", "auth_*", "*").
	Event string `yaml:"event"`
	// Commands are shell command templates run with sh -c.
	Commands []string `yaml:"commands"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Listen:         ":3000",
		AllowedOrigins: []string{"*"},
		Browser: BrowserConfig{
			WebURL:       "https://web.whatsapp.com",
			PollInterval: time.Second,
		},
		InitTimeout:      30 * time.Second,
		SendTimeout:      60 * time.Second,
		MessageTemplate:  DefaultMessageTemplate,
		MinAddressDigits: 10,
		Journal: JournalConfig{
			MaxEntries: 200,
		},
	}
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Load reads configuration from the given path, applies environment
// overrides from the process environment, and validates the result.
// If configPath is empty or doesn't exist, defaults are used.
func Load(configPath, dataDir string) (*Config, error) {
	return LoadWithEnv(configPath, dataDir, os.LookupEnv)
}

// LoadWithEnv is Load with an explicit environment lookup.
func LoadWithEnv(configPath, dataDir string, lookup LookupFunc) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}

			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	cfg.DataDir = dataDir
	cfg.applyDefaults()
	cfg.applyEnv(lookup)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for any unset configuration options.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if c.Listen == "" {
		c.Listen = defaults.Listen
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = defaults.AllowedOrigins
	}
	if c.Browser.WebURL == "" {
		c.Browser.WebURL = defaults.Browser.WebURL
	}
	if c.Browser.PollInterval == 0 {
		c.Browser.PollInterval = defaults.Browser.PollInterval
	}
	if c.InitTimeout == 0 {
		c.InitTimeout = defaults.InitTimeout
	}
	if c.SendTimeout == 0 {
		c.SendTimeout = defaults.SendTimeout
	}
	if c.MessageTemplate == "" {
		c.MessageTemplate = defaults.MessageTemplate
	}
	if c.MinAddressDigits == 0 {
		c.MinAddressDigits = defaults.MinAddressDigits
	}
	if c.Journal.MaxEntries == 0 {
		c.Journal.MaxEntries = defaults.Journal.MaxEntries
	}
}

// applyEnv overrides file values with environment variables. The browser
// path honors PUPPETEER_EXECUTABLE_PATH so container images built for the
// Node tooling keep working.
func (c *Config) applyEnv(lookup LookupFunc) {
	if v, ok := lookup("MESSAGE_SECRET_KEY"); ok {
		c.SecretKey = v
	}
	if v, ok := lookup("PUPPETEER_EXECUTABLE_PATH"); ok && v != "" {
		c.Browser.Executable = v
	}
	if v, ok := lookup("WASEND_BROWSER"); ok && v != "" {
		c.Browser.Executable = v
	}
	if v, ok := lookup("PORT"); ok && v != "" {
		c.Listen = ":" + strings.TrimPrefix(v, ":")
	}
	if v, ok := lookup("WASEND_DEBUG"); ok {
		c.Debug = v == "1" || strings.EqualFold(v, "true")
	}
}

// CredentialStoreDir returns the directory holding the persistent session
// credentials. Its contents are owned by the browser runtime.
func (c *Config) CredentialStoreDir() string {
	return filepath.Join(c.DataDir, "session")
}

// JournalFile returns the path to the lifecycle journal.
func (c *Config) JournalFile() string {
	return filepath.Join(c.DataDir, "events.json")
}
