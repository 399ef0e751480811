// Package config handles loading and managing mailsift configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// OAuthConfig holds Gmail OAuth client credentials.
type OAuthConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
}

// Configured reports whether OAuth client credentials are present.
func (o OAuthConfig) Configured() bool {
	return o.ClientID != "" && o.ClientSecret != ""
}

// AIConfig holds inference settings for the judgment pipeline.
type AIConfig struct {
	Server      string   `toml:"server"`       // Ollama-compatible server URL
	Model       string   `toml:"model"`        // model name
	Concurrency int      `toml:"concurrency"`  // max in-flight inference requests
	Languages   []string `toml:"languages"`    // allowed reply language codes, part of the cache key
	TimeoutSecs int      `toml:"timeout_secs"` // per-request timeout; 0 means unbounded
}

// SamplingConfig holds fetch defaults.
type SamplingConfig struct {
	Days       int `toml:"days"`        // default "last N days" window
	MaxResults int `toml:"max_results"` // result cap per fetch
	BatchSize  int `toml:"batch_size"`  // detail-retrieval batch size
}

// DeletionConfig holds bulk-deletion exclusion defaults.
type DeletionConfig struct {
	ExcludeImportant bool `toml:"exclude_important"`
	ExcludeStarred   bool `toml:"exclude_starred"`
}

// AccountSchedule defines a background re-sampling schedule for one account.
type AccountSchedule struct {
	AccountID string `toml:"account_id"`
	Schedule  string `toml:"schedule"` // cron expression
	Enabled   bool   `toml:"enabled"`
}

// DataConfig holds data storage configuration.
type DataConfig struct {
	DataDir string `toml:"data_dir"`
}

// Config represents the mailsift configuration.
type Config struct {
	Data     DataConfig        `toml:"data"`
	OAuth    OAuthConfig       `toml:"oauth"`
	AI       AIConfig          `toml:"ai"`
	Sampling SamplingConfig    `toml:"sampling"`
	Deletion DeletionConfig    `toml:"deletion"`
	Accounts []AccountSchedule `toml:"accounts"`

	// Computed at load time, not from the config file.
	HomeDir string `toml:"-"`
}

// DefaultHome returns the default mailsift home directory.
// Respects the MAILSIFT_HOME environment variable.
func DefaultHome() string {
	if h := os.Getenv("MAILSIFT_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mailsift"
	}
	return filepath.Join(home, ".mailsift")
}

// Load reads the configuration from the specified file. If path is empty,
// uses <home>/config.toml. If homeOverride is non-empty it replaces the
// default home directory. The config file itself is optional.
func Load(path, homeOverride string) (*Config, error) {
	homeDir := DefaultHome()
	if homeOverride != "" {
		homeDir = homeOverride
	}

	if path == "" {
		path = filepath.Join(homeDir, "config.toml")
	}

	cfg := &Config{
		HomeDir: homeDir,
		Data:    DataConfig{DataDir: homeDir},
		AI: AIConfig{
			Server:      "http://localhost:11434",
			Concurrency: 4,
			Languages:   []string{"en"},
		},
		Sampling: SamplingConfig{
			Days:       30,
			MaxResults: 500,
			BatchSize:  20,
		},
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Data.DataDir = expandPath(cfg.Data.DataDir)
	if cfg.Sampling.BatchSize <= 0 {
		cfg.Sampling.BatchSize = 20
	}
	if cfg.AI.Concurrency <= 0 {
		cfg.AI.Concurrency = 4
	}

	return cfg, nil
}

// EnsureHomeDir creates the home directory tree on first use.
func (c *Config) EnsureHomeDir() error {
	for _, dir := range []string{c.HomeDir, c.AccountsDir(), c.CacheDir()} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return err
		}
	}
	return nil
}

// AccountsDir returns the directory holding the account registry and
// encrypted credential blobs.
func (c *Config) AccountsDir() string {
	return filepath.Join(c.Data.DataDir, "accounts")
}

// CacheDir returns the directory holding sampling and judgment caches.
func (c *Config) CacheDir() string {
	return filepath.Join(c.Data.DataDir, "cache")
}

// RulesPath returns the rule-text file for an account.
func (c *Config) RulesPath(accountID string) string {
	return filepath.Join(c.Data.DataDir, "rules", accountID+".rules")
}

// ScheduledAccounts returns accounts with scheduling enabled.
func (c *Config) ScheduledAccounts() []AccountSchedule {
	var scheduled []AccountSchedule
	for _, acc := range c.Accounts {
		if acc.Enabled && acc.Schedule != "" {
			scheduled = append(scheduled, acc)
		}
	}
	return scheduled
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
