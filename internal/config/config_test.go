package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	cfg, err := Load("", home)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HomeDir != home {
		t.Errorf("HomeDir = %q, want %q", cfg.HomeDir, home)
	}
	if cfg.Sampling.Days != 30 {
		t.Errorf("Sampling.Days = %d, want 30", cfg.Sampling.Days)
	}
	if cfg.Sampling.BatchSize != 20 {
		t.Errorf("Sampling.BatchSize = %d, want 20", cfg.Sampling.BatchSize)
	}
	if cfg.AI.Server != "http://localhost:11434" {
		t.Errorf("AI.Server = %q", cfg.AI.Server)
	}
	if cfg.OAuth.Configured() {
		t.Error("OAuth.Configured() = true with no credentials")
	}
}

func TestLoadFile(t *testing.T) {
	home := t.TempDir()
	content := `
[oauth]
client_id = "cid"
client_secret = "csec"

[ai]
model = "llama3"
concurrency = 8
languages = ["en", "de"]

[sampling]
days = 7
max_results = 200

[deletion]
exclude_important = true

[[accounts]]
account_id = "acc-1"
schedule = "0 2 * * *"
enabled = true

[[accounts]]
account_id = "acc-2"
schedule = "0 3 * * *"
enabled = false
`
	path := filepath.Join(home, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path, home)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.OAuth.Configured() {
		t.Error("OAuth.Configured() = false")
	}
	if cfg.AI.Model != "llama3" || cfg.AI.Concurrency != 8 {
		t.Errorf("AI = %+v", cfg.AI)
	}
	if len(cfg.AI.Languages) != 2 {
		t.Errorf("Languages = %v", cfg.AI.Languages)
	}
	if cfg.Sampling.Days != 7 || cfg.Sampling.MaxResults != 200 {
		t.Errorf("Sampling = %+v", cfg.Sampling)
	}
	if !cfg.Deletion.ExcludeImportant {
		t.Error("Deletion.ExcludeImportant = false")
	}

	scheduled := cfg.ScheduledAccounts()
	if len(scheduled) != 1 || scheduled[0].AccountID != "acc-1" {
		t.Errorf("ScheduledAccounts = %+v", scheduled)
	}
}

func TestEnsureHomeDir(t *testing.T) {
	home := t.TempDir()
	cfg, err := Load("", home)
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.EnsureHomeDir(); err != nil {
		t.Fatalf("EnsureHomeDir: %v", err)
	}
	for _, dir := range []string{cfg.AccountsDir(), cfg.CacheDir()} {
		if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
			t.Errorf("missing dir %s: %v", dir, err)
		}
	}
}
