package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := Default()
	cfg.DefaultProfile = "work"
	cfg.Remote.URL = "https://api.example.com"
	cfg.Sync.ProbeInterval = Duration{time.Minute}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultProfile != "work" {
		t.Errorf("DefaultProfile = %q, want %q", loaded.DefaultProfile, "work")
	}
	if loaded.Remote.URL != "https://api.example.com" {
		t.Errorf("Remote.URL = %q", loaded.Remote.URL)
	}
	if loaded.Sync.ProbeInterval.Duration != time.Minute {
		t.Errorf("ProbeInterval = %v, want 1m", loaded.Sync.ProbeInterval)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := "default_profile = \"van\"\n[remote]\nread_budget = \"2s\"\n"
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Remote.ReadBudget.Duration != 2*time.Second {
		t.Errorf("ReadBudget = %v, want 2s", cfg.Remote.ReadBudget)
	}
	if cfg.Remote.Timeout.Duration != 15*time.Second {
		t.Errorf("Timeout = %v, want default 15s", cfg.Remote.Timeout)
	}
	if !cfg.Sync.AutoDrain || cfg.Sync.ProbeTimeout.Duration != 3*time.Second {
		t.Errorf("Sync = %+v, want defaults", cfg.Sync)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
}

func TestLoadBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[sync]\nprobe_interval = \"often\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("Load() expected error for bad duration")
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}

	cfg, err := LoadOrDefault("/nonexistent/config.toml")
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.Remote.ReadBudget.Duration != 4*time.Second {
		t.Errorf("ReadBudget = %v, want default", cfg.Remote.ReadBudget)
	}
}

func TestSecretsFromEnvOnly(t *testing.T) {
	t.Setenv(EnvAPIKey, "anon")
	t.Setenv(EnvAccessToken, "jwt")
	t.Setenv(EnvBlobAccessKey, "ak")
	t.Setenv(EnvBlobSecretKey, "sk")

	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "none.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Remote.APIKey != "anon" || cfg.Remote.AccessToken != "jwt" || cfg.Blob.AccessKey != "ak" || cfg.Blob.SecretKey != "sk" {
		t.Fatalf("secrets not applied: %+v %+v", cfg.Remote, cfg.Blob)
	}

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, secret := range []string{"anon", "jwt", "\"sk\""} {
		if strings.Contains(string(data), secret) {
			t.Errorf("saved config contains secret %s:\n%s", secret, data)
		}
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, &Config{DefaultProfile: "main"}); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}
