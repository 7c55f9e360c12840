// Package config loads ~/.servicepro/config.toml. Credentials never live in
// the file; they come from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Environment variables holding secrets.
const (
	EnvAPIKey        = "SERVICEPRO_API_KEY"
	EnvAccessToken   = "SERVICEPRO_ACCESS_TOKEN"
	EnvBlobAccessKey = "SERVICEPRO_BLOB_ACCESS_KEY"
	EnvBlobSecretKey = "SERVICEPRO_BLOB_SECRET_KEY"
)

// Duration is a time.Duration written as a string such as "15s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config represents the global ~/.servicepro/config.toml.
type Config struct {
	DefaultProfile string `toml:"default_profile"`
	LogLevel       string `toml:"log_level"`
	Remote         Remote `toml:"remote"`
	Blob           Blob   `toml:"blob"`
	Sync           Sync   `toml:"sync"`
}

// Remote configures the backend client and the repositories' read budget.
type Remote struct {
	URL        string   `toml:"url"`
	ReadBudget Duration `toml:"read_budget"`
	Timeout    Duration `toml:"timeout"`

	APIKey      string `toml:"-"`
	AccessToken string `toml:"-"`
}

// Blob configures photo uploads. An empty bucket disables them.
type Blob struct {
	Endpoint      string `toml:"endpoint"`
	Bucket        string `toml:"bucket"`
	Region        string `toml:"region"`
	UseSSL        bool   `toml:"use_ssl"`
	PublicBaseURL string `toml:"public_base_url"`

	AccessKey string `toml:"-"`
	SecretKey string `toml:"-"`
}

// Sync configures the connectivity prober.
type Sync struct {
	ProbeInterval Duration `toml:"probe_interval"`
	ProbeTimeout  Duration `toml:"probe_timeout"`
	AutoDrain     bool     `toml:"auto_drain"`
}

// Default returns the configuration used for keys the file leaves out.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Remote: Remote{
			ReadBudget: Duration{4 * time.Second},
			Timeout:    Duration{15 * time.Second},
		},
		Blob: Blob{UseSSL: true},
		Sync: Sync{
			ProbeInterval: Duration{15 * time.Second},
			ProbeTimeout:  Duration{3 * time.Second},
			AutoDrain:     true,
		},
	}
}

// Load reads config from the given path over the defaults and then applies
// the environment. Returns an error if the file is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = Default()
		cfg.applyEnv()
		return cfg, nil
	}
	return cfg, err
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.Remote.APIKey = v
	}
	if v := os.Getenv(EnvAccessToken); v != "" {
		c.Remote.AccessToken = v
	}
	if v := os.Getenv(EnvBlobAccessKey); v != "" {
		c.Blob.AccessKey = v
	}
	if v := os.Getenv(EnvBlobSecretKey); v != "" {
		c.Blob.SecretKey = v
	}
}

// Save writes config to the given path, creating parent dirs as needed.
// Secrets are not written.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
