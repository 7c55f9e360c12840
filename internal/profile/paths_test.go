package profile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/deltadent/ServicePro-sub000/internal/config"
)

func TestDir(t *testing.T) {
	t.Setenv(EnvHome, "")
	home, _ := os.UserHomeDir()
	got := Dir("main")
	want := filepath.Join(home, ".servicepro", "profiles", "main")
	if got != want {
		t.Errorf("Dir(main) = %q, want %q", got, want)
	}
}

func TestPaths(t *testing.T) {
	base := t.TempDir()
	t.Setenv(EnvHome, base)

	tests := []struct {
		got  string
		want string
	}{
		{SocketPath("van"), filepath.Join(base, "profiles", "van", "daemon.sock")},
		{LockPath("van"), filepath.Join(base, "profiles", "van", "LOCK")},
		{StorePath("van"), filepath.Join(base, "profiles", "van", "store.db")},
		{LogPath("van"), filepath.Join(base, "profiles", "van", "logs", "serviced.log")},
		{ConfigPath(), filepath.Join(base, "config.toml")},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("path = %q, want %q", tt.got, tt.want)
		}
	}
}

func TestEnsureDir(t *testing.T) {
	t.Setenv(EnvHome, t.TempDir())

	if err := EnsureDir("test"); err != nil {
		t.Fatal(err)
	}
	for _, d := range []string{Dir("test"), LogDir("test")} {
		info, err := os.Stat(d)
		if err != nil {
			t.Fatalf("%s not created: %v", d, err)
		}
		if !info.IsDir() || info.Mode().Perm() != 0700 {
			t.Errorf("%s mode = %v", d, info.Mode())
		}
	}
}

func TestResolve(t *testing.T) {
	t.Setenv(EnvHome, t.TempDir())

	resolve := func(flagName string, cfg *config.Config) string {
		t.Helper()
		got, err := Resolve(flagName, cfg)
		if err != nil {
			t.Fatalf("Resolve(%q) error = %v", flagName, err)
		}
		return got
	}

	if got := resolve("", nil); got != DefaultName {
		t.Errorf("Resolve without config = %q, want %q", got, DefaultName)
	}
	if err := config.Save(ConfigPath(), &config.Config{DefaultProfile: "van"}); err != nil {
		t.Fatal(err)
	}
	if got := resolve("", nil); got != "van" {
		t.Errorf("Resolve with config file = %q, want van", got)
	}
	if got := resolve("", &config.Config{DefaultProfile: "north"}); got != "north" {
		t.Errorf("Resolve with loaded config = %q, want north", got)
	}
	if got := resolve("depot", nil); got != "depot" {
		t.Errorf("Resolve with flag = %q, want depot", got)
	}
	if _, err := Resolve("../etc", nil); err == nil {
		t.Error("Resolve accepted a path as profile name")
	}
}
