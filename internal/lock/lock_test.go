package lock

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAcquireAndRelease(t *testing.T) {
	tmpDir := t.TempDir()

	l, err := Acquire(tmpDir)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if l.Path() != filepath.Join(tmpDir, FileName) {
		t.Errorf("Path() = %q", l.Path())
	}

	pid, err := Owner(tmpDir)
	if err != nil {
		t.Fatalf("Owner() error = %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("Owner() = %d, want %d", pid, os.Getpid())
	}
	data, err := os.ReadFile(l.Path())
	if err != nil || !strings.Contains(string(data), "profile="+filepath.Base(tmpDir)+"\n") {
		t.Errorf("lock file = %q, %v; want the profile recorded", data, err)
	}

	if err := l.Release(); err != nil {
		t.Errorf("Release() error = %v", err)
	}
	if pid, _ := Owner(tmpDir); pid != 0 {
		t.Errorf("Owner() after release = %d, want 0", pid)
	}
}

func TestDoubleAcquireFails(t *testing.T) {
	tmpDir := t.TempDir()

	l1, err := Acquire(tmpDir)
	if err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}
	defer func() { _ = l1.Release() }()

	_, err = Acquire(tmpDir)
	if err == nil {
		t.Fatal("second Acquire() should fail")
	}
	if !IsHeld(err) {
		t.Errorf("expected HeldError, got %T: %v", err, err)
	}
	if he := err.(*HeldError); he.PID != os.Getpid() {
		t.Errorf("HeldError.PID = %d, want %d", he.PID, os.Getpid())
	}
}

func TestReleaseNil(t *testing.T) {
	var l *Lock
	if err := l.Release(); err != nil {
		t.Errorf("nil Release() error = %v", err)
	}
}

func TestReleaseIdempotent(t *testing.T) {
	tmpDir := t.TempDir()

	l, err := Acquire(tmpDir)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	if err := l.Release(); err != nil {
		t.Errorf("first Release() error = %v", err)
	}
	if err := l.Release(); err != nil {
		t.Errorf("second Release() error = %v", err)
	}
}

func TestParsePID(t *testing.T) {
	tests := map[string]int{
		"pid=42\ntime=x\n": 42,
		"time=x\npid=7":    7,
		"":                 0,
		"pid=abc":          0,
	}
	for in, want := range tests {
		if got := parsePID(in); got != want {
			t.Errorf("parsePID(%q) = %d, want %d", in, got, want)
		}
	}
}
