package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("SHESAFE_TEST_PORT=9090\nSHESAFE_TEST_KEEP=fromfile\n"), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("SHESAFE_TEST_KEEP", "fromenv")
	os.Unsetenv("SHESAFE_TEST_PORT")
	t.Cleanup(func() { os.Unsetenv("SHESAFE_TEST_PORT") })

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}

	if got := Int("SHESAFE_TEST_PORT", 0); got != 9090 {
		t.Errorf("SHESAFE_TEST_PORT = %d, want 9090", got)
	}
	if got := String("SHESAFE_TEST_KEEP", ""); got != "fromenv" {
		t.Errorf("existing env var overridden: got %q", got)
	}
}

func TestLoadDotEnv_MissingFile(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "nope.env")); err != nil {
		t.Errorf("missing file should not error, got %v", err)
	}
}

func TestTypedGetters(t *testing.T) {
	t.Setenv("SHESAFE_TEST_BOOL", "true")
	t.Setenv("SHESAFE_TEST_DUR", "45s")
	t.Setenv("SHESAFE_TEST_BAD", "notanumber")

	if !Bool("SHESAFE_TEST_BOOL", false) {
		t.Error("Bool: want true")
	}
	if got := Duration("SHESAFE_TEST_DUR", time.Second); got != 45*time.Second {
		t.Errorf("Duration = %v, want 45s", got)
	}
	if got := Int("SHESAFE_TEST_BAD", 7); got != 7 {
		t.Errorf("Int with bad value = %d, want default 7", got)
	}
	if got := String("SHESAFE_TEST_UNSET", "def"); got != "def" {
		t.Errorf("String default = %q", got)
	}
}
