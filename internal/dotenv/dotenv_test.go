package dotenv

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadParsesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# comment\n" +
		"PLAIN=value\n" +
		"export EXPORTED=yes\n" +
		"QUOTED=\"with spaces\"\n" +
		"SINGLE='single'\n" +
		"EMPTY=\n" +
		"no_equals_line\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	for _, key := range []string{"PLAIN", "EXPORTED", "QUOTED", "SINGLE", "EMPTY"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	if err := Load(path); err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	checks := map[string]string{
		"PLAIN":    "value",
		"EXPORTED": "yes",
		"QUOTED":   "with spaces",
		"SINGLE":   "single",
		"EMPTY":    "",
	}
	for key, want := range checks {
		if got := os.Getenv(key); got != want {
			t.Errorf("env %s = %q, want %q", key, got, want)
		}
	}
}

func TestLoadDoesNotOverrideExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("KEEP=file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	t.Setenv("KEEP", "process")
	if err := Load(path); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got := os.Getenv("KEEP"); got != "process" {
		t.Errorf("env KEEP = %q, want %q", got, "process")
	}
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	if err := Load(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("Load() error for missing file: %v", err)
	}
}
