package secrets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "key")
	if err := os.WriteFile(file, []byte("  from-file \n"), 0o600); err != nil {
		t.Fatalf("write secret: %v", err)
	}
	t.Setenv("AL_MOUSSAID_TEST_KEY", "from-env")

	tests := []struct {
		name   string
		src    Source
		expect string
	}{
		{name: "file wins", src: Source{File: file, Value: "inline", Env: "AL_MOUSSAID_TEST_KEY"}, expect: "from-file"},
		{name: "value before env", src: Source{Value: " inline ", Env: "AL_MOUSSAID_TEST_KEY"}, expect: "inline"},
		{name: "env fallback", src: Source{Env: "AL_MOUSSAID_TEST_KEY"}, expect: "from-env"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Load(tt.src)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expect {
				t.Fatalf("expected %q, got %q", tt.expect, got)
			}
		})
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty")
	if err := os.WriteFile(empty, []byte("  \n"), 0o600); err != nil {
		t.Fatalf("write secret: %v", err)
	}

	if _, err := Load(Source{Name: "gemini api key", File: empty}); err == nil || !strings.Contains(err.Error(), "is empty") {
		t.Fatalf("expected empty file error, got %v", err)
	}

	if _, err := Load(Source{Name: "database dsn", File: filepath.Join(dir, "missing")}); err == nil {
		t.Fatal("expected error for missing file")
	}

	_, err := Load(Source{Name: "openai api key"})
	if err == nil || !strings.Contains(err.Error(), "openai api key is not configured") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestOptional(t *testing.T) {
	got, err := Optional(Source{Name: "redis url", Env: "AL_MOUSSAID_UNSET_VARIABLE"})
	if err != nil || got != "" {
		t.Fatalf("expected empty optional secret, got %q, %v", got, err)
	}

	got, err = Optional(Source{Value: "redis://localhost:6379/0"})
	if err != nil || got != "redis://localhost:6379/0" {
		t.Fatalf("unexpected optional secret %q, %v", got, err)
	}
}
