package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("CODEGATE_TEST_VALUE", "expanded")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"braced", "${CODEGATE_TEST_VALUE}", "expanded"},
		{"simple", "$CODEGATE_TEST_VALUE", "expanded"},
		{"with default, var set", "${CODEGATE_TEST_VALUE:-fallback}", "expanded"},
		{"with default, var unset", "${CODEGATE_TEST_UNSET:-fallback}", "fallback"},
		{"unset braced becomes empty", "${CODEGATE_TEST_UNSET}", ""},
		{"embedded", "key-${CODEGATE_TEST_VALUE}-suffix", "key-expanded-suffix"},
		{"no reference", "plain value", "plain value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := expandEnvVars(tt.input); got != tt.want {
				t.Errorf("expandEnvVars(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		input string
		want  interface{}
	}{
		{"true", true},
		{"FALSE", false},
		{"42", 42},
		{"2.5", 2.5},
		{"sk-abc123", "sk-abc123"},
	}

	for _, tt := range tests {
		if got := parseValue(tt.input); got != tt.want {
			t.Errorf("parseValue(%q) = %v (%T), want %v (%T)", tt.input, got, got, tt.want, tt.want)
		}
	}
}

func TestExpandEnvVarsInData(t *testing.T) {
	t.Setenv("CODEGATE_TEST_PORT", "9000")

	data := map[string]interface{}{
		"server": map[string]interface{}{
			"port": "${CODEGATE_TEST_PORT}",
			"host": "localhost",
		},
		"tags":  []interface{}{"${CODEGATE_TEST_PORT}", "literal"},
		"count": 3,
	}

	result, ok := ExpandEnvVarsInData(data).(map[string]interface{})
	if !ok {
		t.Fatal("expected a map back")
	}

	server := result["server"].(map[string]interface{})
	if server["port"] != 9000 {
		t.Errorf("expanded port should be coerced to int, got %v (%T)", server["port"], server["port"])
	}
	// Literal strings keep their type even when they look numeric.
	if server["host"] != "localhost" {
		t.Errorf("host changed: %v", server["host"])
	}
	tags := result["tags"].([]interface{})
	if tags[0] != 9000 || tags[1] != "literal" {
		t.Errorf("unexpected slice expansion: %v", tags)
	}
	if result["count"] != 3 {
		t.Errorf("non-string leaf changed: %v", result["count"])
	}
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("CODEGATE_TEST_FROM_FILE=loaded\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)
	t.Cleanup(func() { os.Unsetenv("CODEGATE_TEST_FROM_FILE") })

	if err := LoadEnvFiles(); err != nil {
		t.Fatalf("LoadEnvFiles: %v", err)
	}
	if got := os.Getenv("CODEGATE_TEST_FROM_FILE"); got != "loaded" {
		t.Errorf("expected loaded, got %q", got)
	}
}

func TestLoadEnvFilesMissingAreFine(t *testing.T) {
	t.Chdir(t.TempDir())
	if err := LoadEnvFiles(); err != nil {
		t.Fatalf("missing env files should not error: %v", err)
	}
}
