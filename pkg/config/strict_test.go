package config

import (
	"strings"
	"testing"

	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/v2"
)

func loadRaw(t *testing.T, raw map[string]interface{}) *koanf.Koanf {
	t.Helper()
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(raw, "."), nil); err != nil {
		t.Fatalf("failed to load raw map: %v", err)
	}
	return k
}

func TestValidateConfigStructureAcceptsKnownKeys(t *testing.T) {
	k := loadRaw(t, map[string]interface{}{
		"server":   map[string]interface{}{"port": 9000},
		"database": map[string]interface{}{"dialect": "sqlite", "dsn": ":memory:"},
		"muxing":   map[string]interface{}{"persona_distance_threshold": 0.6},
	})

	result, err := ValidateConfigStructure(k)
	if err != nil {
		t.Fatalf("ValidateConfigStructure: %v", err)
	}
	if !result.Valid() {
		t.Errorf("expected a clean result, got: %s", result.FormatErrors())
	}
}

func TestValidateConfigStructureFlagsUnknownKeys(t *testing.T) {
	k := loadRaw(t, map[string]interface{}{
		"serverr": map[string]interface{}{"port": 9000},
	})

	result, err := ValidateConfigStructure(k)
	if err != nil {
		t.Fatalf("ValidateConfigStructure: %v", err)
	}
	if result.Valid() {
		t.Fatal("expected unknown-key errors")
	}
	if len(result.UnknownFields) == 0 || !strings.Contains(result.UnknownFields[0], "serverr") {
		t.Errorf("unknown fields should name the typo, got %v", result.UnknownFields)
	}
	if !strings.Contains(result.FormatErrors(), "serverr") {
		t.Errorf("formatted errors should name the typo: %s", result.FormatErrors())
	}
}

func TestValidateConfigStructureFlagsTypeErrors(t *testing.T) {
	k := loadRaw(t, map[string]interface{}{
		"server": map[string]interface{}{"port": []interface{}{"not", "a", "port"}},
	})

	result, err := ValidateConfigStructure(k)
	if err != nil {
		t.Fatalf("ValidateConfigStructure: %v", err)
	}
	if result.Valid() {
		t.Fatal("expected type errors")
	}
	if len(result.TypeErrors) == 0 {
		t.Errorf("expected a type error, got %+v", result)
	}
}
