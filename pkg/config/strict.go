package config

import (
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/v2"
)

// StrictValidationResult collects structural problems found before the
// config is unmarshaled: unknown keys and type mismatches.
type StrictValidationResult struct {
	UnknownFields []string
	TypeErrors    []string
}

// Valid reports whether the structure decoded cleanly.
func (r *StrictValidationResult) Valid() bool {
	return len(r.UnknownFields) == 0 && len(r.TypeErrors) == 0
}

// FormatErrors returns a human-readable error message.
func (r *StrictValidationResult) FormatErrors() string {
	if r.Valid() {
		return ""
	}

	var sb strings.Builder
	if len(r.UnknownFields) > 0 {
		sb.WriteString("unknown fields:\n")
		for _, field := range r.UnknownFields {
			sb.WriteString(fmt.Sprintf("  - %s\n", field))
		}
		sb.WriteString("check the field names and nesting against the configuration reference\n")
	}
	if len(r.TypeErrors) > 0 {
		sb.WriteString("type errors:\n")
		for _, err := range r.TypeErrors {
			sb.WriteString(fmt.Sprintf("  - %s\n", err))
		}
	}
	return sb.String()
}

// ValidateConfigStructure decodes the raw config map with unknown-key
// detection enabled so typos and misplaced sections fail at load time
// instead of silently disabling features.
func ValidateConfigStructure(k *koanf.Koanf) (*StrictValidationResult, error) {
	result := &StrictValidationResult{}
	cfg := &Config{}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		ErrorUnused:      true,
		TagName:          "yaml",
		WeaklyTypedInput: false,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(k.Raw()); err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "unused key") || strings.Contains(errStr, "has invalid keys:") {
			result.UnknownFields = extractUnknownFields(errStr)
		} else {
			result.TypeErrors = append(result.TypeErrors, errStr)
		}
	}

	return result, nil
}

// extractUnknownFields pulls field names out of mapstructure's
// "has invalid keys: a, b" error text.
func extractUnknownFields(errMsg string) []string {
	var fields []string

	if idx := strings.Index(errMsg, "has invalid keys:"); idx != -1 {
		keysStr := strings.TrimSpace(errMsg[idx+len("has invalid keys:"):])
		for _, key := range strings.Split(keysStr, ",") {
			if key = strings.TrimSpace(key); key != "" {
				fields = append(fields, key)
			}
		}
	}

	if len(fields) == 0 {
		fields = []string{errMsg}
	}
	return fields
}
