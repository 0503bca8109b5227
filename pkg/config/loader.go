package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// envPrefix namespaces environment overrides. CODEGATE_SERVER__PORT=9000
// sets server.port; a double underscore separates nesting levels so
// single underscores survive inside key names.
const envPrefix = "CODEGATE_"

// LoaderOptions controls how configuration is loaded.
type LoaderOptions struct {
	// Path is the YAML config file. Empty runs on defaults plus
	// environment overrides.
	Path string

	// Watch reloads the file on change and invokes OnChange.
	Watch bool

	// OnChange receives each successfully reloaded configuration.
	OnChange func(*Config) error
}

// Loader reads configuration from a file and the environment.
type Loader struct {
	options  LoaderOptions
	parser   *yaml.YAML
	stopChan chan struct{}
}

// NewLoader creates a config loader.
func NewLoader(opts LoaderOptions) *Loader {
	return &Loader{
		options:  opts,
		parser:   yaml.Parser(),
		stopChan: make(chan struct{}),
	}
}

// Load reads, expands, validates and unmarshals the configuration. With
// Watch set and a file present, a watcher goroutine keeps reloading it
// until Stop.
func (l *Loader) Load() (*Config, error) {
	cfg, provider, err := l.load()
	if err != nil {
		return nil, err
	}

	if l.options.Watch && provider != nil {
		go l.watch(provider)
	}

	return cfg, nil
}

// load runs one full pipeline pass. The koanf instance is rebuilt from
// scratch so keys removed from the file do not linger across reloads.
func (l *Loader) load() (*Config, *file.File, error) {
	k := koanf.New(".")

	var provider *file.File
	if l.options.Path != "" {
		provider = file.Provider(l.options.Path)
		if err := k.Load(provider, l.parser); err != nil {
			return nil, nil, fmt.Errorf("failed to load config from %s: %w", l.options.Path, err)
		}

		expanded, err := expandEnvVarsInKoanf(k)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to expand environment variables: %w", err)
		}
		k = expanded

		// Unknown-key detection covers the file only; environment
		// overrides are merged afterwards and stay free-form.
		strictResult, err := ValidateConfigStructure(k)
		if err != nil {
			return nil, nil, fmt.Errorf("strict validation check failed: %w", err)
		}
		if !strictResult.Valid() {
			return nil, nil, fmt.Errorf("configuration has structural errors:\n%s", strictResult.FormatErrors())
		}
	}

	if err := k.Load(env.ProviderWithValue(envPrefix, ".", envTransform), nil); err != nil {
		return nil, nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, provider, nil
}

// envTransform maps CODEGATE_SECTION__KEY_NAME to section.key_name and
// coerces the value so numeric and boolean overrides land typed.
func envTransform(key, value string) (string, interface{}) {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
	key = strings.ReplaceAll(key, "__", ".")
	return key, parseValue(value)
}

// expandEnvVarsInKoanf expands ${ENV_VAR} references across the raw map
// and loads the result into a fresh instance, since koanf values are
// immutable once loaded.
func expandEnvVarsInKoanf(k *koanf.Koanf) (*koanf.Koanf, error) {
	expanded, ok := ExpandEnvVarsInData(k.Raw()).(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected type after env var expansion")
	}

	nk := koanf.New(".")
	if err := nk.Load(confmap.Provider(expanded, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load expanded config: %w", err)
	}
	return nk, nil
}

func (l *Loader) watch(provider *file.File) {
	slog.Info("Watching config file", "path", l.options.Path)

	err := provider.Watch(func(event interface{}, err error) {
		select {
		case <-l.stopChan:
			return
		default:
		}

		if err != nil {
			slog.Warn("Config watch error", "error", err)
			return
		}

		newCfg, _, err := l.load()
		if err != nil {
			slog.Warn("Config reload failed", "error", err)
			return
		}

		if l.options.OnChange == nil {
			slog.Warn("Config changed but no reload handler is set")
			return
		}
		if err := l.options.OnChange(newCfg); err != nil {
			slog.Warn("Config change handler failed", "error", err)
			return
		}
		slog.Info("Configuration reloaded", "path", l.options.Path)
	})
	if err != nil {
		slog.Warn("Config watcher stopped", "error", err)
	}
}

// SetOnChange installs the reload callback.
func (l *Loader) SetOnChange(callback func(*Config) error) {
	l.options.OnChange = callback
}

// Stop halts reload handling. The underlying file watch stays alive
// until process exit but its events are ignored.
func (l *Loader) Stop() {
	close(l.stopChan)
}

// LoadConfig loads configuration once, without watching.
func LoadConfig(path string) (*Config, error) {
	return NewLoader(LoaderOptions{Path: path}).Load()
}
