package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known voice embedding provider names. Used by
// [Validate] to reject unrecognised providers early.
var ValidProviderNames = []string{"pyannote"}

// Default returns the built-in configuration used when no config file exists.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{LogLevel: LogInfo},
		Store:    StoreConfig{Backend: BackendDir},
		Provider: ProviderEntry{Name: "pyannote"},
	}
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. A missing file is not an error: the defaults apply, matching the
// zero-configuration behavior expected from a one-shot protocol binary.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return Default(), nil
		}
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Store.Backend != "" && !cfg.Store.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("store.backend %q is invalid; valid values: dir, postgres", cfg.Store.Backend))
	}
	if cfg.Store.Backend == BackendPostgres {
		if cfg.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store.dsn is required for the postgres backend"))
		}
		if cfg.Store.EmbeddingDimensions <= 0 {
			errs = append(errs, fmt.Errorf("store.embedding_dimensions must be positive for the postgres backend"))
		}
	}

	if cfg.Provider.Name != "" {
		known := false
		for _, name := range ValidProviderNames {
			if cfg.Provider.Name == name {
				known = true
				break
			}
		}
		if !known {
			errs = append(errs, fmt.Errorf("provider.name %q is invalid; valid values: %v", cfg.Provider.Name, ValidProviderNames))
		}
	}

	if cfg.Resolver.Threshold < 0 || cfg.Resolver.Threshold > 1 {
		errs = append(errs, fmt.Errorf("resolver.threshold %v is outside [0, 1]", cfg.Resolver.Threshold))
	}
	if cfg.Resolver.ProbeLimit < 0 {
		errs = append(errs, fmt.Errorf("resolver.probe_limit must not be negative"))
	}
	if cfg.Resolver.MinProbeDurationSeconds < 0 {
		errs = append(errs, fmt.Errorf("resolver.min_probe_duration_seconds must not be negative"))
	}

	return errors.Join(errs...)
}
