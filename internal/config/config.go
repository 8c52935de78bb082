// Package config provides the configuration schema, loader, and provider
// registry for the voiceprint speaker resolution service.
package config

// LogLevel controls log verbosity for the voiceprint binary.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// StoreBackend selects the profile store implementation.
type StoreBackend string

const (
	// BackendDir stores profiles as directories on the local filesystem.
	BackendDir StoreBackend = "dir"

	// BackendPostgres stores profiles in PostgreSQL with pgvector.
	BackendPostgres StoreBackend = "postgres"
)

// IsValid reports whether b is a recognised store backend.
func (b StoreBackend) IsValid() bool {
	return b == BackendDir || b == BackendPostgres
}

// Config is the root configuration structure for voiceprint.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
// Every field has a usable default; a missing config file is equivalent to an
// empty one.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	Provider ProviderEntry  `yaml:"provider"`
	Resolver ResolverConfig `yaml:"resolver"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds process-level settings.
type ServerConfig struct {
	// LogLevel controls verbosity. Default: info.
	LogLevel LogLevel `yaml:"log_level"`
}

// StoreConfig selects and configures the profile store backend.
type StoreConfig struct {
	// Backend selects the store implementation. Default: dir.
	Backend StoreBackend `yaml:"backend"`

	// ProfilesDir is the root directory for the dir backend. A per-request
	// profiles_dir overrides it. Default: ~/.voiceprint/profiles.
	ProfilesDir string `yaml:"profiles_dir"`

	// DSN is the PostgreSQL connection string for the postgres backend.
	DSN string `yaml:"dsn"`

	// EmbeddingDimensions is the fixed vector dimension stored by the
	// postgres backend. Required (positive) when Backend is postgres.
	EmbeddingDimensions int `yaml:"embedding_dimensions"`
}

// ProviderEntry configures the voice embedding provider. The Name field is
// used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation. Default: pyannote.
	Name string `yaml:"name"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`

	// Model overrides the provider's default model identifier.
	Model string `yaml:"model"`

	// HuggingFaceToken authenticates against gated model weights. A token
	// supplied in the request wins; the HUGGINGFACE_TOKEN environment
	// variable is the final fallback.
	HuggingFaceToken string `yaml:"huggingface_token"`

	// TimeoutSeconds bounds a single embedding request. Zero means no
	// timeout, since extraction over long audio can be slow.
	TimeoutSeconds float64 `yaml:"timeout_seconds"`

	// Dimensions pre-sets the embedding dimension, skipping auto-detection.
	Dimensions int `yaml:"dimensions"`
}

// ResolverConfig holds the resolution algorithm's tunables. Zero values mean
// the built-in defaults (threshold 0.70, probe limit 3, minimum probe
// duration 1.0s); a per-request threshold overrides the configured one.
type ResolverConfig struct {
	Threshold               float64 `yaml:"threshold"`
	ProbeLimit              int     `yaml:"probe_limit"`
	MinProbeDurationSeconds float64 `yaml:"min_probe_duration_seconds"`
}

// MetricsConfig controls the OpenTelemetry metrics pipeline.
type MetricsConfig struct {
	// Enabled turns on metric recording with the Prometheus exporter bridge.
	Enabled bool `yaml:"enabled"`

	// ServiceVersion is reported as the telemetry service version.
	ServiceVersion string `yaml:"service_version"`
}
