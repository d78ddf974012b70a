// Package config provides the configuration model for bioetl runs.
//
// A run is described by a PipelineConfig organised into logical sections:
//   - Source: remote API location, field selection and paging overrides
//   - Runtime: dry-run, record limit and failure policy
//   - HTTP: transport timeouts, retries, rate limiting, circuit breaker
//   - Determinism: sort keys, column order and hash settings
//   - Output: output directory, format, schema and compression
//   - Observability: logging, metrics and tracing
//
// Per-entity defaults (EntityDefaults) are immutable values supplied by each
// entity package and layered underneath the run configuration.
//
// Example usage:
//
//	cfg := config.NewPipelineConfig("documents", "document")
//	cfg.Source.BaseURL = "https://www.ebi.ac.uk/chembl/api/data"
//	cfg.Runtime.Limit = 100
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"net/url"
	"time"

	"github.com/ajitpratap0/bioetl/pkg/errors"
	"github.com/ajitpratap0/bioetl/pkg/logger"
)

// InvariantPolicy selects how data invariant violations are handled.
type InvariantPolicy string

const (
	// InvariantFailFast aborts the run on the first violation
	InvariantFailFast InvariantPolicy = "fail_fast"
	// InvariantWarn logs the violation and keeps the record
	InvariantWarn InvariantPolicy = "warn"
)

// PipelineConfig is the complete configuration of one extraction run.
type PipelineConfig struct {
	// Name identifies the pipeline in logs and metadata
	Name string `yaml:"name" json:"name" mapstructure:"name"`
	// Entity selects the registered extraction descriptor
	Entity string `yaml:"entity" json:"entity" mapstructure:"entity"`

	Source        SourceConfig        `yaml:"source" json:"source" mapstructure:"source"`
	Runtime       RuntimeConfig       `yaml:"runtime" json:"runtime" mapstructure:"runtime"`
	HTTP          HTTPConfig          `yaml:"http" json:"http" mapstructure:"http"`
	Determinism   DeterminismConfig   `yaml:"determinism" json:"determinism" mapstructure:"determinism"`
	Output        OutputConfig        `yaml:"output" json:"output" mapstructure:"output"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability" mapstructure:"observability"`
}

// SourceConfig is the generic, entity-agnostic source section. Zero values
// mean "use the entity default".
type SourceConfig struct {
	// BaseURL is the API root, e.g. https://www.ebi.ac.uk/chembl/api/data
	BaseURL string `yaml:"base_url" json:"base_url" mapstructure:"base_url"`
	// Disabled short-circuits extraction to an empty table
	Disabled bool `yaml:"disabled" json:"disabled" mapstructure:"disabled"`
	// Fields requested from the API in addition to the mandatory fields
	Fields []string `yaml:"fields" json:"fields" mapstructure:"fields"`
	// IDs to extract; when empty and no ids file is given the run extracts all
	IDs []string `yaml:"ids" json:"ids" mapstructure:"ids"`
	// IDsFile is a newline separated identifier list
	IDsFile string `yaml:"ids_file" json:"ids_file" mapstructure:"ids_file"`
	// PageSize is the `limit` query parameter
	PageSize int `yaml:"page_size" json:"page_size" mapstructure:"page_size"`
	// BatchSize is the number of identifiers per filtered request
	BatchSize int `yaml:"batch_size" json:"batch_size" mapstructure:"batch_size"`
	// MaxURLLength bounds the encoded filter query of one batch
	MaxURLLength int `yaml:"max_url_length" json:"max_url_length" mapstructure:"max_url_length"`
	// Parameters are extra query parameters sent with every request
	Parameters map[string]string `yaml:"parameters" json:"parameters" mapstructure:"parameters"`
	// Handshake overrides the entity handshake defaults
	Handshake HandshakeConfig `yaml:"handshake" json:"handshake" mapstructure:"handshake"`
}

// HandshakeConfig overrides release discovery settings.
type HandshakeConfig struct {
	Enabled   *bool         `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	Endpoint  string        `yaml:"endpoint" json:"endpoint" mapstructure:"endpoint"`
	Fallbacks []string      `yaml:"fallbacks" json:"fallbacks" mapstructure:"fallbacks"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout" mapstructure:"timeout"`
	Budget    time.Duration `yaml:"budget" json:"budget" mapstructure:"budget"`
}

// RuntimeConfig controls the extraction loop.
type RuntimeConfig struct {
	// DryRun skips every network call
	DryRun bool `yaml:"dry_run" json:"dry_run" mapstructure:"dry_run"`
	// Limit caps the number of records (0 = unlimited)
	Limit int `yaml:"limit" json:"limit" mapstructure:"limit"`
	// FailFast makes transport failures abort the run instead of being
	// absorbed at the batch/page boundary
	FailFast bool `yaml:"fail_fast" json:"fail_fast" mapstructure:"fail_fast"`
	// InvariantPolicy is fail_fast or warn
	InvariantPolicy InvariantPolicy `yaml:"invariant_policy" json:"invariant_policy" mapstructure:"invariant_policy"`
	// CacheSize is the number of responses kept in the in-process cache (0 disables)
	CacheSize int `yaml:"cache_size" json:"cache_size" mapstructure:"cache_size"`
}

// HTTPConfig configures the API client.
type HTTPConfig struct {
	// Timeouts
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout" mapstructure:"request_timeout"`
	DialTimeout    time.Duration `yaml:"dial_timeout" json:"dial_timeout" mapstructure:"dial_timeout"`
	EnableHTTP2    bool          `yaml:"enable_http2" json:"enable_http2" mapstructure:"enable_http2"`

	// Retry logic
	RetryAttempts   int           `yaml:"retry_attempts" json:"retry_attempts" mapstructure:"retry_attempts"`
	RetryDelay      time.Duration `yaml:"retry_delay" json:"retry_delay" mapstructure:"retry_delay"`
	RetryMultiplier float64       `yaml:"retry_multiplier" json:"retry_multiplier" mapstructure:"retry_multiplier"`
	MaxRetryDelay   time.Duration `yaml:"max_retry_delay" json:"max_retry_delay" mapstructure:"max_retry_delay"`

	// Rate limiting (0 = unlimited)
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec" json:"rate_limit_per_sec" mapstructure:"rate_limit_per_sec"`
	RateBurst       int     `yaml:"rate_burst" json:"rate_burst" mapstructure:"rate_burst"`

	// Circuit breaker
	CircuitBreaker   bool          `yaml:"circuit_breaker" json:"circuit_breaker" mapstructure:"circuit_breaker"`
	FailureThreshold int           `yaml:"failure_threshold" json:"failure_threshold" mapstructure:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold" json:"success_threshold" mapstructure:"success_threshold"`
	OpenTimeout      time.Duration `yaml:"open_timeout" json:"open_timeout" mapstructure:"open_timeout"`

	// BearerToken is sent as an Authorization header when set
	BearerToken string `yaml:"bearer_token" json:"-" mapstructure:"bearer_token"`
	// OAuth2 fetches tokens with the client-credentials flow; it takes
	// precedence over BearerToken
	OAuth2    OAuth2Config `yaml:"oauth2" json:"oauth2" mapstructure:"oauth2"`
	UserAgent string       `yaml:"user_agent" json:"user_agent" mapstructure:"user_agent"`
}

// OAuth2Config configures client-credentials authentication. It is enabled
// when ClientID is set.
type OAuth2Config struct {
	ClientID     string   `yaml:"client_id" json:"client_id" mapstructure:"client_id"`
	ClientSecret string   `yaml:"client_secret" json:"-" mapstructure:"client_secret"`
	TokenURL     string   `yaml:"token_url" json:"token_url" mapstructure:"token_url"`
	Scopes       []string `yaml:"scopes" json:"scopes" mapstructure:"scopes"`
}

// Enabled reports whether client-credentials authentication is configured.
func (o OAuth2Config) Enabled() bool {
	return o.ClientID != ""
}

// OutputConfig controls where and how the canonical table is written.
type OutputConfig struct {
	Dir    string `yaml:"dir" json:"dir" mapstructure:"dir"`
	Format string `yaml:"format" json:"format" mapstructure:"format"` // csv or parquet
	// Compress enables zstd compression for csv output
	Compress bool `yaml:"compress" json:"compress" mapstructure:"compress"`
	// Compression names the codec explicitly: none, zstd or gzip. It wins
	// over Compress when set.
	Compression string `yaml:"compression" json:"compression" mapstructure:"compression"`
	// Schema is the expected output column set
	Schema []string `yaml:"schema" json:"schema" mapstructure:"schema"`
	// WriteMetadata emits meta.yaml next to the data file
	WriteMetadata bool `yaml:"write_metadata" json:"write_metadata" mapstructure:"write_metadata"`
}

// CompressionAlgorithm returns the effective codec name.
func (o OutputConfig) CompressionAlgorithm() string {
	switch {
	case o.Compression != "":
		return o.Compression
	case o.Compress:
		return "zstd"
	default:
		return "none"
	}
}

// ObservabilityConfig contains monitoring settings.
type ObservabilityConfig struct {
	Logging       logger.Config `yaml:"logging" json:"logging" mapstructure:"logging"`
	EnableMetrics bool          `yaml:"enable_metrics" json:"enable_metrics" mapstructure:"enable_metrics"`
	EnableTracing bool          `yaml:"enable_tracing" json:"enable_tracing" mapstructure:"enable_tracing"`
	// MetricsAddr serves /metrics when set, e.g. ":9102"
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr" mapstructure:"metrics_addr"`
}

// NewPipelineConfig creates a PipelineConfig with production defaults.
func NewPipelineConfig(name, entity string) *PipelineConfig {
	return &PipelineConfig{
		Name:   name,
		Entity: entity,
		Source: SourceConfig{
			BaseURL:    "https://www.ebi.ac.uk/chembl/api/data",
			Parameters: map[string]string{},
		},
		Runtime: RuntimeConfig{
			InvariantPolicy: InvariantWarn,
			CacheSize:       256,
		},
		HTTP: DefaultHTTPConfig(),
		Determinism: DeterminismConfig{
			HashAlgorithm:         HashSHA256,
			RowHashColumn:         "hash_row",
			BusinessKeyHashColumn: "hash_business_key",
		},
		Output: OutputConfig{
			Dir:           "output",
			Format:        "csv",
			WriteMetadata: true,
		},
		Observability: ObservabilityConfig{
			Logging: logger.Config{Level: "info", Encoding: "json"},
		},
	}
}

// DefaultHTTPConfig returns transport defaults tuned for a public REST API.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		RequestTimeout:   60 * time.Second,
		DialTimeout:      10 * time.Second,
		EnableHTTP2:      true,
		RetryAttempts:    3,
		RetryDelay:       time.Second,
		RetryMultiplier:  2.0,
		MaxRetryDelay:    30 * time.Second,
		RateLimitPerSec:  5,
		RateBurst:        5,
		CircuitBreaker:   true,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      30 * time.Second,
		UserAgent:        "bioetl/1.0",
	}
}

// Validate checks the configuration for correctness. Every failure is a
// config error and is reported before any network activity.
func (c *PipelineConfig) Validate() error {
	if c.Name == "" {
		return errors.New(errors.ErrorTypeConfig, "name is required")
	}
	if c.Entity == "" {
		return errors.New(errors.ErrorTypeConfig, "entity is required")
	}
	if err := c.Source.Validate(); err != nil {
		return err
	}
	if c.Runtime.Limit < 0 {
		return errors.New(errors.ErrorTypeConfig, "runtime.limit cannot be negative")
	}
	if c.Runtime.CacheSize < 0 {
		return errors.New(errors.ErrorTypeConfig, "runtime.cache_size cannot be negative")
	}
	switch c.Runtime.InvariantPolicy {
	case "", InvariantFailFast, InvariantWarn:
	default:
		return errors.Newf(errors.ErrorTypeConfig, "unknown invariant_policy %q", c.Runtime.InvariantPolicy)
	}
	if c.HTTP.RetryAttempts < 0 {
		return errors.New(errors.ErrorTypeConfig, "http.retry_attempts cannot be negative")
	}
	if c.HTTP.RateLimitPerSec < 0 {
		return errors.New(errors.ErrorTypeConfig, "http.rate_limit_per_sec cannot be negative")
	}
	if o := c.HTTP.OAuth2; o.Enabled() {
		u, err := url.Parse(o.TokenURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return errors.New(errors.ErrorTypeConfig, "http.oauth2.token_url must be an absolute URL").
				WithDetail("token_url", o.TokenURL)
		}
	}
	switch c.Output.Format {
	case "", "csv", "parquet":
	default:
		return errors.Newf(errors.ErrorTypeConfig, "unknown output format %q", c.Output.Format)
	}
	switch c.Output.CompressionAlgorithm() {
	case "none", "zstd", "gzip":
	default:
		return errors.Newf(errors.ErrorTypeConfig, "unknown output compression %q", c.Output.Compression)
	}
	if c.Output.Format == "parquet" && c.Output.CompressionAlgorithm() == "gzip" {
		return errors.New(errors.ErrorTypeConfig, "parquet output supports only zstd page compression")
	}
	return c.Determinism.Validate(c.Output.Schema)
}

// Validate checks the generic source section.
func (s *SourceConfig) Validate() error {
	if s.BaseURL == "" {
		return errors.New(errors.ErrorTypeConfig, "source.base_url is required")
	}
	u, err := url.Parse(s.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New(errors.ErrorTypeConfig, "source.base_url must be an absolute URL").
			WithDetail("base_url", s.BaseURL)
	}
	if s.PageSize < 0 {
		return errors.New(errors.ErrorTypeConfig, "source.page_size cannot be negative")
	}
	if s.BatchSize < 0 {
		return errors.New(errors.ErrorTypeConfig, "source.batch_size cannot be negative")
	}
	if s.MaxURLLength < 0 {
		return errors.New(errors.ErrorTypeConfig, "source.max_url_length cannot be negative")
	}
	return nil
}

// Policy returns the effective invariant policy.
func (r RuntimeConfig) Policy() InvariantPolicy {
	if r.InvariantPolicy == "" {
		return InvariantWarn
	}
	return r.InvariantPolicy
}
