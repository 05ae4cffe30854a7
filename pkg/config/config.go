package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ajitpratap0/boardlake/internal/runid"
	"github.com/ajitpratap0/boardlake/pkg/errors"
)

const (
	// MaxPageSize is the largest items_page limit the upstream accepts
	MaxPageSize = 500

	// DefaultUpstreamURL is the GraphQL endpoint used when none is configured
	DefaultUpstreamURL = "https://api.monday.com/v2"
)

// Config is the explicit configuration object passed into the pipeline entry point.
type Config struct {
	// Upstream describes the remote data source
	Upstream UpstreamConfig `mapstructure:"upstream" yaml:"upstream" json:"upstream"`

	// Extraction controls partition enumeration and paging
	Extraction ExtractionConfig `mapstructure:"extraction" yaml:"extraction" json:"extraction"`

	// Destination describes where the run output lands
	Destination DestinationConfig `mapstructure:"destination" yaml:"destination" json:"destination"`

	// Reliability settings for retries and deadlines
	Reliability ReliabilityConfig `mapstructure:"reliability" yaml:"reliability" json:"reliability"`

	// Observability settings for logging, metrics and tracing
	Observability ObservabilityConfig `mapstructure:"observability" yaml:"observability" json:"observability"`
}

// UpstreamConfig describes the GraphQL endpoint.
type UpstreamConfig struct {
	// URL of the GraphQL endpoint
	URL string `mapstructure:"url" yaml:"url" json:"url"`
	// CredentialRef points at the bearer credential (env:NAME, file:/path or literal)
	CredentialRef string `mapstructure:"credential_ref" yaml:"credential_ref" json:"-"`
	// APIVersion is sent as the API-Version header when set
	APIVersion string `mapstructure:"api_version" yaml:"api_version" json:"api_version"`
	// RequestTimeout bounds a single page fetch
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout" json:"request_timeout"`
	// RateLimitPerSec caps outbound requests across all partitions (0 = unlimited)
	RateLimitPerSec float64 `mapstructure:"rate_limit_per_sec" yaml:"rate_limit_per_sec" json:"rate_limit_per_sec"`
	// RateBurst is the token bucket burst size
	RateBurst int `mapstructure:"rate_burst" yaml:"rate_burst" json:"rate_burst"`
}

// ExtractionConfig controls which partitions are drained and how.
type ExtractionConfig struct {
	// Partitions lists board ids, optionally as "id:display name"
	Partitions []string `mapstructure:"partitions" yaml:"partitions" json:"partitions"`
	// PageSize is the number of items requested per page
	PageSize int `mapstructure:"page_size" yaml:"page_size" json:"page_size"`
	// MaxConcurrency is the number of partitions drained in parallel
	MaxConcurrency int `mapstructure:"max_concurrency" yaml:"max_concurrency" json:"max_concurrency"`
	// RunID overrides the generated run identifier. It must start with a
	// YYYY_MM_DD_HH_MM_SS timestamp; any "_suffix" after it is free form.
	RunID string `mapstructure:"run_id" yaml:"run_id,omitempty" json:"run_id,omitempty"`
}

// DestinationConfig describes the object store target.
type DestinationConfig struct {
	// Prefix is the destination URI prefix (s3://bucket/path, gs://bucket/path, file:///dir)
	Prefix string `mapstructure:"prefix" yaml:"prefix" json:"prefix"`
	// Region for S3 destinations
	Region string `mapstructure:"region" yaml:"region" json:"region"`
	// Endpoint overrides the S3 endpoint (S3-compatible stores)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	// Compression is the Parquet codec (snappy, zstd, gzip, none)
	Compression string `mapstructure:"compression" yaml:"compression" json:"compression"`
	// WriteTimeout bounds the single durable put
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" json:"write_timeout"`
}

// ReliabilityConfig contains retry and deadline settings.
type ReliabilityConfig struct {
	// RetryAttempts is the attempt cap for transient fetch failures
	RetryAttempts int `mapstructure:"retry_attempts" yaml:"retry_attempts" json:"retry_attempts"`
	// RetryDelay is the initial backoff delay
	RetryDelay time.Duration `mapstructure:"retry_delay" yaml:"retry_delay" json:"retry_delay"`
	// RetryMultiplier grows the delay exponentially
	RetryMultiplier float64 `mapstructure:"retry_multiplier" yaml:"retry_multiplier" json:"retry_multiplier"`
	// MaxRetryDelay caps the backoff delay
	MaxRetryDelay time.Duration `mapstructure:"max_retry_delay" yaml:"max_retry_delay" json:"max_retry_delay"`
	// RunDeadline is the overall deadline for draining all partitions
	RunDeadline time.Duration `mapstructure:"run_deadline" yaml:"run_deadline" json:"run_deadline"`
}

// ObservabilityConfig contains logging, metrics and tracing settings.
type ObservabilityConfig struct {
	// LogLevel sets logging verbosity (debug, info, warn, error)
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	// LogFormat is json or console
	LogFormat string `mapstructure:"log_format" yaml:"log_format" json:"log_format"`
	// PushGatewayURL receives run metrics at the end of the run when set
	PushGatewayURL string `mapstructure:"pushgateway_url" yaml:"pushgateway_url,omitempty" json:"pushgateway_url,omitempty"`
	// JobName labels pushed metrics
	JobName string `mapstructure:"job_name" yaml:"job_name" json:"job_name"`
	// EnableTracing activates the OpenTelemetry stdout exporter
	EnableTracing bool `mapstructure:"enable_tracing" yaml:"enable_tracing" json:"enable_tracing"`
	// TracingSampleRate controls trace sampling (0.0-1.0)
	TracingSampleRate float64 `mapstructure:"tracing_sample_rate" yaml:"tracing_sample_rate" json:"tracing_sample_rate"`
}

// Default returns a Config with production defaults. Partitions and the
// destination prefix have no sensible default and must be supplied.
func Default() *Config {
	return &Config{
		Upstream: UpstreamConfig{
			URL:             DefaultUpstreamURL,
			CredentialRef:   "env:BOARDLAKE_API_TOKEN",
			RequestTimeout:  30 * time.Second,
			RateLimitPerSec: 5,
			RateBurst:       5,
		},
		Extraction: ExtractionConfig{
			PageSize:       MaxPageSize,
			MaxConcurrency: 1,
		},
		Destination: DestinationConfig{
			Region:       "us-east-1",
			Compression:  "snappy",
			WriteTimeout: 2 * time.Minute,
		},
		Reliability: ReliabilityConfig{
			RetryAttempts:   3,
			RetryDelay:      time.Second,
			RetryMultiplier: 2.0,
			MaxRetryDelay:   30 * time.Second,
			RunDeadline:     30 * time.Minute,
		},
		Observability: ObservabilityConfig{
			LogLevel:          "info",
			LogFormat:         "json",
			JobName:           "boardlake",
			TracingSampleRate: 1.0,
		},
	}
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.Upstream.URL == "" {
		return errors.New(errors.ErrorTypeConfig, "upstream.url is required")
	}
	if c.Upstream.RequestTimeout <= 0 {
		return errors.New(errors.ErrorTypeConfig, "upstream.request_timeout must be positive")
	}
	if c.Upstream.RateLimitPerSec < 0 {
		return errors.New(errors.ErrorTypeConfig, "upstream.rate_limit_per_sec cannot be negative")
	}
	if len(c.Extraction.Partitions) == 0 {
		return errors.New(errors.ErrorTypeConfig, "at least one partition is required")
	}
	for _, p := range c.Extraction.Partitions {
		if strings.TrimSpace(p) == "" {
			return errors.New(errors.ErrorTypeConfig, "partition ids cannot be empty")
		}
	}
	if c.Extraction.PageSize <= 0 || c.Extraction.PageSize > MaxPageSize {
		return errors.Newf(errors.ErrorTypeConfig, "extraction.page_size must be between 1 and %d", MaxPageSize)
	}
	if c.Extraction.MaxConcurrency <= 0 {
		return errors.New(errors.ErrorTypeConfig, "extraction.max_concurrency must be positive")
	}
	if c.Extraction.RunID != "" && !runid.Valid(c.Extraction.RunID) {
		return errors.Newf(errors.ErrorTypeConfig,
			"extraction.run_id %q must start with a %s timestamp", c.Extraction.RunID, runid.Layout)
	}
	if c.Destination.Prefix == "" {
		return errors.New(errors.ErrorTypeConfig, "destination.prefix is required")
	}
	switch c.Destination.Compression {
	case "snappy", "zstd", "gzip", "none", "":
	default:
		return errors.Newf(errors.ErrorTypeConfig, "unsupported compression %q", c.Destination.Compression)
	}
	if c.Reliability.RetryAttempts < 1 {
		return errors.New(errors.ErrorTypeConfig, "reliability.retry_attempts must be at least 1")
	}
	if c.Reliability.RunDeadline <= 0 {
		return errors.New(errors.ErrorTypeConfig, "reliability.run_deadline must be positive")
	}
	return nil
}

// ResolveCredential dereferences CredentialRef.
func (u *UpstreamConfig) ResolveCredential() (string, error) {
	ref := strings.TrimSpace(u.CredentialRef)
	switch {
	case ref == "":
		return "", errors.New(errors.ErrorTypeConfig, "upstream.credential_ref is required")
	case strings.HasPrefix(ref, "env:"):
		name := strings.TrimPrefix(ref, "env:")
		value := os.Getenv(name)
		if value == "" {
			return "", errors.Newf(errors.ErrorTypeConfig, "credential environment variable %s is empty", name)
		}
		return value, nil
	case strings.HasPrefix(ref, "file:"):
		path := strings.TrimPrefix(ref, "file:")
		data, err := os.ReadFile(path) //nolint:gosec // path comes from operator configuration
		if err != nil {
			return "", errors.Wrap(err, errors.ErrorTypeConfig, fmt.Sprintf("failed to read credential file %s", path))
		}
		return strings.TrimSpace(string(data)), nil
	default:
		return ref, nil
	}
}
