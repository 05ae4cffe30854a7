package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "BOARDLAKE"

// Load resolves a Config from an optional YAML file plus environment overrides.
func Load(filePath string) (*Config, error) {
	return LoadWith(viper.New(), filePath)
}

// LoadWith resolves a Config using v, which may already have CLI flags bound.
// An empty filePath skips the file layer.
func LoadWith(v *viper.Viper, filePath string) (*Config, error) {
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if filePath != "" {
		data, err := os.ReadFile(filePath) //nolint:gosec // G304: path is supplied by the operator
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		v.SetConfigType("yaml")
		if err := v.ReadConfig(bytes.NewReader([]byte(substituteEnvVars(string(data))))); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	cfg.Extraction.Partitions = splitPartitions(cfg.Extraction.Partitions)

	return cfg, nil
}

// Save writes cfg to a YAML file
func Save(filePath string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("upstream.url", d.Upstream.URL)
	v.SetDefault("upstream.credential_ref", d.Upstream.CredentialRef)
	v.SetDefault("upstream.api_version", d.Upstream.APIVersion)
	v.SetDefault("upstream.request_timeout", d.Upstream.RequestTimeout)
	v.SetDefault("upstream.rate_limit_per_sec", d.Upstream.RateLimitPerSec)
	v.SetDefault("upstream.rate_burst", d.Upstream.RateBurst)

	v.SetDefault("extraction.partitions", d.Extraction.Partitions)
	v.SetDefault("extraction.page_size", d.Extraction.PageSize)
	v.SetDefault("extraction.max_concurrency", d.Extraction.MaxConcurrency)
	v.SetDefault("extraction.run_id", d.Extraction.RunID)

	v.SetDefault("destination.prefix", d.Destination.Prefix)
	v.SetDefault("destination.region", d.Destination.Region)
	v.SetDefault("destination.endpoint", d.Destination.Endpoint)
	v.SetDefault("destination.compression", d.Destination.Compression)
	v.SetDefault("destination.write_timeout", d.Destination.WriteTimeout)

	v.SetDefault("reliability.retry_attempts", d.Reliability.RetryAttempts)
	v.SetDefault("reliability.retry_delay", d.Reliability.RetryDelay)
	v.SetDefault("reliability.retry_multiplier", d.Reliability.RetryMultiplier)
	v.SetDefault("reliability.max_retry_delay", d.Reliability.MaxRetryDelay)
	v.SetDefault("reliability.run_deadline", d.Reliability.RunDeadline)

	v.SetDefault("observability.log_level", d.Observability.LogLevel)
	v.SetDefault("observability.log_format", d.Observability.LogFormat)
	v.SetDefault("observability.pushgateway_url", d.Observability.PushGatewayURL)
	v.SetDefault("observability.job_name", d.Observability.JobName)
	v.SetDefault("observability.enable_tracing", d.Observability.EnableTracing)
	v.SetDefault("observability.tracing_sample_rate", d.Observability.TracingSampleRate)
}

// splitPartitions flattens comma-joined entries, which is how env vars and
// repeated flags arrive, and drops blanks.
func splitPartitions(in []string) []string {
	out := make([]string, 0, len(in))
	for _, entry := range in {
		for _, p := range strings.Split(entry, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		varName := content[start+2 : end]
		content = content[:start] + os.Getenv(varName) + content[end+1:]
	}
	return content
}
