package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/boardlake/pkg/errors"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Extraction.Partitions = []string{"6255740472"}
	cfg.Destination.Prefix = "s3://bucket/items"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing url", mutate: func(c *Config) { c.Upstream.URL = "" }, wantErr: true},
		{name: "page size too large", mutate: func(c *Config) { c.Extraction.PageSize = 501 }, wantErr: true},
		{name: "page size zero", mutate: func(c *Config) { c.Extraction.PageSize = 0 }, wantErr: true},
		{name: "blank partition", mutate: func(c *Config) { c.Extraction.Partitions = []string{" "} }, wantErr: true},
		{name: "missing prefix", mutate: func(c *Config) { c.Destination.Prefix = "" }, wantErr: true},
		{name: "bad compression", mutate: func(c *Config) { c.Destination.Compression = "brotli" }, wantErr: true},
		{name: "zero retries", mutate: func(c *Config) { c.Reliability.RetryAttempts = 0 }, wantErr: true},
		{name: "zero deadline", mutate: func(c *Config) { c.Reliability.RunDeadline = 0 }, wantErr: true},
		{name: "zero concurrency", mutate: func(c *Config) { c.Extraction.MaxConcurrency = 0 }, wantErr: true},
		{name: "run id with suffix", mutate: func(c *Config) { c.Extraction.RunID = "2024_05_01_00_00_00_nightly" }},
		{name: "run id without timestamp", mutate: func(c *Config) { c.Extraction.RunID = "nightly" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoad_FileWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_BUCKET", "landing-bucket")

	path := filepath.Join(t.TempDir(), "boardlake.yaml")
	content := `
upstream:
  url: https://example.test/v2
  request_timeout: 5s
extraction:
  partitions:
    - "6255740472"
    - "6058656936:Dispositions PGY"
  page_size: 100
destination:
  prefix: s3://${TEST_BUCKET}/monday.com/items
reliability:
  run_deadline: 2m
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://example.test/v2", cfg.Upstream.URL)
	assert.Equal(t, 5*time.Second, cfg.Upstream.RequestTimeout)
	assert.Equal(t, []string{"6255740472", "6058656936:Dispositions PGY"}, cfg.Extraction.Partitions)
	assert.Equal(t, 100, cfg.Extraction.PageSize)
	assert.Equal(t, "s3://landing-bucket/monday.com/items", cfg.Destination.Prefix)
	assert.Equal(t, 2*time.Minute, cfg.Reliability.RunDeadline)
	// untouched keys keep their defaults
	assert.Equal(t, 3, cfg.Reliability.RetryAttempts)
	assert.Equal(t, "snappy", cfg.Destination.Compression)
	require.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("BOARDLAKE_EXTRACTION_PAGE_SIZE", "250")
	t.Setenv("BOARDLAKE_EXTRACTION_PARTITIONS", "1,2,3")
	t.Setenv("BOARDLAKE_DESTINATION_PREFIX", "gs://bucket/items")

	cfg, err := LoadWith(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, 250, cfg.Extraction.PageSize)
	assert.Equal(t, []string{"1", "2", "3"}, cfg.Extraction.Partitions)
	assert.Equal(t, "gs://bucket/items", cfg.Destination.Prefix)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := validConfig()
	cfg.Extraction.Partitions = []string{"1", "2"}
	path := filepath.Join(t.TempDir(), "out.yaml")

	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Extraction.Partitions, loaded.Extraction.Partitions)
	assert.Equal(t, cfg.Upstream.RequestTimeout, loaded.Upstream.RequestTimeout)
	assert.Equal(t, cfg.Destination.Prefix, loaded.Destination.Prefix)
}

func TestResolveCredential(t *testing.T) {
	t.Setenv("BOARD_TOKEN", "secret-from-env")
	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte("secret-from-file\n"), 0o600))

	tests := []struct {
		ref     string
		want    string
		wantErr bool
	}{
		{ref: "env:BOARD_TOKEN", want: "secret-from-env"},
		{ref: "env:BOARD_TOKEN_MISSING", wantErr: true},
		{ref: "file:" + path, want: "secret-from-file"},
		{ref: "file:" + path + ".missing", wantErr: true},
		{ref: "literal-token", want: "literal-token"},
		{ref: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			u := UpstreamConfig{CredentialRef: tt.ref}
			got, err := u.ResolveCredential()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
