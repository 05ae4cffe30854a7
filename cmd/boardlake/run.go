package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ajitpratap0/boardlake/internal/board"
	"github.com/ajitpratap0/boardlake/internal/columnar"
	"github.com/ajitpratap0/boardlake/internal/pipeline"
	"github.com/ajitpratap0/boardlake/internal/storage"
	"github.com/ajitpratap0/boardlake/pkg/config"
	"github.com/ajitpratap0/boardlake/pkg/logger"
	"github.com/ajitpratap0/boardlake/pkg/metrics"
	"github.com/ajitpratap0/boardlake/pkg/observability"
)

const pushTimeout = 10 * time.Second

// runFlags maps run flags onto config keys. Only flags the operator sets
// override the file and environment.
var runFlags = []struct {
	flag string
	key  string
}{
	{"upstream-url", "upstream.url"},
	{"credential-ref", "upstream.credential_ref"},
	{"api-version", "upstream.api_version"},
	{"rate-limit", "upstream.rate_limit_per_sec"},
	{"partition", "extraction.partitions"},
	{"page-size", "extraction.page_size"},
	{"max-concurrency", "extraction.max_concurrency"},
	{"run-id", "extraction.run_id"},
	{"destination", "destination.prefix"},
	{"region", "destination.region"},
	{"endpoint", "destination.endpoint"},
	{"compression", "destination.compression"},
	{"retry-attempts", "reliability.retry_attempts"},
	{"deadline", "reliability.run_deadline"},
	{"log-level", "observability.log_level"},
	{"log-format", "observability.log_format"},
	{"pushgateway-url", "observability.pushgateway_url"},
	{"enable-tracing", "observability.enable_tracing"},
}

func newRunCmd() *cobra.Command {
	var configFile string
	v := viper.New()

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Extract every configured board and write one Parquet object",
		Long: `Run drains all partitions (boards), merges the rows of the partitions that
completed and commits them to {destination}/{YYYY-MM-DD}/{run_id}.parquet.

The run summary is printed to stdout as JSON. Exit status is 0 on success,
3 when some partitions failed and 1 when nothing could be written.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			code, err := execute(ctx, v, configFile, cmd.OutOrStdout())
			if code != pipeline.ExitSuccess || err != nil {
				return &exitError{code: code, err: err}
			}
			return nil
		},
	}

	f := runCmd.Flags()
	f.StringVarP(&configFile, "config", "c", "", "Path to YAML configuration file")
	f.String("upstream-url", "", "GraphQL endpoint URL")
	f.String("credential-ref", "", "Credential reference (env:NAME, file:/path)")
	f.String("api-version", "", "API-Version header sent upstream")
	f.Float64("rate-limit", 0, "Maximum upstream requests per second across all boards")
	f.StringSliceP("partition", "p", nil, "Board id to extract, optionally id:name (repeatable)")
	f.Int("page-size", 0, "Items requested per page (max 500)")
	f.Int("max-concurrency", 0, "Boards drained in parallel")
	f.String("run-id", "", "Fixed run id, YYYY_MM_DD_HH_MM_SS[_suffix]; rerunning it rewrites the same object")
	f.StringP("destination", "d", "", "Destination prefix (s3://bucket/path, gs://bucket/path, file:///dir)")
	f.String("region", "", "S3 region")
	f.String("endpoint", "", "Object store endpoint override")
	f.String("compression", "", "Parquet compression (snappy, zstd, gzip, none)")
	f.Int("retry-attempts", 0, "Attempts per page for transient failures")
	f.Duration("deadline", 0, "Overall deadline for draining all boards")
	f.String("log-level", "", "Log level (debug, info, warn, error)")
	f.String("log-format", "", "Log format (json, console)")
	f.String("pushgateway-url", "", "Prometheus Pushgateway URL for run metrics")
	f.Bool("enable-tracing", false, "Export OpenTelemetry spans to stderr")

	for _, b := range runFlags {
		_ = v.BindPFlag(b.key, f.Lookup(b.flag))
	}

	return runCmd
}

// execute performs one run and returns the process exit code.
func execute(ctx context.Context, v *viper.Viper, configFile string, out io.Writer) (int, error) {
	cfg, err := config.LoadWith(v, configFile)
	if err != nil {
		return pipeline.ExitFailure, err
	}
	if err := cfg.Validate(); err != nil {
		return pipeline.ExitFailure, err
	}

	if err := logger.Init(logger.Config{
		Level:    cfg.Observability.LogLevel,
		Encoding: cfg.Observability.LogFormat,
	}); err != nil {
		return pipeline.ExitFailure, err
	}
	defer func() { _ = logger.Sync() }()
	log := logger.With(zap.String("component", "boardlake-cli"))

	shutdown, err := observability.InitTracing(observability.TracingConfig{
		Enabled:        cfg.Observability.EnableTracing,
		ServiceName:    "boardlake",
		ServiceVersion: version,
		SamplingRate:   cfg.Observability.TracingSampleRate,
	})
	if err != nil {
		return pipeline.ExitFailure, err
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	p, closeStore, err := build(ctx, cfg, log)
	if err != nil {
		return pipeline.ExitFailure, err
	}
	defer closeStore()

	summary, runErr := p.Run(ctx, board.ParsePartitions(cfg.Extraction.Partitions))

	enc := gojson.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		log.Error("failed to print run summary", zap.Error(err))
	}

	pushCtx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()
	if err := metrics.Push(pushCtx, cfg.Observability.PushGatewayURL, cfg.Observability.JobName, summary.RunID); err != nil {
		log.Warn("failed to push run metrics", zap.Error(err))
	}

	if runErr != nil {
		log.Error("run did not complete", zap.String("status", string(summary.Status)), zap.Error(runErr))
	}
	return summary.ExitCode(), nil
}

// build wires the fetcher, object store and writer into a pipeline.
func build(ctx context.Context, cfg *config.Config, log *zap.Logger) (*pipeline.Pipeline, func(), error) {
	token, err := cfg.Upstream.ResolveCredential()
	if err != nil {
		return nil, nil, err
	}

	client, err := board.NewClient(board.ClientConfig{
		URL:            cfg.Upstream.URL,
		Token:          token,
		APIVersion:     cfg.Upstream.APIVersion,
		PageSize:       cfg.Extraction.PageSize,
		RequestTimeout: cfg.Upstream.RequestTimeout,
		RateLimit:      cfg.Upstream.RateLimitPerSec,
		RateBurst:      cfg.Upstream.RateBurst,
	}, log)
	if err != nil {
		return nil, nil, err
	}

	loc, err := storage.ParseURI(cfg.Destination.Prefix)
	if err != nil {
		return nil, nil, err
	}
	store, err := storage.Open(ctx, loc, storage.Config{
		Region:   cfg.Destination.Region,
		Endpoint: cfg.Destination.Endpoint,
	}, log)
	if err != nil {
		return nil, nil, err
	}
	closeStore := func() {
		if err := store.Close(); err != nil {
			log.Warn("failed to close object store", zap.Error(err))
		}
	}

	writer, err := columnar.NewWriter(store, columnar.WriterConfig{Compression: cfg.Destination.Compression}, log)
	if err != nil {
		closeStore()
		return nil, nil, err
	}

	retry := pipeline.DefaultRetryPolicy()
	retry.MaxAttempts = cfg.Reliability.RetryAttempts
	if cfg.Reliability.RetryDelay > 0 {
		retry.InitialDelay = cfg.Reliability.RetryDelay
	}
	if cfg.Reliability.RetryMultiplier > 0 {
		retry.Multiplier = cfg.Reliability.RetryMultiplier
	}
	if cfg.Reliability.MaxRetryDelay > 0 {
		retry.MaxDelay = cfg.Reliability.MaxRetryDelay
	}

	log.Info("pipeline configured",
		zap.String("upstream", cfg.Upstream.URL),
		zap.String("destination", loc.String()),
		zap.Int("partitions", len(cfg.Extraction.Partitions)),
		zap.Int("page_size", client.PageSize()),
		zap.Int("retry_attempts", retry.MaxAttempts),
		zap.Duration("run_deadline", cfg.Reliability.RunDeadline))

	p := pipeline.New(client, writer, pipeline.Config{
		DestinationPrefix: loc.String(),
		RunID:             cfg.Extraction.RunID,
		MaxConcurrency:    cfg.Extraction.MaxConcurrency,
		RunDeadline:       cfg.Reliability.RunDeadline,
		WriteTimeout:      cfg.Destination.WriteTimeout,
		Retry:             retry,
	}, log)
	return p, closeStore, nil
}
