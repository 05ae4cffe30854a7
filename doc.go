// Package boardlake extracts board items from a GraphQL work-management API and
// lands them in object storage as one columnar (Parquet) object per run.
//
// A run drains every configured board (a partition) page by page, flattens
// each item into a row, merges the rows of the boards that completed and
// commits them with a single put to
//
//	{destination}/{YYYY-MM-DD}/{run_id}.parquet
//
// Partial results are never written incrementally: the object either appears
// complete or not at all. Boards that fail are reported in the run summary
// and the process exits with status 3; when no board completes nothing is
// written and the exit status is 1.
//
// # Architecture
//
// The module is organised as a small pipeline of internal packages:
//
//  1. internal/board fetches one page of items per call, classifying upstream
//     failures as transient (retried) or fatal.
//  2. internal/normalize flattens items into rows with a stable column set.
//  3. internal/pipeline runs a fetch state machine per partition with bounded
//     concurrency, retries with exponential backoff and an overall deadline.
//  4. internal/columnar infers an Arrow schema, encodes Parquet and commits it
//     through internal/storage (S3, GCS or the local filesystem).
//
// Shared concerns live in pkg: typed errors, zap logging, viper
// configuration, Prometheus run metrics and OpenTelemetry tracing.
//
// # Quick Start
//
// Generate a configuration file and run an extraction:
//
//	boardlake config init -o boardlake.yaml
//	export BOARDLAKE_API_TOKEN=...
//	boardlake run -c boardlake.yaml
//
// Any setting can be overridden by flag or BOARDLAKE_* environment variable:
//
//	boardlake run -p 1234567890 -p 9876543210 -d file:///tmp/boardlake \
//	    --run-id 2024_05_01_10_00_00_deadbeef
//
// Re-running with the same run id overwrites the same object with identical
// content.
package boardlake
