// Package metrics exposes Prometheus metrics for boardlake runs.
//
// # Overview
//
// A boardlake run is a short-lived batch job, so metrics are registered with
// the default registry through promauto and, when a Pushgateway URL is
// configured, pushed once at the end of the run:
//
//	metrics.PagesFetched.WithLabelValues(partitionID).Inc()
//	metrics.FetchAttempts.WithLabelValues(metrics.OutcomeTransient).Inc()
//
//	timer := metrics.NewTimer()
//	page, err := fetcher.Fetch(ctx, partitionID, cursor)
//	metrics.FetchLatency.Observe(timer.Stop().Seconds())
//
//	// at exit
//	if err := metrics.Push(ctx, cfg.PushGatewayURL, cfg.JobName, runID); err != nil {
//	    logger.Warn("failed to push metrics", zap.Error(err))
//	}
//
// # Metric Types
//
// Counters track pages, rows, skipped records, fetch attempts by outcome and
// partition terminal states. Gauges record the last run's duration, status
// and completion time, which is the usual shape for Pushgateway batch jobs.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Fetch attempt outcomes.
const (
	OutcomeSuccess   = "success"
	OutcomeTransient = "transient"
	OutcomeFatal     = "fatal"
	OutcomeDeadline  = "deadline"
)

var (
	// PagesFetched counts pages successfully fetched.
	// Labels: partition
	PagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boardlake_pages_fetched_total",
			Help: "Total number of pages fetched",
		},
		[]string{"partition"},
	)

	// FetchAttempts counts page fetch attempts by outcome.
	// Labels: outcome (success/transient/fatal/deadline)
	FetchAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boardlake_fetch_attempts_total",
			Help: "Total number of page fetch attempts by outcome",
		},
		[]string{"outcome"},
	)

	// FetchLatency is the distribution of single page fetch latencies in seconds.
	FetchLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "boardlake_fetch_latency_seconds",
			Help: "Page fetch latency in seconds",
			Buckets: []float64{
				0.05, // fast cached responses
				0.1,
				0.25,
				0.5,
				1,
				2.5,
				5,
				10,
				30, // request timeout territory
			},
		},
	)

	// RowsNormalized counts rows produced by normalization.
	// Labels: partition
	RowsNormalized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boardlake_rows_normalized_total",
			Help: "Total number of rows produced by normalization",
		},
		[]string{"partition"},
	)

	// RecordsSkipped counts raw records skipped as unrecoverable.
	// Labels: partition
	RecordsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boardlake_records_skipped_total",
			Help: "Total number of raw records skipped during normalization",
		},
		[]string{"partition"},
	)

	// PartitionsFinished counts partitions by terminal state.
	// Labels: state (done/failed)
	PartitionsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boardlake_partitions_finished_total",
			Help: "Total number of partitions by terminal state",
		},
		[]string{"state"},
	)

	// RowsWritten counts rows committed to the destination.
	RowsWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "boardlake_rows_written_total",
			Help: "Total number of rows committed to the destination",
		},
	)

	// BytesWritten counts payload bytes committed to the destination.
	BytesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "boardlake_bytes_written_total",
			Help: "Total number of payload bytes committed to the destination",
		},
	)

	// LastRunDuration is the wall time of the last run in seconds.
	LastRunDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "boardlake_last_run_duration_seconds",
			Help: "Duration of the last run in seconds",
		},
	)

	// LastRunStatus is 1 for the status the last run ended in and 0 otherwise.
	// Labels: status (success/partial_failure/total_failure)
	LastRunStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "boardlake_last_run_status",
			Help: "Terminal status of the last run",
		},
		[]string{"status"},
	)

	// LastRunCompletion is the unix time the last run finished.
	LastRunCompletion = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "boardlake_last_run_completion_timestamp_seconds",
			Help: "Unix time the last run finished",
		},
	)
)

// RecordRun sets the last-run gauges.
func RecordRun(status string, statuses []string, duration time.Duration) {
	for _, s := range statuses {
		v := 0.0
		if s == status {
			v = 1
		}
		LastRunStatus.WithLabelValues(s).Set(v)
	}
	LastRunDuration.Set(duration.Seconds())
	LastRunCompletion.SetToCurrentTime()
}

// Push sends every registered metric to a Pushgateway, grouped by job and
// run id. It is a no-op when url is empty.
func Push(ctx context.Context, url, job, runID string) error {
	if url == "" {
		return nil
	}
	pusher := push.New(url, job).Gatherer(prometheus.DefaultGatherer)
	if runID != "" {
		pusher = pusher.Grouping("run_id", runID)
	}
	return pusher.PushContext(ctx)
}

// Timer measures an operation's duration.
type Timer struct {
	start time.Time
}

// NewTimer starts timing immediately.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the elapsed time since creation. It can be called repeatedly.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
