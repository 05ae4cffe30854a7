package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/boardlake/internal/board"
	"github.com/ajitpratap0/boardlake/internal/columnar"
	"github.com/ajitpratap0/boardlake/internal/normalize"
	"github.com/ajitpratap0/boardlake/internal/runid"
	"github.com/ajitpratap0/boardlake/pkg/errors"
	"github.com/ajitpratap0/boardlake/pkg/logger"
	"github.com/ajitpratap0/boardlake/pkg/metrics"
)

const defaultWriteTimeout = 2 * time.Minute

// Fetcher returns one page of a partition per call.
type Fetcher interface {
	Fetch(ctx context.Context, partitionID, cursor string) (*board.Page, error)
}

// Writer commits a run's rows once.
type Writer interface {
	Write(ctx context.Context, rows []normalize.Row, prefix, runID string) (*columnar.RunOutput, error)
}

// Config controls a run.
type Config struct {
	// DestinationPrefix is the object store URI prefix
	DestinationPrefix string
	// RunID fixes the run identifier; generated when empty
	RunID string
	// MaxConcurrency bounds partitions drained in parallel (default 1)
	MaxConcurrency int
	// RunDeadline bounds draining all partitions; 0 disables it
	RunDeadline time.Duration
	// WriteTimeout bounds the final put. It runs outside RunDeadline.
	WriteTimeout time.Duration
	Retry        *RetryPolicy
	Clock        func() time.Time
}

// Pipeline runs extractions. A Pipeline keeps no state between runs.
type Pipeline struct {
	fetcher Fetcher
	writer  Writer
	cfg     Config
	logger  *zap.Logger
}

// New creates a pipeline.
func New(fetcher Fetcher, writer Writer, cfg Config, log *zap.Logger) *Pipeline {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Retry == nil {
		cfg.Retry = DefaultRetryPolicy()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		fetcher: fetcher,
		writer:  writer,
		cfg:     cfg,
		logger:  log.With(zap.String("component", "pipeline")),
	}
}

// Run drains every partition, then writes the merged rows of the DONE
// partitions once. The summary is always returned. The error is non-nil only
// when no partition succeeded or the write failed.
func (p *Pipeline) Run(ctx context.Context, partitions []board.Partition) (*RunSummary, error) {
	started := p.cfg.Clock()
	id := p.cfg.RunID
	if id == "" {
		id = runid.New(started)
	}
	// ingested_at comes from the id so a rerun with a fixed id is byte-identical
	ingestedAt, _ := runid.Time(id)

	ctx = logger.ContextWithRunID(ctx, id)
	ctx, span := otel.Tracer("boardlake/pipeline").Start(ctx, "pipeline.run")
	defer span.End()
	span.SetAttributes(attribute.String("run_id", id), attribute.Int("partitions", len(partitions)))

	log := logger.WithContext(ctx, p.logger)
	summary := &RunSummary{
		RunID:     id,
		StartedAt: started.UTC(),
	}
	defer func() {
		summary.ElapsedSeconds = time.Since(started).Seconds()
		metrics.RecordRun(string(summary.Status), statusNames(), time.Since(started))
	}()

	if !runid.Valid(id) {
		summary.Status = StatusTotalFailure
		err := errors.Newf(errors.ErrorTypeConfig, "run id %q must start with a %s timestamp", id, runid.Layout)
		summary.Error = err.Error()
		return summary, err
	}

	if len(partitions) == 0 {
		summary.Status = StatusTotalFailure
		err := errors.New(errors.ErrorTypeConfig, "no partitions to extract")
		summary.Error = err.Error()
		return summary, err
	}

	summary.Partitions = make([]*PartitionResult, len(partitions))
	log.Info("run started",
		zap.Int("partitions", len(partitions)),
		zap.Int("max_concurrency", p.cfg.MaxConcurrency),
		zap.String("destination", p.cfg.DestinationPrefix))

	drainCtx := ctx
	if p.cfg.RunDeadline > 0 {
		var cancel context.CancelFunc
		drainCtx, cancel = context.WithTimeout(ctx, p.cfg.RunDeadline)
		defer cancel()
	}

	rows := make([][]normalize.Row, len(partitions))
	g := new(errgroup.Group)
	g.SetLimit(p.cfg.MaxConcurrency)
	for i, part := range partitions {
		g.Go(func() error {
			summary.Partitions[i], rows[i] = p.drain(drainCtx, part, ingestedAt)
			return nil
		})
	}
	// barrier: every partition is DONE or FAILED past this point
	_ = g.Wait()

	var merged []normalize.Row
	for i, res := range summary.Partitions {
		summary.TotalSkipped += res.Skipped
		if res.State == StateDone {
			merged = append(merged, rows[i]...)
		}
	}
	summary.TotalRows = int64(len(merged))

	done, failed := summary.Counts()
	switch {
	case done == 0:
		summary.Status = StatusTotalFailure
		err := errors.Newf(errors.ErrorTypeNoData, "all %d partitions failed", failed)
		summary.Error = err.Error()
		span.SetStatus(codes.Error, summary.Error)
		log.Error("run failed, nothing written", zap.Int("failed", failed))
		return summary, err
	case failed > 0:
		summary.Status = StatusPartialFailure
	default:
		summary.Status = StatusSuccess
	}

	if len(merged) == 0 {
		log.Warn("partitions completed without rows, nothing written",
			zap.Int("done", done),
			zap.Int("failed", failed))
		return summary, nil
	}

	var fields normalize.FieldSet
	fields.AddRows(merged)
	fields.Fill(merged)
	log.Info("table assembled",
		zap.Int("rows", len(merged)),
		zap.Int("columns", fields.Len()),
		zap.Int("done", done),
		zap.Int("failed", failed))

	// the write must not inherit the drain deadline
	writeCtx, cancel := context.WithTimeout(ctx, p.cfg.WriteTimeout)
	defer cancel()

	out, err := p.writer.Write(writeCtx, merged, p.cfg.DestinationPrefix, id)
	if err != nil {
		summary.Status = StatusWriteFailure
		if !errors.IsType(err, errors.ErrorTypeWrite) {
			err = errors.Wrap(err, errors.ErrorTypeWrite, "failed to write run output")
		}
		summary.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		log.Error("run output write failed", zap.Error(err))
		return summary, err
	}

	summary.Output = out
	metrics.RowsWritten.Add(float64(out.Rows))
	metrics.BytesWritten.Add(float64(out.Bytes))

	log.Info("run finished",
		zap.String("status", string(summary.Status)),
		zap.String("uri", out.URI),
		zap.Int64("rows", out.Rows),
		zap.Int64("bytes", out.Bytes))

	return summary, nil
}

// drain runs one partition's state machine to a terminal state.
func (p *Pipeline) drain(ctx context.Context, part board.Partition, ingestedAt time.Time) (*PartitionResult, []normalize.Row) {
	start := time.Now()
	res := &PartitionResult{PartitionID: part.ID, Name: part.Name, State: StateStart}

	ctx = logger.ContextWithPartition(ctx, part.ID)
	ctx, span := otel.Tracer("boardlake/pipeline").Start(ctx, "pipeline.partition")
	defer span.End()
	span.SetAttributes(attribute.String("partition_id", part.ID))

	log := logger.WithContext(ctx, p.logger)
	defer func() {
		res.ElapsedSeconds = time.Since(start).Seconds()
		metrics.PartitionsFinished.WithLabelValues(string(res.State)).Inc()
		if res.State == StateFailed {
			span.SetStatus(codes.Error, res.Error)
			log.Warn("partition failed",
				zap.String("error_type", string(res.ErrorType)),
				zap.String("error", res.Error),
				zap.Int("pages", res.Pages))
			return
		}
		log.Info("partition done",
			zap.Int64("rows", res.Rows),
			zap.Int("pages", res.Pages),
			zap.Int("skipped", res.Skipped),
			zap.Int("retries", res.Retries))
	}()

	var rows []normalize.Row
	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			res.fail(errors.Wrap(err, errors.ErrorTypeDeadline, "run deadline reached"))
			return res, nil
		}
		res.transition(StateFetching)

		page, err := p.fetchPage(ctx, part.ID, cursor, res, log)
		if err != nil {
			if ctx.Err() != nil && !errors.IsType(err, errors.ErrorTypeDeadline) {
				err = errors.Wrap(err, errors.ErrorTypeDeadline, "run deadline reached")
			}
			res.fail(err)
			return res, nil
		}
		res.Pages++
		metrics.PagesFetched.WithLabelValues(part.ID).Inc()

		pageRows, errs := normalize.Normalize(page.Items, part.ID, ingestedAt)
		for _, e := range errs {
			log.Warn("record skipped", zap.Error(e))
		}
		res.Skipped += len(errs)
		res.Rows += int64(len(pageRows))
		metrics.RowsNormalized.WithLabelValues(part.ID).Add(float64(len(pageRows)))
		metrics.RecordsSkipped.WithLabelValues(part.ID).Add(float64(len(errs)))
		rows = append(rows, pageRows...)

		if !page.HasMore() {
			res.transition(StateDone)
			return res, rows
		}
		cursor = page.NextCursor
	}
}

func (p *Pipeline) fetchPage(ctx context.Context, partitionID, cursor string, res *PartitionResult, log *zap.Logger) (*board.Page, error) {
	var page *board.Page
	err := p.cfg.Retry.ExecuteWithCondition(ctx, func() error {
		timer := metrics.NewTimer()
		var err error
		page, err = p.fetcher.Fetch(ctx, partitionID, cursor)
		metrics.FetchLatency.Observe(timer.Stop().Seconds())
		metrics.FetchAttempts.WithLabelValues(outcome(err)).Inc()
		if err == nil && page == nil {
			err = errors.New(errors.ErrorTypeFatalFetch, "fetcher returned no page")
		}
		return err
	}, errors.IsRetryable, func(attempt int, delay time.Duration, err error) {
		res.Retries++
		log.Warn("transient fetch failure, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err))
	})
	return page, err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.IsRetryable(err):
		return metrics.OutcomeTransient
	case errors.IsType(err, errors.ErrorTypeDeadline):
		return metrics.OutcomeDeadline
	default:
		return metrics.OutcomeFatal
	}
}

func statusNames() []string {
	names := make([]string, len(AllStatuses))
	for i, s := range AllStatuses {
		names[i] = string(s)
	}
	return names
}
