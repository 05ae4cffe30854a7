package columnar

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/apache/arrow-go/v18/parquet/compress"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/ajitpratap0/boardlake/internal/normalize"
	"github.com/ajitpratap0/boardlake/internal/runid"
	"github.com/ajitpratap0/boardlake/internal/storage"
	"github.com/ajitpratap0/boardlake/pkg/errors"
)

// RunOutput describes the committed artifact of one run.
type RunOutput struct {
	URI      string   `json:"uri"`
	Bucket   string   `json:"bucket,omitempty"`
	Key      string   `json:"key"`
	RunID    string   `json:"run_id"`
	Date     string   `json:"date"`
	Rows     int64    `json:"rows"`
	Bytes    int64    `json:"bytes"`
	Columns  []string `json:"columns"`
	Widened  []string `json:"widened_columns,omitempty"`
	Checksum string   `json:"sha256"`
}

// WriterConfig configures a Writer.
type WriterConfig struct {
	Compression string
}

// Writer serializes a run's rows and commits them with one put.
type Writer struct {
	store  storage.ObjectStore
	codec  compress.Compression
	logger *zap.Logger
}

// NewWriter creates a writer committing to store.
func NewWriter(store storage.ObjectStore, cfg WriterConfig, logger *zap.Logger) (*Writer, error) {
	codec, err := ParseCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{
		store:  store,
		codec:  codec,
		logger: logger.With(zap.String("component", "columnar_writer")),
	}, nil
}

// Write encodes every row into one Parquet payload and puts it at
// {prefix}/{calendar_date}/{run_id}.parquet. There is no append path: either
// the complete object is committed or an ErrorTypeWrite error is returned and
// nothing is visible.
func (w *Writer) Write(ctx context.Context, rows []normalize.Row, prefix, runID string) (*RunOutput, error) {
	ctx, span := otel.Tracer("boardlake/columnar").Start(ctx, "columnar.write")
	defer span.End()

	out, err := w.write(ctx, rows, prefix, runID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		return nil, err
	}
	span.SetAttributes(
		attribute.String("uri", out.URI),
		attribute.Int64("rows", out.Rows),
		attribute.Int64("bytes", out.Bytes),
	)
	return out, nil
}

func (w *Writer) write(ctx context.Context, rows []normalize.Row, prefix, runID string) (*RunOutput, error) {
	if len(rows) == 0 {
		return nil, errors.New(errors.ErrorTypeNoData, "no rows to write")
	}
	date, ok := runid.Date(runID)
	if !ok || !runid.Valid(runID) {
		return nil, errors.Newf(errors.ErrorTypeConfig, "invalid run id %q", runID)
	}

	loc, err := storage.ParseURI(prefix)
	if err != nil {
		return nil, err
	}
	if loc.Scheme != w.store.Scheme() {
		return nil, errors.Newf(errors.ErrorTypeConfig, "destination scheme %q does not match store %q",
			loc.Scheme, w.store.Scheme())
	}

	schema := InferSchema(rows)
	widened := schema.WidenedColumns()
	if len(widened) > 0 {
		w.logger.Warn("column types widened to a common supertype",
			zap.Strings("columns", widened))
	}

	w.logger.Info("encoding table",
		zap.Int("rows", len(rows)),
		zap.Int("columns", len(schema.Columns)))

	payload, err := Encode(rows, schema, w.codec)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeWrite, "failed to serialize rows")
	}

	sum := sha256.Sum256(payload)
	checksum := hex.EncodeToString(sum[:])
	key := loc.Key(date, runID+Extension)

	obj := &storage.Object{
		Bucket:      loc.Bucket,
		Key:         key,
		Body:        payload,
		ContentType: ContentType,
		Metadata: map[string]string{
			"run-id":  runID,
			"rows":    strconv.Itoa(len(rows)),
			"columns": strconv.Itoa(len(schema.Columns)),
			"sha256":  checksum,
		},
	}

	if err := w.store.Put(ctx, obj); err != nil {
		if errors.IsType(err, errors.ErrorTypeWrite) {
			return nil, err
		}
		return nil, errors.Wrap(err, errors.ErrorTypeWrite, "failed to commit run output")
	}

	return &RunOutput{
		URI:      loc.URI(key),
		Bucket:   loc.Bucket,
		Key:      key,
		RunID:    runID,
		Date:     date,
		Rows:     int64(len(rows)),
		Bytes:    int64(len(payload)),
		Columns:  schema.Names(),
		Widened:  widened,
		Checksum: checksum,
	}, nil
}
