package columnar

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/ajitpratap0/boardlake/internal/normalize"
	"github.com/ajitpratap0/boardlake/pkg/errors"
)

const (
	// ContentType of the committed object
	ContentType = "application/vnd.apache.parquet"
	// Extension of the committed object
	Extension = ".parquet"

	defaultBatchSize = 64 * 1024
	createdBy        = "boardlake"
)

// ParseCompression maps a codec name to a Parquet compression codec. An empty
// name means snappy.
func ParseCompression(name string) (compress.Compression, error) {
	switch strings.ToLower(name) {
	case "", "snappy":
		return compress.Codecs.Snappy, nil
	case "zstd":
		return compress.Codecs.Zstd, nil
	case "gzip":
		return compress.Codecs.Gzip, nil
	case "none", "uncompressed":
		return compress.Codecs.Uncompressed, nil
	default:
		return compress.Codecs.Uncompressed, errors.Newf(errors.ErrorTypeConfig, "unsupported compression %q", name)
	}
}

// Encode serializes rows under schema into a complete Parquet file. Encoder
// settings are fixed and no wall-clock metadata is written, so equal input
// yields equal bytes.
func Encode(rows []normalize.Row, schema *Schema, codec compress.Compression) ([]byte, error) {
	mem := memory.NewGoAllocator()
	arrowSchema := schema.Arrow()

	props := parquet.NewWriterProperties(
		parquet.WithAllocator(mem),
		parquet.WithCompression(codec),
		parquet.WithDictionaryDefault(true),
		parquet.WithStats(true),
		parquet.WithCreatedBy(createdBy),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(
		pqarrow.WithAllocator(mem),
		pqarrow.WithStoreSchema(),
	)

	var buf bytes.Buffer
	fw, err := pqarrow.NewFileWriter(arrowSchema, &buf, props, arrowProps)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSerialization, "failed to create Parquet writer")
	}

	builder := array.NewRecordBuilder(mem, arrowSchema)
	defer builder.Release()

	for start := 0; start < len(rows); start += defaultBatchSize {
		end := start + defaultBatchSize
		if end > len(rows) {
			end = len(rows)
		}

		for _, row := range rows[start:end] {
			for i, col := range schema.Columns {
				if err := appendValue(builder.Field(i), col, row[col.Name]); err != nil {
					_ = fw.Close()
					return nil, err
				}
			}
		}

		rec := builder.NewRecord()
		err := fw.Write(rec)
		rec.Release()
		if err != nil {
			_ = fw.Close()
			return nil, errors.Wrap(err, errors.ErrorTypeSerialization, "failed to write record batch")
		}
	}

	if err := fw.Close(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSerialization, "failed to close Parquet writer")
	}

	return buf.Bytes(), nil
}

func appendValue(b array.Builder, col Column, value interface{}) error {
	if value == nil {
		b.AppendNull()
		return nil
	}

	switch fb := b.(type) {
	case *array.StringBuilder:
		fb.Append(stringify(value))

	case *array.Int64Builder:
		switch v := value.(type) {
		case int:
			fb.Append(int64(v))
		case int32:
			fb.Append(int64(v))
		case int64:
			fb.Append(v)
		default:
			return mismatch(col, value)
		}

	case *array.Float64Builder:
		switch v := value.(type) {
		case float32:
			fb.Append(float64(v))
		case float64:
			fb.Append(v)
		case int:
			fb.Append(float64(v))
		case int32:
			fb.Append(float64(v))
		case int64:
			fb.Append(float64(v))
		default:
			return mismatch(col, value)
		}

	case *array.BooleanBuilder:
		v, ok := value.(bool)
		if !ok {
			return mismatch(col, value)
		}
		fb.Append(v)

	case *array.TimestampBuilder:
		v, ok := value.(time.Time)
		if !ok {
			return mismatch(col, value)
		}
		fb.Append(arrow.Timestamp(v.UTC().UnixMilli()))

	default:
		return errors.Newf(errors.ErrorTypeSerialization, "unsupported builder type %T", b)
	}

	return nil
}

func mismatch(col Column, value interface{}) error {
	return errors.New(errors.ErrorTypeSerialization,
		fmt.Sprintf("value of type %T does not fit %s column", value, col.Type)).
		WithDetail("column", col.Name)
}
