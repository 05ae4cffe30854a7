// Package columnar serializes a run's rows into a single Parquet object and
// commits it with one durable put.
package columnar

import (
	"fmt"
	"strconv"
	"time"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/ajitpratap0/boardlake/internal/normalize"
)

// ColumnType is the inferred physical type of a column.
type ColumnType string

const (
	TypeString    ColumnType = "string"
	TypeInt64     ColumnType = "int64"
	TypeFloat64   ColumnType = "float64"
	TypeBool      ColumnType = "bool"
	TypeTimestamp ColumnType = "timestamp"
)

// Column is one inferred output column.
type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
	// Widened is set when observed values disagreed and the type was
	// promoted to a common supertype
	Widened bool `json:"widened,omitempty"`
}

// Schema is the ordered column list of a run's table.
type Schema struct {
	Columns []Column
}

// Names returns the column names in order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// WidenedColumns returns the names of columns whose type was promoted.
func (s *Schema) WidenedColumns() []string {
	var out []string
	for _, c := range s.Columns {
		if c.Widened {
			out = append(out, c.Name)
		}
	}
	return out
}

// Arrow converts the schema to an Arrow schema with nullable fields.
func (s *Schema) Arrow() *arrow.Schema {
	fields := make([]arrow.Field, len(s.Columns))
	for i, c := range s.Columns {
		fields[i] = arrow.Field{Name: c.Name, Type: arrowType(c.Type), Nullable: true}
	}
	return arrow.NewSchema(fields, nil)
}

func arrowType(t ColumnType) arrow.DataType {
	switch t {
	case TypeInt64:
		return arrow.PrimitiveTypes.Int64
	case TypeFloat64:
		return arrow.PrimitiveTypes.Float64
	case TypeBool:
		return arrow.FixedWidthTypes.Boolean
	case TypeTimestamp:
		return &arrow.TimestampType{Unit: arrow.Millisecond, TimeZone: "UTC"}
	default:
		return arrow.BinaryTypes.String
	}
}

// InferSchema derives one type per column over every row. Columns come from
// the superset of row keys in normalize.FieldSet order. A column whose values
// are all null is a string column. Mixed int64 and float64 widen to float64;
// any other mix widens to string.
func InferSchema(rows []normalize.Row) *Schema {
	var fs normalize.FieldSet
	fs.AddRows(rows)

	names := fs.Columns()
	schema := &Schema{Columns: make([]Column, 0, len(names))}
	for _, name := range names {
		seen := make(map[ColumnType]struct{}, 2)
		for _, row := range rows {
			if t, ok := valueType(row[name]); ok {
				seen[t] = struct{}{}
			}
		}
		schema.Columns = append(schema.Columns, resolve(name, seen))
	}
	return schema
}

func resolve(name string, seen map[ColumnType]struct{}) Column {
	switch len(seen) {
	case 0:
		return Column{Name: name, Type: TypeString}
	case 1:
		for t := range seen {
			return Column{Name: name, Type: t}
		}
	case 2:
		_, hasInt := seen[TypeInt64]
		_, hasFloat := seen[TypeFloat64]
		if hasInt && hasFloat {
			return Column{Name: name, Type: TypeFloat64, Widened: true}
		}
	}
	return Column{Name: name, Type: TypeString, Widened: true}
}

func valueType(v interface{}) (ColumnType, bool) {
	switch v.(type) {
	case nil:
		return "", false
	case string:
		return TypeString, true
	case int, int32, int64:
		return TypeInt64, true
	case float32, float64:
		return TypeFloat64, true
	case bool:
		return TypeBool, true
	case time.Time:
		return TypeTimestamp, true
	default:
		return TypeString, true
	}
}

// stringify renders any supported value for a string column.
func stringify(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprintf("%v", x)
	}
}
