package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/cespare/xxhash/v2"
	gojson "github.com/goccy/go-json"

	"github.com/ajitpratap0/boardlake/internal/board"
	"github.com/ajitpratap0/boardlake/pkg/errors"
)

// valueKind is how an attribute kind maps to a column value.
type valueKind int

const (
	kindText valueKind = iota
	kindNumber
	kindBool
)

// attributeKinds declares the column mapping for known attribute kinds.
// Kinds not listed use the text fallback.
var attributeKinds = map[string]valueKind{
	"numbers":         kindNumber,
	"numeric":         kindNumber,
	"rating":          kindNumber,
	"checkbox":        kindBool,
	"text":            kindText,
	"long_text":       kindText,
	"status":          kindText,
	"color":           kindText,
	"dropdown":        kindText,
	"email":           kindText,
	"phone":           kindText,
	"link":            kindText,
	"people":          kindText,
	"multiple-person": kindText,
	"timeline":        kindText,
	"timerange":       kindText,
	"date":            kindText,
	"hour":            kindText,
	"week":            kindText,
	"country":         kindText,
	"location":        kindText,
	"tags":            kindText,
	"board-relation":  kindText,
	"board_relation":  kindText,
	"mirror":          kindText,
	"lookup":          kindText,
	"formula":         kindText,
	"name":            kindText,
}

// Normalize flattens items of one partition into rows. Items that cannot be
// normalized are skipped; one error per skipped item is returned alongside
// the rows that succeeded. Normalize has no side effects.
func Normalize(items []board.Item, partitionID string, ingestedAt time.Time) ([]Row, []error) {
	stamp := FormatTimestamp(ingestedAt)
	rows := make([]Row, 0, len(items))
	var errs []error

	for i := range items {
		row, err := normalizeItem(&items[i], partitionID, stamp)
		if err != nil {
			errs = append(errs, err.WithDetail("index", i))
			continue
		}
		rows = append(rows, row)
	}

	return rows, errs
}

func normalizeItem(item *board.Item, partitionID, stamp string) (Row, *errors.Error) {
	if strings.TrimSpace(item.ID) == "" {
		return nil, errors.New(errors.ErrorTypeNormalization, "item has no id").
			WithDetail("partition_id", partitionID)
	}

	row := Row{
		ColumnID:          item.ID,
		ColumnName:        item.Name,
		ColumnPartitionID: partitionID,
		ColumnIngestedAt:  stamp,
		ColumnLoadedAt:    stamp,
	}

	if item.State != "" {
		row[ColumnState] = item.State
	}
	if item.CreatedAt != "" {
		row[ColumnCreatedAt] = parseTime(item.CreatedAt)
	}
	if item.UpdatedAt != "" {
		row[ColumnUpdatedAt] = parseTime(item.UpdatedAt)
	}
	if item.Board != nil {
		row[ColumnBoardID] = item.Board.ID
		if item.Board.Name != "" {
			row[ColumnBoardName] = item.Board.Name
		}
	}
	if item.Group != nil {
		row[ColumnGroupID] = item.Group.ID
		if item.Group.Title != "" {
			row[ColumnGroupTitle] = item.Group.Title
		}
	}

	for _, cv := range item.ColumnValues {
		if cv.ID == "" {
			continue
		}
		row[AttributeColumn(cv.ID)] = attributeValue(cv)
	}

	return row, nil
}

// AttributeColumn returns the output column for an attribute id. Ids made
// only of lowercase letters, digits and underscores map to col_<id>. Any
// other id is sanitized and suffixed with a hash of the raw id, so ids that
// sanitize alike ("text-1" and "text_1", "Status" and "status") still land
// in distinct columns on every row of every run.
func AttributeColumn(attributeID string) string {
	var b strings.Builder
	b.Grow(len(attributePrefix) + len(attributeID) + 9)
	b.WriteString(attributePrefix)
	exact := true
	for _, r := range attributeID {
		switch {
		case r == '_' || unicode.IsDigit(r) || (unicode.IsLetter(r) && unicode.ToLower(r) == r):
			b.WriteRune(r)
		case unicode.IsLetter(r):
			b.WriteRune(unicode.ToLower(r))
			exact = false
		default:
			b.WriteByte('_')
			exact = false
		}
	}
	if !exact {
		fmt.Fprintf(&b, "_%08x", uint32(xxhash.Sum64String(attributeID)))
	}
	return b.String()
}

func attributeValue(cv board.ColumnValue) interface{} {
	switch attributeKinds[cv.Type] {
	case kindNumber:
		if cv.Text == nil || strings.TrimSpace(*cv.Text) == "" {
			return nil
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(*cv.Text), 64); err == nil {
			return f
		}
	case kindBool:
		if b, ok := checked(cv.Value); ok {
			return b
		}
		if cv.Value == nil && cv.Text == nil {
			return nil
		}
	}
	return textual(cv)
}

// checked reads {"checked": true} or {"checked": "true"}.
func checked(value *string) (bool, bool) {
	if value == nil {
		return false, false
	}
	var v struct {
		Checked interface{} `json:"checked"`
	}
	if err := gojson.Unmarshal([]byte(*value), &v); err != nil {
		return false, false
	}
	switch c := v.Checked.(type) {
	case bool:
		return c, true
	case string:
		b, err := strconv.ParseBool(c)
		return b, err == nil
	default:
		return false, false
	}
}

// textual is the stringify fallback: rendered text, else the raw value. Empty
// attributes are null.
func textual(cv board.ColumnValue) interface{} {
	if cv.Text != nil && *cv.Text != "" {
		return *cv.Text
	}
	if cv.Value != nil && *cv.Value != "" && *cv.Value != "null" {
		return *cv.Value
	}
	return nil
}

// parseTime returns a UTC time for RFC 3339 input and the original text otherwise.
func parseTime(s string) interface{} {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return s
	}
	return t.UTC()
}
