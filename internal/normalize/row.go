// Package normalize flattens raw board items into uniform tabular rows.
//
// A Row is a flat map from column name to a typed value (string, int64,
// float64, bool, time.Time or nil). Rows produced from different boards may
// carry different columns; FieldSet tracks the superset so the final table can
// be made rectangular once every partition has been drained.
package normalize

import (
	"sort"
	"time"
)

// TimestampLayout is the fixed ingested_at format.
const TimestampLayout = "2006-01-02T15:04:05Z"

// Well known column names.
const (
	ColumnID          = "id"
	ColumnName        = "name"
	ColumnState       = "state"
	ColumnBoardID     = "board_id"
	ColumnBoardName   = "board_name"
	ColumnGroupID     = "group_id"
	ColumnGroupTitle  = "group_title"
	ColumnCreatedAt   = "created_at"
	ColumnUpdatedAt   = "updated_at"
	ColumnPartitionID = "partition_id"
	ColumnIngestedAt  = "ingested_at"
	// ColumnLoadedAt mirrors ingested_at for existing downstream tables
	ColumnLoadedAt = "loaded_at"

	attributePrefix = "col_"
)

// identityColumns lead every table in this order; everything else follows
// lexically.
var identityColumns = []string{
	ColumnID,
	ColumnName,
	ColumnBoardID,
	ColumnBoardName,
	ColumnGroupID,
	ColumnGroupTitle,
	ColumnState,
	ColumnCreatedAt,
	ColumnUpdatedAt,
	ColumnPartitionID,
	ColumnIngestedAt,
	ColumnLoadedAt,
}

// Row is one normalized record.
type Row map[string]interface{}

// FieldSet is the superset of column names seen across a run. The zero value
// is ready to use. It is not safe for concurrent use.
type FieldSet struct {
	names map[string]struct{}
}

// Add records every column of row.
func (fs *FieldSet) Add(row Row) {
	if fs.names == nil {
		fs.names = make(map[string]struct{}, len(row))
	}
	for name := range row {
		fs.names[name] = struct{}{}
	}
}

// AddRows records the columns of all rows.
func (fs *FieldSet) AddRows(rows []Row) {
	for _, r := range rows {
		fs.Add(r)
	}
}

// Len returns the number of distinct columns.
func (fs *FieldSet) Len() int {
	return len(fs.names)
}

// Has reports whether name has been seen.
func (fs *FieldSet) Has(name string) bool {
	_, ok := fs.names[name]
	return ok
}

// Columns returns the deterministic column order: identity columns that were
// seen, in their fixed order, followed by the remaining columns sorted.
func (fs *FieldSet) Columns() []string {
	cols := make([]string, 0, len(fs.names))
	leading := make(map[string]struct{}, len(identityColumns))
	for _, name := range identityColumns {
		leading[name] = struct{}{}
		if fs.Has(name) {
			cols = append(cols, name)
		}
	}

	rest := make([]string, 0, len(fs.names))
	for name := range fs.names {
		if _, ok := leading[name]; !ok {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)

	return append(cols, rest...)
}

// Fill null-fills every column in the set that a row lacks, making rows
// rectangular.
func (fs *FieldSet) Fill(rows []Row) {
	for _, row := range rows {
		for name := range fs.names {
			if _, ok := row[name]; !ok {
				row[name] = nil
			}
		}
	}
}

// FormatTimestamp renders t in TimestampLayout (UTC).
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
