// Package board fetches paginated item records for one board (partition) at a
// time from the upstream GraphQL API.
package board

import (
	"strings"
)

// Partition identifies one independently fetchable board.
type Partition struct {
	ID   string `json:"partition_id"`
	Name string `json:"name,omitempty"`
}

// ParsePartition parses "id" or "id:display name".
func ParsePartition(s string) Partition {
	id, name, _ := strings.Cut(strings.TrimSpace(s), ":")
	return Partition{ID: strings.TrimSpace(id), Name: strings.TrimSpace(name)}
}

// ParsePartitions parses a list of partition specs, dropping blanks and
// duplicate ids while preserving first-seen order.
func ParsePartitions(specs []string) []Partition {
	seen := make(map[string]struct{}, len(specs))
	out := make([]Partition, 0, len(specs))
	for _, s := range specs {
		p := ParsePartition(s)
		if p.ID == "" {
			continue
		}
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out
}

// Page is one fetch result. An empty NextCursor means the partition is exhausted.
type Page struct {
	Items      []Item
	NextCursor string
}

// HasMore reports whether another page remains for the partition.
func (p *Page) HasMore() bool {
	return p.NextCursor != ""
}

// Item is one raw board item as returned by the upstream.
type Item struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	State        string        `json:"state,omitempty"`
	CreatedAt    string        `json:"created_at,omitempty"`
	UpdatedAt    string        `json:"updated_at,omitempty"`
	Board        *BoardRef     `json:"board,omitempty"`
	Group        *GroupRef     `json:"group,omitempty"`
	ColumnValues []ColumnValue `json:"column_values"`
}

// BoardRef is the parent collection an item references.
type BoardRef struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// GroupRef is the board group an item belongs to.
type GroupRef struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
}

// ColumnValue is one typed key/value attribute of an item. Value holds the
// upstream's JSON-encoded value and Text its rendered form; either may be nil.
type ColumnValue struct {
	ID    string  `json:"id"`
	Type  string  `json:"type"`
	Text  *string `json:"text"`
	Value *string `json:"value"`
}
