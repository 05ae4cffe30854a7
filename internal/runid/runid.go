// Package runid generates and parses run identifiers.
//
// A run id is the run's UTC start time in 2006_01_02_15_04_05 form followed
// by an underscore and eight hex characters, for example
// 2024_03_05_14_07_09_1f3a9c2e. The time prefix keeps object keys sortable;
// the suffix keeps two runs started in the same second apart.
//
// Operators may pick their own suffix (2024_03_05_00_00_00_nightly) but the
// timestamp prefix is mandatory: ingested_at and the date partition are read
// back from it, so a fixed id always reproduces the same object.
package runid

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Layout is the time portion of a run id.
const Layout = "2006_01_02_15_04_05"

// DateLayout is the calendar date partition derived from a run id.
const DateLayout = "2006-01-02"

// New returns a fresh run id for start.
func New(start time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return start.UTC().Format(Layout) + "_" + suffix
}

// Time extracts the reference time encoded in id. ok is false when id does
// not start with a Layout timestamp.
func Time(id string) (t time.Time, ok bool) {
	if len(id) < len(Layout) {
		return time.Time{}, false
	}
	t, err := time.Parse(Layout, id[:len(Layout)])
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// Date returns the calendar date partition encoded in id. ok is false when
// id does not start with a Layout timestamp.
func Date(id string) (date string, ok bool) {
	t, ok := Time(id)
	if !ok {
		return "", false
	}
	return t.Format(DateLayout), true
}

// Valid reports whether id starts with a Layout timestamp, optionally
// followed by "_" and a suffix, and is usable as an object name.
func Valid(id string) bool {
	if len(id) > 128 {
		return false
	}
	if _, ok := Time(id); !ok {
		return false
	}
	rest := id[len(Layout):]
	if rest == "" {
		return true
	}
	if rest[0] != '_' || len(rest) == 1 {
		return false
	}
	for _, r := range rest[1:] {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-', r == '.':
		default:
			return false
		}
	}
	return true
}
