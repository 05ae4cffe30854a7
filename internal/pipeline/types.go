// Package pipeline drives page fetching for every partition of a run, feeds
// the normalizer and hands the merged rows to the columnar writer once.
package pipeline

import (
	"fmt"
	"time"

	"github.com/ajitpratap0/boardlake/internal/columnar"
	"github.com/ajitpratap0/boardlake/pkg/errors"
)

// PartitionState is a partition's position in its fetch state machine.
type PartitionState string

const (
	StateStart    PartitionState = "START"
	StateFetching PartitionState = "FETCHING"
	StateDone     PartitionState = "DONE"
	StateFailed   PartitionState = "FAILED"
)

// Terminal reports whether s is DONE or FAILED.
func (s PartitionState) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// transitions lists the allowed next states.
var transitions = map[PartitionState][]PartitionState{
	StateStart:    {StateFetching, StateFailed},
	StateFetching: {StateFetching, StateDone, StateFailed},
}

func canTransition(from, to PartitionState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// RunStatus is the overall outcome of a run.
type RunStatus string

const (
	StatusSuccess        RunStatus = "success"
	StatusPartialFailure RunStatus = "partial_failure"
	StatusTotalFailure   RunStatus = "total_failure"
	StatusWriteFailure   RunStatus = "write_failure"
)

// AllStatuses lists every RunStatus.
var AllStatuses = []RunStatus{StatusSuccess, StatusPartialFailure, StatusTotalFailure, StatusWriteFailure}

// Process exit codes derived from a RunStatus.
const (
	ExitSuccess        = 0
	ExitFailure        = 1
	ExitPartialFailure = 3
)

// PartitionResult is the outcome of draining one partition.
type PartitionResult struct {
	PartitionID    string           `json:"partition_id"`
	Name           string           `json:"name,omitempty"`
	State          PartitionState   `json:"state"`
	Rows           int64            `json:"rows"`
	Pages          int              `json:"pages"`
	Skipped        int              `json:"skipped"`
	Retries        int              `json:"retries"`
	ErrorType      errors.ErrorType `json:"error_type,omitempty"`
	Error          string           `json:"error,omitempty"`
	ElapsedSeconds float64          `json:"elapsed_seconds"`
}

// transition moves r to state to. Illegal transitions are programming errors.
func (r *PartitionResult) transition(to PartitionState) {
	if !canTransition(r.State, to) {
		panic(fmt.Sprintf("pipeline: illegal partition transition %s -> %s", r.State, to))
	}
	r.State = to
}

func (r *PartitionResult) fail(err error) {
	r.transition(StateFailed)
	r.ErrorType = errors.TypeOf(err)
	r.Error = err.Error()
}

// RunSummary reports per-partition outcomes and the written artifact. It is
// returned even when the run fails.
type RunSummary struct {
	RunID          string              `json:"run_id"`
	Status         RunStatus           `json:"status"`
	StartedAt      time.Time           `json:"started_at"`
	ElapsedSeconds float64             `json:"elapsed_seconds"`
	TotalRows      int64               `json:"total_rows"`
	TotalSkipped   int                 `json:"total_skipped"`
	Partitions     []*PartitionResult  `json:"partitions"`
	Output         *columnar.RunOutput `json:"output,omitempty"`
	Error          string              `json:"error,omitempty"`
}

// Partition returns the result for id, or nil.
func (s *RunSummary) Partition(id string) *PartitionResult {
	for _, p := range s.Partitions {
		if p.PartitionID == id {
			return p
		}
	}
	return nil
}

// Counts returns the number of DONE and FAILED partitions.
func (s *RunSummary) Counts() (done, failed int) {
	for _, p := range s.Partitions {
		switch p.State {
		case StateDone:
			done++
		case StateFailed:
			failed++
		}
	}
	return done, failed
}

// ExitCode maps the run status to a process exit code.
func (s *RunSummary) ExitCode() int {
	switch s.Status {
	case StatusSuccess:
		return ExitSuccess
	case StatusPartialFailure:
		return ExitPartialFailure
	default:
		return ExitFailure
	}
}
