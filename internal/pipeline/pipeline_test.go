package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/boardlake/internal/board"
	"github.com/ajitpratap0/boardlake/internal/columnar"
	"github.com/ajitpratap0/boardlake/internal/normalize"
	"github.com/ajitpratap0/boardlake/internal/storage"
	"github.com/ajitpratap0/boardlake/pkg/errors"
)

const testRunID = "2024_03_05_14_07_09_deadbeef"

// fakeFetcher serves scripted pages per partition. Each call pops the next
// response; errors are returned in place of a page.
type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string][]response
	calls     map[string]int
	block     map[string]bool
}

type response struct {
	page *board.Page
	err  error
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		responses: make(map[string][]response),
		calls:     make(map[string]int),
		block:     make(map[string]bool),
	}
}

func (f *fakeFetcher) pages(partitionID string, pages ...*board.Page) *fakeFetcher {
	for _, p := range pages {
		f.responses[partitionID] = append(f.responses[partitionID], response{page: p})
	}
	return f
}

func (f *fakeFetcher) fail(partitionID string, err error) *fakeFetcher {
	f.responses[partitionID] = append(f.responses[partitionID], response{err: err})
	return f
}

func (f *fakeFetcher) Fetch(ctx context.Context, partitionID, cursor string) (*board.Page, error) {
	f.mu.Lock()
	f.calls[partitionID]++
	blocking := f.block[partitionID]
	var next response
	queue := f.responses[partitionID]
	if len(queue) > 0 {
		next = queue[0]
		f.responses[partitionID] = queue[1:]
	}
	f.mu.Unlock()

	if blocking {
		<-ctx.Done()
		return nil, errors.Wrap(ctx.Err(), errors.ErrorTypeDeadline, "fetch cancelled")
	}
	if next.page == nil && next.err == nil {
		return nil, fmt.Errorf("unexpected fetch for %s cursor %q", partitionID, cursor)
	}
	return next.page, next.err
}

func (f *fakeFetcher) callCount(partitionID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[partitionID]
}

func items(prefix string, n int) []board.Item {
	out := make([]board.Item, n)
	for i := range out {
		out[i] = board.Item{ID: fmt.Sprintf("%s-%d", prefix, i), Name: "item"}
	}
	return out
}

func page(cursor string, it []board.Item) *board.Page {
	return &board.Page{Items: it, NextCursor: cursor}
}

func fastRetry() *RetryPolicy {
	return &RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

func newTestPipeline(t *testing.T, f Fetcher, store *storage.MemoryStore, cfg Config) *Pipeline {
	t.Helper()
	w, err := columnar.NewWriter(store, columnar.WriterConfig{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	if cfg.DestinationPrefix == "" {
		cfg.DestinationPrefix = "mem://lake/items"
	}
	if cfg.RunID == "" {
		cfg.RunID = testRunID
	}
	if cfg.Retry == nil {
		cfg.Retry = fastRetry()
	}
	return New(f, w, cfg, zaptest.NewLogger(t))
}

func partitions(ids ...string) []board.Partition {
	out := make([]board.Partition, len(ids))
	for i, id := range ids {
		out[i] = board.Partition{ID: id}
	}
	return out
}

func TestRun_PaginatesUntilCursorExhausted(t *testing.T) {
	f := newFakeFetcher().pages("1",
		page("c1", items("a", 2)),
		page("c2", items("b", 2)),
		page("", items("c", 1)),
	)
	store := storage.NewMemoryStore()

	summary, err := newTestPipeline(t, f, store, Config{}).Run(context.Background(), partitions("1"))
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, summary.Status)
	assert.Equal(t, ExitSuccess, summary.ExitCode())
	res := summary.Partition("1")
	require.NotNil(t, res)
	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, 3, res.Pages)
	assert.EqualValues(t, 5, res.Rows)
	assert.Equal(t, 3, f.callCount("1"))

	require.NotNil(t, summary.Output)
	assert.EqualValues(t, 5, summary.Output.Rows)
	assert.Equal(t, "items/2024-03-05/"+testRunID+".parquet", summary.Output.Key)
	assert.Equal(t, 1, store.Len())
}

func TestRun_PartialFailure(t *testing.T) {
	f := newFakeFetcher().
		pages("1", page("", items("one", 2))).
		fail("2", errors.New(errors.ErrorTypeFatalFetch, "not authenticated")).
		pages("3", page("", items("three", 3)))
	store := storage.NewMemoryStore()

	summary, err := newTestPipeline(t, f, store, Config{MaxConcurrency: 3}).Run(context.Background(), partitions("1", "2", "3"))
	require.NoError(t, err)

	assert.Equal(t, StatusPartialFailure, summary.Status)
	assert.Equal(t, ExitPartialFailure, summary.ExitCode())

	assert.Equal(t, StateDone, summary.Partition("1").State)
	assert.EqualValues(t, 2, summary.Partition("1").Rows)
	assert.Equal(t, StateFailed, summary.Partition("2").State)
	assert.Equal(t, errors.ErrorTypeFatalFetch, summary.Partition("2").ErrorType)
	assert.Equal(t, 1, f.callCount("2"), "fatal errors are not retried")
	assert.Equal(t, StateDone, summary.Partition("3").State)
	assert.EqualValues(t, 3, summary.Partition("3").Rows)

	require.NotNil(t, summary.Output)
	assert.EqualValues(t, 5, summary.Output.Rows)

	obj, ok := store.Get("lake", summary.Output.Key)
	require.True(t, ok)
	assert.Equal(t, "5", obj.Metadata["rows"])
}

func TestRun_RetriesTransientFailures(t *testing.T) {
	transient := errors.New(errors.ErrorTypeTransientFetch, "upstream returned status 503")
	f := newFakeFetcher().
		fail("1", transient).
		fail("1", transient).
		pages("1", page("", items("x", 4)))
	store := storage.NewMemoryStore()

	summary, err := newTestPipeline(t, f, store, Config{}).Run(context.Background(), partitions("1"))
	require.NoError(t, err)

	res := summary.Partition("1")
	assert.Equal(t, StateDone, res.State)
	assert.EqualValues(t, 4, res.Rows)
	assert.Equal(t, 2, res.Retries)
	assert.Equal(t, 3, f.callCount("1"))
	assert.EqualValues(t, 4, summary.Output.Rows)
}

func TestRun_RetriesExhausted(t *testing.T) {
	transient := errors.New(errors.ErrorTypeTransientFetch, "timeout")
	f := newFakeFetcher().
		fail("1", transient).fail("1", transient).fail("1", transient).
		pages("2", page("", items("y", 1)))

	summary, err := newTestPipeline(t, f, storage.NewMemoryStore(), Config{}).Run(context.Background(), partitions("1", "2"))
	require.NoError(t, err)

	res := summary.Partition("1")
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, errors.ErrorTypeTransientFetch, res.ErrorType)
	assert.Equal(t, 2, res.Retries)
	assert.Equal(t, 3, f.callCount("1"))
	assert.Equal(t, StatusPartialFailure, summary.Status)
}

func TestRun_TotalFailureDoesNotWrite(t *testing.T) {
	f := newFakeFetcher().
		fail("1", errors.New(errors.ErrorTypeFatalFetch, "board not found")).
		fail("2", errors.New(errors.ErrorTypeFatalFetch, "board not found"))
	store := storage.NewMemoryStore()

	summary, err := newTestPipeline(t, f, store, Config{}).Run(context.Background(), partitions("1", "2"))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNoData))

	require.NotNil(t, summary)
	assert.Equal(t, StatusTotalFailure, summary.Status)
	assert.Equal(t, ExitFailure, summary.ExitCode())
	assert.Len(t, summary.Partitions, 2)
	assert.Nil(t, summary.Output)
	assert.Equal(t, 0, store.Puts())
}

func TestRun_WriteFailure(t *testing.T) {
	f := newFakeFetcher().pages("1", page("", items("a", 1)))
	store := storage.NewMemoryStore()
	store.FailWith = fmt.Errorf("connection reset")

	summary, err := newTestPipeline(t, f, store, Config{}).Run(context.Background(), partitions("1"))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeWrite))
	assert.Equal(t, StatusWriteFailure, summary.Status)
	assert.Equal(t, ExitFailure, summary.ExitCode())
	assert.Equal(t, StateDone, summary.Partition("1").State)
	assert.Nil(t, summary.Output)
	assert.Equal(t, 0, store.Len())
}

func TestRun_DeadlineFailsInFlightPartitions(t *testing.T) {
	f := newFakeFetcher().pages("fast", page("", items("f", 2)))
	f.block["slow"] = true
	store := storage.NewMemoryStore()

	p := newTestPipeline(t, f, store, Config{MaxConcurrency: 2, RunDeadline: 50 * time.Millisecond})

	start := time.Now()
	summary, err := p.Run(context.Background(), partitions("fast", "slow"))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	assert.Equal(t, StateDone, summary.Partition("fast").State)
	slow := summary.Partition("slow")
	assert.Equal(t, StateFailed, slow.State)
	assert.Equal(t, errors.ErrorTypeDeadline, slow.ErrorType)

	assert.Equal(t, StatusPartialFailure, summary.Status)
	require.NotNil(t, summary.Output, "write still happens after the deadline")
	assert.EqualValues(t, 2, summary.Output.Rows)
}

func TestRun_DeadlineBeforeStartMarksQueuedPartitionsFailed(t *testing.T) {
	f := newFakeFetcher()
	f.block["a"] = true
	f.pages("b", page("", items("b", 1)))

	p := newTestPipeline(t, f, storage.NewMemoryStore(), Config{MaxConcurrency: 1, RunDeadline: 20 * time.Millisecond})
	summary, err := p.Run(context.Background(), partitions("a", "b"))
	require.Error(t, err)

	for _, res := range summary.Partitions {
		assert.Equal(t, StateFailed, res.State)
		assert.Equal(t, errors.ErrorTypeDeadline, res.ErrorType)
	}
	assert.Equal(t, 0, f.callCount("b"))
	assert.Equal(t, StatusTotalFailure, summary.Status)
}

func TestRun_SkipsUnrecoverableRecords(t *testing.T) {
	it := items("ok", 2)
	it = append(it, board.Item{Name: "no id"})
	f := newFakeFetcher().pages("1", page("", it))

	summary, err := newTestPipeline(t, f, storage.NewMemoryStore(), Config{}).Run(context.Background(), partitions("1"))
	require.NoError(t, err)

	res := summary.Partition("1")
	assert.Equal(t, StateDone, res.State)
	assert.EqualValues(t, 2, res.Rows)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, summary.TotalSkipped)
}

func TestRun_MergesInPartitionOrderAndIsIdempotent(t *testing.T) {
	text := func(s string) *string { return &s }
	build := func() *fakeFetcher {
		return newFakeFetcher().
			pages("1", page("", []board.Item{{ID: "a", ColumnValues: []board.ColumnValue{{ID: "status", Type: "status", Text: text("Done")}}}})).
			pages("2", page("", []board.Item{{ID: "b", ColumnValues: []board.ColumnValue{{ID: "budget", Type: "numbers", Text: text("10")}}}}))
	}

	first := storage.NewMemoryStore()
	second := storage.NewMemoryStore()

	s1, err := newTestPipeline(t, build(), first, Config{MaxConcurrency: 2}).Run(context.Background(), partitions("1", "2"))
	require.NoError(t, err)
	s2, err := newTestPipeline(t, build(), second, Config{MaxConcurrency: 2}).Run(context.Background(), partitions("1", "2"))
	require.NoError(t, err)

	assert.Equal(t, s1.Output.Checksum, s2.Output.Checksum)
	assert.Contains(t, s1.Output.Columns, "col_status")
	assert.Contains(t, s1.Output.Columns, "col_budget")
	assert.Contains(t, s1.Output.Columns, normalize.ColumnIngestedAt)

	o1, _ := first.Get("lake", s1.Output.Key)
	o2, _ := second.Get("lake", s2.Output.Key)
	assert.Equal(t, o1.Body, o2.Body)
}

func TestRun_NoPartitions(t *testing.T) {
	summary, err := newTestPipeline(t, newFakeFetcher(), storage.NewMemoryStore(), Config{}).Run(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
	assert.Equal(t, StatusTotalFailure, summary.Status)
}

func TestRun_GeneratesRunID(t *testing.T) {
	f := newFakeFetcher().pages("1", page("", items("a", 1)))
	store := storage.NewMemoryStore()
	w, err := columnar.NewWriter(store, columnar.WriterConfig{}, nil)
	require.NoError(t, err)

	clock := func() time.Time { return time.Date(2024, 7, 1, 8, 30, 0, 0, time.UTC) }
	p := New(f, w, Config{DestinationPrefix: "mem://lake", Retry: fastRetry(), Clock: clock}, nil)

	summary, err := p.Run(context.Background(), partitions("1"))
	require.NoError(t, err)
	assert.Regexp(t, `^2024_07_01_08_30_00_[0-9a-f]{8}$`, summary.RunID)
	assert.Equal(t, "2024-07-01/"+summary.RunID+".parquet", summary.Output.Key)
}

func TestRun_FixedRunIDReproducesObjectAtAnyTime(t *testing.T) {
	const id = "2024_05_01_10_00_00_nightly"
	build := func() *fakeFetcher { return newFakeFetcher().pages("1", page("", items("a", 3))) }
	first := storage.NewMemoryStore()
	second := storage.NewMemoryStore()

	monday := func() time.Time { return time.Date(2024, 5, 1, 10, 0, 1, 0, time.UTC) }
	tuesday := func() time.Time { return time.Date(2024, 5, 2, 23, 59, 0, 0, time.UTC) }

	s1, err := newTestPipeline(t, build(), first, Config{RunID: id, Clock: monday}).Run(context.Background(), partitions("1"))
	require.NoError(t, err)
	s2, err := newTestPipeline(t, build(), second, Config{RunID: id, Clock: tuesday}).Run(context.Background(), partitions("1"))
	require.NoError(t, err)

	assert.Equal(t, "items/2024-05-01/"+id+".parquet", s1.Output.Key)
	assert.Equal(t, s1.Output.Key, s2.Output.Key)
	o1, _ := first.Get("lake", s1.Output.Key)
	o2, _ := second.Get("lake", s2.Output.Key)
	assert.Equal(t, o1.Body, o2.Body)
}

func TestRun_RejectsRunIDWithoutTimestamp(t *testing.T) {
	f := newFakeFetcher().pages("1", page("", items("a", 1)))
	store := storage.NewMemoryStore()

	summary, err := newTestPipeline(t, f, store, Config{RunID: "nightly"}).Run(context.Background(), partitions("1"))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
	assert.Equal(t, StatusTotalFailure, summary.Status)
	assert.Equal(t, 0, f.callCount("1"))
	assert.Equal(t, 0, store.Len())
}
