package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordRun(t *testing.T) {
	statuses := []string{"success", "partial_failure", "total_failure"}
	RecordRun("partial_failure", statuses, 3*time.Second)

	assert.Equal(t, 0.0, testutil.ToFloat64(LastRunStatus.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(LastRunStatus.WithLabelValues("partial_failure")))
	assert.Equal(t, 3.0, testutil.ToFloat64(LastRunDuration))
	assert.Greater(t, testutil.ToFloat64(LastRunCompletion), 0.0)
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(PagesFetched.WithLabelValues("metrics-test"))
	PagesFetched.WithLabelValues("metrics-test").Add(2)
	assert.Equal(t, before+2, testutil.ToFloat64(PagesFetched.WithLabelValues("metrics-test")))
}

func TestPush(t *testing.T) {
	require.NoError(t, Push(context.Background(), "", "job", "run"))

	var gotPath, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	FetchAttempts.WithLabelValues(OutcomeSuccess).Inc()
	require.NoError(t, Push(context.Background(), server.URL, "boardlake", "2024_03_05_14_07_09_deadbeef"))
	assert.Equal(t, "/metrics/job/boardlake/run_id/2024_03_05_14_07_09_deadbeef", gotPath)
	assert.True(t, strings.Contains(gotBody, "boardlake_fetch_attempts_total"))
}

func TestTimer(t *testing.T) {
	timer := NewTimer()
	time.Sleep(5 * time.Millisecond)
	assert.GreaterOrEqual(t, timer.Stop(), 5*time.Millisecond)
}
