package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// IntegrationTestSuite runs end-to-end extractions against a BoardServer and
// a file:// destination that is reset before every test.
type IntegrationTestSuite struct {
	suite.Suite
	ctx       context.Context
	cancel    context.CancelFunc
	tempDir   string
	startTime time.Time

	Upstream *BoardServer
}

// SetupSuite runs before all tests in the suite
func (s *IntegrationTestSuite) SetupSuite() {
	s.ctx, s.cancel = context.WithTimeout(context.Background(), 5*time.Minute)
	s.startTime = time.Now()
}

// SetupTest gives every test a fresh upstream and destination directory.
func (s *IntegrationTestSuite) SetupTest() {
	tempDir, err := os.MkdirTemp("", "boardlake-test-*")
	require.NoError(s.T(), err)
	s.tempDir = tempDir
	s.Upstream = NewBoardServer(s.T())
}

// TearDownTest removes the destination directory.
func (s *IntegrationTestSuite) TearDownTest() {
	if s.tempDir != "" {
		_ = os.RemoveAll(s.tempDir)
	}
}

// TearDownSuite runs after all tests in the suite
func (s *IntegrationTestSuite) TearDownSuite() {
	s.cancel()
	s.T().Logf("Integration test suite completed in %v", time.Since(s.startTime))
}

// Context returns the test context
func (s *IntegrationTestSuite) Context() context.Context {
	return s.ctx
}

// TempDir returns the destination directory
func (s *IntegrationTestSuite) TempDir() string {
	return s.tempDir
}

// Destination returns the destination prefix URI for TempDir.
func (s *IntegrationTestSuite) Destination() string {
	return "file://" + s.tempDir
}

// ObjectPath returns where a run lands under TempDir.
func (s *IntegrationTestSuite) ObjectPath(date, runID string) string {
	return filepath.Join(s.tempDir, date, runID+".parquet")
}

// CreateTempFile creates a file under TempDir with content
func (s *IntegrationTestSuite) CreateTempFile(name string, content []byte) string {
	path := filepath.Join(s.tempDir, name)
	err := os.WriteFile(path, content, 0o600)
	require.NoError(s.T(), err)
	return path
}

// IntegrationTest marks a test as an integration test
func IntegrationTest(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
}
