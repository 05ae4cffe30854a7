// Package testutil provides testing utilities for boardlake, chiefly a fake
// GraphQL board upstream.
package testutil

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	gojson "github.com/goccy/go-json"
)

// TestContext creates a test context with a 30-second timeout.
// The caller must call the returned cancel function to avoid leaks.
func TestContext(_ *testing.T) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// Item renders one upstream item as JSON. columns are raw column_values
// entries, see Column.
func Item(id, name string, columns ...string) string {
	return fmt.Sprintf(`{"id":%q,"name":%q,"state":"active","created_at":"2024-03-01T09:00:00Z",`+
		`"updated_at":"2024-03-02T09:00:00Z","group":{"id":"topics","title":"Topics"},"column_values":[%s]}`,
		id, name, strings.Join(columns, ","))
}

// Column renders one column_values entry.
func Column(id, kind, text string) string {
	return fmt.Sprintf(`{"id":%q,"type":%q,"text":%q,"value":null}`, id, kind, text)
}

// BoardServer is an httptest GraphQL upstream serving scripted boards.
// Cursors are "<board>:<page>".
type BoardServer struct {
	*httptest.Server

	mu       sync.Mutex
	pages    map[string][][]string
	failures map[string]int
	requests map[string]int
}

// NewBoardServer starts a server that is closed when the test ends.
func NewBoardServer(t *testing.T) *BoardServer {
	t.Helper()
	s := &BoardServer{
		pages:    make(map[string][][]string),
		failures: make(map[string]int),
		requests: make(map[string]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// AddBoard scripts the pages of board id. Each page is a list of Item values.
func (s *BoardServer) AddBoard(id string, pages ...[]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[id] = pages
}

// FailBoard answers every request for board id with status.
func (s *BoardServer) FailBoard(id string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[id] = status
}

// Requests returns how many requests board id received.
func (s *BoardServer) Requests(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[id]
}

func (s *BoardServer) serve(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req struct {
		Variables struct {
			Board  []string `json:"board"`
			Cursor string   `json:"cursor"`
		} `json:"variables"`
	}
	if err := gojson.Unmarshal(body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	board, index := "", 0
	if req.Variables.Cursor != "" {
		id, n, ok := strings.Cut(req.Variables.Cursor, ":")
		if !ok {
			http.Error(w, "malformed cursor", http.StatusBadRequest)
			return
		}
		board = id
		index, _ = strconv.Atoi(n)
	} else if len(req.Variables.Board) == 1 {
		board = req.Variables.Board[0]
	}

	s.mu.Lock()
	s.requests[board]++
	status := s.failures[board]
	pages, known := s.pages[board]
	s.mu.Unlock()

	if status != 0 {
		http.Error(w, "scripted failure", status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if !known {
		_, _ = io.WriteString(w, `{"data":{"boards":[]}}`)
		return
	}

	var items []string
	if index < len(pages) {
		items = pages[index]
	}
	cursor := "null"
	if index+1 < len(pages) {
		cursor = strconv.Quote(fmt.Sprintf("%s:%d", board, index+1))
	}
	page := fmt.Sprintf(`{"cursor":%s,"items":[%s]}`, cursor, strings.Join(items, ","))

	if req.Variables.Cursor != "" {
		_, _ = fmt.Fprintf(w, `{"data":{"next_items_page":%s}}`, page)
		return
	}
	_, _ = fmt.Fprintf(w, `{"data":{"boards":[{"id":%q,"name":"Board %s","items_page":%s}]}}`, board, board, page)
}
