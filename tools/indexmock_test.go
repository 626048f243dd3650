package tools

import (
	"fmt"
	"sync/atomic"

	"github.com/docsearch/docsearch-mcp/internal/matcher"
)

// mockSearcher is a simple in-memory mock of the Searcher interface for testing
type mockSearcher struct {
	id          int
	docCount    uint64
	results     []matcher.Result
	searchError error
	closeError  error
	searches    atomic.Int32
	closed      atomic.Bool
}

// newMockSearcher creates a new mock searcher with the given ID
func newMockSearcher(id int) *mockSearcher {
	return &mockSearcher{
		id:       id,
		docCount: 100,
	}
}

func (m *mockSearcher) Search(q string, limit int) ([]matcher.Result, error) {
	if m.closed.Load() {
		return nil, fmt.Errorf("searcher closed")
	}
	m.searches.Add(1)
	if m.searchError != nil {
		return nil, m.searchError
	}
	return matcher.Limit(m.results, limit), nil
}

func (m *mockSearcher) DocCount() (uint64, error) {
	if m.closed.Load() {
		return 0, fmt.Errorf("searcher closed")
	}
	return m.docCount, nil
}

func (m *mockSearcher) Close() error {
	if m.closed.Load() {
		return fmt.Errorf("already closed")
	}
	m.closed.Store(true)
	return m.closeError
}

// IsClosed returns true if the searcher has been closed
func (m *mockSearcher) IsClosed() bool {
	return m.closed.Load()
}
