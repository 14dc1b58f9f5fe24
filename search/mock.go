package search

import (
	"context"
	"sync"
)

// Mock implements Driver for tests, modeled on graph/model.MockChatModel's
// queued-responses-plus-call-history shape.
type Mock struct {
	Responses map[string][]Result
	Err       error

	mu    sync.Mutex
	Calls []string
}

// Search returns Responses[query] truncated to maxResults, or Err if set.
func (m *Mock) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, query)
	m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	results := m.Responses[query]
	if len(results) > maxResults {
		results = results[:maxResults]
	}
	return results, nil
}
