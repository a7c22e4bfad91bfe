// Package retrieval provides the vector-search knowledge base client.
package retrieval

import "context"

// Searcher fetches knowledge passages relevant to a query. Empty results
// are the common case, not an error; callers treat any failure as "no
// context available" and continue.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) (string, error)
	Name() string
}

// Mock is a test double for Searcher.
type Mock struct {
	SearchFunc func(ctx context.Context, query string, topK int) (string, error)
}

func (m *Mock) Name() string { return "mock" }

func (m *Mock) Search(ctx context.Context, query string, topK int) (string, error) {
	if m.SearchFunc != nil {
		return m.SearchFunc(ctx, query, topK)
	}
	return "", nil
}
