// Package search implements the web-search driver (spec.md §6): the
// dependency perform_search calls to turn a query into ranked results,
// each with page content rendered down to markdown-ish plain text.
package search

import "context"

// Result is one search hit, matching agent/state.SearchResult's shape
// before it is attached to a query.
type Result struct {
	URL      string
	Title    string
	Snippet  string
	Markdown string
}

// Driver performs a web search for query and returns up to maxResults
// hits, each with its page body fetched and reduced to markdown.
type Driver interface {
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}
