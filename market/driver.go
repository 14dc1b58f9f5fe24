// Package market implements the prediction-market catalog driver
// (spec.md §6): fetching tag-filtered candidate markets/events for the
// market-research subgraph.
package market

import "context"

// Tag mirrors agent/state.Tag.
type Tag struct {
	ID   string
	Name string
}

// Object mirrors agent/state.MarketObject.
type Object struct {
	Slug          string
	Question      string
	Description   string
	Rules         string
	ClobTokenIDs  []string
	EventTitle    string
	EventSlug     string
	EventImageURL string
}

// Driver fetches the market catalog's tags and tag-filtered events.
type Driver interface {
	// FetchTags returns one page of the catalog's available tags,
	// starting at offset, for generate_market_queries's paginated scan
	// (spec.md §4.3, §6: fetch_tags(offset, limit=20)). A page shorter
	// than limit signals the last page.
	FetchTags(ctx context.Context, offset, limit int) ([]Tag, error)
	// EventsForTags returns events (flattened to Objects, one per
	// market within an event) whose tags intersect tagIDs, up to limit.
	EventsForTags(ctx context.Context, tagIDs []string, limit int) ([]Object, error)
}
