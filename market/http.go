package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/dshills/deepgraph/agent/errs"
)

// HTTPDriver implements Driver against a Gamma-style prediction-market
// catalog API: GET /tags and GET /events?tag_id=...&limit=..., modeled
// on graph/tool.HTTPTool's manual net/http request-building (spec.md §6).
type HTTPDriver struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPDriver constructs an HTTPDriver with a default http.Client.
func NewHTTPDriver(baseURL string) *HTTPDriver {
	return &HTTPDriver{BaseURL: strings.TrimRight(baseURL, "/"), Client: &http.Client{}}
}

type apiTag struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type apiMarket struct {
	Slug         string   `json:"slug"`
	Question     string   `json:"question"`
	Description  string   `json:"description"`
	Rules        string   `json:"rules"`
	ClobTokenIDs []string `json:"clobTokenIds"`
}

type apiEvent struct {
	Title    string      `json:"title"`
	Slug     string      `json:"slug"`
	ImageURL string      `json:"image"`
	Markets  []apiMarket `json:"markets"`
}

// FetchTags implements Driver.
func (d *HTTPDriver) FetchTags(ctx context.Context, offset, limit int) ([]Tag, error) {
	q := url.Values{}
	q.Set("offset", fmt.Sprintf("%d", offset))
	q.Set("limit", fmt.Sprintf("%d", limit))

	var tags []apiTag
	if err := d.getJSON(ctx, "/tags", q, &tags); err != nil {
		return nil, err
	}
	out := make([]Tag, len(tags))
	for i, t := range tags {
		out[i] = Tag{ID: t.ID, Name: t.Label}
	}
	return out, nil
}

// EventsForTags implements Driver, flattening each event's markets
// into one Object per market so downstream ranking treats markets
// (not events) as the unit of comparison.
func (d *HTTPDriver) EventsForTags(ctx context.Context, tagIDs []string, limit int) ([]Object, error) {
	q := url.Values{}
	for _, id := range tagIDs {
		q.Add("tag_id", id)
	}
	q.Set("limit", fmt.Sprintf("%d", limit))

	var events []apiEvent
	if err := d.getJSON(ctx, "/events", q, &events); err != nil {
		return nil, err
	}

	var objects []Object
	for _, e := range events {
		for _, m := range e.Markets {
			if len(objects) >= limit {
				return objects, nil
			}
			objects = append(objects, Object{
				Slug:          m.Slug,
				Question:      m.Question,
				Description:   m.Description,
				Rules:         m.Rules,
				ClobTokenIDs:  m.ClobTokenIDs,
				EventTitle:    e.Title,
				EventSlug:     e.Slug,
				EventImageURL: e.ImageURL,
			})
		}
	}
	return objects, nil
}

func (d *HTTPDriver) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	full := d.BaseURL + path
	if len(query) > 0 {
		full += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
	if err != nil {
		return errs.PermanentDriver("build market request", err)
	}

	resp, err := d.Client.Do(req)
	if err != nil {
		return errs.TransientDriver("market request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return errs.TransientDriver(fmt.Sprintf("market API returned %d", resp.StatusCode), nil)
	}
	if resp.StatusCode >= 400 {
		return errs.PermanentDriver(fmt.Sprintf("market API returned %d", resp.StatusCode), nil)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errs.PermanentDriver("decode market API response", err)
	}
	return nil
}
