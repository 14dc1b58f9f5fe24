package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dshills/deepgraph/agent/errs"
)

// HTTPDriver implements Driver against a JSON search API (Serper/Brave-
// style: GET endpoint?q=...&num=..., Authorization header, a JSON
// array of {url,title,snippet} under "results") and fetches each
// result's page body itself to render markdown-ish content, since
// search APIs typically return only a snippet (spec.md §6: perform_search
// needs full page text, not just the snippet).
type HTTPDriver struct {
	Endpoint string
	APIKey   string
	Client   *http.Client
}

// NewHTTPDriver constructs an HTTPDriver with a default http.Client;
// callers needing a custom timeout should set Client after construction.
func NewHTTPDriver(endpoint, apiKey string) *HTTPDriver {
	return &HTTPDriver{Endpoint: endpoint, APIKey: apiKey, Client: &http.Client{}}
}

type searchAPIResponse struct {
	Results []struct {
		URL     string `json:"url"`
		Title   string `json:"title"`
		Snippet string `json:"snippet"`
	} `json:"results"`
}

// Search queries the configured search API, then fetches and renders
// each hit's page body. A single page fetch failing does not fail the
// whole query — that hit is returned with an empty Markdown field.
func (d *HTTPDriver) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.Endpoint, nil)
	if err != nil {
		return nil, errs.PermanentDriver("build search request", err)
	}
	q := req.URL.Query()
	q.Set("q", query)
	q.Set("num", fmt.Sprintf("%d", maxResults))
	req.URL.RawQuery = q.Encode()
	if d.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.APIKey)
	}

	resp, err := d.Client.Do(req)
	if err != nil {
		return nil, errs.TransientDriver("search request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, errs.TransientDriver(fmt.Sprintf("search API returned %d", resp.StatusCode), nil)
	}
	if resp.StatusCode >= 400 {
		return nil, errs.PermanentDriver(fmt.Sprintf("search API returned %d", resp.StatusCode), nil)
	}

	var parsed searchAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, errs.PermanentDriver("decode search API response", err)
	}

	results := make([]Result, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		if len(results) >= maxResults {
			break
		}
		markdown, _ := d.fetchMarkdown(ctx, r.URL)
		results = append(results, Result{URL: r.URL, Title: r.Title, Snippet: r.Snippet, Markdown: markdown})
	}
	return results, nil
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// fetchMarkdown retrieves pageURL and reduces it to plain text, via
// goquery, stripping non-content elements (script/style/nav/footer).
// It is a best-effort helper: errors are returned to the caller, who
// treats them as non-fatal for the overall search.
func (d *HTTPDriver) fetchMarkdown(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := d.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("fetch %s: status %d", pageURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return "", err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return "", err
	}
	doc.Find("script,style,nav,footer,noscript").Remove()
	text := doc.Find("body").Text()
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " ")), nil
}
