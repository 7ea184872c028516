package papers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed/atom"
)

const DefaultArxivURL = "http://export.arxiv.org/api/query"

// Searcher runs a query against a paper index.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}

// ArxivClient queries the arXiv export API, newest submissions first.
type ArxivClient struct {
	client  *http.Client
	baseURL string
}

func NewArxivClient(baseURL string, timeout time.Duration) *ArxivClient {
	if baseURL == "" {
		baseURL = DefaultArxivURL
	}
	return &ArxivClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

func (c *ArxivClient) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	params := url.Values{}
	params.Set("search_query", query)
	params.Set("start", "0")
	params.Set("max_results", strconv.Itoa(maxResults))
	params.Set("sortBy", "submittedDate")
	params.Set("sortOrder", "descending")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("arxiv: failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("arxiv: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arxiv: unexpected status %d", resp.StatusCode)
	}

	feed, err := (&atom.Parser{}).Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("arxiv: failed to parse feed: %w", err)
	}

	results := make([]Result, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		results = append(results, fromAtom(e))
	}
	return results, nil
}

func fromAtom(e *atom.Entry) Result {
	r := Result{
		Title:    e.Title,
		EntryID:  strings.TrimSpace(e.ID),
		Abstract: e.Summary,
	}

	for _, a := range e.Authors {
		if a != nil && a.Name != "" {
			r.Authors = append(r.Authors, strings.TrimSpace(a.Name))
		}
	}
	for _, c := range e.Categories {
		if c != nil && c.Term != "" {
			r.Categories = append(r.Categories, c.Term)
		}
	}
	for _, l := range e.Links {
		if l != nil && (l.Title == "pdf" || l.Type == "application/pdf" || strings.Contains(l.Href, "/pdf/")) {
			r.PDFURL = l.Href
			break
		}
	}
	if r.PDFURL == "" && strings.Contains(r.EntryID, "/abs/") {
		r.PDFURL = strings.Replace(r.EntryID, "/abs/", "/pdf/", 1)
	}

	switch {
	case e.PublishedParsed != nil:
		r.Published = *e.PublishedParsed
	case e.UpdatedParsed != nil:
		r.Published = *e.UpdatedParsed
	}
	return r
}
