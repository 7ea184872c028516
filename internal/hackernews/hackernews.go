package hackernews

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/deusflow/aidigest/internal/logger"
	"github.com/deusflow/aidigest/internal/news"
)

const (
	DefaultBaseURL = "https://hacker-news.firebaseio.com/v0"
	sourceName     = "Hacker News"
)

// Item is the subset of the Firebase item document we use.
type Item struct {
	ID          int    `json:"id"`
	Type        string `json:"type"`
	By          string `json:"by"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Score       int    `json:"score"`
	Time        int64  `json:"time"`
	Descendants int    `json:"descendants"`
	Dead        bool   `json:"dead"`
	Deleted     bool   `json:"deleted"`
}

// Client reads the public Hacker News API.
type Client struct {
	baseURL    string
	listClient *http.Client
	itemClient *http.Client
}

// NewClient uses DefaultBaseURL when baseURL is empty.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		listClient: &http.Client{Timeout: 10 * time.Second},
		itemClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// TopStoryIDs returns the current front page story IDs.
func (c *Client) TopStoryIDs(ctx context.Context) ([]int, error) {
	var ids []int
	if err := c.getJSON(ctx, c.listClient, c.baseURL+"/topstories.json", &ids); err != nil {
		return nil, fmt.Errorf("failed to fetch top stories: %w", err)
	}
	return ids, nil
}

// Item fetches one item by ID.
func (c *Client) Item(ctx context.Context, id int) (Item, error) {
	var it Item
	if err := c.getJSON(ctx, c.itemClient, fmt.Sprintf("%s/item/%d.json", c.baseURL, id), &it); err != nil {
		return Item{}, fmt.Errorf("failed to fetch item %d: %w", id, err)
	}
	return it, nil
}

// FetchTop loads the first limit top stories. Individual item failures are
// skipped; a failed list request is reported in the batch.
func (c *Client) FetchTop(ctx context.Context, limit int) news.ForumBatch {
	batch := news.ForumBatch{Name: sourceName}

	ids, err := c.TopStoryIDs(ctx)
	if err != nil {
		batch.Err = err
		return batch
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	for _, id := range ids {
		it, err := c.Item(ctx, id)
		if err != nil {
			logger.Debug("hacker news item skipped", "id", id, "error", err)
			continue
		}
		if it.Dead || it.Deleted || it.Title == "" {
			continue
		}
		batch.Stories = append(batch.Stories, news.Story{
			ID:    it.ID,
			Title: it.Title,
			Score: it.Score,
			URL:   it.URL,
			Time:  it.Time,
		})
	}

	logger.Info("hacker news loaded", "requested", len(ids), "stories", len(batch.Stories))
	return batch
}

func (c *Client) getJSON(ctx context.Context, hc *http.Client, url string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}
