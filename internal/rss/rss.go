package rss

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/deusflow/aidigest/internal/logger"
	"github.com/deusflow/aidigest/internal/news"
	"github.com/mmcdole/gofeed"
	"gopkg.in/yaml.v3"
)

const userAgent = "aidigest/1.0 (+https://github.com/deusflow/aidigest)"

// Feed is one configured RSS/Atom source.
type Feed struct {
	Name string `yaml:"name"`
	URL  string `yaml:"rss_url"`
	Type string `yaml:"type"`
}

// FeedsConfig is the standalone feeds file layout:
//
//	rss_sources:
//	  - name: ...
//	    rss_url: https://...
type FeedsConfig struct {
	Feeds []Feed `yaml:"rss_sources"`
}

// LoadFeeds reads a feed list from a YAML file.
func LoadFeeds(path string) ([]Feed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg FeedsConfig
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode feeds file: %w", err)
	}
	for i, f := range cfg.Feeds {
		if f.Name == "" || f.URL == "" {
			return nil, fmt.Errorf("feeds file entry %d: name and rss_url are required", i)
		}
	}
	return cfg.Feeds, nil
}

// Fetcher downloads and parses feeds with gofeed.
type Fetcher struct {
	parser *gofeed.Parser
}

// NewFetcher builds a fetcher whose requests time out after timeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	parser := gofeed.NewParser()
	parser.UserAgent = userAgent
	parser.Client = &http.Client{Timeout: timeout}
	return &Fetcher{parser: parser}
}

// Fetch never fails: a download or parse error is carried in the batch.
func (f *Fetcher) Fetch(ctx context.Context, feed Feed) news.FeedBatch {
	batch := news.FeedBatch{Source: news.Source{Name: feed.Name, Type: feed.Type}}

	parsed, err := f.parser.ParseURLWithContext(feed.URL, ctx)
	if err != nil {
		batch.Err = fmt.Errorf("fetch %s: %w", feed.Name, err)
		return batch
	}

	batch.Entries = make([]news.Entry, 0, len(parsed.Items))
	for _, it := range parsed.Items {
		batch.Entries = append(batch.Entries, toEntry(it))
	}
	return batch
}

// FetchAll fetches every feed in order, logging failures.
func (f *Fetcher) FetchAll(ctx context.Context, feeds []Feed) []news.FeedBatch {
	batches := make([]news.FeedBatch, 0, len(feeds))
	ok := 0
	for _, feed := range feeds {
		b := f.Fetch(ctx, feed)
		if b.Err != nil {
			logger.Warn("rss source failed", "source", feed.Name, "error", b.Err)
		} else {
			ok++
			logger.Info("rss source loaded", "source", feed.Name, "entries", len(b.Entries))
		}
		batches = append(batches, b)
	}

	logger.Info("rss feeds processed", "ok", ok, "total", len(feeds))
	return batches
}

func toEntry(it *gofeed.Item) news.Entry {
	e := news.Entry{
		Title:   it.Title,
		Summary: it.Description,
		Link:    strings.TrimSpace(it.Link),
	}
	if e.Summary == "" {
		e.Summary = it.Content
	}
	switch {
	case it.PublishedParsed != nil:
		e.Published = *it.PublishedParsed
	case it.UpdatedParsed != nil:
		e.Published = *it.UpdatedParsed
	}
	return e
}
