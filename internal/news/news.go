package news

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/deusflow/aidigest/internal/logger"
	"github.com/deusflow/aidigest/internal/metrics"
)

// ErrInvalidConfig wraps every construction-time configuration problem.
var ErrInvalidConfig = errors.New("news: invalid config")

// Source identifies where a batch of entries came from.
type Source struct {
	Name string
	Type string
}

// Entry is one raw feed entry. A zero Published means the feed carried no
// parseable timestamp.
type Entry struct {
	Title     string
	Summary   string
	Link      string
	Published time.Time
}

// FeedBatch is everything fetched from one feed. Err is set when the fetch
// failed; such a batch contributes nothing.
type FeedBatch struct {
	Source  Source
	Entries []Entry
	Err     error
}

// Story is one forum submission (Hacker News item).
type Story struct {
	ID    int
	Title string
	Score int
	URL   string
	Time  int64 // unix seconds, 0 when unknown
}

// ForumBatch is the optional forum source.
type ForumBatch struct {
	Name    string
	Stories []Story
	Err     error
}

// Item is a curated news item.
type Item struct {
	Title        string    `json:"title"`
	Summary      string    `json:"summary"`
	URL          string    `json:"url"`
	Source       string    `json:"source"`
	SourceType   string    `json:"source_type"`
	Published    time.Time `json:"published"`
	Fingerprint  string    `json:"content_hash"`
	QualityScore int       `json:"quality_score"`
}

// ForumConfig controls how forum stories are admitted and boosted.
type ForumConfig struct {
	MinScore     int // stories below this upvote count are ignored
	BonusDivisor int // one bonus point per BonusDivisor upvotes
	BonusCap     int
}

// Config holds the curation thresholds and keyword lists.
type Config struct {
	SearchKeywords    []string
	HighValueKeywords []string
	LowValueKeywords  []string
	MaxNews           int
	Lookback          time.Duration
	DropThreshold     int
	EntriesPerSource  int
	SummaryMaxRunes   int
	Forum             ForumConfig
}

// DefaultConfig returns the stock thresholds without keyword lists.
func DefaultConfig() Config {
	return Config{
		MaxNews:          8,
		Lookback:         48 * time.Hour,
		DropThreshold:    -30,
		EntriesPerSource: 30,
		SummaryMaxRunes:  400,
		Forum: ForumConfig{
			MinScore:     100,
			BonusDivisor: 50,
			BonusCap:     20,
		},
	}
}

// Curator filters, scores, deduplicates and ranks news. It keeps no state
// between calls.
type Curator struct {
	searchKeywords    []string
	highValueKeywords []string
	lowValueKeywords  []string
	cfg               Config
	now               func() time.Time
}

// NewCurator validates the config and lowercases every keyword.
func NewCurator(cfg Config) (*Curator, error) {
	c := &Curator{
		searchKeywords:    normalizeKeywords(cfg.SearchKeywords),
		highValueKeywords: normalizeKeywords(cfg.HighValueKeywords),
		lowValueKeywords:  normalizeKeywords(cfg.LowValueKeywords),
		cfg:               cfg,
		now:               time.Now,
	}

	switch {
	case len(c.searchKeywords) == 0:
		return nil, fmt.Errorf("%w: at least one search keyword is required", ErrInvalidConfig)
	case cfg.MaxNews <= 0:
		return nil, fmt.Errorf("%w: max_news must be positive, got %d", ErrInvalidConfig, cfg.MaxNews)
	case cfg.Lookback <= 0:
		return nil, fmt.Errorf("%w: lookback must be positive, got %s", ErrInvalidConfig, cfg.Lookback)
	case cfg.EntriesPerSource < 0:
		return nil, fmt.Errorf("%w: entries_per_source must not be negative", ErrInvalidConfig)
	case cfg.SummaryMaxRunes < 0:
		return nil, fmt.Errorf("%w: summary_max_runes must not be negative", ErrInvalidConfig)
	case cfg.Forum.BonusDivisor <= 0:
		return nil, fmt.Errorf("%w: forum bonus divisor must be positive", ErrInvalidConfig)
	case cfg.Forum.BonusCap < 0:
		return nil, fmt.Errorf("%w: forum bonus cap must not be negative", ErrInvalidConfig)
	}

	return c, nil
}

// SetClock replaces the time source used for the recency cutoff.
func (c *Curator) SetClock(now func() time.Time) {
	c.now = now
}

// Curate runs every batch through relevance, recency and quality filters,
// drops cross-source duplicates (first seen wins) and returns at most
// MaxNews items ordered by quality score. Failed batches are skipped.
func (c *Curator) Curate(feeds []FeedBatch, forum *ForumBatch) []Item {
	now := c.now()
	cutoff := now.Add(-c.cfg.Lookback)

	var candidates []Item
	for _, batch := range feeds {
		if batch.Err != nil {
			logger.Warn("feed skipped", "source", batch.Source.Name, "error", batch.Err)
			continue
		}
		items := c.fromFeed(batch, cutoff, now)
		logger.Info("feed curated", "source", batch.Source.Name, "entries", len(batch.Entries), "kept", len(items))
		candidates = append(candidates, items...)
	}

	if forum != nil {
		if forum.Err != nil {
			logger.Warn("forum skipped", "source", forum.Name, "error", forum.Err)
		} else {
			items := c.fromForum(*forum, cutoff)
			logger.Info("forum curated", "source", forum.Name, "stories", len(forum.Stories), "kept", len(items))
			candidates = append(candidates, items...)
		}
	}

	unique := dedupe(candidates)

	// Stable so equal scores keep fetch order.
	sort.SliceStable(unique, func(i, j int) bool {
		return unique[i].QualityScore > unique[j].QualityScore
	})

	if len(unique) > c.cfg.MaxNews {
		unique = unique[:c.cfg.MaxNews]
	}
	return unique
}

func (c *Curator) fromFeed(batch FeedBatch, cutoff, now time.Time) []Item {
	entries := batch.Entries
	if c.cfg.EntriesPerSource > 0 && len(entries) > c.cfg.EntriesPerSource {
		entries = entries[:c.cfg.EntriesPerSource]
	}

	var out []Item
	for _, e := range entries {
		metrics.Global.IncrementNewsProcessed()

		if !e.Published.IsZero() && e.Published.Before(cutoff) {
			continue
		}

		title := strings.TrimSpace(e.Title)
		summary := cleanHTML(e.Summary)

		if !c.IsRelevant(title, summary) {
			continue
		}

		score := c.QualityScore(title, summary)
		if score < c.cfg.DropThreshold {
			logger.Debug("low quality item dropped", "title", title, "score", score)
			metrics.Global.IncrementLowQualityDropped()
			continue
		}

		link := strings.TrimSpace(e.Link)
		if link == "" {
			continue
		}

		published := e.Published
		if published.IsZero() {
			published = now
		}

		out = append(out, Item{
			Title:        title,
			Summary:      truncateRunes(summary, c.cfg.SummaryMaxRunes),
			URL:          link,
			Source:       batch.Source.Name,
			SourceType:   sourceType(batch.Source.Type),
			Published:    published,
			Fingerprint:  Fingerprint(title),
			QualityScore: score,
		})
	}
	return out
}

func (c *Curator) fromForum(batch ForumBatch, cutoff time.Time) []Item {
	name := batch.Name
	if name == "" {
		name = "Hacker News"
	}

	var out []Item
	for _, s := range batch.Stories {
		metrics.Global.IncrementNewsProcessed()

		published := c.now()
		if s.Time > 0 {
			published = time.Unix(s.Time, 0)
			if published.Before(cutoff) {
				continue
			}
		}

		title := strings.TrimSpace(s.Title)
		if !c.IsRelevant(title, "") {
			continue
		}

		if s.Score < c.cfg.Forum.MinScore {
			continue
		}

		score := c.QualityScore(title, "") + c.forumBonus(s.Score)
		if score < c.cfg.DropThreshold {
			metrics.Global.IncrementLowQualityDropped()
			continue
		}

		link := strings.TrimSpace(s.URL)
		if link == "" {
			link = fmt.Sprintf("https://news.ycombinator.com/item?id=%d", s.ID)
		}

		out = append(out, Item{
			Title:        title,
			Summary:      fmt.Sprintf("%s | score: %d", name, s.Score),
			URL:          link,
			Source:       name,
			SourceType:   "hn",
			Published:    published,
			Fingerprint:  Fingerprint(title),
			QualityScore: score,
		})
	}
	return out
}

func (c *Curator) forumBonus(upvotes int) int {
	bonus := upvotes / c.cfg.Forum.BonusDivisor
	if bonus > c.cfg.Forum.BonusCap {
		bonus = c.cfg.Forum.BonusCap
	}
	if bonus < 0 {
		bonus = 0
	}
	return bonus
}

// dedupe keeps the first item for every (fingerprint, title prefix) key.
func dedupe(items []Item) []Item {
	seen := make(map[string]struct{}, len(items))
	out := make([]Item, 0, len(items))
	for _, it := range items {
		key := dedupKey(it)
		if _, dup := seen[key]; dup {
			logger.Debug("duplicate dropped", "title", it.Title, "source", it.Source)
			metrics.Global.IncrementDuplicatesFiltered()
			continue
		}
		seen[key] = struct{}{}
		out = append(out, it)
	}
	return out
}

func dedupKey(it Item) string {
	return it.Fingerprint + "|" + titlePrefix(it.Title, 20)
}

func sourceType(t string) string {
	if t == "" {
		return "unknown"
	}
	return t
}
