package papers

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrInvalidConfig wraps every construction-time configuration problem.
var ErrInvalidConfig = errors.New("papers: invalid config")

// Result is one raw search hit.
type Result struct {
	Title      string
	EntryID    string // abstract page URL, e.g. http://arxiv.org/abs/2406.01234v1
	PDFURL     string
	Authors    []string
	Abstract   string
	Published  time.Time
	Categories []string
}

// Paper is a ranked, keyword-matched paper.
type Paper struct {
	Title           string    `json:"title"`
	ArxivID         string    `json:"arxiv_id"`
	URL             string    `json:"url"`
	PDFURL          string    `json:"pdf_url"`
	Authors         []string  `json:"authors"`
	Abstract        string    `json:"summary"`
	Published       time.Time `json:"published"`
	Categories      []string  `json:"categories"`
	MatchedKeywords []string  `json:"matched_keywords"`
	RelevanceScore  int       `json:"relevance_score"`
}

// TitleBonus adds Bonus when Term appears in a lowercased title.
type TitleBonus struct {
	Term  string `yaml:"term"`
	Bonus int    `yaml:"bonus"`
}

// DefaultTitleBonuses favors adaptation and alignment work over generic
// architecture terms.
func DefaultTitleBonuses() []TitleBonus {
	return []TitleBonus{
		{"fine-tuning", 15},
		{"finetuning", 15},
		{"lora", 15},
		{"peft", 15},
		{"llm", 12},
		{"large language model", 12},
		{"gpt", 10},
		{"bert", 8},
		{"continual learning", 12},
		{"instruction tuning", 12},
		{"rlhf", 12},
		{"dpo", 12},
		{"moe", 10},
		{"mixture of experts", 10},
		{"multimodal", 10},
		{"vision language", 10},
		{"reasoning", 8},
		{"chain of thought", 10},
		{"quantization", 8},
		{"distillation", 8},
		{"transformer", 6},
		{"attention", 6},
	}
}

const (
	keywordPoints   = 10
	maxAuthors      = 3
	fetchMultiplier = 3
)

type Config struct {
	Categories   []string
	Keywords     []string
	MaxPapers    int
	DaysBack     int
	TitleBonuses []TitleBonus
}

// Ranker filters and scores search results. It keeps no state between
// calls.
type Ranker struct {
	categories []string
	keywords   []string
	bonuses    []TitleBonus
	maxPapers  int
	lookback   time.Duration
	now        func() time.Time
}

func NewRanker(cfg Config) (*Ranker, error) {
	r := &Ranker{
		maxPapers: cfg.MaxPapers,
		lookback:  time.Duration(cfg.DaysBack) * 24 * time.Hour,
		now:       time.Now,
	}

	for _, c := range cfg.Categories {
		if c = strings.TrimSpace(c); c != "" {
			r.categories = append(r.categories, c)
		}
	}
	for _, kw := range cfg.Keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			r.keywords = append(r.keywords, kw)
		}
	}
	r.bonuses = cfg.TitleBonuses
	if r.bonuses == nil {
		r.bonuses = DefaultTitleBonuses()
	}

	switch {
	case len(r.categories) == 0:
		return nil, fmt.Errorf("%w: at least one category is required", ErrInvalidConfig)
	case len(r.keywords) == 0:
		return nil, fmt.Errorf("%w: at least one keyword is required", ErrInvalidConfig)
	case cfg.MaxPapers <= 0:
		return nil, fmt.Errorf("%w: max_papers must be positive, got %d", ErrInvalidConfig, cfg.MaxPapers)
	case cfg.DaysBack <= 0:
		return nil, fmt.Errorf("%w: days_back must be positive, got %d", ErrInvalidConfig, cfg.DaysBack)
	}
	return r, nil
}

// SetClock replaces the time source used for the recency cutoff.
func (r *Ranker) SetClock(now func() time.Time) {
	r.now = now
}

// Query is the search expression for the configured categories.
func (r *Ranker) Query() string {
	return BuildQuery(r.categories)
}

// FetchSize is how many raw results to request so that filtering still
// leaves MaxPapers candidates.
func (r *Ranker) FetchSize() int {
	return r.maxPapers * fetchMultiplier
}

// BuildQuery ORs subject categories: (cat:cs.CL OR cat:cs.LG).
func BuildQuery(categories []string) string {
	parts := make([]string, len(categories))
	for i, c := range categories {
		parts[i] = "cat:" + c
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

// Rank drops stale and off-topic results and returns at most MaxPapers
// papers by descending relevance. Ties keep input order.
func (r *Ranker) Rank(results []Result) []Paper {
	cutoff := r.now().Add(-r.lookback)

	var ranked []Paper
	for _, res := range results {
		if !res.Published.IsZero() && res.Published.Before(cutoff) {
			continue
		}

		title := collapseSpace(res.Title)
		abstract := collapseSpace(res.Abstract)

		matched := r.matchKeywords(title, abstract)
		if len(matched) == 0 {
			continue
		}

		authors := res.Authors
		if len(authors) > maxAuthors {
			authors = authors[:maxAuthors]
		}

		ranked = append(ranked, Paper{
			Title:           title,
			ArxivID:         arxivID(res.EntryID),
			URL:             res.EntryID,
			PDFURL:          res.PDFURL,
			Authors:         append([]string(nil), authors...),
			Abstract:        abstract,
			Published:       res.Published,
			Categories:      res.Categories,
			MatchedKeywords: matched,
			RelevanceScore:  r.Score(title, matched),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].RelevanceScore > ranked[j].RelevanceScore
	})

	if len(ranked) > r.maxPapers {
		ranked = ranked[:r.maxPapers]
	}
	return ranked
}

// Score is 10 per matched keyword plus every title bonus term present.
func (r *Ranker) Score(title string, matched []string) int {
	score := len(matched) * keywordPoints
	lower := strings.ToLower(title)
	for _, b := range r.bonuses {
		if strings.Contains(lower, strings.ToLower(b.Term)) {
			score += b.Bonus
		}
	}
	return score
}

func (r *Ranker) matchKeywords(title, abstract string) []string {
	text := strings.ToLower(title + " " + abstract)
	var matched []string
	for _, kw := range r.keywords {
		if strings.Contains(text, kw) {
			matched = append(matched, kw)
		}
	}
	return matched
}

// arxivID is the last path segment of the entry URL.
func arxivID(entryID string) string {
	entryID = strings.TrimRight(entryID, "/")
	if i := strings.LastIndex(entryID, "/"); i >= 0 {
		return entryID[i+1:]
	}
	return entryID
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
