// Package app wires the curation engines into one daily digest run.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/deusflow/aidigest/internal/config"
	"github.com/deusflow/aidigest/internal/digest"
	"github.com/deusflow/aidigest/internal/gemini"
	"github.com/deusflow/aidigest/internal/hackernews"
	"github.com/deusflow/aidigest/internal/knowledge"
	"github.com/deusflow/aidigest/internal/logger"
	"github.com/deusflow/aidigest/internal/metrics"
	"github.com/deusflow/aidigest/internal/news"
	"github.com/deusflow/aidigest/internal/notifier"
	"github.com/deusflow/aidigest/internal/papers"
	"github.com/deusflow/aidigest/internal/rss"
	"github.com/google/uuid"
)

// ErrRunInProgress is returned by Run while another run is still going.
var ErrRunInProgress = errors.New("app: a digest run is already in progress")

// FeedFetcher downloads every configured feed.
type FeedFetcher interface {
	FetchAll(ctx context.Context, feeds []rss.Feed) []news.FeedBatch
}

// ForumFetcher loads the forum front page.
type ForumFetcher interface {
	FetchTop(ctx context.Context, limit int) news.ForumBatch
}

type App struct {
	runMu    sync.Mutex
	cfg      *config.Config
	feedList []rss.Feed
	history  HistoryBackend
	rotator  *knowledge.Rotator
	curator  *news.Curator
	feeds    FeedFetcher
	forum    ForumFetcher
	ranker   *papers.Ranker
	papers   *papers.Engine
	composer *digest.Composer
	notifier notifier.Notifier
	llm      *gemini.Client
	now      func() time.Time
}

type deps struct {
	history    HistoryBackend
	feeds      FeedFetcher
	forum      ForumFetcher
	searcher   papers.Searcher
	summarizer digest.Summarizer
	notifier   notifier.Notifier
	rng        knowledge.Rand
	now        func() time.Time
}

type Option func(*deps)

func WithHistory(h HistoryBackend) Option       { return func(d *deps) { d.history = h } }
func WithFeedFetcher(f FeedFetcher) Option      { return func(d *deps) { d.feeds = f } }
func WithForumFetcher(f ForumFetcher) Option    { return func(d *deps) { d.forum = f } }
func WithSearcher(s papers.Searcher) Option     { return func(d *deps) { d.searcher = s } }
func WithSummarizer(s digest.Summarizer) Option { return func(d *deps) { d.summarizer = s } }
func WithNotifier(n notifier.Notifier) Option   { return func(d *deps) { d.notifier = n } }
func WithRand(r knowledge.Rand) Option          { return func(d *deps) { d.rng = r } }
func WithClock(now func() time.Time) Option     { return func(d *deps) { d.now = now } }

// New builds every component from cfg. Options replace the network-facing
// collaborators.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	d := deps{now: time.Now}
	for _, opt := range opts {
		opt(&d)
	}

	a := &App{cfg: cfg, now: d.now}

	feeds, err := feedList(cfg.News)
	if err != nil {
		return nil, err
	}
	a.feedList = feeds

	catalog, err := knowledge.NewCatalog([]knowledge.Category(cfg.Knowledge.Categories))
	if err != nil {
		return nil, fmt.Errorf("failed to build topic catalog: %w", err)
	}

	a.history = d.history
	if a.history == nil {
		if a.history, err = OpenHistory(cfg.Knowledge); err != nil {
			return nil, err
		}
	}

	rotOpts := []knowledge.Option{knowledge.WithClock(d.now)}
	if d.rng != nil {
		rotOpts = append(rotOpts, knowledge.WithRand(d.rng))
	}
	if a.rotator, err = knowledge.NewRotator(catalog, a.history, rotOpts...); err != nil {
		a.history.Close()
		return nil, err
	}

	if a.curator, err = news.NewCurator(newsConfig(cfg)); err != nil {
		a.history.Close()
		return nil, err
	}
	a.curator.SetClock(d.now)

	if a.ranker, err = papers.NewRanker(papersConfig(cfg)); err != nil {
		a.history.Close()
		return nil, err
	}
	a.ranker.SetClock(d.now)

	a.feeds = d.feeds
	if a.feeds == nil {
		a.feeds = rss.NewFetcher(cfg.News.FetchTimeout)
	}
	a.forum = d.forum
	if a.forum == nil && cfg.News.HackerNews {
		a.forum = hackernews.NewClient("")
	}

	searcher := d.searcher
	if searcher == nil {
		searcher = papers.NewArxivClient(cfg.Arxiv.BaseURL, cfg.Arxiv.Timeout)
	}
	a.papers = papers.NewEngine(a.ranker, searcher)

	summarizer := d.summarizer
	if summarizer == nil {
		summarizer = a.openLLM(ctx)
	}
	a.composer = digest.NewComposer(summarizer, cfg.Content.PaperCount)

	a.notifier = d.notifier
	return a, nil
}

// openLLM connects to Gemini, or returns a summarizer that always yields
// nothing when no key is configured.
func (a *App) openLLM(ctx context.Context) digest.Summarizer {
	key := a.cfg.LLM.APIKey
	if key == "" || strings.HasPrefix(key, "${") || strings.HasPrefix(key, "YOUR_") {
		logger.Warn("llm api key not configured, summaries will be empty")
		return silentSummarizer{}
	}

	client, err := gemini.NewClient(ctx, geminiConfig(a.cfg))
	if err != nil {
		logger.Error("llm client unavailable, summaries will be empty", "error", err)
		return silentSummarizer{}
	}

	names := make([]string, 0, len(client.Models()))
	for _, m := range client.Models() {
		names = append(names, m.Name)
	}
	logger.Info("llm client ready", "models", strings.Join(names, ","))

	a.llm = client
	return client
}

type silentSummarizer struct{}

func (silentSummarizer) Summarize(context.Context, string) string { return "" }

func (a *App) Close() error {
	if a.llm != nil {
		a.llm.Close()
	}
	return a.history.Close()
}

// CollectNews fetches every source and returns the curated items.
func (a *App) CollectNews(ctx context.Context) []news.Item {
	batches := a.feeds.FetchAll(ctx, a.feedList)

	var forum *news.ForumBatch
	if a.forum != nil {
		b := a.forum.FetchTop(ctx, a.cfg.News.HackerNewsOptions.TopStories)
		forum = &b
	}

	items := a.curator.Curate(batches, forum)
	metrics.Global.AddNewsSelected(len(items))
	return items
}

// CollectPapers returns ranked papers, empty on any search failure.
func (a *App) CollectPapers(ctx context.Context) []papers.Paper {
	ps := a.papers.Fetch(ctx)
	metrics.Global.AddPapersSelected(len(ps))
	return ps
}

// PickTopic selects and persists today's topic.
func (a *App) PickTopic() (knowledge.Entry, error) {
	entry, err := a.rotator.SelectTopic()
	if err != nil {
		return entry, err
	}
	metrics.Global.RecordTopic(entry.Topic)
	return entry, nil
}

func (a *App) TopicStats() knowledge.Stats {
	return a.rotator.Stats()
}

// LLMStats reports the model call budget and response cache usage.
func (a *App) LLMStats() map[string]interface{} {
	if a.llm == nil {
		return map[string]interface{}{"enabled": false}
	}
	stats := a.llm.Stats()
	stats["enabled"] = true
	return stats
}

// History returns a copy of the persisted topic history.
func (a *App) History() map[string]string {
	return a.history.Entries()
}

// Run performs one complete digest: news, papers, topic, summaries and the
// push. Fetch problems only shrink the digest; a history write or push
// failure is returned. Only one run executes at a time.
func (a *App) Run(ctx context.Context) (digest.Digest, error) {
	if !a.runMu.TryLock() {
		return digest.Digest{}, ErrRunInProgress
	}
	defer a.runMu.Unlock()

	runID := uuid.NewString()
	log := logger.With("run_id", runID)
	start := time.Now()
	day := a.now()

	log.Info("digest run started", "date", day.Format("2006-01-02"))

	log.Info("step 1/5: collecting news")
	items := a.CollectNews(ctx)
	log.Info("news collected", "count", len(items))

	log.Info("step 2/5: collecting papers")
	ps := a.CollectPapers(ctx)
	log.Info("papers collected", "count", len(ps))

	log.Info("step 3/5: choosing topic")
	stats := a.TopicStats()
	log.Info("topic catalog", "remaining", stats.RemainingTopics, "total", stats.TotalTopics)
	topic, err := a.PickTopic()
	if err != nil {
		metrics.Global.SetError(err.Error())
		return digest.Digest{}, fmt.Errorf("failed to persist topic history: %w", err)
	}
	log.Info("topic chosen", "category", topic.Category, "topic", topic.Topic)

	log.Info("step 4/5: generating summaries")
	d := a.composer.Compose(ctx, day, items, ps, topic)

	log.Info("step 5/5: sending digest")
	if a.notifier != nil {
		if err := a.notifier.Send(ctx, d.Title(), d.Markdown()); err != nil {
			metrics.Global.IncrementNotificationsFailed()
			metrics.Global.SetError(err.Error())
			return d, fmt.Errorf("failed to send digest: %w", err)
		}
		metrics.Global.IncrementNotificationsSent()
	} else {
		log.Warn("no notifier configured, digest not sent")
	}

	elapsed := time.Since(start)
	metrics.Global.RecordProcessingTime(elapsed)
	metrics.Global.SetLastRun(runID)
	if a.llm != nil {
		log.Info("llm usage", "cache_hit_rate", fmt.Sprintf("%.1f%%", a.llm.CacheHitRate()))
	}
	log.Info("digest run finished", "duration", elapsed.String())
	return d, nil
}

// feedList merges the inline sources with the optional feeds file.
func feedList(n config.NewsConfig) ([]rss.Feed, error) {
	feeds := make([]rss.Feed, 0, len(n.RSSSources))
	for _, s := range n.RSSSources {
		feeds = append(feeds, rss.Feed{Name: s.Name, URL: s.URL, Type: s.Type})
	}
	if n.FeedsFile == "" {
		return feeds, nil
	}

	extra, err := rss.LoadFeeds(n.FeedsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load feeds file: %w", err)
	}
	logger.Info("feeds file loaded", "path", n.FeedsFile, "feeds", len(extra))
	return append(feeds, extra...), nil
}

func newsConfig(cfg *config.Config) news.Config {
	n := cfg.News
	return news.Config{
		SearchKeywords:    n.SearchKeywords,
		HighValueKeywords: n.QualityFilter.HighValueKeywords,
		LowValueKeywords:  n.QualityFilter.LowValueKeywords,
		MaxNews:           n.MaxNews,
		Lookback:          time.Duration(n.LookbackDays) * 24 * time.Hour,
		DropThreshold:     n.QualityFilter.DropThreshold,
		EntriesPerSource:  n.EntriesPerSource,
		SummaryMaxRunes:   n.SummaryMaxRunes,
		Forum: news.ForumConfig{
			MinScore:     n.HackerNewsOptions.MinScore,
			BonusDivisor: n.HackerNewsOptions.BonusDivisor,
			BonusCap:     n.HackerNewsOptions.BonusCap,
		},
	}
}

func papersConfig(cfg *config.Config) papers.Config {
	pc := papers.Config{
		Categories: cfg.Arxiv.Categories,
		Keywords:   cfg.Arxiv.Keywords,
		MaxPapers:  cfg.Arxiv.MaxPapers,
		DaysBack:   cfg.Arxiv.DaysBack,
	}
	if cfg.Arxiv.TitleBonuses != nil {
		pc.TitleBonuses = make([]papers.TitleBonus, 0, len(cfg.Arxiv.TitleBonuses))
		for _, b := range cfg.Arxiv.TitleBonuses {
			pc.TitleBonuses = append(pc.TitleBonuses, papers.TitleBonus{Term: b.Term, Bonus: b.Bonus})
		}
	}
	return pc
}

func geminiConfig(cfg *config.Config) gemini.Config {
	models := make([]gemini.Model, 0, len(cfg.LLM.Models))
	for _, m := range cfg.LLM.Models {
		models = append(models, gemini.Model{Name: m.Name, Priority: m.Priority})
	}
	return gemini.Config{
		APIKey:      cfg.LLM.APIKey,
		Models:      models,
		Timeout:     cfg.LLM.Timeout,
		MaxRequests: cfg.LLM.MaxRequests,
		MaxPerModel: cfg.LLM.MaxRequestsPerModel,
		CacheTTL:    cfg.LLM.CacheTTL,
		Pause:       time.Second,
	}
}

// NotifierConfig maps the config section onto the notifier factory.
func NotifierConfig(cfg *config.Config) notifier.Config {
	return notifier.Config{
		Type:           cfg.Notifier.Type,
		ServerChanKey:  cfg.Notifier.ServerChan.SendKey,
		TelegramToken:  cfg.Notifier.Telegram.Token,
		TelegramChatID: cfg.Notifier.Telegram.ChatID,
	}
}
