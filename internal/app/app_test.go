package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/deusflow/aidigest/internal/config"
	"github.com/deusflow/aidigest/internal/news"
	"github.com/deusflow/aidigest/internal/papers"
	"github.com/deusflow/aidigest/internal/rss"
	"github.com/deusflow/aidigest/internal/storage"
)

const testYAML = `
news:
  hackernews: false
  search_keywords: [llm, gpt]
  rss_sources:
    - name: Lab Blog
      rss_url: https://example.com/feed
      type: blog
arxiv:
  categories: [cs.AI]
  keywords: [llm]
  max_papers: 2
knowledge:
  categories:
    Basics: [Transformer, Attention]
notifier:
  type: stdout
`

var today = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type feedStub struct{ batches []news.FeedBatch }

func (f feedStub) FetchAll(context.Context, []rss.Feed) []news.FeedBatch { return f.batches }

type forumStub struct{ calls int }

func (f *forumStub) FetchTop(context.Context, int) news.ForumBatch {
	f.calls++
	return news.ForumBatch{Name: "Hacker News", Stories: []news.Story{
		{ID: 1, Title: "GPT release notes", Score: 500, Time: today.Unix()},
	}}
}

type searchStub struct {
	results []papers.Result
	err     error
}

func (s searchStub) Search(context.Context, string, int) ([]papers.Result, error) {
	return s.results, s.err
}

type echoSummarizer struct{ prompts int }

func (e *echoSummarizer) Summarize(context.Context, string) string {
	e.prompts++
	return "generated text"
}

type recordingNotifier struct {
	title, body string
	err         error
}

func (r *recordingNotifier) Send(_ context.Context, title, body string) error {
	r.title, r.body = title, body
	return r.err
}

type firstRand struct{}

func (firstRand) Intn(int) int { return 0 }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(testYAML))
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.LLM.APIKey = ""
	cfg.Knowledge.HistoryFile = filepath.Join(t.TempDir(), "history.json")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config, opts ...Option) *App {
	t.Helper()
	base := []Option{
		WithClock(func() time.Time { return today }),
		WithRand(firstRand{}),
		WithFeedFetcher(feedStub{batches: []news.FeedBatch{{
			Source: news.Source{Name: "Lab Blog", Type: "blog"},
			Entries: []news.Entry{
				{Title: "New LLM release", Summary: "<p>Open source weights</p>", Link: "https://example.com/a", Published: today.Add(-time.Hour)},
				{Title: "Cooking tips", Link: "https://example.com/b", Published: today},
			},
		}}}),
		WithSearcher(searchStub{results: []papers.Result{{
			Title:     "Efficient LLM inference",
			EntryID:   "http://arxiv.org/abs/2503.00001v1",
			Authors:   []string{"A", "B"},
			Abstract:  "We study llm serving.",
			Published: today.Add(-24 * time.Hour),
		}}}),
	}
	a, err := New(context.Background(), cfg, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestRunComposesAndSends(t *testing.T) {
	cfg := testConfig(t)
	llm := &echoSummarizer{}
	out := &recordingNotifier{}
	a := newTestApp(t, cfg, WithSummarizer(llm), WithNotifier(out))

	d, err := a.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(d.News) != 1 || d.News[0].Title != "New LLM release" {
		t.Fatalf("expected the one relevant news item, got %+v", d.News)
	}
	if len(d.Papers) != 1 || d.Papers[0].Paper.ArxivID != "2503.00001v1" {
		t.Fatalf("unexpected papers: %+v", d.Papers)
	}
	if d.Topic.Topic != "Transformer" {
		t.Errorf("expected first topic, got %q", d.Topic.Topic)
	}
	if llm.prompts != 3 {
		t.Errorf("expected news, paper and topic prompts, got %d", llm.prompts)
	}
	if out.title != "AI Daily Digest | 2025-03-10" {
		t.Errorf("unexpected title %q", out.title)
	}
	if !strings.Contains(out.body, "generated text") {
		t.Error("digest body should carry the generated text")
	}
}

func TestRunPersistsTopic(t *testing.T) {
	cfg := testConfig(t)
	a := newTestApp(t, cfg, WithSummarizer(&echoSummarizer{}))

	if _, err := a.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	reloaded := storage.NewFileHistory(cfg.Knowledge.HistoryFile, cfg.Knowledge.MaxHistoryDays)
	reloaded.Load()
	if got, ok := reloaded.LastUsed("Transformer"); !ok || got != "2025-03-10" {
		t.Fatalf("expected Transformer dated 2025-03-10, got %q (ok=%v)", got, ok)
	}

	stats := a.TopicStats()
	if stats.UsedTopics != 1 || stats.RemainingTopics != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if len(a.History()) != 1 {
		t.Errorf("expected one history entry, got %v", a.History())
	}
}

func TestRunSurvivesFailedSources(t *testing.T) {
	cfg := testConfig(t)
	out := &recordingNotifier{}
	a := newTestApp(t, cfg,
		WithFeedFetcher(feedStub{batches: []news.FeedBatch{{Err: errors.New("timeout")}}}),
		WithSearcher(searchStub{err: errors.New("arxiv down")}),
		WithNotifier(out),
	)

	d, err := a.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(d.News) != 0 || len(d.Papers) != 0 {
		t.Fatalf("expected an empty digest, got %d news and %d papers", len(d.News), len(d.Papers))
	}
	if !strings.Contains(out.body, "No AI news today.") {
		t.Error("empty news section should use the placeholder")
	}
	if d.Topic.Topic == "" {
		t.Error("topic must still be chosen")
	}
}

func TestRunReportsNotifierFailure(t *testing.T) {
	cfg := testConfig(t)
	a := newTestApp(t, cfg, WithNotifier(&recordingNotifier{err: errors.New("503")}))

	if _, err := a.Run(context.Background()); err == nil {
		t.Fatal("expected send failure to be returned")
	}
}

func TestRunFailsWhenHistoryCannotBeSaved(t *testing.T) {
	cfg := testConfig(t)
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := storage.NewFileHistory(blocker, 60).Save(); err != nil {
		t.Fatal(err)
	}
	cfg.Knowledge.HistoryFile = filepath.Join(blocker, "history.json")

	out := &recordingNotifier{}
	a := newTestApp(t, cfg, WithNotifier(out))

	if _, err := a.Run(context.Background()); err == nil {
		t.Fatal("expected history save error")
	}
	if out.title != "" {
		t.Error("nothing should be sent when the topic cannot be persisted")
	}
}

func TestForumUsedWhenEnabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.News.HackerNews = true
	forum := &forumStub{}
	a := newTestApp(t, cfg, WithForumFetcher(forum))

	items := a.CollectNews(context.Background())
	if forum.calls != 1 {
		t.Fatalf("expected one forum fetch, got %d", forum.calls)
	}
	var found bool
	for _, it := range items {
		if it.SourceType == "hn" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a forum item among %+v", items)
	}
}

func TestMissingKeyFallsBackToSilentSummarizer(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLM.APIKey = "${GEMINI_API_KEY}"
	a := newTestApp(t, cfg)

	if a.llm != nil {
		t.Fatal("no llm client should be opened without a key")
	}
	d, err := a.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if d.NewsSummary != "" || d.Knowledge != "" {
		t.Error("summaries should be empty without a model")
	}
}

func TestNewsConfigConversion(t *testing.T) {
	cfg := testConfig(t)
	nc := newsConfig(cfg)
	if nc.Lookback != time.Duration(cfg.News.LookbackDays)*24*time.Hour {
		t.Errorf("unexpected lookback %v", nc.Lookback)
	}
	if nc.Forum.MinScore != 100 || nc.DropThreshold != -30 {
		t.Errorf("unexpected converted config %+v", nc)
	}
	if pc := papersConfig(cfg); pc.TitleBonuses != nil {
		t.Errorf("unset bonuses should stay nil, got %v", pc.TitleBonuses)
	}
}

type blockingNotifier struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingNotifier) Send(context.Context, string, string) error {
	close(b.entered)
	<-b.release
	return nil
}

func TestRunRejectsOverlappingRuns(t *testing.T) {
	cfg := testConfig(t)
	block := &blockingNotifier{entered: make(chan struct{}), release: make(chan struct{})}
	a := newTestApp(t, cfg, WithNotifier(block))

	done := make(chan error, 1)
	go func() {
		_, err := a.Run(context.Background())
		done <- err
	}()
	<-block.entered

	if _, err := a.Run(context.Background()); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("expected ErrRunInProgress while a run is sending, got %v", err)
	}

	close(block.release)
	if err := <-done; err != nil {
		t.Fatalf("first run: %v", err)
	}
	if got := a.TopicStats().UsedTopics; got != 1 {
		t.Errorf("the rejected run must not pick a topic, used=%d", got)
	}
}

func TestFeedsFileIsMerged(t *testing.T) {
	cfg := testConfig(t)
	path := filepath.Join(t.TempDir(), "feeds.yaml")
	data := "rss_sources:\n  - name: Extra Lab\n    rss_url: https://extra.example/feed\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg.News.FeedsFile = path

	a := newTestApp(t, cfg)
	if len(a.feedList) != 2 || a.feedList[1].Name != "Extra Lab" {
		t.Fatalf("expected inline and file feeds, got %+v", a.feedList)
	}
}

func TestBrokenFeedsFileFailsConstruction(t *testing.T) {
	cfg := testConfig(t)
	cfg.News.FeedsFile = filepath.Join(t.TempDir(), "missing.yaml")

	if _, err := New(context.Background(), cfg, WithSummarizer(&echoSummarizer{})); err == nil {
		t.Fatal("expected error for a missing feeds file")
	}
}

func TestLLMStatsWithoutClient(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	if a.LLMStats()["enabled"] != false {
		t.Errorf("expected disabled llm stats, got %v", a.LLMStats())
	}
}
