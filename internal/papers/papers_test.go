package papers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

var testNow = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

func newTestRanker(t *testing.T, cfg Config) *Ranker {
	t.Helper()
	if cfg.Categories == nil {
		cfg.Categories = []string{"cs.CL", "cs.LG"}
	}
	if cfg.MaxPapers == 0 {
		cfg.MaxPapers = 5
	}
	if cfg.DaysBack == 0 {
		cfg.DaysBack = 3
	}
	r, err := NewRanker(cfg)
	if err != nil {
		t.Fatalf("NewRanker: %v", err)
	}
	r.SetClock(func() time.Time { return testNow })
	return r
}

func result(id, title, abstract string, age time.Duration) Result {
	return Result{
		Title:     title,
		EntryID:   "http://arxiv.org/abs/" + id,
		Abstract:  abstract,
		Published: testNow.Add(-age),
	}
}

func TestRankTitleBonusOutranksPlainMatch(t *testing.T) {
	r := newTestRanker(t, Config{
		Keywords:     []string{"llm", "lora"},
		TitleBonuses: []TitleBonus{{Term: "lora", Bonus: 15}},
	})

	ranked := r.Rank([]Result{
		result("2406.00001v1", "Scaling study", "We train an LLM.", time.Hour),
		result("2406.00002v1", "LoRA adapters", "An LLM adapted with LoRA.", time.Hour),
	})

	if len(ranked) != 2 {
		t.Fatalf("expected 2 papers, got %d", len(ranked))
	}
	if ranked[0].ArxivID != "2406.00002v1" {
		t.Errorf("expected LoRA paper first, got %s", ranked[0].ArxivID)
	}
	if ranked[0].RelevanceScore != 35 || ranked[1].RelevanceScore != 10 {
		t.Errorf("expected scores [35 10], got [%d %d]", ranked[0].RelevanceScore, ranked[1].RelevanceScore)
	}
	if len(ranked[0].MatchedKeywords) != 2 {
		t.Errorf("expected both keywords matched, got %v", ranked[0].MatchedKeywords)
	}
}

func TestRankDropsPapersWithoutKeywords(t *testing.T) {
	r := newTestRanker(t, Config{Keywords: []string{"diffusion"}})

	ranked := r.Rank([]Result{
		result("1", "Graph theory", "Nothing relevant.", time.Hour),
		result("2", "Image Diffusion", "Denoising.", time.Hour),
	})

	if len(ranked) != 1 || ranked[0].ArxivID != "2" {
		t.Fatalf("expected only the diffusion paper, got %+v", ranked)
	}
}

func TestRankDropsStalePapers(t *testing.T) {
	r := newTestRanker(t, Config{Keywords: []string{"llm"}, DaysBack: 3})

	ranked := r.Rank([]Result{
		result("old", "LLM old", "", 4*24*time.Hour),
		result("new", "LLM new", "", 24*time.Hour),
	})

	if len(ranked) != 1 || ranked[0].ArxivID != "new" {
		t.Fatalf("expected only the recent paper, got %+v", ranked)
	}
}

func TestRankLimitsAndNormalizes(t *testing.T) {
	r := newTestRanker(t, Config{Keywords: []string{"llm"}, MaxPapers: 2, TitleBonuses: []TitleBonus{}})

	res := result("2406.1v2", "LLM\n  paper", "Line one\nline two", time.Hour)
	res.Authors = []string{"A", "B", "C", "D"}
	ranked := r.Rank([]Result{
		res,
		result("2406.2v1", "LLM second", "", time.Hour),
		result("2406.3v1", "LLM third", "", time.Hour),
	})

	if len(ranked) != 2 {
		t.Fatalf("expected 2 papers, got %d", len(ranked))
	}
	p := ranked[0]
	if p.Title != "LLM paper" || p.Abstract != "Line one line two" {
		t.Errorf("whitespace not collapsed: %q / %q", p.Title, p.Abstract)
	}
	if len(p.Authors) != 3 {
		t.Errorf("expected 3 authors, got %v", p.Authors)
	}
	if ranked[1].ArxivID != "2406.2v1" {
		t.Errorf("ties should keep input order, got %s", ranked[1].ArxivID)
	}
}

func TestDefaultTitleBonusesStack(t *testing.T) {
	r := newTestRanker(t, Config{Keywords: []string{"llm"}})

	got := r.Score("LoRA fine-tuning for LLM reasoning", []string{"llm"})
	// 10 + lora 15 + fine-tuning 15 + llm 12 + reasoning 8
	if got != 60 {
		t.Errorf("expected 60, got %d", got)
	}
}

func TestBuildQuery(t *testing.T) {
	if got := BuildQuery([]string{"cs.CL", "cs.LG", "cs.AI"}); got != "(cat:cs.CL OR cat:cs.LG OR cat:cs.AI)" {
		t.Errorf("unexpected query %q", got)
	}
	if got := BuildQuery([]string{"cs.CL"}); got != "(cat:cs.CL)" {
		t.Errorf("unexpected query %q", got)
	}
}

func TestNewRankerValidation(t *testing.T) {
	cases := map[string]Config{
		"no categories": {Keywords: []string{"llm"}, MaxPapers: 1, DaysBack: 1},
		"no keywords":   {Categories: []string{"cs.CL"}, MaxPapers: 1, DaysBack: 1},
		"max papers":    {Categories: []string{"cs.CL"}, Keywords: []string{"llm"}, DaysBack: 1},
		"days back":     {Categories: []string{"cs.CL"}, Keywords: []string{"llm"}, MaxPapers: 1},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := NewRanker(cfg); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

type stubSearcher struct {
	query string
	max   int
	res   []Result
	err   error
}

func (s *stubSearcher) Search(_ context.Context, query string, max int) ([]Result, error) {
	s.query, s.max = query, max
	return s.res, s.err
}

func TestEngineRequestsTripleAndSwallowsErrors(t *testing.T) {
	r := newTestRanker(t, Config{Keywords: []string{"llm"}, MaxPapers: 4})

	s := &stubSearcher{res: []Result{result("1", "LLM", "", time.Hour)}}
	papers := NewEngine(r, s).Fetch(context.Background())
	if len(papers) != 1 {
		t.Fatalf("expected 1 paper, got %d", len(papers))
	}
	if s.max != 12 {
		t.Errorf("expected 3x max papers requested, got %d", s.max)
	}
	if s.query != "(cat:cs.CL OR cat:cs.LG)" {
		t.Errorf("unexpected query %q", s.query)
	}

	failing := &stubSearcher{err: errors.New("timeout")}
	papers = NewEngine(r, failing).Fetch(context.Background())
	if papers == nil || len(papers) != 0 {
		t.Fatalf("expected empty non-nil list on error, got %v", papers)
	}
}

const sampleAtom = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>arXiv Query</title>
  <entry>
    <id>http://arxiv.org/abs/2406.01234v1</id>
    <updated>2025-06-09T17:59:59Z</updated>
    <published>2025-06-09T17:59:59Z</published>
    <title>Efficient LoRA
  Fine-Tuning</title>
    <summary>We study low-rank
adaptation of LLMs.</summary>
    <author><name>Ada Lovelace</name></author>
    <author><name>Alan Turing</name></author>
    <link href="http://arxiv.org/abs/2406.01234v1" rel="alternate" type="text/html"/>
    <link title="pdf" href="http://arxiv.org/pdf/2406.01234v1" rel="related" type="application/pdf"/>
    <category term="cs.CL" scheme="http://arxiv.org/schemas/atom"/>
    <category term="cs.LG" scheme="http://arxiv.org/schemas/atom"/>
  </entry>
</feed>`

func TestArxivClientSearch(t *testing.T) {
	var gotQuery, gotMax, gotSort string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("search_query")
		gotMax = r.URL.Query().Get("max_results")
		gotSort = r.URL.Query().Get("sortBy")
		w.Header().Set("Content-Type", "application/atom+xml")
		fmt.Fprint(w, sampleAtom)
	}))
	defer srv.Close()

	c := NewArxivClient(srv.URL, 5*time.Second)
	results, err := c.Search(context.Background(), "(cat:cs.CL)", 15)
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	if gotQuery != "(cat:cs.CL)" || gotMax != "15" || gotSort != "submittedDate" {
		t.Errorf("unexpected request params q=%q max=%q sort=%q", gotQuery, gotMax, gotSort)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}

	res := results[0]
	if res.EntryID != "http://arxiv.org/abs/2406.01234v1" {
		t.Errorf("unexpected entry id %q", res.EntryID)
	}
	if res.PDFURL != "http://arxiv.org/pdf/2406.01234v1" {
		t.Errorf("unexpected pdf url %q", res.PDFURL)
	}
	if len(res.Authors) != 2 || len(res.Categories) != 2 {
		t.Errorf("unexpected authors %v categories %v", res.Authors, res.Categories)
	}
	if !res.Published.Equal(time.Date(2025, 6, 9, 17, 59, 59, 0, time.UTC)) {
		t.Errorf("unexpected published %s", res.Published)
	}

	r := newTestRanker(t, Config{Keywords: []string{"lora"}})
	ranked := r.Rank(results)
	if len(ranked) != 1 || ranked[0].ArxivID != "2406.01234v1" || ranked[0].Title != "Efficient LoRA Fine-Tuning" {
		t.Fatalf("unexpected ranked output %+v", ranked)
	}
}

func TestArxivClientReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if _, err := NewArxivClient(srv.URL, time.Second).Search(context.Background(), "(cat:cs.CL)", 3); err == nil {
		t.Fatal("expected error on 503")
	}
}
