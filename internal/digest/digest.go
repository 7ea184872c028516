package digest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/deusflow/aidigest/internal/knowledge"
	"github.com/deusflow/aidigest/internal/logger"
	"github.com/deusflow/aidigest/internal/news"
	"github.com/deusflow/aidigest/internal/papers"
)

const (
	Name = "AI Daily Digest"

	noNewsText      = "No AI news today."
	noPapersText    = "No papers selected today."
	unavailableText = "_Summary unavailable, the language model did not respond._"
)

// Summarizer turns a prompt into text, returning "" on failure.
type Summarizer interface {
	Summarize(ctx context.Context, prompt string) string
}

type AnalyzedPaper struct {
	Paper    papers.Paper `json:"paper_info"`
	Analysis string       `json:"analysis"`
}

// Digest is one day's assembled content.
type Digest struct {
	Date        time.Time       `json:"date"`
	News        []news.Item     `json:"news"`
	NewsSummary string          `json:"news_summary"`
	Papers      []AnalyzedPaper `json:"papers"`
	Topic       knowledge.Entry `json:"topic"`
	Knowledge   string          `json:"knowledge"`
}

// Title is the push notification title.
func (d Digest) Title() string {
	return fmt.Sprintf("%s | %s", Name, d.Date.Format("2006-01-02"))
}

// Markdown renders the full digest body.
func (d Digest) Markdown() string {
	var md strings.Builder

	fmt.Fprintf(&md, "# %s\n\n", d.Title())

	md.WriteString("## 📰 Top News\n---\n")
	md.WriteString(orFallback(d.NewsSummary, noNewsText, len(d.News) == 0))
	md.WriteString("\n\n")

	md.WriteString("## 📚 Papers\n---\n")
	if len(d.Papers) == 0 {
		md.WriteString(noPapersText + "\n\n")
	}
	for i, ap := range d.Papers {
		p := ap.Paper
		fmt.Fprintf(&md, "### Paper %d: %s\n\n", i+1, p.Title)
		fmt.Fprintf(&md, "- **arXiv**: [%s](%s)\n", p.ArxivID, p.URL)
		if p.PDFURL != "" {
			fmt.Fprintf(&md, "- **PDF**: %s\n", p.PDFURL)
		}
		fmt.Fprintf(&md, "- **Authors**: %s\n", strings.Join(p.Authors, ", "))
		if !p.Published.IsZero() {
			fmt.Fprintf(&md, "- **Published**: %s\n", p.Published.Format("2006-01-02"))
		}
		md.WriteString("\n")
		md.WriteString(orFallback(ap.Analysis, "", false))
		md.WriteString("\n\n---\n\n")
	}

	fmt.Fprintf(&md, "## 💡 Topic of the Day: [%s] %s\n---\n", d.Topic.Category, d.Topic.Topic)
	md.WriteString(orFallback(d.Knowledge, "", false))
	md.WriteString("\n\n---\n")
	fmt.Fprintf(&md, "*Generated automatically by %s*\n", Name)

	return md.String()
}

func orFallback(text, empty string, isEmpty bool) string {
	if isEmpty && empty != "" {
		return empty
	}
	if strings.TrimSpace(text) == "" {
		return unavailableText
	}
	return text
}

// Composer asks the summarizer for each digest section.
type Composer struct {
	llm        Summarizer
	paperCount int
}

func NewComposer(llm Summarizer, paperCount int) *Composer {
	if paperCount <= 0 {
		paperCount = 2
	}
	return &Composer{llm: llm, paperCount: paperCount}
}

// SummarizeNews returns "" when there is nothing to summarize or the
// summarizer fails.
func (c *Composer) SummarizeNews(ctx context.Context, items []news.Item) string {
	if len(items) == 0 {
		return ""
	}
	prompt, err := NewsPrompt(items)
	if err != nil {
		logger.Error("news prompt failed", "error", err)
		return ""
	}
	return c.llm.Summarize(ctx, prompt)
}

// AnalyzePapers analyzes at most paperCount papers, in ranked order.
func (c *Composer) AnalyzePapers(ctx context.Context, ps []papers.Paper) []AnalyzedPaper {
	if len(ps) > c.paperCount {
		ps = ps[:c.paperCount]
	}

	out := make([]AnalyzedPaper, 0, len(ps))
	for _, p := range ps {
		prompt, err := PaperPrompt(p)
		if err != nil {
			logger.Error("paper prompt failed", "arxiv_id", p.ArxivID, "error", err)
			out = append(out, AnalyzedPaper{Paper: p})
			continue
		}
		out = append(out, AnalyzedPaper{Paper: p, Analysis: c.llm.Summarize(ctx, prompt)})
	}
	return out
}

func (c *Composer) ExplainTopic(ctx context.Context, e knowledge.Entry) string {
	prompt, err := TopicPrompt(e)
	if err != nil {
		logger.Error("topic prompt failed", "topic", e.Topic, "error", err)
		return ""
	}
	return c.llm.Summarize(ctx, prompt)
}

// Compose builds a complete digest for day.
func (c *Composer) Compose(ctx context.Context, day time.Time, items []news.Item, ps []papers.Paper, topic knowledge.Entry) Digest {
	return Digest{
		Date:        day,
		News:        items,
		NewsSummary: c.SummarizeNews(ctx, items),
		Papers:      c.AnalyzePapers(ctx, ps),
		Topic:       topic,
		Knowledge:   c.ExplainTopic(ctx, topic),
	}
}
