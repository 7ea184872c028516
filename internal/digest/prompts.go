package digest

import (
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/deusflow/aidigest/internal/knowledge"
	"github.com/deusflow/aidigest/internal/news"
	"github.com/deusflow/aidigest/internal/papers"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

const newsSummaryRunes = 200

var prompts = template.Must(template.New("prompts").Funcs(template.FuncMap{
	"inc":  func(i int) int { return i + 1 },
	"join": strings.Join,
}).ParseFS(promptFS, "prompts/*.tmpl"))

func render(name string, data any) (string, error) {
	var sb strings.Builder
	if err := prompts.ExecuteTemplate(&sb, name, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return sb.String(), nil
}

// NewsPrompt renders the news summary prompt. Summaries are shortened to
// keep the prompt small.
func NewsPrompt(items []news.Item) (string, error) {
	trimmed := make([]news.Item, len(items))
	for i, it := range items {
		if r := []rune(it.Summary); len(r) > newsSummaryRunes {
			it.Summary = string(r[:newsSummaryRunes])
		}
		trimmed[i] = it
	}
	return render("news_summary.tmpl", struct{ Items []news.Item }{trimmed})
}

func PaperPrompt(p papers.Paper) (string, error) {
	return render("paper_analysis.tmpl", p)
}

func TopicPrompt(e knowledge.Entry) (string, error) {
	return render("knowledge_explain.tmpl", e)
}
