package papers

import (
	"context"

	"github.com/deusflow/aidigest/internal/logger"
	"github.com/deusflow/aidigest/internal/metrics"
)

// Engine pairs a Searcher with a Ranker.
type Engine struct {
	ranker   *Ranker
	searcher Searcher
}

func NewEngine(ranker *Ranker, searcher Searcher) *Engine {
	return &Engine{ranker: ranker, searcher: searcher}
}

// Fetch searches and ranks. A search failure yields no papers.
func (e *Engine) Fetch(ctx context.Context) []Paper {
	query := e.ranker.Query()

	results, err := e.searcher.Search(ctx, query, e.ranker.FetchSize())
	if err != nil {
		logger.Warn("paper search failed", "query", query, "error", err)
		return []Paper{}
	}
	metrics.Global.AddPapersFetched(len(results))

	ranked := e.ranker.Rank(results)
	logger.Info("papers ranked", "fetched", len(results), "selected", len(ranked))
	return ranked
}
