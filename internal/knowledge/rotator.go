package knowledge

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/deusflow/aidigest/internal/logger"
)

// HistoryStore is the durable record of recently used topics. Save must
// apply the retention window before writing.
type HistoryStore interface {
	Has(topic string) bool
	Record(topic string, day time.Time)
	Reset()
	Save() error
}

// Rand is the random source used for the category and topic draws.
type Rand interface {
	Intn(n int) int
}

// Rotator picks one topic per call, weighting categories by how many of
// their topics are still unused.
type Rotator struct {
	mu      sync.Mutex
	catalog *Catalog
	history HistoryStore
	rng     Rand
	now     func() time.Time
}

type Option func(*Rotator)

// WithRand injects the random source.
func WithRand(r Rand) Option {
	return func(rt *Rotator) { rt.rng = r }
}

// WithClock injects the clock used to date selections.
func WithClock(now func() time.Time) Option {
	return func(rt *Rotator) { rt.now = now }
}

// NewRotator wires a catalog to a loaded history store.
func NewRotator(catalog *Catalog, history HistoryStore, opts ...Option) (*Rotator, error) {
	if catalog == nil || catalog.Size() == 0 {
		return nil, ErrEmptyCatalog
	}
	if history == nil {
		return nil, fmt.Errorf("knowledge: history store is required")
	}

	r := &Rotator{
		catalog: catalog,
		history: history,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Available returns catalog entries whose topic is absent from history.
func (r *Rotator) Available() []Entry {
	var out []Entry
	for _, e := range r.catalog.Entries() {
		if !r.history.Has(e.Topic) {
			out = append(out, e)
		}
	}
	return out
}

// SelectTopic draws today's topic, records it and persists the history.
// When every topic has been used the history is cleared and the full
// catalog becomes available again. Only a failed Save returns an error;
// the selection is still returned in that case.
func (r *Rotator) SelectTopic() (Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	available := r.Available()
	if len(available) == 0 {
		logger.Info("all topics used, resetting history", "catalog_size", r.catalog.Size())
		r.history.Reset()
		available = r.catalog.Entries()
	}

	names, weights := categoryWeights(available)
	category := names[weightedIndex(weights, r.rng)]

	var topics []string
	for _, e := range available {
		if e.Category == category {
			topics = append(topics, e.Topic)
		}
	}
	chosen := Entry{Category: category, Topic: topics[r.rng.Intn(len(topics))]}

	r.history.Record(chosen.Topic, r.now())
	if err := r.history.Save(); err != nil {
		return chosen, fmt.Errorf("knowledge: failed to persist history: %w", err)
	}

	logger.Debug("topic selected", "category", chosen.Category, "topic", chosen.Topic, "available", len(available))
	return chosen, nil
}

// categoryWeights counts available topics per category, in first-seen
// order so draws are reproducible with a seeded source.
func categoryWeights(available []Entry) ([]string, []int) {
	index := make(map[string]int)
	var names []string
	var weights []int
	for _, e := range available {
		i, ok := index[e.Category]
		if !ok {
			i = len(names)
			index[e.Category] = i
			names = append(names, e.Category)
			weights = append(weights, 0)
		}
		weights[i]++
	}
	return names, weights
}

// weightedIndex samples an index with probability proportional to its
// weight using the cumulative-sum method.
func weightedIndex(weights []int, rng Rand) int {
	total := 0
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		return rng.Intn(len(weights))
	}

	target := rng.Intn(total)
	cumulative := 0
	for i, w := range weights {
		cumulative += w
		if target < cumulative {
			return i
		}
	}
	return len(weights) - 1
}
