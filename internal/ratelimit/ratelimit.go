package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/deusflow/aidigest/internal/logger"
)

// ErrLimitExceeded is returned by Use when a model or the total budget is
// spent for the current window.
var ErrLimitExceeded = errors.New("rate limit exceeded")

// ErrModelLimitExceeded means only this model's budget is spent; other
// models may still be called.
var ErrModelLimitExceeded = fmt.Errorf("%w: model budget spent", ErrLimitExceeded)

// Limiter counts LLM calls per model and in total over a rolling daily
// window. A zero limit means unlimited.
type Limiter struct {
	mu          sync.Mutex
	counts      map[string]int
	totalCount  int
	maxPerModel int
	maxTotal    int
	window      time.Duration
	resetTime   time.Time
	cacheHits   int
	cacheMisses int
	now         func() time.Time
}

// New creates a limiter that resets every 24 hours.
func New(maxPerModel, maxTotal int) *Limiter {
	l := &Limiter{
		counts:      make(map[string]int),
		maxPerModel: maxPerModel,
		maxTotal:    maxTotal,
		window:      24 * time.Hour,
		now:         time.Now,
	}
	l.resetTime = l.now().Add(l.window)
	return l
}

// SetClock replaces the time source and restarts the window.
func (l *Limiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
	l.resetTime = now().Add(l.window)
}

// Use reserves one call for model.
func (l *Limiter) Use(model string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.checkReset()
	if err := l.check(model); err != nil {
		return err
	}

	l.counts[model]++
	l.totalCount++
	l.cacheMisses++

	logger.Debug("llm usage", "model", model, "model_used", l.counts[model], "total_used", l.totalCount, "total_limit", l.maxTotal)
	return nil
}

// RecordCacheHit counts a response served without a call.
func (l *Limiter) RecordCacheHit() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cacheHits++
}

// GetCacheHitRate returns the hit rate as a percentage.
func (l *Limiter) GetCacheHitRate() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hitRate()
}

func (l *Limiter) GetStats() map[string]interface{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	perModel := make(map[string]int, len(l.counts))
	for k, v := range l.counts {
		perModel[k] = v
	}

	return map[string]interface{}{
		"models":         perModel,
		"model_limit":    l.maxPerModel,
		"total_used":     l.totalCount,
		"total_limit":    l.maxTotal,
		"cache_hits":     l.cacheHits,
		"cache_misses":   l.cacheMisses,
		"cache_hit_rate": l.hitRate(),
		"reset_time":     l.resetTime,
	}
}

func (l *Limiter) check(model string) error {
	if l.maxPerModel > 0 && l.counts[model] >= l.maxPerModel {
		return fmt.Errorf("%w: %s used %d/%d", ErrModelLimitExceeded, model, l.counts[model], l.maxPerModel)
	}
	if l.maxTotal > 0 && l.totalCount >= l.maxTotal {
		return fmt.Errorf("%w: total %d/%d", ErrLimitExceeded, l.totalCount, l.maxTotal)
	}
	return nil
}

func (l *Limiter) hitRate() float64 {
	total := l.cacheHits + l.cacheMisses
	if total == 0 {
		return 0
	}
	return float64(l.cacheHits) / float64(total) * 100
}

// checkReset clears the counters once the window has passed.
func (l *Limiter) checkReset() {
	now := l.now()
	if !now.After(l.resetTime) {
		return
	}

	logger.Info("resetting llm usage counters", "total_used", l.totalCount, "cache_hits", l.cacheHits)
	l.counts = make(map[string]int)
	l.totalCount = 0
	l.cacheHits = 0
	l.cacheMisses = 0
	l.resetTime = now.Add(l.window)
}
