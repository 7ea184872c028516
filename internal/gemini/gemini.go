package gemini

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/deusflow/aidigest/internal/cache"
	"github.com/deusflow/aidigest/internal/logger"
	"github.com/deusflow/aidigest/internal/metrics"
	"github.com/deusflow/aidigest/internal/ratelimit"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

var (
	ErrAllModelsFailed = errors.New("gemini: all models failed")
	ErrBudgetExhausted = errors.New("gemini: call budget exhausted")
)

// Model is one candidate model; lower Priority is tried first.
type Model struct {
	Name     string `yaml:"name"`
	Priority int    `yaml:"priority"`
}

// GenerateFunc performs one call against one model.
type GenerateFunc func(ctx context.Context, model, prompt string) (string, error)

type Config struct {
	APIKey      string
	Models      []Model
	Timeout     time.Duration // per call
	MaxRequests int           // per day, 0 = unlimited
	MaxPerModel int           // per model per day, 0 = unlimited
	CacheTTL    time.Duration // 0 disables response caching
	Pause       time.Duration // between model attempts
}

type Client struct {
	client   *genai.Client
	models   []Model
	generate GenerateFunc
	limiter  *ratelimit.Limiter
	cache    *cache.Cache
	cacheTTL time.Duration
	timeout  time.Duration
	pause    time.Duration
}

// NewClient connects to the Gemini API.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("failed to create Gemini client: api key is empty")
	}

	gc, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	c := New(cfg, nil)
	c.client = gc
	c.generate = c.callGenAI
	return c, nil
}

// New builds a client around an arbitrary generator.
func New(cfg Config, gen GenerateFunc) *Client {
	models := append([]Model(nil), cfg.Models...)
	sort.SliceStable(models, func(i, j int) bool {
		return models[i].Priority < models[j].Priority
	})

	c := &Client{
		models:   models,
		generate: gen,
		limiter:  ratelimit.New(cfg.MaxPerModel, cfg.MaxRequests),
		cacheTTL: cfg.CacheTTL,
		timeout:  cfg.Timeout,
		pause:    cfg.Pause,
	}
	if cfg.CacheTTL > 0 {
		c.cache = cache.New()
	}
	return c
}

func (c *Client) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

// Models returns the models in the order they are tried.
func (c *Client) Models() []Model {
	return append([]Model(nil), c.models...)
}

// Stats reports call budget usage, cache hit counts and the number of
// cached responses.
func (c *Client) Stats() map[string]interface{} {
	stats := c.limiter.GetStats()
	entries := 0
	if c.cache != nil {
		entries = c.cache.Len()
	}
	stats["cache_entries"] = entries
	return stats
}

// CacheHitRate is the share of prompts answered from cache, in percent.
func (c *Client) CacheHitRate() float64 {
	return c.limiter.GetCacheHitRate()
}

// Generate tries each model in priority order and returns the first
// non-empty answer.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	key := cache.GenerateKey(prompt)
	if c.cache != nil {
		if removed := c.cache.Cleanup(); removed > 0 {
			logger.Debug("llm cache expired entries removed", "count", removed)
		}
		if text, ok := c.cache.GetString(key); ok {
			c.limiter.RecordCacheHit()
			logger.Debug("llm cache hit")
			return text, nil
		}
	}

	if len(c.models) == 0 {
		return "", fmt.Errorf("%w: no models configured", ErrAllModelsFailed)
	}

	var lastErr error
	for i, m := range c.models {
		if err := c.limiter.Use(m.Name); err != nil {
			if errors.Is(err, ratelimit.ErrModelLimitExceeded) {
				logger.Warn("llm model budget spent, skipping", "model", m.Name)
				lastErr = err
				continue
			}
			return "", fmt.Errorf("%w: %w", ErrBudgetExhausted, err)
		}

		logger.Info("calling llm", "model", m.Name, "attempt", i+1, "of", len(c.models))
		metrics.Global.IncrementLLMCalls()

		text, err := c.callOnce(ctx, m.Name, prompt)
		if err == nil {
			if c.cache != nil {
				c.cache.Set(key, text, c.cacheTTL)
			}
			return text, nil
		}

		lastErr = err
		metrics.Global.IncrementLLMFailures()
		logger.Warn("llm model failed", "model", m.Name, "error", err)

		if i < len(c.models)-1 && c.pause > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(c.pause):
			}
		}
	}

	return "", fmt.Errorf("%w: %w", ErrAllModelsFailed, lastErr)
}

// Summarize is Generate with failures collapsed to an empty string.
func (c *Client) Summarize(ctx context.Context, prompt string) string {
	text, err := c.Generate(ctx, prompt)
	if err != nil {
		logger.Error("llm generation failed", "error", err)
		return ""
	}
	return text
}

func (c *Client) callOnce(ctx context.Context, model, prompt string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	text, err := c.generate(ctx, model, prompt)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("empty response")
	}
	return text, nil
}

func (c *Client) callGenAI(ctx context.Context, name, prompt string) (string, error) {
	model := c.client.GenerativeModel(name)
	model.SetTemperature(0.7)
	model.SetTopP(0.8)
	model.SetMaxOutputTokens(2000)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no response from Gemini")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	return sb.String(), nil
}
