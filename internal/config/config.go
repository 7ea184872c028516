// Package config loads the YAML configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/deusflow/aidigest/internal/knowledge"
	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid")

const appName = "aidigest"

type Config struct {
	News       NewsConfig       `yaml:"news"`
	Arxiv      ArxivConfig      `yaml:"arxiv"`
	Knowledge  KnowledgeConfig  `yaml:"knowledge"`
	LLM        LLMConfig        `yaml:"llm"`
	Content    ContentConfig    `yaml:"content"`
	Notifier   NotifierConfig   `yaml:"notifier"`
	Schedule   string           `yaml:"schedule"`
	RunOnStart bool             `yaml:"run_on_start"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Debug      bool             `yaml:"debug"`
}

type FeedSource struct {
	Name string `yaml:"name"`
	URL  string `yaml:"rss_url"`
	Type string `yaml:"type"`
}

type QualityFilter struct {
	HighValueKeywords []string `yaml:"high_value_keywords"`
	LowValueKeywords  []string `yaml:"low_value_keywords"`
	DropThreshold     int      `yaml:"drop_threshold"`
}

type HackerNewsOptions struct {
	MinScore     int `yaml:"min_score"`
	BonusDivisor int `yaml:"bonus_divisor"`
	BonusCap     int `yaml:"bonus_cap"`
	TopStories   int `yaml:"top_stories"`
}

type NewsConfig struct {
	RSSSources        []FeedSource      `yaml:"rss_sources"`
	FeedsFile         string            `yaml:"feeds_file"`
	HackerNews        bool              `yaml:"hackernews"`
	SearchKeywords    []string          `yaml:"search_keywords"`
	MaxNews           int               `yaml:"max_news"`
	LookbackDays      int               `yaml:"lookback_days"`
	EntriesPerSource  int               `yaml:"entries_per_source"`
	SummaryMaxRunes   int               `yaml:"summary_max_runes"`
	FetchTimeout      time.Duration     `yaml:"fetch_timeout"`
	QualityFilter     QualityFilter     `yaml:"quality_filter"`
	HackerNewsOptions HackerNewsOptions `yaml:"hackernews_options"`
}

type TitleBonus struct {
	Term  string `yaml:"term"`
	Bonus int    `yaml:"bonus"`
}

type ArxivConfig struct {
	Categories   []string      `yaml:"categories"`
	Keywords     []string      `yaml:"keywords"`
	MaxPapers    int           `yaml:"max_papers"`
	DaysBack     int           `yaml:"days_back"`
	TitleBonuses []TitleBonus  `yaml:"title_bonuses"`
	BaseURL      string        `yaml:"base_url"`
	Timeout      time.Duration `yaml:"timeout"`
}

type KnowledgeConfig struct {
	Categories     knowledge.CategoryList `yaml:"categories"`
	MaxHistoryDays int                    `yaml:"max_history_days"`
	HistoryBackend string                 `yaml:"history_backend"`
	HistoryFile    string                 `yaml:"history_file"`
	DatabaseURL    string                 `yaml:"database_url"`
}

type LLMModel struct {
	Name     string `yaml:"name"`
	Priority int    `yaml:"priority"`
}

type LLMConfig struct {
	APIKey              string        `yaml:"api_key"`
	Timeout             time.Duration `yaml:"timeout"`
	Models              []LLMModel    `yaml:"models"`
	MaxRequests         int           `yaml:"max_requests"`
	MaxRequestsPerModel int           `yaml:"max_requests_per_model"`
	CacheTTL            time.Duration `yaml:"cache_ttl"`
}

type ContentConfig struct {
	PaperCount int `yaml:"paper_count"`
}

type ServerChanConfig struct {
	SendKey string `yaml:"sendkey"`
}

type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID string `yaml:"chat_id"`
}

type NotifierConfig struct {
	Type       string           `yaml:"type"`
	ServerChan ServerChanConfig `yaml:"serverchan"`
	Telegram   TelegramConfig   `yaml:"telegram"`
}

type MonitoringConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Default returns a config with every tunable at its stock value. Keyword
// lists, sources and the catalog have no defaults.
func Default() *Config {
	return &Config{
		News: NewsConfig{
			HackerNews:       true,
			MaxNews:          8,
			LookbackDays:     2,
			EntriesPerSource: 30,
			SummaryMaxRunes:  400,
			FetchTimeout:     15 * time.Second,
			QualityFilter:    QualityFilter{DropThreshold: -30},
			HackerNewsOptions: HackerNewsOptions{
				MinScore:     100,
				BonusDivisor: 50,
				BonusCap:     20,
				TopStories:   30,
			},
		},
		Arxiv: ArxivConfig{
			MaxPapers: 5,
			DaysBack:  3,
			Timeout:   30 * time.Second,
		},
		Knowledge: KnowledgeConfig{
			MaxHistoryDays: 60,
			HistoryBackend: "file",
		},
		LLM: LLMConfig{
			Timeout: 60 * time.Second,
			Models: []LLMModel{
				{Name: "gemini-2.0-flash", Priority: 1},
				{Name: "gemini-1.5-flash", Priority: 2},
			},
			CacheTTL: 48 * time.Hour,
		},
		Content:  ContentConfig{PaperCount: 2},
		Notifier: NotifierConfig{Type: "serverchan"},
		Schedule: "0 12 * * *",
		Monitoring: MonitoringConfig{
			Addr: ":8080",
		},
	}
}

// DefaultConfigPath prefers ./config.yaml and falls back to the XDG config
// directory.
func DefaultConfigPath() string {
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}
	return filepath.Join(xdg.ConfigHome, appName, "config.yaml")
}

// DefaultHistoryPath is where the file history backend lives unless
// configured otherwise.
func DefaultHistoryPath() string {
	return filepath.Join(xdg.DataHome, appName, "knowledge_history.json")
}

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} with the variable's value. Unset
// variables are left as written.
func expandEnvVars(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		name := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match
	})
}

// Load reads path, expands ${VAR} placeholders, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	cfg, err := Parse([]byte(expandEnvVars(string(data))))
	if err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	cfg.applyEnv()
	cfg.resolvePaths(filepath.Dir(path))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML on top of Default without validating.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.LLM.APIKey = getEnvOrDefault("GEMINI_API_KEY", c.LLM.APIKey)
	c.Notifier.ServerChan.SendKey = getEnvOrDefault("SERVERCHAN_SENDKEY", c.Notifier.ServerChan.SendKey)
	c.Notifier.Telegram.Token = getEnvOrDefault("TELEGRAM_TOKEN", c.Notifier.Telegram.Token)
	c.Notifier.Telegram.ChatID = getEnvOrDefault("TELEGRAM_CHAT_ID", c.Notifier.Telegram.ChatID)
	c.Knowledge.DatabaseURL = getEnvOrDefault("DATABASE_URL", c.Knowledge.DatabaseURL)
	c.Knowledge.HistoryFile = getEnvOrDefault("HISTORY_FILE", c.Knowledge.HistoryFile)

	if limit := getEnvIntOrDefault("MAX_NEWS_LIMIT", 0); limit > 0 {
		c.News.MaxNews = limit
	}
	if os.Getenv("DEBUG") == "true" {
		c.Debug = true
	}
}

// resolvePaths anchors relative history and feeds files at the config
// directory.
func (c *Config) resolvePaths(baseDir string) {
	if c.News.FeedsFile != "" && !filepath.IsAbs(c.News.FeedsFile) {
		c.News.FeedsFile = filepath.Join(baseDir, c.News.FeedsFile)
	}

	switch {
	case c.Knowledge.HistoryFile == "":
		c.Knowledge.HistoryFile = DefaultHistoryPath()
	case !filepath.IsAbs(c.Knowledge.HistoryFile):
		c.Knowledge.HistoryFile = filepath.Join(baseDir, c.Knowledge.HistoryFile)
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Validate checks everything the curation engines need. Notifier
// credentials are checked separately by ValidateNotifier.
func (c *Config) Validate() error {
	topics := 0
	for _, cat := range c.Knowledge.Categories {
		topics += len(cat.Topics)
	}
	if topics == 0 {
		return invalid("knowledge.categories must contain at least one topic")
	}
	if c.Knowledge.MaxHistoryDays <= 0 {
		return invalid("knowledge.max_history_days must be positive")
	}
	switch c.Knowledge.HistoryBackend {
	case "file":
	case "postgres":
		if c.Knowledge.DatabaseURL == "" {
			return invalid("knowledge.database_url is required for the postgres backend (or set DATABASE_URL)")
		}
	default:
		return invalid("unsupported knowledge.history_backend %q (supported: file, postgres)", c.Knowledge.HistoryBackend)
	}

	if len(c.News.SearchKeywords) == 0 {
		return invalid("news.search_keywords must not be empty")
	}
	if c.News.MaxNews <= 0 {
		return invalid("news.max_news must be positive")
	}
	if c.News.LookbackDays <= 0 {
		return invalid("news.lookback_days must be positive")
	}
	for i, s := range c.News.RSSSources {
		if s.Name == "" || s.URL == "" {
			return invalid("news.rss_sources[%d]: name and rss_url are required", i)
		}
	}
	if c.News.FetchTimeout <= 0 {
		return invalid("news.fetch_timeout must be positive")
	}
	if c.News.HackerNewsOptions.BonusDivisor <= 0 {
		return invalid("news.hackernews_options.bonus_divisor must be positive")
	}

	if len(c.Arxiv.Categories) == 0 {
		return invalid("arxiv.categories must not be empty")
	}
	if len(c.Arxiv.Keywords) == 0 {
		return invalid("arxiv.keywords must not be empty")
	}
	if c.Arxiv.MaxPapers <= 0 {
		return invalid("arxiv.max_papers must be positive")
	}
	if c.Arxiv.DaysBack <= 0 {
		return invalid("arxiv.days_back must be positive")
	}
	if c.Arxiv.Timeout <= 0 {
		return invalid("arxiv.timeout must be positive")
	}

	if len(c.LLM.Models) == 0 {
		return invalid("llm.models must not be empty")
	}
	if c.LLM.Timeout <= 0 {
		return invalid("llm.timeout must be positive")
	}
	return nil
}

// ValidateNotifier checks that the configured notifier has credentials.
func (c *Config) ValidateNotifier() error {
	switch c.Notifier.Type {
	case "serverchan":
		if k := c.Notifier.ServerChan.SendKey; k == "" || k == "YOUR_SENDKEY" {
			return invalid("notifier.serverchan.sendkey is required (or set SERVERCHAN_SENDKEY)")
		}
	case "telegram":
		if c.Notifier.Telegram.Token == "" || c.Notifier.Telegram.ChatID == "" {
			return invalid("notifier.telegram.token and chat_id are required (or set TELEGRAM_TOKEN, TELEGRAM_CHAT_ID)")
		}
	case "stdout":
	default:
		return invalid("unsupported notifier.type %q (supported: serverchan, telegram, stdout)", c.Notifier.Type)
	}
	return nil
}
