package metrics

import (
	"sync"
	"time"
)

type Metrics struct {
	mu sync.RWMutex

	// Counters
	TotalNewsProcessed  int64
	DuplicatesFiltered  int64
	LowQualityDropped   int64
	NewsSelected        int64
	PapersFetched       int64
	PapersSelected      int64
	TopicsSelected      int64
	LLMCalls            int64
	LLMFailures         int64
	NotificationsSent   int64
	NotificationsFailed int64

	// Timings
	LastProcessingTime    time.Duration
	AverageProcessingTime time.Duration
	TotalProcessingTime   time.Duration
	ProcessingCount       int64

	// Status
	LastTopic     string
	LastRunID     string
	LastRunTime   time.Time
	LastErrorTime time.Time
	LastError     string
	IsHealthy     bool
}

var Global = New()

// New returns a healthy, zeroed metrics set.
func New() *Metrics {
	return &Metrics{IsHealthy: true}
}

func (m *Metrics) add(counter *int64, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	*counter += int64(n)
}

func (m *Metrics) IncrementNewsProcessed() {
	m.add(&m.TotalNewsProcessed, 1)
}

func (m *Metrics) IncrementDuplicatesFiltered() {
	m.add(&m.DuplicatesFiltered, 1)
}

func (m *Metrics) IncrementLowQualityDropped() {
	m.add(&m.LowQualityDropped, 1)
}

func (m *Metrics) AddNewsSelected(n int) {
	m.add(&m.NewsSelected, n)
}

func (m *Metrics) AddPapersFetched(n int) {
	m.add(&m.PapersFetched, n)
}

func (m *Metrics) AddPapersSelected(n int) {
	m.add(&m.PapersSelected, n)
}

func (m *Metrics) IncrementLLMCalls() {
	m.add(&m.LLMCalls, 1)
}

func (m *Metrics) IncrementLLMFailures() {
	m.add(&m.LLMFailures, 1)
}

func (m *Metrics) IncrementNotificationsSent() {
	m.add(&m.NotificationsSent, 1)
}

func (m *Metrics) IncrementNotificationsFailed() {
	m.add(&m.NotificationsFailed, 1)
}

// RecordTopic counts a rotation pick and remembers it for /health.
func (m *Metrics) RecordTopic(topic string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TopicsSelected++
	m.LastTopic = topic
}

func (m *Metrics) RecordProcessingTime(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LastProcessingTime = duration
	m.TotalProcessingTime += duration
	m.ProcessingCount++

	if m.ProcessingCount > 0 {
		m.AverageProcessingTime = m.TotalProcessingTime / time.Duration(m.ProcessingCount)
	}
}

func (m *Metrics) SetLastRun(runID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastRunID = runID
	m.LastRunTime = time.Now()
	m.IsHealthy = true
}

func (m *Metrics) SetError(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

func (m *Metrics) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.IsHealthy
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"total_news_processed":       m.TotalNewsProcessed,
		"duplicates_filtered":        m.DuplicatesFiltered,
		"low_quality_dropped":        m.LowQualityDropped,
		"news_selected":              m.NewsSelected,
		"papers_fetched":             m.PapersFetched,
		"papers_selected":            m.PapersSelected,
		"topics_selected":            m.TopicsSelected,
		"llm_calls":                  m.LLMCalls,
		"llm_failures":               m.LLMFailures,
		"notifications_sent":         m.NotificationsSent,
		"notifications_failed":       m.NotificationsFailed,
		"last_processing_time_ms":    m.LastProcessingTime.Milliseconds(),
		"average_processing_time_ms": m.AverageProcessingTime.Milliseconds(),
		"last_topic":                 m.LastTopic,
		"last_run_id":                m.LastRunID,
		"last_run_time":              m.LastRunTime.Format(time.RFC3339),
		"last_error_time":            m.LastErrorTime.Format(time.RFC3339),
		"last_error":                 m.LastError,
		"is_healthy":                 m.IsHealthy,
	}
}
