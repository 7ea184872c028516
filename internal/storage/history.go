package storage

import (
	"sync"
	"time"
)

// DateLayout is the calendar-day format used for every persisted date.
const DateLayout = "2006-01-02"

// History is the in-memory topic -> last-used-date mapping shared by all
// persistence backends. Retention is evaluated against "now" whenever the
// history is about to be written, never per entry on a timer.
type History struct {
	mu            sync.RWMutex
	entries       map[string]string
	retentionDays int
	now           func() time.Time
}

// NewHistory creates an empty history with the given retention window.
func NewHistory(retentionDays int) *History {
	return &History{
		entries:       make(map[string]string),
		retentionDays: retentionDays,
		now:           time.Now,
	}
}

// SetClock replaces the time source used for retention cleanup.
func (h *History) SetClock(now func() time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.now = now
}

// Has reports whether the topic is currently recorded.
func (h *History) Has(topic string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.entries[topic]
	return ok
}

// LastUsed returns the recorded date for a topic.
func (h *History) LastUsed(topic string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	d, ok := h.entries[topic]
	return d, ok
}

// Record sets (or refreshes) the last-used date of a topic.
func (h *History) Record(topic string, day time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[topic] = day.Format(DateLayout)
}

// Reset drops every entry.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = make(map[string]string)
}

// Len returns the number of recorded topics.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// Entries returns a copy of the mapping.
func (h *History) Entries() map[string]string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]string, len(h.entries))
	for k, v := range h.entries {
		out[k] = v
	}
	return out
}

// cleanupLocked removes entries dated before now minus the retention
// window. Dates compare as ISO strings.
func (h *History) cleanupLocked() int {
	cutoff := h.now().AddDate(0, 0, -h.retentionDays).Format(DateLayout)

	removed := 0
	for topic, date := range h.entries {
		if date < cutoff {
			delete(h.entries, topic)
			removed++
		}
	}
	return removed
}

// snapshotForSave runs retention cleanup and returns the state to persist.
func (h *History) snapshotForSave() (map[string]string, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	removed := h.cleanupLocked()
	out := make(map[string]string, len(h.entries))
	for k, v := range h.entries {
		out[k] = v
	}
	return out, removed
}

func (h *History) replace(entries map[string]string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = make(map[string]string, len(entries))
	for k, v := range entries {
		h.entries[k] = v
	}
}
