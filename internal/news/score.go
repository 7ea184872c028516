package news

import (
	"regexp"
	"strings"
)

const (
	lowValuePenalty = 50
	highValueBonus  = 10
	techSignalBonus  = 15
)

// Patterns hinting at concrete technical content: parameter counts,
// speedups, state of the art, new architectures or algorithms.
var techSignals = []*regexp.Regexp{
	regexp.MustCompile(`\d+b`),
	regexp.MustCompile(`\d+x`),
	regexp.MustCompile(`sota`),
	regexp.MustCompile(`新架构`),
	regexp.MustCompile(`新算法`),
	regexp.MustCompile(`突破`),
}

// IsRelevant reports whether title or summary mentions any search keyword,
// case-insensitively.
func (c *Curator) IsRelevant(title, summary string) bool {
	text := strings.ToLower(title + " " + summary)
	return containsAny(text, c.searchKeywords)
}

// QualityScore rates an item by its combined lowercase text: every matching
// low-value keyword costs 50, every high-value keyword adds 10 and every
// technical signal adds 15.
func (c *Curator) QualityScore(title, summary string) int {
	text := strings.ToLower(title + " " + summary)

	score := 0
	score -= lowValuePenalty * countMatches(text, c.lowValueKeywords)
	score += highValueBonus * countMatches(text, c.highValueKeywords)
	for _, re := range techSignals {
		if re.MatchString(text) {
			score += techSignalBonus
		}
	}
	return score
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func countMatches(text string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			n++
		}
	}
	return n
}

func normalizeKeywords(in []string) []string {
	out := make([]string, 0, len(in))
	for _, kw := range in {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			out = append(out, kw)
		}
	}
	return out
}
