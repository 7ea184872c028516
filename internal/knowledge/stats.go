package knowledge

// Stats summarizes catalog usage.
type Stats struct {
	TotalTopics     int            `json:"total_topics"`
	UsedTopics      int            `json:"used_topics"`
	RemainingTopics int            `json:"remaining_topics"`
	Categories      map[string]int `json:"categories"`
}

// Stats counts used topics among the current catalog only, so stale
// history keys from an edited catalog do not skew the numbers.
func (r *Rotator) Stats() Stats {
	s := Stats{Categories: make(map[string]int)}
	for _, cat := range r.catalog.categories {
		s.Categories[cat.Name] = len(cat.Topics)
		for _, t := range cat.Topics {
			s.TotalTopics++
			if r.history.Has(t) {
				s.UsedTopics++
			}
		}
	}
	s.RemainingTopics = s.TotalTopics - s.UsedTopics
	return s
}
