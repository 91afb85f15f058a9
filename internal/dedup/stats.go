package dedup

import "time"

// Record is the audit entry for one rejected item.
type Record struct {
	OriginalTitle   string    `json:"original_title"`
	OriginalSource  string    `json:"original_source"`
	DuplicateTitle  string    `json:"duplicate_title"`
	DuplicateSource string    `json:"duplicate_source"`
	SimilarityScore float64   `json:"similarity_score"`
	HashMatch       bool      `json:"hash_match"`
	Tier            MatchTier `json:"tier"`
	DetectedAt      time.Time `json:"detection_time"`
}

// Stats aggregates the decisions of one detector.
type Stats struct {
	TotalProcessed            int            `json:"total_processed"`
	TotalDuplicates           int            `json:"total_duplicates"`
	UniqueContent             int            `json:"unique_content"`
	PlatformDuplicates        map[string]int `json:"platform_duplicates"`
	CrossPlatformDuplicates   int            `json:"cross_platform_duplicates"`
	HashBasedDuplicates       int            `json:"hash_based_duplicates"`
	SimilarityBasedDuplicates int            `json:"similarity_based_duplicates"`
	Records                   []Record       `json:"duplicate_records"`
}

func newStats() Stats {
	return Stats{PlatformDuplicates: make(map[string]int)}
}

// DuplicateRate is the share of processed items rejected, in percent.
func (s Stats) DuplicateRate() float64 {
	if s.TotalProcessed == 0 {
		return 0
	}
	return float64(s.TotalDuplicates) / float64(s.TotalProcessed) * 100
}

func (s Stats) clone() Stats {
	out := s
	out.PlatformDuplicates = make(map[string]int, len(s.PlatformDuplicates))
	for k, v := range s.PlatformDuplicates {
		out.PlatformDuplicates[k] = v
	}
	out.Records = append([]Record(nil), s.Records...)
	return out
}
