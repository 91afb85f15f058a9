package dedup

import (
	"fmt"
	"strings"
)

const detailsPerGroup = 5

// Summary renders the dedup statistics for a digest footer.
func (d *Detector) Summary() string {
	return Summary(d.Stats())
}

// Details lists rejected items grouped by original -> duplicate platform.
func (d *Detector) Details() string {
	return Details(d.Stats())
}

// Summary renders s as a short plain-text report.
func Summary(s Stats) string {
	var b strings.Builder
	b.WriteString("🎯 Dedup summary\n")
	fmt.Fprintf(&b, "• processed: %d\n", s.TotalProcessed)
	fmt.Fprintf(&b, "• duplicates: %d\n", s.TotalDuplicates)
	fmt.Fprintf(&b, "• kept: %d\n", s.UniqueContent)
	if s.TotalDuplicates == 0 {
		b.WriteString("• duplicate rate: 0%")
		return b.String()
	}
	fmt.Fprintf(&b, "• duplicate rate: %.1f%%\n", s.DuplicateRate())

	b.WriteString("\n🔍 Detected by\n")
	fmt.Fprintf(&b, "• hash: %d\n", s.HashBasedDuplicates)
	fmt.Fprintf(&b, "• similarity: %d\n", s.SimilarityBasedDuplicates)

	b.WriteString("\n📱 Platforms")
	for _, source := range platformOrder(s) {
		fmt.Fprintf(&b, "\n• %s: %d", source, s.PlatformDuplicates[source])
	}
	if s.CrossPlatformDuplicates > 0 {
		fmt.Fprintf(&b, "\n• cross-platform: %d", s.CrossPlatformDuplicates)
	}
	return b.String()
}

// Details renders the audit log of s.
func Details(s Stats) string {
	if len(s.Records) == 0 {
		return "🎉 No duplicates found in this batch."
	}

	var order []string
	groups := make(map[string][]Record)
	for _, r := range s.Records {
		key := r.OriginalSource + " → " + r.DuplicateSource
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], r)
	}

	var b strings.Builder
	b.WriteString("🔍 Duplicate details\n")
	for _, key := range order {
		records := groups[key]
		fmt.Fprintf(&b, "\n%s (%d):\n", key, len(records))
		for i, r := range records {
			if i == detailsPerGroup {
				fmt.Fprintf(&b, "  ... %d more\n", len(records)-detailsPerGroup)
				break
			}
			fmt.Fprintf(&b, "  %d. %s\n     original: %s (similarity %.2f, %s, %s)\n",
				i+1, r.DuplicateTitle, r.OriginalTitle, r.SimilarityScore, r.Tier,
				r.DetectedAt.Format("15:04:05"))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// platformOrder lists sources with same-platform duplicates in the order
// their first duplicate was recorded.
func platformOrder(s Stats) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range s.Records {
		if r.OriginalSource != r.DuplicateSource {
			continue
		}
		if _, ok := seen[r.OriginalSource]; ok {
			continue
		}
		seen[r.OriginalSource] = struct{}{}
		out = append(out, r.OriginalSource)
	}
	return out
}
