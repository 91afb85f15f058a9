package history

import (
	"fmt"
	"strings"
	"time"
)

// naiveLayouts are ISO-8601 forms without a zone, as older ledgers wrote them.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// FormatPushTime renders t the way entries are written.
func FormatPushTime(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

// ParsePushTime accepts RFC 3339 and zone-less ISO-8601 timestamps. Zone-less
// values are read in local time.
func ParsePushTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty push time")
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized push time %q", s)
}
