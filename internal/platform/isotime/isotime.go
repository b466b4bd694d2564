// Package isotime formats timestamps the way records already stored in Redis
// encode them: UTC, no zone designator, microsecond precision.
package isotime

import (
	"strings"
	"time"
)

const Layout = "2006-01-02T15:04:05.000000"

func Format(t time.Time) string {
	return t.UTC().Format(Layout)
}

// Parse accepts Layout, Layout without fractional seconds and RFC 3339.
func Parse(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(Layout, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
