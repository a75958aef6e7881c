package util

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// FormatBytes renders a byte count like "1.2 MB"
func FormatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}

// FormatCount renders an integer with thousands separators
func FormatCount(n int) string {
	return humanize.Comma(int64(n))
}

// FormatAge renders a timestamp relative to now ("3 days ago").
// The zero time renders as "never".
func FormatAge(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.Time(t)
}

// FormatPrice renders a price rounded to whole units, as shelf listings show it
func FormatPrice(value float64, currency string) string {
	return fmt.Sprintf("%s %s", humanize.CommafWithDigits(value, 0), currency)
}

// Truncate shortens s to max runes, appending "..." when cut
func Truncate(s string, max int) string {
	runes := []rune(s)
	if max <= 3 || len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
