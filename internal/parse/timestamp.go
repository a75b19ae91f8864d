package parse

import (
	"fmt"
	"strings"
	"time"
)

// Layout is the wall-clock format machines and the panel write timestamps in.
const Layout = "2006-01-02 15:04:05"

// Layouts accepted for sales records, tried in order. They carry no zone and
// are read in the caller's location.
var saleLayouts = []string{
	Layout,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
	"02.01.2006 15:04:05",
	"02.01.2006 15:04",
	"2006/01/02 15:04:05",
}

// LastSeen parses a heartbeat timestamp. Only Layout is accepted.
func LastSeen(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(Layout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse last_seen %q: %w", s, err)
	}
	return t, nil
}

// Timestamp reads a sale timestamp. Strings are tried against the known
// wall-clock layouts and then RFC 3339; numbers and numeric strings are
// epoch seconds, or epoch milliseconds when too large to be seconds.
func Timestamp(v any, loc *time.Location) (time.Time, bool) {
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range saleLayouts {
			if t, err := time.ParseInLocation(layout, s, loc); err == nil {
				return t, true
			}
		}
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t.In(loc), true
		}
		// Epoch values are sometimes stored as text.
	}

	f, ok := Float(v)
	if !ok || f <= 0 {
		return time.Time{}, false
	}
	if f > 1e12 {
		f /= 1000
	}
	sec := int64(f)
	nsec := int64((f - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).In(loc), true
}

// FormatLocal renders t in loc using Layout.
func FormatLocal(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(Layout)
}
