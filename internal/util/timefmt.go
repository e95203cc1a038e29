package util

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// PreviewLength is the longest list preview, in runes, before truncation.
const PreviewLength = 50

// TruncatePreview shortens text for list display: at most PreviewLength
// runes, followed by "..." when anything was cut.
func TruncatePreview(text string) string {
	if utf8.RuneCountInString(text) <= PreviewLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:PreviewLength]) + "..."
}

// RelativeTime labels ts relative to now: "just now", "N min ago",
// "N h ago", "N days ago", then an absolute dd.mm.yyyy date after a week.
// It depends only on its arguments.
func RelativeTime(ts, now time.Time) string {
	if ts.IsZero() {
		return ""
	}
	diff := now.Sub(ts)
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%d min ago", int(diff/time.Minute))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%d h ago", int(diff/time.Hour))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%d days ago", int(diff/(24*time.Hour)))
	}
	return ts.In(now.Location()).Format("02.01.2006")
}

// DisplayDateTime renders a message timestamp as "Today, 15:04",
// "Yesterday, 15:04" or "02.01.2006, 15:04", in now's location.
func DisplayDateTime(ts, now time.Time) string {
	if ts.IsZero() {
		return ""
	}
	local := ts.In(now.Location())
	clock := local.Format("15:04")
	switch {
	case sameDay(local, now):
		return "Today, " + clock
	case sameDay(local, now.AddDate(0, 0, -1)):
		return "Yesterday, " + clock
	}
	return local.Format("02.01.2006") + ", " + clock
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Layouts the hub is known to emit. Naive forms are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// ParseTimestamp reads a hub timestamp. Empty input yields the zero time.
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	for _, l := range timestampLayouts {
		if t, err := time.Parse(l, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}
