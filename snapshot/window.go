package snapshot

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

const week = 7 * 24 * time.Hour

// ActivityWindow limits which activities are listed.
// A zero After means the full history.
type ActivityWindow struct {
	After time.Time
}

// LastWeek is the window of the week before now
func LastWeek(now time.Time) ActivityWindow {
	return ActivityWindow{After: now.UTC().Add(-week)}
}

// FullHistory is the window without a lower bound
func FullHistory() ActivityWindow {
	return ActivityWindow{}
}

// AfterUnix returns the epoch seconds of the lower bound, or 0 for the full history
func (w ActivityWindow) AfterUnix() int64 {
	if w.After.IsZero() {
		return 0
	}
	return w.After.Unix()
}

func (w ActivityWindow) String() string {
	if w.After.IsZero() {
		return "all"
	}
	return "after " + w.After.UTC().Format(time.RFC3339)
}

var durationRe = regexp.MustCompile(`^([0-9]{1,5})([ywdm])$`)

// parseDuration parses a simplified prometheus-style duration string and
// returns the instant that long before now, in calendar terms
// Supports: y (years), w (weeks), d (days), m (months)
// Examples: "30d", "2w", "1y", "6m"
// No combinations allowed (e.g., "1y2w" is invalid)
func parseDuration(durationStr string, now time.Time) (time.Time, error) {
	matches := durationRe.FindStringSubmatch(durationStr)
	if len(matches) != 3 {
		return time.Time{}, fmt.Errorf("invalid duration format. Use format like '30d', '2w', '1y', or '6m' (no combinations allowed)")
	}

	value, err := strconv.Atoi(matches[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid duration value: %s", matches[1])
	}

	now = now.UTC()
	switch matches[2] {
	case "y":
		return now.AddDate(-value, 0, 0), nil
	case "m":
		return now.AddDate(0, -value, 0), nil
	case "w":
		return now.AddDate(0, 0, -7*value), nil
	case "d":
		return now.AddDate(0, 0, -value), nil
	default:
		return time.Time{}, fmt.Errorf("invalid duration unit: %s (use y, w, d, or m)", matches[2])
	}
}

// parseStartDate parses YYYY-MM-DD, YYYY-MM, or YYYY as the first instant
// of that day, month or year in UTC
func parseStartDate(dateStr string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", "2006-01", "2006"} {
		if t, err := time.ParseInLocation(layout, dateStr, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date format. Use YYYY-MM-DD, YYYY-MM, or YYYY")
}

// ParseWindow parses a --since value, which can be either:
// - "all" for the full history
// - A duration string (30d, 2w, 1y, 6m) relative to now
// - A date string (YYYY-MM-DD, YYYY-MM, or YYYY format)
// An empty value means the last week.
func ParseWindow(sinceStr string, now time.Time) (ActivityWindow, error) {
	switch sinceStr {
	case "":
		return LastWeek(now), nil
	case "all":
		return FullHistory(), nil
	}

	after, err := parseDuration(sinceStr, now)
	if err != nil {
		if after, err = parseStartDate(sinceStr); err != nil {
			return ActivityWindow{}, fmt.Errorf("failed to parse since %q: %w", sinceStr, err)
		}
	}

	if !after.Before(now) {
		return ActivityWindow{}, fmt.Errorf("--since %s (%s) must be in the past", sinceStr, after.Format("2006-01-02"))
	}

	// Strava has nothing before the epoch; older bounds mean the full history.
	if after.Before(time.Unix(0, 0)) {
		return FullHistory(), nil
	}

	return ActivityWindow{After: after}, nil
}
