package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/route-beacon/peer-stats/internal/catalog"
)

// ParseTime accepts RFC3339, YYYY-MM-DD (midnight UTC) or unix seconds.
func ParseTime(s string) (time.Time, error) {
	t, _, err := parseTime(s)
	return t, err
}

func parseTime(s string) (t time.Time, dateOnly bool, err error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), false, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, true, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(n, 0).UTC(), false, nil
	}
	return time.Time{}, false, fmt.Errorf("unrecognised time %q", s)
}

// ParseWindow builds the batch selection window. An empty start means the
// epoch and an empty end leaves the window open. A date-only end covers the
// whole day.
func ParseWindow(start, end string) (catalog.Window, error) {
	var w catalog.Window
	if start != "" {
		t, err := ParseTime(start)
		if err != nil {
			return w, &Error{Field: "ts-start", Reason: "is invalid", Err: err}
		}
		w.Start = t
	}
	if end != "" {
		t, dateOnly, err := parseTime(end)
		if err != nil {
			return w, &Error{Field: "ts-end", Reason: "is invalid", Err: err}
		}
		if dateOnly {
			t = t.Add(24*time.Hour - time.Second)
		}
		w.End = t
	}
	if !w.End.IsZero() && w.Start.After(w.End) {
		return w, invalid("ts-start", "(%s) is after ts-end (%s)", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
	}
	return w, nil
}
