// Package merge folds per-snapshot partials into cumulative "latest"
// documents and loads peer statistics into the keyed store.
package merge

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// FileDate extracts the YYYY-MM-DD component of a partial file name,
// {dt}_{collector}_{YYYY-MM-DD}_{epoch}.{ext}.
func FileDate(name string) (time.Time, bool) {
	parts := strings.Split(path.Base(filepath.ToSlash(name)), "_")
	if len(parts) < 3 {
		return time.Time{}, false
	}
	d, err := time.Parse(time.DateOnly, parts[len(parts)-2])
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

var sourceDate = regexp.MustCompile(`(\d{8})\.\d{4}`)

// SourceDate derives the dump day from a RIB file URL (rib.YYYYMMDD.HHMM...).
func SourceDate(url string) (time.Time, bool) {
	m := sourceDate.FindAllStringSubmatch(url, -1)
	if m == nil {
		return time.Time{}, false
	}
	d, err := time.Parse("20060102", m[len(m)-1][1])
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// TargetDates returns the calendar days to merge relative to now in loc:
// today, plus yesterday when allowPrevious is set.
func TargetDates(now time.Time, loc *time.Location, allowPrevious bool) []time.Time {
	now = now.In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	dates := []time.Time{today}
	if allowPrevious {
		dates = append(dates, today.AddDate(0, 0, -1))
	}
	return dates
}

// FindPartials lists the files of one data type under root whose name date
// is one of dates. A nil dates slice selects every date.
func FindPartials(root, dataType string, dates []time.Time) ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(root), "**/"+dataType+"_*")
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		d, ok := FileDate(m)
		if !ok {
			continue
		}
		if dates != nil && !slices.ContainsFunc(dates, d.Equal) {
			continue
		}
		out = append(out, filepath.Join(root, filepath.FromSlash(m)))
	}
	slices.Sort(out)
	return out, nil
}
