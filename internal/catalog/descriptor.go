// Package catalog discovers RIB snapshots and selects the ones a batch should process.
package catalog

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"
)

const (
	ProjectRouteViews = "route-views"
	ProjectRIPERIS    = "riperis"
	unknown           = "unknown"
)

// Descriptor identifies one snapshot: the collector that produced it, its
// dump time and where to fetch it from.
type Descriptor struct {
	Collector string    `json:"collector"`
	Timestamp time.Time `json:"timestamp"`
	URL       string    `json:"url"`
}

// Project returns the collector project of d.
func (d Descriptor) Project() string { return ProjectFor(d.Collector) }

// Label is a short human-readable identifier used in progress output and logs.
func (d Descriptor) Label() string {
	return d.Collector + "-" + d.Timestamp.UTC().Format("2006-01-02T15:04")
}

// ProjectFor maps a collector name to its project. RIPE RIS collectors are
// named rrcNN, everything else is attributed to RouteViews.
func ProjectFor(collector string) string {
	if strings.HasPrefix(collector, "rrc") {
		return ProjectRIPERIS
	}
	return ProjectRouteViews
}

// InferFromLocator guesses project and collector for a file given without a
// descriptor. The collector is only known for http(s) archive URLs, where it
// is the first path component.
func InferFromLocator(locator string) (project, collector string) {
	project, collector = unknown, unknown
	switch {
	case strings.Contains(locator, "routeviews"):
		project = ProjectRouteViews
	case strings.Contains(locator, "rrc"):
		project = ProjectRIPERIS
	default:
		return project, collector
	}
	if strings.HasPrefix(locator, "http://") || strings.HasPrefix(locator, "https://") {
		parts := strings.Split(locator, "/")
		if len(parts) > 3 && parts[3] != "" {
			collector = parts[3]
		}
	}
	return project, collector
}

// Catalog lists available snapshots.
type Catalog interface {
	Descriptors(ctx context.Context) ([]Descriptor, error)
}

// StaticCatalog serves a fixed descriptor list, typically from configuration.
type StaticCatalog []Descriptor

func (c StaticCatalog) Descriptors(context.Context) ([]Descriptor, error) {
	return slices.Clone(c), nil
}

// Window is an inclusive time range. A zero End leaves the range open.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) Contains(t time.Time) bool {
	if t.Before(w.Start) {
		return false
	}
	return w.End.IsZero() || !t.After(w.End)
}

// Select keeps descriptors inside w, optionally only the midnight dump of
// each day, ordered by timestamp then collector.
func Select(descs []Descriptor, w Window, onlyDaily bool) []Descriptor {
	out := make([]Descriptor, 0, len(descs))
	for _, d := range descs {
		if !w.Contains(d.Timestamp) {
			continue
		}
		if onlyDaily && d.Timestamp.UTC().Hour() != 0 {
			continue
		}
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b Descriptor) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Collector, b.Collector); c != 0 {
			return c
		}
		return cmp.Compare(a.URL, b.URL)
	})
	return out
}
