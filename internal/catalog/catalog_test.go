package catalog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestProjectFor(t *testing.T) {
	assert.Equal(t, ProjectRIPERIS, ProjectFor("rrc00"))
	assert.Equal(t, ProjectRouteViews, ProjectFor("route-views.sg"))
	assert.Equal(t, ProjectRouteViews, ProjectFor("route-views2"))
}

func TestInferFromLocator(t *testing.T) {
	tests := []struct {
		locator, project, collector string
	}{
		{"http://archive.routeviews.org/route-views.sg/bgpdata/2022.08/RIBS/rib.20220808.1400.bz2", ProjectRouteViews, "route-views.sg"},
		{"https://data.ris.ripe.net/rrc00/2022.08/bview.20220808.0000.gz", ProjectRIPERIS, "rrc00"},
		{"/data/routeviews/rib.20220808.1400.bz2", ProjectRouteViews, "unknown"},
		{"/tmp/rib.bz2", "unknown", "unknown"},
	}
	for _, tt := range tests {
		p, c := InferFromLocator(tt.locator)
		assert.Equal(t, tt.project, p, tt.locator)
		assert.Equal(t, tt.collector, c, tt.locator)
	}
}

func TestSelect(t *testing.T) {
	descs := []Descriptor{
		{Collector: "rrc00", Timestamp: ts("2022-08-08T08:00:00Z")},
		{Collector: "route-views.sg", Timestamp: ts("2022-08-08T00:00:00Z")},
		{Collector: "rrc00", Timestamp: ts("2022-08-08T00:00:00Z")},
		{Collector: "rrc00", Timestamp: ts("2022-08-07T00:00:00Z")},
		{Collector: "rrc00", Timestamp: ts("2022-08-09T00:00:00Z")},
	}
	w := Window{Start: ts("2022-08-08T00:00:00Z"), End: ts("2022-08-08T23:59:59Z")}

	got := Select(descs, w, false)
	require.Len(t, got, 3)
	assert.Equal(t, "route-views.sg", got[0].Collector)
	assert.Equal(t, "rrc00", got[1].Collector)
	assert.Equal(t, ts("2022-08-08T08:00:00Z"), got[2].Timestamp)

	daily := Select(descs, w, true)
	require.Len(t, daily, 2)
	for _, d := range daily {
		assert.Equal(t, 0, d.Timestamp.Hour())
	}

	open := Select(descs, Window{Start: ts("2022-08-08T00:00:00Z")}, false)
	assert.Len(t, open, 4)
}

func TestWindowBoundsInclusive(t *testing.T) {
	w := Window{Start: ts("2022-08-08T00:00:00Z"), End: ts("2022-08-08T02:00:00Z")}
	assert.True(t, w.Contains(w.Start))
	assert.True(t, w.Contains(w.End))
	assert.False(t, w.Contains(w.End.Add(time.Second)))
	assert.False(t, w.Contains(w.Start.Add(-time.Second)))
}

func TestParseDumpTime(t *testing.T) {
	got, ok := ParseDumpTime("rib.20220808.1400.bz2")
	require.True(t, ok)
	assert.Equal(t, ts("2022-08-08T14:00:00Z"), got)

	_, ok = ParseDumpTime("updates.20220808.1400.bz2")
	assert.False(t, ok)
	_, ok = ParseDumpTime("rib.20221308.1400.bz2")
	assert.False(t, ok)
}

func touch(t *testing.T, root string, parts ...string) {
	t.Helper()
	p := filepath.Join(append([]string{root}, parts...)...)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, nil, 0o644))
}

func TestArchiveCatalog(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "route-views.sg", "bgpdata", "2022.08", "RIBS", "rib.20220808.1400.bz2")
	touch(t, root, "route-views.sg", "bgpdata", "2022.08", "UPDATES", "updates.20220808.1400.bz2")
	touch(t, root, "rrc00", "2022.08", "bview.20220808.0000.gz")
	touch(t, root, "rrc00", "bview.20220809.0000.gz")
	touch(t, root, "rrc00", "2022.08", "bview.20220808.0000.txt")

	descs, err := NewArchiveCatalog(root, zap.NewNop()).Descriptors(t.Context())
	require.NoError(t, err)
	got := Select(descs, Window{}, false)
	require.Len(t, got, 3)

	assert.Equal(t, "rrc00", got[0].Collector)
	assert.Equal(t, ts("2022-08-08T00:00:00Z"), got[0].Timestamp)
	assert.Equal(t, filepath.Join(root, "rrc00", "2022.08", "bview.20220808.0000.gz"), got[0].URL)
	assert.Equal(t, "route-views.sg", got[1].Collector)
	assert.Equal(t, ProjectRouteViews, got[1].Project())
	assert.Equal(t, ts("2022-08-09T00:00:00Z"), got[2].Timestamp)
}

func TestStaticCatalogCopies(t *testing.T) {
	c := StaticCatalog{{Collector: "rrc00", Timestamp: ts("2022-08-08T00:00:00Z"), URL: "x"}}
	got, err := c.Descriptors(t.Context())
	require.NoError(t, err)
	got[0].Collector = "changed"
	assert.Equal(t, "rrc00", c[0].Collector)
}
