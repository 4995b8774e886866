package merge

import (
	"context"
	"fmt"
	"net/netip"
	"path/filepath"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/route-beacon/peer-stats/internal/codec"
	"github.com/route-beacon/peer-stats/internal/metrics"
	"github.com/route-beacon/peer-stats/internal/ribstats"
)

type pfxOrigin struct {
	prefix netip.Prefix
	asn    uint32
}

// Pfx2ASAccumulator sums prefix/origin counts across documents.
type Pfx2ASAccumulator map[pfxOrigin]uint64

func (a Pfx2ASAccumulator) Add(entries []ribstats.Pfx2ASEntry) {
	for _, e := range entries {
		a[pfxOrigin{prefix: e.Prefix, asn: e.ASN}] += e.Count
	}
}

// Entries returns the merged entries in prefix, asn order.
func (a Pfx2ASAccumulator) Entries() []ribstats.Pfx2ASEntry {
	out := make([]ribstats.Pfx2ASEntry, 0, len(a))
	for k, c := range a {
		out = append(out, ribstats.Pfx2ASEntry{Prefix: k.prefix, ASN: k.asn, Count: c})
	}
	slices.SortFunc(out, ribstats.ComparePfx2AS)
	return out
}

type relKey struct {
	a, b uint32
	rel  ribstats.RelationCode
}

type relCounts struct {
	messages, peers uint64
}

// AS2RelAccumulator sums message and peer counts per relationship key.
// Peer counts are added, not unioned: a peer seen in two snapshots counts twice.
type AS2RelAccumulator map[relKey]relCounts

func (a AS2RelAccumulator) Add(entries []ribstats.AS2RelEntry) {
	for _, e := range entries {
		k := relKey{a: e.ASNA, b: e.ASNB, rel: e.Relation}
		c := a[k]
		c.messages += e.MessageCount
		c.peers += e.PeersCount
		a[k] = c
	}
}

func (a AS2RelAccumulator) Entries() []ribstats.AS2RelEntry {
	out := make([]ribstats.AS2RelEntry, 0, len(a))
	for k, c := range a {
		out = append(out, ribstats.AS2RelEntry{
			ASNA:         k.a,
			ASNB:         k.b,
			Relation:     k.rel,
			MessageCount: c.messages,
			PeersCount:   c.peers,
		})
	}
	slices.SortFunc(out, ribstats.CompareAS2Rel)
	return out
}

// Report summarises one data type's merge.
type Report struct {
	DataType string
	Files    int
	Bad      int
	Entries  int
	Output   string
}

// Merger folds daily pfx2as and as2rel partials into cumulative latest files.
type Merger struct {
	dataDir   string
	outputDir string
	codec     codec.Codec
	logger    *zap.Logger
}

// NewMerger reads partials under dataDir and writes latest files to outputDir.
func NewMerger(dataDir, outputDir string, c codec.Codec, logger *zap.Logger) *Merger {
	return &Merger{dataDir: dataDir, outputDir: outputDir, codec: c, logger: logger.Named("merge")}
}

// LatestPath is where the cumulative document of dataType is written.
func (m *Merger) LatestPath(dataType string) string {
	return filepath.Join(m.outputDir, dataType+"-latest.json"+codec.Ext(m.codec))
}

// MergePfx2AS folds every pfx2as partial of dates into pfx2as-latest.
func (m *Merger) MergePfx2AS(ctx context.Context, dates []time.Time) (Report, error) {
	acc := Pfx2ASAccumulator{}
	rep, err := m.fold(ctx, ribstats.DataTypePfx2AS, dates, func(path string) error {
		var doc ribstats.Pfx2ASDoc
		if err := codec.ReadJSON(path, &doc); err != nil {
			return err
		}
		acc.Add(doc.Pfx2AS)
		return nil
	})
	if err != nil || rep.Files == rep.Bad {
		return rep, err
	}
	return writeLatest(m, rep, acc.Entries())
}

// MergeAS2Rel merges the global, v4 and v6 relationship partials. Each data
// type is handled on its own; one without partials does not stop the others.
func (m *Merger) MergeAS2Rel(ctx context.Context, dates []time.Time) ([]Report, error) {
	var reports []Report
	for _, dt := range []string{ribstats.DataTypeAS2Rel, ribstats.DataTypeAS2RelV4, ribstats.DataTypeAS2RelV6} {
		acc := AS2RelAccumulator{}
		rep, err := m.fold(ctx, dt, dates, func(path string) error {
			var doc ribstats.AS2RelDoc
			if err := codec.ReadJSON(path, &doc); err != nil {
				return err
			}
			acc.Add(doc.AS2Rel)
			return nil
		})
		if err != nil {
			return reports, err
		}
		if rep.Files > rep.Bad {
			rep, err = writeLatest(m, rep, acc.Entries())
			if err != nil {
				return reports, err
			}
		}
		reports = append(reports, rep)
	}
	return reports, nil
}

// fold applies load to every partial of dataType. Unreadable partials are
// logged and skipped.
func (m *Merger) fold(ctx context.Context, dataType string, dates []time.Time, load func(path string) error) (Report, error) {
	rep := Report{DataType: dataType}
	files, err := FindPartials(m.dataDir, dataType, dates)
	if err != nil {
		return rep, err
	}
	rep.Files = len(files)
	if len(files) == 0 {
		m.logger.Info("no partials found, skipping", zap.String("data_type", dataType))
		return rep, nil
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		if err := load(f); err != nil {
			rep.Bad++
			metrics.MergeFilesTotal.WithLabelValues(dataType, "bad").Inc()
			m.logger.Warn("skipping unreadable partial", zap.String("path", f), zap.Error(err))
			continue
		}
		metrics.MergeFilesTotal.WithLabelValues(dataType, "merged").Inc()
	}
	return rep, nil
}

func writeLatest[E any](m *Merger, rep Report, entries []E) (Report, error) {
	out := m.LatestPath(rep.DataType)
	if _, err := codec.WriteJSON(out, m.codec, entries); err != nil {
		return rep, fmt.Errorf("writing %s: %w", out, err)
	}
	rep.Entries = len(entries)
	rep.Output = out
	m.logger.Info("latest written",
		zap.String("data_type", rep.DataType),
		zap.String("path", out),
		zap.Int("files", rep.Files),
		zap.Int("bad", rep.Bad),
		zap.Int("entries", rep.Entries),
	)
	return rep, nil
}
