package merge

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/route-beacon/peer-stats/internal/codec"
	"github.com/route-beacon/peer-stats/internal/metrics"
	"github.com/route-beacon/peer-stats/internal/ribstats"
	"github.com/route-beacon/peer-stats/internal/store"
)

// PeerStatsStore accepts one snapshot's peers at a time and returns
// store.ErrDuplicateKey when the snapshot was already loaded.
type PeerStatsStore interface {
	InsertSnapshot(ctx context.Context, date time.Time, collector string, peers []ribstats.PeerStat) error
}

// IndexReport counts peer-stats partials by outcome.
type IndexReport struct {
	Files     int
	Inserted  int
	Duplicate int
	Bad       int
}

// PeerStatsIndexer loads peer-stats partials into a PeerStatsStore.
type PeerStatsIndexer struct {
	dataDir string
	store   PeerStatsStore
	logger  *zap.Logger
}

func NewPeerStatsIndexer(dataDir string, s PeerStatsStore, logger *zap.Logger) *PeerStatsIndexer {
	return &PeerStatsIndexer{dataDir: dataDir, store: s, logger: logger.Named("index")}
}

// Index loads the peer-stats partials of dates into the store; nil dates
// loads every partial. Store failures other than duplicates abort the run.
func (x *PeerStatsIndexer) Index(ctx context.Context, dates []time.Time) (IndexReport, error) {
	var rep IndexReport
	files, err := FindPartials(x.dataDir, ribstats.DataTypePeerStats, dates)
	if err != nil {
		return rep, err
	}
	rep.Files = len(files)

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		var doc ribstats.PeerStatsDoc
		if err := codec.ReadJSON(f, &doc); err != nil {
			rep.Bad++
			metrics.MergeFilesTotal.WithLabelValues(ribstats.DataTypePeerStats, "bad").Inc()
			x.logger.Warn("skipping unreadable partial", zap.String("path", f), zap.Error(err))
			continue
		}
		date, ok := SourceDate(doc.SourceURL)
		if !ok {
			date, ok = FileDate(f)
		}
		if !ok {
			rep.Bad++
			x.logger.Warn("cannot derive snapshot date, skipping", zap.String("path", f))
			continue
		}

		err := x.store.InsertSnapshot(ctx, date, doc.Collector, sortedPeers(doc.Peers))
		switch {
		case errors.Is(err, store.ErrDuplicateKey):
			rep.Duplicate++
			metrics.MergeFilesTotal.WithLabelValues(ribstats.DataTypePeerStats, "duplicate").Inc()
			x.logger.Info("already exists, skipping", zap.String("path", f))
		case err != nil:
			return rep, fmt.Errorf("indexing %s: %w", f, err)
		default:
			rep.Inserted++
			metrics.MergeFilesTotal.WithLabelValues(ribstats.DataTypePeerStats, "merged").Inc()
		}
	}

	x.logger.Info("peer stats indexed",
		zap.Int("files", rep.Files),
		zap.Int("inserted", rep.Inserted),
		zap.Int("duplicate", rep.Duplicate),
		zap.Int("bad", rep.Bad),
	)
	return rep, nil
}

func sortedPeers(m map[netip.Addr]ribstats.PeerStat) []ribstats.PeerStat {
	out := make([]ribstats.PeerStat, 0, len(m))
	for ip, p := range m {
		p.IP = ip
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b ribstats.PeerStat) int { return a.IP.Compare(b.IP) })
	return out
}
