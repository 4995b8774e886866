// Package store persists per-peer statistics keyed by (date, collector, ip).
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/route-beacon/peer-stats/internal/metrics"
	"github.com/route-beacon/peer-stats/internal/ribstats"
)

// ErrDuplicateKey signals that a row for the snapshot already exists; the
// whole snapshot was rejected and nothing was written.
var ErrDuplicateKey = errors.New("store: duplicate key")

// TxBeginner is satisfied by *pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PeerStatsStore writes peer-stats rows keyed by (date, collector, ip).
type PeerStatsStore struct {
	db     TxBeginner
	logger *zap.Logger
}

func NewPeerStatsStore(db TxBeginner, logger *zap.Logger) *PeerStatsStore {
	return &PeerStatsStore{db: db, logger: logger.Named("store")}
}

const insertPeerStat = `
	INSERT INTO peer_stats (date, collector, ip, asn, num_v4_pfxs, num_v6_pfxs, num_connected_asns)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (date, collector, ip) DO NOTHING`

// InsertSnapshot writes one row per peer in a single transaction. If any
// (date, collector, ip) already exists the transaction is rolled back and
// ErrDuplicateKey is returned.
func (s *PeerStatsStore) InsertSnapshot(ctx context.Context, date time.Time, collector string, peers []ribstats.PeerStat) error {
	start := time.Now()
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		metrics.StoreInsertsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, p := range peers {
		tag, err := tx.Exec(ctx, insertPeerStat,
			day, collector, p.IP, int64(p.ASN),
			int64(p.NumV4Pfxs), int64(p.NumV6Pfxs), int64(p.NumConnectedASNs),
		)
		if err != nil {
			metrics.StoreInsertsTotal.WithLabelValues("error").Inc()
			return fmt.Errorf("insert peer %s: %w", p.IP, err)
		}
		if tag.RowsAffected() == 0 {
			metrics.StoreInsertsTotal.WithLabelValues("duplicate").Inc()
			return fmt.Errorf("%w: (%s, %s, %s)", ErrDuplicateKey, day.Format(time.DateOnly), collector, p.IP)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		metrics.StoreInsertsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("commit tx: %w", err)
	}

	metrics.StoreInsertsTotal.WithLabelValues("inserted").Inc()
	metrics.StoreWriteDuration.Observe(time.Since(start).Seconds())
	s.logger.Debug("peer stats inserted",
		zap.String("date", day.Format(time.DateOnly)),
		zap.String("collector", collector),
		zap.Int("peers", len(peers)),
	)
	return nil
}
