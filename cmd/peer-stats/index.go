package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/route-beacon/peer-stats/internal/codec"
	"github.com/route-beacon/peer-stats/internal/db"
	"github.com/route-beacon/peer-stats/internal/merge"
	"github.com/route-beacon/peer-stats/internal/store"
	"github.com/route-beacon/peer-stats/migrations"
)

func (e *appEnv) merger() (*merge.Merger, error) {
	c, err := codec.ByName(e.cfg.Batch.Codec)
	if err != nil {
		return nil, err
	}
	return merge.NewMerger(e.cfg.Merge.DataDir, e.cfg.Merge.OutputDir, c, e.logger), nil
}

func (e *appEnv) targetDates() []time.Time {
	return merge.TargetDates(time.Now(), e.cfg.Merge.Location(), e.cfg.Merge.AllowPreviousDay)
}

func (e *appEnv) indexPfx2ASCommand() *cli.Command {
	return &cli.Command{
		Name:  "index-pfx2as",
		Usage: "merge today's pfx2as partials into the cumulative latest file",
		Action: func(c *cli.Context) error {
			ctx, stop := signalContext(c)
			defer stop()

			m, err := e.merger()
			if err != nil {
				return err
			}
			_, err = m.MergePfx2AS(ctx, e.targetDates())
			return err
		},
	}
}

func (e *appEnv) indexAS2RelCommand() *cli.Command {
	return &cli.Command{
		Name:  "index-as2rel",
		Usage: "merge today's as2rel partials (all, v4, v6) into the cumulative latest files",
		Action: func(c *cli.Context) error {
			ctx, stop := signalContext(c)
			defer stop()

			m, err := e.merger()
			if err != nil {
				return err
			}
			_, err = m.MergeAS2Rel(ctx, e.targetDates())
			return err
		},
	}
}

func (e *appEnv) connect(ctx context.Context) (*pgxpool.Pool, error) {
	if err := e.cfg.RequirePostgres(); err != nil {
		return nil, err
	}
	pg := e.cfg.Postgres
	e.logger.Info("connecting to database", zap.String("dsn", redactDSN(pg.DSN)))
	pool, err := db.NewPool(ctx, pg.DSN, pg.MaxConns, pg.MinConns)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return pool, nil
}

func (e *appEnv) indexPeerStatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "index-peer-stats",
		Usage: "load peer-stats partials into the database, one row per peer and day",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "bootstrap", Usage: "load partials of every date, not only today"},
		},
		Action: func(c *cli.Context) error {
			ctx, stop := signalContext(c)
			defer stop()

			pool, err := e.connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			stopHTTP, err := e.startHTTP(pool, nil, nil)
			if err != nil {
				return err
			}
			defer stopHTTP()

			dates := e.targetDates()
			if c.Bool("bootstrap") {
				dates = nil
			}
			st := store.NewPeerStatsStore(pool, e.logger)
			idx := merge.NewPeerStatsIndexer(e.cfg.Merge.DataDir, st, e.logger)
			_, err = idx.Index(ctx, dates)
			return err
		},
	}
}

func (e *appEnv) migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "run database migrations",
		Action: func(c *cli.Context) error {
			ctx, stop := signalContext(c)
			defer stop()

			pool, err := e.connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := db.RunMigrations(ctx, pool, migrations.FS, e.logger); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			e.logger.Info("migrations complete")
			return nil
		},
	}
}
