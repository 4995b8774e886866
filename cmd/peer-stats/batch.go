package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/route-beacon/peer-stats/internal/batch"
	"github.com/route-beacon/peer-stats/internal/catalog"
	"github.com/route-beacon/peer-stats/internal/codec"
	"github.com/route-beacon/peer-stats/internal/config"
	phttp "github.com/route-beacon/peer-stats/internal/http"
	"github.com/route-beacon/peer-stats/internal/mrt"
	"github.com/route-beacon/peer-stats/internal/notify"
	"github.com/route-beacon/peer-stats/internal/ribstats"
)

func (e *appEnv) bootstrapCommand() *cli.Command {
	return &cli.Command{
		Name:  "bootstrap",
		Usage: "aggregate every catalogued snapshot in a time window",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "ts-start", Usage: "window start (RFC3339, YYYY-MM-DD or unix seconds)"},
			&cli.StringFlag{Name: "ts-end", Usage: "window end, inclusive"},
			&cli.BoolFlag{Name: "dry-run", Usage: "report the selection without processing it"},
			&cli.BoolFlag{Name: "force", Usage: "reprocess snapshots whose outputs already exist"},
			&cli.BoolFlag{Name: "only-daily", Usage: "only the first snapshot of each day"},
			&cli.StringFlag{Name: "output-dir", Usage: "override batch.output_dir"},
		},
		Action: e.runBootstrap,
	}
}

func (e *appEnv) runBootstrap(c *cli.Context) error {
	cfg, logger := e.cfg, e.logger

	window, err := config.ParseWindow(c.String("ts-start"), c.String("ts-end"))
	if err != nil {
		return err
	}
	if dir := c.String("output-dir"); dir != "" {
		cfg.Batch.OutputDir = dir
	}
	outCodec, err := codec.ByName(cfg.Batch.Codec)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(c)
	defer stop()

	descs, err := e.descriptors(ctx)
	if err != nil {
		return err
	}
	selected := catalog.Select(descs, window, c.Bool("only-daily") || cfg.Batch.OnlyDaily)

	orch := batch.New(batch.Options{
		OutputDir: cfg.Batch.OutputDir,
		Codec:     outCodec,
		Workers:   cfg.Batch.WorkerCount(),
		Force:     c.Bool("force") || cfg.Batch.Force,
		Tier1:     cfg.Tier1.Lists(),
	}, e.recordOpener(), logger)

	if c.Bool("dry-run") {
		rep := orch.DryRun(selected)
		fmt.Fprintf(c.App.Writer, "%d snapshots selected\n", rep.Count)
		if rep.Count > 0 {
			fmt.Fprintf(c.App.Writer, "first: %s\nlast:  %s\n", rep.First.Label(), rep.Last.Label())
		}
		return nil
	}

	var kafkaPing phttp.Pinger
	if len(cfg.Kafka.Brokers) > 0 {
		pub, err := e.kafkaPublisher()
		if err != nil {
			return err
		}
		defer pub.Close()
		orch.WithPublisher(pub)
		kafkaPing = pub
	}

	if isatty.IsTerminal(os.Stderr.Fd()) {
		orch.WithReporter(batch.NewBarReporter(os.Stderr))
	} else {
		orch.WithReporter(batch.NewLogReporter(logger.Named("progress")))
	}

	stopHTTP, err := e.startHTTP(nil, kafkaPing, orch)
	if err != nil {
		return err
	}
	defer stopHTTP()

	logger.Info("snapshots selected",
		zap.Int("catalogued", len(descs)),
		zap.Int("selected", len(selected)),
		zap.String("output_dir", cfg.Batch.OutputDir),
	)
	_, err = orch.Run(ctx, selected)
	return err
}

// descriptors merges the statically configured snapshots with the local
// archive mirror, when one is configured.
func (e *appEnv) descriptors(ctx context.Context) ([]catalog.Descriptor, error) {
	static, err := e.cfg.Batch.StaticDescriptors()
	if err != nil {
		return nil, err
	}
	cats := []catalog.Catalog{static}
	if e.cfg.Batch.ArchiveDir != "" {
		cats = append(cats, catalog.NewArchiveCatalog(e.cfg.Batch.ArchiveDir, e.logger))
	}

	var out []catalog.Descriptor
	for _, cat := range cats {
		descs, err := cat.Descriptors(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing snapshots: %w", err)
		}
		out = append(out, descs...)
	}
	return out, nil
}

func (e *appEnv) recordOpener() batch.Opener {
	o := mrt.NewOpener(
		time.Duration(e.cfg.Fetch.TimeoutSeconds)*time.Second,
		e.cfg.Fetch.MaxRetries,
		e.logger,
	)
	return batch.OpenerFunc(func(ctx context.Context, locator string) (batch.RecordStream, error) {
		s, err := o.Open(ctx, locator)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
}

func (e *appEnv) kafkaPublisher() (*notify.KafkaPublisher, error) {
	k := e.cfg.Kafka
	tlsCfg, err := k.BuildTLSConfig()
	if err != nil {
		return nil, fmt.Errorf("building TLS config: %w", err)
	}
	pub, err := notify.NewKafkaPublisher(k.Brokers, k.ClientID, k.Topic, tlsCfg, k.BuildSASLMechanism(), e.logger.Named("notify"))
	if err != nil {
		return nil, err
	}
	e.logger.Info("snapshot notifications enabled",
		zap.Strings("brokers", k.Brokers),
		zap.String("topic", k.Topic),
	)
	return pub, nil
}

func (e *appEnv) singleFileCommand() *cli.Command {
	return &cli.Command{
		Name:      "single-file",
		Usage:     "aggregate one RIB dump and print its peer stats",
		ArgsUsage: "<path-or-url>",
		Action: func(c *cli.Context) error {
			locator := c.Args().First()
			if locator == "" {
				return cli.Exit("single-file needs a path or URL", 2)
			}
			project, collector := catalog.InferFromLocator(locator)

			ctx, stop := signalContext(c)
			defer stop()

			stream, err := e.recordOpener().Open(ctx, locator)
			if err != nil {
				return err
			}
			defer stream.Close()

			res, err := ribstats.Aggregate(stream, e.cfg.Tier1.Lists(), ribstats.Meta{
				Project:   project,
				Collector: collector,
				SourceURL: locator,
			})
			if err != nil {
				return err
			}
			e.logger.Info("aggregated",
				zap.String("locator", locator),
				zap.Uint64("records", res.Records),
				zap.Int("peers", len(res.PeerStats.Peers)),
			)

			enc := json.NewEncoder(c.App.Writer)
			enc.SetIndent("", "  ")
			return enc.Encode(res.PeerStats)
		},
	}
}
