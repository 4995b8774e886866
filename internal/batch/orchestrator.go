// Package batch runs the RIB aggregator over many snapshots in parallel and
// writes one document per data type and snapshot.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/route-beacon/peer-stats/internal/catalog"
	"github.com/route-beacon/peer-stats/internal/codec"
	"github.com/route-beacon/peer-stats/internal/metrics"
	"github.com/route-beacon/peer-stats/internal/notify"
	"github.com/route-beacon/peer-stats/internal/ribstats"
)

// RecordStream is an opened snapshot.
type RecordStream interface {
	ribstats.Source
	io.Closer
}

// Opener resolves a descriptor URL to a record stream.
type Opener interface {
	Open(ctx context.Context, locator string) (RecordStream, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, locator string) (RecordStream, error)

func (f OpenerFunc) Open(ctx context.Context, locator string) (RecordStream, error) {
	return f(ctx, locator)
}

// Options configures an Orchestrator.
type Options struct {
	OutputDir string
	Codec     codec.Codec
	// Workers bounds concurrent snapshots; <= 0 uses runtime.NumCPU.
	Workers int
	Force   bool
	Tier1   ribstats.Tier1Lists
}

// Summary counts descriptors by outcome.
type Summary struct {
	Total     int
	Processed int
	Skipped   int
	Failed    int
}

// DryRunReport describes the selection without processing it.
type DryRunReport struct {
	Count int
	First *catalog.Descriptor
	Last  *catalog.Descriptor
}

// Orchestrator aggregates snapshot descriptors on a bounded worker pool.
type Orchestrator struct {
	opts      Options
	opener    Opener
	publisher notify.Publisher
	reporter  Reporter
	logger    *zap.Logger

	running atomic.Bool
}

// New returns an Orchestrator with no publisher and no progress reporter.
func New(opts Options, opener Opener, logger *zap.Logger) *Orchestrator {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.Codec == nil {
		opts.Codec, _ = codec.ByName("bz2")
	}
	return &Orchestrator{
		opts:      opts,
		opener:    opener,
		publisher: notify.Nop{},
		reporter:  nopReporter{},
		logger:    logger.Named("batch"),
	}
}

// WithPublisher sets the sink for completed-snapshot events.
func (o *Orchestrator) WithPublisher(p notify.Publisher) *Orchestrator {
	o.publisher = p
	return o
}

func (o *Orchestrator) WithReporter(r Reporter) *Orchestrator {
	o.reporter = r
	return o
}

// Running reports whether Run is in progress.
func (o *Orchestrator) Running() bool { return o.running.Load() }

// DryRun reports the selection boundaries without scheduling any work.
func (o *Orchestrator) DryRun(descs []catalog.Descriptor) DryRunReport {
	rep := DryRunReport{Count: len(descs)}
	if len(descs) > 0 {
		rep.First = &descs[0]
		rep.Last = &descs[len(descs)-1]
	}
	fields := []zap.Field{zap.Int("count", rep.Count)}
	if rep.First != nil {
		fields = append(fields,
			zap.String("first", rep.First.Label()),
			zap.String("last", rep.Last.Label()),
		)
	}
	o.logger.Info("dry run", fields...)
	return rep
}

// Run processes every descriptor. Per-snapshot failures are logged and
// counted; the returned error is only set when ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context, descs []catalog.Descriptor) (Summary, error) {
	o.running.Store(true)
	defer o.running.Store(false)

	var processed, skipped, failed atomic.Int64

	// Buffered to the number of descriptors: a slow reporter never stalls workers.
	progress := make(chan Progress, len(descs))
	reporterDone := make(chan struct{})
	o.reporter.Start(len(descs))
	go func() {
		defer close(reporterDone)
		for p := range progress {
			o.reporter.Done(p)
		}
		o.reporter.Finish()
	}()

	o.logger.Info("batch started",
		zap.Int("snapshots", len(descs)),
		zap.Int("workers", o.opts.Workers),
		zap.Bool("force", o.opts.Force),
	)
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Workers)
	for _, d := range descs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			outcome := o.processOne(gctx, d)
			switch outcome {
			case OutcomeProcessed:
				processed.Add(1)
			case OutcomeSkipped:
				skipped.Add(1)
			case OutcomeFailed:
				failed.Add(1)
			}
			metrics.SnapshotsTotal.WithLabelValues(outcome.String()).Inc()
			progress <- Progress{Label: d.Label(), Outcome: outcome}
			return nil
		})
	}
	g.Wait()
	close(progress)
	<-reporterDone

	sum := Summary{
		Total:     len(descs),
		Processed: int(processed.Load()),
		Skipped:   int(skipped.Load()),
		Failed:    int(failed.Load()),
	}
	o.logger.Info("batch finished",
		zap.Int("total", sum.Total),
		zap.Int("processed", sum.Processed),
		zap.Int("skipped", sum.Skipped),
		zap.Int("failed", sum.Failed),
		zap.Duration("elapsed", time.Since(start)),
	)
	if err := ctx.Err(); err != nil {
		return sum, fmt.Errorf("batch interrupted: %w", err)
	}
	return sum, nil
}

// pending returns the outputs of d that still need writing.
func (o *Orchestrator) pending(d catalog.Descriptor) (map[string]string, error) {
	out := make(map[string]string, len(ribstats.DataTypes))
	for _, dt := range ribstats.DataTypes {
		p := OutputPath(o.opts.OutputDir, dt, d, o.opts.Codec)
		if !o.opts.Force {
			ok, err := exists(p)
			if err != nil {
				return nil, &OutputError{Path: p, Err: err}
			}
			if ok {
				continue
			}
		}
		out[dt] = p
	}
	return out, nil
}

func (o *Orchestrator) processOne(ctx context.Context, d catalog.Descriptor) Outcome {
	logger := o.logger.With(zap.String("collector", d.Collector), zap.String("url", d.URL))

	paths, err := o.pending(d)
	if err != nil {
		logger.Error("checking outputs failed", zap.Error(err))
		return OutcomeFailed
	}
	if len(paths) == 0 {
		logger.Debug("outputs exist, skipping")
		return OutcomeSkipped
	}

	res, err := o.aggregate(ctx, d)
	if err != nil {
		logger.Error("aggregation failed", zap.Error(err))
		return OutcomeFailed
	}

	docs := res.Documents()
	outs := make([]output, 0, len(paths))
	for _, dt := range ribstats.DataTypes {
		if p, ok := paths[dt]; ok {
			outs = append(outs, output{dataType: dt, path: p, doc: docs[dt]})
		}
	}
	written, err := writeOutputs(outs, o.opts.Codec)
	if err != nil {
		var oe *OutputError
		if errors.As(err, &oe) {
			logger.Error("writing outputs failed", zap.String("path", oe.Path), zap.Error(oe.Err))
		} else {
			logger.Error("writing outputs failed", zap.Error(err))
		}
		return OutcomeFailed
	}

	logger.Debug("snapshot processed",
		zap.Uint64("records", res.Records),
		zap.Int("outputs", len(written)),
	)
	o.publish(ctx, d, written, logger)
	return OutcomeProcessed
}

func (o *Orchestrator) aggregate(ctx context.Context, d catalog.Descriptor) (*ribstats.Result, error) {
	start := time.Now()
	stream, err := o.opener.Open(ctx, d.URL)
	if err != nil {
		return nil, &ribstats.DecodeError{Locator: d.URL, Err: err}
	}
	defer stream.Close()

	meta := ribstats.Meta{Project: d.Project(), Collector: d.Collector, SourceURL: d.URL}
	res, err := ribstats.Aggregate(stream, o.opts.Tier1, meta)
	if err != nil {
		return nil, err
	}
	metrics.AggregationDuration.WithLabelValues(meta.Project).Observe(time.Since(start).Seconds())
	metrics.RecordsTotal.WithLabelValues(d.Collector).Add(float64(res.Records))
	return res, nil
}

func (o *Orchestrator) publish(ctx context.Context, d catalog.Descriptor, outputs []string, logger *zap.Logger) {
	ev := notify.Event{
		Project:   d.Project(),
		Collector: d.Collector,
		Timestamp: d.Timestamp.UTC(),
		SourceURL: d.URL,
		Outputs:   outputs,
	}
	if err := o.publisher.Publish(ctx, ev); err != nil {
		metrics.NotifyErrorsTotal.Inc()
		logger.Warn("publishing snapshot event failed", zap.Error(err))
	}
}
