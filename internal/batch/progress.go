package batch

import (
	"io"

	"github.com/cheggaaa/pb/v3"
	"go.uber.org/zap"
)

// Outcome is the final state of one descriptor in a run.
type Outcome int

const (
	OutcomeProcessed Outcome = iota
	OutcomeSkipped
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeProcessed:
		return "processed"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Progress is sent once per descriptor, whatever its outcome.
type Progress struct {
	Label   string
	Outcome Outcome
}

// Reporter renders progress. All methods are called from a single goroutine.
type Reporter interface {
	Start(total int)
	Done(p Progress)
	Finish()
}

// BarReporter draws a terminal progress bar.
type BarReporter struct {
	w   io.Writer
	bar *pb.ProgressBar
}

func NewBarReporter(w io.Writer) *BarReporter {
	return &BarReporter{w: w}
}

const barTemplate = `{{counters . }} {{bar . }} {{percent . }} {{etime . }} {{string . "label"}}`

func (r *BarReporter) Start(total int) {
	r.bar = pb.New(total)
	r.bar.SetWriter(r.w)
	r.bar.SetTemplateString(barTemplate)
	r.bar.Start()
}

func (r *BarReporter) Done(p Progress) {
	r.bar.Set("label", p.Label)
	r.bar.Increment()
}

func (r *BarReporter) Finish() {
	r.bar.Finish()
}

// LogReporter logs each completion, for non-interactive runs.
type LogReporter struct {
	logger *zap.Logger
	total  int
	done   int
}

func NewLogReporter(logger *zap.Logger) *LogReporter {
	return &LogReporter{logger: logger}
}

func (r *LogReporter) Start(total int) { r.total = total }

func (r *LogReporter) Done(p Progress) {
	r.done++
	r.logger.Info("snapshot done",
		zap.String("snapshot", p.Label),
		zap.Stringer("outcome", p.Outcome),
		zap.Int("done", r.done),
		zap.Int("total", r.total),
	)
}

func (r *LogReporter) Finish() {}

type nopReporter struct{}

func (nopReporter) Start(int)     {}
func (nopReporter) Done(Progress) {}
func (nopReporter) Finish()       {}
