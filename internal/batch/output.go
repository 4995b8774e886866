package batch

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/route-beacon/peer-stats/internal/catalog"
	"github.com/route-beacon/peer-stats/internal/codec"
	"github.com/route-beacon/peer-stats/internal/metrics"
)

// OutputError reports a failure to create or write one output file.
type OutputError struct {
	Path string
	Err  error
}

func (e *OutputError) Error() string {
	return fmt.Sprintf("batch: writing %s: %v", e.Path, e.Err)
}

func (e *OutputError) Unwrap() error { return e.Err }

// OutputPath returns the location of one data type's document for d:
// {root}/{dt}/{collector}/{YYYY}/{MM}/{dt}_{collector}_{YYYY-MM-DD}_{epoch}{ext}.
func OutputPath(root, dataType string, d catalog.Descriptor, c codec.Codec) string {
	ts := d.Timestamp.UTC()
	name := fmt.Sprintf("%s_%s_%s_%s%s",
		dataType, d.Collector, ts.Format("2006-01-02"), strconv.FormatInt(ts.Unix(), 10), codec.Ext(c))
	return filepath.Join(root, dataType, d.Collector,
		fmt.Sprintf("%04d", ts.Year()), fmt.Sprintf("%02d", int(ts.Month())), name)
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

type output struct {
	dataType string
	path     string
	doc      any
}

// writeOutputs writes every output or none: on the first failure the files
// already placed by this call are removed.
func writeOutputs(outs []output, c codec.Codec) ([]string, error) {
	written := make([]string, 0, len(outs))
	for _, o := range outs {
		n, err := codec.WriteJSON(o.path, c, o.doc)
		if err != nil {
			metrics.OutputErrorsTotal.WithLabelValues(o.dataType).Inc()
			for _, p := range written {
				os.Remove(p)
			}
			return nil, &OutputError{Path: o.path, Err: err}
		}
		metrics.OutputBytesTotal.WithLabelValues(o.dataType).Add(float64(n))
		written = append(written, o.path)
	}
	return written, nil
}
