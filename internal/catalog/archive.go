package catalog

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"
)

const archivePattern = "*/**/{rib,bview}.*.{bz2,gz}"

var dumpName = regexp.MustCompile(`^(?:rib|bview)\.(\d{8})\.(\d{4})\.(?:bz2|gz)$`)

// ArchiveCatalog scans a local mirror laid out as
// {root}/{collector}/.../{rib,bview}.YYYYMMDD.HHMM.{bz2,gz}.
type ArchiveCatalog struct {
	root   string
	logger *zap.Logger
}

func NewArchiveCatalog(root string, logger *zap.Logger) *ArchiveCatalog {
	return &ArchiveCatalog{root: root, logger: logger.Named("catalog")}
}

func (c *ArchiveCatalog) Descriptors(ctx context.Context) ([]Descriptor, error) {
	matches, err := doublestar.Glob(os.DirFS(c.root), archivePattern)
	if err != nil {
		return nil, fmt.Errorf("scanning archive %s: %w", c.root, err)
	}
	descs := make([]Descriptor, 0, len(matches))
	for _, m := range matches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ts, ok := ParseDumpTime(path.Base(m))
		if !ok {
			c.logger.Debug("ignoring archive file", zap.String("path", m))
			continue
		}
		collector, _, _ := strings.Cut(m, "/")
		descs = append(descs, Descriptor{
			Collector: collector,
			Timestamp: ts,
			URL:       filepath.Join(c.root, filepath.FromSlash(m)),
		})
	}
	c.logger.Info("archive scanned",
		zap.String("root", c.root),
		zap.Int("snapshots", len(descs)),
	)
	return descs, nil
}

// ParseDumpTime extracts the UTC dump time from a rib/bview file name.
func ParseDumpTime(name string) (time.Time, bool) {
	m := dumpName.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, false
	}
	ts, err := time.Parse("200601021504", m[1]+m[2])
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
