package dirsize

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"regexp"
	"sync/atomic"

	"github.com/charlievieth/fastwalk"
	"github.com/sirupsen/logrus"
)

// fastWalker walks the OS filesystem with fastwalk, which schedules
// directories across its own pool of workers.
type fastWalker struct {
	agg      *Aggregator
	excludes []*regexp.Regexp
	workers  int
	log      *logrus.Entry

	// Set once an entry was left unvisited because ctx was done.
	cancelled atomic.Bool
}

// walk ignores rootEntries: fastwalk lists the root itself.
func (w *fastWalker) walk(ctx context.Context, root string, _ []fs.DirEntry) bool {
	conf := &fastwalk.Config{
		Follow:     false, // Don't follow symlinks
		NumWorkers: w.workers,
	}

	//nolint:varnamelen // d is standard for DirEntry
	walkErr := fastwalk.Walk(conf, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.log.WithError(err).WithField("path", path).Debug("error accessing path")
			w.agg.Observe(Observation{Path: path, Kind: KindInaccessible, Err: err})

			return nil
		}

		// The root was already listed by Start and is recorded even if the
		// scan is cancelled right away.
		if path == root {
			w.agg.setCurrent(path)
			w.agg.Observe(Observation{Path: path, Kind: KindDirectory})

			return nil
		}

		// Check cancellation on every entry
		select {
		case <-ctx.Done():
			w.cancelled.Store(true)

			return context.Canceled
		default:
		}

		if re := shouldExcludeByPattern(path, w.excludes); re != nil {
			w.log.WithFields(logrus.Fields{"path": path, "pattern": re.String()}).Debug("excluding")

			if d.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		if d.IsDir() {
			w.agg.setCurrent(path)
			w.agg.Observe(Observation{Path: path, Kind: KindDirectory})

			return nil
		}

		// Info does not follow symlinks, so a link reports its own size.
		info, err := d.Info()
		if err != nil {
			w.log.WithError(err).WithField("path", path).Debug("stat entry")
			w.agg.Observe(Observation{Path: path, Kind: KindInaccessible, Err: err})

			return nil //nolint:nilerr // Intentionally skip errors during walk
		}

		w.agg.Observe(Observation{Path: path, Kind: KindFile, Size: info.Size()})

		return nil
	})

	if w.cancelled.Load() {
		return true
	}

	if walkErr != nil && !errors.Is(walkErr, context.Canceled) {
		w.log.WithError(walkErr).Warn("walk stopped")
	}

	return false
}
