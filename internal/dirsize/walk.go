package dirsize

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Engine selects the traversal backend.
type Engine string

const (
	// EngineAuto uses fastwalk for the OS filesystem and the worker pool otherwise.
	EngineAuto Engine = "auto"
	// EngineFast walks the OS filesystem with fastwalk.
	EngineFast Engine = "fastwalk"
	// EnginePool walks any FileSystem with a bounded errgroup pool.
	EnginePool Engine = "pool"
)

// Engines lists the accepted engine names.
var Engines = []Engine{EngineAuto, EngineFast, EnginePool} //nolint:gochecknoglobals // Constant set

// ParseEngine validates an engine name. An empty name means EngineAuto.
func ParseEngine(name string) (Engine, error) {
	if name == "" {
		return EngineAuto, nil
	}

	for _, e := range Engines {
		if strings.EqualFold(name, string(e)) {
			return e, nil
		}
	}

	return "", fmt.Errorf("unknown engine %q: must be one of %v", name, Engines)
}

// walker traverses a tree and feeds an Aggregator.
type walker interface {
	// walk reports every entry below root. It returns true if it stopped
	// because ctx was cancelled. rootEntries is the listing of root already
	// taken by the caller.
	walk(ctx context.Context, root string, rootEntries []fs.DirEntry) (cancelled bool)
}

// defaultWorkers is the worker count used when none is configured.
func defaultWorkers() int {
	return max(4, runtime.NumCPU())
}

// shouldExcludeByPattern checks if path matches any exclusion regex.
func shouldExcludeByPattern(path string, patterns []*regexp.Regexp) *regexp.Regexp {
	if len(patterns) == 0 {
		return nil
	}

	fPath := filepath.ToSlash(path)

	for _, re := range patterns {
		if re.MatchString(fPath) {
			return re
		}
	}

	return nil
}

// poolWalker walks a FileSystem with a bounded pool of goroutines. Each
// discovered subdirectory is offered to the pool; if every worker is busy
// the discovering goroutine descends into it itself.
type poolWalker struct {
	fsys     FileSystem
	agg      *Aggregator
	excludes []*regexp.Regexp
	workers  int
	log      *logrus.Entry

	// Set once a directory or entry was skipped because ctx was done.
	cancelled atomic.Bool
}

func (w *poolWalker) walk(ctx context.Context, root string, rootEntries []fs.DirEntry) bool {
	var group errgroup.Group

	group.SetLimit(w.workers)

	w.agg.Observe(Observation{Path: root, Kind: KindDirectory})
	w.agg.setCurrent(root)

	group.Go(func() error {
		w.visitEntries(ctx, &group, root, rootEntries)

		return nil
	})

	_ = group.Wait()

	return w.cancelled.Load()
}

// stopped reports whether ctx is done and records that work was skipped.
func (w *poolWalker) stopped(ctx context.Context) bool {
	if ctx.Err() == nil {
		return false
	}

	w.cancelled.Store(true)

	return true
}

// visitDir lists dir and visits its entries.
func (w *poolWalker) visitDir(ctx context.Context, group *errgroup.Group, dir string) {
	if w.stopped(ctx) {
		return
	}

	w.agg.setCurrent(dir)

	entries, err := w.fsys.ReadDir(dir)
	if err != nil {
		w.log.WithError(err).WithField("path", dir).Debug("listing directory")
		w.agg.Observe(Observation{Path: dir, Kind: KindInaccessible, Err: err})

		return
	}

	w.visitEntries(ctx, group, dir, entries)
}

func (w *poolWalker) visitEntries(ctx context.Context, group *errgroup.Group, dir string, entries []fs.DirEntry) {
	for _, entry := range entries {
		if w.stopped(ctx) {
			return
		}

		path := filepath.Join(dir, entry.Name())

		if re := shouldExcludeByPattern(path, w.excludes); re != nil {
			w.log.WithFields(logrus.Fields{"path": path, "pattern": re.String()}).Debug("excluding")

			continue
		}

		if entry.IsDir() {
			w.agg.Observe(Observation{Path: path, Kind: KindDirectory})

			if !group.TryGo(func() error {
				w.visitDir(ctx, group, path)

				return nil
			}) {
				w.visitDir(ctx, group, path)
			}

			continue
		}

		info, err := w.fsys.Lstat(path)
		if err != nil {
			w.log.WithError(err).WithField("path", path).Debug("stat entry")
			w.agg.Observe(Observation{Path: path, Kind: KindInaccessible, Err: err})

			continue
		}

		w.agg.Observe(Observation{Path: path, Kind: KindFile, Size: info.Size()})
	}
}
