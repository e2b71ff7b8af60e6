package dirsize

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"regexp"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultProgressInterval is the default interval for progress updates.
const DefaultProgressInterval = 500 * time.Millisecond

// DefaultTopN is the default number of breakdown rows shown.
const DefaultTopN = 10

// Options configures directory analysis and CLI behavior.
type Options struct {
	// Path is the directory to analyze.
	Path string
	// Excludes contains regex patterns to exclude.
	Excludes []string
	// Workers is the number of parallel traversal workers (0=auto).
	Workers int
	// Engine selects the traversal backend.
	Engine Engine
	// TopN is the number of breakdown rows to display (0=all).
	TopN int
	// DirsOnly limits the displayed breakdown to directories.
	DirsOnly bool
	// ProgressInterval controls progress callback cadence.
	ProgressInterval time.Duration
	// Debug indicates whether debug output is enabled.
	Debug bool
	// Output represents output format (table, json, yaml or paths).
	Output string
	// Version indicates whether to show version and exit.
	Version bool
	// Integration indicates whether to output integration script.
	Integration bool
}

// Scanner starts scans with a fixed configuration. A Scanner holds no
// per-scan state and may start any number of scans.
type Scanner struct {
	fsys     FileSystem
	engine   Engine
	workers  int
	excludes []*regexp.Regexp
	log      *logrus.Entry
}

// Option customizes a Scanner.
type Option func(*Scanner)

// WithFileSystem makes the scanner walk fsys instead of the host filesystem.
func WithFileSystem(fsys FileSystem) Option {
	return func(s *Scanner) {
		s.fsys = fsys
	}
}

// WithLogger sets the logger for traversal diagnostics.
func WithLogger(log *logrus.Entry) Option {
	return func(s *Scanner) {
		s.log = log
	}
}

// NewScanner validates opt and returns a Scanner.
func NewScanner(opt Options, options ...Option) (*Scanner, error) {
	scanner := &Scanner{
		fsys:    OS(),
		workers: opt.Workers,
	}

	for _, option := range options {
		option(scanner)
	}

	if scanner.log == nil {
		discard := logrus.New()
		discard.Out = io.Discard
		scanner.log = logrus.NewEntry(discard)
	}

	engine, err := ParseEngine(string(opt.Engine))
	if err != nil {
		return nil, err
	}

	switch engine {
	case EngineAuto:
		engine = EnginePool
		if isOS(scanner.fsys) {
			engine = EngineFast
		}
	case EngineFast:
		if !isOS(scanner.fsys) {
			return nil, fmt.Errorf("engine %q only walks the host filesystem", EngineFast)
		}
	case EnginePool:
	}

	scanner.engine = engine

	if scanner.workers < 0 {
		return nil, fmt.Errorf("workers cannot be negative: %d", scanner.workers)
	}

	if scanner.workers == 0 {
		scanner.workers = defaultWorkers()
	}

	scanner.excludes = make([]*regexp.Regexp, 0, len(opt.Excludes))

	for _, p := range opt.Excludes {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compiling exclusion pattern %q: %w", p, err)
		}

		scanner.excludes = append(scanner.excludes, re)
	}

	return scanner, nil
}

// Engine returns the resolved traversal backend.
func (s *Scanner) Engine() Engine {
	return s.engine
}

// Start validates root and begins scanning it in the background. It fails
// with an error matching ErrRootUnreadable if root is not a listable
// directory. Cancelling ctx has the same effect as Handle.Cancel.
func (s *Scanner) Start(ctx context.Context, root string) (*Handle, error) {
	root, err := s.resolveRoot(root)
	if err != nil {
		return nil, err
	}

	info, err := s.fsys.Stat(root)
	if err != nil {
		return nil, &RootError{Path: root, Err: err}
	}

	if !info.IsDir() {
		return nil, &RootError{Path: root, Err: errNotDir}
	}

	entries, err := s.fsys.ReadDir(root)
	if err != nil {
		return nil, &RootError{Path: root, Err: err}
	}

	log := s.log.WithFields(logrus.Fields{
		"root":    root,
		"engine":  s.engine,
		"workers": s.workers,
	})

	agg := NewAggregator(root)

	var w walker
	if s.engine == EngineFast {
		w = &fastWalker{agg: agg, excludes: s.excludes, workers: s.workers, log: log}
	} else {
		w = &poolWalker{fsys: s.fsys, agg: agg, excludes: s.excludes, workers: s.workers, log: log}
	}

	ctx, cancel := context.WithCancel(ctx)

	handle := &Handle{
		root:   root,
		agg:    agg,
		cancel: cancel,
		done:   make(chan struct{}),
		log:    log,
	}

	log.Debug("scan started")

	go handle.run(ctx, w, entries)

	return handle, nil
}

// resolveRoot cleans root. On the host filesystem it also makes it absolute
// and resolves symlinks, since only the root itself is ever followed.
func (s *Scanner) resolveRoot(root string) (string, error) {
	if root == "" {
		root = "."
	}

	// Normalize to native format to handle both C:/Path and C:\Path inputs
	root = filepath.Clean(root)

	if !isOS(s.fsys) {
		return root, nil
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return "", &RootError{Path: root, Err: err}
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", &RootError{Path: abs, Err: err}
	}

	return resolved, nil
}

// Handle tracks one running scan.
type Handle struct {
	root   string
	agg    *Aggregator
	cancel context.CancelFunc
	done   chan struct{}
	log    *logrus.Entry

	// Written once before done is closed.
	result *Result
	err    error
}

func (h *Handle) run(ctx context.Context, w walker, rootEntries []fs.DirEntry) {
	defer close(h.done)
	defer h.cancel()

	start := time.Now()

	status := StatusCompleted
	if w.walk(ctx, h.root, rootEntries) {
		status = StatusCancelled
	}

	h.result = h.agg.Finalize(status)
	h.result.Elapsed = time.Since(start)

	if err := h.agg.RootErr(); err != nil {
		h.err = &RootError{Path: h.root, Err: err}
	}

	h.log.WithFields(logrus.Fields{
		"status":       status,
		"total":        h.result.Total,
		"files":        h.result.Files,
		"inaccessible": len(h.result.Inaccessible),
		"elapsed":      h.result.Elapsed,
	}).Debug("scan finished")
}

// Root returns the resolved scan root.
func (h *Handle) Root() string {
	return h.root
}

// Cancel asks the scan to stop. Workers finish the entry at hand, dispatch
// no further directories, and the result is marked cancelled. Cancel is
// idempotent and does nothing once the scan has finished.
func (h *Handle) Cancel() {
	select {
	case <-h.done:
	default:
		h.cancel()
	}
}

// Progress returns a snapshot of the scan counters without blocking.
func (h *Handle) Progress() Progress {
	return h.agg.Progress()
}

// Done is closed once the result is available.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the scan completes or is cancelled and returns the
// frozen result. The error is non-nil only if the root itself became
// unreadable during the walk; the result is still returned in that case.
func (h *Handle) Wait() (*Result, error) {
	<-h.done

	return h.result, h.err
}

// startProgressReporter invokes hook with a progress snapshot on each tick until ctx is done.
func startProgressReporter(ctx context.Context, h *Handle, hook func(Progress), interval time.Duration) {
	if hook == nil {
		return
	}

	if interval <= 0 {
		interval = DefaultProgressInterval
	}

	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				hook(h.Progress())
			case <-h.Done():
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Run performs directory analysis of opt.Path and returns the result.
// Progress updates are sent to progressHook if provided. Cancelling ctx stops
// the walk and yields a partial result marked StatusCancelled.
func Run(ctx context.Context, opt Options, progressHook func(Progress), options ...Option) (*Result, error) {
	scanner, err := NewScanner(opt, options...)
	if err != nil {
		return nil, err
	}

	handle, err := scanner.Start(ctx, opt.Path)
	if err != nil {
		return nil, err
	}

	// Create child context to ensure progress reporter cleanup
	reporterCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	startProgressReporter(reporterCtx, handle, progressHook, opt.ProgressInterval)

	return handle.Wait()
}
