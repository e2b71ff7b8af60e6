package dirsize

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"math/rand/v2"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// faultyFS injects per-path failures into another FileSystem.
type faultyFS struct {
	FileSystem

	readDirErr map[string]error
	lstatErr   map[string]error
	onReadDir  func(name string)
}

func (f *faultyFS) ReadDir(name string) ([]fs.DirEntry, error) {
	if f.onReadDir != nil {
		f.onReadDir(name)
	}

	if err, ok := f.readDirErr[name]; ok {
		return nil, err
	}

	return f.FileSystem.ReadDir(name)
}

func (f *faultyFS) Lstat(name string) (fs.FileInfo, error) {
	if err, ok := f.lstatErr[name]; ok {
		return nil, err
	}

	return f.FileSystem.Lstat(name)
}

func writeFile(t *testing.T, afs afero.Fs, path string, size int) {
	t.Helper()

	require.NoError(t, afs.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, afero.WriteFile(afs, path, bytes.Repeat([]byte{'x'}, size), 0o644))
}

// dataTree builds /data with a (100+200 bytes) and b (300+400 bytes).
func dataTree(t *testing.T) afero.Fs {
	t.Helper()

	afs := afero.NewMemMapFs()
	writeFile(t, afs, p("a", "one"), 100)
	writeFile(t, afs, p("a", "two"), 200)
	writeFile(t, afs, p("b", "three"), 300)
	writeFile(t, afs, p("b", "nested", "four"), 400)

	return afs
}

func scan(t *testing.T, fsys FileSystem, opt Options) *Result {
	t.Helper()

	scanner, err := NewScanner(opt, WithFileSystem(fsys))
	require.NoError(t, err)

	handle, err := scanner.Start(context.Background(), p())
	require.NoError(t, err)

	result, err := handle.Wait()
	require.NoError(t, err)

	return result
}

func TestScanner_Breakdown(t *testing.T) {
	result := scan(t, FromAfero(dataTree(t)), Options{})

	assert.Equal(t, StatusCompleted, result.Status)
	assert.True(t, result.Complete())
	assert.Equal(t, p(), result.Root)
	assert.Equal(t, int64(1000), result.Total)
	assert.Equal(t, []Child{
		{Name: "b", Path: p("b"), Kind: KindDirectory, Size: 700, Percent: 70},
		{Name: "a", Path: p("a"), Kind: KindDirectory, Size: 300, Percent: 30},
	}, result.Children)
	assert.Empty(t, result.Inaccessible)
	assert.Equal(t, int64(4), result.Files)
	assert.Equal(t, int64(3), result.Dirs)

	requireConsistent(t, result.Tree)
}

func TestScanner_PercentagesSum(t *testing.T) {
	afs := afero.NewMemMapFs()
	for i := range 7 {
		writeFile(t, afs, p(fmt.Sprintf("d%d", i), "f"), 13*(i+1))
	}

	result := scan(t, FromAfero(afs), Options{})

	var sum float64
	for _, child := range result.Children {
		sum += child.Percent
	}

	assert.InDelta(t, 100.0, sum, 1e-6)
}

func TestScanner_EmptyRoot(t *testing.T) {
	afs := afero.NewMemMapFs()
	require.NoError(t, afs.MkdirAll(p(), 0o755))

	result := scan(t, FromAfero(afs), Options{})

	assert.Equal(t, StatusCompleted, result.Status)
	assert.Zero(t, result.Total)
	assert.Empty(t, result.Children)
	assert.Empty(t, result.Inaccessible)
	assert.False(t, result.AllInaccessible())
}

func TestScanner_OnlyInaccessible(t *testing.T) {
	afs := afero.NewMemMapFs()
	writeFile(t, afs, p("x"), 10)
	writeFile(t, afs, p("y"), 20)
	require.NoError(t, afs.MkdirAll(p("z"), 0o755))

	fsys := &faultyFS{
		FileSystem: FromAfero(afs),
		lstatErr:   map[string]error{p("x"): fs.ErrPermission, p("y"): fs.ErrPermission},
		readDirErr: map[string]error{p("z"): fs.ErrPermission},
	}

	result := scan(t, fsys, Options{})

	assert.Zero(t, result.Total)
	assert.Equal(t, []string{p("x"), p("y"), p("z")}, result.Inaccessible)
	assert.True(t, result.AllInaccessible())
	require.Len(t, result.Children, 3)

	for _, child := range result.Children {
		assert.Equal(t, KindInaccessible, child.Kind)
		assert.Zero(t, child.Percent)
	}
}

func TestScanner_InaccessibleEntriesDoNotAbort(t *testing.T) {
	fsys := &faultyFS{
		FileSystem: FromAfero(dataTree(t)),
		lstatErr:   map[string]error{p("a", "one"): fs.ErrPermission},
		readDirErr: map[string]error{p("b", "nested"): fmt.Errorf("device unplugged")},
	}

	result := scan(t, fsys, Options{Workers: 4})

	assert.Equal(t, int64(500), result.Total)
	assert.Equal(t, []string{p("a", "one"), p("b", "nested")}, result.Inaccessible)
	assert.False(t, result.AllInaccessible())
	assert.Equal(t, []Child{
		{Name: "b", Path: p("b"), Kind: KindDirectory, Size: 300, Percent: 60},
		{Name: "a", Path: p("a"), Kind: KindDirectory, Size: 200, Percent: 40},
	}, result.Children)

	requireConsistent(t, result.Tree)
}

func TestScanner_RootUnreadable(t *testing.T) {
	afs := dataTree(t)

	tests := []struct {
		name string
		fsys FileSystem
		root string
	}{
		{"missing", FromAfero(afs), p("missing")},
		{"file", FromAfero(afs), p("a", "one")},
		{"unlistable", &faultyFS{
			FileSystem: FromAfero(afs),
			readDirErr: map[string]error{p(): fs.ErrPermission},
		}, p()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scanner, err := NewScanner(Options{}, WithFileSystem(tt.fsys))
			require.NoError(t, err)

			handle, err := scanner.Start(context.Background(), tt.root)
			require.ErrorIs(t, err, ErrRootUnreadable)
			assert.Nil(t, handle)

			var rootErr *RootError
			require.ErrorAs(t, err, &rootErr)
			assert.Equal(t, tt.root, rootErr.Path)
		})
	}
}

func TestScanner_CancelBetweenSubtrees(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fsys := &faultyFS{
		FileSystem: FromAfero(dataTree(t)),
		onReadDir: func(name string) {
			// a is done by the time the single worker reaches b.
			if name == p("b") {
				cancel()
			}
		},
	}

	scanner, err := NewScanner(Options{Workers: 1}, WithFileSystem(fsys))
	require.NoError(t, err)

	handle, err := scanner.Start(ctx, p())
	require.NoError(t, err)

	result, err := handle.Wait()
	require.NoError(t, err)

	assert.Equal(t, StatusCancelled, result.Status)
	assert.False(t, result.Complete())
	assert.Equal(t, int64(300), result.Total)
	require.NotEmpty(t, result.Children)
	assert.Equal(t, Child{Name: "a", Path: p("a"), Kind: KindDirectory, Size: 300, Percent: 100}, result.Children[0])

	for _, child := range result.Children[1:] {
		assert.Zero(t, child.Size, "child %s", child.Name)
	}
}

func TestScanner_CancelAfterLastEntry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	afs := afero.NewMemMapFs()
	writeFile(t, afs, p("a"), 100)
	require.NoError(t, afs.MkdirAll(p("z"), 0o755))

	fsys := &faultyFS{
		FileSystem: FromAfero(afs),
		onReadDir: func(name string) {
			// z is empty and listed last, so nothing is left to skip.
			if name == p("z") {
				cancel()
			}
		},
	}

	scanner, err := NewScanner(Options{Workers: 1}, WithFileSystem(fsys))
	require.NoError(t, err)

	handle, err := scanner.Start(ctx, p())
	require.NoError(t, err)

	result, err := handle.Wait()
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, int64(100), result.Total)
	assert.Len(t, result.Children, 2)
}

func TestScanner_CancelBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	scanner, err := NewScanner(Options{}, WithFileSystem(FromAfero(dataTree(t))))
	require.NoError(t, err)

	handle, err := scanner.Start(ctx, p())
	require.NoError(t, err)

	result, err := handle.Wait()
	require.NoError(t, err)

	assert.Equal(t, StatusCancelled, result.Status)
	assert.Zero(t, result.Total)
}

func TestHandle_CancelAfterFinish(t *testing.T) {
	scanner, err := NewScanner(Options{}, WithFileSystem(FromAfero(dataTree(t))))
	require.NoError(t, err)

	handle, err := scanner.Start(context.Background(), p())
	require.NoError(t, err)

	first, err := handle.Wait()
	require.NoError(t, err)

	handle.Cancel()
	handle.Cancel()

	second, err := handle.Wait()
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, StatusCompleted, second.Status)

	select {
	case <-handle.Done():
	default:
		t.Fatal("Done() not closed after Wait()")
	}

	progress := handle.Progress()
	assert.Equal(t, int64(1000), progress.Bytes)
	assert.Equal(t, int64(8), progress.Entries)
	assert.NotEmpty(t, progress.CurrentPath)
}

func TestScanner_Exclude(t *testing.T) {
	afs := dataTree(t)
	writeFile(t, afs, p("skip", "big"), 5000)
	writeFile(t, afs, p("a", "skip.log"), 5000)

	result := scan(t, FromAfero(afs), Options{Excludes: []string{`/skip(/|$)`, `\.log$`}})

	assert.Equal(t, int64(1000), result.Total)
	assert.Len(t, result.Children, 2)
}

func TestScanner_Deterministic(t *testing.T) {
	afs := afero.NewMemMapFs()
	rng := rand.New(rand.NewPCG(1, 2)) //nolint:gosec // Test data

	for i := range 300 {
		dir := p(fmt.Sprintf("top%d", rng.IntN(6)))
		for range rng.IntN(4) {
			dir = filepath.Join(dir, fmt.Sprintf("sub%d", rng.IntN(3)))
		}

		writeFile(t, afs, filepath.Join(dir, fmt.Sprintf("file%03d", i)), rng.IntN(64))
	}

	want := scan(t, FromAfero(afs), Options{Workers: 1})
	requireConsistent(t, want.Tree)

	for run := range 10 {
		workers := 1 + rand.IntN(16) //nolint:gosec // Worker count only
		got := scan(t, FromAfero(afs), Options{Workers: workers})

		assert.Equal(t, want.Total, got.Total, "run %d with %d workers", run, workers)
		assert.Equal(t, want.Children, got.Children, "run %d with %d workers", run, workers)
		assert.Equal(t, want.Files, got.Files)
		assert.Equal(t, want.Dirs, got.Dirs)
		assert.Equal(t, want.Tree, got.Tree)
	}
}

func TestScanner_FreshStatePerScan(t *testing.T) {
	afs := dataTree(t)

	scanner, err := NewScanner(Options{}, WithFileSystem(FromAfero(afs)))
	require.NoError(t, err)

	first, err := scanner.Start(context.Background(), p())
	require.NoError(t, err)

	before, err := first.Wait()
	require.NoError(t, err)

	writeFile(t, afs, p("c", "new"), 1000)

	second, err := scanner.Start(context.Background(), p())
	require.NoError(t, err)

	after, err := second.Wait()
	require.NoError(t, err)

	assert.Equal(t, int64(1000), before.Total)
	assert.Len(t, before.Children, 2)
	assert.Equal(t, int64(2000), after.Total)
	assert.Len(t, after.Children, 3)
}

func TestNewScanner_Validation(t *testing.T) {
	memFS := WithFileSystem(FromAfero(afero.NewMemMapFs()))

	tests := []struct {
		name    string
		opt     Options
		options []Option
		want    Engine
		wantErr bool
	}{
		{"auto on os", Options{}, nil, EngineFast, false},
		{"auto on afero", Options{}, []Option{memFS}, EnginePool, false},
		{"pool on os", Options{Engine: EnginePool}, nil, EnginePool, false},
		{"fastwalk on afero", Options{Engine: EngineFast}, []Option{memFS}, "", true},
		{"unknown engine", Options{Engine: "bogus"}, nil, "", true},
		{"negative workers", Options{Workers: -1}, nil, "", true},
		{"bad pattern", Options{Excludes: []string{"("}}, nil, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scanner, err := NewScanner(tt.opt, tt.options...)
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, scanner.Engine())
		})
	}
}

func TestParseEngine(t *testing.T) {
	tests := []struct {
		in      string
		want    Engine
		wantErr bool
	}{
		{"", EngineAuto, false},
		{"auto", EngineAuto, false},
		{"FastWalk", EngineFast, false},
		{"pool", EnginePool, false},
		{"walk", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseEngine(tt.in)
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRun_ProgressHook(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)

	started := make(chan struct{})
	release := make(chan struct{})

	var once sync.Once

	fsys := &faultyFS{
		FileSystem: FromAfero(dataTree(t)),
		onReadDir: func(name string) {
			if name == p("b") {
				once.Do(func() { close(started) })
				<-release
			}
		},
	}

	go func() {
		<-started

		// Hold the walk until the reporter has ticked at least once.
		assert.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()

			return calls > 0
		}, 5*time.Second, time.Millisecond)

		close(release)
	}()

	result, err := Run(context.Background(), Options{Path: p(), Workers: 1, ProgressInterval: time.Millisecond},
		func(progress Progress) {
			mu.Lock()
			defer mu.Unlock()

			calls++

			assert.Positive(t, progress.Entries)
			assert.LessOrEqual(t, progress.Bytes, int64(1000))
			assert.NotEmpty(t, progress.CurrentPath)
		},
		WithFileSystem(fsys),
	)
	require.NoError(t, err)

	assert.Equal(t, int64(1000), result.Total)
}

func TestRun_RootUnreadable(t *testing.T) {
	_, err := Run(context.Background(), Options{Path: p("nope")}, nil, WithFileSystem(FromAfero(afero.NewMemMapFs())))
	require.ErrorIs(t, err, ErrRootUnreadable)
}
