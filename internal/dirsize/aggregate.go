package dirsize

import (
	"cmp"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/samber/lo"
	"github.com/sasha-s/go-deadlock"
)

// node is a mutable tree entry owned by an Aggregator.
// parent, name, path and depth never change after creation; size is
// accumulated atomically, everything else is guarded by Aggregator.mu.
type node struct {
	name     string
	path     string
	depth    int
	parent   *node
	size     atomic.Int64
	kind     Kind
	seen     bool
	children map[string]*node
}

func newNode(parent *node, name, path string, depth int) *node {
	return &node{
		name:   name,
		path:   path,
		depth:  depth,
		parent: parent,
		kind:   KindDirectory,
	}
}

// Aggregator turns an unordered stream of observations into a size tree.
// Observe may be called from many goroutines at once.
type Aggregator struct {
	mu           deadlock.Mutex // Protects tree structure, inaccessible and frozen
	root         string
	top          *node
	inaccessible map[string]struct{}
	rootErr      error
	frozen       bool

	entries atomic.Int64
	bytes   atomic.Int64
	files   atomic.Int64
	dirs    atomic.Int64
	current atomic.Pointer[string]
}

// NewAggregator creates an empty aggregator for the tree rooted at root.
func NewAggregator(root string) *Aggregator {
	root = filepath.Clean(root)

	name := filepath.Base(root)
	if name == "." || name == string(filepath.Separator) {
		name = root
	}

	return &Aggregator{
		root:         root,
		top:          newNode(nil, name, root, 0),
		inaccessible: make(map[string]struct{}),
	}
}

// Observe records a single entry. A file's size is added to every ancestor
// up to the root, so the order in which entries arrive does not matter.
// Observations made after Finalize are dropped.
func (a *Aggregator) Observe(obs Observation) {
	a.mu.Lock()

	if a.frozen {
		a.mu.Unlock()

		return
	}

	n := a.lookup(obs.Path)
	if n == nil {
		a.mu.Unlock()

		return
	}

	var add int64

	switch obs.Kind {
	case KindDirectory:
		if n.seen {
			a.mu.Unlock()

			return
		}

		n.seen = true
		if n != a.top {
			a.dirs.Add(1)
		}
	case KindFile:
		// A path is counted at most once; a placeholder with children is a directory.
		if n.seen || len(n.children) > 0 {
			a.mu.Unlock()

			return
		}

		n.seen = true
		n.kind = KindFile
		add = obs.Size
		a.files.Add(1)
	case KindInaccessible:
		if _, dup := a.inaccessible[n.path]; dup {
			a.mu.Unlock()

			return
		}

		a.inaccessible[n.path] = struct{}{}

		if n == a.top {
			a.rootErr = obs.Err
		}

		// A directory that was partly read keeps its kind so its size still adds up.
		if len(n.children) == 0 {
			if n.seen && n.kind == KindDirectory && n != a.top {
				a.dirs.Add(-1)
			}

			n.kind = KindInaccessible
		}

		n.seen = true
	}

	a.mu.Unlock()

	a.entries.Add(1)

	if add > 0 {
		for p := n; p != nil; p = p.parent {
			p.size.Add(add)
		}

		a.bytes.Add(add)
	}
}

// lookup returns the node for path, creating placeholder directories for
// every missing ancestor. It returns nil for paths outside the root.
// The caller must hold a.mu.
func (a *Aggregator) lookup(path string) *node {
	rel, ok := relative(a.root, filepath.Clean(path))
	if !ok {
		return nil
	}

	n := a.top
	if rel == "" {
		return n
	}

	for _, name := range strings.Split(rel, string(filepath.Separator)) {
		child, exists := n.children[name]
		if !exists {
			if n.children == nil {
				n.children = make(map[string]*node)
			}

			child = newNode(n, name, filepath.Join(n.path, name), n.depth+1)
			n.children[name] = child
		}

		n = child
	}

	return n
}

// relative returns path relative to root, or false if path is not inside root.
func relative(root, path string) (string, bool) {
	if path == root {
		return "", true
	}

	rest, ok := strings.CutPrefix(path, root)
	if !ok {
		return "", false
	}

	sep := string(filepath.Separator)

	// "/data" must not match "/database".
	if !strings.HasSuffix(root, sep) && !strings.HasPrefix(rest, sep) {
		return "", false
	}

	return strings.TrimLeft(rest, sep), true
}

// RootErr returns the error recorded when the root itself turned out to be
// unreadable during the walk, or nil.
func (a *Aggregator) RootErr() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.top.kind != KindInaccessible {
		return nil
	}

	if a.rootErr == nil {
		return errUnlisted
	}

	return a.rootErr
}

// setCurrent records the directory a worker just entered.
func (a *Aggregator) setCurrent(path string) {
	a.current.Store(&path)
}

// Progress returns the counters accumulated so far. It never blocks.
func (a *Aggregator) Progress() Progress {
	progress := Progress{
		Entries: a.entries.Load(),
		Bytes:   a.bytes.Load(),
	}

	if current := a.current.Load(); current != nil {
		progress.CurrentPath = *current
	}

	return progress
}

// Finalize freezes the tree and produces the result. It must only be called
// once every goroutine calling Observe has returned.
func (a *Aggregator) Finalize(status Status) *Result {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.frozen = true

	result := &Result{
		Root:         a.root,
		Status:       status,
		Children:     []Child{},
		Inaccessible: lo.Keys(a.inaccessible),
	}

	if a.entries.Load() == 0 {
		result.Inaccessible = []string{a.root}
		result.Tree = &Node{Entry: Entry{Name: a.top.name, Path: a.root, Kind: KindInaccessible}}

		return result
	}

	slices.Sort(result.Inaccessible)

	result.Tree = freeze(a.top)
	result.Total = result.Tree.Size
	result.Files = a.files.Load()
	result.Dirs = a.dirs.Load()
	result.Children = lo.Map(result.Tree.Children, func(n *Node, _ int) Child {
		return Child{
			Name:    n.Name,
			Path:    n.Path,
			Kind:    n.Kind,
			Size:    n.Size,
			Percent: percent(n.Size, result.Total),
		}
	})

	return result
}

// freeze copies the subtree rooted at n into immutable nodes.
func freeze(n *node) *Node {
	frozen := &Node{
		Entry: Entry{
			Name:  n.name,
			Path:  n.path,
			Kind:  n.kind,
			Size:  n.size.Load(),
			Depth: n.depth,
		},
	}

	if len(n.children) == 0 {
		return frozen
	}

	frozen.Children = make([]*Node, 0, len(n.children))
	for _, child := range n.children {
		frozen.Children = append(frozen.Children, freeze(child))
	}

	sortNodes(frozen.Children)

	return frozen
}

// sortNodes orders nodes by size, largest first, then by name.
func sortNodes(nodes []*Node) {
	slices.SortFunc(nodes, func(x, y *Node) int {
		if c := cmp.Compare(y.Size, x.Size); c != 0 {
			return c
		}

		return strings.Compare(x.Name, y.Name)
	})
}

// percent returns part as a percentage of total, or 0 for an empty total.
func percent(part, total int64) float64 {
	if total <= 0 {
		return 0
	}

	return 100 * float64(part) / float64(total)
}
