package dirsize

import "fmt"

// Kind classifies a filesystem entry.
type Kind uint8

const (
	// KindFile is a regular file, symlink or any other non-directory entry.
	KindFile Kind = iota
	// KindDirectory is a directory.
	KindDirectory
	// KindInaccessible is an entry that could not be listed or stat-ed.
	KindInaccessible
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "dir"
	case KindInaccessible:
		return "inaccessible"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// MarshalText renders the kind by name in JSON and YAML output.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Entry is a single node of the size tree.
type Entry struct {
	// Name is the base name of the entry.
	Name string `json:"name" yaml:"name"`
	// Path is the full path of the entry.
	Path string `json:"path" yaml:"path"`
	// Kind is the entry type.
	Kind Kind `json:"kind" yaml:"kind"`
	// Size is the apparent size in bytes. For directories it is the sum of all descendant files.
	Size int64 `json:"size" yaml:"size"`
	// Depth is the distance from the scan root (root = 0).
	Depth int `json:"depth" yaml:"depth"`
}

// Node is a frozen entry of the size tree together with its children,
// ordered by descending size and then by name.
type Node struct {
	Entry `yaml:",inline"`

	Children []*Node `json:"children,omitempty" yaml:"children,omitempty"`
}

// Walk calls fn for n and every descendant in depth-first order.
func (n *Node) Walk(fn func(*Node)) {
	if n == nil {
		return
	}

	fn(n)

	for _, child := range n.Children {
		child.Walk(fn)
	}
}

// Observation is a single report from the traversal engine.
type Observation struct {
	Path string
	Kind Kind
	Size int64
	// Err is the cause for inaccessible entries.
	Err error
}
