package dirsize

import "time"

// Status is the terminal state of a scan.
type Status uint8

const (
	// StatusCompleted means the whole tree was traversed.
	StatusCompleted Status = iota
	// StatusCancelled means the scan stopped early and the totals are partial.
	StatusCancelled
)

func (s Status) String() string {
	if s == StatusCancelled {
		return "cancelled"
	}

	return "completed"
}

// MarshalText renders the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Child is one row of the breakdown: a direct child of the root.
type Child struct {
	// Name is the base name of the child.
	Name string `json:"name" yaml:"name"`
	// Path is the full path of the child.
	Path string `json:"path" yaml:"path"`
	// Kind is the child type.
	Kind Kind `json:"kind" yaml:"kind"`
	// Size is the cumulative size in bytes.
	Size int64 `json:"size" yaml:"size"`
	// Percent is the share of the root total, in the range [0, 100].
	Percent float64 `json:"percent" yaml:"percent"`
}

// Result is the frozen outcome of a scan.
type Result struct {
	// Root is the scanned directory.
	Root string `json:"root" yaml:"root"`
	// Status tells whether the scan ran to completion.
	Status Status `json:"status" yaml:"status"`
	// Total is the cumulative size of the root in bytes.
	Total int64 `json:"total" yaml:"total"`
	// Children is the breakdown of the root, largest first.
	Children []Child `json:"children" yaml:"children"`
	// Inaccessible lists the paths that could not be read, sorted.
	Inaccessible []string `json:"inaccessible" yaml:"inaccessible"`
	// Files is the number of non-directory entries accounted.
	Files int64 `json:"files" yaml:"files"`
	// Dirs is the number of directories below the root.
	Dirs int64 `json:"dirs" yaml:"dirs"`
	// Elapsed is the wall time of the scan.
	Elapsed time.Duration `json:"elapsed" yaml:"elapsed"`
	// Tree is the full size tree rooted at Root.
	Tree *Node `json:"-" yaml:"-"`
}

// Complete reports whether the scan traversed the whole tree.
func (r *Result) Complete() bool {
	return r.Status == StatusCompleted
}

// AllInaccessible reports whether the scan found nothing but inaccessible entries.
func (r *Result) AllInaccessible() bool {
	if len(r.Inaccessible) == 0 {
		return false
	}

	for _, child := range r.Children {
		if child.Kind != KindInaccessible {
			return false
		}
	}

	return true
}

// Progress is a snapshot of an in-flight scan.
type Progress struct {
	// Entries is the number of entries observed so far.
	Entries int64 `json:"entries"`
	// Bytes is the number of bytes accounted so far.
	Bytes int64 `json:"bytes"`
	// CurrentPath is the directory most recently entered by a worker.
	CurrentPath string `json:"current_path"`
}
