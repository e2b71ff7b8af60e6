package dirsize

import (
	"errors"
	"fmt"
)

// ErrRootUnreadable is matched by errors returned when the scan root cannot be listed.
var ErrRootUnreadable = errors.New("root unreadable")

// RootError reports a scan root that is missing, not a directory, or unreadable.
type RootError struct {
	Path string
	Err  error
}

func (e *RootError) Error() string {
	return fmt.Sprintf("%s %q: %v", ErrRootUnreadable, e.Path, e.Err)
}

func (e *RootError) Unwrap() error {
	return e.Err
}

// Is matches ErrRootUnreadable.
func (e *RootError) Is(target error) bool {
	return target == ErrRootUnreadable
}

var (
	// errNotDir is the cause used when the root exists but is not a directory.
	errNotDir = errors.New("not a directory")
	// errUnlisted is the cause used when the root could not be listed for an unknown reason.
	errUnlisted = errors.New("directory could not be listed")
)
