package dirsize

import (
	"io/fs"
	"os"

	"github.com/spf13/afero"
)

// FileSystem is the view of the filesystem the traversal engine needs.
// Every call may fail for a single entry without affecting the others.
type FileSystem interface {
	// ReadDir lists a directory. Entries are sorted by name.
	ReadDir(name string) ([]fs.DirEntry, error)
	// Lstat describes an entry without following a final symlink.
	Lstat(name string) (fs.FileInfo, error)
	// Stat describes an entry, following symlinks.
	Stat(name string) (fs.FileInfo, error)
}

// osFS is the host filesystem.
type osFS struct{}

// OS returns the host filesystem.
func OS() FileSystem {
	return osFS{}
}

func (osFS) ReadDir(name string) ([]fs.DirEntry, error) { return os.ReadDir(name) }
func (osFS) Lstat(name string) (fs.FileInfo, error)     { return os.Lstat(name) }
func (osFS) Stat(name string) (fs.FileInfo, error)      { return os.Stat(name) }

// isOS reports whether fsys is the host filesystem, which fastwalk can walk directly.
func isOS(fsys FileSystem) bool {
	_, ok := fsys.(osFS)

	return ok
}

// aferoFS adapts an afero filesystem.
type aferoFS struct {
	fs afero.Fs
}

// FromAfero wraps an afero filesystem, for example afero.NewMemMapFs or a
// afero.NewBasePathFs jail.
func FromAfero(afs afero.Fs) FileSystem {
	return aferoFS{fs: afs}
}

func (a aferoFS) ReadDir(name string) ([]fs.DirEntry, error) {
	infos, err := afero.ReadDir(a.fs, name)
	if err != nil {
		return nil, err
	}

	entries := make([]fs.DirEntry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, fs.FileInfoToDirEntry(info))
	}

	return entries, nil
}

func (a aferoFS) Lstat(name string) (fs.FileInfo, error) {
	if lstater, ok := a.fs.(afero.Lstater); ok {
		info, _, err := lstater.LstatIfPossible(name)

		return info, err
	}

	return a.fs.Stat(name)
}

func (a aferoFS) Stat(name string) (fs.FileInfo, error) {
	return a.fs.Stat(name)
}
