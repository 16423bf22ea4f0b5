package fsops

import (
	"io/fs"
	"os"
)

// OSFS implements FS using real os package calls
type OSFS struct{}

// ReadDir returns entries in directory order; unlike os.ReadDir it does not sort.
func (OSFS) ReadDir(path string) ([]fs.DirEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.ReadDir(-1)
}

func (OSFS) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}

func (OSFS) Lstat(path string) (fs.FileInfo, error) {
	return os.Lstat(path)
}

func (OSFS) Rename(oldPath, newPath string) error {
	return os.Rename(oldPath, newPath)
}

// Remove deletes a file or an empty directory; a non-empty directory is an error.
func (OSFS) Remove(path string) error {
	return os.Remove(path)
}
