package fsops

import "io/fs"

// FS abstracts the filesystem calls made during a sweep.
// Enables recording in tests to prove dry-run never renames or removes.
type FS interface {
	ReadDir(path string) ([]fs.DirEntry, error)
	Stat(path string) (fs.FileInfo, error)
	Lstat(path string) (fs.FileInfo, error)
	Rename(oldPath, newPath string) error
	Remove(path string) error
}
