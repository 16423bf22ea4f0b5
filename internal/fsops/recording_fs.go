package fsops

import (
	"io/fs"
	"sync"
)

// RecordingFS wraps another FS and records every mutating call.
// Reads always go to Base. Mutations go to Base only when Passthrough is set,
// so a zero Passthrough records calls without touching the disk.
// FailOn, when set, lets tests inject an error for a given op ("readdir",
// "rename", "remove") and path before Base is consulted.
type RecordingFS struct {
	Base        FS
	Passthrough bool
	FailOn      func(op, path string) error

	mu    sync.Mutex
	Calls []string
}

// NewRecordingFS records mutations on top of the real filesystem.
func NewRecordingFS(passthrough bool) *RecordingFS {
	return &RecordingFS{Base: OSFS{}, Passthrough: passthrough}
}

func (r *RecordingFS) ReadDir(path string) ([]fs.DirEntry, error) {
	if err := r.fail("readdir", path); err != nil {
		return nil, err
	}
	return r.Base.ReadDir(path)
}

func (r *RecordingFS) Stat(path string) (fs.FileInfo, error) {
	return r.Base.Stat(path)
}

func (r *RecordingFS) Lstat(path string) (fs.FileInfo, error) {
	return r.Base.Lstat(path)
}

func (r *RecordingFS) Rename(oldPath, newPath string) error {
	r.record("rename:" + oldPath + "->" + newPath)
	if err := r.fail("rename", oldPath); err != nil {
		return err
	}
	if !r.Passthrough {
		return nil
	}
	return r.Base.Rename(oldPath, newPath)
}

func (r *RecordingFS) Remove(path string) error {
	r.record("rm:" + path)
	if err := r.fail("remove", path); err != nil {
		return err
	}
	if !r.Passthrough {
		return nil
	}
	return r.Base.Remove(path)
}

// Mutations returns a copy of the recorded mutating calls.
func (r *RecordingFS) Mutations() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.Calls))
	copy(out, r.Calls)
	return out
}

func (r *RecordingFS) record(call string) {
	r.mu.Lock()
	r.Calls = append(r.Calls, call)
	r.mu.Unlock()
}

func (r *RecordingFS) fail(op, path string) error {
	if r.FailOn == nil {
		return nil
	}
	return r.FailOn(op, path)
}
