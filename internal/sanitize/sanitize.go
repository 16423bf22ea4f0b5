// Package sanitize walks directory trees, strips configured prefixes from
// entry names and removes entries matching delete rules. It performs no I/O
// other than through fsops.FS and reports everything it does as Events.
package sanitize

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"path/filepath"
	"time"

	"folder-sanitizer/internal/fsops"
	"folder-sanitizer/internal/rules"
	"folder-sanitizer/internal/safety"
)

var (
	ErrNotDirectory = errors.New("not a directory")
	ErrTargetExists = errors.New("target already exists")
	ErrNotEmpty     = errors.New("directory not empty")
)

// Options is the immutable configuration of one run.
type Options struct {
	Roots  []string
	Rules  *rules.Set
	DryRun bool
}

// Sanitizer performs sweeps over a filesystem.
type Sanitizer struct {
	fs        fsops.FS
	validator *safety.Validator
	yield     func()
	now       func() time.Time
}

// New creates a Sanitizer over fsys; a nil fsys means the real filesystem.
func New(fsys fsops.FS) *Sanitizer {
	if fsys == nil {
		fsys = fsops.OSFS{}
	}
	return &Sanitizer{
		fs:        fsys,
		validator: safety.NewValidator(nil),
		now:       time.Now,
	}
}

// SetValidator replaces the root validator.
func (s *Sanitizer) SetValidator(v *safety.Validator) {
	s.validator = v
}

// SetYield installs a hook called between entries, e.g. to throttle CPU or
// let a UI repaint. It must not touch the tree being swept.
func (s *Sanitizer) SetYield(fn func()) {
	s.yield = fn
}

// Run returns the lazy event stream of a sweep. Iterating it performs the
// sweep; stopping early (or cancelling ctx) stops the walk between entries.
// The sequence is single-use: ranging over it again sweeps again.
func (s *Sanitizer) Run(ctx context.Context, opts Options) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		w := &walker{
			s:     s,
			ctx:   ctx,
			rules: opts.Rules,
			dry:   opts.DryRun,
			out:   yield,
		}
		if w.dry {
			w.claimed = make(map[string]struct{})
			w.removed = make(map[string]struct{})
		}
		if w.rules == nil {
			w.rules = &rules.Set{}
		}
		for _, root := range opts.Roots {
			if w.done() {
				return
			}
			w.sweepRoot(root)
		}
	}
}

// Sanitize runs a sweep, passing every event to sink, and returns the summary.
func (s *Sanitizer) Sanitize(ctx context.Context, opts Options, sink func(Event)) Summary {
	var sum Summary
	start := s.now()
	for ev := range s.Run(ctx, opts) {
		sum.Add(ev)
		if sink != nil {
			sink(ev)
		}
	}
	sum.Cancelled = ctx.Err() != nil
	sum.Duration = s.now().Sub(start)
	return sum
}

type walker struct {
	s       *Sanitizer
	ctx     context.Context
	rules   *rules.Set
	dry     bool
	out     func(Event) bool
	stopped bool
	// claimed holds dry-run rename targets so sibling collisions surface
	// the same way they would on disk.
	claimed map[string]struct{}
	// removed holds real paths a dry run reported as deleted; they no longer
	// block a rename.
	removed map[string]struct{}
}

func (w *walker) done() bool {
	return w.stopped || w.ctx.Err() != nil
}

func (w *walker) emit(ev Event) {
	if w.stopped {
		return
	}
	ev.Time = w.s.now()
	if !w.out(ev) {
		w.stopped = true
	}
}

func (w *walker) fail(kind Kind, path string, depth int, err error) {
	w.emit(Event{Kind: kind, Path: path, Depth: depth, Message: err.Error()})
}

func (w *walker) sweepRoot(raw string) {
	root := filepath.Clean(raw)
	if err := w.s.validator.ValidateRoot(raw); err != nil {
		w.fail(AccessError, root, 0, err)
		return
	}
	info, err := w.s.fs.Stat(root)
	if err != nil || !info.IsDir() {
		w.fail(AccessError, root, 0, ErrNotDirectory)
		return
	}
	w.processDirectory(root, root, 0, true)
}

// processDirectory handles one directory. real is where it is on disk; logical
// is where it would be had every rename so far succeeded. They differ only in
// dry run, which keeps event paths identical to a real run. Entries are
// renamed by processEntry, so only a root renames itself here.
func (w *walker) processDirectory(real, logical string, depth int, isRoot bool) {
	if isRoot {
		if newName, ok := w.rules.StripPrefix(filepath.Base(logical)); ok {
			real, logical = w.rename(real, logical, newName, depth)
		}
	}

	w.emit(Event{Kind: Entered, Path: logical, Depth: depth})

	entries, err := w.s.fs.ReadDir(real)
	if err != nil {
		w.fail(AccessError, logical, depth, err)
		return
	}

	for _, entry := range entries {
		if w.done() {
			return
		}
		if w.s.yield != nil {
			w.s.yield()
		}
		w.processEntry(real, logical, entry, depth+1)
	}
}

func (w *walker) processEntry(dirReal, dirLogical string, entry fs.DirEntry, depth int) {
	name := entry.Name()
	if w.rules.Skip(name) {
		return
	}

	real := filepath.Join(dirReal, name)
	logical := filepath.Join(dirLogical, name)
	// DirEntry.IsDir is false for symlinks, so links are never followed.
	isDir := entry.IsDir()

	if m, ok := w.rules.MatchDelete(name); ok {
		w.remove(real, logical, isDir, m, depth)
		return
	}

	if newName, ok := w.rules.StripPrefix(name); ok {
		real, logical = w.rename(real, logical, newName, depth)
	}

	if isDir {
		w.processDirectory(real, logical, depth, false)
		return
	}
	w.emit(Event{Kind: Visited, Path: logical, Depth: depth})
}

// rename moves an entry to newName within its directory and returns the
// paths to keep using. On any failure the original paths are returned.
func (w *walker) rename(real, logical, newName string, depth int) (string, string) {
	target := filepath.Join(filepath.Dir(logical), newName)
	realTarget := filepath.Join(filepath.Dir(real), newName)

	failed := func(err error) (string, string) {
		w.emit(Event{Kind: OperationError, Path: logical, Target: target, Depth: depth,
			Message: fmt.Sprintf("rename: %v", err)})
		return real, logical
	}

	if err := safety.ValidateName(newName); err != nil {
		return failed(err)
	}
	if _, err := w.s.fs.Lstat(realTarget); err == nil {
		if _, gone := w.removed[realTarget]; !gone {
			return failed(ErrTargetExists)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return failed(err)
	}

	if w.dry {
		if _, taken := w.claimed[target]; taken {
			return failed(ErrTargetExists)
		}
		w.claimed[target] = struct{}{}
	} else {
		if err := w.s.fs.Rename(real, realTarget); err != nil {
			return failed(err)
		}
		real = realTarget
	}

	w.emit(Event{Kind: Renamed, Path: logical, Target: target, Depth: depth})
	return real, target
}

// remove deletes a matched entry. Directories are only removed when empty.
func (w *walker) remove(real, logical string, isDir bool, m rules.Match, depth int) {
	failed := func(err error) {
		w.emit(Event{Kind: OperationError, Path: logical, Rule: m.String(), Depth: depth,
			Message: fmt.Sprintf("delete: %v", err)})
	}

	var size int64
	if isDir {
		children, err := w.s.fs.ReadDir(real)
		if err != nil {
			failed(err)
			return
		}
		if len(children) > 0 {
			w.emit(Event{Kind: Skipped, Path: logical, Rule: m.String(), Depth: depth,
				Message: ErrNotEmpty.Error()})
			return
		}
	} else {
		info, err := w.s.fs.Lstat(real)
		if err != nil {
			failed(err)
			return
		}
		size = info.Size()
	}

	if w.dry {
		w.removed[real] = struct{}{}
	} else if err := w.s.fs.Remove(real); err != nil {
		failed(err)
		return
	}

	w.emit(Event{Kind: Deleted, Path: logical, Rule: m.String(), Size: size, Depth: depth})
}
