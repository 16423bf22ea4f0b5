package sanitize

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"folder-sanitizer/internal/fsops"
	"folder-sanitizer/internal/rules"
)

// buildTree creates files (and directories for keys ending in "/") under root.
func buildTree(t *testing.T, root string, layout map[string]string) {
	t.Helper()
	for rel, content := range layout {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if strings.HasSuffix(rel, "/") {
			if err := os.MkdirAll(p, 0o755); err != nil {
				t.Fatalf("mkdir %s: %v", p, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", filepath.Dir(p), err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}
}

// snapshot returns every entry below root keyed by slash-separated relative
// path; directories end in "/" and map to "", files map to their content.
func snapshot(t *testing.T, root string) map[string]string {
	t.Helper()
	out := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			out[rel+"/"] = ""
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			out[rel] = "-> " + target
			return nil
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		out[rel] = string(b)
		return nil
	})
	if err != nil {
		t.Fatalf("snapshot %s: %v", root, err)
	}
	return out
}

func assertTree(t *testing.T, root string, want map[string]string) {
	t.Helper()
	got := snapshot(t, root)
	if len(got) != len(want) {
		t.Errorf("tree has %d entries, want %d\n got: %v\nwant: %v", len(got), len(want), got, want)
		return
	}
	for k, v := range want {
		if gv, ok := got[k]; !ok || gv != v {
			t.Errorf("tree entry %q = %q (present=%v), want %q", k, gv, ok, v)
		}
	}
}

func compile(t *testing.T, spec rules.Spec) *rules.Set {
	t.Helper()
	if spec.SkipNames == nil {
		spec.SkipNames = rules.DefaultSkipNames
	}
	s, err := rules.Compile(spec)
	if err != nil {
		t.Fatalf("rules.Compile: %v", err)
	}
	return s
}

func collect(t *testing.T, fsys fsops.FS, opts Options) []Event {
	t.Helper()
	return slices.Collect(New(fsys).Run(context.Background(), opts))
}

func countKinds(events []Event) map[Kind]int {
	out := make(map[Kind]int)
	for _, e := range events {
		out[e.Kind]++
	}
	return out
}

func findEvent(events []Event, kind Kind, path string) (Event, bool) {
	for _, e := range events {
		if e.Kind == kind && e.Path == path {
			return e, true
		}
	}
	return Event{}, false
}

// decisions reduces events to root-relative "kind path -> target" lines, sorted,
// so two runs over identical trees can be compared regardless of listing order.
func decisions(t *testing.T, root string, events []Event) []string {
	t.Helper()
	rel := func(p string) string {
		if p == "" {
			return ""
		}
		r, err := filepath.Rel(root, p)
		if err != nil {
			t.Fatalf("rel %s: %v", p, err)
		}
		return filepath.ToSlash(r)
	}
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.Kind.String()+" "+rel(e.Path)+" -> "+rel(e.Target))
	}
	slices.Sort(out)
	return out
}

// descendingFS lists directory entries in reverse name order, so tests can
// pin the order a real filesystem would leave unspecified.
type descendingFS struct {
	fsops.FS
}

func (d descendingFS) ReadDir(path string) ([]fs.DirEntry, error) {
	entries, err := d.FS.ReadDir(path)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(entries, func(a, b fs.DirEntry) int {
		return strings.Compare(b.Name(), a.Name())
	})
	return entries, nil
}
