package sanitize

import (
	"fmt"
	"strings"
	"time"
)

// Kind is the type of a sweep event.
type Kind int

const (
	// Entered: a directory is about to be listed (after its own rename).
	Entered Kind = iota
	// Renamed: Path was (or in dry run, would be) renamed to Target.
	Renamed
	// Deleted: Path was (or would be) removed because it matched Rule.
	Deleted
	// Visited: a file was left in place under its final name.
	Visited
	// Skipped: a directory matched a delete rule but is not empty.
	Skipped
	// AccessError: a root or directory could not be opened.
	AccessError
	// OperationError: a rename or removal of a single entry failed.
	OperationError
)

var kindNames = [...]string{
	Entered:        "entered",
	Renamed:        "renamed",
	Deleted:        "deleted",
	Visited:        "visited",
	Skipped:        "skipped",
	AccessError:    "access_error",
	OperationError: "operation_error",
}

func (k Kind) String() string {
	if int(k) < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for i, name := range kindNames {
		if strings.EqualFold(name, s) {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown event kind %q", s)
}

// IsError reports whether the kind represents a failure.
func (k Kind) IsError() bool {
	return k == AccessError || k == OperationError
}

// Event is one step of a sweep, in depth-first order.
type Event struct {
	Kind    Kind
	Path    string
	Target  string // rename destination
	Rule    string // delete rule that matched, e.g. "regex:^\[DMC\.RIP\]"
	Message string
	Size    int64 // size of a deleted file
	Depth   int   // 0 for a root
	Time    time.Time
}

// String renders the event as a single key=value log line.
func (e Event) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s path=%q", strings.ToUpper(e.Kind.String()), e.Path)
	if e.Target != "" {
		fmt.Fprintf(&b, " target=%q", e.Target)
	}
	if e.Rule != "" {
		fmt.Fprintf(&b, " rule=%q", e.Rule)
	}
	if e.Size > 0 {
		fmt.Fprintf(&b, " size=%d", e.Size)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, " message=%q", e.Message)
	}
	return b.String()
}

// Summary aggregates the events of one run.
type Summary struct {
	Roots      int
	Entered    int
	Renamed    int
	Deleted    int
	Visited    int
	Skipped    int
	Errors     int
	BytesFreed int64
	Cancelled  bool
	Duration   time.Duration
	// MovedRoots maps each root that renamed itself to its new path.
	MovedRoots map[string]string
}

// Add folds an event into the summary.
func (s *Summary) Add(e Event) {
	switch e.Kind {
	case Entered:
		s.Entered++
		if e.Depth == 0 {
			s.Roots++
		}
	case Renamed:
		s.Renamed++
		if e.Depth == 0 {
			if s.MovedRoots == nil {
				s.MovedRoots = make(map[string]string)
			}
			s.MovedRoots[e.Path] = e.Target
		}
	case Deleted:
		s.Deleted++
		s.BytesFreed += e.Size
	case Visited:
		s.Visited++
	case Skipped:
		s.Skipped++
	case AccessError, OperationError:
		s.Errors++
	}
}

// Changes is the number of renames and deletions.
func (s Summary) Changes() int {
	return s.Renamed + s.Deleted
}
