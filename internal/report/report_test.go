package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"folder-sanitizer/internal/sanitize"
)

func TestLine(t *testing.T) {
	plain := Theme{NoColor: true, NoEmoji: true}

	tests := []struct {
		name   string
		dryRun bool
		event  sanitize.Event
		want   string
		shown  bool
	}{
		{
			name:  "root banner",
			event: sanitize.Event{Kind: sanitize.Entered, Path: "/srv/courses"},
			want:  "Sweeping /srv/courses",
			shown: true,
		},
		{
			name:   "root banner dry run",
			dryRun: true,
			event:  sanitize.Event{Kind: sanitize.Entered, Path: "/srv/courses"},
			want:   "Sweeping (dry run) /srv/courses",
			shown:  true,
		},
		{
			name:  "subdirectory indented",
			event: sanitize.Event{Kind: sanitize.Entered, Path: "/srv/courses/Course", Depth: 1},
			want:  "    Course/",
			shown: true,
		},
		{
			name:  "rename",
			event: sanitize.Event{Kind: sanitize.Renamed, Path: "/srv/[SW.BAND] a", Target: "/srv/a", Depth: 2},
			want:  `        renamed "[SW.BAND] a" -> "a"`,
			shown: true,
		},
		{
			name:   "rename dry run",
			dryRun: true,
			event:  sanitize.Event{Kind: sanitize.Renamed, Path: "/srv/[SW.BAND] a", Target: "/srv/a", Depth: 1},
			want:   `    would rename "[SW.BAND] a" -> "a"`,
			shown:  true,
		},
		{
			name:  "delete with size and rule",
			event: sanitize.Event{Kind: sanitize.Deleted, Path: "/srv/promo.url", Size: 2048, Rule: "glob:*.url", Depth: 1},
			want:  `    deleted "promo.url" (2.0 kB) [glob:*.url]`,
			shown: true,
		},
		{
			name:  "skipped",
			event: sanitize.Event{Kind: sanitize.Skipped, Path: "/srv/extras", Message: "directory not empty", Depth: 1},
			want:  `    kept "extras": directory not empty`,
			shown: true,
		},
		{
			name:  "error",
			event: sanitize.Event{Kind: sanitize.AccessError, Path: "/srv/locked", Message: "permission denied", Depth: 1},
			want:  "    /srv/locked: permission denied",
			shown: true,
		},
		{
			name:  "visited hidden",
			event: sanitize.Event{Kind: sanitize.Visited, Path: "/srv/a.txt", Depth: 1},
			shown: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPrinter(nil, plain, tt.dryRun)
			got, shown := p.Line(tt.event)
			if shown != tt.shown {
				t.Fatalf("Line() shown = %v, want %v", shown, tt.shown)
			}
			if got != tt.want {
				t.Errorf("Line() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestVerboseShowsVisited(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, Theme{NoColor: true, NoEmoji: true}, false)
	p.Verbose = true
	p.Event(sanitize.Event{Kind: sanitize.Visited, Path: "/srv/a.txt", Depth: 1})
	if got := buf.String(); got != "    a.txt\n" {
		t.Errorf("output = %q", got)
	}
}

func TestEmoji(t *testing.T) {
	p := NewPrinter(nil, Theme{NoColor: true}, false)
	got, _ := p.Line(sanitize.Event{Kind: sanitize.Entered, Path: "/srv"})
	if !strings.HasPrefix(got, "📂 ") {
		t.Errorf("Line() = %q, want emoji prefix", got)
	}
}

func TestSummaryLine(t *testing.T) {
	sum := sanitize.Summary{Renamed: 1200, Deleted: 3, Skipped: 1, BytesFreed: 1500, Duration: 1500 * time.Millisecond}

	tests := []struct {
		name   string
		dryRun bool
		sum    sanitize.Summary
		want   string
	}{
		{
			name: "real run",
			sum:  sum,
			want: "Sanitize finished: 1,200 renamed, 3 deleted, 1 kept, 0 errors, 1.5 kB freed in 1.5s",
		},
		{
			name:   "dry run",
			dryRun: true,
			sum:    sum,
			want:   "Dry run finished: 1,200 renamed, 3 deleted, 1 kept, 0 errors, 1.5 kB would be freed in 1.5s",
		},
		{
			name: "cancelled",
			sum:  sanitize.Summary{Cancelled: true},
			want: "Sanitize cancelled: 0 renamed, 0 deleted, 0 kept, 0 errors, 0 B freed in 0s",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPrinter(nil, Theme{NoColor: true, NoEmoji: true}, tt.dryRun)
			if got := p.SummaryLine(tt.sum); got != tt.want {
				t.Errorf("SummaryLine() = %q, want %q", got, tt.want)
			}
		})
	}
}
