// Package report renders sweep events for a terminal.
package report

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"folder-sanitizer/internal/sanitize"
)

type Theme struct {
	NoColor bool
	NoEmoji bool
}

func (t Theme) Emoji(s string) string {
	if t.NoEmoji {
		return ""
	}
	return s + " "
}

func (t Theme) paint(s string, attrs ...color.Attribute) string {
	if t.NoColor {
		return s
	}
	return color.New(attrs...).Sprint(s)
}

// Printer writes one line per interesting event, indented by depth.
// Visited files are only shown when Verbose is set.
type Printer struct {
	w       io.Writer
	theme   Theme
	dryRun  bool
	Verbose bool
}

func NewPrinter(w io.Writer, theme Theme, dryRun bool) *Printer {
	return &Printer{w: w, theme: theme, dryRun: dryRun}
}

// SetDryRun switches between "would rename" and "renamed" wording.
func (p *Printer) SetDryRun(dryRun bool) {
	p.dryRun = dryRun
}

// Event prints e, if it is shown at the current verbosity.
func (p *Printer) Event(e sanitize.Event) {
	if line, ok := p.Line(e); ok {
		fmt.Fprintln(p.w, line)
	}
}

// Line renders e without a trailing newline.
func (p *Printer) Line(e sanitize.Event) (string, bool) {
	t := p.theme
	indent := strings.Repeat(" ", e.Depth*4)
	name := filepath.Base(e.Path)

	switch e.Kind {
	case sanitize.Entered:
		if e.Depth == 0 {
			title := "Sweeping"
			if p.dryRun {
				title = "Sweeping (dry run)"
			}
			return t.paint(fmt.Sprintf("%s%s %s", t.Emoji("📂"), title, e.Path), color.FgCyan, color.Bold), true
		}
		return indent + t.Emoji("📁") + name + string(filepath.Separator), true

	case sanitize.Visited:
		if !p.Verbose {
			return "", false
		}
		return indent + name, true

	case sanitize.Renamed:
		verb := "renamed"
		if p.dryRun {
			verb = "would rename"
		}
		msg := fmt.Sprintf("%s%s %q -> %q", t.Emoji("✏️"), verb, name, filepath.Base(e.Target))
		return indent + t.paint(msg, color.FgBlue), true

	case sanitize.Deleted:
		verb := "deleted"
		if p.dryRun {
			verb = "would delete"
		}
		msg := fmt.Sprintf("%s%s %q", t.Emoji("🗑️"), verb, name)
		if e.Size > 0 {
			msg += " (" + humanize.Bytes(uint64(e.Size)) + ")"
		}
		if e.Rule != "" {
			msg += " [" + e.Rule + "]"
		}
		return indent + t.paint(msg, color.FgRed), true

	case sanitize.Skipped:
		msg := fmt.Sprintf("%skept %q: %s", t.Emoji("⏭️"), name, e.Message)
		return indent + t.paint(msg, color.FgYellow), true

	case sanitize.AccessError, sanitize.OperationError:
		msg := fmt.Sprintf("%s%s: %s", t.Emoji("⚠️"), e.Path, e.Message)
		return indent + t.paint(msg, color.FgRed, color.Bold), true
	}
	return "", false
}

// Summary prints the completion line of a run.
func (p *Printer) Summary(s sanitize.Summary) {
	fmt.Fprintln(p.w, p.SummaryLine(s))
}

func (p *Printer) SummaryLine(s sanitize.Summary) string {
	t := p.theme
	title := "Sanitize finished"
	freed := "freed"
	switch {
	case s.Cancelled:
		title = "Sanitize cancelled"
	case p.dryRun:
		title = "Dry run finished"
		freed = "would be freed"
	}

	line := fmt.Sprintf("%s%s: %s renamed, %s deleted, %s kept, %s errors, %s %s in %s",
		t.Emoji("✅"), title,
		humanize.Comma(int64(s.Renamed)),
		humanize.Comma(int64(s.Deleted)),
		humanize.Comma(int64(s.Skipped)),
		humanize.Comma(int64(s.Errors)),
		humanize.Bytes(uint64(s.BytesFreed)), freed,
		s.Duration.Round(1e6))

	if s.Errors > 0 || s.Cancelled {
		return t.paint(line, color.FgYellow, color.Bold)
	}
	return t.paint(line, color.FgGreen, color.Bold)
}
