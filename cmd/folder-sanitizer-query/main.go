package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"folder-sanitizer/internal/config"
	"folder-sanitizer/internal/database"
	"folder-sanitizer/internal/exitcodes"
)

func main() {
	// Parse command-line flags
	dbPath := flag.String("db", config.Default().DatabasePath, "Path to history database")
	runs := flag.Int("runs", 0, "Show N most recent sweeps")
	run := flag.Int64("run", 0, "Show the events of one sweep")
	recent := flag.Int("recent", 0, "Show N most recent events")
	kind := flag.String("kind", "", "Filter events by kind (renamed, deleted, skipped, access_error, operation_error)")
	pathPattern := flag.String("path", "", "Filter events by path or rename target (SQL LIKE syntax)")
	since := flag.String("since", "", "Show events from this date (YYYY-MM-DD or RFC 3339)")
	until := flag.String("until", "", "With -since, show events up to this date (default now)")
	limit := flag.Int("limit", 100, "Maximum number of events for -kind and -path")
	stats := flag.Bool("stats", false, "Show statistics")
	days := flag.Int("days", 30, "Number of days for statistics")
	prune := flag.Int("prune", 0, "Delete sweeps older than N days")
	vacuum := flag.Bool("vacuum", false, "Compact the database")
	jsonOutput := flag.Bool("json", false, "Output in JSON format")
	flag.Parse()

	db, err := database.NewEventDB(*dbPath)
	if err != nil {
		log.Fatalf("ERROR: Failed to open database %s: %v", *dbPath, err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("ERROR: Failed to close database: %v", err)
		}
	}()

	q := &querier{db: db, out: os.Stdout, json: *jsonOutput}

	switch {
	case *prune > 0:
		err = q.prune(*prune)
	case *vacuum:
		err = q.vacuum()
	case *stats:
		err = q.stats(*days)
	case *run > 0:
		err = q.run(*run)
	case *runs > 0:
		err = q.runs(*runs)
	case *recent > 0:
		err = q.recent(*recent)
	case *kind != "":
		err = q.byKind(*kind, *limit)
	case *pathPattern != "":
		err = q.byPath(*pathPattern, *limit)
	case *since != "":
		err = q.between(*since, *until)
	default:
		flag.Usage()
		fmt.Println("\nExamples:")
		fmt.Println("  folder-sanitizer-query -runs 10               # Show the last 10 sweeps")
		fmt.Println("  folder-sanitizer-query -run 42                # Show what sweep 42 changed")
		fmt.Println("  folder-sanitizer-query -kind deleted          # Show deletions")
		fmt.Println("  folder-sanitizer-query -path '%/Courses/%'    # Show changes under a folder")
		fmt.Println("  folder-sanitizer-query -since 2024-05-01      # Show changes since May 1st")
		fmt.Println("  folder-sanitizer-query -stats -days 7         # Show statistics for a week")
		fmt.Println("  folder-sanitizer-query -prune 90              # Forget sweeps older than 90 days")
		os.Exit(exitcodes.InvalidConfig)
	}
	if err != nil {
		log.Fatalf("ERROR: %v", err)
	}
}

type querier struct {
	db   *database.EventDB
	out  io.Writer
	json bool
}

func (q *querier) emitJSON(v any) error {
	enc := json.NewEncoder(q.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (q *querier) stats(days int) error {
	stats, err := q.db.GetStats(days)
	if err != nil {
		return fmt.Errorf("get statistics: %w", err)
	}
	if q.json {
		return q.emitJSON(stats)
	}

	fmt.Fprintf(q.out, "Sweep Statistics (Last %d days)\n", days)
	fmt.Fprintf(q.out, "Period: %s to %s\n\n", stats.StartDate.Format("2006-01-02"), stats.EndDate.Format("2006-01-02"))
	fmt.Fprintf(q.out, "Sweeps:       %s\n", humanize.Comma(int64(stats.TotalRuns)))
	fmt.Fprintf(q.out, "Renamed:      %s\n", humanize.Comma(int64(stats.TotalRenamed)))
	fmt.Fprintf(q.out, "Deleted:      %s\n", humanize.Comma(int64(stats.TotalDeleted)))
	fmt.Fprintf(q.out, "Kept:         %s\n", humanize.Comma(int64(stats.TotalSkipped)))
	fmt.Fprintf(q.out, "Errors:       %s\n", humanize.Comma(int64(stats.TotalErrors)))
	fmt.Fprintf(q.out, "Space Freed:  %s\n", humanize.Bytes(uint64(stats.TotalSpaceFreed)))

	printCounts(q.out, "By Kind:", stats.ByKind)
	printCounts(q.out, "Top Rules:", stats.TopRules)
	return nil
}

func printCounts(w io.Writer, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})

	fmt.Fprintf(w, "\n%s\n", title)
	for _, k := range keys {
		fmt.Fprintf(w, "  %-30s %d\n", k, counts[k])
	}
}

func (q *querier) runs(limit int) error {
	records, err := q.db.RecentRuns(limit)
	if err != nil {
		return fmt.Errorf("get recent sweeps: %w", err)
	}
	if q.json {
		return q.emitJSON(records)
	}
	printRuns(q.out, records)
	return nil
}

func (q *querier) run(id int64) error {
	r, err := q.db.GetRun(id)
	if err != nil {
		return fmt.Errorf("get sweep %d: %w", id, err)
	}
	events, err := q.db.EventsByRun(id)
	if err != nil {
		return fmt.Errorf("get events of sweep %d: %w", id, err)
	}
	if q.json {
		return q.emitJSON(struct {
			Run    *database.RunRecord
			Events []database.EventRecord
		}{r, events})
	}
	printRuns(q.out, []database.RunRecord{*r})
	fmt.Fprintln(q.out)
	printEvents(q.out, events)
	return nil
}

func (q *querier) recent(limit int) error {
	return q.events(q.db.RecentEvents(limit))
}

func (q *querier) byKind(kind string, limit int) error {
	if !q.json {
		fmt.Fprintf(q.out, "Events of kind: %s\n\n", kind)
	}
	return q.events(q.db.EventsByKind(kind, limit))
}

func (q *querier) byPath(pattern string, limit int) error {
	if !q.json {
		fmt.Fprintf(q.out, "Events matching path pattern: %s\n\n", pattern)
	}
	return q.events(q.db.EventsByPath(pattern, limit))
}

func (q *querier) between(since, until string) error {
	start, err := parseDate(since, false)
	if err != nil {
		return err
	}
	end := time.Now()
	if until != "" {
		if end, err = parseDate(until, true); err != nil {
			return err
		}
	}
	if end.Before(start) {
		return fmt.Errorf("-until %s is before -since %s", until, since)
	}
	if !q.json {
		fmt.Fprintf(q.out, "Events from %s to %s\n\n", start.Format(time.DateTime), end.Format(time.DateTime))
	}
	return q.events(q.db.EventsByDateRange(start, end))
}

// parseDate accepts a local calendar date or an RFC 3339 timestamp. A bare
// date used as an upper bound covers the whole day.
func parseDate(s string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD or RFC 3339", s)
	}
	if endOfDay {
		t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return t, nil
}

func (q *querier) events(records []database.EventRecord, err error) error {
	if err != nil {
		return fmt.Errorf("query events: %w", err)
	}
	if q.json {
		return q.emitJSON(records)
	}
	printEvents(q.out, records)
	return nil
}

func (q *querier) prune(days int) error {
	n, err := q.db.DeleteOldRecords(days)
	if err != nil {
		return fmt.Errorf("prune: %w", err)
	}
	fmt.Fprintf(q.out, "Removed %s sweeps older than %d days\n", humanize.Comma(n), days)
	return nil
}

func (q *querier) vacuum() error {
	before, err := q.db.GetDatabaseStats()
	if err != nil {
		return err
	}
	if err := q.db.Vacuum(); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	after, err := q.db.GetDatabaseStats()
	if err != nil {
		return err
	}
	fmt.Fprintf(q.out, "Database compacted: %s -> %s\n", sizeOf(before), sizeOf(after))
	return nil
}

func sizeOf(stats map[string]interface{}) string {
	if n, ok := stats["database_size_bytes"].(int64); ok {
		return humanize.Bytes(uint64(n))
	}
	return "?"
}

func printRuns(w io.Writer, records []database.RunRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No sweeps found")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tStarted\tTrigger\tMode\tRenamed\tDeleted\tKept\tErrors\tFreed\tRoots")
	_, _ = fmt.Fprintln(tw, "--\t-------\t-------\t----\t-------\t-------\t----\t------\t-----\t-----")

	for _, r := range records {
		mode := "apply"
		if r.DryRun {
			mode = "dry-run"
		}
		if r.Cancelled {
			mode += " (cancelled)"
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
			r.ID, humanize.Time(r.StartedAt), r.Trigger, mode,
			r.Renamed, r.Deleted, r.Skipped, r.Errors,
			humanize.Bytes(uint64(r.BytesFreed)), strings.Join(r.Roots, ", "))
	}
	_ = tw.Flush()
}

func printEvents(w io.Writer, records []database.EventRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No records found")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tRun\tTimestamp\tKind\tSize\tPath\tDetail")
	_, _ = fmt.Fprintln(tw, "--\t---\t---------\t----\t----\t----\t------")

	for _, r := range records {
		size := ""
		if r.Size > 0 {
			size = humanize.Bytes(uint64(r.Size))
		}
		detail := r.Message
		switch {
		case r.Target != "":
			detail = "-> " + r.Target
		case r.Rule != "":
			detail = r.Rule
		}
		if r.DryRun {
			detail += " (dry run)"
		}
		_, _ = fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.RunID, r.Timestamp.Local().Format("2006-01-02 15:04:05"), r.Kind, size, r.Path, detail)
	}
	_ = tw.Flush()
}
