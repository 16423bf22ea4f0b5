package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"folder-sanitizer/internal/sanitize"
)

// EventDB manages the SQLite history of sweeps and the changes they made
type EventDB struct {
	db  *sql.DB
	now func() time.Time
}

// RunRecord is one sweep
type RunRecord struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt *time.Time
	DryRun     bool
	Roots      []string
	Trigger    string // cli, interval, http, change
	Renamed    int
	Deleted    int
	Skipped    int
	Errors     int
	BytesFreed int64
	Cancelled  bool
}

// EventRecord is a single stored event
type EventRecord struct {
	ID        int64
	RunID     int64
	Timestamp time.Time
	Kind      string
	Path      string
	Target    string
	Rule      string
	Message   string
	Size      int64
	Depth     int
	DryRun    bool
}

// NewEventDB creates a new database connection and initializes schema
func NewEventDB(dbPath string) (*EventDB, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	// _loc=auto enables automatic DATETIME parsing
	db, err := sql.Open("sqlite3", "file:"+dbPath+"?_loc=auto")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err != nil {
			db.Close()
		}
	}()

	// Ping does not create the file; a query does
	if _, err = db.Exec("SELECT 1"); err != nil {
		return nil, fmt.Errorf("failed to initialize database (check permissions on %s): %w", dbPath, err)
	}

	if _, err = db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if _, err = db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}

	edb := &EventDB{db: db, now: time.Now}
	if err = edb.initSchema(); err != nil {
		return nil, err
	}
	return edb, nil
}

// initSchema creates tables and indexes if they don't exist
func (d *EventDB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		dry_run INTEGER NOT NULL,
		roots TEXT NOT NULL,
		triggered_by TEXT NOT NULL,
		renamed INTEGER NOT NULL DEFAULT 0,
		deleted INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		errors INTEGER NOT NULL DEFAULT 0,
		bytes_freed INTEGER NOT NULL DEFAULT 0,
		cancelled INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		timestamp DATETIME NOT NULL,
		kind TEXT NOT NULL,
		path TEXT NOT NULL,
		target TEXT,
		rule TEXT,
		message TEXT,
		size INTEGER NOT NULL DEFAULT 0,
		depth INTEGER NOT NULL DEFAULT 0,
		dry_run INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_events_run_id ON events(run_id);
	CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind);
	CREATE INDEX IF NOT EXISTS idx_events_path ON events(path);
	CREATE INDEX IF NOT EXISTS idx_events_rule ON events(rule);

	-- Metadata table for schema versioning
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`

	_, err := d.db.Exec(schema)
	return err
}

// Recordable reports whether events of kind k are stored. Entered and
// Visited carry no change and would dominate the table.
func Recordable(k sanitize.Kind) bool {
	return k != sanitize.Entered && k != sanitize.Visited
}

// RunRecorder stores the events of one run
type RunRecorder struct {
	d      *EventDB
	id     int64
	dryRun bool
	stmt   *sql.Stmt
}

// BeginRun inserts a run row and returns a recorder for its events
func (d *EventDB) BeginRun(roots []string, dryRun bool, trigger string) (*RunRecorder, error) {
	res, err := d.db.Exec(`
		INSERT INTO runs (started_at, dry_run, roots, triggered_by) VALUES (?, ?, ?, ?)
	`, d.now().UTC(), dryRun, strings.Join(roots, "\n"), trigger)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}

	stmt, err := d.db.Prepare(`
		INSERT INTO events (run_id, timestamp, kind, path, target, rule, message, size, depth, dry_run)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return nil, fmt.Errorf("prepare event insert: %w", err)
	}
	return &RunRecorder{d: d, id: id, dryRun: dryRun, stmt: stmt}, nil
}

// ID is the run's primary key
func (r *RunRecorder) ID() int64 {
	return r.id
}

// Record stores ev if its kind is recordable
func (r *RunRecorder) Record(ev sanitize.Event) error {
	if !Recordable(ev.Kind) {
		return nil
	}
	ts := ev.Time
	if ts.IsZero() {
		ts = r.d.now()
	}
	_, err := r.stmt.Exec(r.id, ts.UTC(), ev.Kind.String(), ev.Path,
		nullString(ev.Target), nullString(ev.Rule), nullString(ev.Message),
		ev.Size, ev.Depth, r.dryRun)
	return err
}

// Finish stores the run summary and releases the recorder
func (r *RunRecorder) Finish(sum sanitize.Summary) error {
	defer r.stmt.Close()
	_, err := r.d.db.Exec(`
		UPDATE runs SET finished_at = ?, renamed = ?, deleted = ?, skipped = ?,
			errors = ?, bytes_freed = ?, cancelled = ?
		WHERE id = ?
	`, r.d.now().UTC(), sum.Renamed, sum.Deleted, sum.Skipped, sum.Errors,
		sum.BytesFreed, sum.Cancelled, r.id)
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Close closes the database connection
func (d *EventDB) Close() error {
	return d.db.Close()
}

// Vacuum optimizes the database (run periodically)
func (d *EventDB) Vacuum() error {
	_, err := d.db.Exec("VACUUM")
	return err
}

// GetDatabaseStats returns database statistics
func (d *EventDB) GetDatabaseStats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var totalRuns, totalEvents int64
	if err := d.db.QueryRow("SELECT COUNT(*) FROM runs").Scan(&totalRuns); err != nil {
		return nil, err
	}
	if err := d.db.QueryRow("SELECT COUNT(*) FROM events").Scan(&totalEvents); err != nil {
		return nil, err
	}
	stats["total_runs"] = totalRuns
	stats["total_events"] = totalEvents

	var pageCount, pageSize int64
	if err := d.db.QueryRow("PRAGMA page_count").Scan(&pageCount); err != nil {
		return nil, err
	}
	if err := d.db.QueryRow("PRAGMA page_size").Scan(&pageSize); err != nil {
		return nil, err
	}
	stats["database_size_bytes"] = pageCount * pageSize

	// MIN/MAX lose the column type, so the driver returns text
	var oldest, newest sql.NullString
	err := d.db.QueryRow("SELECT MIN(started_at), MAX(started_at) FROM runs").Scan(&oldest, &newest)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	if t, ok := parseSQLiteTime(oldest); ok {
		stats["oldest_run"] = t
	}
	if t, ok := parseSQLiteTime(newest); ok {
		stats["newest_run"] = t
	}

	return stats, nil
}

var sqliteTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05-07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
}

func parseSQLiteTime(s sql.NullString) (time.Time, bool) {
	if !s.Valid || s.String == "" {
		return time.Time{}, false
	}
	for _, layout := range sqliteTimeLayouts {
		if t, err := time.Parse(layout, s.String); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
