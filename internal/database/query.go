package database

import (
	"database/sql"
	"strings"
	"time"
)

const eventColumns = `id, run_id, timestamp, kind, path, target, rule, message, size, depth, dry_run`

const runColumns = `id, started_at, finished_at, dry_run, roots, triggered_by,
	renamed, deleted, skipped, errors, bytes_freed, cancelled`

// RecentEvents returns the N most recent stored events
func (d *EventDB) RecentEvents(limit int) ([]EventRecord, error) {
	query := `SELECT ` + eventColumns + `
	FROM events
	ORDER BY timestamp DESC, id DESC
	LIMIT ?
	`

	return d.queryEvents(query, limit)
}

// EventsByKind returns events of one kind, e.g. "renamed"
func (d *EventDB) EventsByKind(kind string, limit int) ([]EventRecord, error) {
	query := `SELECT ` + eventColumns + `
	FROM events
	WHERE kind = ?
	ORDER BY timestamp DESC, id DESC
	LIMIT ?
	`

	return d.queryEvents(query, kind, limit)
}

// EventsByPath returns events whose path or rename target matches a LIKE pattern
func (d *EventDB) EventsByPath(pathPattern string, limit int) ([]EventRecord, error) {
	query := `SELECT ` + eventColumns + `
	FROM events
	WHERE path LIKE ? OR target LIKE ?
	ORDER BY timestamp DESC, id DESC
	LIMIT ?
	`

	return d.queryEvents(query, pathPattern, pathPattern, limit)
}

// EventsByRun returns the events of one run in the order they happened
func (d *EventDB) EventsByRun(runID int64) ([]EventRecord, error) {
	query := `SELECT ` + eventColumns + `
	FROM events
	WHERE run_id = ?
	ORDER BY id ASC
	`

	return d.queryEvents(query, runID)
}

// EventsByDateRange returns events within a time range
func (d *EventDB) EventsByDateRange(start, end time.Time) ([]EventRecord, error) {
	query := `SELECT ` + eventColumns + `
	FROM events
	WHERE timestamp BETWEEN ? AND ?
	ORDER BY timestamp DESC, id DESC
	`

	return d.queryEvents(query, start.UTC(), end.UTC())
}

// RecentRuns returns the N most recent runs
func (d *EventDB) RecentRuns(limit int) ([]RunRecord, error) {
	query := `SELECT ` + runColumns + `
	FROM runs
	ORDER BY started_at DESC, id DESC
	LIMIT ?
	`

	return d.queryRuns(query, limit)
}

// GetRun returns a single run, or sql.ErrNoRows
func (d *EventDB) GetRun(id int64) (*RunRecord, error) {
	runs, err := d.queryRuns(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, sql.ErrNoRows
	}
	return &runs[0], nil
}

// GetCountByKind returns count of events grouped by kind since a time
func (d *EventDB) GetCountByKind(since time.Time) (map[string]int, error) {
	return d.countBy(`
	SELECT kind, COUNT(*)
	FROM events
	WHERE timestamp >= ?
	GROUP BY kind
	`, since.UTC())
}

// GetTopRules returns the delete rules that removed the most entries
func (d *EventDB) GetTopRules(limit int) (map[string]int, error) {
	return d.countBy(`
	SELECT rule, COUNT(*) as count
	FROM events
	WHERE kind = 'deleted' AND rule IS NOT NULL
	GROUP BY rule
	ORDER BY count DESC
	LIMIT ?
	`, limit)
}

// EventStats holds aggregated statistics
type EventStats struct {
	TotalRuns       int
	TotalRenamed    int
	TotalDeleted    int
	TotalSkipped    int
	TotalErrors     int
	TotalSpaceFreed int64
	ByKind          map[string]int
	TopRules        map[string]int
	StartDate       time.Time
	EndDate         time.Time
}

// GetStats returns statistics for real (non dry-run) sweeps of the last days
func (d *EventDB) GetStats(days int) (*EventStats, error) {
	now := d.now()
	since := now.AddDate(0, 0, -days)

	stats := &EventStats{
		StartDate: since,
		EndDate:   now,
	}

	err := d.db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(renamed), 0),
			COALESCE(SUM(deleted), 0),
			COALESCE(SUM(skipped), 0),
			COALESCE(SUM(errors), 0),
			COALESCE(SUM(bytes_freed), 0)
		FROM runs
		WHERE started_at >= ? AND dry_run = 0
	`, since.UTC()).Scan(&stats.TotalRuns, &stats.TotalRenamed, &stats.TotalDeleted,
		&stats.TotalSkipped, &stats.TotalErrors, &stats.TotalSpaceFreed)
	if err != nil {
		return nil, err
	}

	stats.ByKind, err = d.GetCountByKind(since)
	if err != nil {
		return nil, err
	}

	stats.TopRules, err = d.GetTopRules(10)
	if err != nil {
		return nil, err
	}

	return stats, nil
}

// DeleteOldRecords removes runs (and their events) older than specified days
func (d *EventDB) DeleteOldRecords(olderThanDays int) (int64, error) {
	cutoff := d.now().AddDate(0, 0, -olderThanDays).UTC()

	tx, err := d.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		DELETE FROM events WHERE run_id IN (SELECT id FROM runs WHERE started_at < ?)
	`, cutoff); err != nil {
		return 0, err
	}
	result, err := tx.Exec(`DELETE FROM runs WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

func (d *EventDB) countBy(query string, args ...interface{}) (map[string]int, error) {
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return nil, err
		}
		counts[key] = count
	}

	return counts, rows.Err()
}

// queryEvents executes an event query and scans the results
func (d *EventDB) queryEvents(query string, args ...interface{}) ([]EventRecord, error) {
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []EventRecord
	for rows.Next() {
		var r EventRecord
		var target, rule, message sql.NullString

		err := rows.Scan(
			&r.ID, &r.RunID, &r.Timestamp, &r.Kind, &r.Path,
			&target, &rule, &message, &r.Size, &r.Depth, &r.DryRun,
		)
		if err != nil {
			return nil, err
		}
		r.Target = target.String
		r.Rule = rule.String
		r.Message = message.String

		records = append(records, r)
	}

	return records, rows.Err()
}

func (d *EventDB) queryRuns(query string, args ...interface{}) ([]RunRecord, error) {
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		var finished sql.NullTime
		var roots string

		err := rows.Scan(
			&r.ID, &r.StartedAt, &finished, &r.DryRun, &roots, &r.Trigger,
			&r.Renamed, &r.Deleted, &r.Skipped, &r.Errors, &r.BytesFreed, &r.Cancelled,
		)
		if err != nil {
			return nil, err
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		if roots != "" {
			r.Roots = strings.Split(roots, "\n")
		}

		runs = append(runs, r)
	}

	return runs, rows.Err()
}
