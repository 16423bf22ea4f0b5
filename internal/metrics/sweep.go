package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"folder-sanitizer/internal/sanitize"
)

// Sweep subsystem metrics. Change counters carry a mode label
// ("apply" or "dry_run") so previews never inflate real totals.
var (
	// SweepDuration tracks how long sweeps take
	SweepDuration prometheus.Histogram

	// SweepsTotal counts sweeps by trigger and result (ok, errors, cancelled)
	SweepsTotal *prometheus.CounterVec

	// RenamesTotal counts prefix renames
	RenamesTotal *prometheus.CounterVec

	// DeletionsTotal counts deletions by rule kind (regex, glob, exact)
	DeletionsTotal *prometheus.CounterVec

	// BytesFreedTotal counts bytes of deleted files
	BytesFreedTotal *prometheus.CounterVec

	// EntriesVisitedTotal counts files left in place
	EntriesVisitedTotal prometheus.Counter

	// SkippedTotal counts non-empty directories kept despite matching a delete rule
	SkippedTotal prometheus.Counter

	// EventErrorsTotal counts access and operation errors
	EventErrorsTotal *prometheus.CounterVec

	// LastRunTimestamp records Unix timestamp of the last finished sweep
	LastRunTimestamp prometheus.Gauge

	// LastRunChanges records renames plus deletions of the last sweep
	LastRunChanges prometheus.Gauge

	// LastRunDryRun is 1 when the last sweep was a dry run
	LastRunDryRun prometheus.Gauge
)

func initSweepMetrics() {
	SweepDuration = NewDurationHistogram(
		"folder_sanitizer_sweep_duration_seconds",
		"Duration of sweeps in seconds.",
	)

	SweepsTotal = NewCounterVec(
		"folder_sanitizer_sweeps_total",
		"Total number of sweeps.",
		[]string{"trigger", "result"},
	)

	RenamesTotal = NewCounterVec(
		"folder_sanitizer_renames_total",
		"Total number of entries renamed to strip a prefix.",
		[]string{"mode"},
	)

	DeletionsTotal = NewCounterVec(
		"folder_sanitizer_deletions_total",
		"Total number of entries deleted by a delete rule.",
		[]string{"mode", "rule_kind"},
	)

	BytesFreedTotal = NewCounterVec(
		"folder_sanitizer_bytes_freed_total",
		"Total bytes of deleted files.",
		[]string{"mode"},
	)

	EntriesVisitedTotal = NewCounter(
		"folder_sanitizer_entries_visited_total",
		"Total number of files visited and left in place.",
	)

	SkippedTotal = NewCounter(
		"folder_sanitizer_skipped_total",
		"Total number of non-empty directories kept despite matching a delete rule.",
	)

	EventErrorsTotal = NewCounterVec(
		"folder_sanitizer_event_errors_total",
		"Total number of access and operation errors during sweeps.",
		[]string{"kind"},
	)

	LastRunTimestamp = NewGauge(
		"folder_sanitizer_last_run_timestamp",
		"Timestamp of the last finished sweep (Unix epoch seconds).",
	)

	LastRunChanges = NewGauge(
		"folder_sanitizer_last_run_changes",
		"Renames plus deletions made by the last sweep.",
	)

	LastRunDryRun = NewGauge(
		"folder_sanitizer_last_run_dry_run",
		"1 if the last sweep was a dry run, 0 otherwise.",
	)
}

func registerSweepMetrics() {
	prometheus.MustRegister(SweepDuration)
	prometheus.MustRegister(SweepsTotal)
	prometheus.MustRegister(RenamesTotal)
	prometheus.MustRegister(DeletionsTotal)
	prometheus.MustRegister(BytesFreedTotal)
	prometheus.MustRegister(EntriesVisitedTotal)
	prometheus.MustRegister(SkippedTotal)
	prometheus.MustRegister(EventErrorsTotal)
	prometheus.MustRegister(LastRunTimestamp)
	prometheus.MustRegister(LastRunChanges)
	prometheus.MustRegister(LastRunDryRun)
}

func mode(dryRun bool) string {
	if dryRun {
		return "dry_run"
	}
	return "apply"
}

// ruleKind extracts "regex" from a rule description like "regex:^foo".
func ruleKind(rule string) string {
	kind, _, ok := strings.Cut(rule, ":")
	if !ok || kind == "" {
		return "unknown"
	}
	return kind
}

// ObserveEvent updates the counters for a single sweep event
func ObserveEvent(ev sanitize.Event, dryRun bool) {
	switch ev.Kind {
	case sanitize.Renamed:
		RenamesTotal.WithLabelValues(mode(dryRun)).Inc()
	case sanitize.Deleted:
		DeletionsTotal.WithLabelValues(mode(dryRun), ruleKind(ev.Rule)).Inc()
		if ev.Size > 0 {
			BytesFreedTotal.WithLabelValues(mode(dryRun)).Add(float64(ev.Size))
		}
	case sanitize.Visited:
		EntriesVisitedTotal.Inc()
	case sanitize.Skipped:
		SkippedTotal.Inc()
	case sanitize.AccessError, sanitize.OperationError:
		EventErrorsTotal.WithLabelValues(ev.Kind.String()).Inc()
	}
}

// RecordRun records the outcome of a finished sweep
func RecordRun(sum sanitize.Summary, dryRun bool, trigger string) {
	result := "ok"
	switch {
	case sum.Cancelled:
		result = "cancelled"
	case sum.Errors > 0:
		result = "errors"
	}
	SweepsTotal.WithLabelValues(trigger, result).Inc()
	SweepDuration.Observe(sum.Duration.Seconds())
	LastRunTimestamp.Set(float64(time.Now().Unix()))
	LastRunChanges.Set(float64(sum.Changes()))
	if dryRun {
		LastRunDryRun.Set(1)
	} else {
		LastRunDryRun.Set(0)
	}
}
