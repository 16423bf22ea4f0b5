package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Daemon subsystem metrics
var (
	// ErrorsTotal tracks errors outside a sweep (history, server, watcher)
	ErrorsTotal prometheus.Counter

	// TriggersTotal counts sweep requests by source (interval, http, change)
	TriggersTotal *prometheus.CounterVec

	// WatchedDirectories tracks directories registered with the change watcher
	WatchedDirectories prometheus.Gauge

	// RootFreeBytes is the free space of each root's filesystem after a sweep
	RootFreeBytes *prometheus.GaugeVec
)

func initDaemonMetrics() {
	ErrorsTotal = NewCounter(
		"folder_sanitizer_daemon_errors_total",
		"Total number of errors encountered outside sweeps.",
	)

	TriggersTotal = NewCounterVec(
		"folder_sanitizer_triggers_total",
		"Total number of sweep requests by source.",
		[]string{"source"},
	)

	WatchedDirectories = NewGauge(
		"folder_sanitizer_watched_directories",
		"Number of directories registered with the change watcher.",
	)

	RootFreeBytes = NewGaugeVec(
		"folder_sanitizer_root_free_bytes",
		"Free bytes on the filesystem of each root after the last sweep.",
		[]string{"root"},
	)
}

func registerDaemonMetrics() {
	prometheus.MustRegister(ErrorsTotal)
	prometheus.MustRegister(TriggersTotal)
	prometheus.MustRegister(WatchedDirectories)
	prometheus.MustRegister(RootFreeBytes)
}
