package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"folder-sanitizer/internal/sanitize"
)

// maxConsecutiveFailures before the service reports itself unhealthy
const maxConsecutiveFailures = 3

// Service health metrics
var (
	// ServiceHealthy indicates overall daemon health status
	ServiceHealthy prometheus.Gauge

	// ServiceStartTime records daemon start timestamp
	ServiceStartTime prometheus.Gauge
)

// HealthChecker derives service health from sweep outcomes. The service is
// unhealthy when sweeps keep failing or none finished within maxStale.
type HealthChecker struct {
	mu                  sync.RWMutex
	startTime           time.Time
	maxStale            time.Duration
	lastSweep           time.Time
	lastError           string
	consecutiveFailures int
	now                 func() time.Time
}

// HealthStatus is the /health response body
type HealthStatus struct {
	Status              string     `json:"status"`
	Healthy             bool       `json:"healthy"`
	UptimeSeconds       float64    `json:"uptime_seconds"`
	LastSweep           *time.Time `json:"last_sweep,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastError           string     `json:"last_error,omitempty"`
}

func initServiceHealthMetrics() {
	ServiceHealthy = NewGauge(
		"folder_sanitizer_daemon_healthy",
		"Daemon health status (1=healthy, 0=unhealthy).",
	)

	ServiceStartTime = NewGauge(
		"folder_sanitizer_daemon_start_timestamp_seconds",
		"Unix timestamp when daemon started.",
	)
}

func registerServiceHealthMetrics() {
	prometheus.MustRegister(ServiceHealthy)
	prometheus.MustRegister(ServiceStartTime)
}

// NewHealthChecker creates a health checker; maxStale <= 0 disables the staleness check
func NewHealthChecker(maxStale time.Duration) *HealthChecker {
	Init()
	hc := &HealthChecker{
		startTime: time.Now(),
		maxStale:  maxStale,
		now:       time.Now,
	}
	ServiceStartTime.Set(float64(hc.startTime.Unix()))
	ServiceHealthy.Set(1)
	return hc
}

// RecordSweep notes a finished sweep. Per-entry errors do not count as failures.
func (hc *HealthChecker) RecordSweep(sum sanitize.Summary) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	if sum.Cancelled {
		return
	}
	hc.lastSweep = hc.now()
	hc.consecutiveFailures = 0
	hc.lastError = ""
	hc.updateGauge()
}

// RecordFailure notes a sweep that could not run at all
func (hc *HealthChecker) RecordFailure(err error) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.consecutiveFailures++
	hc.lastError = err.Error()
	hc.updateGauge()
}

// IsHealthy returns true if sweeps are succeeding on schedule
func (hc *HealthChecker) IsHealthy() bool {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.healthy()
}

func (hc *HealthChecker) healthy() bool {
	if hc.consecutiveFailures >= maxConsecutiveFailures {
		return false
	}
	if hc.maxStale <= 0 {
		return true
	}
	ref := hc.lastSweep
	if ref.IsZero() {
		ref = hc.startTime
	}
	return hc.now().Sub(ref) <= hc.maxStale
}

func (hc *HealthChecker) updateGauge() {
	if hc.healthy() {
		ServiceHealthy.Set(1)
	} else {
		ServiceHealthy.Set(0)
	}
}

// Status returns a snapshot for the /health endpoint
func (hc *HealthChecker) Status() HealthStatus {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	st := HealthStatus{
		Status:              "ok",
		Healthy:             hc.healthy(),
		UptimeSeconds:       hc.now().Sub(hc.startTime).Seconds(),
		ConsecutiveFailures: hc.consecutiveFailures,
		LastError:           hc.lastError,
	}
	if !st.Healthy {
		st.Status = "degraded"
	}
	if !hc.lastSweep.IsZero() {
		t := hc.lastSweep
		st.LastSweep = &t
	}
	return st
}
