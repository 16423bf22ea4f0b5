// Package metrics exposes Prometheus metrics and the control endpoints of
// the watch daemon: /metrics, /health, /trigger and /reload.
package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"folder-sanitizer/internal/logging"
)

var (
	initOnce       sync.Once
	serverMutex    sync.Mutex
	channelMutex   sync.RWMutex
	currentSrv     *http.Server
	triggerChannel chan<- struct{}
	reloadChannel  chan<- struct{}

	globalHealthChecker *HealthChecker
	healthMutex         sync.RWMutex
)

// Init initializes all metrics subsystems and registers them with Prometheus
// This function is safe to call multiple times (uses sync.Once)
func Init() {
	initOnce.Do(func() {
		initSweepMetrics()
		initDaemonMetrics()
		initAPIMetrics()
		initServiceHealthMetrics()

		registerSweepMetrics()
		registerDaemonMetrics()
		registerAPIMetrics()
		registerServiceHealthMetrics()

		// Present in /metrics before the first sweep
		LastRunTimestamp.Set(0)
		ServiceHealthy.Set(1)
	})
}

// SetTriggerChannel sets the channel that POST /trigger sends to
func SetTriggerChannel(ch chan<- struct{}) {
	channelMutex.Lock()
	defer channelMutex.Unlock()
	triggerChannel = ch
}

// SetReloadChannel sets the channel that POST /reload sends to
func SetReloadChannel(ch chan<- struct{}) {
	channelMutex.Lock()
	defer channelMutex.Unlock()
	reloadChannel = ch
}

// Control endpoints accept a burst of controlRequestBurst requests, then
// one per controlRequestInterval.
const (
	controlRequestInterval = time.Second
	controlRequestBurst    = 10
)

// Handler returns the router serving /metrics, /health, /trigger and /reload
func Handler() http.Handler {
	Init()

	limiter := rate.NewLimiter(rate.Every(controlRequestInterval), controlRequestBurst)

	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/health", instrument("health", handleHealth)).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/trigger", instrument("trigger", limitRate(limiter, signalHandler(func() chan<- struct{} {
		channelMutex.RLock()
		defer channelMutex.RUnlock()
		return triggerChannel
	}, "Sweep triggered")))).Methods(http.MethodPost)
	r.HandleFunc("/reload", instrument("reload", limitRate(limiter, signalHandler(func() chan<- struct{} {
		channelMutex.RLock()
		defer channelMutex.RUnlock()
		return reloadChannel
	}, "Config reload triggered")))).Methods(http.MethodPost)
	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	hc := GetHealthChecker()
	if hc == nil {
		// No health checker configured, default to ok
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok","healthy":true}`))
		return
	}

	st := hc.Status()
	if st.Healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(st)
}

// signalHandler performs a non-blocking send on the channel.
// A full channel means a request is already pending, which is reported as accepted.
func signalHandler(ch func() chan<- struct{}, msg string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := ch()
		if c == nil {
			http.Error(w, "Channel not initialized", http.StatusServiceUnavailable)
			return
		}
		select {
		case c <- struct{}{}:
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(msg))
		default:
			w.WriteHeader(http.StatusAccepted)
			w.Write([]byte("Already pending"))
		}
	}
}

// StartServer starts the metrics HTTP server on the specified address
func StartServer(addr string, logger *logging.Logger) {
	serverMutex.Lock()
	defer serverMutex.Unlock()

	if currentSrv != nil {
		logger.Warn("metrics server already running", "addr", currentSrv.Addr)
		return
	}

	srv := &http.Server{
		Addr:    addr,
		Handler: Handler(),
	}
	currentSrv = srv

	go func() {
		logger.Info("metrics server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
			ErrorsTotal.Inc()
		}
	}()
}

// Shutdown gracefully shuts down the metrics server
func Shutdown(ctx context.Context, logger *logging.Logger) {
	serverMutex.Lock()
	defer serverMutex.Unlock()

	SetHealthChecker(nil)

	if currentSrv == nil {
		return
	}

	if err := currentSrv.Shutdown(ctx); err != nil {
		logger.Error("metrics server shutdown error", "error", err)
		ErrorsTotal.Inc()
	}
	currentSrv = nil
}

// SetHealthChecker sets the global health checker instance
func SetHealthChecker(hc *HealthChecker) {
	healthMutex.Lock()
	defer healthMutex.Unlock()
	globalHealthChecker = hc
}

// GetHealthChecker returns the global health checker instance
func GetHealthChecker() *HealthChecker {
	healthMutex.RLock()
	defer healthMutex.RUnlock()
	return globalHealthChecker
}
