package scheduler

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"folder-sanitizer/internal/config"
	"folder-sanitizer/internal/database"
	"folder-sanitizer/internal/disk"
	"folder-sanitizer/internal/fsops"
	"folder-sanitizer/internal/limiter"
	"folder-sanitizer/internal/logging"
	"folder-sanitizer/internal/metrics"
	"folder-sanitizer/internal/report"
	"folder-sanitizer/internal/safety"
	"folder-sanitizer/internal/sanitize"
)

// What caused a sweep; stored with the run and used as a metric label.
const (
	TriggerCLI      = "cli"
	TriggerStartup  = "startup"
	TriggerInterval = "interval"
	TriggerHTTP     = "http"
	TriggerChange   = "change"
)

// A root whose stat takes longer than this is treated as a dead mount.
const mountTimeout = 5 * time.Second

// Deps are the collaborators of a sweep. Only Logger is required.
type Deps struct {
	Logger  *logging.Logger
	DB      *database.EventDB
	Printer *report.Printer
	FS      fsops.FS
	Health  *metrics.HealthChecker
}

func (d Deps) logger() *logging.Logger {
	if d.Logger == nil {
		return logging.Discard()
	}
	return d.Logger
}

// RunOnce performs one sweep of cfg.Roots. Per-entry failures are events,
// not errors; an error means the sweep could not run or was cancelled.
func RunOnce(ctx context.Context, cfg *config.Config, deps Deps, trigger string) (sanitize.Summary, error) {
	if cfg == nil {
		return sanitize.Summary{}, errors.New("nil config")
	}
	if err := cfg.Validate(); err != nil {
		return sanitize.Summary{}, fmt.Errorf("invalid config: %w", err)
	}

	select {
	case <-ctx.Done():
		return sanitize.Summary{}, ctx.Err()
	default:
	}

	set, err := cfg.Rules()
	if err != nil {
		return sanitize.Summary{}, err
	}

	logger := deps.logger()
	metrics.Init()

	s := sanitize.New(deps.FS)
	s.SetValidator(safety.NewValidator(cfg.ProtectedPaths))
	if cpu := limiter.NewCPULimiter(cfg.ResourceLimits.MaxCPUPercent); cpu.Enabled() {
		s.SetYield(cpu.Throttle)
	}

	var rec *database.RunRecorder
	if deps.DB != nil {
		rec, err = deps.DB.BeginRun(cfg.Roots, cfg.DryRun, trigger)
		if err != nil {
			logger.Error("failed to record run", "error", err)
			metrics.ErrorsTotal.Inc()
			rec = nil
		}
	}

	if deps.Printer != nil {
		deps.Printer.SetDryRun(cfg.DryRun)
	}

	logger.Info("sweep started", "trigger", trigger, "roots", len(cfg.Roots), "dry_run", cfg.DryRun)
	logger.Debug("rules loaded", "prefixes", strings.Join(set.Prefixes(), " "))

	recordFailed := false
	sink := func(ev sanitize.Event) {
		metrics.ObserveEvent(ev, cfg.DryRun)

		if rec != nil && !recordFailed {
			if err := rec.Record(ev); err != nil {
				// One line per run; the remaining events are dropped from history.
				logger.Error("failed to record event", "error", err)
				metrics.ErrorsTotal.Inc()
				recordFailed = true
			}
		}

		switch {
		case ev.Kind.IsError():
			logger.Error(ev.String())
		case ev.Kind == sanitize.Entered || ev.Kind == sanitize.Visited:
			logger.Debug(ev.String())
		default:
			logger.Info(ev.String())
		}

		if deps.Printer != nil {
			deps.Printer.Event(ev)
		}
	}

	// A hung network mount would block the walk forever.
	roots := make([]string, 0, len(cfg.Roots))
	var unreachable sanitize.Summary
	for _, root := range cfg.Roots {
		if disk.Unresponsive(root, mountTimeout) {
			ev := sanitize.Event{Kind: sanitize.AccessError, Path: root, Message: "mount not responding", Time: time.Now()}
			sink(ev)
			unreachable.Add(ev)
			continue
		}
		roots = append(roots, root)
	}

	sum := s.Sanitize(ctx, sanitize.Options{Roots: roots, Rules: set, DryRun: cfg.DryRun}, sink)
	sum.Errors += unreachable.Errors
	recordFreeSpace(roots, logger)

	if rec != nil {
		if err := rec.Finish(sum); err != nil {
			logger.Error("failed to finish run record", "error", err)
			metrics.ErrorsTotal.Inc()
		}
	}
	metrics.RecordRun(sum, cfg.DryRun, trigger)
	if deps.Health != nil {
		deps.Health.RecordSweep(sum)
	}
	if deps.Printer != nil {
		deps.Printer.Summary(sum)
	}

	logger.Info("sweep complete",
		"renamed", sum.Renamed,
		"deleted", sum.Deleted,
		"skipped", sum.Skipped,
		"errors", sum.Errors,
		"bytes_freed", sum.BytesFreed,
		"duration", sum.Duration,
	)

	if sum.Cancelled {
		return sum, ctx.Err()
	}
	return sum, nil
}

// recordFreeSpace publishes the free space of each root's filesystem. A root
// renamed by the sweep is measured through its parent.
func recordFreeSpace(roots []string, logger *logging.Logger) {
	for _, root := range roots {
		u, err := disk.GetUsage(root)
		if err != nil {
			u, err = disk.GetUsage(filepath.Dir(root))
		}
		if err != nil {
			logger.Debug("free space unavailable", "root", root, "error", err)
			continue
		}
		metrics.RootFreeBytes.WithLabelValues(root).Set(float64(u.FreeBytes))
		logger.Debug("free space", "root", root, "free_bytes", u.FreeBytes, "used_percent", fmt.Sprintf("%.1f", u.UsedPercent))
	}
}

// Options are the external inputs of the watch loop. Nil channels never fire.
type Options struct {
	// Trigger requests an immediate sweep (POST /trigger)
	Trigger <-chan struct{}
	// Reload requests LoadConfig be called and the result applied (POST /reload, SIGHUP)
	Reload     <-chan struct{}
	LoadConfig func() (*config.Config, error)
}

// Run sweeps immediately, then again on every interval tick, trigger and,
// when cfg.Watch is enabled, on debounced filesystem changes under the roots.
// It returns ctx.Err() when ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config, deps Deps, opts Options) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	logger := deps.logger()
	metrics.Init()

	// Roots renamed by earlier sweeps, old path to new. Kept across reloads
	// since the config file still names the old paths.
	moved := make(map[string]string)
	var watcher *ChangeWatcher

	sweep := func(trigger string) {
		metrics.TriggersTotal.WithLabelValues(trigger).Inc()
		sum, err := RunOnce(ctx, cfg, deps, trigger)
		if err != nil && ctx.Err() == nil {
			logger.Error("sweep failed", "trigger", trigger, "error", err)
			metrics.ErrorsTotal.Inc()
			if deps.Health != nil {
				deps.Health.RecordFailure(err)
			}
		}
		if cfg.DryRun || len(sum.MovedRoots) == 0 {
			return
		}

		for from, to := range sum.MovedRoots {
			moved[from] = to
			logger.Info("root renamed", "from", from, "to", to)
		}
		next := *cfg
		next.Roots = followMoves(cfg.Roots, moved)
		cfg = &next
		if watcher != nil {
			watcher.Close()
			watcher = startWatcher(cfg, logger)
		}
	}

	watcher = startWatcher(cfg, logger)
	defer func() {
		if watcher != nil {
			watcher.Close()
		}
	}()

	sweep(TriggerStartup)

	ticker := time.NewTicker(cfg.Interval())
	defer ticker.Stop()

	for {
		var changes <-chan struct{}
		if watcher != nil {
			changes = watcher.C()
		}

		select {
		case <-ctx.Done():
			logger.Info("scheduler shutting down")
			return ctx.Err()
		case <-ticker.C:
			sweep(TriggerInterval)
		case <-opts.Trigger:
			sweep(TriggerHTTP)
		case <-changes:
			sweep(TriggerChange)
		case <-opts.Reload:
			next, err := reload(opts.LoadConfig)
			if err != nil {
				logger.Error("config reload failed", "error", err)
				metrics.ErrorsTotal.Inc()
				if deps.Health != nil {
					deps.Health.RecordFailure(err)
				}
				continue
			}
			next.Roots = followMoves(next.Roots, moved)
			cfg = next
			ticker.Reset(cfg.Interval())
			if watcher != nil {
				watcher.Close()
			}
			watcher = startWatcher(cfg, logger)
			logger.Info("configuration reloaded", "roots", len(cfg.Roots), "dry_run", cfg.DryRun)
			continue
		}

		// Our own renames and deletions show up as changes; drop them.
		if watcher != nil {
			watcher.Drain()
		}
	}
}

// followMoves replaces every root that a sweep renamed with its current path.
func followMoves(roots []string, moved map[string]string) []string {
	out := make([]string, len(roots))
	for i, root := range roots {
		// A cycle of renames stops after len(moved) steps.
		for n := 0; n < len(moved); n++ {
			to, ok := moved[root]
			if !ok {
				break
			}
			root = to
		}
		out[i] = root
	}
	return out
}

func reload(load func() (*config.Config, error)) (*config.Config, error) {
	if load == nil {
		return nil, errors.New("reload not supported")
	}
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func startWatcher(cfg *config.Config, logger *logging.Logger) *ChangeWatcher {
	if !cfg.Watch.Enabled {
		return nil
	}
	w, err := NewChangeWatcher(cfg.Roots, cfg.Debounce(), logger)
	if err != nil {
		logger.Error("failed to start change watcher", "error", err)
		metrics.ErrorsTotal.Inc()
		return nil
	}
	return w
}
