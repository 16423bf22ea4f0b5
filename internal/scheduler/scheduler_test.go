package scheduler

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"

	"folder-sanitizer/internal/config"
	"folder-sanitizer/internal/database"
	"folder-sanitizer/internal/fsops"
	"folder-sanitizer/internal/logging"
	"folder-sanitizer/internal/metrics"
	"folder-sanitizer/internal/report"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func testConfig(t *testing.T, roots ...string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Roots = roots
	cfg.Prefixes = []string{"[SW.BAND]"}
	cfg.DeletePatterns = []string{`\[DMC\.RIP\].*\.url$`}
	cfg.DatabasePath = config.DisabledDatabase
	return cfg
}

// waitFor polls cond until it holds or the deadline passes
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

func TestRunOnceWiresHistoryAndOutput(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "[SW.BAND] Course", "[DMC.RIP] link.url"), "url")
	writeFile(t, filepath.Join(root, "[SW.BAND] Course", "notes.txt"), "notes")

	db, err := database.NewEventDB(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	var out, logs bytes.Buffer
	logger, err := logging.New(config.LoggingCfg{}, &logs)
	if err != nil {
		t.Fatal(err)
	}
	printer := report.NewPrinter(&out, report.Theme{NoColor: true, NoEmoji: true}, false)
	health := metrics.NewHealthChecker(time.Hour)

	sum, err := RunOnce(context.Background(), testConfig(t, root),
		Deps{Logger: logger, DB: db, Printer: printer, Health: health}, TriggerCLI)
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	if sum.Renamed != 1 || sum.Deleted != 1 || sum.Errors != 0 {
		t.Errorf("summary = %+v", sum)
	}
	if !exists(filepath.Join(root, "Course", "notes.txt")) || exists(filepath.Join(root, "Course", "[DMC.RIP] link.url")) {
		t.Error("tree was not sanitized")
	}

	runs, err := db.RecentRuns(1)
	if err != nil || len(runs) != 1 {
		t.Fatalf("RecentRuns() = %v, %v", runs, err)
	}
	if runs[0].Trigger != TriggerCLI || runs[0].Renamed != 1 || runs[0].Deleted != 1 {
		t.Errorf("stored run = %+v", runs[0])
	}
	events, err := db.EventsByRun(runs[0].ID)
	if err != nil || len(events) != 2 {
		t.Errorf("stored events = %v, %v; want renamed and deleted", events, err)
	}

	for _, want := range []string{"Sweeping " + root, `renamed "[SW.BAND] Course" -> "Course"`, "Sanitize finished: 1 renamed, 1 deleted"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
	if !strings.Contains(logs.String(), "[INFO] sweep complete") || !strings.Contains(logs.String(), "RENAMED") {
		t.Errorf("log missing sweep lines:\n%s", logs.String())
	}
	if st := health.Status(); st.LastSweep == nil {
		t.Error("health checker did not see the sweep")
	}
}

func TestRunOnceDryRunLeavesTreeAlone(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "[SW.BAND] a.txt"), "a")
	cfg := testConfig(t, root)
	cfg.DryRun = true
	rec := fsops.NewRecordingFS(true)

	sum, err := RunOnce(context.Background(), cfg, Deps{FS: rec}, TriggerCLI)
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if sum.Renamed != 1 {
		t.Errorf("dry run should report the rename, got %+v", sum)
	}
	if calls := rec.Mutations(); len(calls) != 0 {
		t.Errorf("DRY-RUN VIOLATION: %v", calls)
	}
	if !exists(filepath.Join(root, "[SW.BAND] a.txt")) {
		t.Error("dry run renamed the file")
	}
}

func TestRunOnceRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.Config
	}{
		{name: "nil", cfg: nil},
		{name: "no roots", cfg: testConfig(t)},
		{name: "relative root", cfg: testConfig(t, "relative/dir")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := RunOnce(context.Background(), tt.cfg, Deps{}, TriggerCLI); err == nil {
				t.Error("RunOnce() error = nil, want error")
			}
		})
	}
}

func TestRunOnceCancelled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "[SW.BAND] a.txt"), "a")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RunOnce(ctx, testConfig(t, root), Deps{}, TriggerCLI)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("RunOnce() error = %v, want context.Canceled", err)
	}
	if !exists(filepath.Join(root, "[SW.BAND] a.txt")) {
		t.Error("cancelled run touched the tree")
	}
}

func TestRunOnceProtectedRootIsReported(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(t, root)
	cfg.ProtectedPaths = []string{root}

	sum, err := RunOnce(context.Background(), cfg, Deps{}, TriggerCLI)
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if sum.Errors != 1 || sum.Roots != 0 {
		t.Errorf("summary = %+v, want one access error and no root swept", sum)
	}
}

func TestRunSweepsOnTrigger(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(t, root)
	trigger := make(chan struct{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg, Deps{}, Options{Trigger: trigger}) }()

	// A file created after the startup sweep is only handled once triggered.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, filepath.Join(root, "[SW.BAND] late.txt"), "late")
	trigger <- struct{}{}
	waitFor(t, "late.txt to be renamed", func() bool { return exists(filepath.Join(root, "late.txt")) })

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}

func TestRunReloadsConfig(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(t, root)
	trigger := make(chan struct{}, 1)
	reloadCh := make(chan struct{}, 1)

	next := testConfig(t, root)
	next.Prefixes = []string{"[NEW]"}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, cfg, Deps{}, Options{
			Trigger:    trigger,
			Reload:     reloadCh,
			LoadConfig: func() (*config.Config, error) { return next, nil },
		})
	}()

	writeFile(t, filepath.Join(root, "[NEW] b.txt"), "b")
	reloadCh <- struct{}{}
	waitFor(t, "b.txt to be renamed with the reloaded prefix", func() bool {
		select {
		case trigger <- struct{}{}:
		default:
		}
		return exists(filepath.Join(root, "b.txt"))
	})

	cancel()
	<-done
}

func TestRunWatchesForChanges(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(t, root)
	cfg.Watch.Enabled = true
	cfg.Watch.DebounceSeconds = 1

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg, Deps{}, Options{}) }()

	time.Sleep(200 * time.Millisecond)
	writeFile(t, filepath.Join(root, "sub", "[SW.BAND] dropped.txt"), "d")
	waitFor(t, "dropped file to be renamed", func() bool { return exists(filepath.Join(root, "sub", "dropped.txt")) })

	cancel()
	<-done
}

func TestRunOnceRecordsFreeSpace(t *testing.T) {
	root := t.TempDir()
	if _, err := RunOnce(context.Background(), testConfig(t, root), Deps{}, TriggerCLI); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	var m dto.Metric
	if err := metrics.RootFreeBytes.WithLabelValues(root).Write(&m); err != nil {
		t.Fatal(err)
	}
	if m.GetGauge().GetValue() <= 0 {
		t.Errorf("root_free_bytes{root=%q} = %v, want > 0", root, m.GetGauge().GetValue())
	}
}

func TestRunFollowsRenamedRoot(t *testing.T) {
	parent := t.TempDir()
	oldRoot := filepath.Join(parent, "[SW.BAND] Course")
	newRoot := filepath.Join(parent, "Course")
	if err := os.Mkdir(oldRoot, 0o755); err != nil {
		t.Fatal(err)
	}
	trigger := make(chan struct{}, 1)
	reloadCh := make(chan struct{}, 1)

	var (
		mu    sync.Mutex
		loads int
	)
	load := func() (*config.Config, error) {
		mu.Lock()
		defer mu.Unlock()
		loads++
		// The config file still names the root as it was before the sweep.
		return testConfig(t, oldRoot), nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, testConfig(t, oldRoot), Deps{}, Options{Trigger: trigger, Reload: reloadCh, LoadConfig: load})
	}()

	waitFor(t, "root to be renamed", func() bool { return exists(newRoot) })

	// Trigger until the new file is handled; every sweep must reach the moved root.
	poke := func() {
		select {
		case trigger <- struct{}{}:
		default:
		}
	}
	writeFile(t, filepath.Join(newRoot, "[SW.BAND] new.txt"), "new")
	waitFor(t, "file under the moved root to be renamed", func() bool {
		poke()
		return exists(filepath.Join(newRoot, "new.txt"))
	})

	reloadCh <- struct{}{}
	waitFor(t, "config to be reloaded", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return loads > 0
	})
	writeFile(t, filepath.Join(newRoot, "[SW.BAND] after reload.txt"), "r")
	waitFor(t, "file to be renamed after reload", func() bool {
		poke()
		return exists(filepath.Join(newRoot, "after reload.txt"))
	})

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	if exists(oldRoot) {
		t.Error("old root reappeared")
	}
}

func TestFollowMoves(t *testing.T) {
	moved := map[string]string{"/a/[X] b": "/a/b", "/c": "/d", "/d": "/c"}
	got := followMoves([]string{"/a/[X] b", "/e", "/c"}, moved)
	if got[0] != "/a/b" || got[1] != "/e" {
		t.Errorf("followMoves() = %v", got)
	}
	if got[2] != "/c" && got[2] != "/d" {
		t.Errorf("followMoves() cycle = %q, want /c or /d", got[2])
	}
}

func TestRunOnceUsesSweepDryRunForOutput(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "[SW.BAND] a.txt"), "a")

	var out, logs bytes.Buffer
	logger, err := logging.New(config.LoggingCfg{Debug: true}, &logs)
	if err != nil {
		t.Fatal(err)
	}
	// Built for a real run, then handed a dry-run config as after a reload.
	printer := report.NewPrinter(&out, report.Theme{NoColor: true, NoEmoji: true}, false)
	cfg := testConfig(t, root)
	cfg.DryRun = true

	if _, err := RunOnce(context.Background(), cfg, Deps{Logger: logger, Printer: printer}, TriggerCLI); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	for _, want := range []string{"would rename", "Dry run finished"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
	if !strings.Contains(logs.String(), "rules loaded prefixes [SW.BAND]") {
		t.Errorf("log missing effective prefixes:\n%s", logs.String())
	}
}
