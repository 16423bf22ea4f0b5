package scheduler

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"folder-sanitizer/internal/logging"
	"folder-sanitizer/internal/metrics"
)

// ChangeWatcher signals on C, at most once per quiet period, that entries
// were created or renamed somewhere under its roots.
type ChangeWatcher struct {
	w        *fsnotify.Watcher
	logger   *logging.Logger
	debounce time.Duration
	out      chan struct{}
	done     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// NewChangeWatcher watches every directory under roots. Roots that cannot be
// watched are logged and skipped.
func NewChangeWatcher(roots []string, debounce time.Duration, logger *logging.Logger) (*ChangeWatcher, error) {
	metrics.Init()
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Discard()
	}

	cw := &ChangeWatcher{
		w:        w,
		logger:   logger,
		debounce: debounce,
		out:      make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	for _, root := range roots {
		if err := cw.addRecursive(root); err != nil {
			logger.Warn("cannot watch root", "root", root, "error", err)
		}
	}
	metrics.WatchedDirectories.Set(float64(cw.Watched()))

	cw.wg.Add(1)
	go cw.loop()
	return cw, nil
}

// C delivers change notifications
func (cw *ChangeWatcher) C() <-chan struct{} {
	return cw.out
}

// Drain discards a pending notification
func (cw *ChangeWatcher) Drain() {
	select {
	case <-cw.out:
	default:
	}
}

// Watched returns the number of directories being watched
func (cw *ChangeWatcher) Watched() int {
	return len(cw.w.WatchList())
}

// Close stops the watcher and waits for its goroutine
func (cw *ChangeWatcher) Close() error {
	var err error
	cw.once.Do(func() {
		close(cw.done)
		err = cw.w.Close()
		cw.wg.Wait()
		metrics.WatchedDirectories.Set(0)
	})
	return err
}

func (cw *ChangeWatcher) loop() {
	defer cw.wg.Done()

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-cw.done:
			return
		case event, ok := <-cw.w.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if strings.HasPrefix(filepath.Base(event.Name), ".DS_Store") {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Lstat(event.Name); err == nil && info.IsDir() {
					if err := cw.addRecursive(event.Name); err != nil {
						cw.logger.Warn("cannot watch directory", "path", event.Name, "error", err)
					}
					metrics.WatchedDirectories.Set(float64(cw.Watched()))
				}
			}
			if timer == nil {
				timer = time.NewTimer(cw.debounce)
			} else {
				timer.Reset(cw.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			select {
			case cw.out <- struct{}{}:
			default:
			}
		case err, ok := <-cw.w.Errors:
			if !ok {
				return
			}
			cw.logger.Warn("watch error", "error", err)
			metrics.ErrorsTotal.Inc()
		}
	}
}

func (cw *ChangeWatcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if isWatchAccessDenied(err) {
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			return err
		}
		if d.Type()&fs.ModeSymlink != 0 || !d.IsDir() {
			return nil
		}
		if err := cw.w.Add(path); err != nil {
			if isWatchAccessDenied(err) {
				return filepath.SkipDir
			}
			return err
		}
		return nil
	})
}

func isWatchAccessDenied(err error) bool {
	if errors.Is(err, fs.ErrPermission) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "access is denied") || strings.Contains(msg, "permission denied")
}
