package disk

import (
	"os"
	"time"
)

// Usage describes the filesystem holding a path.
type Usage struct {
	TotalBytes  int64
	FreeBytes   int64
	UsedPercent float64
}

// Unresponsive reports whether stat of path does not return within timeout
// or fails with an error typical of a stale network mount.
func Unresponsive(path string, timeout time.Duration) bool {
	done := make(chan error, 1)
	go func() {
		_, err := os.Stat(path)
		done <- err
	}()

	select {
	case err := <-done:
		return err != nil && (os.IsTimeout(err) || isStaleMountErr(err))
	case <-time.After(timeout):
		return true
	}
}
