//go:build linux || darwin || freebsd

package disk

import (
	"errors"
	"syscall"
)

// GetUsage returns the size and free space of the filesystem holding path
func GetUsage(path string) (Usage, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return Usage{}, err
	}

	u := Usage{
		TotalBytes: int64(stat.Blocks) * int64(stat.Bsize),
		FreeBytes:  int64(stat.Bavail) * int64(stat.Bsize),
	}
	if u.TotalBytes > 0 {
		u.UsedPercent = float64(u.TotalBytes-u.FreeBytes) / float64(u.TotalBytes) * 100.0
	}
	return u, nil
}

// Common NFS errors: EIO, ESTALE, ENXIO
func isStaleMountErr(err error) bool {
	return errors.Is(err, syscall.EIO) ||
		errors.Is(err, syscall.ESTALE) ||
		errors.Is(err, syscall.ENXIO)
}
