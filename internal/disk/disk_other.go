//go:build !(linux || darwin || freebsd)

package disk

import "errors"

// GetUsage is not available on this platform
func GetUsage(path string) (Usage, error) {
	return Usage{}, errors.ErrUnsupported
}

func isStaleMountErr(err error) bool {
	return false
}
