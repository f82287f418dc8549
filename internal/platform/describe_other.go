//go:build !unix

package platform

import "runtime"

// Describe names the host for diagnostics.
func Describe() string {
	return runtime.GOOS + " " + runtime.GOARCH
}
