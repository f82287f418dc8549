//go:build unix

package platform

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// Describe names the host for diagnostics, e.g. "Linux x86_64".
func Describe() string {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return runtime.GOOS + " " + runtime.GOARCH
	}
	return unix.ByteSliceToString(u.Sysname[:]) + " " + unix.ByteSliceToString(u.Machine[:])
}
