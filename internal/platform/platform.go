// Package platform reports host facts the platform guard depends on and
// provides the per-platform pre-initialization hook.
package platform

import (
	"unsafe"

	wasmboot "github.com/wippyai/wasm-boot"
)

// Host returns the pointer and word widths of the running process in bytes.
func Host() (pointerSize, wordSize int) {
	return int(unsafe.Sizeof(uintptr(0))), int(unsafe.Sizeof(uint(0)))
}

// WithHost fills the host widths of p.
func WithHost(p wasmboot.Platform) wasmboot.Platform {
	p.HostPointerSize, p.HostWordSize = Host()
	return p
}
