package boot

import (
	"fmt"

	wasmboot "github.com/wippyai/wasm-boot"
	"github.com/wippyai/wasm-boot/errors"
)

// CheckPlatform verifies the width assumptions baked into the image.
// Pointer-sized integers in the image have a fixed width; running where
// pointers are wider or narrower than a word would corrupt memory silently.
func CheckPlatform(p wasmboot.Platform) error {
	if p.PointerSize != p.WordSize {
		return errors.PlatformMismatch(fmt.Sprintf(
			"only support platforms where sizeof(void*) == sizeof(long), for now (image: pointer %d bytes, word %d bytes)",
			p.PointerSize, p.WordSize))
	}
	if p.HostPointerSize != p.HostWordSize {
		return errors.PlatformMismatch(fmt.Sprintf(
			"only support platforms where sizeof(void*) == sizeof(long), for now (host: pointer %d bytes, word %d bytes)",
			p.HostPointerSize, p.HostWordSize))
	}
	return nil
}
