//go:build windows

package platform

import (
	"sync"

	"golang.org/x/sys/windows"
)

const codePageUTF8 = 65001

var (
	preInitOnce sync.Once
	preInitErr  error
)

// PreInit switches the console to UTF-8 so argument and diagnostic bytes
// pass through unchanged. Only the first call does any work.
func PreInit() error {
	preInitOnce.Do(func() {
		if err := windows.SetConsoleCP(codePageUTF8); err != nil {
			// No console attached; nothing to configure.
			return
		}
		preInitErr = windows.SetConsoleOutputCP(codePageUTF8)
	})
	return preInitErr
}
