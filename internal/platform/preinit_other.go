//go:build !windows

package platform

// PreInit is a no-op outside Windows.
func PreInit() error {
	return nil
}
