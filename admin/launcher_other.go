//go:build !windows

package admin

import "context"

// Launch always fails: com0com, the only reason to elevate, is Windows only.
func (l *ElevatedLauncher) Launch(context.Context, []string) error {
	return ErrElevationUnsupported
}
