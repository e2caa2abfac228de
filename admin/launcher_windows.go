//go:build windows

package admin

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/sys/windows"
)

// Launch shows the UAC prompt via ShellExecute with the "runas" verb. It
// returns once the process is started; a declined prompt is an error.
func (l *ElevatedLauncher) Launch(ctx context.Context, args []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = windows.EscapeArg(a)
	}

	verb, err := windows.UTF16PtrFromString("runas")
	if err != nil {
		return err
	}
	exe, err := windows.UTF16PtrFromString(l.Executable)
	if err != nil {
		return err
	}
	params, err := windows.UTF16PtrFromString(strings.Join(quoted, " "))
	if err != nil {
		return err
	}
	dir, err := windows.UTF16PtrFromString(filepath.Dir(l.Executable))
	if err != nil {
		return err
	}

	if err = windows.ShellExecute(0, verb, exe, params, dir, windows.SW_HIDE); err != nil {
		return fmt.Errorf("elevated launch of %s: %w", l.Executable, err)
	}
	return nil
}
