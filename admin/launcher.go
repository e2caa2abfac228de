package admin

import (
	"fmt"
	"os"
)

// ElevatedLauncher relaunches an executable, normally the running binary,
// with administrator rights through the OS elevation prompt.
type ElevatedLauncher struct {
	Executable string
}

// NewElevatedLauncher returns a launcher for the running binary.
func NewElevatedLauncher() (*ElevatedLauncher, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locating executable: %w", err)
	}
	return &ElevatedLauncher{Executable: exe}, nil
}
