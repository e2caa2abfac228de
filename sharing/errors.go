package sharing

import "errors"

var (
	ErrAlreadyEnabled   = errors.New("port sharing is already enabled")
	ErrNoAvailablePorts = errors.New("fewer than two free COM numbers for a virtual pair")
	ErrHubNotInstalled  = errors.New("hub4com.exe could not be found")
	ErrHubRunning       = errors.New("port is already shared through hub4com")
	ErrHubNotRunning    = errors.New("port is not shared through hub4com")
)
