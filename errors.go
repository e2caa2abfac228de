package serialshare

import (
	"errors"
	"fmt"
)

var (
	ErrPortNotOpen            = errors.New("serial port is not open")
	ErrPortAlreadyOpen        = errors.New("serial port is already open")
	ErrPortOpenFailed         = errors.New("failed to open serial port")
	ErrSharingActive          = errors.New("port sharing is already active")
	ErrUnsupportedFlowControl = errors.New("flow control mode is not supported by the port driver")
)

// OpenError reports a failed open of a physical or virtual endpoint. It
// matches ErrPortOpenFailed as well as the underlying OS error.
type OpenError struct {
	Port string
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("opening serial port %s: %v", e.Port, e.Err)
}

func (e *OpenError) Unwrap() []error {
	return []error{ErrPortOpenFailed, e.Err}
}
