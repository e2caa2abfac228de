package admin

import (
	"errors"
	"fmt"
)

var (
	ErrEscalationFailed     = errors.New("privileged command failed")
	ErrEscalationTimeout    = errors.New("admin service did not become reachable")
	ErrElevationUnsupported = errors.New("elevation is not supported on this platform")
	ErrInvalidToken         = errors.New("invalid admin token")
	ErrMissingToken         = errors.New("admin service requires a token")
)

// EscalationError is returned by Client when a request could not be carried
// out by the admin service.
type EscalationError struct {
	Reason string
	Err    error

	// remote is set when the service answered with success=false, so the
	// transport itself worked.
	remote bool
}

func (e *EscalationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("escalation failed: %s: %v", e.Reason, e.Err)
	}
	return "escalation failed: " + e.Reason
}

func (e *EscalationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrEscalationFailed}
	}
	return []error{ErrEscalationFailed, e.Err}
}
