package com0com

import (
	"errors"
	"strings"
	"syscall"
)

// errElevationRequired is ERROR_ELEVATION_REQUIRED, returned by CreateProcess
// when the executable's manifest asks for administrator rights.
const errElevationRequired = syscall.Errno(740)

// accessDeniedMarkers are matched against the combined output of a failed
// setupc run. The driver installer reports ERROR_ACCESS_DENIED in several
// shapes depending on the Windows locale and the failing API.
var accessDeniedMarkers = []string{
	"0x00000005",
	"Access is denied",
	"拒绝访问",
}

// NeedsElevation reports whether err, as returned by RunDirect, failed only
// because the process lacks administrator rights. It is the single place that
// interprets setupc's free-text output.
func NeedsElevation(err error) bool {
	var ce *CommandError
	if !errors.As(err, &ce) {
		return false
	}
	if ce.ExitCode < 0 {
		return errors.Is(ce.Err, errElevationRequired)
	}
	if ce.ExitCode == 0 {
		return false
	}
	output := ce.Stdout + ce.Stderr
	for _, marker := range accessDeniedMarkers {
		if strings.Contains(output, marker) {
			return true
		}
	}
	return strings.Contains(output, "UpdateDriverForPlugAndPlayDevices()") && strings.Contains(output, "(5)")
}
