package com0com

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDriverNotInstalled  = errors.New("com0com is not installed or setupc.exe could not be found")
	ErrDriverCommandFailed = errors.New("setupc command failed")
	ErrPairNotFound        = errors.New("virtual port pair not found")
)

// CommandError describes a setupc invocation that did not succeed. ExitCode
// is -1 when the process could not be started, in which case Err holds the
// start error.
type CommandError struct {
	Args     []string
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error
}

func (e *CommandError) Error() string {
	cmd := strings.Join(e.Args, " ")
	if e.ExitCode < 0 {
		return fmt.Sprintf("setupc %s: %v", cmd, e.Err)
	}
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		msg = strings.TrimSpace(e.Stdout)
	}
	return fmt.Sprintf("setupc %s exited with code %d: %s", cmd, e.ExitCode, msg)
}

func (e *CommandError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrDriverCommandFailed}
	}
	return []error{ErrDriverCommandFailed, e.Err}
}

type PairNotFoundError struct {
	ID uint32
}

func (e *PairNotFoundError) Error() string {
	return fmt.Sprintf("virtual port pair %d not found", e.ID)
}

func (e *PairNotFoundError) Is(target error) bool {
	return target == ErrPairNotFound
}
