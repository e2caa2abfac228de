package com0com

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	gobug "go.bug.st/serial"
)

const (
	// AutoName asks setupc to pick the next free COM number for a side.
	AutoName = "COM#"

	// DefaultCOMFloor is the lowest number handed out by
	// FindAvailableCOMNumbers, leaving COM1-COM9 to real hardware.
	DefaultCOMFloor = 10

	maxCOMNumber = 255
)

// allow tests to override port enumeration
var listPorts = gobug.GetPortsList

// Escalator runs a setupc command with administrator rights and returns its
// stdout. The admin service client implements it.
type Escalator interface {
	Execute(ctx context.Context, args []string, cwd string) (string, error)
}

// Output is the captured result of one setupc run.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Manager drives setupc.exe. It holds no lock: concurrent pair changes are
// serialized, or not, by setupc itself.
type Manager struct {
	logger    zerolog.Logger
	setupc    string
	dir       string
	escalator Escalator
	comFloor  int
}

type Option func(*Manager)

func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) { m.logger = logger.With().Str("component", "com0com").Logger() }
}

// WithEscalator enables retrying commands that fail for lack of rights.
func WithEscalator(e Escalator) Option {
	return func(m *Manager) { m.escalator = e }
}

func WithCOMFloor(n int) Option {
	return func(m *Manager) {
		if n > 0 && n <= maxCOMNumber {
			m.comFloor = n
		}
	}
}

// New returns a manager for the setupc executable at path. The executable's
// directory is used as working directory since setupc loads its driver INF
// files from there.
func New(path string, opts ...Option) *Manager {
	m := &Manager{
		logger:   zerolog.Nop(),
		setupc:   path,
		dir:      filepath.Dir(path),
		comFloor: DefaultCOMFloor,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewFromSystem locates setupc (see Locate) and returns a manager for it.
func NewFromSystem(extraPaths []string, opts ...Option) (*Manager, error) {
	path, err := Locate(extraPaths...)
	if err != nil {
		return nil, err
	}
	return New(path, opts...), nil
}

func (m *Manager) Path() string { return m.setupc }

// Dir is the install directory setupc runs in.
func (m *Manager) Dir() string { return m.dir }

// RunDirect runs setupc with the given arguments in cwd, or in the install
// directory when cwd is empty. It never escalates. A failed run is returned
// as a *CommandError alongside whatever output was captured.
func (m *Manager) RunDirect(ctx context.Context, cwd string, args ...string) (Output, error) {
	if cwd == "" {
		cwd = m.dir
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, m.setupc, args...)
	cmd.Dir = cwd
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	hideConsole(cmd)

	m.logger.Debug().Strs("args", args).Str("cwd", cwd).Msg("running setupc")
	err := cmd.Run()
	out := Output{
		Stdout: strings.ToValidUTF8(stdout.String(), "�"),
		Stderr: strings.ToValidUTF8(stderr.String(), "�"),
	}
	if err == nil {
		return out, nil
	}

	ce := &CommandError{
		Args:     args,
		Stdout:   out.Stdout,
		Stderr:   out.Stderr,
		ExitCode: -1,
		Err:      err,
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// ExitCode is -1 when the process was killed, e.g. by ctx
		if code := exitErr.ExitCode(); code >= 0 {
			ce.ExitCode = code
			ce.Err = nil
		}
	}
	out.ExitCode = ce.ExitCode
	return out, ce
}

// Execute runs setupc and returns its stdout. When the run fails for lack of
// administrator rights and an Escalator is configured, the command is
// repeated through it and that result is returned instead.
func (m *Manager) Execute(ctx context.Context, args ...string) (string, error) {
	out, err := m.RunDirect(ctx, "", args...)
	if err == nil {
		return out.Stdout, nil
	}
	if m.escalator == nil || !NeedsElevation(err) {
		return "", err
	}

	m.logger.Info().Strs("args", args).Msg("setupc needs administrator rights, using admin service")
	stdout, eerr := m.escalator.Execute(ctx, args, m.dir)
	if eerr != nil {
		return "", eerr
	}
	return stdout, nil
}

// ListPairs returns the installed pairs.
func (m *Manager) ListPairs(ctx context.Context) ([]PortPair, error) {
	out, err := m.Execute(ctx, "list")
	if err != nil {
		return nil, fmt.Errorf("listing port pairs: %w", err)
	}
	return ParseList(out), nil
}

// FindPair returns the pair with the given id.
func (m *Manager) FindPair(ctx context.Context, id uint32) (PortPair, error) {
	pairs, err := m.ListPairs(ctx)
	if err != nil {
		return PortPair{}, err
	}
	for _, p := range pairs {
		if p.PairID == id {
			return p, nil
		}
	}
	return PortPair{}, &PairNotFoundError{ID: id}
}

// CreatePair installs a new pair. Either name may be "-" or AutoName to let
// setupc choose. The pair with the highest id after the install is returned,
// so callers must not create pairs concurrently.
func (m *Manager) CreatePair(ctx context.Context, nameA, nameB string) (PortPair, error) {
	if nameA == "" || nameA == unbound {
		nameA = AutoName
	}
	if nameB == "" {
		nameB = unbound
	}

	if _, err := m.Execute(ctx, "install", "PortName="+nameA, "PortName="+nameB); err != nil {
		return PortPair{}, fmt.Errorf("creating port pair %s/%s: %w", nameA, nameB, err)
	}

	pairs, err := m.ListPairs(ctx)
	if err != nil {
		return PortPair{}, err
	}
	if len(pairs) == 0 {
		return PortPair{}, fmt.Errorf("creating port pair %s/%s: %w", nameA, nameB, ErrPairNotFound)
	}
	pair := pairs[len(pairs)-1]
	m.logger.Info().
		Uint32("pair", pair.PairID).
		Str("port_a", pair.PortA).
		Str("port_b", pair.PortB).
		Msg("created virtual port pair")
	return pair, nil
}

// RenamePair renames both sides of a pair, A first. If renaming B fails the
// new A name is kept.
func (m *Manager) RenamePair(ctx context.Context, id uint32, nameA, nameB string) error {
	sid := strconv.FormatUint(uint64(id), 10)
	if _, err := m.Execute(ctx, "change", prefixA+sid, "PortName="+nameA); err != nil {
		return fmt.Errorf("renaming %s%s: %w", prefixA, sid, err)
	}
	if _, err := m.Execute(ctx, "change", prefixB+sid, "PortName="+nameB); err != nil {
		return fmt.Errorf("renaming %s%s: %w", prefixB, sid, err)
	}
	return nil
}

func (m *Manager) RemovePair(ctx context.Context, id uint32) error {
	if _, err := m.Execute(ctx, "remove", strconv.FormatUint(uint64(id), 10)); err != nil {
		return fmt.Errorf("removing port pair %d: %w", id, err)
	}
	m.logger.Info().Uint32("pair", id).Msg("removed virtual port pair")
	return nil
}

// RemoveAll removes every pair present when it is called.
func (m *Manager) RemoveAll(ctx context.Context) error {
	pairs, err := m.ListPairs(ctx)
	if err != nil {
		return err
	}
	for _, p := range pairs {
		if err = m.RemovePair(ctx, p.PairID); err != nil {
			return err
		}
	}
	return nil
}

// FindAvailableCOMNumbers returns up to count COM numbers, ascending from the
// configured floor, that no enumerated port currently uses.
func (m *Manager) FindAvailableCOMNumbers(count int) []int {
	if count <= 0 {
		return nil
	}
	taken := make(map[string]struct{})
	ports, err := listPorts()
	if err != nil {
		m.logger.Warn().Err(err).Msg("port enumeration failed, assuming no ports in use")
	}
	for _, p := range ports {
		taken[strings.ToUpper(p)] = struct{}{}
	}

	free := make([]int, 0, count)
	for n := m.comFloor; n <= maxCOMNumber && len(free) < count; n++ {
		if _, ok := taken["COM"+strconv.Itoa(n)]; ok {
			continue
		}
		free = append(free, n)
	}
	return free
}
