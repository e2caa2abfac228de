package com0com

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeScript stands in for setupc.exe. It logs its arguments and working
// directory next to itself, serves "list" from list.txt and appends pair 7 on
// "install". A file named deny makes every call fail like an unelevated
// driver install; fail-<arg> makes change/remove of <arg> fail.
const fakeScript = `#!/bin/sh
dir=$(dirname "$0")
echo "$*" >> "$dir/calls.log"
pwd -P > "$dir/cwd.txt"
if [ -f "$dir/deny" ]; then
	echo "UpdateDriverForPlugAndPlayDevices() failed (5)"
	exit 1
fi
case "$1" in
list)
	cat "$dir/list.txt"
	;;
install)
	printf 'CNCA7 PortName=COM20\nCNCB7 PortName=COM21\n' >> "$dir/list.txt"
	;;
change|remove)
	if [ -f "$dir/fail-$2" ]; then
		echo "cannot $1 $2" >&2
		exit 3
	fi
	;;
esac
exit 0
`

type fakeSetupc struct {
	t    *testing.T
	dir  string
	path string
}

func newFakeSetupc(t *testing.T, list string) *fakeSetupc {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake setupc is a shell script")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "setupc")
	require.NoError(t, os.WriteFile(path, []byte(fakeScript), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "list.txt"), []byte(list), 0o644))
	return &fakeSetupc{t: t, dir: dir, path: path}
}

func (f *fakeSetupc) touch(name string) {
	f.t.Helper()
	require.NoError(f.t, os.WriteFile(filepath.Join(f.dir, name), nil, 0o644))
}

func (f *fakeSetupc) calls() []string {
	f.t.Helper()
	b, err := os.ReadFile(filepath.Join(f.dir, "calls.log"))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(f.t, err)
	return strings.Split(strings.TrimSpace(string(b)), "\n")
}

func (f *fakeSetupc) cwd() string {
	f.t.Helper()
	b, err := os.ReadFile(filepath.Join(f.dir, "cwd.txt"))
	require.NoError(f.t, err)
	return strings.TrimSpace(string(b))
}

type fakeEscalator struct {
	args   []string
	cwd    string
	stdout string
	err    error
}

func (e *fakeEscalator) Execute(_ context.Context, args []string, cwd string) (string, error) {
	e.args = args
	e.cwd = cwd
	return e.stdout, e.err
}

const twoPairs = "CNCA0 PortName=COM10\nCNCB0 PortName=COM11\nCNCA2 PortName=-\nCNCB2 PortName=COM15\n"

func TestListPairsRunsInInstallDir(t *testing.T) {
	f := newFakeSetupc(t, twoPairs)
	m := New(f.path)

	pairs, err := m.ListPairs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []PortPair{
		{PairID: 0, PortA: "COM10", PortB: "COM11"},
		{PairID: 2, PortA: "CNCA2", PortB: "COM15"},
	}, pairs)
	assert.Equal(t, []string{"list"}, f.calls())

	want, err := filepath.EvalSymlinks(f.dir)
	require.NoError(t, err)
	assert.Equal(t, want, f.cwd())
}

func TestCreatePairAutoNames(t *testing.T) {
	f := newFakeSetupc(t, twoPairs)
	m := New(f.path)

	pair, err := m.CreatePair(context.Background(), "-", "-")
	require.NoError(t, err)
	assert.Equal(t, PortPair{PairID: 7, PortA: "COM20", PortB: "COM21"}, pair)
	assert.Equal(t, []string{"install PortName=COM# PortName=-", "list"}, f.calls())
}

func TestCreatePairLiteralNames(t *testing.T) {
	f := newFakeSetupc(t, "")
	m := New(f.path)

	_, err := m.CreatePair(context.Background(), "COM30", "COM31")
	require.NoError(t, err)
	assert.Equal(t, "install PortName=COM30 PortName=COM31", f.calls()[0])
}

func TestRenamePair(t *testing.T) {
	f := newFakeSetupc(t, twoPairs)
	m := New(f.path)

	require.NoError(t, m.RenamePair(context.Background(), 3, "COM40", "COM41"))
	assert.Equal(t, []string{"change CNCA3 PortName=COM40", "change CNCB3 PortName=COM41"}, f.calls())
}

func TestRenamePairStopsAfterFirstFailure(t *testing.T) {
	f := newFakeSetupc(t, twoPairs)
	f.touch("fail-CNCA3")
	m := New(f.path)

	err := m.RenamePair(context.Background(), 3, "COM40", "COM41")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDriverCommandFailed)

	var ce *CommandError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 3, ce.ExitCode)
	assert.Contains(t, ce.Stderr, "cannot change CNCA3")
	assert.Len(t, f.calls(), 1)
}

func TestRemoveAllUsesSnapshot(t *testing.T) {
	f := newFakeSetupc(t, twoPairs)
	m := New(f.path)

	require.NoError(t, m.RemoveAll(context.Background()))
	assert.Equal(t, []string{"list", "remove 0", "remove 2"}, f.calls())
}

func TestRemoveAllStopsOnError(t *testing.T) {
	f := newFakeSetupc(t, twoPairs)
	f.touch("fail-0")
	m := New(f.path)

	assert.ErrorIs(t, m.RemoveAll(context.Background()), ErrDriverCommandFailed)
	assert.Equal(t, []string{"list", "remove 0"}, f.calls())
}

func TestFindPair(t *testing.T) {
	f := newFakeSetupc(t, twoPairs)
	m := New(f.path)

	pair, err := m.FindPair(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "COM15", pair.PortB)

	_, err = m.FindPair(context.Background(), 9)
	assert.ErrorIs(t, err, ErrPairNotFound)
	var nf *PairNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, uint32(9), nf.ID)
}

func TestExecuteEscalatesWhenAccessDenied(t *testing.T) {
	f := newFakeSetupc(t, "")
	f.touch("deny")
	esc := &fakeEscalator{stdout: "CNCA0 PortName=COM10\nCNCB0 PortName=COM11\n"}
	m := New(f.path, WithEscalator(esc))

	pairs, err := m.ListPairs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []PortPair{{PairID: 0, PortA: "COM10", PortB: "COM11"}}, pairs)
	assert.Equal(t, []string{"list"}, esc.args)
	assert.Equal(t, m.Dir(), esc.cwd)
}

func TestExecuteReturnsEscalationFailure(t *testing.T) {
	f := newFakeSetupc(t, "")
	f.touch("deny")
	escErr := errors.New("admin service unreachable")
	m := New(f.path, WithEscalator(&fakeEscalator{err: escErr}))

	_, err := m.Execute(context.Background(), "remove", "0")
	assert.ErrorIs(t, err, escErr)
}

func TestExecuteWithoutEscalator(t *testing.T) {
	f := newFakeSetupc(t, "")
	f.touch("deny")
	m := New(f.path)

	_, err := m.Execute(context.Background(), "list")
	require.Error(t, err)
	assert.True(t, NeedsElevation(err))
	assert.ErrorIs(t, err, ErrDriverCommandFailed)
}

func TestExecuteDoesNotEscalateOrdinaryFailures(t *testing.T) {
	f := newFakeSetupc(t, "")
	f.touch("fail-5")
	esc := &fakeEscalator{}
	m := New(f.path, WithEscalator(esc))

	_, err := m.Execute(context.Background(), "remove", "5")
	assert.ErrorIs(t, err, ErrDriverCommandFailed)
	assert.Nil(t, esc.args)
}

func TestRunDirectStartFailure(t *testing.T) {
	m := New(filepath.Join(t.TempDir(), "missing", "setupc.exe"))

	out, err := m.RunDirect(context.Background(), t.TempDir(), "list")
	require.Error(t, err)
	assert.Equal(t, -1, out.ExitCode)

	var ce *CommandError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, -1, ce.ExitCode)
	assert.NotNil(t, ce.Err)
	assert.False(t, NeedsElevation(err))
}

func TestFindAvailableCOMNumbers(t *testing.T) {
	prev := listPorts
	t.Cleanup(func() { listPorts = prev })
	listPorts = func() ([]string, error) {
		return []string{"COM1", "COM10", "com12", "/dev/ttyUSB0"}, nil
	}

	m := New("setupc.exe")
	assert.Equal(t, []int{11, 13, 14}, m.FindAvailableCOMNumbers(3))
	assert.Nil(t, m.FindAvailableCOMNumbers(0))

	high := New("setupc.exe", WithCOMFloor(254))
	assert.Equal(t, []int{254, 255}, high.FindAvailableCOMNumbers(5))
}

func TestFindAvailableCOMNumbersEnumerationError(t *testing.T) {
	prev := listPorts
	t.Cleanup(func() { listPorts = prev })
	listPorts = func() ([]string, error) { return nil, errors.New("no permission") }

	m := New("setupc.exe")
	assert.Equal(t, []int{10, 11}, m.FindAvailableCOMNumbers(2))
}
