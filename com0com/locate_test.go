package com0com

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubInstallDirs(t *testing.T, dirs ...string) {
	t.Helper()
	prev := installDirs
	installDirs = func() []string { return dirs }
	t.Cleanup(func() { installDirs = prev })
}

func TestLocateExtraPathFirst(t *testing.T) {
	stubInstallDirs(t)
	path := filepath.Join(t.TempDir(), setupcExe)
	require.NoError(t, os.WriteFile(path, nil, 0o755))

	got, err := Locate(filepath.Join(t.TempDir(), "nope.exe"), path)
	require.NoError(t, err)
	assert.Equal(t, path, got)
	assert.True(t, IsInstalled(path))
}

func TestLocateRegistryInstallDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "x64"), 0o755))
	path := filepath.Join(dir, "x64", setupcExe)
	require.NoError(t, os.WriteFile(path, nil, 0o755))
	stubInstallDirs(t, filepath.Join(t.TempDir(), "stale"), dir)

	got, err := Locate()
	if err == nil && got != path {
		t.Skipf("com0com is installed on this machine at %s", got)
	}
	require.NoError(t, err)
	assert.Equal(t, path, got)
}

func TestLocateNotInstalled(t *testing.T) {
	stubInstallDirs(t)
	if IsInstalled() {
		t.Skip("com0com is installed on this machine")
	}
	// a directory is not an executable
	_, err := Locate(t.TempDir())
	assert.ErrorIs(t, err, ErrDriverNotInstalled)
}
