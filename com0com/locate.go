package com0com

import (
	"os"
	"path/filepath"
)

const setupcExe = "setupc.exe"

var defaultSearchPaths = []string{
	`C:\Program Files (x86)\com0com\setupc.exe`,
	`C:\Program Files\com0com\setupc.exe`,
	`C:\Program Files (x86)\com0com\x64\setupc.exe`,
	`C:\Program Files\com0com\x64\setupc.exe`,
}

// allow tests to override the registry lookup
var installDirs = registryInstallDirs

// Locate returns the path of setupc.exe. The extra paths are probed first,
// then the default install locations, then the Install_Dir recorded in the
// registry by the com0com installer.
func Locate(extra ...string) (string, error) {
	candidates := make([]string, 0, len(extra)+len(defaultSearchPaths))
	candidates = append(candidates, extra...)
	candidates = append(candidates, defaultSearchPaths...)
	for _, p := range candidates {
		if isFile(p) {
			return p, nil
		}
	}

	for _, dir := range installDirs() {
		for _, p := range []string{
			filepath.Join(dir, setupcExe),
			filepath.Join(dir, "x64", setupcExe),
		} {
			if isFile(p) {
				return p, nil
			}
		}
	}
	return "", ErrDriverNotInstalled
}

// IsInstalled reports whether Locate would succeed.
func IsInstalled(extra ...string) bool {
	_, err := Locate(extra...)
	return err == nil
}

func isFile(path string) bool {
	if path == "" {
		return false
	}
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}
