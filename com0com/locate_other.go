//go:build !windows

package com0com

// com0com only exists on Windows; there is no registry to consult elsewhere.
func registryInstallDirs() []string { return nil }
