//go:build windows

package com0com

import (
	"golang.org/x/sys/windows/registry"
)

var registryKeys = []string{
	`SOFTWARE\com0com`,
	`SOFTWARE\WOW6432Node\com0com`,
}

func registryInstallDirs() []string {
	var dirs []string
	for _, path := range registryKeys {
		k, err := registry.OpenKey(registry.LOCAL_MACHINE, path, registry.QUERY_VALUE)
		if err != nil {
			continue
		}
		dir, _, err := k.GetStringValue("Install_Dir")
		_ = k.Close()
		if err == nil && dir != "" {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}
