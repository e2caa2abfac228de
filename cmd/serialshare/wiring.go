package main

import (
	"context"
	"time"

	"github.com/Station-Manager/serialshare/admin"
	"github.com/Station-Manager/serialshare/com0com"
	"github.com/Station-Manager/serialshare/sharing"
)

// newManager locates setupc and wires the admin client in as escalator.
func newManager() (*com0com.Manager, error) {
	var launcher admin.Launcher
	if l, err := admin.NewElevatedLauncher(); err == nil {
		launcher = l
	} else {
		logger.Warn().Err(err).Msg("elevated relaunch unavailable")
	}
	client := admin.NewClient(appCfg.ClientConfig(admin.ProcessToken()), launcher, logger)

	return com0com.NewFromSystem(appCfg.Driver.SetupcPaths,
		com0com.WithLogger(logger),
		com0com.WithEscalator(client),
		com0com.WithCOMFloor(appCfg.Driver.COMFloor),
	)
}

// newCoordinator returns a coordinator; its driver is nil when com0com is
// missing, which the coordinator reports per operation.
func newCoordinator() *sharing.Coordinator {
	var driver sharing.Driver
	if m, err := newManager(); err == nil {
		driver = m
	} else {
		logger.Debug().Err(err).Msg("com0com not available")
	}

	opts := []sharing.Option{sharing.WithLogger(logger)}
	if path, err := sharing.LocateHub(appCfg.Hub.Paths...); err == nil {
		opts = append(opts, sharing.WithHubRegistry(sharing.NewHubRegistry(path, logger)))
	}
	return sharing.NewCoordinator(driver, opts...)
}

// driverContext bounds one driver operation.
func driverContext(parent context.Context) (context.Context, context.CancelFunc) {
	timeout := appCfg.Driver.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return context.WithTimeout(parent, timeout)
}
