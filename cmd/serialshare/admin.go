package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Station-Manager/serialshare/admin"
	"github.com/Station-Manager/serialshare/com0com"
	"github.com/spf13/cobra"
)

// adminServiceCmd is what the elevation prompt relaunches. It is not meant to
// be started by hand.
var adminServiceCmd = &cobra.Command{
	Use:    admin.ServiceCommand,
	Short:  "Run the elevated setupc helper",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		parent, _ := cmd.Flags().GetInt("parent-pid")
		token, _ := cmd.Flags().GetString("token")
		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = appCfg.Admin.Addr
		}

		srv, err := admin.NewServer(admin.ServerConfig{
			Addr:         addr,
			Token:        token,
			ParentPID:    parent,
			PollInterval: appCfg.Admin.PollInterval,
			ConnTimeout:  appCfg.Admin.ConnTimeout,
		}, setupcExecutor(), logger)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		logger.Info().Str("addr", addr).Int("parent_pid", parent).Msg("admin service starting")
		return srv.ListenAndServe(ctx)
	},
}

var adminShutdownCmd = &cobra.Command{
	Use:   "admin-shutdown",
	Short: "Stop a running elevated helper",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		token, _ := cmd.Flags().GetString("token")
		client := admin.NewClient(appCfg.ClientConfig(token), nil, logger)

		ctx, cancel := driverContext(cmd.Context())
		defer cancel()
		if err := client.Shutdown(ctx); err != nil {
			return err
		}
		fmt.Println("Admin service stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(adminServiceCmd, adminShutdownCmd)

	adminServiceCmd.Flags().Int("parent-pid", 0, "exit when this process exits")
	adminServiceCmd.Flags().String("token", "", "token every request must carry")
	adminServiceCmd.Flags().String("addr", "", "loopback address to listen on")
	_ = adminServiceCmd.MarkFlagRequired("token")

	adminShutdownCmd.Flags().String("token", "", "token the service was started with")
	_ = adminShutdownCmd.MarkFlagRequired("token")
}

// setupcExecutor runs setupc directly. setupc is located per request so a
// driver installed after the service started is still found.
func setupcExecutor() admin.Executor {
	return func(ctx context.Context, args []string, cwd string) (string, string, error) {
		mgr, err := com0com.NewFromSystem(appCfg.Driver.SetupcPaths, com0com.WithLogger(logger))
		if err != nil {
			return "", "", err
		}
		out, err := mgr.RunDirect(ctx, cwd, args...)
		return out.Stdout, out.Stderr, err
	}
}
