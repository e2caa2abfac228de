package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Station-Manager/serialshare"
	"github.com/Station-Manager/serialshare/com0com"
	"github.com/Station-Manager/serialshare/sharing"
	"github.com/spf13/cobra"
)

var shareCmd = &cobra.Command{
	Use:   "share <port>",
	Short: "Share a physical port through a new virtual pair",
	Long: `Open the physical port, create a com0com pair and bridge the port to one
side of it. Other applications open the other side. The pair is removed on exit.

With --pair, an existing pair (see "pairs list") is used and left installed.
With --hub, hub4com does the bridging instead of serialshare.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := sessionConfig(cmd, args[0])
		if err != nil {
			return err
		}
		useHub, _ := cmd.Flags().GetBool("hub")
		monitor, _ := cmd.Flags().GetBool("monitor")
		pairID, _ := cmd.Flags().GetUint32("pair")
		usePair := cmd.Flags().Changed("pair")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		coord := newCoordinator()
		defer func() {
			if err := coord.Close(); err != nil {
				logger.Warn().Err(err).Msg("removing virtual pair")
			}
		}()
		if !coord.IsDriverInstalled() {
			return com0com.ErrDriverNotInstalled
		}

		if useHub {
			return shareWithHub(ctx, coord, cfg, pairID, usePair)
		}

		s := serialshare.NewSession(logger)
		sub := s.Subscribe()
		if err := s.Open(cfg); err != nil {
			return err
		}
		defer func() {
			if err := s.Shutdown(); err != nil {
				logger.Warn().Err(err).Msg("shutdown")
			}
		}()
		if monitor {
			go printIncoming(os.Stdout, sub, false)
		} else {
			go func() {
				for range sub {
				}
			}()
		}

		opCtx, cancel := driverContext(ctx)
		var virtual string
		if usePair {
			virtual, err = coord.EnableSharingWithPair(opCtx, cfg.PortName, pairID)
		} else {
			virtual, err = coord.EnableSharing(opCtx, cfg.PortName)
		}
		cancel()
		if err != nil {
			return err
		}
		if err := s.StartSharing(virtual); err != nil {
			rollback(coord)
			return err
		}

		announce(coord.Status(), cfg.PortName)
		<-ctx.Done()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(shareCmd)
	addLineFlags(shareCmd)
	shareCmd.Flags().Bool("hub", false, "bridge with hub4com instead of in process")
	shareCmd.Flags().Bool("monitor", false, "also print what the physical port receives")
	shareCmd.Flags().Uint32("pair", 0, "share over this existing pair id instead of creating one")
}

func shareWithHub(ctx context.Context, coord *sharing.Coordinator, cfg serialshare.SessionConfig, pairID uint32, usePair bool) error {
	opCtx, cancel := driverContext(ctx)
	var err error
	if usePair {
		_, err = coord.EnableHubSharingWithPair(opCtx, cfg.PortName, pairID, cfg.BaudRate)
	} else {
		_, err = coord.EnableHubSharing(opCtx, cfg.PortName, cfg.BaudRate)
	}
	cancel()
	if err != nil {
		return err
	}
	announce(coord.Status(), cfg.PortName)
	<-ctx.Done()
	return nil
}

// rollback ends a share that failed to start, removing the pair if it was
// created for it.
func rollback(coord *sharing.Coordinator) {
	ctx, cancel := driverContext(context.Background())
	defer cancel()
	if err := coord.DisableSharing(ctx); err != nil {
		logger.Warn().Err(err).Msg("rollback")
	}
}

func announce(st sharing.SharingStatus, physical string) {
	if !st.Enabled {
		return
	}
	fmt.Printf("%s is shared. Applications can open %s (pair %d). Ctrl+C to stop.\n",
		headerStyle.Render(physical), headerStyle.Render(st.AppPort), st.Pair.PairID)
}
