package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Station-Manager/serialshare"
	"github.com/spf13/cobra"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor <port>",
	Short: "Open a port and print what it receives",
	Long: `Open a serial port without sharing it and print every byte received.
With --interactive, lines typed on stdin are written to the port.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := sessionConfig(cmd, args[0])
		if err != nil {
			return err
		}
		asHex, _ := cmd.Flags().GetBool("hex")
		interactive, _ := cmd.Flags().GetBool("interactive")
		send, _ := cmd.Flags().GetString("send")
		eolFlag, _ := cmd.Flags().GetString("eol")
		eol := unescape(eolFlag)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

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
		go printIncoming(os.Stdout, sub, asHex)

		if send != "" {
			if err := s.Write([]byte(send + eol)); err != nil {
				return err
			}
		}

		fmt.Fprintf(os.Stderr, "Monitoring %s at %d baud, Ctrl+C to exit.\n", cfg.PortName, cfg.BaudRate)
		if interactive {
			go func() {
				if err := sendLines(os.Stdin, s, eol); err != nil {
					logger.Warn().Err(err).Msg("stdin")
				}
			}()
		}

		<-ctx.Done()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	addLineFlags(monitorCmd)
	monitorCmd.Flags().Bool("hex", false, "print received chunks as hex")
	monitorCmd.Flags().BoolP("interactive", "i", false, "write stdin lines to the port")
	monitorCmd.Flags().String("send", "", "write this once after opening")
	monitorCmd.Flags().String("eol", `\r`, "appended to every line written")
}
