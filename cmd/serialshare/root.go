package main

import (
	"fmt"
	"io"
	"os"

	"github.com/Station-Manager/serialshare/admin"
	"github.com/Station-Manager/serialshare/internal/config"
	"github.com/Station-Manager/serialshare/internal/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile   string
	appCfg    *config.Config
	logger    = zerolog.Nop()
	logCloser io.Closer
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "serialshare",
	Short: "Share a physical serial port with other applications",
	Long: `serialshare opens a physical serial port and exposes it to other
applications through a com0com virtual port pair.

The com0com driver must be installed. Creating and removing pairs needs
administrator rights; when they are missing serialshare starts an elevated
helper once and sends driver commands to it.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(*cobra.Command, []string) {
		logging.CloseQuietly(logCloser)
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./serialshare.yaml or <user config dir>/serialshare/serialshare.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
}

func setup(cmd *cobra.Command, _ []string) error {
	v := viper.New()
	if err := v.BindPFlag("log.level", cmd.Root().PersistentFlags().Lookup("log-level")); err != nil {
		return err
	}
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return err
	}
	appCfg = cfg

	logCfg := cfg.Log
	if cmd.Name() == admin.ServiceCommand {
		// the elevated helper has no console
		logCfg.Console = false
		logCfg.File = cfg.Admin.LogFile
	}
	l, closer, err := logging.New(logCfg)
	if err != nil {
		return err
	}
	logger, logCloser = l, closer
	return nil
}
