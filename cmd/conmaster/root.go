package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "conmaster",
	Short: "CANopen master stack CLI",
	Long: `conmaster drives a CANopen master: it opens a CAN bus, supervises a set
of remote nodes over NMT/heartbeat or node guarding, exchanges SDOs, and
runs the periodic SYNC/PDO loop.

Node topology, liveness mode and PDO presets come from an INI
configuration file (see the config package); pass it with --config or
set CONMASTER_CONFIG.`,
	Version: "0.1.0",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("CONMASTER_CONFIG"), "path to master config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(newLogrusHandler(level))
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
