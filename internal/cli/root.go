// Package cli provides the command-line interface for clamui.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/slaythrax/clamui-sub000/internal/app"
	"github.com/slaythrax/clamui-sub000/internal/config"
	"github.com/slaythrax/clamui-sub000/internal/logging"
	"github.com/slaythrax/clamui-sub000/internal/version"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

// NewRootCmd creates the root command. Running clamui without a subcommand
// starts the desktop application with its tray indicator.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "clamui",
		Short: "ClamUI - desktop antivirus frontend for ClamAV",
		Long: `ClamUI ` + version.Version + ` - Built: ` + version.BuildTime + `
Desktop frontend for ClamAV with a system tray indicator, scheduled scans,
quarantine management and signature updates.

Running clamui with no subcommand starts the desktop application.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.SetVerbose(verbose)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp()
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Settings file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (shows debug messages)")

	rootCmd.Version = version.Version + " (" + version.BuildTime + ")"

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newScanCmd())
	rootCmd.AddCommand(newQuarantineCmd())
	rootCmd.AddCommand(newUpdateCmd())

	return rootCmd
}

// Execute runs the CLI.
func Execute() error {
	return NewRootCmd().Execute()
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the desktop application (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp()
		},
	}
}

func runApp() error {
	a, err := app.New(settingsPath())
	if err != nil {
		return err
	}
	return a.Run()
}

func settingsPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.SettingsPath()
}

// signalContext returns a context cancelled by SIGINT/SIGTERM, for one-shot
// commands.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-ch:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(ch)
	}()
	return ctx, cancel
}
