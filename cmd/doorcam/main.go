// Command doorcam watches a USB camera for people and alerts a Telegram chat.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ayusman/doorcam/internal/config"
	"github.com/ayusman/doorcam/internal/logger"
)

// Version is the application version.
const Version = "0.3.0"

var (
	// cfg is loaded from the environment and overlaid with flags before any
	// subcommand runs.
	cfg config.Config

	flagCamera    int
	flagConf      float64
	flagInterval  time.Duration
	flagLogLevel  string
	flagLogFormat string
	flagHome      string
)

var rootCmd = &cobra.Command{
	Use:           "doorcam",
	Short:         "Person detection door camera with Telegram alerts",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if flagHome != "" {
			os.Setenv(config.EnvPrefix+"HOME", flagHome)
		}
		cfg = config.Load()

		flags := cmd.Flags()
		if flags.Changed("camera") {
			cfg.CameraIndex = flagCamera
		}
		if flags.Changed("conf") {
			cfg.ConfidenceThreshold = flagConf
		}
		if flags.Changed("interval") {
			cfg.MinDetectionInterval = flagInterval
		}
		if flags.Changed("log-level") {
			cfg.LogLevel = flagLogLevel
		}
		if flags.Changed("log-format") {
			cfg.LogFormat = flagLogFormat
		}

		if err := cfg.EnsureDirs(); err != nil {
			return err
		}
		logger.Init(logger.Options{
			Level:  cfg.LogLevel,
			Format: cfg.LogFormat,
			File:   cfg.LogPath(),
		})
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Close()
	},
}

func main() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		logger.Close()
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagHome, "home", "", "data directory (default: $DOORCAM_HOME or ~/.doorcam)")
	pf.IntVar(&flagCamera, "camera", 0, "camera device index")
	pf.Float64Var(&flagConf, "conf", 0.5, "person confidence threshold")
	pf.DurationVar(&flagInterval, "interval", 2*time.Second, "minimum time between alerts")
	pf.StringVar(&flagLogLevel, "log-level", "info", "trace, debug, info, warn or error")
	pf.StringVar(&flagLogFormat, "log-format", "console", "console or json")

	rootCmd.AddCommand(runCmd, encodeFaceCmd, facesCmd, statsCmd, cleanupCmd, archiveCmd, testNotifyCmd, testCameraCmd)
}
