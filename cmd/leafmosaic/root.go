package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/forest-guardian/leaf-mosaic/internal/config"
	"github.com/forest-guardian/leaf-mosaic/internal/logging"
)

var (
	envFiles   []string
	logLevel   string
	prettyLogs bool
	noBanner   bool
)

var rootCmd = &cobra.Command{
	Use:   "leafmosaic",
	Short: "Cloud-screened satellite mosaics and biophysical products",
	Long: "leafmosaic composites Landsat, Sentinel-2, HLS and MODIS scenes into per-pixel best-observation " +
		"mosaics over regions and time windows, and derives LAI, fAPAR, fCOVER and Albedo from them.",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if !noBanner {
			printBanner()
		}
	},
}

// Execute runs the root command until it returns or the process is
// interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env", nil, "dotenv files to load (default .env)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&prettyLogs, "pretty", true, "human-readable console logs")
	rootCmd.PersistentFlags().BoolVar(&noBanner, "no-banner", false, "do not print the banner")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(sensorsCmd)
}

func newLogger() zerolog.Logger {
	return logging.New(os.Stderr, logLevel, prettyLogs)
}

func exportRoot(env config.Env) string {
	return filepath.Join(env.RootPath, "data", "exports")
}

func defaultManifest(env config.Env) string {
	return filepath.Join(exportRoot(env), "manifest.csv")
}
