package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forest-guardian/leaf-mosaic/internal/config"
	"github.com/forest-guardian/leaf-mosaic/internal/export"
	"github.com/forest-guardian/leaf-mosaic/internal/gdalio"
)

var (
	cancelManifest string
	cancelName     string
)

var cancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Cancel submitted export tasks",
	Long:  "cancel withdraws every task of the manifest whose name matches --name (a glob; empty matches all).",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env := config.LoadEnv(envFiles...)
		logger := newLogger()

		manifest := cancelManifest
		if manifest == "" {
			manifest = defaultManifest(env)
		}
		tasks, err := readManifest(manifest)
		if err != nil {
			return err
		}

		ex := &gdalio.Exporter{Root: exportRoot(env), Logger: logger}
		n, cancelErr := tasks.Cancel(cmd.Context(), ex, export.NameGlob(cancelName))
		if err := writeManifest(manifest, tasks); err != nil {
			return err
		}
		logger.Info().Int("cancelled", n).Str("manifest", manifest).Msg("tasks cancelled")
		if cancelErr != nil {
			return fmt.Errorf("some tasks could not be cancelled: %w", cancelErr)
		}
		return nil
	},
}

func init() {
	cancelCmd.Flags().StringVar(&cancelManifest, "manifest", "", "task manifest CSV (default <root>/data/exports/manifest.csv)")
	cancelCmd.Flags().StringVar(&cancelName, "name", "", "glob over task names, e.g. 'T18TVR_July_*'")
}
