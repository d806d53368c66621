package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/forest-guardian/leaf-mosaic/internal/biophys"
	"github.com/forest-guardian/leaf-mosaic/internal/cache"
	"github.com/forest-guardian/leaf-mosaic/internal/catalog"
	"github.com/forest-guardian/leaf-mosaic/internal/catalog/stac"
	"github.com/forest-guardian/leaf-mosaic/internal/config"
	"github.com/forest-guardian/leaf-mosaic/internal/driver"
	"github.com/forest-guardian/leaf-mosaic/internal/export"
	"github.com/forest-guardian/leaf-mosaic/internal/gdalio"
	"github.com/forest-guardian/leaf-mosaic/internal/notification"
	"github.com/forest-guardian/leaf-mosaic/internal/region"
	"github.com/forest-guardian/leaf-mosaic/internal/sensor"
)

var (
	runManifest string
	runNoCache  bool
)

var runCmd = &cobra.Command{
	Use:   "run <config.yaml>",
	Short: "Composite every region and window of a run file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env := config.LoadEnv(envFiles...)
		logger := newLogger()
		notifier := &notification.Discord{
			ErrorURL:   env.ErrorWebhook,
			SuccessURL: env.SuccessWebhook,
			Client:     &http.Client{Timeout: 10 * time.Second},
		}

		sum, err := run(cmd.Context(), args[0], env, logger)
		if err != nil {
			if nerr := notifier.Error(context.Background(), fmt.Sprintf("leafmosaic\n\n%s: %s", args[0], err)); nerr != nil {
				logger.Warn().Err(nerr).Msg("failed to send notification")
			}
			return err
		}

		logger.Info().Int("pairs", sum.Pairs).Int("skipped", sum.Skipped).Int("failed", sum.Failed).
			Int("tasks", sum.Tasks).Msg("run finished")
		msg := fmt.Sprintf("leafmosaic\n\n%s: %d windows, %d skipped, %d failed, %d export tasks",
			args[0], sum.Pairs, sum.Skipped, sum.Failed, sum.Tasks)
		if nerr := notifier.Success(context.Background(), msg); nerr != nil {
			logger.Warn().Err(nerr).Msg("failed to send notification")
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runManifest, "manifest", "", "task manifest CSV (default <root>/data/exports/manifest.csv)")
	runCmd.Flags().BoolVar(&runNoCache, "no-cache", false, "bypass the catalog query cache")
}

func run(ctx context.Context, path string, env config.Env, logger zerolog.Logger) (driver.Summary, error) {
	reg := sensor.NewRegistry()
	cfg, err := config.Load(path, reg)
	if err != nil {
		return driver.Summary{}, err
	}

	regions := region.NewRegistry()
	if cfg.TilesFile != "" {
		if err := gdalio.LoadRegions(regions, cfg.TilesFile, cfg.TileField); err != nil {
			return driver.Summary{}, fmt.Errorf("tiles file: %w", err)
		}
	}

	if env.STACURL == "" {
		return driver.Summary{}, errors.New("LEAF_STAC_URL is not set")
	}
	client, err := stac.NewClient(ctx, stac.Config{
		BaseURL:       env.STACURL,
		ClientIDs:     env.ClientIDs,
		ClientSecrets: env.ClientSecrets,
		TokenURL:      env.TokenURL,
	}, logger)
	if err != nil {
		return driver.Summary{}, err
	}
	var cat catalog.Catalog = client
	if !runNoCache {
		cat = &catalog.Cached{
			Catalog: client,
			Cache:   cache.NewFileCache[[]catalog.Item](env.RootPath, "catalog"),
			Logger:  logger,
		}
	}

	manifest := runManifest
	if manifest == "" {
		manifest = defaultManifest(env)
	}
	tasks, err := readManifest(manifest)
	if err != nil {
		return driver.Summary{}, err
	}

	loader := &gdalio.Loader{Logger: logger}
	d := &driver.Driver{
		Config:   cfg,
		Registry: reg,
		Regions:  regions,
		Selector: &catalog.Selector{Catalog: cat, Registry: reg, Loader: loader, Logger: logger},
		Grid:     gdalio.GridFor,
		Aux:      loader.Warp,
		Exporter: &gdalio.Exporter{Root: exportRoot(env), Logger: logger},
		Tasks:    tasks,
		Applier:  &biophys.Applier{Logger: logger, Progress: os.Stderr},

		ReportDir: filepath.Join(env.RootPath, "data", "reports"),
		Logger:    logger,
		Progress:  os.Stderr,
	}

	sum, runErr := d.Run(ctx)
	if err := writeManifest(manifest, d.Tasks); err != nil {
		return sum, errors.Join(runErr, err)
	}
	return sum, runErr
}

// readManifest loads an existing manifest; a missing file is an empty list.
func readManifest(path string) (*export.TaskList, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return &export.TaskList{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return export.ReadManifest(f)
}

func writeManifest(path string, tasks *export.TaskList) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return tasks.WriteManifest(f)
}
