package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/api"
	"github.com/jackzampolin/folio/internal/config"
	"github.com/jackzampolin/folio/internal/pipeline"
	"github.com/jackzampolin/folio/internal/watch"
)

var (
	watchScan   bool
	watchOutDir string
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Process documents as they are dropped into a directory",
	Long: `Watch a directory and process every document that appears in it.

A file is processed once it has stopped changing for watch.debounce. Results
go to --output-dir (default: <dir>/out): <name>.md, plus <name>.json or
<name>.yaml with the full result when the output format is json or yaml.
Changes to the config file apply to the next document.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, logger, err := loadConfig()
		if err != nil {
			return err
		}

		dir := args[0]
		outDir := watchOutDir
		if outDir == "" {
			outDir = mgr.Get().Output.Dir
		}
		if outDir == "" {
			outDir = filepath.Join(dir, "out")
		}
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}

		if mgr.ConfigFile() != "" {
			mgr.OnChange(func(cfg *config.Config) {
				logger.Info("config reloaded", "file", mgr.ConfigFile(),
					"provider", cfg.Provider.Type, "model", cfg.Provider.Model)
			})
			mgr.WatchConfig()
		}

		wcfg := mgr.Get().Watch
		return watch.Run(cmd.Context(), watch.Config{
			Dir:         dir,
			Extensions:  wcfg.Extensions,
			Debounce:    wcfg.Debounce,
			InitialScan: watchScan,
			Logger:      logger,
		}, func(ctx context.Context, path string) error {
			return processInto(ctx, mgr.Get(), path, outDir, logger)
		})
	},
}

func init() {
	watchCmd.Flags().BoolVar(&watchScan, "scan", false, "also process files already in the directory")
	watchCmd.Flags().StringVar(&watchOutDir, "output-dir", "", "directory for results (default: <dir>/out)")
	rootCmd.AddCommand(watchCmd)
}

// processInto runs the pipeline on path and writes its results to outDir.
func processInto(ctx context.Context, cfg *config.Config, path, outDir string, logger *slog.Logger) error {
	pc, err := cfg.ToPipelineConfig(path)
	if err != nil {
		return err
	}
	pc.OutputDir = outDir
	pc.Logger = logger.With("file", filepath.Base(path))

	out, err := pipeline.Process(ctx, pc)
	if err != nil {
		return err
	}

	format := api.GetOutputFormat()
	if format == api.OutputFormatMarkdown {
		return nil
	}
	f, err := os.Create(filepath.Join(outDir, out.FileName+"."+string(format)))
	if err != nil {
		return fmt.Errorf("failed to create result file: %w", err)
	}
	defer f.Close()
	return api.OutputTo(f, format, out)
}
