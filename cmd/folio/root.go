package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/api"
	"github.com/jackzampolin/folio/internal/config"
	"github.com/jackzampolin/folio/internal/workdir"
	"github.com/jackzampolin/folio/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
	logLevel     string
)

var rootCmd = &cobra.Command{
	Use:   "folio",
	Short: "Convert documents to markdown and structured data with vision models",
	Long: `folio turns documents into markdown and schema-shaped data using
vision-language models.

Supported inputs are PDFs, office documents, spreadsheets, images and HEIC
photos, given as a local path or an http(s) URL. Each page is rendered,
cleaned up (border trim, orientation, tall-page split, compression) and sent
to the configured model.

Providers: openai, azure, google, openrouter, anthropic, bedrock, mistral, ollama.`,
	Version:       version.GitRelease,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.folio/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "folio home directory (default: ~/.folio)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "", "output format: yaml, json or markdown (default from config)",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "", "log level: debug, info, warn or error (default from config)",
	)

	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the configuration and applies the global flags to it.
func loadConfig() (*config.Manager, *slog.Logger, error) {
	h, err := workdir.NewHome(homeDir)
	if err != nil {
		return nil, nil, err
	}
	mgr, err := config.NewManager(cfgFile, h.Path())
	if err != nil {
		return nil, nil, err
	}
	cfg := mgr.Get()

	format := cfg.Output.Format
	if outputFormat != "" {
		format = outputFormat
	}
	if _, err := api.ParseOutputFormat(format); err != nil {
		return nil, nil, err
	}
	api.SetOutputFormat(format)

	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	logger, err := newLogger(level)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)
	return mgr, logger, nil
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q", level)
		}
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: lvl,
	})), nil
}
