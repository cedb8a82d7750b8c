package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/api"
	"github.com/jackzampolin/folio/internal/config"
	"github.com/jackzampolin/folio/internal/pipeline"
)

// processFlags override the loaded configuration for a single run.
type processFlags struct {
	provider       string
	model          string
	schemaFile     string
	perPage        []string
	extractOnly    bool
	directImage    bool
	hybrid         bool
	maintainFormat bool
	pages          []int
	concurrency    int
	maxRetries     int
	errorMode      string
	outputDir      string
	prompt         string
	noOrientation  bool
	noTrim         bool
	keepTemp       bool
}

var procFlags processFlags

var processCmd = &cobra.Command{
	Use:   "process <file-or-url>",
	Short: "Convert a document to markdown and optionally extract data",
	Long: `Convert a document to markdown, page by page.

With --schema, the recognized text (or the page images, with --direct-image
or --extract-only) is also run through structured extraction and validated
against the schema. Keys named with --per-page are extracted from each page
separately.

Examples:
  folio process report.pdf -o markdown
  folio process https://example.com/invoice.pdf --schema invoice.json
  folio process scan.png --schema receipt.yaml --extract-only -o json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, logger, err := loadConfig()
		if err != nil {
			return err
		}

		cfg := *mgr.Get()
		procFlags.apply(cmd, &cfg)

		pc, err := cfg.ToPipelineConfig(args[0])
		if err != nil {
			return err
		}
		if len(procFlags.pages) > 0 {
			pc.PagesToConvertAsImages = procFlags.pages
		}
		pc.Logger = logger

		out, err := pipeline.Process(cmd.Context(), pc)
		if err != nil {
			return fmt.Errorf("failed to process %s: %w", args[0], err)
		}
		return api.Output(out)
	},
}

func init() {
	f := processCmd.Flags()
	f.StringVar(&procFlags.provider, "provider", "", "model provider (openai, azure, google, openrouter, anthropic, bedrock, mistral, ollama)")
	f.StringVar(&procFlags.model, "model", "", "model name")
	f.StringVar(&procFlags.schemaFile, "schema", "", "JSON Schema file (.json, .yaml) for structured extraction")
	f.StringSliceVar(&procFlags.perPage, "per-page", nil, "top-level schema keys to extract from each page")
	f.BoolVar(&procFlags.extractOnly, "extract-only", false, "skip markdown and extract straight from page images")
	f.BoolVar(&procFlags.directImage, "direct-image", false, "extract from page images instead of recognized text")
	f.BoolVar(&procFlags.hybrid, "hybrid", false, "extract from page images and recognized text together")
	f.BoolVar(&procFlags.maintainFormat, "maintain-format", false, "process pages in order, passing the previous page as context")
	f.IntSliceVar(&procFlags.pages, "pages", nil, "1-based pages to convert (default: all)")
	f.IntVar(&procFlags.concurrency, "concurrency", 0, "maximum pages in flight")
	f.IntVar(&procFlags.maxRetries, "max-retries", 0, "retries per page after the first attempt")
	f.StringVar(&procFlags.errorMode, "error-mode", "", "page failure handling: ignore or throw")
	f.StringVar(&procFlags.outputDir, "output-dir", "", "write <name>.md to this directory")
	f.StringVar(&procFlags.prompt, "prompt", "", "replace the recognition prompt")
	f.BoolVar(&procFlags.noOrientation, "no-orientation", false, "disable orientation correction")
	f.BoolVar(&procFlags.noTrim, "no-trim", false, "disable border trimming")
	f.BoolVar(&procFlags.keepTemp, "keep-temp", false, "keep the scratch directory after the run")

	rootCmd.AddCommand(processCmd)
}

// apply copies the flags the user set onto cfg.
func (p *processFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("provider") {
		cfg.Provider.Type = p.provider
		// a different provider needs its own key variable
		cfg.Provider.APIKey = ""
	}
	if f.Changed("model") {
		cfg.Provider.Model = p.model
	}
	if f.Changed("schema") {
		cfg.Extraction.SchemaFile = p.schemaFile
	}
	if f.Changed("per-page") {
		cfg.Extraction.PerPage = p.perPage
	}
	if f.Changed("extract-only") {
		cfg.Extraction.Only = p.extractOnly
	}
	if f.Changed("direct-image") {
		cfg.Extraction.DirectImage = p.directImage
	}
	if f.Changed("hybrid") {
		cfg.Extraction.Hybrid = p.hybrid
	}
	if f.Changed("maintain-format") {
		cfg.Processing.MaintainFormat = p.maintainFormat
	}
	if f.Changed("concurrency") {
		cfg.Processing.Concurrency = p.concurrency
	}
	if f.Changed("max-retries") {
		cfg.Processing.MaxRetries = p.maxRetries
	}
	if f.Changed("error-mode") {
		cfg.Processing.ErrorMode = p.errorMode
	}
	if f.Changed("output-dir") {
		cfg.Output.Dir = p.outputDir
	}
	if f.Changed("prompt") {
		cfg.Processing.Prompt = p.prompt
	}
	if p.noOrientation {
		cfg.Processing.CorrectOrientation = false
	}
	if p.noTrim {
		cfg.Processing.TrimEdges = false
	}
	if p.keepTemp {
		cfg.Processing.Cleanup = false
	}
}
