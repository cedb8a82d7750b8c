package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackzampolin/folio/internal/document"
	"github.com/jackzampolin/folio/internal/orientation"
	"github.com/jackzampolin/folio/internal/providers"
	"github.com/jackzampolin/folio/internal/schema"
)

// ErrInvalidConfig is returned by Process before any work starts when the
// configuration cannot describe a valid run.
var ErrInvalidConfig = errors.New("invalid configuration")

// ErrorMode decides what a failed page or extraction task does to the run.
type ErrorMode string

const (
	// ErrorModeIgnore records the failure and keeps going.
	ErrorModeIgnore ErrorMode = "ignore"
	// ErrorModeThrow aborts the run with the first failure.
	ErrorModeThrow ErrorMode = "throw"
)

// ParseErrorMode validates an error mode name. Empty means ignore.
func ParseErrorMode(s string) (ErrorMode, error) {
	switch ErrorMode(s) {
	case "", ErrorModeIgnore:
		return ErrorModeIgnore, nil
	case ErrorModeThrow:
		return ErrorModeThrow, nil
	}
	return "", fmt.Errorf("%w: unknown error mode %q", ErrInvalidConfig, s)
}

const (
	DefaultProvider       = providers.KindOpenAI
	DefaultModel          = "gpt-4o"
	DefaultConcurrency    = 10
	DefaultMaxRetries     = 1
	DefaultMaxImageSizeMB = 15

	// UnlimitedWorkers leaves the orientation pool uncapped.
	UnlimitedWorkers = -1
)

// PageInput is what a custom page function receives for one page.
type PageInput struct {
	Images         [][]byte
	PageNumber     int
	MaintainFormat bool
	PriorPage      string
}

// PageFunc replaces the recognition model call for one page.
type PageFunc func(ctx context.Context, in PageInput) (*providers.Response, error)

// Config describes one Process run.
type Config struct {
	// FilePath is a local path or an http(s) URL.
	FilePath string

	Provider    providers.Kind
	Model       string
	Credentials providers.Credentials
	LLMParams   providers.LLMParams

	// Extraction overrides. Unset fields fall back to the primary ones.
	ExtractionProvider    providers.Kind
	ExtractionModel       string
	ExtractionCredentials *providers.Credentials
	ExtractionLLMParams   *providers.LLMParams

	Concurrency int
	MaxRetries  int
	RetryDelay  time.Duration
	ErrorMode   ErrorMode

	CorrectOrientation    bool
	MaxOrientationWorkers int // UnlimitedWorkers or a positive cap
	TrimEdges             bool
	MaxImageSizeMB        float64

	// PagesToConvertAsImages selects 1-based PDF pages; nil means all.
	PagesToConvertAsImages []int
	MaintainFormat         bool

	Schema                 map[string]any
	ExtractPerPage         []string
	ExtractOnly            bool
	DirectImageExtraction  bool
	EnableHybridExtraction bool

	Prompt           string
	ExtractionPrompt string
	CustomPageFunc   PageFunc

	OutputDir    string
	TempDir      string
	Cleanup      bool
	ImageDensity int
	ImageHeight  int

	// RateLimit caps provider requests per minute; 0 disables it.
	RateLimit int

	Logger *slog.Logger

	// Prebuilt collaborators. When set they replace the ones built from
	// the fields above.
	Backend            providers.Model
	ExtractionBackend  providers.Model
	Loader             document.Loader
	OrientationFactory orientation.WorkerFactory
}

// DefaultConfig returns a Config with every default applied. Callers set
// FilePath and credentials on the result.
func DefaultConfig() Config {
	return Config{
		Provider:              DefaultProvider,
		Model:                 DefaultModel,
		LLMParams:             providers.DefaultLLMParams(),
		Concurrency:           DefaultConcurrency,
		MaxRetries:            DefaultMaxRetries,
		ErrorMode:             ErrorModeIgnore,
		CorrectOrientation:    true,
		MaxOrientationWorkers: UnlimitedWorkers,
		TrimEdges:             true,
		MaxImageSizeMB:        DefaultMaxImageSizeMB,
		Cleanup:               true,
		ImageDensity:          document.DefaultDensity,
	}
}

// withDefaults fills zero values that have no meaningful zero setting.
func (c Config) withDefaults() Config {
	if c.Provider == "" {
		c.Provider = DefaultProvider
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.ErrorMode == "" {
		c.ErrorMode = ErrorModeIgnore
	}
	if c.ImageDensity <= 0 {
		c.ImageDensity = document.DefaultDensity
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Validate reports the first reason c cannot run. Every returned error
// wraps ErrInvalidConfig.
func (c Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}

	if c.FilePath == "" {
		return invalid("missing file path")
	}
	if _, err := ParseErrorMode(string(c.ErrorMode)); err != nil {
		return err
	}
	if c.EnableHybridExtraction && (c.DirectImageExtraction || c.ExtractOnly) {
		return invalid("hybrid extraction cannot be used with direct image extraction or extract-only mode")
	}
	if c.EnableHybridExtraction && c.Schema == nil {
		return invalid("schema is required when hybrid extraction is enabled")
	}
	if c.ExtractOnly && c.Schema == nil {
		return invalid("schema is required for extract-only mode")
	}
	if c.ExtractOnly && c.MaintainFormat {
		return invalid("maintain format is only supported in recognition mode")
	}

	if c.Backend == nil {
		if _, err := providers.ParseKind(string(c.Provider)); err != nil {
			return invalid("%v", err)
		}
		if c.CustomPageFunc == nil && c.Credentials.IsZero() &&
			providers.ValidateCredentials(c.Provider, c.Credentials) != nil {
			return invalid("missing credentials")
		}
	}
	if c.ExtractionProvider != "" && c.ExtractionBackend == nil {
		if _, err := providers.ParseKind(string(c.ExtractionProvider)); err != nil {
			return invalid("extraction: %v", err)
		}
	}

	if c.Schema != nil {
		if _, err := schema.Validate(c.Schema, map[string]any{}); err != nil {
			return invalid("schema does not compile: %v", err)
		}
	}
	return nil
}

// models builds the recognition and extraction backends the run needs. A
// role that is not needed is returned as nil.
func (c Config) models() (recognition, extraction providers.Model, err error) {
	if !c.ExtractOnly && c.CustomPageFunc == nil {
		recognition = c.Backend
		if recognition == nil {
			if recognition, err = c.buildModel(c.Provider, c.Model, c.Credentials, c.LLMParams); err != nil {
				return nil, nil, err
			}
		}
	}

	if c.Schema == nil {
		return recognition, nil, nil
	}

	extraction = c.ExtractionBackend
	if extraction != nil {
		return recognition, extraction, nil
	}
	if c.Backend != nil && !c.hasExtractionOverrides() {
		return recognition, c.Backend, nil
	}

	kind, model := c.Provider, c.Model
	creds, params := c.Credentials, c.LLMParams
	if c.ExtractionProvider != "" {
		kind = c.ExtractionProvider
	}
	if c.ExtractionModel != "" {
		model = c.ExtractionModel
	}
	if c.ExtractionCredentials != nil {
		creds = *c.ExtractionCredentials
	}
	if c.ExtractionLLMParams != nil {
		params = *c.ExtractionLLMParams
	}
	if extraction, err = c.buildModel(kind, model, creds, params); err != nil {
		return nil, nil, fmt.Errorf("extraction: %w", err)
	}
	return recognition, extraction, nil
}

func (c Config) hasExtractionOverrides() bool {
	return c.ExtractionProvider != "" || c.ExtractionModel != "" ||
		c.ExtractionCredentials != nil || c.ExtractionLLMParams != nil
}

func (c Config) buildModel(kind providers.Kind, model string, creds providers.Credentials, params providers.LLMParams) (providers.Model, error) {
	m, err := providers.New(providers.Config{
		Kind:        kind,
		Model:       model,
		Credentials: creds,
		Params:      params,
		RateLimit:   c.RateLimit,
		Logger:      c.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return m, nil
}
