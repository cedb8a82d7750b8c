package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jackzampolin/folio/internal/pipeline"
	"github.com/jackzampolin/folio/internal/providers"
)

// apiKeyEnv is the variable read when a provider's api_key is empty or
// resolves to nothing.
var apiKeyEnv = map[providers.Kind]string{
	providers.KindOpenAI:     "OPENAI_API_KEY",
	providers.KindAzure:      "AZURE_OPENAI_API_KEY",
	providers.KindGoogle:     "GEMINI_API_KEY",
	providers.KindOpenRouter: "OPENROUTER_API_KEY",
	providers.KindAnthropic:  "ANTHROPIC_API_KEY",
	providers.KindMistral:    "MISTRAL_API_KEY",
}

// Credentials resolves the provider's credentials for kind.
func (p ProviderCfg) Credentials(kind providers.Kind) providers.Credentials {
	key := ResolveEnvVars(p.APIKey)
	if key == "" {
		if env, ok := apiKeyEnv[kind]; ok {
			key = os.Getenv(env)
		}
	}
	creds := providers.Credentials{
		APIKey:     key,
		Endpoint:   ResolveEnvVars(p.Endpoint),
		APIVersion: p.APIVersion,
		BaseURL:    ResolveEnvVars(p.BaseURL),
	}
	if kind == providers.KindBedrock {
		creds.Region = ResolveEnvVars(p.Region)
		if creds.Region == "" {
			creds.Region = os.Getenv("AWS_REGION")
		}
		creds.AccessKeyID = ResolveEnvVars(p.AccessKeyID)
		creds.SecretAccessKey = ResolveEnvVars(p.SecretAccessKey)
		creds.SessionToken = ResolveEnvVars(p.SessionToken)
	}
	return creds
}

// Params returns the sampling parameters.
func (p ProviderCfg) Params() providers.LLMParams {
	return providers.LLMParams{
		MaxTokens:        p.MaxTokens,
		Temperature:      p.Temperature,
		TopP:             p.TopP,
		FrequencyPenalty: p.FrequencyPenalty,
		PresencePenalty:  p.PresencePenalty,
		Logprobs:         p.Logprobs,
	}
}

// ToPipelineConfig maps the file configuration onto a pipeline run for
// source. It resolves ${ENV_VAR} references and loads the schema file.
func (c *Config) ToPipelineConfig(source string) (pipeline.Config, error) {
	cfg := pipeline.DefaultConfig()
	cfg.FilePath = source

	kind, err := providers.ParseKind(c.Provider.Type)
	if err != nil {
		return cfg, fmt.Errorf("%w: provider: %v", pipeline.ErrInvalidConfig, err)
	}
	cfg.Provider = kind
	cfg.Model = c.Provider.Model
	cfg.Credentials = c.Provider.Credentials(kind)
	cfg.LLMParams = c.Provider.Params()
	cfg.RateLimit = c.Provider.RateLimit

	ext := c.Extraction
	if ext.Provider.Type != "" {
		extKind, err := providers.ParseKind(ext.Provider.Type)
		if err != nil {
			return cfg, fmt.Errorf("%w: extraction provider: %v", pipeline.ErrInvalidConfig, err)
		}
		creds := ext.Provider.Credentials(extKind)
		params := ext.Provider.Params()
		cfg.ExtractionProvider = extKind
		cfg.ExtractionModel = ext.Provider.Model
		cfg.ExtractionCredentials = &creds
		cfg.ExtractionLLMParams = &params
	} else if ext.Provider.Model != "" {
		cfg.ExtractionModel = ext.Provider.Model
	}
	if ext.SchemaFile != "" {
		if cfg.Schema, err = LoadSchema(ext.SchemaFile); err != nil {
			return cfg, err
		}
	}
	cfg.ExtractionPrompt = ext.Prompt
	cfg.ExtractPerPage = ext.PerPage
	cfg.ExtractOnly = ext.Only
	cfg.DirectImageExtraction = ext.DirectImage
	cfg.EnableHybridExtraction = ext.Hybrid

	p := c.Processing
	mode, err := pipeline.ParseErrorMode(p.ErrorMode)
	if err != nil {
		return cfg, err
	}
	cfg.ErrorMode = mode
	cfg.Concurrency = p.Concurrency
	cfg.MaxRetries = p.MaxRetries
	cfg.RetryDelay = p.RetryDelay
	cfg.CorrectOrientation = p.CorrectOrientation
	cfg.MaxOrientationWorkers = p.MaxOrientationWorkers
	cfg.TrimEdges = p.TrimEdges
	cfg.MaxImageSizeMB = p.MaxImageSizeMB
	cfg.ImageDensity = p.ImageDensity
	cfg.ImageHeight = p.ImageHeight
	cfg.MaintainFormat = p.MaintainFormat
	cfg.Prompt = p.Prompt
	cfg.TempDir = p.TempDir
	cfg.Cleanup = p.Cleanup

	cfg.OutputDir = c.Output.Dir
	return cfg, nil
}

// LoadSchema reads a JSON Schema from a .json, .yaml or .yml file.
func LoadSchema(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}

	var schema map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &schema)
	default:
		err = json.Unmarshal(data, &schema)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse schema %s: %v", pipeline.ErrInvalidConfig, path, err)
	}
	if schema == nil {
		return nil, fmt.Errorf("%w: schema %s is empty", pipeline.ErrInvalidConfig, path)
	}
	return schema, nil
}
