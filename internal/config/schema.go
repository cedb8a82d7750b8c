package config

import "time"

// Config holds folio configuration.
// Stored at: ~/.folio/config.yaml
type Config struct {
	LogLevel   string        `mapstructure:"log_level" yaml:"log_level"`
	Provider   ProviderCfg   `mapstructure:"provider" yaml:"provider"`
	Extraction ExtractionCfg `mapstructure:"extraction" yaml:"extraction"`
	Processing ProcessingCfg `mapstructure:"processing" yaml:"processing"`
	Output     OutputCfg     `mapstructure:"output" yaml:"output"`
	Watch      WatchCfg      `mapstructure:"watch" yaml:"watch"`
}

// ProviderCfg selects and tunes a model backend.
type ProviderCfg struct {
	Type       string `mapstructure:"type" yaml:"type"` // openai, azure, google, openrouter, anthropic, bedrock, mistral, ollama
	Model      string `mapstructure:"model" yaml:"model"`
	APIKey     string `mapstructure:"api_key" yaml:"api_key"`         // supports ${ENV_VAR} syntax
	Endpoint   string `mapstructure:"endpoint" yaml:"endpoint"`       // azure only
	APIVersion string `mapstructure:"api_version" yaml:"api_version"` // azure only
	BaseURL    string `mapstructure:"base_url" yaml:"base_url"`
	RateLimit  int    `mapstructure:"rate_limit" yaml:"rate_limit"` // requests per minute, 0 = unlimited

	// bedrock only; empty keys fall back to the AWS credential chain
	Region          string `mapstructure:"region" yaml:"region"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key"`
	SessionToken    string `mapstructure:"session_token" yaml:"session_token"`

	MaxTokens        int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature      float64 `mapstructure:"temperature" yaml:"temperature"`
	TopP             float64 `mapstructure:"top_p" yaml:"top_p"`
	FrequencyPenalty float64 `mapstructure:"frequency_penalty" yaml:"frequency_penalty"`
	PresencePenalty  float64 `mapstructure:"presence_penalty" yaml:"presence_penalty"`
	Logprobs         bool    `mapstructure:"logprobs" yaml:"logprobs"`
}

// ExtractionCfg configures structured extraction. An empty Provider.Type
// reuses the primary provider.
type ExtractionCfg struct {
	Provider    ProviderCfg `mapstructure:"provider" yaml:"provider"`
	SchemaFile  string      `mapstructure:"schema_file" yaml:"schema_file"` // JSON or YAML
	Prompt      string      `mapstructure:"prompt" yaml:"prompt"`
	PerPage     []string    `mapstructure:"per_page" yaml:"per_page"`
	Only        bool        `mapstructure:"only" yaml:"only"`
	DirectImage bool        `mapstructure:"direct_image" yaml:"direct_image"`
	Hybrid      bool        `mapstructure:"hybrid" yaml:"hybrid"`
}

// ProcessingCfg controls the page pipeline.
type ProcessingCfg struct {
	Concurrency           int           `mapstructure:"concurrency" yaml:"concurrency"`
	MaxRetries            int           `mapstructure:"max_retries" yaml:"max_retries"`
	RetryDelay            time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	ErrorMode             string        `mapstructure:"error_mode" yaml:"error_mode"` // ignore or throw
	CorrectOrientation    bool          `mapstructure:"correct_orientation" yaml:"correct_orientation"`
	MaxOrientationWorkers int           `mapstructure:"max_orientation_workers" yaml:"max_orientation_workers"` // -1 = unlimited
	TrimEdges             bool          `mapstructure:"trim_edges" yaml:"trim_edges"`
	MaxImageSizeMB        float64       `mapstructure:"max_image_size_mb" yaml:"max_image_size_mb"`
	ImageDensity          int           `mapstructure:"image_density" yaml:"image_density"`
	ImageHeight           int           `mapstructure:"image_height" yaml:"image_height"`
	MaintainFormat        bool          `mapstructure:"maintain_format" yaml:"maintain_format"`
	Prompt                string        `mapstructure:"prompt" yaml:"prompt"`
	TempDir               string        `mapstructure:"temp_dir" yaml:"temp_dir"`
	Cleanup               bool          `mapstructure:"cleanup" yaml:"cleanup"`
}

// OutputCfg controls where results go.
type OutputCfg struct {
	Dir    string `mapstructure:"dir" yaml:"dir"`       // markdown files; empty = none
	Format string `mapstructure:"format" yaml:"format"` // json, yaml or markdown
}

// WatchCfg configures `folio watch`.
type WatchCfg struct {
	Extensions []string      `mapstructure:"extensions" yaml:"extensions"`
	Debounce   time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Provider: ProviderCfg{
			Type:      "openai",
			Model:     "gpt-4o",
			APIKey:    "${OPENAI_API_KEY}",
			MaxTokens: 4000,
			TopP:      1,
		},
		Processing: ProcessingCfg{
			Concurrency:           10,
			MaxRetries:            1,
			ErrorMode:             "ignore",
			CorrectOrientation:    true,
			MaxOrientationWorkers: -1,
			TrimEdges:             true,
			MaxImageSizeMB:        15,
			ImageDensity:          300,
			Cleanup:               true,
		},
		Output: OutputCfg{
			Format: "yaml",
		},
		Watch: WatchCfg{
			Extensions: []string{".pdf", ".png", ".jpg", ".jpeg", ".heic", ".docx", ".xlsx"},
			Debounce:   2 * time.Second,
		},
	}
}
