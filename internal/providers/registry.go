package providers

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Kind identifies a provider backend.
type Kind string

const (
	KindOpenAI     Kind = OpenAIName
	KindAzure      Kind = AzureName
	KindGoogle     Kind = GoogleName
	KindOpenRouter Kind = OpenRouterName
	KindAnthropic  Kind = AnthropicName
	KindBedrock    Kind = BedrockName
	KindMistral    Kind = MistralName
	KindOllama     Kind = OllamaName
)

// Config selects and configures one backend.
type Config struct {
	Kind        Kind
	Model       string
	Credentials Credentials
	Params      LLMParams

	// RateLimit caps requests per minute; 0 disables the limiter.
	RateLimit int

	MaxRetries int
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

type constructor func(ClientConfig) (Model, error)

var constructors = map[Kind]constructor{
	KindOpenAI:     func(c ClientConfig) (Model, error) { return NewOpenAIModel(c), nil },
	KindAzure:      func(c ClientConfig) (Model, error) { return NewAzureModel(c), nil },
	KindGoogle:     func(c ClientConfig) (Model, error) { return NewGoogleModel(c), nil },
	KindOpenRouter: func(c ClientConfig) (Model, error) { return NewOpenRouterModel(c), nil },
	KindAnthropic:  func(c ClientConfig) (Model, error) { return NewAnthropicModel(c) },
	KindBedrock:    func(c ClientConfig) (Model, error) { return NewBedrockModel(c) },
	KindMistral:    func(c ClientConfig) (Model, error) { return NewMistralModel(c) },
	KindOllama:     func(c ClientConfig) (Model, error) { return NewOllamaModel(c) },
}

// Kinds returns every supported provider kind, sorted.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(constructors))
	for k := range constructors {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// ParseKind normalizes a provider name.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := constructors[k]; !ok {
		return "", fmt.Errorf("unknown provider %q", s)
	}
	return k, nil
}

// ValidateCredentials checks that creds carry what kind needs.
func ValidateCredentials(kind Kind, creds Credentials) error {
	switch kind {
	case KindOllama:
		return nil
	case KindBedrock:
		if creds.Region == "" {
			return fmt.Errorf("%w: bedrock requires region", ErrMissingCredentials)
		}
		if (creds.AccessKeyID == "") != (creds.SecretAccessKey == "") {
			return fmt.Errorf("%w: bedrock access key and secret must be set together", ErrMissingCredentials)
		}
		return nil
	case KindAzure:
		if creds.APIKey == "" || creds.Endpoint == "" {
			return fmt.Errorf("%w: azure requires apiKey and endpoint", ErrMissingCredentials)
		}
		return nil
	case KindOpenAI, KindGoogle, KindOpenRouter, KindAnthropic, KindMistral:
		if creds.APIKey == "" {
			return fmt.Errorf("%w: %s requires apiKey", ErrMissingCredentials, kind)
		}
		return nil
	}
	return fmt.Errorf("unknown provider %q", kind)
}

// New builds the backend cfg describes.
func New(cfg Config) (Model, error) {
	build, ok := constructors[cfg.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", cfg.Kind)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%s: model is required", cfg.Kind)
	}
	if err := ValidateCredentials(cfg.Kind, cfg.Credentials); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m, err := build(ClientConfig{
		Model:       cfg.Model,
		Credentials: cfg.Credentials,
		Params:      cfg.Params,
		MaxRetries:  cfg.MaxRetries,
		Timeout:     cfg.Timeout,
		HTTPClient:  cfg.HTTPClient,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	logger.Debug("provider created", "provider", cfg.Kind, "model", cfg.Model, "rate_limit", cfg.RateLimit)
	return WithRateLimit(m, cfg.RateLimit), nil
}
