package providers

import (
	"context"
	"errors"
)

// OperationMode selects what a model call produces.
type OperationMode string

const (
	// ModeRecognition turns page images into markdown.
	ModeRecognition OperationMode = "recognition"
	// ModeExtraction turns page images and/or text into a schema-shaped object.
	ModeExtraction OperationMode = "extraction"
)

var (
	// ErrUnsupportedMode is returned by a backend that does not implement
	// the requested operation mode. It is a configuration error.
	ErrUnsupportedMode = errors.New("unsupported operation mode")

	// ErrMissingCredentials is returned when a provider kind is configured
	// without the credentials it needs.
	ErrMissingCredentials = errors.New("missing credentials")
)

// Model is a vision-language model backend.
type Model interface {
	// Name returns the provider identifier (e.g., "openai").
	Name() string

	// GetCompletion runs one request in the given mode.
	GetCompletion(ctx context.Context, mode OperationMode, args *Args) (*Response, error)
}

// Args carries the inputs for either operation mode. Recognition reads
// Images, MaintainFormat and PriorPage; Extraction reads Input and Schema.
// Prompt overrides the default system prompt in both modes.
type Args struct {
	// Recognition
	Images         [][]byte
	MaintainFormat bool
	PriorPage      string

	// Extraction
	Input  ExtractionInput
	Schema map[string]any

	Prompt string
}

// ExtractionInput is the content extraction runs over: recognized text,
// page images, or both.
type ExtractionInput struct {
	Text   string
	Images [][]byte
}

// Response is the normalized result of a model call.
type Response struct {
	// Content is the markdown produced in recognition mode.
	Content string `json:"content,omitempty"`
	// Extracted is the decoded object produced in extraction mode. It has
	// not been validated against the schema yet.
	Extracted map[string]any `json:"extracted,omitempty"`

	InputTokens  int            `json:"inputTokens"`
	OutputTokens int            `json:"outputTokens"`
	Logprobs     []TokenLogprob `json:"logprobs,omitempty"`
	Model        string         `json:"model,omitempty"`
}

// TokenLogprob is the log-probability of one generated token.
type TokenLogprob struct {
	Token   string  `json:"token"`
	Logprob float64 `json:"logprob"`
}

// Credentials authenticate against a provider. Which fields are required
// depends on the provider kind; see ValidateCredentials.
type Credentials struct {
	APIKey     string
	Endpoint   string // Azure resource endpoint
	APIVersion string // Azure API version
	BaseURL    string // Endpoint override, or the Ollama server

	// Bedrock. Without an access key the default AWS credential chain is used.
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// IsZero reports whether no credential field is set.
func (c Credentials) IsZero() bool {
	return c == Credentials{}
}

// LLMParams are sampling parameters forwarded to the provider.
type LLMParams struct {
	MaxTokens        int
	Temperature      float64
	TopP             float64
	FrequencyPenalty float64
	PresencePenalty  float64
	Logprobs         bool
}

const (
	defaultMaxTokens = 4000
	defaultTopP      = 1.0
)

// DefaultLLMParams returns the parameters used when none are configured.
func DefaultLLMParams() LLMParams {
	return LLMParams{
		MaxTokens: defaultMaxTokens,
		TopP:      defaultTopP,
	}
}

// withDefaults fills unset fields. Temperature defaults to zero, which is
// already the zero value.
func (p LLMParams) withDefaults() LLMParams {
	if p.MaxTokens <= 0 {
		p.MaxTokens = defaultMaxTokens
	}
	if p.TopP <= 0 {
		p.TopP = defaultTopP
	}
	return p
}

// Message represents a chat message.
type Message struct {
	Role    string   `json:"role"` // "system", "user", "assistant"
	Content string   `json:"content"`
	Images  [][]byte `json:"-"` // For vision models (base64 encoded in request)
}
