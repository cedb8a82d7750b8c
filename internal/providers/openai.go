package providers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/azure"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

const (
	OpenAIName = "openai"
	AzureName  = "azure"
	GoogleName = "google"

	// GeminiOpenAIBaseURL is Gemini's OpenAI-compatible endpoint.
	GeminiOpenAIBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

	defaultAzureAPIVersion = "2024-10-21"
	defaultRequestTimeout  = 300 * time.Second
)

// ClientConfig holds what every backend constructor needs.
type ClientConfig struct {
	Model       string
	Credentials Credentials
	Params      LLMParams
	MaxRetries  int // Transport retries inside the vendor client (default: 2)
	Timeout     time.Duration
	HTTPClient  *http.Client // Optional (tests)
	Logger      *slog.Logger
}

func (c ClientConfig) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	timeout := c.Timeout
	if timeout == 0 {
		timeout = defaultRequestTimeout
	}
	return &http.Client{Timeout: timeout}
}

func (c ClientConfig) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// OpenAIModel implements Model on the chat completions API. The same client
// serves OpenAI, Azure OpenAI deployments and Gemini's compatible endpoint.
type OpenAIModel struct {
	name   string
	model  string
	params LLMParams
	client openai.Client
	logger *slog.Logger
}

func newOpenAIModel(name string, cfg ClientConfig, opts ...option.RequestOption) *OpenAIModel {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 2
	}
	opts = append(opts,
		option.WithHTTPClient(cfg.httpClient()),
		option.WithMaxRetries(maxRetries),
	)

	return &OpenAIModel{
		name:   name,
		model:  cfg.Model,
		params: cfg.Params.withDefaults(),
		client: openai.NewClient(opts...),
		logger: cfg.logger().With("provider", name, "model", cfg.Model),
	}
}

// NewOpenAIModel creates a model backed by the OpenAI API.
func NewOpenAIModel(cfg ClientConfig) *OpenAIModel {
	opts := []option.RequestOption{option.WithAPIKey(cfg.Credentials.APIKey)}
	if cfg.Credentials.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.Credentials.BaseURL))
	}
	return newOpenAIModel(OpenAIName, cfg, opts...)
}

// NewAzureModel creates a model backed by an Azure OpenAI deployment. The
// configured model is the deployment name.
func NewAzureModel(cfg ClientConfig) *OpenAIModel {
	version := cfg.Credentials.APIVersion
	if version == "" {
		version = defaultAzureAPIVersion
	}
	return newOpenAIModel(AzureName, cfg,
		azure.WithEndpoint(cfg.Credentials.Endpoint, version),
		azure.WithAPIKey(cfg.Credentials.APIKey),
	)
}

// NewGoogleModel creates a Gemini model through its OpenAI-compatible API.
func NewGoogleModel(cfg ClientConfig) *OpenAIModel {
	baseURL := cfg.Credentials.BaseURL
	if baseURL == "" {
		baseURL = GeminiOpenAIBaseURL
	}
	return newOpenAIModel(GoogleName, cfg,
		option.WithAPIKey(cfg.Credentials.APIKey),
		option.WithBaseURL(baseURL),
	)
}

// Name returns the provider identifier.
func (m *OpenAIModel) Name() string {
	return m.name
}

// GetCompletion sends one chat completion. Extraction requests a JSON
// schema response format.
func (m *OpenAIModel) GetCompletion(ctx context.Context, mode OperationMode, args *Args) (*Response, error) {
	msgs, err := buildMessages(mode, args)
	if err != nil {
		return nil, err
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(m.model),
		Messages:    toOpenAIMessages(msgs),
		MaxTokens:   openai.Int(int64(m.params.MaxTokens)),
		Temperature: openai.Float(m.params.Temperature),
		TopP:        openai.Float(m.params.TopP),
	}
	if m.params.FrequencyPenalty != 0 {
		params.FrequencyPenalty = openai.Float(m.params.FrequencyPenalty)
	}
	if m.params.PresencePenalty != 0 {
		params.PresencePenalty = openai.Float(m.params.PresencePenalty)
	}
	if m.params.Logprobs {
		params.Logprobs = openai.Bool(true)
	}
	if mode == ModeExtraction {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "extraction",
					Schema: args.Schema,
				},
			},
		}
	}

	start := time.Now()
	completion, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, mapOpenAIError(m.name, err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("%s: no choices in response", m.name)
	}

	choice := completion.Choices[0]
	resp := &Response{
		InputTokens:  int(completion.Usage.PromptTokens),
		OutputTokens: int(completion.Usage.CompletionTokens),
		Model:        completion.Model,
	}
	if m.params.Logprobs {
		for _, lp := range choice.Logprobs.Content {
			resp.Logprobs = append(resp.Logprobs, TokenLogprob{Token: lp.Token, Logprob: lp.Logprob})
		}
	}

	m.logger.Debug("completion received",
		"mode", mode,
		"input_tokens", resp.InputTokens,
		"output_tokens", resp.OutputTokens,
		"duration", time.Since(start))
	return finishResponse(mode, choice.Message.Content, resp)
}

func toOpenAIMessages(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == "system" {
			out = append(out, openai.SystemMessage(m.Content))
			continue
		}
		if len(m.Images) == 0 {
			out = append(out, openai.UserMessage(m.Content))
			continue
		}

		parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(m.Images)+1)
		for _, img := range m.Images {
			parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL: dataURL(img),
			}))
		}
		if m.Content != "" {
			parts = append(parts, openai.TextContentPart(m.Content))
		}
		out = append(out, openai.UserMessage(parts))
	}
	return out
}

var _ Model = (*OpenAIModel)(nil)
