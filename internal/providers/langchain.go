package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/bedrock"
	"github.com/tmc/langchaingo/llms/ollama"
)

const (
	AnthropicName = "anthropic"
	BedrockName   = "bedrock"
	OllamaName    = "ollama"

	DefaultOllamaURL = "http://127.0.0.1:11434"
)

// LangchainModel adapts a langchaingo llms.Model to Model. Anthropic,
// Bedrock, Ollama and text-only Mistral requests go through it.
type LangchainModel struct {
	name   string
	model  string
	params LLMParams
	llm    llms.Model
	logger *slog.Logger
}

// NewAnthropicModel creates a Claude-backed model.
func NewAnthropicModel(cfg ClientConfig) (*LangchainModel, error) {
	opts := []anthropic.Option{
		anthropic.WithModel(cfg.Model),
		anthropic.WithToken(cfg.Credentials.APIKey),
	}
	if cfg.Credentials.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.Credentials.BaseURL))
	}
	llm, err := anthropic.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create anthropic client: %w", err)
	}
	return NewLangchainModel(AnthropicName, cfg, llm), nil
}

// NewBedrockModel creates a model served by Amazon Bedrock. Static keys in
// the credentials take precedence over the default AWS credential chain.
// BaseURL overrides the runtime endpoint.
func NewBedrockModel(cfg ClientConfig) (*LangchainModel, error) {
	creds := cfg.Credentials
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(creds.Region),
		awsconfig.WithHTTPClient(cfg.httpClient()),
	}
	if cfg.MaxRetries > 0 {
		loadOpts = append(loadOpts, awsconfig.WithRetryMaxAttempts(cfg.MaxRetries+1))
	}
	if creds.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken)))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := bedrockruntime.NewFromConfig(awsCfg, func(o *bedrockruntime.Options) {
		if creds.BaseURL != "" {
			o.BaseEndpoint = aws.String(creds.BaseURL)
		}
	})
	llm, err := bedrock.New(bedrock.WithClient(client), bedrock.WithModel(cfg.Model))
	if err != nil {
		return nil, fmt.Errorf("failed to create bedrock client: %w", err)
	}
	return NewLangchainModel(BedrockName, cfg, llm), nil
}

// NewOllamaModel creates a model served by a local Ollama instance.
func NewOllamaModel(cfg ClientConfig) (*LangchainModel, error) {
	host := cfg.Credentials.BaseURL
	if host == "" {
		host = DefaultOllamaURL
	}
	llm, err := ollama.New(
		ollama.WithModel(cfg.Model),
		ollama.WithServerURL(host),
		ollama.WithHTTPClient(cfg.httpClient()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama client: %w", err)
	}
	return NewLangchainModel(OllamaName, cfg, llm), nil
}

// NewLangchainModel wraps an already constructed llms.Model.
func NewLangchainModel(name string, cfg ClientConfig, llm llms.Model) *LangchainModel {
	return &LangchainModel{
		name:   name,
		model:  cfg.Model,
		params: cfg.Params.withDefaults(),
		llm:    llm,
		logger: cfg.logger().With("provider", name, "model", cfg.Model),
	}
}

// Name returns the provider identifier.
func (m *LangchainModel) Name() string {
	return m.name
}

// GetCompletion runs one request. These backends have no schema-constrained
// output, so extraction carries the schema in the system prompt.
func (m *LangchainModel) GetCompletion(ctx context.Context, mode OperationMode, args *Args) (*Response, error) {
	msgs, err := buildMessages(mode, args)
	if err != nil {
		return nil, err
	}
	// Bedrock serves Claude through the same message format.
	claude := m.name == AnthropicName || m.name == BedrockName
	if mode == ModeExtraction {
		schema := args.Schema
		if claude {
			schema = sanitizeSchemaForAnthropic(schema)
		}
		msgs[0].Content += "\n\n" + schemaInstruction(schema)
	}

	callOpts := []llms.CallOption{
		llms.WithMaxTokens(m.params.MaxTokens),
		llms.WithTemperature(m.params.Temperature),
	}
	// Claude rejects temperature and top_p together.
	if !claude {
		callOpts = append(callOpts, llms.WithTopP(m.params.TopP))
	}
	if mode == ModeExtraction && !claude {
		callOpts = append(callOpts, llms.WithJSONMode())
	}

	start := time.Now()
	completion, err := m.llm.GenerateContent(ctx, m.toMessageContent(msgs), callOpts...)
	if err != nil {
		return nil, fmt.Errorf("%s: error getting response from LLM: %w", m.name, err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("%s: no choices in response", m.name)
	}

	choice := completion.Choices[0]
	resp := &Response{Model: m.model}
	resp.InputTokens, resp.OutputTokens = tokenUsage(choice.GenerationInfo)

	m.logger.Debug("completion received",
		"mode", mode,
		"input_tokens", resp.InputTokens,
		"output_tokens", resp.OutputTokens,
		"duration", time.Since(start))
	return finishResponse(mode, choice.Content, resp)
}

// toMessageContent folds every system message into one leading system
// message; Bedrock rejects more than one.
func (m *LangchainModel) toMessageContent(msgs []Message) []llms.MessageContent {
	var system []string
	out := make([]llms.MessageContent, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Role == "system" {
			system = append(system, msg.Content)
			continue
		}

		parts := make([]llms.ContentPart, 0, len(msg.Images)+1)
		for _, img := range msg.Images {
			parts = append(parts, llms.BinaryPart(imageMIME(img), img))
		}
		if msg.Content != "" {
			parts = append(parts, llms.TextPart(msg.Content))
		}
		out = append(out, llms.MessageContent{Role: llms.ChatMessageTypeHuman, Parts: parts})
	}
	if len(system) == 0 {
		return out
	}
	return append([]llms.MessageContent{{
		Role:  llms.ChatMessageTypeSystem,
		Parts: []llms.ContentPart{llms.TextPart(strings.Join(system, "\n\n"))},
	}}, out...)
}

// tokenUsage reads token counts out of generation info. Each langchaingo
// backend reports them under different keys; Mistral nests them in "usage".
func tokenUsage(info map[string]any) (in, out int) {
	in = firstInt(info, "InputTokens", "input_tokens", "PromptTokens")
	out = firstInt(info, "OutputTokens", "output_tokens", "CompletionTokens")
	if in != 0 || out != 0 {
		return in, out
	}
	usage, ok := info["usage"]
	if !ok {
		return 0, 0
	}
	raw, err := json.Marshal(usage)
	if err != nil {
		return 0, 0
	}
	var u struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	}
	if err := json.Unmarshal(raw, &u); err != nil {
		return 0, 0
	}
	return u.PromptTokens, u.CompletionTokens
}

func firstInt(info map[string]any, keys ...string) int {
	for _, k := range keys {
		if n := genInfoInt(info, k); n != 0 {
			return n
		}
	}
	return 0
}

func genInfoInt(info map[string]any, key string) int {
	switch v := info[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

var _ Model = (*LangchainModel)(nil)
