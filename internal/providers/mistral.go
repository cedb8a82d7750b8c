package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3/option"
	"github.com/tmc/langchaingo/llms/mistral"
)

const (
	MistralName = "mistral"

	// DefaultMistralURL is the API root; chat lives under /v1.
	DefaultMistralURL = "https://api.mistral.ai"
)

// MistralModel routes Mistral requests by content. The langchaingo client
// only sends text parts, so anything carrying images goes through the
// OpenAI-compatible chat API instead.
type MistralModel struct {
	vision *OpenAIModel
	text   *LangchainModel
}

// NewMistralModel creates a Mistral-backed model. Credentials.BaseURL is the
// API root, without /v1.
func NewMistralModel(cfg ClientConfig) (*MistralModel, error) {
	root := strings.TrimSuffix(cfg.Credentials.BaseURL, "/")
	if root == "" {
		root = DefaultMistralURL
	}

	opts := []mistral.Option{
		mistral.WithModel(cfg.Model),
		mistral.WithAPIKey(cfg.Credentials.APIKey),
		mistral.WithEndpoint(root),
	}
	if cfg.MaxRetries > 0 {
		opts = append(opts, mistral.WithMaxRetries(cfg.MaxRetries))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, mistral.WithTimeout(cfg.Timeout))
	}
	llm, err := mistral.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create mistral client: %w", err)
	}

	return &MistralModel{
		vision: newOpenAIModel(MistralName, cfg,
			option.WithAPIKey(cfg.Credentials.APIKey),
			option.WithBaseURL(root+"/v1/"),
		),
		text: NewLangchainModel(MistralName, cfg, llm),
	}, nil
}

// Name returns the provider identifier.
func (m *MistralModel) Name() string {
	return MistralName
}

// GetCompletion sends text-only extraction through langchaingo and every
// request with images through the chat completions API.
func (m *MistralModel) GetCompletion(ctx context.Context, mode OperationMode, args *Args) (*Response, error) {
	if mode == ModeExtraction && args != nil && len(args.Input.Images) == 0 {
		return m.text.GetCompletion(ctx, mode, args)
	}
	return m.vision.GetCompletion(ctx, mode, args)
}

var _ Model = (*MistralModel)(nil)
