package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
)

const (
	OpenRouterName    = "openrouter"
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
)

// OpenRouterModel implements Model against the OpenRouter chat API.
type OpenRouterModel struct {
	apiKey     string
	baseURL    string
	model      string
	params     LLMParams
	client     *http.Client
	maxRetries int
	retryDelay time.Duration
	logger     *slog.Logger
}

// NewOpenRouterModel creates a new OpenRouter model.
func NewOpenRouterModel(cfg ClientConfig) *OpenRouterModel {
	baseURL := cfg.Credentials.BaseURL
	if baseURL == "" {
		baseURL = OpenRouterBaseURL
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	return &OpenRouterModel{
		apiKey:     cfg.Credentials.APIKey,
		baseURL:    baseURL,
		model:      cfg.Model,
		params:     cfg.Params.withDefaults(),
		client:     cfg.httpClient(),
		maxRetries: maxRetries,
		retryDelay: 500 * time.Millisecond,
		logger:     cfg.logger().With("provider", OpenRouterName, "model", cfg.Model),
	}
}

// Name returns the provider identifier.
func (c *OpenRouterModel) Name() string {
	return OpenRouterName
}

// GetCompletion sends one chat request. Extraction uses a json_schema
// response format, except for Anthropic models where OpenRouter may route to
// backends that reject it; those get the schema in the prompt instead.
func (c *OpenRouterModel) GetCompletion(ctx context.Context, mode OperationMode, args *Args) (*Response, error) {
	msgs, err := buildMessages(mode, args)
	if err != nil {
		return nil, err
	}
	requestID := uuid.New().String()

	orReq := openRouterRequest{
		Model:       c.model,
		Temperature: c.params.Temperature,
		TopP:        c.params.TopP,
		MaxTokens:   c.params.MaxTokens,
		Logprobs:    c.params.Logprobs,
	}

	if mode == ModeExtraction {
		if isAnthropicModel(c.model) {
			msgs[0].Content += "\n\n" + schemaInstruction(sanitizeSchemaForAnthropic(args.Schema))
		} else {
			wrapper, err := json.Marshal(map[string]any{
				"name":   "extraction",
				"schema": args.Schema,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to marshal schema: %w", err)
			}
			orReq.ResponseFormat = &openRouterResponseFormat{Type: "json_schema", JSONSchema: wrapper}
		}
	}

	orReq.Messages = openRouterMessages(msgs)

	start := time.Now()
	orResp, err := c.post(ctx, &orReq)
	if err != nil {
		return nil, err
	}
	if orResp.Error != nil {
		return nil, fmt.Errorf("%s: %s", OpenRouterName, orResp.Error.Message)
	}
	if len(orResp.Choices) == 0 {
		return nil, fmt.Errorf("%s: no choices in response", OpenRouterName)
	}

	choice := orResp.Choices[0]
	content, err := messageText(choice.Message.Content)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		InputTokens:  orResp.Usage.PromptTokens,
		OutputTokens: orResp.Usage.CompletionTokens,
		Model:        orResp.Model,
	}
	if choice.Logprobs != nil {
		for _, lp := range choice.Logprobs.Content {
			resp.Logprobs = append(resp.Logprobs, TokenLogprob{Token: lp.Token, Logprob: lp.Logprob})
		}
	}

	c.logger.Debug("completion received",
		"request_id", requestID,
		"mode", mode,
		"input_tokens", resp.InputTokens,
		"output_tokens", resp.OutputTokens,
		"duration", time.Since(start))
	return finishResponse(mode, content, resp)
}

func openRouterMessages(msgs []Message) []openRouterMessage {
	out := make([]openRouterMessage, 0, len(msgs))
	for _, m := range msgs {
		if len(m.Images) == 0 {
			out = append(out, openRouterMessage{Role: m.Role, Content: m.Content})
			continue
		}
		parts := make([]openRouterContent, 0, len(m.Images)+1)
		for _, img := range m.Images {
			parts = append(parts, openRouterContent{Type: "image_url", ImageURL: &openRouterImageURL{URL: dataURL(img)}})
		}
		if m.Content != "" {
			parts = append(parts, openRouterContent{Type: "text", Text: m.Content})
		}
		out = append(out, openRouterMessage{Role: m.Role, Content: parts})
	}
	return out
}

// messageText flattens a reply's content, which OpenRouter sends either as a
// string or as structured parts.
func messageText(content any) (string, error) {
	switch v := content.(type) {
	case string:
		return v, nil
	case nil:
		return "", nil
	}
	b, err := json.Marshal(content)
	if err != nil {
		return "", fmt.Errorf("%s: failed to marshal content: %w", OpenRouterName, err)
	}
	return string(b), nil
}

// post sends orReq to the chat endpoint, retrying 413, 422, 429 and 5xx
// responses with backoff. Each retry marks the last user message with a
// nonce so an upstream cache cannot replay a bad answer.
func (c *OpenRouterModel) post(ctx context.Context, orReq *openRouterRequest) (*openRouterResponse, error) {
	resp, err := retry.DoWithData(
		func() (*openRouterResponse, error) {
			return c.send(ctx, orReq)
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.maxRetries)),
		retry.Delay(c.retryDelay),
		retry.MaxDelay(10*time.Second),
		retry.MaxJitter(c.retryDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Debug("request failed, retrying", "attempt", n+1, "error", err)
			addNonce(orReq, int(n)+1)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", OpenRouterName, err)
	}
	return resp, nil
}

// send makes one attempt. Errors that a retry cannot fix are marked
// unrecoverable.
func (c *OpenRouterModel) send(ctx context.Context, orReq *openRouterRequest) (*openRouterResponse, error) {
	body, err := json.Marshal(orReq)
	if err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("failed to marshal request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("HTTP-Referer", "https://github.com/jackzampolin/folio")
	req.Header.Set("X-Title", "Folio")

	httpResp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, retry.Unrecoverable(ctx.Err())
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()
	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch code := httpResp.StatusCode; {
	case code == http.StatusOK:
	case code == http.StatusTooManyRequests:
		return nil, &RateLimitError{
			Message:    fmt.Sprintf("rate limited: %s", raw),
			RetryAfter: parseRetryAfter(httpResp.Header.Get("Retry-After")),
			StatusCode: code,
		}
	case code == http.StatusRequestEntityTooLarge, code == http.StatusUnprocessableEntity, code >= 500:
		return nil, fmt.Errorf("status %d: %s", code, raw)
	default:
		return nil, retry.Unrecoverable(fmt.Errorf("status %d: %s", code, raw))
	}

	var orResp openRouterResponse
	if err := json.Unmarshal(raw, &orResp); err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("failed to unmarshal response: %w", err))
	}
	return &orResp, nil
}

// addNonce appends a unique comment to the last user message.
func addNonce(req *openRouterRequest, attempt int) {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role != "user" {
			continue
		}
		comment := fmt.Sprintf("\n<!-- retry_%d_id: %s -->", attempt, uuid.New().String()[:16])
		switch content := req.Messages[i].Content.(type) {
		case string:
			req.Messages[i].Content = content + comment
		case []openRouterContent:
			req.Messages[i].Content = append(content, openRouterContent{Type: "text", Text: comment})
		}
		return
	}
}

var _ Model = (*OpenRouterModel)(nil)
