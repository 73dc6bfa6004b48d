package provider

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultOpenAIModel is used when no chat model is configured.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAIProvider implements text generation against any OpenAI-compatible
// chat completions endpoint.
type OpenAIProvider struct {
	client *openai.Client
	model  string
	retry  retryPolicy
}

// OpenAIConfig holds configuration for the OpenAI provider.
type OpenAIConfig struct {
	APIKey        string
	BaseURL       string
	Model         string
	Timeout       time.Duration
	MaxRetries    int // zero disables retrying
	InitialDelay  time.Duration
	BackoffFactor float64
	HTTPClient    *http.Client
}

// NewOpenAIProvider creates a provider from configuration.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	config := openai.DefaultConfig(cfg.APIKey)

	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	switch {
	case cfg.HTTPClient != nil:
		config.HTTPClient = cfg.HTTPClient
	case cfg.Timeout > 0:
		config.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	default:
		config.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}

	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(config),
		model:  model,
		retry: retryPolicy{
			maxRetries:    cfg.MaxRetries,
			initialDelay:  cfg.InitialDelay,
			backoffFactor: cfg.BackoffFactor,
		}.withDefaults(),
	}
}

// Model returns the default chat model.
func (p *OpenAIProvider) Model() string { return p.model }

// ChatCompletion generates a chat completion.
func (p *OpenAIProvider) ChatCompletion(ctx context.Context, req ChatCompletionRequest) (ChatCompletionResponse, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages()))
	for _, m := range req.Messages() {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    m.Role(),
			Content: m.Content(),
		})
	}

	model := req.Model()
	if model == "" {
		model = p.model
	}

	openaiReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	}
	if req.MaxTokens() > 0 {
		openaiReq.MaxTokens = req.MaxTokens()
	}
	if req.Temperature() > 0 {
		openaiReq.Temperature = float32(req.Temperature())
	}

	var resp openai.ChatCompletionResponse
	err := p.retry.do(ctx, func() error {
		var callErr error
		resp, callErr = p.client.CreateChatCompletion(ctx, openaiReq)
		return callErr
	}, isRetryableOpenAI)
	if err != nil {
		return ChatCompletionResponse{}, wrapOpenAIError(err)
	}

	if len(resp.Choices) == 0 {
		return ChatCompletionResponse{}, NewProviderError("chat_completion", 0, "no choices in response", nil)
	}

	var usage *Usage
	if resp.Usage.TotalTokens > 0 || resp.Usage.PromptTokens > 0 {
		usage = NewUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens)
	}

	served := resp.Model
	if served == "" {
		served = model
	}

	return NewChatCompletionResponse(
		resp.Choices[0].Message.Content,
		served,
		string(resp.Choices[0].FinishReason),
		usage,
	), nil
}

// isRetryableOpenAI determines if an error should be retried.
func isRetryableOpenAI(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == 0 || retryableStatus(reqErr.HTTPStatusCode)
	}

	return false
}

// wrapOpenAIError wraps an OpenAI error into a ProviderError.
func wrapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return NewProviderError("chat_completion", apiErr.HTTPStatusCode, apiErr.Message, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return NewProviderError("chat_completion", reqErr.HTTPStatusCode, "request failed", err)
	}

	return NewProviderError("chat_completion", 0, "chat completion failed", err)
}

var _ TextGenerator = (*OpenAIProvider)(nil)
