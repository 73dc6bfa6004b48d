package provider

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Provider kinds accepted by NewFromEndpoint.
const (
	KindOpenAI    = "openai"
	KindAnthropic = "anthropic"
)

// Endpoint describes a configured generation backend.
type Endpoint struct {
	Kind          string
	BaseURL       string
	Model         string
	APIKey        string
	Timeout       time.Duration
	MaxRetries    int // zero disables retrying
	InitialDelay  time.Duration
	BackoffFactor float64
	HTTPClient    *http.Client
}

// NewFromEndpoint builds a TextGenerator for the endpoint's provider kind.
// An empty kind means an OpenAI-compatible endpoint.
func NewFromEndpoint(e Endpoint) (TextGenerator, error) {
	switch strings.ToLower(strings.TrimSpace(e.Kind)) {
	case "", KindOpenAI:
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:        e.APIKey,
			BaseURL:       e.BaseURL,
			Model:         e.Model,
			Timeout:       e.Timeout,
			MaxRetries:    e.MaxRetries,
			InitialDelay:  e.InitialDelay,
			BackoffFactor: e.BackoffFactor,
			HTTPClient:    e.HTTPClient,
		}), nil
	case KindAnthropic:
		return NewAnthropicProvider(AnthropicConfig{
			APIKey:        e.APIKey,
			BaseURL:       e.BaseURL,
			Model:         e.Model,
			Timeout:       e.Timeout,
			MaxRetries:    e.MaxRetries,
			InitialDelay:  e.InitialDelay,
			BackoffFactor: e.BackoffFactor,
			HTTPClient:    e.HTTPClient,
		}), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, e.Kind)
	}
}
