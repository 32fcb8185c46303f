// Package llm provides chat completion clients for the supported providers.
package llm

import (
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/paperflow/internal/service"
)

// Config holds LLM client configuration. Endpoint overrides the provider
// default, mainly for tests.
type Config struct {
	Provider          string
	APIKey            string
	Model             string
	Endpoint          string
	Temperature       float64
	MaxTokens         int
	RequestsPerMinute int
	Timeout           time.Duration
}

// NewClient creates a chat completion client for the configured provider.
// When RequestsPerMinute is set the client is wrapped with a token bucket
// limiter.
func NewClient(cfg Config) (service.LLMClient, error) {
	var client service.LLMClient
	var err error

	switch strings.ToLower(cfg.Provider) {
	case "openai":
		client, err = newOpenAIClient(cfg)
	case "anthropic":
		client, err = newAnthropicClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.RequestsPerMinute > 0 {
		client = newRateLimitedClient(client, cfg.RequestsPerMinute)
	}
	return client, nil
}

// CleanMarkdownWrapper strips a markdown code fence around a JSON payload.
// Models add these despite instructions not to.
func CleanMarkdownWrapper(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		if idx := strings.Index(content, "\n"); idx != -1 {
			content = content[idx+1:]
		}
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	}
	return strings.TrimSpace(content)
}
