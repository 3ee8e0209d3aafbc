// File path: internal/llm/llm.go
package llm

import (
	"errors"
	"os"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/agrisense/farmchat/internal/common"
	"github.com/agrisense/farmchat/internal/llm/providers"
)

type Message = providers.Message

type Provider = providers.Provider

// NewProvider selects a backend from the environment: OpenAI when an API key
// is present, Ollama when an endpoint is configured, otherwise the offline
// stub.
func NewProvider() Provider {
	logger := common.Logger()
	if apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); apiKey != "" {
		opts := []option.RequestOption{option.WithAPIKey(apiKey)}
		if timeoutStr := strings.TrimSpace(os.Getenv("OPENAI_HTTP_TIMEOUT")); timeoutStr != "" {
			timeout, err := time.ParseDuration(timeoutStr)
			if err != nil {
				logger.Warn("llm: invalid OPENAI_HTTP_TIMEOUT, using default", "value", timeoutStr, "error", err)
			} else {
				opts = append(opts, option.WithRequestTimeout(timeout))
			}
		}
		if endpoint := strings.TrimSpace(os.Getenv("OPENAI_ENDPOINT")); endpoint != "" {
			logger.Info("llm: configuring OpenAI client with custom endpoint", "endpoint", endpoint)
			opts = append(opts, option.WithBaseURL(endpoint))
		}
		logger.Info("llm: OpenAI provider selected")
		return providers.NewOpenAIProvider(openai.NewClient(opts...))
	}
	if endpoint := strings.TrimSpace(os.Getenv("OLLAMA_ENDPOINT")); endpoint != "" {
		timeout := time.Duration(0)
		if timeoutStr := strings.TrimSpace(os.Getenv("OLLAMA_HTTP_TIMEOUT")); timeoutStr != "" {
			if parsed, err := time.ParseDuration(timeoutStr); err == nil {
				timeout = parsed
			} else {
				logger.Warn("llm: invalid OLLAMA_HTTP_TIMEOUT, using default", "value", timeoutStr, "error", err)
			}
		}
		logger.Info("llm: ollama provider selected")
		return providers.NewOllamaProvider(endpoint, timeout)
	}
	logger.Warn("llm: no OPENAI_API_KEY or OLLAMA_ENDPOINT set; falling back to local provider")
	return providers.NewLocalProvider()
}

func NormalizeMessages(messages []Message) ([]Message, error) {
	if len(messages) == 0 {
		return nil, errors.New("no messages provided")
	}
	for i := range messages {
		messages[i].Role = strings.ToLower(messages[i].Role)
	}
	return messages, nil
}
