// File path: internal/llm/providers/ollama.go
package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/agrisense/farmchat/internal/common"
)

// OllamaProvider talks to a local Ollama server over its JSON HTTP API.
type OllamaProvider struct {
	httpClient *http.Client
	endpoint   string
	chatModel  string
	embedModel string
}

func NewOllamaProvider(endpoint string, timeout time.Duration) *OllamaProvider {
	chatModel := os.Getenv("OLLAMA_CHAT_MODEL")
	if chatModel == "" {
		chatModel = "gemma:7b"
	}
	embedModel := os.Getenv("OLLAMA_EMBED_MODEL")
	if embedModel == "" {
		embedModel = "nomic-embed-text"
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	logger := common.Logger()
	logger.Info("llm: ollama provider configured", "endpoint", endpoint, "chat_model", chatModel, "embed_model", embedModel)
	return &OllamaProvider{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   strings.TrimRight(endpoint, "/"),
		chatModel:  chatModel,
		embedModel: embedModel,
	}
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResponse struct {
	Message ollamaChatMessage `json:"message"`
}

func (o *OllamaProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("no messages provided")
	}
	req := ollamaChatRequest{Model: o.chatModel, Stream: false}
	for _, msg := range messages {
		req.Messages = append(req.Messages, ollamaChatMessage{Role: msg.Role, Content: msg.Content})
	}
	var resp ollamaChatResponse
	if err := o.post(ctx, "/api/chat", req, &resp); err != nil {
		common.Logger().Error("llm: ollama chat failed", "error", err)
		return "", err
	}
	if strings.TrimSpace(resp.Message.Content) == "" {
		return "", fmt.Errorf("empty ollama response")
	}
	return resp.Message.Content, nil
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float64 `json:"embedding"`
}

func (o *OllamaProvider) Embed(ctx context.Context, input []string) ([][]float32, error) {
	if len(input) == 0 {
		return nil, nil
	}
	vectors := make([][]float32, 0, len(input))
	for _, text := range input {
		var resp ollamaEmbedResponse
		if err := o.post(ctx, "/api/embeddings", ollamaEmbedRequest{Model: o.embedModel, Prompt: text}, &resp); err != nil {
			common.Logger().Error("llm: ollama embedding failed", "error", err)
			return nil, err
		}
		vector := make([]float32, len(resp.Embedding))
		for i, v := range resp.Embedding {
			vector[i] = float32(v)
		}
		vectors = append(vectors, vector)
	}
	return vectors, nil
}

func (o *OllamaProvider) Name() string {
	return "ollama"
}

func (o *OllamaProvider) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("ollama %s failed: %s", path, strings.TrimSpace(string(payload)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
