package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	OllamaDefaultBaseURL = "http://localhost:11434"
	ollamaChatEndpoint   = "/api/chat"
)

// OllamaLLM 通过本地 Ollama 的 /api/chat 接口生成文本，按角色发送消息。
type OllamaLLM struct {
	BaseURL string
	Model   string
	Client  *http.Client
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

func NewOllamaLLM(cfg *LLMSettings) (*OllamaLLM, error) {
	if cfg == nil || cfg.Model == "" {
		return nil, fmt.Errorf("ollama: llm model is required")
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = OllamaDefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OllamaLLM{
		BaseURL: base,
		Model:   cfg.Model,
		Client:  &http.Client{Timeout: timeout},
	}, nil
}

func (o *OllamaLLM) Complete(ctx context.Context, prompt Prompt) (string, error) {
	msgs := make([]ollamaMessage, 0, len(prompt.Messages))
	for _, m := range prompt.Messages {
		msgs = append(msgs, ollamaMessage{Role: string(m.Role), Content: m.Content})
	}
	payload, err := json.Marshal(ollamaChatRequest{
		Model:    o.Model,
		Messages: msgs,
		Stream:   false,
		Options: &ollamaOptions{
			Temperature: prompt.Temperature,
			NumPredict:  prompt.MaxTokens,
		},
	})
	if err != nil {
		return "", fmt.Errorf("ollama: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.BaseURL+ollamaChatEndpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("ollama: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("ollama: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", statusError("ollama", resp.StatusCode, string(body))
	}
	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("ollama: malformed response: %w", ErrTransient)
	}
	return textValue(gjson.GetBytes(body, "message.content")), nil
}
