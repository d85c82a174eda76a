package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const GeminiDefaultBaseURL = "https://generativelanguage.googleapis.com"

// GeminiLLM 调用 generateContent，整段提示拼接成一条用户文本发送。
type GeminiLLM struct {
	BaseURL string
	Model   string
	APIKey  string
	Client  *http.Client
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

func NewGeminiLLM(cfg *LLMSettings) (*GeminiLLM, error) {
	if cfg == nil || cfg.Model == "" {
		return nil, fmt.Errorf("gemini: llm model is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key missing; provide llm.api_key")
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = GeminiDefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &GeminiLLM{
		BaseURL: base,
		Model:   cfg.Model,
		APIKey:  cfg.APIKey,
		Client:  &http.Client{Timeout: timeout},
	}, nil
}

func (g *GeminiLLM) Complete(ctx context.Context, prompt Prompt) (string, error) {
	payload, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: prompt.Flatten()}},
		}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     prompt.Temperature,
			MaxOutputTokens: prompt.MaxTokens,
		},
	})
	if err != nil {
		return "", fmt.Errorf("gemini: marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", g.BaseURL, url.PathEscape(g.Model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("gemini: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.APIKey)

	resp, err := g.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("gemini: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", statusError("gemini", resp.StatusCode, string(body))
	}
	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("gemini: malformed response: %w", ErrTransient)
	}

	// 多个 part 依次拼接
	var sb strings.Builder
	gjson.GetBytes(body, "candidates.0.content.parts.#.text").ForEach(func(_, v gjson.Result) bool {
		sb.WriteString(v.String())
		return true
	})
	if sb.Len() == 0 {
		if reason := gjson.GetBytes(body, "promptFeedback.blockReason").String(); reason != "" {
			return "", fmt.Errorf("gemini: prompt blocked (%s): %w", reason, ErrTerminal)
		}
	}
	return sb.String(), nil
}
