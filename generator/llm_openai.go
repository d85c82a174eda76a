package generator

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAILLM implements LLMClient using the official openai-go SDK (chat completions).
// DeepSeek and other compatible endpoints are reached through BaseURL.
type OpenAILLM struct {
	Provider string
	Model    string
	client   openai.Client
}

func NewOpenAILLMFromConfig(cfg *LLMSettings) (*OpenAILLM, error) {
	if cfg == nil {
		return nil, errors.New("llm config is nil")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s api key missing; provide llm.api_key", cfg.Provider)
	}
	if cfg.Model == "" {
		return nil, errors.New("llm model is required")
	}
	// 重试由 Client 统一处理，SDK 自带重试关闭。
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	provider := cfg.Provider
	if provider == "" {
		provider = "openai"
	}
	return &OpenAILLM{Provider: provider, Model: cfg.Model, client: openai.NewClient(opts...)}, nil
}

func (o *OpenAILLM) Complete(ctx context.Context, prompt Prompt) (string, error) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(prompt.Messages))
	for _, m := range prompt.Messages {
		switch m.Role {
		case RoleSystem:
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case RoleAssistant:
			msgs = append(msgs, openai.ChatCompletionMessageParamOfAssistant(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(o.Model),
		Messages:    msgs,
		Temperature: openai.Float(prompt.Temperature),
	}
	if prompt.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(prompt.MaxTokens))
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", statusError(o.Provider, apiErr.StatusCode, apiErr.Error())
		}
		return "", fmt.Errorf("%s: %w", o.Provider, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: empty choices: %w", o.Provider, ErrTransient)
	}
	return resp.Choices[0].Message.Content, nil
}
