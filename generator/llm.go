package generator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
)

// LLMClient 抽象大模型客户端，便于替换/Mock。
// 返回的 error 应尽量包装 ErrRateLimited / ErrTransient / ErrTerminal 之一，
// 未包装的错误按瞬时失败处理。
type LLMClient interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

// LLMSettings 提供给具体实现的基础配置。
type LLMSettings struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
}

var (
	ErrRateLimited = errors.New("rate limited")
	ErrTransient   = errors.New("transient failure")
	ErrTerminal    = errors.New("terminal failure")
)

// statusError 按 HTTP 状态码归类后端错误。
func statusError(provider string, status int, body string) error {
	if len(body) > 300 {
		body = body[:300]
	}
	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%s: status %d: %w: %s", provider, status, ErrRateLimited, body)
	case status >= 500, status == http.StatusRequestTimeout:
		return fmt.Errorf("%s: status %d: %w: %s", provider, status, ErrTransient, body)
	default:
		return fmt.Errorf("%s: status %d: %w: %s", provider, status, ErrTerminal, body)
	}
}

// classify 把一次失败映射到结果三态，第二个返回值表示是否走限流退避曲线。
func classify(err error) (Outcome, bool) {
	switch {
	case errors.Is(err, ErrRateLimited):
		return RetryableFailure, true
	case errors.Is(err, ErrTerminal), errors.Is(err, context.Canceled):
		return TerminalFailure, false
	}
	// 网络错误、超时、空响应等一律视为瞬时失败
	return RetryableFailure, false
}

// textValue 从后端 JSON 字段里取文本；若模型把内容包成了对象或数组，
// 取遇到的第一个字符串值。
func textValue(r gjson.Result) string {
	switch {
	case r.Type == gjson.String:
		return r.String()
	case r.IsObject(), r.IsArray():
		var found string
		r.ForEach(func(_, v gjson.Result) bool {
			found = textValue(v)
			return found == ""
		})
		return found
	default:
		return ""
	}
}
