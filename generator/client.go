package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"

	"srs_generator/logger"
	"srs_generator/metrics"
	"srs_generator/tracing"
)

// RetryPolicy 控制 Client 的重试次数与退避曲线。
type RetryPolicy struct {
	// MaxAttempts 为总尝试次数（含首次）。
	MaxAttempts int
	// 限流：BaseDelay * 2^(n-1)，不超过 MaxDelay。
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// 其他瞬时失败的固定等待。
	FlatDelay time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		MaxDelay:    16 * time.Second,
		FlatDelay:   time.Second,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	if p.FlatDelay <= 0 {
		p.FlatDelay = def.FlatDelay
	}
	return p
}

// stagedBackOff 实现 backoff.BackOff：限流走指数曲线，其余失败走固定间隔。
type stagedBackOff struct {
	policy      RetryPolicy
	failures    int
	rateLimited bool
}

func (b *stagedBackOff) NextBackOff() time.Duration {
	b.failures++
	if !b.rateLimited {
		return b.policy.FlatDelay
	}
	d := b.policy.BaseDelay
	for i := 1; i < b.failures && d < b.policy.MaxDelay; i++ {
		d *= 2
	}
	return min(d, b.policy.MaxDelay)
}

func (b *stagedBackOff) Reset() {
	b.failures = 0
	b.rateLimited = false
}

// ClientOptions 构造 Client 的参数；Provider/Model 仅用于日志和指标标签。
type ClientOptions struct {
	Provider string
	Model    string
	Policy   RetryPolicy
	Logger   *slog.Logger
}

// Client 在 LLMClient 之上叠加有界重试、日志、指标和追踪。
type Client struct {
	llm      LLMClient
	provider string
	model    string
	policy   RetryPolicy
	log      *slog.Logger
}

func NewClient(llm LLMClient, opts ClientOptions) (*Client, error) {
	if llm == nil {
		return nil, errors.New("llm client is required")
	}
	provider := opts.Provider
	if provider == "" {
		provider = "unknown"
	}
	return &Client{
		llm:      llm,
		provider: provider,
		model:    opts.Model,
		policy:   opts.Policy.withDefaults(),
		log:      logger.OrDiscard(opts.Logger).With("component", "llm", "provider", provider),
	}, nil
}

// Policy returns the effective retry policy.
func (c *Client) Policy() RetryPolicy {
	return c.policy
}

// Generate 发送 prompt，失败时按策略重试。永远不返回 error：
// 重试耗尽或遇到终止性失败时返回非 Success 的 Result，由调用方决定兜底。
func (c *Client) Generate(ctx context.Context, label string, prompt Prompt) Result {
	ctx, span := tracing.Start(ctx, "llm.generate",
		attribute.String("llm.label", label),
		attribute.String("llm.provider", c.provider),
		attribute.String("llm.model", c.model),
	)
	defer span.End()

	log := c.log.With("label", label)
	for i, m := range prompt.Messages {
		log.Debug("prompt block", "index", i, "role", m.Role, "content", m.Content)
	}

	// 上下文已取消时不发请求
	if err := ctx.Err(); err != nil {
		tracing.Fail(span, err)
		log.Error("llm generation skipped", "reason", err)
		return Result{Outcome: TerminalFailure, Reason: err.Error()}
	}

	bo := &stagedBackOff{policy: c.policy}
	attempts := 0
	last := Result{Outcome: RetryableFailure}

	op := func() (string, error) {
		attempts++
		log.Info("llm attempt", "attempt", attempts, "max_attempts", c.policy.MaxAttempts)

		start := time.Now()
		text, err := c.llm.Complete(ctx, prompt)
		metrics.LLMCallDuration.WithLabelValues(c.provider, c.model).Observe(time.Since(start).Seconds())

		if err == nil && strings.TrimSpace(text) == "" {
			err = fmt.Errorf("empty reply: %w", ErrTransient)
		}
		if err == nil {
			metrics.LLMCallTotal.WithLabelValues(c.provider, c.model, "success").Inc()
			return text, nil
		}

		outcome, rateLimited := classify(err)
		bo.rateLimited = rateLimited
		last = Result{Outcome: outcome, Reason: err.Error()}
		metrics.LLMCallTotal.WithLabelValues(c.provider, c.model, failureStatus(outcome, rateLimited)).Inc()
		log.Warn("llm attempt failed",
			"attempt", attempts,
			"outcome", outcome.String(),
			"rate_limited", rateLimited,
			"error", err,
		)
		if outcome == TerminalFailure {
			return "", backoff.Permanent(err)
		}
		return "", err
	}

	text, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(c.policy.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Info("llm retry scheduled", "after", next, "error", err)
		}),
	)
	if err != nil {
		last.Attempts = attempts
		tracing.Fail(span, err)
		log.Error("llm generation failed", "attempts", attempts, "outcome", last.Outcome.String(), "reason", last.Reason)
		return last
	}

	span.SetAttributes(attribute.Int("llm.attempts", attempts))
	log.Info("llm generation succeeded", "attempts", attempts, "chars", len(text))
	return Result{Outcome: Success, Text: text, Attempts: attempts}
}

func failureStatus(o Outcome, rateLimited bool) string {
	switch {
	case rateLimited:
		return "rate_limited"
	case o == TerminalFailure:
		return "terminal"
	default:
		return "transient"
	}
}
