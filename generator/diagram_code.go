package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"srs_generator/logger"
	"srs_generator/metrics"
	"srs_generator/srs"
	"srs_generator/tracing"
)

// ErrNoDiagramCode 表示在尝试上限内没有得到可用且通过校验的 PlantUML。
var ErrNoDiagramCode = errors.New("no usable diagram code")

// DiagramPrompts 图表类型到提示模板的静态注册表。
var DiagramPrompts = map[srs.DiagramKind]PromptID{
	srs.ActivityDiagram: PromptActivityDiagram,
	srs.SequenceDiagram: PromptSequenceDiagram,
	srs.ClassDiagram:    PromptClassDiagram,
}

const (
	diagramMaxTokens  = 2000
	validateMaxTokens = 500
)

var (
	plantUMLBlockRe = regexp.MustCompile(`(?s)@startuml.*?@enduml`)
	verdictValidRe  = regexp.MustCompile(`(?i)\bVALID\b`)
	verdictBadRe    = regexp.MustCompile(`(?i)\bINVALID\b`)
)

// ExtractPlantUML 返回文本中第一个完整的 @startuml ... @enduml 块。
func ExtractPlantUML(raw string) (string, bool) {
	block := plantUMLBlockRe.FindString(raw)
	if block == "" {
		return "", false
	}
	return strings.TrimSpace(block), true
}

// wellFormed 非空且起止标记成对。
func wellFormed(block string) bool {
	body := strings.TrimSuffix(strings.TrimPrefix(block, "@startuml"), "@enduml")
	if strings.TrimSpace(body) == "" {
		return false
	}
	return strings.Count(block, "@startuml") == strings.Count(block, "@enduml")
}

type verdict int

const (
	verdictUnknown verdict = iota
	verdictValid
	verdictInvalid
)

// parseVerdict：包含单词 INVALID 即无效；否则包含单词 VALID 才算有效。
func parseVerdict(text string) verdict {
	switch {
	case verdictBadRe.MatchString(text):
		return verdictInvalid
	case verdictValidRe.MatchString(text):
		return verdictValid
	default:
		return verdictUnknown
	}
}

type diagramPromptData struct {
	Kind        string
	Description string
	Prior       []priorSection
}

type validatePromptData struct {
	Kind string
	Code string
}

// DiagramOptions DiagramClient 的可调参数。
type DiagramOptions struct {
	// MaxAttempts 生成次数上限，默认 3。
	MaxAttempts int
	// Validate 是否让模型自检生成的代码。
	Validate bool
	// ValidateAttempts 校验请求次数上限；默认取客户端的 MaxAttempts。
	ValidateAttempts int
	Temperature      float64
	Logger           *slog.Logger
}

// DiagramClient 生成某一类图的 PlantUML 代码。
type DiagramClient struct {
	client  *Client
	prompts *Registry
	opts    DiagramOptions
	log     *slog.Logger
}

func NewDiagramClient(client *Client, prompts *Registry, opts DiagramOptions) (*DiagramClient, error) {
	if client == nil {
		return nil, errors.New("generation client is required")
	}
	if prompts == nil {
		prompts = NewRegistry()
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.ValidateAttempts <= 0 {
		opts.ValidateAttempts = client.Policy().MaxAttempts
	}
	return &DiagramClient{
		client:  client,
		prompts: prompts,
		opts:    opts,
		log:     logger.OrDiscard(opts.Logger).With("component", "diagram_code"),
	}, nil
}

// Generate 返回第一个可提取、结构完整且（启用时）通过校验的代码块。
func (d *DiagramClient) Generate(ctx context.Context, kind srs.DiagramKind, brief srs.ProjectBrief, sc srs.SectionContext) (string, error) {
	id, ok := DiagramPrompts[kind]
	if !ok {
		return "", fmt.Errorf("unknown diagram kind %q", kind)
	}
	if err := sc.Require(srs.CanonicalOrder...); err != nil {
		return "", fmt.Errorf("diagram %s: %w", kind, err)
	}

	ctx, span := tracing.Start(ctx, "diagram.generate", attribute.String("diagram.kind", string(kind)))
	defer span.End()
	log := d.log.With("diagram", string(kind))

	prompt, err := d.prompts.Build(id, diagramPromptData{
		Kind:        kind.Title(),
		Description: brief.Description,
		Prior:       priorSections(sc, srs.CanonicalOrder),
	})
	if err != nil {
		tracing.Fail(span, err)
		return "", fmt.Errorf("diagram %s: build prompt: %w", kind, err)
	}
	prompt.Temperature = d.opts.Temperature
	prompt.MaxTokens = diagramMaxTokens

	for attempt := 1; attempt <= d.opts.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			break
		}
		res := d.client.Generate(ctx, "diagram:"+string(kind), prompt)
		if !res.OK() {
			log.Warn("no diagram response", "attempt", attempt, "reason", res.Reason)
			continue
		}
		code, found := ExtractPlantUML(res.Text)
		if !found || !wellFormed(code) {
			metrics.DiagramTotal.WithLabelValues(string(kind), "generate", "malformed").Inc()
			log.Warn("no well-formed PlantUML block in response", "attempt", attempt)
			continue
		}
		if d.opts.Validate && !d.validate(ctx, kind, code, log) {
			metrics.DiagramTotal.WithLabelValues(string(kind), "validate", "invalid").Inc()
			log.Warn("generated code failed validation", "attempt", attempt)
			continue
		}
		metrics.DiagramTotal.WithLabelValues(string(kind), "generate", "ok").Inc()
		log.Info("diagram code generated", "attempt", attempt, "lines", strings.Count(code, "\n")+1)
		return code, nil
	}

	metrics.DiagramTotal.WithLabelValues(string(kind), "generate", "failed").Inc()
	err = fmt.Errorf("diagram %s after %d attempts: %w", kind, d.opts.MaxAttempts, ErrNoDiagramCode)
	tracing.Fail(span, err)
	log.Error("diagram code generation failed", "attempts", d.opts.MaxAttempts)
	return "", err
}

// validate 请求模型给出 VALID/INVALID 判定；判定不明确时重新询问。
func (d *DiagramClient) validate(ctx context.Context, kind srs.DiagramKind, code string, log *slog.Logger) bool {
	prompt, err := d.prompts.Build(PromptDiagramValidate, validatePromptData{Kind: kind.Title(), Code: code})
	if err != nil {
		log.Error("build validation prompt", "error", err)
		return false
	}
	prompt.Temperature = d.opts.Temperature
	prompt.MaxTokens = validateMaxTokens

	for attempt := 1; attempt <= d.opts.ValidateAttempts; attempt++ {
		res := d.client.Generate(ctx, "validate:"+string(kind), prompt)
		if !res.OK() {
			log.Warn("validation request failed", "attempt", attempt, "reason", res.Reason)
			if res.Outcome == TerminalFailure {
				return false
			}
			continue
		}
		switch parseVerdict(res.Text) {
		case verdictValid:
			log.Info("diagram code validated")
			return true
		case verdictInvalid:
			log.Warn("validator rejected diagram code", "verdict", strings.TrimSpace(res.Text))
			return false
		default:
			log.Warn("validator gave no verdict", "attempt", attempt, "reply", strings.TrimSpace(res.Text))
		}
	}
	return false
}
