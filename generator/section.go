package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"srs_generator/logger"
	"srs_generator/metrics"
	"srs_generator/srs"
	"srs_generator/tracing"
)

// DefaultTemperature 所有章节与图表统一使用的低温度。
const DefaultTemperature = 0.3

// SectionSpec 描述一个章节的提示模板、依赖及 token 预算。
type SectionSpec struct {
	Key       srs.SectionKey
	Prompt    PromptID
	Depends   []srs.SectionKey
	MaxTokens int
}

// SectionSpecs 按流水线顺序排列；每个章节依赖其之前的全部章节。
var SectionSpecs = []SectionSpec{
	{Key: srs.Introduction, Prompt: PromptIntroduction, MaxTokens: 1024},
	{Key: srs.OverallDescription, Prompt: PromptOverallDescription, MaxTokens: 1500,
		Depends: []srs.SectionKey{srs.Introduction}},
	{Key: srs.SystemFeatures, Prompt: PromptSystemFeatures, MaxTokens: 2000,
		Depends: []srs.SectionKey{srs.Introduction, srs.OverallDescription}},
	{Key: srs.ExternalInterfaces, Prompt: PromptExternalInterfaces, MaxTokens: 2000,
		Depends: []srs.SectionKey{srs.Introduction, srs.OverallDescription, srs.SystemFeatures}},
	{Key: srs.NonFunctionalRequirements, Prompt: PromptNonFunctional, MaxTokens: 2000,
		Depends: []srs.SectionKey{srs.Introduction, srs.OverallDescription, srs.SystemFeatures, srs.ExternalInterfaces}},
	{Key: srs.UseCases, Prompt: PromptUseCases, MaxTokens: 2000,
		Depends: []srs.SectionKey{srs.Introduction, srs.OverallDescription, srs.SystemFeatures, srs.ExternalInterfaces, srs.NonFunctionalRequirements}},
}

type priorSection struct {
	Label string
	Text  string
}

type sectionPromptData struct {
	Number      int
	Title       string
	Description string
	Prior       []priorSection
}

// SectionGenerator 生成单个章节并写回上下文。
type SectionGenerator struct {
	spec        SectionSpec
	client      *Client
	prompts     *Registry
	temperature float64
	log         *slog.Logger
}

func NewSectionGenerator(spec SectionSpec, client *Client, prompts *Registry, temperature float64, log *slog.Logger) (*SectionGenerator, error) {
	if client == nil {
		return nil, errors.New("generation client is required")
	}
	if prompts == nil {
		prompts = NewRegistry()
	}
	return &SectionGenerator{
		spec:        spec,
		client:      client,
		prompts:     prompts,
		temperature: temperature,
		log:         logger.OrDiscard(log).With("component", "section", "section", string(spec.Key)),
	}, nil
}

// NewSectionGenerators 按 SectionSpecs 顺序创建全部六个章节生成器。
func NewSectionGenerators(client *Client, prompts *Registry, temperature float64, log *slog.Logger) ([]*SectionGenerator, error) {
	if prompts == nil {
		prompts = NewRegistry()
	}
	out := make([]*SectionGenerator, 0, len(SectionSpecs))
	for _, spec := range SectionSpecs {
		g, err := NewSectionGenerator(spec, client, prompts, temperature, log)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

func (g *SectionGenerator) Key() srs.SectionKey {
	return g.spec.Key
}

// Execute 生成本章节文本并返回只多了这一个键的新上下文。
// 依赖缺失属于调用顺序错误，在发起请求前返回 srs.ErrMissingSection；
// 生成失败不返回错误，而是写入占位文本。
func (g *SectionGenerator) Execute(ctx context.Context, brief srs.ProjectBrief, sc srs.SectionContext) (srs.SectionContext, error) {
	if err := sc.Require(g.spec.Depends...); err != nil {
		return sc, fmt.Errorf("section %s: %w", g.spec.Key, err)
	}

	ctx, span := tracing.Start(ctx, "section."+string(g.spec.Key),
		attribute.Int("section.number", g.spec.Key.Number()))
	defer span.End()

	prompt, err := g.buildPrompt(brief, sc)
	if err != nil {
		tracing.Fail(span, err)
		return sc, fmt.Errorf("section %s: build prompt: %w", g.spec.Key, err)
	}

	res := g.client.Generate(ctx, string(g.spec.Key), prompt)
	text := strings.TrimSpace(res.TextOr(g.spec.Key.Placeholder()))
	if res.OK() {
		metrics.SectionTotal.WithLabelValues(string(g.spec.Key), "generated").Inc()
		g.log.Info("section generated", "attempts", res.Attempts, "chars", len(text))
	} else {
		metrics.SectionTotal.WithLabelValues(string(g.spec.Key), "placeholder").Inc()
		span.SetAttributes(attribute.Bool("section.placeholder", true))
		g.log.Error("section generation failed, using placeholder",
			"attempts", res.Attempts, "outcome", res.Outcome.String(), "reason", res.Reason)
	}

	next, err := sc.With(g.spec.Key, text)
	if err != nil {
		tracing.Fail(span, err)
		return sc, fmt.Errorf("section %s: %w", g.spec.Key, err)
	}
	return next, nil
}

func (g *SectionGenerator) buildPrompt(brief srs.ProjectBrief, sc srs.SectionContext) (Prompt, error) {
	prompt, err := g.prompts.Build(g.spec.Prompt, sectionPromptData{
		Number:      g.spec.Key.Number(),
		Title:       g.spec.Key.Title(),
		Description: brief.Description,
		Prior:       priorSections(sc, g.spec.Depends),
	})
	if err != nil {
		return Prompt{}, err
	}
	prompt.Temperature = g.temperature
	prompt.MaxTokens = g.spec.MaxTokens
	return prompt, nil
}

func priorSections(sc srs.SectionContext, keys []srs.SectionKey) []priorSection {
	out := make([]priorSection, 0, len(keys))
	for _, k := range keys {
		text, _ := sc.Get(k)
		out = append(out, priorSection{Label: strings.ToLower(k.Title()), Text: text})
	}
	return out
}
