// Package pipeline runs the section stages in order, then the diagram stage,
// and persists the document after every stage.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"srs_generator/document"
	"srs_generator/logger"
	"srs_generator/metrics"
	"srs_generator/srs"
	"srs_generator/tracing"
)

// SectionStage 生成一个章节，返回只多了该章节的新上下文。
type SectionStage interface {
	Key() srs.SectionKey
	Execute(ctx context.Context, brief srs.ProjectBrief, sc srs.SectionContext) (srs.SectionContext, error)
}

// DiagramSource 生成一类图的 PlantUML 代码。
type DiagramSource interface {
	Generate(ctx context.Context, kind srs.DiagramKind, brief srs.ProjectBrief, sc srs.SectionContext) (string, error)
}

// DiagramRenderer 把代码渲染成图片。
type DiagramRenderer interface {
	LocateJar() (string, error)
	Render(ctx context.Context, kind srs.DiagramKind, source string) (srs.RenderedDiagram, error)
}

// DocumentWriter 分阶段写入文档，每个方法结束时文件已落盘。
type DocumentWriter interface {
	CreateTitlePage(ctx context.Context, brief srs.ProjectBrief) error
	AppendSections(ctx context.Context, brief srs.ProjectBrief, sc srs.SectionContext) error
	AppendDiagrams(ctx context.Context, brief srs.ProjectBrief, diagrams []srs.RenderedDiagram) error
}

// ErrTitlePage 标题页无法落盘，整次运行失败。
var ErrTitlePage = errors.New("title page could not be persisted")

type Options struct {
	// DiagramKinds 附录中的图表种类及顺序；为空时使用默认三种。
	DiagramKinds []srs.DiagramKind
	// Concurrency > 1 时并行生成图表。
	Concurrency int
	HTMLPreview bool
	// MetricsTextfile 非空时运行结束后写出指标。
	MetricsTextfile string
	Logger          *slog.Logger
}

// Deps 流水线依赖。Diagrams 或 Renderer 为 nil 时跳过图表阶段。
type Deps struct {
	Sections []SectionStage
	Diagrams DiagramSource
	Renderer DiagramRenderer
	Document DocumentWriter
}

type Pipeline struct {
	deps Deps
	opts Options
	log  *slog.Logger
}

func New(deps Deps, opts Options) (*Pipeline, error) {
	if deps.Document == nil {
		return nil, errors.New("document writer is required")
	}
	if len(deps.Sections) == 0 {
		return nil, errors.New("at least one section stage is required")
	}
	if len(opts.DiagramKinds) == 0 {
		opts.DiagramKinds = srs.DefaultDiagramKinds
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Pipeline{
		deps: deps,
		opts: opts,
		log:  logger.OrDiscard(opts.Logger).With("component", "pipeline"),
	}, nil
}

// Report 一次运行的结果汇总。
type Report struct {
	RunID        string                `json:"run_id"`
	OutputFile   string                `json:"output_file"`
	SidecarFile  string                `json:"sidecar_file"`
	PreviewFile  string                `json:"preview_file,omitempty"`
	Sections     srs.SectionContext    `json:"sections"`
	Placeholders []srs.SectionKey      `json:"placeholders,omitempty"`
	Diagrams     []srs.RenderedDiagram `json:"diagrams,omitempty"`
	Warnings     []string              `json:"warnings,omitempty"`
	Duration     time.Duration         `json:"duration"`
}

func (r *Report) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Run 执行完整流水线。只有标题页无法落盘时返回错误，
// 其余阶段的失败以占位文本、失败说明或 Report.Warnings 体现。
func (p *Pipeline) Run(ctx context.Context, brief srs.ProjectBrief) (*Report, error) {
	start := time.Now()
	report := &Report{
		RunID:       uuid.NewString(),
		OutputFile:  brief.OutputFile,
		SidecarFile: SidecarPath(brief.OutputFile),
	}
	log := p.log.With("run_id", report.RunID, "output", brief.OutputFile)

	ctx, span := tracing.Start(ctx, "pipeline.run",
		attribute.String("run_id", report.RunID),
		attribute.String("output", brief.OutputFile))
	defer span.End()
	defer func() {
		report.Duration = time.Since(start)
		metrics.PipelineDuration.Observe(report.Duration.Seconds())
		p.exportMetrics(log)
	}()

	log.Info("srs generation started", "sections", len(p.deps.Sections))
	if err := p.deps.Document.CreateTitlePage(ctx, brief); err != nil {
		err = fmt.Errorf("%w: %w", ErrTitlePage, err)
		tracing.Fail(span, err)
		log.Error("title page failed", "error", err)
		return report, err
	}

	sc := p.runSections(ctx, brief, report, log)
	report.Sections = sc

	if err := p.deps.Document.AppendSections(ctx, brief, sc); err != nil {
		log.Error("append sections failed", "error", err)
		report.warn("append sections: %v", err)
	}

	if p.deps.Diagrams != nil && p.deps.Renderer != nil {
		sc = p.runDiagrams(ctx, brief, sc, report, log)
		report.Sections = sc
		if err := p.deps.Document.AppendDiagrams(ctx, brief, report.Diagrams); err != nil {
			log.Error("append diagrams failed", "error", err)
			report.warn("append diagrams: %v", err)
		}
		p.saveSidecar(report, sc, log)
	}

	if p.opts.HTMLPreview {
		path, err := document.WriteHTMLPreview(brief, sc, report.Diagrams)
		if err != nil {
			log.Error("html preview failed", "error", err)
			report.warn("html preview: %v", err)
		} else {
			report.PreviewFile = path
		}
	}

	log.Info("srs generation finished",
		"placeholders", len(report.Placeholders),
		"diagrams", len(report.Diagrams),
		"duration", time.Since(start).Round(time.Millisecond))
	return report, nil
}

// runSections 依次执行章节阶段，每个章节之后写 sidecar。
// 阶段返回错误（依赖缺失、模板错误）时写入占位文本，保证后续阶段的依赖完整。
func (p *Pipeline) runSections(ctx context.Context, brief srs.ProjectBrief, report *Report, log *slog.Logger) srs.SectionContext {
	sc := srs.NewSectionContext()
	for _, stage := range p.deps.Sections {
		key := stage.Key()
		next, err := stage.Execute(ctx, brief, sc)
		if err != nil {
			log.Error("section stage failed", "section", key, "error", err)
			report.warn("section %s: %v", key, err)
			next, err = sc.With(key, key.Placeholder())
			if err != nil {
				log.Error("cannot record placeholder", "section", key, "error", err)
				continue
			}
		}
		sc = next
		if text, _ := sc.Get(key); text == key.Placeholder() {
			report.Placeholders = append(report.Placeholders, key)
		}
		p.saveSidecar(report, sc, log)
	}
	return sc
}

// runDiagrams 生成并渲染每个种类；单个种类失败只影响它自己。
func (p *Pipeline) runDiagrams(ctx context.Context, brief srs.ProjectBrief, sc srs.SectionContext, report *Report, log *slog.Logger) srs.SectionContext {
	kinds := p.opts.DiagramKinds
	results := make([]srs.RenderedDiagram, len(kinds))
	for i, k := range kinds {
		results[i] = srs.RenderedDiagram{Kind: k}
	}

	ctx, span := tracing.Start(ctx, "pipeline.diagrams", attribute.Int("diagram.count", len(kinds)))
	defer span.End()

	if _, err := p.deps.Renderer.LocateJar(); err != nil {
		tracing.Fail(span, err)
		log.Error("diagram rendering unavailable, every diagram gets a failure notice", "error", err)
		report.warn("diagrams skipped: %v", err)
		for _, k := range kinds {
			metrics.DiagramTotal.WithLabelValues(string(k), "render", "tool_missing").Inc()
		}
		report.Diagrams = results
		return sc
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)
	for i, kind := range kinds {
		g.Go(func() error {
			results[i] = p.diagram(gctx, kind, brief, sc, log)
			return nil
		})
	}
	_ = g.Wait()

	for _, rd := range results {
		if rd.Source != "" {
			sc = sc.WithDiagram(rd.Kind, rd.Source)
		}
		if !rd.Rendered() {
			report.warn("diagram %s: not rendered", rd.Kind)
		}
	}
	report.Diagrams = results
	return sc
}

func (p *Pipeline) diagram(ctx context.Context, kind srs.DiagramKind, brief srs.ProjectBrief, sc srs.SectionContext, log *slog.Logger) srs.RenderedDiagram {
	log = log.With("diagram", string(kind))
	code, err := p.deps.Diagrams.Generate(ctx, kind, brief, sc)
	if err != nil {
		log.Error("diagram code unavailable", "error", err)
		return srs.RenderedDiagram{Kind: kind}
	}

	rd, err := p.deps.Renderer.Render(ctx, kind, code)
	rd.Kind, rd.Source = kind, code
	if err != nil {
		log.Error("diagram render failed", "error", err)
		rd.ImagePath = ""
	}
	return rd
}

func (p *Pipeline) saveSidecar(report *Report, sc srs.SectionContext, log *slog.Logger) {
	if err := WriteSidecar(report.SidecarFile, sc); err != nil {
		log.Warn("write sections sidecar failed", "path", report.SidecarFile, "error", err)
	}
}

func (p *Pipeline) exportMetrics(log *slog.Logger) {
	if p.opts.MetricsTextfile == "" {
		return
	}
	if err := metrics.WriteTextfile(p.opts.MetricsTextfile); err != nil {
		log.Warn("write metrics textfile failed", "path", p.opts.MetricsTextfile, "error", err)
	}
}

// GenerateSRS 入口：校验输入、执行流水线并返回输出文件路径。
func (p *Pipeline) GenerateSRS(ctx context.Context, description, author, output string) (string, error) {
	brief, err := srs.NewProjectBrief(description, author, output)
	if err != nil {
		return "", err
	}
	report, err := p.Run(ctx, brief)
	if err != nil {
		return "", err
	}
	return report.OutputFile, nil
}
