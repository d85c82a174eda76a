package pipeline

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"srs_generator/document"
	"srs_generator/logger"
	"srs_generator/srs"
)

// RenderOptions 离线渲染（不调用模型）的参数。
type RenderOptions struct {
	DiagramKinds []srs.DiagramKind
	// Renderer 为 nil 时不写图表附录，与关闭图表阶段的 generate 一致。
	Renderer    DiagramRenderer
	Document    *document.Renderer
	HTMLPreview bool
	Logger      *slog.Logger
}

// Render 用已保存的章节和图表源码渲染文档。文档不存在时先建标题页；
// 已存在的章节和图表子标题不会重复，只渲染缺失的图表。
func Render(ctx context.Context, brief srs.ProjectBrief, sc srs.SectionContext, opts RenderOptions) ([]srs.RenderedDiagram, error) {
	log := logger.OrDiscard(opts.Logger).With("component", "render", "output", brief.OutputFile)
	kinds := opts.DiagramKinds
	if len(kinds) == 0 {
		kinds = srs.DefaultDiagramKinds
	}
	doc := opts.Document
	if doc == nil {
		doc = document.NewRenderer(document.Options{Logger: opts.Logger})
	}

	var diagrams []srs.RenderedDiagram
	if opts.Renderer != nil {
		var err error
		if diagrams, err = renderDiagrams(ctx, brief, sc, kinds, opts.Renderer, log); err != nil {
			return nil, err
		}
	}

	if err := doc.RenderDocument(ctx, brief, sc, diagrams); err != nil {
		return diagrams, err
	}
	if opts.HTMLPreview {
		if _, err := document.WriteHTMLPreview(brief, sc, diagrams); err != nil {
			log.Error("html preview failed", "error", err)
		}
	}
	log.Info("document rendered", "sections", sc.Len(), "diagrams", len(diagrams))
	return diagrams, nil
}

// renderDiagrams 只渲染文档中还没有的图；已有的图沿用输出目录里的 PNG，
// 供 HTML 预览引用。
func renderDiagrams(ctx context.Context, brief srs.ProjectBrief, sc srs.SectionContext, kinds []srs.DiagramKind, r DiagramRenderer, log *slog.Logger) ([]srs.RenderedDiagram, error) {
	missing, err := document.MissingDiagramKinds(brief.OutputFile, kinds)
	if err != nil {
		return nil, err
	}

	canRender := true
	if _, err := r.LocateJar(); err != nil {
		log.Error("diagram rendering unavailable", "error", err)
		canRender = false
	}

	diagrams := make([]srs.RenderedDiagram, 0, len(kinds))
	for _, kind := range kinds {
		rd := srs.RenderedDiagram{Kind: kind}
		source, ok := sc.Diagram(kind)
		switch {
		case !slices.Contains(missing, kind):
			rd.ImagePath = existingImage(r, kind)
		case ok && canRender:
			out, err := r.Render(ctx, kind, source)
			if err != nil {
				log.Error("diagram render failed", "diagram", kind, "error", err)
			} else {
				rd = out
			}
			rd.Kind = kind
		}
		rd.Source = source
		diagrams = append(diagrams, rd)
	}
	return diagrams, nil
}

// existingImage 返回上次渲染留下的 <OutputDir>/<Kind>.png；渲染器不暴露目录或文件不存在时为空
func existingImage(r DiagramRenderer, kind srs.DiagramKind) string {
	d, ok := r.(interface{ OutputDir() string })
	if !ok {
		return ""
	}
	path := filepath.Join(d.OutputDir(), string(kind)+".png")
	if st, err := os.Stat(path); err != nil || st.IsDir() {
		return ""
	}
	return path
}
