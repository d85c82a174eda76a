package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"srs_generator/logger"
	"srs_generator/srs"
	"srs_generator/tracing"
)

const (
	DocumentTitle        = "System Requirement Specification"
	DefaultFont          = "Times New Roman"
	DefaultImageWidthIn  = 6.0
	AppendixIntroduction = "This section presents the system models using various UML diagrams to visualize different aspects of the system."
)

// Options 文档渲染配置
type Options struct {
	Font             string
	ImageWidthInches float64
	Logger           *slog.Logger
}

// Renderer 按阶段写入 .docx。每个阶段都重新打开并保存文件，
// 不在阶段之间持有文档。
type Renderer struct {
	font  string
	width float64
	log   *slog.Logger
}

func NewRenderer(opts Options) *Renderer {
	if opts.Font == "" {
		opts.Font = DefaultFont
	}
	if opts.ImageWidthInches <= 0 {
		opts.ImageWidthInches = DefaultImageWidthIn
	}
	return &Renderer{
		font:  opts.Font,
		width: opts.ImageWidthInches,
		log:   logger.OrDiscard(opts.Logger).With("component", "document"),
	}
}

// CreateTitlePage 新建文档：标题、作者行、目录域。已存在的文件会被覆盖。
func (r *Renderer) CreateTitlePage(ctx context.Context, brief srs.ProjectBrief) error {
	_, span := tracing.Start(ctx, "document.title_page", attribute.String("output", brief.OutputFile))
	defer span.End()

	doc := NewDocument(DocumentTitle, brief.Author)
	doc.AddText(DocumentTitle, ParaFormat{Center: true, Bold: true, Font: r.font, SizePt: 24})
	doc.AddText("", ParaFormat{})
	doc.AddText("", ParaFormat{})
	doc.AddText("Name: "+brief.Author, ParaFormat{Font: r.font, SizePt: 12})
	doc.AddTOC()

	if err := doc.Save(brief.OutputFile); err != nil {
		tracing.Fail(span, err)
		return fmt.Errorf("save title page: %w", err)
	}
	r.log.Info("title page saved", "output", brief.OutputFile)
	return nil
}

// AppendSections 按固定顺序为 sc 中存在的每个章节追加一页。
// 编号取章节的固定位置，与其他章节是否成功无关；标题已存在的章节跳过。
func (r *Renderer) AppendSections(ctx context.Context, brief srs.ProjectBrief, sc srs.SectionContext) error {
	_, span := tracing.Start(ctx, "document.sections", attribute.Int("sections", sc.Len()))
	defer span.End()

	doc, err := Open(brief.OutputFile)
	if err != nil {
		tracing.Fail(span, err)
		return err
	}

	added := 0
	for _, key := range sc.Keys() {
		if doc.HasHeading(key.Heading()) {
			r.log.Info("section already present, skipping", "section", key)
			continue
		}
		text, _ := sc.Get(key)
		r.appendSection(doc, key, Parse(text))
		added++
	}
	if added == 0 {
		return nil
	}

	if err := doc.Save(brief.OutputFile); err != nil {
		tracing.Fail(span, err)
		return fmt.Errorf("save sections: %w", err)
	}
	r.log.Info("sections saved", "output", brief.OutputFile, "added", added)
	return nil
}

var leadingNumberRe = regexp.MustCompile(`^\d+(\.\d+)*\.?\s+`)

func (r *Renderer) appendSection(doc *Document, key srs.SectionKey, blocks []Block) {
	n := key.Number()
	doc.AddPageBreak()
	doc.AddHeading(key.Heading(), 1)

	sub := 0
	for _, b := range blocks {
		switch b.Kind {
		case HeadingBlock:
			title, ok := subheading(key, b.Text)
			if !ok {
				continue
			}
			sub++
			doc.AddHeading(fmt.Sprintf("%d.%d %s", n, sub, title), 2)
		case ParagraphBlock:
			doc.AddParagraph(SplitInline(b.Text), ParaFormat{})
		case BulletListBlock:
			for _, item := range b.Items {
				doc.AddParagraph(SplitInline(item), ParaFormat{Style: "ListBullet", Bullet: true})
			}
		}
	}
}

// subheading 去掉模型自带的编号与粗体标记，编号由渲染器统一给出；
// 只重复章节标题本身的标题被丢弃。
func subheading(key srs.SectionKey, s string) (string, bool) {
	s = strings.TrimSpace(PlainText(s))
	s = strings.TrimSpace(leadingNumberRe.ReplaceAllString(s, ""))
	if s == "" || strings.EqualFold(s, key.Title()) || strings.EqualFold(s, key.Heading()) {
		return "", false
	}
	return s, true
}

// AppendDiagrams 追加图表附录：每个种类一个子标题，下面是图片或失败说明。
// 附录标题和各子标题已存在时不会重复添加。
func (r *Renderer) AppendDiagrams(ctx context.Context, brief srs.ProjectBrief, diagrams []srs.RenderedDiagram) error {
	_, span := tracing.Start(ctx, "document.diagrams", attribute.Int("diagrams", len(diagrams)))
	defer span.End()

	doc, err := Open(brief.OutputFile)
	if err != nil {
		tracing.Fail(span, err)
		return err
	}

	changed := false
	if !doc.HasHeading(srs.AppendixHeading()) {
		doc.AddPageBreak()
		doc.AddHeading(srs.AppendixHeading(), 1)
		doc.AddText(AppendixIntroduction, ParaFormat{})
		changed = true
	}

	for i, d := range diagrams {
		heading := srs.DiagramSubheading(i+1, d.Kind)
		if doc.HasHeading(heading) {
			r.log.Info("diagram already present, skipping", "diagram", d.Kind)
			continue
		}
		doc.AddHeading(heading, 2)
		changed = true

		if !d.Rendered() {
			doc.AddText(d.Kind.FailureNotice(), ParaFormat{})
			continue
		}
		if err := doc.AddImage(d.ImagePath, r.width); err != nil {
			r.log.Error("embed diagram failed", "diagram", d.Kind, "image", d.ImagePath, "error", err)
			doc.AddText(d.Kind.FailureNotice(), ParaFormat{})
		}
	}
	if !changed {
		return nil
	}

	if err := doc.Save(brief.OutputFile); err != nil {
		tracing.Fail(span, err)
		return fmt.Errorf("save diagrams: %w", err)
	}
	r.log.Info("diagram appendix saved", "output", brief.OutputFile, "diagrams", len(diagrams))
	return nil
}

// RenderDocument 一次性渲染全部内容；文件不存在时先建标题页。
// 对已有文档重复调用不会产生重复的章节或子标题。
func (r *Renderer) RenderDocument(ctx context.Context, brief srs.ProjectBrief, sc srs.SectionContext, diagrams []srs.RenderedDiagram) error {
	if _, err := os.Stat(brief.OutputFile); errors.Is(err, os.ErrNotExist) {
		if err := r.CreateTitlePage(ctx, brief); err != nil {
			return err
		}
	} else if err != nil {
		return fmt.Errorf("stat %s: %w", brief.OutputFile, err)
	}
	if err := r.AppendSections(ctx, brief, sc); err != nil {
		return err
	}
	if len(diagrams) == 0 {
		return nil
	}
	return r.AppendDiagrams(ctx, brief, diagrams)
}

// Headings 读出已落盘文档的标题。
func Headings(path string) ([]HeadingEntry, error) {
	doc, err := Open(path)
	if err != nil {
		return nil, err
	}
	return doc.Headings(), nil
}

// MissingDiagramKinds 返回附录中尚无子标题的种类（按 kinds 的顺序编号）。
// 文件不存在时全部缺失。
func MissingDiagramKinds(path string, kinds []srs.DiagramKind) ([]srs.DiagramKind, error) {
	headings, err := Headings(path)
	if errors.Is(err, os.ErrNotExist) {
		return kinds, nil
	}
	if err != nil {
		return nil, err
	}
	present := make(map[string]bool, len(headings))
	for _, h := range headings {
		present[h.Text] = true
	}
	var missing []srs.DiagramKind
	for i, k := range kinds {
		if !present[srs.DiagramSubheading(i+1, k)] {
			missing = append(missing, k)
		}
	}
	return missing, nil
}

// SectionNumbers 返回文档中一级章节标题的编号，用于校验编号连续。
func SectionNumbers(headings []HeadingEntry) []int {
	var out []int
	for _, h := range headings {
		if h.Level != 1 {
			continue
		}
		num, _, ok := strings.Cut(h.Text, ". ")
		if !ok {
			continue
		}
		if n, err := strconv.Atoi(num); err == nil {
			out = append(out, n)
		}
	}
	return out
}
