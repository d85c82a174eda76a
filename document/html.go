package document

import (
	"bytes"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"

	"srs_generator/srs"
)

var md = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
)

// PreviewPath 返回与 .docx 同名的 .html 路径。
func PreviewPath(docPath string) string {
	return strings.TrimSuffix(docPath, filepath.Ext(docPath)) + ".html"
}

// Markdown 以与 .docx 相同的编号规则把章节和图表拼成一份 markdown。
// 图片路径相对于 baseDir。
func Markdown(brief srs.ProjectBrief, sc srs.SectionContext, diagrams []srs.RenderedDiagram, baseDir string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\nName: %s\n\n", DocumentTitle, brief.Author)

	for _, key := range sc.Keys() {
		text, _ := sc.Get(key)
		fmt.Fprintf(&b, "## %s\n\n", key.Heading())
		sub := 0
		for _, blk := range Parse(text) {
			switch blk.Kind {
			case HeadingBlock:
				title, ok := subheading(key, blk.Text)
				if !ok {
					continue
				}
				sub++
				fmt.Fprintf(&b, "### %d.%d %s\n\n", key.Number(), sub, title)
			case ParagraphBlock:
				b.WriteString(blk.Text + "\n\n")
			case BulletListBlock:
				for _, item := range blk.Items {
					b.WriteString("- " + item + "\n")
				}
				b.WriteString("\n")
			}
		}
	}

	if len(diagrams) == 0 {
		return b.String()
	}
	fmt.Fprintf(&b, "## %s\n\n%s\n\n", srs.AppendixHeading(), AppendixIntroduction)
	for i, d := range diagrams {
		fmt.Fprintf(&b, "### %s\n\n", srs.DiagramSubheading(i+1, d.Kind))
		if !d.Rendered() {
			b.WriteString(d.Kind.FailureNotice() + "\n\n")
			continue
		}
		ref := d.ImagePath
		if rel, err := filepath.Rel(baseDir, d.ImagePath); err == nil {
			ref = filepath.ToSlash(rel)
		}
		fmt.Fprintf(&b, "![%s](%s)\n\n", d.Kind.Title(), ref)
	}
	return b.String()
}

func mdToHTML(src string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

var imgRe = regexp.MustCompile(`<img ([^>]*?)/?>`)

// 预览页里的图片限制为页面宽度。
func constrainImages(h string) string {
	return imgRe.ReplaceAllString(h, `<img $1 style="max-width:100%;">`)
}

// WriteHTMLPreview 生成 .docx 的 HTML 预览，返回写入路径。
func WriteHTMLPreview(brief srs.ProjectBrief, sc srs.SectionContext, diagrams []srs.RenderedDiagram) (string, error) {
	path := PreviewPath(brief.OutputFile)
	body, err := mdToHTML(Markdown(brief, sc, diagrams, filepath.Dir(path)))
	if err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}

	page := "<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>" +
		html.EscapeString(DocumentTitle+" - "+brief.Author) +
		"</title></head>\n<body style=\"max-width:52em;margin:2em auto;font-family:'Times New Roman',serif;\">\n" +
		constrainImages(body) + "</body></html>\n"

	if err := os.WriteFile(path, []byte(page), 0o644); err != nil {
		return "", fmt.Errorf("write preview: %w", err)
	}
	return path, nil
}
