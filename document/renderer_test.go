package document

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"srs_generator/srs"
)

func testBrief(t *testing.T) srs.ProjectBrief {
	t.Helper()
	b, err := srs.NewProjectBrief("An online library", "Alice", filepath.Join(t.TempDir(), "library"))
	require.NoError(t, err)
	return b
}

func contextOf(t *testing.T, texts map[srs.SectionKey]string) srs.SectionContext {
	t.Helper()
	sc := srs.NewSectionContext()
	for _, k := range srs.CanonicalOrder {
		text, ok := texts[k]
		if !ok {
			continue
		}
		var err error
		sc, err = sc.With(k, text)
		require.NoError(t, err)
	}
	return sc
}

func headingTexts(t *testing.T, path string) []string {
	t.Helper()
	hs, err := Headings(path)
	require.NoError(t, err)
	out := make([]string, 0, len(hs))
	for _, h := range hs {
		out = append(out, h.Text)
	}
	return out
}

func TestCreateTitlePage(t *testing.T) {
	brief := testBrief(t)
	r := NewRenderer(Options{})
	require.NoError(t, r.CreateTitlePage(context.Background(), brief))

	doc, err := Open(brief.OutputFile)
	require.NoError(t, err)
	assert.Equal(t, []string{DocumentTitle, "", "", "Name: Alice", tocHint}, doc.Paragraphs())
	assert.Empty(t, doc.Headings())

	body := zipEntries(t, brief.OutputFile)[partDocument]
	assert.Contains(t, body, `TOC \o "1-3" \h \z \u`)
	assert.Contains(t, body, `<w:rFonts w:ascii="Times New Roman"`)
	assert.Contains(t, body, `<w:sz w:val="48"/>`)
}

func TestAppendSectionsNumberingAndSubheadings(t *testing.T) {
	brief := testBrief(t)
	r := NewRenderer(Options{})
	ctx := context.Background()
	require.NoError(t, r.CreateTitlePage(ctx, brief))

	sc := contextOf(t, map[srs.SectionKey]string{
		srs.Introduction:       "## Introduction\n\n## 1.1 Purpose\nThe **library** lends books.\n\n### Scope\n\n- search\n- *borrow*",
		srs.OverallDescription: "Plain overview.",
	})
	require.NoError(t, r.AppendSections(ctx, brief, sc))

	assert.Equal(t, []string{
		"1. Introduction",
		"1.1 Purpose",
		"1.2 Scope",
		"2. Overall Description",
	}, headingTexts(t, brief.OutputFile))

	doc, err := Open(brief.OutputFile)
	require.NoError(t, err)
	paras := doc.Paragraphs()
	assert.Contains(t, paras, "The library lends books.")
	assert.Contains(t, paras, "borrow")
	assert.Contains(t, paras, "Plain overview.")
	assert.NotContains(t, paras, "Introduction", "repeated top-level heading is dropped")

	body := zipEntries(t, brief.OutputFile)[partDocument]
	assert.Equal(t, 2, strings.Count(body, `<w:br w:type="page"/>`))
}

func TestSectionNumbersStableWhenSectionsFail(t *testing.T) {
	brief := testBrief(t)
	r := NewRenderer(Options{})

	texts := map[srs.SectionKey]string{}
	for _, k := range srs.CanonicalOrder {
		texts[k] = "## Details\n\nGenerated " + k.Title()
	}
	texts[srs.SystemFeatures] = srs.SystemFeatures.Placeholder()
	texts[srs.NonFunctionalRequirements] = srs.NonFunctionalRequirements.Placeholder()

	require.NoError(t, r.RenderDocument(context.Background(), brief, contextOf(t, texts), nil))

	hs, err := Headings(brief.OutputFile)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, SectionNumbers(hs))

	doc, err := Open(brief.OutputFile)
	require.NoError(t, err)
	assert.Contains(t, doc.Paragraphs(), "Failed to generate System Features content.")
	assert.Contains(t, headingTexts(t, brief.OutputFile), "4.1 Details")
}

func TestSectionNumbersUseFixedPositions(t *testing.T) {
	brief := testBrief(t)
	r := NewRenderer(Options{})

	sc := contextOf(t, map[srs.SectionKey]string{
		srs.Introduction:       "a",
		srs.OverallDescription: "b",
		srs.ExternalInterfaces: "d",
		srs.UseCases:           "f",
	})
	require.NoError(t, r.RenderDocument(context.Background(), brief, sc, nil))

	hs, err := Headings(brief.OutputFile)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 4, 6}, SectionNumbers(hs))
}

func TestAppendDiagrams(t *testing.T) {
	brief := testBrief(t)
	img := filepath.Join(t.TempDir(), "ActivityDiagram.png")
	writePNG(t, img, 60, 30)

	diagrams := []srs.RenderedDiagram{
		{Kind: srs.ActivityDiagram, ImagePath: img},
		{Kind: srs.SequenceDiagram},
		{Kind: srs.ClassDiagram, ImagePath: filepath.Join(t.TempDir(), "gone.png")},
	}
	r := NewRenderer(Options{})
	ctx := context.Background()
	require.NoError(t, r.CreateTitlePage(ctx, brief))
	require.NoError(t, r.AppendDiagrams(ctx, brief, diagrams))

	assert.Equal(t, []string{
		"7. System Models and Diagrams",
		"7.1 Activity Diagram",
		"7.2 Sequence Diagram",
		"7.3 Class Diagram",
	}, headingTexts(t, brief.OutputFile))

	doc, err := Open(brief.OutputFile)
	require.NoError(t, err)
	paras := doc.Paragraphs()
	assert.Contains(t, paras, AppendixIntroduction)
	assert.Contains(t, paras, "Failed to generate Sequence Diagram image.")
	assert.Contains(t, paras, "Failed to generate Class Diagram image.", "unreadable image falls back to the notice")
	assert.NotContains(t, paras, "Failed to generate Activity Diagram image.")

	assert.Contains(t, zipEntries(t, brief.OutputFile), "word/media/image1.png")
}

func TestRenderDocumentIsIdempotent(t *testing.T) {
	brief := testBrief(t)
	r := NewRenderer(Options{})
	ctx := context.Background()

	sc := contextOf(t, map[srs.SectionKey]string{
		srs.Introduction:       "## Purpose\n\ntext",
		srs.OverallDescription: "more",
	})
	diagrams := []srs.RenderedDiagram{{Kind: srs.ActivityDiagram}, {Kind: srs.ClassDiagram}}

	require.NoError(t, r.RenderDocument(ctx, brief, sc, diagrams))
	first := headingTexts(t, brief.OutputFile)
	info, err := os.Stat(brief.OutputFile)
	require.NoError(t, err)

	require.NoError(t, r.RenderDocument(ctx, brief, sc, diagrams))
	assert.Equal(t, first, headingTexts(t, brief.OutputFile))

	again, err := os.Stat(brief.OutputFile)
	require.NoError(t, err)
	assert.Equal(t, info.ModTime(), again.ModTime(), "nothing to add, file not rewritten")
}

func TestMissingDiagramKinds(t *testing.T) {
	brief := testBrief(t)
	kinds := srs.DefaultDiagramKinds

	missing, err := MissingDiagramKinds(brief.OutputFile, kinds)
	require.NoError(t, err)
	assert.Equal(t, kinds, missing, "no document yet")

	r := NewRenderer(Options{})
	ctx := context.Background()
	require.NoError(t, r.CreateTitlePage(ctx, brief))
	require.NoError(t, r.AppendDiagrams(ctx, brief, []srs.RenderedDiagram{{Kind: srs.ActivityDiagram}}))

	missing, err = MissingDiagramKinds(brief.OutputFile, kinds)
	require.NoError(t, err)
	assert.Equal(t, []srs.DiagramKind{srs.SequenceDiagram, srs.ClassDiagram}, missing)
}

func TestSubheading(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"4.1 Product Perspective", "Product Perspective", true},
		{"3. **Feature A**", "Feature A", true},
		{"System Features", "", false},
		{"3. System Features", "", false},
		{"  ", "", false},
	}
	for _, tt := range tests {
		got, ok := subheading(srs.SystemFeatures, tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
