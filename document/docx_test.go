package document

import (
	"archive/zip"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writePNG 生成一张 w x h 的测试图片。
func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func zipEntries(t *testing.T, path string) map[string]string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()

	out := map[string]string{}
	for i, f := range zr.File {
		if i == 0 {
			assert.Equal(t, partContentTypes, f.Name, "content types part comes first")
		}
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		out[f.Name] = string(b)
	}
	return out
}

func TestDocumentRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.docx")

	doc := NewDocument("Title", "Alice")
	doc.AddHeading("1. Introduction", 1)
	doc.AddParagraph(SplitInline("Hello **world** & <friends>"), ParaFormat{})
	doc.AddText("bullet", ParaFormat{Style: "ListBullet", Bullet: true})
	doc.AddHeading("1.1 Purpose", 2)
	require.NoError(t, doc.Save(path))

	reopened, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, []HeadingEntry{
		{Text: "1. Introduction", Level: 1},
		{Text: "1.1 Purpose", Level: 2},
	}, reopened.Headings())
	assert.Equal(t, []string{"1. Introduction", "Hello world & <friends>", "bullet", "1.1 Purpose"}, reopened.Paragraphs())
	assert.True(t, reopened.HasHeading("1.1 Purpose"))
	assert.False(t, reopened.HasHeading("Purpose"))

	parts := zipEntries(t, path)
	body := parts[partDocument]
	assert.Contains(t, body, "Hello </w:t></w:r><w:r><w:rPr><w:b/></w:rPr>")
	assert.Contains(t, body, "&amp; &lt;friends&gt;")
	assert.Contains(t, body, `<w:numId w:val="1"/>`)
	assert.Contains(t, body, "<w:sectPr>")
	assert.Contains(t, parts["word/settings.xml"], "updateFields")
	assert.Contains(t, parts["docProps/core.xml"], "<dc:creator>Alice</dc:creator>")
}

func TestDocumentAppendKeepsExistingContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.docx")
	doc := NewDocument("Title", "Bob")
	doc.AddHeading("1. Introduction", 1)
	require.NoError(t, doc.Save(path))

	doc, err := Open(path)
	require.NoError(t, err)
	doc.AddHeading("2. Overall Description", 1)
	require.NoError(t, doc.Save(path))

	doc, err = Open(path)
	require.NoError(t, err)
	assert.Len(t, doc.Headings(), 2)

	body := zipEntries(t, path)[partDocument]
	assert.Equal(t, 1, strings.Count(body, "<w:sectPr>"), "section properties stay at the end of the body")
	assert.True(t, strings.HasSuffix(body, "</w:sectPr></w:body></w:document>"))
}

func TestDocumentAddImage(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "ClassDiagram.png")
	writePNG(t, img, 200, 100)
	path := filepath.Join(dir, "out.docx")

	doc := NewDocument("Title", "Alice")
	require.NoError(t, doc.AddImage(img, 6))
	require.NoError(t, doc.Save(path))

	// 再次打开后追加第二张图，媒体文件名和关系 id 不能冲突
	doc, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, doc.AddImage(img, 6))
	require.NoError(t, doc.Save(path))

	parts := zipEntries(t, path)
	assert.Contains(t, parts, "word/media/image1.png")
	assert.Contains(t, parts, "word/media/image2.png")

	rels := parts[partDocumentRels]
	assert.Equal(t, 2, strings.Count(rels, relTypeImage))
	assert.Contains(t, rels, `Id="rId4"`)
	assert.Contains(t, rels, `Id="rId5"`)

	body := parts[partDocument]
	assert.Contains(t, body, `cx="5486400" cy="2743200"`, "6 inches wide, aspect kept")
	assert.Contains(t, body, `r:embed="rId5"`)
}

func TestDocumentAddImageRejectsNonPNG(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "x.png")
	require.NoError(t, os.WriteFile(bad, []byte("not an image"), 0o644))

	doc := NewDocument("Title", "Alice")
	assert.Error(t, doc.AddImage(bad, 6))
	assert.Error(t, doc.AddImage(filepath.Join(dir, "missing.png"), 6))
	assert.Empty(t, doc.rels[3:], "no relationship added on failure")
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.docx"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
