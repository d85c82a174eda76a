package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"srs_generator/document"
	"srs_generator/srs"
)

func TestSidecarPath(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "app.sections.json"), SidecarPath(filepath.Join("out", "app.docx")))
}

func TestSidecarRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.sections.json")
	sc := srs.NewSectionContext()
	sc, err := sc.With(srs.Introduction, "intro")
	require.NoError(t, err)
	sc, err = sc.With(srs.OverallDescription, "overall")
	require.NoError(t, err)
	sc = sc.WithDiagram(srs.ClassDiagram, "@startuml\nclass A\n@enduml")

	require.NoError(t, WriteSidecar(path, sc))
	got, err := LoadSidecar(path, nil)
	require.NoError(t, err)

	assert.Equal(t, sc.Keys(), got.Keys())
	text, _ := got.Get(srs.OverallDescription)
	assert.Equal(t, "overall", text)
	src, ok := got.Diagram(srs.ClassDiagram)
	assert.True(t, ok)
	assert.Equal(t, "@startuml\nclass A\n@enduml", src)
}

func TestLoadSidecarCoercesExternalValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.sections.json")
	raw := `{
  "introduction": {"content": "recovered intro"},
  "overall_description": 42,
  "system_features": "- a\n- b",
  "bogus": "ignored",
  "system_models": {"class": "@startuml\nclass A\n@enduml", "pie": "x"}
}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	sc, err := LoadSidecar(path, nil)
	require.NoError(t, err)

	intro, _ := sc.Get(srs.Introduction)
	assert.Equal(t, "recovered intro", intro)
	assert.False(t, sc.Has(srs.OverallDescription), "non-text value is skipped")
	assert.True(t, sc.Has(srs.SystemFeatures))
	_, ok := sc.Diagram(srs.ClassDiagram)
	assert.True(t, ok)
}

func TestLoadSidecarRejectsBrokenJSON(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"introduction": `), 0o644))
	_, err := LoadSidecar(bad, nil)
	assert.ErrorIs(t, err, ErrInvalidSidecar)

	arr := filepath.Join(dir, "arr.json")
	require.NoError(t, os.WriteFile(arr, []byte(`["x"]`), 0o644))
	_, err = LoadSidecar(arr, nil)
	assert.ErrorIs(t, err, ErrInvalidSidecar)
}

func TestRenderFromSidecar(t *testing.T) {
	dir := t.TempDir()
	brief, err := srs.NewProjectBrief("d", "Bob", filepath.Join(dir, "doc"))
	require.NoError(t, err)

	sc := srs.NewSectionContext()
	for _, k := range srs.CanonicalOrder {
		sc, err = sc.With(k, "## Goals\n\nText for "+k.Title())
		require.NoError(t, err)
	}
	sc = sc.WithDiagram(srs.ActivityDiagram, "@startuml\nstart\nstop\n@enduml")

	fr := &fakeRenderer{dir: dir}
	opts := RenderOptions{Renderer: fr, HTMLPreview: true}
	diagrams, err := Render(context.Background(), brief, sc, opts)
	require.NoError(t, err)
	require.Len(t, diagrams, 3)
	assert.True(t, diagrams[0].Rendered())
	assert.False(t, diagrams[1].Rendered(), "no source saved for the sequence diagram")
	assert.FileExists(t, document.PreviewPath(brief.OutputFile))

	first := headingTexts(t, brief.OutputFile)
	assert.Contains(t, first, "2.1 Goals")
	assert.Contains(t, first, "7.1 Activity Diagram")

	// 再次渲染：不重复，也不会重新渲染已有的图
	fr.sources = nil
	_, err = Render(context.Background(), brief, sc, opts)
	require.NoError(t, err)
	assert.Equal(t, first, headingTexts(t, brief.OutputFile))
	assert.Empty(t, fr.sources)

	// 预览仍引用已嵌入的图，不写失败说明
	preview, err := os.ReadFile(document.PreviewPath(brief.OutputFile))
	require.NoError(t, err)
	assert.NotContains(t, string(preview), srs.ActivityDiagram.FailureNotice())
	assert.Contains(t, string(preview), "ActivityDiagram.png")
	assert.Contains(t, string(preview), srs.SequenceDiagram.FailureNotice())
}

func TestRenderWithoutRendererSkipsAppendix(t *testing.T) {
	dir := t.TempDir()
	brief, err := srs.NewProjectBrief("d", "Bob", filepath.Join(dir, "doc"))
	require.NoError(t, err)

	sc := srs.NewSectionContext()
	for _, k := range srs.CanonicalOrder {
		sc, err = sc.With(k, "Text for "+k.Title())
		require.NoError(t, err)
	}
	sc = sc.WithDiagram(srs.ClassDiagram, "@startuml\nclass A\n@enduml")

	diagrams, err := Render(context.Background(), brief, sc, RenderOptions{})
	require.NoError(t, err)
	assert.Empty(t, diagrams)

	hs, err := document.Headings(brief.OutputFile)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, document.SectionNumbers(hs))
	assert.NotContains(t, headingTexts(t, brief.OutputFile), srs.AppendixHeading())
}
