package srs

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSectionKeyNumbering(t *testing.T) {
	want := []string{
		"1. Introduction",
		"2. Overall Description",
		"3. System Features",
		"4. External Interfaces",
		"5. Non Functional Requirements",
		"6. Use Cases",
	}
	for i, k := range CanonicalOrder {
		assert.Equal(t, want[i], k.Heading())
	}
	assert.Equal(t, "7. System Models and Diagrams", AppendixHeading())
	assert.Equal(t, 0, SectionKey("appendix").Number())
}

func TestPlaceholder(t *testing.T) {
	assert.Equal(t, "Failed to generate System Features content.", SystemFeatures.Placeholder())
}

func TestSectionContextCopyOnWrite(t *testing.T) {
	base := NewSectionContext()
	next, err := base.With(Introduction, "intro")
	require.NoError(t, err)

	assert.False(t, base.Has(Introduction), "receiver must not change")
	got, ok := next.Get(Introduction)
	require.True(t, ok)
	assert.Equal(t, "intro", got)

	withDiagram := next.WithDiagram(ClassDiagram, "@startuml\n@enduml")
	_, ok = next.Diagram(ClassDiagram)
	assert.False(t, ok)
	_, ok = withDiagram.Diagram(ClassDiagram)
	assert.True(t, ok)
}

func TestSectionContextOrdering(t *testing.T) {
	sc := NewSectionContext()
	sc, err := sc.With(Introduction, "a")
	require.NoError(t, err)
	sc, err = sc.With(OverallDescription, "b")
	require.NoError(t, err)

	// rewriting the newest key is fine
	sc, err = sc.With(OverallDescription, "b2")
	require.NoError(t, err)

	_, err = sc.With(Introduction, "late")
	assert.ErrorIs(t, err, ErrSectionSealed)

	_, err = sc.With(SectionKey("bogus"), "x")
	assert.ErrorIs(t, err, ErrUnknownSection)

	assert.Equal(t, []SectionKey{Introduction, OverallDescription}, sc.Keys())
}

func TestSectionContextRequire(t *testing.T) {
	sc, err := NewSectionContext().With(Introduction, "a")
	require.NoError(t, err)

	assert.NoError(t, sc.Require(Introduction))
	err = sc.Require(Introduction, OverallDescription, SystemFeatures)
	require.ErrorIs(t, err, ErrMissingSection)
	assert.Contains(t, err.Error(), "overall_description, system_features")
}

func TestSectionContextJSON(t *testing.T) {
	sc, err := NewSectionContext().With(Introduction, "hello")
	require.NoError(t, err)
	sc = sc.WithDiagram(SequenceDiagram, "@startuml\nA -> B\n@enduml")

	raw, err := json.Marshal(sc)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, "hello", m["introduction"])
	diagrams, ok := m[DiagramsKey].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, diagrams, "SequenceDiagram")
}

func TestNewProjectBrief(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		want    string
		wantErr bool
	}{
		{name: "adds extension", output: "Project_SRS", want: "Project_SRS.docx"},
		{name: "keeps extension", output: "out/Project.docx", want: "out/Project.docx"},
		{name: "case insensitive", output: "Project.DOCX", want: "Project.DOCX"},
		{name: "other extension", output: "notes.txt", want: "notes.txt.docx"},
		{name: "empty", output: "  ", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewProjectBrief("a todo app", "Jane", tt.output)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrIncompleteBrief)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, b.OutputFile)
		})
	}
}

func TestDiagramKinds(t *testing.T) {
	k, err := ParseDiagramKind("activity")
	require.NoError(t, err)
	assert.Equal(t, ActivityDiagram, k)

	k, err = ParseDiagramKind("Class_Diagram")
	require.NoError(t, err)
	assert.Equal(t, ClassDiagram, k)

	_, err = ParseDiagramKind("gantt")
	assert.Error(t, err)

	assert.Equal(t, "Sequence Diagram", SequenceDiagram.Title())
	assert.Equal(t, "Failed to generate Class Diagram image.", ClassDiagram.FailureNotice())
	assert.Equal(t, "7.2 Sequence Diagram", DiagramSubheading(2, SequenceDiagram))
}
