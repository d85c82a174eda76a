package generator

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"srs_generator/srs"
)

const sampleUML = "@startuml\nA -> B: hi\n@enduml"

func TestExtractPlantUML(t *testing.T) {
	raw := "Sure! Here it is:\n```plantuml\n" + sampleUML + "\n```\nand another\n@startuml\nC -> D\n@enduml"
	got, ok := ExtractPlantUML(raw)
	require.True(t, ok)
	assert.Equal(t, sampleUML, got)

	_, ok = ExtractPlantUML("no diagram here")
	assert.False(t, ok)

	_, ok = ExtractPlantUML("@startuml\nA -> B\n")
	assert.False(t, ok, "unterminated block is not extracted")
}

func TestWellFormed(t *testing.T) {
	assert.True(t, wellFormed(sampleUML))
	assert.False(t, wellFormed("@startuml\n  \n@enduml"))
	assert.False(t, wellFormed("@startuml\n@startuml\nA -> B\n@enduml"))
}

func TestParseVerdict(t *testing.T) {
	assert.Equal(t, verdictValid, parseVerdict("VALID - looks good"))
	assert.Equal(t, verdictValid, parseVerdict("The code is valid."))
	assert.Equal(t, verdictInvalid, parseVerdict("INVALID: missing @enduml"))
	assert.Equal(t, verdictInvalid, parseVerdict("not VALID, actually INVALID"))
	assert.Equal(t, verdictUnknown, parseVerdict("I cannot tell"))
}

func TestDiagramClientRetriesUntilValid(t *testing.T) {
	llm := &scriptedLLM{replies: []reply{
		{text: "I would draw boxes and arrows."},
		{text: "```\n" + sampleUML + "\n```"},
		{text: "INVALID: arrows are wrong"},
		{text: sampleUML},
		{text: "VALID"},
	}}
	dc, err := NewDiagramClient(newTestClient(t, llm), nil, DiagramOptions{Validate: true, Temperature: DefaultTemperature})
	require.NoError(t, err)

	code, err := dc.Generate(context.Background(), srs.SequenceDiagram, testBrief(t), fullContext(t))
	require.NoError(t, err)
	assert.Equal(t, sampleUML, code)
	require.Len(t, llm.calls, 5)

	gen := llm.calls[0]
	assert.Equal(t, 2000, gen.MaxTokens)
	assert.Contains(t, gen.Messages[0].Content, "Sequence Diagram")
	assert.Contains(t, gen.Messages[1].Content, "Here is the use cases:\ntext of use_cases")

	val := llm.calls[2]
	assert.Equal(t, 500, val.MaxTokens)
	assert.Contains(t, val.Messages[0].Content, sampleUML)
}

func TestDiagramClientGivesUp(t *testing.T) {
	llm := &scriptedLLM{replies: []reply{
		{text: "nothing"}, {text: "still nothing"}, {text: "nope"}, {text: sampleUML},
	}}
	dc, err := NewDiagramClient(newTestClient(t, llm), nil, DiagramOptions{})
	require.NoError(t, err)

	_, err = dc.Generate(context.Background(), srs.ClassDiagram, testBrief(t), fullContext(t))
	require.ErrorIs(t, err, ErrNoDiagramCode)
	assert.Equal(t, 3, llm.callCount(), "bounded at three generation attempts")
}

func TestDiagramClientRequiresAllSections(t *testing.T) {
	llm := &scriptedLLM{}
	dc, err := NewDiagramClient(newTestClient(t, llm), nil, DiagramOptions{})
	require.NoError(t, err)

	sc, err := srs.NewSectionContext().With(srs.Introduction, "x")
	require.NoError(t, err)
	_, err = dc.Generate(context.Background(), srs.ActivityDiagram, testBrief(t), sc)
	require.ErrorIs(t, err, srs.ErrMissingSection)
	assert.Equal(t, 0, llm.callCount())
}

func TestMockLLMProducesUsableOutput(t *testing.T) {
	client := newTestClient(t, MockLLM{})
	dc, err := NewDiagramClient(client, nil, DiagramOptions{Validate: true})
	require.NoError(t, err)

	for _, kind := range srs.DefaultDiagramKinds {
		code, err := dc.Generate(context.Background(), kind, testBrief(t), fullContext(t))
		require.NoError(t, err, kind)
		assert.True(t, strings.HasPrefix(code, "@startuml"))
	}

	gen, err := NewSectionGenerator(SectionSpecs[2], client, nil, DefaultTemperature, nil)
	require.NoError(t, err)
	sc := srs.NewSectionContext()
	sc, _ = sc.With(srs.Introduction, "i")
	sc, _ = sc.With(srs.OverallDescription, "o")
	out, err := gen.Execute(context.Background(), testBrief(t), sc)
	require.NoError(t, err)
	text, _ := out.Get(srs.SystemFeatures)
	assert.Contains(t, text, "System Features")
}
