package srs

import (
	"fmt"
	"strings"
)

// DiagramKind is one of the UML views generated for the appendix.
type DiagramKind string

const (
	ActivityDiagram DiagramKind = "ActivityDiagram"
	SequenceDiagram DiagramKind = "SequenceDiagram"
	ClassDiagram    DiagramKind = "ClassDiagram"
)

// DefaultDiagramKinds is the configured order when nothing else is set.
var DefaultDiagramKinds = []DiagramKind{ActivityDiagram, SequenceDiagram, ClassDiagram}

var diagramAliases = map[string]DiagramKind{
	"activity":        ActivityDiagram,
	"activitydiagram": ActivityDiagram,
	"flow":            ActivityDiagram,
	"sequence":        SequenceDiagram,
	"sequencediagram": SequenceDiagram,
	"interaction":     SequenceDiagram,
	"class":           ClassDiagram,
	"classdiagram":    ClassDiagram,
	"structure":       ClassDiagram,
}

// ParseDiagramKind accepts the kind name or a short alias ("activity").
func ParseDiagramKind(s string) (DiagramKind, error) {
	key := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", ""))
	if k, ok := diagramAliases[key]; ok {
		return k, nil
	}
	return "", fmt.Errorf("unknown diagram kind %q", s)
}

// Title splits the camel-cased kind: "ActivityDiagram" -> "Activity Diagram".
func (k DiagramKind) Title() string {
	var b strings.Builder
	for i, r := range string(k) {
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// FailureNotice is written in place of an image that could not be produced.
func (k DiagramKind) FailureNotice() string {
	return "Failed to generate " + k.Title() + " image."
}

// RenderedDiagram is the outcome of the diagram stage for one kind. An empty
// ImagePath means generation or rendering failed.
type RenderedDiagram struct {
	Kind      DiagramKind `json:"kind"`
	Source    string      `json:"source,omitempty"`
	ImagePath string      `json:"image_path,omitempty"`
}

func (d RenderedDiagram) Rendered() bool {
	return d.ImagePath != ""
}

// DiagramSubheading returns "7.<index> <Kind title>" for the 1-based index of
// the kind in the configured list.
func DiagramSubheading(index int, kind DiagramKind) string {
	return fmt.Sprintf("%d.%d %s", AppendixNumber, index, kind.Title())
}
