// Package srs holds the data model shared by the generation pipeline and the
// document renderer.
package srs

import (
	"strconv"
	"strings"
)

// SectionKey identifies one of the fixed SRS body sections.
type SectionKey string

const (
	Introduction              SectionKey = "introduction"
	OverallDescription        SectionKey = "overall_description"
	SystemFeatures            SectionKey = "system_features"
	ExternalInterfaces        SectionKey = "external_interfaces"
	NonFunctionalRequirements SectionKey = "non_functional_requirements"
	UseCases                  SectionKey = "use_cases"
)

// DiagramsKey is the context key under which generated diagram sources live.
const DiagramsKey = "system_models"

// CanonicalOrder is the pipeline order; a section's number is its 1-based
// position here.
var CanonicalOrder = []SectionKey{
	Introduction,
	OverallDescription,
	SystemFeatures,
	ExternalInterfaces,
	NonFunctionalRequirements,
	UseCases,
}

// AppendixNumber is the number of the diagram appendix section.
const AppendixNumber = 7

// AppendixTitle is the heading text of the diagram appendix (without number).
const AppendixTitle = "System Models and Diagrams"

// Number returns the fixed 1-based position of k, or 0 for unknown keys.
func (k SectionKey) Number() int {
	for i, key := range CanonicalOrder {
		if key == k {
			return i + 1
		}
	}
	return 0
}

// Valid reports whether k is one of the canonical keys.
func (k SectionKey) Valid() bool {
	return k.Number() > 0
}

// Title returns the title-cased key, e.g. "Non Functional Requirements".
func (k SectionKey) Title() string {
	words := strings.Split(string(k), "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// Heading returns the numbered top-level heading, e.g. "3. System Features".
func (k SectionKey) Heading() string {
	return strconv.Itoa(k.Number()) + ". " + k.Title()
}

// Placeholder is the literal text written when a section cannot be generated.
func (k SectionKey) Placeholder() string {
	return "Failed to generate " + k.Title() + " content."
}

// ParseSectionKey accepts the snake_case key.
func ParseSectionKey(s string) (SectionKey, bool) {
	k := SectionKey(strings.TrimSpace(strings.ToLower(s)))
	return k, k.Valid()
}

// AppendixHeading returns "7. System Models and Diagrams".
func AppendixHeading() string {
	return strconv.Itoa(AppendixNumber) + ". " + AppendixTitle
}
