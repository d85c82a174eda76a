package srs

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingSection is a contract violation: a stage ran before a section
	// it depends on was written.
	ErrMissingSection = errors.New("required section missing from context")
	// ErrSectionSealed means a key was written after a downstream key already
	// exists, i.e. out of pipeline order.
	ErrSectionSealed = errors.New("section written out of pipeline order")

	ErrUnknownSection = errors.New("unknown section key")
)

// SectionContext accumulates generated section text in pipeline order.
// It is a value type: With/WithDiagram return a modified copy and never touch
// the receiver, so a stage cannot mutate what earlier stages handed it.
type SectionContext struct {
	sections map[SectionKey]string
	diagrams map[DiagramKind]string
}

func NewSectionContext() SectionContext {
	return SectionContext{
		sections: map[SectionKey]string{},
		diagrams: map[DiagramKind]string{},
	}
}

// Get returns the text stored under k.
func (c SectionContext) Get(k SectionKey) (string, bool) {
	v, ok := c.sections[k]
	return v, ok
}

func (c SectionContext) Has(k SectionKey) bool {
	_, ok := c.sections[k]
	return ok
}

// Require checks that every key in keys has been written.
func (c SectionContext) Require(keys ...SectionKey) error {
	var missing []string
	for _, k := range keys {
		if !c.Has(k) {
			missing = append(missing, string(k))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingSection, strings.Join(missing, ", "))
	}
	return nil
}

// With returns a copy of c with k set to text. Rewriting k is allowed as long
// as no later section has been written yet.
func (c SectionContext) With(k SectionKey, text string) (SectionContext, error) {
	if !k.Valid() {
		return c, fmt.Errorf("%w: %q", ErrUnknownSection, k)
	}
	for _, later := range CanonicalOrder[k.Number():] {
		if c.Has(later) {
			return c, fmt.Errorf("%w: %s after %s", ErrSectionSealed, k, later)
		}
	}
	out := c.clone()
	out.sections[k] = text
	return out, nil
}

// WithDiagram returns a copy of c with the diagram source for kind set.
func (c SectionContext) WithDiagram(kind DiagramKind, source string) SectionContext {
	out := c.clone()
	out.diagrams[kind] = source
	return out
}

// Diagram returns the stored diagram source for kind.
func (c SectionContext) Diagram(kind DiagramKind) (string, bool) {
	v, ok := c.diagrams[kind]
	return v, ok
}

// Keys returns the written section keys in canonical order.
func (c SectionContext) Keys() []SectionKey {
	keys := make([]SectionKey, 0, len(c.sections))
	for _, k := range CanonicalOrder {
		if c.Has(k) {
			keys = append(keys, k)
		}
	}
	return keys
}

func (c SectionContext) Len() int {
	return len(c.sections)
}

func (c SectionContext) clone() SectionContext {
	out := NewSectionContext()
	for k, v := range c.sections {
		out.sections[k] = v
	}
	for k, v := range c.diagrams {
		out.diagrams[k] = v
	}
	return out
}

// MarshalJSON writes the flat mapping used by the sections sidecar file:
// section keys to text, plus DiagramsKey to a kind -> source mapping.
func (c SectionContext) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(c.sections)+1)
	for k, v := range c.sections {
		m[string(k)] = v
	}
	if len(c.diagrams) > 0 {
		d := make(map[string]string, len(c.diagrams))
		for k, v := range c.diagrams {
			d[string(k)] = v
		}
		m[DiagramsKey] = d
	}
	return json.Marshal(m)
}
