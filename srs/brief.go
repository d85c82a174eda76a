package srs

import (
	"errors"
	"path/filepath"
	"strings"
)

// DocumentExt is the extension enforced on output identifiers.
const DocumentExt = ".docx"

var ErrIncompleteBrief = errors.New("description, author name and output file are required")

// ProjectBrief is the immutable pipeline input.
type ProjectBrief struct {
	Description string `json:"description"`
	Author      string `json:"author"`
	OutputFile  string `json:"output_file"`
}

// NewProjectBrief trims the inputs and normalizes the output extension.
func NewProjectBrief(description, author, outputFile string) (ProjectBrief, error) {
	b := ProjectBrief{
		Description: strings.TrimSpace(description),
		Author:      strings.TrimSpace(author),
		OutputFile:  NormalizeOutputFile(outputFile),
	}
	if b.Description == "" || b.Author == "" || b.OutputFile == "" {
		return ProjectBrief{}, ErrIncompleteBrief
	}
	return b, nil
}

// NormalizeOutputFile appends ".docx" unless the name already carries it.
func NormalizeOutputFile(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if strings.EqualFold(filepath.Ext(name), DocumentExt) {
		return name
	}
	return name + DocumentExt
}
