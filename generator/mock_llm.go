package generator

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// MockLLM 一个简单的占位实现，便于本地调试，不调用外部模型。
// 章节提示返回固定结构的 Markdown，图表提示返回示例 PlantUML，校验提示返回 VALID。
type MockLLM struct{}

var mockSectionRe = regexp.MustCompile(`Please write the (.+?) section`)

func (m MockLLM) Complete(_ context.Context, prompt Prompt) (string, error) {
	system, user := "", ""
	for _, msg := range prompt.Messages {
		switch msg.Role {
		case RoleSystem:
			system += msg.Content
		case RoleUser:
			user += msg.Content
		}
	}

	switch {
	case strings.Contains(system, "PlantUML expert validator"):
		return "VALID - mock backend accepts every diagram", nil
	case strings.Contains(system, "Activity Diagram"):
		return "Here is the diagram:\n```plantuml\n" + mockActivity + "\n```", nil
	case strings.Contains(system, "Sequence Diagram"):
		return mockSequence, nil
	case strings.Contains(system, "Class Diagram"):
		return mockClass, nil
	}

	title := "Section"
	if m := mockSectionRe.FindStringSubmatch(user); len(m) == 2 {
		title = m[1]
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Overview\n\n")
	fmt.Fprintf(&sb, "**Summary:** This %s was produced by the offline mock backend.\n\n", title)
	sb.WriteString("- The project description is taken into account\n")
	sb.WriteString("- Earlier sections are kept consistent\n\n")
	sb.WriteString("## Details\n\n")
	sb.WriteString("Replace the *mock* provider with a real backend to get meaningful content.")
	return sb.String(), nil
}

const mockActivity = `@startuml
|User|
start
:Describe project;
|System|
:Generate sections;
if (All sections ok?) then (yes)
  :Render document;
else (no)
  :Insert placeholders;
endif
stop
@enduml`

const mockSequence = `@startuml
actor User
participant "Generator" as G
participant "LLM" as L
User -> G: Project description
activate G
G -> L: Section prompt
L --> G: Section text
G --> User: Document
deactivate G
@enduml`

const mockClass = `@startuml
class Project {
  -description: String
  +generate(): Document
}
class Document {
  -sections: List<Section>
  +save(path: String): void
}
Project "1" *-- "1" Document: produces
@enduml`
