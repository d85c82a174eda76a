package generator

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"sync"
	"text/template"
)

//go:embed templates/*.txt
var templatesFS embed.FS

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message 一条带角色的提示块。
type Message struct {
	Role    Role
	Content string
}

// Prompt 表示发送给 LLM 的有序消息及采样参数。
type Prompt struct {
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Flatten 拼接为单条字符串，供只接受纯文本输入的后端使用。
func (p Prompt) Flatten() string {
	parts := make([]string, 0, len(p.Messages))
	for _, m := range p.Messages {
		if c := strings.TrimSpace(m.Content); c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, "\n\n")
}

type PromptID string

const (
	PromptIntroduction       PromptID = "introduction"
	PromptOverallDescription PromptID = "overall_description"
	PromptSystemFeatures     PromptID = "system_features"
	PromptExternalInterfaces PromptID = "external_interfaces"
	PromptNonFunctional      PromptID = "non_functional_requirements"
	PromptUseCases           PromptID = "use_cases"

	PromptActivityDiagram PromptID = "activity_diagram"
	PromptSequenceDiagram PromptID = "sequence_diagram"
	PromptClassDiagram    PromptID = "class_diagram"
	PromptDiagramValidate PromptID = "diagram_validate"
)

// Registry 缓存解析后的嵌入模板。
type Registry struct {
	mu    sync.RWMutex
	cache map[string]*template.Template
}

func NewRegistry() *Registry {
	return &Registry{cache: make(map[string]*template.Template)}
}

// Build 渲染 id 对应的 system/user 模板，得到两段式 Prompt。
func (r *Registry) Build(id PromptID, data any) (Prompt, error) {
	systemPath, userPath, err := resolvePromptFiles(id)
	if err != nil {
		return Prompt{}, err
	}
	system, err := r.render(systemPath, data)
	if err != nil {
		return Prompt{}, err
	}
	user, err := r.render(userPath, data)
	if err != nil {
		return Prompt{}, err
	}
	return Prompt{Messages: []Message{
		{Role: RoleSystem, Content: system},
		{Role: RoleUser, Content: user},
	}}, nil
}

func (r *Registry) render(path string, data any) (string, error) {
	tpl, err := r.template(path)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", path, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func (r *Registry) template(path string) (*template.Template, error) {
	r.mu.RLock()
	if tpl, ok := r.cache[path]; ok {
		r.mu.RUnlock()
		return tpl, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if tpl, ok := r.cache[path]; ok {
		return tpl, nil
	}
	b, err := templatesFS.ReadFile(path)
	if err != nil {
		return nil, err
	}
	tpl, err := template.New(path).Option("missingkey=error").Parse(string(b))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	r.cache[path] = tpl
	return tpl, nil
}

func resolvePromptFiles(id PromptID) (systemFile string, userFile string, err error) {
	switch id {
	case PromptIntroduction, PromptOverallDescription, PromptSystemFeatures,
		PromptExternalInterfaces, PromptNonFunctional, PromptUseCases:
		return "templates/" + string(id) + ".system.txt", "templates/section.user.txt", nil
	case PromptActivityDiagram, PromptSequenceDiagram, PromptClassDiagram:
		return "templates/" + string(id) + ".system.txt", "templates/diagram.user.txt", nil
	case PromptDiagramValidate:
		return "templates/diagram_validate.system.txt", "templates/diagram_validate.user.txt", nil
	default:
		return "", "", fmt.Errorf("unknown prompt id: %s", id)
	}
}
