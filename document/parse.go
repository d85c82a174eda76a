package document

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// ErrNotText 章节值不是字符串且无法从中恢复出文本。
var ErrNotText = errors.New("section value is not text")

type BlockKind int

const (
	HeadingBlock BlockKind = iota
	ParagraphBlock
	BulletListBlock
)

func (k BlockKind) String() string {
	switch k {
	case HeadingBlock:
		return "heading"
	case ParagraphBlock:
		return "paragraph"
	case BulletListBlock:
		return "bullets"
	default:
		return "unknown"
	}
}

// Block 是解析后的一个结构块。行内 ** 标记原样保留，渲染时再处理。
type Block struct {
	Kind  BlockKind
	Text  string
	Level int
	Items []string
}

func Heading(text string, level int) Block {
	return Block{Kind: HeadingBlock, Text: text, Level: level}
}

func Paragraph(text string) Block {
	return Block{Kind: ParagraphBlock, Text: text}
}

func BulletList(items ...string) Block {
	return Block{Kind: BulletListBlock, Items: items}
}

var (
	chunkSepRe = regexp.MustCompile(`\n[ \t]*\n\s*`)
	headingRe  = regexp.MustCompile(`^(#+)\s+(.*?)\s*$`)
	bulletRe   = regexp.MustCompile(`^\s*[-*]\s+(.*?)\s*$`)
)

// Parse 按空行切块，识别标题、项目列表和普通段落。
// 标题行之后紧跟的内容（无空行分隔）作为独立块继续解析。
func Parse(raw string) []Block {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	var out []Block
	for _, chunk := range chunkSepRe.Split(raw, -1) {
		out = appendChunk(out, strings.TrimSpace(chunk))
	}
	return out
}

func appendChunk(out []Block, chunk string) []Block {
	if chunk == "" {
		return out
	}

	first, rest, _ := strings.Cut(chunk, "\n")
	if m := headingRe.FindStringSubmatch(strings.TrimSpace(first)); m != nil && m[2] != "" {
		out = append(out, Heading(m[2], len(m[1])))
		return appendChunk(out, strings.TrimSpace(rest))
	}

	if items, ok := bulletItems(chunk); ok {
		return append(out, BulletList(items...))
	}
	return append(out, Paragraph(chunk))
}

// bulletItems 只有当每个非空行都是项目符号行时才返回 true。
func bulletItems(chunk string) ([]string, bool) {
	var items []string
	for _, line := range strings.Split(chunk, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		m := bulletRe.FindStringSubmatch(line)
		if m == nil {
			return nil, false
		}
		items = append(items, m[1])
	}
	return items, len(items) > 0
}

// CoerceText 把外部边界上的章节值转成文本。字符串原样返回；
// 嵌套的 map/slice 取遇到的第一个非空字符串（recovered=true）；否则返回 ErrNotText。
func CoerceText(v any) (text string, recovered bool, err error) {
	if s, ok := v.(string); ok {
		return s, false, nil
	}
	if s, ok := firstString(v); ok {
		return s, true, nil
	}
	return "", false, fmt.Errorf("%w: %T", ErrNotText, v)
}

// ParseValue 是 CoerceText 与 Parse 的组合。
func ParseValue(v any) ([]Block, error) {
	text, _, err := CoerceText(v)
	if err != nil {
		return nil, err
	}
	return Parse(text), nil
}

func firstString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, strings.TrimSpace(t) != ""
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if s, ok := firstString(t[k]); ok {
				return s, true
			}
		}
	case []any:
		for _, item := range t {
			if s, ok := firstString(item); ok {
				return s, true
			}
		}
	}
	return "", false
}

// Run 一段同格式的行内文本。
type Run struct {
	Text string
	Bold bool
}

var boldRe = regexp.MustCompile(`\*\*(.+?)\*\*|\*(.+?)\*`)

// SplitInline 依次找出 **粗体** 或 *粗体* 标记，拆成普通/粗体交替的 Run。
func SplitInline(text string) []Run {
	var runs []Run
	for text != "" {
		loc := boldRe.FindStringSubmatchIndex(text)
		if loc == nil {
			runs = append(runs, Run{Text: text})
			break
		}
		if loc[0] > 0 {
			runs = append(runs, Run{Text: text[:loc[0]]})
		}
		var bold string
		if loc[2] >= 0 {
			bold = text[loc[2]:loc[3]]
		} else {
			bold = text[loc[4]:loc[5]]
		}
		runs = append(runs, Run{Text: bold, Bold: true})
		text = text[loc[1]:]
	}
	return runs
}

// PlainText 去掉行内粗体标记。
func PlainText(text string) string {
	var sb strings.Builder
	for _, r := range SplitInline(text) {
		sb.WriteString(r.Text)
	}
	return sb.String()
}
