package diagram

import (
	"regexp"
	"strings"
)

// Normalize 统一换行、去掉行尾空白，并补齐缺失的 @startuml / @enduml。
func Normalize(code string) string {
	code = strings.ReplaceAll(code, "\r\n", "\n")
	code = strings.ReplaceAll(code, "\r", "\n")

	lines := strings.Split(code, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	code = strings.Trim(strings.Join(lines, "\n"), "\n")

	if !strings.HasPrefix(code, "@startuml") {
		code = "@startuml\n" + code
	}
	if !strings.HasSuffix(code, "@enduml") {
		code += "\n@enduml"
	}
	return code
}

type fixRule struct {
	re   *regexp.Regexp
	repl string
}

// 仅修正少数常见错误；规则越多越可能破坏本来正确的语法。
var fixRules = []fixRule{
	// markdown 代码围栏
	{regexp.MustCompile("(?m)^[ \t]*```.*$\n?"), ""},
	// 缺少 @ 的起止标记
	{regexp.MustCompile(`(?m)^[ \t]*startuml[ \t]*$`), "@startuml"},
	{regexp.MustCompile(`(?m)^[ \t]*enduml[ \t]*$`), "@enduml"},
	// unicode 箭头
	{regexp.MustCompile(`⟶|⇒`), "-->"},
	{regexp.MustCompile(`→`), "->"},
	{regexp.MustCompile(`←`), "<-"},
	// 中间带空格的箭头 "- >" / "< -"
	{regexp.MustCompile(`(-+)[ \t]+>`), "$1>"},
	{regexp.MustCompile(`<[ \t]+(-+)`), "<$1"},
	// 类图里单横线连接 "A - B"
	{regexp.MustCompile(`(?m)^([ \t]*\w+)[ \t]+-[ \t]+(\w+)`), "$1 -- $2"},
}

// AutoFix 对语法错误的源码做启发式修正，结果可能与输入相同。
func AutoFix(code string) string {
	for _, r := range fixRules {
		code = r.re.ReplaceAllString(code, r.repl)
	}
	return code
}
