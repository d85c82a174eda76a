package generator

// Outcome 一次生成的三态结果。
type Outcome int

const (
	Success Outcome = iota
	RetryableFailure
	TerminalFailure
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case RetryableFailure:
		return "retryable_failure"
	case TerminalFailure:
		return "terminal_failure"
	default:
		return "unknown"
	}
}

// Result 是 Client.Generate 的返回值。重试耗尽后 Outcome 保留最后一次失败的类别，
// 调用方通过 OK 判断是否应使用兜底文本。
type Result struct {
	Outcome  Outcome
	Text     string
	Reason   string
	Attempts int
}

func (r Result) OK() bool {
	return r.Outcome == Success
}

// TextOr 成功时返回生成文本，否则返回 fallback。
func (r Result) TextOr(fallback string) string {
	if r.OK() {
		return r.Text
	}
	return fallback
}
