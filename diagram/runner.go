package diagram

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
)

// RunResult 外部进程的退出码与输出。
type RunResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner 执行外部命令；测试中替换为假实现。
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (RunResult, error)
}

// ExecRunner 基于 os/exec。非零退出码不算 error，只体现在 ExitCode；
// 启动失败或超时才返回 error。
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (RunResult, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := RunResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, ctxErr
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	return res, err
}
