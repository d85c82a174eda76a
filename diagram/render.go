// Package diagram renders PlantUML sources to PNG images with the PlantUML jar.
package diagram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"srs_generator/logger"
	"srs_generator/metrics"
	"srs_generator/srs"
	"srs_generator/tracing"
)

var (
	// ErrToolNotFound 环境问题，不重试。
	ErrToolNotFound = errors.New("plantuml jar not found")
	ErrSyntax       = errors.New("plantuml syntax error")
	ErrNoArtifact   = errors.New("plantuml exited cleanly but produced no image")
	ErrRenderFailed = errors.New("plantuml failed")
)

// SyntaxErrorExitCode PlantUML 遇到语法错误时的退出码。
const SyntaxErrorExitCode = 200

const jarName = "plantuml-mit-1.2025.0.jar"

// Options 渲染配置。
type Options struct {
	JavaBin       string
	JarCandidates []string
	OutputDir     string
	Timeout       time.Duration
	LimitSize     int
	Runner        Runner
	Logger        *slog.Logger
}

// DefaultJarCandidates 依次查找工作目录和可执行文件目录下的 lib/。
func DefaultJarCandidates() []string {
	out := []string{
		filepath.Join("lib", "plantuml.jar"),
		filepath.Join("lib", jarName),
	}
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		out = append(out,
			filepath.Join(dir, "lib", "plantuml.jar"),
			filepath.Join(dir, "lib", jarName),
		)
	}
	return out
}

// Renderer 把 PlantUML 源码渲染成 <OutputDir>/<Kind>.png。
type Renderer struct {
	opts Options
	log  *slog.Logger
}

func NewRenderer(opts Options) *Renderer {
	if opts.JavaBin == "" {
		opts.JavaBin = "java"
	}
	if len(opts.JarCandidates) == 0 {
		opts.JarCandidates = DefaultJarCandidates()
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "diagrams"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.LimitSize <= 0 {
		opts.LimitSize = 8192
	}
	if opts.Runner == nil {
		opts.Runner = ExecRunner{}
	}
	return &Renderer{
		opts: opts,
		log:  logger.OrDiscard(opts.Logger).With("component", "diagram_renderer"),
	}
}

// In 返回输出到 dir 的副本，供每次运行使用独立目录。
func (r *Renderer) In(dir string) *Renderer {
	cp := *r
	cp.opts.OutputDir = dir
	return &cp
}

func (r *Renderer) OutputDir() string {
	return r.opts.OutputDir
}

// LocateJar 返回第一个存在的候选 jar 路径。
func (r *Renderer) LocateJar() (string, error) {
	for _, p := range r.opts.JarCandidates {
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			abs, err := filepath.Abs(p)
			if err != nil {
				return p, nil
			}
			return abs, nil
		}
	}
	return "", fmt.Errorf("%w (searched %s)", ErrToolNotFound, strings.Join(r.opts.JarCandidates, ", "))
}

// Check 环境预检：定位 jar 并读取 PlantUML 版本信息。
func (r *Renderer) Check(ctx context.Context) (jar string, version string, err error) {
	jar, err = r.LocateJar()
	if err != nil {
		return "", "", err
	}
	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()
	res, err := r.opts.Runner.Run(ctx, r.opts.JavaBin, "-Djava.awt.headless=true", "-jar", jar, "-version")
	if err != nil {
		return jar, "", fmt.Errorf("run %s: %w", r.opts.JavaBin, err)
	}
	if res.ExitCode != 0 {
		return jar, "", fmt.Errorf("%w: exit %d: %s", ErrRenderFailed, res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	first, _, _ := strings.Cut(strings.TrimSpace(res.Stdout), "\n")
	return jar, first, nil
}

// Render 渲染一张图。语法错误时用 AutoFix 修正后恰好重试一次。
// 失败只影响这一张图，调用方据此写入失败提示。
func (r *Renderer) Render(ctx context.Context, kind srs.DiagramKind, source string) (srs.RenderedDiagram, error) {
	ctx, span := tracing.Start(ctx, "diagram.render", attribute.String("diagram.kind", string(kind)))
	defer span.End()
	log := r.log.With("diagram", string(kind))

	out := srs.RenderedDiagram{Kind: kind, Source: source}
	if strings.TrimSpace(source) == "" {
		err := fmt.Errorf("%s: empty source", kind)
		tracing.Fail(span, err)
		return out, err
	}

	jar, err := r.LocateJar()
	if err != nil {
		metrics.DiagramTotal.WithLabelValues(string(kind), "render", "tool_missing").Inc()
		tracing.Fail(span, err)
		log.Error("render tool unavailable", "error", err)
		return out, err
	}
	if err := os.MkdirAll(r.opts.OutputDir, 0o755); err != nil {
		tracing.Fail(span, err)
		return out, fmt.Errorf("create diagram dir: %w", err)
	}

	code := Normalize(source)
	out.Source = code
	img, err := r.runOnce(ctx, jar, kind, code, log)
	if errors.Is(err, ErrSyntax) {
		code = Normalize(AutoFix(code))
		out.Source = code
		log.Warn("syntax error reported, retrying once with auto-fixed source")
		img, err = r.runOnce(ctx, jar, kind, code, log)
	}
	if err != nil {
		metrics.DiagramTotal.WithLabelValues(string(kind), "render", "failed").Inc()
		tracing.Fail(span, err)
		log.Error("diagram render failed", "error", err)
		return out, err
	}

	out.ImagePath = img
	metrics.DiagramTotal.WithLabelValues(string(kind), "render", "ok").Inc()
	log.Info("diagram rendered", "image", img)
	return out, nil
}

func (r *Renderer) runOnce(ctx context.Context, jar string, kind srs.DiagramKind, code string, log *slog.Logger) (string, error) {
	base := filepath.Join(r.opts.OutputDir, string(kind))
	pumlPath := base + ".puml"
	pngPath := base + ".png"

	if err := os.WriteFile(pumlPath, []byte(code), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", pumlPath, err)
	}
	// 旧图会让"产物存在"检查失真
	if err := os.Remove(pngPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("remove stale %s: %w", pngPath, err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	args := []string{
		"-Djava.awt.headless=true",
		"-DPLANTUML_LIMIT_SIZE=" + strconv.Itoa(r.opts.LimitSize),
		"-jar", jar,
		"-charset", "UTF-8",
		"-tpng",
		"-timeout", strconv.Itoa(int(r.opts.Timeout / time.Second)),
		pumlPath,
	}
	log.Debug("running plantuml", "puml", pumlPath, "source", code)
	res, err := r.opts.Runner.Run(ctx, r.opts.JavaBin, args...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRenderFailed, err)
	}
	if res.Stdout != "" {
		log.Debug("plantuml stdout", "output", res.Stdout)
	}
	if res.Stderr != "" {
		log.Debug("plantuml stderr", "output", res.Stderr)
	}

	switch {
	case res.ExitCode == SyntaxErrorExitCode:
		return "", fmt.Errorf("%w: %s", ErrSyntax, strings.TrimSpace(res.Stderr))
	case res.ExitCode != 0:
		return "", fmt.Errorf("%w: exit %d", ErrRenderFailed, res.ExitCode)
	}
	if st, err := os.Stat(pngPath); err != nil || st.Size() == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoArtifact, pngPath)
	}
	return pngPath, nil
}
