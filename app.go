package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"srs_generator/config"
	"srs_generator/diagram"
	"srs_generator/document"
	"srs_generator/generator"
	"srs_generator/logger"
	"srs_generator/pipeline"
	"srs_generator/tracing"
)

// app 一次进程运行所需的配置和基础设施
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	closers []func(context.Context) error
}

// newApp 加载配置并初始化日志和追踪。mutate 在校验之前应用命令行覆盖项。
func newApp(flags *rootFlags, validate bool, mutate func(*config.Config)) (*app, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	if flags.verbose {
		cfg.Logging.Level = "debug"
	}
	if mutate != nil {
		mutate(cfg)
	}
	if validate {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration:\n%w", err)
		}
	}

	log, closeLog := logger.New(logger.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
	a := &app{cfg: cfg, log: log}
	a.closers = append(a.closers, func(context.Context) error { return closeLog() })

	shutdownTracing, err := tracing.Init(tracing.Config{Enabled: cfg.Tracing.Enabled, Output: cfg.Tracing.Output})
	if err != nil {
		_ = closeLog()
		return nil, err
	}
	// 先注册的后关闭，日志最后关
	a.closers = append(a.closers, shutdownTracing)
	return a, nil
}

// Close 按注册的逆序释放资源
func (a *app) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	return errors.Join(errs...)
}

// buildLLM 按 provider 构造后端
func buildLLM(l config.LLMConfig) (generator.LLMClient, error) {
	settings := &generator.LLMSettings{
		Provider: l.Provider,
		Model:    l.Model,
		APIKey:   l.APIKey,
		BaseURL:  l.BaseURL,
		Timeout:  l.Timeout,
	}
	switch l.Provider {
	case "openai":
		return generator.NewOpenAILLMFromConfig(settings)
	case "deepseek":
		// DeepSeek 提供 OpenAI 兼容接口，需填写 base_url（例如官方/网关地址）。
		if l.BaseURL == "" {
			return nil, fmt.Errorf("llm provider deepseek requires base_url (OpenAI-compatible endpoint)")
		}
		return generator.NewOpenAILLMFromConfig(settings)
	case "ollama":
		return generator.NewOllamaLLM(settings)
	case "gemini":
		return generator.NewGeminiLLM(settings)
	case "mock":
		return generator.MockLLM{}, nil
	case "":
		return nil, fmt.Errorf("llm config missing; please set llm.provider/model/api_key_env in config")
	default:
		return nil, fmt.Errorf("llm provider %s not supported", l.Provider)
	}
}

func retryPolicy(l config.LLMConfig) generator.RetryPolicy {
	return generator.RetryPolicy{
		MaxAttempts: l.MaxRetries,
		BaseDelay:   l.BackoffBase,
		MaxDelay:    l.BackoffMax,
		FlatDelay:   l.FlatBackoff,
	}
}

func (a *app) newClient(l config.LLMConfig) (*generator.Client, error) {
	llm, err := buildLLM(l)
	if err != nil {
		return nil, err
	}
	return generator.NewClient(llm, generator.ClientOptions{
		Provider: l.Provider,
		Model:    l.Model,
		Policy:   retryPolicy(l),
		Logger:   a.log,
	})
}

func (a *app) diagramRenderer(outputDir string) *diagram.Renderer {
	if outputDir == "" {
		outputDir = a.cfg.PlantUML.OutputDir
	}
	return diagram.NewRenderer(diagram.Options{
		JavaBin:       a.cfg.PlantUML.JavaBin,
		JarCandidates: a.cfg.PlantUML.JarCandidates,
		OutputDir:     outputDir,
		Timeout:       a.cfg.PlantUML.Timeout,
		LimitSize:     a.cfg.PlantUML.LimitSize,
		Logger:        a.log,
	})
}

func (a *app) documentRenderer() *document.Renderer {
	return document.NewRenderer(document.Options{
		Font:             a.cfg.Document.Font,
		ImageWidthInches: a.cfg.Document.ImageWidthInches,
		Logger:           a.log,
	})
}

// newPipeline 组装流水线；diagramDir 为空时使用 plantuml.output_dir。
func (a *app) newPipeline(diagramDir string) (*pipeline.Pipeline, error) {
	client, err := a.newClient(a.cfg.LLM)
	if err != nil {
		return nil, err
	}
	prompts := generator.NewRegistry()
	gens, err := generator.NewSectionGenerators(client, prompts, a.cfg.Generation.Temperature, a.log)
	if err != nil {
		return nil, err
	}
	stages := make([]pipeline.SectionStage, 0, len(gens))
	for _, g := range gens {
		stages = append(stages, g)
	}

	deps := pipeline.Deps{Sections: stages, Document: a.documentRenderer()}
	if a.cfg.Diagrams.Enabled {
		diagramClient := client
		if a.cfg.Diagrams.LLM.Provider != "" {
			if diagramClient, err = a.newClient(a.cfg.DiagramLLM()); err != nil {
				return nil, fmt.Errorf("diagrams llm: %w", err)
			}
		}
		dc, err := generator.NewDiagramClient(diagramClient, prompts, generator.DiagramOptions{
			MaxAttempts: a.cfg.Diagrams.MaxAttempts,
			Validate:    a.cfg.Diagrams.Validate,
			Temperature: a.cfg.Generation.Temperature,
			Logger:      a.log,
		})
		if err != nil {
			return nil, err
		}
		deps.Diagrams = dc
		deps.Renderer = a.diagramRenderer(diagramDir)
	}

	kinds, err := a.cfg.DiagramKinds()
	if err != nil {
		return nil, err
	}
	return pipeline.New(deps, pipeline.Options{
		DiagramKinds:    kinds,
		Concurrency:     a.cfg.Diagrams.Concurrency,
		HTMLPreview:     a.cfg.Document.HTMLPreview,
		MetricsTextfile: a.cfg.Metrics.Textfile,
		Logger:          a.log,
	})
}
