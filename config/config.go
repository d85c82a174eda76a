// Package config 提供配置加载和校验
package config

import (
	"time"
)

// Config 应用配置根结构
type Config struct {
	LLM        LLMConfig        `yaml:"llm" mapstructure:"llm"`
	Generation GenerationConfig `yaml:"generation" mapstructure:"generation"`
	Diagrams   DiagramsConfig   `yaml:"diagrams" mapstructure:"diagrams"`
	PlantUML   PlantUMLConfig   `yaml:"plantuml" mapstructure:"plantuml"`
	Document   DocumentConfig   `yaml:"document" mapstructure:"document"`
	Logging    LoggingConfig    `yaml:"logging" mapstructure:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics" mapstructure:"metrics"`
	Tracing    TracingConfig    `yaml:"tracing" mapstructure:"tracing"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
}

// LLMConfig 生成后端配置
type LLMConfig struct {
	// Provider: openai / deepseek / ollama / gemini / mock
	Provider string `yaml:"provider" mapstructure:"provider"`
	Model    string `yaml:"model" mapstructure:"model"`
	APIKey   string `yaml:"api_key" mapstructure:"api_key"`
	// APIKeyEnv 从指定环境变量读取 key（api_key 为空时）
	APIKeyEnv string        `yaml:"api_key_env" mapstructure:"api_key_env"`
	BaseURL   string        `yaml:"base_url" mapstructure:"base_url"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`

	// MaxRetries 总尝试次数（含首次）
	MaxRetries  int           `yaml:"max_retries" mapstructure:"max_retries"`
	BackoffBase time.Duration `yaml:"backoff_base" mapstructure:"backoff_base"`
	BackoffMax  time.Duration `yaml:"backoff_max" mapstructure:"backoff_max"`
	FlatBackoff time.Duration `yaml:"flat_backoff" mapstructure:"flat_backoff"`
}

// GenerationConfig 章节生成参数
type GenerationConfig struct {
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
}

// DiagramsConfig 图表阶段配置
type DiagramsConfig struct {
	Enabled     bool     `yaml:"enabled" mapstructure:"enabled"`
	Kinds       []string `yaml:"kinds" mapstructure:"kinds"`
	Validate    bool     `yaml:"validate" mapstructure:"validate"`
	MaxAttempts int      `yaml:"max_attempts" mapstructure:"max_attempts"`
	Concurrency int      `yaml:"concurrency" mapstructure:"concurrency"`
	// LLM 图表专用后端；provider 为空时沿用 llm.*
	LLM LLMConfig `yaml:"llm" mapstructure:"llm"`
}

// PlantUMLConfig 渲染工具配置
type PlantUMLConfig struct {
	JavaBin       string        `yaml:"java_bin" mapstructure:"java_bin"`
	JarCandidates []string      `yaml:"jar_candidates" mapstructure:"jar_candidates"`
	OutputDir     string        `yaml:"output_dir" mapstructure:"output_dir"`
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`
	LimitSize     int           `yaml:"limit_size" mapstructure:"limit_size"`
}

// DocumentConfig 文档输出配置
type DocumentConfig struct {
	Font             string  `yaml:"font" mapstructure:"font"`
	ImageWidthInches float64 `yaml:"image_width_inches" mapstructure:"image_width_inches"`
	HTMLPreview      bool    `yaml:"html_preview" mapstructure:"html_preview"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`
	Format     string `yaml:"format" mapstructure:"format"`
	File       string `yaml:"file" mapstructure:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Textfile string `yaml:"textfile" mapstructure:"textfile"`
}

// TracingConfig 追踪配置
type TracingConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Output  string `yaml:"output" mapstructure:"output"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Addr      string        `yaml:"addr" mapstructure:"addr"`
	OutputDir string        `yaml:"output_dir" mapstructure:"output_dir"`
	JobTTL    time.Duration `yaml:"job_ttl" mapstructure:"job_ttl"`
	MaxJobs   int           `yaml:"max_jobs" mapstructure:"max_jobs"`

	// JobTimeout 单个任务的超时；0 表示不限
	JobTimeout time.Duration `yaml:"job_timeout" mapstructure:"job_timeout"`
}

// DiagramLLM 返回图表阶段实际使用的后端配置。
func (c *Config) DiagramLLM() LLMConfig {
	d := c.Diagrams.LLM
	if d.Provider == "" {
		return c.LLM
	}
	base := c.LLM
	if d.Timeout <= 0 {
		d.Timeout = base.Timeout
	}
	if d.MaxRetries <= 0 {
		d.MaxRetries = base.MaxRetries
	}
	if d.BackoffBase <= 0 {
		d.BackoffBase = base.BackoffBase
	}
	if d.BackoffMax <= 0 {
		d.BackoffMax = base.BackoffMax
	}
	if d.FlatBackoff <= 0 {
		d.FlatBackoff = base.FlatBackoff
	}
	return d
}
