package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"srs_generator/srs"
)

// EnvPrefix 环境变量前缀，例如 SRSGEN_LLM_PROVIDER。
const EnvPrefix = "SRSGEN"

// Providers 支持的生成后端。
var Providers = []string{"openai", "deepseek", "ollama", "gemini", "mock"}

// 各后端默认读取的 key 环境变量
var defaultKeyEnv = map[string]string{
	"openai":   "OPENAI_API_KEY",
	"deepseek": "DEEPSEEK_API_KEY",
	"gemini":   "GEMINI_API_KEY",
}

var defaultModel = map[string]string{
	"ollama": "llama3.2:1b",
	"gemini": "gemini-1.5-flash",
}

// DefaultPaths 未指定 --config 时依次查找的位置。
func DefaultPaths() []string {
	paths := []string{"srsgen.yaml", filepath.Join("config", "srsgen.yaml")}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "srsgen", "config.yaml"))
	}
	return paths
}

// Load 加载配置
// 按优先级：默认值 -> 配置文件 -> 环境变量（.env 会先载入进程环境）
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	if path != "" {
		if err := loadConfigFile(v, path); err != nil {
			return nil, err
		}
	} else {
		for _, p := range DefaultPaths() {
			if _, err := os.Stat(p); err == nil {
				if err := loadConfigFile(v, p); err != nil {
					return nil, err
				}
				break
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Resolve()
	return &cfg, nil
}

// loadConfigFile 读取文件，执行环境变量替换，并加载到 viper
func loadConfigFile(v *viper.Viper, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := v.MergeConfig(strings.NewReader(expandEnv(string(content)))); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

var envRefRe = regexp.MustCompile(`\${(\w+)(:([^}]*))?}`)

// expandEnv 替换字符串中的 ${VAR:default} 占位符；未定义且无默认值时保留原样
func expandEnv(s string) string {
	return envRefRe.ReplaceAllStringFunc(s, func(match string) string {
		sub := envRefRe.FindStringSubmatch(match)
		if val, ok := os.LookupEnv(sub[1]); ok {
			return val
		}
		if sub[2] != "" {
			return sub[3]
		}
		return match
	})
}

// setDefaults 设置配置默认值；所有键都要在这里出现，环境变量才能覆盖
func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", "ollama")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.api_key_env", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.timeout", "120s")
	v.SetDefault("llm.max_retries", 5)
	v.SetDefault("llm.backoff_base", "1s")
	v.SetDefault("llm.backoff_max", "16s")
	v.SetDefault("llm.flat_backoff", "1s")

	v.SetDefault("generation.temperature", 0.3)

	v.SetDefault("diagrams.enabled", true)
	v.SetDefault("diagrams.kinds", []string{"ActivityDiagram", "SequenceDiagram", "ClassDiagram"})
	v.SetDefault("diagrams.validate", true)
	v.SetDefault("diagrams.max_attempts", 3)
	v.SetDefault("diagrams.concurrency", 1)
	v.SetDefault("diagrams.llm.provider", "")
	v.SetDefault("diagrams.llm.model", "")
	v.SetDefault("diagrams.llm.api_key", "")
	v.SetDefault("diagrams.llm.api_key_env", "")
	v.SetDefault("diagrams.llm.base_url", "")

	v.SetDefault("plantuml.java_bin", "java")
	v.SetDefault("plantuml.jar_candidates", []string{})
	v.SetDefault("plantuml.output_dir", "diagrams")
	v.SetDefault("plantuml.timeout", "60s")
	v.SetDefault("plantuml.limit_size", 8192)

	v.SetDefault("document.font", "Times New Roman")
	v.SetDefault("document.image_width_inches", 6.0)
	v.SetDefault("document.html_preview", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 5)

	v.SetDefault("metrics.textfile", "")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.output", "")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.output_dir", "output")
	v.SetDefault("server.job_ttl", "24h")
	v.SetDefault("server.max_jobs", 2)
	v.SetDefault("server.job_timeout", "30m")
}

// Resolve 补齐与后端相关的默认值和密钥；命令行改写 provider 后需再次调用
func (c *Config) Resolve() {
	c.LLM = resolveLLM(c.LLM)
	if c.Diagrams.LLM.Provider != "" {
		c.Diagrams.LLM = resolveLLM(c.Diagrams.LLM)
	}
}

func resolveLLM(l LLMConfig) LLMConfig {
	l.Provider = strings.ToLower(strings.TrimSpace(l.Provider))
	if l.APIKey == "" {
		env := l.APIKeyEnv
		if env == "" {
			env = defaultKeyEnv[l.Provider]
		}
		if env != "" {
			l.APIKey = os.Getenv(env)
		}
	}
	if l.Model == "" {
		l.Model = defaultModel[l.Provider]
	}
	return l
}

// Validate 启动时检查；缺少凭据属于环境问题，直接失败
func (c *Config) Validate() error {
	var errs []error
	errs = append(errs, validateLLM("llm", c.LLM)...)
	if c.Diagrams.LLM.Provider != "" {
		errs = append(errs, validateLLM("diagrams.llm", c.DiagramLLM())...)
	}

	if c.Generation.Temperature < 0 || c.Generation.Temperature > 2 {
		errs = append(errs, fmt.Errorf("generation.temperature must be within [0, 2], got %v", c.Generation.Temperature))
	}
	if _, err := c.DiagramKinds(); err != nil {
		errs = append(errs, err)
	}
	if c.Diagrams.MaxAttempts <= 0 {
		errs = append(errs, errors.New("diagrams.max_attempts must be positive"))
	}
	if c.Diagrams.Concurrency <= 0 {
		errs = append(errs, errors.New("diagrams.concurrency must be positive"))
	}
	if c.PlantUML.Timeout <= 0 {
		errs = append(errs, errors.New("plantuml.timeout must be positive"))
	}
	if c.Document.ImageWidthInches <= 0 {
		errs = append(errs, errors.New("document.image_width_inches must be positive"))
	}
	if c.Server.MaxJobs <= 0 {
		errs = append(errs, errors.New("server.max_jobs must be positive"))
	}
	if c.Server.JobTimeout < 0 {
		errs = append(errs, errors.New("server.job_timeout must not be negative"))
	}
	if f := strings.ToLower(c.Logging.Format); f != "text" && f != "json" {
		errs = append(errs, fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format))
	}
	return errors.Join(errs...)
}

func validateLLM(prefix string, l LLMConfig) []error {
	var errs []error
	if !slices.Contains(Providers, l.Provider) {
		return []error{fmt.Errorf("%s.provider %q not supported (one of %s)", prefix, l.Provider, strings.Join(Providers, ", "))}
	}
	switch l.Provider {
	case "openai", "deepseek", "gemini":
		if l.APIKey == "" {
			errs = append(errs, fmt.Errorf("%s: %s api key missing; set %s.api_key or %s", prefix, l.Provider, prefix, keyEnvFor(l)))
		}
	}
	// DeepSeek 提供 OpenAI 兼容接口，需填写 base_url
	if l.Provider == "deepseek" && l.BaseURL == "" {
		errs = append(errs, fmt.Errorf("%s: provider deepseek requires base_url (OpenAI-compatible endpoint)", prefix))
	}
	if l.Provider != "mock" && l.Model == "" {
		errs = append(errs, fmt.Errorf("%s.model is required for provider %s", prefix, l.Provider))
	}
	if l.MaxRetries <= 0 {
		errs = append(errs, fmt.Errorf("%s.max_retries must be positive", prefix))
	}
	return errs
}

func keyEnvFor(l LLMConfig) string {
	if l.APIKeyEnv != "" {
		return l.APIKeyEnv
	}
	return defaultKeyEnv[l.Provider]
}

// DiagramKinds 解析 diagrams.kinds，保持配置顺序并去重。
func (c *Config) DiagramKinds() ([]srs.DiagramKind, error) {
	if len(c.Diagrams.Kinds) == 0 {
		return srs.DefaultDiagramKinds, nil
	}
	var out []srs.DiagramKind
	for _, s := range c.Diagrams.Kinds {
		k, err := srs.ParseDiagramKind(s)
		if err != nil {
			return nil, fmt.Errorf("diagrams.kinds: %w", err)
		}
		if !slices.Contains(out, k) {
			out = append(out, k)
		}
	}
	return out, nil
}
