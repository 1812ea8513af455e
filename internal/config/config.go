package config

import (
	"errors"
	"fmt"
	"strings"
)

// Defaults applied by Default and by Merge when a field is unset.
const (
	DefaultPort           = 3000
	DefaultBatchSize      = 8
	DefaultThreads        = 2
	DefaultContextSize    = 2048
	DefaultMaxLineBytes   = 1 << 20
	DefaultSchedulerWidth = 1
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "console"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and are replaced by defaults.
type Config struct {
	Model          string   `json:"model" yaml:"model" toml:"model" mapstructure:"model"`
	ModelArch      string   `json:"model_arch" yaml:"model_arch" toml:"model_arch" mapstructure:"model_arch"`
	PromptTemplate string   `json:"prompt_template" yaml:"prompt_template" toml:"prompt_template" mapstructure:"prompt_template"`
	Host           string   `json:"host" yaml:"host" toml:"host" mapstructure:"host"`
	Port           int      `json:"port" yaml:"port" toml:"port" mapstructure:"port"`
	BatchSize      int      `json:"batch_size" yaml:"batch_size" toml:"batch_size" mapstructure:"batch_size"`
	Threads        int      `json:"threads" yaml:"threads" toml:"threads" mapstructure:"threads"`
	GPULayers      int      `json:"gpu_layers" yaml:"gpu_layers" toml:"gpu_layers" mapstructure:"gpu_layers"`
	ContextSize    int      `json:"context_size" yaml:"context_size" toml:"context_size" mapstructure:"context_size"`
	Seed           int64    `json:"seed" yaml:"seed" toml:"seed" mapstructure:"seed"`
	MaxLineBytes   int      `json:"max_line_bytes" yaml:"max_line_bytes" toml:"max_line_bytes" mapstructure:"max_line_bytes"`
	SchedulerWidth int      `json:"scheduler_width" yaml:"scheduler_width" toml:"scheduler_width" mapstructure:"scheduler_width"`
	Sampling       Sampling `json:"sampling" yaml:"sampling" toml:"sampling" mapstructure:"sampling"`
	AdminAddr      string   `json:"admin_addr" yaml:"admin_addr" toml:"admin_addr" mapstructure:"admin_addr"`
	CORSOrigins    []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins" mapstructure:"cors_origins"`
	LogLevel       string   `json:"log_level" yaml:"log_level" toml:"log_level" mapstructure:"log_level"`
	LogFormat      string   `json:"log_format" yaml:"log_format" toml:"log_format" mapstructure:"log_format"`
}

// Sampling mirrors model.SamplingParams in file form.
type Sampling struct {
	TopK          int     `json:"top_k" yaml:"top_k" toml:"top_k" mapstructure:"top_k"`
	TopP          float64 `json:"top_p" yaml:"top_p" toml:"top_p" mapstructure:"top_p"`
	Temperature   float64 `json:"temperature" yaml:"temperature" toml:"temperature" mapstructure:"temperature"`
	RepeatPenalty float64 `json:"repeat_penalty" yaml:"repeat_penalty" toml:"repeat_penalty" mapstructure:"repeat_penalty"`
	RepeatLastN   int     `json:"repeat_last_n" yaml:"repeat_last_n" toml:"repeat_last_n" mapstructure:"repeat_last_n"`
	MaxTokens     int     `json:"max_tokens" yaml:"max_tokens" toml:"max_tokens" mapstructure:"max_tokens"`
}

// Default returns a Config with every optional field set.
func Default() Config {
	return Config{
		Port:           DefaultPort,
		BatchSize:      DefaultBatchSize,
		Threads:        DefaultThreads,
		ContextSize:    DefaultContextSize,
		MaxLineBytes:   DefaultMaxLineBytes,
		SchedulerWidth: DefaultSchedulerWidth,
		Sampling: Sampling{
			TopK:          40,
			TopP:          0.95,
			Temperature:   0.80,
			RepeatPenalty: 1.30,
			RepeatLastN:   64,
		},
		LogLevel:  DefaultLogLevel,
		LogFormat: DefaultLogFormat,
	}
}

// Merge overlays every non-zero field of over onto base.
func Merge(base, over Config) Config {
	out := base
	setS(&out.Model, over.Model)
	setS(&out.ModelArch, over.ModelArch)
	setS(&out.PromptTemplate, over.PromptTemplate)
	setS(&out.Host, over.Host)
	setI(&out.Port, over.Port)
	setI(&out.BatchSize, over.BatchSize)
	setI(&out.Threads, over.Threads)
	setI(&out.GPULayers, over.GPULayers)
	setI(&out.ContextSize, over.ContextSize)
	if over.Seed != 0 {
		out.Seed = over.Seed
	}
	setI(&out.MaxLineBytes, over.MaxLineBytes)
	setI(&out.SchedulerWidth, over.SchedulerWidth)
	setI(&out.Sampling.TopK, over.Sampling.TopK)
	setF(&out.Sampling.TopP, over.Sampling.TopP)
	setF(&out.Sampling.Temperature, over.Sampling.Temperature)
	setF(&out.Sampling.RepeatPenalty, over.Sampling.RepeatPenalty)
	setI(&out.Sampling.RepeatLastN, over.Sampling.RepeatLastN)
	setI(&out.Sampling.MaxTokens, over.Sampling.MaxTokens)
	setS(&out.AdminAddr, over.AdminAddr)
	if len(over.CORSOrigins) > 0 {
		out.CORSOrigins = append([]string(nil), over.CORSOrigins...)
	}
	setS(&out.LogLevel, over.LogLevel)
	setS(&out.LogFormat, over.LogFormat)
	return out
}

func setS(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setI(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setF(dst *float64, v float64) {
	if v != 0 {
		*dst = v
	}
}

// ListenAddr joins Host and Port; an empty host binds all interfaces.
func (c Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate reports every problem found, joined into one error.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Model) == "" {
		errs = append(errs, errors.New("model path is required"))
	}
	if strings.TrimSpace(c.PromptTemplate) == "" {
		errs = append(errs, errors.New("prompt template path is required"))
	}
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("batch size must be positive, got %d", c.BatchSize))
	}
	if c.Threads <= 0 {
		errs = append(errs, fmt.Errorf("threads must be positive, got %d", c.Threads))
	}
	if c.GPULayers < 0 {
		errs = append(errs, fmt.Errorf("gpu layers must not be negative, got %d", c.GPULayers))
	}
	if c.ContextSize <= 0 {
		errs = append(errs, fmt.Errorf("context size must be positive, got %d", c.ContextSize))
	}
	if c.MaxLineBytes <= 0 {
		errs = append(errs, fmt.Errorf("max line bytes must be positive, got %d", c.MaxLineBytes))
	}
	if c.SchedulerWidth <= 0 {
		errs = append(errs, fmt.Errorf("scheduler width must be positive, got %d", c.SchedulerWidth))
	}
	if c.Sampling.TopP <= 0 || c.Sampling.TopP > 1 {
		errs = append(errs, fmt.Errorf("top_p must be in (0,1], got %g", c.Sampling.TopP))
	}
	if c.Sampling.Temperature < 0 {
		errs = append(errs, fmt.Errorf("temperature must not be negative, got %g", c.Sampling.Temperature))
	}
	if c.Sampling.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("max_tokens must not be negative, got %d", c.Sampling.MaxTokens))
	}
	switch c.LogLevel {
	case "trace", "debug", "info", "warn", "error", "disabled":
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.LogLevel))
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	return errors.Join(errs...)
}
