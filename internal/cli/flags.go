package cli

import (
	"fmt"

	"github.com/spf13/pflag"

	"llmsock/internal/config"
)

// flagValues receives parsed flags; only flags the user set are applied.
type flagValues struct {
	configPath string
	cfg        config.Config
}

func addServeFlags(fs *pflag.FlagSet, fv *flagValues) {
	d := config.Default()
	c := &fv.cfg
	fs.StringVarP(&fv.configPath, "config", "c", "", "config file (.yaml, .yml, .json, .toml)")
	fs.StringVarP(&c.Model, "model", "m", "", "path to the model weights")
	fs.StringVarP(&c.ModelArch, "model-arch", "a", "", "model architecture (detected from GGUF when empty)")
	fs.StringVarP(&c.PromptTemplate, "prompt-template", "T", "", "path to the prompt template; {prompt} is replaced by each line")
	fs.StringVar(&c.Host, "host", "", "listen host (all interfaces when empty)")
	fs.IntVarP(&c.Port, "port", "p", d.Port, "listen port")
	fs.IntVarP(&c.BatchSize, "batch-size", "b", d.BatchSize, "tokens processed per inference step")
	fs.IntVarP(&c.Threads, "threads", "t", d.Threads, "inference threads")
	fs.IntVarP(&c.GPULayers, "gpu-layers", "g", 0, "layers to offload to the GPU")
	fs.IntVar(&c.ContextSize, "context-size", d.ContextSize, "context window in tokens")
	fs.Int64Var(&c.Seed, "seed", 0, "sampling seed (0 picks a time based seed per connection)")
	fs.IntVar(&c.MaxLineBytes, "max-line-bytes", d.MaxLineBytes, "longest accepted request line")
	fs.IntVar(&c.SchedulerWidth, "scheduler-width", d.SchedulerWidth, "tasks allowed to run at once")
	fs.IntVar(&c.Sampling.TopK, "top-k", d.Sampling.TopK, "top-k sampling")
	fs.Float64Var(&c.Sampling.TopP, "top-p", d.Sampling.TopP, "nucleus sampling probability")
	fs.Float64Var(&c.Sampling.Temperature, "temperature", d.Sampling.Temperature, "sampling temperature")
	fs.Float64Var(&c.Sampling.RepeatPenalty, "repeat-penalty", d.Sampling.RepeatPenalty, "repetition penalty")
	fs.IntVar(&c.Sampling.RepeatLastN, "repeat-last-n", d.Sampling.RepeatLastN, "tokens considered for the repetition penalty")
	fs.IntVar(&c.Sampling.MaxTokens, "max-tokens", 0, "cap on tokens per response (0 = until the model stops)")
	fs.StringVar(&c.AdminAddr, "admin-addr", "", "admin HTTP address, e.g. 127.0.0.1:9090 (disabled when empty)")
	fs.StringSliceVar(&c.CORSOrigins, "cors-origins", nil, "origins allowed to call the admin HTTP API")
	fs.StringVar(&c.LogLevel, "log-level", d.LogLevel, "log level: trace|debug|info|warn|error|disabled")
	fs.StringVar(&c.LogFormat, "log-format", d.LogFormat, "log format: console|json")
}

// applyChanged copies every flag the user set onto cfg, including explicit
// zero values.
func applyChanged(fs *pflag.FlagSet, fv *flagValues, cfg *config.Config) {
	c := &fv.cfg
	fs.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "model":
			cfg.Model = c.Model
		case "model-arch":
			cfg.ModelArch = c.ModelArch
		case "prompt-template":
			cfg.PromptTemplate = c.PromptTemplate
		case "host":
			cfg.Host = c.Host
		case "port":
			cfg.Port = c.Port
		case "batch-size":
			cfg.BatchSize = c.BatchSize
		case "threads":
			cfg.Threads = c.Threads
		case "gpu-layers":
			cfg.GPULayers = c.GPULayers
		case "context-size":
			cfg.ContextSize = c.ContextSize
		case "seed":
			cfg.Seed = c.Seed
		case "max-line-bytes":
			cfg.MaxLineBytes = c.MaxLineBytes
		case "scheduler-width":
			cfg.SchedulerWidth = c.SchedulerWidth
		case "top-k":
			cfg.Sampling.TopK = c.Sampling.TopK
		case "top-p":
			cfg.Sampling.TopP = c.Sampling.TopP
		case "temperature":
			cfg.Sampling.Temperature = c.Sampling.Temperature
		case "repeat-penalty":
			cfg.Sampling.RepeatPenalty = c.Sampling.RepeatPenalty
		case "repeat-last-n":
			cfg.Sampling.RepeatLastN = c.Sampling.RepeatLastN
		case "max-tokens":
			cfg.Sampling.MaxTokens = c.Sampling.MaxTokens
		case "admin-addr":
			cfg.AdminAddr = c.AdminAddr
		case "cors-origins":
			cfg.CORSOrigins = append([]string(nil), c.CORSOrigins...)
		case "log-level":
			cfg.LogLevel = c.LogLevel
		case "log-format":
			cfg.LogFormat = c.LogFormat
		}
	})
}

// resolveConfig layers defaults < config file < environment < flags.
func resolveConfig(fs *pflag.FlagSet, fv *flagValues, environ []string) (config.Config, error) {
	cfg := config.Default()
	if fv.configPath != "" {
		fc, err := config.Load(fv.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = config.Merge(cfg, fc)
	}
	ec, err := config.FromEnv(environ)
	if err != nil {
		return cfg, err
	}
	cfg = config.Merge(cfg, ec)
	applyChanged(fs, fv, &cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
