package config

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// EnvPrefix is prepended to every upper-cased config key.
const EnvPrefix = "LLMSOCK_"

var samplingKeys = map[string]bool{
	"top_k":          true,
	"top_p":          true,
	"temperature":    true,
	"repeat_penalty": true,
	"repeat_last_n":  true,
	"max_tokens":     true,
}

// FromEnv decodes LLMSOCK_* variables from environ (os.Environ format).
// Sampling keys are flat: LLMSOCK_TOP_K sets sampling.top_k.
func FromEnv(environ []string) (Config, error) {
	var cfg Config
	raw := map[string]any{}
	sampling := map[string]any{}
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(k, EnvPrefix) || v == "" {
			continue
		}
		key := strings.ToLower(strings.TrimPrefix(k, EnvPrefix))
		if samplingKeys[key] {
			sampling[key] = v
			continue
		}
		raw[key] = v
	}
	if len(sampling) > 0 {
		raw["sampling"] = sampling
	}
	if len(raw) == 0 {
		return cfg, nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook:       mapstructure.StringToSliceHookFunc(","),
	})
	if err != nil {
		return cfg, err
	}
	if err := dec.Decode(raw); err != nil {
		return cfg, fmt.Errorf("environment: %w", err)
	}
	return cfg, nil
}
