// Package llama registers the llama.cpp runtime as a model backend.
//
// The real runtime is compiled with `-tags=llama` (go-llama.cpp, CGO). Without
// the tag the backend is still registered so architecture detection works, but
// Load fails with a dependency-unavailable error.
package llama

import (
	"context"
	"slices"

	"llmsock/internal/model"
)

// Name is the backend name used in logs and status output.
const Name = "llama"

// archs are GGUF general.architecture values llama.cpp can run.
var archs = []string{
	"baichuan", "bloom", "codeshell", "falcon", "gemma", "gpt2", "gptj",
	"gptneox", "internlm2", "llama", "minicpm", "mpt", "orion", "phi2",
	"plamo", "qwen", "qwen2", "refact", "stablelm", "starcoder",
}

// Backend implements model.Backend.
type Backend struct{}

func init() { model.Register(Backend{}) }

func (Backend) Name() string { return Name }

func (Backend) Supports(arch string) bool { return slices.Contains(archs, arch) }

func (Backend) Load(ctx context.Context, req model.LoadRequest) (model.Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return load(req)
}

// Architectures lists the supported architectures.
func Architectures() []string { return slices.Clone(archs) }
