//go:build !llama

package llama

import "llmsock/internal/model"

// Built reports whether this binary links the llama.cpp runtime.
const Built = false

func load(model.LoadRequest) (model.Model, error) {
	return nil, model.ErrDependencyUnavailable("llama support not built (missing 'llama' build tag)")
}
