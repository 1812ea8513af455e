package model

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"llmsock/internal/common/fsutil"
	"llmsock/internal/gguf"
)

// LoadParams describes the model to load.
type LoadParams struct {
	Path        string
	Arch        string // optional; detected from the file header when empty
	GPULayers   int
	ContextSize int
	BatchSize   int
	Seed        int64
}

// LoadRequest is what a Backend receives: the params plus what the loader
// learned from the file.
type LoadRequest struct {
	LoadParams
	AbsPath  string
	FileSize int64
	Header   *gguf.File // nil for non-GGUF files
}

// Backend is a model runtime able to load some architectures.
type Backend interface {
	Name() string
	Supports(arch string) bool
	Load(ctx context.Context, req LoadRequest) (Model, error)
}

// Registry holds the available backends in registration order.
type Registry struct {
	mu       sync.RWMutex
	backends []Backend
}

var defaultRegistry = &Registry{}

// Register adds b to the process-wide registry. It is meant to be called
// from backend package init functions.
func Register(b Backend) { defaultRegistry.Register(b) }

// Backends lists the names of the process-wide registered backends.
func Backends() []string { return defaultRegistry.Names() }

// Load loads a model with the process-wide registry.
func Load(ctx context.Context, p LoadParams, progress Progress) (Model, error) {
	return defaultRegistry.Load(ctx, p, progress)
}

func (r *Registry) Register(b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends = append(r.backends, b)
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.backends))
	for _, b := range r.backends {
		out = append(out, b.Name())
	}
	return out
}

func (r *Registry) backendFor(arch string) (Backend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.backends {
		if b.Supports(arch) {
			return b, true
		}
	}
	return nil, false
}

// Load reads the file header (when GGUF), resolves the architecture, picks
// the first backend supporting it and reports milestones to progress.
func (r *Registry) Load(ctx context.Context, p LoadParams, progress Progress) (Model, error) {
	if progress == nil {
		progress = noProgress{}
	}
	if strings.TrimSpace(p.Path) == "" {
		return nil, errors.New("model path is empty")
	}
	abs, size, err := fsutil.RegularFile(p.Path)
	if err != nil {
		return nil, fmt.Errorf("model file: %w", err)
	}
	req := LoadRequest{LoadParams: p, AbsPath: abs, FileSize: size}

	if gguf.IsGGUF(abs) {
		hdr, err := readHeader(abs, progress)
		if err != nil {
			return nil, fmt.Errorf("read model header: %w", err)
		}
		req.Header = hdr
		if req.Arch == "" {
			req.Arch = hdr.Architecture()
		}
	}
	if req.Arch == "" {
		return nil, fmt.Errorf("cannot detect architecture of %s; pass --model-arch", abs)
	}
	req.Arch = strings.ToLower(req.Arch)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, ok := r.backendFor(req.Arch)
	if !ok {
		return nil, fmt.Errorf("unsupported architecture %q (backends: %s)", req.Arch, strings.Join(r.Names(), ", "))
	}
	m, err := b.Load(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s backend: %w", b.Name(), err)
	}
	tensors := 0
	if req.Header != nil {
		tensors = len(req.Header.Tensors)
	}
	progress.Report(LoadProgress{Kind: Loaded, FileSize: size, TensorCount: tensors})
	return m, nil
}

func readHeader(path string, progress Progress) (*gguf.File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	return gguf.DecodeWithCallback(fh,
		func(f *gguf.File) {
			progress.Report(LoadProgress{
				Kind:    HyperparametersLoaded,
				Arch:    f.Architecture(),
				Version: f.Version,
				KVCount: len(f.KV),
			})
			if n := f.ContextLength(); n > 0 {
				progress.Report(LoadProgress{Kind: ContextSize, ContextLength: int(n)})
			}
		},
		func(t gguf.Tensor, current, count int) {
			progress.Report(LoadProgress{
				Kind:          TensorLoaded,
				CurrentTensor: current,
				TensorCount:   count,
				TensorName:    t.Name,
			})
		})
}
