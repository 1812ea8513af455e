package model

// ProgressKind enumerates load milestones.
type ProgressKind int

const (
	HyperparametersLoaded ProgressKind = iota
	ContextSize
	TensorLoaded
	Loaded
)

// LoadProgress is one milestone reported while a model loads.
type LoadProgress struct {
	Kind ProgressKind

	// HyperparametersLoaded
	Arch    string
	Version uint32
	KVCount int

	// ContextSize
	ContextLength int

	// TensorLoaded
	CurrentTensor int
	TensorCount   int
	TensorName    string

	// Loaded (also sets TensorCount)
	FileSize int64
}

// Progress receives load milestones synchronously from Load.
type Progress interface {
	Report(LoadProgress)
}

// ProgressFunc adapts a function to Progress.
type ProgressFunc func(LoadProgress)

func (f ProgressFunc) Report(p LoadProgress) { f(p) }

type noProgress struct{}

func (noProgress) Report(LoadProgress) {}
