// Package model defines the inference capability the session handlers drive:
// a loaded, immutable Model that starts independent mutable Sessions.
// Concrete runtimes register themselves as Backends (see Register).
package model

import "math/rand"

// SessionConfig carries per-session runtime options.
type SessionConfig struct {
	// BatchSize is the number of tokens processed per internal step.
	BatchSize int
	// Threads is the internal compute parallelism.
	Threads int
	// ContextSize is the token window; 0 uses the model's load setting.
	ContextSize int
}

// SamplingParams controls next-token selection.
type SamplingParams struct {
	TopK          int
	TopP          float32
	Temperature   float32
	RepeatPenalty float32
	RepeatLastN   int
	// MaxTokens caps one response; 0 lets the model decide when to stop.
	MaxTokens int
}

// DefaultSamplingParams returns the defaults used when none are configured.
func DefaultSamplingParams() SamplingParams {
	return SamplingParams{
		TopK:          40,
		TopP:          0.95,
		Temperature:   0.80,
		RepeatPenalty: 1.30,
		RepeatLastN:   64,
	}
}

// Feedback is returned by a FeedPolicy after each internal feed step.
type Feedback int

const (
	Continue Feedback = iota
	Halt
)

// FeedPolicy is consulted after each internal step of Feed.
type FeedPolicy func(step int) Feedback

// AlwaysContinue never halts feeding.
func AlwaysContinue(int) Feedback { return Continue }

// Info describes a loaded model.
type Info struct {
	Path        string `json:"path"`
	Arch        string `json:"arch"`
	Backend     string `json:"backend"`
	FileSize    int64  `json:"file_size"`
	TensorCount int    `json:"tensor_count"`
	ContextSize int    `json:"context_size"`
}

// Model is loaded once and shared read-only by every connection.
type Model interface {
	// StartSession returns a fresh, independent session. It does not fail;
	// allocation problems surface on the first Feed.
	StartSession(cfg SessionConfig) Session
	Info() Info
	Close() error
}

// Session is mutable inference state owned by exactly one connection.
// Implementations need not be safe for concurrent use.
type Session interface {
	// Feed appends one prompt word to the context.
	Feed(word string, policy FeedPolicy) error
	// NextToken returns the raw bytes of the next generated token. An
	// *InferenceError means generation cannot continue.
	NextToken(params SamplingParams, rng *rand.Rand) ([]byte, error)
	Close() error
}
