//go:build llama

package llama

import (
	"math/rand"
	"strings"

	llama "github.com/go-skynet/go-llama.cpp"

	"llmsock/internal/model"
)

// Built reports whether this binary links the llama.cpp runtime.
const Built = true

// idleContexts bounds how many released llama contexts are kept for reuse.
const idleContexts = 4

// llamaModel keeps the options needed to open per-session contexts. The
// weights are memory mapped, so every context shares the same pages.
type llamaModel struct {
	path string
	opts []llama.ModelOption
	info model.Info
	idle chan *llama.LLama
}

func load(req model.LoadRequest) (model.Model, error) {
	ctxSize := req.ContextSize
	if ctxSize <= 0 {
		ctxSize = 2048
	}
	opts := []llama.ModelOption{
		llama.SetContext(ctxSize),
		llama.SetMMap(true),
	}
	if req.BatchSize > 0 {
		opts = append(opts, llama.SetNBatch(req.BatchSize))
	}
	if req.GPULayers > 0 {
		opts = append(opts, llama.SetGPULayers(req.GPULayers))
	}
	// Load once up front so bad weights fail at startup, not on first use.
	probe, err := llama.New(req.AbsPath, opts...)
	if err != nil {
		return nil, err
	}
	m := &llamaModel{
		path: req.AbsPath,
		opts: opts,
		idle: make(chan *llama.LLama, idleContexts),
		info: model.Info{
			Path:        req.AbsPath,
			Arch:        req.Arch,
			Backend:     Name,
			FileSize:    req.FileSize,
			ContextSize: ctxSize,
		},
	}
	if req.Header != nil {
		m.info.TensorCount = len(req.Header.Tensors)
	}
	m.idle <- probe
	return m, nil
}

func (m *llamaModel) Info() model.Info { return m.info }

func (m *llamaModel) StartSession(cfg model.SessionConfig) model.Session {
	ctxSize := cfg.ContextSize
	if ctxSize <= 0 {
		ctxSize = m.info.ContextSize
	}
	return &session{m: m, cfg: cfg, ctxSize: ctxSize}
}

func (m *llamaModel) acquire() (*llama.LLama, error) {
	select {
	case l := <-m.idle:
		return l, nil
	default:
		return llama.New(m.path, m.opts...)
	}
}

func (m *llamaModel) release(l *llama.LLama) {
	l.SetTokenCallback(nil)
	select {
	case m.idle <- l:
	default:
		l.Free()
	}
}

func (m *llamaModel) Close() error {
	for {
		select {
		case l := <-m.idle:
			l.Free()
		default:
			return nil
		}
	}
}

// session emulates a stateful context on top of the binding's stateless
// Predict: it keeps the running transcript and replays it per response.
type session struct {
	m       *llamaModel
	cfg     model.SessionConfig
	ctxSize int

	l          *llama.LLama
	transcript strings.Builder
	used       int // approximate tokens in the transcript
	gen        *generation
	closed     bool
}

// generation turns the binding's push callback into a pull: the callback
// blocks until NextToken receives the token.
type generation struct {
	tokens chan string
	stop   chan struct{}
	done   chan struct{}
	err    error
}

func (s *session) Feed(word string, policy model.FeedPolicy) error {
	if s.closed {
		return model.BackendError("feed", model.ErrClosed)
	}
	s.finishGeneration()
	if s.l == nil {
		l, err := s.m.acquire()
		if err != nil {
			return model.BackendError("feed", err)
		}
		s.l = l
	}
	if s.used >= s.ctxSize {
		return model.ContextFull("feed")
	}
	if s.transcript.Len() > 0 {
		s.transcript.WriteByte(' ')
	}
	s.transcript.WriteString(word)
	s.used++
	if policy != nil {
		policy(0)
	}
	return nil
}

func (s *session) NextToken(params model.SamplingParams, rng *rand.Rand) ([]byte, error) {
	if s.closed || s.l == nil {
		return nil, model.BackendError("next_token", model.ErrClosed)
	}
	if s.gen == nil {
		if s.used >= s.ctxSize {
			return nil, model.ContextFull("next_token")
		}
		s.startGeneration(params, rng)
	}
	tok, ok := <-s.gen.tokens
	if !ok {
		err := s.gen.err
		s.gen = nil
		return nil, classify(err)
	}
	s.transcript.WriteString(tok)
	s.used++
	return []byte(tok), nil
}

func (s *session) startGeneration(params model.SamplingParams, rng *rand.Rand) {
	g := &generation{
		tokens: make(chan string),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	s.l.SetTokenCallback(func(tok string) bool {
		select {
		case g.tokens <- tok:
			return true
		case <-g.stop:
			return false
		}
	})
	limit := s.ctxSize - s.used
	if params.MaxTokens > 0 && params.MaxTokens < limit {
		limit = params.MaxTokens
	}
	opts := predictOptions(params, s.cfg, limit, rng)
	prompt := s.transcript.String()
	l := s.l
	go func() {
		defer close(g.done)
		defer close(g.tokens)
		_, g.err = l.Predict(prompt, opts...)
	}()
	s.gen = g
}

func (s *session) finishGeneration() {
	if s.gen == nil {
		return
	}
	close(s.gen.stop)
	for range s.gen.tokens {
	}
	<-s.gen.done
	s.gen = nil
}

func (s *session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.finishGeneration()
	if s.l != nil {
		s.m.release(s.l)
		s.l = nil
	}
	return nil
}

func classify(err error) error {
	if err == nil {
		return model.EndOfText("next_token")
	}
	if strings.Contains(strings.ToLower(err.Error()), "context") {
		return &model.InferenceError{Op: "next_token", Kind: model.KindContextFull, Err: err}
	}
	return model.BackendError("next_token", err)
}

func predictOptions(p model.SamplingParams, cfg model.SessionConfig, limit int, rng *rand.Rand) []llama.PredictOption {
	po := []llama.PredictOption{
		llama.SetTokens(max(1, limit)),
		llama.SetThreads(max(1, cfg.Threads)),
		llama.SetTopK(zn(p.TopK, llama.DefaultOptions.TopK)),
		llama.SetTopP(zf(p.TopP, llama.DefaultOptions.TopP)),
		llama.SetTemperature(zf(p.Temperature, llama.DefaultOptions.Temperature)),
		llama.SetPenalty(zf(p.RepeatPenalty, llama.DefaultOptions.Penalty)),
	}
	if p.RepeatLastN > 0 {
		po = append(po, llama.SetRepeat(p.RepeatLastN))
	}
	if cfg.BatchSize > 0 {
		po = append(po, llama.SetBatch(cfg.BatchSize))
	}
	if rng != nil {
		po = append(po, llama.SetSeed(int(rng.Int31())))
	}
	return po
}

func zn(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func zf(v, def float32) float32 {
	if v > 0 {
		return v
	}
	return def
}
