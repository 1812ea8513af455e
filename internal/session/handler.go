// Package session implements the per-connection request loop: read a line,
// render it into a prompt, feed the prompt word by word, stream generated
// tokens back and finish each response with a timing footer.
package session

import (
	"bufio"
	"context"
	"errors"
	"io"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"llmsock/internal/model"
	"llmsock/internal/sched"
	"llmsock/internal/template"
)

// PromptVar is the template variable holding the client's line.
const PromptVar = "prompt"

// Request outcomes reported to the Observer.
const (
	OutcomeOK            = "ok"
	OutcomeFeedError     = "feed_error"
	OutcomeGenerateError = "generate_error"
	OutcomeWriteError    = "write_error"
	OutcomeCanceled      = "canceled"
)

type Config struct {
	MaxLineBytes int
	Sampling     model.SamplingParams
	Session      model.SessionConfig
	// Seed seeds each connection's sampler; 0 picks a time based seed.
	Seed int64
}

// Observer receives per-request events, typically to update metrics.
type Observer interface {
	WordsFed(n int)
	TokenGenerated()
	FirstToken(d time.Duration)
	RequestDone(outcome string, d time.Duration)
}

type nopObserver struct{}

func (nopObserver) WordsFed(int)                      {}
func (nopObserver) TokenGenerated()                   {}
func (nopObserver) FirstToken(time.Duration)          {}
func (nopObserver) RequestDone(string, time.Duration) {}

// Handler serves connections against one model and template. It holds no
// per-connection state and is shared by every connection task.
type Handler struct {
	cfg   Config
	model model.Model
	tmpl  *template.Template
	obs   Observer
	now   func() time.Time
}

type Option func(*Handler)

func WithObserver(o Observer) Option {
	return func(h *Handler) {
		if o != nil {
			h.obs = o
		}
	}
}

func New(cfg Config, m model.Model, tmpl *template.Template, opts ...Option) *Handler {
	if cfg.MaxLineBytes <= 0 {
		cfg.MaxLineBytes = 1 << 20
	}
	h := &Handler{cfg: cfg, model: m, tmpl: tmpl, obs: nopObserver{}, now: time.Now}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Conn is one accepted client as seen by the handler.
type Conn struct {
	RW  io.ReadWriter
	Log zerolog.Logger
	// OnRequest is called after each completed response.
	OnRequest func()
}

// Serve runs the request loop for c until the client disconnects or an error
// ends the connection. A clean end of stream returns nil. Serve never closes
// c.RW; the caller owns the connection.
func (h *Handler) Serve(ctx context.Context, t *sched.Task, c Conn) error {
	seed := h.cfg.Seed
	if seed == 0 {
		seed = h.now().UnixNano()
	}
	sess := h.model.StartSession(h.cfg.Session)
	defer sess.Close()

	scan := bufio.NewScanner(c.RW)
	// The limit includes the newline; the initial buffer must not exceed it.
	limit := h.cfg.MaxLineBytes + 1
	scan.Buffer(make([]byte, 0, min(4096, limit)), limit)

	r := &run{
		h:    h,
		ctx:  ctx,
		t:    t,
		c:    c,
		scan: scan,
		sess: sess,
		rng:  rand.New(rand.NewSource(seed)),
	}
	st := awaitingLine
	for st != closed {
		st = r.step(st)
	}
	return r.err
}

type state int

const (
	awaitingLine state = iota
	rendering
	feeding
	generating
	writingFooter
	closed
)

func (s state) String() string {
	switch s {
	case awaitingLine:
		return "awaiting_line"
	case rendering:
		return "rendering"
	case feeding:
		return "feeding"
	case generating:
		return "generating"
	case writingFooter:
		return "writing_footer"
	case closed:
		return "closed"
	}
	return "unknown"
}

// run is the state of one connection's loop.
type run struct {
	h    *Handler
	ctx  context.Context
	t    *sched.Task
	c    Conn
	scan *bufio.Scanner
	sess model.Session
	rng  *rand.Rand
	err  error

	// current request
	line    string
	prompt  string
	started time.Time
	words   []string
	fed     int
	tokens  int
}

func (r *run) step(st state) state {
	r.c.Log.Trace().Stringer("state", st).Msg("step")
	switch st {
	case awaitingLine:
		return r.awaitLine()
	case rendering:
		return r.render()
	case feeding:
		return r.feed()
	case generating:
		return r.generate()
	case writingFooter:
		return r.writeFooter()
	}
	return closed
}

func (r *run) awaitLine() state {
	var ok bool
	err := r.t.Block(r.ctx, func() error {
		ok = r.scan.Scan()
		return nil
	})
	if err != nil {
		r.err = err
		return closed
	}
	if !ok {
		if err := r.scan.Err(); err != nil {
			r.c.Log.Warn().Err(err).Msg("read failed")
			r.err = err
		} else {
			r.c.Log.Debug().Msg("client closed connection")
		}
		return closed
	}
	r.line = r.scan.Text()
	return rendering
}

func (r *run) render() state {
	r.prompt = r.h.tmpl.Render(template.Vars{PromptVar: r.line})
	r.started = r.h.now()
	r.words = splitWords(r.prompt)
	r.fed = 0
	r.tokens = 0
	return feeding
}

func (r *run) feed() state {
	for r.fed < len(r.words) {
		if err := r.sess.Feed(r.words[r.fed], model.AlwaysContinue); err != nil {
			r.c.Log.Warn().Err(err).Int("word", r.fed).Msg("feed failed, closing connection")
			r.h.obs.WordsFed(r.fed)
			r.finish(err, OutcomeFeedError)
			return closed
		}
		r.fed++
		if err := r.t.Yield(r.ctx); err != nil {
			r.h.obs.WordsFed(r.fed)
			r.finish(err, OutcomeCanceled)
			return closed
		}
	}
	r.h.obs.WordsFed(r.fed)
	return generating
}

func (r *run) generate() state {
	limit := r.h.cfg.Sampling.MaxTokens
	for limit <= 0 || r.tokens < limit {
		tok, err := r.sess.NextToken(r.h.cfg.Sampling, r.rng)
		if err != nil {
			if model.IsInferenceError(err) {
				r.c.Log.Trace().Err(err).Msg("generation ended")
				break
			}
			r.c.Log.Warn().Err(err).Msg("generation failed, closing connection")
			r.finish(err, OutcomeGenerateError)
			return closed
		}
		if err := r.write(tok); err != nil {
			r.c.Log.Warn().Err(err).Msg("write failed")
			r.finish(err, OutcomeWriteError)
			return closed
		}
		if r.tokens == 0 {
			r.h.obs.FirstToken(r.h.now().Sub(r.started))
		}
		r.tokens++
		r.h.obs.TokenGenerated()
		if err := r.t.Yield(r.ctx); err != nil {
			r.finish(err, OutcomeCanceled)
			return closed
		}
	}
	return writingFooter
}

func (r *run) writeFooter() state {
	elapsed := r.h.now().Sub(r.started)
	if err := r.write([]byte(Footer(elapsed))); err != nil {
		r.c.Log.Warn().Err(err).Msg("write failed")
		r.finish(err, OutcomeWriteError)
		return closed
	}
	r.h.obs.RequestDone(OutcomeOK, elapsed)
	if r.c.OnRequest != nil {
		r.c.OnRequest()
	}
	r.c.Log.Debug().
		Int("words", len(r.words)).
		Int("tokens", r.tokens).
		Dur("elapsed", elapsed).
		Msg("request done")
	return awaitingLine
}

func (r *run) write(b []byte) error {
	return r.t.Block(r.ctx, func() error {
		_, err := r.c.RW.Write(b)
		return err
	})
}

func (r *run) finish(err error, outcome string) {
	r.h.obs.RequestDone(outcome, r.h.now().Sub(r.started))
	if errors.Is(err, context.Canceled) {
		return
	}
	r.err = err
}
