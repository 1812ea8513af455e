// Package progress reports model load milestones to the log and, when
// attached to a terminal, as a progress bar.
package progress

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"llmsock/internal/model"
)

// Reporter implements model.Progress. It is not safe for concurrent use;
// model.Load reports synchronously from a single goroutine.
type Reporter struct {
	log zerolog.Logger
	out io.Writer
	tty bool
	fd  int

	bar  *Bar
	last int
}

var _ model.Progress = (*Reporter)(nil)

// New returns a Reporter logging to log and drawing on out. The bar is only
// drawn when out is a terminal.
func New(log zerolog.Logger, out io.Writer) *Reporter {
	r := &Reporter{log: log, out: out, fd: -1}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		r.tty = true
		r.fd = int(f.Fd())
	}
	return r
}

func (r *Reporter) Report(p model.LoadProgress) {
	switch p.Kind {
	case model.HyperparametersLoaded:
		r.log.Info().Str("arch", p.Arch).Uint32("gguf_version", p.Version).Int("kv", p.KVCount).Msg("hyperparameters loaded")
	case model.ContextSize:
		r.log.Info().Int("context_length", p.ContextLength).Msg("model context size")
	case model.TensorLoaded:
		if r.bar == nil {
			r.log.Info().Int("tensors", p.TensorCount).Msg("loading tensors")
			r.bar = NewBar("tensors", p.TensorCount)
		}
		r.bar.Add(p.CurrentTensor - r.last)
		r.last = p.CurrentTensor
		r.draw()
	case model.Loaded:
		r.clear()
		r.log.Info().Str("size", HumanBytes(p.FileSize)).Int("tensors", p.TensorCount).Msg("model loaded")
	}
}

func (r *Reporter) width() int {
	if r.fd < 0 {
		return defaultTermWidth
	}
	w, _, err := term.GetSize(r.fd)
	if err != nil {
		return defaultTermWidth
	}
	return w
}

func (r *Reporter) draw() {
	if !r.tty || r.bar == nil {
		return
	}
	fmt.Fprintf(r.out, "\r%s", r.bar.String(r.width()))
}

func (r *Reporter) clear() {
	if r.tty && r.bar != nil {
		fmt.Fprint(r.out, "\033[2K\r")
	}
	r.bar = nil
	r.last = 0
}
