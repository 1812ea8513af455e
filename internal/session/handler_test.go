package session

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"math/rand"
	"net"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"llmsock/internal/model"
	"llmsock/internal/sched"
	"llmsock/internal/template"
)

// fakeModel hands out scripted sessions. Each response yields reply (then
// end of text); reply == nil means generate "tok" forever.
type fakeModel struct {
	reply   []string
	failOn  string
	nextErr error

	mu       sync.Mutex
	sessions []*fakeSession
}

func (m *fakeModel) StartSession(model.SessionConfig) model.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &fakeSession{m: m}
	m.sessions = append(m.sessions, s)
	return s
}

func (m *fakeModel) Info() model.Info { return model.Info{Arch: "fake"} }
func (m *fakeModel) Close() error     { return nil }

func (m *fakeModel) session(t *testing.T) *fakeSession {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sessions) != 1 {
		t.Fatalf("want 1 session, got %d", len(m.sessions))
	}
	return m.sessions[0]
}

type fakeSession struct {
	m *fakeModel

	mu     sync.Mutex
	fed    []string
	pos    int
	calls  int
	closed bool
}

func (s *fakeSession) Feed(word string, policy model.FeedPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.m.failOn != "" && word == s.m.failOn {
		return model.ContextFull("feed")
	}
	s.fed = append(s.fed, word)
	s.pos = 0
	policy(0)
	return nil
}

func (s *fakeSession) NextToken(_ model.SamplingParams, rng *rand.Rand) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if rng == nil {
		return nil, errors.New("nil rng")
	}
	if s.m.nextErr != nil {
		return nil, s.m.nextErr
	}
	if s.m.reply == nil {
		return []byte("tok"), nil
	}
	if s.pos >= len(s.m.reply) {
		return nil, model.EndOfText("next_token")
	}
	s.pos++
	return []byte(s.m.reply[s.pos-1]), nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSession) words() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.fed...)
}

type rw struct {
	io.Reader
	io.Writer
}

type failWriter struct{ n int }

func (w *failWriter) Write(p []byte) (int, error) {
	w.n++
	return 0, errors.New("broken pipe")
}

type countingObserver struct {
	mu       sync.Mutex
	words    int
	tokens   int
	first    int
	outcomes []string
}

func (o *countingObserver) WordsFed(n int) { o.mu.Lock(); o.words += n; o.mu.Unlock() }
func (o *countingObserver) TokenGenerated() {
	o.mu.Lock()
	o.tokens++
	o.mu.Unlock()
}
func (o *countingObserver) FirstToken(time.Duration) { o.mu.Lock(); o.first++; o.mu.Unlock() }
func (o *countingObserver) RequestDone(outcome string, _ time.Duration) {
	o.mu.Lock()
	o.outcomes = append(o.outcomes, outcome)
	o.mu.Unlock()
}

var footerRE = regexp.MustCompile(`\r\n\(took \d+\.\d\ds\)\r\n`)

func mustTemplate(t *testing.T, text string) *template.Template {
	t.Helper()
	tmpl, err := template.Parse(text, PromptVar)
	if err != nil {
		t.Fatal(err)
	}
	return tmpl
}

func serve(t *testing.T, h *Handler, c Conn) error {
	t.Helper()
	s := sched.New(1)
	return s.Run(context.Background(), "conn", func(ctx context.Context, task *sched.Task) error {
		return h.Serve(ctx, task, c)
	})
}

func TestFooter(t *testing.T) {
	if got := Footer(1234 * time.Millisecond); got != "\r\n(took 1.23s)\r\n" {
		t.Fatalf("got %q", got)
	}
	if got := Footer(0); got != "\r\n(took 0.00s)\r\n" {
		t.Fatalf("got %q", got)
	}
}

func TestServe_QuestionAnswer(t *testing.T) {
	m := &fakeModel{reply: []string{"Go", " is", " a", " language."}}
	obs := &countingObserver{}
	h := New(Config{}, m, mustTemplate(t, "Q: {prompt}\nA:"), WithObserver(obs))
	var out bytes.Buffer
	requests := 0
	err := serve(t, h, Conn{
		RW:        rw{strings.NewReader("What is Go?\n"), &out},
		Log:       zerolog.Nop(),
		OnRequest: func() { requests++ },
	})
	if err != nil {
		t.Fatalf("clean EOF must return nil, got %v", err)
	}
	sess := m.session(t)
	if got, want := strings.Join(sess.words(), "|"), "Q:|What|is|Go?|A:"; got != want {
		t.Fatalf("fed %q, want %q", got, want)
	}
	body := out.String()
	if !strings.HasPrefix(body, "Go is a language.\r\n(took ") || !footerRE.MatchString(body) {
		t.Fatalf("unexpected response %q", body)
	}
	if requests != 1 {
		t.Fatalf("OnRequest called %d times", requests)
	}
	if !sess.closed {
		t.Fatal("session must be closed when the connection ends")
	}
	if obs.words != 5 || obs.tokens != 4 || obs.first != 1 || len(obs.outcomes) != 1 || obs.outcomes[0] != OutcomeOK {
		t.Fatalf("observer: %+v", obs)
	}
}

func TestServe_SequentialRequestsShareSession(t *testing.T) {
	m := &fakeModel{reply: []string{"ok"}}
	h := New(Config{}, m, mustTemplate(t, "{prompt}"))
	var out bytes.Buffer
	if err := serve(t, h, Conn{RW: rw{strings.NewReader("one two\r\nthree\n"), &out}, Log: zerolog.Nop()}); err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(m.session(t).words(), "|"); got != "one|two|three" {
		t.Fatalf("fed %q", got)
	}
	parts := footerRE.Split(out.String(), -1)
	if len(parts) != 3 || parts[0] != "ok" || parts[1] != "ok" || parts[2] != "" {
		t.Fatalf("responses %q", parts)
	}
}

func TestServe_UnterminatedLastLine(t *testing.T) {
	m := &fakeModel{reply: []string{"x"}}
	h := New(Config{}, m, mustTemplate(t, "{prompt}"))
	var out bytes.Buffer
	if err := serve(t, h, Conn{RW: rw{strings.NewReader("first\nlast"), &out}, Log: zerolog.Nop()}); err != nil {
		t.Fatal(err)
	}
	if n := len(footerRE.FindAllString(out.String(), -1)); n != 2 {
		t.Fatalf("want 2 responses, got %d: %q", n, out.String())
	}
}

func TestServe_EmptyLineStillAnswers(t *testing.T) {
	m := &fakeModel{reply: []string{"?"}}
	h := New(Config{}, m, mustTemplate(t, "{prompt}"))
	var out bytes.Buffer
	if err := serve(t, h, Conn{RW: rw{strings.NewReader("\n"), &out}, Log: zerolog.Nop()}); err != nil {
		t.Fatal(err)
	}
	if len(m.session(t).words()) != 0 {
		t.Fatal("nothing should be fed for an empty prompt")
	}
	if !strings.HasPrefix(out.String(), "?\r\n(took ") {
		t.Fatalf("got %q", out.String())
	}
}

func TestServe_FeedErrorClosesWithoutWriting(t *testing.T) {
	m := &fakeModel{reply: []string{"never"}, failOn: "boom"}
	obs := &countingObserver{}
	h := New(Config{}, m, mustTemplate(t, "{prompt}"), WithObserver(obs))
	var out bytes.Buffer
	err := serve(t, h, Conn{RW: rw{strings.NewReader("a boom b\nsecond\n"), &out}, Log: zerolog.Nop()})
	if !errors.Is(err, model.ErrContextFull) {
		t.Fatalf("want context full, got %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("nothing may be written, got %q", out.String())
	}
	if got := strings.Join(m.session(t).words(), "|"); got != "a" {
		t.Fatalf("fed %q", got)
	}
	if len(obs.outcomes) != 1 || obs.outcomes[0] != OutcomeFeedError {
		t.Fatalf("outcomes %v", obs.outcomes)
	}
}

func TestServe_WriteFailureStopsGeneration(t *testing.T) {
	m := &fakeModel{}
	h := New(Config{}, m, mustTemplate(t, "{prompt}"))
	w := &failWriter{}
	err := serve(t, h, Conn{RW: rw{strings.NewReader("go\n"), w}, Log: zerolog.Nop()})
	if err == nil || !strings.Contains(err.Error(), "broken pipe") {
		t.Fatalf("want write error, got %v", err)
	}
	if w.n != 1 {
		t.Fatalf("writes=%d", w.n)
	}
	if calls := m.session(t).calls; calls != 1 {
		t.Fatalf("NextToken called %d times after a failed write", calls)
	}
}

func TestServe_MaxTokens(t *testing.T) {
	m := &fakeModel{}
	h := New(Config{Sampling: model.SamplingParams{MaxTokens: 3}}, m, mustTemplate(t, "{prompt}"))
	var out bytes.Buffer
	if err := serve(t, h, Conn{RW: rw{strings.NewReader("go\n"), &out}, Log: zerolog.Nop()}); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out.String(), "toktoktok\r\n(took ") {
		t.Fatalf("got %q", out.String())
	}
}

func TestServe_BackendFailureDuringGeneration(t *testing.T) {
	m := &fakeModel{nextErr: errors.New("gpu on fire")}
	h := New(Config{}, m, mustTemplate(t, "{prompt}"))
	var out bytes.Buffer
	err := serve(t, h, Conn{RW: rw{strings.NewReader("go\n"), &out}, Log: zerolog.Nop()})
	if err == nil || out.Len() != 0 {
		t.Fatalf("err=%v out=%q", err, out.String())
	}

	// An InferenceError is the normal end of a response.
	m = &fakeModel{nextErr: model.BackendError("next_token", errors.New("eos"))}
	h = New(Config{}, m, mustTemplate(t, "{prompt}"))
	out.Reset()
	if err := serve(t, h, Conn{RW: rw{strings.NewReader("go\n"), &out}, Log: zerolog.Nop()}); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out.String(), "\r\n(took ") {
		t.Fatalf("got %q", out.String())
	}
}

func TestServe_LineTooLong(t *testing.T) {
	m := &fakeModel{reply: []string{"x"}}
	h := New(Config{MaxLineBytes: 8}, m, mustTemplate(t, "{prompt}"))
	var out bytes.Buffer
	err := serve(t, h, Conn{RW: rw{strings.NewReader(strings.Repeat("a", 20) + "\n"), &out}, Log: zerolog.Nop()})
	if !errors.Is(err, bufio.ErrTooLong) {
		t.Fatalf("want ErrTooLong, got %v", err)
	}

	out.Reset()
	if err := serve(t, h, Conn{RW: rw{strings.NewReader("12345678\n"), &out}, Log: zerolog.Nop()}); err != nil {
		t.Fatalf("a line of exactly MaxLineBytes must be accepted: %v", err)
	}
}

// Over a real stream the client sees tokens before the footer and must
// receive the whole response before its next line is read.
func TestServe_StreamsOverPipe(t *testing.T) {
	m := &fakeModel{reply: []string{"a", "b", "c"}}
	h := New(Config{}, m, mustTemplate(t, "{prompt}"))
	server, client := net.Pipe()
	done := make(chan error, 1)
	go func() {
		defer server.Close()
		done <- serve(t, h, Conn{RW: server, Log: zerolog.Nop()})
	}()

	br := bufio.NewReader(client)
	for i := 0; i < 2; i++ {
		if _, err := io.WriteString(client, "hi\n"); err != nil {
			t.Fatal(err)
		}
		got, err := br.ReadString('(')
		if err != nil {
			t.Fatal(err)
		}
		if got != "abc\r\n(" {
			t.Fatalf("request %d: got %q", i, got)
		}
		rest, err := br.ReadString('\n')
		if err != nil || !strings.HasPrefix(rest, "took ") || !strings.HasSuffix(rest, "s)\r\n") {
			t.Fatalf("footer tail %q (%v)", rest, err)
		}
	}
	client.Close()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, io.ErrClosedPipe) {
			t.Fatalf("unexpected error %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("handler did not exit")
	}
}

// A template file holding a literal backslash-n keeps it inside one word.
func TestServe_LiteralEscapeStaysInWord(t *testing.T) {
	m := &fakeModel{reply: []string{}}
	h := New(Config{}, m, mustTemplate(t, `Q: {prompt}\nA:`))
	var out bytes.Buffer
	if err := serve(t, h, Conn{RW: rw{strings.NewReader("hello\n"), &out}, Log: zerolog.Nop()}); err != nil {
		t.Fatal(err)
	}
	got := m.session(t).words()
	if len(got) != 2 || got[0] != "Q:" || got[1] != `hello\nA:` {
		t.Fatalf("fed %q", got)
	}
}
