package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"":         zerolog.InfoLevel,
		"info":     zerolog.InfoLevel,
		"debug":    zerolog.DebugLevel,
		"warn":     zerolog.WarnLevel,
		"error":    zerolog.ErrorLevel,
		"trace":    zerolog.TraceLevel,
		"disabled": zerolog.Disabled,
		"off":      zerolog.Disabled,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseLevel("weird"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{Level: "info", Format: "json", Out: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	cl := Component(l, "server")
	cl.Info().Str("addr", ":3000").Msg("listening")
	l.Debug().Msg("hidden")

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("expected exactly one JSON line, got %q: %v", buf.String(), err)
	}
	if rec["component"] != "server" || rec["addr"] != ":3000" || rec["message"] != "listening" {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{Level: "debug", Format: "console", Out: &buf, NoColor: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Debug().Msg("loading model")
	if !strings.Contains(buf.String(), "DBG") || !strings.Contains(buf.String(), "loading model") {
		t.Fatalf("unexpected console output: %q", buf.String())
	}
}

func TestNew_Errors(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatalf("expected format error")
	}
	if _, err := New(Options{Level: "loud"}); err == nil {
		t.Fatalf("expected level error")
	}
}
