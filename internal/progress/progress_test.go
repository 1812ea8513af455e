package progress

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"llmsock/internal/model"
)

func TestBar(t *testing.T) {
	b := NewBar("tensors", 4)
	b.Add(2)
	s := b.String(60)
	if !strings.HasPrefix(s, "tensors  50% [") || !strings.HasSuffix(s, "] 2/4") {
		t.Fatalf("unexpected bar %q", s)
	}
	if len(s) != 60 {
		t.Fatalf("bar width %d, want 60", len(s))
	}
	b.Add(10)
	if b.Current() != 4 {
		t.Fatalf("bar must clamp at max, got %d", b.Current())
	}
	if s := b.String(0); !strings.Contains(s, "100%") {
		t.Fatalf("want 100%%, got %q", s)
	}
}

func TestHumanBytes(t *testing.T) {
	cases := map[int64]string{
		0:             "0 B",
		999:           "999 B",
		1000:          "1.00 KB",
		15_300_000:    "15.3 MB",
		3_826_000_000: "3.83 GB",
		120_000_000:   "120 MB",
	}
	for in, want := range cases {
		if got := HumanBytes(in); got != want {
			t.Errorf("HumanBytes(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestReporter_NonTerminal(t *testing.T) {
	var logs, out bytes.Buffer
	r := New(zerolog.New(&logs), &out)

	r.Report(model.LoadProgress{Kind: model.HyperparametersLoaded, Arch: "llama", Version: 3, KVCount: 5})
	r.Report(model.LoadProgress{Kind: model.ContextSize, ContextLength: 2048})
	for i := 1; i <= 3; i++ {
		r.Report(model.LoadProgress{Kind: model.TensorLoaded, CurrentTensor: i, TensorCount: 3})
	}
	if r.bar == nil || r.bar.Current() != 3 {
		t.Fatalf("bar not advanced: %+v", r.bar)
	}
	r.Report(model.LoadProgress{Kind: model.Loaded, FileSize: 2_000_000, TensorCount: 3})

	if out.Len() != 0 {
		t.Fatalf("no bar expected on non-terminal, got %q", out.String())
	}
	if r.bar != nil {
		t.Fatal("bar must be cleared after Loaded")
	}
	got := logs.String()
	for _, want := range []string{"hyperparameters loaded", `"context_length":2048`, "loading tensors", "model loaded", `"size":"2.00 MB"`} {
		if !strings.Contains(got, want) {
			t.Errorf("logs missing %q:\n%s", want, got)
		}
	}
	if n := strings.Count(got, "loading tensors"); n != 1 {
		t.Errorf("loading tensors logged %d times", n)
	}
}
