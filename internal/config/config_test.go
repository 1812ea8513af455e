package config

import (
	"strings"
	"testing"
)

func validConfig() Config {
	c := Default()
	c.Model = "/models/tiny.gguf"
	c.PromptTemplate = "/templates/qa.txt"
	return c
}

func TestDefault(t *testing.T) {
	c := Default()
	if c.Port != 3000 || c.BatchSize != 8 || c.Threads != 2 {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if c.SchedulerWidth != 1 || c.MaxLineBytes != 1<<20 {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if c.ListenAddr() != ":3000" {
		t.Fatalf("ListenAddr = %q", c.ListenAddr())
	}
}

func TestMerge_OverridesOnlyNonZero(t *testing.T) {
	base := validConfig()
	got := Merge(base, Config{Port: 4100, Sampling: Sampling{TopK: 5}, CORSOrigins: []string{"*"}})
	if got.Port != 4100 || got.Sampling.TopK != 5 {
		t.Fatalf("override not applied: %+v", got)
	}
	if got.BatchSize != base.BatchSize || got.Sampling.TopP != base.Sampling.TopP || got.Model != base.Model {
		t.Fatalf("zero fields must not override: %+v", got)
	}
	if len(got.CORSOrigins) != 1 {
		t.Fatalf("cors not merged: %v", got.CORSOrigins)
	}
}

func TestValidate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no model", func(c *Config) { c.Model = "" }, "model path"},
		{"no template", func(c *Config) { c.PromptTemplate = " " }, "prompt template"},
		{"port", func(c *Config) { c.Port = 70000 }, "port"},
		{"batch", func(c *Config) { c.BatchSize = 0 }, "batch size"},
		{"threads", func(c *Config) { c.Threads = -1 }, "threads"},
		{"gpu", func(c *Config) { c.GPULayers = -2 }, "gpu layers"},
		{"width", func(c *Config) { c.SchedulerWidth = 0 }, "scheduler width"},
		{"line", func(c *Config) { c.MaxLineBytes = 0 }, "max line bytes"},
		{"top_p", func(c *Config) { c.Sampling.TopP = 1.5 }, "top_p"},
		{"temperature", func(c *Config) { c.Sampling.Temperature = -1 }, "temperature"},
		{"level", func(c *Config) { c.LogLevel = "loud" }, "log level"},
		{"format", func(c *Config) { c.LogFormat = "xml" }, "log format"},
	}
	for _, tc := range cases {
		c := validConfig()
		tc.mutate(&c)
		err := c.Validate()
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: expected error containing %q, got %v", tc.name, tc.want, err)
		}
	}
}

func TestValidate_JoinsErrors(t *testing.T) {
	c := Default()
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "model path") || !strings.Contains(msg, "prompt template") {
		t.Fatalf("expected both problems reported, got %q", msg)
	}
}
