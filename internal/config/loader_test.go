package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.yaml", "model: /m/llama.gguf\nprompt_template: /t/q.txt\nport: 4000\nbatch_size: 16\nsampling:\n  top_k: 20\n  temperature: 0.5\ncors_origins: [\"http://a\"]\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Model != "/m/llama.gguf" || cfg.PromptTemplate != "/t/q.txt" || cfg.Port != 4000 || cfg.BatchSize != 16 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.Sampling.TopK != 20 || cfg.Sampling.Temperature != 0.5 {
		t.Fatalf("unexpected sampling: %+v", cfg.Sampling)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "http://a" {
		t.Fatalf("unexpected cors: %v", cfg.CORSOrigins)
	}
}

func TestLoadJSON(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.json", `{"model":"/m.gguf","model_arch":"llama","threads":4,"seed":7,"sampling":{"max_tokens":32}}`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Model != "/m.gguf" || cfg.ModelArch != "llama" || cfg.Threads != 4 || cfg.Seed != 7 || cfg.Sampling.MaxTokens != 32 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadTOML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.toml", "model=\"/x.gguf\"\nport=3001\nadmin_addr=\"127.0.0.1:9090\"\n[sampling]\ntop_p=0.9\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Model != "/x.gguf" || cfg.Port != 3001 || cfg.AdminAddr != "127.0.0.1:9090" || cfg.Sampling.TopP != 0.9 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error on empty path")
	}
	if _, err := Load("/definitely/not/a/real/file-12345.yaml"); err == nil {
		t.Fatalf("expected error for nonexistent file")
	}
	d := t.TempDir()
	cases := map[string]string{
		"cfg.txt":  "not supported",
		"bad.yaml": "port: 1\n: broken\n",
		"bad.json": `{ "port": }`,
		"bad.toml": "port=\nmodel\n",
	}
	for name, body := range cases {
		p := writeTempFile(t, d, name, body)
		if _, err := Load(p); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
