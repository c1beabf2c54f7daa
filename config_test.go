package relay

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relay.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Trace.Dir != "data/traces" || cfg.Trace.MaxFieldChars != 2000 {
		t.Errorf("trace defaults = %+v", cfg.Trace)
	}
	if cfg.Engine.PipelineMaxIterations != 3 || cfg.Engine.GraphMaxSteps != 16 {
		t.Errorf("engine defaults = %+v", cfg.Engine)
	}
	if cfg.Limits.RateTokens != 5 || cfg.Limits.RatePeriodSeconds != 10 {
		t.Errorf("limit defaults = %+v", cfg.Limits)
	}
	if cfg.External.FetchTimeout() != 20*time.Second {
		t.Errorf("fetch timeout = %v", cfg.External.FetchTimeout())
	}
}

func TestLoadConfig_PartialOverrides(t *testing.T) {
	path := writeConfig(t, `
[engine]
graph_max_steps = 32

[limits]
rate_tokens = 2
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Engine.GraphMaxSteps != 32 {
		t.Errorf("graph_max_steps = %d, want 32", cfg.Engine.GraphMaxSteps)
	}
	if cfg.Limits.RateTokens != 2 {
		t.Errorf("rate_tokens = %d, want 2", cfg.Limits.RateTokens)
	}
	// Untouched keys keep their defaults.
	if cfg.Engine.PipelineMaxIterations != 3 {
		t.Errorf("pipeline_max_iterations = %d, want default 3", cfg.Engine.PipelineMaxIterations)
	}
	if cfg.Trace.Dir != "data/traces" {
		t.Errorf("trace dir = %q, want default", cfg.Trace.Dir)
	}
}

func TestLoadConfig_UnknownKeyRejected(t *testing.T) {
	path := writeConfig(t, `
[engine]
graph_max_stpes = 32
`)
	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("expected an error for the typoed key")
	}
	if !strings.Contains(err.Error(), "graph_max_stpes") {
		t.Errorf("error = %v, want the offending key named", err)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml"))
	if err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
